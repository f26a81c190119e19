package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	EventTypeSessionChanged = "session.changed"
	EventTypeAccountCreated = "account.created"
)

// NewSessionChangedEvent announces the current principal. An empty
// principal id means the session ended.
func NewSessionChangedEvent(principalID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeSessionChanged,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"principal_id": principalID,
		},
	}
}

// NewAccountCreatedEvent announces a freshly registered account.
func NewAccountCreatedEvent(principalID, email string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeAccountCreated,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"principal_id": principalID,
			"email":        email,
		},
	}
}

// PrincipalID extracts the principal id from a session or account event
// payload, returning "" when absent.
func PrincipalID(event Event) string {
	data, ok := event.Payload().(map[string]interface{})
	if !ok {
		return ""
	}
	id, _ := data["principal_id"].(string)
	return id
}
