package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ModuleID identifies a named capability unit gating a portal section.
// The catalog is closed; unknown identifiers are rejected at the
// persistence boundary.
type ModuleID string

const (
	ModuleAdmin          ModuleID = "admin"
	ModuleUserManagement ModuleID = "user-management"
	ModuleSystemSettings ModuleID = "system-settings"
	ModuleReports        ModuleID = "reports"
	ModuleBasic          ModuleID = "basic"
	ModuleSupport        ModuleID = "support"
	ModuleBilling        ModuleID = "billing"
	ModuleInventory      ModuleID = "inventory"
	ModuleAnalytics      ModuleID = "analytics"
)

// Catalog returns every module in the fixed catalog.
func Catalog() []ModuleID {
	return []ModuleID{
		ModuleAdmin,
		ModuleUserManagement,
		ModuleSystemSettings,
		ModuleReports,
		ModuleBasic,
		ModuleSupport,
		ModuleBilling,
		ModuleInventory,
		ModuleAnalytics,
	}
}

// AdminModules is the fixed set granted on admin promotion and stripped on
// demotion.
func AdminModules() []ModuleID {
	return []ModuleID{ModuleAdmin, ModuleUserManagement, ModuleSystemSettings}
}

// DefaultModules is what a plain account gets on first resolve.
func DefaultModules() []ModuleID {
	return []ModuleID{ModuleBasic, ModuleSupport}
}

// StandardAdminModules is the bundle provisioned for hint-based admin
// signups, as opposed to the full catalog reserved for the designated admin.
func StandardAdminModules() []ModuleID {
	return []ModuleID{
		ModuleAdmin,
		ModuleUserManagement,
		ModuleSystemSettings,
		ModuleReports,
		ModuleBasic,
		ModuleSupport,
	}
}

var moduleSet = func() map[ModuleID]struct{} {
	m := make(map[ModuleID]struct{}, len(Catalog()))
	for _, id := range Catalog() {
		m[id] = struct{}{}
	}
	return m
}()

// ParseModuleID validates a raw string against the catalog.
func ParseModuleID(raw string) (ModuleID, error) {
	id := ModuleID(raw)
	if _, ok := moduleSet[id]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownModule, raw)
	}
	return id, nil
}

// Record is a principal's admin flag plus granted module set. Module order
// is preserved for round-tripping but carries no meaning.
type Record struct {
	IsAdmin bool
	Modules []ModuleID
}

func (r *Record) HasModule(id ModuleID) bool {
	for _, m := range r.Modules {
		if m == id {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so callers can hand records to the transport
// layer without sharing the backing slice.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	modules := make([]ModuleID, len(r.Modules))
	copy(modules, r.Modules)
	return &Record{IsAdmin: r.IsAdmin, Modules: modules}
}

// withModules unions the given modules into the record, preserving existing
// order and appending new grants at the end.
func (r *Record) withModules(ids ...ModuleID) {
	for _, id := range ids {
		if !r.HasModule(id) {
			r.Modules = append(r.Modules, id)
		}
	}
}

// withoutModules removes exactly the given modules, leaving all others
// untouched.
func (r *Record) withoutModules(ids ...ModuleID) {
	strip := make(map[ModuleID]struct{}, len(ids))
	for _, id := range ids {
		strip[id] = struct{}{}
	}
	kept := r.Modules[:0]
	for _, m := range r.Modules {
		if _, drop := strip[m]; !drop {
			kept = append(kept, m)
		}
	}
	r.Modules = kept
}

var (
	// ErrNotFound is returned when a mutation addresses a principal that was
	// never provisioned. Callers must Resolve first.
	ErrNotFound = errors.New("entitlement: record not found")

	// ErrUnknownModule is returned for identifiers outside the catalog.
	ErrUnknownModule = errors.New("entitlement: unknown module id")
)

// StorageError wraps a persistence collaborator failure. It is propagated
// to callers uncaught; no operation retries automatically.
type StorageError struct {
	Op  string
	Key string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("entitlement storage %s %q: %v", e.Op, e.Key, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// IsStorageError reports whether err is (or wraps) a StorageError.
func IsStorageError(err error) bool {
	var se *StorageError
	return errors.As(err, &se)
}

// KV is the persistence collaborator contract. Implementations live under
// entitlement/postgres and entitlement/redis.
type KV interface {
	Get(ctx context.Context, key string) (value []byte, ok bool, err error)
	Put(ctx context.Context, key string, value []byte) error
}

const (
	recordKeyPrefix   = "entitlements:"
	designatedAdminID = "designated-admin-id"
)

func recordKey(principalID string) string {
	return recordKeyPrefix + principalID
}

// recordJSON is the serialized shape: exactly isAdmin plus an ordered
// module sequence.
type recordJSON struct {
	IsAdmin bool     `json:"isAdmin"`
	Modules []string `json:"modules"`
}

// EncodeRecord serializes a record for the KV collaborator.
func EncodeRecord(r *Record) ([]byte, error) {
	out := recordJSON{IsAdmin: r.IsAdmin, Modules: make([]string, 0, len(r.Modules))}
	for _, m := range r.Modules {
		out.Modules = append(out.Modules, string(m))
	}
	return json.Marshal(out)
}

// DecodeRecord deserializes a record, rejecting module identifiers outside
// the catalog rather than passing them through silently.
func DecodeRecord(data []byte) (*Record, error) {
	var raw recordJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("entitlement: decode record: %w", err)
	}
	rec := &Record{IsAdmin: raw.IsAdmin, Modules: make([]ModuleID, 0, len(raw.Modules))}
	for _, m := range raw.Modules {
		id, err := ParseModuleID(m)
		if err != nil {
			return nil, err
		}
		rec.Modules = append(rec.Modules, id)
	}
	return rec, nil
}
