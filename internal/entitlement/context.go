package entitlement

import "context"

type ctxKey string

const contextRecordKey ctxKey = "entitlement.record"

// ContextWithRecord stores a read-only copy of the record for downstream
// gating. The transport layer never mutates it.
func ContextWithRecord(ctx context.Context, rec *Record) context.Context {
	return context.WithValue(ctx, contextRecordKey, rec)
}

// RecordFromContext returns the record attached by the auth middleware, or
// false when the request carries no session.
func RecordFromContext(ctx context.Context) (*Record, bool) {
	rec, ok := ctx.Value(contextRecordKey).(*Record)
	return rec, ok && rec != nil
}
