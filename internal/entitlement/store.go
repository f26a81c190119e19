package entitlement

import (
	"context"
	"log/slog"
	"sync"
)

// StoreAPI is what handlers and middleware consume.
type StoreAPI interface {
	Resolve(ctx context.Context, principalID string) (*Record, error)
	SetModules(ctx context.Context, principalID string, modules []ModuleID) (*Record, error)
	SetAdmin(ctx context.Context, principalID string, isAdmin bool) (*Record, error)
	ProvisionAccount(ctx context.Context, principalID, email string, adminHint bool) (*Record, error)
}

// Store is the single source of truth for authorization state. It owns the
// principal-to-record mapping; no other component reads or writes records
// directly.
type Store struct {
	kv                   KV
	designatedAdminEmail string
	logger               *slog.Logger

	// serializes read-modify-write cycles against the KV collaborator so a
	// future multi-admin scenario cannot lose updates
	mu sync.Mutex
}

func NewStore(kv KV, designatedAdminEmail string, logger *slog.Logger) *Store {
	return &Store{
		kv:                   kv,
		designatedAdminEmail: designatedAdminEmail,
		logger:               logger,
	}
}

// Resolve returns the principal's record, provisioning a default one on
// first contact. It never overwrites an existing record.
func (s *Store) Resolve(ctx context.Context, principalID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resolveLocked(ctx, principalID)
}

func (s *Store) resolveLocked(ctx context.Context, principalID string) (*Record, error) {
	existing, err := s.getRecord(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	designatedID, err := s.designatedAdminIDLocked(ctx)
	if err != nil {
		return nil, err
	}

	var rec *Record
	if designatedID != "" && principalID == designatedID {
		rec = &Record{IsAdmin: true, Modules: Catalog()}
	} else {
		rec = &Record{IsAdmin: false, Modules: DefaultModules()}
	}

	if err := s.putRecord(ctx, principalID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("provisioned default entitlements",
		"principal_id", principalID,
		"is_admin", rec.IsAdmin,
		"module_count", len(rec.Modules))

	return rec, nil
}

// SetModules replaces the module set wholesale for an existing record.
func (s *Store) SetModules(ctx context.Context, principalID string, modules []ModuleID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getRecord(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	rec.Modules = make([]ModuleID, len(modules))
	copy(rec.Modules, modules)

	if err := s.putRecord(ctx, principalID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("replaced module grants", "principal_id", principalID, "module_count", len(rec.Modules))
	return rec, nil
}

// SetAdmin toggles the admin flag. Granting unions in the fixed admin
// modules; revoking strips exactly those three and nothing else. The write
// always goes through, even when the flag is unchanged.
func (s *Store) SetAdmin(ctx context.Context, principalID string, isAdmin bool) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.getRecord(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}

	wasAdmin := rec.IsAdmin
	rec.IsAdmin = isAdmin
	if isAdmin && !wasAdmin {
		rec.withModules(AdminModules()...)
	} else if !isAdmin && wasAdmin {
		rec.withoutModules(AdminModules()...)
	}

	if err := s.putRecord(ctx, principalID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("toggled admin flag", "principal_id", principalID, "is_admin", isAdmin, "was_admin", wasAdmin)
	return rec, nil
}

// ProvisionAccount applies the account-creation rules. The designated admin
// email claims the process-wide designated-admin identifier exactly once;
// every other account is provisioned from the caller-supplied admin hint.
// Re-provisioning an already provisioned principal is a no-op returning the
// existing record.
func (s *Store) ProvisionAccount(ctx context.Context, principalID, email string, adminHint bool) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getRecord(ctx, principalID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	if email == s.designatedAdminEmail {
		designatedID, err := s.designatedAdminIDLocked(ctx)
		if err != nil {
			return nil, err
		}
		if designatedID == "" {
			if err := s.kv.Put(ctx, designatedAdminID, []byte(principalID)); err != nil {
				return nil, &StorageError{Op: "put", Key: designatedAdminID, Err: err}
			}
			s.logger.Info("designated admin claimed", "principal_id", principalID)
		}
		// resolveLocked picks the full-catalog admin branch for the
		// designated identifier
		return s.resolveLocked(ctx, principalID)
	}

	var rec *Record
	if adminHint {
		rec = &Record{IsAdmin: true, Modules: StandardAdminModules()}
	} else {
		rec = &Record{IsAdmin: false, Modules: DefaultModules()}
	}

	if err := s.putRecord(ctx, principalID, rec); err != nil {
		return nil, err
	}

	s.logger.Info("provisioned account entitlements",
		"principal_id", principalID,
		"admin_hint", adminHint,
		"module_count", len(rec.Modules))

	return rec, nil
}

func (s *Store) designatedAdminIDLocked(ctx context.Context) (string, error) {
	value, ok, err := s.kv.Get(ctx, designatedAdminID)
	if err != nil {
		return "", &StorageError{Op: "get", Key: designatedAdminID, Err: err}
	}
	if !ok {
		return "", nil
	}
	return string(value), nil
}

func (s *Store) getRecord(ctx context.Context, principalID string) (*Record, error) {
	key := recordKey(principalID)
	value, ok, err := s.kv.Get(ctx, key)
	if err != nil {
		return nil, &StorageError{Op: "get", Key: key, Err: err}
	}
	if !ok {
		return nil, nil
	}
	rec, err := DecodeRecord(value)
	if err != nil {
		return nil, &StorageError{Op: "decode", Key: key, Err: err}
	}
	return rec, nil
}

func (s *Store) putRecord(ctx context.Context, principalID string, rec *Record) error {
	key := recordKey(principalID)
	value, err := EncodeRecord(rec)
	if err != nil {
		return &StorageError{Op: "encode", Key: key, Err: err}
	}
	if err := s.kv.Put(ctx, key, value); err != nil {
		return &StorageError{Op: "put", Key: key, Err: err}
	}
	return nil
}
