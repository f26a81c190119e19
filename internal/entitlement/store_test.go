package entitlement

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

func TestEntitlement(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Entitlement Module Suite")
}

// Mock KV for testing
type mockKV struct {
	data          map[string][]byte
	putCount      map[string]int
	returnError   bool
	errorToReturn error
}

func newMockKV() *mockKV {
	return &mockKV{
		data:     make(map[string][]byte),
		putCount: make(map[string]int),
	}
}

func (m *mockKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if m.returnError {
		return nil, false, m.errorToReturn
	}
	value, ok := m.data[key]
	return value, ok, nil
}

func (m *mockKV) Put(ctx context.Context, key string, value []byte) error {
	if m.returnError {
		return m.errorToReturn
	}
	m.data[key] = value
	m.putCount[key]++
	return nil
}

func (m *mockKV) setError(err error) {
	m.returnError = true
	m.errorToReturn = err
}

func (m *mockKV) clearError() {
	m.returnError = false
	m.errorToReturn = nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var _ = ginkgo.Describe("Store", func() {
	var (
		store *Store
		kv    *mockKV
		ctx   context.Context

		adminEmail = "admin@visayasmed.com.ph"
	)

	ginkgo.BeforeEach(func() {
		kv = newMockKV()
		store = NewStore(kv, adminEmail, testLogger())
		ctx = context.Background()
	})

	ginkgo.Describe("Resolve", func() {
		ginkgo.Context("when the principal has no record", func() {
			ginkgo.It("should provision the default non-admin record", func() {
				rec, err := store.Resolve(ctx, "u1")

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeFalse())
				gomega.Expect(rec.Modules).To(gomega.Equal(DefaultModules()))
			})

			ginkgo.It("should persist the provisioned record", func() {
				_, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(kv.data).To(gomega.HaveKey("entitlements:u1"))
			})
		})

		ginkgo.Context("when the principal already has a record", func() {
			ginkgo.It("should return the stored record unchanged", func() {
				_, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = store.SetModules(ctx, "u1", []ModuleID{ModuleBilling, ModuleInventory})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{ModuleBilling, ModuleInventory}))
			})

			ginkgo.It("should not write on repeated resolves", func() {
				_, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				_, err = store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(kv.putCount["entitlements:u1"]).To(gomega.Equal(1))
			})
		})

		ginkgo.Context("when the principal is the designated admin", func() {
			ginkgo.It("should provision a full-catalog admin record", func() {
				_, err := store.ProvisionAccount(ctx, "admin-1", adminEmail, false)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.Resolve(ctx, "admin-1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
				gomega.Expect(rec.Modules).To(gomega.Equal(Catalog()))
			})
		})

		ginkgo.Context("when storage fails", func() {
			ginkgo.It("should propagate a storage error", func() {
				kv.setError(errors.New("connection refused"))

				rec, err := store.Resolve(ctx, "u1")

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(IsStorageError(err)).To(gomega.BeTrue())
				gomega.Expect(rec).To(gomega.BeNil())
			})
		})

		ginkgo.Context("when a stored record carries an unknown module", func() {
			ginkgo.It("should surface a storage error instead of passing it through", func() {
				kv.data["entitlements:u1"] = []byte(`{"isAdmin":false,"modules":["basic","warp-drive"]}`)

				rec, err := store.Resolve(ctx, "u1")

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(IsStorageError(err)).To(gomega.BeTrue())
				gomega.Expect(errors.Is(err, ErrUnknownModule)).To(gomega.BeTrue())
				gomega.Expect(rec).To(gomega.BeNil())
			})
		})
	})

	ginkgo.Describe("SetModules", func() {
		ginkgo.Context("when the principal has a record", func() {
			ginkgo.BeforeEach(func() {
				_, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
			})

			ginkgo.It("should replace the module set wholesale", func() {
				rec, err := store.SetModules(ctx, "u1", []ModuleID{ModuleReports})

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{ModuleReports}))
			})

			ginkgo.It("should allow clearing every grant", func() {
				rec, err := store.SetModules(ctx, "u1", nil)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.Modules).To(gomega.BeEmpty())
			})

			ginkgo.It("should leave the admin flag alone", func() {
				_, err := store.SetAdmin(ctx, "u1", true)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.SetModules(ctx, "u1", []ModuleID{ModuleBasic})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
			})
		})

		ginkgo.Context("when the principal has no record", func() {
			ginkgo.It("should return not found", func() {
				rec, err := store.SetModules(ctx, "ghost", []ModuleID{ModuleBasic})

				gomega.Expect(err).To(gomega.MatchError(ErrNotFound))
				gomega.Expect(rec).To(gomega.BeNil())
			})
		})

		ginkgo.Context("when storage fails", func() {
			ginkgo.It("should propagate a storage error", func() {
				_, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				kv.setError(errors.New("connection refused"))

				_, err = store.SetModules(ctx, "u1", []ModuleID{ModuleBasic})

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(IsStorageError(err)).To(gomega.BeTrue())
			})
		})
	})

	ginkgo.Describe("SetAdmin", func() {
		ginkgo.BeforeEach(func() {
			_, err := store.Resolve(ctx, "u1")
			gomega.Expect(err).ToNot(gomega.HaveOccurred())
		})

		ginkgo.Context("when granting admin", func() {
			ginkgo.It("should union in the fixed admin modules", func() {
				rec, err := store.SetAdmin(ctx, "u1", true)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
				gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{
					ModuleBasic, ModuleSupport,
					ModuleAdmin, ModuleUserManagement, ModuleSystemSettings,
				}))
			})

			ginkgo.It("should not duplicate admin modules already granted", func() {
				_, err := store.SetModules(ctx, "u1", []ModuleID{ModuleAdmin, ModuleBasic})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.SetAdmin(ctx, "u1", true)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{
					ModuleAdmin, ModuleBasic,
					ModuleUserManagement, ModuleSystemSettings,
				}))
			})
		})

		ginkgo.Context("when revoking admin", func() {
			ginkgo.It("should strip exactly the admin modules and keep the rest", func() {
				_, err := store.SetModules(ctx, "u1", []ModuleID{ModuleReports, ModuleBilling})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				_, err = store.SetAdmin(ctx, "u1", true)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.SetAdmin(ctx, "u1", false)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeFalse())
				gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{ModuleReports, ModuleBilling}))
			})

			ginkgo.It("should round-trip back to the original set", func() {
				original, err := store.Resolve(ctx, "u1")
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				_, err = store.SetAdmin(ctx, "u1", true)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				rec, err := store.SetAdmin(ctx, "u1", false)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				gomega.Expect(rec.Modules).To(gomega.Equal(original.Modules))
			})
		})

		ginkgo.Context("when the flag does not change", func() {
			ginkgo.It("should still write the record through", func() {
				writesBefore := kv.putCount["entitlements:u1"]

				rec, err := store.SetAdmin(ctx, "u1", false)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeFalse())
				gomega.Expect(rec.Modules).To(gomega.Equal(DefaultModules()))
				gomega.Expect(kv.putCount["entitlements:u1"]).To(gomega.Equal(writesBefore + 1))
			})
		})

		ginkgo.Context("when the principal has no record", func() {
			ginkgo.It("should return not found", func() {
				rec, err := store.SetAdmin(ctx, "ghost", true)

				gomega.Expect(err).To(gomega.MatchError(ErrNotFound))
				gomega.Expect(rec).To(gomega.BeNil())
			})
		})
	})

	ginkgo.Describe("ProvisionAccount", func() {
		ginkgo.Context("with the designated admin email", func() {
			ginkgo.It("should provision a full-catalog admin record", func() {
				rec, err := store.ProvisionAccount(ctx, "admin-1", adminEmail, false)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
				gomega.Expect(rec.Modules).To(gomega.Equal(Catalog()))
			})

			ginkgo.It("should only honor the first registration", func() {
				_, err := store.ProvisionAccount(ctx, "admin-1", adminEmail, false)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				rec, err := store.ProvisionAccount(ctx, "impostor", adminEmail, false)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeFalse())
				gomega.Expect(rec.Modules).To(gomega.Equal(DefaultModules()))
			})

			ginkgo.It("should override the admin hint", func() {
				rec, err := store.ProvisionAccount(ctx, "admin-1", adminEmail, true)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.Modules).To(gomega.Equal(Catalog()))
			})
		})

		ginkgo.Context("with the admin hint set", func() {
			ginkgo.It("should provision the standard admin bundle", func() {
				rec, err := store.ProvisionAccount(ctx, "u1", "it.santos@visayasmed.com.ph", true)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
				gomega.Expect(rec.Modules).To(gomega.Equal(StandardAdminModules()))
			})
		})

		ginkgo.Context("with a plain signup", func() {
			ginkgo.It("should provision the default record", func() {
				rec, err := store.ProvisionAccount(ctx, "u1", "nurse.reyes@visayasmed.com.ph", false)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(rec.IsAdmin).To(gomega.BeFalse())
				gomega.Expect(rec.Modules).To(gomega.Equal(DefaultModules()))
			})
		})

		ginkgo.Context("when the principal is already provisioned", func() {
			ginkgo.It("should return the existing record unchanged", func() {
				_, err := store.SetModules(ctx, "u1", nil)
				gomega.Expect(err).To(gomega.MatchError(ErrNotFound))

				first, err := store.ProvisionAccount(ctx, "u1", "nurse.reyes@visayasmed.com.ph", false)
				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				_, err = store.SetModules(ctx, "u1", []ModuleID{ModuleAnalytics})
				gomega.Expect(err).ToNot(gomega.HaveOccurred())

				again, err := store.ProvisionAccount(ctx, "u1", "nurse.reyes@visayasmed.com.ph", true)

				gomega.Expect(err).ToNot(gomega.HaveOccurred())
				gomega.Expect(again.IsAdmin).To(gomega.Equal(first.IsAdmin))
				gomega.Expect(again.Modules).To(gomega.Equal([]ModuleID{ModuleAnalytics}))
			})
		})

		ginkgo.Context("when storage fails", func() {
			ginkgo.It("should propagate a storage error without retrying", func() {
				kv.setError(errors.New("connection refused"))

				rec, err := store.ProvisionAccount(ctx, "u1", "nurse.reyes@visayasmed.com.ph", false)

				gomega.Expect(err).To(gomega.HaveOccurred())
				gomega.Expect(IsStorageError(err)).To(gomega.BeTrue())
				gomega.Expect(rec).To(gomega.BeNil())

				kv.clearError()
				gomega.Expect(kv.data).ToNot(gomega.HaveKey("entitlements:u1"))
			})
		})
	})
})

var _ = ginkgo.Describe("SessionListener", func() {
	var (
		listener *SessionListener
		kv       *mockKV
		store    *Store
	)

	ginkgo.BeforeEach(func() {
		kv = newMockKV()
		store = NewStore(kv, "admin@visayasmed.com.ph", testLogger())
		listener = NewSessionListener(store, testLogger())
	})

	ginkgo.Context("when a session starts", func() {
		ginkgo.It("should eventually expose the resolved record", func() {
			listener.OnSessionChange("u1")

			gomega.Eventually(func() *Record {
				_, rec := listener.Current()
				return rec
			}).ShouldNot(gomega.BeNil())

			id, rec := listener.Current()
			gomega.Expect(id).To(gomega.Equal("u1"))
			gomega.Expect(rec.Modules).To(gomega.Equal(DefaultModules()))
		})
	})

	ginkgo.Context("when the session ends", func() {
		ginkgo.It("should clear the current record immediately", func() {
			listener.OnSessionChange("u1")
			gomega.Eventually(func() *Record {
				_, rec := listener.Current()
				return rec
			}).ShouldNot(gomega.BeNil())

			listener.OnSessionChange("")

			id, rec := listener.Current()
			gomega.Expect(id).To(gomega.BeEmpty())
			gomega.Expect(rec).To(gomega.BeNil())
		})
	})

	ginkgo.Context("when sessions change in quick succession", func() {
		ginkgo.It("should discard the stale resolution", func() {
			release := make(chan struct{})
			slow := &blockingResolver{inner: store, release: release, blockFor: "u1"}
			listener = NewSessionListener(slow, testLogger())

			listener.OnSessionChange("u1")
			listener.OnSessionChange("u2")

			gomega.Eventually(func() string {
				id, _ := listener.Current()
				return id
			}).Should(gomega.Equal("u2"))

			close(release)

			gomega.Consistently(func() string {
				id, _ := listener.Current()
				return id
			}).Should(gomega.Equal("u2"))
		})
	})
})

// blockingResolver delays resolution for one principal until released.
type blockingResolver struct {
	inner    Resolver
	release  chan struct{}
	blockFor string
}

func (b *blockingResolver) Resolve(ctx context.Context, principalID string) (*Record, error) {
	if principalID == b.blockFor {
		select {
		case <-b.release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.inner.Resolve(ctx, principalID)
}
