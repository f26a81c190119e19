package entitlement

import (
	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Evaluate", func() {
	ginkgo.Context("without a session", func() {
		ginkgo.It("should deny every requirement as unauthenticated", func() {
			for _, req := range []Requirement{
				AnyAuthenticated(),
				AdminOnly(),
				HasModule(ModuleBasic),
			} {
				decision := Evaluate(nil, req)

				gomega.Expect(decision.Allowed).To(gomega.BeFalse())
				gomega.Expect(decision.Reason).To(gomega.Equal(DenyUnauthenticated))
			}
		})
	})

	ginkgo.Context("with an authenticated non-admin", func() {
		var record *Record

		ginkgo.BeforeEach(func() {
			record = &Record{IsAdmin: false, Modules: DefaultModules()}
		})

		ginkgo.It("should allow any-authenticated requirements", func() {
			decision := Evaluate(record, AnyAuthenticated())

			gomega.Expect(decision.Allowed).To(gomega.BeTrue())
			gomega.Expect(decision.Reason).To(gomega.BeEmpty())
		})

		ginkgo.It("should deny admin-only requirements", func() {
			decision := Evaluate(record, AdminOnly())

			gomega.Expect(decision.Allowed).To(gomega.BeFalse())
			gomega.Expect(decision.Reason).To(gomega.Equal(DenyNotAdmin))
		})

		ginkgo.It("should allow granted modules", func() {
			decision := Evaluate(record, HasModule(ModuleSupport))

			gomega.Expect(decision.Allowed).To(gomega.BeTrue())
		})

		ginkgo.It("should deny ungranted modules and name the module", func() {
			decision := Evaluate(record, HasModule(ModuleReports))

			gomega.Expect(decision.Allowed).To(gomega.BeFalse())
			gomega.Expect(decision.Reason).To(gomega.Equal(DenyModuleNotGranted))
			gomega.Expect(decision.Module).To(gomega.Equal(ModuleReports))
		})
	})

	ginkgo.Context("with an admin", func() {
		ginkgo.It("should allow admin-only requirements", func() {
			record := &Record{IsAdmin: true, Modules: AdminModules()}

			decision := Evaluate(record, AdminOnly())

			gomega.Expect(decision.Allowed).To(gomega.BeTrue())
		})

		ginkgo.It("should still deny modules the admin was not granted", func() {
			record := &Record{IsAdmin: true, Modules: AdminModules()}

			decision := Evaluate(record, HasModule(ModuleBilling))

			gomega.Expect(decision.Allowed).To(gomega.BeFalse())
			gomega.Expect(decision.Reason).To(gomega.Equal(DenyModuleNotGranted))
		})
	})
})

var _ = ginkgo.Describe("Record", func() {
	ginkgo.Describe("Clone", func() {
		ginkgo.It("should not share the backing module slice", func() {
			original := &Record{IsAdmin: false, Modules: []ModuleID{ModuleBasic}}

			clone := original.Clone()
			clone.Modules[0] = ModuleAdmin

			gomega.Expect(original.Modules[0]).To(gomega.Equal(ModuleBasic))
		})

		ginkgo.It("should pass a nil record through", func() {
			var record *Record
			gomega.Expect(record.Clone()).To(gomega.BeNil())
		})
	})
})

var _ = ginkgo.Describe("DecodeRecord", func() {
	ginkgo.It("should preserve module order", func() {
		rec, err := DecodeRecord([]byte(`{"isAdmin":true,"modules":["support","basic"]}`))

		gomega.Expect(err).ToNot(gomega.HaveOccurred())
		gomega.Expect(rec.IsAdmin).To(gomega.BeTrue())
		gomega.Expect(rec.Modules).To(gomega.Equal([]ModuleID{ModuleSupport, ModuleBasic}))
	})

	ginkgo.It("should reject module identifiers outside the catalog", func() {
		rec, err := DecodeRecord([]byte(`{"isAdmin":false,"modules":["warp-drive"]}`))

		gomega.Expect(err).To(gomega.MatchError(ErrUnknownModule))
		gomega.Expect(rec).To(gomega.BeNil())
	})

	ginkgo.It("should reject malformed JSON", func() {
		_, err := DecodeRecord([]byte(`{`))
		gomega.Expect(err).To(gomega.HaveOccurred())
	})
})

var _ = ginkgo.Describe("SetModulesDTO", func() {
	ginkgo.Describe("Validate", func() {
		ginkgo.It("should parse valid module identifiers", func() {
			dto := SetModulesDTO{Modules: []string{"basic", "reports"}}

			modules, err := dto.Validate()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(modules).To(gomega.Equal([]ModuleID{ModuleBasic, ModuleReports}))
		})

		ginkgo.It("should drop duplicate identifiers", func() {
			dto := SetModulesDTO{Modules: []string{"basic", "basic"}}

			modules, err := dto.Validate()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(modules).To(gomega.Equal([]ModuleID{ModuleBasic}))
		})

		ginkgo.It("should accept an explicit empty list", func() {
			dto := SetModulesDTO{Modules: []string{}}

			modules, err := dto.Validate()

			gomega.Expect(err).ToNot(gomega.HaveOccurred())
			gomega.Expect(modules).To(gomega.BeEmpty())
		})

		ginkgo.It("should reject a missing modules field", func() {
			dto := SetModulesDTO{}

			_, err := dto.Validate()

			gomega.Expect(err).To(gomega.HaveOccurred())
		})

		ginkgo.It("should reject unknown identifiers", func() {
			dto := SetModulesDTO{Modules: []string{"warp-drive"}}

			_, err := dto.Validate()

			gomega.Expect(err).To(gomega.HaveOccurred())
			gomega.Expect(err.Error()).To(gomega.ContainSubstring("warp-drive"))
		})
	})
})

var _ = ginkgo.Describe("SetAdminDTO", func() {
	ginkgo.Describe("Validate", func() {
		ginkgo.It("should accept an explicit false", func() {
			isAdmin := false
			dto := SetAdminDTO{IsAdmin: &isAdmin}

			gomega.Expect(dto.Validate()).To(gomega.Succeed())
		})

		ginkgo.It("should reject an omitted flag", func() {
			dto := SetAdminDTO{}

			gomega.Expect(dto.Validate()).To(gomega.HaveOccurred())
		})
	})
})
