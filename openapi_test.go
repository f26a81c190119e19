package main_test

import (
	"context"

	"github.com/getkin/kin-openapi/openapi3"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OpenAPI contract", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		loader := openapi3.NewLoader()
		var err error
		doc, err = loader.LoadFromFile("api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("should be a valid OpenAPI 3 document", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("should enumerate the full module catalog", func() {
		schema := doc.Components.Schemas["ModuleID"]
		Expect(schema).NotTo(BeNil())
		Expect(schema.Value.Enum).To(HaveLen(9))
		Expect(schema.Value.Enum).To(ContainElements(
			"admin", "user-management", "system-settings",
			"reports", "basic", "support",
			"billing", "inventory", "analytics",
		))
	})

	It("should document the auth and entitlement operations", func() {
		for _, path := range []string{
			"/auth/signup",
			"/auth/login",
			"/auth/refresh",
			"/auth/logout",
			"/me",
			"/me/entitlements",
			"/modules",
			"/users",
			"/entitlements/{principalID}",
			"/entitlements/{principalID}/modules",
			"/entitlements/{principalID}/admin",
			"/portal/{module}",
		} {
			Expect(doc.Paths.Find(path)).NotTo(BeNil(), "missing path %s", path)
		}
	})
})
