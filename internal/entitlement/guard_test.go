package entitlement

import (
	"net/http"
	"net/http/httptest"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"
)

var _ = ginkgo.Describe("Guard", func() {
	var (
		guard *Guard
		next  http.Handler
	)

	ginkgo.BeforeEach(func() {
		guard = NewGuard(testLogger())
		next = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		})
	})

	serve := func(mw func(http.Handler) http.Handler, record *Record) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/portal/reports", nil)
		if record != nil {
			req = req.WithContext(ContextWithRecord(req.Context(), record))
		}
		rec := httptest.NewRecorder()
		mw(next).ServeHTTP(rec, req)
		return rec
	}

	ginkgo.Context("without a record in context", func() {
		ginkgo.It("should respond unauthorized", func() {
			rec := serve(guard.RequireAuthenticated(), nil)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusUnauthorized))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("UNAUTHENTICATED"))
		})
	})

	ginkgo.Context("with a non-admin record", func() {
		var record *Record

		ginkgo.BeforeEach(func() {
			record = &Record{IsAdmin: false, Modules: DefaultModules()}
		})

		ginkgo.It("should pass authenticated-only routes through", func() {
			rec := serve(guard.RequireAuthenticated(), record)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should forbid admin-only routes", func() {
			rec := serve(guard.RequireAdmin(), record)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("NOT_ADMIN"))
		})

		ginkgo.It("should pass granted module routes through", func() {
			rec := serve(guard.RequireModule(ModuleSupport), record)
			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})

		ginkgo.It("should forbid ungranted module routes", func() {
			rec := serve(guard.RequireModule(ModuleReports), record)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusForbidden))
			gomega.Expect(rec.Body.String()).To(gomega.ContainSubstring("MODULE_NOT_GRANTED"))
		})
	})

	ginkgo.Context("with an admin record", func() {
		ginkgo.It("should pass admin-only routes through", func() {
			record := &Record{IsAdmin: true, Modules: AdminModules()}

			rec := serve(guard.RequireAdmin(), record)

			gomega.Expect(rec.Code).To(gomega.Equal(http.StatusOK))
		})
	})
})
