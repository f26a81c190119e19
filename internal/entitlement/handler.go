package entitlement

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	"github.com/visayasmed/access-management/internal"
	"github.com/visayasmed/access-management/internal/transport"
	"github.com/visayasmed/access-management/pkg/logger"
)

type Handler struct {
	*transport.BaseHandler
	Service StoreAPI
}

func NewHandler(svc StoreAPI) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler: transport.NewBaseHandler(lg),
		Service:     svc,
	}
}

// GetMyEntitlements handles GET /me/entitlements using the record the auth
// middleware already resolved.
func (h *Handler) GetMyEntitlements(w http.ResponseWriter, r *http.Request) {
	principalID := internal.PrincipalIDFromContext(r.Context())
	record, ok := RecordFromContext(r.Context())
	if principalID == "" || !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewRecordResponse(principalID, record))
}

// GetEntitlements handles GET /entitlements/{principalID}. Resolving is
// creation-on-miss, so viewing a never-provisioned principal provisions the
// default record.
func (h *Handler) GetEntitlements(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	if principalID == "" {
		h.WriteError(w, http.StatusBadRequest, "principal id is required")
		return
	}

	record, err := h.Service.Resolve(r.Context(), principalID)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewRecordResponse(principalID, record))
}

// SetModules handles PUT /entitlements/{principalID}/modules, replacing the
// module set wholesale.
func (h *Handler) SetModules(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	if principalID == "" {
		h.WriteError(w, http.StatusBadRequest, "principal id is required")
		return
	}

	var dto SetModulesDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	modules, err := dto.Validate()
	if err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.Service.SetModules(r.Context(), principalID, modules)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewRecordResponse(principalID, record))
}

// SetAdmin handles PUT /entitlements/{principalID}/admin.
func (h *Handler) SetAdmin(w http.ResponseWriter, r *http.Request) {
	principalID := chi.URLParam(r, "principalID")
	if principalID == "" {
		h.WriteError(w, http.StatusBadRequest, "principal id is required")
		return
	}

	var dto SetAdminDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	record, err := h.Service.SetAdmin(r.Context(), principalID, *dto.IsAdmin)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, NewRecordResponse(principalID, record))
}

// GetCatalog handles GET /modules, listing the fixed module catalog for the
// admin portal grid.
func (h *Handler) GetCatalog(w http.ResponseWriter, r *http.Request) {
	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"modules": CatalogResponse()})
}

func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		h.WriteAppError(w, internal.ErrEntitlementsNotFound)
	case IsStorageError(err):
		h.Logger.Error("entitlement storage failure", "error", err)
		h.WriteAppError(w, internal.NewStorageError("Entitlement storage is unavailable, please retry", err))
	default:
		h.Logger.Error("entitlement operation failed", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
