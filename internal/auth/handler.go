package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/visayasmed/access-management/internal"
	"github.com/visayasmed/access-management/internal/entitlement"
	"github.com/visayasmed/access-management/internal/transport"
	"github.com/visayasmed/access-management/pkg/logger"
)

type ServiceAPI interface {
	SignIn(ctx context.Context, dto LoginDTO) (*Principal, AuthTokens, error)
	SignUp(ctx context.Context, dto SignUpDTO) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	GetUser(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

type Handler struct {
	*transport.BaseHandler
	Service      ServiceAPI
	Entitlements entitlement.Resolver
}

func NewHandler(svc ServiceAPI, resolver entitlement.Resolver) *Handler {
	lg := logger.LoggerWrapper()
	if lg == nil {
		lg = slog.Default()
	}
	return &Handler{
		BaseHandler:  transport.NewBaseHandler(lg),
		Service:      svc,
		Entitlements: resolver,
	}
}

type signUpResponse struct {
	Principal    *Principal                 `json:"principal"`
	Entitlements entitlement.RecordResponse `json:"entitlements"`
	Tokens       AuthTokens                 `json:"tokens"`
}

type signInResponse struct {
	Principal *Principal `json:"principal"`
	Tokens    AuthTokens `json:"tokens"`
}

func (h *Handler) SignUp(w http.ResponseWriter, r *http.Request) {
	var dto SignUpDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := h.Service.SignUp(r.Context(), dto)
	if err != nil {
		h.Logger.Error("signup failed", "error", err)
		h.writeAuthError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, signUpResponse{
		Principal:    result.Principal,
		Entitlements: entitlement.NewRecordResponse(result.Principal.ID, result.Entitlements),
		Tokens:       result.Tokens,
	})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var dto LoginDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	principal, tokens, err := h.Service.SignIn(r.Context(), dto)
	if err != nil {
		h.Logger.Error("authentication failed", "error", err)
		h.writeAuthError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, signInResponse{Principal: principal, Tokens: tokens})
}

func (h *Handler) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var dto RefreshTokenDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		h.WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := dto.Validate(); err != nil {
		h.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	tokens, err := h.Service.RefreshTokens(r.Context(), dto.RefreshToken)
	if err != nil {
		h.Logger.Error("token refresh failed", "error", err)
		h.writeAuthError(w, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, tokens)
}

func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	token := h.ExtractTokenFromHeader(r)
	if token == "" {
		h.WriteError(w, http.StatusUnauthorized, "missing authorization token")
		return
	}

	if err := h.Service.SignOut(r.Context(), token); err != nil {
		h.WriteError(w, http.StatusUnauthorized, "invalid token")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// GetCurrentUser handles GET /me, returning the principal together with the
// record the middleware resolved.
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	principal, ok := PrincipalFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, internal.ErrUnauthenticated)
		return
	}

	record, _ := entitlement.RecordFromContext(r.Context())
	resp := map[string]interface{}{"principal": principal}
	if record != nil {
		resp["entitlements"] = entitlement.NewRecordResponse(principal.ID, record)
	}

	h.WriteJSON(w, http.StatusOK, resp)
}

// ListUsers handles GET /users for the admin portal user list.
func (h *Handler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.Service.ListUsers(r.Context())
	if err != nil {
		h.Logger.Error("failed to list users", "error", err)
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.WriteJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// AuthMiddleware validates the bearer token, loads the principal and
// resolves its entitlement record into the request context. Every gated
// route sits behind this.
func (h *Handler) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := h.ExtractTokenFromHeader(r)
		if token == "" {
			h.WriteAppError(w, internal.ErrUnauthenticated)
			return
		}

		claims, err := h.Service.ValidateAccessToken(token)
		if err != nil {
			h.Logger.Warn("token validation failed", "error", err)
			h.WriteAppError(w, internal.ErrInvalidToken)
			return
		}

		principal := &Principal{ID: claims.UserID, Email: claims.Email}

		record, err := h.Entitlements.Resolve(r.Context(), principal.ID)
		if err != nil {
			h.Logger.Error("failed to resolve entitlements", "principal_id", principal.ID, "error", err)
			if entitlement.IsStorageError(err) {
				h.WriteAppError(w, internal.NewStorageError("Entitlement storage is unavailable, please retry", err))
				return
			}
			h.WriteError(w, http.StatusInternalServerError, "internal server error")
			return
		}

		ctx := internal.ContextWithPrincipalID(r.Context(), principal.ID)
		ctx = ContextWithPrincipal(ctx, principal)
		ctx = entitlement.ContextWithRecord(ctx, record)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		h.WriteAppError(w, internal.ErrInvalidCredentials)
	case errors.Is(err, ErrEmailTaken):
		h.WriteAppError(w, internal.ErrEmailTaken)
	case errors.Is(err, ErrUserInactive):
		h.WriteAppError(w, internal.ErrUserInactive)
	case errors.Is(err, ErrTokenExpired):
		h.WriteAppError(w, internal.ErrTokenExpired)
	case errors.Is(err, ErrInvalidToken):
		h.WriteAppError(w, internal.ErrInvalidToken)
	case entitlement.IsStorageError(err):
		h.WriteAppError(w, internal.NewStorageError("Entitlement storage is unavailable, please retry", err))
	default:
		var validationErr ValidationError
		if errors.As(err, &validationErr) {
			h.WriteError(w, http.StatusBadRequest, validationErr.Error())
			return
		}
		h.WriteError(w, http.StatusInternalServerError, "internal server error")
	}
}
