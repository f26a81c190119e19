package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/visayasmed/access-management/internal/entitlement"
)

// Principal is an authenticated identity: an opaque id plus an email,
// issued and owned by the session provider. The access core treats it as
// immutable.
type Principal struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// User is the account row behind a principal.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) Principal() *Principal {
	return &Principal{ID: u.ID, Email: u.Email}
}

// SessionProvider is the contract consumed by the rest of the service.
type SessionProvider interface {
	SignIn(ctx context.Context, dto LoginDTO) (*Principal, AuthTokens, error)
	SignUp(ctx context.Context, dto SignUpDTO) (*SignUpResult, error)
	SignOut(ctx context.Context, accessToken string) error
	OnSessionChange(listener SessionChangeListener) (unsubscribe func())
	ValidateAccessToken(tokenString string) (*Claims, error)
}

// SessionChangeListener receives the current principal, or nil on sign-out.
type SessionChangeListener func(p *Principal)

// Provisioner applies the account-creation entitlement rules. Satisfied by
// the entitlement store.
type Provisioner interface {
	ProvisionAccount(ctx context.Context, principalID, email string, adminHint bool) (*entitlement.Record, error)
}

// SignUpResult bundles everything the signup flow produces.
type SignUpResult struct {
	Principal    *Principal
	Entitlements *entitlement.Record
	Tokens       AuthTokens
}

type AuthTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Claims represents JWT token claims
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
	jwt.RegisteredClaims
}

// TokenGenerator creates and validates session tokens.
type TokenGenerator interface {
	GenerateAccessToken(userID string, email string) (token string, err error)
	GenerateRefreshToken(userID string, email string) (token string, err error)
	ValidateToken(tokenString string) (*Claims, error)
}

type JWTTokenGenerator struct {
	AccessTokenSecret  []byte
	RefreshTokenSecret []byte
	AccessTokenTTL     time.Duration
	RefreshTokenTTL    time.Duration
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenExpired       = errors.New("token expired")
	ErrUserInactive       = errors.New("user is inactive")
)

type contextKey string

const ContextPrincipalKey contextKey = "auth.principal"

func ContextWithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, ContextPrincipalKey, p)
}

func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(ContextPrincipalKey).(*Principal)
	return p, ok && p != nil
}

func VerifyPassword(hashedPassword, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hashedPassword), []byte(password))
}

func HashPassword(password string, cost int) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
