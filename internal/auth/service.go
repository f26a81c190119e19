package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/visayasmed/access-management/internal/core/events"
)

type UserRepository interface {
	CreateUser(ctx context.Context, u *User) error
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	ListUsers(ctx context.Context) ([]*User, error)
}

// Service is the local session provider: it authenticates principals and
// emits the current principal whenever it changes.
type Service struct {
	userRepo       UserRepository
	tokenGenerator TokenGenerator
	provisioner    Provisioner
	bus            *events.EventBus
	bcryptCost     int
	logger         *slog.Logger

	listenerMu     sync.Mutex
	listeners      map[int]SessionChangeListener
	nextListenerID int
}

// NewService creates a new auth service
func NewService(userRepo UserRepository, tokenGen TokenGenerator, provisioner Provisioner, bus *events.EventBus, bcryptCost int, logger *slog.Logger) *Service {
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		userRepo:       userRepo,
		tokenGenerator: tokenGen,
		provisioner:    provisioner,
		bus:            bus,
		bcryptCost:     bcryptCost,
		logger:         logger,
		listeners:      make(map[int]SessionChangeListener),
	}
}

// NewJWTTokenGenerator creates a new JWT token generator
func NewJWTTokenGenerator(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *JWTTokenGenerator {
	return &JWTTokenGenerator{
		AccessTokenSecret:  []byte(accessSecret),
		RefreshTokenSecret: []byte(refreshSecret),
		AccessTokenTTL:     accessTTL,
		RefreshTokenTTL:    refreshTTL,
	}
}

// SignIn validates credentials, emits a session change and returns tokens.
func (s *Service) SignIn(ctx context.Context, dto LoginDTO) (*Principal, AuthTokens, error) {
	if err := dto.Validate(); err != nil {
		return nil, AuthTokens{}, err
	}

	user, err := s.userRepo.GetByEmail(ctx, dto.Email)
	if err != nil {
		return nil, AuthTokens{}, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(dto.Password)); err != nil {
		return nil, AuthTokens{}, ErrInvalidCredentials
	}

	if !user.IsActive {
		return nil, AuthTokens{}, ErrUserInactive
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, AuthTokens{}, err
	}

	principal := user.Principal()
	s.notifySessionChange(ctx, principal)

	return principal, tokens, nil
}

// SignUp creates the account, runs entitlement provisioning and signs the
// new principal in. A provisioning failure propagates to the caller; the
// service never retries on its own.
func (s *Service) SignUp(ctx context.Context, dto SignUpDTO) (*SignUpResult, error) {
	if err := dto.Validate(); err != nil {
		return nil, err
	}

	if existing, err := s.userRepo.GetByEmail(ctx, dto.Email); err == nil && existing != nil {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(dto.Password), s.bcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Email:        dto.Email,
		PasswordHash: string(hash),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.userRepo.CreateUser(ctx, user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	record, err := s.provisioner.ProvisionAccount(ctx, user.ID, user.Email, dto.IsAdmin)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(user)
	if err != nil {
		return nil, err
	}

	principal := user.Principal()

	if s.bus != nil {
		if err := s.bus.Publish(ctx, events.NewAccountCreatedEvent(principal.ID, principal.Email)); err != nil {
			s.logger.Warn("failed to publish account created event", "error", err)
		}
	}

	// account creation also starts a session, mirroring the sign-up flow of
	// the hosted identity provider
	s.notifySessionChange(ctx, principal)

	return &SignUpResult{Principal: principal, Entitlements: record, Tokens: tokens}, nil
}

// SignOut invalidates the caller's session client-side and emits an empty
// session change.
func (s *Service) SignOut(ctx context.Context, accessToken string) error {
	if _, err := s.tokenGenerator.ValidateToken(accessToken); err != nil {
		return err
	}
	s.notifySessionChange(ctx, nil)
	return nil
}

// RefreshTokens validates refresh token and returns new tokens
func (s *Service) RefreshTokens(ctx context.Context, refreshToken string) (AuthTokens, error) {
	claims, err := s.tokenGenerator.ValidateToken(refreshToken)
	if err != nil {
		return AuthTokens{}, err
	}

	user, err := s.userRepo.GetByID(ctx, claims.UserID)
	if err != nil {
		return AuthTokens{}, ErrInvalidToken
	}
	if !user.IsActive {
		return AuthTokens{}, ErrUserInactive
	}

	return s.issueTokens(user)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokenGenerator.ValidateToken(tokenString)
}

// GetUser loads the account behind a principal id.
func (s *Service) GetUser(ctx context.Context, id string) (*User, error) {
	return s.userRepo.GetByID(ctx, id)
}

// ListUsers returns every account, for the admin portal user list.
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.userRepo.ListUsers(ctx)
}

// OnSessionChange registers a listener for current-principal changes and
// returns an unsubscribe handle.
func (s *Service) OnSessionChange(listener SessionChangeListener) func() {
	s.listenerMu.Lock()
	defer s.listenerMu.Unlock()

	id := s.nextListenerID
	s.nextListenerID++
	s.listeners[id] = listener

	return func() {
		s.listenerMu.Lock()
		defer s.listenerMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Service) notifySessionChange(ctx context.Context, p *Principal) {
	s.listenerMu.Lock()
	listeners := make([]SessionChangeListener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.listenerMu.Unlock()

	for _, listener := range listeners {
		listener(p)
	}

	if s.bus != nil {
		principalID := ""
		if p != nil {
			principalID = p.ID
		}
		if err := s.bus.Publish(ctx, events.NewSessionChangedEvent(principalID)); err != nil {
			s.logger.Warn("failed to publish session changed event", "error", err)
		}
	}
}

func (s *Service) issueTokens(user *User) (AuthTokens, error) {
	accessToken, err := s.tokenGenerator.GenerateAccessToken(user.ID, user.Email)
	if err != nil {
		return AuthTokens{}, err
	}

	refreshToken, err := s.tokenGenerator.GenerateRefreshToken(user.ID, user.Email)
	if err != nil {
		return AuthTokens{}, err
	}

	return AuthTokens{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}

// GenerateAccessToken creates a new access token
func (j *JWTTokenGenerator) GenerateAccessToken(userID string, email string) (string, error) {
	return j.signedToken(userID, email, j.AccessTokenTTL, j.AccessTokenSecret)
}

// GenerateRefreshToken creates a new refresh token
func (j *JWTTokenGenerator) GenerateRefreshToken(userID string, email string) (string, error) {
	return j.signedToken(userID, email, j.RefreshTokenTTL, j.RefreshTokenSecret)
}

func (j *JWTTokenGenerator) signedToken(userID, email string, ttl time.Duration, secret []byte) (string, error) {
	expiresAt := time.Now().Add(ttl)

	claims := &Claims{
		UserID: userID,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Subject:   userID,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(secret)
	if err != nil {
		return "", err
	}

	return tokenString, nil
}

// ValidateToken validates a JWT token and returns claims
func (j *JWTTokenGenerator) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		// Check signing method
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}

		// Long-lived tokens were signed with the refresh secret
		if claims, ok := token.Claims.(*Claims); ok {
			if time.Until(claims.ExpiresAt.Time) > j.AccessTokenTTL {
				return j.RefreshTokenSecret, nil
			}
		}
		return j.AccessTokenSecret, nil
	})

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, ErrInvalidToken
}
