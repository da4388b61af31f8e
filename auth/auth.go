// Package auth implements e-mail/password accounts over the record store.
// Passwords are hashed with bcrypt and sessions are HS256 JWTs.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/c360studio/civicreport/storage"
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// Sentinel errors.
var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidEmail       = errors.New("please enter a valid email")
	ErrWeakPassword       = fmt.Errorf("password must be at least %d characters", MinPasswordLength)
	ErrInvalidToken       = errors.New("invalid or expired token")
)

// Store is the persistence the service needs.
type Store interface {
	CreateCredential(ctx context.Context, c *storage.Credential) error
	GetCredential(ctx context.Context, email string) (*storage.Credential, error)
	PutProfile(ctx context.Context, p *storage.Profile) error
}

// Config configures the service.
type Config struct {
	// Secret signs session tokens. Required.
	Secret []byte

	// TTL is the session lifetime. Zero defaults to 24h.
	TTL time.Duration

	// BcryptCost overrides bcrypt.DefaultCost when non-zero.
	BcryptCost int
}

// Session is the result of a successful login.
type Session struct {
	Token     string    `json:"access_token"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Claims are the verified contents of a session token.
type Claims struct {
	UserID    string
	Email     string
	ExpiresAt time.Time
}

type sessionClaims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service handles signup, login and token verification.
type Service struct {
	store  Store
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	logger *slog.Logger
}

// NewService creates a Service. A nil logger uses slog.Default().
func NewService(store Store, cfg Config, logger *slog.Logger) (*Service, error) {
	if len(cfg.Secret) == 0 {
		return nil, errors.New("token secret is required")
	}
	if cfg.TTL == 0 {
		cfg.TTL = 24 * time.Hour
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Service{
		store:  store,
		secret: cfg.Secret,
		ttl:    cfg.TTL,
		cost:   cfg.BcryptCost,
		now:    time.Now,
		logger: logger,
	}, nil
}

// Signup registers a new account and creates its profile.
func (s *Service) Signup(ctx context.Context, email, password, name string) (*storage.Profile, error) {
	email = storage.NormalizeEmail(email)
	if !validEmail(email) {
		return nil, ErrInvalidEmail
	}
	if len(password) < MinPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	userID := uuid.New().String()
	cred := &storage.Credential{
		UserID:       userID,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.store.CreateCredential(ctx, cred); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create credential: %w", err)
	}

	profile := &storage.Profile{
		ID:    userID,
		Email: email,
		Name:  strings.TrimSpace(name),
	}
	if err := s.store.PutProfile(ctx, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	s.logger.Info("Account created", "user_id", userID)
	return profile, nil
}

// Login checks the password and issues a session token.
// Unknown e-mails and wrong passwords are indistinguishable.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	cred, err := s.store.GetCredential(ctx, email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load credential: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword(cred.PasswordHash, []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, sessionClaims{
		Email: cred.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   cred.UserID,
			ID:        uuid.New().String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return nil, fmt.Errorf("sign token: %w", err)
	}

	return &Session{
		Token:     signed,
		UserID:    cred.UserID,
		ExpiresAt: expiresAt.UTC(),
	}, nil
}

// Verify validates a session token and returns its claims.
func (s *Service) Verify(raw string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(raw, &sessionClaims{}, func(token *jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}

	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return nil, ErrInvalidToken
	}

	return &Claims{
		UserID:    claims.Subject,
		Email:     claims.Email,
		ExpiresAt: claims.ExpiresAt.Time.UTC(),
	}, nil
}

// validEmail is a shape check only; delivery is never attempted.
func validEmail(email string) bool {
	at := strings.LastIndexByte(email, '@')
	if at <= 0 || at == len(email)-1 {
		return false
	}
	return !strings.ContainsAny(email, " \t\r\n") && strings.Contains(email[at+1:], ".")
}
