package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/c360studio/civicreport/storage"
)

func newTestService(t *testing.T) (*Service, *storage.Store) {
	t.Helper()
	store := storage.NewMemoryStore()
	svc, err := NewService(store, Config{
		Secret:     []byte("test-secret"),
		TTL:        time.Hour,
		BcryptCost: bcrypt.MinCost,
	}, nil)
	require.NoError(t, err)
	return svc, store
}

func TestNewService_RequiresSecret(t *testing.T) {
	_, err := NewService(storage.NewMemoryStore(), Config{}, nil)
	assert.Error(t, err)
}

func TestSignupLoginVerify(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	profile, err := svc.Signup(ctx, "  Asha@Example.com ", "secret1", " Asha ")
	require.NoError(t, err)
	assert.Equal(t, "asha@example.com", profile.Email)
	assert.Equal(t, "Asha", profile.Name)

	stored, err := store.GetProfile(ctx, profile.ID)
	require.NoError(t, err)
	assert.Equal(t, profile.Email, stored.Email)

	session, err := svc.Login(ctx, "ASHA@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, profile.ID, session.UserID)
	assert.NotEmpty(t, session.Token)

	claims, err := svc.Verify(session.Token)
	require.NoError(t, err)
	assert.Equal(t, profile.ID, claims.UserID)
	assert.Equal(t, "asha@example.com", claims.Email)
}

func TestSignup_Validation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	tests := []struct {
		name     string
		email    string
		password string
		wantErr  error
	}{
		{"missing at", "asha.example.com", "secret1", ErrInvalidEmail},
		{"empty", "", "secret1", ErrInvalidEmail},
		{"no domain dot", "asha@example", "secret1", ErrInvalidEmail},
		{"short password", "asha@example.com", "12345", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Signup(ctx, tt.email, tt.password, "")
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Signup(ctx, "asha@example.com", "secret1", "Asha")
	require.NoError(t, err)

	_, err = svc.Signup(ctx, "ASHA@example.com", "another", "Imposter")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Signup(ctx, "asha@example.com", "secret1", "Asha")
	require.NoError(t, err)

	_, err = svc.Login(ctx, "asha@example.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "secret1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestVerify_Rejects(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)

	_, err := svc.Signup(ctx, "asha@example.com", "secret1", "Asha")
	require.NoError(t, err)
	session, err := svc.Login(ctx, "asha@example.com", "secret1")
	require.NoError(t, err)

	t.Run("garbage", func(t *testing.T) {
		_, err := svc.Verify("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("other secret", func(t *testing.T) {
		other, err := NewService(storage.NewMemoryStore(), Config{Secret: []byte("other")}, nil)
		require.NoError(t, err)
		_, err = other.Verify(session.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		defer func() { svc.now = time.Now }()
		_, err := svc.Verify(session.Token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS512, jwt.RegisteredClaims{
			Subject:   "user-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("no subject", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		})
		signed, err := token.SignedString([]byte("test-secret"))
		require.NoError(t, err)
		_, err = svc.Verify(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
