package identity

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

type stubRepo struct {
	byID    map[string]*User
	byEmail map[string]*User
	created []*User
}

func newStubRepo(users ...*User) *stubRepo {
	r := &stubRepo{byID: map[string]*User{}, byEmail: map[string]*User{}}
	for _, u := range users {
		r.byID[u.ID] = u
		r.byEmail[u.Email] = u
	}
	return r
}

func (r *stubRepo) FindByEmail(_ context.Context, email string) (*User, error) {
	if u, ok := r.byEmail[email]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("identity: user: %w", httpx.ErrNotFound)
}

func (r *stubRepo) FindByID(_ context.Context, id string) (*User, error) {
	if u, ok := r.byID[id]; ok {
		return u, nil
	}
	return nil, fmt.Errorf("identity: user: %w", httpx.ErrNotFound)
}

func (r *stubRepo) Create(_ context.Context, u *User) error {
	if _, ok := r.byEmail[u.Email]; ok {
		return fmt.Errorf("identity: email already registered: %w", httpx.ErrConflict)
	}
	r.byID[u.ID] = u
	r.byEmail[u.Email] = u
	r.created = append(r.created, u)
	return nil
}

func testUser(t *testing.T, id, email, role, password string) *User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	return &User{
		ID:           id,
		Name:         "Test User",
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
		TeamID:       "T1",
		IsActive:     true,
	}
}

func TestLoginIssuesToken(t *testing.T) {
	user := testUser(t, "U1", "u1@example.com", "employee", "s3cretpass")
	svc := NewService(newStubRepo(user), NewTokenManager("test-secret", time.Hour))

	got, token, err := svc.Login(context.Background(), "U1@Example.com ", "s3cretpass")
	require.NoError(t, err)
	assert.Equal(t, "U1", got.ID)
	assert.NotEmpty(t, token)

	principal, err := svc.Authenticate(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, authz.Principal{ID: "U1", Role: authz.RoleEmployee, TeamID: "T1"}, principal)
}

func TestLoginFailsUniformly(t *testing.T) {
	active := testUser(t, "U1", "u1@example.com", "employee", "s3cretpass")
	inactive := testUser(t, "U2", "u2@example.com", "employee", "s3cretpass")
	inactive.IsActive = false
	svc := NewService(newStubRepo(active, inactive), NewTokenManager("test-secret", time.Hour))

	cases := []struct {
		name     string
		email    string
		password string
	}{
		{"unknown user", "nobody@example.com", "s3cretpass"},
		{"wrong password", "u1@example.com", "wrong"},
		{"inactive account", "u2@example.com", "s3cretpass"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := svc.Login(context.Background(), tc.email, tc.password)
			assert.ErrorIs(t, err, httpx.ErrUnauthorized)
		})
	}
}

func TestAuthenticateRejectsBadTokens(t *testing.T) {
	user := testUser(t, "U1", "u1@example.com", "manager", "s3cretpass")
	tokens := NewTokenManager("test-secret", time.Hour)
	svc := NewService(newStubRepo(user), tokens)

	otherSecret := NewTokenManager("other-secret", time.Hour)
	forged, err := otherSecret.Issue("U1")
	require.NoError(t, err)

	expiredManager := NewTokenManager("test-secret", -time.Minute)
	expired, err := expiredManager.Issue("U1")
	require.NoError(t, err)

	unknownSubject, err := tokens.Issue("U404")
	require.NoError(t, err)

	for name, raw := range map[string]string{
		"garbage":         "not.a.token",
		"empty":           "",
		"wrong signature": forged,
		"expired":         expired,
		"unknown subject": unknownSubject,
	} {
		t.Run(name, func(t *testing.T) {
			_, err := svc.Authenticate(context.Background(), raw)
			assert.ErrorIs(t, err, httpx.ErrUnauthorized)
		})
	}
}

func TestAuthenticateRejectsDeactivatedUser(t *testing.T) {
	user := testUser(t, "U1", "u1@example.com", "manager", "s3cretpass")
	tokens := NewTokenManager("test-secret", time.Hour)
	svc := NewService(newStubRepo(user), tokens)

	token, err := tokens.Issue("U1")
	require.NoError(t, err)

	user.IsActive = false
	_, err = svc.Authenticate(context.Background(), token)
	assert.ErrorIs(t, err, httpx.ErrUnauthorized)
}

func TestRegisterValidatesRole(t *testing.T) {
	svc := NewService(newStubRepo(), NewTokenManager("test-secret", time.Hour))

	_, err := svc.Register(context.Background(), "New User", "new@example.com", "password1", "superuser")
	assert.ErrorIs(t, err, httpx.ErrValidation)

	user, err := svc.Register(context.Background(), "New User", " New@Example.com ", "password1", "viewer")
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", user.Email)
	assert.NotEmpty(t, user.ID)
}

func TestRequireAuthMiddleware(t *testing.T) {
	user := testUser(t, "U1", "u1@example.com", "admin", "s3cretpass")
	tokens := NewTokenManager("test-secret", time.Hour)
	svc := NewService(newStubRepo(user), tokens)
	mw := Middleware{Service: svc}

	var seen authz.Principal
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p, ok := shared.PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = p
		w.WriteHeader(http.StatusNoContent)
	})

	t.Run("missing header", func(t *testing.T) {
		rr := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusUnauthorized, rr.Code)
	})

	t.Run("valid token", func(t *testing.T) {
		token, err := tokens.Issue("U1")
		require.NoError(t, err)
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rr := httptest.NewRecorder()
		mw.RequireAuth(next).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusNoContent, rr.Code)
		assert.Equal(t, "U1", seen.ID)
		assert.Equal(t, authz.RoleAdmin, seen.Role)
	})
}
