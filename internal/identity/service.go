package identity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// RepositoryPort defines data access methods for user accounts.
type RepositoryPort interface {
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	Create(ctx context.Context, user *User) error
}

// Service wraps authentication business rules.
type Service struct {
	repo   RepositoryPort
	tokens *TokenManager
}

// NewService constructs a Service.
func NewService(repo RepositoryPort, tokens *TokenManager) *Service {
	return &Service{repo: repo, tokens: tokens}
}

// Login validates email/password credentials and issues an access token.
// Every failure path returns Unauthorized.
func (s *Service) Login(ctx context.Context, email, password string) (*User, string, error) {
	user, err := s.repo.FindByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, "", fmt.Errorf("identity: login: %w", httpx.ErrUnauthorized)
	}
	if !user.IsActive {
		return nil, "", fmt.Errorf("identity: login: %w", httpx.ErrUnauthorized)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, "", fmt.Errorf("identity: login: %w", httpx.ErrUnauthorized)
	}
	token, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// Register creates a new user account.
func (s *Service) Register(ctx context.Context, name, email, password, role string) (*User, error) {
	if _, err := authz.ParseRole(role); err != nil {
		return nil, fmt.Errorf("identity: %s: %w", err, httpx.ErrValidation)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("identity: hash password: %w", err)
	}
	now := time.Now()
	user := &User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(name),
		Email:        strings.ToLower(strings.TrimSpace(email)),
		PasswordHash: string(hash),
		Role:         strings.ToLower(role),
		IsActive:     true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

// Authenticate resolves a bearer token to a Principal. Malformed tokens,
// expired tokens, unknown subjects and deactivated accounts all fail
// uniformly with Unauthorized.
func (s *Service) Authenticate(ctx context.Context, token string) (authz.Principal, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return authz.Principal{}, err
	}
	user, err := s.repo.FindByID(ctx, subject)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("identity: resolve subject: %w", httpx.ErrUnauthorized)
	}
	if !user.IsActive {
		return authz.Principal{}, fmt.Errorf("identity: account disabled: %w", httpx.ErrUnauthorized)
	}
	role, err := authz.ParseRole(user.Role)
	if err != nil {
		return authz.Principal{}, fmt.Errorf("identity: %s: %w", err, httpx.ErrUnauthorized)
	}
	return authz.Principal{
		ID:           user.ID,
		Role:         role,
		TeamID:       user.TeamID,
		DepartmentID: user.DepartmentID,
	}, nil
}
