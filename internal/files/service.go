package files

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// RepositoryPort defines data access methods for file metadata.
type RepositoryPort interface {
	Insert(ctx context.Context, f *File) error
	Get(ctx context.Context, id string) (*File, error)
	List(ctx context.Context, ownerID, teamID string) ([]File, error)
	Update(ctx context.Context, f *File) error
}

// Service handles file metadata. File events are deliberately absent:
// uploads surface to other users through the tasks they attach to.
type Service struct {
	repo RepositoryPort
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort) *Service {
	return &Service{repo: repo}
}

func fileFacts(f *File) authz.Facts {
	return authz.Facts{OwnerID: f.OwnerID, TeamID: f.TeamID, IsPublic: f.IsPublic}
}

// RegisterInput carries the metadata recorded at upload time.
type RegisterInput struct {
	Name       string
	MimeType   string
	SizeBytes  int64
	StorageKey string
	TeamID     string
	TaskID     string
	IsPublic   bool
}

// Register records metadata for a newly uploaded file.
func (s *Service) Register(ctx context.Context, p authz.Principal, input RegisterInput) (*File, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindFile, authz.Facts{TeamID: input.TeamID}); err != nil {
		return nil, err
	}
	if input.Name == "" || input.StorageKey == "" {
		return nil, fmt.Errorf("files: name and storage key required: %w", httpx.ErrValidation)
	}
	f := &File{
		ID:         uuid.NewString(),
		Name:       input.Name,
		MimeType:   input.MimeType,
		SizeBytes:  input.SizeBytes,
		StorageKey: input.StorageKey,
		OwnerID:    p.ID,
		TeamID:     input.TeamID,
		TaskID:     input.TaskID,
		IsPublic:   input.IsPublic,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Insert(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Get loads file metadata the principal may read.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*File, error) {
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindFile, fileFacts(f)); err != nil {
		return nil, err
	}
	return f, nil
}

// List returns files visible to the principal: their own, plus the
// team's for managers.
func (s *Service) List(ctx context.Context, p authz.Principal) ([]File, error) {
	if p.Role.AtLeast(authz.RoleManager) && p.TeamID != "" {
		return s.repo.List(ctx, "", p.TeamID)
	}
	return s.repo.List(ctx, p.ID, "")
}

// Rename changes the display name of a file.
func (s *Service) Rename(ctx context.Context, p authz.Principal, id, name string) (*File, error) {
	if name == "" {
		return nil, fmt.Errorf("files: name required: %w", httpx.ErrValidation)
	}
	f, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindFile, fileFacts(f)); err != nil {
		return nil, err
	}
	f.Name = name
	if err := s.repo.Update(ctx, f); err != nil {
		return nil, err
	}
	return f, nil
}

// Delete soft-deletes a file's metadata.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id string) error {
	f, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionDelete, authz.KindFile, fileFacts(f)); err != nil {
		return err
	}
	f.IsDeleted = true
	return s.repo.Update(ctx, f)
}

func (s *Service) load(ctx context.Context, id string) (*File, error) {
	f, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if f.IsDeleted {
		return nil, fmt.Errorf("files: %s: %w", id, httpx.ErrNotFound)
	}
	return f, nil
}
