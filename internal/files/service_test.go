package files

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

type stubRepo struct {
	files map[string]*File
}

func newStubRepo() *stubRepo {
	return &stubRepo{files: map[string]*File{}}
}

func (s *stubRepo) Insert(_ context.Context, f *File) error {
	copied := *f
	s.files[f.ID] = &copied
	return nil
}

func (s *stubRepo) Get(_ context.Context, id string) (*File, error) {
	f, ok := s.files[id]
	if !ok {
		return nil, fmt.Errorf("files: file: %w", httpx.ErrNotFound)
	}
	copied := *f
	return &copied, nil
}

func (s *stubRepo) List(_ context.Context, ownerID, teamID string) ([]File, error) {
	var out []File
	for _, f := range s.files {
		if f.IsDeleted {
			continue
		}
		if ownerID != "" && f.OwnerID != ownerID {
			continue
		}
		if teamID != "" && f.TeamID != teamID {
			continue
		}
		out = append(out, *f)
	}
	return out, nil
}

func (s *stubRepo) Update(_ context.Context, f *File) error {
	copied := *f
	s.files[f.ID] = &copied
	return nil
}

func seedFile(repo *stubRepo, ownerID, teamID string, public bool) *File {
	f := &File{
		ID:         uuid.NewString(),
		Name:       "report.pdf",
		MimeType:   "application/pdf",
		SizeBytes:  2048,
		StorageKey: "files/" + uuid.NewString(),
		OwnerID:    ownerID,
		TeamID:     teamID,
		IsPublic:   public,
		CreatedAt:  time.Now(),
	}
	repo.files[f.ID] = f
	return f
}

func TestRegisterSetsOwner(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	p := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}

	f, err := svc.Register(context.Background(), p, RegisterInput{
		Name:       "notes.txt",
		MimeType:   "text/plain",
		StorageKey: "files/abc",
		TeamID:     "team-1",
	})
	require.NoError(t, err)
	require.Equal(t, p.ID, f.OwnerID)

	// Viewers cannot upload.
	viewer := authz.Principal{ID: uuid.NewString(), Role: authz.RoleViewer}
	_, err = svc.Register(context.Background(), viewer, RegisterInput{Name: "x", StorageKey: "k"})
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestReadScopes(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	owner := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	private := seedFile(repo, owner.ID, "", false)
	public := seedFile(repo, owner.ID, "", true)

	stranger := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-2"}
	_, err := svc.Get(context.Background(), stranger, private.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)

	_, err = svc.Get(context.Background(), stranger, public.ID)
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), owner, private.ID)
	require.NoError(t, err)
}

func TestSoftDeleteHidesFile(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	owner := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	f := seedFile(repo, owner.ID, "team-1", false)

	require.NoError(t, svc.Delete(context.Background(), owner, f.ID))
	_, err := svc.Get(context.Background(), owner, f.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)

	items, err := svc.List(context.Background(), owner)
	require.NoError(t, err)
	require.Empty(t, items)
}

func TestManagerListsTeamFiles(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	seedFile(repo, uuid.NewString(), "team-1", false)
	seedFile(repo, uuid.NewString(), "team-2", false)

	mgr := authz.Principal{ID: uuid.NewString(), Role: authz.RoleManager, TeamID: "team-1"}
	items, err := svc.List(context.Background(), mgr)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, "team-1", items[0].TeamID)
}

func TestRenameOwnerOnlyForEmployees(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo)
	owner := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	f := seedFile(repo, owner.ID, "team-1", false)

	renamed, err := svc.Rename(context.Background(), owner, f.ID, "final.pdf")
	require.NoError(t, err)
	require.Equal(t, "final.pdf", renamed.Name)

	other := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	_, err = svc.Rename(context.Background(), other, f.ID, "mine.pdf")
	require.ErrorIs(t, err, httpx.ErrForbidden)
}
