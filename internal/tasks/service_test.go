package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
)

type stubRepo struct {
	tasks     map[string]*Task
	insertErr error
	updateErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{tasks: map[string]*Task{}}
}

func (s *stubRepo) Get(_ context.Context, id string) (*Task, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, httpx.ErrNotFound
	}
	copied := *t
	return &copied, nil
}

func (s *stubRepo) List(_ context.Context, filter ListFilter) ([]Task, int, error) {
	var matched []Task
	for _, t := range s.tasks {
		if t.IsDeleted {
			continue
		}
		if filter.AssignedTo != "" && t.AssignedTo != filter.AssignedTo {
			continue
		}
		if filter.TeamID != "" && t.TeamID != filter.TeamID {
			continue
		}
		if filter.Status != "" && t.Status != filter.Status {
			continue
		}
		matched = append(matched, *t)
	}
	total := len(matched)
	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			matched = nil
		} else {
			matched = matched[filter.Offset:]
		}
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, total, nil
}

func (s *stubRepo) Insert(_ context.Context, task *Task) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

func (s *stubRepo) Update(_ context.Context, task *Task) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	copied := *task
	s.tasks[task.ID] = &copied
	return nil
}

type published struct {
	Room    string
	Name    string
	Payload any
}

type capturePublisher struct {
	events []published
}

func (c *capturePublisher) Publish(_ context.Context, room, name string, payload any) {
	c.events = append(c.events, published{Room: room, Name: name, Payload: payload})
}

func seedTask(repo *stubRepo, teamID string) *Task {
	t := &Task{
		ID:         uuid.NewString(),
		Title:      "prepare quarterly deck",
		AssignedTo: uuid.NewString(),
		AssignedBy: uuid.NewString(),
		Status:     StatusInProgress,
		Priority:   PriorityMedium,
		TeamID:     teamID,
		CreatedAt:  time.Now(),
		UpdatedAt:  time.Now(),
	}
	repo.tasks[t.ID] = t
	return t
}

func manager(teamID string) authz.Principal {
	return authz.Principal{ID: uuid.NewString(), Role: authz.RoleManager, TeamID: teamID}
}

func TestCreatePublishesAssignmentAndTeamEvents(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)

	p := manager("team-1")
	assignee := uuid.NewString()
	task, err := svc.Create(context.Background(), p, CreateInput{
		Title:      "write onboarding doc",
		AssignedTo: assignee,
		TeamID:     "team-1",
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, task.Status)
	require.Equal(t, PriorityMedium, task.Priority)
	require.Equal(t, p.ID, task.AssignedBy)

	require.Len(t, pub.events, 2)
	require.Equal(t, realtime.UserRoom(assignee), pub.events[0].Room)
	require.Equal(t, realtime.EventTaskAssigned, pub.events[0].Name)
	require.Equal(t, realtime.TeamRoom("team-1"), pub.events[1].Room)
	require.Equal(t, realtime.EventTaskCreated, pub.events[1].Name)
}

func TestCreateWithoutTeamSkipsTeamRoom(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)

	_, err := svc.Create(context.Background(), manager(""), CreateInput{
		Title:      "solo item",
		AssignedTo: uuid.NewString(),
	})
	require.NoError(t, err)
	require.Len(t, pub.events, 1)
	require.Equal(t, realtime.EventTaskAssigned, pub.events[0].Name)
}

func TestCreateDeniedForEmployee(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)

	p := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	_, err := svc.Create(context.Background(), p, CreateInput{Title: "x", AssignedTo: uuid.NewString()})
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Empty(t, pub.events)
	require.Empty(t, repo.tasks)
}

func TestUpdatePublishesToAssigneeAndTeam(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")

	title := "revised title"
	updated, err := svc.Update(context.Background(), manager("team-1"), task.ID, UpdateInput{Title: &title})
	require.NoError(t, err)
	require.Equal(t, title, updated.Title)

	require.Len(t, pub.events, 2)
	require.Equal(t, realtime.UserRoom(task.AssignedTo), pub.events[0].Room)
	require.Equal(t, realtime.EventTaskUpdated, pub.events[0].Name)
	require.Equal(t, realtime.TeamRoom("team-1"), pub.events[1].Room)
	require.Equal(t, realtime.EventTaskUpdated, pub.events[1].Name)
}

func TestPersistenceFailureSuppressesPublish(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")
	repo.updateErr = errors.New("connection reset")

	title := "will not stick"
	_, err := svc.Update(context.Background(), manager("team-1"), task.ID, UpdateInput{Title: &title})
	require.Error(t, err)
	require.Empty(t, pub.events)
}

func TestInsertFailureSuppressesPublish(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	repo.insertErr = errors.New("unique violation")

	_, err := svc.Create(context.Background(), manager("team-1"), CreateInput{
		Title:      "x",
		AssignedTo: uuid.NewString(),
		TeamID:     "team-1",
	})
	require.Error(t, err)
	require.Empty(t, pub.events)
}

func TestEmployeeCannotDeleteForeignTask(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")

	p := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	err := svc.Delete(context.Background(), p, task.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.False(t, repo.tasks[task.ID].IsDeleted)
	require.Empty(t, pub.events)
}

func TestAssigneeCanDeleteOwnTask(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")

	p := authz.Principal{ID: task.AssignedTo, Role: authz.RoleEmployee, TeamID: "team-1"}
	require.NoError(t, svc.Delete(context.Background(), p, task.ID))
	require.True(t, repo.tasks[task.ID].IsDeleted)
	require.Equal(t, realtime.EventTaskDeleted, pub.events[0].Name)

	// Soft-deleted tasks read back as not found.
	_, err := svc.Get(context.Background(), p, task.ID)
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestStatusCompletedForcesFullProgress(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")

	updated, err := svc.UpdateStatus(context.Background(), manager("team-1"), task.ID, StatusCompleted)
	require.NoError(t, err)
	require.Equal(t, 100, updated.Progress)
	require.Equal(t, realtime.EventTaskStatusUpdated, pub.events[0].Name)
}

func TestUpdateStatusRejectsUnknownValue(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &capturePublisher{})
	task := seedTask(repo, "team-1")

	_, err := svc.UpdateStatus(context.Background(), manager("team-1"), task.ID, "done-ish")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestProgressHundredCompletesTask(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &capturePublisher{})
	task := seedTask(repo, "team-1")

	updated, err := svc.UpdateProgress(context.Background(), manager("team-1"), task.ID, 100)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)

	updated, err = svc.UpdateProgress(context.Background(), manager("team-1"), task.ID, 40)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, updated.Status)
}

func TestBlockerLifecycle(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")
	p := manager("team-1")

	blocked, err := svc.AddBlocker(context.Background(), p, task.ID, "waiting on design review")
	require.NoError(t, err)
	require.Equal(t, StatusBlocked, blocked.Status)
	require.Len(t, blocked.Blockers, 1)
	require.Equal(t, realtime.EventTaskBlockerAdded, pub.events[0].Name)

	resolved, err := svc.ResolveBlocker(context.Background(), p, task.ID, blocked.Blockers[0].ID)
	require.NoError(t, err)
	require.True(t, resolved.Blockers[0].Resolved)
	require.Equal(t, p.ID, resolved.Blockers[0].ResolvedBy)
	require.Equal(t, StatusInProgress, resolved.Status)

	_, err = svc.ResolveBlocker(context.Background(), p, task.ID, "no-such-blocker")
	require.ErrorIs(t, err, httpx.ErrNotFound)
}

func TestAddCommentAllowedForAssignee(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")

	p := authz.Principal{ID: task.AssignedTo, Role: authz.RoleEmployee, TeamID: "team-1"}
	updated, err := svc.AddComment(context.Background(), p, task.ID, "started on this")
	require.NoError(t, err)
	require.Len(t, updated.Comments, 1)
	require.Equal(t, p.ID, updated.Comments[0].UserID)
	require.Equal(t, realtime.EventTaskNoteAdded, pub.events[0].Name)
}

func TestReassignNotifiesBothAssignees(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := NewService(repo, pub)
	task := seedTask(repo, "team-1")
	previous := task.AssignedTo
	next := uuid.NewString()

	updated, err := svc.Reassign(context.Background(), manager("team-1"), task.ID, next)
	require.NoError(t, err)
	require.Equal(t, next, updated.AssignedTo)

	require.Len(t, pub.events, 3)
	require.Equal(t, realtime.UserRoom(previous), pub.events[0].Room)
	require.Equal(t, realtime.EventTaskRemoved, pub.events[0].Name)
	require.Equal(t, realtime.UserRoom(next), pub.events[1].Room)
	require.Equal(t, realtime.EventTaskAssigned, pub.events[1].Name)
	require.Equal(t, realtime.TeamRoom("team-1"), pub.events[2].Room)
	require.Equal(t, realtime.EventTaskReassigned, pub.events[2].Name)
}

func TestReassignRequiresSameTeam(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &capturePublisher{})
	task := seedTask(repo, "team-1")

	_, err := svc.Reassign(context.Background(), manager("team-2"), task.ID, uuid.NewString())
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestListScopesByRole(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &capturePublisher{})
	mine := seedTask(repo, "team-1")
	other := seedTask(repo, "team-1")

	p := authz.Principal{ID: mine.AssignedTo, Role: authz.RoleEmployee, TeamID: "team-1"}
	items, _, err := svc.List(context.Background(), p, "", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, mine.ID, items[0].ID)

	items, _, err = svc.List(context.Background(), manager("team-1"), "", 0, 0)
	require.NoError(t, err)
	require.Len(t, items, 2)
	_ = other
}

func TestListPaginatesResults(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &capturePublisher{})
	for i := 0; i < 5; i++ {
		seedTask(repo, "team-1")
	}

	items, pg, err := svc.List(context.Background(), manager("team-1"), "", 1, 2)
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 5, pg.Total)
	require.Equal(t, 3, pg.TotalPages)

	items, pg, err = svc.List(context.Background(), manager("team-1"), "", 3, 2)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, 3, pg.Page)

	// Out-of-range values fall back to sane defaults.
	items, pg, err = svc.List(context.Background(), manager("team-1"), "", -1, 500)
	require.NoError(t, err)
	require.Len(t, items, 5)
	require.Equal(t, 1, pg.Page)
	require.Equal(t, 100, pg.PerPage)
}
