package tasks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// RepositoryPort defines data access methods for tasks.
type RepositoryPort interface {
	Get(ctx context.Context, id string) (*Task, error)
	List(ctx context.Context, filter ListFilter) ([]Task, int, error)
	Insert(ctx context.Context, task *Task) error
	Update(ctx context.Context, task *Task) error
}

// ListFilter scopes task listings. Limit and Offset are always set by
// the service.
type ListFilter struct {
	AssignedTo string
	TeamID     string
	Status     string
	Limit      int
	Offset     int
}

// EventPublisher fans a domain event out to a room. Implemented by
// realtime.Dispatcher.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// Service handles task business logic.
type Service struct {
	repo   RepositoryPort
	events EventPublisher
}

// NewService builds a Service instance. The dispatcher is injected; the
// service never reaches for ambient broadcast state.
func NewService(repo RepositoryPort, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

func taskFacts(t *Task) authz.Facts {
	return authz.Facts{
		OwnerID:      t.AssignedBy,
		AssigneeID:   t.AssignedTo,
		TeamID:       t.TeamID,
		DepartmentID: t.DepartmentID,
	}
}

// rooms derives the fan-out targets for a task mutation: always the
// assignee's user room, plus the team room when the task has one.
func (s *Service) publish(ctx context.Context, t *Task, name string, payload any) {
	s.events.Publish(ctx, realtime.UserRoom(t.AssignedTo), name, payload)
	if t.TeamID != "" {
		s.events.Publish(ctx, realtime.TeamRoom(t.TeamID), name, payload)
	}
}

// CreateInput carries the fields accepted on task creation.
type CreateInput struct {
	Title        string
	Description  string
	AssignedTo   string
	Priority     string
	Deadline     *time.Time
	TeamID       string
	DepartmentID string
	Tags         []string
}

// Create inserts a new task and announces the assignment.
func (s *Service) Create(ctx context.Context, p authz.Principal, input CreateInput) (*Task, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindTask, authz.Facts{TeamID: input.TeamID}); err != nil {
		return nil, err
	}
	if input.Title == "" || input.AssignedTo == "" {
		return nil, fmt.Errorf("tasks: title and assignee required: %w", httpx.ErrValidation)
	}
	if input.Priority == "" {
		input.Priority = PriorityMedium
	}
	if !validPriority(input.Priority) {
		return nil, fmt.Errorf("tasks: invalid priority %q: %w", input.Priority, httpx.ErrValidation)
	}
	now := time.Now()
	task := &Task{
		ID:           uuid.NewString(),
		Title:        input.Title,
		Description:  input.Description,
		AssignedTo:   input.AssignedTo,
		AssignedBy:   p.ID,
		Status:       StatusPending,
		Priority:     input.Priority,
		Deadline:     input.Deadline,
		TeamID:       input.TeamID,
		DepartmentID: input.DepartmentID,
		Tags:         input.Tags,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Insert(ctx, task); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.UserRoom(task.AssignedTo), realtime.EventTaskAssigned, task)
	if task.TeamID != "" {
		s.events.Publish(ctx, realtime.TeamRoom(task.TeamID), realtime.EventTaskCreated, task)
	}
	return task, nil
}

// Get loads a task the principal may read.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	return task, nil
}

// List returns tasks scoped by role: managers see their team, everyone
// else sees only what is assigned to them.
func (s *Service) List(ctx context.Context, p authz.Principal, status string, page, perPage int) ([]Task, shared.Pagination, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	filter := ListFilter{Status: status, Limit: perPage, Offset: shared.PageOffset(page, perPage)}
	if p.Role.AtLeast(authz.RoleManager) {
		filter.TeamID = p.TeamID
	} else {
		filter.AssignedTo = p.ID
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// UpdateInput carries the mutable task fields. Nil pointers leave the
// field unchanged.
type UpdateInput struct {
	Title       *string
	Description *string
	Priority    *string
	Deadline    *time.Time
}

// Update applies a partial update and announces it.
func (s *Service) Update(ctx context.Context, p authz.Principal, id string, input UpdateInput) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	if input.Title != nil {
		task.Title = *input.Title
	}
	if input.Description != nil {
		task.Description = *input.Description
	}
	if input.Priority != nil {
		if !validPriority(*input.Priority) {
			return nil, fmt.Errorf("tasks: invalid priority %q: %w", *input.Priority, httpx.ErrValidation)
		}
		task.Priority = *input.Priority
	}
	if input.Deadline != nil {
		task.Deadline = input.Deadline
	}
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskUpdated, task)
	return task, nil
}

// Delete soft-deletes a task and announces the removal.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id string) error {
	task, err := s.load(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionDelete, authz.KindTask, taskFacts(task)); err != nil {
		return err
	}
	task.IsDeleted = true
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return err
	}
	s.publish(ctx, task, realtime.EventTaskDeleted, map[string]string{"taskId": task.ID})
	return nil
}

// UpdateStatus transitions the task status.
func (s *Service) UpdateStatus(ctx context.Context, p authz.Principal, id, status string) (*Task, error) {
	if !validStatus(status) {
		return nil, fmt.Errorf("tasks: invalid status %q: %w", status, httpx.ErrValidation)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	task.Status = status
	if status == StatusCompleted {
		task.Progress = 100
	}
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskStatusUpdated, map[string]string{"taskId": task.ID, "status": status})
	return task, nil
}

// UpdateProgress sets the completion percentage.
func (s *Service) UpdateProgress(ctx context.Context, p authz.Principal, id string, progress int) (*Task, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("tasks: progress out of range: %w", httpx.ErrValidation)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	task.Progress = progress
	if progress == 100 {
		task.Status = StatusCompleted
	} else if task.Status == StatusCompleted {
		task.Status = StatusInProgress
	}
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskProgressUpdated, task)
	return task, nil
}

// AddBlocker records a new blocker on the task.
func (s *Service) AddBlocker(ctx context.Context, p authz.Principal, id, description string) (*Task, error) {
	if description == "" {
		return nil, fmt.Errorf("tasks: blocker description required: %w", httpx.ErrValidation)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	blocker := Blocker{
		ID:          uuid.NewString(),
		Description: description,
		ReportedBy:  p.ID,
		ReportedAt:  time.Now(),
	}
	task.Blockers = append(task.Blockers, blocker)
	task.Status = StatusBlocked
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskBlockerAdded, map[string]any{"taskId": task.ID, "blocker": blocker})
	return task, nil
}

// ResolveBlocker marks a blocker resolved; when no blockers remain open
// the task returns to in-progress.
func (s *Service) ResolveBlocker(ctx context.Context, p authz.Principal, id, blockerID string) (*Task, error) {
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	resolved := false
	open := 0
	now := time.Now()
	for i := range task.Blockers {
		if task.Blockers[i].ID == blockerID && !task.Blockers[i].Resolved {
			task.Blockers[i].Resolved = true
			task.Blockers[i].ResolvedBy = p.ID
			task.Blockers[i].ResolvedAt = &now
			resolved = true
		}
		if !task.Blockers[i].Resolved {
			open++
		}
	}
	if !resolved {
		return nil, fmt.Errorf("tasks: blocker %s: %w", blockerID, httpx.ErrNotFound)
	}
	if open == 0 && task.Status == StatusBlocked {
		task.Status = StatusInProgress
	}
	task.UpdatedAt = now
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskBlockerUpdated, task)
	return task, nil
}

// AddComment attaches a note to the task.
func (s *Service) AddComment(ctx context.Context, p authz.Principal, id, text string) (*Task, error) {
	if text == "" {
		return nil, fmt.Errorf("tasks: comment text required: %w", httpx.ErrValidation)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	comment := Comment{
		ID:        uuid.NewString(),
		UserID:    p.ID,
		Text:      text,
		CreatedAt: time.Now(),
	}
	task.Comments = append(task.Comments, comment)
	task.UpdatedAt = comment.CreatedAt
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.publish(ctx, task, realtime.EventTaskNoteAdded, map[string]any{"taskId": task.ID, "comment": comment})
	return task, nil
}

// Reassign moves the task to a new assignee. The previous assignee sees a
// removal, the new one an assignment, the team a reassignment.
func (s *Service) Reassign(ctx context.Context, p authz.Principal, id, newAssignee string) (*Task, error) {
	if newAssignee == "" {
		return nil, fmt.Errorf("tasks: assignee required: %w", httpx.ErrValidation)
	}
	task, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionAssign, authz.KindTask, taskFacts(task)); err != nil {
		return nil, err
	}
	previous := task.AssignedTo
	task.AssignedTo = newAssignee
	task.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, task); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.UserRoom(previous), realtime.EventTaskRemoved, map[string]string{"taskId": task.ID})
	s.events.Publish(ctx, realtime.UserRoom(newAssignee), realtime.EventTaskAssigned, task)
	if task.TeamID != "" {
		s.events.Publish(ctx, realtime.TeamRoom(task.TeamID), realtime.EventTaskReassigned, task)
	}
	return task, nil
}

// load fetches a task, hiding soft-deleted ones.
func (s *Service) load(ctx context.Context, id string) (*Task, error) {
	task, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if task.IsDeleted {
		return nil, fmt.Errorf("tasks: %s: %w", id, httpx.ErrNotFound)
	}
	return task, nil
}
