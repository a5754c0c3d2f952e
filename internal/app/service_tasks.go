package app

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"praxis/api/internal/authz"
	"praxis/api/internal/mirror"
	"praxis/api/internal/notify"
	"praxis/api/internal/realtime"
	"praxis/api/internal/store"
	"praxis/api/internal/util"
)

var allowedTaskStatuses = map[string]struct{}{
	"pending":     {},
	"in_progress": {},
	"completed":   {},
	"cancelled":   {},
}

var allowedTaskPriorities = map[string]struct{}{
	"low":    {},
	"normal": {},
	"high":   {},
	"urgent": {},
}

type TaskInput struct {
	MatterID    string     `json:"matterId"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Priority    string     `json:"priority"`
	AssigneeID  string     `json:"assigneeId"`
	DueAt       *time.Time `json:"dueAt"`
}

func (s *Service) CreateTask(ctx context.Context, session Session, input TaskInput) (store.Task, error) {
	if strings.TrimSpace(input.Title) == "" {
		return store.Task{}, errValidation("title is required", nil)
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Task{}, err
	}

	var matterID *string
	if id := strings.TrimSpace(input.MatterID); id != "" {
		if _, err := s.visibleMatter(ctx, &user, id); err != nil {
			return store.Task{}, err
		}
		matterID = &id
	}

	assigneeID := strings.TrimSpace(input.AssigneeID)
	if assigneeID == "" {
		assigneeID = session.UserID
	}
	if assigneeID != session.UserID {
		assignee, err := s.store.GetUserByID(ctx, assigneeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Task{}, errValidation("assignee does not exist", nil)
			}
			return store.Task{}, err
		}
		forest, err := s.roles.Forest(ctx)
		if err != nil {
			return store.Task{}, err
		}
		if !authz.CanAssignTo(&user, assignee.AccountType, forest) {
			return store.Task{}, errForbidden("your role cannot assign work to " + assignee.DisplayName)
		}
	}

	priority := strings.TrimSpace(input.Priority)
	if priority == "" {
		priority = "normal"
	}
	if _, ok := allowedTaskPriorities[priority]; !ok {
		return store.Task{}, errValidation("unknown task priority", map[string]any{"priority": priority})
	}

	task := store.Task{
		ID:          util.NewID("tsk"),
		MatterID:    matterID,
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Status:      "pending",
		Priority:    priority,
		AssigneeID:  assigneeID,
		DueAt:       input.DueAt,
		CreatedBy:   session.UserID,
	}
	if err := s.store.CreateTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	s.mirrorUpsert(mirror.RecordTask, taskRecord(task))
	s.recordActivity(ctx, session, "task.created", "task", task.ID, task.Title)
	if matterID != nil {
		s.publish(ctx, realtime.MatterRoom(*matterID), realtime.EventMatterNew, map[string]any{
			"kind":   "task",
			"taskId": task.ID,
			"title":  task.Title,
		})
	}
	if assigneeID != session.UserID {
		s.notifyUser(ctx, assigneeID, notify.TopicTaskAssigned,
			"Task assigned: "+task.Title,
			session.UserName+" assigned you a task.",
			"/tasks/"+task.ID)
	}
	return s.store.GetTask(ctx, task.ID)
}

func (s *Service) GetTask(ctx context.Context, session Session, id string) (store.Task, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	if !authz.CanViewTask(&user, &task) {
		return store.Task{}, errNotFound("task not found")
	}
	return task, nil
}

func (s *Service) ListTasks(ctx context.Context, session Session) ([]store.Task, error) {
	return s.store.ListTasksForUser(ctx, session.UserID, session.IsAdmin())
}

func (s *Service) ListMatterTasks(ctx context.Context, session Session, matterID string) ([]store.Task, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return nil, err
	}
	if _, err := s.visibleMatter(ctx, &user, matterID); err != nil {
		return nil, err
	}
	return s.store.ListTasksForMatter(ctx, matterID)
}

func (s *Service) UpdateTask(ctx context.Context, session Session, id string, input TaskInput) (store.Task, error) {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	if !authz.CanViewTask(&user, &task) {
		return store.Task{}, errNotFound("task not found")
	}
	if !authz.CanEditTask(&user, &task) {
		return store.Task{}, errForbidden("only the task creator can edit it")
	}
	if title := strings.TrimSpace(input.Title); title != "" {
		task.Title = title
	}
	task.Description = input.Description
	if priority := strings.TrimSpace(input.Priority); priority != "" {
		if _, ok := allowedTaskPriorities[priority]; !ok {
			return store.Task{}, errValidation("unknown task priority", map[string]any{"priority": priority})
		}
		task.Priority = priority
	}
	if assigneeID := strings.TrimSpace(input.AssigneeID); assigneeID != "" && assigneeID != task.AssigneeID {
		assignee, err := s.store.GetUserByID(ctx, assigneeID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return store.Task{}, errValidation("assignee does not exist", nil)
			}
			return store.Task{}, err
		}
		forest, err := s.roles.Forest(ctx)
		if err != nil {
			return store.Task{}, err
		}
		if !authz.CanAssignTo(&user, assignee.AccountType, forest) {
			return store.Task{}, errForbidden("your role cannot assign work to " + assignee.DisplayName)
		}
		task.AssigneeID = assigneeID
		s.notifyUser(ctx, assigneeID, notify.TopicTaskAssigned,
			"Task assigned: "+task.Title,
			session.UserName+" assigned you a task.",
			"/tasks/"+task.ID)
	}
	if input.DueAt != nil {
		task.DueAt = input.DueAt
	}
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	s.mirrorUpsert(mirror.RecordTask, taskRecord(task))
	s.recordActivity(ctx, session, "task.updated", "task", task.ID, task.Title)
	return s.store.GetTask(ctx, id)
}

// ChangeTaskStatus is restricted to the task creator. Assignees signal
// completion out of band; the creator confirms.
func (s *Service) ChangeTaskStatus(ctx context.Context, session Session, id, status string) (store.Task, error) {
	if _, ok := allowedTaskStatuses[status]; !ok {
		return store.Task{}, errValidation("unknown task status", map[string]any{"status": status})
	}
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return store.Task{}, err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return store.Task{}, err
	}
	if !authz.CanViewTask(&user, &task) {
		return store.Task{}, errNotFound("task not found")
	}
	if !authz.CanChangeTaskStatus(&user, &task) {
		return store.Task{}, errForbidden("only the task creator can change its status")
	}
	previous := task.Status
	task.Status = status
	if err := s.store.UpdateTask(ctx, task); err != nil {
		return store.Task{}, err
	}
	s.mirrorUpsert(mirror.RecordTask, taskRecord(task))
	s.recordActivity(ctx, session, "task.status", "task", task.ID, status)
	if status == "completed" && previous != "completed" && task.AssigneeID != session.UserID {
		s.notifyUser(ctx, task.AssigneeID, notify.TopicTaskCompleted,
			"Task completed: "+task.Title,
			session.UserName+" marked the task as completed.",
			"/tasks/"+task.ID)
	}
	return s.store.GetTask(ctx, id)
}

func (s *Service) DeleteTask(ctx context.Context, session Session, id string) error {
	user, err := s.currentUser(ctx, session)
	if err != nil {
		return err
	}
	task, err := s.store.GetTask(ctx, id)
	if err != nil {
		return err
	}
	if !authz.CanViewTask(&user, &task) {
		return errNotFound("task not found")
	}
	if !authz.CanEditTask(&user, &task) {
		return errForbidden("only the task creator can delete it")
	}
	if err := s.store.DeleteTask(ctx, id); err != nil {
		return err
	}
	s.mirrorDelete(mirror.RecordTask, id)
	s.recordActivity(ctx, session, "task.deleted", "task", id, task.Title)
	return nil
}

func taskRecord(t store.Task) mirror.Record {
	return mirror.Record{
		ID:     t.ID,
		Title:  t.Title,
		Body:   t.Description,
		Status: t.Status,
		Extra:  map[string]string{"priority": t.Priority},
	}
}
