package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// TaskService edits tasks and their assignees. Responses are reconciled into
// the cache before the call returns.
type TaskService struct {
	runner operationRunner
}

func NewTaskService(exec Executor, updater *cache.Updater, logger *zap.Logger) *TaskService {
	return &TaskService{runner: newOperationRunner(exec, updater, logger)}
}

func (s *TaskService) Get(ctx context.Context, id string) (*domain.Task, error) {
	var task domain.Task
	found, err := s.runner.run(ctx, graphql.Task(id), &task)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("task", map[string]any{"id": id})
	}
	return &task, nil
}

// Add creates a task in projectID.
func (s *TaskService) Add(ctx context.Context, projectID string, in domain.TaskInput) (*domain.Task, error) {
	if in.Title == "" {
		return nil, apperrors.NewValidationError("title is required", map[string]any{"title": "title is required"})
	}
	return s.mutate(ctx, graphql.AddTask(projectID, in))
}

// Update sends only the fields set in in; an empty title is left unchanged.
func (s *TaskService) Update(ctx context.Context, id string, in domain.TaskInput) (*domain.Task, error) {
	return s.mutate(ctx, graphql.UpdateTask(id, in))
}

func (s *TaskService) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	if _, err := s.runner.run(ctx, graphql.DeleteTask(id), &deleted); err != nil {
		return false, err
	}
	return deleted, nil
}

// Assign adds userID to the task's assignees. Assigning twice is harmless.
func (s *TaskService) Assign(ctx context.Context, taskID, userID string) (*domain.Task, error) {
	return s.mutate(ctx, graphql.AssignTaskMember(taskID, userID))
}

// Unassign removes userID; the returned list is authoritative.
func (s *TaskService) Unassign(ctx context.Context, taskID, userID string) (*domain.Task, error) {
	return s.mutate(ctx, graphql.RemoveTaskMember(taskID, userID))
}

func (s *TaskService) mutate(ctx context.Context, op *graphql.Operation) (*domain.Task, error) {
	var task domain.Task
	found, err := s.runner.run(ctx, op, &task)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("task", map[string]any{"operation": op.Name})
	}
	return &task, nil
}
