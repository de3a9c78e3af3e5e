package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// ProjectService reads and edits projects.
type ProjectService struct {
	runner operationRunner
}

func NewProjectService(exec Executor, updater *cache.Updater, logger *zap.Logger) *ProjectService {
	return &ProjectService{runner: newOperationRunner(exec, updater, logger)}
}

// Get fetches a project with its tasks.
func (s *ProjectService) Get(ctx context.Context, id string) (*domain.Project, error) {
	var project domain.Project
	found, err := s.runner.run(ctx, graphql.Project(id), &project)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("project", map[string]any{"id": id})
	}
	return &project, nil
}

func (s *ProjectService) Create(ctx context.Context, workspaceID, name string, description, status *string) (*domain.Project, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"name": "name is required"})
	}
	return s.mutate(ctx, graphql.CreateProject(workspaceID, name, description, status))
}

func (s *ProjectService) Update(ctx context.Context, id string, name, description, status *string) (*domain.Project, error) {
	return s.mutate(ctx, graphql.UpdateProject(id, name, description, status))
}

func (s *ProjectService) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	if _, err := s.runner.run(ctx, graphql.DeleteProject(id), &deleted); err != nil {
		return false, err
	}
	return deleted, nil
}

func (s *ProjectService) mutate(ctx context.Context, op *graphql.Operation) (*domain.Project, error) {
	var project domain.Project
	found, err := s.runner.run(ctx, op, &project)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("project", map[string]any{"operation": op.Name})
	}
	return &project, nil
}
