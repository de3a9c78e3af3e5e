package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// WorkspaceService reads and edits workspaces and their membership.
type WorkspaceService struct {
	runner operationRunner
}

// NewWorkspaceService builds the service. Every response is applied to
// updater's graph.
func NewWorkspaceService(exec Executor, updater *cache.Updater, logger *zap.Logger) *WorkspaceService {
	return &WorkspaceService{runner: newOperationRunner(exec, updater, logger)}
}

// List returns the caller's workspaces.
func (s *WorkspaceService) List(ctx context.Context) ([]domain.Workspace, error) {
	var out []domain.Workspace
	if _, err := s.runner.run(ctx, graphql.MyWorkspaces(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WorkspaceService) Get(ctx context.Context, id string) (*domain.Workspace, error) {
	var ws domain.Workspace
	found, err := s.runner.run(ctx, graphql.Workspace(id), &ws)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("workspace", map[string]any{"id": id})
	}
	return &ws, nil
}

func (s *WorkspaceService) Create(ctx context.Context, name string, description *string) (*domain.Workspace, error) {
	if name == "" {
		return nil, apperrors.NewValidationError("name is required", map[string]any{"name": "name is required"})
	}
	return s.mutate(ctx, graphql.CreateWorkspace(name, description))
}

func (s *WorkspaceService) Update(ctx context.Context, id string, name, description *string) (*domain.Workspace, error) {
	return s.mutate(ctx, graphql.UpdateWorkspace(id, name, description))
}

// Delete reports whether the server removed the workspace.
func (s *WorkspaceService) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	if _, err := s.runner.run(ctx, graphql.DeleteWorkspace(id), &deleted); err != nil {
		return false, err
	}
	return deleted, nil
}

// AddMember returns the workspace with its full member list.
func (s *WorkspaceService) AddMember(ctx context.Context, workspaceID, userID string, role *string) (*domain.Workspace, error) {
	return s.mutate(ctx, graphql.AddMember(workspaceID, userID, role))
}

func (s *WorkspaceService) RemoveMember(ctx context.Context, workspaceID, userID string) (*domain.Workspace, error) {
	return s.mutate(ctx, graphql.RemoveMember(workspaceID, userID))
}

// Users lists every user, for member pickers.
func (s *WorkspaceService) Users(ctx context.Context) ([]domain.User, error) {
	var out []domain.User
	if _, err := s.runner.run(ctx, graphql.Users(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *WorkspaceService) mutate(ctx context.Context, op *graphql.Operation) (*domain.Workspace, error) {
	var ws domain.Workspace
	found, err := s.runner.run(ctx, op, &ws)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, apperrors.NewNotFound("workspace", map[string]any{"operation": op.Name})
	}
	return &ws, nil
}
