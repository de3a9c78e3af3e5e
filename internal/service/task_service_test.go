package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/cache"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

const launchProject = `{"project":{"id":"p1","name":"Launch","tasks":[
  {"id":"t1","title":"Write copy","assignees":[{"id":"a1","user":{"id":"u1","name":"Ada"}}]}]}}`

func TestTaskService_AssignUpdatesCache(t *testing.T) {
	exec := newScriptedExecutor().
		on(graphql.FieldProject, reply{data: launchProject}).
		on(graphql.FieldAssignTaskMember, reply{data: `{"assignTaskMember":{"id":"t1","assignees":[
		  {"id":"a1","user":{"id":"u1","name":"Ada"}},{"id":"a2","user":{"id":"u2","name":"Grace"}}]}}`})
	graph := cache.NewGraph(nil)
	updater := cache.NewUpdater(graph, nil, nil)
	projects := NewProjectService(exec, updater, nil)
	tasks := NewTaskService(exec, updater, nil)
	ctx := context.Background()

	project, err := projects.Get(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, project.Tasks, 1)

	for i := 0; i < 2; i++ {
		task, err := tasks.Assign(ctx, "t1", "u2")
		require.NoError(t, err)
		assert.Len(t, task.Assignees, 2)
	}

	var cached domain.Task
	require.NoError(t, graph.Decode(cache.EntityKey{Type: "Task", ID: "t1"}, &cached))
	assert.Len(t, cached.Assignees, 2)
}

func TestTaskService_ErrorMapping(t *testing.T) {
	exec := newScriptedExecutor().
		on(graphql.FieldTask, reply{err: rejected(graphql.CodeNotFound, "Task not found")}).
		on(graphql.FieldDeleteTask, reply{err: rejected(graphql.CodeForbidden, "Not a member")}).
		on(graphql.FieldUpdateTask, reply{err: rejected(graphql.CodeBadUserInput, "Bad status")})
	tasks := NewTaskService(exec, nil, nil)
	ctx := context.Background()

	_, err := tasks.Get(ctx, "t9")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
	assert.Equal(t, "Task not found", apperrors.ToDomainError(err).Message)

	_, err = tasks.Delete(ctx, "t9")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized))

	status := "WHATEVER"
	_, err = tasks.Update(ctx, "t9", domain.TaskInput{Status: &status})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))

	_, err = tasks.Add(ctx, "p1", domain.TaskInput{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}

func TestTaskService_NullPayloadIsNotFound(t *testing.T) {
	tasks := NewTaskService(newScriptedExecutor(), nil, nil)

	_, err := tasks.Get(context.Background(), "missing")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeNotFound))
}

func TestWorkspaceService_CreateAppendsToList(t *testing.T) {
	exec := newScriptedExecutor().
		on(graphql.FieldMyWorkspaces, reply{data: `{"myWorkspaces":[{"id":"w1","name":"Acme"}]}`}).
		on(graphql.FieldCreateWorkspace, reply{data: `{"createWorkspace":{"id":"w2","name":"Beta"}}`}).
		on(graphql.FieldDeleteWorkspace, reply{data: `{"deleteWorkspace":true}`})
	graph := cache.NewGraph(nil)
	workspaces := NewWorkspaceService(exec, cache.NewUpdater(graph, nil, nil), nil)
	ctx := context.Background()

	list, err := workspaces.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)

	ws, err := workspaces.Create(ctx, "Beta", nil)
	require.NoError(t, err)
	assert.Equal(t, "w2", ws.ID)

	cached, ok := graph.ResolveRoot(graphql.FieldMyWorkspaces)
	require.True(t, ok)
	assert.Len(t, cached, 2)

	deleted, err := workspaces.Delete(ctx, "w2")
	require.NoError(t, err)
	assert.True(t, deleted)
	assert.False(t, graph.Has(cache.EntityKey{Type: "Workspace", ID: "w2"}))

	_, err = workspaces.Create(ctx, "", nil)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeValidationFailed))
}
