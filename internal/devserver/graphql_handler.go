package devserver

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// TokenHeader carries a rotated access token on GraphQL responses.
const TokenHeader = "x-access-token"

const codeUnknownOperation = "GRAPHQL_VALIDATION_FAILED"

type requestContext struct {
	c    *fiber.Ctx
	user *domain.User
}

type variables map[string]any

func (v variables) str(name string) string {
	s, _ := v[name].(string)
	return s
}

func (v variables) opt(name string) *string {
	s, ok := v[name].(string)
	if !ok {
		return nil
	}
	return &s
}

func (v variables) taskFields() TaskFields {
	return TaskFields{
		Title:       v.opt("title"),
		Description: v.opt("description"),
		Status:      v.opt("status"),
		Priority:    v.opt("priority"),
		DueDate:     v.opt("dueDate"),
		AssigneeID:  v.opt("assigneeId"),
	}
}

type resolver struct {
	field  string
	public bool
	fn     func(rc *requestContext, vars variables) (any, error)
}

// GraphQLHandler serves POST /graphql, dispatching on operationName. It does
// not parse documents; the operation name selects the resolver.
type GraphQLHandler struct {
	store        *Store
	accounts     *AccountService
	tokens       *TokenManager
	refreshTTL   time.Duration
	rotateWithin time.Duration
	logger       *zap.Logger
	resolvers    map[string]resolver
}

// NewGraphQLHandler constructs handler.
func NewGraphQLHandler(store *Store, accounts *AccountService, tokens *TokenManager, refreshTTL, rotateWithin time.Duration, logger *zap.Logger) *GraphQLHandler {
	h := &GraphQLHandler{
		store:        store,
		accounts:     accounts,
		tokens:       tokens,
		refreshTTL:   refreshTTL,
		rotateWithin: rotateWithin,
		logger:       logger,
	}
	h.resolvers = h.buildResolvers()
	return h
}

// Handle executes one operation. Failures are reported in the errors array
// with status 200, as GraphQL servers do.
func (h *GraphQLHandler) Handle(c *fiber.Ctx) error {
	var req graphQLRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, "invalid payload")
	}

	r, ok := h.resolvers[req.OperationName]
	if !ok {
		return c.JSON(graphQLResponse{Errors: []graphQLError{{
			Message:    "unknown operation " + req.OperationName,
			Extensions: map[string]any{"code": codeUnknownOperation},
		}}})
	}

	rc := &requestContext{c: c}
	if !r.public {
		user, err := h.authenticate(c)
		if err != nil {
			return c.JSON(failure(r.field, err.Error(), graphql.CodeUnauthenticated))
		}
		rc.user = user
	}

	value, err := r.fn(rc, variables(req.Variables))
	if err != nil {
		domainErr := apperrors.ToDomainError(err)
		if domainErr.HTTPStatus >= 500 {
			h.logger.Error("resolver failed", zap.String("operation", req.OperationName), zap.Error(err))
		}
		return c.JSON(failure(r.field, domainErr.Message, domainErr.Code))
	}
	return c.JSON(graphQLResponse{Data: map[string]any{r.field: value}})
}

// authenticate validates the bearer token and rotates it through TokenHeader
// when it is close to expiry.
func (h *GraphQLHandler) authenticate(c *fiber.Ctx) (*domain.User, error) {
	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return nil, errors.New("authentication required")
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return nil, errors.New("invalid authorization header")
	}

	claims, err := h.tokens.Parse(parts[1])
	if err != nil {
		if errors.Is(err, errTokenExpired) {
			return nil, errors.New("access token expired")
		}
		return nil, errors.New("invalid access token")
	}
	user, ok := h.store.User(claims.Subject)
	if !ok {
		return nil, errors.New("account no longer exists")
	}

	if claims.ExpiresAt != nil && time.Until(claims.ExpiresAt.Time) < h.rotateWithin {
		token, _, err := h.tokens.Issue(*user)
		if err != nil {
			h.logger.Warn("token rotation failed", zap.Error(err))
		} else {
			c.Set(TokenHeader, token)
		}
	}
	return user, nil
}

func failure(field, message, code string) graphQLResponse {
	return graphQLResponse{
		Data: map[string]any{field: nil},
		Errors: []graphQLError{{
			Message:    message,
			Path:       []string{field},
			Extensions: map[string]any{"code": code},
		}},
	}
}

func (h *GraphQLHandler) buildResolvers() map[string]resolver {
	return map[string]resolver{
		"Login": {field: graphql.FieldLogin, public: true, fn: func(rc *requestContext, v variables) (any, error) {
			s, err := h.accounts.Login(v.str("email"), v.str("password"))
			if err != nil {
				return nil, err
			}
			setRefreshCookie(rc.c, s.RefreshToken, h.refreshTTL)
			return s.response(), nil
		}},
		"Register": {field: graphql.FieldRegister, public: true, fn: func(rc *requestContext, v variables) (any, error) {
			s, err := h.accounts.Register(v.str("name"), v.str("email"), v.str("password"))
			if err != nil {
				return nil, err
			}
			setRefreshCookie(rc.c, s.RefreshToken, h.refreshTTL)
			return s.response(), nil
		}},
		"Logout": {field: graphql.FieldLogout, public: true, fn: func(rc *requestContext, _ variables) (any, error) {
			h.accounts.Logout(rc.c.Cookies(RefreshCookie))
			clearRefreshCookie(rc.c)
			return true, nil
		}},
		"Me": {field: graphql.FieldMe, fn: func(rc *requestContext, _ variables) (any, error) {
			return newUserView(*rc.user), nil
		}},
		"GetAllUsers": {field: graphql.FieldUsers, fn: func(_ *requestContext, _ variables) (any, error) {
			return h.store.Users(), nil
		}},
		"MyWorkspaces": {field: graphql.FieldMyWorkspaces, fn: func(rc *requestContext, _ variables) (any, error) {
			return h.store.MyWorkspaces(rc.user.ID), nil
		}},
		"GetWorkspace": {field: graphql.FieldWorkspace, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.Workspace(rc.user.ID, v.str("id"))
		}},
		"CreateWorkspace": {field: graphql.FieldCreateWorkspace, fn: func(rc *requestContext, v variables) (any, error) {
			if strings.TrimSpace(v.str("name")) == "" {
				return nil, apperrors.NewValidationError("name is required", nil)
			}
			return h.store.CreateWorkspace(rc.user.ID, v.str("name"), v.opt("description")), nil
		}},
		"UpdateWorkspace": {field: graphql.FieldUpdateWorkspace, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.UpdateWorkspace(rc.user.ID, v.str("id"), v.opt("name"), v.opt("description"))
		}},
		"DeleteWorkspace": {field: graphql.FieldDeleteWorkspace, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.DeleteWorkspace(rc.user.ID, v.str("id"))
		}},
		"AddMember": {field: graphql.FieldAddMember, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.AddMember(rc.user.ID, v.str("workspaceId"), v.str("userId"), v.opt("role"))
		}},
		"RemoveMember": {field: graphql.FieldRemoveMember, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.RemoveMember(rc.user.ID, v.str("workspaceId"), v.str("userId"))
		}},
		"GetProject": {field: graphql.FieldProject, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.Project(rc.user.ID, v.str("projectId"))
		}},
		"CreateProject": {field: graphql.FieldCreateProject, fn: func(rc *requestContext, v variables) (any, error) {
			if strings.TrimSpace(v.str("name")) == "" {
				return nil, apperrors.NewValidationError("name is required", nil)
			}
			return h.store.CreateProject(rc.user.ID, v.str("workspaceId"), v.str("name"), v.opt("description"), v.opt("status"))
		}},
		"UpdateProject": {field: graphql.FieldUpdateProject, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.UpdateProject(rc.user.ID, v.str("id"), v.opt("name"), v.opt("description"), v.opt("status"))
		}},
		"DeleteProject": {field: graphql.FieldDeleteProject, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.DeleteProject(rc.user.ID, v.str("id"))
		}},
		"GetTask": {field: graphql.FieldTask, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.Task(rc.user.ID, v.str("id"))
		}},
		"AddTask": {field: graphql.FieldAddTask, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.AddTask(rc.user.ID, v.str("projectId"), v.taskFields())
		}},
		"UpdateTask": {field: graphql.FieldUpdateTask, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.UpdateTask(rc.user.ID, v.str("id"), v.taskFields())
		}},
		"DeleteTask": {field: graphql.FieldDeleteTask, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.DeleteTask(rc.user.ID, v.str("id"))
		}},
		"AssignTaskMember": {field: graphql.FieldAssignTaskMember, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.AssignTaskMember(rc.user.ID, v.str("taskId"), v.str("userId"))
		}},
		"RemoveTaskMember": {field: graphql.FieldRemoveTaskMember, fn: func(rc *requestContext, v variables) (any, error) {
			return h.store.RemoveTaskMember(rc.user.ID, v.str("taskId"), v.str("userId"))
		}},
	}
}
