package devserver

import (
	"time"

	"github.com/spec-kit/collab-client/internal/graphql"
)

// Request and response payloads. List fields are always encoded, empty or
// not, so clients can treat them as authoritative.

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type registerRequest struct {
	Name     string `json:"name" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

// authResponse is returned by login and register, over REST and GraphQL.
type authResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
	User        userView  `json:"user"`
}

type refreshResponse struct {
	AccessToken string    `json:"accessToken"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

type graphQLError struct {
	Message    string         `json:"message"`
	Path       []string       `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

type graphQLResponse struct {
	Data   map[string]any `json:"data"`
	Errors []graphQLError `json:"errors,omitempty"`
}

type graphQLRequest = graphql.Request

type userView struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type memberView struct {
	ID   string   `json:"id"`
	Role string   `json:"role"`
	User userView `json:"user"`
}

type assigneeView struct {
	ID   string   `json:"id"`
	User userView `json:"user"`
}

type workspaceRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectRef struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type projectSummary struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Status      string  `json:"status"`
}

type workspaceView struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Description *string          `json:"description,omitempty"`
	Owner       userView         `json:"owner"`
	Members     []memberView     `json:"members"`
	Projects    []projectSummary `json:"projects"`
	CreatedAt   time.Time        `json:"createdAt"`
	UpdatedAt   time.Time        `json:"updatedAt"`
}

type taskView struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Status      string         `json:"status"`
	Priority    string         `json:"priority"`
	DueDate     *string        `json:"dueDate,omitempty"`
	Project     *projectRef    `json:"project,omitempty"`
	Assignees   []assigneeView `json:"assignees"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

type projectView struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description *string       `json:"description,omitempty"`
	Status      string        `json:"status"`
	Workspace   *workspaceRef `json:"workspace,omitempty"`
	Members     []memberView  `json:"members"`
	Tasks       []taskView    `json:"tasks"`
	CreatedAt   time.Time     `json:"createdAt"`
	UpdatedAt   time.Time     `json:"updatedAt"`
}
