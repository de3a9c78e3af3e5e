package domain

import "time"

// Workspace groups projects and members.
type Workspace struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Owner       *User             `json:"owner,omitempty"`
	Members     []WorkspaceMember `json:"members,omitempty"`
	Projects    []Project         `json:"projects,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}

// WorkspaceMember links a user to a workspace with a role.
type WorkspaceMember struct {
	ID   string `json:"id"`
	Role string `json:"role,omitempty"`
	User *User  `json:"user,omitempty"`
}
