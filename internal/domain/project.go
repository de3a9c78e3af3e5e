package domain

import "time"

// ProjectStatus values used by the UI.
const (
	ProjectStatusActive    = "ACTIVE"
	ProjectStatusCompleted = "COMPLETED"
	ProjectStatusArchived  = "ARCHIVED"
)

// Project belongs to a workspace and owns tasks.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description *string           `json:"description,omitempty"`
	Status      string            `json:"status,omitempty"`
	Workspace   *Workspace        `json:"workspace,omitempty"`
	Members     []WorkspaceMember `json:"members,omitempty"`
	Tasks       []Task            `json:"tasks,omitempty"`
	CreatedAt   *time.Time        `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time        `json:"updatedAt,omitempty"`
}
