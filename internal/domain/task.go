package domain

import "time"

// Task status and priority values.
const (
	TaskStatusTodo       = "TODO"
	TaskStatusInProgress = "IN_PROGRESS"
	TaskStatusDone       = "DONE"

	TaskPriorityLow    = "LOW"
	TaskPriorityMedium = "MEDIUM"
	TaskPriorityHigh   = "HIGH"
)

// Task is a unit of work inside a project.
type Task struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description *string        `json:"description,omitempty"`
	Status      string         `json:"status,omitempty"`
	Priority    string         `json:"priority,omitempty"`
	DueDate     *string        `json:"dueDate,omitempty"`
	Project     *Project       `json:"project,omitempty"`
	Assignees   []TaskAssignee `json:"assignees,omitempty"`
	CreatedAt   *time.Time     `json:"createdAt,omitempty"`
	UpdatedAt   *time.Time     `json:"updatedAt,omitempty"`
}

// TaskAssignee is the relationship record between a task and a user.
type TaskAssignee struct {
	ID   string `json:"id"`
	User *User  `json:"user,omitempty"`
}

// TaskInput carries the optional fields for addTask and updateTask.
type TaskInput struct {
	Title       string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *string
	AssigneeID  *string
}
