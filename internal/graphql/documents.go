package graphql

import "github.com/spec-kit/collab-client/internal/domain"

// Root field names. They are stable across client and server.
const (
	FieldLogin            = "login"
	FieldRegister         = "register"
	FieldLogout           = "logout"
	FieldMe               = "me"
	FieldUsers            = "users"
	FieldMyWorkspaces     = "myWorkspaces"
	FieldWorkspace        = "workspace"
	FieldProject          = "project"
	FieldTask             = "task"
	FieldAddTask          = "addTask"
	FieldUpdateTask       = "updateTask"
	FieldDeleteTask       = "deleteTask"
	FieldAssignTaskMember = "assignTaskMember"
	FieldRemoveTaskMember = "removeTaskMember"
	FieldCreateProject    = "createProject"
	FieldUpdateProject    = "updateProject"
	FieldDeleteProject    = "deleteProject"
	FieldCreateWorkspace  = "createWorkspace"
	FieldUpdateWorkspace  = "updateWorkspace"
	FieldDeleteWorkspace  = "deleteWorkspace"
	FieldAddMember        = "addMember"
	FieldRemoveMember     = "removeMember"
	FieldTaskUpdated      = "taskUpdated"
	FieldProjectUpdated   = "projectUpdated"
	FieldWorkspaceUpdated = "workspaceUpdated"
)

const userFields = `id name email`

const assigneeFields = `id user { ` + userFields + ` }`

const memberFields = `id role user { ` + userFields + ` }`

const taskFields = `id title description status priority dueDate createdAt updatedAt
      assignees { ` + assigneeFields + ` }`

const (
	loginDocument = `mutation Login($email: String!, $password: String!) {
  login(email: $email, password: $password) {
    accessToken
    user { ` + userFields + ` }
  }
}`

	registerDocument = `mutation Register($name: String!, $email: String!, $password: String!) {
  register(name: $name, email: $email, password: $password) {
    accessToken
    user { ` + userFields + ` }
  }
}`

	logoutDocument = `mutation Logout {
  logout
}`

	meDocument = `query Me {
  me { ` + userFields + ` createdAt }
}`

	usersDocument = `query GetAllUsers {
  users { ` + userFields + ` }
}`

	myWorkspacesDocument = `query MyWorkspaces {
  myWorkspaces {
    id name description createdAt updatedAt
    owner { ` + userFields + ` }
    members { ` + memberFields + ` }
    projects { id name status }
  }
}`

	workspaceDocument = `query GetWorkspace($id: ID!) {
  workspace(id: $id) {
    id name description createdAt updatedAt
    owner { ` + userFields + ` }
    members { ` + memberFields + ` }
    projects { id name status }
  }
}`

	projectDocument = `query GetProject($projectId: ID!) {
  project(projectId: $projectId) {
    id name description status createdAt updatedAt
    workspace { id name }
    members { ` + memberFields + ` }
    tasks {
      ` + taskFields + `
    }
  }
}`

	taskDocument = `query GetTask($id: ID!) {
  task(id: $id) {
    ` + taskFields + `
    project { id name workspace { id name } }
  }
}`

	addTaskDocument = `mutation AddTask($projectId: ID!, $title: String!, $description: String, $status: String, $priority: String, $dueDate: String, $assigneeId: ID) {
  addTask(projectId: $projectId, title: $title, description: $description, status: $status, priority: $priority, dueDate: $dueDate, assigneeId: $assigneeId) {
    ` + taskFields + `
    project { id }
  }
}`

	updateTaskDocument = `mutation UpdateTask($id: ID!, $title: String, $description: String, $status: String, $priority: String, $dueDate: String, $assigneeId: ID) {
  updateTask(id: $id, title: $title, description: $description, status: $status, priority: $priority, dueDate: $dueDate, assigneeId: $assigneeId) {
    id title description status priority dueDate updatedAt
  }
}`

	deleteTaskDocument = `mutation DeleteTask($id: ID!) {
  deleteTask(id: $id)
}`

	assignTaskMemberDocument = `mutation AssignTaskMember($taskId: ID!, $userId: ID!) {
  assignTaskMember(taskId: $taskId, userId: $userId) {
    id
    assignees { ` + assigneeFields + ` }
  }
}`

	removeTaskMemberDocument = `mutation RemoveTaskMember($taskId: ID!, $userId: ID!) {
  removeTaskMember(taskId: $taskId, userId: $userId) {
    id
    assignees { ` + assigneeFields + ` }
  }
}`

	createProjectDocument = `mutation CreateProject($workspaceId: ID!, $name: String!, $description: String, $status: String) {
  createProject(workspaceId: $workspaceId, name: $name, description: $description, status: $status) {
    id name description status createdAt
    workspace { id }
  }
}`

	updateProjectDocument = `mutation UpdateProject($id: ID!, $name: String, $description: String, $status: String) {
  updateProject(id: $id, name: $name, description: $description, status: $status) {
    id name description status updatedAt
  }
}`

	deleteProjectDocument = `mutation DeleteProject($id: ID!) {
  deleteProject(id: $id)
}`

	createWorkspaceDocument = `mutation CreateWorkspace($name: String!, $description: String) {
  createWorkspace(name: $name, description: $description) {
    id name description createdAt
    owner { ` + userFields + ` }
  }
}`

	updateWorkspaceDocument = `mutation UpdateWorkspace($id: ID!, $name: String, $description: String) {
  updateWorkspace(id: $id, name: $name, description: $description) {
    id name description updatedAt
  }
}`

	deleteWorkspaceDocument = `mutation DeleteWorkspace($id: ID!) {
  deleteWorkspace(id: $id)
}`

	addMemberDocument = `mutation AddMember($workspaceId: ID!, $userId: ID!, $role: String) {
  addMember(workspaceId: $workspaceId, userId: $userId, role: $role) {
    id
    members { ` + memberFields + ` }
  }
}`

	removeMemberDocument = `mutation RemoveMember($workspaceId: ID!, $userId: ID!) {
  removeMember(workspaceId: $workspaceId, userId: $userId) {
    id
    members { ` + memberFields + ` }
  }
}`

	taskUpdatedDocument = `subscription TaskUpdated($projectId: ID!) {
  taskUpdated(projectId: $projectId) {
    id title description status priority dueDate updatedAt
    assignees { ` + assigneeFields + ` }
  }
}`

	projectUpdatedDocument = `subscription ProjectUpdated($workspaceId: ID!) {
  projectUpdated(workspaceId: $workspaceId) {
    id name description status updatedAt
  }
}`

	workspaceUpdatedDocument = `subscription WorkspaceUpdated {
  workspaceUpdated {
    id name description updatedAt
    members { ` + memberFields + ` }
  }
}`
)

func Login(email, password string) *Operation {
	return NewOperation(FieldLogin, "Login", loginDocument, map[string]any{
		"email":    email,
		"password": password,
	})
}

func Register(name, email, password string) *Operation {
	return NewOperation(FieldRegister, "Register", registerDocument, map[string]any{
		"name":     name,
		"email":    email,
		"password": password,
	})
}

func Logout() *Operation {
	return NewOperation(FieldLogout, "Logout", logoutDocument, nil)
}

func Me() *Operation {
	return NewOperation(FieldMe, "Me", meDocument, nil)
}

func Users() *Operation {
	return NewOperation(FieldUsers, "GetAllUsers", usersDocument, nil)
}

func MyWorkspaces() *Operation {
	return NewOperation(FieldMyWorkspaces, "MyWorkspaces", myWorkspacesDocument, nil)
}

func Workspace(id string) *Operation {
	return NewOperation(FieldWorkspace, "GetWorkspace", workspaceDocument, map[string]any{"id": id})
}

func Project(id string) *Operation {
	return NewOperation(FieldProject, "GetProject", projectDocument, map[string]any{"projectId": id})
}

func Task(id string) *Operation {
	return NewOperation(FieldTask, "GetTask", taskDocument, map[string]any{"id": id})
}

func AddTask(projectID string, in domain.TaskInput) *Operation {
	vars := taskVars(in)
	vars["projectId"] = projectID
	return NewOperation(FieldAddTask, "AddTask", addTaskDocument, vars)
}

func UpdateTask(id string, in domain.TaskInput) *Operation {
	vars := taskVars(in)
	vars["id"] = id
	if in.Title == "" {
		delete(vars, "title")
	}
	return NewOperation(FieldUpdateTask, "UpdateTask", updateTaskDocument, vars)
}

func DeleteTask(id string) *Operation {
	return NewOperation(FieldDeleteTask, "DeleteTask", deleteTaskDocument, map[string]any{"id": id})
}

func AssignTaskMember(taskID, userID string) *Operation {
	return NewOperation(FieldAssignTaskMember, "AssignTaskMember", assignTaskMemberDocument, map[string]any{
		"taskId": taskID,
		"userId": userID,
	})
}

func RemoveTaskMember(taskID, userID string) *Operation {
	return NewOperation(FieldRemoveTaskMember, "RemoveTaskMember", removeTaskMemberDocument, map[string]any{
		"taskId": taskID,
		"userId": userID,
	})
}

func CreateProject(workspaceID, name string, description, status *string) *Operation {
	vars := map[string]any{"workspaceId": workspaceID, "name": name}
	setOptional(vars, "description", description)
	setOptional(vars, "status", status)
	return NewOperation(FieldCreateProject, "CreateProject", createProjectDocument, vars)
}

func UpdateProject(id string, name, description, status *string) *Operation {
	vars := map[string]any{"id": id}
	setOptional(vars, "name", name)
	setOptional(vars, "description", description)
	setOptional(vars, "status", status)
	return NewOperation(FieldUpdateProject, "UpdateProject", updateProjectDocument, vars)
}

func DeleteProject(id string) *Operation {
	return NewOperation(FieldDeleteProject, "DeleteProject", deleteProjectDocument, map[string]any{"id": id})
}

func CreateWorkspace(name string, description *string) *Operation {
	vars := map[string]any{"name": name}
	setOptional(vars, "description", description)
	return NewOperation(FieldCreateWorkspace, "CreateWorkspace", createWorkspaceDocument, vars)
}

func UpdateWorkspace(id string, name, description *string) *Operation {
	vars := map[string]any{"id": id}
	setOptional(vars, "name", name)
	setOptional(vars, "description", description)
	return NewOperation(FieldUpdateWorkspace, "UpdateWorkspace", updateWorkspaceDocument, vars)
}

func DeleteWorkspace(id string) *Operation {
	return NewOperation(FieldDeleteWorkspace, "DeleteWorkspace", deleteWorkspaceDocument, map[string]any{"id": id})
}

func AddMember(workspaceID, userID string, role *string) *Operation {
	vars := map[string]any{"workspaceId": workspaceID, "userId": userID}
	setOptional(vars, "role", role)
	return NewOperation(FieldAddMember, "AddMember", addMemberDocument, vars)
}

func RemoveMember(workspaceID, userID string) *Operation {
	return NewOperation(FieldRemoveMember, "RemoveMember", removeMemberDocument, map[string]any{
		"workspaceId": workspaceID,
		"userId":      userID,
	})
}

func TaskUpdated(projectID string) *Operation {
	return NewOperation(FieldTaskUpdated, "TaskUpdated", taskUpdatedDocument, map[string]any{"projectId": projectID})
}

func ProjectUpdated(workspaceID string) *Operation {
	return NewOperation(FieldProjectUpdated, "ProjectUpdated", projectUpdatedDocument, map[string]any{"workspaceId": workspaceID})
}

func WorkspaceUpdated() *Operation {
	return NewOperation(FieldWorkspaceUpdated, "WorkspaceUpdated", workspaceUpdatedDocument, nil)
}

func taskVars(in domain.TaskInput) map[string]any {
	vars := map[string]any{"title": in.Title}
	setOptional(vars, "description", in.Description)
	setOptional(vars, "status", in.Status)
	setOptional(vars, "priority", in.Priority)
	setOptional(vars, "dueDate", in.DueDate)
	setOptional(vars, "assigneeId", in.AssigneeID)
	return vars
}

func setOptional(vars map[string]any, key string, value *string) {
	if value != nil {
		vars[key] = *value
	}
}
