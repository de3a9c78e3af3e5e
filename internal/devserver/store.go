package devserver

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spec-kit/collab-client/internal/domain"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// Member roles.
const (
	RoleOwner  = "OWNER"
	RoleMember = "MEMBER"
)

const codeForbidden = "FORBIDDEN"

type account struct {
	user         domain.User
	passwordHash string
}

type memberRecord struct {
	id     string
	userID string
	role   string
}

type workspaceRecord struct {
	id          string
	name        string
	description *string
	ownerID     string
	members     []memberRecord
	projectIDs  []string
	createdAt   time.Time
	updatedAt   time.Time
}

type projectRecord struct {
	id          string
	name        string
	description *string
	status      string
	workspaceID string
	taskIDs     []string
	createdAt   time.Time
	updatedAt   time.Time
}

type assigneeRecord struct {
	id     string
	userID string
}

type taskRecord struct {
	id          string
	title       string
	description *string
	status      string
	priority    string
	dueDate     *string
	projectID   string
	assignees   []assigneeRecord
	createdAt   time.Time
	updatedAt   time.Time
}

type refreshRecord struct {
	userID    string
	expiresAt time.Time
}

// Store keeps every dev backend entity in memory.
type Store struct {
	mu         sync.RWMutex
	accounts   map[string]*account
	byEmail    map[string]string
	workspaces map[string]*workspaceRecord
	projects   map[string]*projectRecord
	tasks      map[string]*taskRecord
	refresh    map[string]refreshRecord
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{
		accounts:   make(map[string]*account),
		byEmail:    make(map[string]string),
		workspaces: make(map[string]*workspaceRecord),
		projects:   make(map[string]*projectRecord),
		tasks:      make(map[string]*taskRecord),
		refresh:    make(map[string]refreshRecord),
	}
}

func forbidden(message string) error {
	return apperrors.NewDomainError(codeForbidden, message, http.StatusForbidden, nil)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// CreateAccount stores a new account; the email must be unused.
func (s *Store) CreateAccount(name, email, passwordHash string) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := normalizeEmail(email)
	if _, exists := s.byEmail[key]; exists {
		return nil, apperrors.NewAccountExists("an account with this email already exists")
	}
	now := time.Now().UTC()
	acc := &account{
		user:         domain.User{ID: uuid.NewString(), Name: name, Email: key, CreatedAt: &now},
		passwordHash: passwordHash,
	}
	s.accounts[acc.user.ID] = acc
	s.byEmail[key] = acc.user.ID
	user := acc.user
	return &user, nil
}

func (s *Store) accountByEmail(email string) (*account, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, false
	}
	acc := *s.accounts[id]
	return &acc, true
}

// User returns the user with id.
func (s *Store) User(id string) (*domain.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	acc, ok := s.accounts[id]
	if !ok {
		return nil, false
	}
	user := acc.user
	return &user, true
}

// Users lists every user by name.
func (s *Store) Users() []userView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]userView, 0, len(s.accounts))
	for _, acc := range s.accounts {
		out = append(out, newUserView(acc.user))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (s *Store) saveRefresh(token, userID string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.refresh[token] = refreshRecord{userID: userID, expiresAt: time.Now().Add(ttl)}
}

func (s *Store) refreshOwner(token string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.refresh[token]
	if !ok {
		return "", false
	}
	if time.Now().After(rec.expiresAt) {
		delete(s.refresh, token)
		return "", false
	}
	return rec.userID, true
}

func (s *Store) dropRefresh(token string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.refresh, token)
}

// Workspaces

func (s *Store) CreateWorkspace(ownerID, name string, description *string) workspaceView {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now().UTC()
	ws := &workspaceRecord{
		id:          uuid.NewString(),
		name:        name,
		description: description,
		ownerID:     ownerID,
		members:     []memberRecord{{id: uuid.NewString(), userID: ownerID, role: RoleOwner}},
		createdAt:   now,
		updatedAt:   now,
	}
	s.workspaces[ws.id] = ws
	return s.viewWorkspace(ws)
}

func (s *Store) MyWorkspaces(userID string) []workspaceView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []workspaceView{}
	for _, ws := range s.workspaces {
		if ws.isMember(userID) {
			out = append(out, s.viewWorkspace(ws))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func (s *Store) Workspace(userID, id string) (workspaceView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ws, err := s.memberWorkspace(userID, id)
	if err != nil {
		return workspaceView{}, err
	}
	return s.viewWorkspace(ws), nil
}

func (s *Store) UpdateWorkspace(userID, id string, name, description *string) (workspaceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.memberWorkspace(userID, id)
	if err != nil {
		return workspaceView{}, err
	}
	if name != nil {
		ws.name = *name
	}
	if description != nil {
		ws.description = description
	}
	ws.updatedAt = time.Now().UTC()
	return s.viewWorkspace(ws), nil
}

// DeleteWorkspace removes the workspace with its projects and tasks. Only the
// owner may delete.
func (s *Store) DeleteWorkspace(userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.memberWorkspace(userID, id)
	if err != nil {
		return false, err
	}
	if ws.ownerID != userID {
		return false, forbidden("only the owner can delete a workspace")
	}
	for _, pid := range ws.projectIDs {
		s.deleteProjectLocked(pid)
	}
	delete(s.workspaces, id)
	return true, nil
}

func (s *Store) AddMember(userID, workspaceID, memberID string, role *string) (workspaceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.memberWorkspace(userID, workspaceID)
	if err != nil {
		return workspaceView{}, err
	}
	if _, ok := s.accounts[memberID]; !ok {
		return workspaceView{}, apperrors.NewNotFound("user", map[string]any{"id": memberID})
	}
	if !ws.isMember(memberID) {
		r := RoleMember
		if role != nil && *role != "" {
			r = *role
		}
		ws.members = append(ws.members, memberRecord{id: uuid.NewString(), userID: memberID, role: r})
		ws.updatedAt = time.Now().UTC()
	}
	return s.viewWorkspace(ws), nil
}

func (s *Store) RemoveMember(userID, workspaceID, memberID string) (workspaceView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.memberWorkspace(userID, workspaceID)
	if err != nil {
		return workspaceView{}, err
	}
	if memberID == ws.ownerID {
		return workspaceView{}, forbidden("the owner cannot be removed")
	}
	kept := ws.members[:0:0]
	for _, m := range ws.members {
		if m.userID != memberID {
			kept = append(kept, m)
		}
	}
	ws.members = kept
	ws.updatedAt = time.Now().UTC()
	return s.viewWorkspace(ws), nil
}

// Projects

func (s *Store) CreateProject(userID, workspaceID, name string, description, status *string) (projectView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, err := s.memberWorkspace(userID, workspaceID)
	if err != nil {
		return projectView{}, err
	}
	now := time.Now().UTC()
	p := &projectRecord{
		id:          uuid.NewString(),
		name:        name,
		description: description,
		status:      domain.ProjectStatusActive,
		workspaceID: ws.id,
		createdAt:   now,
		updatedAt:   now,
	}
	if status != nil && *status != "" {
		p.status = *status
	}
	s.projects[p.id] = p
	ws.projectIDs = append(ws.projectIDs, p.id)
	return s.viewProject(p), nil
}

func (s *Store) Project(userID, id string) (projectView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, err := s.memberProject(userID, id)
	if err != nil {
		return projectView{}, err
	}
	return s.viewProject(p), nil
}

func (s *Store) UpdateProject(userID, id string, name, description, status *string) (projectView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.memberProject(userID, id)
	if err != nil {
		return projectView{}, err
	}
	if name != nil {
		p.name = *name
	}
	if description != nil {
		p.description = description
	}
	if status != nil {
		p.status = *status
	}
	p.updatedAt = time.Now().UTC()
	return s.viewProject(p), nil
}

func (s *Store) DeleteProject(userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.memberProject(userID, id)
	if err != nil {
		return false, err
	}
	if ws, ok := s.workspaces[p.workspaceID]; ok {
		ws.projectIDs = removeID(ws.projectIDs, id)
	}
	s.deleteProjectLocked(id)
	return true, nil
}

func (s *Store) deleteProjectLocked(id string) {
	p, ok := s.projects[id]
	if !ok {
		return
	}
	for _, tid := range p.taskIDs {
		delete(s.tasks, tid)
	}
	delete(s.projects, id)
}

// Tasks

// TaskFields carries optional task values taken from operation variables.
type TaskFields struct {
	Title       *string
	Description *string
	Status      *string
	Priority    *string
	DueDate     *string
	AssigneeID  *string
}

func (s *Store) AddTask(userID, projectID string, in TaskFields) (taskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, err := s.memberProject(userID, projectID)
	if err != nil {
		return taskView{}, err
	}
	if in.Title == nil || strings.TrimSpace(*in.Title) == "" {
		return taskView{}, apperrors.NewValidationError("title is required", map[string]any{"title": "title is required"})
	}
	now := time.Now().UTC()
	t := &taskRecord{
		id:        uuid.NewString(),
		title:     *in.Title,
		status:    domain.TaskStatusTodo,
		priority:  domain.TaskPriorityMedium,
		projectID: p.id,
		createdAt: now,
		updatedAt: now,
	}
	applyTaskFields(t, in)
	if in.AssigneeID != nil && *in.AssigneeID != "" {
		if _, ok := s.accounts[*in.AssigneeID]; !ok {
			return taskView{}, apperrors.NewNotFound("user", map[string]any{"id": *in.AssigneeID})
		}
		t.assignees = []assigneeRecord{{id: uuid.NewString(), userID: *in.AssigneeID}}
	}
	s.tasks[t.id] = t
	p.taskIDs = append(p.taskIDs, t.id)
	return s.viewTask(t), nil
}

func (s *Store) Task(userID, id string) (taskView, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, err := s.memberTask(userID, id)
	if err != nil {
		return taskView{}, err
	}
	return s.viewTask(t), nil
}

func (s *Store) UpdateTask(userID, id string, in TaskFields) (taskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.memberTask(userID, id)
	if err != nil {
		return taskView{}, err
	}
	if in.Title != nil {
		t.title = *in.Title
	}
	applyTaskFields(t, in)
	t.updatedAt = time.Now().UTC()
	return s.viewTask(t), nil
}

func (s *Store) DeleteTask(userID, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.memberTask(userID, id)
	if err != nil {
		return false, err
	}
	if p, ok := s.projects[t.projectID]; ok {
		p.taskIDs = removeID(p.taskIDs, id)
	}
	delete(s.tasks, id)
	return true, nil
}

// AssignTaskMember is idempotent; assigning a current assignee returns the
// task unchanged.
func (s *Store) AssignTaskMember(userID, taskID, assigneeID string) (taskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.memberTask(userID, taskID)
	if err != nil {
		return taskView{}, err
	}
	if _, ok := s.accounts[assigneeID]; !ok {
		return taskView{}, apperrors.NewNotFound("user", map[string]any{"id": assigneeID})
	}
	for _, a := range t.assignees {
		if a.userID == assigneeID {
			return s.viewTask(t), nil
		}
	}
	t.assignees = append(t.assignees, assigneeRecord{id: uuid.NewString(), userID: assigneeID})
	t.updatedAt = time.Now().UTC()
	return s.viewTask(t), nil
}

func (s *Store) RemoveTaskMember(userID, taskID, assigneeID string) (taskView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, err := s.memberTask(userID, taskID)
	if err != nil {
		return taskView{}, err
	}
	kept := t.assignees[:0:0]
	for _, a := range t.assignees {
		if a.userID != assigneeID {
			kept = append(kept, a)
		}
	}
	t.assignees = kept
	t.updatedAt = time.Now().UTC()
	return s.viewTask(t), nil
}

func applyTaskFields(t *taskRecord, in TaskFields) {
	if in.Description != nil {
		t.description = in.Description
	}
	if in.Status != nil {
		t.status = *in.Status
	}
	if in.Priority != nil {
		t.priority = *in.Priority
	}
	if in.DueDate != nil {
		t.dueDate = in.DueDate
	}
}

// access checks; callers hold s.mu

func (ws *workspaceRecord) isMember(userID string) bool {
	for _, m := range ws.members {
		if m.userID == userID {
			return true
		}
	}
	return false
}

func (s *Store) memberWorkspace(userID, id string) (*workspaceRecord, error) {
	ws, ok := s.workspaces[id]
	if !ok {
		return nil, apperrors.NewNotFound("workspace", map[string]any{"id": id})
	}
	if !ws.isMember(userID) {
		return nil, forbidden("not a member of this workspace")
	}
	return ws, nil
}

func (s *Store) memberProject(userID, id string) (*projectRecord, error) {
	p, ok := s.projects[id]
	if !ok {
		return nil, apperrors.NewNotFound("project", map[string]any{"id": id})
	}
	if _, err := s.memberWorkspace(userID, p.workspaceID); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) memberTask(userID, id string) (*taskRecord, error) {
	t, ok := s.tasks[id]
	if !ok {
		return nil, apperrors.NewNotFound("task", map[string]any{"id": id})
	}
	if _, err := s.memberProject(userID, t.projectID); err != nil {
		return nil, err
	}
	return t, nil
}

// views; callers hold s.mu

func newUserView(u domain.User) userView {
	return userView{ID: u.ID, Name: u.Name, Email: u.Email, CreatedAt: u.CreatedAt}
}

func (s *Store) viewUser(id string) userView {
	acc, ok := s.accounts[id]
	if !ok {
		return userView{ID: id}
	}
	return newUserView(acc.user)
}

func (s *Store) viewMembers(ws *workspaceRecord) []memberView {
	out := make([]memberView, 0, len(ws.members))
	for _, m := range ws.members {
		out = append(out, memberView{ID: m.id, Role: m.role, User: s.viewUser(m.userID)})
	}
	return out
}

func (s *Store) viewWorkspace(ws *workspaceRecord) workspaceView {
	out := workspaceView{
		ID:          ws.id,
		Name:        ws.name,
		Description: ws.description,
		Owner:       s.viewUser(ws.ownerID),
		Members:     s.viewMembers(ws),
		Projects:    make([]projectSummary, 0, len(ws.projectIDs)),
		CreatedAt:   ws.createdAt,
		UpdatedAt:   ws.updatedAt,
	}
	for _, pid := range ws.projectIDs {
		if p, ok := s.projects[pid]; ok {
			out.Projects = append(out.Projects, projectSummary{ID: p.id, Name: p.name, Description: p.description, Status: p.status})
		}
	}
	return out
}

func (s *Store) viewProject(p *projectRecord) projectView {
	out := projectView{
		ID:          p.id,
		Name:        p.name,
		Description: p.description,
		Status:      p.status,
		Members:     []memberView{},
		Tasks:       make([]taskView, 0, len(p.taskIDs)),
		CreatedAt:   p.createdAt,
		UpdatedAt:   p.updatedAt,
	}
	if ws, ok := s.workspaces[p.workspaceID]; ok {
		out.Workspace = &workspaceRef{ID: ws.id, Name: ws.name}
		out.Members = s.viewMembers(ws)
	}
	for _, tid := range p.taskIDs {
		if t, ok := s.tasks[tid]; ok {
			task := s.viewTask(t)
			task.Project = nil
			out.Tasks = append(out.Tasks, task)
		}
	}
	return out
}

func (s *Store) viewTask(t *taskRecord) taskView {
	out := taskView{
		ID:          t.id,
		Title:       t.title,
		Description: t.description,
		Status:      t.status,
		Priority:    t.priority,
		DueDate:     t.dueDate,
		Assignees:   make([]assigneeView, 0, len(t.assignees)),
		CreatedAt:   t.createdAt,
		UpdatedAt:   t.updatedAt,
	}
	if p, ok := s.projects[t.projectID]; ok {
		out.Project = &projectRef{ID: p.id, Name: p.name}
	}
	for _, a := range t.assignees {
		out.Assignees = append(out.Assignees, assigneeView{ID: a.id, User: s.viewUser(a.userID)})
	}
	return out
}

func removeID(ids []string, id string) []string {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
