package devserver

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/collab-client/internal/config"
	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
)

func testConfig() config.DevServerConfig {
	return config.DevServerConfig{
		JWTSecret:              "test-secret",
		AccessTokenTTLSeconds:  900,
		RefreshTokenTTLMinutes: 60,
		RotateWithinSeconds:    0,
		BcryptCost:             4,
	}
}

func do(t *testing.T, s *Server, req *http.Request) (*http.Response, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, body
}

func postJSON(t *testing.T, s *Server, path string, payload any, header http.Header) (*http.Response, []byte) {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	return do(t, s, req)
}

func execute(t *testing.T, s *Server, op *graphql.Operation, token string) (*http.Response, *graphql.Response) {
	t.Helper()
	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	resp, body := postJSON(t, s, "/graphql", op.Request(), header)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out graphql.Response
	require.NoError(t, json.Unmarshal(body, &out))
	return resp, &out
}

func register(t *testing.T, s *Server, name, email string) (authResponse, *http.Cookie) {
	t.Helper()
	resp, body := postJSON(t, s, "/auth/register", registerRequest{Name: name, Email: email, Password: "secret1"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(body))
	var out authResponse
	require.NoError(t, json.Unmarshal(body, &out))
	for _, c := range resp.Cookies() {
		if c.Name == RefreshCookie {
			return out, c
		}
	}
	t.Fatal("no refresh cookie")
	return out, nil
}

func errorBody(t *testing.T, body []byte) (string, string) {
	t.Helper()
	var out struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(body, &out))
	return out.Error.Code, out.Error.Message
}

func TestAuth_RegisterAndLogin(t *testing.T) {
	s := New(testConfig(), nil)

	reg, cookie := register(t, s, "Ada", "ada@example.com")
	assert.NotEmpty(t, reg.AccessToken)
	assert.Equal(t, "ada@example.com", reg.User.Email)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, "/", cookie.Path)

	resp, body := postJSON(t, s, "/auth/login", loginRequest{Email: "ada@example.com", Password: "secret1"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var login authResponse
	require.NoError(t, json.Unmarshal(body, &login))
	assert.Equal(t, reg.User.ID, login.User.ID)
}

func TestAuth_Rejections(t *testing.T) {
	s := New(testConfig(), nil)
	register(t, s, "Ada", "ada@example.com")

	tests := []struct {
		name    string
		path    string
		payload any
		status  int
		code    string
	}{
		{"wrong password", "/auth/login", loginRequest{Email: "ada@example.com", Password: "nope"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"unknown email", "/auth/login", loginRequest{Email: "bob@example.com", Password: "secret1"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"malformed login email", "/auth/login", loginRequest{Email: "ada", Password: "secret1"}, http.StatusUnauthorized, "INVALID_CREDENTIALS"},
		{"duplicate email", "/auth/register", registerRequest{Name: "Ada", Email: "ADA@example.com", Password: "secret1"}, http.StatusConflict, "ACCOUNT_EXISTS"},
		{"malformed email", "/auth/register", registerRequest{Name: "Bob", Email: "bob", Password: "secret1"}, http.StatusBadRequest, "VALIDATION_FAILED"},
		{"short password", "/auth/register", registerRequest{Name: "Bob", Email: "bob@example.com", Password: "abc"}, http.StatusBadRequest, "VALIDATION_FAILED"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			resp, body := postJSON(t, s, tc.path, tc.payload, nil)
			assert.Equal(t, tc.status, resp.StatusCode)
			code, msg := errorBody(t, body)
			assert.Equal(t, tc.code, code)
			assert.NotEmpty(t, msg)
		})
	}
}

func TestAuth_RefreshUsesCookieOnly(t *testing.T) {
	s := New(testConfig(), nil)
	reg, cookie := register(t, s, "Ada", "ada@example.com")

	header := http.Header{}
	header.Set("Authorization", "Bearer "+reg.AccessToken)
	resp, body := postJSON(t, s, "/auth/refresh", nil, header)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "bearer alone must not refresh")
	code, _ := errorBody(t, body)
	assert.Equal(t, "UNAUTHORIZED", code)

	header = http.Header{}
	header.Set("Cookie", cookie.Name+"="+cookie.Value)
	resp, body = postJSON(t, s, "/auth/refresh", nil, header)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var out refreshResponse
	require.NoError(t, json.Unmarshal(body, &out))
	assert.NotEmpty(t, out.AccessToken)
	assert.NotEqual(t, reg.AccessToken, out.AccessToken)
}

func TestGraphQL_AuthenticationRequired(t *testing.T) {
	s := New(testConfig(), nil)
	reg, _ := register(t, s, "Ada", "ada@example.com")

	_, out := execute(t, s, graphql.Me(), "")
	assert.True(t, out.HasErrorCode(graphql.CodeUnauthenticated))

	_, out = execute(t, s, graphql.Me(), "garbage")
	assert.True(t, out.HasErrorCode(graphql.CodeUnauthenticated))

	_, out = execute(t, s, graphql.Me(), reg.AccessToken)
	require.NoError(t, out.Err())
	var me domain.User
	found, err := out.Decode(graphql.FieldMe, &me)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, reg.User.ID, me.ID)

	assert.Equal(t, 1, s.ExpireTokens())
	_, out = execute(t, s, graphql.Me(), reg.AccessToken)
	assert.True(t, out.HasErrorCode(graphql.CodeUnauthenticated))
	assert.Equal(t, "access token expired", out.ErrorMessage(graphql.CodeUnauthenticated))
}

func TestGraphQL_RotatesNearExpiry(t *testing.T) {
	cfg := testConfig()
	cfg.RotateWithinSeconds = 3600
	s := New(cfg, nil)
	reg, _ := register(t, s, "Ada", "ada@example.com")

	resp, out := execute(t, s, graphql.Me(), reg.AccessToken)
	require.NoError(t, out.Err())
	rotated := resp.Header.Get(TokenHeader)
	require.NotEmpty(t, rotated)
	assert.NotEqual(t, reg.AccessToken, rotated)

	_, out = execute(t, s, graphql.Me(), rotated)
	assert.NoError(t, out.Err())
}

func TestGraphQL_LoginMutation(t *testing.T) {
	s := New(testConfig(), nil)
	register(t, s, "Ada", "ada@example.com")

	resp, out := execute(t, s, graphql.Login("ada@example.com", "secret1"), "")
	require.NoError(t, out.Err())
	var payload domain.AuthPayload
	_, err := out.Decode(graphql.FieldLogin, &payload)
	require.NoError(t, err)
	assert.NotEmpty(t, payload.AccessToken)
	assert.NotEmpty(t, resp.Cookies())

	_, out = execute(t, s, graphql.Login("ada@example.com", "wrong"), "")
	assert.Error(t, out.Err())
	assert.False(t, out.HasErrorCode(graphql.CodeUnauthenticated))
}

func TestGraphQL_TaskWorkflow(t *testing.T) {
	s := New(testConfig(), nil)
	ada, _ := register(t, s, "Ada", "ada@example.com")
	grace, _ := register(t, s, "Grace", "grace@example.com")
	token := ada.AccessToken

	_, out := execute(t, s, graphql.CreateWorkspace("Acme", nil), token)
	require.NoError(t, out.Err())
	var ws domain.Workspace
	_, err := out.Decode(graphql.FieldCreateWorkspace, &ws)
	require.NoError(t, err)

	_, out = execute(t, s, graphql.CreateProject(ws.ID, "Launch", nil, nil), token)
	require.NoError(t, out.Err())
	var project domain.Project
	_, err = out.Decode(graphql.FieldCreateProject, &project)
	require.NoError(t, err)
	assert.Equal(t, ws.ID, project.Workspace.ID)

	_, out = execute(t, s, graphql.AddTask(project.ID, domain.TaskInput{Title: "Write copy"}), token)
	require.NoError(t, out.Err())
	var task domain.Task
	_, err = out.Decode(graphql.FieldAddTask, &task)
	require.NoError(t, err)
	assert.Equal(t, project.ID, task.Project.ID)

	for i := 0; i < 2; i++ {
		_, out = execute(t, s, graphql.AssignTaskMember(task.ID, grace.User.ID), token)
		require.NoError(t, out.Err())
		_, err = out.Decode(graphql.FieldAssignTaskMember, &task)
		require.NoError(t, err)
		require.Len(t, task.Assignees, 1, "assignment is idempotent")
	}

	_, out = execute(t, s, graphql.RemoveTaskMember(task.ID, grace.User.ID), token)
	require.NoError(t, out.Err())
	assert.Contains(t, string(out.Data), `"assignees":[]`, "an empty list is sent, not omitted")

	_, out = execute(t, s, graphql.Project(project.ID), grace.AccessToken)
	assert.True(t, out.HasErrorCode(codeForbidden), "non-members are refused")

	_, out = execute(t, s, graphql.DeleteTask(task.ID), token)
	require.NoError(t, out.Err())
	var deleted bool
	_, err = out.Decode(graphql.FieldDeleteTask, &deleted)
	require.NoError(t, err)
	assert.True(t, deleted)

	_, out = execute(t, s, graphql.Task(task.ID), token)
	assert.True(t, out.HasErrorCode("NOT_FOUND"))
}

func TestGraphQL_UnknownOperation(t *testing.T) {
	s := New(testConfig(), nil)

	_, out := execute(t, s, graphql.NewOperation("x", "Nope", "query Nope { x }", nil), "")
	assert.True(t, out.HasErrorCode(codeUnknownOperation))
}

func TestHealth(t *testing.T) {
	s := New(testConfig(), nil)
	resp, body := do(t, s, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"alive"}`, string(body))

	resp, body = do(t, s, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	code, _ := errorBody(t, body)
	assert.Equal(t, "NOT_FOUND", code)
}
