package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/spec-kit/collab-client/internal/domain"
	"github.com/spec-kit/collab-client/internal/graphql"
	apperrors "github.com/spec-kit/collab-client/pkg/util"
)

// Authenticator exchanges credentials for an access token and identity.
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*domain.AuthPayload, error)
	Register(ctx context.Context, name, email, password string) (*domain.AuthPayload, error)
}

type graphQLAuthenticator struct {
	exec Executor
}

// NewGraphQLAuthenticator authenticates with the login and register mutations.
func NewGraphQLAuthenticator(exec Executor) Authenticator {
	return &graphQLAuthenticator{exec: exec}
}

func (a *graphQLAuthenticator) Login(ctx context.Context, email, password string) (*domain.AuthPayload, error) {
	payload, err := a.run(ctx, graphql.Login(email, password))
	if err != nil {
		var respErr *graphql.ResponseError
		if errors.As(err, &respErr) {
			return nil, apperrors.NewInvalidCredentials(respErr.Message())
		}
		return nil, err
	}
	return payload, nil
}

func (a *graphQLAuthenticator) Register(ctx context.Context, name, email, password string) (*domain.AuthPayload, error) {
	payload, err := a.run(ctx, graphql.Register(name, email, password))
	if err != nil {
		var respErr *graphql.ResponseError
		if errors.As(err, &respErr) {
			return nil, registerError(respErr.Code(), respErr.Message())
		}
		return nil, err
	}
	return payload, nil
}

func (a *graphQLAuthenticator) run(ctx context.Context, op *graphql.Operation) (*domain.AuthPayload, error) {
	resp, err := a.exec.Execute(ctx, op)
	if err != nil {
		return nil, err
	}
	var payload domain.AuthPayload
	if _, err := resp.Decode(op.Field, &payload); err != nil {
		return nil, apperrors.NewInternalError(err)
	}
	return &payload, nil
}

// registerError classifies a rejected registration. Anything that is not an
// email collision is reported as invalid input.
func registerError(code, message string) error {
	switch code {
	case graphql.CodeAccountExists, apperrors.CodeConflict:
		return apperrors.NewAccountExists(message)
	}
	if strings.Contains(strings.ToLower(message), "exist") {
		return apperrors.NewAccountExists(message)
	}
	return apperrors.NewValidationError(message, nil)
}

type restAuthenticator struct {
	baseURL string
	client  *http.Client
}

// NewRESTAuthenticator authenticates against POST {baseURL}/login and
// {baseURL}/register. client should share the cookie jar used for refresh so
// the refresh cookie set at login is kept.
func NewRESTAuthenticator(baseURL string, client *http.Client) Authenticator {
	if client == nil {
		client = http.DefaultClient
	}
	return &restAuthenticator{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type restErrorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *restAuthenticator) Login(ctx context.Context, email, password string) (*domain.AuthPayload, error) {
	status, body, err := a.post(ctx, "/login", map[string]string{"email": email, "password": password})
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK {
		_, msg := restError(body, status)
		return nil, apperrors.NewInvalidCredentials(msg)
	}
	return decodeAuthPayload(body)
}

func (a *restAuthenticator) Register(ctx context.Context, name, email, password string) (*domain.AuthPayload, error) {
	status, body, err := a.post(ctx, "/register", map[string]string{"name": name, "email": email, "password": password})
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK || status == http.StatusCreated:
		return decodeAuthPayload(body)
	case status == http.StatusConflict:
		_, msg := restError(body, status)
		return nil, apperrors.NewAccountExists(msg)
	case status >= http.StatusInternalServerError:
		_, msg := restError(body, status)
		return nil, apperrors.NewInternalError(errors.New(msg))
	default:
		code, msg := restError(body, status)
		return nil, registerError(code, msg)
	}
}

func (a *restAuthenticator) post(ctx context.Context, path string, payload any) (int, []byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("encode %s request: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewReader(raw))
	if err != nil {
		return 0, nil, fmt.Errorf("build %s request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, ctxErr
		}
		return 0, nil, apperrors.NewNetworkUnavailable(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, nil, apperrors.NewNetworkUnavailable(err)
	}
	return resp.StatusCode, body, nil
}

func restError(body []byte, status int) (string, string) {
	var parsed restErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Message != "" {
		return parsed.Error.Code, parsed.Error.Message
	}
	return "", http.StatusText(status)
}

func decodeAuthPayload(body []byte) (*domain.AuthPayload, error) {
	var payload domain.AuthPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, apperrors.NewInternalError(fmt.Errorf("decode auth response: %w", err))
	}
	return &payload, nil
}
