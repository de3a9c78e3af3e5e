package graphql

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Error codes carried in extensions.code.
const (
	// CodeUnauthenticated marks expired or missing credentials.
	CodeUnauthenticated = "UNAUTHENTICATED"
	CodeForbidden       = "FORBIDDEN"
	CodeBadUserInput    = "BAD_USER_INPUT"
	CodeNotFound        = "NOT_FOUND"
	CodeAccountExists   = "ACCOUNT_EXISTS"
)

// Response is a GraphQL execution result.
type Response struct {
	Data       json.RawMessage `json:"data,omitempty"`
	Errors     []Error         `json:"errors,omitempty"`
	Extensions map[string]any  `json:"extensions,omitempty"`
}

// Error is one entry of the errors array.
type Error struct {
	Message    string         `json:"message"`
	Path       []any          `json:"path,omitempty"`
	Extensions map[string]any `json:"extensions,omitempty"`
}

// Code returns extensions.code or "".
func (e Error) Code() string {
	code, _ := e.Extensions["code"].(string)
	return code
}

// HasErrorCode reports whether any error carries code.
func (r *Response) HasErrorCode(code string) bool {
	if r == nil {
		return false
	}
	for _, e := range r.Errors {
		if e.Code() == code {
			return true
		}
	}
	return false
}

// ErrorMessage returns the message of the first error carrying code.
func (r *Response) ErrorMessage(code string) string {
	if r == nil {
		return ""
	}
	for _, e := range r.Errors {
		if e.Code() == code {
			return e.Message
		}
	}
	return ""
}

// Decode unmarshals data[field] into v. A missing or null field leaves v
// untouched and reports false.
func (r *Response) Decode(field string, v any) (bool, error) {
	if r == nil || len(r.Data) == 0 {
		return false, nil
	}
	var data map[string]json.RawMessage
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return false, fmt.Errorf("decode data: %w", err)
	}
	raw, ok := data[field]
	if !ok || string(raw) == "null" {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", field, err)
	}
	return true, nil
}

// Field returns data[field] decoded into generic JSON values.
func (r *Response) Field(field string) (any, bool) {
	var v any
	ok, err := r.Decode(field, &v)
	if err != nil || !ok {
		return nil, false
	}
	return v, true
}

// ResponseError wraps the errors array of a response that reached the server
// but failed to execute.
type ResponseError struct {
	Errors []Error
}

func (e *ResponseError) Error() string {
	msgs := make([]string, 0, len(e.Errors))
	for _, err := range e.Errors {
		msgs = append(msgs, err.Message)
	}
	return "graphql: " + strings.Join(msgs, "; ")
}

// Code returns the first error's extensions.code.
func (e *ResponseError) Code() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Code()
}

// Message returns the first error's message.
func (e *ResponseError) Message() string {
	if len(e.Errors) == 0 {
		return ""
	}
	return e.Errors[0].Message
}

// Err returns a *ResponseError when the response carries errors.
func (r *Response) Err() error {
	if r == nil || len(r.Errors) == 0 {
		return nil
	}
	return &ResponseError{Errors: r.Errors}
}
