package graphql

import (
	"encoding/json"
	"net/http"
	"strings"
	"unicode"
)

// Kind is the GraphQL operation type.
type Kind string

const (
	KindQuery        Kind = "query"
	KindMutation     Kind = "mutation"
	KindSubscription Kind = "subscription"
)

// Operation is one outgoing query, mutation or subscription registration.
type Operation struct {
	// Field is the root field the operation selects, e.g. "assignTaskMember".
	Field string
	// Name is the document's operation name, e.g. "AssignTaskMember".
	Name      string
	Query     string
	Variables map[string]any
	// Header carries extra request headers. Authorization is always derived
	// from the credential store and overrides any value set here.
	Header http.Header
}

// NewOperation builds an operation from a document.
func NewOperation(field, name, query string, variables map[string]any) *Operation {
	if variables == nil {
		variables = map[string]any{}
	}
	return &Operation{
		Field:     field,
		Name:      name,
		Query:     query,
		Variables: variables,
		Header:    http.Header{},
	}
}

// Kind classifies the operation from its document.
func (o *Operation) Kind() Kind {
	return Classify(o.Query)
}

// SetHeader sets an extra header, allocating the map when needed.
func (o *Operation) SetHeader(key, value string) {
	if o.Header == nil {
		o.Header = http.Header{}
	}
	o.Header.Set(key, value)
}

// Authenticates reports whether the operation exchanges credentials for a
// token. Such operations are exempt from refresh handling.
func (o *Operation) Authenticates() bool {
	return o.Field == FieldLogin || o.Field == FieldRegister
}

// StringVar returns a string variable or "".
func (o *Operation) StringVar(name string) string {
	if o == nil || o.Variables == nil {
		return ""
	}
	s, _ := o.Variables[name].(string)
	return s
}

// Request is the JSON body sent over HTTP and inside stream subscribe messages.
type Request struct {
	Query         string         `json:"query"`
	OperationName string         `json:"operationName,omitempty"`
	Variables     map[string]any `json:"variables,omitempty"`
}

// Request returns the wire payload for the operation.
func (o *Operation) Request() Request {
	return Request{Query: o.Query, OperationName: o.Name, Variables: o.Variables}
}

// Body marshals the wire payload.
func (o *Operation) Body() ([]byte, error) {
	return json.Marshal(o.Request())
}

// Classify returns the kind of the first operation definition in document.
// Fragment definitions are skipped; an anonymous selection set is a query.
func Classify(document string) Kind {
	s := scanner{src: document}
	for {
		s.skipIgnored()
		if s.eof() {
			return KindQuery
		}
		if s.peek() == '{' {
			return KindQuery
		}
		word := s.name()
		switch word {
		case "query":
			return KindQuery
		case "mutation":
			return KindMutation
		case "subscription":
			return KindSubscription
		case "fragment":
			s.skipDefinition()
		default:
			return KindQuery
		}
	}
}

type scanner struct {
	src string
	pos int
}

func (s *scanner) eof() bool { return s.pos >= len(s.src) }

func (s *scanner) peek() byte { return s.src[s.pos] }

// skipIgnored skips whitespace, commas, BOMs and comments.
func (s *scanner) skipIgnored() {
	for !s.eof() {
		c := s.peek()
		switch {
		case c == '#':
			for !s.eof() && s.peek() != '\n' && s.peek() != '\r' {
				s.pos++
			}
		case c == ',' || c == ' ' || c == '\t' || c == '\n' || c == '\r':
			s.pos++
		case strings.HasPrefix(s.src[s.pos:], "\uFEFF"):
			s.pos += len("\uFEFF")
		default:
			return
		}
	}
}

func (s *scanner) name() string {
	start := s.pos
	for !s.eof() {
		c := rune(s.peek())
		if c == '_' || unicode.IsLetter(c) || (s.pos > start && unicode.IsDigit(c)) {
			s.pos++
			continue
		}
		break
	}
	if s.pos == start {
		// not a name; consume one byte so the caller makes progress
		s.pos++
	}
	return s.src[start:s.pos]
}

// skipDefinition advances past the next balanced selection set.
func (s *scanner) skipDefinition() {
	depth := 0
	for !s.eof() {
		switch c := s.peek(); c {
		case '#':
			s.skipIgnored()
			continue
		case '"':
			s.skipString()
			continue
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s.pos++
				return
			}
		}
		s.pos++
	}
}

func (s *scanner) skipString() {
	if strings.HasPrefix(s.src[s.pos:], `"""`) {
		end := strings.Index(s.src[s.pos+3:], `"""`)
		if end < 0 {
			s.pos = len(s.src)
			return
		}
		s.pos += 3 + end + 3
		return
	}
	s.pos++
	for !s.eof() {
		switch s.peek() {
		case '\\':
			s.pos += 2
			continue
		case '"':
			s.pos++
			return
		}
		s.pos++
	}
}
