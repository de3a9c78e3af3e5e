package cache

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// EntityKey identifies a normalized record.
type EntityKey struct {
	Type string
	ID   string
}

func (k EntityKey) String() string {
	return k.Type + ":" + k.ID
}

// RootKey holds root query fields.
var RootKey = EntityKey{Type: "Query", ID: "ROOT"}

// Ref points from one record to another.
type Ref struct {
	Key EntityKey
}

// Record is one normalized entity: field name to scalar, Ref, list or inline
// object.
type Record map[string]any

// TypePolicies maps a field name to the entity type its objects hold. An
// object carrying __typename overrides the policy.
type TypePolicies map[string]string

// DefaultTypePolicies covers every field of the collaboration API.
func DefaultTypePolicies() TypePolicies {
	policies := TypePolicies{}
	assign := func(typ string, fields ...string) {
		for _, f := range fields {
			policies[f] = typ
		}
	}
	assign("User", "me", "user", "users", "owner")
	assign("TaskAssignee", "assignees")
	assign("WorkspaceMember", "members")
	assign("Task", "task", "tasks", "addTask", "updateTask", "taskUpdated", "assignTaskMember", "removeTaskMember")
	assign("Project", "project", "projects", "createProject", "updateProject", "projectUpdated")
	assign("Workspace", "workspace", "myWorkspaces", "createWorkspace", "updateWorkspace", "workspaceUpdated",
		"addMember", "removeMember")
	return policies
}

// Graph is the normalized entity cache. All edits go through Update and run
// under one lock, so no reader sees a half-applied update.
type Graph struct {
	mu        sync.Mutex
	records   map[EntityKey]Record
	policies  TypePolicies
	watchers  map[EntityKey]map[uint64]chan struct{}
	nextWatch uint64
}

// NewGraph builds an empty graph with the root record present.
func NewGraph(policies TypePolicies) *Graph {
	if policies == nil {
		policies = DefaultTypePolicies()
	}
	return &Graph{
		records:  map[EntityKey]Record{RootKey: {}},
		policies: policies,
		watchers: make(map[EntityKey]map[uint64]chan struct{}),
	}
}

// Update runs fn with exclusive access. Watchers of every touched record are
// notified after fn returns.
func (g *Graph) Update(fn func(tx *Txn) error) error {
	g.mu.Lock()
	tx := &Txn{g: g, touched: make(map[EntityKey]struct{})}
	err := fn(tx)
	touched := tx.touched
	g.mu.Unlock()

	g.notify(touched)
	return err
}

// Read returns a copy of the normalized record.
func (g *Graph) Read(key EntityKey) (Record, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	rec, ok := g.records[key]
	if !ok {
		return nil, false
	}
	return copyValue(rec).(Record), true
}

// Has reports whether key is cached.
func (g *Graph) Has(key EntityKey) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.records[key]
	return ok
}

// Len counts records, the root included.
func (g *Graph) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.records)
}

// Resolve returns the record with references replaced by the records they
// point at. Cycles stop at the repeated entity's id.
func (g *Graph) Resolve(key EntityKey) (map[string]any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.records[key]; !ok {
		return nil, false
	}
	return g.resolveKey(key, map[EntityKey]bool{}), true
}

// ResolveRoot resolves one root field, e.g. "me" or `project({"projectId":"1"})`.
func (g *Graph) ResolveRoot(field string) (any, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.records[RootKey][field]
	if !ok {
		return nil, false
	}
	return g.resolveValue(v, map[EntityKey]bool{RootKey: true}), true
}

// Decode resolves key into v via its JSON form.
func (g *Graph) Decode(key EntityKey, v any) error {
	resolved, ok := g.Resolve(key)
	if !ok {
		return fmt.Errorf("cache: %s not found", key)
	}
	raw, err := json.Marshal(resolved)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return json.Unmarshal(raw, v)
}

// WriteRoot stores v, in its JSON form, as a root field.
func (g *Graph) WriteRoot(field string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", field, err)
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return fmt.Errorf("cache: decode %s: %w", field, err)
	}
	return g.Update(func(tx *Txn) error {
		tx.Write(RootKey, field, value)
		return nil
	})
}

// Reset drops every record and notifies all watchers.
func (g *Graph) Reset() {
	g.mu.Lock()
	touched := make(map[EntityKey]struct{}, len(g.records))
	for key := range g.records {
		touched[key] = struct{}{}
	}
	g.records = map[EntityKey]Record{RootKey: {}}
	g.mu.Unlock()

	g.notify(touched)
}

// Watch returns a channel that receives a signal after each update touching
// key. Signals coalesce; call the returned func to stop watching.
func (g *Graph) Watch(key EntityKey) (<-chan struct{}, func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nextWatch++
	id := g.nextWatch
	ch := make(chan struct{}, 1)
	if g.watchers[key] == nil {
		g.watchers[key] = make(map[uint64]chan struct{})
	}
	g.watchers[key][id] = ch

	return ch, func() {
		g.mu.Lock()
		defer g.mu.Unlock()
		delete(g.watchers[key], id)
		if len(g.watchers[key]) == 0 {
			delete(g.watchers, key)
		}
	}
}

func (g *Graph) notify(touched map[EntityKey]struct{}) {
	if len(touched) == 0 {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	for key := range touched {
		for _, ch := range g.watchers[key] {
			select {
			case ch <- struct{}{}:
			default:
			}
		}
	}
}

func (g *Graph) resolveKey(key EntityKey, path map[EntityKey]bool) map[string]any {
	rec, ok := g.records[key]
	if !ok {
		return nil
	}
	if path[key] {
		return map[string]any{"id": key.ID}
	}
	path[key] = true
	defer delete(path, key)

	out := make(map[string]any, len(rec))
	for field, v := range rec {
		out[field] = g.resolveValue(v, path)
	}
	return out
}

func (g *Graph) resolveValue(v any, path map[EntityKey]bool) any {
	switch val := v.(type) {
	case Ref:
		if resolved := g.resolveKey(val.Key, path); resolved != nil {
			return resolved
		}
		return nil
	case []any:
		out := make([]any, 0, len(val))
		for _, item := range val {
			out = append(out, g.resolveValue(item, path))
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = g.resolveValue(item, path)
		}
		return out
	default:
		return val
	}
}

func (g *Graph) typeOf(field string, obj map[string]any) string {
	if name, ok := obj["__typename"].(string); ok && name != "" {
		return name
	}
	return g.policies[baseField(field)]
}

// Txn is the view of the graph inside Update.
type Txn struct {
	g       *Graph
	touched map[EntityKey]struct{}
}

// Get returns the live record. Callers must not keep it past Update.
func (tx *Txn) Get(key EntityKey) (Record, bool) {
	rec, ok := tx.g.records[key]
	return rec, ok
}

// Merge normalizes obj as an entity of type typ and merges its fields into
// the stored record. Objects without an id are rejected.
func (tx *Txn) Merge(typ string, obj map[string]any) (Ref, error) {
	id, ok := entityID(obj)
	if !ok {
		return Ref{}, fmt.Errorf("cache: %s payload has no id", typ)
	}
	key := EntityKey{Type: typ, ID: id}

	fields := make(Record, len(obj))
	for field, v := range obj {
		if field == "__typename" {
			continue
		}
		fields[field] = tx.normalize(field, v)
	}

	rec, exists := tx.g.records[key]
	if !exists {
		rec = Record{}
		tx.g.records[key] = rec
	}
	for field, v := range fields {
		rec[field] = v
	}
	tx.touch(key)
	return Ref{Key: key}, nil
}

// Write normalizes value and stores it at key.field, creating the record if
// needed. Arguments in field, as in `task({"id":"1"})`, are ignored for the
// type policy lookup.
func (tx *Txn) Write(key EntityKey, field string, value any) {
	normalized := tx.normalize(field, value)
	tx.Set(key, field, normalized)
}

// Set stores an already-normalized value.
func (tx *Txn) Set(key EntityKey, field string, value any) {
	rec, ok := tx.g.records[key]
	if !ok {
		rec = Record{}
		tx.g.records[key] = rec
	}
	rec[field] = value
	tx.touch(key)
}

// Normalize converts a payload value, merging nested entities.
func (tx *Txn) Normalize(field string, value any) any {
	return tx.normalize(field, value)
}

// Evict removes key and every reference to it.
func (tx *Txn) Evict(key EntityKey) bool {
	if key == RootKey {
		return false
	}
	if _, ok := tx.g.records[key]; !ok {
		return false
	}
	delete(tx.g.records, key)
	tx.touch(key)

	for other, rec := range tx.g.records {
		changed := false
		for field, v := range rec {
			if stripped, ok := stripRef(v, key); ok {
				rec[field] = stripped
				changed = true
			}
		}
		if changed {
			tx.touch(other)
		}
	}
	return true
}

// GC deletes records unreachable from the root and returns how many went.
func (tx *Txn) GC() int {
	reachable := map[EntityKey]bool{RootKey: true}
	queue := []EntityKey{RootKey}
	for len(queue) > 0 {
		key := queue[0]
		queue = queue[1:]
		walkRefs(tx.g.records[key], func(ref Ref) {
			if !reachable[ref.Key] {
				reachable[ref.Key] = true
				queue = append(queue, ref.Key)
			}
		})
	}

	removed := 0
	for key := range tx.g.records {
		if !reachable[key] {
			delete(tx.g.records, key)
			tx.touch(key)
			removed++
		}
	}
	return removed
}

func (tx *Txn) touch(key EntityKey) {
	tx.touched[key] = struct{}{}
}

func (tx *Txn) normalize(field string, value any) any {
	switch v := value.(type) {
	case map[string]any:
		if typ := tx.g.typeOf(field, v); typ != "" {
			if ref, err := tx.Merge(typ, v); err == nil {
				return ref
			}
		}
		out := make(map[string]any, len(v))
		for k, child := range v {
			out[k] = tx.normalize(k, child)
		}
		return out
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = tx.normalize(field, item)
		}
		return out
	default:
		return v
	}
}

func entityID(obj map[string]any) (string, bool) {
	switch id := obj["id"].(type) {
	case string:
		return id, id != ""
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64), true
	case json.Number:
		return id.String(), true
	default:
		return "", false
	}
}

func baseField(field string) string {
	if i := strings.IndexByte(field, '('); i >= 0 {
		return field[:i]
	}
	return field
}

// RootField names a root query field with its arguments, matching how
// queries are written under RootKey.
func RootField(field string, variables map[string]any) string {
	if len(variables) == 0 {
		return field
	}
	args, err := json.Marshal(variables)
	if err != nil {
		return field
	}
	return field + "(" + string(args) + ")"
}

func stripRef(v any, target EntityKey) (any, bool) {
	switch val := v.(type) {
	case Ref:
		if val.Key == target {
			return nil, true
		}
	case []any:
		changed := false
		out := make([]any, 0, len(val))
		for _, item := range val {
			if ref, ok := item.(Ref); ok && ref.Key == target {
				changed = true
				continue
			}
			stripped, ok := stripRef(item, target)
			if ok {
				changed = true
			}
			out = append(out, stripped)
		}
		if changed {
			return out, true
		}
	case map[string]any:
		changed := false
		out := make(map[string]any, len(val))
		for k, item := range val {
			stripped, ok := stripRef(item, target)
			if ok {
				changed = true
			}
			out[k] = stripped
		}
		if changed {
			return out, true
		}
	}
	return v, false
}

func walkRefs(v any, visit func(Ref)) {
	switch val := v.(type) {
	case Ref:
		visit(val)
	case Record:
		for _, item := range val {
			walkRefs(item, visit)
		}
	case []any:
		for _, item := range val {
			walkRefs(item, visit)
		}
	case map[string]any:
		for _, item := range val {
			walkRefs(item, visit)
		}
	}
}

func copyValue(v any) any {
	switch val := v.(type) {
	case Record:
		out := make(Record, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = copyValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = copyValue(item)
		}
		return out
	default:
		return val
	}
}
