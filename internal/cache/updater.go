package cache

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/spec-kit/collab-client/internal/graphql"
	"github.com/spec-kit/collab-client/internal/observability"
)

// Update rules, also used as metric labels.
const (
	RuleAssignAppend = "assign_append"
	RuleReplace      = "replace"
	RuleEvict        = "evict"
	RuleAppendChild  = "append_child"
	RuleAppendRoot   = "append_root"
	RuleWriteRoot    = "write_root"
	RuleMerge        = "merge"
)

// Updater reconciles the graph with a response, keyed by the operation's root
// field. Every relationship it writes comes from the response payload.
type Updater struct {
	graph   *Graph
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewUpdater builds an updater over graph.
func NewUpdater(graph *Graph, metrics *observability.Metrics, logger *zap.Logger) *Updater {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Updater{graph: graph, metrics: metrics, logger: logger}
}

// Graph returns the graph the updater writes to.
func (u *Updater) Graph() *Graph {
	return u.graph
}

// Apply runs the rule for op against resp in a single graph update. A null or
// missing payload changes nothing.
func (u *Updater) Apply(op *graphql.Operation, resp *graphql.Response) error {
	if op == nil || resp == nil {
		return nil
	}
	value, ok := resp.Field(op.Field)
	if !ok {
		return nil
	}

	var rule string
	err := u.graph.Update(func(tx *Txn) error {
		var err error
		rule, err = u.apply(tx, op, value)
		return err
	})
	if err != nil {
		u.logger.Warn("cache update skipped", zap.String("operation", op.Name), zap.Error(err))
		return err
	}
	if rule != "" {
		u.metrics.RecordCacheUpdate(rule)
		u.logger.Debug("cache updated", zap.String("operation", op.Name), zap.String("rule", rule))
	}
	return nil
}

func (u *Updater) apply(tx *Txn, op *graphql.Operation, value any) (string, error) {
	switch op.Field {
	case graphql.FieldAssignTaskMember:
		return RuleAssignAppend, appendAssignee(tx, value)
	case graphql.FieldRemoveTaskMember, graphql.FieldAddMember, graphql.FieldRemoveMember:
		return RuleReplace, mergeEntity(tx, op.Field, value)
	case graphql.FieldDeleteTask:
		return RuleEvict, evict(tx, "Task", op.StringVar("id"), value)
	case graphql.FieldDeleteProject:
		return RuleEvict, evict(tx, "Project", op.StringVar("id"), value)
	case graphql.FieldDeleteWorkspace:
		return RuleEvict, evict(tx, "Workspace", op.StringVar("id"), value)
	case graphql.FieldAddTask:
		return RuleAppendChild, appendChild(tx, value, "Task", "project", "Project", "tasks")
	case graphql.FieldCreateProject:
		return RuleAppendChild, appendChild(tx, value, "Project", "workspace", "Workspace", "projects")
	case graphql.FieldCreateWorkspace:
		return RuleAppendRoot, appendRoot(tx, value, "Workspace", graphql.FieldMyWorkspaces)
	case graphql.FieldLogin, graphql.FieldRegister, graphql.FieldLogout:
		// the session service owns identity; tokens never enter the graph
		return "", nil
	}

	if op.Kind() == graphql.KindQuery {
		tx.Write(RootKey, RootField(op.Field, op.Variables), value)
		return RuleWriteRoot, nil
	}
	return RuleMerge, mergeEntity(tx, op.Field, value)
}

// appendAssignee adds the last assignee of the payload to the cached task
// unless a record for the same user is already there. Repeating the same
// assignment leaves the list unchanged.
func appendAssignee(tx *Txn, value any) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("assignTaskMember payload is %T", value)
	}
	taskID, ok := entityID(obj)
	if !ok {
		return fmt.Errorf("assignTaskMember payload has no id")
	}
	taskKey := EntityKey{Type: "Task", ID: taskID}

	if _, cached := tx.Get(taskKey); !cached {
		_, err := tx.Merge("Task", obj)
		return err
	}

	assignees, _ := obj["assignees"].([]any)
	rest := without(obj, "assignees")
	if _, err := tx.Merge("Task", rest); err != nil {
		return err
	}
	if len(assignees) == 0 {
		return nil
	}

	ref, ok := tx.Normalize("assignees", assignees[len(assignees)-1]).(Ref)
	if !ok {
		return fmt.Errorf("assignee payload is not an entity")
	}
	newUser := assigneeUser(tx, ref.Key)

	rec, _ := tx.Get(taskKey)
	existing, _ := rec["assignees"].([]any)
	for _, item := range existing {
		current, isRef := item.(Ref)
		if !isRef {
			continue
		}
		if current.Key == ref.Key || (newUser != "" && assigneeUser(tx, current.Key) == newUser) {
			return nil
		}
	}
	tx.Set(taskKey, "assignees", appendRef(existing, ref))
	return nil
}

func assigneeUser(tx *Txn, key EntityKey) string {
	rec, ok := tx.Get(key)
	if !ok {
		return ""
	}
	switch user := rec["user"].(type) {
	case Ref:
		return user.Key.ID
	case map[string]any:
		id, _ := entityID(user)
		return id
	}
	return ""
}

func mergeEntity(tx *Txn, field string, value any) error {
	switch v := value.(type) {
	case map[string]any:
		typ := tx.g.typeOf(field, v)
		if typ == "" {
			return fmt.Errorf("no type policy for %s", field)
		}
		_, err := tx.Merge(typ, v)
		return err
	case []any:
		for _, item := range v {
			if err := mergeEntity(tx, field, item); err != nil {
				return err
			}
		}
		return nil
	default:
		return nil
	}
}

func evict(tx *Txn, typ, id string, value any) error {
	if ok, isBool := value.(bool); isBool && !ok {
		return nil
	}
	if id == "" {
		return fmt.Errorf("delete %s without id", typ)
	}
	tx.Evict(EntityKey{Type: typ, ID: id})
	tx.GC()
	return nil
}

// appendChild merges the created entity and adds it to the parent's list
// when the parent named in the payload is cached.
func appendChild(tx *Txn, value any, childType, parentField, parentType, listField string) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%s payload is %T", childType, value)
	}

	var parentKey EntityKey
	parentCached := false
	if parent, ok := obj[parentField].(map[string]any); ok {
		if pid, ok := entityID(parent); ok {
			parentKey = EntityKey{Type: parentType, ID: pid}
			_, parentCached = tx.Get(parentKey)
		}
	}

	ref, err := tx.Merge(childType, obj)
	if err != nil {
		return err
	}
	if !parentCached {
		return nil
	}

	rec, _ := tx.Get(parentKey)
	list, _ := rec[listField].([]any)
	if containsRef(list, ref) {
		return nil
	}
	tx.Set(parentKey, listField, appendRef(list, ref))
	return nil
}

func appendRoot(tx *Txn, value any, typ, rootField string) error {
	obj, ok := value.(map[string]any)
	if !ok {
		return fmt.Errorf("%s payload is %T", typ, value)
	}
	ref, err := tx.Merge(typ, obj)
	if err != nil {
		return err
	}
	root, _ := tx.Get(RootKey)
	list, cached := root[rootField].([]any)
	if !cached || containsRef(list, ref) {
		return nil
	}
	tx.Set(RootKey, rootField, appendRef(list, ref))
	return nil
}

func without(obj map[string]any, field string) map[string]any {
	out := make(map[string]any, len(obj))
	for k, v := range obj {
		if k != field {
			out[k] = v
		}
	}
	return out
}

func containsRef(list []any, ref Ref) bool {
	for _, item := range list {
		if r, ok := item.(Ref); ok && r.Key == ref.Key {
			return true
		}
	}
	return false
}

// appendRef never writes into list's backing array, so copies handed out by
// Read stay stable.
func appendRef(list []any, ref Ref) []any {
	out := make([]any, 0, len(list)+1)
	out = append(out, list...)
	return append(out, ref)
}
