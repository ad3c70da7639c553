// Package remediation executes approved remediation actions against the
// external systems they target.
package remediation

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	pipeerrors "github.com/infrainsight/infrainsight/internal/errors"
)

// Executor carries out one action type against one external system.
//
// Execute returns an error only for failures that prevent execution from
// starting at all (bad credentials, unreachable endpoint, malformed
// params). Failures of individual sub-items are captured inside the
// returned result and never surface as an error.
type Executor interface {
	ActionType() string
	Execute(ctx context.Context, params json.RawMessage) (json.RawMessage, error)
}

// Registry maps action types to executors. It is built once at startup
// and passed to the runner; there is no global registry.
type Registry struct {
	executors map[string]Executor
}

// NewRegistry builds a registry from the given executors. Duplicate
// action types are a programming error.
func NewRegistry(executors ...Executor) (*Registry, error) {
	r := &Registry{executors: make(map[string]Executor, len(executors))}
	for _, e := range executors {
		if _, dup := r.executors[e.ActionType()]; dup {
			return nil, fmt.Errorf("duplicate executor for action type %q", e.ActionType())
		}
		r.executors[e.ActionType()] = e
	}
	return r, nil
}

// Get returns the executor for an action type.
func (r *Registry) Get(actionType string) (Executor, error) {
	e, ok := r.executors[actionType]
	if !ok {
		return nil, pipeerrors.NewWithID(pipeerrors.KindNotFound, "dispatch_executor", actionType,
			fmt.Errorf("%w: no executor registered for action type %q", pipeerrors.ErrNotFound, actionType))
	}
	return e, nil
}

// ActionTypes returns the registered action types, sorted.
func (r *Registry) ActionTypes() []string {
	types := make([]string, 0, len(r.executors))
	for t := range r.executors {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func startupError(actionType string, err error) error {
	return pipeerrors.NewWithID(pipeerrors.KindExecutorStartup, "execute_action", actionType, err)
}
