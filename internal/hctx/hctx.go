// Package hctx carries per-execution handler state through context so the
// worker runtime can capture progress and results after a handler returns.
package hctx

import "context"

// State holds handler-provided metadata for the task being executed.
type State struct {
	Progress int
	Result   []byte
}

// New creates a fresh handler state container.
func New() *State { return &State{} }

type ctxKey struct{}

// WithState returns a child context carrying the given handler state.
func WithState(parent context.Context, s *State) context.Context {
	return context.WithValue(parent, ctxKey{}, s)
}

// From extracts the handler state from context if present.
func From(ctx context.Context) (*State, bool) {
	v := ctx.Value(ctxKey{})
	if v == nil {
		return nil, false
	}
	st, ok := v.(*State)
	return st, ok
}
