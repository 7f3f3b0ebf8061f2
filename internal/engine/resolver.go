package engine

import (
	"context"
	"sync"

	"github.com/roach88/tapflow/internal/audit"
)

type depStatus int

const (
	depNotStarted depStatus = iota
	depRunning
	depComplete
	depFailed
)

type depState struct {
	status depStatus
	result *audit.Record
	err    error
}

// resolver tracks dependency completion per node for one run cycle.
//
// A node reached through several dependents runs once: later lookups see it
// complete and skip it. A failed node keeps its error and is never re-run
// within the cycle.
type resolver struct {
	mu     sync.Mutex
	states map[*Task]*depState
}

func newResolver() *resolver {
	return &resolver{states: make(map[*Task]*depState)}
}

func (r *resolver) status(node *Task) depState {
	r.mu.Lock()
	defer r.mu.Unlock()
	if st, ok := r.states[node]; ok {
		return *st
	}
	return depState{}
}

func (r *resolver) set(node *Task, st depState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states[node] = &st
}

// reset clears state for nodes, or for every node when none are given.
func (r *resolver) reset(nodes ...*Task) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(nodes) == 0 {
		clear(r.states)
		return
	}
	for _, n := range nodes {
		delete(r.states, n)
	}
}

type depFrame struct {
	node *Task
	args []any
	next int
}

// resolve runs every not-yet-complete dependency of node, dependencies of
// dependencies first, in declaration order. node itself is not invoked.
//
// The walk uses an explicit stack; a dependency found still running is a
// cycle. On failure every dependency on the current path is marked failed
// with the same error.
func (r *resolver) resolve(ctx context.Context, run func(context.Context, *Task, []any) (*audit.Record, error), node *Task) error {
	stack := []depFrame{{node: node}}

	fail := func(err error) error {
		for _, f := range stack[1:] {
			r.set(f.node, depState{status: depFailed, err: err})
		}
		return err
	}

	for len(stack) > 0 {
		top := &stack[len(stack)-1]
		deps := top.node.Dependencies()

		if top.next < len(deps) {
			dep := deps[top.next]
			top.next++

			st := r.status(dep.Node)
			switch st.status {
			case depComplete:
				continue
			case depFailed:
				return fail(st.err)
			case depRunning:
				return fail(NewCycleError(dep.Node.String()))
			}

			r.set(dep.Node, depState{status: depRunning})
			stack = append(stack, depFrame{node: dep.Node, args: dep.Args})
			continue
		}

		if len(stack) == 1 {
			return nil
		}

		frame := stack[len(stack)-1]
		rec, err := run(ctx, frame.node, frame.args)
		if err != nil {
			return fail(NewDependencyFailure(frame.node.String(), err))
		}
		r.set(frame.node, depState{status: depComplete, result: rec})
		stack = stack[:len(stack)-1]
	}
	return nil
}
