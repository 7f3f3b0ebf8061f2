package workflow

import (
	"fmt"

	"github.com/roach88/tapflow/internal/join"
	"github.com/roach88/tapflow/internal/tasks"
)

// Validation error codes (E200-E299)
const (
	ErrDuplicateNode    = "E201" // node name declared twice
	ErrUnknownType      = "E202" // task type not registered
	ErrUnknownNode      = "E203" // reference to an undeclared node
	ErrInvalidJoin      = "E204" // join fields do not match its kind
	ErrUnknownSelector  = "E205" // switch selector not registered
	ErrDependencyCycle  = "E206" // depends_on graph has a cycle
	ErrDuplicateJoin    = "E207" // join name declared twice
	ErrInvalidJoinKind  = "E208" // unknown join kind
	ErrSelfDependency   = "E209" // node depends on itself
	ErrEmptyWorkflowRef = "E210" // empty node name in a reference
)

// ValidationError is one problem found in a definition.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Field, e.Message)
}

// Validate checks the cross references of def against itself and reg.
// Returns all errors found (does not fail-fast).
func Validate(def *Definition, reg *tasks.Registry) []ValidationError {
	var errs []ValidationError
	add := func(code, field, format string, args ...any) {
		errs = append(errs, ValidationError{Field: field, Message: fmt.Sprintf(format, args...), Code: code})
	}

	declared := make(map[string]bool, len(def.Nodes))
	for i, n := range def.Nodes {
		field := fmt.Sprintf("nodes[%d]", i)
		if declared[n.Name] {
			add(ErrDuplicateNode, field+".name", "node %q declared more than once", n.Name)
		}
		declared[n.Name] = true
		if _, ok := reg.Lookup(n.Type); !ok {
			add(ErrUnknownType, field+".type", "unknown task type %q", n.Type)
		}
	}

	ref := func(field, name string) {
		switch {
		case name == "":
			add(ErrEmptyWorkflowRef, field, "node name is empty")
		case !declared[name]:
			add(ErrUnknownNode, field, "unknown node %q", name)
		}
	}

	for i, n := range def.Nodes {
		for k, dep := range n.DependsOn {
			field := fmt.Sprintf("nodes[%d].depends_on[%d].node", i, k)
			if dep.Node == n.Name {
				add(ErrSelfDependency, field, "node %q depends on itself", n.Name)
				continue
			}
			ref(field, dep.Node)
		}
	}

	joinNames := make(map[string]bool, len(def.Joins))
	for i, jd := range def.Joins {
		field := fmt.Sprintf("joins[%d]", i)
		if jd.Name != "" {
			if joinNames[jd.Name] {
				add(ErrDuplicateJoin, field+".name", "join %q declared more than once", jd.Name)
			}
			joinNames[jd.Name] = true
		}

		kind, err := join.ParseKind(jd.Kind)
		if err != nil {
			add(ErrInvalidJoinKind, field+".kind", "%v", err)
			continue
		}
		for _, problem := range joinShape(kind, jd) {
			add(ErrInvalidJoin, field, "%s: %s", kind, problem)
		}
		if kind == join.KindSwitch && jd.Selector != "" {
			if _, err := reg.NewSelector(jd.Selector, jd.SelectorConfig); err != nil {
				add(ErrUnknownSelector, field+".selector", "%v", err)
			}
		}

		for k, name := range jd.Nodes {
			ref(fmt.Sprintf("%s.nodes[%d]", field, k), name)
		}
		for k, name := range jd.Sources {
			ref(fmt.Sprintf("%s.sources[%d]", field, k), name)
		}
		for k, name := range jd.Targets {
			ref(fmt.Sprintf("%s.targets[%d]", field, k), name)
		}
		if jd.Source != "" {
			ref(field+".source", jd.Source)
		}
		if jd.Target != "" {
			ref(field+".target", jd.Target)
		}
	}

	for _, scc := range cycles(dependencyGraph(def)) {
		add(ErrDependencyCycle, "depends_on", "dependency cycle: %s", formatPath(scc))
	}

	return errs
}

// joinShape lists the fields that are missing or not allowed for kind.
func joinShape(kind join.Kind, jd JoinDef) []string {
	var problems []string
	need := func(ok bool, msg string) {
		if !ok {
			problems = append(problems, msg)
		}
	}

	hasNodes := len(jd.Nodes) > 0
	hasSource := jd.Source != ""
	hasSources := len(jd.Sources) > 0
	hasTarget := jd.Target != ""
	hasTargets := len(jd.Targets) > 0

	switch kind {
	case join.KindSequence:
		need(len(jd.Nodes) >= 2, "needs at least two nodes")
		need(!hasSource && !hasSources && !hasTarget && !hasTargets, "takes only nodes")
	case join.KindFork:
		need(hasSource, "needs a source")
		need(hasTargets, "needs targets")
		need(!hasNodes && !hasSources && !hasTarget, "takes only source and targets")
	case join.KindMerge, join.KindSyncMerge:
		need(hasSources, "needs sources")
		need(hasTarget, "needs a target")
		need(!hasNodes && !hasSource && !hasTargets, "takes only sources and target")
	case join.KindSwitch:
		need(hasSource, "needs a source")
		need(hasTargets, "needs targets")
		need(jd.Selector != "", "needs a selector")
		need(!hasNodes && !hasSources && !hasTarget, "takes only source, targets and selector")
	case join.KindGate:
		need(hasSource, "needs a source")
		need(!hasNodes && !hasSources && !hasTargets, "takes only source and target")
	}
	if kind != join.KindSwitch {
		need(jd.Selector == "" && len(jd.SelectorConfig) == 0, "selector is only valid on switch joins")
	}
	if kind != join.KindGate {
		need(len(jd.Config) == 0, "config is only valid on gate joins")
	}
	return problems
}
