package dataflow

import "fmt"

// Role tags what a variable occurrence does at its position.
type Role int

const (
	// RoleBound is a binding introduced by a pattern (parameter, match
	// expression, case pattern).
	RoleBound Role = iota
	// RoleGuardRead is a read inside a guard sequence. Erlang guards
	// introduce no bindings, so these always resolve to parameters.
	RoleGuardRead
	// RoleBodyRead is a read in a clause body.
	RoleBodyRead
	// RoleSent is a read inside the message argument of a send.
	RoleSent
	// RoleReceived is a binding inside a receive clause pattern.
	RoleReceived
	// RoleMatchInput is a synthetic node standing for the value matched
	// against a compound pattern: one input fanning out to each
	// destructured leaf binding.
	RoleMatchInput
)

func (r Role) String() string {
	switch r {
	case RoleBound:
		return "bound-in-pattern"
	case RoleGuardRead:
		return "read-in-guard"
	case RoleBodyRead:
		return "read-in-body"
	case RoleSent:
		return "sent-in-message"
	case RoleReceived:
		return "received-in-pattern"
	case RoleMatchInput:
		return "match-input"
	}
	return "unknown"
}

// EdgeKind records how an edge was derived. Approximate kinds are kept
// apart from exact ones so certainty provenance survives into output
// filtering.
type EdgeKind int

const (
	// KindDestructure connects a synthetic match input to a leaf
	// binding it directly dominates.
	KindDestructure EdgeKind = iota
	// KindGuard connects a binding to a guard read.
	KindGuard
	// KindBody connects a binding to a body read.
	KindBody
	// KindMessage connects a sent message occurrence to a receive
	// pattern binding matched lexically within the same clause group.
	KindMessage
	// KindRecursive connects a recursive call argument to the parameter
	// bindings of the clauses it may dispatch to. Heuristic: static
	// analysis cannot know which clause the call selects.
	KindRecursive
)

func (k EdgeKind) String() string {
	switch k {
	case KindDestructure:
		return "destructure"
	case KindGuard:
		return "guard"
	case KindBody:
		return "body"
	case KindMessage:
		return "message"
	case KindRecursive:
		return "recursive"
	}
	return "unknown"
}

// Approximate reports whether the edge kind is a heuristic link rather
// than ground truth.
func (k EdgeKind) Approximate() bool { return k == KindRecursive }

// Occurrence is one lexical appearance of a variable (or a synthetic
// match input) at a specific token of a specific clause. Occurrences
// are clause-local: the same name in two clauses never aliases.
type Occurrence struct {
	// Index is the occurrence's rank in creation order.
	Index int
	// Name is the variable name, or "" for synthetic match inputs.
	Name string
	// Token is the file-level token index of the occurrence.
	Token int
	// Clause is the position of the owning clause within its group.
	Clause int
	Role   Role
}

// Edge is a directed flow: the value bound or observed at Source is
// consumed at Target. Endpoints are occurrence indices.
type Edge struct {
	Source int
	Target int
	Kind   EdgeKind
}

// ScopeError reports a variable read with no reaching binding in its
// clause. The occurrence is kept but excluded from edges; analysis of
// the rest of the group continues.
type ScopeError struct {
	Name   string
	Clause int
	Line   int
}

func (e *ScopeError) Error() string {
	return fmt.Sprintf("variable %s read before any binding in clause %d (line %d)", e.Name, e.Clause, e.Line)
}

// Result is the flow analysis of one clause group.
type Result struct {
	Occurrences []Occurrence
	Edges       []Edge
	ScopeErrors []*ScopeError
}
