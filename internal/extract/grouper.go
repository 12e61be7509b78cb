package extract

import (
	"fmt"

	"github.com/mvp-joe/erlgraph/internal/erlang"
)

// ClauseGroup is all clauses of one function, keyed by (module, name,
// arity) and ordered exactly as they appear in source. Clause order is
// pattern-match precedence and must never be reordered.
type ClauseGroup struct {
	Module  string
	Name    string
	Arity   int
	Clauses []*erlang.FunClause
	// File is the parse result the clauses belong to.
	File *erlang.File
}

// ID returns the stable identity "module:name/arity".
func (g *ClauseGroup) ID() string {
	return fmt.Sprintf("%s:%s/%d", g.Module, g.Name, g.Arity)
}

// TokenRange returns the inclusive file-token index range covering all
// clauses, including the final terminator.
func (g *ClauseGroup) TokenRange() (from, to int) {
	from, _ = g.Clauses[0].Span()
	_, to = g.Clauses[len(g.Clauses)-1].Span()
	return from, to
}

// ByteRange returns the source byte range [start, end) of the group.
func (g *ClauseGroup) ByteRange() (start, end int) {
	from, to := g.TokenRange()
	return g.File.Tokens[from].Pos, g.File.Tokens[to].End()
}

// LineRange returns the first and last source line of the group.
func (g *ClauseGroup) LineRange() (first, last int) {
	from, to := g.TokenRange()
	return g.File.Tokens[from].Line, g.File.Tokens[to].Line
}

// NonContiguousClauseError reports clauses of one function separated
// by other declarations. Single-unit treatment assumes one contiguous
// clause run, so the group is skipped and siblings keep processing.
type NonContiguousClauseError struct {
	Module string
	Name   string
	Arity  int
}

func (e *NonContiguousClauseError) Error() string {
	return fmt.Sprintf("non-contiguous clauses for %s:%s/%d", e.Module, e.Name, e.Arity)
}

// Group partitions a file's top-level function clauses into clause
// groups keyed by (name, arity), preserving declaration order. Groups
// whose clauses are not contiguous are dropped and reported; valid
// sibling groups are still returned. Pure transformation, no side
// effects.
func Group(f *erlang.File) ([]*ClauseGroup, []error) {
	var groups []*ClauseGroup
	var errs []error

	seen := make(map[string]bool)
	invalid := make(map[string]bool)
	var current *ClauseGroup

	flush := func() {
		if current != nil {
			groups = append(groups, current)
			current = nil
		}
	}

	for _, form := range f.Forms {
		clause, ok := form.(*erlang.FunClause)
		if !ok {
			continue
		}

		key := fmt.Sprintf("%s/%d", clause.Name, clause.Arity())
		if current != nil && current.Name == clause.Name && current.Arity == clause.Arity() {
			current.Clauses = append(current.Clauses, clause)
			continue
		}

		flush()

		if seen[key] {
			// A second run of clauses for an already closed key.
			if !invalid[key] {
				invalid[key] = true
				errs = append(errs, &NonContiguousClauseError{Module: f.Module, Name: clause.Name, Arity: clause.Arity()})
			}
			continue
		}
		seen[key] = true

		current = &ClauseGroup{
			Module:  f.Module,
			Name:    clause.Name,
			Arity:   clause.Arity(),
			Clauses: []*erlang.FunClause{clause},
			File:    f,
		}
	}
	flush()

	// Drop any group later found non-contiguous.
	kept := groups[:0]
	for _, g := range groups {
		if invalid[fmt.Sprintf("%s/%d", g.Name, g.Arity)] {
			continue
		}
		kept = append(kept, g)
	}
	return kept, errs
}
