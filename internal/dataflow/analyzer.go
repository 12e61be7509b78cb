package dataflow

import (
	"sort"

	"github.com/mvp-joe/erlgraph/internal/erlang"
	"github.com/mvp-joe/erlgraph/internal/extract"
)

// Analyzer derives a symbolic variable flow graph for clause groups.
// Each clause is an independent analysis arena: bindings never leak
// between clauses except through tagged recursive-call edges.
type Analyzer struct {
	recursiveEdges bool
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithRecursiveEdges enables the approximate edges linking recursive
// call arguments to parameter bindings across clauses.
func WithRecursiveEdges(enabled bool) Option {
	return func(a *Analyzer) { a.recursiveEdges = enabled }
}

// New creates an Analyzer.
func New(opts ...Option) *Analyzer {
	a := &Analyzer{}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Analyze builds occurrences and flow edges for one clause group. The
// walk is two-pass: parameter patterns of every clause bind first so
// recursive-call edges can target any clause's parameters, then guards
// and bodies are analyzed clause by clause. Edge output is totally
// ordered, so identical input yields identical output.
func (a *Analyzer) Analyze(group *extract.ClauseGroup) *Result {
	run := &analysis{
		opts:       a,
		group:      group,
		res:        &Result{},
		occByToken: make(map[int]int),
		excluded:   make(map[int]bool),
	}

	run.bindParameters()
	run.analyzeClauses()
	run.linkMessages()
	run.finish()
	return run.res
}

type analysis struct {
	opts  *Analyzer
	group *extract.ClauseGroup
	res   *Result

	// occByToken maps a token index to the occurrence created at it.
	occByToken map[int]int
	// excluded marks occurrence indices hit by scope errors; they stay
	// in the occurrence list but produce no edges.
	excluded map[int]bool

	// paramLeaves[clause][param] lists the leaf binding occurrences
	// under each formal parameter, targets for recursive-call edges.
	paramLeaves [][][]int
	// paramScopes[clause] is the scope right after parameter binding.
	paramScopes []scope

	sends []pendingSend
	recvs []pendingRecv
}

// scope maps a variable name to its most recent binding occurrence.
type scope map[string]int

func (s scope) clone() scope {
	c := make(scope, len(s))
	for k, v := range s {
		c[k] = v
	}
	return c
}

// nameSet flattens a scope to the set of variable names it binds.
func nameSet(s scope) map[string]bool {
	names := make(map[string]bool, len(s))
	for name := range s {
		names[name] = true
	}
	return names
}

// pendingSend is a send expression awaiting a lexically matching
// receive within the same group.
type pendingSend struct {
	clause  int
	destKey string
	msg     erlang.Expr
}

// pendingRecv is a receive clause pattern; names is the set of
// variables in scope at the receive site, used to decide whether a
// send keyed on a variable destination is observable here.
type pendingRecv struct {
	clause  int
	pattern erlang.Expr
	names   map[string]bool
}

func (r *analysis) token(idx int) erlang.Token {
	return r.group.File.Tokens[idx]
}

func (r *analysis) addOcc(name string, tok, clause int, role Role) int {
	idx := len(r.res.Occurrences)
	r.res.Occurrences = append(r.res.Occurrences, Occurrence{
		Index:  idx,
		Name:   name,
		Token:  tok,
		Clause: clause,
		Role:   role,
	})
	r.occByToken[tok] = idx
	return idx
}

func (r *analysis) addEdge(source, target int, kind EdgeKind) {
	if r.excluded[source] || r.excluded[target] {
		return
	}
	r.res.Edges = append(r.res.Edges, Edge{Source: source, Target: target, Kind: kind})
}

// bindParameters is pass one: walk every clause's parameter patterns
// left to right, creating binding occurrences and destructuring edges.
func (r *analysis) bindParameters() {
	n := len(r.group.Clauses)
	r.paramLeaves = make([][][]int, n)
	r.paramScopes = make([]scope, n)

	for ci, clause := range r.group.Clauses {
		sc := scope{}
		r.paramLeaves[ci] = make([][]int, len(clause.Params))
		for pi, param := range clause.Params {
			r.paramLeaves[ci][pi] = r.bindPattern(param, sc, ci, -1, RoleBound)
		}
		r.paramScopes[ci] = sc
	}
}

// bindPattern walks a pattern tree. Every variable leaf becomes a
// binding occurrence; compound nodes get a synthetic match-input
// occurrence with one destructuring edge per leaf binding they
// directly dominate. Nested compounds fan out from their own inputs.
// Returns all leaf binding occurrences in the subtree, unused leaves
// included.
func (r *analysis) bindPattern(p erlang.Expr, sc scope, clause, parent int, role Role) []int {
	switch e := p.(type) {
	case *erlang.Var:
		if e.Name == "_" {
			return nil
		}
		occ := r.addOcc(e.Name, e.Tok, clause, role)
		if parent >= 0 {
			r.addEdge(parent, occ, KindDestructure)
		}
		sc[e.Name] = occ
		return []int{occ}

	case *erlang.Atom, *erlang.Literal, *erlang.MacroRef:
		return nil

	case *erlang.Tuple:
		input := r.addOcc("", e.Open, clause, RoleMatchInput)
		var leaves []int
		for _, el := range e.Elems {
			leaves = append(leaves, r.bindPattern(el, sc, clause, input, role)...)
		}
		return leaves

	case *erlang.List:
		input := r.addOcc("", e.Open, clause, RoleMatchInput)
		var leaves []int
		for _, el := range e.Elems {
			leaves = append(leaves, r.bindPattern(el, sc, clause, input, role)...)
		}
		if e.Tail != nil {
			leaves = append(leaves, r.bindPattern(e.Tail, sc, clause, input, role)...)
		}
		return leaves

	case *erlang.Binary:
		input := r.addOcc("", e.Open, clause, RoleMatchInput)
		var leaves []int
		for _, seg := range e.Segs {
			leaves = append(leaves, r.bindPattern(seg, sc, clause, input, role)...)
		}
		return leaves

	case *erlang.MapExpr:
		input := r.addOcc("", e.Hash, clause, RoleMatchInput)
		var leaves []int
		for _, pair := range e.Pairs {
			// Map pattern keys must already be bound; they are not
			// bindings and carry no occurrence here.
			leaves = append(leaves, r.bindPattern(pair.Val, sc, clause, input, role)...)
		}
		return leaves

	case *erlang.RecordExpr:
		input := r.addOcc("", e.Hash, clause, RoleMatchInput)
		var leaves []int
		for _, field := range e.Fields {
			leaves = append(leaves, r.bindPattern(field.Val, sc, clause, input, role)...)
		}
		return leaves

	case *erlang.Match:
		// Alias pattern P1 = P2: both sides bind against one value.
		leaves := r.bindPattern(e.Pattern, sc, clause, parent, role)
		return append(leaves, r.bindPattern(e.Value, sc, clause, parent, role)...)

	case *erlang.BinOp:
		if e.Op == ":" {
			// Binary segment Value:Size. The value binds; the size
			// reads a variable bound earlier in the pattern sequence.
			leaves := r.bindPattern(e.L, sc, clause, parent, role)
			r.walkExpr(e.R, sc, clause, RoleBodyRead, KindBody)
			return leaves
		}
		// Constant arithmetic or string concatenation inside patterns.
		leaves := r.bindPattern(e.L, sc, clause, parent, role)
		return append(leaves, r.bindPattern(e.R, sc, clause, parent, role)...)

	case *erlang.UnOp:
		return r.bindPattern(e.X, sc, clause, parent, role)

	case *erlang.Remote:
		// Class:Reason patterns in catch clauses.
		leaves := r.bindPattern(e.Mod, sc, clause, parent, role)
		return append(leaves, r.bindPattern(e.Fun, sc, clause, parent, role)...)
	}
	return nil
}

// analyzeClauses is pass two: guards then body of each clause, seeded
// with that clause's parameter scope.
func (r *analysis) analyzeClauses() {
	for ci, clause := range r.group.Clauses {
		sc := r.paramScopes[ci].clone()

		for _, conj := range clause.Guards {
			for _, g := range conj {
				r.walkExpr(g, sc, ci, RoleGuardRead, KindGuard)
			}
		}

		for _, e := range clause.Body {
			r.walkExpr(e, sc, ci, RoleBodyRead, KindBody)
		}
	}
}

// addRead records a variable read and its reaching-binding edge, or a
// scope error when nothing reaches.
func (r *analysis) addRead(name string, tok, clause int, sc scope, role Role, kind EdgeKind) {
	occ := r.addOcc(name, tok, clause, role)
	binding, ok := sc[name]
	if !ok {
		r.excluded[occ] = true
		r.res.ScopeErrors = append(r.res.ScopeErrors, &ScopeError{
			Name:   name,
			Clause: clause,
			Line:   r.token(tok).Line,
		})
		return
	}
	r.addEdge(binding, occ, kind)
}

// walkExpr analyzes an expression for reads, descending into compound
// and control-flow forms. readRole and kind carry the guard/body/sent
// distinction; everything else about the walk is shared.
func (r *analysis) walkExpr(x erlang.Expr, sc scope, clause int, readRole Role, kind EdgeKind) {
	switch e := x.(type) {
	case *erlang.Var:
		if e.Name == "_" {
			return
		}
		r.addRead(e.Name, e.Tok, clause, sc, readRole, kind)

	case *erlang.Atom, *erlang.Literal:

	case *erlang.MacroRef:
		for _, arg := range e.Args {
			r.walkExpr(arg, sc, clause, readRole, kind)
		}

	case *erlang.Tuple:
		for _, el := range e.Elems {
			r.walkExpr(el, sc, clause, readRole, kind)
		}

	case *erlang.List:
		for _, el := range e.Elems {
			r.walkExpr(el, sc, clause, readRole, kind)
		}
		if e.Tail != nil {
			r.walkExpr(e.Tail, sc, clause, readRole, kind)
		}

	case *erlang.Binary:
		for _, seg := range e.Segs {
			r.walkExpr(seg, sc, clause, readRole, kind)
		}

	case *erlang.MapExpr:
		if e.Base != nil {
			r.walkExpr(e.Base, sc, clause, readRole, kind)
		}
		for _, pair := range e.Pairs {
			r.walkExpr(pair.Key, sc, clause, readRole, kind)
			r.walkExpr(pair.Val, sc, clause, readRole, kind)
		}

	case *erlang.RecordExpr:
		if e.Base != nil {
			r.walkExpr(e.Base, sc, clause, readRole, kind)
		}
		for _, field := range e.Fields {
			r.walkExpr(field.Val, sc, clause, readRole, kind)
		}

	case *erlang.BinOp:
		r.walkExpr(e.L, sc, clause, readRole, kind)
		r.walkExpr(e.R, sc, clause, readRole, kind)

	case *erlang.UnOp:
		r.walkExpr(e.X, sc, clause, readRole, kind)

	case *erlang.Remote:
		r.walkExpr(e.Mod, sc, clause, readRole, kind)
		r.walkExpr(e.Fun, sc, clause, readRole, kind)

	case *erlang.Match:
		r.walkExpr(e.Value, sc, clause, readRole, kind)
		r.bindPattern(e.Pattern, sc, clause, -1, RoleBound)

	case *erlang.Send:
		r.walkExpr(e.Dest, sc, clause, readRole, kind)
		r.walkExpr(e.Msg, sc, clause, RoleSent, kind)
		r.sends = append(r.sends, pendingSend{
			clause:  clause,
			destKey: destinationKey(e.Dest),
			msg:     e.Msg,
		})

	case *erlang.Call:
		switch fn := e.Fun.(type) {
		case *erlang.Atom:
			// Local call: name carries no variable flow.
		case *erlang.Remote:
			r.walkExpr(fn, sc, clause, readRole, kind)
		default:
			r.walkExpr(fn, sc, clause, readRole, kind)
		}
		for _, arg := range e.Args {
			r.walkExpr(arg, sc, clause, readRole, kind)
		}
		r.linkRecursiveCall(e, clause)

	case *erlang.Case:
		r.walkExpr(e.Subject, sc, clause, readRole, kind)
		for _, cl := range e.Clauses {
			branch := sc.clone()
			r.bindPattern(cl.Pattern, branch, clause, -1, RoleBound)
			r.walkClauseTail(cl, branch, clause)
		}

	case *erlang.Receive:
		for _, cl := range e.Clauses {
			branch := sc.clone()
			r.bindPattern(cl.Pattern, branch, clause, -1, RoleReceived)
			r.recvs = append(r.recvs, pendingRecv{
				clause:  clause,
				pattern: cl.Pattern,
				names:   nameSet(branch),
			})
			r.walkClauseTail(cl, branch, clause)
		}
		if e.After != nil {
			after := sc.clone()
			r.walkExpr(e.After.Timeout, after, clause, RoleBodyRead, KindBody)
			for _, b := range e.After.Body {
				r.walkExpr(b, after, clause, RoleBodyRead, KindBody)
			}
		}

	case *erlang.If:
		for _, cl := range e.Clauses {
			branch := sc.clone()
			for _, conj := range cl.Guards {
				for _, g := range conj {
					r.walkExpr(g, branch, clause, RoleGuardRead, KindGuard)
				}
			}
			for _, b := range cl.Body {
				r.walkExpr(b, branch, clause, RoleBodyRead, KindBody)
			}
		}

	case *erlang.Try:
		inner := sc.clone()
		for _, b := range e.Body {
			r.walkExpr(b, inner, clause, RoleBodyRead, KindBody)
		}
		for _, cl := range e.Clauses {
			branch := inner.clone()
			r.bindPattern(cl.Pattern, branch, clause, -1, RoleBound)
			r.walkClauseTail(cl, branch, clause)
		}
		for _, cl := range e.CatchClauses {
			branch := sc.clone()
			r.bindPattern(cl.Pattern, branch, clause, -1, RoleBound)
			r.walkClauseTail(cl, branch, clause)
		}
		if len(e.AfterBody) > 0 {
			after := sc.clone()
			for _, b := range e.AfterBody {
				r.walkExpr(b, after, clause, RoleBodyRead, KindBody)
			}
		}

	case *erlang.Block:
		// begin..end shares the enclosing scope; bindings persist.
		for _, b := range e.Body {
			r.walkExpr(b, sc, clause, readRole, kind)
		}

	case *erlang.FunExpr:
		if e.Ref != nil {
			r.walkExpr(e.Ref, sc, clause, readRole, kind)
			if e.RefArity != nil {
				r.walkExpr(e.RefArity, sc, clause, readRole, kind)
			}
			return
		}
		for _, cl := range e.Clauses {
			closure := sc.clone()
			// The parser wraps fun parameters in a tuple node; unwrap
			// so plain parameters don't get a synthetic match input.
			if params, ok := cl.Pattern.(*erlang.Tuple); ok {
				for _, param := range params.Elems {
					r.bindPattern(param, closure, clause, -1, RoleBound)
				}
			} else {
				r.bindPattern(cl.Pattern, closure, clause, -1, RoleBound)
			}
			r.walkClauseTail(cl, closure, clause)
		}

	case *erlang.Comprehension:
		comp := sc.clone()
		for _, qual := range e.Quals {
			if gen, ok := qual.(*erlang.BinOp); ok && (gen.Op == "<-" || gen.Op == "<=") {
				r.walkExpr(gen.R, comp, clause, RoleBodyRead, KindBody)
				r.bindPattern(gen.L, comp, clause, -1, RoleBound)
				continue
			}
			r.walkExpr(qual, comp, clause, RoleBodyRead, KindBody)
		}
		r.walkExpr(e.Template, comp, clause, RoleBodyRead, KindBody)
	}
}

// walkClauseTail analyzes the guards and body of a case-like clause in
// its branch scope.
func (r *analysis) walkClauseTail(cl *erlang.CaseClause, branch scope, clause int) {
	for _, conj := range cl.Guards {
		for _, g := range conj {
			r.walkExpr(g, branch, clause, RoleGuardRead, KindGuard)
		}
	}
	for _, b := range cl.Body {
		r.walkExpr(b, branch, clause, RoleBodyRead, KindBody)
	}
}

// linkRecursiveCall emits approximate edges from a same-name same-arity
// call's arguments to the parameter bindings of every clause in the
// group, approximating control re-entry. The analyzer cannot know
// which clause the call dispatches to, so the edges are tagged
// KindRecursive and gated by configuration.
func (r *analysis) linkRecursiveCall(call *erlang.Call, clause int) {
	if !r.opts.recursiveEdges {
		return
	}
	name, ok := call.Fun.(*erlang.Atom)
	if !ok || name.Text != r.group.Name || len(call.Args) != r.group.Arity {
		return
	}
	for pi, arg := range call.Args {
		for _, tok := range collectVarTokens(arg) {
			src, ok := r.occByToken[tok]
			if !ok || r.excluded[src] {
				continue
			}
			for ci := range r.group.Clauses {
				// Calls reached during parameter binding see only the
				// clauses bound so far.
				if pi >= len(r.paramLeaves[ci]) {
					continue
				}
				for _, target := range r.paramLeaves[ci][pi] {
					r.addEdge(src, target, KindRecursive)
				}
			}
		}
	}
}

// linkMessages pairs pending sends with receive patterns. Only
// lexically observable pairs produce edges: the send destination must
// be self(), a literal atom, or a variable in scope at the receive.
// No match is not an error; most sends cross module boundaries.
func (r *analysis) linkMessages() {
	for _, recv := range r.recvs {
		for _, send := range r.sends {
			if !send.observableAt(recv) {
				continue
			}
			var edges []Edge
			if r.unify(send.msg, recv.pattern, &edges) {
				for _, e := range edges {
					r.addEdge(e.Source, e.Target, e.Kind)
				}
			}
		}
	}
}

func (s pendingSend) observableAt(recv pendingRecv) bool {
	switch {
	case s.destKey == "":
		return false
	case s.destKey == "self":
		return true
	case len(s.destKey) > 5 && s.destKey[:5] == "atom:":
		return true
	case len(s.destKey) > 4 && s.destKey[:4] == "var:":
		return recv.names[s.destKey[4:]]
	}
	return false
}

// unify structurally matches a sent message against a receive pattern,
// collecting edges from message variable occurrences to the pattern
// bindings they reach. Returns false when the shapes cannot match, in
// which case no edges are committed.
func (r *analysis) unify(msg, pat erlang.Expr, edges *[]Edge) bool {
	switch p := pat.(type) {
	case *erlang.Var:
		if p.Name == "_" {
			return true
		}
		target, ok := r.occByToken[p.Tok]
		if !ok {
			return true
		}
		for _, tok := range collectVarTokens(msg) {
			if src, ok := r.occByToken[tok]; ok {
				*edges = append(*edges, Edge{Source: src, Target: target, Kind: KindMessage})
			}
		}
		return true

	case *erlang.Atom:
		m, ok := msg.(*erlang.Atom)
		return ok && m.Text == p.Text

	case *erlang.Literal:
		m, ok := msg.(*erlang.Literal)
		if !ok {
			return false
		}
		mf, _ := m.Span()
		pf, _ := p.Span()
		return r.token(mf).Text == r.token(pf).Text

	case *erlang.Tuple:
		if mv, ok := msg.(*erlang.Var); ok {
			return r.unifyVarAgainstCompound(mv, p.Open, edges)
		}
		m, ok := msg.(*erlang.Tuple)
		if !ok || len(m.Elems) != len(p.Elems) {
			return false
		}
		for i := range p.Elems {
			if !r.unify(m.Elems[i], p.Elems[i], edges) {
				return false
			}
		}
		return true

	case *erlang.List:
		if mv, ok := msg.(*erlang.Var); ok {
			return r.unifyVarAgainstCompound(mv, p.Open, edges)
		}
		m, ok := msg.(*erlang.List)
		if !ok || len(m.Elems) != len(p.Elems) || (m.Tail == nil) != (p.Tail == nil) {
			return false
		}
		for i := range p.Elems {
			if !r.unify(m.Elems[i], p.Elems[i], edges) {
				return false
			}
		}
		if p.Tail != nil {
			return r.unify(m.Tail, p.Tail, edges)
		}
		return true

	case *erlang.Match:
		return r.unify(msg, p.Pattern, edges) && r.unify(msg, p.Value, edges)
	}
	// Maps, records, binaries: shape comparison is not attempted;
	// yield no edges rather than guessing.
	return false
}

// unifyVarAgainstCompound links a message variable matched against a
// compound pattern to the pattern's synthetic match input.
func (r *analysis) unifyVarAgainstCompound(mv *erlang.Var, openerTok int, edges *[]Edge) bool {
	if mv.Name == "_" {
		return true
	}
	src, srcOK := r.occByToken[mv.Tok]
	input, inputOK := r.occByToken[openerTok]
	if srcOK && inputOK {
		*edges = append(*edges, Edge{Source: src, Target: input, Kind: KindMessage})
	}
	return true
}

// finish deduplicates edges and fixes the total output order: source
// token, then target token, then kind. Identical input must produce
// identical edge sequences for corpus diffing.
func (r *analysis) finish() {
	seen := make(map[Edge]bool, len(r.res.Edges))
	unique := r.res.Edges[:0]
	for _, e := range r.res.Edges {
		if seen[e] {
			continue
		}
		seen[e] = true
		unique = append(unique, e)
	}
	r.res.Edges = unique

	occs := r.res.Occurrences
	sort.SliceStable(r.res.Edges, func(i, j int) bool {
		a, b := r.res.Edges[i], r.res.Edges[j]
		if occs[a.Source].Token != occs[b.Source].Token {
			return occs[a.Source].Token < occs[b.Source].Token
		}
		if occs[a.Target].Token != occs[b.Target].Token {
			return occs[a.Target].Token < occs[b.Target].Token
		}
		return a.Kind < b.Kind
	})
}

// destinationKey classifies a send destination for lexical matching.
func destinationKey(dest erlang.Expr) string {
	switch d := dest.(type) {
	case *erlang.Var:
		if d.Name == "_" {
			return ""
		}
		return "var:" + d.Name
	case *erlang.Atom:
		return "atom:" + d.Text
	case *erlang.Call:
		if fn, ok := d.Fun.(*erlang.Atom); ok && fn.Text == "self" && len(d.Args) == 0 {
			return "self"
		}
	}
	return ""
}

// collectVarTokens gathers the token indices of every named variable
// in an expression subtree, in token order.
func collectVarTokens(x erlang.Expr) []int {
	var toks []int
	var walk func(erlang.Expr)
	walk = func(e erlang.Expr) {
		switch n := e.(type) {
		case *erlang.Var:
			if n.Name != "_" {
				toks = append(toks, n.Tok)
			}
		case *erlang.Tuple:
			for _, el := range n.Elems {
				walk(el)
			}
		case *erlang.List:
			for _, el := range n.Elems {
				walk(el)
			}
			if n.Tail != nil {
				walk(n.Tail)
			}
		case *erlang.Binary:
			for _, seg := range n.Segs {
				walk(seg)
			}
		case *erlang.MapExpr:
			if n.Base != nil {
				walk(n.Base)
			}
			for _, pair := range n.Pairs {
				walk(pair.Key)
				walk(pair.Val)
			}
		case *erlang.RecordExpr:
			if n.Base != nil {
				walk(n.Base)
			}
			for _, f := range n.Fields {
				walk(f.Val)
			}
		case *erlang.BinOp:
			walk(n.L)
			walk(n.R)
		case *erlang.UnOp:
			walk(n.X)
		case *erlang.Match:
			walk(n.Pattern)
			walk(n.Value)
		case *erlang.Send:
			walk(n.Dest)
			walk(n.Msg)
		case *erlang.Call:
			walk(n.Fun)
			for _, a := range n.Args {
				walk(a)
			}
		case *erlang.Remote:
			walk(n.Mod)
			walk(n.Fun)
		case *erlang.MacroRef:
			for _, a := range n.Args {
				walk(a)
			}
		}
		// Control-flow forms are deliberately not descended: a call
		// argument or message containing case/receive contributes flow
		// through its own analysis, not through this collection.
	}
	walk(x)
	sort.Ints(toks)
	return toks
}
