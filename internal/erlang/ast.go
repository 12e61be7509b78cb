package erlang

// The concrete syntax tree keeps token indices rather than byte offsets:
// every node records the range of tokens it covers so later stages can
// slice the file token stream without re-lexing.

// File is the parse result for one source file.
type File struct {
	Path string
	// Src is the raw file content the tokens index into.
	Src []byte
	// Module is the name from the -module attribute, or "" when absent.
	Module string
	// Tokens is the full token stream of the file, comments excluded.
	Tokens []Token
	// Forms are top-level declarations in source order. Attributes other
	// than -module are consumed but not represented.
	Forms []Form
}

// Form is a top-level declaration.
type Form interface {
	// Span returns the inclusive token index range of the form.
	Span() (from, to int)
}

// FunClause is a single clause of a function definition. Multi-clause
// functions yield one FunClause per alternative; grouping by (name,
// arity) happens downstream.
type FunClause struct {
	Name    string
	NameTok int
	Params  []Expr
	// Guards is a guard sequence: the outer slice is ';'-separated
	// alternatives, the inner slices are ','-separated conjunctions.
	// Nil when the clause has no 'when'.
	Guards [][]Expr
	Body   []Expr
	// From..To covers the clause including its ';' or '.' terminator.
	From, To int
	// Last reports whether the clause ended with '.' rather than ';'.
	Last bool
}

func (c *FunClause) Span() (int, int) { return c.From, c.To }

// Arity is the number of formal parameters.
func (c *FunClause) Arity() int { return len(c.Params) }

// Expr is an expression or pattern node.
type Expr interface {
	Span() (from, to int)
}

// Var is a variable reference or binding; "_" is the wildcard.
type Var struct {
	Tok  int
	Name string
}

// Atom is an atom in expression or pattern position.
type Atom struct {
	Tok  int
	Text string
}

// Literal is an integer, float, string, or character constant.
type Literal struct {
	Tok int
}

// Tuple is {E1, ..., En}.
type Tuple struct {
	Open, Close int
	Elems       []Expr
}

// List is [E1, ..., En | Tail]; Tail is nil for proper list syntax.
type List struct {
	Open, Close int
	Elems       []Expr
	Tail        Expr
}

// Binary is <<Seg1, ..., Segn>>. Segment size/type specifiers are kept
// as part of the segment expression tree.
type Binary struct {
	Open, Close int
	Segs        []Expr
}

// MapExpr is #{K => V, ...} construction or Base#{K := V} update.
type MapExpr struct {
	Hash, Close int
	Base        Expr
	Pairs       []MapPair
}

// MapPair is one association; Exact is true for ':=' and false for '=>'.
type MapPair struct {
	Key, Val Expr
	Exact    bool
}

// RecordExpr is #name{field = E, ...} construction or update, or the
// field access form Base#name.field (Field != "").
type RecordExpr struct {
	Hash, End int
	Base      Expr
	RecName   string
	Fields    []RecordField
	Field     string
}

// RecordField is one field = value association inside a record.
type RecordField struct {
	Name string
	Val  Expr
}

// Call is a function application. Fun is an atom for local calls, a
// Remote for module-qualified calls, or an arbitrary expression.
type Call struct {
	Fun         Expr
	Args        []Expr
	Open, Close int
}

// Remote is Module:Function, the callee of a remote call.
type Remote struct {
	Mod, Fun Expr
}

// BinOp is a binary operator application other than '=' and '!'.
type BinOp struct {
	Op    string
	OpTok int
	L, R  Expr
}

// UnOp is a unary operator application (-, +, not, bnot, catch).
type UnOp struct {
	Op    string
	OpTok int
	X     Expr
}

// Match is Pattern = Expr.
type Match struct {
	OpTok   int
	Pattern Expr
	Value   Expr
}

// Send is Dest ! Msg, represented as a two-argument construct rather
// than a generic operator so message-flow analysis can key on it.
type Send struct {
	OpTok     int
	Dest, Msg Expr
}

// CaseClause is one alternative inside case/receive/try-catch: a
// pattern, an optional guard sequence, and a body.
type CaseClause struct {
	Pattern Expr
	Guards  [][]Expr
	Body    []Expr
}

// Case is case Subject of Clauses end.
type Case struct {
	Kw, End int
	Subject Expr
	Clauses []*CaseClause
}

// IfClause is one guard sequence -> body alternative of an if.
type IfClause struct {
	Guards [][]Expr
	Body   []Expr
}

// If is if Clauses end.
type If struct {
	Kw, End int
	Clauses []*IfClause
}

// Receive is receive Clauses [after Timeout -> Body] end.
type Receive struct {
	Kw, End int
	Clauses []*CaseClause
	After   *AfterClause
}

// AfterClause is the timeout arm of a receive.
type AfterClause struct {
	Timeout Expr
	Body    []Expr
}

// FunExpr is an anonymous fun: fun(Args) [when G] -> Body; ... end.
// The Name/FunArity form (fun f/2, fun m:f/2) has nil Clauses.
type FunExpr struct {
	Kw, End  int
	Clauses  []*CaseClause
	Ref      Expr
	RefArity Expr
}

// Block is begin Body end.
type Block struct {
	Kw, End int
	Body    []Expr
}

// Try is try Body [of Clauses] catch CatchClauses [after AfterBody] end.
type Try struct {
	Kw, End      int
	Body         []Expr
	Clauses      []*CaseClause
	CatchClauses []*CaseClause
	AfterBody    []Expr
}

// Comprehension is a list or binary comprehension: [Template || Quals]
// or <<Template || Quals>>. Generators appear in Quals as BinOp "<-"
// (or "<=") with a pattern on the left.
type Comprehension struct {
	Open, Close int
	Template    Expr
	Quals       []Expr
}

// MacroRef is a preprocessor macro use: ?NAME or ?NAME(Args).
type MacroRef struct {
	Question, To int
	Name         string
	Args         []Expr
}

func (e *Var) Span() (int, int)        { return e.Tok, e.Tok }
func (e *Atom) Span() (int, int)       { return e.Tok, e.Tok }
func (e *Literal) Span() (int, int)    { return e.Tok, e.Tok }
func (e *Tuple) Span() (int, int)      { return e.Open, e.Close }
func (e *List) Span() (int, int)       { return e.Open, e.Close }
func (e *Binary) Span() (int, int)     { return e.Open, e.Close }
func (e *MapExpr) Span() (int, int)    { return spanFrom(e.Base, e.Hash), e.Close }
func (e *RecordExpr) Span() (int, int) { return spanFrom(e.Base, e.Hash), e.End }
func (e *Remote) Span() (int, int) {
	from, _ := e.Mod.Span()
	_, to := e.Fun.Span()
	return from, to
}
func (e *Call) Span() (int, int) {
	from, _ := e.Fun.Span()
	return from, e.Close
}
func (e *BinOp) Span() (int, int) {
	from, _ := e.L.Span()
	_, to := e.R.Span()
	return from, to
}
func (e *UnOp) Span() (int, int) {
	_, to := e.X.Span()
	return e.OpTok, to
}
func (e *Match) Span() (int, int) {
	from, _ := e.Pattern.Span()
	_, to := e.Value.Span()
	return from, to
}
func (e *Send) Span() (int, int) {
	from, _ := e.Dest.Span()
	_, to := e.Msg.Span()
	return from, to
}
func (e *Case) Span() (int, int)          { return e.Kw, e.End }
func (e *If) Span() (int, int)            { return e.Kw, e.End }
func (e *Receive) Span() (int, int)       { return e.Kw, e.End }
func (e *FunExpr) Span() (int, int)       { return e.Kw, e.End }
func (e *Block) Span() (int, int)         { return e.Kw, e.End }
func (e *Try) Span() (int, int)           { return e.Kw, e.End }
func (e *Comprehension) Span() (int, int) { return e.Open, e.Close }
func (e *MacroRef) Span() (int, int)      { return e.Question, e.To }

func spanFrom(base Expr, fallback int) int {
	if base != nil {
		from, _ := base.Span()
		return from
	}
	return fallback
}
