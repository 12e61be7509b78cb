package erlang

import (
	"fmt"
)

// Parse lexes and parses one source file into a concrete syntax tree.
// Preprocessor attributes and comments are skipped without producing
// tree nodes; the -module attribute is captured, everything else the
// parser needs is the ordered sequence of function clauses.
func Parse(path string, src []byte) (*File, error) {
	tokens, err := Lex(path, src)
	if err != nil {
		return nil, err
	}

	p := &parser{file: path, toks: tokens}
	f := &File{Path: path, Src: src, Tokens: tokens}

	for !p.eof() {
		switch {
		case p.cur().IsOp("-"):
			name, nameArg, err := p.parseAttribute()
			if err != nil {
				return nil, err
			}
			if name == "module" && nameArg != "" {
				f.Module = nameArg
			}
		case p.cur().Kind == KindAtom:
			clause, err := p.parseFunClause()
			if err != nil {
				return nil, err
			}
			f.Forms = append(f.Forms, clause)
		default:
			return nil, p.errorf("expected attribute or function clause, found %q", p.cur().Text)
		}
	}
	return f, nil
}

type parser struct {
	file string
	toks []Token
	pos  int
	// binSeg suppresses ':' as a remote qualifier while a binary
	// segment is being parsed, leaving it for the size specifier.
	// Parenthesized subexpressions lift the suppression.
	binSeg bool
}

func (p *parser) eof() bool { return p.pos >= len(p.toks) }

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) at(text string) bool {
	return !p.eof() && p.cur().IsOp(text)
}

func (p *parser) atKw(word string) bool {
	return !p.eof() && p.cur().IsKeyword(word)
}

func (p *parser) advance() Token {
	t := p.toks[p.pos]
	p.pos++
	return t
}

func (p *parser) errorf(format string, args ...interface{}) error {
	line, col := 0, 0
	if !p.eof() {
		line, col = p.cur().Line, p.cur().Col
	} else if len(p.toks) > 0 {
		last := p.toks[len(p.toks)-1]
		line, col = last.Line, last.Col
	}
	return &ParseError{File: p.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (p *parser) expectOp(text string) (Token, error) {
	if p.eof() {
		return Token{}, p.errorf("unexpected end of file, expected %q", text)
	}
	if !p.cur().IsOp(text) {
		return Token{}, p.errorf("expected %q, found %q", text, p.cur().Text)
	}
	return p.advance(), nil
}

// parseAttribute consumes a '-name(...)' form through its terminating
// dot. Only the first atom argument is extracted, which is all the
// -module attribute needs; -export, -spec, -define and the rest are
// skipped wholesale.
func (p *parser) parseAttribute() (name, firstAtomArg string, err error) {
	p.advance() // '-'
	if p.eof() || p.cur().Kind != KindAtom {
		return "", "", p.errorf("expected attribute name after '-'")
	}
	name = p.advance().Text

	sawParen := false
	for !p.eof() {
		t := p.advance()
		if t.Kind == KindDot {
			return name, firstAtomArg, nil
		}
		if t.IsOp("(") && !sawParen {
			sawParen = true
			if !p.eof() && p.cur().Kind == KindAtom {
				firstAtomArg = p.cur().Text
			}
		}
	}
	return "", "", p.errorf("unterminated -%s attribute", name)
}

// parseFunClause parses one clause: name(Patterns) [when Guards] ->
// Body followed by ';' or '.'.
func (p *parser) parseFunClause() (*FunClause, error) {
	from := p.pos
	nameTok := p.advance()

	clause := &FunClause{Name: nameTok.Text, NameTok: from, From: from}

	if _, err := p.expectOp("("); err != nil {
		return nil, err
	}
	params, err := p.parseExprList(")")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp(")"); err != nil {
		return nil, err
	}
	clause.Params = params

	if p.atKw("when") {
		p.advance()
		clause.Guards, err = p.parseGuards()
		if err != nil {
			return nil, err
		}
	}

	if _, err := p.expectOp("->"); err != nil {
		return nil, err
	}

	clause.Body, err = p.parseExprSeq()
	if err != nil {
		return nil, err
	}

	if p.eof() {
		return nil, p.errorf("unterminated clause for %s/%d", clause.Name, len(clause.Params))
	}
	term := p.cur()
	switch {
	case term.Kind == KindDot:
		clause.Last = true
	case term.IsOp(";"):
		clause.Last = false
	default:
		return nil, p.errorf("expected ';' or '.' after clause body, found %q", term.Text)
	}
	p.advance()
	clause.To = p.pos - 1
	return clause, nil
}

// parseGuards parses a guard sequence up to (not including) '->'.
func (p *parser) parseGuards() ([][]Expr, error) {
	var guards [][]Expr
	for {
		conj, err := p.parseConjunction()
		if err != nil {
			return nil, err
		}
		guards = append(guards, conj)
		if !p.at(";") {
			return guards, nil
		}
		p.advance()
	}
}

func (p *parser) parseConjunction() ([]Expr, error) {
	var conj []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		conj = append(conj, e)
		if !p.at(",") {
			return conj, nil
		}
		p.advance()
	}
}

// parseExprSeq parses a comma-separated expression sequence, leaving
// the terminator for the caller.
func (p *parser) parseExprSeq() ([]Expr, error) {
	var seq []Expr
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		seq = append(seq, e)
		if !p.at(",") {
			return seq, nil
		}
		p.advance()
	}
}

// parseExprList parses a possibly empty comma-separated list up to the
// given closing delimiter, which is left unconsumed.
func (p *parser) parseExprList(close string) ([]Expr, error) {
	var list []Expr
	if p.at(close) {
		return list, nil
	}
	for {
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list = append(list, e)
		if !p.at(",") {
			return list, nil
		}
		p.advance()
	}
}

// Binary operator precedence, lowest first. '=' and '!' sit below all
// of these and are handled by parseExpr so they can produce dedicated
// Match and Send nodes.
var binOpLevels = [][]string{
	{"orelse"},
	{"andalso"},
	// '<-' and '<=' are comprehension generators; parsing them as
	// comparisons keeps qualifier lists on the shared expression path.
	{"==", "/=", "=<", "<", ">=", ">", "=:=", "=/=", "<-", "<="},
	{"++", "--"},
	{"+", "-", "bor", "bxor", "bsl", "bsr", "or", "xor"},
	{"*", "/", "div", "rem", "band", "and"},
}

func (p *parser) parseExpr() (Expr, error) {
	lhs, err := p.parseBinOp(0)
	if err != nil {
		return nil, err
	}
	if p.at("=") {
		opTok := p.pos
		p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Match{OpTok: opTok, Pattern: lhs, Value: rhs}, nil
	}
	if p.at("!") {
		opTok := p.pos
		p.advance()
		rhs, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		return &Send{OpTok: opTok, Dest: lhs, Msg: rhs}, nil
	}
	return lhs, nil
}

func (p *parser) parseBinOp(level int) (Expr, error) {
	if level >= len(binOpLevels) {
		return p.parseUnary()
	}
	lhs, err := p.parseBinOp(level + 1)
	if err != nil {
		return nil, err
	}
	for !p.eof() && p.matchesLevel(level) {
		opTok := p.pos
		op := p.advance().Text
		rhs, err := p.parseBinOp(level + 1)
		if err != nil {
			return nil, err
		}
		lhs = &BinOp{Op: op, OpTok: opTok, L: lhs, R: rhs}
	}
	return lhs, nil
}

func (p *parser) matchesLevel(level int) bool {
	t := p.cur()
	for _, op := range binOpLevels[level] {
		if t.IsOp(op) || t.IsKeyword(op) {
			return true
		}
	}
	return false
}

func (p *parser) parseUnary() (Expr, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of file in expression")
	}
	t := p.cur()
	if t.IsOp("-") || t.IsOp("+") || t.IsKeyword("not") || t.IsKeyword("bnot") || t.IsKeyword("catch") {
		opTok := p.pos
		p.advance()
		x, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		return &UnOp{Op: t.Text, OpTok: opTok, X: x}, nil
	}
	return p.parsePostfix()
}

// parsePostfix parses a primary expression followed by any chain of
// call, remote-qualifier, record, and map suffixes.
func (p *parser) parsePostfix() (Expr, error) {
	e, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	for !p.eof() {
		switch {
		case p.at("("):
			open := p.pos
			p.advance()
			args, err := p.parseExprList(")")
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			e = &Call{Fun: e, Args: args, Open: open, Close: p.pos - 1}
		case p.at(":") && !p.binSeg:
			p.advance()
			rhs, err := p.parsePrimary()
			if err != nil {
				return nil, err
			}
			e = &Remote{Mod: e, Fun: rhs}
		case p.at("#"):
			e, err = p.parseHashSuffix(e)
			if err != nil {
				return nil, err
			}
		default:
			return e, nil
		}
	}
	return e, nil
}

// parseHashSuffix parses record update/access or map update applied to
// a base expression, or record/map construction when base is nil.
func (p *parser) parseHashSuffix(base Expr) (Expr, error) {
	hash := p.pos
	p.advance() // '#'
	if p.eof() {
		return nil, p.errorf("unexpected end of file after '#'")
	}

	if p.at("{") {
		// Map construction or update.
		p.advance()
		m := &MapExpr{Hash: hash, Base: base}
		for !p.at("}") {
			pair, err := p.parseMapPair()
			if err != nil {
				return nil, err
			}
			m.Pairs = append(m.Pairs, pair)
			if p.at(",") {
				p.advance()
				continue
			}
			break
		}
		if _, err := p.expectOp("}"); err != nil {
			return nil, err
		}
		m.Close = p.pos - 1
		return m, nil
	}

	if p.cur().Kind != KindAtom && p.cur().Kind != KindVar {
		return nil, p.errorf("expected record name after '#', found %q", p.cur().Text)
	}
	recName := p.advance().Text

	if p.at(".") {
		p.advance()
		if p.eof() || p.cur().Kind != KindAtom {
			return nil, p.errorf("expected field name after '.'")
		}
		field := p.advance().Text
		return &RecordExpr{Hash: hash, End: p.pos - 1, Base: base, RecName: recName, Field: field}, nil
	}

	if _, err := p.expectOp("{"); err != nil {
		return nil, err
	}
	rec := &RecordExpr{Hash: hash, Base: base, RecName: recName}
	for !p.at("}") {
		field, err := p.parseRecordField()
		if err != nil {
			return nil, err
		}
		rec.Fields = append(rec.Fields, field)
		if p.at(",") {
			p.advance()
			continue
		}
		break
	}
	if _, err := p.expectOp("}"); err != nil {
		return nil, err
	}
	rec.End = p.pos - 1
	return rec, nil
}

func (p *parser) parseMapPair() (MapPair, error) {
	key, err := p.parseExpr()
	if err != nil {
		return MapPair{}, err
	}
	exact := false
	switch {
	case p.at("=>"):
		p.advance()
	case p.at(":="):
		exact = true
		p.advance()
	default:
		return MapPair{}, p.errorf("expected '=>' or ':=' in map association")
	}
	val, err := p.parseExpr()
	if err != nil {
		return MapPair{}, err
	}
	return MapPair{Key: key, Val: val, Exact: exact}, nil
}

func (p *parser) parseRecordField() (RecordField, error) {
	if p.eof() || (p.cur().Kind != KindAtom && p.cur().Text != "_") {
		return RecordField{}, p.errorf("expected record field name")
	}
	name := p.advance().Text
	if _, err := p.expectOp("="); err != nil {
		return RecordField{}, err
	}
	val, err := p.parseExpr()
	if err != nil {
		return RecordField{}, err
	}
	return RecordField{Name: name, Val: val}, nil
}

func (p *parser) parsePrimary() (Expr, error) {
	if p.eof() {
		return nil, p.errorf("unexpected end of file in expression")
	}
	t := p.cur()

	switch t.Kind {
	case KindInt, KindFloat, KindString, KindChar:
		tok := p.pos
		p.advance()
		return &Literal{Tok: tok}, nil
	case KindVar:
		tok := p.pos
		p.advance()
		return &Var{Tok: tok, Name: t.Text}, nil
	case KindAtom:
		switch t.Text {
		case "case":
			return p.parseCase()
		case "if":
			return p.parseIf()
		case "receive":
			return p.parseReceive()
		case "fun":
			return p.parseFun()
		case "begin":
			return p.parseBlock()
		case "try":
			return p.parseTry()
		}
		tok := p.pos
		p.advance()
		return &Atom{Tok: tok, Text: t.Text}, nil
	}

	switch {
	case t.IsOp("("):
		p.advance()
		saved := p.binSeg
		p.binSeg = false
		e, err := p.parseExpr()
		p.binSeg = saved
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
		return e, nil
	case t.IsOp("{"):
		return p.parseTuple()
	case t.IsOp("["):
		return p.parseList()
	case t.IsOp("<<"):
		return p.parseBinary()
	case t.IsOp("#"):
		return p.parseHashSuffix(nil)
	case t.IsOp("?"):
		return p.parseMacroRef()
	}

	return nil, p.errorf("unexpected token %q in expression", t.Text)
}

func (p *parser) parseTuple() (Expr, error) {
	open := p.pos
	p.advance()
	elems, err := p.parseExprList("}")
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("}"); err != nil {
		return nil, err
	}
	return &Tuple{Open: open, Close: p.pos - 1, Elems: elems}, nil
}

// parseList parses [..], [..|Tail], and list comprehensions.
func (p *parser) parseList() (Expr, error) {
	open := p.pos
	p.advance()
	if p.at("]") {
		p.advance()
		return &List{Open: open, Close: p.pos - 1}, nil
	}

	first, err := p.parseExpr()
	if err != nil {
		return nil, err
	}

	if p.at("||") {
		p.advance()
		quals, err := p.parseExprSeq()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp("]"); err != nil {
			return nil, err
		}
		return &Comprehension{Open: open, Close: p.pos - 1, Template: first, Quals: quals}, nil
	}

	list := &List{Open: open, Elems: []Expr{first}}
	for p.at(",") {
		p.advance()
		e, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Elems = append(list.Elems, e)
	}
	if p.at("|") {
		p.advance()
		tail, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		list.Tail = tail
	}
	if _, err := p.expectOp("]"); err != nil {
		return nil, err
	}
	list.Close = p.pos - 1
	return list, nil
}

// parseBinary parses <<Segments>> and binary comprehensions. Size
// expressions are kept in the tree (they may read variables), type
// specifier atoms are not.
func (p *parser) parseBinary() (Expr, error) {
	open := p.pos
	p.advance()
	if p.at(">>") {
		p.advance()
		return &Binary{Open: open, Close: p.pos - 1}, nil
	}

	first, err := p.parseBinarySegment()
	if err != nil {
		return nil, err
	}

	if p.at("||") {
		p.advance()
		quals, err := p.parseExprSeq()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(">>"); err != nil {
			return nil, err
		}
		return &Comprehension{Open: open, Close: p.pos - 1, Template: first, Quals: quals}, nil
	}

	bin := &Binary{Open: open, Segs: []Expr{first}}
	for p.at(",") {
		p.advance()
		seg, err := p.parseBinarySegment()
		if err != nil {
			return nil, err
		}
		bin.Segs = append(bin.Segs, seg)
	}
	if _, err := p.expectOp(">>"); err != nil {
		return nil, err
	}
	bin.Close = p.pos - 1
	return bin, nil
}

// parseBinarySegment parses Value[:Size][/TypeSpecList]. Values and
// sizes are primary-level per the bit syntax grammar; compound
// expressions need parentheses, which keeps ':' free for the size and
// '/' free for the type specifier.
func (p *parser) parseBinarySegment() (Expr, error) {
	saved := p.binSeg
	p.binSeg = true
	defer func() { p.binSeg = saved }()

	val, err := p.parseUnary()
	if err != nil {
		return nil, err
	}
	if p.at(":") {
		opTok := p.pos
		p.advance()
		size, err := p.parseUnary()
		if err != nil {
			return nil, err
		}
		val = &BinOp{Op: ":", OpTok: opTok, L: val, R: size}
	}
	if p.at("/") {
		p.advance()
		// Type specifier list: atoms joined by '-', optional unit:N.
		for !p.eof() {
			if p.cur().Kind == KindAtom || p.cur().Kind == KindInt {
				p.advance()
			} else if p.at("-") || p.at(":") {
				p.advance()
			} else {
				break
			}
		}
	}
	return val, nil
}

func (p *parser) parseMacroRef() (Expr, error) {
	question := p.pos
	p.advance()
	if p.eof() || (p.cur().Kind != KindAtom && p.cur().Kind != KindVar) {
		return nil, p.errorf("expected macro name after '?'")
	}
	name := p.advance().Text
	m := &MacroRef{Question: question, To: p.pos - 1, Name: name}
	if p.at("(") {
		p.advance()
		args, err := p.parseExprList(")")
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp(")"); err != nil {
			return nil, err
		}
		m.Args = args
		m.To = p.pos - 1
	}
	return m, nil
}

func (p *parser) parseCase() (Expr, error) {
	kw := p.pos
	p.advance()
	subject, err := p.parseExpr()
	if err != nil {
		return nil, err
	}
	if !p.atKw("of") {
		return nil, p.errorf("expected 'of' in case expression")
	}
	p.advance()
	clauses, err := p.parseCaseClauses()
	if err != nil {
		return nil, err
	}
	if !p.atKw("end") {
		return nil, p.errorf("expected 'end' to close case expression")
	}
	p.advance()
	return &Case{Kw: kw, End: p.pos - 1, Subject: subject, Clauses: clauses}, nil
}

// parseCaseClauses parses Pattern [when Guards] -> Body alternatives
// separated by ';', stopping before end/after/catch.
func (p *parser) parseCaseClauses() ([]*CaseClause, error) {
	var clauses []*CaseClause
	for {
		pattern, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		clause := &CaseClause{Pattern: pattern}
		if p.atKw("when") {
			p.advance()
			clause.Guards, err = p.parseGuards()
			if err != nil {
				return nil, err
			}
		}
		if _, err := p.expectOp("->"); err != nil {
			return nil, err
		}
		clause.Body, err = p.parseExprSeq()
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
		if p.at(";") {
			p.advance()
			continue
		}
		return clauses, nil
	}
}

func (p *parser) parseIf() (Expr, error) {
	kw := p.pos
	p.advance()
	ifExpr := &If{Kw: kw}
	for {
		clause := &IfClause{}
		guards, err := p.parseGuards()
		if err != nil {
			return nil, err
		}
		clause.Guards = guards
		if _, err := p.expectOp("->"); err != nil {
			return nil, err
		}
		clause.Body, err = p.parseExprSeq()
		if err != nil {
			return nil, err
		}
		ifExpr.Clauses = append(ifExpr.Clauses, clause)
		if p.at(";") {
			p.advance()
			continue
		}
		break
	}
	if !p.atKw("end") {
		return nil, p.errorf("expected 'end' to close if expression")
	}
	p.advance()
	ifExpr.End = p.pos - 1
	return ifExpr, nil
}

func (p *parser) parseReceive() (Expr, error) {
	kw := p.pos
	p.advance()
	recv := &Receive{Kw: kw}

	if !p.atKw("after") {
		clauses, err := p.parseCaseClauses()
		if err != nil {
			return nil, err
		}
		recv.Clauses = clauses
	}

	if p.atKw("after") {
		p.advance()
		timeout, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		if _, err := p.expectOp("->"); err != nil {
			return nil, err
		}
		body, err := p.parseExprSeq()
		if err != nil {
			return nil, err
		}
		recv.After = &AfterClause{Timeout: timeout, Body: body}
	}

	if !p.atKw("end") {
		return nil, p.errorf("expected 'end' to close receive expression")
	}
	p.advance()
	recv.End = p.pos - 1
	return recv, nil
}

// parseFun parses both anonymous funs and fun references (fun f/1,
// fun m:f/2, fun M:F/A).
func (p *parser) parseFun() (Expr, error) {
	kw := p.pos
	p.advance()
	fn := &FunExpr{Kw: kw}

	if p.at("(") {
		for {
			open := p.pos
			if _, err := p.expectOp("("); err != nil {
				return nil, err
			}
			params, err := p.parseExprList(")")
			if err != nil {
				return nil, err
			}
			if _, err := p.expectOp(")"); err != nil {
				return nil, err
			}
			// Parameter lists reuse the tuple node so fun clauses flow
			// through the same pattern machinery as case clauses.
			clause := &CaseClause{Pattern: &Tuple{Open: open, Close: p.pos - 1, Elems: params}}
			if p.atKw("when") {
				p.advance()
				clause.Guards, err = p.parseGuards()
				if err != nil {
					return nil, err
				}
			}
			if _, err := p.expectOp("->"); err != nil {
				return nil, err
			}
			clause.Body, err = p.parseExprSeq()
			if err != nil {
				return nil, err
			}
			fn.Clauses = append(fn.Clauses, clause)
			if p.at(";") {
				p.advance()
				continue
			}
			break
		}
		if !p.atKw("end") {
			return nil, p.errorf("expected 'end' to close fun expression")
		}
		p.advance()
		fn.End = p.pos - 1
		return fn, nil
	}

	ref, err := p.parsePrimary()
	if err != nil {
		return nil, err
	}
	if p.at(":") {
		p.advance()
		funPart, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		ref = &Remote{Mod: ref, Fun: funPart}
	}
	fn.Ref = ref
	if p.at("/") {
		p.advance()
		arity, err := p.parsePrimary()
		if err != nil {
			return nil, err
		}
		fn.RefArity = arity
	}
	fn.End = p.pos - 1
	return fn, nil
}

func (p *parser) parseBlock() (Expr, error) {
	kw := p.pos
	p.advance()
	body, err := p.parseExprSeq()
	if err != nil {
		return nil, err
	}
	if !p.atKw("end") {
		return nil, p.errorf("expected 'end' to close begin block")
	}
	p.advance()
	return &Block{Kw: kw, End: p.pos - 1, Body: body}, nil
}

func (p *parser) parseTry() (Expr, error) {
	kw := p.pos
	p.advance()
	try := &Try{Kw: kw}

	body, err := p.parseExprSeq()
	if err != nil {
		return nil, err
	}
	try.Body = body

	if p.atKw("of") {
		p.advance()
		try.Clauses, err = p.parseCaseClauses()
		if err != nil {
			return nil, err
		}
	}
	if p.atKw("catch") {
		p.advance()
		try.CatchClauses, err = p.parseCaseClauses()
		if err != nil {
			return nil, err
		}
	}
	if p.atKw("after") {
		p.advance()
		try.AfterBody, err = p.parseExprSeq()
		if err != nil {
			return nil, err
		}
	}
	if !p.atKw("end") {
		return nil, p.errorf("expected 'end' to close try expression")
	}
	p.advance()
	try.End = p.pos - 1
	return try, nil
}
