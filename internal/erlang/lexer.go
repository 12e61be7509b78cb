package erlang

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// ParseError reports malformed source. It covers both lexical failures
// (unterminated string, stray byte) and structural ones raised by the
// parser. A ParseError aborts the offending file only.
type ParseError struct {
	File string
	Line int
	Col  int
	Msg  string
}

func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("%s:%d:%d: %s", e.File, e.Line, e.Col, e.Msg)
	}
	return fmt.Sprintf("%d:%d: %s", e.Line, e.Col, e.Msg)
}

// multi-character operators, longest first so maximal munch works.
var multiOps = []string{
	"=:=", "=/=",
	"->", "=>", ":=", "<-", "<=", "||", "|>", "::", "<<", ">>",
	"==", "/=", "=<", ">=", "++", "--", "&&",
}

type lexer struct {
	file string
	src  []byte
	pos  int
	line int
	col  int
}

// Lex splits file bytes into tokens, skipping whitespace and comments.
// Comments run from '%' to end of line and never produce tokens.
func Lex(file string, src []byte) ([]Token, error) {
	l := &lexer{file: file, src: src, line: 1, col: 1}
	var tokens []Token
	for {
		tok, ok, err := l.next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return tokens, nil
		}
		tokens = append(tokens, tok)
	}
}

func (l *lexer) errorf(line, col int, format string, args ...interface{}) error {
	return &ParseError{File: l.file, Line: line, Col: col, Msg: fmt.Sprintf(format, args...)}
}

func (l *lexer) peek() byte {
	if l.pos >= len(l.src) {
		return 0
	}
	return l.src[l.pos]
}

func (l *lexer) peekAt(off int) byte {
	if l.pos+off >= len(l.src) {
		return 0
	}
	return l.src[l.pos+off]
}

func (l *lexer) advance() byte {
	c := l.src[l.pos]
	l.pos++
	if c == '\n' {
		l.line++
		l.col = 1
	} else {
		l.col++
	}
	return c
}

func (l *lexer) skipSpaceAndComments() {
	for l.pos < len(l.src) {
		c := l.peek()
		switch {
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			l.advance()
		case c == '%':
			for l.pos < len(l.src) && l.peek() != '\n' {
				l.advance()
			}
		default:
			return
		}
	}
}

func (l *lexer) next() (Token, bool, error) {
	l.skipSpaceAndComments()
	if l.pos >= len(l.src) {
		return Token{}, false, nil
	}

	start, line, col := l.pos, l.line, l.col
	c := l.peek()

	switch {
	case isLower(rune(c)):
		l.scanName()
		return l.emit(KindAtom, start, line, col), true, nil

	case isUpper(rune(c)) || c == '_':
		l.scanName()
		return l.emit(KindVar, start, line, col), true, nil

	case c >= '0' && c <= '9':
		kind, err := l.scanNumber(line, col)
		if err != nil {
			return Token{}, false, err
		}
		return l.emit(kind, start, line, col), true, nil

	case c == '"':
		if err := l.scanQuoted('"', "string"); err != nil {
			return Token{}, false, err
		}
		return l.emit(KindString, start, line, col), true, nil

	case c == '\'':
		if err := l.scanQuoted('\'', "quoted atom"); err != nil {
			return Token{}, false, err
		}
		return l.emit(KindAtom, start, line, col), true, nil

	case c == '$':
		l.advance()
		if l.pos >= len(l.src) {
			return Token{}, false, l.errorf(line, col, "unterminated character literal")
		}
		if l.peek() == '\\' {
			l.advance()
			if l.pos >= len(l.src) {
				return Token{}, false, l.errorf(line, col, "unterminated character escape")
			}
		}
		l.advance()
		return l.emit(KindChar, start, line, col), true, nil

	case c == '.':
		l.advance()
		if l.atFormBoundary() {
			return l.emit(KindDot, start, line, col), true, nil
		}
		return l.emit(KindOp, start, line, col), true, nil
	}

	for _, op := range multiOps {
		if l.hasPrefix(op) {
			for range op {
				l.advance()
			}
			return l.emit(KindOp, start, line, col), true, nil
		}
	}

	if strings.ContainsRune("(){}[],;|!=<>+-*/#?:&", rune(c)) {
		l.advance()
		return l.emit(KindOp, start, line, col), true, nil
	}

	return Token{}, false, l.errorf(line, col, "unexpected character %q", c)
}

func (l *lexer) emit(kind Kind, start, line, col int) Token {
	return Token{Kind: kind, Text: string(l.src[start:l.pos]), Pos: start, Line: line, Col: col}
}

func (l *lexer) hasPrefix(s string) bool {
	return l.pos+len(s) <= len(l.src) && string(l.src[l.pos:l.pos+len(s)]) == s
}

// atFormBoundary reports whether the character after an already consumed
// '.' ends a form: whitespace, a comment, or end of input.
func (l *lexer) atFormBoundary() bool {
	if l.pos >= len(l.src) {
		return true
	}
	c := l.peek()
	return c == ' ' || c == '\t' || c == '\r' || c == '\n' || c == '%'
}

func (l *lexer) scanName() {
	for l.pos < len(l.src) {
		r, size := utf8.DecodeRune(l.src[l.pos:])
		if !isNameRune(r) {
			return
		}
		for i := 0; i < size; i++ {
			l.advance()
		}
	}
}

// scanNumber handles integers, base-prefixed integers (16#ff), and
// floats with optional exponents. A '.' only continues the number when
// a digit follows, so form-terminating dots stay untouched.
func (l *lexer) scanNumber(line, col int) (Kind, error) {
	for l.pos < len(l.src) && isDigit(l.peek()) {
		l.advance()
	}

	if l.peek() == '#' {
		l.advance()
		if !isBaseDigit(l.peek()) {
			return 0, l.errorf(line, col, "missing digits after base prefix")
		}
		for l.pos < len(l.src) && isBaseDigit(l.peek()) {
			l.advance()
		}
		return KindInt, nil
	}

	kind := KindInt
	if l.peek() == '.' && isDigit(l.peekAt(1)) {
		kind = KindFloat
		l.advance()
		for l.pos < len(l.src) && isDigit(l.peek()) {
			l.advance()
		}
	}
	if c := l.peek(); (c == 'e' || c == 'E') && kind == KindFloat {
		off := 1
		if s := l.peekAt(1); s == '+' || s == '-' {
			off = 2
		}
		if isDigit(l.peekAt(off)) {
			for i := 0; i < off; i++ {
				l.advance()
			}
			for l.pos < len(l.src) && isDigit(l.peek()) {
				l.advance()
			}
		}
	}
	return kind, nil
}

func (l *lexer) scanQuoted(quote byte, what string) error {
	line, col := l.line, l.col
	l.advance() // opening quote
	for l.pos < len(l.src) {
		c := l.advance()
		switch c {
		case '\\':
			if l.pos < len(l.src) {
				l.advance()
			}
		case quote:
			return nil
		case '\n':
			return l.errorf(line, col, "unterminated %s", what)
		}
	}
	return l.errorf(line, col, "unterminated %s", what)
}

func isLower(r rune) bool { return unicode.IsLower(r) }
func isUpper(r rune) bool { return unicode.IsUpper(r) }
func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isBaseDigit(c byte) bool {
	return isDigit(c) || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNameRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '@'
}
