package erlang

import "fmt"

// Kind classifies a lexical token.
type Kind int

const (
	// KindAtom covers unquoted and quoted atoms, including keywords
	// (when, case, receive, ...) which the parser matches by text.
	KindAtom Kind = iota
	// KindVar is a variable: an identifier starting with an uppercase
	// letter or underscore. The bare underscore wildcard is a KindVar
	// with text "_".
	KindVar
	KindInt
	KindFloat
	KindString
	// KindChar is a character literal such as $a or $\n.
	KindChar
	// KindOp covers operators and punctuation: ( ) { } [ ] , ; | ! = ->
	// and friends. The parser dispatches on the literal text.
	KindOp
	// KindDot is a form-terminating full stop: a '.' followed by
	// whitespace, a comment, or end of input.
	KindDot
)

func (k Kind) String() string {
	switch k {
	case KindAtom:
		return "atom"
	case KindVar:
		return "var"
	case KindInt:
		return "integer"
	case KindFloat:
		return "float"
	case KindString:
		return "string"
	case KindChar:
		return "char"
	case KindOp:
		return "op"
	case KindDot:
		return "dot"
	}
	return "unknown"
}

// Token is one lexical unit of an Erlang source file. Text is the exact
// source slice, so joining token texts with separators reproduces the
// token-level view of the code.
type Token struct {
	Kind Kind
	Text string
	// Pos is the byte offset of the token's first character.
	Pos  int
	Line int
	Col  int
}

// End returns the byte offset one past the token's last character.
func (t Token) End() int { return t.Pos + len(t.Text) }

func (t Token) String() string {
	return fmt.Sprintf("%s(%q)@%d:%d", t.Kind, t.Text, t.Line, t.Col)
}

// IsKeyword reports whether the token is the given reserved word.
func (t Token) IsKeyword(word string) bool {
	return t.Kind == KindAtom && t.Text == word
}

// IsOp reports whether the token is the given operator or punctuation.
func (t Token) IsOp(text string) bool {
	return t.Kind == KindOp && t.Text == text
}
