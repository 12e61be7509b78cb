package erlang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for Parser:
// - Captures the -module attribute and skips all other attributes
// - Parses multi-clause functions with guards into ordered FunClause forms
// - Marks the final clause of a function
// - Parses case/if/receive/try/fun/begin and comprehensions
// - Parses patterns: tuples, lists with tails, maps, records, binaries
// - Reports structural errors as ParseError

func parseFile(t *testing.T, src string) *File {
	t.Helper()
	f, err := Parse("test.erl", []byte(src))
	require.NoError(t, err)
	return f
}

func TestParser_ModuleAttribute(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `
-module(greeter).
-export([hello/1]).
-define(GREETING, "hi").

hello(Name) -> {ok, Name}.
`)

	assert.Equal(t, "greeter", f.Module)
	require.Len(t, f.Forms, 1, "attributes produce no forms")

	clause, ok := f.Forms[0].(*FunClause)
	require.True(t, ok)
	assert.Equal(t, "hello", clause.Name)
	assert.Equal(t, 1, clause.Arity())
	assert.True(t, clause.Last)
}

func TestParser_MultiClauseWithGuards(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `
max(X, Y) when X > Y -> X;
max(_, Y) -> Y.
`)

	require.Len(t, f.Forms, 2)

	first := f.Forms[0].(*FunClause)
	assert.Equal(t, "max", first.Name)
	assert.Equal(t, 2, first.Arity())
	assert.False(t, first.Last)
	require.Len(t, first.Guards, 1)
	require.Len(t, first.Guards[0], 1)

	second := f.Forms[1].(*FunClause)
	assert.True(t, second.Last)
	assert.Empty(t, second.Guards)
}

func TestParser_GuardAlternation(t *testing.T) {
	t.Parallel()

	// ';' separates alternative guard sequences, ',' conjoined tests.
	f := parseFile(t, `
check(X) when is_integer(X), X > 0; is_atom(X) -> ok.
`)

	clause := f.Forms[0].(*FunClause)
	require.Len(t, clause.Guards, 2)
	assert.Len(t, clause.Guards[0], 2)
	assert.Len(t, clause.Guards[1], 1)
}

func TestParser_ClauseSpans(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `
first(X) -> X.
second(Y) -> Y.
`)

	require.Len(t, f.Forms, 2)
	first := f.Forms[0].(*FunClause)
	second := f.Forms[1].(*FunClause)

	// Spans are inclusive token ranges ending at the terminator.
	from, to := first.Span()
	assert.Equal(t, "first", f.Tokens[from].Text)
	assert.Equal(t, KindDot, f.Tokens[to].Kind)

	from2, _ := second.Span()
	assert.Greater(t, from2, to)
}

func TestParser_ControlFlowForms(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"case", `f(X) -> case X of {ok, V} -> V; _ -> error end.`},
		{"if", `f(X) -> if X > 0 -> pos; true -> neg end.`},
		{"receive", `f() -> receive {msg, M} -> M after 1000 -> timeout end.`},
		{"try", `f(X) -> try g(X) of V -> V catch error:Reason -> {error, Reason} after cleanup() end.`},
		{"anonymous fun", `f(L) -> lists:map(fun(E) -> E * 2 end, L).`},
		{"fun reference", `f() -> fun local/2.`},
		{"remote fun reference", `f() -> fun lists:map/2.`},
		{"begin block", `f() -> begin A = 1, A + 1 end.`},
		{"list comprehension", `f(L) -> [X * 2 || X <- L, X > 0].`},
		{"binary comprehension", `f(B) -> << <<X>> || <<X>> <= B >>.`},
		{"send", `f(Pid, M) -> Pid ! {msg, M}.`},
		{"catch prefix", `f(X) -> catch g(X).`},
		{"map construction", `f(K, V) -> #{K => V, size := 1}.`},
		{"map update", `f(M, V) -> M#{key => V}.`},
		{"record construction", `f(N) -> #person{name = N, age = 0}.`},
		{"record access", `f(P) -> P#person.name.`},
		{"binary pattern", `f(<<Len:8, Rest/binary>>) -> {Len, Rest}.`},
		{"binary segment type spec", `f(<<X:4/little-signed-integer-unit:8>>) -> X.`},
		{"macro call", `f(X) -> ?LOG(X).`},
		{"nested match", `f(X) -> {ok, Y} = g(X), Y.`},
		{"string concat pattern", `f("prefix" ++ Rest) -> Rest.`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse("test.erl", []byte(tt.src))
			require.NoError(t, err)
			require.NotEmpty(t, f.Forms)
		})
	}
}

func TestParser_ListWithTail(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `f([H|T]) -> {H, T}.`)
	clause := f.Forms[0].(*FunClause)
	require.Len(t, clause.Params, 1)

	list, ok := clause.Params[0].(*List)
	require.True(t, ok)
	require.Len(t, list.Elems, 1)
	require.NotNil(t, list.Tail)
}

func TestParser_BinarySegmentSpecifiers(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `take(Len, <<Chunk:Len/binary, Rest/binary>>) -> {Chunk, Rest}.`)
	clause := f.Forms[0].(*FunClause)
	require.Len(t, clause.Params, 2)

	bin, ok := clause.Params[1].(*Binary)
	require.True(t, ok)
	require.Len(t, bin.Segs, 2)

	// Chunk:Len is a size-annotated segment, not a remote qualifier;
	// the size variable survives in the tree, the /binary type does not.
	seg, ok := bin.Segs[0].(*BinOp)
	require.True(t, ok)
	assert.Equal(t, ":", seg.Op)
	val, ok := seg.L.(*Var)
	require.True(t, ok)
	assert.Equal(t, "Chunk", val.Name)
	size, ok := seg.R.(*Var)
	require.True(t, ok)
	assert.Equal(t, "Len", size.Name)

	rest, ok := bin.Segs[1].(*Var)
	require.True(t, ok)
	assert.Equal(t, "Rest", rest.Name)

	// Parentheses restore the remote qualifier inside a segment.
	f2 := parseFile(t, `hash(B) -> <<(erlang:phash2(B)):32>>.`)
	require.Len(t, f2.Forms, 1)
}

func TestParser_OperatorPrecedence(t *testing.T) {
	t.Parallel()

	// 1 + 2 * 3 parses as 1 + (2 * 3).
	f := parseFile(t, `f() -> 1 + 2 * 3.`)
	clause := f.Forms[0].(*FunClause)
	require.Len(t, clause.Body, 1)

	add, ok := clause.Body[0].(*BinOp)
	require.True(t, ok)
	assert.Equal(t, "+", add.Op)

	mul, ok := add.R.(*BinOp)
	require.True(t, ok)
	assert.Equal(t, "*", mul.Op)
}

func TestParser_MatchBelowOperators(t *testing.T) {
	t.Parallel()

	// '=' binds looser than arithmetic: X = 1 + 2 matches X against (1+2).
	f := parseFile(t, `f() -> X = 1 + 2, X.`)
	clause := f.Forms[0].(*FunClause)
	require.Len(t, clause.Body, 2)

	m, ok := clause.Body[0].(*Match)
	require.True(t, ok)
	_, ok = m.Pattern.(*Var)
	assert.True(t, ok)
	_, ok = m.Value.(*BinOp)
	assert.True(t, ok)
}

func TestParser_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		src  string
	}{
		{"missing arrow", `f(X) X.`},
		{"unterminated clause", `f(X) -> X`},
		{"unclosed case", `f(X) -> case X of ok -> ok.`},
		{"stray token at top level", `f(X) -> X. ) garbage.`},
		{"unterminated attribute", `-module(m`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("test.erl", []byte(tt.src))
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestParser_HeaderlessModule(t *testing.T) {
	t.Parallel()

	f := parseFile(t, `f() -> ok.`)
	assert.Empty(t, f.Module)
	assert.Len(t, f.Forms, 1)
}
