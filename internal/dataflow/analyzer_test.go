package dataflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvp-joe/erlgraph/internal/erlang"
	"github.com/mvp-joe/erlgraph/internal/extract"
)

// Test Plan for Analyzer:
// - Parameter bindings feed guard and body reads within one clause
// - Clauses are isolated: bindings never cross clause boundaries
// - Wildcards and unused parameters produce no spurious edges
// - Compound patterns destructure through synthetic match inputs
// - case/receive branches get isolated scopes
// - Binary segment sizes are reads of earlier bindings
// - Message sends link to receive patterns only on structural match
// - Variable send destinations link only when in scope at the receive
// - Recursive calls produce approximate edges, gated by option
// - Unresolved reads become scope errors and are excluded from edges
// - Identical input yields identical edge order

func analyzeSource(t *testing.T, src string, opts ...Option) (*extract.ClauseGroup, *Result) {
	t.Helper()
	f, err := erlang.Parse("test.erl", []byte(src))
	require.NoError(t, err)
	groups, errs := extract.Group(f)
	require.Empty(t, errs)
	require.Len(t, groups, 1)
	return groups[0], New(opts...).Analyze(groups[0])
}

// occAt finds the occurrence whose token has the given text, counting
// matches in token order. nth is zero-based.
func occAt(t *testing.T, g *extract.ClauseGroup, res *Result, text string, nth int) Occurrence {
	t.Helper()
	matches := make([]Occurrence, 0, 4)
	for _, o := range res.Occurrences {
		if g.File.Tokens[o.Token].Text == text {
			matches = append(matches, o)
		}
	}
	for i := 0; i < len(matches); i++ {
		for j := i + 1; j < len(matches); j++ {
			if matches[j].Token < matches[i].Token {
				matches[i], matches[j] = matches[j], matches[i]
			}
		}
	}
	require.Greater(t, len(matches), nth, "occurrence %q #%d not found", text, nth)
	return matches[nth]
}

func hasEdge(res *Result, source, target Occurrence, kind EdgeKind) bool {
	for _, e := range res.Edges {
		if e.Source == source.Index && e.Target == target.Index && e.Kind == kind {
			return true
		}
	}
	return false
}

func edgesOfKind(res *Result, kind EdgeKind) []Edge {
	var out []Edge
	for _, e := range res.Edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func TestAnalyzer_GuardAndBodyReads(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
max(X, Y) when X > Y -> X;
max(_, Y) -> Y.
`)

	require.Empty(t, res.ScopeErrors)

	boundX := occAt(t, g, res, "X", 0)
	guardX := occAt(t, g, res, "X", 1)
	bodyX := occAt(t, g, res, "X", 2)
	assert.Equal(t, RoleBound, boundX.Role)
	assert.Equal(t, RoleGuardRead, guardX.Role)
	assert.Equal(t, RoleBodyRead, bodyX.Role)

	assert.True(t, hasEdge(res, boundX, guardX, KindGuard))
	assert.True(t, hasEdge(res, boundX, bodyX, KindBody))

	boundY1 := occAt(t, g, res, "Y", 0)
	guardY := occAt(t, g, res, "Y", 1)
	assert.True(t, hasEdge(res, boundY1, guardY, KindGuard))

	// Second clause's Y read resolves to the second clause's binding,
	// never to the first clause's.
	boundY2 := occAt(t, g, res, "Y", 2)
	bodyY2 := occAt(t, g, res, "Y", 3)
	assert.Equal(t, 1, boundY2.Clause)
	assert.True(t, hasEdge(res, boundY2, bodyY2, KindBody))
	assert.False(t, hasEdge(res, boundY1, bodyY2, KindBody))
}

func TestAnalyzer_WildcardsProduceNothing(t *testing.T) {
	t.Parallel()

	_, res := analyzeSource(t, `
-module(m).
divide(_, 0) -> error;
divide(X, Y) -> X / Y.
`)

	require.Empty(t, res.ScopeErrors)
	// Clause one contributes nothing: wildcard, literal, and atom have
	// no variable occurrences.
	for _, o := range res.Occurrences {
		assert.Equal(t, 1, o.Clause)
	}
	assert.Len(t, res.Edges, 2)
}

func TestAnalyzer_TupleDestructure(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
handle({update, NewState}) -> NewState.
`)

	require.Empty(t, res.ScopeErrors)

	input := occAt(t, g, res, "{", 0)
	bound := occAt(t, g, res, "NewState", 0)
	read := occAt(t, g, res, "NewState", 1)

	assert.Equal(t, RoleMatchInput, input.Role)
	assert.True(t, hasEdge(res, input, bound, KindDestructure))
	assert.True(t, hasEdge(res, bound, read, KindBody))
}

func TestAnalyzer_NestedPatternFanOut(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
f({A, [H|T]}) -> {A, H, T}.
`)

	require.Empty(t, res.ScopeErrors)

	tupleInput := occAt(t, g, res, "{", 0)
	listInput := occAt(t, g, res, "[", 0)
	boundA := occAt(t, g, res, "A", 0)
	boundH := occAt(t, g, res, "H", 0)
	boundT := occAt(t, g, res, "T", 0)

	// A hangs off the tuple; H and T hang off the nested list, not the
	// outer tuple.
	assert.True(t, hasEdge(res, tupleInput, boundA, KindDestructure))
	assert.True(t, hasEdge(res, listInput, boundH, KindDestructure))
	assert.True(t, hasEdge(res, listInput, boundT, KindDestructure))
	assert.False(t, hasEdge(res, tupleInput, boundH, KindDestructure))
}

func TestAnalyzer_AliasPattern(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
g({a, B} = T) -> {B, T}.
`)

	require.Empty(t, res.ScopeErrors)

	boundB := occAt(t, g, res, "B", 0)
	readB := occAt(t, g, res, "B", 1)
	boundT := occAt(t, g, res, "T", 0)
	readT := occAt(t, g, res, "T", 1)

	assert.Equal(t, RoleBound, boundT.Role)
	assert.True(t, hasEdge(res, boundB, readB, KindBody))
	assert.True(t, hasEdge(res, boundT, readT, KindBody))
}

func TestAnalyzer_MatchRebinding(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
f(X) -> Y = X + 1, Y * 2.
`)

	require.Empty(t, res.ScopeErrors)

	boundX := occAt(t, g, res, "X", 0)
	readX := occAt(t, g, res, "X", 1)
	boundY := occAt(t, g, res, "Y", 0)
	readY := occAt(t, g, res, "Y", 1)

	assert.True(t, hasEdge(res, boundX, readX, KindBody))
	assert.Equal(t, RoleBound, boundY.Role)
	assert.True(t, hasEdge(res, boundY, readY, KindBody))
}

func TestAnalyzer_CaseBranchIsolation(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
f(X) ->
    case X of
        {ok, V} -> V;
        error -> nothing
    end,
    X.
`)

	require.Empty(t, res.ScopeErrors, "V stays branch-local; the trailing X read uses the parameter")

	boundV := occAt(t, g, res, "V", 0)
	readV := occAt(t, g, res, "V", 1)
	assert.True(t, hasEdge(res, boundV, readV, KindBody))

	boundX := occAt(t, g, res, "X", 0)
	finalX := occAt(t, g, res, "X", 2)
	assert.True(t, hasEdge(res, boundX, finalX, KindBody))
}

func TestAnalyzer_ReceiveBranchScopes(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
loop(State) ->
    receive
        {msg, Data} -> handle(Data, State);
        stop -> ok
    end.
`)

	require.Empty(t, res.ScopeErrors)

	boundData := occAt(t, g, res, "Data", 0)
	readData := occAt(t, g, res, "Data", 1)
	assert.Equal(t, RoleReceived, boundData.Role)
	assert.True(t, hasEdge(res, boundData, readData, KindBody))

	boundState := occAt(t, g, res, "State", 0)
	readState := occAt(t, g, res, "State", 1)
	assert.True(t, hasEdge(res, boundState, readState, KindBody))
}

func TestAnalyzer_SendToReceiveLink(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
relay(Data) ->
    self() ! {msg, Data},
    receive
        {msg, Payload} -> Payload
    end.
`)

	require.Empty(t, res.ScopeErrors)

	sentData := occAt(t, g, res, "Data", 1)
	assert.Equal(t, RoleSent, sentData.Role)

	boundPayload := occAt(t, g, res, "Payload", 0)
	assert.True(t, hasEdge(res, sentData, boundPayload, KindMessage))
}

func TestAnalyzer_BinarySizeRead(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
take(Len, <<Chunk:Len/binary, Rest/binary>>) -> {Chunk, Rest}.
`)

	require.Empty(t, res.ScopeErrors)

	// The segment size Len reads the parameter binding; only Chunk and
	// Rest bind inside the binary pattern.
	boundLen := occAt(t, g, res, "Len", 0)
	sizeLen := occAt(t, g, res, "Len", 1)
	assert.Equal(t, RoleBound, boundLen.Role)
	assert.Equal(t, RoleBodyRead, sizeLen.Role)
	assert.True(t, hasEdge(res, boundLen, sizeLen, KindBody))

	input := occAt(t, g, res, "<<", 0)
	boundChunk := occAt(t, g, res, "Chunk", 0)
	boundRest := occAt(t, g, res, "Rest", 0)
	assert.Equal(t, RoleMatchInput, input.Role)
	assert.True(t, hasEdge(res, input, boundChunk, KindDestructure))
	assert.True(t, hasEdge(res, input, boundRest, KindDestructure))
}

func TestAnalyzer_SendToVarDestinationInScope(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
relay(Pid, Data) ->
    Pid ! {pack, Data},
    receive
        {pack, Got} -> Got
    end.
`)

	require.Empty(t, res.ScopeErrors)

	// Pid is in scope at the receive, so the send keyed on it is
	// observable and its payload links to the pattern binding.
	sentData := occAt(t, g, res, "Data", 1)
	boundGot := occAt(t, g, res, "Got", 0)
	assert.Equal(t, RoleSent, sentData.Role)
	assert.True(t, hasEdge(res, sentData, boundGot, KindMessage))
}

func TestAnalyzer_SendToVarDestinationOutOfScope(t *testing.T) {
	t.Parallel()

	_, res := analyzeSource(t, `
-module(m).
f(Pid, X) -> Pid ! {note, X};
f(_, _) -> receive {note, V} -> V end.
`)

	// The receive clause never binds Pid, so the send keyed on it is
	// not observable there despite the matching shape.
	assert.Empty(t, edgesOfKind(res, KindMessage))
}

func TestAnalyzer_SendShapeMismatchNoLink(t *testing.T) {
	t.Parallel()

	_, res := analyzeSource(t, `
-module(m).
ping(Pid) ->
    Pid ! {ping, Pid},
    receive
        {pong, X} -> X
    end.
`)

	// {ping, _} cannot match {pong, _}: no message edges at all.
	assert.Empty(t, edgesOfKind(res, KindMessage))
}

func TestAnalyzer_RecursiveEdges(t *testing.T) {
	t.Parallel()

	src := `
-module(m).
count([], Acc) -> Acc;
count([_|T], Acc) -> count(T, Acc + 1).
`

	t.Run("enabled", func(t *testing.T) {
		g, res := analyzeSource(t, src, WithRecursiveEdges(true))

		recursive := edgesOfKind(res, KindRecursive)
		require.Len(t, recursive, 3)
		for _, e := range recursive {
			assert.True(t, e.Kind.Approximate())
		}

		// The argument read T flows to clause two's T binding; the Acc
		// read flows to the Acc binding of every clause.
		readT := occAt(t, g, res, "T", 1)
		boundT := occAt(t, g, res, "T", 0)
		assert.True(t, hasEdge(res, readT, boundT, KindRecursive))

		readAcc := occAt(t, g, res, "Acc", 3)
		boundAcc0 := occAt(t, g, res, "Acc", 0)
		boundAcc1 := occAt(t, g, res, "Acc", 2)
		assert.True(t, hasEdge(res, readAcc, boundAcc0, KindRecursive))
		assert.True(t, hasEdge(res, readAcc, boundAcc1, KindRecursive))
	})

	t.Run("disabled", func(t *testing.T) {
		_, res := analyzeSource(t, src, WithRecursiveEdges(false))
		assert.Empty(t, edgesOfKind(res, KindRecursive))
	})
}

func TestAnalyzer_ArityMismatchNotRecursive(t *testing.T) {
	t.Parallel()

	// f/1 calling f/2 is a different function, not recursion.
	f, err := erlang.Parse("test.erl", []byte(`
-module(m).
f(X) -> f(X, 0).
f(X, Y) -> X + Y.
`))
	require.NoError(t, err)
	groups, errs := extract.Group(f)
	require.Empty(t, errs)
	require.Len(t, groups, 2)

	res := New(WithRecursiveEdges(true)).Analyze(groups[0])
	assert.Empty(t, edgesOfKind(res, KindRecursive))
}

func TestAnalyzer_ScopeError(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
f(X) -> X + Y.
`)

	require.Len(t, res.ScopeErrors, 1)
	assert.Equal(t, "Y", res.ScopeErrors[0].Name)
	assert.Equal(t, 0, res.ScopeErrors[0].Clause)

	// The unresolved read exists as an occurrence but joins no edges.
	readY := occAt(t, g, res, "Y", 0)
	for _, e := range res.Edges {
		assert.NotEqual(t, readY.Index, e.Source)
		assert.NotEqual(t, readY.Index, e.Target)
	}

	// The resolvable read still produced its edge.
	boundX := occAt(t, g, res, "X", 0)
	readX := occAt(t, g, res, "X", 1)
	assert.True(t, hasEdge(res, boundX, readX, KindBody))
}

func TestAnalyzer_Comprehension(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
double(L) -> [X * 2 || X <- L, X > 0].
`)

	require.Empty(t, res.ScopeErrors)

	boundL := occAt(t, g, res, "L", 0)
	readL := occAt(t, g, res, "L", 1)
	assert.True(t, hasEdge(res, boundL, readL, KindBody))

	boundX := occAt(t, g, res, "X", 1)
	assert.Equal(t, RoleBound, boundX.Role)
	guardXRead := occAt(t, g, res, "X", 2)
	templateX := occAt(t, g, res, "X", 0)
	assert.True(t, hasEdge(res, boundX, guardXRead, KindBody))
	assert.True(t, hasEdge(res, boundX, templateX, KindBody))
}

func TestAnalyzer_FunClosure(t *testing.T) {
	t.Parallel()

	g, res := analyzeSource(t, `
-module(m).
scale(L, N) -> lists:map(fun(E) -> E * N end, L).
`)

	require.Empty(t, res.ScopeErrors)

	// The closure captures N from the enclosing clause.
	boundN := occAt(t, g, res, "N", 0)
	readN := occAt(t, g, res, "N", 1)
	assert.True(t, hasEdge(res, boundN, readN, KindBody))

	boundE := occAt(t, g, res, "E", 0)
	readE := occAt(t, g, res, "E", 1)
	assert.Equal(t, RoleBound, boundE.Role)
	assert.True(t, hasEdge(res, boundE, readE, KindBody))
}

func TestAnalyzer_Deterministic(t *testing.T) {
	t.Parallel()

	src := `
-module(m).
process([H|T], Acc) ->
    case H of
        {add, N} -> process(T, Acc + N);
        skip -> process(T, Acc)
    end;
process([], Acc) -> Acc.
`

	_, first := analyzeSource(t, src, WithRecursiveEdges(true))
	for i := 0; i < 5; i++ {
		_, again := analyzeSource(t, src, WithRecursiveEdges(true))
		require.Equal(t, first.Edges, again.Edges)
		require.Equal(t, first.Occurrences, again.Occurrences)
	}
}

func TestAnalyzer_FlowGraphView(t *testing.T) {
	t.Parallel()

	_, res := analyzeSource(t, `
-module(m).
add(X, Y) -> X + Y.
`)

	fg, err := res.FlowGraph()
	require.NoError(t, err)

	edges, err := fg.Edges()
	require.NoError(t, err)
	assert.Len(t, edges, 2)
}
