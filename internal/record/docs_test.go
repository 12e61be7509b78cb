package record

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test Plan for docstring providers:
// - TableProvider looks up module:fun/arity keys, missing keys yield ""
// - LoadTable reads a JSON table from disk
// - CachedProvider memoizes inner lookups
// - ExtractEdoc finds the @doc paragraph directly above a function
// - Edoc extraction stops at the next @tag and tolerates blank gaps

func TestTableProvider(t *testing.T) {
	t.Parallel()

	p := NewTableProvider(map[string]string{
		"m:add/2": "Adds two numbers.",
	})

	assert.Equal(t, "Adds two numbers.", p.DocFor("m", "add", 2))
	assert.Empty(t, p.DocFor("m", "add", 3))
	assert.Empty(t, p.DocFor("other", "add", 2))
}

func TestLoadTable(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "docs.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"m:f/1": "Does f."}`), 0644))

	p, err := LoadTable(path)
	require.NoError(t, err)
	assert.Equal(t, "Does f.", p.DocFor("m", "f", 1))

	_, err = LoadTable(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

// countingProvider records how often the inner lookup runs.
type countingProvider struct {
	calls int
}

func (p *countingProvider) DocFor(module, fun string, arity int) string {
	p.calls++
	return module + ":" + fun
}

func TestCachedProvider(t *testing.T) {
	t.Parallel()

	inner := &countingProvider{}
	cached, err := NewCachedProvider(inner, 16)
	require.NoError(t, err)
	defer cached.Close()

	assert.Equal(t, "m:f", cached.DocFor("m", "f", 1))
	assert.Equal(t, "m:f", cached.DocFor("m", "f", 1))
	assert.Equal(t, "m:g", cached.DocFor("m", "g", 1))
	assert.Equal(t, 2, inner.calls, "repeat lookup served from cache")
}

func TestExtractEdoc(t *testing.T) {
	t.Parallel()

	src := `-module(m).

%% @doc Computes the running total
%% across all entries.
%% @end
total(L) -> lists:sum(L).
`
	offset := strings.Index(src, "total(")
	doc := ExtractEdoc([]byte(src), offset)
	assert.Equal(t, "Computes the running total across all entries.", doc)
}

func TestExtractEdoc_NoDocTag(t *testing.T) {
	t.Parallel()

	src := `-module(m).
%% just a plain comment
f() -> ok.
`
	offset := strings.Index(src, "f(")
	assert.Empty(t, ExtractEdoc([]byte(src), offset))
}

func TestExtractEdoc_StopsAtNextTag(t *testing.T) {
	t.Parallel()

	src := `%% @doc Short summary.
%% @spec f() -> ok
f() -> ok.
`
	offset := strings.Index(src, "f(")
	assert.Equal(t, "Short summary.", ExtractEdoc([]byte(src), offset))
}

func TestExtractEdoc_NoCommentBlock(t *testing.T) {
	t.Parallel()

	src := `-module(m).
f() -> ok.
`
	offset := strings.Index(src, "f(")
	assert.Empty(t, ExtractEdoc([]byte(src), offset))
}
