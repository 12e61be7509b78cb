package record

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/maypok86/otter"
)

// DocProvider supplies the documentation string for a clause group
// identity. Absence yields "", never an error.
type DocProvider interface {
	DocFor(module, fun string, arity int) string
}

// TableProvider serves docstrings from an externally supplied JSON
// table keyed "module:fun/arity".
type TableProvider struct {
	docs map[string]string
}

// LoadTable reads a docstring table from a JSON file.
func LoadTable(path string) (*TableProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read docstring table: %w", err)
	}
	docs := make(map[string]string)
	if err := json.Unmarshal(data, &docs); err != nil {
		return nil, fmt.Errorf("failed to parse docstring table: %w", err)
	}
	return &TableProvider{docs: docs}, nil
}

// NewTableProvider wraps an in-memory docstring table.
func NewTableProvider(docs map[string]string) *TableProvider {
	return &TableProvider{docs: docs}
}

func (p *TableProvider) DocFor(module, fun string, arity int) string {
	return p.docs[fmt.Sprintf("%s:%s/%d", module, fun, arity)]
}

// emptyProvider yields no documentation.
type emptyProvider struct{}

func (emptyProvider) DocFor(string, string, int) string { return "" }

// NoDocs is a provider that always returns the empty string.
func NoDocs() DocProvider { return emptyProvider{} }

// CachedProvider memoizes lookups of a slower provider behind a
// bounded cache, sized for corpus runs that revisit the same modules
// across many clause groups.
type CachedProvider struct {
	inner DocProvider
	cache otter.Cache[string, string]
}

// NewCachedProvider wraps a provider with a cache of the given
// capacity.
func NewCachedProvider(inner DocProvider, capacity int) (*CachedProvider, error) {
	cache, err := otter.MustBuilder[string, string](capacity).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build docstring cache: %w", err)
	}
	return &CachedProvider{inner: inner, cache: cache}, nil
}

func (p *CachedProvider) DocFor(module, fun string, arity int) string {
	key := fmt.Sprintf("%s:%s/%d", module, fun, arity)
	if doc, ok := p.cache.Get(key); ok {
		return doc
	}
	doc := p.inner.DocFor(module, fun, arity)
	p.cache.Set(key, doc)
	return doc
}

// Close releases the cache's maintenance resources.
func (p *CachedProvider) Close() {
	p.cache.Close()
}

// ExtractEdoc scans the comment block immediately preceding a function
// at the given byte offset and returns its @doc text, or "". This is
// the fallback when the external docstring table has no entry.
func ExtractEdoc(src []byte, funcOffset int) string {
	if funcOffset > len(src) {
		return ""
	}

	// Collect contiguous comment lines directly above the function.
	lines := strings.Split(string(src[:funcOffset]), "\n")
	// The last element is the (partial) line the function starts on.
	lines = lines[:len(lines)-1]

	var comment []string
	for i := len(lines) - 1; i >= 0; i-- {
		trimmed := strings.TrimSpace(lines[i])
		if strings.HasPrefix(trimmed, "%") {
			comment = append([]string{trimmed}, comment...)
			continue
		}
		if trimmed == "" && len(comment) == 0 {
			continue
		}
		break
	}

	return parseEdocBlock(comment)
}

// parseEdocBlock extracts the @doc paragraph from an edoc comment
// block: everything from the @doc tag up to the next @tag or the end
// of the block.
func parseEdocBlock(lines []string) string {
	var doc []string
	inDoc := false
	for _, line := range lines {
		text := strings.TrimLeft(line, "% \t")
		switch {
		case strings.HasPrefix(text, "@doc"):
			inDoc = true
			text = strings.TrimSpace(strings.TrimPrefix(text, "@doc"))
			if text != "" {
				doc = append(doc, text)
			}
		case inDoc && strings.HasPrefix(text, "@"):
			inDoc = false
		case inDoc:
			if text = strings.TrimSpace(text); text != "" {
				doc = append(doc, text)
			}
		}
	}
	return strings.Join(doc, " ")
}
