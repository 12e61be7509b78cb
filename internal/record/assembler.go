package record

import (
	"fmt"
	"log"
	"strings"

	"github.com/mvp-joe/erlgraph/internal/dataflow"
	"github.com/mvp-joe/erlgraph/internal/extract"
)

// TrainingRecord is one persisted corpus entry: a documented function
// clause group with its token sequence and data-flow graph. Immutable
// once assembled.
type TrainingRecord struct {
	Idx        string   `json:"idx"`
	URL        string   `json:"url"`
	Docstring  string   `json:"docstring"`
	Code       string   `json:"code"`
	CodeTokens []string `json:"code_tokens"`
	// DFG entries are [source_token_index, target_token_index], 0-based
	// into CodeTokens.
	DFG [][2]int `json:"dfg"`
}

// EmptyClauseGroupError reports a group with zero clauses. The grouper
// never produces one, so this is an internal-error severity check.
type EmptyClauseGroupError struct {
	ID string
}

func (e *EmptyClauseGroupError) Error() string {
	return fmt.Sprintf("clause group %s has no clauses", e.ID)
}

// Assembler merges a clause group, its flow analysis, and an external
// docstring into a TrainingRecord.
type Assembler struct {
	baseURL string
}

// NewAssembler creates an Assembler. baseURL, when non-empty, prefixes
// the record's source URL.
func NewAssembler(baseURL string) *Assembler {
	return &Assembler{baseURL: baseURL}
}

// Assemble builds the record for one clause group. Flow edges are
// remapped from occurrence indices to group-relative token indices and
// validated against the token sequence before emission; an edge that
// fails validation is dropped and logged, never written.
func (a *Assembler) Assemble(group *extract.ClauseGroup, res *dataflow.Result, relPath, doc string) (*TrainingRecord, error) {
	if len(group.Clauses) == 0 {
		return nil, &EmptyClauseGroupError{ID: group.ID()}
	}

	// Rebuilding the graph view revalidates edge endpoints against the
	// occurrence set.
	if _, err := res.FlowGraph(); err != nil {
		return nil, fmt.Errorf("flow graph for %s is inconsistent: %w", group.ID(), err)
	}

	tokFrom, tokTo := group.TokenRange()
	byteFrom, byteTo := group.ByteRange()

	tokens := group.File.Tokens[tokFrom : tokTo+1]
	codeTokens := make([]string, len(tokens))
	for i, t := range tokens {
		codeTokens[i] = t.Text
	}

	dfg := make([][2]int, 0, len(res.Edges))
	for _, e := range res.Edges {
		src := res.Occurrences[e.Source].Token - tokFrom
		dst := res.Occurrences[e.Target].Token - tokFrom
		if src < 0 || src >= len(codeTokens) || dst < 0 || dst >= len(codeTokens) {
			log.Printf("Warning: dropping out-of-range flow edge [%d,%d] in %s\n", src, dst, group.ID())
			continue
		}
		dfg = append(dfg, [2]int{src, dst})
	}

	return &TrainingRecord{
		Idx:        group.ID(),
		URL:        a.recordURL(relPath, group),
		Docstring:  doc,
		Code:       string(group.File.Src[byteFrom:byteTo]),
		CodeTokens: codeTokens,
		DFG:        dfg,
	}, nil
}

func (a *Assembler) recordURL(relPath string, group *extract.ClauseGroup) string {
	first, last := group.LineRange()
	path := strings.ReplaceAll(relPath, "\\", "/")
	if a.baseURL == "" {
		return fmt.Sprintf("%s#L%d-L%d", path, first, last)
	}
	return fmt.Sprintf("%s/%s#L%d-L%d", strings.TrimSuffix(a.baseURL, "/"), path, first, last)
}
