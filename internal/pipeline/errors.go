package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"time"

	"github.com/mvp-joe/erlgraph/internal/erlang"
	"github.com/mvp-joe/erlgraph/internal/extract"
	"github.com/mvp-joe/erlgraph/internal/record"
)

// Error kinds used for aggregation. A run that survives individual
// file failures still reports what went wrong, by kind, at the end.
const (
	KindParse     = "parse"
	KindClauses   = "non_contiguous_clauses"
	KindRead      = "read"
	KindTimeout   = "timeout"
	KindCancelled = "cancelled"
	KindSink      = "sink"
	KindInternal  = "internal"
)

// Classify maps an error to its aggregation kind.
func Classify(err error) string {
	var parseErr *erlang.ParseError
	if errors.As(err, &parseErr) {
		return KindParse
	}
	var clauseErr *extract.NonContiguousClauseError
	if errors.As(err, &clauseErr) {
		return KindClauses
	}
	var sinkErr *record.SinkWriteError
	if errors.As(err, &sinkErr) {
		return KindSink
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	if errors.Is(err, context.Canceled) {
		return KindCancelled
	}
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return KindRead
	}
	return KindInternal
}

// FileError is one failed file retained as a representative sample in
// the run summary.
type FileError struct {
	Path string
	Kind string
	Err  error
}

// Summary is the aggregate outcome of one extraction run.
type Summary struct {
	RunID string

	FilesTotal   int // discovered candidate files
	FilesOK      int
	FilesFailed  int
	FilesSkipped int // unchanged content, skipped via the manifest
	SizeSkipped  int // excluded during discovery for size

	Groups        int // clause groups analyzed
	GroupsSkipped int // dropped for line limits or non-contiguous clauses
	Records       int // records written to the sink
	ScopeErrors   int // unresolved variable reads across all groups

	ErrorKinds map[string]int
	Samples    []FileError

	Duration time.Duration
}

// maxSamples bounds how many failed files the summary retains verbatim.
const maxSamples = 10

func (s *Summary) recordFailure(path string, err error) {
	kind := Classify(err)
	if s.ErrorKinds == nil {
		s.ErrorKinds = make(map[string]int)
	}
	s.ErrorKinds[kind]++
	if len(s.Samples) < maxSamples {
		s.Samples = append(s.Samples, FileError{Path: path, Kind: kind, Err: err})
	}
}
