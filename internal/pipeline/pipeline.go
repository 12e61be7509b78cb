package pipeline

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mvp-joe/erlgraph/internal/config"
	"github.com/mvp-joe/erlgraph/internal/dataflow"
	"github.com/mvp-joe/erlgraph/internal/erlang"
	"github.com/mvp-joe/erlgraph/internal/extract"
	"github.com/mvp-joe/erlgraph/internal/manifest"
	"github.com/mvp-joe/erlgraph/internal/record"
)

// Pipeline extracts training records from an Erlang source tree: it
// discovers files, parses them, groups function clauses, derives each
// group's data-flow graph, and writes JSONL records to the configured
// sink. Files are processed concurrently; failures in one file never
// abort siblings unless fail-fast is set.
type Pipeline struct {
	rootDir  string
	cfg      *config.Config
	docs     record.DocProvider
	progress ProgressReporter
	store    *manifest.Store
}

// Option customizes a Pipeline.
type Option func(*Pipeline)

// WithDocProvider supplies an external docstring source. Without one,
// records fall back to edoc comments in the source itself.
func WithDocProvider(p record.DocProvider) Option {
	return func(pl *Pipeline) { pl.docs = p }
}

// WithProgress attaches a progress reporter.
func WithProgress(p ProgressReporter) Option {
	return func(pl *Pipeline) { pl.progress = p }
}

// WithManifest records per-file outcomes in a manifest store.
func WithManifest(s *manifest.Store) Option {
	return func(pl *Pipeline) { pl.store = s }
}

// New creates a Pipeline rooted at rootDir.
func New(rootDir string, cfg *config.Config, opts ...Option) *Pipeline {
	p := &Pipeline{
		rootDir:  rootDir,
		cfg:      cfg,
		docs:     record.NoDocs(),
		progress: &NoOpProgressReporter{},
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// fileResult is one worker's outcome for a single file.
type fileResult struct {
	path     string
	checksum string
	groups   int
	skipped  int
	records  int
	scopeErr int
	err      error
}

// Run executes one extraction pass over the tree. The output sink only
// appears under its final name when the run completes; a cancelled or
// failed run leaves no partial corpus behind.
func (p *Pipeline) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()
	summary := &Summary{ErrorKinds: make(map[string]int)}

	p.progress.OnDiscoveryStart()
	locator, err := extract.NewLocator(p.rootDir, p.cfg.Paths.Include, p.cfg.Paths.Ignore,
		p.cfg.Limits.MinFileSize, p.cfg.Limits.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("invalid path patterns: %w", err)
	}
	files, sizeSkipped, err := locator.Discover()
	if err != nil {
		return nil, fmt.Errorf("file discovery failed: %w", err)
	}
	p.progress.OnDiscoveryComplete(len(files), sizeSkipped)

	summary.FilesTotal = len(files)
	summary.SizeSkipped = sizeSkipped

	runID := uuid.NewString()
	summary.RunID = runID
	if p.store != nil {
		if err := p.store.BeginRun(runID, start); err != nil {
			return nil, err
		}
	}

	outPath := p.cfg.Output.Path
	if !filepath.IsAbs(outPath) {
		outPath = filepath.Join(p.rootDir, outPath)
	}
	emitter, err := record.NewEmitter(outPath)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	p.progress.OnFileProcessingStart(len(files))

	jobs := make(chan string)
	results := make(chan fileResult)

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Pipeline.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range jobs {
				results <- p.processFile(ctx, path, emitter)
			}
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- f:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var firstErr error
	for res := range results {
		relPath, _ := filepath.Rel(p.rootDir, res.path)
		p.progress.OnFileProcessed(relPath)

		summary.Groups += res.groups
		summary.GroupsSkipped += res.skipped
		summary.ScopeErrors += res.scopeErr

		status := manifest.StatusOK
		errKind, errMsg := "", ""
		if res.err != nil {
			summary.FilesFailed++
			summary.recordFailure(relPath, res.err)
			status = manifest.StatusFailed
			errKind = Classify(res.err)
			errMsg = res.err.Error()
			if p.cfg.Pipeline.FailFast && firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", relPath, res.err)
				cancel()
			}
		} else {
			summary.FilesOK++
		}
		if p.store != nil {
			if err := p.store.RecordFile(runID, relPath, res.checksum, status, errKind, errMsg, res.records); err != nil {
				log.Printf("Warning: failed to record manifest entry for %s: %v", relPath, err)
			}
		}
	}

	closeErr := emitter.Close()
	summary.Records = emitter.Written()
	summary.Duration = time.Since(start)

	if p.store != nil {
		if err := p.store.FinishRun(runID, time.Now(), summary.FilesTotal, summary.FilesFailed, summary.Records); err != nil {
			log.Printf("Warning: failed to finish manifest run: %v", err)
		}
	}

	if firstErr != nil {
		return summary, firstErr
	}
	if closeErr != nil {
		return summary, closeErr
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	p.progress.OnComplete(summary)
	return summary, nil
}

// processFile runs the full per-file path: read, parse, group,
// analyze, assemble, emit. The per-file timeout is cooperative: the
// deadline is checked between phases and between groups, so a phase
// already in flight runs to completion before the overrun is observed.
func (p *Pipeline) processFile(ctx context.Context, path string, emitter *record.Emitter) fileResult {
	res := fileResult{path: path}

	if p.cfg.Pipeline.FileTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.cfg.Pipeline.FileTimeout)
		defer cancel()
	}

	src, err := os.ReadFile(path)
	if err != nil {
		res.err = err
		return res
	}
	sum := sha256.Sum256(src)
	res.checksum = hex.EncodeToString(sum[:])

	if err := ctx.Err(); err != nil {
		res.err = err
		return res
	}

	relPath, err := filepath.Rel(p.rootDir, path)
	if err != nil {
		relPath = path
	}

	f, err := erlang.Parse(relPath, src)
	if err != nil {
		res.err = err
		return res
	}
	if f.Module == "" {
		// Headerless source still gets a stable identity.
		f.Module = moduleFromPath(path)
	}

	groups, groupErrs := extract.Group(f)
	for _, gerr := range groupErrs {
		log.Printf("Skipping group in %s: %v", relPath, gerr)
		res.skipped++
	}

	analyzer := dataflow.New(dataflow.WithRecursiveEdges(p.cfg.Flow.RecursiveEdges))
	assembler := record.NewAssembler(p.cfg.Output.BaseURL)

	for _, group := range groups {
		if err := ctx.Err(); err != nil {
			res.err = err
			return res
		}
		if p.skipForLineLimits(group) {
			res.skipped++
			continue
		}

		flow := analyzer.Analyze(group)
		res.scopeErr += len(flow.ScopeErrors)

		doc := p.docs.DocFor(group.Module, group.Name, group.Arity)
		if doc == "" {
			byteFrom, _ := group.ByteRange()
			doc = record.ExtractEdoc(src, byteFrom)
		}

		rec, err := assembler.Assemble(group, flow, relPath, doc)
		if err != nil {
			res.err = fmt.Errorf("failed to assemble %s: %w", group.ID(), err)
			return res
		}
		if err := emitter.Emit(rec); err != nil {
			res.err = err
			return res
		}
		res.groups++
		res.records++
	}

	return res
}

func (p *Pipeline) skipForLineLimits(group *extract.ClauseGroup) bool {
	first, last := group.LineRange()
	lines := last - first + 1
	if p.cfg.Limits.MaxFunctionLines > 0 && lines > p.cfg.Limits.MaxFunctionLines {
		return true
	}
	if p.cfg.Limits.MinFunctionLines > 0 && lines < p.cfg.Limits.MinFunctionLines {
		return true
	}
	return false
}

// moduleFromPath derives a module name from the file name when the
// source has no -module attribute.
func moduleFromPath(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}
