package cli

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/erlgraph/internal/config"
	"github.com/mvp-joe/erlgraph/internal/manifest"
	"github.com/mvp-joe/erlgraph/internal/pipeline"
	"github.com/mvp-joe/erlgraph/internal/record"
)

var (
	quietFlag    bool
	watchFlag    bool
	failFastFlag bool

	workersFlag int
	outputFlag  string
	docsFlag    string
	baseURLFlag string

	recursiveEdgesFlag bool
)

// extractCmd represents the extract command
var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Extract training records from an Erlang source tree",
	Long: `Extract parses every Erlang source file under the root, groups each
function's clauses into a single unit, derives its data-flow graph, and
writes one JSONL record per function to the output sink.

The extractor:
  - Discovers *.erl files honoring include/ignore patterns
  - Parses multi-clause functions, guards, and message passing
  - Links variable occurrences into deterministic flow edges
  - Attaches docstrings from an external table or edoc comments
  - Writes records atomically (temp file renamed into place)

Examples:
  # Extract the current directory
  erlgraph extract

  # Extract with progress bars disabled
  erlgraph extract --quiet

  # Watch for changes and re-extract
  erlgraph extract --watch

  # Use an external docstring table
  erlgraph extract --docs docs.json --base-url https://example.com/src
`,
	RunE: runExtract,
}

func init() {
	rootCmd.AddCommand(extractCmd)
	extractCmd.Flags().BoolVarP(&quietFlag, "quiet", "q", false, "Disable progress bars and non-error output")
	extractCmd.Flags().BoolVarP(&watchFlag, "watch", "w", false, "Watch for file changes and re-extract")
	extractCmd.Flags().BoolVar(&failFastFlag, "fail-fast", false, "Stop the run on the first file failure")
	extractCmd.Flags().IntVar(&workersFlag, "workers", 0, "Number of concurrent file workers (0 uses the configured default)")
	extractCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Output JSONL path (overrides config)")
	extractCmd.Flags().StringVar(&docsFlag, "docs", "", "Path to a JSON docstring table keyed module:fun/arity")
	extractCmd.Flags().StringVar(&baseURLFlag, "base-url", "", "URL prefix for record source links")
	extractCmd.Flags().BoolVar(&recursiveEdgesFlag, "recursive-edges", true, "Include approximate recursive-call flow edges")
}

func runExtract(cmd *cobra.Command, args []string) error {
	// Set up context with cancellation for Ctrl+C
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		fmt.Println("\nInterrupted! Cancelling extraction...")
		cancel()
	}()

	rootDir, err := resolveRoot()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	applyFlags(cmd, cfg)

	docs, closeDocs, err := buildDocProvider(cfg)
	if err != nil {
		return err
	}
	defer closeDocs()

	store, err := manifest.Open(manifestPath(rootDir, cfg))
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer store.Close()

	progress := NewCLIProgressReporter(quietFlag)
	p := pipeline.New(rootDir, cfg,
		pipeline.WithDocProvider(docs),
		pipeline.WithProgress(progress),
		pipeline.WithManifest(store),
	)

	summary, err := p.Run(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("extraction cancelled")
		}
		return fmt.Errorf("extraction failed: %w", err)
	}

	if quietFlag {
		fmt.Printf("Extraction complete: %d records from %d files in %.2fs\n",
			summary.Records, summary.FilesTotal, summary.Duration.Seconds())
	}

	if !watchFlag {
		return nil
	}

	if !quietFlag {
		log.Println("Starting watch mode...")
	}
	watcher, err := pipeline.NewWatcher(p)
	if err != nil {
		return fmt.Errorf("failed to start watch mode: %w", err)
	}
	watcher.Start(ctx)
	defer watcher.Stop()

	<-ctx.Done()
	if !quietFlag {
		log.Println("Watch mode stopped")
	}
	return nil
}

// applyFlags overlays explicitly set command-line flags onto the
// loaded configuration. Flags win over config file and environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("workers") && workersFlag > 0 {
		cfg.Pipeline.Workers = workersFlag
	}
	if cmd.Flags().Changed("fail-fast") {
		cfg.Pipeline.FailFast = failFastFlag
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.Path = outputFlag
	}
	if cmd.Flags().Changed("docs") {
		cfg.Docs.Path = docsFlag
	}
	if cmd.Flags().Changed("base-url") {
		cfg.Output.BaseURL = baseURLFlag
	}
	if cmd.Flags().Changed("recursive-edges") {
		cfg.Flow.RecursiveEdges = recursiveEdgesFlag
	}
}

// buildDocProvider wires the docstring source: an external table when
// configured, cached behind a bounded cache, otherwise nothing (edoc
// fallback happens per file inside the pipeline).
func buildDocProvider(cfg *config.Config) (record.DocProvider, func(), error) {
	if cfg.Docs.Path == "" {
		return record.NoDocs(), func() {}, nil
	}

	table, err := record.LoadTable(cfg.Docs.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load docstring table: %w", err)
	}
	cached, err := record.NewCachedProvider(table, cfg.Docs.CacheSize)
	if err != nil {
		return nil, nil, err
	}
	return cached, cached.Close, nil
}
