package cli

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"

	"github.com/mvp-joe/erlgraph/internal/config"
	"github.com/mvp-joe/erlgraph/internal/manifest"
)

// summaryCmd represents the summary command
var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Show the outcome of the most recent extraction run",
	RunE:  runSummary,
}

func init() {
	rootCmd.AddCommand(summaryCmd)
}

func runSummary(cmd *cobra.Command, args []string) error {
	rootDir, err := resolveRoot()
	if err != nil {
		return err
	}

	cfg, err := config.LoadConfigFromDir(rootDir)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	store, err := manifest.Open(manifestPath(rootDir, cfg))
	if err != nil {
		return fmt.Errorf("failed to open manifest: %w", err)
	}
	defer store.Close()

	run, err := store.LastRun()
	if err != nil {
		return err
	}
	if run == nil {
		fmt.Println("No extraction runs recorded yet. Run 'erlgraph extract' first.")
		return nil
	}

	fmt.Printf("Last run:     %s\n", run.ID)
	fmt.Printf("Started:      %s\n", run.StartedAt.Format("2006-01-02 15:04:05"))
	fmt.Printf("Duration:     %.1fs\n", run.FinishedAt.Sub(run.StartedAt).Seconds())
	fmt.Printf("Files:        %s (%s failed)\n", formatNumber(run.FilesTotal), formatNumber(run.FilesFailed))
	fmt.Printf("Records:      %s\n", formatNumber(run.Records))

	counts, err := store.ErrorCounts(run.ID)
	if err != nil {
		return err
	}
	if len(counts) > 0 {
		fmt.Println("Errors by kind:")
		kinds := make([]string, 0, len(counts))
		for kind := range counts {
			kinds = append(kinds, kind)
		}
		sort.Strings(kinds)
		for _, kind := range kinds {
			fmt.Printf("  %-24s %s\n", kind, formatNumber(counts[kind]))
		}
	}

	return nil
}

// manifestPath resolves the manifest database location relative to the
// repository root.
func manifestPath(rootDir string, cfg *config.Config) string {
	if filepath.IsAbs(cfg.Manifest.Path) {
		return cfg.Manifest.Path
	}
	return filepath.Join(rootDir, cfg.Manifest.Path)
}
