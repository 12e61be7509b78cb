package cli

import (
	"fmt"
	"log"
	"sort"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/mvp-joe/erlgraph/internal/pipeline"
)

// CLIProgressReporter implements progress reporting with progress bars.
type CLIProgressReporter struct {
	quiet          bool
	fileBar        *progressbar.ProgressBar
	startTime      time.Time
	totalFiles     int
	processedFiles int
}

// NewCLIProgressReporter creates a new CLI progress reporter.
func NewCLIProgressReporter(quiet bool) *CLIProgressReporter {
	return &CLIProgressReporter{
		quiet:     quiet,
		startTime: time.Now(),
	}
}

func (c *CLIProgressReporter) OnDiscoveryStart() {
	if c.quiet {
		return
	}
	log.Println("Discovering source files...")
}

func (c *CLIProgressReporter) OnDiscoveryComplete(files, sizeSkipped int) {
	if c.quiet {
		return
	}
	if sizeSkipped > 0 {
		log.Printf("Processing %d source files (%d skipped for size)\n", files, sizeSkipped)
	} else {
		log.Printf("Processing %d source files\n", files)
	}
	fmt.Println()
}

func (c *CLIProgressReporter) OnFileProcessingStart(totalFiles int) {
	if c.quiet {
		return
	}
	c.totalFiles = totalFiles
	c.processedFiles = 0

	c.fileBar = progressbar.NewOptions(totalFiles,
		progressbar.OptionSetDescription("Extracting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("files/s"),
		progressbar.OptionThrottle(65*time.Millisecond),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionOnCompletion(func() {
			fmt.Println()
		}),
	)
}

func (c *CLIProgressReporter) OnFileProcessed(fileName string) {
	if c.quiet {
		return
	}
	if c.fileBar != nil {
		c.processedFiles++
		c.fileBar.Add(1)
	}
}

func (c *CLIProgressReporter) OnComplete(summary *pipeline.Summary) {
	if c.quiet {
		return
	}

	fmt.Println()
	fmt.Printf("✓ Extraction complete: %s records in %.1fs\n",
		formatNumber(summary.Records), summary.Duration.Seconds())
	fmt.Printf("  Files:  %s ok, %s failed, %s skipped for size\n",
		formatNumber(summary.FilesOK), formatNumber(summary.FilesFailed), formatNumber(summary.SizeSkipped))
	fmt.Printf("  Groups: %s analyzed, %s skipped\n",
		formatNumber(summary.Groups), formatNumber(summary.GroupsSkipped))
	if summary.ScopeErrors > 0 {
		fmt.Printf("  Unresolved variable reads: %s\n", formatNumber(summary.ScopeErrors))
	}
	kinds := make([]string, 0, len(summary.ErrorKinds))
	for kind := range summary.ErrorKinds {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	for _, kind := range kinds {
		fmt.Printf("  Errors (%s): %s\n", kind, formatNumber(summary.ErrorKinds[kind]))
	}
}

// formatNumber formats integer with thousand separators.
// Examples: 1234 -> "1,234", 1234567 -> "1,234,567"
func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	var result string
	for i, c := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(c)
	}
	return result
}
