package extract

import (
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// compiledPattern holds both the pattern string and compiled glob
type compiledPattern struct {
	pattern string
	glob    glob.Glob
}

// Locator finds Erlang source files under a repository checkout,
// honoring include/ignore glob patterns and per-file size limits.
type Locator struct {
	rootDir         string
	includePatterns []compiledPattern
	ignorePatterns  []compiledPattern
	minSize         int64
	maxSize         int64
}

// NewLocator compiles the configured glob patterns. Size limits of
// zero disable the corresponding check.
func NewLocator(rootDir string, includePatterns, ignorePatterns []string, minSize, maxSize int64) (*Locator, error) {
	l := &Locator{
		rootDir: rootDir,
		minSize: minSize,
		maxSize: maxSize,
	}

	for _, pattern := range includePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		l.includePatterns = append(l.includePatterns, compiledPattern{pattern: pattern, glob: g})
	}

	for _, pattern := range ignorePatterns {
		g, err := glob.Compile(pattern, '/')
		if err != nil {
			return nil, err
		}
		l.ignorePatterns = append(l.ignorePatterns, compiledPattern{pattern: pattern, glob: g})
	}

	return l, nil
}

// Discover walks the root directory and returns candidate source file
// paths in walk order, plus the number of files skipped for size.
// Oversized and undersized files are logged, never fatal.
func (l *Locator) Discover() (files []string, sizeSkipped int, err error) {
	files = []string{}

	err = filepath.Walk(l.rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		relPath, err := filepath.Rel(l.rootDir, path)
		if err != nil {
			return err
		}

		// Normalize path separators for glob matching
		relPath = filepath.ToSlash(relPath)

		if l.shouldIgnore(relPath) {
			return nil
		}

		if !l.matchesAnyPattern(relPath, l.includePatterns) {
			return nil
		}

		if l.maxSize > 0 && info.Size() > l.maxSize {
			log.Printf("Skipping %s: %d bytes exceeds max file size %d\n", relPath, info.Size(), l.maxSize)
			sizeSkipped++
			return nil
		}
		if l.minSize > 0 && info.Size() < l.minSize {
			sizeSkipped++
			return nil
		}

		files = append(files, path)
		return nil
	})

	return files, sizeSkipped, err
}

// Matches reports whether a root-relative path is a discovery
// candidate under the configured include/ignore patterns. Used by
// watch mode to filter change events.
func (l *Locator) Matches(relPath string) bool {
	relPath = filepath.ToSlash(relPath)
	return !l.shouldIgnore(relPath) && l.matchesAnyPattern(relPath, l.includePatterns)
}

// Ignores reports whether a root-relative path falls under an ignore
// pattern.
func (l *Locator) Ignores(relPath string) bool {
	return l.shouldIgnore(filepath.ToSlash(relPath))
}

func (l *Locator) shouldIgnore(relPath string) bool {
	if l.matchesAnyPattern(relPath, l.ignorePatterns) {
		return true
	}

	// A directory prefix should match patterns written with a /**
	// suffix, so "deps/cowboy/src/x.erl" is caught by "deps/**".
	pathWithSuffix := relPath + "/**"
	return l.matchesAnyPattern(pathWithSuffix, l.ignorePatterns)
}

func (l *Locator) matchesAnyPattern(path string, patterns []compiledPattern) bool {
	for _, cp := range patterns {
		if cp.glob.Match(path) {
			return true
		}
	}

	// A pattern like "**/*.erl" should also match files in the root
	// directory, which have no slash in their relative path.
	if !strings.Contains(path, "/") {
		for _, cp := range patterns {
			if strings.HasPrefix(cp.pattern, "**/") {
				simplified := strings.TrimPrefix(cp.pattern, "**/")
				if simplifiedGlob, err := glob.Compile(simplified, '/'); err == nil {
					if simplifiedGlob.Match(path) {
						return true
					}
				}
			}
		}
	}

	return false
}
