package discover

import (
	"bufio"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/brightgraph/codegraph/internal/lang"
)

// IGNORE_PATTERNS are directory names to skip during discovery.
var IGNORE_PATTERNS = map[string]bool{
	".cache": true, ".claude": true, ".eclipse": true, ".eggs": true,
	".env": true, ".git": true, ".gradle": true, ".hg": true,
	".idea": true, ".maven": true, ".mypy_cache": true, ".nox": true,
	".npm": true, ".nyc_output": true, ".pnpm-store": true,
	".pytest_cache": true, ".qdrant_code_embeddings": true,
	".ruff_cache": true, ".svn": true, ".tmp": true, ".tox": true,
	".venv": true, ".vs": true, ".vscode": true, ".yarn": true,
	"__pycache__": true, "bin": true, "bower_components": true,
	"build": true, "coverage": true, "dist": true, "env": true,
	"htmlcov": true, "node_modules": true, "obj": true, "out": true,
	"Pods": true, "site-packages": true, "target": true, "temp": true,
	"tmp": true, "vendor": true, "venv": true,
}

// IGNORE_SUFFIXES are file suffixes to skip.
var IGNORE_SUFFIXES = []string{
	".tmp", "~", ".pyc", ".pyo", ".o", ".a", ".so", ".dll", ".class",
}

// FileInfo represents a discovered source file.
type FileInfo struct {
	Path     string        // absolute path
	RelPath  string        // relative to repo root, slash-separated
	Language lang.Language // detected language
}

// Options configures file discovery.
type Options struct {
	IgnoreFile    string   // path to .cgrignore file (optional)
	IncludeGlobs  []string // doublestar patterns; if set, only matches are kept
	ExcludeGlobs  []string // doublestar patterns; matches are skipped
	MaxFileBytes  int64    // files larger than this are skipped with a warning; 0 = no limit
}

// shouldSkipDir returns true if the directory should be pruned during traversal.
func shouldSkipDir(name, rel string, extraIgnore []string) bool {
	if strings.HasPrefix(name, ".") && name != "." {
		return true
	}
	if IGNORE_PATTERNS[name] {
		return true
	}
	for _, pattern := range extraIgnore {
		if matched, _ := doublestar.Match(pattern, name); matched {
			return true
		}
		if matched, _ := doublestar.Match(pattern, rel); matched {
			return true
		}
	}
	return false
}

func hasIgnoredSuffix(path string) bool {
	for _, suffix := range IGNORE_SUFFIXES {
		if strings.HasSuffix(path, suffix) {
			return true
		}
	}
	return false
}

func matchesGlobs(rel string, patterns []string) bool {
	for _, p := range patterns {
		if matched, _ := doublestar.Match(p, rel); matched {
			return true
		}
	}
	return false
}

// Discover walks a repository and returns all recognized source files, in
// deterministic lexicographic order by relative path so that repeated runs
// over unchanged source produce identical FQNs and registry contents.
//
// Symbolic links are followed at most once: visited real directories are
// tracked by canonical path so a symlink cycle cannot recurse forever.
func Discover(ctx context.Context, repoPath string, opts *Options) ([]FileInfo, error) {
	repoPath, err := filepath.Abs(repoPath)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if opts == nil {
		opts = &Options{}
	}

	var extraIgnore []string
	if opts.IgnoreFile != "" {
		extraIgnore, _ = loadIgnoreFile(opts.IgnoreFile)
	} else {
		ignPath := filepath.Join(repoPath, ".cgrignore")
		extraIgnore, _ = loadIgnoreFile(ignPath)
	}

	visitedDirs := map[string]bool{}
	var files []FileInfo

	var walk func(dir string) error
	walk = func(dir string) error {
		if err := ctx.Err(); err != nil {
			return err
		}

		real, err := filepath.EvalSymlinks(dir)
		if err != nil {
			real = dir
		}
		if visitedDirs[real] {
			return nil
		}
		visitedDirs[real] = true

		entries, err := os.ReadDir(dir)
		if err != nil {
			return nil
		}

		// Sort for deterministic traversal order.
		names := make([]string, len(entries))
		for i, e := range entries {
			names[i] = e.Name()
		}
		sort.Strings(names)

		for _, name := range names {
			path := filepath.Join(dir, name)
			rel, _ := filepath.Rel(repoPath, path)
			rel = filepath.ToSlash(rel)

			info, err := os.Stat(path)
			if err != nil {
				continue
			}

			if info.IsDir() {
				if shouldSkipDir(name, rel, extraIgnore) {
					continue
				}
				if err := walk(path); err != nil {
					return err
				}
				continue
			}

			if hasIgnoredSuffix(path) {
				continue
			}
			if len(opts.ExcludeGlobs) > 0 && matchesGlobs(rel, opts.ExcludeGlobs) {
				continue
			}
			if len(opts.IncludeGlobs) > 0 && !matchesGlobs(rel, opts.IncludeGlobs) {
				continue
			}

			ext := filepath.Ext(path)
			l, ok := lang.LanguageForExtension(ext)
			if !ok {
				continue
			}

			if opts.MaxFileBytes > 0 && info.Size() > opts.MaxFileBytes {
				slog.Warn("skipping oversized file", "path", rel, "bytes", info.Size(), "limit", opts.MaxFileBytes)
				continue
			}

			files = append(files, FileInfo{
				Path:     path,
				RelPath:  rel,
				Language: l,
			})
		}
		return nil
	}

	if err := walk(repoPath); err != nil {
		return nil, err
	}

	sort.Slice(files, func(i, j int) bool { return files[i].RelPath < files[j].RelPath })

	return files, nil
}

func loadIgnoreFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var patterns []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line != "" && !strings.HasPrefix(line, "#") {
			patterns = append(patterns, line)
		}
	}
	return patterns, scanner.Err()
}
