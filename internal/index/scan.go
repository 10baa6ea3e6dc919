package index

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/spetr/pyast-rag/internal/config"
)

// Matcher decides which project-relative paths are indexed.
type Matcher struct {
	include []string
	exclude []string
}

// NewMatcher builds a matcher from the index section of the config.
func NewMatcher(cfg config.IndexConfig) *Matcher {
	return &Matcher{include: cfg.Include, exclude: cfg.Exclude}
}

// Match reports whether the slash-separated relative path is included and
// not excluded.
func (m *Matcher) Match(rel string) bool {
	return m.included(rel) && !m.Excluded(rel)
}

func (m *Matcher) included(rel string) bool {
	for _, pattern := range m.include {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// Excluded reports whether any exclude pattern matches rel. For
// directories, "**/build/**" matches "build" itself.
func (m *Matcher) Excluded(rel string) bool {
	for _, pattern := range m.exclude {
		if ok, _ := doublestar.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// skipDir reports whether a directory is never descended into.
func (m *Matcher) skipDir(rel, name string) bool {
	if rel == "." {
		return false
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	return m.Excluded(rel)
}

// errLimit stops the walk once MaxFiles paths were collected.
var errLimit = errors.New("file limit reached")

// scan lists indexable files as sorted slash-separated relative paths.
// complete is false when the file limit cut the listing short.
func scan(ctx context.Context, root string, cfg *config.Config) (paths []string, complete bool, err error) {
	m := NewMatcher(cfg.Index)
	limit := cfg.Limits.MaxFiles

	if cfg.Index.UseGitIgnore {
		paths, err := scanWithGit(ctx, root, m)
		if err == nil {
			if limit > 0 && len(paths) > limit {
				return paths[:limit], false, nil
			}
			return paths, true, nil
		}
		slog.Debug("git scan failed, falling back to filesystem walk", "error", err)
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unreadable path", "path", path, "error", err)
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if m.skipDir(rel, d.Name()) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || !m.Match(rel) {
			return nil
		}

		paths = append(paths, rel)
		if limit > 0 && len(paths) >= limit {
			return errLimit
		}
		return nil
	})

	complete = true
	if errors.Is(err, errLimit) {
		slog.Warn("file limit reached, index is partial", "limit", limit)
		complete, err = false, nil
	}
	if err != nil {
		return nil, false, err
	}
	slices.Sort(paths)
	return paths, complete, nil
}

// scanWithGit lists tracked and untracked-but-not-ignored files.
func scanWithGit(ctx context.Context, root string, m *Matcher) ([]string, error) {
	cmd := exec.CommandContext(ctx, "git", "ls-files", "--cached", "--others", "--exclude-standard")
	cmd.Dir = root
	out, err := cmd.Output()
	if err != nil {
		return nil, err
	}

	var paths []string
	for _, line := range strings.Split(string(out), "\n") {
		rel := strings.TrimSpace(line)
		if rel == "" || hiddenPath(rel) || !m.Match(rel) {
			continue
		}
		paths = append(paths, rel)
	}
	slices.Sort(paths)
	return slices.Compact(paths), nil
}

func hiddenPath(rel string) bool {
	for _, part := range strings.Split(rel, "/") {
		if strings.HasPrefix(part, ".") {
			return true
		}
	}
	return false
}
