package watcher

import (
	"path/filepath"
	"strings"
)

// filter decides which relative paths are ignored.
type filter struct {
	root       string
	exclude    []string
	ignoreDirs []string
}

func newFilter(root string, opts Options) *filter {
	f := &filter{root: root, exclude: opts.Exclude}
	for _, dir := range opts.IgnoreDirs {
		abs, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		if rel, err := filepath.Rel(root, abs); err == nil && !strings.HasPrefix(rel, "..") && rel != "." {
			f.ignoreDirs = append(f.ignoreDirs, filepath.ToSlash(rel))
		}
	}
	return f
}

// ignored reports whether rel, a slash separated path relative to the root,
// is excluded.
func (f *filter) ignored(rel string) bool {
	if rel == "" || rel == "." {
		return true
	}
	for _, seg := range strings.Split(rel, "/") {
		if strings.HasPrefix(seg, ".") {
			return true
		}
	}
	for _, dir := range f.ignoreDirs {
		if rel == dir || strings.HasPrefix(rel, dir+"/") {
			return true
		}
	}
	base := rel[strings.LastIndex(rel, "/")+1:]
	for _, pattern := range f.exclude {
		if ok, _ := filepath.Match(pattern, base); ok {
			return true
		}
		if ok, _ := filepath.Match(pattern, rel); ok {
			return true
		}
	}
	return false
}

// relative converts an absolute path under the root to the event form.
func (f *filter) relative(path string) string {
	rel, err := filepath.Rel(f.root, path)
	if err != nil {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
