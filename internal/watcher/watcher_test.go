package watcher

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOperation_String(t *testing.T) {
	tests := []struct {
		op   Operation
		want string
	}{
		{OpCreate, "CREATE"},
		{OpModify, "MODIFY"},
		{OpDelete, "DELETE"},
		{OpRename, "RENAME"},
		{Operation(99), "UNKNOWN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.op.String())
	}
}

func TestOptions_WithDefaults(t *testing.T) {
	// Given: options with only a debounce window
	opts := Options{DebounceWindow: 10 * time.Millisecond}.WithDefaults()

	// Then: the rest is filled in
	assert.Equal(t, 10*time.Millisecond, opts.DebounceWindow)
	assert.Equal(t, 5*time.Second, opts.PollInterval)
	assert.Equal(t, 100, opts.EventBufferSize)
}

func TestOptions_Validate(t *testing.T) {
	assert.NoError(t, Options{Exclude: []string{"*.tmp", "drafts/*"}}.Validate())

	err := Options{Exclude: []string{"[unclosed"}}.Validate()
	require.Error(t, err)
	assert.ErrorIs(t, err, filepath.ErrBadPattern)

	_, err = NewHybridWatcher(Options{Exclude: []string{"[unclosed"}})
	assert.Error(t, err)
}

func TestFilter_Ignored(t *testing.T) {
	root := t.TempDir()
	f := newFilter(root, Options{
		Exclude:    []string{"*.tmp", "*~", "main/Drafts/*"},
		IgnoreDirs: []string{filepath.Join(root, "data"), "/elsewhere"},
	})

	tests := []struct {
		rel  string
		want bool
	}{
		{"main/Dev/Page.md", false},
		{"main/Dev/Page/photo.png", false},
		{"main/Dev/.Page.md", true},
		{".git/HEAD", true},
		{"main/.trash/Page.md", true},
		{"main/Dev/Page.md.tmp", true},
		{"main/Dev/Page.md~", true},
		{"main/Drafts/Idea.md", true},
		{"data", true},
		{"data/state/000001.log", true},
		{"database/Page.md", false},
		{".", true},
		{"", true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, f.ignored(tt.rel), tt.rel)
	}
	assert.Equal(t, "main/Dev/Page.md", f.relative(filepath.Join(root, "main", "Dev", "Page.md")))
}
