package daemon

import (
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stalePID is above the default pid_max on Linux and macOS.
const stalePID = 4194304

func writePID(t *testing.T, content string) *PIDFile {
	t.Helper()
	path := filepath.Join(t.TempDir(), "indexq.pid")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return NewPIDFile(path)
}

func TestPIDFile_WriteAndRead(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "nested", "deep", "indexq.pid"))

	require.NoError(t, pf.Write())

	pid, err := pf.Read()
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
	assert.True(t, pf.IsRunning())

	entries, err := os.ReadDir(filepath.Dir(pf.Path()))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp file left behind")
}

func TestPIDFile_Read(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
		wantErr bool
	}{
		{"plain", "12345", 12345, false},
		{"trailing newline", "12345\n", 12345, false},
		{"garbage", "not-a-number", 0, true},
		{"zero", "0", 0, true},
		{"empty", "", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pid, err := writePID(t, tt.content).Read()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, pid)
		})
	}
}

func TestPIDFile_Read_NotExists(t *testing.T) {
	pf := NewPIDFile(filepath.Join(t.TempDir(), "missing.pid"))

	_, err := pf.Read()

	assert.ErrorIs(t, err, ErrPIDFileNotFound)
	assert.False(t, pf.IsRunning())
}

func TestPIDFile_Remove(t *testing.T) {
	pf := writePID(t, "12345")

	require.NoError(t, pf.Remove())
	require.NoError(t, pf.Remove(), "removing twice is fine")

	assert.NoFileExists(t, pf.Path())
}

func TestPIDFile_IsRunning(t *testing.T) {
	assert.True(t, writePID(t, strconv.Itoa(os.Getpid())).IsRunning())
	assert.False(t, writePID(t, strconv.Itoa(stalePID)).IsRunning())
}

func TestPIDFile_RemoveStale(t *testing.T) {
	tests := []struct {
		name        string
		content     string
		wantRemoved bool
	}{
		{"live process kept", strconv.Itoa(os.Getpid()), false},
		{"dead process removed", strconv.Itoa(stalePID), true},
		{"garbage removed", "junk", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pf := writePID(t, tt.content)

			removed, err := pf.RemoveStale()

			require.NoError(t, err)
			assert.Equal(t, tt.wantRemoved, removed)
			if tt.wantRemoved {
				assert.NoFileExists(t, pf.Path())
			} else {
				assert.FileExists(t, pf.Path())
			}
		})
	}

	removed, err := NewPIDFile(filepath.Join(t.TempDir(), "none.pid")).RemoveStale()
	require.NoError(t, err)
	assert.False(t, removed)
}

func TestPIDFile_Signal(t *testing.T) {
	// Signal 0 probes without delivering anything.
	require.NoError(t, writePID(t, strconv.Itoa(os.Getpid())).Signal(syscall.Signal(0)))
	require.Error(t, writePID(t, strconv.Itoa(stalePID)).Signal(syscall.Signal(0)))
}
