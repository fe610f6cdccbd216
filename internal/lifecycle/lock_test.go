package lifecycle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
)

func TestDataDirLock_AcquireRelease(t *testing.T) {
	// Given an unlocked data directory
	dir := t.TempDir()
	lock := NewDataDirLock(dir)
	assert.False(t, lock.IsLocked())

	// When acquired
	require.NoError(t, lock.Acquire())

	// Then the lock file exists and is held
	assert.FileExists(t, filepath.Join(dir, LockName))
	assert.True(t, lock.IsLocked())
	assert.NoError(t, lock.Acquire(), "re-acquiring a held lock is a no-op")

	require.NoError(t, lock.Release())
	assert.False(t, lock.IsLocked())
	assert.NoError(t, lock.Release(), "double release is a no-op")
}

func TestDataDirLock_SecondServiceIsRefused(t *testing.T) {
	// Given a service holding the data directory
	dir := t.TempDir()
	first := NewDataDirLock(dir)
	require.NoError(t, first.Acquire())
	defer func() { _ = first.Release() }()

	// When a second service tries to start on it
	second := NewDataDirLock(dir)
	err := second.Acquire()

	// Then it is refused with a fatal lock error
	require.Error(t, err)
	assert.Equal(t, ixerrors.ErrCodeLockHeld, ixerrors.GetCode(err))
	assert.True(t, ixerrors.IsFatal(err))
	assert.False(t, second.IsLocked())

	// And can start once the first one stops
	require.NoError(t, first.Release())
	require.NoError(t, second.Acquire())
	assert.NoError(t, second.Release())
}

func TestDataDirLock_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", ".indexq")
	lock := NewDataDirLock(dir)

	require.NoError(t, lock.Acquire())
	defer func() { _ = lock.Release() }()

	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestDataDirLock_Path(t *testing.T) {
	assert.Equal(t, filepath.Join("/var/lib/indexq", "indexq.lock"), NewDataDirLock("/var/lib/indexq").Path())
}
