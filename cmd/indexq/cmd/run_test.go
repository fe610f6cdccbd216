package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/indexq/internal/daemon"
	ixerrors "github.com/Aman-CERP/indexq/internal/errors"
	"github.com/Aman-CERP/indexq/internal/lifecycle"
	"github.com/Aman-CERP/indexq/internal/output"
	"github.com/Aman-CERP/indexq/internal/ui"
)

// startService runs the service for dir until the returned stop is called.
func startService(t *testing.T, dir string) (p *project, stop func() error) {
	t.Helper()
	projectDir = dir
	t.Cleanup(func() { projectDir = "." })

	p, err := loadProject()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	buf := &bytes.Buffer{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	go func() { done <- runService(ctx, p, output.NewWithColor(buf, false), logger) }()

	client := daemon.NewClient(p.daemon)
	require.Eventually(t, client.IsRunning, 10*time.Second, 20*time.Millisecond)

	var once bool
	stop = func() error {
		if once {
			return nil
		}
		once = true
		cancel()
		select {
		case err := <-done:
			return err
		case <-time.After(15 * time.Second):
			t.Fatal("service did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return p, stop
}

func TestRun_EndToEnd(t *testing.T) {
	// Given: a running service over a two-document repository
	dir := newProjectDir(t)
	p, stop := startService(t, dir)

	// When: the repository is rebuilt and followed to completion
	out, err := execute(t, "-C", dir, "reindex", "--wait", "--plain")
	require.NoError(t, err)

	// Then: both documents were indexed
	assert.Contains(t, out, "Rebuild queued: w")
	assert.Contains(t, out, "Complete: ")
	assert.Contains(t, out, "Scopes: w")

	out, err = execute(t, "-C", dir, "search", "--json", "install")
	require.NoError(t, err)
	var hits []daemon.SearchResult
	require.NoError(t, json.Unmarshal([]byte(out), &hits))
	require.Len(t, hits, 1)
	assert.Equal(t, "w:S.D", hits[0].Ref)
	assert.Equal(t, "Getting started", hits[0].Title)

	// And: explicit queue and delete requests are accepted
	out, err = execute(t, "-C", dir, "queue", "--priority", "high", "w:S.D", "w:S.E")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued 2 index job(s)")

	out, err = execute(t, "-C", dir, "queue", "--delete", "w:S.E")
	require.NoError(t, err)
	assert.Contains(t, out, "Queued 1 delete job(s)")

	require.Eventually(t, func() bool {
		out, err := execute(t, "-C", dir, "status", "--json")
		if err != nil {
			return false
		}
		var info ui.StatusInfo
		if json.Unmarshal([]byte(out), &info) != nil {
			return false
		}
		return info.Running && info.QueueSize == 0 && info.Documents == 1
	}, 10*time.Second, 50*time.Millisecond)

	out, err = execute(t, "-C", dir, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "indexq: running")
	assert.Contains(t, out, "Backend:   sqlite")

	// When: the service is stopped
	require.NoError(t, stop())

	// Then: the data directory is released
	assert.NoFileExists(t, p.daemon.PIDPath)
	assert.NoFileExists(t, p.daemon.SocketPath)
	lock := lifecycle.NewDataDirLock(p.dataDir)
	require.NoError(t, lock.Acquire())
	assert.NoError(t, lock.Release())
}

func TestRun_InvalidRequestsCarryCodes(t *testing.T) {
	dir := newProjectDir(t)
	startService(t, dir)

	_, err := execute(t, "-C", dir, "queue", "w:S.D@de/file.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ixerrors.ErrCodeInvalidReference)

	_, err = execute(t, "-C", dir, "queue", "--priority", "urgent", "w:S.D")
	require.Error(t, err)
	assert.Contains(t, err.Error(), ixerrors.ErrCodeInvalidPriority)
}

func TestRun_SecondServiceIsRefused(t *testing.T) {
	// Given: a running service
	dir := newProjectDir(t)
	p, _ := startService(t, dir)

	// When: another one starts on the same data directory
	err := runService(context.Background(), p, output.NewWithColor(io.Discard, false), slog.New(slog.NewTextHandler(io.Discard, nil)))

	// Then: it is refused and the first keeps running
	require.Error(t, err)
	assert.Equal(t, ixerrors.ErrCodeLockHeld, ixerrors.GetCode(err))
	assert.True(t, daemon.NewClient(p.daemon).IsRunning())
}

func TestClientCommands_ServiceNotRunning(t *testing.T) {
	dir := newProjectDir(t)

	for _, args := range [][]string{
		{"queue", "w:S.D"},
		{"reindex"},
		{"search", "install"},
	} {
		_, err := execute(t, append([]string{"-C", dir}, args...)...)
		require.Error(t, err, args)
		assert.Equal(t, ixerrors.ErrCodeDaemonUnavailable, ixerrors.GetCode(err), args)
	}
}

func TestStopCmd_NotRunning(t *testing.T) {
	dir := newProjectDir(t)

	out, err := execute(t, "-C", dir, "stop")

	require.NoError(t, err)
	assert.Contains(t, out, "indexq is not running")
}
