package ui

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPlain() (*PlainRenderer, *bytes.Buffer) {
	buf := &bytes.Buffer{}
	return NewPlainRenderer(NewConfig(buf)), buf
}

func TestPlainRenderer_Progress(t *testing.T) {
	r, buf := newPlain()
	require.NoError(t, r.Start(context.Background()))

	r.UpdateProgress(ProgressEvent{Stage: StageSubmitting, Message: "rebuilding w"})
	r.UpdateProgress(ProgressEvent{Stage: StageDraining, Processed: 3, Remaining: 7})
	r.UpdateProgress(ProgressEvent{Stage: StageDraining, Processed: 4, Remaining: 6, Failed: 1, CurrentJob: "index w:S.D (low)"})

	assert.Equal(t,
		"[SUBMIT] rebuilding w\n"+
			"[DRAIN] 3 processed, 7 queued\n"+
			"[DRAIN] 4 processed, 6 queued, 1 failed - index w:S.D (low)\n",
		buf.String())
	assert.NoError(t, r.Stop())
}

func TestPlainRenderer_SkipsRepeatedEvents(t *testing.T) {
	// Given a renderer fed by a poller
	r, buf := newPlain()
	event := ProgressEvent{Stage: StageDraining, Processed: 1, Remaining: 1}

	// When the same observation arrives several times
	r.UpdateProgress(event)
	r.UpdateProgress(event)
	r.UpdateProgress(event)

	// Then it is printed once
	assert.Equal(t, "[DRAIN] 1 processed, 1 queued\n", buf.String())
}

func TestPlainRenderer_Errors(t *testing.T) {
	r, buf := newPlain()

	r.AddError(ErrorEvent{Job: "w:S.D", Err: errors.New("backend down")})
	r.AddError(ErrorEvent{Err: errors.New("slow"), IsWarn: true})

	assert.Equal(t, "ERROR: w:S.D: backend down\nWARN: slow\n", buf.String())
}

func TestPlainRenderer_Complete(t *testing.T) {
	tests := []struct {
		name  string
		stats CompletionStats
		want  string
	}{
		{
			name: "clean run",
			stats: CompletionStats{
				Scopes: []string{"w"}, Processed: 5, Indexed: 3, Deleted: 1, Skipped: 1,
				Duration: 1234 * time.Millisecond,
			},
			want: "Complete: 5 jobs in 1.2s (3 indexed, 1 deleted, 1 unchanged)\nScopes: w\n",
		},
		{
			name:  "with failures",
			stats: CompletionStats{Processed: 2, Indexed: 1, Failed: 1, Duration: time.Second},
			want:  "Complete: 2 jobs in 1s (1 indexed, 0 deleted, 0 unchanged), 1 failed\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, buf := newPlain()
			r.Complete(tt.stats)
			assert.Equal(t, tt.want, buf.String())
		})
	}
}
