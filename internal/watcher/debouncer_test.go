package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer, timeout time.Duration) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(timeout):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

func TestDebouncer_Coalescing(t *testing.T) {
	tests := []struct {
		name   string
		ops    []Operation
		want   Operation
		cancel bool
	}{
		{name: "single event passes through", ops: []Operation{OpCreate}, want: OpCreate},
		{name: "create then modify stays create", ops: []Operation{OpCreate, OpModify, OpModify}, want: OpCreate},
		{name: "create then delete cancels", ops: []Operation{OpCreate, OpDelete}, cancel: true},
		{name: "modify then delete is delete", ops: []Operation{OpModify, OpDelete}, want: OpDelete},
		{name: "delete then create is modify", ops: []Operation{OpDelete, OpCreate}, want: OpModify},
		{name: "repeated modify is one modify", ops: []Operation{OpModify, OpModify, OpModify}, want: OpModify},
		{name: "rename keeps latest", ops: []Operation{OpModify, OpRename}, want: OpRename},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Given a debouncer with a short window
			d := NewDebouncer(30 * time.Millisecond)
			defer d.Stop()

			// When the operations arrive for the same path within the window
			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "main/Dev/Page.md", Operation: op, Timestamp: time.Now()})
			}
			// A second path proves a batch is still emitted when the first cancels.
			d.Add(FileEvent{Path: "main/Dev/Other.md", Operation: OpModify})

			// Then one batch carries the merged outcome
			events := receive(t, d, time.Second)
			if tt.cancel {
				require.Len(t, events, 1)
				assert.Equal(t, "main/Dev/Other.md", events[0].Path)
				return
			}
			require.Len(t, events, 2)
			assert.Equal(t, "main/Dev/Other.md", events[0].Path)
			assert.Equal(t, "main/Dev/Page.md", events[1].Path)
			assert.Equal(t, tt.want, events[1].Operation)
		})
	}
}

func TestDebouncer_WindowRestartsOnEachEvent(t *testing.T) {
	d := NewDebouncer(80 * time.Millisecond)
	defer d.Stop()

	for i := 0; i < 5; i++ {
		d.Add(FileEvent{Path: "a.md", Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	events := receive(t, d, time.Second)
	require.Len(t, events, 1)

	select {
	case extra := <-d.Output():
		t.Fatalf("unexpected second batch: %v", extra)
	case <-time.After(150 * time.Millisecond):
	}
}

func TestDebouncer_BatchesAreSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	for _, p := range []string{"c.md", "a.md", "b.md"} {
		d.Add(FileEvent{Path: p, Operation: OpCreate})
	}

	events := receive(t, d, time.Second)
	require.Len(t, events, 3)
	assert.Equal(t, []string{"a.md", "b.md", "c.md"}, []string{events[0].Path, events[1].Path, events[2].Path})
}

func TestDebouncer_StopClosesOutputAndIgnoresAdds(t *testing.T) {
	d := NewDebouncer(10 * time.Millisecond)
	d.Stop()
	d.Stop()

	d.Add(FileEvent{Path: "a.md", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok)
	assert.Zero(t, d.Dropped())
}
