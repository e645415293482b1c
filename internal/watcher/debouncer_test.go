package watcher

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func receive(t *testing.T, d *Debouncer) []FileEvent {
	t.Helper()
	select {
	case events := <-d.Output():
		return events
	case <-time.After(500 * time.Millisecond):
		t.Fatal("timeout waiting for debounced batch")
		return nil
	}
}

// TS01: save bursts merge into one event per note
func TestDebouncer_MergeRules(t *testing.T) {
	tests := []struct {
		name string
		ops  []Operation
		want Operation
	}{
		{"single event passes through", []Operation{OpCreate}, OpCreate},
		{"repeated saves collapse", []Operation{OpModify, OpModify, OpModify}, OpModify},
		{"new note stays new", []Operation{OpCreate, OpModify}, OpCreate},
		{"edit then delete is a delete", []Operation{OpModify, OpDelete}, OpDelete},
		{"atomic replace is a modify", []Operation{OpDelete, OpCreate}, OpModify},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := NewDebouncer(20 * time.Millisecond)
			defer d.Stop()

			for _, op := range tt.ops {
				d.Add(FileEvent{Path: "notes/today.md", Operation: op, Timestamp: time.Now()})
			}

			events := receive(t, d)
			require.Len(t, events, 1)
			assert.Equal(t, "notes/today.md", events[0].Path)
			assert.Equal(t, tt.want, events[0].Operation)
		})
	}
}

func TestDebouncer_CreateThenDelete_NoEvent(t *testing.T) {
	// Given: a scratch note created and removed inside the window
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()
	d.Add(FileEvent{Path: "scratch.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "scratch.md", Operation: OpDelete})

	// Then: nothing is emitted
	select {
	case events := <-d.Output():
		t.Fatalf("unexpected batch %v", events)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_BatchSortedByPath(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	defer d.Stop()

	// When: events for several notes arrive out of order
	d.Add(FileEvent{Path: "c.md", Operation: OpDelete})
	d.Add(FileEvent{Path: "a.md", Operation: OpCreate})
	d.Add(FileEvent{Path: "b.md", Operation: OpModify})

	// Then: one batch holds them all, ordered by path
	events := receive(t, d)
	require.Len(t, events, 3)
	assert.Equal(t, "a.md", events[0].Path)
	assert.Equal(t, "b.md", events[1].Path)
	assert.Equal(t, "c.md", events[2].Path)
	assert.Equal(t, OpDelete, events[2].Operation)
}

func TestDebouncer_WindowRestartsOnEachEvent(t *testing.T) {
	d := NewDebouncer(60 * time.Millisecond)
	defer d.Stop()

	// When: events keep arriving faster than the window
	for i := 0; i < 4; i++ {
		d.Add(FileEvent{Path: "long.md", Operation: OpModify})
		time.Sleep(20 * time.Millisecond)
	}

	// Then: a single batch comes out at the end
	events := receive(t, d)
	assert.Len(t, events, 1)
	select {
	case extra := <-d.Output():
		t.Fatalf("unexpected second batch %v", extra)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestDebouncer_Stop(t *testing.T) {
	d := NewDebouncer(20 * time.Millisecond)
	d.Add(FileEvent{Path: "a.md", Operation: OpCreate})

	d.Stop()
	d.Stop()
	d.Add(FileEvent{Path: "b.md", Operation: OpCreate})

	_, ok := <-d.Output()
	assert.False(t, ok, "output is closed")
}
