package treelog

import (
	"context"
	"sync"
	"testing"
	"time"
)

// waitForCondition polls cond until it returns true or a short deadline
// elapses, since the batching worker applies events asynchronously.
func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

// recordingWriter is a Writer that records every batch it receives, for use
// across this package's tests.
type recordingWriter struct {
	mu       sync.Mutex
	entries  map[string][]LogEntry
	trees    map[string]TreeEdge
	metadata map[string]map[string]any
	tags     map[string][]string

	flushes int

	failNext error
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{
		entries:  make(map[string][]LogEntry),
		trees:    make(map[string]TreeEdge),
		metadata: make(map[string]map[string]any),
		tags:     make(map[string][]string),
	}
}

func (w *recordingWriter) takeFailure() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.failNext
	w.failNext = nil
	return err
}

func (w *recordingWriter) AppendEntries(ctx context.Context, entries map[string][]LogEntry) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flushes++
	if err := w.takeFailureLocked(); err != nil {
		return err
	}
	for id, es := range entries {
		w.entries[id] = append(w.entries[id], es...)
	}
	return nil
}

func (w *recordingWriter) takeFailureLocked() error {
	err := w.failNext
	w.failNext = nil
	return err
}

func (w *recordingWriter) AddTags(ctx context.Context, tags map[string][]string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, ts := range tags {
		w.tags[id] = ts
	}
	return nil
}

func (w *recordingWriter) RemoveTags(ctx context.Context, tags map[string][]string) error {
	return nil
}

func (w *recordingWriter) UpdateTree(ctx context.Context, relationships map[string]TreeEdge) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, e := range relationships {
		w.trees[id] = e
	}
	return nil
}

func (w *recordingWriter) UpdateBranchMetadata(ctx context.Context, metadata map[string]map[string]any) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	for id, m := range metadata {
		if w.metadata[id] == nil {
			w.metadata[id] = make(map[string]any)
		}
		for k, v := range m {
			w.metadata[id][k] = v
		}
	}
	return nil
}

func (w *recordingWriter) snapshotEntries(id string) []LogEntry {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]LogEntry{}, w.entries[id]...)
}

func (w *recordingWriter) snapshotTree(id string) (TreeEdge, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	e, ok := w.trees[id]
	return e, ok
}

func (w *recordingWriter) snapshotMetadata(id string) map[string]any {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make(map[string]any, len(w.metadata[id]))
	for k, v := range w.metadata[id] {
		out[k] = v
	}
	return out
}

var _ Writer = (*recordingWriter)(nil)
