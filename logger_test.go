package treelog

import (
	"context"
	"testing"
	"time"
)

func TestLogOnFlushesEntry(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(10*time.Millisecond))
	ctx, closer := tl.Enter(context.Background())
	defer closer()

	if err := Log(ctx, "hello"); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	waitForCondition(t, func() bool {
		return len(writer.snapshotEntries(tl.Root.id)) == 1
	})
}

func TestMaxBatchSizeForcesFlushBeforeDebounce(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(time.Hour), WithMaxBatchSize(3))
	_, closer := tl.Enter(context.Background())
	defer closer()

	a := tl.Root.Fork("a")
	b := tl.Root.Fork("b")

	// The batch size counts distinct branch ids with pending work, so one
	// entry on each of three branches reaches the cap of 3.
	for _, br := range []*Branch{tl.Root, a, b} {
		if err := br.Log("msg", nil, nil); err != nil {
			t.Fatalf("Log returned error: %v", err)
		}
	}

	waitForCondition(t, func() bool {
		return len(writer.snapshotEntries(a.id)) == 1 && len(writer.snapshotEntries(b.id)) == 1
	})
}

func TestCloserFlushesAndJoinsWorker(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(time.Hour))
	ctx, closer := tl.Enter(context.Background())

	if err := Log(ctx, "final message"); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	if err := closer(); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}

	if len(writer.snapshotEntries(tl.Root.id)) != 1 {
		t.Fatalf("expected closer to flush pending entry before returning")
	}
}

func TestSilentSwallowsBackendErrorsOnShutdown(t *testing.T) {
	writer := newRecordingWriter()
	writer.failNext = errBoom
	tl := NewTreeLogger("root", writer, WithSilent(true), WithDebounce(time.Hour))
	ctx, closer := tl.Enter(context.Background())

	_ = Log(ctx, "will fail to persist")

	if err := closer(); err != nil {
		t.Fatalf("expected silent TreeLogger to swallow backend error, got %v", err)
	}
}

func TestNonSilentSurfacesBackendErrorOnShutdown(t *testing.T) {
	writer := newRecordingWriter()
	writer.failNext = errBoom
	tl := NewTreeLogger("root", writer, WithSilent(false), WithDebounce(time.Hour))
	ctx, closer := tl.Enter(context.Background())

	_ = Log(ctx, "will fail to persist")

	if err := closer(); err == nil {
		t.Fatal("expected non-silent TreeLogger to surface backend error")
	}
}

func TestNonSilentSurfacesEarlyFlushErrorAtClose(t *testing.T) {
	writer := newRecordingWriter()
	writer.failNext = errBoom
	tl := NewTreeLogger("root", writer, WithSilent(false), WithDebounce(time.Hour), WithMaxBatchSize(1))
	ctx, closer := tl.Enter(context.Background())

	if err := Log(ctx, "first, fails to persist"); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}
	waitForCondition(t, func() bool {
		writer.mu.Lock()
		defer writer.mu.Unlock()
		return writer.flushes >= 1
	})

	if err := Log(ctx, "second, persists fine"); err != nil {
		t.Fatalf("Log returned error: %v", err)
	}

	if err := closer(); err == nil {
		t.Fatal("expected the closer to surface the earlier, non-shutdown flush failure, not just a shutdown-time one")
	}

	entries := writer.snapshotEntries(tl.Root.id)
	if len(entries) != 1 || entries[0].Message != "second, persists fine" {
		t.Fatalf("expected only the second entry to have persisted, got %+v", entries)
	}
}

func TestEnterTwicePanics(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer)
	_, closer := tl.Enter(context.Background())
	defer closer()

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected second Enter call to panic")
		}
	}()
	tl.Enter(context.Background())
}

func TestQueueCapacityDropsUnderPressure(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithQueueCapacity(1), WithDebounce(time.Hour))
	ctx, closer := tl.Enter(context.Background())
	defer closer()

	for i := 0; i < 50; i++ {
		_ = Log(ctx, "spam")
	}

	// Events are dropped whenever this loop enqueues faster than the worker
	// drains; either way the queue must never grow past its configured cap.
	tl.qmu.Lock()
	depth := len(tl.qbuf)
	tl.qmu.Unlock()
	if depth > 1 {
		t.Fatalf("expected bounded queue to stay at or under capacity 1, got depth %d", depth)
	}
}

type boomError struct{}

func (boomError) Error() string { return "boom" }

var errBoom = boomError{}
