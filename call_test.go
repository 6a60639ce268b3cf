package treelog

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCallLogsArgsAndReturnValue(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(0))
	ctx, closer := tl.Enter(context.Background())
	defer closer()

	result, err := Call(ctx, "compute", map[string]any{"n": 4}, func(ctx context.Context) (int, error) {
		return 16, nil
	})
	if err != nil {
		t.Fatalf("Call returned error: %v", err)
	}
	if result != 16 {
		t.Fatalf("expected result 16, got %d", result)
	}

	waitForCondition(t, func() bool {
		writer.mu.Lock()
		ids := make([]string, 0, len(writer.entries))
		for id := range writer.entries {
			ids = append(ids, id)
		}
		writer.mu.Unlock()

		for _, id := range ids {
			if id == tl.Root.id {
				continue
			}
			for _, e := range writer.snapshotEntries(id) {
				if e.Message == "return: 16" {
					return true
				}
			}
		}
		return false
	})
}

func TestCallLogsErrorAndReturnsIt(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(0))
	ctx, closer := tl.Enter(context.Background())
	defer closer()

	boom := errors.New("boom")
	_, err := Call(ctx, "fail", nil, func(ctx context.Context) (int, error) {
		return 0, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected Call to propagate the original error, got %v", err)
	}
}

func TestCallRePanicsAfterLoggingPanic(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(0))
	ctx, closer := tl.Enter(context.Background())
	defer closer()

	defer func() {
		r := recover()
		if r == nil {
			t.Fatal("expected Call to re-panic")
		}
		if fmt.Sprint(r) != "kaboom" {
			t.Fatalf("expected original panic value to propagate, got %v", r)
		}
	}()

	_, _ = Call(ctx, "panics", nil, func(ctx context.Context) (int, error) {
		panic("kaboom")
	})
}
