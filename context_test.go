package treelog

import (
	"context"
	"testing"
)

func TestUnregisterSubtreeRemovesWholeTree(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(0))
	_, closer := tl.Enter(context.Background())

	child := tl.Root.Fork("child")
	grandchild := child.Fork("grandchild")

	if _, ok := lookupLiveBranch(grandchild.id); !ok {
		t.Fatal("expected grandchild to be live before scope exit")
	}

	if err := closer(); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}

	for _, id := range []string{tl.Root.id, child.id, grandchild.id} {
		if _, ok := lookupLiveBranch(id); ok {
			t.Fatalf("expected branch %s to be unregistered after scope exit", id)
		}
	}
}

func TestLogPanicsWhenFrontierOutlivesLiveBranch(t *testing.T) {
	writer := newRecordingWriter()
	tl := NewTreeLogger("root", writer, WithDebounce(0))
	ctx, closer := tl.Enter(context.Background())
	if err := closer(); err != nil {
		t.Fatalf("closer returned error: %v", err)
	}

	defer func() {
		if r := recover(); r == nil {
			t.Fatal("expected Log to panic when the frontier names an id no longer in the live-branch table")
		}
	}()
	_ = Log(ctx, "stale frontier")
}
