package filebackend

import "testing"

func TestSelectPartitionIsStablePerID(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(WriterConfig{BasePath: dir, NumConcurrentWrites: 8, NumFlowsPerPartition: 1000})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	w.mu.Lock()
	first := w.selectPartition("stable-id")
	second := w.selectPartition("stable-id")
	w.mu.Unlock()

	if first != second {
		t.Fatalf("expected selectPartition to be stable for a repeated id, got %d then %d", first, second)
	}
}

func TestRemoveInt(t *testing.T) {
	got := removeInt([]int{1, 2, 3, 2}, 2)
	want := []int{1, 3}
	if len(got) != len(want) {
		t.Fatalf("expected %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, got)
		}
	}
}
