package treelog

import "context"

// TreeEdge describes a branch's position in the tree: its parent (empty
// string for the root) and its ordered, deduplicated children.
type TreeEdge struct {
	Parent   string
	Children []string
}

// Writer is the persistence capability a TreeLogger's batching worker
// drives. Every method receives a batch already coalesced by branch id, per
// the worker's debounce + max-batch-size policy: append order is preserved
// within a branch, and tree/metadata/tag updates for a branch-id within one
// batch have already collapsed to their latest state.
//
// The worker issues the batched calls of one flush concurrently with each
// other, and those calls may name the same branch id (for example
// AppendEntries and UpdateTree for one branch), so implementations must be
// safe under concurrent calls, including calls touching the same branch id.
type Writer interface {
	// AppendEntries appends log entries to storage, keyed by branch id.
	// Entries for a given branch id must be persisted in the order given.
	AppendEntries(ctx context.Context, entries map[string][]LogEntry) error

	// AddTags unions tags into each named branch's tag set. Does not
	// remove existing tags and must not introduce duplicates.
	AddTags(ctx context.Context, tags map[string][]string) error

	// RemoveTags removes tags from each named branch's tag set. A tag
	// that does not exist is ignored.
	RemoveTags(ctx context.Context, tags map[string][]string) error

	// UpdateTree overwrites the parent/children relationship for each
	// named branch id.
	UpdateTree(ctx context.Context, relationships map[string]TreeEdge) error

	// UpdateBranchMetadata merges the given metadata into each named
	// branch's metadata, last-write-wins per key.
	UpdateBranchMetadata(ctx context.Context, metadata map[string]map[string]any) error
}

// Reader is the read-side capability a backend exposes to downstream
// tooling. It is not used by the core batching pipeline; it exists so that
// a store written by a Writer can be read back as BranchData.
type Reader interface {
	// GetBranches returns the persisted BranchData for each requested id.
	// Ids with no persisted data are simply absent from the result.
	GetBranches(ctx context.Context, ids []string) (map[string]BranchData, error)

	// GetBranchIDs returns every branch id the reader currently knows
	// about.
	GetBranchIDs(ctx context.Context) ([]string, error)
}
