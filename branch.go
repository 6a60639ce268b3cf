package treelog

import "sync"

// Branch is a single node in a TreeLogger's tree: a logical scope that owns
// an ordered message sequence, a tag set, and a metadata map. A Branch is
// exclusively owned by one TreeLogger; its lifetime ends when that
// TreeLogger's root scope exits.
//
// All mutation is purely in-memory; persistence happens strictly via event
// emission to the owning TreeLogger.
type Branch struct {
	id     string
	name   string
	parent string // "" for the root branch
	logger *TreeLogger

	mu       sync.Mutex
	children []string
	tagSet   map[string]struct{}
	tags     []string // preserves insertion order for UPDATE_TAGS payloads
	metadata map[string]any
}

func newBranch(name, parent string, logger *TreeLogger) *Branch {
	b := &Branch{
		id:       newBranchID(),
		name:     name,
		parent:   parent,
		logger:   logger,
		tagSet:   make(map[string]struct{}),
		metadata: map[string]any{"name": name},
	}
	logger.enqueueMetadata(b.id, cloneScalarMap(b.metadata))
	logger.enqueueTree(b.id, parent, nil)
	return b
}

// ID returns the branch's opaque, globally-unique identifier.
func (b *Branch) ID() string { return b.id }

// Name returns the branch's name, fixed at creation.
func (b *Branch) Name() string { return b.name }

// Parent returns the parent branch id, or "" for the root.
func (b *Branch) Parent() string { return b.parent }

// Log validates and enqueues a log entry on this branch. message_type
// defaults to MessageTypeUser and entry_metadata defaults to nil when the
// zero values are passed.
func (b *Branch) Log(message string, messageType any, entryMetadata map[string]any) error {
	return b.logger.logOn(b.id, message, messageType, entryMetadata)
}

// Fork creates a new child Branch under b, sharing b's TreeLogger. It
// records the edge on both sides and emits a SYSTEM log entry on the parent
// naming the child, matching how the source system linked branches for
// downstream rendering.
func (b *Branch) Fork(name string) *Branch {
	child := newBranch(name, b.id, b.logger)
	registerLiveBranch(child)

	b.mu.Lock()
	b.children = append(b.children, child.id)
	children := append([]string{}, b.children...)
	b.mu.Unlock()

	b.logger.enqueueTree(b.id, b.parent, children)

	b.logger.logOn(b.id, "Branched Logger: "+name, MessageTypeSystem, map[string]any{"branch_id": child.id})

	return child
}

// AddTags unions tags into the branch's tag set; duplicates (against the
// existing set or within the input) are silently ignored.
func (b *Branch) AddTags(tags []string) {
	b.mu.Lock()
	for _, t := range tags {
		if _, ok := b.tagSet[t]; ok {
			continue
		}
		b.tagSet[t] = struct{}{}
		b.tags = append(b.tags, t)
	}
	snapshot := append([]string{}, b.tags...)
	b.mu.Unlock()

	b.logger.enqueueTags(b.id, snapshot)
}

// AddMetadata merges the given map into the branch's metadata, last-write-
// wins per key.
func (b *Branch) AddMetadata(metadata map[string]any) {
	b.mu.Lock()
	for k, v := range metadata {
		b.metadata[k] = v
	}
	snapshot := cloneScalarMap(b.metadata)
	b.mu.Unlock()

	b.logger.enqueueMetadata(b.id, snapshot)
}

// childrenSnapshot returns a snapshot of the branch's children, used when walking
// the tree to tear down a TreeLogger's live-branch entries.
func (b *Branch) childrenSnapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string{}, b.children...)
}

func cloneScalarMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
