package treelog

import "context"

// logOptions collects the optional arguments to Log.
type logOptions struct {
	messageType   any
	entryMetadata map[string]any
}

// LogOption configures a Log call.
type LogOption func(*logOptions)

// WithMessageType sets the MessageType (or its string form) for a Log call.
// Defaults to MessageTypeUser.
func WithMessageType(mt any) LogOption {
	return func(o *logOptions) { o.messageType = mt }
}

// WithEntryMetadata attaches per-entry metadata to a Log call.
func WithEntryMetadata(m map[string]any) LogOption {
	return func(o *logOptions) { o.entryMetadata = m }
}

// Log logs a message to every branch in ctx's current frontier. Validation
// happens before anything else, so a malformed call errors identically
// whether or not any TreeLogger scope is open. Log is a no-op -- after
// validation succeeds -- if the frontier is empty or ctx has been
// Disable()'d, so library code can call it unconditionally.
func Log(ctx context.Context, message string, opts ...LogOption) error {
	o := &logOptions{messageType: MessageTypeUser}
	for _, opt := range opts {
		opt(o)
	}

	mt, err := validateLogCall(message, o.messageType, o.entryMetadata)
	if err != nil {
		return err
	}

	if !isEnabled(ctx) {
		return nil
	}

	ids := frontierFrom(ctx)
	for id := range ids {
		b, ok := lookupLiveBranch(id)
		if !ok {
			panic("treelog: branch " + id + " present in frontier but not in the live-branch table")
		}
		// Already validated; the error return here can only be nil.
		_ = b.Log(message, mt, o.entryMetadata)
	}
	return nil
}

// Apply adds tags and/or metadata to every branch in ctx's current
// frontier. Each combinable must be a []string (tags to union) or a
// map[string]any (metadata to merge, later combinables winning on key
// conflicts). At least one combinable must be supplied.
func Apply(ctx context.Context, combinables ...any) error {
	if len(combinables) == 0 {
		return &ValidationError{Field: "combinables", Reason: "must provide at least one tag list or metadata map"}
	}

	tags, metadata, err := validateTagsAndMetadata(combinables, nil, nil)
	if err != nil {
		return err
	}

	if !isEnabled(ctx) {
		return nil
	}

	for _, b := range Context(ctx) {
		if tags != nil {
			b.AddTags(tags)
		}
		if metadata != nil {
			b.AddMetadata(metadata)
		}
	}
	return nil
}

// Fork forks every branch in ctx's current frontier into a new child named
// name, optionally applying tags/metadata (same combinable rules as Apply)
// to each new child, and returns a context scoped to exactly the new
// children. If the frontier is empty, Fork is a no-op: it returns ctx
// unchanged.
func Fork(ctx context.Context, name string, combinables ...any) (context.Context, error) {
	current := Context(ctx)
	if len(current) == 0 {
		return ctx, nil
	}

	var tags []string
	var metadata map[string]any
	if len(combinables) > 0 {
		t, m, err := validateTagsAndMetadata(combinables, nil, nil)
		if err != nil {
			return ctx, err
		}
		tags, metadata = t, m
	}

	next := make([]*Branch, 0, len(current))
	for _, b := range current {
		child := b.Fork(name)
		if tags != nil {
			child.AddTags(tags)
		}
		if metadata != nil {
			child.AddMetadata(metadata)
		}
		next = append(next, child)
	}

	return WithBranches(ctx, next), nil
}
