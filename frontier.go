package treelog

import "context"

// frontierKeyType and enabledKeyType back the two pieces of task-local
// state tracked per scope: the current set of branch ids a Log/Apply call
// targets, and whether logging is currently enabled. Both ride on
// context.Context rather than a goroutine-local: a context.Context value
// node is immutable, so a goroutine that derives its own child context
// from a shared parent can never observe a sibling goroutine's later
// WithValue calls. That gives "never shared by reference between
// concurrent tasks; forking a sub-task snapshots it" for free, which is
// exactly the guarantee thread-locals alone cannot provide across
// goroutine/task boundaries.
type frontierKeyType struct{}
type enabledKeyType struct{}

var frontierKey = frontierKeyType{}
var enabledKey = enabledKeyType{}

func frontierFrom(ctx context.Context) map[string]struct{} {
	ids, _ := ctx.Value(frontierKey).(map[string]struct{})
	return ids
}

// addToFrontier returns a context with id added to the current frontier,
// creating the frontier set if absent. The returned context is a new value;
// ctx itself is untouched.
func addToFrontier(ctx context.Context, id string) context.Context {
	cur := frontierFrom(ctx)
	next := make(map[string]struct{}, len(cur)+1)
	for k := range cur {
		next[k] = struct{}{}
	}
	next[id] = struct{}{}
	return context.WithValue(ctx, frontierKey, next)
}

// WithBranches returns a context whose frontier is exactly the ids of the
// given branches, for the scope of whatever the caller does with the
// returned context. An empty slice yields a context with an empty frontier
// (a no-op scope: Log/Apply become no-ops under it).
func WithBranches(ctx context.Context, branches []*Branch) context.Context {
	ids := make(map[string]struct{}, len(branches))
	for _, b := range branches {
		ids[b.id] = struct{}{}
	}
	return context.WithValue(ctx, frontierKey, ids)
}

// Context returns the Branches corresponding to ctx's current frontier.
func Context(ctx context.Context) []*Branch {
	ids := frontierFrom(ctx)
	out := make([]*Branch, 0, len(ids))
	for id := range ids {
		if b, ok := lookupLiveBranch(id); ok {
			out = append(out, b)
		}
	}
	return out
}

func isEnabled(ctx context.Context) bool {
	v := ctx.Value(enabledKey)
	if v == nil {
		return true
	}
	enabled, _ := v.(bool)
	return enabled
}

// Disable returns a context under which Log/Apply are no-ops. The frontier
// is unchanged; only public logging calls are suppressed. Restoring the
// previous behavior is automatic in Go's context model: once the caller
// stops threading the disabled context further, logging under the parent
// context behaves as before.
func Disable(ctx context.Context) context.Context {
	return context.WithValue(ctx, enabledKey, false)
}

// Enable returns a context under which Log/Apply are active again.
func Enable(ctx context.Context) context.Context {
	return context.WithValue(ctx, enabledKey, true)
}
