package treelog

import "sync"

// liveBranches is the process-wide table of every Branch currently
// reachable from an entered TreeLogger scope: a branch id here belongs to
// exactly one TreeLogger, and a branch id ever present in a context's
// frontier must also be present here.
var liveBranches sync.Map // string -> *Branch

func registerLiveBranch(b *Branch) {
	liveBranches.Store(b.id, b)
}

// unregisterSubtree walks root and every descendant reachable via
// children, removing each from liveBranches. Called once, from a
// TreeLogger's closer, when its scope exits normally or exceptionally.
func unregisterSubtree(root *Branch) {
	stack := []string{root.id}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		v, ok := liveBranches.LoadAndDelete(id)
		if !ok {
			continue
		}
		b := v.(*Branch)
		stack = append(stack, b.childrenSnapshot()...)
	}
}

func lookupLiveBranch(id string) (*Branch, bool) {
	v, ok := liveBranches.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*Branch), true
}
