package treelog

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog/internal/metrics"
)

const (
	defaultDebounce     = 250 * time.Millisecond
	defaultMaxBatchSize = 50
)

// Option configures a TreeLogger at construction time.
type Option func(*TreeLogger)

// WithDebounce overrides the default 250ms debounce window.
func WithDebounce(d time.Duration) Option {
	return func(tl *TreeLogger) { tl.debounce = d }
}

// WithMaxBatchSize overrides the default max batch size of 50.
func WithMaxBatchSize(n int) Option {
	return func(tl *TreeLogger) { tl.maxBatchSize = n }
}

// WithSilent controls whether worker-side backend errors are swallowed
// (true) or surfaced from the scope-exit closer (false, the default).
func WithSilent(silent bool) Option {
	return func(tl *TreeLogger) { tl.silent = silent }
}

// WithLogger supplies a *logrus.Logger for the TreeLogger's own operational
// logging (worker lifecycle, swallowed backend errors). Defaults to
// logrus.StandardLogger().
func WithLogger(logger *logrus.Logger) Option {
	return func(tl *TreeLogger) { tl.logger = logger }
}

// WithQueueCapacity switches the event queue from unbounded (the default,
// n == 0) to a fixed-capacity queue that drops events (incrementing a
// counter, exposed via internal/metrics) rather than growing without
// bound.
func WithQueueCapacity(n int) Option {
	return func(tl *TreeLogger) { tl.queueCapacity = n }
}

// TreeLogger owns a root Branch, the event queue draining it, and the
// dedicated batching worker goroutine that dispatches coalesced batches to
// a Writer. It is the scoped acquisition at the heart of the system: Enter
// starts the worker and returns a derived context.Context plus a closer;
// the closer flushes, joins the worker, and tears down the branch subtree.
type TreeLogger struct {
	Root *Branch

	writer       Writer
	debounce     time.Duration
	maxBatchSize int
	silent       bool
	logger       *logrus.Logger

	queueCapacity int
	qmu           sync.Mutex
	qbuf          []event
	qwake         chan struct{}
	dropped       int64

	workerDone chan error
	started    bool
	startMu    sync.Mutex
}

// NewTreeLogger constructs a TreeLogger with the given root branch name and
// Writer backend. The worker goroutine is not started until Enter is
// called.
func NewTreeLogger(name string, writer Writer, opts ...Option) *TreeLogger {
	tl := &TreeLogger{
		writer:       writer,
		debounce:     defaultDebounce,
		maxBatchSize: defaultMaxBatchSize,
		logger:       logrus.StandardLogger(),
		qwake:        make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(tl)
	}
	tl.Root = newBranch(name, "", tl)
	return tl
}

// Enter registers the root branch as live and in the current frontier,
// starts the batching worker, and returns a context carrying the new
// frontier along with a closer to be called (typically via defer) when the
// scope ends.
//
// On exceptional exit (the caller's own defer/recover path), the closer
// must still be invoked: it flushes pending events, joins the worker, and
// removes the branch subtree from the live-branch table regardless of how
// the caller is unwinding. The caller's original error/panic is the
// caller's to propagate; the closer never swallows it.
func (tl *TreeLogger) Enter(ctx context.Context) (context.Context, func() error) {
	tl.startMu.Lock()
	if tl.started {
		tl.startMu.Unlock()
		panic("treelog: TreeLogger.Enter called more than once")
	}
	tl.started = true
	tl.startMu.Unlock()

	registerLiveBranch(tl.Root)
	newCtx := addToFrontier(ctx, tl.Root.id)

	tl.workerDone = make(chan error, 1)
	go tl.run()

	var once sync.Once
	closer := func() error {
		var err error
		once.Do(func() {
			tl.enqueue(event{kind: eventShutdown})
			err = <-tl.workerDone
			unregisterSubtree(tl.Root)
			if tl.silent {
				err = nil
			}
		})
		return err
	}

	return newCtx, closer
}

func (tl *TreeLogger) logOn(branchID, message string, messageType any, entryMetadata map[string]any) error {
	if messageType == nil {
		messageType = MessageTypeUser
	}
	mt, err := validateLogCall(message, messageType, entryMetadata)
	if err != nil {
		return err
	}
	entry := LogEntry{
		Message:       message,
		Timestamp:     float64(time.Now().UnixNano()) / 1e9,
		MessageType:   mt,
		EntryMetadata: entryMetadata,
	}
	tl.enqueue(event{kind: eventAppendEntry, branchID: branchID, entry: entry})
	return nil
}

func (tl *TreeLogger) enqueueTree(branchID, parent string, children []string) {
	tl.enqueue(event{kind: eventUpdateTree, branchID: branchID, parent: parent, children: children})
}

func (tl *TreeLogger) enqueueMetadata(branchID string, metadata map[string]any) {
	tl.enqueue(event{kind: eventUpdateMetadata, branchID: branchID, metadata: metadata})
}

func (tl *TreeLogger) enqueueTags(branchID string, tags []string) {
	tl.enqueue(event{kind: eventUpdateTags, branchID: branchID, tags: tags})
}

// enqueue is the non-blocking producer side of the event queue: append
// under a mutex, then nudge a 1-buffered wake channel so a blocked
// dequeue notices. In bounded mode (queueCapacity > 0) it drops the event
// and increments a counter instead of growing past capacity. The shutdown
// sentinel is never dropped, so the closer can always join the worker.
func (tl *TreeLogger) enqueue(e event) {
	tl.qmu.Lock()
	if tl.queueCapacity > 0 && len(tl.qbuf) >= tl.queueCapacity && e.kind != eventShutdown {
		tl.qmu.Unlock()
		atomic.AddInt64(&tl.dropped, 1)
		metrics.IncDropped(tl.Root.name, 1)
		return
	}
	tl.qbuf = append(tl.qbuf, e)
	metrics.SetQueueDepth(tl.Root.name, len(tl.qbuf))
	tl.qmu.Unlock()

	select {
	case tl.qwake <- struct{}{}:
	default:
	}
}

// dequeue blocks until an event is available or, if timeout >= 0, until the
// timeout elapses. A negative timeout blocks indefinitely. ok is false only
// on timeout.
func (tl *TreeLogger) dequeue(timeout time.Duration) (event, bool) {
	for {
		tl.qmu.Lock()
		if len(tl.qbuf) > 0 {
			e := tl.qbuf[0]
			tl.qbuf = tl.qbuf[1:]
			metrics.SetQueueDepth(tl.Root.name, len(tl.qbuf))
			tl.qmu.Unlock()
			return e, true
		}
		tl.qmu.Unlock()

		if timeout < 0 {
			<-tl.qwake
			continue
		}
		select {
		case <-tl.qwake:
			continue
		case <-time.After(timeout):
			return event{}, false
		}
	}
}

// run is the batching worker: the single consumer of the event queue. It
// maintains four pending buffers, coalesces events into them, and flushes
// to the Writer on debounce expiry, max-batch-size, or shutdown.
func (tl *TreeLogger) run() {
	var (
		logTasks  map[string][]LogEntry
		treeTasks map[string]TreeEdge
		metaTasks map[string]map[string]any
		tagTasks  map[string]map[string]struct{}
		tagOrder  map[string][]string
	)

	var deadline time.Time
	hasDeadline := false
	var firstFlushErr error

	batchSize := func() int {
		max := 0
		for _, n := range []int{len(logTasks), len(treeTasks), len(metaTasks), len(tagTasks)} {
			if n > max {
				max = n
			}
		}
		return max
	}

	reset := func() {
		logTasks, treeTasks, metaTasks, tagTasks, tagOrder = nil, nil, nil, nil, nil
		hasDeadline = false
	}

	flush := func() error {
		ctx := context.Background()
		var wg sync.WaitGroup
		errs := make([]error, 4)

		if len(logTasks) > 0 {
			wg.Add(1)
			tasks := logTasks
			go func() {
				defer wg.Done()
				if err := tl.writer.AppendEntries(ctx, tasks); err != nil {
					errs[0] = &BackendError{Op: "append_entries", Cause: err}
				}
			}()
		}
		if len(treeTasks) > 0 {
			wg.Add(1)
			tasks := treeTasks
			go func() {
				defer wg.Done()
				if err := tl.writer.UpdateTree(ctx, tasks); err != nil {
					errs[1] = &BackendError{Op: "update_tree", Cause: err}
				}
			}()
		}
		if len(metaTasks) > 0 {
			wg.Add(1)
			tasks := metaTasks
			go func() {
				defer wg.Done()
				if err := tl.writer.UpdateBranchMetadata(ctx, tasks); err != nil {
					errs[2] = &BackendError{Op: "update_branch_metadata", Cause: err}
				}
			}()
		}
		if len(tagTasks) > 0 {
			wg.Add(1)
			tagsPayload := make(map[string][]string, len(tagOrder))
			for id, ordered := range tagOrder {
				tagsPayload[id] = ordered
			}
			go func() {
				defer wg.Done()
				if err := tl.writer.AddTags(ctx, tagsPayload); err != nil {
					errs[3] = &BackendError{Op: "add_tags", Cause: err}
				}
			}()
		}

		start := time.Now()
		wg.Wait()
		metrics.IncFlush(tl.Root.name)
		metrics.ObserveFlushDuration(tl.Root.name, time.Since(start))

		reset()

		for _, err := range errs {
			if err != nil {
				return err
			}
		}
		return nil
	}

	for {
		timeout := time.Duration(-1)
		if hasDeadline {
			timeout = time.Until(deadline)
			if timeout < 0 {
				timeout = 0
			}
		}

		e, ok := tl.dequeue(timeout)

		shuttingDown := false
		if ok {
			if !hasDeadline {
				deadline = time.Now().Add(tl.debounce)
				hasDeadline = true
			}

			switch e.kind {
			case eventShutdown:
				shuttingDown = true
			case eventAppendEntry:
				if logTasks == nil {
					logTasks = make(map[string][]LogEntry)
				}
				logTasks[e.branchID] = append(logTasks[e.branchID], e.entry)
			case eventUpdateTree:
				if treeTasks == nil {
					treeTasks = make(map[string]TreeEdge)
				}
				treeTasks[e.branchID] = TreeEdge{Parent: e.parent, Children: dedupTags(e.children)}
			case eventUpdateMetadata:
				if metaTasks == nil {
					metaTasks = make(map[string]map[string]any)
				}
				if metaTasks[e.branchID] == nil {
					metaTasks[e.branchID] = make(map[string]any)
				}
				for k, v := range e.metadata {
					metaTasks[e.branchID][k] = v
				}
			case eventUpdateTags:
				if tagTasks == nil {
					tagTasks = make(map[string]map[string]struct{})
					tagOrder = make(map[string][]string)
				}
				if tagTasks[e.branchID] == nil {
					tagTasks[e.branchID] = make(map[string]struct{})
				}
				for _, t := range e.tags {
					if _, dup := tagTasks[e.branchID][t]; dup {
						continue
					}
					tagTasks[e.branchID][t] = struct{}{}
					tagOrder[e.branchID] = append(tagOrder[e.branchID], t)
				}
			}
		}

		if !time.Now().Before(deadline) || batchSize() >= tl.maxBatchSize || shuttingDown {
			if err := flush(); err != nil {
				if tl.silent {
					tl.logger.WithError(err).WithField("branch", tl.Root.name).Warn("treelog: backend flush failed, dropping batch")
				} else {
					tl.logger.WithError(err).WithField("branch", tl.Root.name).Error("treelog: backend flush failed")
					if firstFlushErr == nil {
						firstFlushErr = err
					}
				}
			}
		}

		if shuttingDown {
			tl.workerDone <- firstFlushErr
			return
		}
	}
}
