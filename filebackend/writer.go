package filebackend

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog"
)

const (
	defaultNumFlowsPerPartition = 1000
	defaultNumConcurrentWrites  = 16
)

// WriterConfig configures a Writer.
type WriterConfig struct {
	// BasePath is the directory partition files are written into. It is
	// created if it does not exist.
	BasePath string

	// NumFlowsPerPartition is the soft cap on branches held by one
	// partition before a new partition is opened in its place. Defaults
	// to 1000.
	NumFlowsPerPartition int

	// NumConcurrentWrites is the number of partitions kept open at once.
	// Defaults to 16.
	NumConcurrentWrites int

	// Compress, when true, writes each partition zstd-compressed. The
	// Reader auto-detects compression via a magic-byte sniff, so mixed
	// compressed/uncompressed partitions in the same directory read back
	// correctly.
	Compress bool

	Logger *logrus.Logger
}

// Writer is treelog's default Writer: a partitioned JSON-object-per-file
// store. It keeps a bounded number of partitions "open" (tracked in
// memory) at any time; once a partition accumulates NumFlowsPerPartition
// branches, it is retired from the open set and a fresh partition index
// takes its place.
type Writer struct {
	cfg WriterConfig

	mu             sync.Mutex
	partitionOf    map[string]int
	openPartitions []int
	nextPartition  int
	data           map[int]map[string]*branchRecord
	partitionLocks map[int]*sync.Mutex

	encoder *zstd.Encoder
}

// NewWriter constructs a Writer, creating BasePath if necessary.
func NewWriter(cfg WriterConfig) (*Writer, error) {
	if cfg.NumFlowsPerPartition <= 0 {
		cfg.NumFlowsPerPartition = defaultNumFlowsPerPartition
	}
	if cfg.NumConcurrentWrites <= 0 {
		cfg.NumConcurrentWrites = defaultNumConcurrentWrites
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}

	if err := os.MkdirAll(cfg.BasePath, 0o755); err != nil {
		return nil, fmt.Errorf("filebackend: creating base path: %w", err)
	}

	w := &Writer{
		cfg:            cfg,
		partitionOf:    make(map[string]int),
		openPartitions: make([]int, cfg.NumConcurrentWrites),
		data:           make(map[int]map[string]*branchRecord),
		partitionLocks: make(map[int]*sync.Mutex),
	}
	for i := 0; i < cfg.NumConcurrentWrites; i++ {
		w.openPartitions[i] = i
		w.data[i] = make(map[string]*branchRecord)
	}
	w.nextPartition = cfg.NumConcurrentWrites

	if cfg.Compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return nil, fmt.Errorf("filebackend: constructing zstd encoder: %w", err)
		}
		w.encoder = enc
	}

	return w, nil
}

func (w *Writer) lockFor(partition int) *sync.Mutex {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.partitionLocks[partition] == nil {
		w.partitionLocks[partition] = &sync.Mutex{}
	}
	return w.partitionLocks[partition]
}

// AppendEntries implements treelog.Writer.
func (w *Writer) AppendEntries(ctx context.Context, entries map[string][]treelog.LogEntry) error {
	return w.forEachPartitioned(idsOf(entries), func(id string, rec *branchRecord) {
		rec.Messages = append(rec.Messages, entries[id]...)
	})
}

// AddTags implements treelog.Writer.
func (w *Writer) AddTags(ctx context.Context, tags map[string][]string) error {
	return w.forEachPartitioned(idsOf(tags), func(id string, rec *branchRecord) {
		seen := make(map[string]struct{}, len(rec.Tags))
		for _, t := range rec.Tags {
			seen[t] = struct{}{}
		}
		for _, t := range tags[id] {
			if _, ok := seen[t]; ok {
				continue
			}
			seen[t] = struct{}{}
			rec.Tags = append(rec.Tags, t)
		}
	})
}

// RemoveTags implements treelog.Writer.
func (w *Writer) RemoveTags(ctx context.Context, tags map[string][]string) error {
	return w.forEachPartitioned(idsOf(tags), func(id string, rec *branchRecord) {
		remove := make(map[string]struct{}, len(tags[id]))
		for _, t := range tags[id] {
			remove[t] = struct{}{}
		}
		kept := rec.Tags[:0]
		for _, t := range rec.Tags {
			if _, drop := remove[t]; drop {
				continue
			}
			kept = append(kept, t)
		}
		rec.Tags = kept
	})
}

// UpdateTree implements treelog.Writer. Parent/children are stored inside
// the branch's metadata map, matching the original file backend's layout.
func (w *Writer) UpdateTree(ctx context.Context, relationships map[string]treelog.TreeEdge) error {
	return w.forEachPartitioned(idsOf(relationships), func(id string, rec *branchRecord) {
		edge := relationships[id]
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		var parent any
		if edge.Parent != "" {
			parent = edge.Parent
		}
		rec.Metadata["parent"] = parent
		rec.Metadata["children"] = edge.Children
	})
}

// UpdateBranchMetadata implements treelog.Writer.
func (w *Writer) UpdateBranchMetadata(ctx context.Context, metadata map[string]map[string]any) error {
	return w.forEachPartitioned(idsOf(metadata), func(id string, rec *branchRecord) {
		if rec.Metadata == nil {
			rec.Metadata = make(map[string]any)
		}
		for k, v := range metadata[id] {
			rec.Metadata[k] = v
		}
	})
}

// idsOf returns the keys of any branch-id-keyed map, regardless of its
// value type, so forEachPartitioned can share one code path across the
// four batched Writer operations.
func idsOf[V any](m map[string]V) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	return ids
}

// forEachPartitioned resolves the partition for every id, mutates its
// branchRecord via mutate, and rewrites every touched partition's file.
// Partitions are processed concurrently with each other but serialized
// per-partition, so concurrent writes to one partition never race.
func (w *Writer) forEachPartitioned(ids []string, mutate func(id string, rec *branchRecord)) error {
	w.mu.Lock()
	touched := make(map[int]struct{})
	for _, id := range ids {
		partition := w.selectPartition(id)
		rec := w.data[partition][id]
		mutate(id, rec)
		touched[partition] = struct{}{}
	}
	w.mu.Unlock()

	var wg sync.WaitGroup
	errs := make([]error, 0, len(touched))
	var errMu sync.Mutex
	for partition := range touched {
		partition := partition
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := w.rewritePartition(partition); err != nil {
				errMu.Lock()
				errs = append(errs, err)
				errMu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

func (w *Writer) rewritePartition(partition int) error {
	lock := w.lockFor(partition)
	lock.Lock()
	defer lock.Unlock()

	w.mu.Lock()
	snapshot := w.data[partition]
	payload, err := json.Marshal(snapshot)
	branches := len(snapshot)
	w.mu.Unlock()
	if err != nil {
		return fmt.Errorf("filebackend: marshaling partition %d: %w", partition, err)
	}

	if w.cfg.Compress {
		payload = w.encoder.EncodeAll(payload, nil)
	}

	path := filepath.Join(w.cfg.BasePath, fmt.Sprintf(fileFormat, partition))
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o644); err != nil {
		return fmt.Errorf("filebackend: writing partition %d: %w", partition, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("filebackend: renaming partition %d into place: %w", partition, err)
	}

	w.cfg.Logger.WithFields(logrus.Fields{"partition": partition, "branches": branches}).Debug("filebackend: rewrote partition")
	return nil
}

var _ treelog.Writer = (*Writer)(nil)
