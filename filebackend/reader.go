package filebackend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/klauspost/compress/zstd"
	"github.com/sirupsen/logrus"

	"github.com/mdzesseis/treelog"
)

// zstdMagic is the frame magic number klauspost/compress/zstd writes,
// used to auto-detect whether a partition file is compressed.
var zstdMagic = []byte{0x28, 0xB5, 0x2F, 0xFD}

// ReaderConfig configures a Reader.
type ReaderConfig struct {
	BasePath string
	Logger   *logrus.Logger
}

// Reader is treelog's default Reader: it loads every partition file under
// BasePath into memory on first use, and can optionally watch BasePath for
// changes so a long-lived process doesn't need to poll.
type Reader struct {
	cfg ReaderConfig

	mu       sync.RWMutex
	loaded   bool
	branches map[string]treelog.BranchData
	byTag    map[string][]string

	decoder *zstd.Decoder
	watcher *fsnotify.Watcher
}

// NewReader constructs a Reader. Data is not loaded until the first call
// that needs it (GetBranches, GetBranchIDs, BranchIDsByTag) or an explicit
// Load.
func NewReader(cfg ReaderConfig) (*Reader, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("filebackend: constructing zstd decoder: %w", err)
	}
	return &Reader{cfg: cfg, decoder: dec}, nil
}

// Load (re)reads every partition file under BasePath, replacing the
// Reader's in-memory index. Per-file failures (a partial write, a
// non-JSON file) are skipped, matching the source system's loader.
func (r *Reader) Load() error {
	entries, err := os.ReadDir(r.cfg.BasePath)
	if err != nil {
		return fmt.Errorf("filebackend: listing %s: %w", r.cfg.BasePath, err)
	}

	branches := make(map[string]treelog.BranchData)
	byTag := make(map[string][]string)

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		path := filepath.Join(r.cfg.BasePath, entry.Name())
		partitionData, err := r.loadPartition(path)
		if err != nil {
			r.cfg.Logger.WithError(err).WithField("file", path).Debug("filebackend: skipping unreadable partition")
			continue
		}
		for id, bd := range partitionData {
			branches[id] = bd
			for _, tag := range bd.Tags {
				byTag[tag] = append(byTag[tag], id)
			}
		}
	}

	r.mu.Lock()
	r.branches = branches
	r.byTag = byTag
	r.loaded = true
	r.mu.Unlock()

	return nil
}

func (r *Reader) loadPartition(path string) (map[string]treelog.BranchData, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if bytes.HasPrefix(raw, zstdMagic) {
		raw, err = r.decoder.DecodeAll(raw, nil)
		if err != nil {
			return nil, err
		}
	}

	var records map[string]branchRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, err
	}

	out := make(map[string]treelog.BranchData, len(records))
	for id, rec := range records {
		out[id] = treelog.BranchData{
			ID:       id,
			Messages: rec.Messages,
			Metadata: normalizeMetadata(rec.Metadata),
			Tags:     rec.Tags,
		}
	}
	return out, nil
}

// normalizeMetadata recovers the concrete Go types the Writer originally
// stored for fields encoding/json otherwise hands back as interface{}
// slices. "children" is always written as []string (see writer.go's
// UpdateTree); json.Unmarshal into map[string]any decodes a JSON array as
// []interface{} regardless, so callers type-asserting
// Metadata["children"].([]string) would otherwise always fail against data
// that has round-tripped through a partition file.
func normalizeMetadata(metadata map[string]any) map[string]any {
	raw, ok := metadata["children"].([]interface{})
	if !ok {
		return metadata
	}
	children := make([]string, 0, len(raw))
	for _, v := range raw {
		s, ok := v.(string)
		if !ok {
			return metadata
		}
		children = append(children, s)
	}
	metadata["children"] = children
	return metadata
}

func (r *Reader) ensureLoaded() error {
	r.mu.RLock()
	loaded := r.loaded
	r.mu.RUnlock()
	if loaded {
		return nil
	}
	return r.Load()
}

// GetBranches implements treelog.Reader.
func (r *Reader) GetBranches(ctx context.Context, ids []string) (map[string]treelog.BranchData, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]treelog.BranchData, len(ids))
	for _, id := range ids {
		if bd, ok := r.branches[id]; ok {
			out[id] = bd
		}
	}
	return out, nil
}

// GetBranchIDs implements treelog.Reader.
func (r *Reader) GetBranchIDs(ctx context.Context) ([]string, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.branches))
	for id := range r.branches {
		ids = append(ids, id)
	}
	return ids, nil
}

// BranchIDsByTag returns the ids of every branch carrying tag. Supplements
// the Reader contract with the source system's get_logger_ids_by_tag,
// since the tag index is otherwise thrown away.
func (r *Reader) BranchIDsByTag(ctx context.Context, tag string) ([]string, error) {
	if err := r.ensureLoaded(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.byTag[tag]...), nil
}

// Watch starts an fsnotify watch on BasePath and reloads the in-memory
// index whenever a partition file is created, written, or removed. It
// blocks until ctx is canceled or an unrecoverable watcher error occurs.
func (r *Reader) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("filebackend: starting watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(r.cfg.BasePath); err != nil {
		return fmt.Errorf("filebackend: watching %s: %w", r.cfg.BasePath, err)
	}
	r.watcher = watcher

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if err := r.Load(); err != nil {
				r.cfg.Logger.WithError(err).Warn("filebackend: reload after fsnotify event failed")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.cfg.Logger.WithError(err).Warn("filebackend: watcher error")
		}
	}
}

var _ treelog.Reader = (*Reader)(nil)
