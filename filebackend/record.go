// Package filebackend is treelog's default Writer/Reader: a partitioned,
// on-disk store bounded by a configurable number of concurrently-open
// partitions. Grounded on the original Python implementation's
// FileWriter/FileReader (src/treelog/backends/filebased.py) and on the
// teacher's internal/sinks.LocalFileSink for the Go file-handling idiom
// (per-partition locking, logrus-structured lifecycle logging).
package filebackend

import "github.com/mdzesseis/treelog"

// fileFormat is the per-partition file name template, kept identical to
// the source system's so existing tooling built against it keeps working.
const fileFormat = "treelog_logging_storage_partition_%d.jsonl"

// branchRecord is the in-memory, per-partition state for one branch: the
// same shape persisted to disk as one entry in a partition's top-level
// JSON object.
type branchRecord struct {
	Messages []treelog.LogEntry `json:"messages"`
	Metadata map[string]any     `json:"metadata"`
	Tags     []string           `json:"tags"`
}
