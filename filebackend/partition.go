package filebackend

import (
	"math/big"

	"github.com/mdzesseis/treelog"
)

// selectPartition resolves id to a partition index, pinning it on first
// use. Mirrors the source system's selection rule exactly: the big-endian
// integer interpretation of id's UTF-8 bytes, modulo the number of
// currently open partitions. Callers must hold w.mu.
func (w *Writer) selectPartition(id string) int {
	if p, ok := w.partitionOf[id]; ok {
		return p
	}

	idx := new(big.Int).SetBytes([]byte(id))
	idx.Mod(idx, big.NewInt(int64(len(w.openPartitions))))
	partition := w.openPartitions[idx.Int64()]

	if w.data[partition] == nil {
		w.data[partition] = make(map[string]*branchRecord)
	}
	if _, ok := w.data[partition][id]; !ok {
		w.data[partition][id] = &branchRecord{
			Messages: []treelog.LogEntry{},
			Metadata: make(map[string]any),
			Tags:     []string{},
		}
	}
	w.partitionOf[id] = partition

	if len(w.data[partition]) >= w.cfg.NumFlowsPerPartition {
		w.openPartitions = removeInt(w.openPartitions, partition)
		w.openPartitions = append(w.openPartitions, w.nextPartition)
		w.nextPartition++
	}

	return partition
}

func removeInt(s []int, v int) []int {
	out := make([]int, 0, len(s))
	for _, x := range s {
		if x != v {
			out = append(out, x)
		}
	}
	return out
}
