// Package compaction merges a table's level-0 SSTs into a single
// larger SST.
//
// Compaction reduces read amplification (fewer files consulted per
// lookup) and space amplification (older row versions disappear).
// The merge rule per row id: the newest source wins, and a tombstone
// shadows older live entries. In a full compaction, where no older
// level survives, tombstones themselves are elided to reclaim space.
package compaction

import (
	"sort"

	"github.com/sarveshkapre/embeddb/pkg/sstable"
	"github.com/sarveshkapre/embeddb/pkg/types"
)

// Task describes one compaction run over a table's SSTs.
type Task struct {
	// Inputs are the SSTs to merge, ordered newest first (the same
	// order the table engine keeps its SST list in).
	Inputs []*sstable.Reader

	// Full indicates no older level remains beneath the output, so
	// tombstones may be dropped.
	Full bool
}

// Result summarizes a completed merge.
type Result struct {
	Entries          []types.RowEntry
	InputEntries     int
	DroppedVersions  int
	ElidedTombstones int
}

// Merge runs the task and returns the surviving entries in ascending
// row-id order, ready for an SST writer. It does not write anything;
// the table engine owns file creation and list swapping so the merge
// itself stays trivially testable.
func Merge(task Task) (Result, error) {
	var res Result

	// Newest-first input order means the first occurrence of a row id
	// is the authoritative one.
	merged := make(map[int64]types.RowEntry)
	for _, r := range task.Inputs {
		entries, err := r.Scan()
		if err != nil {
			return Result{}, err
		}
		res.InputEntries += len(entries)
		for _, e := range entries {
			if _, seen := merged[e.RowID]; seen {
				res.DroppedVersions++
				continue
			}
			merged[e.RowID] = e
		}
	}

	out := make([]types.RowEntry, 0, len(merged))
	for _, e := range merged {
		if task.Full && e.IsTombstone() {
			res.ElidedTombstones++
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RowID < out[j].RowID })

	res.Entries = out
	return res, nil
}
