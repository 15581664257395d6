package bench

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"time"

	"github.com/antiyro/starkroot/db"
	"github.com/antiyro/starkroot/db/pebble"
	"github.com/antiyro/starkroot/utils"
	"github.com/olekukonko/tablewriter"
)

// Result holds the structured output of a benchmark run. Durations are
// reported in milliseconds so the file is easy to diff between runs and
// between machines.
type Result struct {
	Version  string `json:"version"`
	Database string `json:"database"`
	Workers  int    `json:"workers"`

	Blocks            uint64 `json:"blocks"`
	ContractsDeployed uint64 `json:"contracts_deployed"`
	ClassesDeclared   uint64 `json:"classes_declared"`
	StorageWrites     uint64 `json:"storage_writes"`
	StorageInserts    uint64 `json:"storage_inserts"`
	StorageUpdates    uint64 `json:"storage_updates"`
	DiffEntries       uint64 `json:"diff_entries"`
	Transactions      uint64 `json:"transactions"`
	Events            uint64 `json:"events"`
	VerifiedBlocks    uint64 `json:"verified_blocks"`

	StateRoot string `json:"state_root"`

	ElapsedMs       float64 `json:"elapsed_ms"`
	WorkloadMs      float64 `json:"workload_ms"`
	StorageTriesMs  float64 `json:"storage_tries_ms"`
	ContractsTrieMs float64 `json:"contracts_trie_ms"`
	ClassesTrieMs   float64 `json:"classes_trie_ms"`
	CommitmentsMs   float64 `json:"commitments_ms"`
	StateRootMs     float64 `json:"state_root_ms"`
	DBCommitMs      float64 `json:"db_commit_ms"`

	BlocksPerSec  float64 `json:"blocks_per_sec"`
	EntriesPerSec float64 `json:"entries_per_sec"`

	PeakMemoryBytes uint64 `json:"peak_memory_bytes"`
	TotalAllocBytes uint64 `json:"total_alloc_bytes"`
	NumGC           uint32 `json:"num_gc"`

	DBSizeBytes uint64        `json:"db_size_bytes,omitempty"`
	DBKeyCount  uint          `json:"db_key_count,omitempty"`
	DBBuckets   []BucketUsage `json:"db_buckets,omitempty"`
}

// BucketUsage is the on-disk footprint of one bucket prefix.
type BucketUsage struct {
	Bucket    string `json:"bucket"`
	SizeBytes uint64 `json:"size_bytes"`
	Count     uint   `json:"count"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func millisToDuration(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// WriteJSON writes the result to path as indented JSON.
func (r *Result) WriteJSON(path string) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = utils.RunAndWrapOnError(file.Close, err)
	}()

	enc := json.NewEncoder(file)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// Render writes the phase breakdown and run totals as tables.
func (r *Result) Render(w io.Writer) {
	var phaseRows [][]string
	appendPhase := func(name string, ms float64) {
		share := ""
		if r.ElapsedMs > 0 {
			share = fmt.Sprintf("%.1f%%", 100*ms/r.ElapsedMs)
		}
		phaseRows = append(phaseRows, []string{
			name,
			millisToDuration(ms).Round(10 * time.Microsecond).String(),
			share,
		})
	}

	appendPhase("workload", r.WorkloadMs)
	appendPhase("storage tries", r.StorageTriesMs)
	appendPhase("contracts trie", r.ContractsTrieMs)
	appendPhase("classes trie", r.ClassesTrieMs)
	appendPhase("commitments", r.CommitmentsMs)
	appendPhase("state root", r.StateRootMs)
	appendPhase("db commit", r.DBCommitMs)

	phaseTable := tablewriter.NewWriter(w)
	phaseTable.SetHeader([]string{"Phase", "Time", "Share"})
	phaseTable.AppendBulk(phaseRows)
	phaseTable.SetFooter([]string{
		"Wall",
		millisToDuration(r.ElapsedMs).Round(10 * time.Microsecond).String(),
		"",
	})
	phaseTable.Render()

	totals := tablewriter.NewWriter(w)
	totals.SetHeader([]string{"Metric", "Value"})
	totals.Append([]string{"database", r.Database})
	totals.Append([]string{"workers", fmt.Sprintf("%d", r.Workers)})
	totals.Append([]string{"blocks", fmt.Sprintf("%d", r.Blocks)})
	totals.Append([]string{"diff entries", fmt.Sprintf("%d", r.DiffEntries)})
	totals.Append([]string{"storage writes", fmt.Sprintf("%d (%d fresh, %d overwritten)",
		r.StorageWrites, r.StorageInserts, r.StorageUpdates)})
	totals.Append([]string{"blocks/s", fmt.Sprintf("%.2f", r.BlocksPerSec)})
	totals.Append([]string{"entries/s", fmt.Sprintf("%.2f", r.EntriesPerSec)})
	if r.VerifiedBlocks > 0 {
		totals.Append([]string{"verified blocks", fmt.Sprintf("%d", r.VerifiedBlocks)})
	}
	totals.Append([]string{"state root", r.StateRoot})
	totals.Append([]string{"peak memory", utils.DataSize(r.PeakMemoryBytes).String()})
	if r.DBSizeBytes > 0 {
		totals.Append([]string{"db size", utils.DataSize(r.DBSizeBytes).String()})
	}
	totals.Render()

	if len(r.DBBuckets) > 0 {
		buckets := tablewriter.NewWriter(w)
		buckets.SetHeader([]string{"Bucket", "Size", "Count"})
		for _, usage := range r.DBBuckets {
			buckets.Append([]string{
				usage.Bucket,
				utils.DataSize(usage.SizeBytes).String(),
				fmt.Sprintf("%d", usage.Count),
			})
		}
		buckets.SetFooter([]string{
			"Total",
			utils.DataSize(r.DBSizeBytes).String(),
			fmt.Sprintf("%d", r.DBKeyCount),
		})
		buckets.Render()
	}
}

// collectMemStats fills the allocation fields from the runtime.
func (r *Result) collectMemStats() {
	var stats runtime.MemStats
	runtime.ReadMemStats(&stats)
	r.PeakMemoryBytes = stats.Sys
	r.TotalAllocBytes = stats.TotalAlloc
	r.NumGC = stats.NumGC
}

// collectDBSize walks every bucket prefix of a pebble-backed database and
// records its footprint. Backends without a disk representation are skipped.
func (r *Result) collectDBSize(ctx context.Context, database db.DB) error {
	pebbleDB, ok := database.(*pebble.DB)
	if !ok {
		return nil
	}

	for _, bucket := range db.BucketValues() {
		item, err := pebble.CalculatePrefixSize(ctx, pebbleDB, []byte{byte(bucket)})
		if err != nil {
			return err
		}
		r.DBBuckets = append(r.DBBuckets, BucketUsage{
			Bucket:    bucket.String(),
			SizeBytes: uint64(item.Size),
			Count:     item.Count,
		})
		r.DBSizeBytes += uint64(item.Size)
		r.DBKeyCount += item.Count
	}
	return nil
}
