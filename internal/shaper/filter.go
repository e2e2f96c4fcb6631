// Package shaper filters parsed player records and projects them into a
// rectangular table.
package shaper

import (
	"slices"
	"time"

	"github.com/cockroachdb/errors"

	"tftstats/internal/storage"
)

// ErrNoRows is returned when the filters leave nothing to write.
var ErrNoRows = errors.New("filters removed every record")

// Predicate decides whether a record is kept.
type Predicate func(storage.PlayerRecord) bool

// Filter returns the records matching keep, in input order. Kept records
// are shared, not copied.
func Filter(records []storage.PlayerRecord, keep Predicate) []storage.PlayerRecord {
	out := make([]storage.PlayerRecord, 0, len(records))
	for _, r := range records {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// FilterBySet keeps records played in the given set.
func FilterBySet(records []storage.PlayerRecord, targetSet int) []storage.PlayerRecord {
	return Filter(records, func(r storage.PlayerRecord) bool {
		return r.SetNumber == targetSet
	})
}

// FilterByPatchCutoff keeps records played at or after cutoff.
func FilterByPatchCutoff(records []storage.PlayerRecord, cutoff time.Time) []storage.PlayerRecord {
	return Filter(records, func(r storage.PlayerRecord) bool {
		return !r.GameDatetime.Before(cutoff)
	})
}

// FilterTopN keeps records placed n or better.
func FilterTopN(records []storage.PlayerRecord, n int) []storage.PlayerRecord {
	return Filter(records, func(r storage.PlayerRecord) bool {
		return r.Placement <= n
	})
}

// FilterByQueue keeps records from the given queues.
func FilterByQueue(records []storage.PlayerRecord, queueIDs ...int) []storage.PlayerRecord {
	return Filter(records, func(r storage.PlayerRecord) bool {
		return slices.Contains(queueIDs, r.QueueID)
	})
}

// Options selects the filters Apply runs. Zero values disable a filter.
type Options struct {
	TargetSet   int
	PatchCutoff time.Time
	TopN        int
	QueueIDs    []int
}

// Fields lists the enabled filters as key/value pairs for logging.
func (o Options) Fields() []any {
	var fields []any
	if o.TargetSet > 0 {
		fields = append(fields, "target_set", o.TargetSet)
	}
	if !o.PatchCutoff.IsZero() {
		fields = append(fields, "patch_cutoff", o.PatchCutoff.UTC().Format(time.RFC3339))
	}
	if len(o.QueueIDs) > 0 {
		fields = append(fields, "queues", o.QueueIDs)
	}
	if o.TopN > 0 {
		fields = append(fields, "top_n", o.TopN)
	}
	return fields
}

// Shape filters records and flattens what is left. It fails with ErrNoRows
// when records were given and none survived the filters.
func Shape(records []storage.PlayerRecord, opts Options) (*Table, error) {
	table := ToFlatRows(Apply(records, opts))
	if len(records) > 0 && len(table.Rows) == 0 {
		return table, errors.Wrapf(ErrNoRows, "%d records in, filters %v", len(records), opts.Fields())
	}
	return table, nil
}

// Apply runs the enabled filters: set, then patch cutoff, then queue,
// then placement.
func Apply(records []storage.PlayerRecord, opts Options) []storage.PlayerRecord {
	if opts.TargetSet > 0 {
		records = FilterBySet(records, opts.TargetSet)
	}
	if !opts.PatchCutoff.IsZero() {
		records = FilterByPatchCutoff(records, opts.PatchCutoff)
	}
	if len(opts.QueueIDs) > 0 {
		records = FilterByQueue(records, opts.QueueIDs...)
	}
	if opts.TopN > 0 {
		records = FilterTopN(records, opts.TopN)
	}
	return records
}
