// Package db persists parsed player records to SQL stores.
package db

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
	json "github.com/goccy/go-json"

	"tftstats/internal/storage"
)

// RecordStore saves parsed records. Saving a record that already exists
// (same match and placement) replaces it.
type RecordStore interface {
	SaveRecords(ctx context.Context, records []storage.PlayerRecord) (int, error)
	MatchExists(ctx context.Context, matchID string) (bool, error)
	Counts(ctx context.Context) (matches, records int, err error)
	Records(ctx context.Context, setNumber int) ([]storage.PlayerRecord, error)
	Close() error
}

// Open picks the store for a connection string: postgres:// and
// postgresql:// URLs use Postgres, anything else is a SQLite file path.
func Open(ctx context.Context, dsn string) (RecordStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return NewPostgresStore(ctx, dsn)
	}
	return NewSQLiteStore(ctx, dsn)
}

// boardColumns holds the JSON encoded nested fields of a record.
type boardColumns struct {
	units     []byte
	traits    []byte
	companion []byte
}

func encodeBoard(r storage.PlayerRecord) (boardColumns, error) {
	var cols boardColumns
	var err error
	if cols.units, err = json.Marshal(nonNil(r.Units)); err != nil {
		return cols, errors.Wrap(err, "encode units")
	}
	if cols.traits, err = json.Marshal(nonNil(r.Traits)); err != nil {
		return cols, errors.Wrap(err, "encode traits")
	}
	cols.companion = []byte(r.Companion)
	if len(cols.companion) == 0 {
		cols.companion = []byte("{}")
	}
	return cols, nil
}

func decodeBoard(r *storage.PlayerRecord, cols boardColumns) error {
	if err := json.Unmarshal(cols.units, &r.Units); err != nil {
		return errors.Wrapf(err, "decode units of %s", r.MatchID)
	}
	if err := json.Unmarshal(cols.traits, &r.Traits); err != nil {
		return errors.Wrapf(err, "decode traits of %s", r.MatchID)
	}
	if len(cols.companion) > 0 && string(cols.companion) != "{}" {
		r.Companion = append(json.RawMessage{}, cols.companion...)
	}
	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

// groupByMatch splits records into per-match batches, keeping order.
func groupByMatch(records []storage.PlayerRecord) [][]storage.PlayerRecord {
	var groups [][]storage.PlayerRecord
	index := map[string]int{}
	for _, r := range records {
		i, ok := index[r.MatchID]
		if !ok {
			i = len(groups)
			index[r.MatchID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], r)
	}
	return groups
}
