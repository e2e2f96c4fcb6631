package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tftstats/internal/storage"
)

func testRecords() []storage.PlayerRecord {
	early := storage.GameTimeFromMillis(time.Date(2025, 12, 17, 8, 0, 0, 0, time.UTC).UnixMilli())
	late := storage.GameTimeFromMillis(time.Date(2025, 12, 18, 8, 0, 0, 500_000_000, time.UTC).UnixMilli())
	return []storage.PlayerRecord{
		{
			MatchID: "NA1_2", PUUID: "p1", PlayerName: "alpha", GameDatetime: late, GameLength: 2000.5,
			GameVersion: "16.1", SetNumber: 16, QueueID: 1100, Placement: 1, Level: 9, LastRound: 33,
			Units:     []storage.Unit{{CharacterID: "TFT16_Ahri", StarLevel: 3, Items: []string{"a", "b"}}},
			Traits:    []storage.Trait{{Name: "TFT16_Arcanist", NumUnits: 4, Tier: 2}},
			Companion: json.RawMessage(`{"species":"PetChibi"}`),
		},
		{
			MatchID: "NA1_2", PUUID: "p2", PlayerName: "beta", GameDatetime: late, GameLength: 2000.5,
			GameVersion: "16.1", SetNumber: 16, QueueID: 1100, Placement: 2, Level: 8,
			Units: []storage.Unit{}, Traits: []storage.Trait{},
		},
		{
			MatchID: "NA1_1", PUUID: "p3", PlayerName: "gamma", GameDatetime: early,
			GameVersion: "15.9", SetNumber: 15, QueueID: 1100, Placement: 1,
			Units: []storage.Unit{}, Traits: []storage.Trait{},
		},
	}
}

func exerciseStore(t *testing.T, store RecordStore) {
	ctx := context.Background()

	saved, err := store.SaveRecords(ctx, testRecords())
	require.NoError(t, err)
	assert.Equal(t, 3, saved)

	// saving again replaces instead of duplicating
	_, err = store.SaveRecords(ctx, testRecords())
	require.NoError(t, err)

	matches, records, err := store.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, matches)
	assert.Equal(t, 3, records)

	exists, err := store.MatchExists(ctx, "NA1_2")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = store.MatchExists(ctx, "NA1_404")
	require.NoError(t, err)
	assert.False(t, exists)

	all, err := store.Records(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "NA1_1", all[0].MatchID, "ordered by match start")

	set16, err := store.Records(ctx, 16)
	require.NoError(t, err)
	require.Len(t, set16, 2)
	want := testRecords()[0]
	got := set16[0]
	assert.Equal(t, want.PlayerName, got.PlayerName)
	assert.Equal(t, want.Units, got.Units)
	assert.Equal(t, want.Traits, got.Traits)
	assert.Equal(t, want.GameDatetime.String(), got.GameDatetime.String())
	assert.JSONEq(t, string(want.Companion), string(got.Companion))
	assert.Empty(t, set16[1].Companion)
}

func TestSQLiteStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "records.db")
	store, err := NewSQLiteStore(context.Background(), path)
	require.NoError(t, err)
	defer store.Close()

	exerciseStore(t, store)
}

func TestSQLiteStore_EmptyBatch(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "records.db"))
	require.NoError(t, err)
	defer store.Close()

	saved, err := store.SaveRecords(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, saved)
}

func TestPostgresStore(t *testing.T) {
	url := os.Getenv("DATABASE_URL")
	if url == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, url)
	require.NoError(t, err)
	defer store.Close()

	_, err = store.pool.Exec(ctx, `DELETE FROM matches WHERE match_id IN ('NA1_1', 'NA1_2')`)
	require.NoError(t, err)

	exerciseStore(t, store)
}

func TestOpen_PicksBackend(t *testing.T) {
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	defer store.Close()
	_, ok := store.(*SQLiteStore)
	assert.True(t, ok)
}

func TestGroupByMatch(t *testing.T) {
	groups := groupByMatch(testRecords())
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 2)
	assert.Equal(t, "NA1_1", groups[1][0].MatchID)
}
