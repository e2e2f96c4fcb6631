package shaper

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tftstats/internal/collector"
	"tftstats/internal/riot"
	"tftstats/internal/storage"
)

// twoPlayerMatch: 3 units per player (2 items on unit 1, none on unit 3),
// 4 traits of which 2 are active.
func twoPlayerMatch() *riot.RawMatch {
	board := func(name string, placement int) riot.MatchParticipant {
		return riot.MatchParticipant{
			RiotIDGameName: name,
			Placement:      placement,
			Units: []riot.MatchUnit{
				{CharacterID: "TFT16_Jinx", Tier: 2, ItemNames: []string{"TFT_Item_InfinityEdge", "TFT_Item_LastWhisper"}},
				{CharacterID: "TFT16_Vi", Tier: 2, ItemNames: []string{"TFT_Item_Bloodthirster"}},
				{CharacterID: "TFT16_Ekko", Tier: 1},
			},
			Traits: []riot.MatchTrait{
				{Name: "TFT16_Rebel", NumUnits: 3, TierCurrent: 1},
				{Name: "TFT16_Enforcer", NumUnits: 1, TierCurrent: 0},
				{Name: "TFT16_Sniper", NumUnits: 2, TierCurrent: 2},
				{Name: "TFT16_Bruiser", NumUnits: 1, TierCurrent: 0},
			},
		}
	}
	return &riot.RawMatch{
		MatchID: "NA1_77",
		Match: riot.MatchResponse{
			Metadata: riot.MatchMetadata{MatchID: "NA1_77"},
			Info: riot.MatchInfo{
				GameDatetime: time.Date(2025, 12, 18, 3, 0, 0, 0, time.UTC).UnixMilli(),
				SetNumber:    16,
				Participants: []riot.MatchParticipant{board("one", 3), board("two", 6)},
			},
		},
	}
}

func TestToFlatRows_SyntheticMatch(t *testing.T) {
	records, err := collector.ParseMatch(twoPlayerMatch())
	require.NoError(t, err)

	table := ToFlatRows(records)

	require.Len(t, table.Rows, 2)
	for row := range table.Rows {
		assert.Len(t, table.Rows[row], len(table.Columns))

		assert.Equal(t, Cell{Value: "TFT_Item_LastWhisper", Valid: true}, table.Get(row, "unit_1_item_2"))
		for k := 1; k <= 3; k++ {
			col := "unit_3_item_" + string(rune('0'+k))
			assert.GreaterOrEqual(t, table.Column(col), 0, col)
			assert.False(t, table.Get(row, col).Valid, col)
		}

		assert.Equal(t, "TFT16_Rebel", table.Get(row, "trait_1_name").Value)
		assert.Equal(t, "TFT16_Sniper", table.Get(row, "trait_2_name").Value)
		assert.Equal(t, "2", table.Get(row, "trait_2_tier").Value)
	}

	assert.Equal(t, -1, table.Column("trait_3_name"), "inactive traits get no columns")
	for _, col := range table.Columns {
		for row := range table.Rows {
			v := table.Get(row, col).Value
			assert.NotEqual(t, "TFT16_Enforcer", v)
			assert.NotEqual(t, "TFT16_Bruiser", v)
		}
	}
}

func TestToFlatRows_ColumnUnionWithNulls(t *testing.T) {
	records := []storage.PlayerRecord{
		{MatchID: "M", PlayerName: "wide", Placement: 1,
			Units:  []storage.Unit{{CharacterID: "A", StarLevel: 1}, {CharacterID: "B", StarLevel: 3, Items: []string{"x"}}},
			Traits: []storage.Trait{{Name: "T1", NumUnits: 2, Tier: 1}}},
		{MatchID: "M", PlayerName: "narrow", Placement: 2,
			Units: []storage.Unit{{CharacterID: "C", StarLevel: 2}}},
	}

	table := ToFlatRows(records)

	assert.Equal(t, []string{
		"match_id", "player_name", "placement",
		"unit_1_character_id", "unit_1_star_level", "unit_1_item_1", "unit_1_item_2", "unit_1_item_3",
		"unit_2_character_id", "unit_2_star_level", "unit_2_item_1", "unit_2_item_2", "unit_2_item_3",
		"trait_1_name", "trait_1_num_units", "trait_1_tier",
	}, table.Columns)

	assert.Equal(t, "3", table.Get(0, "unit_2_star_level").Value)
	assert.Equal(t, "x", table.Get(0, "unit_2_item_1").Value)
	assert.False(t, table.Get(1, "unit_2_character_id").Valid)
	assert.False(t, table.Get(1, "trait_1_name").Valid)
	assert.Equal(t, Cell{Value: "2", Valid: true}, table.Get(1, "unit_1_star_level"))
}

func TestToFlatRows_Empty(t *testing.T) {
	table := ToFlatRows(nil)
	assert.Equal(t, []string{"match_id", "player_name", "placement"}, table.Columns)
	assert.Empty(t, table.Rows)
}

func TestFilterByPatchCutoff(t *testing.T) {
	cutoff := time.Date(2025, 12, 16, 11, 30, 0, 0, time.UTC)
	records := []storage.PlayerRecord{
		{MatchID: "before", GameDatetime: storage.GameTime{Time: cutoff.Add(-time.Second)}},
		{MatchID: "after", GameDatetime: storage.GameTime{Time: cutoff.Add(time.Second)}},
		{MatchID: "exact", GameDatetime: storage.GameTime{Time: cutoff}},
	}

	kept := FilterByPatchCutoff(records, cutoff)

	require.Len(t, kept, 2)
	assert.Equal(t, "after", kept[0].MatchID)
	assert.Equal(t, "exact", kept[1].MatchID)
}

func TestFilterTopN(t *testing.T) {
	var records []storage.PlayerRecord
	for _, p := range []int{1, 4, 5, 8} {
		records = append(records, storage.PlayerRecord{Placement: p})
	}

	kept := FilterTopN(records, 4)

	var placements []int
	for _, r := range kept {
		placements = append(placements, r.Placement)
	}
	assert.Equal(t, []int{1, 4}, placements)
}

func TestFilterBySet(t *testing.T) {
	records := []storage.PlayerRecord{{MatchID: "a", SetNumber: 15}, {MatchID: "b", SetNumber: 16}}

	kept := FilterBySet(records, 16)

	require.Len(t, kept, 1)
	assert.Equal(t, "b", kept[0].MatchID)
	assert.Len(t, records, 2, "input is not modified")
}

func TestApply(t *testing.T) {
	cutoff := time.Date(2025, 12, 16, 0, 0, 0, 0, time.UTC)
	late := storage.GameTime{Time: cutoff.Add(time.Hour)}
	records := []storage.PlayerRecord{
		{MatchID: "keep", SetNumber: 16, QueueID: 1100, Placement: 2, GameDatetime: late},
		{MatchID: "old set", SetNumber: 15, QueueID: 1100, Placement: 1, GameDatetime: late},
		{MatchID: "early", SetNumber: 16, QueueID: 1100, Placement: 1, GameDatetime: storage.GameTime{Time: cutoff.Add(-time.Hour)}},
		{MatchID: "normal queue", SetNumber: 16, QueueID: 1090, Placement: 1, GameDatetime: late},
		{MatchID: "bottom", SetNumber: 16, QueueID: 1100, Placement: 7, GameDatetime: late},
	}

	kept := Apply(records, Options{TargetSet: 16, PatchCutoff: cutoff, TopN: 4, QueueIDs: []int{1100}})

	require.Len(t, kept, 1)
	assert.Equal(t, "keep", kept[0].MatchID)
	assert.Len(t, Apply(records, Options{}), len(records))
}

func TestShape(t *testing.T) {
	records := []storage.PlayerRecord{
		{MatchID: "M", SetNumber: 16, Placement: 1},
		{MatchID: "M", SetNumber: 16, Placement: 6},
	}

	table, err := Shape(records, Options{TargetSet: 16, TopN: 4})
	require.NoError(t, err)
	assert.Len(t, table.Rows, 1)

	_, err = Shape(records, Options{TargetSet: 17})
	assert.True(t, errors.Is(err, ErrNoRows), "got %v", err)
	assert.Contains(t, err.Error(), "target_set")

	table, err = Shape(nil, Options{TargetSet: 17})
	require.NoError(t, err, "nothing in is not a filter failure")
	assert.Empty(t, table.Rows)
}

func TestWriteCSV_NullsAreEmpty(t *testing.T) {
	records := []storage.PlayerRecord{
		{MatchID: "M", PlayerName: "a, b", Placement: 1, Units: []storage.Unit{{CharacterID: "A", StarLevel: 2, Items: []string{"i1"}}}},
		{MatchID: "M", PlayerName: "c", Placement: 2},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, ToFlatRows(records)))

	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"match_id", "player_name", "placement",
		"unit_1_character_id", "unit_1_star_level", "unit_1_item_1", "unit_1_item_2", "unit_1_item_3"}, lines[0])
	assert.Equal(t, []string{"M", "a, b", "1", "A", "2", "i1", "", ""}, lines[1])
	assert.Equal(t, []string{"M", "c", "2", "", "", "", "", ""}, lines[2])
}
