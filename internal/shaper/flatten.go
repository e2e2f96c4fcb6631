package shaper

import (
	"fmt"
	"strconv"

	"tftstats/internal/storage"
)

// itemSlots is the fixed number of item columns per unit.
const itemSlots = 3

var leadingColumns = []string{"match_id", "player_name", "placement"}

// Cell is one table value. An invalid cell is null.
type Cell struct {
	Value string
	Valid bool
}

func value(s string) Cell { return Cell{Value: s, Valid: true} }

// Table is a rectangular projection of player records: every row has one
// cell per column.
type Table struct {
	Columns []string
	Rows    [][]Cell

	index map[string]int
}

// Column returns the position of name, or -1.
func (t *Table) Column(name string) int {
	if i, ok := t.index[name]; ok {
		return i
	}
	return -1
}

// Get returns the cell of row at column name. A missing column reads as null.
func (t *Table) Get(row int, name string) Cell {
	i := t.Column(name)
	if i < 0 || row < 0 || row >= len(t.Rows) {
		return Cell{}
	}
	return t.Rows[row][i]
}

// ToFlatRows projects records into a Table. The unit and trait column
// counts are the widest board and trait list of the whole batch; shorter
// records get nulls in the slots they lack.
func ToFlatRows(records []storage.PlayerRecord) *Table {
	maxUnits, maxTraits := 0, 0
	for _, r := range records {
		maxUnits = max(maxUnits, len(r.Units))
		maxTraits = max(maxTraits, len(r.Traits))
	}

	t := &Table{Columns: columns(maxUnits, maxTraits)}
	t.index = make(map[string]int, len(t.Columns))
	for i, c := range t.Columns {
		t.index[c] = i
	}

	t.Rows = make([][]Cell, 0, len(records))
	for _, r := range records {
		row := make([]Cell, len(t.Columns))
		row[0] = value(r.MatchID)
		row[1] = value(r.PlayerName)
		row[2] = value(strconv.Itoa(r.Placement))

		pos := len(leadingColumns)
		for n := 0; n < maxUnits; n++ {
			if n < len(r.Units) {
				u := r.Units[n]
				row[pos] = value(u.CharacterID)
				row[pos+1] = value(strconv.Itoa(u.StarLevel))
				for k := 0; k < itemSlots && k < len(u.Items); k++ {
					row[pos+2+k] = value(u.Items[k])
				}
			}
			pos += 2 + itemSlots
		}
		for n := 0; n < maxTraits; n++ {
			if n < len(r.Traits) {
				tr := r.Traits[n]
				row[pos] = value(tr.Name)
				row[pos+1] = value(strconv.Itoa(tr.NumUnits))
				row[pos+2] = value(strconv.Itoa(tr.Tier))
			}
			pos += 3
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

func columns(units, traits int) []string {
	cols := append([]string{}, leadingColumns...)
	for n := 1; n <= units; n++ {
		cols = append(cols,
			fmt.Sprintf("unit_%d_character_id", n),
			fmt.Sprintf("unit_%d_star_level", n))
		for k := 1; k <= itemSlots; k++ {
			cols = append(cols, fmt.Sprintf("unit_%d_item_%d", n, k))
		}
	}
	for n := 1; n <= traits; n++ {
		cols = append(cols,
			fmt.Sprintf("trait_%d_name", n),
			fmt.Sprintf("trait_%d_num_units", n),
			fmt.Sprintf("trait_%d_tier", n))
	}
	return cols
}
