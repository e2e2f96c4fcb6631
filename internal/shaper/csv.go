package shaper

import (
	"encoding/csv"
	"io"

	"github.com/cockroachdb/errors"
)

// WriteCSV writes the header row and one line per table row. Null cells
// are written as empty fields.
func WriteCSV(w io.Writer, t *Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Columns); err != nil {
		return errors.Wrap(err, "write csv header")
	}

	line := make([]string, len(t.Columns))
	for i, row := range t.Rows {
		for j, cell := range row {
			line[j] = cell.Value
		}
		if err := cw.Write(line); err != nil {
			return errors.Wrapf(err, "write csv row %d", i+1)
		}
	}
	cw.Flush()
	return errors.Wrap(cw.Error(), "flush csv")
}
