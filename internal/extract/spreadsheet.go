package extract

import (
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// ReadSpreadsheet reads a saved list stored as .xlsx. The first sheet is
// used and its first row is the header; columns follow the same rules as
// ReadTabular.
func ReadSpreadsheet(data []byte, name, source string) (*Result, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrapf(err, "xlsx: open %s", source)
	}
	if len(f.Sheets) == 0 {
		return nil, eris.Errorf("xlsx: %s has no sheets", source)
	}

	sheet := f.Sheets[0]
	if len(sheet.Rows) == 0 {
		return nil, eris.Errorf("xlsx: %s is empty", source)
	}

	b := newTabularBuilder(name, source)
	if err := b.header(rowToStrings(sheet.Rows[0])); err != nil {
		return nil, err
	}
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		if isBlank(cells) {
			continue
		}
		b.add(cells)
	}
	return b.res, nil
}

func rowToStrings(row *xlsx.Row) []string {
	if row == nil {
		return nil
	}
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
