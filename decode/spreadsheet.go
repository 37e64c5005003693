package decode

import (
	"bytes"
	"errors"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// SheetNameColumn records which sheet a row came from when a workbook's
// sheets are concatenated into one sequence.
const SheetNameColumn = "_sheet_name"

func decodeXLSX(_ *Context, data []byte) (RowSource, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rows []*Row
	number := 0
	for _, sheet := range f.GetSheetList() {
		records, err := f.GetRows(sheet)
		if err != nil {
			return nil, err
		}
		rows = appendSheetRows(rows, &number, sheet, records)
	}
	return newSliceSource(rows), nil
}

func decodeXLS(_ *Context, data []byte) (RowSource, error) {
	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, err
	}
	if wb == nil {
		return nil, errors.New("unreadable xls workbook")
	}

	var rows []*Row
	number := 0
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		var records [][]string
		for j := 0; j <= int(sheet.MaxRow); j++ {
			xlsRow := sheet.Row(j)
			if xlsRow == nil {
				continue
			}
			record := make([]string, 0, xlsRow.LastCol()+1)
			for k := 0; k <= xlsRow.LastCol(); k++ {
				record = append(record, xlsRow.Col(k))
			}
			records = append(records, record)
		}
		rows = appendSheetRows(rows, &number, sheet.Name, records)
	}
	return newSliceSource(rows), nil
}

// appendSheetRows treats the first record of each sheet as its header and
// tags every data row with the source sheet name.
func appendSheetRows(rows []*Row, number *int, sheet string, records [][]string) []*Row {
	if len(records) == 0 {
		return rows
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		header[i] = strings.ReplaceAll(name, " ", "_")
	}

	for _, record := range records[1:] {
		*number++
		row := NewRow(*number)
		empty := true
		for j, value := range record {
			if j >= len(header) {
				break
			}
			value = strings.TrimSpace(value)
			row.Set(header[j], value)
			if value != "" {
				empty = false
			}
		}
		if empty {
			*number--
			continue
		}
		row.Set(SheetNameColumn, sheet)
		rows = append(rows, row)
	}
	return rows
}
