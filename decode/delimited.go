package decode

import (
	"bytes"
	"encoding/csv"
	"errors"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
)

// Legacy single-byte encodings tried after UTF-8, in order. Vending
// hardware in the field still exports windows-1251 sales logs.
var fallbackEncodings = []encoding.Encoding{
	charmap.Windows1251,
	charmap.Windows1252,
}

var errUnknownEncoding = errors.New("could not determine text encoding")

// decodeText picks the first encoding that decodes without error. This is
// a heuristic: windows-125x will happily decode most byte soups, so the
// ordering matters more than the validation.
func decodeText(data []byte) (string, error) {
	data = bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})

	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, enc := range fallbackEncodings {
		decoded, err := enc.NewDecoder().Bytes(data)
		if err != nil {
			continue
		}
		return string(decoded), nil
	}
	return "", errUnknownEncoding
}

func decodeDelimited(data []byte, comma rune) (RowSource, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(strings.NewReader(text))
	reader.Comma = comma
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return newSliceSource(nil), nil
	}

	header := make([]string, len(records[0]))
	for i, name := range records[0] {
		name = strings.ToLower(strings.TrimSpace(name))
		header[i] = strings.ReplaceAll(name, " ", "_")
	}

	var rows []*Row
	for i, record := range records[1:] {
		row := NewRow(i + 1)
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
			continue
		}
		rows = append(rows, row)
	}
	return newSliceSource(rows), nil
}

func decodeCSV(_ *Context, data []byte) (RowSource, error) {
	return decodeDelimited(data, ',')
}

func decodeTSV(_ *Context, data []byte) (RowSource, error) {
	return decodeDelimited(data, '\t')
}

// decodeTXT yields one row per non-empty line under a single text_line
// column. Free-text logs carry no natural key and end up in the per-row
// error list rather than the ledger, but the sequence contract still holds.
func decodeTXT(_ *Context, data []byte) (RowSource, error) {
	text, err := decodeText(data)
	if err != nil {
		return nil, err
	}

	var rows []*Row
	for i, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		row := NewRow(i + 1)
		row.Set("text_line", line)
		rows = append(rows, row)
	}
	return newSliceSource(rows), nil
}
