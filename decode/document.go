package decode

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/ledongthuc/pdf"
)

// decodePDF derives rows from extracted page text: one row per non-empty
// line, tagged with its source page.
func decodePDF(_ *Context, data []byte) (RowSource, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid PDF: %w", err)
	}

	var rows []*Row
	for pageIndex := 1; pageIndex <= reader.NumPage(); pageIndex++ {
		page := reader.Page(pageIndex)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			// A single unreadable page does not sink the document.
			continue
		}
		for _, line := range strings.Split(text, "\n") {
			line = strings.TrimSpace(line)
			if line == "" {
				continue
			}
			row := NewRow(len(rows) + 1)
			row.Set("page", strconv.Itoa(pageIndex))
			row.Set("text_content", line)
			rows = append(rows, row)
		}
	}
	return newSliceSource(rows), nil
}

// WordprocessingML subset: a DOCX is a zip whose word/document.xml holds
// paragraphs (w:p) and tables (w:tbl).
type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []docxTable     `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Texts []string `xml:"r>t"`
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Texts []string `xml:"p>r>t"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func decodeDOCX(_ *Context, data []byte) (RowSource, error) {
	archive, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("invalid DOCX container: %w", err)
	}

	var docXML []byte
	for _, entry := range archive.File {
		if entry.Name == "word/document.xml" {
			rc, err := entry.Open()
			if err != nil {
				return nil, err
			}
			docXML, err = io.ReadAll(rc)
			rc.Close()
			if err != nil {
				return nil, err
			}
			break
		}
	}
	if docXML == nil {
		return nil, errors.New("invalid DOCX: word/document.xml not found")
	}

	var doc docxDocument
	if err := xml.Unmarshal(docXML, &doc); err != nil {
		return nil, fmt.Errorf("invalid DOCX document: %w", err)
	}

	var rows []*Row
	for i, paragraph := range doc.Body.Paragraphs {
		text := strings.TrimSpace(strings.Join(paragraph.Texts, ""))
		if text == "" {
			continue
		}
		row := NewRow(len(rows) + 1)
		row.Set("paragraph", strconv.Itoa(i+1))
		row.Set("paragraph_text", text)
		rows = append(rows, row)
	}
	for t, table := range doc.Body.Tables {
		for r, tableRow := range table.Rows {
			cells := make([]string, 0, len(tableRow.Cells))
			for _, cell := range tableRow.Cells {
				cells = append(cells, strings.TrimSpace(strings.Join(cell.Texts, "")))
			}
			row := NewRow(len(rows) + 1)
			row.Set("table", strconv.Itoa(t+1))
			row.Set("row", strconv.Itoa(r+1))
			row.Set("data", strings.Join(cells, "|"))
			rows = append(rows, row)
		}
	}
	return newSliceSource(rows), nil
}

// Legacy binary .doc needs a conversion toolchain this service does not
// carry; the file is acknowledged with a single marker row.
func decodeDOC(_ *Context, _ []byte) (RowSource, error) {
	row := NewRow(1)
	row.Set("note", "legacy .doc content requires external conversion")
	return newSliceSource([]*Row{row}), nil
}
