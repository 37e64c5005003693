package decode

import "io"

// Row is one decoded record: an ordered mapping of column name to value.
// Column sets are not guaranteed identical across rows for semi-structured
// sources.
type Row struct {
	Number  int
	Columns []string
	Values  map[string]string
}

func NewRow(number int) *Row {
	return &Row{
		Number: number,
		Values: make(map[string]string),
	}
}

// Set appends a column (preserving first-seen order) or overwrites an
// existing one.
func (r *Row) Set(column, value string) {
	if _, ok := r.Values[column]; !ok {
		r.Columns = append(r.Columns, column)
	}
	r.Values[column] = value
}

func (r *Row) Get(column string) (string, bool) {
	v, ok := r.Values[column]
	return v, ok
}

// RowSource is a finite, single-pass, non-restartable sequence of rows.
// Next returns io.EOF after the last row.
type RowSource interface {
	Next() (*Row, error)
}

type sliceSource struct {
	rows []*Row
	pos  int
}

func newSliceSource(rows []*Row) RowSource {
	return &sliceSource{rows: rows}
}

func (s *sliceSource) Next() (*Row, error) {
	if s.pos >= len(s.rows) {
		return nil, io.EOF
	}
	row := s.rows[s.pos]
	s.pos++
	return row, nil
}

// multiSource concatenates sources in order; archives use it to splice
// extracted entries into one sequence.
type multiSource struct {
	sources []RowSource
	pos     int
}

func newMultiSource(sources []RowSource) RowSource {
	return &multiSource{sources: sources}
}

func (m *multiSource) Next() (*Row, error) {
	for m.pos < len(m.sources) {
		row, err := m.sources[m.pos].Next()
		if err == io.EOF {
			m.pos++
			continue
		}
		return row, err
	}
	return nil, io.EOF
}

// ReadAll drains a source. Decode tests and small flows use it; the
// pipeline consumes sources incrementally.
func ReadAll(src RowSource) ([]*Row, error) {
	var rows []*Row
	for {
		row, err := src.Next()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		rows = append(rows, row)
	}
}
