package datastore

import (
	"fmt"
	"os"
	"sync"
)

// Column describes one column of a materialized table.
type Column struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// Table is a lazily materialized tabular view over one resource file. The
// file is opened and parsed on first access; the parsed form is cached for
// the handle's lifetime, as is a parse failure.
type Table struct {
	name   string
	path   string
	reader Reader

	once    sync.Once
	columns []Column
	rows    []map[string]any
	err     error
}

func newTable(name, path string, reader Reader) *Table {
	return &Table{name: name, path: path, reader: reader}
}

// Name returns the logical resource name the table was resolved from.
func (t *Table) Name() string { return t.name }

func (t *Table) materialize() {
	t.once.Do(func() {
		file, err := os.Open(t.path)
		if err != nil {
			t.err = fmt.Errorf("resource %q: %w", t.name, err)
			return
		}
		defer file.Close()
		columns, rows, err := t.reader.Read(file)
		if err != nil {
			t.err = fmt.Errorf("resource %q: %w", t.name, err)
			return
		}
		t.columns = columns
		t.rows = rows
	})
}

// Columns materializes the table if needed and returns its column schema.
func (t *Table) Columns() ([]Column, error) {
	t.materialize()
	if t.err != nil {
		return nil, t.err
	}
	out := make([]Column, len(t.columns))
	copy(out, t.columns)
	return out, nil
}

// Rows materializes the table if needed and returns its rows in file order.
func (t *Table) Rows() ([]map[string]any, error) {
	t.materialize()
	if t.err != nil {
		return nil, t.err
	}
	out := make([]map[string]any, len(t.rows))
	for i, row := range t.rows {
		copied := make(map[string]any, len(row))
		for k, v := range row {
			copied[k] = v
		}
		out[i] = copied
	}
	return out, nil
}

// Len materializes the table if needed and returns its row count.
func (t *Table) Len() (int, error) {
	t.materialize()
	if t.err != nil {
		return 0, t.err
	}
	return len(t.rows), nil
}
