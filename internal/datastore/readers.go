package datastore

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Reader parses one resource file format into columns and rows. Formats
// beyond the built-in JSON and CSV readers plug in through WithReader.
type Reader interface {
	Read(r io.Reader) ([]Column, []map[string]any, error)
}

// jsonReader parses an array of flat objects. Columns are the union of keys
// across rows, sorted by name; column types reflect the first non-null value
// seen.
type jsonReader struct{}

func (jsonReader) Read(r io.Reader) ([]Column, []map[string]any, error) {
	var rows []map[string]any
	dec := json.NewDecoder(r)
	dec.UseNumber()
	if err := dec.Decode(&rows); err != nil {
		return nil, nil, fmt.Errorf("parse json rows: %w", err)
	}
	types := map[string]string{}
	for _, row := range rows {
		for key, value := range row {
			if number, ok := value.(json.Number); ok {
				if i, err := number.Int64(); err == nil {
					row[key] = i
				} else if f, err := number.Float64(); err == nil {
					row[key] = f
				}
				value = row[key]
			}
			if _, seen := types[key]; !seen || types[key] == "null" {
				types[key] = jsonTypeName(value)
			}
		}
	}
	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: types[name]}
	}
	return columns, rows, nil
}

func jsonTypeName(value any) string {
	switch value.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case int64:
		return "integer"
	case float64:
		return "number"
	case string:
		return "string"
	default:
		return "object"
	}
}

// csvReader parses a header row followed by data rows. Cell values are
// sniffed into bool, integer, or number where they parse cleanly and stay
// strings otherwise.
type csvReader struct{}

func (csvReader) Read(r io.Reader) ([]Column, []map[string]any, error) {
	records, err := csv.NewReader(r).ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("parse csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, fmt.Errorf("csv has no header row")
	}
	header := records[0]
	columns := make([]Column, len(header))
	for i, name := range header {
		columns[i] = Column{Name: name, Type: "string"}
	}
	rows := make([]map[string]any, 0, len(records)-1)
	for _, record := range records[1:] {
		row := make(map[string]any, len(header))
		for i, cell := range record {
			if i >= len(header) {
				break
			}
			value := sniffCell(cell)
			row[header[i]] = value
			if columns[i].Type == "string" {
				if _, isInt := value.(int64); isInt {
					columns[i].Type = "integer"
				} else if _, isFloat := value.(float64); isFloat {
					columns[i].Type = "number"
				} else if _, isBool := value.(bool); isBool {
					columns[i].Type = "bool"
				}
			}
		}
		rows = append(rows, row)
	}
	return columns, rows, nil
}

func sniffCell(cell string) any {
	if cell == "true" || cell == "false" {
		return cell == "true"
	}
	if i, err := strconv.ParseInt(cell, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil {
		return f
	}
	return cell
}
