// ABOUTME: JSON parsing into the same raw rows the CSV parser yields.
// ABOUTME: Accepts an array of objects, a single object or a {"data": [...]} wrapper.
package importer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ErrUnsupportedStructure marks JSON whose top level is not an object or an array of objects.
var ErrUnsupportedStructure = errors.New("unsupported JSON structure")

// JSONParser reads JSON exports. Scalar values become their text form so the
// transformers see the same input as for CSV; null and empty strings are absent.
type JSONParser struct{}

// Parse reads and decodes the whole file.
func (JSONParser) Parse(path string) (RowIterator, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	data = bytes.TrimPrefix(data, utf8BOM)

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Path: path, Err: fmt.Errorf("invalid JSON: %w", err)}
	}

	objects, err := jsonObjects(doc)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	rows := make([]RawRow, 0, len(objects))
	for _, obj := range objects {
		row, err := jsonRow(obj)
		if err != nil {
			return nil, &ParseError{Path: path, Err: err}
		}
		rows = append(rows, row)
	}
	return &jsonRows{rows: rows}, nil
}

func jsonObjects(doc any) ([]map[string]any, error) {
	var items []any
	switch v := doc.(type) {
	case []any:
		items = v
	case map[string]any:
		if wrapped, ok := v["data"].([]any); ok {
			items = wrapped
		} else {
			return []map[string]any{v}, nil
		}
	default:
		return nil, fmt.Errorf("%w: top level is %T", ErrUnsupportedStructure, doc)
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %T", ErrUnsupportedStructure, i+1, item)
		}
		out = append(out, obj)
	}
	return out, nil
}

func jsonRow(obj map[string]any) (RawRow, error) {
	row := make(RawRow, len(obj))
	for key, value := range obj {
		key = strings.TrimSpace(key)
		if key == "" || value == nil {
			continue
		}
		var s string
		switch v := value.(type) {
		case string:
			s = strings.TrimSpace(v)
		case json.Number:
			s = v.String()
		case bool:
			s = strconv.FormatBool(v)
		default:
			// Nested values are kept as JSON text, the way naps arrive in CSV.
			b, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode field %s: %w", key, err)
			}
			s = string(b)
		}
		if s != "" {
			row[key] = s
		}
	}
	return row, nil
}

type jsonRows struct {
	rows []RawRow
	idx  int
	row  RawRow
}

func (j *jsonRows) Next() bool {
	for j.idx < len(j.rows) {
		j.row = j.rows[j.idx]
		j.idx++
		if len(j.row) > 0 {
			return true
		}
	}
	return false
}

func (j *jsonRows) Row() RawRow { return j.row }

// Line is the 1-based record number within the file.
func (j *jsonRows) Line() int { return j.idx }

func (j *jsonRows) Err() error   { return nil }
func (j *jsonRows) Close() error { return nil }
