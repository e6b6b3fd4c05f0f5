// ABOUTME: CSV parsing into raw header-keyed rows.
// ABOUTME: Handles BOMs, whitespace, empty cells and ragged rows.
package importer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// RawRow is one input row keyed by trimmed header name. Empty cells are absent.
type RawRow map[string]string

// RowIterator walks the rows of one parsed file. Parse again to restart.
type RowIterator interface {
	Next() bool
	Row() RawRow
	// Line is the 1-based input line of the current row.
	Line() int
	Err() error
	Close() error
}

// Parser opens a file and yields raw rows.
type Parser interface {
	Parse(path string) (RowIterator, error)
}

// ParseError is a file-level failure: unreadable, malformed or headerless input.
type ParseError struct {
	Path string
	Err  error
}

// Error names the file and the underlying failure.
func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Path, e.Err)
}

// Unwrap returns the underlying failure.
func (e *ParseError) Unwrap() error { return e.Err }

// CSVParser reads comma separated files with a header row.
type CSVParser struct {
	Delimiter rune
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parse opens path and reads its header.
func (p CSVParser) Parse(path string) (RowIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}

	br := bufio.NewReader(f)
	if head, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(head, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	r := csv.NewReader(br)
	if p.Delimiter != 0 {
		r.Comma = p.Delimiter
	}
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err != nil {
		_ = f.Close()
		if errors.Is(err, io.EOF) {
			err = errors.New("missing header row")
		}
		return nil, &ParseError{Path: path, Err: err}
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	return &csvRows{path: path, file: f, reader: r, header: header}, nil
}

type csvRows struct {
	path   string
	file   *os.File
	reader *csv.Reader
	header []string
	row    RawRow
	line   int
	err    error
}

func (c *csvRows) Next() bool {
	for {
		record, err := c.reader.Read()
		if errors.Is(err, io.EOF) {
			return false
		}
		if err != nil {
			c.err = &ParseError{Path: c.path, Err: err}
			return false
		}
		c.line, _ = c.reader.FieldPos(0)

		row := make(RawRow, len(c.header))
		for i, value := range record {
			if i >= len(c.header) {
				break
			}
			value = strings.TrimSpace(value)
			if value == "" || c.header[i] == "" {
				continue
			}
			row[c.header[i]] = value
		}
		if len(row) == 0 {
			continue
		}
		c.row = row
		return true
	}
}

func (c *csvRows) Row() RawRow { return c.row }
func (c *csvRows) Line() int   { return c.line }
func (c *csvRows) Err() error  { return c.err }

func (c *csvRows) Close() error {
	return c.file.Close()
}
