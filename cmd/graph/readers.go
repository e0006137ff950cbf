package main

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/opensanctions/graph/pkg/model"
)

// maxLineSize bounds a single JSONL record; register entries with long
// officer lists can run well past bufio's default.
const maxLineSize = 4 * 1024 * 1024

// jsonlReader decodes one object per line into raw records.
type jsonlReader struct {
	file    *os.File
	scanner *bufio.Scanner
	line    int
}

func openJSONL(path string) (*jsonlReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &jsonlReader{file: file, scanner: scanner}, nil
}

func (r *jsonlReader) Next() (*model.RawRecord, error) {
	for r.scanner.Scan() {
		r.line++
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		var fields map[string]any
		if err := json.Unmarshal([]byte(line), &fields); err != nil {
			return nil, fmt.Errorf("line %d: %w", r.line, err)
		}
		return model.NewRawRecord(fields), nil
	}
	if err := r.scanner.Err(); err != nil {
		return nil, fmt.Errorf("line %d: %w", r.line, err)
	}
	return nil, io.EOF
}

func (r *jsonlReader) Close() error {
	return r.file.Close()
}

// csvReader decodes header-labelled rows into raw records. Empty cells are
// treated as absent fields.
type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	headers []string
}

func openCSV(path string) (*csvReader, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	reader := csv.NewReader(bufio.NewReader(file))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	headers, err := reader.Read()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("reading header of %s: %w", path, err)
	}
	if len(headers) > 0 {
		headers[0] = strings.TrimPrefix(headers[0], "\ufeff")
	}
	return &csvReader{file: file, reader: reader, headers: headers}, nil
}

func (r *csvReader) Next() (*model.RawRecord, error) {
	row, err := r.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("reading row: %w", err)
	}
	fields := make(map[string]any, len(r.headers))
	for i, header := range r.headers {
		if i >= len(row) {
			break
		}
		if cell := strings.TrimSpace(row[i]); cell != "" {
			fields[header] = cell
		}
	}
	return model.NewRawRecord(fields), nil
}

func (r *csvReader) Close() error {
	return r.file.Close()
}
