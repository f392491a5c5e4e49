package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// csvRow reads a column of the current row by header name.
type csvRow func(col string) string

// readCSV walks a header-based CSV export. Broken rows become warnings.
// With foldHeader the header names are matched case-insensitively.
func readCSV(data []byte, required string, foldHeader bool, result *Result, each func(row csvRow, rowNum int)) error {
	reader := csv.NewReader(bytes.NewReader(stripBOM(data)))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	key := func(col string) string {
		if foldHeader {
			return strings.ToLower(strings.TrimSpace(col))
		}
		return strings.TrimSpace(col)
	}
	colIndex := make(map[string]int, len(header))
	for i, col := range header {
		colIndex[key(col)] = i
	}
	if _, ok := colIndex[key(required)]; !ok {
		return fmt.Errorf("missing required column: %s", required)
	}

	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) == 1 && IsEmptyOrWhitespace(row[0]) {
			continue
		}
		if len(row) != len(header) {
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)", rowNum, len(header), len(row)))
			continue
		}
		each(func(col string) string {
			if idx, ok := colIndex[key(col)]; ok {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}, rowNum)
	}
}
