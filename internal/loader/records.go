package loader

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
)

// Record is one metadata row: a node type, its id, and the remaining
// column values.
type Record struct {
	NodeType string
	ID       string
	Values   map[string]string
}

const typeColumn = "type"

// ParseMetadataFile reads one tab-separated metadata file. The header row
// names the columns; every row must carry the node type column and the
// node's id field from the props document.
func ParseMetadataFile(path string, props Props) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata: %w", err)
	}
	defer f.Close()

	records, err := parseMetadata(f, props)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func parseMetadata(r io.Reader, props Props) ([]Record, error) {
	reader := csv.NewReader(r)
	reader.Comma = '\t'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	typeIdx := -1
	for i, col := range header {
		if strings.TrimSpace(col) == typeColumn {
			typeIdx = i
			break
		}
	}
	if typeIdx < 0 {
		return nil, fmt.Errorf("missing %q column", typeColumn)
	}

	out := make([]Record, 0)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		line++
		if len(row) <= typeIdx {
			return nil, fmt.Errorf("line %d: short row", line)
		}

		nodeType := strings.TrimSpace(row[typeIdx])
		values := make(map[string]string, len(header))
		for i, col := range header {
			if i >= len(row) {
				break
			}
			name := strings.TrimSpace(col)
			if name == "" || name == typeColumn {
				continue
			}
			values[name] = row[i]
		}

		record := Record{NodeType: nodeType, Values: values}
		if idField, ok := props.IDFields[nodeType]; ok {
			record.ID = strings.TrimSpace(values[idField])
		}
		out = append(out, record)
	}
	return out, nil
}
