package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvTable reads a CSV with a header row and exposes cells by column name.
type csvTable struct {
	index map[string]int
	rows  [][]string
}

func readCSV(r io.Reader, required ...string) (*csvTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("csv is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		// Excel exports prefix the first header with a BOM.
		name = strings.TrimPrefix(name, "\ufeff")
		index[strings.ToLower(strings.TrimSpace(name))] = i
	}

	var missing []string
	for _, col := range required {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("csv is missing columns: %s", strings.Join(missing, ", "))
	}

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv rows: %w", err)
	}

	return &csvTable{index: index, rows: rows}, nil
}

func (t *csvTable) get(row []string, col string) string {
	i, ok := t.index[col]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
