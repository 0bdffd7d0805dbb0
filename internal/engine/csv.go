package engine

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type delimitedData struct {
	columns []string
	types   []string // INTEGER, REAL or TEXT
	rows    [][]interface{}
}

// parseDelimited reads a header line plus records and infers a storage type
// per column. Empty fields load as NULL.
func parseDelimited(data []byte, delim rune) (*delimitedData, error) {
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(data))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}

	parsed := &delimitedData{columns: uniqueColumnNames(header)}
	var records [][]string
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read record: %w", err)
		}
		if len(rec) == 1 && rec[0] == "" && len(header) > 1 {
			continue
		}
		if len(rec) != len(header) {
			line, _ := r.FieldPos(0)
			return nil, fmt.Errorf("line %d: expected %d fields, found %d", line, len(header), len(rec))
		}
		records = append(records, rec)
	}

	parsed.types = make([]string, len(header))
	for i := range header {
		parsed.types[i] = inferFieldType(records, i)
	}

	parsed.rows = make([][]interface{}, len(records))
	for n, rec := range records {
		row := make([]interface{}, len(rec))
		for i, field := range rec {
			row[i] = convertField(field, parsed.types[i])
		}
		parsed.rows[n] = row
	}
	return parsed, nil
}

// uniqueColumnNames renames duplicate headers with a numeric suffix until
// the name is unused. SQLite compares column names case-insensitively.
func uniqueColumnNames(header []string) []string {
	used := make(map[string]bool, len(header))
	out := make([]string, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if name == "" {
			name = fmt.Sprintf("column%d", i)
		}
		for k, base := 1, name; used[strings.ToLower(name)]; k++ {
			name = fmt.Sprintf("%s_%d", base, k)
		}
		used[strings.ToLower(name)] = true
		out[i] = name
	}
	return out
}

func inferFieldType(records [][]string, col int) string {
	typ := "INTEGER"
	nonEmpty := 0
	for _, rec := range records {
		field := strings.TrimSpace(rec[col])
		if field == "" {
			continue
		}
		nonEmpty++
		if typ == "INTEGER" {
			if _, err := strconv.ParseInt(field, 10, 64); err == nil {
				continue
			}
			typ = "REAL"
		}
		if _, err := strconv.ParseFloat(field, 64); err != nil {
			return "TEXT"
		}
	}
	if nonEmpty == 0 {
		return "TEXT"
	}
	return typ
}

func convertField(field, typ string) interface{} {
	trimmed := strings.TrimSpace(field)
	if trimmed == "" {
		return nil
	}
	switch typ {
	case "INTEGER":
		if v, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
			return v
		}
	case "REAL":
		if v, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return v
		}
	}
	return field
}

// normalizeType maps SQLite declared types onto the engine's type tags.
func normalizeType(declared string) string {
	upper := strings.ToUpper(strings.TrimSpace(declared))
	switch {
	case upper == "":
		return ""
	case strings.Contains(upper, "INT"):
		return "BIGINT"
	case strings.Contains(upper, "REAL"), strings.Contains(upper, "FLOA"), strings.Contains(upper, "DOUB"), strings.Contains(upper, "NUMERIC"), strings.Contains(upper, "DECIMAL"):
		return "DOUBLE"
	case strings.Contains(upper, "CHAR"), strings.Contains(upper, "TEXT"), strings.Contains(upper, "CLOB"):
		return "VARCHAR"
	case strings.Contains(upper, "BLOB"):
		return "BLOB"
	case strings.Contains(upper, "BOOL"):
		return "BOOLEAN"
	default:
		return upper
	}
}

func inferColumnType(rows [][]interface{}, col int) string {
	for _, row := range rows {
		switch row[col].(type) {
		case nil:
			continue
		case int64, int:
			return "BIGINT"
		case float64:
			return "DOUBLE"
		case bool:
			return "BOOLEAN"
		case []byte:
			return "BLOB"
		default:
			return "VARCHAR"
		}
	}
	return "NULL"
}
