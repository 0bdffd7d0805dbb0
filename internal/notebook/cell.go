package notebook

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/iksnae/cellbook/internal/engine"
	"github.com/iksnae/cellbook/internal/export"
)

// Status is the execution state of a cell
type Status string

const (
	Idle    Status = "idle"
	Running Status = "running"
	Success Status = "success"
	Error   Status = "error"
)

// Cell is one query and the outcome of its last execution. Columns and
// ColumnTypes are parallel, and every row carries exactly the Columns keys.
type Cell struct {
	ID              string
	Query           string
	Status          Status
	Error           string
	Columns         []string
	ColumnTypes     []string
	Rows            []map[string]interface{}
	ExecutionTimeMs int64
}

// entry is the scheduler's private view of a cell
type entry struct {
	cell Cell
	// token identifies the current run; results carrying an older token are
	// discarded
	token  uint64
	cancel func()
}

func newEntry(query string) *entry {
	return &entry{cell: Cell{ID: uuid.NewString(), Query: query, Status: Idle}}
}

// clone returns a copy safe to hand to callers. Result slices are replaced
// wholesale on every run and never mutated, so copying the headers is enough.
func (c Cell) clone() Cell {
	c.Columns = append([]string(nil), c.Columns...)
	c.ColumnTypes = append([]string(nil), c.ColumnTypes...)
	c.Rows = append([]map[string]interface{}(nil), c.Rows...)
	return c
}

func (c *Cell) clearResult() {
	c.Columns = nil
	c.ColumnTypes = nil
	c.Rows = nil
}

// setResult derives the cell's columns and rows from an engine result.
// Duplicate column names are suffixed so that rows stay keyed by name.
func (c *Cell) setResult(res *engine.Result) {
	c.Columns = uniqueNames(res.Columns)
	c.ColumnTypes = make([]string, len(res.Columns))
	for i, col := range res.Columns {
		c.ColumnTypes[i] = col.Type
	}
	c.Rows = make([]map[string]interface{}, len(res.Rows))
	for r, values := range res.Rows {
		row := make(map[string]interface{}, len(c.Columns))
		for i, name := range c.Columns {
			if i < len(values) {
				row[name] = values[i]
			} else {
				row[name] = nil
			}
		}
		c.Rows[r] = row
	}
}

// Table returns the cell's result in export shape
func (c Cell) Table(name string) *export.Table {
	return &export.Table{
		Name:        name,
		Columns:     c.Columns,
		ColumnTypes: c.ColumnTypes,
		Rows:        c.Rows,
	}
}

func uniqueNames(cols []engine.Column) []string {
	names := make([]string, len(cols))
	seen := make(map[string]int, len(cols))
	for i, col := range cols {
		name := col.Name
		if name == "" {
			name = fmt.Sprintf("column%d", i)
		}
		if seen[name] > 0 {
			base := name
			for k := seen[base]; seen[name] > 0; k++ {
				name = fmt.Sprintf("%s_%d", base, k)
			}
			seen[base]++
		}
		seen[name]++
		names[i] = name
	}
	return names
}
