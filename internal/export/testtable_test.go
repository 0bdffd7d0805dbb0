package export

func sampleTable() *Table {
	return &Table{
		Name:        "preview",
		Columns:     []string{"a", "b"},
		ColumnTypes: []string{"BIGINT", "VARCHAR"},
		Rows: []map[string]interface{}{
			{"a": int64(1), "b": "x"},
			{"a": int64(2), "b": "y|z"},
			{"a": nil, "b": "multi\nline"},
		},
	}
}
