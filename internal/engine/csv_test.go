package engine

import "testing"

func TestParseDelimited(t *testing.T) {
	tests := []struct {
		name      string
		data      string
		delim     rune
		wantCols  []string
		wantTypes []string
		wantRows  int
		wantErr   bool
	}{
		{
			name:      "typed columns",
			data:      "a,b,c\n1,2.5,x\n3,4,y\n",
			delim:     ',',
			wantCols:  []string{"a", "b", "c"},
			wantTypes: []string{"INTEGER", "REAL", "TEXT"},
			wantRows:  2,
		},
		{
			name:      "header only",
			data:      "a,b\n",
			delim:     ',',
			wantCols:  []string{"a", "b"},
			wantTypes: []string{"TEXT", "TEXT"},
			wantRows:  0,
		},
		{
			name:      "duplicate and blank headers",
			data:      "a,a,\n1,2,3\n",
			delim:     ',',
			wantCols:  []string{"a", "a_1", "column2"},
			wantTypes: []string{"INTEGER", "INTEGER", "INTEGER"},
			wantRows:  1,
		},
		{
			name:      "suffix already taken",
			data:      "a_1,a,a\n1,2,3\n",
			delim:     ',',
			wantCols:  []string{"a_1", "a", "a_2"},
			wantTypes: []string{"INTEGER", "INTEGER", "INTEGER"},
			wantRows:  1,
		},
		{
			name:      "names differing only in case",
			data:      "Id,id\n1,2\n",
			delim:     ',',
			wantCols:  []string{"Id", "id_1"},
			wantTypes: []string{"INTEGER", "INTEGER"},
			wantRows:  1,
		},
		{
			name:      "byte order mark",
			data:      "\xef\xbb\xbfid\n7\n",
			delim:     ',',
			wantCols:  []string{"id"},
			wantTypes: []string{"INTEGER"},
			wantRows:  1,
		},
		{
			name:    "ragged record",
			data:    "a,b\n1\n",
			delim:   ',',
			wantErr: true,
		},
		{
			name:    "empty file",
			data:    "",
			delim:   ',',
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseDelimited([]byte(tt.data), tt.delim)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseDelimited() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got.columns) != len(tt.wantCols) {
				t.Fatalf("columns = %v, want %v", got.columns, tt.wantCols)
			}
			for i := range tt.wantCols {
				if got.columns[i] != tt.wantCols[i] {
					t.Errorf("columns[%d] = %q, want %q", i, got.columns[i], tt.wantCols[i])
				}
				if got.types[i] != tt.wantTypes[i] {
					t.Errorf("types[%d] = %q, want %q", i, got.types[i], tt.wantTypes[i])
				}
			}
			if len(got.rows) != tt.wantRows {
				t.Errorf("len(rows) = %d, want %d", len(got.rows), tt.wantRows)
			}
		})
	}
}

func TestNormalizeType(t *testing.T) {
	tests := map[string]string{
		"INTEGER":     "BIGINT",
		"INT":         "BIGINT",
		"REAL":        "DOUBLE",
		"TEXT":        "VARCHAR",
		"varchar(10)": "VARCHAR",
		"BLOB":        "BLOB",
		"":            "",
		"NUM":         "NUM",
	}
	for in, want := range tests {
		if got := normalizeType(in); got != want {
			t.Errorf("normalizeType(%q) = %q, want %q", in, got, want)
		}
	}
}
