package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

const peopleCSV = "id,name,score\n1,ada,9.5\n2,grace,8\n3,linus,\n"

func openTestEngine(t *testing.T) *SQLite {
	t.Helper()
	e, err := OpenSQLite(context.Background())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func mustQuery(t *testing.T, e *SQLite, sql string) *Result {
	t.Helper()
	res, err := e.Query(context.Background(), sql)
	if err != nil {
		t.Fatalf("Query(%q) error = %v", sql, err)
	}
	return res
}

func TestSQLite_ReadCSV(t *testing.T) {
	e := openTestEngine(t)
	if err := e.RegisterFile("people.csv", []byte(peopleCSV)); err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}

	res := mustQuery(t, e, "SELECT * FROM read_csv('people.csv') ORDER BY id;")
	if len(res.Columns) != 3 {
		t.Fatalf("len(Columns) = %d, want 3", len(res.Columns))
	}
	wantCols := []Column{{"id", "BIGINT"}, {"name", "VARCHAR"}, {"score", "DOUBLE"}}
	for i, want := range wantCols {
		if res.Columns[i] != want {
			t.Errorf("Columns[%d] = %+v, want %+v", i, res.Columns[i], want)
		}
	}
	if len(res.Rows) != 3 {
		t.Fatalf("len(Rows) = %d, want 3", len(res.Rows))
	}
	if res.Rows[0][1] != "ada" {
		t.Errorf("Rows[0][1] = %v, want ada", res.Rows[0][1])
	}
	if res.Rows[2][2] != nil {
		t.Errorf("empty field should load as NULL, got %v", res.Rows[2][2])
	}
	for i, row := range res.Rows {
		if len(row) != len(res.Columns) {
			t.Errorf("row %d has %d values, want %d", i, len(row), len(res.Columns))
		}
	}
}

func TestSQLite_CollidingHeaders(t *testing.T) {
	e := openTestEngine(t)
	if err := e.RegisterFile("dups.csv", []byte("a_1,a,a\n1,2,3\n")); err != nil {
		t.Fatalf("RegisterFile() error = %v", err)
	}

	res := mustQuery(t, e, "SELECT * FROM read_csv('dups.csv')")
	if len(res.Columns) != 3 || res.Columns[2].Name != "a_2" {
		t.Fatalf("Columns = %+v", res.Columns)
	}
	if len(res.Rows) != 1 || res.Rows[0][2] != int64(3) {
		t.Errorf("Rows = %v", res.Rows)
	}
}

func TestSQLite_CreateOrReplace(t *testing.T) {
	e := openTestEngine(t)
	_ = e.RegisterFile("people.csv", []byte(peopleCSV))

	for i := 0; i < 2; i++ {
		res := mustQuery(t, e, "CREATE OR REPLACE TABLE data AS SELECT * FROM read_csv_auto('people.csv');")
		if len(res.Columns) != 0 {
			t.Errorf("DDL returned columns %+v", res.Columns)
		}
	}

	res := mustQuery(t, e, "SELECT count(*) AS n FROM data")
	if res.Rows[0][0] != int64(3) {
		t.Errorf("count = %v, want 3", res.Rows[0][0])
	}
	if res.Columns[0].Type != "BIGINT" {
		t.Errorf("inferred type = %q, want BIGINT", res.Columns[0].Type)
	}
}

func TestSQLite_MissingFile(t *testing.T) {
	e := openTestEngine(t)

	_, err := e.Query(context.Background(), "SELECT * FROM read_csv('/abs/missing.csv')")
	if err == nil {
		t.Fatal("Query() expected error for unregistered file")
	}
	want := `No files found that match the pattern "/abs/missing.csv"`
	if !strings.Contains(err.Error(), want) {
		t.Errorf("error = %q, want it to contain %q", err.Error(), want)
	}

	// registering the bytes makes the same statement succeed
	_ = e.RegisterFile("/abs/missing.csv", []byte("a\n1\n"))
	res := mustQuery(t, e, "SELECT * FROM read_csv('/abs/missing.csv')")
	if len(res.Rows) != 1 {
		t.Errorf("len(Rows) = %d, want 1", len(res.Rows))
	}
}

func TestSQLite_TSV(t *testing.T) {
	e := openTestEngine(t)
	_ = e.RegisterFile("t.tsv", []byte("a\tb\nx\ty\n"))

	res := mustQuery(t, e, "SELECT b FROM read_tsv('t.tsv')")
	if res.Rows[0][0] != "y" {
		t.Errorf("Rows[0][0] = %v, want y", res.Rows[0][0])
	}
}

func TestSQLite_Describe(t *testing.T) {
	e := openTestEngine(t)
	_ = e.RegisterFile("people.csv", []byte(peopleCSV))
	mustQuery(t, e, "CREATE TABLE data AS SELECT * FROM read_csv('people.csv')")

	res := mustQuery(t, e, "DESCRIBE data;")
	if len(res.Rows) != 3 {
		t.Fatalf("DESCRIBE returned %d rows, want 3", len(res.Rows))
	}
	if res.Columns[0].Name != "column_name" || res.Columns[1].Name != "column_type" {
		t.Errorf("DESCRIBE columns = %+v", res.Columns)
	}
	if res.Rows[1][0] != "name" {
		t.Errorf("second described column = %v, want name", res.Rows[1][0])
	}
}

func TestSQLite_CopyTo(t *testing.T) {
	tests := []struct {
		name  string
		sql   string
		file  string
		check func(t *testing.T, data string)
	}{
		{
			name: "csv from subquery",
			sql:  "COPY (SELECT id, name FROM data ORDER BY id) TO 'out.csv' (FORMAT csv);",
			file: "out.csv",
			check: func(t *testing.T, data string) {
				if data != "id,name\n1,ada\n2,grace\n3,linus\n" {
					t.Errorf("csv = %q", data)
				}
			},
		},
		{
			name: "json by extension",
			sql:  "COPY data TO 'out.json'",
			file: "out.json",
			check: func(t *testing.T, data string) {
				if n := strings.Count(strings.TrimSpace(data), "\n") + 1; n != 3 {
					t.Errorf("json lines = %d, want 3: %q", n, data)
				}
			},
		},
		{
			name: "custom delimiter",
			sql:  "COPY (SELECT id, name FROM data WHERE id = 1) TO 'semi.csv' (FORMAT csv, DELIMITER ';')",
			file: "semi.csv",
			check: func(t *testing.T, data string) {
				if data != "id;name\n1;ada\n" {
					t.Errorf("csv = %q", data)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := openTestEngine(t)
			_ = e.RegisterFile("people.csv", []byte(peopleCSV))
			mustQuery(t, e, "CREATE TABLE data AS SELECT * FROM read_csv('people.csv')")

			res := mustQuery(t, e, tt.sql)
			if len(res.Columns) != 1 || res.Columns[0].Name != "Count" {
				t.Errorf("COPY result columns = %+v", res.Columns)
			}
			data, err := e.ReadFile(tt.file)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}
			tt.check(t, string(data))
		})
	}
}

func TestSQLite_CopyUnsupportedFormat(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Query(context.Background(), "COPY (SELECT 1) TO 'out.parquet' (FORMAT parquet)")
	if err == nil {
		t.Fatal("expected error for parquet output")
	}
}

func TestSQLite_InsertCount(t *testing.T) {
	e := openTestEngine(t)
	mustQuery(t, e, "CREATE TABLE t (x INTEGER)")
	res := mustQuery(t, e, "INSERT INTO t VALUES (1), (2)")
	if res.Rows[0][0] != int64(2) {
		t.Errorf("Count = %v, want 2", res.Rows[0][0])
	}
}

func TestSQLite_EngineErrorIsVerbatim(t *testing.T) {
	e := openTestEngine(t)
	_, err := e.Query(context.Background(), "SELECT * FROM nope")
	if err == nil || !strings.Contains(err.Error(), "no such table") {
		t.Errorf("error = %v, want sqlite's message", err)
	}
}

func TestSQLite_Close(t *testing.T) {
	e, err := OpenSQLite(context.Background())
	if err != nil {
		t.Fatalf("OpenSQLite() error = %v", err)
	}
	if err := e.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, err := e.Query(context.Background(), "SELECT 1"); !errors.Is(err, ErrClosed) {
		t.Errorf("Query() after Close error = %v, want ErrClosed", err)
	}
	if err := e.RegisterFile("x", nil); !errors.Is(err, ErrClosed) {
		t.Errorf("RegisterFile() after Close error = %v, want ErrClosed", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}

func TestSQLite_ContextInterrupt(t *testing.T) {
	e := openTestEngine(t)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		_, err := e.Query(ctx, "WITH RECURSIVE c(x) AS (SELECT 1 UNION ALL SELECT x + 1 FROM c) SELECT count(*) FROM c")
		done <- err
	}()

	select {
	case err := <-done:
		if err == nil {
			t.Fatal("endless query returned without error")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("query was not interrupted by context cancellation")
	}
}

func TestSQLiteFactoryIsolation(t *testing.T) {
	factory := NewSQLiteFactory()
	ctx := context.Background()

	a, err := factory(ctx)
	if err != nil {
		t.Fatalf("factory() error = %v", err)
	}
	defer a.Close()
	b, err := factory(ctx)
	if err != nil {
		t.Fatalf("factory() error = %v", err)
	}
	defer b.Close()

	if _, err := a.Query(ctx, "CREATE TABLE only_a (x INTEGER)"); err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	if _, err := b.Query(ctx, "SELECT * FROM only_a"); err == nil {
		t.Error("engines should not share a database")
	}
}
