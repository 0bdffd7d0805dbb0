package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"

	"github.com/iksnae/cellbook/internal"
	"github.com/iksnae/cellbook/internal/export"

	_ "modernc.org/sqlite"
)

var (
	tableFuncPattern = regexp.MustCompile(`(?i)\b(read_csv_auto|read_csv|read_tsv)\s*\(\s*'((?:[^']|'')+)'\s*\)`)
	describePattern  = regexp.MustCompile(`(?is)^DESCRIBE\s+("(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_]*)$`)
	copyPattern      = regexp.MustCompile(`(?is)^COPY\s+(\(.+\)|"(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_]*)\s+TO\s+'((?:[^']|'')+)'\s*(?:\((.*)\))?$`)
	formatOption     = regexp.MustCompile(`(?i)\bFORMAT\s*'?([A-Za-z]+)'?`)
	delimiterOption  = regexp.MustCompile(`(?i)\b(?:DELIMITER|DELIM|SEP)\s*'(.)'`)
	replacePattern   = regexp.MustCompile(`(?is)^CREATE\s+OR\s+REPLACE\s+(TABLE|VIEW)\s+("(?:[^"]|"")+"|[A-Za-z_][A-Za-z0-9_]*)\s+(.+)$`)
	rowsKeyword      = regexp.MustCompile(`(?i)^(SELECT|WITH|VALUES|PRAGMA|EXPLAIN|TABLE)\b`)
	countKeyword     = regexp.MustCompile(`(?i)^(INSERT|UPDATE|DELETE|REPLACE)\b`)
)

// SQLite is an Engine backed by a private in-memory SQLite database. Files
// registered with RegisterFile become queryable through read_csv('name'),
// read_csv_auto('name') and read_tsv('name'); COPY ... TO 'name' keeps its
// output in memory for ReadFile.
type SQLite struct {
	db *sql.DB

	mu     sync.Mutex
	files  map[string][]byte
	tables map[string]string // file name -> materialized table
	seq    int
	closed bool
}

// OpenSQLite creates an engine with its own empty in-memory database.
func OpenSQLite(ctx context.Context) (*SQLite, error) {
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// every connection to :memory: is its own database
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	return &SQLite{
		db:     db,
		files:  make(map[string][]byte),
		tables: make(map[string]string),
	}, nil
}

// NewSQLiteFactory returns a Factory producing fresh SQLite engines.
func NewSQLiteFactory() Factory {
	return func(ctx context.Context) (Engine, error) {
		e, err := OpenSQLite(ctx)
		if err != nil {
			return nil, err
		}
		return e, nil
	}
}

// RegisterFile implements Engine.
func (e *SQLite) RegisterFile(name string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrClosed
	}
	e.files[name] = append([]byte(nil), data...)
	// re-registration invalidates the materialized copy
	delete(e.tables, name)
	internal.LogDebug("engine: registered %s (%d bytes)", name, len(data))
	return nil
}

// ReadFile implements Engine.
func (e *SQLite) ReadFile(name string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	data, ok := e.files[name]
	if !ok {
		return nil, fmt.Errorf("IO Error: No files found that match the pattern %q", name)
	}
	return append([]byte(nil), data...), nil
}

// Close implements Engine. The database is closed in the background so that
// a statement stuck in the driver cannot block teardown.
func (e *SQLite) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.files = nil
	e.tables = nil
	e.mu.Unlock()

	go func() {
		if err := e.db.Close(); err != nil {
			internal.LogDebug("engine: close: %v", err)
		}
	}()
	return nil
}

func (e *SQLite) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Query implements Engine.
func (e *SQLite) Query(ctx context.Context, query string) (*Result, error) {
	if e.isClosed() {
		return nil, ErrClosed
	}

	stmt := strings.TrimSpace(query)
	stmt = strings.TrimSpace(strings.TrimRight(stmt, "; \t\r\n"))
	if stmt == "" {
		return &Result{}, nil
	}

	if m := copyPattern.FindStringSubmatch(stmt); m != nil {
		return e.copyTo(ctx, m[1], unquoteLiteral(m[2]), m[3])
	}
	if m := describePattern.FindStringSubmatch(stmt); m != nil {
		stmt = fmt.Sprintf(
			`SELECT name AS column_name, type AS column_type, CASE WHEN "notnull" = 1 THEN 'NO' ELSE 'YES' END AS "null" FROM pragma_table_info(%s) ORDER BY cid`,
			quoteLiteral(unquoteIdent(m[1])))
	}

	var replace []string
	if m := replacePattern.FindStringSubmatch(stmt); m != nil {
		replace = m
		stmt = fmt.Sprintf("CREATE %s %s %s", strings.ToUpper(m[1]), m[2], m[3])
	}

	rewritten, err := e.rewriteTableFunctions(ctx, stmt)
	if err != nil {
		return nil, err
	}
	if replace != nil {
		drop := fmt.Sprintf("DROP %s IF EXISTS %s", strings.ToUpper(replace[1]), replace[2])
		if _, err := e.db.ExecContext(ctx, drop); err != nil {
			return nil, e.wrap(err)
		}
	}
	return e.run(ctx, rewritten)
}

func (e *SQLite) run(ctx context.Context, stmt string) (*Result, error) {
	switch {
	case rowsKeyword.MatchString(stmt):
		return e.queryRows(ctx, stmt)
	default:
		res, err := e.db.ExecContext(ctx, stmt)
		if err != nil {
			return nil, e.wrap(err)
		}
		if countKeyword.MatchString(stmt) {
			n, _ := res.RowsAffected()
			return &Result{
				Columns: []Column{{Name: "Count", Type: "BIGINT"}},
				Rows:    [][]interface{}{{n}},
			}, nil
		}
		return &Result{}, nil
	}
}

func (e *SQLite) queryRows(ctx context.Context, stmt string) (*Result, error) {
	rows, err := e.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, e.wrap(err)
	}
	defer rows.Close()

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}

	result := &Result{Columns: make([]Column, len(colTypes))}
	for i, ct := range colTypes {
		result.Columns[i] = Column{Name: ct.Name(), Type: normalizeType(ct.DatabaseTypeName())}
	}

	for rows.Next() {
		values := make([]interface{}, len(colTypes))
		ptrs := make([]interface{}, len(colTypes))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan failed: %w", err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok && result.Columns[i].Type != "BLOB" {
				values[i] = string(b)
			}
		}
		result.Rows = append(result.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, e.wrap(err)
	}

	// expression columns carry no declared type; infer from the data
	for i := range result.Columns {
		if result.Columns[i].Type == "" {
			result.Columns[i].Type = inferColumnType(result.Rows, i)
		}
	}
	return result, nil
}

func (e *SQLite) wrap(err error) error {
	if e.isClosed() {
		return ErrClosed
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("INTERRUPT Error: Interrupted!: %w", err)
	}
	return err
}

// rewriteTableFunctions replaces read_csv('name') calls with the table
// materialized from the registered bytes.
func (e *SQLite) rewriteTableFunctions(ctx context.Context, stmt string) (string, error) {
	var firstErr error
	out := tableFuncPattern.ReplaceAllStringFunc(stmt, func(call string) string {
		if firstErr != nil {
			return call
		}
		m := tableFuncPattern.FindStringSubmatch(call)
		delim := ','
		if strings.EqualFold(m[1], "read_tsv") {
			delim = '\t'
		}
		table, err := e.materialize(ctx, unquoteLiteral(m[2]), delim)
		if err != nil {
			firstErr = err
			return call
		}
		return quoteIdent(table)
	})
	if firstErr != nil {
		return "", firstErr
	}
	return out, nil
}

func (e *SQLite) materialize(ctx context.Context, name string, delim rune) (string, error) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrClosed
	}
	if table, ok := e.tables[name]; ok {
		e.mu.Unlock()
		return table, nil
	}
	data, ok := e.files[name]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("IO Error: No files found that match the pattern %q", name)
	}
	if strings.HasSuffix(strings.ToLower(name), ".tsv") {
		delim = '\t'
	}
	e.seq++
	table := fmt.Sprintf("__file_%d", e.seq)
	e.mu.Unlock()

	parsed, err := parseDelimited(data, delim)
	if err != nil {
		return "", fmt.Errorf("Invalid Input Error: %s: %w", name, err)
	}
	if err := e.loadTable(ctx, table, parsed); err != nil {
		return "", e.wrap(err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return "", ErrClosed
	}
	e.tables[name] = table
	internal.LogDebug("engine: materialized %s as %s (%d rows)", name, table, len(parsed.rows))
	return table, nil
}

func (e *SQLite) loadTable(ctx context.Context, table string, parsed *delimitedData) error {
	defs := make([]string, len(parsed.columns))
	marks := make([]string, len(parsed.columns))
	for i, col := range parsed.columns {
		defs[i] = quoteIdent(col) + " " + parsed.types[i]
		marks[i] = "?"
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(table), strings.Join(defs, ", "))); err != nil {
		return err
	}
	if len(parsed.rows) > 0 {
		insert, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", quoteIdent(table), strings.Join(marks, ", ")))
		if err != nil {
			return err
		}
		defer insert.Close()
		for _, row := range parsed.rows {
			if _, err := insert.ExecContext(ctx, row...); err != nil {
				return err
			}
		}
	}
	return tx.Commit()
}

// copyTo executes COPY <source> TO 'name' [(FORMAT csv|json, DELIMITER 'x')].
func (e *SQLite) copyTo(ctx context.Context, source, name, options string) (*Result, error) {
	var selectStmt string
	if strings.HasPrefix(source, "(") {
		selectStmt = strings.TrimSpace(source[1 : len(source)-1])
	} else {
		selectStmt = "SELECT * FROM " + quoteIdent(unquoteIdent(source))
	}

	format := formatFromName(name)
	if m := formatOption.FindStringSubmatch(options); m != nil {
		format = strings.ToLower(m[1])
	}
	exportFormat := format
	switch format {
	case "json":
		// newline-delimited, one object per row
		exportFormat = "jsonl"
	case "csv", "tsv":
	default:
		return nil, fmt.Errorf("Not implemented Error: COPY format %q is not supported", format)
	}

	rewritten, err := e.rewriteTableFunctions(ctx, selectStmt)
	if err != nil {
		return nil, err
	}
	res, err := e.queryRows(ctx, rewritten)
	if err != nil {
		return nil, err
	}

	table := ToTable(name, res)
	exporter, err := export.NewExporter(exportFormat)
	if err != nil {
		return nil, err
	}
	if csvExp, ok := exporter.(*export.CSVExporter); ok {
		if m := delimiterOption.FindStringSubmatch(options); m != nil {
			csvExp.Delimiter = []rune(m[1])[0]
		}
	}
	var buf strings.Builder
	if err := exporter.Export(table, &buf); err != nil {
		return nil, fmt.Errorf("IO Error: failed to write %q: %w", name, err)
	}

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil, ErrClosed
	}
	e.files[name] = []byte(buf.String())
	delete(e.tables, name)
	e.mu.Unlock()

	internal.LogDebug("engine: COPY wrote %d rows to %s", len(res.Rows), name)
	return &Result{
		Columns: []Column{{Name: "Count", Type: "BIGINT"}},
		Rows:    [][]interface{}{{int64(len(res.Rows))}},
	}, nil
}

// ToTable converts a result into the export row shape, keyed by column name.
func ToTable(name string, res *Result) *export.Table {
	table := &export.Table{
		Name:        name,
		Columns:     make([]string, len(res.Columns)),
		ColumnTypes: make([]string, len(res.Columns)),
		Rows:        make([]map[string]interface{}, 0, len(res.Rows)),
	}
	for i, c := range res.Columns {
		table.Columns[i] = c.Name
		table.ColumnTypes[i] = c.Type
	}
	for _, values := range res.Rows {
		row := make(map[string]interface{}, len(res.Columns))
		for i, c := range res.Columns {
			row[c.Name] = values[i]
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

func formatFromName(name string) string {
	lower := strings.ToLower(name)
	switch {
	case strings.HasSuffix(lower, ".json"), strings.HasSuffix(lower, ".jsonl"), strings.HasSuffix(lower, ".ndjson"):
		return "json"
	case strings.HasSuffix(lower, ".tsv"):
		return "tsv"
	case strings.HasSuffix(lower, ".parquet"):
		return "parquet"
	default:
		return "csv"
	}
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func unquoteIdent(name string) string {
	if len(name) >= 2 && name[0] == '"' && name[len(name)-1] == '"' {
		return strings.ReplaceAll(name[1:len(name)-1], `""`, `"`)
	}
	return name
}

func quoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func unquoteLiteral(s string) string {
	return strings.ReplaceAll(s, "''", "'")
}
