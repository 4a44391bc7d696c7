// Package recording stores run data in SQLite databases: structured rows
// of scalar summaries, named records for stored fields, and parameter
// checkpoints.
package recording

import (
	"database/sql"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/fatih/structs"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/xid"
	"github.com/tebeka/atexit"
)

// A Writer records same-typed rows into tables of a SQLite database.
// Rows are buffered and written in batches.
type Writer struct {
	db        *sql.DB
	batchSize int
	tables    map[string]*table
}

type table struct {
	structType reflect.Type
	columns    []string
	pending    []any
}

// NewWriter creates a Writer backed by path + ".sqlite3". An empty path
// picks a generated run name. The file must not exist yet. Buffered rows
// are flushed at process exit.
func NewWriter(path string) (*Writer, error) {
	if path == "" {
		path = "steer_run_" + xid.New().String()
	}

	filename := path + ".sqlite3"

	_, err := os.Stat(filename)
	if err == nil {
		return nil, fmt.Errorf("recording: file %s already exists", filename)
	}

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("recording: opening %s: %w", filename, err)
	}

	// sql.Open is lazy; connect now so the file exists and the guard
	// above holds for the next open on the same path.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recording: opening %s: %w", filename, err)
	}

	fmt.Fprintf(os.Stderr, "Recording run data to %s\n", filename)

	w := &Writer{
		db:        db,
		batchSize: 1000,
		tables:    make(map[string]*table),
	}

	atexit.Register(func() { _ = w.Flush() })

	return w, nil
}

// CreateTable creates a table whose columns mirror the fields of the
// sample entry. Only bool, integer, float and string fields are allowed.
func (w *Writer) CreateTable(tableName string, sampleEntry any) error {
	if _, ok := w.tables[tableName]; ok {
		return fmt.Errorf("recording: table %s already exists", tableName)
	}

	t := reflect.TypeOf(sampleEntry)
	columns := structs.Names(sampleEntry)

	defs := make([]string, 0, len(columns))
	for i, name := range columns {
		sqlType, err := columnType(t.Field(i).Type.Kind())
		if err != nil {
			return fmt.Errorf("recording: table %s: %w", tableName, err)
		}

		defs = append(defs, name+" "+sqlType)
	}

	stmt := fmt.Sprintf("CREATE TABLE %s (%s)",
		tableName, strings.Join(defs, ", "))

	_, err := w.db.Exec(stmt)
	if err != nil {
		return fmt.Errorf("recording: creating table %s: %w", tableName, err)
	}

	w.tables[tableName] = &table{structType: t, columns: columns}

	return nil
}

// InsertData buffers one entry for the table. The entry must have the
// same type as the table's sample entry.
func (w *Writer) InsertData(tableName string, entry any) error {
	t, ok := w.tables[tableName]
	if !ok {
		return fmt.Errorf("recording: table %s does not exist", tableName)
	}

	if reflect.TypeOf(entry) != t.structType {
		return fmt.Errorf("recording: entry type %T does not match table %s",
			entry, tableName)
	}

	t.pending = append(t.pending, entry)
	if len(t.pending) >= w.batchSize {
		return w.flushTable(tableName, t)
	}

	return nil
}

// ListTables returns the names of all created tables.
func (w *Writer) ListTables() []string {
	names := make([]string, 0, len(w.tables))
	for name := range w.tables {
		names = append(names, name)
	}

	return names
}

// Flush writes all buffered rows to the database.
func (w *Writer) Flush() error {
	for name, t := range w.tables {
		if err := w.flushTable(name, t); err != nil {
			return err
		}
	}

	return nil
}

// Close flushes buffered rows and closes the database.
func (w *Writer) Close() error {
	if err := w.Flush(); err != nil {
		return err
	}

	return w.db.Close()
}

// DB exposes the underlying database for read-back in the same process.
func (w *Writer) DB() *sql.DB {
	return w.db
}

func (w *Writer) flushTable(name string, t *table) error {
	if len(t.pending) == 0 {
		return nil
	}

	tx, err := w.db.Begin()
	if err != nil {
		return fmt.Errorf("recording: flushing table %s: %w", name, err)
	}

	placeholders := strings.TrimSuffix(
		strings.Repeat("?, ", len(t.columns)), ", ")
	stmt, err := tx.Prepare(fmt.Sprintf("INSERT INTO %s VALUES (%s)",
		name, placeholders))
	if err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("recording: flushing table %s: %w", name, err)
	}

	for _, entry := range t.pending {
		_, err = stmt.Exec(structs.Values(entry)...)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("recording: flushing table %s: %w", name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("recording: flushing table %s: %w", name, err)
	}

	t.pending = t.pending[:0]

	return nil
}

func columnType(k reflect.Kind) (string, error) {
	switch k {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16,
		reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16,
		reflect.Uint32, reflect.Uint64:
		return "INTEGER", nil
	case reflect.Float32, reflect.Float64:
		return "REAL", nil
	case reflect.String:
		return "TEXT", nil
	}

	return "", fmt.Errorf("field kind %s is not recordable", k)
}
