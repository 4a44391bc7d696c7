package recording

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	// Need to use SQLite connections.
	_ "github.com/mattn/go-sqlite3"

	"github.com/steerlab/steer/field"
	"github.com/steerlab/steer/training"
)

// ErrNoRecord is returned when a record store holds no record for a name.
var ErrNoRecord = errors.New("recording: no record")

// A Store keeps named records and parameter checkpoints in a SQLite
// database. It implements the training package's RecordSource and
// Checkpointer contracts.
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the store at path + ".sqlite3".
func OpenStore(path string) (*Store, error) {
	filename := path + ".sqlite3"

	_, statErr := os.Stat(filename)
	creating := statErr != nil

	db, err := sql.Open("sqlite3", filename)
	if err != nil {
		return nil, fmt.Errorf("recording: opening %s: %w", filename, err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS records (
			name TEXT NOT NULL,
			step INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			scope TEXT NOT NULL,
			payload TEXT NOT NULL,
			PRIMARY KEY (scope)
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("recording: preparing %s: %w", filename, err)
		}
	}

	if creating {
		fmt.Fprintf(os.Stderr, "Store created: %s\n", filename)
	}

	return &Store{db: db}, nil
}

// PutRecord stores a record for the name, stamped with the step at which
// it was produced.
func (s *Store) PutRecord(name string, step int64, a field.Array) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("recording: encoding record %q: %w", name, err)
	}

	_, err = s.db.Exec(
		"INSERT INTO records (name, step, payload) VALUES (?, ?, ?)",
		name, step, string(payload))
	if err != nil {
		return fmt.Errorf("recording: storing record %q: %w", name, err)
	}

	return nil
}

// Latest returns the most recently stored record for the name.
func (s *Store) Latest(name string) (field.Array, error) {
	row := s.db.QueryRow(
		"SELECT payload FROM records WHERE name = ? "+
			"ORDER BY step DESC, rowid DESC LIMIT 1",
		name)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return field.Array{}, fmt.Errorf("%w for %q", ErrNoRecord, name)
	}
	if err != nil {
		return field.Array{}, fmt.Errorf(
			"recording: reading record %q: %w", name, err)
	}

	var a field.Array
	if err := json.Unmarshal([]byte(payload), &a); err != nil {
		return field.Array{}, fmt.Errorf(
			"recording: decoding record %q: %w", name, err)
	}

	return a, nil
}

// Save persists a parameter scope. Saving the same scope again replaces
// the previous checkpoint.
func (s *Store) Save(scope string, params map[string][]float64) error {
	payload, err := json.Marshal(params)
	if err != nil {
		return fmt.Errorf("recording: encoding scope %q: %w", scope, err)
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO checkpoints (scope, payload) VALUES (?, ?)",
		scope, string(payload))
	if err != nil {
		return fmt.Errorf("recording: saving scope %q: %w", scope, err)
	}

	return nil
}

// Load returns the most recent checkpoint of a scope. A scope with no
// prior save fails with training.ErrNoCheckpointFound.
func (s *Store) Load(scope string) (map[string][]float64, error) {
	row := s.db.QueryRow(
		"SELECT payload FROM checkpoints WHERE scope = ?", scope)

	var payload string
	err := row.Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: scope %q",
			training.ErrNoCheckpointFound, scope)
	}
	if err != nil {
		return nil, fmt.Errorf("recording: loading scope %q: %w", scope, err)
	}

	var params map[string][]float64
	if err := json.Unmarshal([]byte(payload), &params); err != nil {
		return nil, fmt.Errorf("recording: decoding scope %q: %w", scope, err)
	}

	return params, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
