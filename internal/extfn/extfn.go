// Package extfn provides the runtime's built-in external function bindings
// — the host-side functions a story's EXTERNAL declarations can call. The
// reference set here persists player facts (visited locations, arbitrary
// key/value state a story wants to survive outside a snapshot) in a small
// SQLite-backed store, grounded on the teacher's database security module's
// use of database/sql against a driver-backed connection.
package extfn

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"inkvm/internal/runner"
)

// FactStore persists arbitrary string key/value facts across runs, backed
// by an in-memory (or file-backed) SQLite database.
type FactStore struct {
	db *sql.DB
}

// OpenFactStore opens (and, if necessary, initializes) a fact database at
// path. Pass ":memory:" for a throwaway store scoped to the process.
func OpenFactStore(path string) (*FactStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}
	const schema = `CREATE TABLE IF NOT EXISTS facts (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init fact store: %w", err)
	}
	return &FactStore{db: db}, nil
}

// Close releases the underlying database handle.
func (f *FactStore) Close() error { return f.db.Close() }

// Get returns the fact stored under key, or "" if absent.
func (f *FactStore) Get(key string) (string, error) {
	var value string
	err := f.db.QueryRow(`SELECT value FROM facts WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("query fact %q: %w", key, err)
	}
	return value, nil
}

// Set upserts the fact stored under key.
func (f *FactStore) Set(key, value string) error {
	_, err := f.db.Exec(
		`INSERT INTO facts (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set fact %q: %w", key, err)
	}
	return nil
}

// BindDefaults wires the runtime's reference external functions — GET_FACT
// and SET_FACT — onto rn, backed by an in-memory FactStore. A host embedding
// inkvm for real persistence would call BindFactStore with its own
// file-backed store instead.
func BindDefaults(rn *runner.Runner) {
	store, err := OpenFactStore(":memory:")
	if err != nil {
		// An in-memory sqlite open failing indicates a broken driver
		// registration, not a runtime condition a story can react to.
		panic(err)
	}
	BindFactStore(rn, store)
}

// BindFactStore registers GET_FACT(key) and SET_FACT(key, value) against
// rn, backed by store. Both are lookahead-unsafe: calling them during
// choice-preview execution would read or write facts for choices the
// player never actually takes.
func BindFactStore(rn *runner.Runner, store *FactStore) {
	rn.BindExternalFunction("GET_FACT", false, func(args []interface{}) (interface{}, error) {
		if len(args) != 1 {
			return nil, fmt.Errorf("GET_FACT takes 1 argument, got %d", len(args))
		}
		key, _ := args[0].(string)
		return store.Get(key)
	})

	rn.BindExternalFunction("SET_FACT", false, func(args []interface{}) (interface{}, error) {
		if len(args) != 2 {
			return nil, fmt.Errorf("SET_FACT takes 2 arguments, got %d", len(args))
		}
		key, _ := args[0].(string)
		value, _ := args[1].(string)
		if err := store.Set(key, value); err != nil {
			return nil, err
		}
		return nil, nil
	})
}
