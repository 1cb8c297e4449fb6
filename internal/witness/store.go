package witness

import (
	"database/sql"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

// ErrNotClassified is returned when a lookup finds no entry for a witness.
var ErrNotClassified = errors.New("witness not classified")

// ErrInconsistentClassification marks a stored value outside the voted
// classification set. It corrupts any score derived from it, so callers
// must abort the batch.
var ErrInconsistentClassification = errors.New("inconsistent witness classification")

const storeSchema = `
CREATE TABLE IF NOT EXISTS classifications (
	category      TEXT NOT NULL,
	task          TEXT NOT NULL,
	verifier      TEXT NOT NULL,
	specification TEXT NOT NULL,
	kind          TEXT NOT NULL,
	verdict       TEXT NOT NULL,
	votes         TEXT NOT NULL,
	PRIMARY KEY (category, task, verifier, specification, kind)
);`

// Store persists witness classifications for reuse by later
// reconciliation runs.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and if necessary initializes) a classification
// database at the given path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening classification store: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing classification store: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Import writes a batch of entries in one transaction, replacing earlier
// classifications of the same witness.
func (s *Store) Import(entries []Entry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("starting import transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR REPLACE INTO classifications
		(category, task, verifier, specification, kind, verdict, votes)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("preparing import statement: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		_, err := stmt.Exec(e.Key.Category, e.Key.Task, e.Key.Producer,
			e.Key.Specification, e.Kind.String(), string(e.Class), e.Votes)
		if err != nil {
			return fmt.Errorf("importing classification for task %q: %w", e.Key.Task, err)
		}
	}
	return tx.Commit()
}

// Lookup returns the classification and voting record of one witness.
// A value outside the voted set is reported as
// ErrInconsistentClassification.
func (s *Store) Lookup(category, task, verifier, specification string, kind Kind) (Classification, string, error) {
	row := s.db.QueryRow(`
		SELECT verdict, votes FROM classifications
		WHERE category = ? AND task = ? AND verifier = ? AND specification = ? AND kind = ?`,
		category, task, verifier, specification, kind.String())

	var verdict, votes string
	if err := row.Scan(&verdict, &votes); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", "", fmt.Errorf("%w: task %q, verifier %q, kind %s",
				ErrNotClassified, task, verifier, kind)
		}
		return "", "", fmt.Errorf("looking up classification for task %q: %w", task, err)
	}
	class := Classification(verdict)
	if !class.Voted() {
		return "", "", fmt.Errorf("%w: %q for task %q, verifier %q, kind %s",
			ErrInconsistentClassification, verdict, task, verifier, kind)
	}
	return class, votes, nil
}

// Count returns the number of stored classifications.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM classifications`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting classifications: %w", err)
	}
	return n, nil
}
