package estimation

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var calibrationSchema string

// SQLiteStore is the default durable CalibrationStore, grounded on the
// learning package's own sqlite-backed store: open-or-create the file,
// execute an idempotent schema, then serve reads/writes through
// database/sql.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("estimation: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("estimation: open database: %w", err)
	}
	if _, err := db.Exec(calibrationSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("estimation: init schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Load(shape string) (float64, bool, error) {
	var mean float64
	err := s.db.QueryRow(`SELECT mean FROM calibration WHERE shape = ?`, shape).Scan(&mean)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("estimation: load calibration for %s: %w", shape, err)
	}
	return mean, true, nil
}

func (s *SQLiteStore) Save(shape string, mean float64) error {
	_, err := s.db.Exec(`
		INSERT INTO calibration (shape, mean) VALUES (?, ?)
		ON CONFLICT(shape) DO UPDATE SET mean = excluded.mean`, shape, mean)
	if err != nil {
		return fmt.Errorf("estimation: save calibration for %s: %w", shape, err)
	}
	return nil
}
