// Package review implements the Human Review Service of spec.md §4.13: a
// durable queue of tasks escalated for out-of-band human approval.
package review

import (
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/nexus-build/nexus/internal/models"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a review ID has no matching row.
var ErrNotFound = errors.New("review: not found")

// Store is the durable SQLite-backed review queue: NewStore opens or
// creates the database, then executes the embedded schema.
type Store struct {
	db *sql.DB
}

func NewStore(dbPath string) (*Store, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("review: create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("review: open database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("review: init schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Insert(req models.ReviewRequest) error {
	ctxJSON, err := json.Marshal(req.Context)
	if err != nil {
		return fmt.Errorf("review: marshal context: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO reviews (id, task_id, reason, context, status, feedback, created_at, resolved_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		req.ID, req.TaskID, string(req.Reason), string(ctxJSON), string(req.Status), req.Feedback,
		req.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("review: insert %s: %w", req.ID, err)
	}
	return nil
}

func (s *Store) Get(id string) (models.ReviewRequest, error) {
	var (
		req         models.ReviewRequest
		ctxJSON     string
		reason      string
		status      string
		createdAt   string
		resolvedAt  sql.NullString
	)
	row := s.db.QueryRow(`
		SELECT id, task_id, reason, context, status, feedback, created_at, resolved_at
		FROM reviews WHERE id = ?`, id)
	err := row.Scan(&req.ID, &req.TaskID, &reason, &ctxJSON, &status, &req.Feedback, &createdAt, &resolvedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return models.ReviewRequest{}, ErrNotFound
	}
	if err != nil {
		return models.ReviewRequest{}, fmt.Errorf("review: get %s: %w", id, err)
	}

	req.Reason = models.ReviewReason(reason)
	req.Status = models.ReviewStatus(status)
	if err := json.Unmarshal([]byte(ctxJSON), &req.Context); err != nil {
		return models.ReviewRequest{}, fmt.Errorf("review: unmarshal context for %s: %w", id, err)
	}
	if req.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return models.ReviewRequest{}, fmt.Errorf("review: parse created_at for %s: %w", id, err)
	}
	if resolvedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, resolvedAt.String)
		if err != nil {
			return models.ReviewRequest{}, fmt.Errorf("review: parse resolved_at for %s: %w", id, err)
		}
		req.ResolvedAt = &t
	}
	return req, nil
}

func (s *Store) UpdateStatus(id string, status models.ReviewStatus, feedback string, resolvedAt time.Time) error {
	res, err := s.db.Exec(`
		UPDATE reviews SET status = ?, feedback = ?, resolved_at = ? WHERE id = ?`,
		string(status), feedback, resolvedAt.UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("review: update %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("review: rows affected for %s: %w", id, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListByStatus(status models.ReviewStatus) ([]models.ReviewRequest, error) {
	rows, err := s.db.Query(`SELECT id FROM reviews WHERE status = ? ORDER BY created_at ASC`, string(status))
	if err != nil {
		return nil, fmt.Errorf("review: list by status %s: %w", status, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("review: scan id: %w", err)
		}
		ids = append(ids, id)
	}

	requests := make([]models.ReviewRequest, 0, len(ids))
	for _, id := range ids {
		req, err := s.Get(id)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, nil
}
