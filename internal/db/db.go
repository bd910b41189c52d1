package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/wesm/argh/internal/models"
)

// TimeLayout is how timestamps are stored: ISO-8601 in UTC, so that the
// first seven characters are the YYYY-MM bucket key
const TimeLayout = "2006-01-02T15:04:05Z"

// DB represents the database connection
type DB struct {
	*sql.DB
}

// New creates a new database connection
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer, one connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{DB: db}, nil
}

const resourceColumns = `
		id INTEGER PRIMARY KEY,
		number INTEGER,
		title TEXT,
		state TEXT,
		created_at TEXT,
		updated_at TEXT,
		closed_at TEXT,
		user_login TEXT`

// Initialize creates the database schema if it doesn't exist
func (db *DB) Initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS issues (` + resourceColumns + `
	);

	CREATE TABLE IF NOT EXISTS pull_requests (` + resourceColumns + `,
		is_draft BOOLEAN NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT,
		description TEXT
	);

	CREATE TABLE IF NOT EXISTS issue_labels (
		issue_id INTEGER NOT NULL,
		label_id INTEGER NOT NULL,
		PRIMARY KEY (issue_id, label_id),
		FOREIGN KEY (label_id) REFERENCES labels(id)
	);

	CREATE TABLE IF NOT EXISTS discussions (
		number INTEGER PRIMARY KEY,
		title TEXT,
		body_text TEXT,
		url TEXT,
		created_at TEXT,
		updated_at TEXT,
		is_answered BOOLEAN,
		locked BOOLEAN NOT NULL DEFAULT 0,
		author_login TEXT,
		category TEXT,
		comment_count INTEGER NOT NULL DEFAULT 0,
		upvote_count INTEGER NOT NULL DEFAULT 0
	);
	`

	_, err := db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("%w: failed to create schema: %v", models.ErrStore, err)
	}

	return nil
}

// LoadSnapshot inserts every row of the snapshot in a single transaction.
// Nothing is committed unless every insert succeeds.
func (db *DB) LoadSnapshot(ctx context.Context, snap *models.Snapshot) (models.LoadStats, error) {
	var stats models.LoadStats

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("%w: failed to begin transaction: %v", models.ErrStore, err)
	}
	defer func() { _ = tx.Rollback() }()

	if stats.Issues, err = insertResources(ctx, tx, models.KindIssue, snap.Issues); err != nil {
		return models.LoadStats{}, err
	}
	if stats.PullRequests, err = insertResources(ctx, tx, models.KindPullRequest, snap.PullRequests); err != nil {
		return models.LoadStats{}, err
	}
	if stats.Labels, err = insertLabels(ctx, tx, snap.Labels); err != nil {
		return models.LoadStats{}, err
	}
	if stats.ResourceLabels, err = insertResourceLabels(ctx, tx, snap.ResourceLabels); err != nil {
		return models.LoadStats{}, err
	}
	if stats.Discussions, err = insertDiscussions(ctx, tx, snap.Discussions); err != nil {
		return models.LoadStats{}, err
	}

	if err := tx.Commit(); err != nil {
		return models.LoadStats{}, fmt.Errorf("%w: failed to commit snapshot: %v", models.ErrStore, err)
	}
	return stats, nil
}

func insertResources(ctx context.Context, tx *sql.Tx, kind models.Kind, rows []models.Resource) (int, error) {
	query := `INSERT INTO issues (id, number, title, state, created_at, updated_at, closed_at, user_login)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	if kind == models.KindPullRequest {
		query = `INSERT INTO pull_requests (id, number, title, state, created_at, updated_at, closed_at, user_login, is_draft)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	}

	return insertAll(ctx, tx, kind.Table(), query, rows, func(r models.Resource) []any {
		args := []any{
			r.ID,
			r.Number,
			r.Title,
			r.State,
			formatTime(r.CreatedAt),
			formatTime(r.UpdatedAt),
			formatTime(r.ClosedAt),
			r.Author,
		}
		if kind == models.KindPullRequest {
			args = append(args, r.IsDraft)
		}
		return args
	})
}

func insertLabels(ctx context.Context, tx *sql.Tx, rows []models.Label) (int, error) {
	query := `INSERT INTO labels (id, name, color, description) VALUES (?, ?, ?, ?)`
	return insertAll(ctx, tx, "labels", query, rows, func(l models.Label) []any {
		return []any{l.ID, l.Name, l.Color, l.Description}
	})
}

func insertResourceLabels(ctx context.Context, tx *sql.Tx, rows []models.ResourceLabel) (int, error) {
	query := `INSERT INTO issue_labels (issue_id, label_id) VALUES (?, ?)`
	return insertAll(ctx, tx, "issue_labels", query, rows, func(rl models.ResourceLabel) []any {
		return []any{rl.ResourceID, rl.LabelID}
	})
}

func insertDiscussions(ctx context.Context, tx *sql.Tx, rows []models.Discussion) (int, error) {
	query := `INSERT INTO discussions (number, title, body_text, url, created_at, updated_at, is_answered, locked, author_login, category, comment_count, upvote_count)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	return insertAll(ctx, tx, "discussions", query, rows, func(d models.Discussion) []any {
		return []any{
			d.Number,
			d.Title,
			d.BodyText,
			d.URL,
			formatTime(&d.CreatedAt),
			formatTime(&d.UpdatedAt),
			d.IsAnswered,
			d.Locked,
			d.Author,
			d.Category,
			d.CommentCount,
			d.UpvoteCount,
		}
	})
}

// insertAll runs one prepared insert per row
func insertAll[T any](ctx context.Context, tx *sql.Tx, table, query string, rows []T, args func(T) []any) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to prepare insert into %s: %v", models.ErrStore, table, err)
	}
	defer stmt.Close()

	for i, row := range rows {
		if _, err := stmt.ExecContext(ctx, args(row)...); err != nil {
			return 0, classifyInsertError(table, i, err)
		}
	}
	return len(rows), nil
}

func classifyInsertError(table string, row int, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code == sqlite3.ErrConstraint {
		return fmt.Errorf("%w: %s row %d: %v", models.ErrSchemaViolation, table, row, err)
	}
	return fmt.Errorf("%w: failed to insert into %s: %v", models.ErrStore, table, err)
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(TimeLayout)
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
