package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"paperboy/internal/config"
	"paperboy/internal/logging"
	"paperboy/internal/paper"
)

// Store manages paper persistence backed by SQLite.
//
// Every write is a single transaction (or a single statement, which SQLite
// treats the same way), so a crash between stages never leaves a row
// half-updated. Status writes only move forward within one run; intake never
// touches the status of an existing row.
type Store struct {
	db     *sql.DB
	path   string
	logger *slog.Logger
}

// Open initializes or connects to the papers database and applies migrations.
func Open(cfg *config.Config, logger *slog.Logger) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	if logger == nil {
		logger = logging.NewNop()
	}

	dbPath := cfg.Storage.DBPath
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: dbPath, logger: logger.With(logging.String(logging.FieldComponent, "store"))}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}

	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// UpsertMetadata inserts a paper if absent, or refreshes its metadata if
// present. The status column is never written for existing rows, so a paper
// already skipped or emailed keeps its outcome across daily refetches.
func (s *Store) UpsertMetadata(ctx context.Context, p paper.Paper) error {
	authorsJSON, err := json.Marshal(p.Authors)
	if err != nil {
		return fmt.Errorf("marshal authors: %w", err)
	}
	categoriesJSON, err := json.Marshal(p.Categories)
	if err != nil {
		return fmt.Errorf("marshal categories: %w", err)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = s.db.ExecContext(
		ctx,
		`INSERT INTO papers (
            id, title, authors_json, categories_json, published, source_updated,
            abstract, pdf_url, source, status, created_at, updated_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT(id) DO UPDATE SET
            title = excluded.title,
            authors_json = excluded.authors_json,
            categories_json = excluded.categories_json,
            published = excluded.published,
            source_updated = excluded.source_updated,
            abstract = excluded.abstract,
            pdf_url = excluded.pdf_url,
            source = excluded.source,
            updated_at = excluded.updated_at`,
		p.ID,
		p.Title,
		string(authorsJSON),
		string(categoriesJSON),
		nullableString(p.Published),
		nullableString(p.Updated),
		nullableString(p.Abstract),
		nullableString(p.PDFURL),
		p.Source,
		StatusNew,
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("upsert paper %s: %w", p.ID, err)
	}
	return nil
}

type markOptions struct {
	stage1       any
	stage2       any
	errorMessage any
	pdfPath      any
	textChars    any
}

// MarkOption attaches an optional column write to MarkStatus.
type MarkOption func(*markOptions)

// WithStage1Payload persists the raw stage-1 classification JSON.
func WithStage1Payload(raw string) MarkOption {
	return func(o *markOptions) { o.stage1 = raw }
}

// WithStage2Payload persists the raw stage-2 summary JSON.
func WithStage2Payload(raw string) MarkOption {
	return func(o *markOptions) { o.stage2 = raw }
}

// WithErrorMessage records why a paper failed or degraded.
func WithErrorMessage(message string) MarkOption {
	return func(o *markOptions) { o.errorMessage = message }
}

// WithPDFPath records where the downloaded PDF landed on disk.
func WithPDFPath(path string) MarkOption {
	return func(o *markOptions) { o.pdfPath = path }
}

// WithTextChars records how many characters of text the stage produced.
func WithTextChars(count int64) MarkOption {
	return func(o *markOptions) { o.textChars = count }
}

// MarkStatus sets the paper's status and any optional payload columns in one
// statement. Columns without an option keep their current value via COALESCE.
// A missing row is logged as a warning, not returned as an error, so one lost
// paper never aborts a batch.
func (s *Store) MarkStatus(ctx context.Context, paperID string, status Status, opts ...MarkOption) error {
	if !status.IsValid() {
		return fmt.Errorf("invalid status %q", status)
	}
	var options markOptions
	for _, opt := range opts {
		opt(&options)
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := s.db.ExecContext(
		ctx,
		`UPDATE papers SET
            status = ?,
            stage1_json = COALESCE(?, stage1_json),
            stage2_json = COALESCE(?, stage2_json),
            error_message = COALESCE(?, error_message),
            pdf_path = COALESCE(?, pdf_path),
            text_chars = COALESCE(?, text_chars),
            updated_at = ?
        WHERE id = ?`,
		status,
		options.stage1,
		options.stage2,
		options.errorMessage,
		options.pdfPath,
		options.textChars,
		timestamp,
		paperID,
	)
	if err != nil {
		return fmt.Errorf("mark status for %s: %w", paperID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected for %s: %w", paperID, err)
	}
	if affected == 0 {
		s.logger.WarnContext(ctx, "mark status matched no row",
			logging.String(logging.FieldPaperID, paperID),
			logging.String(logging.FieldStatus, string(status)))
	}
	return nil
}

// GetStatus returns the paper's current status. The boolean reports whether
// the paper exists.
func (s *Store) GetStatus(ctx context.Context, paperID string) (Status, bool, error) {
	var statusStr string
	err := s.db.QueryRowContext(ctx, "SELECT status FROM papers WHERE id = ?", paperID).Scan(&statusStr)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get status for %s: %w", paperID, err)
	}
	return Status(statusStr), true, nil
}

// IsProcessed reports whether the paper reached a processed outcome
// (emailed, skipped, or summarized without delivery).
func (s *Store) IsProcessed(ctx context.Context, paperID string) (bool, error) {
	status, found, err := s.GetStatus(ctx, paperID)
	if err != nil || !found {
		return false, err
	}
	return status.IsProcessed(), nil
}

// IsInProgressOrProcessed reports whether the paper should be skipped at
// intake. Absent papers and failed papers are eligible for (re)processing.
func (s *Store) IsInProgressOrProcessed(ctx context.Context, paperID string) (bool, error) {
	status, found, err := s.GetStatus(ctx, paperID)
	if err != nil || !found {
		return false, err
	}
	return status.IsProcessed() || status.IsInProgress(), nil
}

const paperColumns = "id, title, authors_json, categories_json, published, source_updated, abstract, pdf_url, source, status, stage1_json, stage2_json, error_message, pdf_path, text_chars, created_at, updated_at"

// GetRecord returns the full row for a paper, or nil when the paper is
// unknown.
func (s *Store) GetRecord(ctx context.Context, paperID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+paperColumns+" FROM papers WHERE id = ?", paperID)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get record for %s: %w", paperID, err)
	}
	return record, nil
}

// ListByStatus returns every paper currently in one of the given statuses,
// oldest first. With no statuses it returns the whole table.
func (s *Store) ListByStatus(ctx context.Context, statuses ...Status) ([]*Record, error) {
	query := "SELECT " + paperColumns + " FROM papers"
	args := make([]any, 0, len(statuses))
	if len(statuses) > 0 {
		query += " WHERE status IN (" + makePlaceholders(len(statuses)) + ")"
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += " ORDER BY created_at, id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	defer rows.Close()

	var records []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan paper: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate papers: %w", err)
	}
	return records, nil
}

// Stats returns the number of papers per status.
func (s *Store) Stats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(1) FROM papers GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("collect stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var statusStr string
		var count int
		if err := rows.Scan(&statusStr, &count); err != nil {
			return nil, fmt.Errorf("scan stats: %w", err)
		}
		stats[Status(statusStr)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats: %w", err)
	}
	return stats, nil
}

// ClearFailed deletes every failed row. Cleared papers look unseen to the
// next fetch, so they re-enter the pipeline from scratch when a source
// returns them again. It returns the number of papers removed.
func (s *Store) ClearFailed(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM papers WHERE status = ?", StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("clear failed papers: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return affected, nil
}
