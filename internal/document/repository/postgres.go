package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/dbx"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/repository/migrations"
)

// PostgresRepo is the database/sql (pgx driver) implementation.
type PostgresRepo struct {
	db *sql.DB
}

func NewPostgresRepo(db *sql.DB) *PostgresRepo {
	return &PostgresRepo{db: db}
}

// OpenPostgres opens a pgx-backed *sql.DB and checks connectivity.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}

// gooseUp is a seam for tests.
var gooseUp = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies the embedded schema.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.FS)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}
	return gooseUp(ctx, db, ".")
}

const documentColumns = `id, owner_id, title, content, corrected_content, agent_used, status,
	word_count, corrections_count, processing_time, version, created_at, updated_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanDocument(s scanner) (*document.Document, error) {
	var d document.Document
	var corrected sql.NullString
	var status string
	err := s.Scan(&d.ID, &d.OwnerID, &d.Title, &d.Content, &corrected, &d.AgentUsed, &status,
		&d.WordCount, &d.CorrectionsCount, &d.ProcessingTime, &d.Version, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Status = document.Status(status)
	if corrected.Valid {
		d.CorrectedContent = &corrected.String
	}
	return &d, nil
}

func insertDocument(ctx context.Context, db dbx.DBTX, d *document.Document) error {
	query := `INSERT INTO documents (` + documentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`
	_, err := db.ExecContext(ctx, query,
		d.ID, d.OwnerID, d.Title, d.Content, d.CorrectedContent, d.AgentUsed, string(d.Status),
		d.WordCount, d.CorrectionsCount, d.ProcessingTime, int64(1), d.CreatedAt, d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	d.Version = 1
	return nil
}

func updateDocument(ctx context.Context, db dbx.DBTX, d *document.Document) error {
	query := `UPDATE documents SET title = $1, content = $2, corrected_content = $3, agent_used = $4,
		status = $5, word_count = $6, corrections_count = $7, processing_time = $8, updated_at = $9,
		version = version + 1
		WHERE id = $10 AND owner_id = $11 AND version = $12`
	res, err := db.ExecContext(ctx, query,
		d.Title, d.Content, d.CorrectedContent, d.AgentUsed, string(d.Status),
		d.WordCount, d.CorrectionsCount, d.ProcessingTime, d.UpdatedAt,
		d.ID, d.OwnerID, d.Version)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		var exists bool
		err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id = $1 AND owner_id = $2)`, d.ID, d.OwnerID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		if !exists {
			return document.ErrNotFound
		}
		return document.ErrVersionConflict
	}
	d.Version++
	return nil
}

func (r *PostgresRepo) Create(ctx context.Context, d *document.Document) error {
	return insertDocument(ctx, r.db, d)
}

func (r *PostgresRepo) Get(ctx context.Context, id, owner string) (*document.Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE id = $1 AND owner_id = $2`
	d, err := scanDocument(r.db.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, document.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return d, nil
}

func (r *PostgresRepo) List(ctx context.Context, owner string, page, perPage int) ([]*document.Document, int, error) {
	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM documents WHERE owner_id = $1`, owner).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	query := `SELECT ` + documentColumns + ` FROM documents WHERE owner_id = $1
		ORDER BY updated_at DESC LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, owner, perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	out := []*document.Document{}
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("db error: %w", err)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("db error: %w", err)
	}
	return out, total, nil
}

func (r *PostgresRepo) Update(ctx context.Context, d *document.Document) error {
	return updateDocument(ctx, r.db, d)
}

func (r *PostgresRepo) Delete(ctx context.Context, id, owner string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1 AND owner_id = $2`, id, owner)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return document.ErrNotFound
	}
	return nil
}

func (r *PostgresRepo) Commit(ctx context.Context, d *document.Document, h *document.CorrectionHistory, create bool) error {
	before := d.Version
	err := dbx.WithTx(ctx, r.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if create {
			if err := insertDocument(ctx, tx, d); err != nil {
				return err
			}
		} else if err := updateDocument(ctx, tx, d); err != nil {
			return err
		}
		if h == nil {
			return nil
		}
		_, err := tx.ExecContext(ctx, `INSERT INTO correction_history
			(id, document_id, owner_id, original_text, corrected_text, corrections_made, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			h.ID, h.DocumentID, h.OwnerID, h.OriginalText, h.CorrectedText, h.CorrectionsMade, h.CreatedAt)
		if err != nil {
			return fmt.Errorf("db error: %w", err)
		}
		return nil
	})
	if err != nil {
		d.Version = before
	}
	return err
}

func (r *PostgresRepo) History(ctx context.Context, documentID, owner string) ([]*document.CorrectionHistory, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, document_id, owner_id, original_text, corrected_text, corrections_made, created_at
		FROM correction_history WHERE document_id = $1 AND owner_id = $2 ORDER BY created_at DESC`, documentID, owner)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	out := []*document.CorrectionHistory{}
	for rows.Next() {
		var h document.CorrectionHistory
		if err := rows.Scan(&h.ID, &h.DocumentID, &h.OwnerID, &h.OriginalText, &h.CorrectedText, &h.CorrectionsMade, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out = append(out, &h)
	}
	return out, rows.Err()
}

func (r *PostgresRepo) Stats(ctx context.Context, owner string, monthStart time.Time) (document.Stats, error) {
	var s document.Stats
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(SUM(word_count), 0), COALESCE(SUM(corrections_count), 0),
		COUNT(*) FILTER (WHERE created_at >= $2),
		COALESCE((SELECT agent_used FROM documents WHERE owner_id = $1 AND agent_used <> ''
			GROUP BY agent_used ORDER BY COUNT(*) DESC, agent_used LIMIT 1), '')
		FROM documents WHERE owner_id = $1`, owner, monthStart).
		Scan(&s.TotalDocuments, &s.TotalWords, &s.TotalCorrections, &s.DocumentsThisMonth, &s.FavoriteAgent)
	if err != nil {
		return document.Stats{}, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

func (r *PostgresRepo) MonthlyCounts(ctx context.Context, owner string, since time.Time) (map[string]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM'), COUNT(*)
		FROM documents WHERE owner_id = $1 AND created_at >= $2 GROUP BY 1`, owner, since)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()
	out := make(map[string]int)
	for rows.Next() {
		var month string
		var n int
		if err := rows.Scan(&month, &n); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		out[month] = n
	}
	return out, rows.Err()
}
