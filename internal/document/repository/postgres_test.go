package repository

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/require"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
)

func newPostgresWithMock(t *testing.T) (*PostgresRepo, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepo(db), mock
}

var docCols = []string{"id", "owner_id", "title", "content", "corrected_content", "agent_used", "status",
	"word_count", "corrections_count", "processing_time", "version", "created_at", "updated_at"}

func TestPostgresRepo_Get(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT .+ FROM documents WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("d1", "alice").
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("d1", "alice", "Contrat", "<p>x</p>", "<p>y</p>", "jurifix", "completed", 5, 1, 0.42, int64(2), now, now))

	d, err := repo.Get(context.Background(), "d1", "alice")
	require.NoError(t, err)
	require.Equal(t, document.StatusCompleted, d.Status)
	require.NotNil(t, d.CorrectedContent)
	require.Equal(t, "<p>y</p>", *d.CorrectedContent)
	require.EqualValues(t, 2, d.Version)

	mock.ExpectQuery(`SELECT .+ FROM documents`).
		WithArgs("d1", "bob").
		WillReturnError(sql.ErrNoRows)
	_, err = repo.Get(context.Background(), "d1", "bob")
	require.ErrorIs(t, err, document.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_List(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM documents WHERE owner_id = \$1`).
		WithArgs("alice").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(`ORDER BY updated_at DESC LIMIT \$2 OFFSET \$3`).
		WithArgs("alice", 2, 2).
		WillReturnRows(sqlmock.NewRows(docCols).
			AddRow("d1", "alice", "a", "x", nil, "jurifix", "draft", 1, 0, 0.0, int64(1), now, now))

	items, total, err := repo.List(context.Background(), "alice", 2, 2)
	require.NoError(t, err)
	require.Equal(t, 3, total)
	require.Len(t, items, 1)
	require.Nil(t, items[0].CorrectedContent)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CommitWritesHistoryInTx(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	corrected := "b"
	d := &document.Document{ID: "d1", OwnerID: "alice", Content: "a", CorrectedContent: &corrected, Status: document.StatusCompleted, Version: 3, UpdatedAt: time.Now()}
	h := &document.CorrectionHistory{ID: "h1", DocumentID: "d1", OwnerID: "alice", OriginalText: "a", CorrectedText: "b", CreatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents SET`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO correction_history`).
		WithArgs("h1", "d1", "alice", "a", "b", "", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Commit(context.Background(), d, h, false))
	require.EqualValues(t, 4, d.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CommitRollsBackOnConflict(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	d := &document.Document{ID: "d1", OwnerID: "alice", Version: 1, UpdatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE documents SET`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`SELECT EXISTS`).WithArgs("d1", "alice").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), d, &document.CorrectionHistory{ID: "h1"}, false)
	require.ErrorIs(t, err, document.ErrVersionConflict)
	require.EqualValues(t, 1, d.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_CommitRollsBackOnHistoryFailure(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	d := &document.Document{ID: "d1", OwnerID: "alice", Status: document.StatusDraft, CreatedAt: time.Now(), UpdatedAt: time.Now()}

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO documents`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`INSERT INTO correction_history`).WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := repo.Commit(context.Background(), d, &document.CorrectionHistory{ID: "h1", DocumentID: "d1"}, true)
	require.ErrorContains(t, err, "disk full")
	require.EqualValues(t, 0, d.Version)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRepo_DeleteMissing(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	mock.ExpectExec(`DELETE FROM documents WHERE id = \$1 AND owner_id = \$2`).
		WithArgs("d1", "bob").
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.ErrorIs(t, repo.Delete(context.Background(), "d1", "bob"), document.ErrNotFound)
}

func TestPostgresRepo_Stats(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	month := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`FILTER \(WHERE created_at >= \$2\)`).
		WithArgs("alice", month).
		WillReturnRows(sqlmock.NewRows([]string{"count", "words", "corrections", "month", "agent"}).AddRow(4, 120, 9, 2, "jurifix"))

	s, err := repo.Stats(context.Background(), "alice", month)
	require.NoError(t, err)
	require.Equal(t, document.Stats{TotalDocuments: 4, TotalWords: 120, TotalCorrections: 9, DocumentsThisMonth: 2, FavoriteAgent: "jurifix"}, s)
}

func TestPostgresRepo_MonthlyCounts(t *testing.T) {
	repo, mock := newPostgresWithMock(t)
	since := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`to_char\(created_at AT TIME ZONE 'UTC', 'YYYY-MM'\)`).
		WithArgs("alice", since).
		WillReturnRows(sqlmock.NewRows([]string{"month", "count"}).AddRow("2025-11", 3).AddRow("2026-03", 1))

	got, err := repo.MonthlyCounts(context.Background(), "alice", since)
	require.NoError(t, err)
	require.Equal(t, map[string]int{"2025-11": 3, "2026-03": 1}, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRunMigrations_UsesEmbeddedDir(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })
	var gotDir string
	gooseUp = func(_ context.Context, _ *sql.DB, dir string, _ ...goose.OptionsFunc) error {
		gotDir = dir
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	require.Equal(t, ".", gotDir)
}
