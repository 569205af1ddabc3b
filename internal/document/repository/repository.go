package repository

import (
	"context"
	"time"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
)

// Repository persists documents and correction history. Every lookup is
// scoped by owner; a foreign document is reported as document.ErrNotFound.
type Repository interface {
	Create(ctx context.Context, d *document.Document) error
	Get(ctx context.Context, id, owner string) (*document.Document, error)
	// List returns one page (1-based) ordered by UpdatedAt descending, plus the
	// owner's total document count.
	List(ctx context.Context, owner string, page, perPage int) ([]*document.Document, int, error)
	// Update stores every mutable field of d when the stored version equals
	// d.Version, then increments d.Version.
	Update(ctx context.Context, d *document.Document) error
	Delete(ctx context.Context, id, owner string) error
	// Commit writes d (inserting when create is true, otherwise as Update) and,
	// when h is non-nil, inserts h in the same transaction.
	Commit(ctx context.Context, d *document.Document, h *document.CorrectionHistory, create bool) error
	History(ctx context.Context, documentID, owner string) ([]*document.CorrectionHistory, error)
	// Stats fills the totals, DocumentsThisMonth and FavoriteAgent ("" when the
	// owner has no documents).
	Stats(ctx context.Context, owner string, monthStart time.Time) (document.Stats, error)
	// MonthlyCounts counts documents created since the given instant, keyed by
	// document.MonthKey.
	MonthlyCounts(ctx context.Context, owner string, since time.Time) (map[string]int, error)
}
