package service

import (
	"context"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/sergi/go-diff/diffmatchpatch"
	"go.uber.org/zap"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
	"github.com/jurisfix/jurisfix/backend/go-services/internal/document/repository"
	"github.com/jurisfix/jurisfix/backend/go-services/pkg/logger"
)

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
	DefaultAgent   = "jurifix"

	// maxPage keeps the row offset of any page representable.
	maxPage = math.MaxInt32
)

// Archiver exports an archived document snapshot and returns the object key.
// Remove deletes a snapshot whose archival could not be committed.
type Archiver interface {
	Archive(ctx context.Context, d *document.Document) (string, error)
	Remove(ctx context.Context, key string) error
}

// SaveRequest is the create-or-update payload of the save operation. An
// empty ID creates a document.
type SaveRequest struct {
	ID               string
	Title            string
	Content          string
	CorrectedContent *string
	AgentUsed        string
}

// Service holds the document business rules: ownership, status transitions
// and history bookkeeping. Storage is delegated to a repository.Repository.
type Service struct {
	repo     repository.Repository
	archiver Archiver
	now      func() time.Time
	newID    func() string
}

type Option func(*Service)

// WithArchiver enables snapshot export on Archive.
func WithArchiver(a Archiver) Option { return func(s *Service) { s.archiver = a } }

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(repo repository.Repository, opts ...Option) *Service {
	s := &Service{repo: repo, now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewMemoryService returns a Service backed by the in-memory repository.
func NewMemoryService(opts ...Option) *Service {
	return New(repository.NewMemoryRepo(), opts...)
}

func (s *Service) Create(ctx context.Context, owner, title, content, agentName string) (*document.Document, error) {
	now := s.now().UTC()
	if title == "" {
		title = document.DefaultTitle(now)
	}
	if agentName == "" {
		agentName = DefaultAgent
	}
	d := &document.Document{
		ID:        s.newID(),
		OwnerID:   owner,
		Title:     title,
		Content:   content,
		AgentUsed: agentName,
		Status:    document.StatusDraft,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Get(ctx context.Context, owner, id string) (*document.Document, error) {
	return s.repo.Get(ctx, id, owner)
}

// List returns page (1-based) of the owner's documents. perPage defaults to
// DefaultPerPage and is capped at MaxPerPage. Pages past the end are empty.
func (s *Service) List(ctx context.Context, owner string, page, perPage int) (*document.Page, error) {
	if page < 1 {
		page = 1
	}
	if page > maxPage {
		page = maxPage
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	items, total, err := s.repo.List(ctx, owner, page, perPage)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []*document.Document{}
	}
	return &document.Page{
		Documents:   items,
		Total:       total,
		Pages:       (total + perPage - 1) / perPage,
		CurrentPage: page,
	}, nil
}

// Update applies an edit. Changing the content of a completed document
// returns it to draft. Callers may only set draft or archived directly.
func (s *Service) Update(ctx context.Context, owner, id string, p document.Patch) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if d.Archived() {
		return nil, document.ErrInvalidState
	}
	if p.IfVersion != nil && *p.IfVersion != d.Version {
		return nil, document.ErrVersionConflict
	}
	if p.Title != nil {
		d.Title = *p.Title
	}
	if p.Content != nil && *p.Content != d.Content {
		d.Content = *p.Content
		if d.Status == document.StatusCompleted {
			d.Status = document.StatusDraft
		}
	}
	if p.Status != nil {
		switch *p.Status {
		case document.StatusDraft, document.StatusArchived:
			d.Status = *p.Status
		default:
			return nil, document.ErrInvalidStatus
		}
	}
	if d.Status != document.StatusCompleted {
		d.CorrectedContent = nil
	}
	d.UpdatedAt = s.now().UTC()
	if err := s.repo.Update(ctx, d); err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) Delete(ctx context.Context, owner, id string) error {
	return s.repo.Delete(ctx, id, owner)
}

// Save creates or updates a document in one transaction. When the request
// carries corrected content that differs from the content, the document is
// marked completed and a history row is written alongside it.
func (s *Service) Save(ctx context.Context, owner string, req SaveRequest) (*document.Document, error) {
	now := s.now().UTC()
	create := req.ID == ""
	var d *document.Document
	if create {
		d = &document.Document{ID: s.newID(), OwnerID: owner, AgentUsed: req.AgentUsed, CreatedAt: now}
		if d.AgentUsed == "" {
			d.AgentUsed = DefaultAgent
		}
		if req.Title == "" {
			req.Title = document.DefaultTitle(now)
		}
	} else {
		cur, err := s.repo.Get(ctx, req.ID, owner)
		if err != nil {
			return nil, err
		}
		if cur.Archived() {
			return nil, document.ErrInvalidState
		}
		d = cur
		if req.Title == "" {
			req.Title = d.Title
		}
		if req.AgentUsed != "" {
			d.AgentUsed = req.AgentUsed
		}
	}
	d.Title = req.Title
	d.Content = req.Content
	d.UpdatedAt = now

	var h *document.CorrectionHistory
	if req.CorrectedContent != nil && *req.CorrectedContent != "" && *req.CorrectedContent != req.Content {
		corrected := *req.CorrectedContent
		d.CorrectedContent = &corrected
		d.Status = document.StatusCompleted
		d.WordCount = document.CountWords(req.Content)
		h = s.history(d, req.Content, corrected, now)
	} else {
		d.CorrectedContent = nil
		d.Status = document.StatusDraft
	}
	if err := s.repo.Commit(ctx, d, h, create); err != nil {
		return nil, err
	}
	return d, nil
}

// ApplyCorrection stores a pipeline result on an existing document and
// records a history row in the same transaction.
func (s *Service) ApplyCorrection(ctx context.Context, owner, id string, c document.Correction) (*document.Document, error) {
	d, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, err
	}
	if d.Archived() {
		return nil, document.ErrInvalidState
	}
	now := s.now().UTC()
	corrected := c.Corrected
	d.Content = c.Original
	d.CorrectedContent = &corrected
	d.Status = document.StatusCompleted
	d.WordCount = c.WordCount
	d.CorrectionsCount = c.CorrectionsCount
	d.ProcessingTime = c.ProcessingTime
	if c.AgentUsed != "" {
		d.AgentUsed = c.AgentUsed
	}
	d.UpdatedAt = now
	if err := s.repo.Commit(ctx, d, s.history(d, c.Original, corrected, now), false); err != nil {
		return nil, err
	}
	logger.L().Info("correction applied",
		zap.String("document_id", d.ID),
		zap.Int64("version", d.Version),
		zap.Int("corrections", d.CorrectionsCount))
	return d, nil
}

// Archive moves a document to its terminal state. With an archiver set, the
// snapshot (including corrected content) is exported first and a failed
// export leaves the document untouched.
func (s *Service) Archive(ctx context.Context, owner, id string) (*document.Document, string, error) {
	d, err := s.repo.Get(ctx, id, owner)
	if err != nil {
		return nil, "", err
	}
	if d.Archived() {
		return nil, "", document.ErrInvalidState
	}
	d.Status = document.StatusArchived
	d.UpdatedAt = s.now().UTC()

	key := ""
	if s.archiver != nil {
		snapshot := *d
		if key, err = s.archiver.Archive(ctx, &snapshot); err != nil {
			return nil, "", err
		}
	}
	d.CorrectedContent = nil
	if err := s.repo.Update(ctx, d); err != nil {
		if key != "" {
			if rerr := s.archiver.Remove(context.WithoutCancel(ctx), key); rerr != nil {
				logger.L().Warn("orphaned archive snapshot",
					zap.String("document_id", d.ID),
					zap.String("key", key),
					zap.Error(rerr))
			}
		}
		return nil, "", err
	}
	return d, key, nil
}

// History lists correction rows for a document the owner can still see.
func (s *Service) History(ctx context.Context, owner, id string) ([]*document.CorrectionHistory, error) {
	if _, err := s.repo.Get(ctx, id, owner); err != nil {
		return nil, err
	}
	return s.repo.History(ctx, id, owner)
}

// Stats aggregates the owner's documents, with a zero-filled series of
// documents created in each of the last document.StatsMonths months.
func (s *Service) Stats(ctx context.Context, owner string) (document.Stats, error) {
	month := document.MonthStart(s.now().UTC())
	st, err := s.repo.Stats(ctx, owner, month)
	if err != nil {
		return document.Stats{}, err
	}
	first := month.AddDate(0, 1-document.StatsMonths, 0)
	counts, err := s.repo.MonthlyCounts(ctx, owner, first)
	if err != nil {
		return document.Stats{}, err
	}
	st.MonthlyStats = make([]document.MonthCount, 0, document.StatsMonths)
	for i := 0; i < document.StatsMonths; i++ {
		m := first.AddDate(0, i, 0)
		st.MonthlyStats = append(st.MonthlyStats, document.MonthCount{
			Month: m.Format("January 2006"),
			Count: counts[document.MonthKey(m)],
		})
	}
	if st.FavoriteAgent == "" {
		st.FavoriteAgent = DefaultAgent
	}
	return st, nil
}

func (s *Service) history(d *document.Document, original, corrected string, at time.Time) *document.CorrectionHistory {
	return &document.CorrectionHistory{
		ID:              s.newID(),
		DocumentID:      d.ID,
		OwnerID:         d.OwnerID,
		OriginalText:    original,
		CorrectedText:   corrected,
		CorrectionsMade: DescribeCorrections(original, corrected),
		CreatedAt:       at,
	}
}

// DescribeCorrections returns the changes between two texts as a patch in
// diff-match-patch text format, empty when they are equal.
func DescribeCorrections(original, corrected string) string {
	if original == corrected {
		return ""
	}
	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(original, corrected, false)
	diffs = dmp.DiffCleanupSemantic(diffs)
	return dmp.PatchToText(dmp.PatchMake(original, diffs))
}
