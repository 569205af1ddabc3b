package document

import (
	"errors"
	"strings"
	"time"
)

var (
	// ErrNotFound covers both missing and foreign-owned documents.
	ErrNotFound = errors.New("document not found")
	// ErrInvalidState is returned for operations on archived documents.
	ErrInvalidState = errors.New("document is archived")
	// ErrVersionConflict is returned when an update carries a stale version.
	ErrVersionConflict = errors.New("document version conflict")
	// ErrInvalidStatus is returned for a status a caller may not set directly.
	ErrInvalidStatus = errors.New("invalid document status")
)

// Status is the document lifecycle state.
type Status string

const (
	StatusDraft      Status = "draft"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusArchived   Status = "archived"
)

// Document is the persistent document model. CorrectedContent is set only
// while Status is completed.
type Document struct {
	ID               string    `json:"id" bson:"_id"`
	OwnerID          string    `json:"owner_id" bson:"owner_id"`
	Title            string    `json:"title" bson:"title"`
	Content          string    `json:"content" bson:"content"`
	CorrectedContent *string   `json:"corrected_content" bson:"corrected_content"`
	AgentUsed        string    `json:"agent_used" bson:"agent_used"`
	Status           Status    `json:"status" bson:"status"`
	WordCount        int       `json:"word_count" bson:"word_count"`
	CorrectionsCount int       `json:"corrections_count" bson:"corrections_count"`
	ProcessingTime   float64   `json:"processing_time" bson:"processing_time"`
	Version          int64     `json:"version" bson:"version"`
	CreatedAt        time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" bson:"updated_at"`
}

// Archived reports whether the document reached its terminal state.
func (d *Document) Archived() bool { return d.Status == StatusArchived }

// CorrectionHistory is an immutable record of one correction run. Rows are
// kept when their document is deleted.
type CorrectionHistory struct {
	ID              string    `json:"id" bson:"_id"`
	DocumentID      string    `json:"document_id" bson:"document_id"`
	OwnerID         string    `json:"-" bson:"owner_id"`
	OriginalText    string    `json:"original_text" bson:"original_text"`
	CorrectedText   string    `json:"corrected_text" bson:"corrected_text"`
	CorrectionsMade string    `json:"corrections_made" bson:"corrections_made"`
	CreatedAt       time.Time `json:"created_at" bson:"created_at"`
}

// Patch holds the caller-editable fields of an update. Nil means unchanged.
type Patch struct {
	Title     *string
	Content   *string
	Status    *Status
	IfVersion *int64
}

// Correction is the outcome of a pipeline run applied to a stored document.
type Correction struct {
	Original         string
	Corrected        string
	AgentUsed        string
	WordCount        int
	CorrectionsCount int
	ProcessingTime   float64
}

// Stats aggregates an owner's documents.
type Stats struct {
	TotalDocuments     int `json:"total_documents"`
	TotalWords         int `json:"total_words"`
	TotalCorrections   int `json:"total_corrections"`
	DocumentsThisMonth int `json:"documents_this_month"`
	// MonthlyStats covers the last StatsMonths calendar months, oldest first.
	MonthlyStats []MonthCount `json:"monthly_stats"`
	// FavoriteAgent is the most used agent; ties go to the smaller name.
	FavoriteAgent string `json:"favorite_agent"`
}

// MonthCount is the number of documents created in one calendar month.
type MonthCount struct {
	Month string `json:"month"`
	Count int    `json:"count"`
}

// StatsMonths is the length of the monthly series in Stats.
const StatsMonths = 6

// Page is one page of an owner's documents, newest update first.
type Page struct {
	Documents   []*Document `json:"documents"`
	Total       int         `json:"total"`
	Pages       int         `json:"pages"`
	CurrentPage int         `json:"current_page"`
}

// CountWords returns the whitespace-delimited token count of s.
func CountWords(s string) int { return len(strings.Fields(s)) }

// DefaultTitle is used when a document is created without a title.
func DefaultTitle(now time.Time) string {
	return "Document du " + now.Format("02/01/2006")
}

// MonthKey identifies t's UTC calendar month, e.g. "2026-03".
func MonthKey(t time.Time) string { return t.UTC().Format("2006-01") }

// MonthStart returns the first instant of t's month in t's location.
func MonthStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}
