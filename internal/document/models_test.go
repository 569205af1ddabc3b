package document

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCountWords(t *testing.T) {
	assert.Equal(t, 0, CountWords(""))
	assert.Equal(t, 0, CountWords(" \n\t "))
	assert.Equal(t, 4, CountWords("Le créanciers a tord."))
	assert.Equal(t, 3, CountWords("un\ndeux  trois"))
}

func TestDefaultTitle(t *testing.T) {
	now := time.Date(2026, 3, 5, 18, 0, 0, 0, time.UTC)
	assert.Equal(t, "Document du 05/03/2026", DefaultTitle(now))
}

func TestMonthStart(t *testing.T) {
	paris := time.FixedZone("CET", 3600)
	got := MonthStart(time.Date(2026, 2, 28, 23, 59, 0, 0, paris))
	assert.Equal(t, time.Date(2026, 2, 1, 0, 0, 0, 0, paris), got)
}

func TestArchived(t *testing.T) {
	assert.True(t, (&Document{Status: StatusArchived}).Archived())
	assert.False(t, (&Document{Status: StatusCompleted}).Archived())
}
