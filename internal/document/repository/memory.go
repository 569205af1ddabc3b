package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/jurisfix/jurisfix/backend/go-services/internal/document"
)

// MemoryRepo is an in-memory repository used in development and unit tests.
// A single mutex makes Commit atomic.
type MemoryRepo struct {
	mu      sync.RWMutex
	store   map[string]*document.Document
	history []*document.CorrectionHistory
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{store: make(map[string]*document.Document)}
}

func (m *MemoryRepo) Create(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insert(d)
	return nil
}

func (m *MemoryRepo) insert(d *document.Document) {
	d.Version = 1
	cp := *d
	m.store[d.ID] = &cp
}

func (m *MemoryRepo) Get(_ context.Context, id, owner string) (*document.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if d, ok := m.store[id]; ok && d.OwnerID == owner {
		cp := *d
		return &cp, nil
	}
	return nil, document.ErrNotFound
}

func (m *MemoryRepo) List(_ context.Context, owner string, page, perPage int) ([]*document.Document, int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := make([]*document.Document, 0)
	for _, d := range m.store {
		if d.OwnerID == owner {
			cp := *d
			all = append(all, &cp)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	total := len(all)
	if page < 1 || perPage < 1 || page-1 > total/perPage {
		return []*document.Document{}, total, nil
	}
	start := (page - 1) * perPage
	if start >= total {
		return []*document.Document{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}
	return all[start:end], total, nil
}

func (m *MemoryRepo) Update(_ context.Context, d *document.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.replace(d)
}

func (m *MemoryRepo) replace(d *document.Document) error {
	cur, ok := m.store[d.ID]
	if !ok || cur.OwnerID != d.OwnerID {
		return document.ErrNotFound
	}
	if cur.Version != d.Version {
		return document.ErrVersionConflict
	}
	d.Version++
	cp := *d
	m.store[d.ID] = &cp
	return nil
}

func (m *MemoryRepo) Delete(_ context.Context, id, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d, ok := m.store[id]; !ok || d.OwnerID != owner {
		return document.ErrNotFound
	}
	delete(m.store, id)
	return nil
}

func (m *MemoryRepo) Commit(_ context.Context, d *document.Document, h *document.CorrectionHistory, create bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if create {
		m.insert(d)
	} else if err := m.replace(d); err != nil {
		return err
	}
	if h != nil {
		cp := *h
		m.history = append(m.history, &cp)
	}
	return nil
}

func (m *MemoryRepo) History(_ context.Context, documentID, owner string) ([]*document.CorrectionHistory, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*document.CorrectionHistory, 0)
	for i := len(m.history) - 1; i >= 0; i-- {
		h := m.history[i]
		if h.DocumentID == documentID && h.OwnerID == owner {
			cp := *h
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *MemoryRepo) Stats(_ context.Context, owner string, monthStart time.Time) (document.Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s document.Stats
	agents := make(map[string]int)
	for _, d := range m.store {
		if d.OwnerID != owner {
			continue
		}
		s.TotalDocuments++
		s.TotalWords += d.WordCount
		s.TotalCorrections += d.CorrectionsCount
		if !d.CreatedAt.Before(monthStart) {
			s.DocumentsThisMonth++
		}
		if d.AgentUsed != "" {
			agents[d.AgentUsed]++
		}
	}
	for name, n := range agents {
		if best := agents[s.FavoriteAgent]; n > best || (n == best && name < s.FavoriteAgent) {
			s.FavoriteAgent = name
		}
	}
	return s, nil
}

func (m *MemoryRepo) MonthlyCounts(_ context.Context, owner string, since time.Time) (map[string]int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]int)
	for _, d := range m.store {
		if d.OwnerID == owner && !d.CreatedAt.Before(since) {
			out[document.MonthKey(d.CreatedAt)]++
		}
	}
	return out, nil
}
