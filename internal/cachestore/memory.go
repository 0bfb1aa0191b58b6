// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cachestore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/pdiddy/cvdb/pkg/types"
)

// MemoryStore is an in-process Store. Records are copied on the way in and
// out so callers cannot mutate stored state. Identifier uniqueness is
// enforced only when UniqueIdentifiers is set.
type MemoryStore struct {
	// UniqueIdentifiers makes Insert and Update return ErrConflict when a
	// non-empty Scopus ID or ORCID is already held by another record.
	UniqueIdentifiers bool

	// FailMerge, when non-nil, is called with the primary ID before each
	// merge; a non-nil error aborts that merge untouched.
	FailMerge func(primaryID int64) error

	mu      sync.Mutex
	records map[int64]*types.IdentityRecord
	nextID  int64
	now     func() time.Time
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[int64]*types.IdentityRecord),
		nextID:  1,
		now:     time.Now,
	}
}

// Seed copies records into the store as they are, keeping their IDs and
// timestamps. A seeded ID replaces any record already stored under it.
func (m *MemoryStore) Seed(records ...*types.IdentityRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, r := range records {
		m.records[r.ID] = r.Clone()
		if r.ID >= m.nextID {
			m.nextID = r.ID + 1
		}
	}
}

func (m *MemoryStore) EnforcesUniqueIdentifiers() bool {
	return m.UniqueIdentifiers
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*types.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec.Clone(), nil
}

func (m *MemoryStore) FindByScopusID(_ context.Context, scopusID string) (*types.IdentityRecord, error) {
	return m.findOne(func(r *types.IdentityRecord) bool { return scopusID != "" && r.ScopusID == scopusID })
}

func (m *MemoryStore) FindByORCID(_ context.Context, orcid string) (*types.IdentityRecord, error) {
	return m.findOne(func(r *types.IdentityRecord) bool { return orcid != "" && r.ORCID == orcid })
}

func (m *MemoryStore) findOne(match func(*types.IdentityRecord) bool) (*types.IdentityRecord, error) {
	found := m.filter(match, 1)
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (m *MemoryStore) FindByNormalizedName(_ context.Context, name string) ([]*types.IdentityRecord, error) {
	return m.filter(func(r *types.IdentityRecord) bool { return r.NormalizedName == name }, 0), nil
}

func (m *MemoryStore) FindByNameContaining(_ context.Context, substr string, limit int) ([]*types.IdentityRecord, error) {
	return m.filter(func(r *types.IdentityRecord) bool { return containsFold(r.NormalizedName, substr) }, limit), nil
}

// filter returns copies of matching records in candidate order. A limit of
// zero means no limit.
func (m *MemoryStore) filter(match func(*types.IdentityRecord) bool, limit int) []*types.IdentityRecord {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []*types.IdentityRecord
	for _, r := range m.records {
		if match(r) {
			out = append(out, r.Clone())
		}
	}
	slices.SortFunc(out, candidateOrder)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *MemoryStore) Insert(_ context.Context, rec *types.IdentityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkUnique(rec, 0); err != nil {
		return err
	}

	now := m.now().UTC()
	rec.ID = m.nextID
	m.nextID++
	rec.CreatedAt = now
	rec.UpdatedAt = now
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) Update(_ context.Context, rec *types.IdentityRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.records[rec.ID]; !ok {
		return fmt.Errorf("record %d: %w", rec.ID, ErrNotFound)
	}
	if err := m.checkUnique(rec, rec.ID); err != nil {
		return err
	}
	rec.UpdatedAt = m.now().UTC()
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *MemoryStore) IncrementLookup(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	rec.LookupCount++
	return nil
}

func (m *MemoryStore) MergeGroup(_ context.Context, primary *types.IdentityRecord, remove []int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailMerge != nil {
		if err := m.FailMerge(primary.ID); err != nil {
			return err
		}
	}
	if _, ok := m.records[primary.ID]; !ok {
		return fmt.Errorf("primary record %d: %w", primary.ID, ErrNotFound)
	}
	for _, id := range remove {
		if _, ok := m.records[id]; !ok {
			return fmt.Errorf("merged record %d: %w", id, ErrNotFound)
		}
	}

	for _, id := range remove {
		delete(m.records, id)
	}
	primary.UpdatedAt = m.now().UTC()
	m.records[primary.ID] = primary.Clone()
	return nil
}

func (m *MemoryStore) All(_ context.Context) ([]*types.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*types.IdentityRecord, 0, len(m.records))
	for _, r := range m.records {
		out = append(out, r.Clone())
	}
	slices.SortFunc(out, func(a, b *types.IdentityRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out, nil
}

func (m *MemoryStore) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records), nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clear(m.records)
	return nil
}

// checkUnique must be called with mu held. self is the ID allowed to hold
// the identifiers already.
func (m *MemoryStore) checkUnique(rec *types.IdentityRecord, self int64) error {
	if !m.UniqueIdentifiers {
		return nil
	}
	for id, r := range m.records {
		if id == self {
			continue
		}
		if (rec.ScopusID != "" && r.ScopusID == rec.ScopusID) || (rec.ORCID != "" && r.ORCID == rec.ORCID) {
			return fmt.Errorf("record %d: %w", id, ErrConflict)
		}
	}
	return nil
}
