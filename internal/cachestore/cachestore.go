// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cachestore persists author identity records. SQLiteStore is the
// production store; MemoryStore backs tests and dry runs.
package cachestore

import (
	"cmp"
	"context"
	"errors"
	"strings"

	"github.com/pdiddy/cvdb/pkg/types"
)

var (
	// ErrNotFound is returned when no record has the requested key.
	ErrNotFound = errors.New("identity record not found")

	// ErrConflict is returned when an insert or update would give two records
	// the same Scopus ID or ORCID.
	ErrConflict = errors.New("identifier already assigned to another record")
)

// Store is the record store the matching engine runs against. Lookups by a
// unique key return ErrNotFound when nothing matches; list lookups return an
// empty slice.
type Store interface {
	Get(ctx context.Context, id int64) (*types.IdentityRecord, error)
	FindByScopusID(ctx context.Context, scopusID string) (*types.IdentityRecord, error)
	FindByORCID(ctx context.Context, orcid string) (*types.IdentityRecord, error)

	// FindByNormalizedName returns every record whose normalized name equals
	// name, in candidate order.
	FindByNormalizedName(ctx context.Context, name string) ([]*types.IdentityRecord, error)

	// FindByNameContaining returns at most limit records whose normalized
	// name contains substr, in candidate order.
	FindByNameContaining(ctx context.Context, substr string, limit int) ([]*types.IdentityRecord, error)

	// Insert stores a new record and sets its ID and timestamps.
	Insert(ctx context.Context, rec *types.IdentityRecord) error

	// Update overwrites the stored record with rec and refreshes UpdatedAt.
	Update(ctx context.Context, rec *types.IdentityRecord) error

	// IncrementLookup adds one to the record's lookup count.
	IncrementLookup(ctx context.Context, id int64) error

	// MergeGroup atomically deletes the records in remove and writes primary.
	// Either every change is applied or none is.
	MergeGroup(ctx context.Context, primary *types.IdentityRecord, remove []int64) error

	// All returns every record ordered by ID.
	All(ctx context.Context) ([]*types.IdentityRecord, error)

	Count(ctx context.Context) (int, error)

	// Clear deletes every record.
	Clear(ctx context.Context) error

	// EnforcesUniqueIdentifiers reports whether Insert and Update reject a
	// Scopus ID or ORCID already held by another record.
	EnforcesUniqueIdentifiers() bool
}

// candidateOrder sorts records the way the matching engine scans them:
// highest confidence first, then most used, then most recently updated.
func candidateOrder(a, b *types.IdentityRecord) int {
	if c := cmp.Compare(b.ConfidenceScore, a.ConfidenceScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.LookupCount, a.LookupCount); c != 0 {
		return c
	}
	if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// containsFold reports whether s contains substr, ignoring case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
