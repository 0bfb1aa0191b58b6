// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cachestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/pdiddy/cvdb/pkg/types"
)

const (
	defaultDBPath = "cvdb.db"

	// timeLayout is fixed-width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

	recordColumns = `id, normalized_name, name_variations, scopus_id, orcid_id,
		given_name, surname, affiliations, source, confidence_score, lookup_count,
		last_verified, verification_method, created_at, updated_at`

	candidateOrderSQL = ` ORDER BY confidence_score DESC, lookup_count DESC, updated_at DESC, id ASC`
)

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db     *sql.DB
	path   string
	unique bool
	now    func() time.Time
}

// Open opens or creates the identity cache database at cfg.Path and creates
// the schema if it does not exist. Unless cfg.AllowDuplicateIdentifiers is
// set, non-empty Scopus IDs and ORCIDs are unique across records.
func Open(cfg types.StoreConfig) (*SQLiteStore, error) {
	path := cfg.Path
	if path == "" {
		path = defaultDBPath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	s := &SQLiteStore{db: db, path: path, unique: !cfg.AllowDuplicateIdentifiers, now: time.Now}
	if err := s.createSchema(!cfg.AllowDuplicateIdentifiers); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return s, nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) EnforcesUniqueIdentifiers() bool {
	return s.unique
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) createSchema(uniqueIdentifiers bool) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS identities (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			normalized_name TEXT NOT NULL,
			name_variations TEXT NOT NULL DEFAULT '[]',
			scopus_id TEXT NOT NULL DEFAULT '',
			orcid_id TEXT NOT NULL DEFAULT '',
			given_name TEXT NOT NULL DEFAULT '',
			surname TEXT NOT NULL DEFAULT '',
			affiliations TEXT NOT NULL DEFAULT '[]',
			source TEXT NOT NULL,
			confidence_score REAL NOT NULL DEFAULT 1.0 CHECK (confidence_score >= 0 AND confidence_score <= 1),
			lookup_count INTEGER NOT NULL DEFAULT 1,
			last_verified TEXT,
			verification_method TEXT NOT NULL DEFAULT '',
			created_at TEXT NOT NULL,
			updated_at TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_normalized_name ON identities(normalized_name)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_scopus_id ON identities(scopus_id)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_orcid_id ON identities(orcid_id)`,
		`CREATE INDEX IF NOT EXISTS idx_identities_source_confidence ON identities(source, confidence_score)`,
	}

	if uniqueIdentifiers {
		statements = append(statements,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_scopus_id ON identities(scopus_id) WHERE scopus_id <> ''`,
			`CREATE UNIQUE INDEX IF NOT EXISTS uq_identities_orcid_id ON identities(orcid_id) WHERE orcid_id <> ''`,
		)
	} else {
		statements = append(statements,
			`DROP INDEX IF EXISTS uq_identities_scopus_id`,
			`DROP INDEX IF EXISTS uq_identities_orcid_id`,
		)
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("existing records share an identifier; run consolidate with allow_duplicate_identifiers set: %w", err)
			}
			return fmt.Errorf("executing schema statement: %w", err)
		}
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.IdentityRecord, error) {
	var (
		rec                      types.IdentityRecord
		variationsJSON, affsJSON string
		source                   string
		lastVerified             sql.NullString
		createdAt, updatedAt     string
	)

	if err := row.Scan(
		&rec.ID, &rec.NormalizedName, &variationsJSON, &rec.ScopusID, &rec.ORCID,
		&rec.GivenName, &rec.Surname, &affsJSON, &source, &rec.ConfidenceScore, &rec.LookupCount,
		&lastVerified, &rec.VerificationMethod, &createdAt, &updatedAt,
	); err != nil {
		return nil, err
	}

	rec.Source = types.Source(source)
	if err := json.Unmarshal([]byte(variationsJSON), &rec.NameVariations); err != nil {
		return nil, fmt.Errorf("decoding name variations of record %d: %w", rec.ID, err)
	}
	if err := json.Unmarshal([]byte(affsJSON), &rec.Affiliations); err != nil {
		return nil, fmt.Errorf("decoding affiliations of record %d: %w", rec.ID, err)
	}
	if lastVerified.Valid && lastVerified.String != "" {
		t, err := time.Parse(timeLayout, lastVerified.String)
		if err != nil {
			return nil, fmt.Errorf("parsing last_verified of record %d: %w", rec.ID, err)
		}
		rec.LastVerified = &t
	}
	var err error
	if rec.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, fmt.Errorf("parsing created_at of record %d: %w", rec.ID, err)
	}
	if rec.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, fmt.Errorf("parsing updated_at of record %d: %w", rec.ID, err)
	}
	return &rec, nil
}

func (s *SQLiteStore) queryOne(ctx context.Context, where string, args ...any) (*types.IdentityRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM identities WHERE `+where+candidateOrderSQL+` LIMIT 1`, args...)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("looking up record: %w", err)
	}
	return rec, nil
}

func (s *SQLiteStore) queryMany(ctx context.Context, query string, args ...any) ([]*types.IdentityRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying identities: %w", err)
	}
	defer rows.Close()

	var out []*types.IdentityRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) Get(ctx context.Context, id int64) (*types.IdentityRecord, error) {
	rec, err := s.queryOne(ctx, `id = ?`, id)
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return rec, err
}

func (s *SQLiteStore) FindByScopusID(ctx context.Context, scopusID string) (*types.IdentityRecord, error) {
	if scopusID == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `scopus_id = ?`, scopusID)
}

func (s *SQLiteStore) FindByORCID(ctx context.Context, orcid string) (*types.IdentityRecord, error) {
	if orcid == "" {
		return nil, ErrNotFound
	}
	return s.queryOne(ctx, `orcid_id = ?`, orcid)
}

func (s *SQLiteStore) FindByNormalizedName(ctx context.Context, name string) ([]*types.IdentityRecord, error) {
	return s.queryMany(ctx,
		`SELECT `+recordColumns+` FROM identities WHERE normalized_name = ?`+candidateOrderSQL, name)
}

func (s *SQLiteStore) FindByNameContaining(ctx context.Context, substr string, limit int) ([]*types.IdentityRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM identities WHERE instr(lower(normalized_name), lower(?)) > 0` + candidateOrderSQL
	args := []any{substr}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	return s.queryMany(ctx, query, args...)
}

func (s *SQLiteStore) Insert(ctx context.Context, rec *types.IdentityRecord) error {
	now := s.now().UTC()
	variations, affs, err := encodeSets(rec)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO identities (normalized_name, name_variations, scopus_id, orcid_id,
			given_name, surname, affiliations, source, confidence_score, lookup_count,
			last_verified, verification_method, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.NormalizedName, variations, rec.ScopusID, rec.ORCID,
		rec.GivenName, rec.Surname, affs, string(rec.Source), rec.ConfidenceScore, rec.LookupCount,
		formatOptionalTime(rec.LastVerified), rec.VerificationMethod, now.Format(timeLayout), now.Format(timeLayout),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("inserting %q: %w", rec.NormalizedName, ErrConflict)
		}
		return fmt.Errorf("inserting %q: %w", rec.NormalizedName, err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading inserted id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	rec.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) Update(ctx context.Context, rec *types.IdentityRecord) error {
	return updateRecord(ctx, s.db, rec, s.now().UTC())
}

// execer is satisfied by *sql.DB and *sql.Tx.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func updateRecord(ctx context.Context, db execer, rec *types.IdentityRecord, now time.Time) error {
	variations, affs, err := encodeSets(rec)
	if err != nil {
		return err
	}

	res, err := db.ExecContext(ctx,
		`UPDATE identities SET normalized_name = ?, name_variations = ?, scopus_id = ?, orcid_id = ?,
			given_name = ?, surname = ?, affiliations = ?, source = ?, confidence_score = ?,
			lookup_count = ?, last_verified = ?, verification_method = ?, updated_at = ?
		 WHERE id = ?`,
		rec.NormalizedName, variations, rec.ScopusID, rec.ORCID,
		rec.GivenName, rec.Surname, affs, string(rec.Source), rec.ConfidenceScore,
		rec.LookupCount, formatOptionalTime(rec.LastVerified), rec.VerificationMethod, now.Format(timeLayout),
		rec.ID,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("updating record %d: %w", rec.ID, ErrConflict)
		}
		return fmt.Errorf("updating record %d: %w", rec.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %d: %w", rec.ID, ErrNotFound)
	}
	rec.UpdatedAt = now
	return nil
}

func (s *SQLiteStore) IncrementLookup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `UPDATE identities SET lookup_count = lookup_count + 1 WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("incrementing lookup count of record %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("record %d: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLiteStore) MergeGroup(ctx context.Context, primary *types.IdentityRecord, remove []int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	// Deletes go first so the primary can take over identifiers held by
	// merged records without tripping the unique indexes.
	for _, id := range remove {
		res, err := tx.ExecContext(ctx, `DELETE FROM identities WHERE id = ?`, id)
		if err != nil {
			return fmt.Errorf("deleting merged record %d: %w", id, err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("merged record %d: %w", id, ErrNotFound)
		}
	}

	if err := updateRecord(ctx, tx, primary, s.now().UTC()); err != nil {
		return err
	}

	return tx.Commit()
}

func (s *SQLiteStore) All(ctx context.Context) ([]*types.IdentityRecord, error) {
	return s.queryMany(ctx, `SELECT `+recordColumns+` FROM identities ORDER BY id`)
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM identities`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting identities: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) Clear(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM identities`); err != nil {
		return fmt.Errorf("clearing identities: %w", err)
	}
	return nil
}

func encodeSets(rec *types.IdentityRecord) (variations, affs string, err error) {
	v, err := json.Marshal(nonNil(rec.NameVariations))
	if err != nil {
		return "", "", fmt.Errorf("encoding name variations: %w", err)
	}
	a, err := json.Marshal(nonNil(rec.Affiliations))
	if err != nil {
		return "", "", fmt.Errorf("encoding affiliations: %w", err)
	}
	return string(v), string(a), nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func formatOptionalTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
