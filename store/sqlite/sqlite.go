/*
Package sqlite provides a SQLite-backed implementation of the ledger stores.

PURPOSE:
  Persists fulfillment records as JSON documents with the fields the ledger
  queries by (pupil, year, term) pulled out into indexed columns. Catalog
  items, pupils and academic years live alongside so one database file
  backs a whole deployment.

INTERFACES IMPLEMENTED:
  ledger.RecordStore:       Fulfillment record documents
  ledger.PupilHistoryStore: All-years lookups for one-time requirements
  ledger.CatalogProvider:   Requirement catalog
  ledger.ContextProvider:   Pupils and academic years

KEY TABLES:
  fulfillment_records: One document per record, version column for CAS
  record_requirements: (record, requirement) index rows, one per id in the
                       record's selector; duplicate detection runs here
  catalog_items:       Requirement items as JSON, gender pulled out
  pupils:              Pupil context
  academic_years:      Years with their terms as JSON

VERSIONING:
  Update is a compare-and-swap on the version column:
    UPDATE ... SET version = version + 1 WHERE id = ? AND version = ?
  Zero rows affected means either the record is gone (ErrRecordNotFound)
  or another writer got there first (ErrConcurrentModification).

CONCURRENCY:
  Uses sync.RWMutex for thread-safety. SQLite is opened in WAL mode so
  readers don't block the single writer.

USAGE:
  store, err := sqlite.New("./data/ledger.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  svc := ledger.NewService(store, store)

MIGRATION:
  Schema is auto-migrated on New().

SEE ALSO:
  - ledger/store.go: Interface definitions
  - ledger/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/warp/requirement-ledger/ledger"
)

// Store implements all ledger storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to ":memory:" is its own database.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection, for health endpoints.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Fulfillment records (one JSON document each)
	CREATE TABLE IF NOT EXISTS fulfillment_records (
		id TEXT PRIMARY KEY,
		pupil_id TEXT NOT NULL,
		academic_year_id TEXT NOT NULL,
		term_id TEXT NOT NULL,
		requirement_key TEXT NOT NULL,
		selection_mode TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 0,
		document_json TEXT NOT NULL,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_records_pupil_year_term
		ON fulfillment_records(pupil_id, academic_year_id, term_id);
	CREATE INDEX IF NOT EXISTS idx_records_pupil_created
		ON fulfillment_records(pupil_id, created_at);

	-- One row per requirement id referenced by a record
	CREATE TABLE IF NOT EXISTS record_requirements (
		record_id TEXT NOT NULL REFERENCES fulfillment_records(id) ON DELETE CASCADE,
		requirement_id TEXT NOT NULL,
		pupil_id TEXT NOT NULL,
		academic_year_id TEXT NOT NULL,
		term_id TEXT NOT NULL,
		PRIMARY KEY (record_id, requirement_id)
	);

	CREATE INDEX IF NOT EXISTS idx_record_requirements_scope
		ON record_requirements(pupil_id, academic_year_id, requirement_id, term_id);

	-- Requirement catalog
	CREATE TABLE IF NOT EXISTS catalog_items (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		frequency TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT 'all',
		item_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_catalog_gender
		ON catalog_items(gender);

	-- Pupils
	CREATE TABLE IF NOT EXISTS pupils (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		gender TEXT NOT NULL DEFAULT '',
		class_id TEXT NOT NULL DEFAULT '',
		section TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	-- Academic years
	CREATE TABLE IF NOT EXISTS academic_years (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		terms_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// RECORD STORE (ledger.RecordStore interface)
// =============================================================================

const recordColumns = `id, version, document_json`

func (s *Store) Get(ctx context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID, termID ledger.TermID) ([]ledger.FulfillmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM fulfillment_records
		 WHERE pupil_id = ? AND academic_year_id = ? AND term_id = ?
		 ORDER BY created_at, id`,
		pupilID, yearID, termID,
	)
}

func (s *Store) GetByYear(ctx context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID) ([]ledger.FulfillmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM fulfillment_records
		 WHERE pupil_id = ? AND academic_year_id = ?
		 ORDER BY created_at, id`,
		pupilID, yearID,
	)
}

func (s *Store) GetByPupil(ctx context.Context, pupilID ledger.PupilID) ([]ledger.FulfillmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM fulfillment_records
		 WHERE pupil_id = ?
		 ORDER BY created_at, id`,
		pupilID,
	)
}

func (s *Store) GetByID(ctx context.Context, id ledger.RecordID) (*ledger.FulfillmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.queryRecords(ctx,
		`SELECT `+recordColumns+` FROM fulfillment_records WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
	}
	return &records[0], nil
}

// Create inserts the document and its requirement index rows in one transaction.
func (s *Store) Create(ctx context.Context, rec ledger.FulfillmentRecord) (ledger.RecordID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = ledger.RecordID(uuid.NewString())
	}
	if rec.Requirement == nil {
		return "", fmt.Errorf("%w: record %s has no requirement", ledger.ErrInvalidSelector, rec.ID)
	}
	doc, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("failed to encode record: %w", err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO fulfillment_records
			(id, pupil_id, academic_year_id, term_id, requirement_key, selection_mode,
			 version, document_json, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			rec.ID, rec.PupilID, rec.AcademicYearID, rec.TermID,
			rec.Requirement.Key(), rec.SelectionMode(),
			rec.Version, string(doc),
			rec.CreatedAt.UTC().Format(time.RFC3339Nano),
			rec.UpdatedAt.UTC().Format(time.RFC3339Nano),
		)
		if err != nil {
			if isUniqueConstraintError(err) {
				return fmt.Errorf("record %s already exists", rec.ID)
			}
			return fmt.Errorf("failed to insert record: %w", err)
		}
		for _, reqID := range rec.RequirementIDs() {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO record_requirements
				(record_id, requirement_id, pupil_id, academic_year_id, term_id)
				VALUES (?, ?, ?, ?, ?)`,
				rec.ID, reqID, rec.PupilID, rec.AcademicYearID, rec.TermID,
			); err != nil {
				return fmt.Errorf("failed to index requirement %s: %w", reqID, err)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return rec.ID, nil
}

// Update replaces the document if the stored version equals rec.Version.
// The requirement set of a record never changes, so index rows are untouched.
func (s *Store) Update(ctx context.Context, rec ledger.FulfillmentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE fulfillment_records
		SET document_json = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		string(doc), rec.UpdatedAt.UTC().Format(time.RFC3339Nano), rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var stored int
	err = s.db.QueryRowContext(ctx, "SELECT version FROM fulfillment_records WHERE id = ?", rec.ID).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, rec.ID)
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: record %s at version %d, update from %d",
		ledger.ErrConcurrentModification, rec.ID, stored, rec.Version)
}

func (s *Store) Delete(ctx context.Context, id ledger.RecordID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DELETE FROM record_requirements WHERE record_id = ?", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM fulfillment_records WHERE id = ?", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ledger.ErrRecordNotFound, id)
		}
		return nil
	})
}

// FindDuplicates returns the pupil's records in the year that share a
// requirement id with another record in the same frequency scope. Ids
// missing from the catalog are treated as termly.
func (s *Store) FindDuplicates(ctx context.Context, pupilID ledger.PupilID, yearID ledger.AcademicYearID) ([]ledger.FulfillmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryRecords(ctx, `
		SELECT `+recordColumns+` FROM fulfillment_records
		WHERE id IN (
			SELECT rr.record_id
			FROM record_requirements rr
			LEFT JOIN catalog_items ci ON ci.id = rr.requirement_id
			WHERE rr.pupil_id = ? AND rr.academic_year_id = ?
			AND EXISTS (
				SELECT 1 FROM record_requirements o
				WHERE o.pupil_id = rr.pupil_id
				AND o.academic_year_id = rr.academic_year_id
				AND o.requirement_id = rr.requirement_id
				AND o.record_id <> rr.record_id
				AND (COALESCE(ci.frequency, 'termly') IN ('yearly', 'one-time') OR o.term_id = rr.term_id)
			)
		)
		ORDER BY created_at, id`,
		pupilID, yearID,
	)
}

func (s *Store) queryRecords(ctx context.Context, query string, args ...any) ([]ledger.FulfillmentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []ledger.FulfillmentRecord
	for rows.Next() {
		var (
			id      string
			version int
			doc     string
		)
		if err := rows.Scan(&id, &version, &doc); err != nil {
			return nil, err
		}
		var rec ledger.FulfillmentRecord
		if err := json.Unmarshal([]byte(doc), &rec); err != nil {
			return nil, fmt.Errorf("failed to decode record %s: %w", id, err)
		}
		rec.Version = version
		records = append(records, rec)
	}
	return records, rows.Err()
}

// withTx runs fn in a database transaction. Callers hold s.mu.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// =============================================================================
// CATALOG PROVIDER (ledger.CatalogProvider interface)
// =============================================================================

// SaveItem inserts a catalog item. An existing id is never overwritten.
func (s *Store) SaveItem(ctx context.Context, item ledger.RequirementItem) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if item.CreatedAt.IsZero() {
		item.CreatedAt = time.Now().UTC()
	}
	gender := item.Gender
	if gender == "" {
		gender = ledger.GenderAll
	}
	doc, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("failed to encode item: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO catalog_items (id, name, frequency, gender, item_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		item.ID, item.Name, item.Frequency, gender, string(doc),
		item.CreatedAt.UTC().Format(time.RFC3339),
	)
	if isUniqueConstraintError(err) {
		return fmt.Errorf("%w: %s", ledger.ErrRequirementExists, item.ID)
	}
	return err
}

func (s *Store) ListAll(ctx context.Context) ([]ledger.RequirementItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryItems(ctx, "SELECT item_json FROM catalog_items ORDER BY id")
}

// ListByEligibility narrows by gender in SQL and applies class and section
// scope on the decoded items.
func (s *Store) ListByEligibility(ctx context.Context, filter ledger.EligibilityFilter) ([]ledger.RequirementItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	items, err := s.queryItems(ctx,
		"SELECT item_json FROM catalog_items WHERE gender IN ('all', '', ?) ORDER BY id",
		string(filter.Gender),
	)
	if err != nil {
		return nil, err
	}
	return ledger.FilterItems(items, filter), nil
}

func (s *Store) queryItems(ctx context.Context, query string, args ...any) ([]ledger.RequirementItem, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ledger.RequirementItem
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, err
		}
		var it ledger.RequirementItem
		if err := json.Unmarshal([]byte(doc), &it); err != nil {
			return nil, fmt.Errorf("failed to decode catalog item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// =============================================================================
// CONTEXT PROVIDER (ledger.ContextProvider interface)
// =============================================================================

// SavePupil inserts or updates a pupil.
func (s *Store) SavePupil(ctx context.Context, p ledger.Pupil) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pupils (id, name, gender, class_id, section, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			gender = excluded.gender,
			class_id = excluded.class_id,
			section = excluded.section`,
		p.ID, p.Name, p.Gender, p.ClassID, p.Section,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetPupil(ctx context.Context, id ledger.PupilID) (*ledger.Pupil, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var p ledger.Pupil
	err := s.db.QueryRowContext(ctx,
		"SELECT id, name, gender, class_id, section FROM pupils WHERE id = ?", id,
	).Scan(&p.ID, &p.Name, &p.Gender, &p.ClassID, &p.Section)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ledger.ErrPupilNotFound, id)
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ListPupils returns all pupils ordered by name.
func (s *Store) ListPupils(ctx context.Context) ([]ledger.Pupil, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, gender, class_id, section FROM pupils ORDER BY name, id")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pupils []ledger.Pupil
	for rows.Next() {
		var p ledger.Pupil
		if err := rows.Scan(&p.ID, &p.Name, &p.Gender, &p.ClassID, &p.Section); err != nil {
			return nil, err
		}
		pupils = append(pupils, p)
	}
	return pupils, rows.Err()
}

// SaveAcademicYear inserts or replaces a year and its terms.
func (s *Store) SaveAcademicYear(ctx context.Context, y ledger.AcademicYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	terms, err := json.Marshal(y.Terms)
	if err != nil {
		return fmt.Errorf("failed to encode terms: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO academic_years (id, name, terms_json, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			terms_json = excluded.terms_json`,
		y.ID, y.Name, string(terms), time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetAcademicYear(ctx context.Context, id ledger.AcademicYearID) (*ledger.AcademicYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	years, err := s.queryYears(ctx, "SELECT id, name, terms_json FROM academic_years WHERE id = ?", id)
	if err != nil {
		return nil, err
	}
	if len(years) == 0 {
		return nil, fmt.Errorf("%w: %s", ledger.ErrAcademicYearNotFound, id)
	}
	return &years[0], nil
}

func (s *Store) ListAcademicYears(ctx context.Context) ([]ledger.AcademicYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryYears(ctx, "SELECT id, name, terms_json FROM academic_years ORDER BY id")
}

func (s *Store) queryYears(ctx context.Context, query string, args ...any) ([]ledger.AcademicYear, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var years []ledger.AcademicYear
	for rows.Next() {
		var (
			y     ledger.AcademicYear
			terms string
		)
		if err := rows.Scan(&y.ID, &y.Name, &terms); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(terms), &y.Terms); err != nil {
			return nil, fmt.Errorf("failed to decode terms of %s: %w", y.ID, err)
		}
		years = append(years, y)
	}
	return years, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{"record_requirements", "fulfillment_records", "catalog_items", "pupils", "academic_years"}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

// CountRecords returns the number of stored records (for admin view).
func (s *Store) CountRecords(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fulfillment_records").Scan(&n)
	return n, err
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
