// internal/store/store.go
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/solatis/dupmatch/internal/core/db"
	"github.com/solatis/dupmatch/internal/types"
)

/*
 * Record store over SQLite or PostgreSQL.
 *
 * Serves the read side of a scan (categories, collections, group record ids,
 * full records) and the write side of applying actions (remove, suspend,
 * tag, set field). Every statement is a named query from
 * internal/core/db/queries; multi-statement writes run in one transaction.
 *
 * Error conventions:
 *   - unknown record id        -> types.ErrRecordNotFound
 *   - unknown collection/category name -> types.ErrUnknownSource
 *   - anything else            -> wrapped driver error
 */

// Store is the record store. Safe for concurrent use.
type Store struct {
	conn *sqlx.DB
	q    *db.Queries
	now  func() time.Time
}

// Open connects to the store at url. The schema must already be migrated.
func Open(ctx context.Context, url string) (*Store, error) {
	conn, err := db.OpenContext(ctx, url)
	if err != nil {
		return nil, err
	}
	s, err := New(conn)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

// New wraps an open connection.
func New(conn *sqlx.DB) (*Store, error) {
	q, err := db.LoadQueries(conn)
	if err != nil {
		return nil, err
	}
	return &Store{conn: conn, q: q, now: func() time.Time { return time.Now().UTC() }}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	return s.conn.Close()
}

// DB exposes the connection for migrations.
func (s *Store) DB() *sqlx.DB {
	return s.conn
}

type categoryRow struct {
	CategoryID string `db:"category_id"`
	Name       string `db:"name"`
}

type categoryFieldRow struct {
	CategoryID string `db:"category_id"`
	Ordinal    int    `db:"ordinal"`
	Name       string `db:"name"`
}

type collectionRow struct {
	CollectionID string         `db:"collection_id"`
	Name         string         `db:"name"`
	ParentID     sql.NullString `db:"parent_id"`
}

type recordRow struct {
	RecordID     string         `db:"record_id"`
	CategoryID   string         `db:"category_id"`
	CollectionID sql.NullString `db:"collection_id"`
	Suspended    bool           `db:"suspended"`
}

type fieldRow struct {
	Name  string `db:"name"`
	Value string `db:"value"`
}

// CategoryCount is the number of records of one category.
type CategoryCount struct {
	Name    string `db:"name"`
	Records int64  `db:"records"`
}

// Categories lists every category with its ordered field schema.
func (s *Store) Categories(ctx context.Context) ([]types.Category, error) {
	var rows []categoryRow
	if err := s.q.Select(ctx, "list-categories", &rows); err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	var fields []categoryFieldRow
	if err := s.q.Select(ctx, "list-category-fields", &fields); err != nil {
		return nil, fmt.Errorf("failed to list category fields: %w", err)
	}

	byCategory := make(map[string][]string, len(rows))
	for _, f := range fields {
		byCategory[f.CategoryID] = append(byCategory[f.CategoryID], f.Name)
	}

	categories := make([]types.Category, len(rows))
	for i, r := range rows {
		categories[i] = types.Category{
			ID:     types.CategoryID(r.CategoryID),
			Name:   r.Name,
			Fields: byCategory[r.CategoryID],
		}
	}
	return categories, nil
}

// CategoryByName returns one category with its fields.
func (s *Store) CategoryByName(ctx context.Context, name string) (types.Category, error) {
	categories, err := s.Categories(ctx)
	if err != nil {
		return types.Category{}, err
	}
	for _, c := range categories {
		if c.Name == name {
			return c, nil
		}
	}
	return types.Category{}, fmt.Errorf("%w: category %q", types.ErrUnknownSource, name)
}

// CategoryCounts returns the number of records per category.
func (s *Store) CategoryCounts(ctx context.Context) ([]CategoryCount, error) {
	var counts []CategoryCount
	if err := s.q.Select(ctx, "count-category-records", &counts); err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	return counts, nil
}

// Collections lists every collection with its parent link.
func (s *Store) Collections(ctx context.Context) ([]types.Collection, error) {
	var rows []collectionRow
	if err := s.q.Select(ctx, "list-collections", &rows); err != nil {
		return nil, fmt.Errorf("failed to list collections: %w", err)
	}
	collections := make([]types.Collection, len(rows))
	for i, r := range rows {
		collections[i] = types.Collection{
			ID:     types.CollectionID(r.CollectionID),
			Name:   r.Name,
			Parent: types.CollectionID(r.ParentID.String),
		}
	}
	return collections, nil
}

// CollectionRecordIDs returns the records of a collection and of every
// collection below it, oldest first.
func (s *Store) CollectionRecordIDs(ctx context.Context, name string) ([]types.RecordID, error) {
	var row collectionRow
	if err := s.q.Get(ctx, "get-collection-by-name", &row, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: collection %q", types.ErrUnknownSource, name)
		}
		return nil, fmt.Errorf("failed to get collection %q: %w", name, err)
	}
	return s.recordIDs(ctx, "list-collection-record-ids", name)
}

// CategoryRecordIDs returns every record of a category, oldest first.
func (s *Store) CategoryRecordIDs(ctx context.Context, name string) ([]types.RecordID, error) {
	var row categoryRow
	if err := s.q.Get(ctx, "get-category-by-name", &row, name); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: category %q", types.ErrUnknownSource, name)
		}
		return nil, fmt.Errorf("failed to get category %q: %w", name, err)
	}
	return s.recordIDs(ctx, "list-category-record-ids", name)
}

// TagRecordIDs returns the records carrying every one of tags.
func (s *Store) TagRecordIDs(ctx context.Context, tags []string) ([]types.RecordID, error) {
	unique := normalizeTags(tags)
	if len(unique) == 0 {
		return nil, fmt.Errorf("%w: no tags given", types.ErrUnknownSource)
	}

	var ids []string
	if err := s.q.SelectIn(ctx, "list-tag-record-ids", &ids, unique, len(unique)); err != nil {
		return nil, fmt.Errorf("failed to list records tagged %v: %w", unique, err)
	}
	return toRecordIDs(ids), nil
}

func (s *Store) recordIDs(ctx context.Context, query, name string) ([]types.RecordID, error) {
	var ids []string
	if err := s.q.Select(ctx, query, &ids, name); err != nil {
		return nil, fmt.Errorf("failed to list records of %q: %w", name, err)
	}
	return toRecordIDs(ids), nil
}

// GetRecord loads a full record: fields, tags and owning category.
func (s *Store) GetRecord(ctx context.Context, id types.RecordID) (types.Record, error) {
	var row recordRow
	if err := s.q.Get(ctx, "get-record", &row, string(id)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Record{}, fmt.Errorf("%w: %s", types.ErrRecordNotFound, id)
		}
		return types.Record{}, fmt.Errorf("failed to get record %s: %w", id, err)
	}

	var fields []fieldRow
	if err := s.q.Select(ctx, "list-record-fields", &fields, string(id)); err != nil {
		return types.Record{}, fmt.Errorf("failed to get fields of record %s: %w", id, err)
	}
	var tags []string
	if err := s.q.Select(ctx, "list-record-tags", &tags, string(id)); err != nil {
		return types.Record{}, fmt.Errorf("failed to get tags of record %s: %w", id, err)
	}

	rec := types.Record{
		ID:         types.RecordID(row.RecordID),
		Category:   types.CategoryID(row.CategoryID),
		Collection: types.CollectionID(row.CollectionID.String),
		Fields:     make(map[string]string, len(fields)),
		Tags:       tags,
		Suspended:  row.Suspended,
	}
	for _, f := range fields {
		rec.Fields[f.Name] = f.Value
	}
	return rec, nil
}

// Remove deletes a record with its fields and tags.
func (s *Store) Remove(ctx context.Context, id types.RecordID) error {
	return s.q.InTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "delete-record-fields", string(id)); err != nil {
			return fmt.Errorf("failed to delete fields of record %s: %w", id, err)
		}
		if _, err := tx.Exec(ctx, "delete-record-tags", string(id)); err != nil {
			return fmt.Errorf("failed to delete tags of record %s: %w", id, err)
		}
		res, err := tx.Exec(ctx, "delete-record", string(id))
		if err != nil {
			return fmt.Errorf("failed to delete record %s: %w", id, err)
		}
		return expectOne(res, id)
	})
}

// SetSuspended suspends or unsuspends a record.
func (s *Store) SetSuspended(ctx context.Context, id types.RecordID, suspended bool) error {
	res, err := s.q.Exec(ctx, "set-record-suspended", suspended, string(id))
	if err != nil {
		return fmt.Errorf("failed to update record %s: %w", id, err)
	}
	return expectOne(res, id)
}

// AddTag adds tag to a record; adding a tag twice is a no-op.
func (s *Store) AddTag(ctx context.Context, id types.RecordID, tag string) error {
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return nil
	}
	if _, err := s.q.Exec(ctx, "insert-record-tag", string(id), tag); err != nil {
		return fmt.Errorf("failed to tag record %s: %w", id, err)
	}
	return nil
}

// SetField sets one field value, creating the field if needed.
func (s *Store) SetField(ctx context.Context, id types.RecordID, name, value string) error {
	if _, err := s.q.Exec(ctx, "upsert-record-field", string(id), name, value); err != nil {
		return fmt.Errorf("failed to set field %s of record %s: %w", name, id, err)
	}
	return nil
}

// CreateCategory creates a category with an ordered field schema.
func (s *Store) CreateCategory(ctx context.Context, name string, fields []string) (types.Category, error) {
	c := types.Category{ID: types.NewCategoryID(), Name: name, Fields: fields}
	err := s.q.InTx(ctx, func(tx *db.Queries) error {
		if _, err := tx.Exec(ctx, "insert-category", string(c.ID), name, s.now()); err != nil {
			return fmt.Errorf("failed to create category %q: %w", name, err)
		}
		for i, f := range fields {
			if _, err := tx.Exec(ctx, "insert-category-field", string(c.ID), i, f); err != nil {
				return fmt.Errorf("failed to add field %q to category %q: %w", f, name, err)
			}
		}
		return nil
	})
	if err != nil {
		return types.Category{}, err
	}
	return c, nil
}

// CreateCollection creates a collection below parent, or at the top when
// parent is empty.
func (s *Store) CreateCollection(ctx context.Context, name string, parent types.CollectionID) (types.Collection, error) {
	c := types.Collection{ID: types.NewCollectionID(), Name: name, Parent: parent}
	if _, err := s.q.Exec(ctx, "insert-collection", string(c.ID), name, nullable(string(parent)), s.now()); err != nil {
		return types.Collection{}, fmt.Errorf("failed to create collection %q: %w", name, err)
	}
	return c, nil
}

// CreateRecord stores a record with its fields and tags. An empty ID is
// assigned a new one.
func (s *Store) CreateRecord(ctx context.Context, rec types.Record) (types.Record, error) {
	if rec.ID == "" {
		rec.ID = types.NewRecordID()
	}
	err := s.q.InTx(ctx, func(tx *db.Queries) error {
		_, err := tx.Exec(ctx, "insert-record",
			string(rec.ID), string(rec.Category), nullable(string(rec.Collection)), rec.Suspended, s.now())
		if err != nil {
			return fmt.Errorf("failed to create record %s: %w", rec.ID, err)
		}

		names := make([]string, 0, len(rec.Fields))
		for name := range rec.Fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if _, err := tx.Exec(ctx, "upsert-record-field", string(rec.ID), name, rec.Fields[name]); err != nil {
				return fmt.Errorf("failed to set field %s of record %s: %w", name, rec.ID, err)
			}
		}

		for _, tag := range normalizeTags(rec.Tags) {
			if _, err := tx.Exec(ctx, "insert-record-tag", string(rec.ID), tag); err != nil {
				return fmt.Errorf("failed to tag record %s: %w", rec.ID, err)
			}
		}
		return nil
	})
	if err != nil {
		return types.Record{}, err
	}
	return rec, nil
}

func expectOne(res sql.Result, id types.RecordID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", types.ErrRecordNotFound, id)
	}
	return nil
}

// normalizeTags trims, drops empty and deduplicates, keeping first order.
func normalizeTags(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func toRecordIDs(ids []string) []types.RecordID {
	out := make([]types.RecordID, len(ids))
	for i, id := range ids {
		out[i] = types.RecordID(id)
	}
	return out
}
