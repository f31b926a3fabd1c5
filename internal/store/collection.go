package store

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// Collection names a logical collection in the store.
type Collection string

const (
	Restaurants   Collection = "restaurants"
	Reviews       Collection = "reviews"
	ReviewQueue   Collection = "reviewQueue"
	FavoriteQueue Collection = "favoriteQueue"
)

// Index names.
const (
	IndexCuisine      = "cuisine"
	IndexNeighborhood = "neighborhood"
	IndexRestaurant   = "restaurant"

	// IndexTarget indexes favorite-queue entries by restaurant id so pending
	// toggles for one restaurant can be coalesced.
	IndexTarget = "target"
)

type indexDef struct {
	name string
	path string // JSON path into the record body
}

func (ix indexDef) column() string {
	return "ix_" + ix.name
}

type collectionDef struct {
	name    Collection
	table   string
	keyPath string // empty means auto-increment
	indexes []indexDef
}

func (def *collectionDef) index(name string) (indexDef, bool) {
	for _, ix := range def.indexes {
		if ix.name == name {
			return ix, true
		}
	}
	return indexDef{}, false
}

var collections = map[Collection]*collectionDef{
	Restaurants: {
		name:    Restaurants,
		table:   "restaurants",
		keyPath: "id",
		indexes: []indexDef{
			{name: IndexCuisine, path: "cuisine_type"},
			{name: IndexNeighborhood, path: "neighborhood"},
		},
	},
	Reviews: {
		name:    Reviews,
		table:   "reviews",
		keyPath: "id",
		indexes: []indexDef{
			{name: IndexRestaurant, path: "restaurant_id"},
		},
	},
	ReviewQueue: {
		name:  ReviewQueue,
		table: "review_queue",
	},
	FavoriteQueue: {
		name:  FavoriteQueue,
		table: "favorite_queue",
		indexes: []indexDef{
			{name: IndexTarget, path: "id"},
		},
	},
}

func lookup(c Collection) (*collectionDef, error) {
	def, ok := collections[c]
	if !ok {
		return nil, fmt.Errorf("unknown collection %q", c)
	}
	return def, nil
}

// Record is a stored value and its key.
type Record struct {
	Key   int64
	OpID  string
	Value []byte
}

// Put writes value into c. For keyPath collections the key is read from the
// value and an existing record with that key is overwritten; for
// auto-increment collections a new key is assigned. The key is returned.
func (s *Store) Put(ctx context.Context, c Collection, value []byte) (int64, error) {
	def, err := lookup(c)
	if err != nil {
		return 0, err
	}
	return s.put(ctx, s.conn, def, value)
}

// PutAll writes every value into c in a single transaction.
func (s *Store) PutAll(ctx context.Context, c Collection, values [][]byte) error {
	def, err := lookup(c)
	if err != nil {
		return err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, v := range values {
		if _, err := s.put(ctx, tx, def, v); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit %s: %w", c, err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) put(ctx context.Context, ex execer, def *collectionDef, value []byte) (int64, error) {
	if !gjson.ValidBytes(value) {
		return 0, fmt.Errorf("invalid JSON record for %s", def.name)
	}

	cols := []string{}
	args := []any{}

	var key int64
	if def.keyPath != "" {
		k := gjson.GetBytes(value, def.keyPath)
		if k.Type != gjson.Number || k.Num != math.Trunc(k.Num) {
			return 0, fmt.Errorf("record for %s has no integer %q key", def.name, def.keyPath)
		}
		key = k.Int()
		cols = append(cols, "rec_key")
		args = append(args, key)
	}

	for _, ix := range def.indexes {
		cols = append(cols, ix.column())
		args = append(args, indexValue(gjson.GetBytes(value, ix.path)))
	}

	cols = append(cols, "op_id", "body", "stored_at")
	args = append(args, uuid.NewString(), string(value), time.Now().UTC().Format(time.RFC3339Nano))

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", ")
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", def.table, strings.Join(cols, ", "), placeholders)

	if def.keyPath != "" {
		var sets []string
		for _, col := range cols[1:] {
			sets = append(sets, fmt.Sprintf("%s = excluded.%s", col, col))
		}
		query += " ON CONFLICT(rec_key) DO UPDATE SET " + strings.Join(sets, ", ")
	}

	res, err := ex.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to put into %s: %w", def.name, err)
	}

	if def.keyPath == "" {
		key, err = res.LastInsertId()
		if err != nil {
			return 0, fmt.Errorf("failed to read assigned key for %s: %w", def.name, err)
		}
	}

	return key, nil
}

// indexValue maps a JSON value to the value stored in an index column.
// Integral numbers are stored as integers so that lookups by int match.
func indexValue(r gjson.Result) any {
	switch r.Type {
	case gjson.String:
		return r.Str
	case gjson.Number:
		if r.Num == math.Trunc(r.Num) {
			return r.Int()
		}
		return r.Num
	case gjson.True:
		return 1
	case gjson.False:
		return 0
	default:
		return nil
	}
}

// Get returns the record stored under key, or nil if there is none.
func (s *Store) Get(ctx context.Context, c Collection, key int64) (*Record, error) {
	def, err := lookup(c)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT rec_key, op_id, body FROM %s WHERE rec_key = ?", def.table)
	rec, err := scanRecord(s.conn.QueryRowContext(ctx, query, key))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s/%d: %w", c, key, err)
	}
	return rec, nil
}

// GetAll returns every record in c in key order.
func (s *Store) GetAll(ctx context.Context, c Collection) ([]Record, error) {
	def, err := lookup(c)
	if err != nil {
		return nil, err
	}

	query := fmt.Sprintf("SELECT rec_key, op_id, body FROM %s ORDER BY rec_key", def.table)
	rows, err := s.conn.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// GetAllByIndex returns the records in c whose index value equals key.
func (s *Store) GetAllByIndex(ctx context.Context, c Collection, index string, key any) ([]Record, error) {
	def, err := lookup(c)
	if err != nil {
		return nil, err
	}
	ix, ok := def.index(index)
	if !ok {
		return nil, fmt.Errorf("collection %s has no index %q", c, index)
	}

	query := fmt.Sprintf("SELECT rec_key, op_id, body FROM %s WHERE %s = ? ORDER BY rec_key", def.table, ix.column())
	rows, err := s.conn.QueryContext(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s by %s: %w", c, index, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Delete removes the record under key. Deleting a missing key is not an error.
func (s *Store) Delete(ctx context.Context, c Collection, key int64) error {
	def, err := lookup(c)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE rec_key = ?", def.table)
	if _, err := s.conn.ExecContext(ctx, query, key); err != nil {
		return fmt.Errorf("failed to delete %s/%d: %w", c, key, err)
	}
	return nil
}

// DeleteByIndex removes every record in c whose index value equals key and
// returns how many were removed.
func (s *Store) DeleteByIndex(ctx context.Context, c Collection, index string, key any) (int, error) {
	def, ix, err := lookupIndex(c, index)
	if err != nil {
		return 0, err
	}
	return deleteByIndex(ctx, s.conn, def, ix, key)
}

// ReplaceByIndex removes every record in c whose index value equals key and
// writes value, in one transaction. If the write fails nothing is removed.
// It returns the new record's key and how many records were replaced.
func (s *Store) ReplaceByIndex(ctx context.Context, c Collection, index string, key any, value []byte) (int64, int, error) {
	def, ix, err := lookupIndex(c, index)
	if err != nil {
		return 0, 0, err
	}

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	n, err := deleteByIndex(ctx, tx, def, ix, key)
	if err != nil {
		return 0, 0, err
	}
	newKey, err := s.put(ctx, tx, def, value)
	if err != nil {
		return 0, 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, 0, fmt.Errorf("failed to commit %s: %w", c, err)
	}
	return newKey, n, nil
}

func lookupIndex(c Collection, index string) (*collectionDef, indexDef, error) {
	def, err := lookup(c)
	if err != nil {
		return nil, indexDef{}, err
	}
	ix, ok := def.index(index)
	if !ok {
		return nil, indexDef{}, fmt.Errorf("collection %s has no index %q", c, index)
	}
	return def, ix, nil
}

func deleteByIndex(ctx context.Context, ex execer, def *collectionDef, ix indexDef, key any) (int, error) {
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", def.table, ix.column())
	res, err := ex.ExecContext(ctx, query, key)
	if err != nil {
		return 0, fmt.Errorf("failed to delete from %s by %s: %w", def.name, ix.name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count deleted rows: %w", err)
	}
	return int(n), nil
}

// Count returns the number of records in c.
func (s *Store) Count(ctx context.Context, c Collection) (int, error) {
	def, err := lookup(c)
	if err != nil {
		return 0, err
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s", def.table)
	if err := s.conn.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c, err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var rec Record
	var opID sql.NullString
	var body string
	if err := row.Scan(&rec.Key, &opID, &body); err != nil {
		return nil, err
	}
	rec.OpID = opID.String
	rec.Value = []byte(body)
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return records, nil
}
