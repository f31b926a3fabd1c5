package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Cursor walks a collection in key order, one record at a time.
//
// A cursor holds no database resources between steps; each Next reads the
// first record with a key greater than the current one. Records added to the
// collection while a cursor is open are visited if their key sorts after the
// cursor's position.
type Cursor struct {
	store   *Store
	def     *collectionDef
	current Record
	deleted bool
}

// OpenCursor positions a cursor on the first record in c. It returns nil,
// nil when the collection is empty.
func (s *Store) OpenCursor(ctx context.Context, c Collection) (*Cursor, error) {
	def, err := lookup(c)
	if err != nil {
		return nil, err
	}

	cur := &Cursor{store: s, def: def}
	query := fmt.Sprintf("SELECT rec_key, op_id, body FROM %s ORDER BY rec_key LIMIT 1", def.table)
	return cur.load(ctx, query)
}

// Key returns the key of the current record.
func (c *Cursor) Key() int64 {
	return c.current.Key
}

// OpID returns the operation id recorded when the current record was written.
func (c *Cursor) OpID() string {
	return c.current.OpID
}

// Value returns the body of the current record.
func (c *Cursor) Value() []byte {
	return c.current.Value
}

// Record returns a copy of the current record.
func (c *Cursor) Record() Record {
	return c.current
}

// Next advances to the following record. It returns nil, nil when the
// collection is exhausted.
func (c *Cursor) Next(ctx context.Context) (*Cursor, error) {
	return c.seek(ctx, c.current.Key)
}

// DeleteCurrent removes the record under the cursor. The cursor stays
// positioned so Next continues from the same place.
func (c *Cursor) DeleteCurrent(ctx context.Context) error {
	if c.deleted {
		return nil
	}
	if err := c.store.Delete(ctx, c.def.name, c.current.Key); err != nil {
		return err
	}
	c.deleted = true
	return nil
}

func (c *Cursor) seek(ctx context.Context, after int64) (*Cursor, error) {
	query := fmt.Sprintf("SELECT rec_key, op_id, body FROM %s WHERE rec_key > ? ORDER BY rec_key LIMIT 1", c.def.table)
	return c.load(ctx, query, after)
}

func (c *Cursor) load(ctx context.Context, query string, args ...any) (*Cursor, error) {
	rec, err := scanRecord(c.store.conn.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to advance cursor on %s: %w", c.def.name, err)
	}

	c.current = *rec
	c.deleted = false
	return c, nil
}
