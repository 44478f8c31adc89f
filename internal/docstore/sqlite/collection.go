package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/cards/internal/docstore"
)

// collection is one table of JSON documents.
type collection struct {
	conn  *sql.DB
	table string
}

// querier is the part of *sql.DB and *sql.Tx the lookups need, so the same
// code runs inside and outside a transaction.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// InsertOne stores a new document.
//
// A second document with the same _id, or the same value under a
// unique-indexed field (users.email), fails with docstore.ErrDuplicateKey.
func (c *collection) InsertOne(ctx context.Context, doc any) error {
	if err := c.checkTable(); err != nil {
		return err
	}

	id, fields, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	text, err := encodeJSON(fields)
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s document: %w", c.table, err)
	}

	query := fmt.Sprintf("INSERT INTO %s (id, doc) VALUES (?, ?)", c.table)
	if _, err := c.conn.ExecContext(ctx, query, id, string(text)); err != nil {
		return c.wrap("inserting", err)
	}
	return nil
}

// Find decodes every match, in insertion order, into out (a *[]T).
// No match leaves out as an empty, non-nil slice.
func (c *collection) Find(ctx context.Context, filter docstore.Filter, out any) error {
	if err := c.checkTable(); err != nil {
		return err
	}

	slice := reflect.ValueOf(out)
	if slice.Kind() != reflect.Pointer || slice.Elem().Kind() != reflect.Slice {
		return fmt.Errorf("sqlite: Find needs a pointer to a slice, got %T", out)
	}
	slice = slice.Elem()
	elemType := slice.Type().Elem()

	where, args, err := compileFilter(filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT doc FROM %s WHERE %s ORDER BY rowid", c.table, where)
	rows, err := c.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return c.wrap("querying", err)
	}
	defer rows.Close()

	result := reflect.MakeSlice(slice.Type(), 0, 0)
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return c.wrap("scanning", err)
		}
		elem := reflect.New(elemType)
		if err := unmarshalDocument([]byte(text), elem.Interface()); err != nil {
			return err
		}
		result = reflect.Append(result, elem.Elem())
	}
	if err := rows.Err(); err != nil {
		return c.wrap("iterating", err)
	}

	slice.Set(result)
	return nil
}

// FindByID decodes the document with the given _id.
func (c *collection) FindByID(ctx context.Context, id docstore.ID, out any) error {
	return c.FindOne(ctx, docstore.Filter{"_id": id}, out)
}

// FindOne decodes the first match.
func (c *collection) FindOne(ctx context.Context, filter docstore.Filter, out any) error {
	if err := c.checkTable(); err != nil {
		return err
	}

	_, text, err := c.first(ctx, c.conn, filter)
	if err != nil {
		return err
	}
	return unmarshalDocument(text, out)
}

// FindOneAndUpdate applies update to the first match and decodes the result.
// An empty update is a plain FindOne.
//
// READ-MODIFY-WRITE IN A TRANSACTION:
// SQLite has no $set/$push/$pull, so the document is read, changed in Go and
// written back. The transaction makes that atomic: nobody can slip a write in
// between our SELECT and our UPDATE.
func (c *collection) FindOneAndUpdate(ctx context.Context, filter docstore.Filter, update docstore.Update, out any) error {
	if err := c.checkTable(); err != nil {
		return err
	}
	if update.IsZero() {
		return c.FindOne(ctx, filter, out)
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.wrap("beginning transaction", err)
	}
	// Rollback after Commit is a no-op, so this is safe on every path.
	defer tx.Rollback()

	id, text, err := c.first(ctx, tx, filter)
	if err != nil {
		return err
	}

	fields, err := decodeDocument(text)
	if err != nil {
		return err
	}
	if err := applyUpdate(fields, update); err != nil {
		return err
	}
	updated, err := encodeJSON(fields)
	if err != nil {
		return fmt.Errorf("sqlite: encoding %s document: %w", c.table, err)
	}

	query := fmt.Sprintf("UPDATE %s SET doc = ? WHERE id = ?", c.table)
	if _, err := tx.ExecContext(ctx, query, string(updated), id); err != nil {
		return c.wrap("updating", err)
	}
	if err := tx.Commit(); err != nil {
		return c.wrap("committing", err)
	}

	return unmarshalDocument(updated, out)
}

// FindOneAndDelete removes the first match and decodes what was removed.
func (c *collection) FindOneAndDelete(ctx context.Context, filter docstore.Filter, out any) error {
	if err := c.checkTable(); err != nil {
		return err
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return c.wrap("beginning transaction", err)
	}
	defer tx.Rollback()

	id, text, err := c.first(ctx, tx, filter)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", c.table)
	if _, err := tx.ExecContext(ctx, query, id); err != nil {
		return c.wrap("deleting", err)
	}
	if err := tx.Commit(); err != nil {
		return c.wrap("committing", err)
	}

	return unmarshalDocument(text, out)
}

// first returns the id and raw JSON of the earliest inserted match.
func (c *collection) first(ctx context.Context, q querier, filter docstore.Filter) (string, []byte, error) {
	where, args, err := compileFilter(filter)
	if err != nil {
		return "", nil, err
	}

	query := fmt.Sprintf("SELECT id, doc FROM %s WHERE %s ORDER BY rowid LIMIT 1", c.table, where)

	var id, text string
	err = q.QueryRowContext(ctx, query, args...).Scan(&id, &text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, docstore.ErrNoDocuments
	}
	if err != nil {
		return "", nil, c.wrap("querying", err)
	}
	return id, []byte(text), nil
}

func (c *collection) checkTable() error {
	if !identifier.MatchString(c.table) {
		return fmt.Errorf("sqlite: invalid collection name %q", c.table)
	}
	return nil
}

// wrap adds context to a driver error and maps unique constraint violations
// to docstore.ErrDuplicateKey.
func (c *collection) wrap(op string, err error) error {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("sqlite: %s %s: %w", op, c.table, docstore.ErrDuplicateKey)
		}
	}
	return fmt.Errorf("sqlite: %s %s: %w", op, c.table, err)
}

// compileFilter turns equality predicates into a WHERE clause.
//
//	{"_id": id, "_creator": uid}
//	→ id = ? AND doc -> '$._creator' = json(?)
//
// Keys are sorted so the same filter always produces the same SQL.
// Field names are checked against identifier before they are inlined into
// the JSON path; values are always bound parameters.
func compileFilter(filter docstore.Filter) (string, []any, error) {
	if len(filter) == 0 {
		return "1 = 1", nil, nil
	}

	keys := make([]string, 0, len(filter))
	for k := range filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))

	for _, key := range keys {
		if !identifier.MatchString(key) {
			return "", nil, fmt.Errorf("sqlite: invalid filter field %q", key)
		}

		value, err := encodeValue(filter[key])
		if err != nil {
			return "", nil, fmt.Errorf("sqlite: filter field %q: %w", key, err)
		}

		if key == "_id" {
			hex, err := objectIDHex(value)
			if err != nil {
				return "", nil, fmt.Errorf("sqlite: filter field %q: %w", key, err)
			}
			clauses = append(clauses, "id = ?")
			args = append(args, hex)
			continue
		}

		path := fmt.Sprintf("doc -> '$.%s'", key)
		if value == nil {
			// A missing field and an explicit null both match nil, as in MongoDB.
			clauses = append(clauses, fmt.Sprintf("(%s IS NULL OR %s = 'null')", path, path))
			continue
		}

		text, err := encodeJSON(value)
		if err != nil {
			return "", nil, fmt.Errorf("sqlite: filter field %q: %w", key, err)
		}
		clauses = append(clauses, path+" = json(?)")
		args = append(args, string(text))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// applyUpdate performs $set, $push and $pull on a decoded document.
func applyUpdate(fields map[string]any, update docstore.Update) error {
	for key, v := range update.Set {
		if key == "_id" {
			return errors.New("sqlite: _id is immutable")
		}
		value, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("sqlite: $set %q: %w", key, err)
		}
		fields[key] = value
	}

	for key, v := range update.Push {
		value, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("sqlite: $push %q: %w", key, err)
		}
		arr, err := arrayField(fields, key)
		if err != nil {
			return err
		}
		fields[key] = append(arr, value)
	}

	for key, v := range update.Pull {
		value, err := encodeValue(v)
		if err != nil {
			return fmt.Errorf("sqlite: $pull %q: %w", key, err)
		}
		arr, err := arrayField(fields, key)
		if err != nil {
			return err
		}
		kept := make([]any, 0, len(arr))
		for _, elem := range arr {
			if !reflect.DeepEqual(elem, value) {
				kept = append(kept, elem)
			}
		}
		fields[key] = kept
	}

	return nil
}

// arrayField returns fields[key] as a slice. Missing and null fields count as empty.
func arrayField(fields map[string]any, key string) ([]any, error) {
	switch v := fields[key].(type) {
	case nil:
		return []any{}, nil
	case []any:
		return v, nil
	default:
		return nil, fmt.Errorf("sqlite: field %q is not an array", key)
	}
}
