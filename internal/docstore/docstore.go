// Package docstore is the document store the rest of the application talks to.
//
// A document store keeps schema-flexible records ("documents") in named
// collections. Each document has a generated unique identifier stored under
// "_id". Queries are simple equality filters on top-level fields.
//
// WHY AN INTERFACE?
// Two backends implement it:
//   - docstore/mongo: MongoDB
//   - docstore/sqlite: documents as JSON text in SQLite, for single-binary
//     deployments and for tests (":memory:")
//
// Repositories only see Store and Collection, so switching backends is a
// config change (store.driver), not a code change.
//
// DOCUMENT SHAPE:
// Documents are plain Go structs with `bson` tags. Both backends encode them
// through the bson package, so a struct round-trips the same way whether it
// lands in MongoDB or in SQLite.
package docstore

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/v2/bson"
)

var (
	// ErrNoDocuments means a FindByID/FindOne/FindOneAndX call matched nothing.
	ErrNoDocuments = errors.New("docstore: no documents in result")

	// ErrDuplicateKey means an insert or update violated a unique index.
	ErrDuplicateKey = errors.New("docstore: duplicate key")

	// ErrInvalidID is returned by ParseID for malformed identifiers.
	ErrInvalidID = errors.New("docstore: invalid id")
)

// Collection names used by the application.
const (
	Cards = "cards"
	Users = "users"
)

// ID is the opaque document identifier: a 12-byte ObjectID, rendered as 24 hex chars.
type ID = bson.ObjectID

// NewID generates a fresh identifier.
func NewID() ID {
	return bson.NewObjectID()
}

// ParseID validates the textual form of an identifier.
// Anything that is not exactly 24 hex characters is rejected, so callers can
// answer "not found" without asking the store.
func ParseID(s string) (ID, error) {
	id, err := bson.ObjectIDFromHex(s)
	if err != nil {
		return ID{}, ErrInvalidID
	}
	return id, nil
}

// Filter is a set of equality predicates on top-level document fields.
// All predicates must match (logical AND). An empty filter matches every document.
//
//	docstore.Filter{"_id": id, "_creator": userID}
type Filter map[string]any

// Update describes a partial modification of one document.
//
//   - Set replaces field values                ($set)
//   - Push appends a value to an array field   ($push)
//   - Pull removes every array element equal to the value ($pull)
type Update struct {
	Set  map[string]any
	Push map[string]any
	Pull map[string]any
}

// IsZero reports whether the update changes nothing.
func (u Update) IsZero() bool {
	return len(u.Set) == 0 && len(u.Push) == 0 && len(u.Pull) == 0
}

// Collection is a named set of documents.
//
// The `out` arguments follow encoding/json conventions: a pointer to a struct
// for single-document calls, a pointer to a slice for Find.
type Collection interface {
	InsertOne(ctx context.Context, doc any) error
	Find(ctx context.Context, filter Filter, out any) error
	FindByID(ctx context.Context, id ID, out any) error
	FindOne(ctx context.Context, filter Filter, out any) error
	// FindOneAndUpdate applies update to the first match and decodes the
	// document as it is AFTER the update.
	FindOneAndUpdate(ctx context.Context, filter Filter, update Update, out any) error
	// FindOneAndDelete removes the first match and decodes the removed document.
	FindOneAndDelete(ctx context.Context, filter Filter, out any) error
}

// Store is a handle on one database. It is created once at startup,
// injected where needed, and closed at shutdown.
type Store interface {
	Collection(name string) Collection
	// Migrate creates collections and indexes (unique users.email).
	Migrate(ctx context.Context) error
	Close(ctx context.Context) error
}
