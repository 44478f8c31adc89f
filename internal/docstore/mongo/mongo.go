// Package mongo implements docstore.Store with the official MongoDB driver.
//
// MongoDB is a document store already, so this backend is a thin layer:
// docstore.Filter becomes a bson.D query, docstore.Update becomes
// $set/$push/$pull, and driver errors are mapped to docstore sentinels.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"

	"github.com/sakif/cards/internal/docstore"
)

// compile-time checks
var (
	_ docstore.Store      = (*Store)(nil)
	_ docstore.Collection = (*collection)(nil)
)

// Store owns one client and one database.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri and verifies the connection with a ping.
//
// The driver connects lazily, so without the ping a wrong URI would only
// show up on the first request.
func New(ctx context.Context, uri, database string) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}

	return &Store{client: client, db: client.Database(database)}, nil
}

// Collection returns a handle on the named collection.
func (s *Store) Collection(name string) docstore.Collection {
	return &collection{coll: s.db.Collection(name)}
}

// Migrate creates the unique index on users.email.
// CreateOne is a no-op when an identical index already exists.
func (s *Store) Migrate(ctx context.Context) error {
	index := mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("idx_users_email"),
	}
	if _, err := s.db.Collection(docstore.Users).Indexes().CreateOne(ctx, index); err != nil {
		return fmt.Errorf("mongo: creating users.email index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

type collection struct {
	coll *mongo.Collection
}

func (c *collection) InsertOne(ctx context.Context, doc any) error {
	if _, err := c.coll.InsertOne(ctx, doc); err != nil {
		return c.wrap("inserting", err)
	}
	return nil
}

// Find returns matches sorted by _id. ObjectIDs start with a timestamp, so
// that is creation order.
func (c *collection) Find(ctx context.Context, filter docstore.Filter, out any) error {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})

	cursor, err := c.coll.Find(ctx, toQuery(filter), opts)
	if err != nil {
		return c.wrap("querying", err)
	}
	if err := cursor.All(ctx, out); err != nil {
		return c.wrap("decoding", err)
	}
	return nil
}

func (c *collection) FindByID(ctx context.Context, id docstore.ID, out any) error {
	return c.FindOne(ctx, docstore.Filter{"_id": id}, out)
}

func (c *collection) FindOne(ctx context.Context, filter docstore.Filter, out any) error {
	if err := c.coll.FindOne(ctx, toQuery(filter)).Decode(out); err != nil {
		return c.wrap("querying", err)
	}
	return nil
}

// FindOneAndUpdate returns the post-image. The server rejects an empty
// update document, so an empty update is a plain FindOne.
func (c *collection) FindOneAndUpdate(ctx context.Context, filter docstore.Filter, update docstore.Update, out any) error {
	if update.IsZero() {
		return c.FindOne(ctx, filter, out)
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	err := c.coll.FindOneAndUpdate(ctx, toQuery(filter), toUpdate(update), opts).Decode(out)
	if err != nil {
		return c.wrap("updating", err)
	}
	return nil
}

func (c *collection) FindOneAndDelete(ctx context.Context, filter docstore.Filter, out any) error {
	if err := c.coll.FindOneAndDelete(ctx, toQuery(filter)).Decode(out); err != nil {
		return c.wrap("deleting", err)
	}
	return nil
}

// wrap maps driver errors onto the docstore sentinels.
func (c *collection) wrap(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return docstore.ErrNoDocuments
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("mongo: %s %s: %w", op, c.coll.Name(), docstore.ErrDuplicateKey)
	default:
		return fmt.Errorf("mongo: %s %s: %w", op, c.coll.Name(), err)
	}
}

// toQuery builds the query document. A nil filter becomes {} (match all).
func toQuery(filter docstore.Filter) bson.D {
	query := bson.D{}
	for k, v := range filter {
		query = append(query, bson.E{Key: k, Value: v})
	}
	return query
}

func toUpdate(update docstore.Update) bson.D {
	doc := bson.D{}
	if len(update.Set) > 0 {
		doc = append(doc, bson.E{Key: "$set", Value: bson.M(update.Set)})
	}
	if len(update.Push) > 0 {
		doc = append(doc, bson.E{Key: "$push", Value: bson.M(update.Push)})
	}
	if len(update.Pull) > 0 {
		doc = append(doc, bson.E{Key: "$pull", Value: bson.M(update.Pull)})
	}
	return doc
}
