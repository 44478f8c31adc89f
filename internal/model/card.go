// Package model defines the data structures used throughout the application.
//
// Each struct carries two sets of tags:
//   - `json:"..."`: the shape clients see
//   - `bson:"..."`: the shape stored in the document store
//
// They differ on purpose in a few places: the store keeps MongoDB's "_id" and
// "_creator" names while clients get plain "id" and "creator".
package model

import (
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
)

// Card is a single todo-like item owned by one user.
//
// CompletedAt is a pointer so it can be null: it holds a timestamp only
// while Completed is true.
type Card struct {
	ID          bson.ObjectID `json:"id"          bson:"_id"`
	Text        string        `json:"text"        bson:"text"`
	Completed   bool          `json:"completed"   bson:"completed"`
	CompletedAt *time.Time    `json:"completedAt" bson:"completedAt"`
	Creator     bson.ObjectID `json:"creator"     bson:"_creator"`
}

// CreateCardInput is the accepted body of POST /cards.
type CreateCardInput struct {
	Text string `json:"text"`
}

// UpdateCardInput is the accepted body of PATCH /cards/{id}.
//
// Only these two fields can be changed by a client. Anything else in the
// request body (creator, completedAt, id...) is dropped by the JSON decoder.
// Pointers distinguish "not sent" from "sent as zero value".
type UpdateCardInput struct {
	Text      *string `json:"text"`
	Completed *bool   `json:"completed"`
}
