// Package repository declares how the services persist cards and users.
//
// The interfaces live here, next to nothing else, so that services depend on
// behaviour rather than on a storage engine. The implementation over the
// document store is in repository/document; services are tested against
// generated mocks in repository/mock.
//
// Errors returned by every implementation are *apperror.AppError values:
//   - apperror.ErrNotFound: no document matched (including "not yours")
//   - apperror.ErrConflict: a unique index was violated
//   - apperror.ErrStore: anything else the store reported
package repository

//go:generate mockgen -source=repository.go -destination=mock/repository.go -package=mock

import (
	"context"
	"time"

	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
)

// CardChanges is a partial update of a card.
//
// Text is applied only when non-nil. Completed and CompletedAt are always
// written together, which keeps completedAt consistent with completed.
type CardChanges struct {
	Text        *string
	Completed   bool
	CompletedAt *time.Time
}

// CardRepository persists cards. Every lookup by id is also scoped to the
// creator: a card owned by someone else is reported as not found.
type CardRepository interface {
	Create(ctx context.Context, card *model.Card) error
	ListByCreator(ctx context.Context, creator docstore.ID) ([]model.Card, error)
	GetOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error)
	UpdateOwned(ctx context.Context, id, creator docstore.ID, changes CardChanges) (*model.Card, error)
	DeleteOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error)
}

// UserRepository persists user accounts and their session tokens.
type UserRepository interface {
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id docstore.ID) (*model.User, error)
	GetByEmail(ctx context.Context, email string) (*model.User, error)
	// AddToken appends a session token and returns the updated user.
	AddToken(ctx context.Context, id docstore.ID, token model.Token) (*model.User, error)
	// RemoveToken removes every matching session token. Removing a token
	// that is not there is not an error.
	RemoveToken(ctx context.Context, id docstore.ID, token model.Token) error
}
