package document

import (
	"context"
	"errors"

	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/repository"
)

// compile-time check that *UserRepository implements repository.UserRepository
var _ repository.UserRepository = (*UserRepository)(nil)

// UserRepository stores accounts in the "users" collection.
// users.email has a unique index, created by Store.Migrate.
type UserRepository struct {
	users docstore.Collection
}

func NewUserRepository(store docstore.Store) *UserRepository {
	return &UserRepository{users: store.Collection(docstore.Users)}
}

// Create inserts user with a fresh id. A taken email is an apperror.Conflict.
func (r *UserRepository) Create(ctx context.Context, user *model.User) error {
	user.ID = docstore.NewID()
	if user.Tokens == nil {
		user.Tokens = []model.Token{}
	}
	if err := r.users.InsertOne(ctx, user); err != nil {
		return translate(err, "creating user", "user", "email "+user.Email)
	}
	return nil
}

func (r *UserRepository) GetByID(ctx context.Context, id docstore.ID) (*model.User, error) {
	var user model.User
	if err := r.users.FindByID(ctx, id, &user); err != nil {
		return nil, translate(err, "getting user", "user", id.Hex())
	}
	return &user, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	var user model.User
	if err := r.users.FindOne(ctx, docstore.Filter{"email": email}, &user); err != nil {
		return nil, translate(err, "getting user", "user", "email "+email)
	}
	return &user, nil
}

// AddToken appends token with $push. The password field is not touched, so a
// stored hash is never hashed again.
func (r *UserRepository) AddToken(ctx context.Context, id docstore.ID, token model.Token) (*model.User, error) {
	var user model.User
	update := docstore.Update{Push: map[string]any{"tokens": token}}
	if err := r.users.FindOneAndUpdate(ctx, docstore.Filter{"_id": id}, update, &user); err != nil {
		return nil, translate(err, "saving token", "user", id.Hex())
	}
	return &user, nil
}

// RemoveToken pulls token with $pull. A missing token, or a user that is
// already gone, is not an error.
func (r *UserRepository) RemoveToken(ctx context.Context, id docstore.ID, token model.Token) error {
	var user model.User
	update := docstore.Update{Pull: map[string]any{"tokens": token}}
	err := r.users.FindOneAndUpdate(ctx, docstore.Filter{"_id": id}, update, &user)
	if err != nil && !errors.Is(err, docstore.ErrNoDocuments) {
		return translate(err, "removing token", "user", id.Hex())
	}
	return nil
}
