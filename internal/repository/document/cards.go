package document

import (
	"context"

	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/repository"
)

// compile-time check that *CardRepository implements repository.CardRepository
var _ repository.CardRepository = (*CardRepository)(nil)

// CardRepository stores cards in the "cards" collection.
type CardRepository struct {
	cards docstore.Collection
}

func NewCardRepository(store docstore.Store) *CardRepository {
	return &CardRepository{cards: store.Collection(docstore.Cards)}
}

// Create inserts card, assigning it a fresh id.
func (r *CardRepository) Create(ctx context.Context, card *model.Card) error {
	card.ID = docstore.NewID()
	if err := r.cards.InsertOne(ctx, card); err != nil {
		return translate(err, "creating card", "card", card.ID.Hex())
	}
	return nil
}

// ListByCreator returns the creator's cards, oldest first.
// A user with no cards gets an empty (non-nil) slice, so it serializes as [].
func (r *CardRepository) ListByCreator(ctx context.Context, creator docstore.ID) ([]model.Card, error) {
	cards := []model.Card{}
	if err := r.cards.Find(ctx, ownedBy(creator), &cards); err != nil {
		return nil, translate(err, "listing cards", "card", "")
	}
	if cards == nil {
		cards = []model.Card{}
	}
	return cards, nil
}

func (r *CardRepository) GetOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error) {
	var card model.Card
	if err := r.cards.FindOne(ctx, owned(id, creator), &card); err != nil {
		return nil, translate(err, "getting card", "card", id.Hex())
	}
	return &card, nil
}

// UpdateOwned applies changes and returns the card as it is afterwards.
func (r *CardRepository) UpdateOwned(ctx context.Context, id, creator docstore.ID, changes repository.CardChanges) (*model.Card, error) {
	set := map[string]any{
		"completed":   changes.Completed,
		"completedAt": changes.CompletedAt,
	}
	if changes.Text != nil {
		set["text"] = *changes.Text
	}

	var card model.Card
	err := r.cards.FindOneAndUpdate(ctx, owned(id, creator), docstore.Update{Set: set}, &card)
	if err != nil {
		return nil, translate(err, "updating card", "card", id.Hex())
	}
	return &card, nil
}

// DeleteOwned removes the card and returns what was removed.
func (r *CardRepository) DeleteOwned(ctx context.Context, id, creator docstore.ID) (*model.Card, error) {
	var card model.Card
	if err := r.cards.FindOneAndDelete(ctx, owned(id, creator), &card); err != nil {
		return nil, translate(err, "deleting card", "card", id.Hex())
	}
	return &card, nil
}

// OWNERSHIP FILTERS:
// Every card query carries the creator. A guessed id for somebody else's card
// simply matches nothing, the same as an id that does not exist.

func ownedBy(creator docstore.ID) docstore.Filter {
	return docstore.Filter{"_creator": creator}
}

func owned(id, creator docstore.ID) docstore.Filter {
	return docstore.Filter{"_id": id, "_creator": creator}
}
