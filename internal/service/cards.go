// Package service contains the business rules of the application.
//
// THE THREE LAYERS:
//
//	Handler (HTTP)      → decodes requests, writes responses
//	Service (rules)     → validates, enforces invariants, orchestrates
//	Repository (data)   → reads/writes the document store
//
// Services accept plain Go values and return *apperror.AppError values. They
// know nothing about HTTP, and nothing about which store backs the
// repositories; tests pass gomock repositories (repository/mock).
package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/cards/internal/apperror"
	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/repository"
)

// CardService handles the card rules: text is required, completedAt follows
// completed, and a card is only ever visible to its creator.
type CardService struct {
	repo   repository.CardRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewCardService(repo repository.CardRepository, logger *slog.Logger) *CardService {
	return &CardService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

// Create validates and stores a new card owned by creator.
// A new card is never completed.
func (s *CardService) Create(ctx context.Context, creator docstore.ID, in model.CreateCardInput) (*model.Card, error) {
	text, err := validateText(in.Text)
	if err != nil {
		return nil, err
	}

	card := &model.Card{
		Text:    text,
		Creator: creator,
	}
	if err := s.repo.Create(ctx, card); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "card created",
		slog.String("cardID", card.ID.Hex()),
		slog.String("creator", creator.Hex()),
	)
	return card, nil
}

// List returns all of creator's cards.
func (s *CardService) List(ctx context.Context, creator docstore.ID) ([]model.Card, error) {
	return s.repo.ListByCreator(ctx, creator)
}

// Get returns one of creator's cards.
//
// rawID comes straight from the URL. A malformed id is reported as not found
// without asking the store, exactly like an id that does not exist or a card
// that belongs to someone else.
func (s *CardService) Get(ctx context.Context, creator docstore.ID, rawID string) (*model.Card, error) {
	id, err := parseCardID(rawID)
	if err != nil {
		return nil, err
	}
	return s.repo.GetOwned(ctx, id, creator)
}

// Update applies a partial update and returns the updated card.
//
// COMPLETION RULE:
// completed=true sets completedAt to now. Anything else (false, or the field
// left out) sets completed=false and clears completedAt.
func (s *CardService) Update(ctx context.Context, creator docstore.ID, rawID string, in model.UpdateCardInput) (*model.Card, error) {
	id, err := parseCardID(rawID)
	if err != nil {
		return nil, err
	}

	var changes repository.CardChanges
	if in.Text != nil {
		text, err := validateText(*in.Text)
		if err != nil {
			return nil, err
		}
		changes.Text = &text
	}
	if in.Completed != nil && *in.Completed {
		now := s.now().UTC()
		changes.Completed = true
		changes.CompletedAt = &now
	}

	card, err := s.repo.UpdateOwned(ctx, id, creator, changes)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "card updated",
		slog.String("cardID", card.ID.Hex()),
		slog.Bool("completed", card.Completed),
	)
	return card, nil
}

// Delete removes one of creator's cards and returns it.
func (s *CardService) Delete(ctx context.Context, creator docstore.ID, rawID string) (*model.Card, error) {
	id, err := parseCardID(rawID)
	if err != nil {
		return nil, err
	}

	card, err := s.repo.DeleteOwned(ctx, id, creator)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "card deleted", slog.String("cardID", card.ID.Hex()))
	return card, nil
}

func validateText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", apperror.ValidationFailed("text", "text is required")
	}
	return text, nil
}

func parseCardID(raw string) (docstore.ID, error) {
	id, err := docstore.ParseID(raw)
	if err != nil {
		return docstore.ID{}, apperror.NotFound("card", raw)
	}
	return id, nil
}
