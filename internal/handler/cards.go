package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/cards/internal/apperror"
	"github.com/sakif/cards/internal/auth"
	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/service"
)

// CardHandler serves /cards. Every route sits behind auth.Authenticate.
type CardHandler struct {
	cards  *service.CardService
	logger *slog.Logger
}

func NewCardHandler(cards *service.CardService, logger *slog.Logger) *CardHandler {
	return &CardHandler{cards: cards, logger: logger}
}

// CardEnvelope wraps a single card: {"card": {...}}.
type CardEnvelope struct {
	Card *model.Card `json:"card"`
}

// CardList wraps the list response: {"cards": [...]}.
type CardList struct {
	Cards []model.Card `json:"cards"`
}

// HandleCreate creates a card owned by the caller.
//
// HTTP: POST /cards
// REQUEST BODY: {"text": "buy milk"}
// RESPONSE: the created card (not wrapped)
func (h *CardHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	var in model.CreateCardInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	card, err := h.cards.Create(r.Context(), user.ID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, card)
}

// HandleList returns the caller's cards.
//
// HTTP: GET /cards
func (h *CardHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	cards, err := h.cards.List(r.Context(), user.ID)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CardList{Cards: cards})
}

// HandleGet returns one of the caller's cards.
//
// HTTP: GET /cards/{id}
// A malformed id, a missing card and someone else's card all answer 404.
func (h *CardHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	card, err := h.cards.Get(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CardEnvelope{Card: card})
}

// HandleDelete removes one of the caller's cards and returns it.
//
// HTTP: DELETE /cards/{id}
func (h *CardHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	card, err := h.cards.Delete(r.Context(), user.ID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CardEnvelope{Card: card})
}

// HandleUpdate changes text and/or completed on one of the caller's cards.
//
// HTTP: PATCH /cards/{id}
// REQUEST BODY: {"text"?: "...", "completed"?: true}, optional
// Any other field in the body is ignored. A malformed id answers 404 before
// the body is read; a missing body counts as {}.
func (h *CardHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	user, ok := h.caller(w, r)
	if !ok {
		return
	}

	rawID := chi.URLParam(r, "id")
	if _, err := docstore.ParseID(rawID); err != nil {
		writeError(w, r, h.logger, apperror.NotFound("card", rawID))
		return
	}

	var in model.UpdateCardInput
	if err := decodeOptionalJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	card, err := h.cards.Update(r.Context(), user.ID, rawID, in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, CardEnvelope{Card: card})
}

// caller returns the authenticated user, or answers 401 if the route was
// mounted without auth.Authenticate.
func (h *CardHandler) caller(w http.ResponseWriter, r *http.Request) (*model.User, bool) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{
			Error:   "unauthorized",
			Message: "valid authentication required",
		})
		return nil, false
	}
	return user, true
}
