package mock

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/repository"
)

func TestMockCardRepository_RecordsAndReplays(t *testing.T) {
	m := NewMockCardRepository(gomock.NewController(t))
	var repo repository.CardRepository = m

	id, creator := docstore.NewID(), docstore.NewID()
	want := &model.Card{ID: id, Creator: creator, Text: "x"}
	m.EXPECT().GetOwned(gomock.Any(), id, creator).Return(want, nil)

	got, err := repo.GetOwned(context.Background(), id, creator)
	require.NoError(t, err)
	assert.Same(t, want, got)
}

func TestMockUserRepository_RecordsAndReplays(t *testing.T) {
	m := NewMockUserRepository(gomock.NewController(t))
	var repo repository.UserRepository = m

	id := docstore.NewID()
	tok := model.Token{Access: model.TokenAccessAuth, Token: "t"}
	m.EXPECT().RemoveToken(gomock.Any(), id, tok).Return(nil)

	assert.NoError(t, repo.RemoveToken(context.Background(), id, tok))
}
