package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/cards/internal/config"
	"github.com/sakif/cards/internal/docstore"
	"github.com/sakif/cards/internal/docstore/sqlite"
)

// API TESTS:
// These run the full router (middleware, handlers, services, repositories)
// against an in-memory SQLite document store. Nothing is mocked.

type testAPI struct {
	t       *testing.T
	handler http.Handler
	store   *countingStore
}

// countingStore counts operations on the cards collection, to prove a
// request never reached it.
type countingStore struct {
	docstore.Store
	cardOps int
}

func (c *countingStore) Collection(name string) docstore.Collection {
	coll := c.Store.Collection(name)
	if name != docstore.Cards {
		return coll
	}
	return countingCollection{Collection: coll, store: c}
}

type countingCollection struct {
	docstore.Collection
	store *countingStore
}

func (c countingCollection) Find(ctx context.Context, f docstore.Filter, out any) error {
	c.store.cardOps++
	return c.Collection.Find(ctx, f, out)
}

func (c countingCollection) FindOne(ctx context.Context, f docstore.Filter, out any) error {
	c.store.cardOps++
	return c.Collection.FindOne(ctx, f, out)
}

func (c countingCollection) FindOneAndUpdate(ctx context.Context, f docstore.Filter, u docstore.Update, out any) error {
	c.store.cardOps++
	return c.Collection.FindOneAndUpdate(ctx, f, u, out)
}

func (c countingCollection) FindOneAndDelete(ctx context.Context, f docstore.Filter, out any) error {
	c.store.cardOps++
	return c.Collection.FindOneAndDelete(ctx, f, out)
}

func testConfig() config.Config {
	cfg := *config.Default()
	cfg.Store = config.StoreConfig{Driver: config.DriverSQLite, URI: ":memory:"}
	cfg.Auth.Secret = "test-secret-at-least-16-chars!!"
	cfg.Auth.BcryptCost = 4
	cfg.Server.ShutdownTimeout = time.Second
	return cfg
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })
	require.NoError(t, db.Migrate(context.Background()))

	store := &countingStore{Store: db}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv, err := New(testConfig(), store, logger)
	require.NoError(t, err)

	return &testAPI{t: t, handler: srv.Handler(), store: store}
}

func (a *testAPI) do(method, path, token string, body any) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	if token != "" {
		req.Header.Set("x-auth", token)
	}
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

// signup creates a user and returns its id and token.
func (a *testAPI) signup(email string) (string, string) {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/users", "", map[string]string{"email": email, "password": "secret1"})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())

	var user map[string]any
	require.NoError(a.t, json.Unmarshal(rec.Body.Bytes(), &user))
	return user["id"].(string), rec.Header().Get("x-auth")
}

func (a *testAPI) createCard(token, text string) map[string]any {
	a.t.Helper()
	rec := a.do(http.MethodPost, "/cards", token, map[string]string{"text": text})
	require.Equal(a.t, http.StatusOK, rec.Code, rec.Body.String())
	return decode(a.t, rec)
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

// =========================================================================
// USERS
// =========================================================================

func TestSignup_ReturnsPublicUserAndToken(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodPost, "/users", "", map[string]string{"email": "a@b.com", "password": "secret1"})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("x-auth"))

	body := decode(t, rec)
	assert.Len(t, body, 2, "only id and email may be exposed")
	assert.Equal(t, "a@b.com", body["email"])
	assert.NotEmpty(t, body["id"])
	assert.NotContains(t, rec.Body.String(), "secret1")
}

func TestSignup_Rejects(t *testing.T) {
	tests := []struct {
		name string
		body any
	}{
		{name: "invalid email", body: map[string]string{"email": "nope", "password": "secret1"}},
		{name: "short password", body: map[string]string{"email": "a@b.com", "password": "12345"}},
		{name: "missing fields", body: map[string]string{}},
		{name: "no body", body: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newTestAPI(t)
			rec := api.do(http.MethodPost, "/users", "", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Empty(t, rec.Header().Get("x-auth"))
		})
	}
}

func TestSignup_DuplicateEmail(t *testing.T) {
	api := newTestAPI(t)
	api.signup("a@b.com")

	rec := api.do(http.MethodPost, "/users", "", map[string]string{"email": "a@b.com", "password": "other12"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "conflict", decode(t, rec)["error"])
}

func TestMe(t *testing.T) {
	api := newTestAPI(t)
	id, token := api.signup("a@b.com")

	rec := api.do(http.MethodGet, "/users/me", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, map[string]any{"id": id, "email": "a@b.com"}, decode(t, rec))

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", "", nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", "garbage", nil).Code)
}

func TestLogin(t *testing.T) {
	api := newTestAPI(t)
	id, signupToken := api.signup("a@b.com")

	rec := api.do(http.MethodPost, "/users/login", "", map[string]string{"email": "a@b.com", "password": "secret1"})
	require.Equal(t, http.StatusOK, rec.Code)

	loginToken := rec.Header().Get("x-auth")
	require.NotEmpty(t, loginToken)
	assert.NotEqual(t, signupToken, loginToken)
	assert.Equal(t, id, decode(t, rec)["id"])

	// Both sessions work.
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", signupToken, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", loginToken, nil).Code)
}

func TestLogin_FailuresAreIdentical(t *testing.T) {
	api := newTestAPI(t)
	api.signup("a@b.com")

	wrongPassword := api.do(http.MethodPost, "/users/login", "", map[string]string{"email": "a@b.com", "password": "wrong-pass"})
	unknownEmail := api.do(http.MethodPost, "/users/login", "", map[string]string{"email": "nobody@b.com", "password": "secret1"})

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Code)
	assert.Equal(t, http.StatusBadRequest, unknownEmail.Code)
	assert.Equal(t, wrongPassword.Body.String(), unknownEmail.Body.String())
	assert.Empty(t, wrongPassword.Header().Get("x-auth"))
}

func TestLogout_RevokesOnlyThatToken(t *testing.T) {
	api := newTestAPI(t)
	_, first := api.signup("a@b.com")
	rec := api.do(http.MethodPost, "/users/login", "", map[string]string{"email": "a@b.com", "password": "secret1"})
	second := rec.Header().Get("x-auth")

	rec = api.do(http.MethodDelete, "/users/me/token", first, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())

	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/users/me", first, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, api.do(http.MethodGet, "/cards", first, nil).Code)
	assert.Equal(t, http.StatusOK, api.do(http.MethodGet, "/users/me", second, nil).Code)
}

// =========================================================================
// CARDS
// =========================================================================

func TestCards_RequireAuth(t *testing.T) {
	api := newTestAPI(t)
	id := docstore.NewID().Hex()

	for _, tc := range []struct{ method, path string }{
		{http.MethodPost, "/cards"},
		{http.MethodGet, "/cards"},
		{http.MethodGet, "/cards/" + id},
		{http.MethodPatch, "/cards/" + id},
		{http.MethodDelete, "/cards/" + id},
	} {
		rec := api.do(tc.method, tc.path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestCreateCard_CreatorIsCaller(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.signup("a@b.com")

	card := api.createCard(token, "  buy milk  ")

	assert.Equal(t, userID, card["creator"])
	assert.Equal(t, "buy milk", card["text"])
	assert.Equal(t, false, card["completed"])
	assert.Nil(t, card["completedAt"])
	assert.NotEmpty(t, card["id"])
}

func TestCreateCard_EmptyText(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")

	rec := api.do(http.MethodPost, "/cards", token, map[string]string{"text": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["error"])
}

func TestCreateCard_IgnoresClientCreator(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.signup("a@b.com")

	rec := api.do(http.MethodPost, "/cards", token, map[string]string{"text": "x", "creator": docstore.NewID().Hex()})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, decode(t, rec)["creator"])
}

func TestListCards_OnlyOwn(t *testing.T) {
	api := newTestAPI(t)
	_, alice := api.signup("alice@b.com")
	_, bob := api.signup("bob@b.com")

	api.createCard(alice, "a1")
	api.createCard(bob, "b1")
	api.createCard(alice, "a2")

	rec := api.do(http.MethodGet, "/cards", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Cards []map[string]any `json:"cards"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cards, 2)
	assert.Equal(t, "a1", body.Cards[0]["text"])
	assert.Equal(t, "a2", body.Cards[1]["text"])
}

func TestListCards_EmptyIsArray(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")

	rec := api.do(http.MethodGet, "/cards", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"cards":[]}`, rec.Body.String())
}

func TestGetCard(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "x")

	rec := api.do(http.MethodGet, "/cards/"+card["id"].(string), token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, card, decode(t, rec)["card"])

	rec = api.do(http.MethodGet, "/cards/"+docstore.NewID().Hex(), token, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMalformedID_NeverReachesStore(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")

	for _, method := range []string{http.MethodGet, http.MethodPatch, http.MethodDelete} {
		var body any
		if method == http.MethodPatch {
			body = map[string]bool{"completed": true}
		}

		before := api.store.cardOps
		rec := api.do(method, "/cards/123", token, body)

		assert.Equal(t, http.StatusNotFound, rec.Code, method)
		assert.Equal(t, before, api.store.cardOps, "%s /cards/123 queried the cards collection", method)
	}
}

// doRaw sends body verbatim, for payloads that are not valid JSON.
func (a *testAPI) doRaw(method, path, token, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("x-auth", token)
	rec := httptest.NewRecorder()
	a.handler.ServeHTTP(rec, req)
	return rec
}

func TestPatchMalformedID_IsNotFoundWhateverTheBody(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")

	for name, body := range map[string]string{
		"no body":      "",
		"invalid json": "{bad",
		"valid body":   `{"completed":true}`,
	} {
		t.Run(name, func(t *testing.T) {
			before := api.store.cardOps
			rec := api.doRaw(http.MethodPatch, "/cards/123", token, body)

			assert.Equal(t, http.StatusNotFound, rec.Code)
			assert.Equal(t, "not_found", decode(t, rec)["error"])
			assert.Equal(t, before, api.store.cardOps)
		})
	}
}

func TestPatchCard_NoBodyResetsCompletion(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "x")
	path := "/cards/" + card["id"].(string)

	rec := api.do(http.MethodPatch, path, token, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = api.doRaw(http.MethodPatch, path, token, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	got := decode(t, rec)["card"].(map[string]any)
	assert.Equal(t, "x", got["text"])
	assert.Equal(t, false, got["completed"])
	assert.Nil(t, got["completedAt"])
}

func TestPatchCard_InvalidJSON(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "x")

	rec := api.doRaw(http.MethodPatch, "/cards/"+card["id"].(string), token, "{bad")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decode(t, rec)["error"])
}

func TestOtherUsersCard_IsNotFound(t *testing.T) {
	api := newTestAPI(t)
	_, alice := api.signup("alice@b.com")
	_, bob := api.signup("bob@b.com")
	card := api.createCard(alice, "private")
	path := "/cards/" + card["id"].(string)

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodGet, path, bob, nil).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodPatch, path, bob, map[string]any{"text": "hacked"}).Code)
	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, bob, nil).Code)

	// Still there, unchanged.
	rec := api.do(http.MethodGet, path, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "private", decode(t, rec)["card"].(map[string]any)["text"])
}

func TestPatchCard_CompletedAtRoundTrip(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "x")
	path := "/cards/" + card["id"].(string)

	rec := api.do(http.MethodPatch, path, token, map[string]any{"completed": true})
	require.Equal(t, http.StatusOK, rec.Code)
	done := decode(t, rec)["card"].(map[string]any)
	assert.Equal(t, true, done["completed"])
	assert.NotNil(t, done["completedAt"])

	rec = api.do(http.MethodPatch, path, token, map[string]any{"completed": false})
	require.Equal(t, http.StatusOK, rec.Code)
	undone := decode(t, rec)["card"].(map[string]any)
	assert.Equal(t, false, undone["completed"])
	assert.Nil(t, undone["completedAt"])
}

func TestPatchCard_AllowList(t *testing.T) {
	api := newTestAPI(t)
	userID, token := api.signup("a@b.com")
	card := api.createCard(token, "x")
	path := "/cards/" + card["id"].(string)

	rec := api.do(http.MethodPatch, path, token, map[string]any{
		"text":        "renamed",
		"creator":     docstore.NewID().Hex(),
		"completedAt": "2001-01-01T00:00:00Z",
		"id":          docstore.NewID().Hex(),
	})
	require.Equal(t, http.StatusOK, rec.Code)

	got := decode(t, rec)["card"].(map[string]any)
	assert.Equal(t, "renamed", got["text"])
	assert.Equal(t, userID, got["creator"])
	assert.Equal(t, card["id"], got["id"])
	assert.Nil(t, got["completedAt"])
}

func TestPatchCard_EmptyText(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "x")

	rec := api.do(http.MethodPatch, "/cards/"+card["id"].(string), token, map[string]any{"text": ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDeleteCard_Twice(t *testing.T) {
	api := newTestAPI(t)
	_, token := api.signup("a@b.com")
	card := api.createCard(token, "bye")
	path := "/cards/" + card["id"].(string)

	rec := api.do(http.MethodDelete, path, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, card, decode(t, rec)["card"])

	assert.Equal(t, http.StatusNotFound, api.do(http.MethodDelete, path, token, nil).Code)
}

// =========================================================================
// PLUMBING
// =========================================================================

func TestHealthz(t *testing.T) {
	api := newTestAPI(t)

	rec := api.do(http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestNew_RejectsBadSecret(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Secret = "short"

	_, err := New(cfg, nil, slog.Default())
	assert.Error(t, err)
}

// closeRecorder records whether Close was called.
type closeRecorder struct {
	docstore.Store
	closed bool
}

func (c *closeRecorder) Close(context.Context) error {
	c.closed = true
	return nil
}

func TestRun_ShutsDownAndClosesStore(t *testing.T) {
	db, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close(context.Background()) })

	store := &closeRecorder{Store: db}
	cfg := testConfig()
	cfg.Server.Host = "127.0.0.1"
	cfg.Server.Port = freePort(t)

	srv, err := New(cfg, store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, store.closed, "store must be closed on shutdown")
}

func freePort(t *testing.T) int {
	t.Helper()
	l, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()

	addr, ok := l.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatal(errors.New("unexpected listener address"))
	}
	return addr.Port
}
