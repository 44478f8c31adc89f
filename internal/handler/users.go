package handler

import (
	"log/slog"
	"net/http"

	"github.com/sakif/cards/internal/auth"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/service"
)

// UserHandler serves /users.
type UserHandler struct {
	users  *service.UserService
	logger *slog.Logger
}

func NewUserHandler(users *service.UserService, logger *slog.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger}
}

// HandleSignup creates an account.
//
// HTTP: POST /users
// REQUEST BODY: {"email": "a@b.com", "password": "secret1"}
// RESPONSE: {"id": "...", "email": "a@b.com"} plus the session token in x-auth
func (h *UserHandler) HandleSignup(w http.ResponseWriter, r *http.Request) {
	var in model.CredentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.users.Signup(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set(auth.HeaderName, res.Token)
	writeJSON(w, http.StatusOK, res.User.Public())
}

// HandleLogin opens a new session.
//
// HTTP: POST /users/login
// Wrong password and unknown email get the same 400 response.
func (h *UserHandler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var in model.CredentialsInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	res, err := h.users.Login(r.Context(), in)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	w.Header().Set(auth.HeaderName, res.Token)
	writeJSON(w, http.StatusOK, res.User.Public())
}

// HandleMe returns the caller.
//
// HTTP: GET /users/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}
	writeJSON(w, http.StatusOK, user.Public())
}

// HandleLogout revokes the token the request was authenticated with.
//
// HTTP: DELETE /users/me/token
// RESPONSE: 200 with an empty body
func (h *UserHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	user, userOK := auth.UserFromContext(r.Context())
	token, tokenOK := auth.TokenFromContext(r.Context())
	if !userOK || !tokenOK {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthorized", Message: "valid authentication required"})
		return
	}

	if err := h.users.Logout(r.Context(), user, token); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusOK)
}
