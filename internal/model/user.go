package model

import "go.mongodb.org/mongo-driver/v2/bson"

// TokenAccessAuth is the purpose tag of session tokens.
const TokenAccessAuth = "auth"

// Token is one issued session token. A user holds one per active session.
type Token struct {
	Access string `json:"access" bson:"access"`
	Token  string `json:"token"  bson:"token"`
}

// User is a registered account as stored.
//
// User is never written to a response directly: PasswordHash and Tokens must
// not leave the server. Handlers send Public() instead.
type User struct {
	ID           bson.ObjectID `json:"id"    bson:"_id"`
	Email        string        `json:"email" bson:"email"`
	PasswordHash string        `json:"-"     bson:"password"`
	Tokens       []Token       `json:"-"     bson:"tokens"`
}

// HasToken reports whether token is one of the user's live session tokens.
func (u *User) HasToken(access, token string) bool {
	for _, t := range u.Tokens {
		if t.Access == access && t.Token == token {
			return true
		}
	}
	return false
}

// PublicUser is the only user shape sent to clients.
type PublicUser struct {
	ID    bson.ObjectID `json:"id"`
	Email string        `json:"email"`
}

// Public returns the client-facing projection of u.
func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email}
}

// CredentialsInput is the accepted body of POST /users and POST /users/login.
type CredentialsInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}
