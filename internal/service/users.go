package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/cards/internal/apperror"
	"github.com/sakif/cards/internal/auth"
	"github.com/sakif/cards/internal/model"
	"github.com/sakif/cards/internal/repository"
)

// compile-time check that *UserService can back the auth middleware
var _ auth.TokenVerifier = (*UserService)(nil)

// UserService handles accounts and sessions.
//
// DEPENDENCIES:
//   - users      repository.UserRepository → account records and token lists
//   - tokens     *auth.TokenService        → sign/parse JWTs
//   - passwords  *auth.PasswordService     → bcrypt
//   - validate   *validator.Validate       → `validate:"..."` tags on inputs
type UserService struct {
	users     repository.UserRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	validate  *validator.Validate
	logger    *slog.Logger
}

func NewUserService(
	users repository.UserRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *UserService {
	return &UserService{
		users:     users,
		tokens:    tokens,
		passwords: passwords,
		validate:  validator.New(validator.WithRequiredStructEnabled()),
		logger:    logger,
	}
}

// AuthResult is a user together with the session token just issued for it.
// The token is handed to the client once and never returned again.
type AuthResult struct {
	User  *model.User
	Token string
}

// Signup creates an account and opens its first session.
//
// The password is hashed here, the only place a plaintext password is
// persisted from. A taken email comes back as apperror.ErrConflict.
func (s *UserService) Signup(ctx context.Context, in model.CredentialsInput) (*AuthResult, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := s.validateInput(in); err != nil {
		return nil, err
	}

	hash, err := s.passwords.Hash(in.Password)
	if errors.Is(err, auth.ErrPasswordTooLong) {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", auth.MaxPasswordBytes))
	}
	if err != nil {
		return nil, fmt.Errorf("service/users: hashing password: %w", err)
	}

	user := &model.User{
		Email:        in.Email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user signed up", slog.String("userID", user.ID.Hex()))

	return s.openSession(ctx, user)
}

// Login checks credentials and opens a new session.
//
// Unknown email and wrong password produce the same error and take about
// the same time: the unknown-email path still runs one bcrypt comparison.
func (s *UserService) Login(ctx context.Context, in model.CredentialsInput) (*AuthResult, error) {
	user, err := s.findByCredentials(ctx, strings.TrimSpace(in.Email), in.Password)
	if err != nil {
		return nil, err
	}
	return s.openSession(ctx, user)
}

// VerifyToken resolves a session token to its user.
//
// The token must carry a valid signature and the "auth" purpose, name an
// existing user, and still be on that user's token list. Every failure is
// apperror.ErrUnauthorized; the reason only goes to the debug log.
func (s *UserService) VerifyToken(ctx context.Context, token string) (*model.User, error) {
	userID, err := s.tokens.Parse(token, model.TokenAccessAuth)
	if err != nil {
		return nil, unauthorized(err)
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return nil, unauthorized(err)
	}

	if !user.HasToken(model.TokenAccessAuth, token) {
		return nil, unauthorized(errors.New("token revoked"))
	}
	return user, nil
}

// Logout revokes one session token of user. Revoking a token twice is fine.
func (s *UserService) Logout(ctx context.Context, user *model.User, token string) error {
	entry := model.Token{Access: model.TokenAccessAuth, Token: token}
	if err := s.users.RemoveToken(ctx, user.ID, entry); err != nil {
		return err
	}

	s.logger.InfoContext(ctx, "token revoked", slog.String("userID", user.ID.Hex()))
	return nil
}

// openSession issues a token and appends it to the user's token list.
func (s *UserService) openSession(ctx context.Context, user *model.User) (*AuthResult, error) {
	token, err := s.tokens.Generate(user.ID, model.TokenAccessAuth)
	if err != nil {
		return nil, fmt.Errorf("service/users: generating token for user %s: %w", user.ID.Hex(), err)
	}

	entry := model.Token{Access: model.TokenAccessAuth, Token: token}
	updated, err := s.users.AddToken(ctx, user.ID, entry)
	if err != nil {
		return nil, err
	}

	return &AuthResult{User: updated, Token: token}, nil
}

func (s *UserService) findByCredentials(ctx context.Context, email, password string) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		_ = s.passwords.VerifyDummy(password)
		return nil, apperror.InvalidCredentials()
	}
	if err != nil {
		return nil, err
	}

	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		if !errors.Is(err, auth.ErrPasswordMismatch) {
			s.logger.WarnContext(ctx, "stored password hash unreadable",
				slog.String("userID", user.ID.Hex()),
				slog.String("error", err.Error()),
			)
		}
		return nil, apperror.InvalidCredentials()
	}
	return user, nil
}

// validateInput runs the struct's `validate` tags and turns the first
// failure into an apperror.ValidationFailed with a readable message.
func (s *UserService) validateInput(in model.CredentialsInput) error {
	err := s.validate.Struct(in)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return apperror.ValidationFailed("", err.Error())
	}

	fe := fieldErrs[0]
	field := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return apperror.ValidationFailed(field, field+" is required")
	case "email":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s is not a valid email", fe.Value()))
	case "min":
		return apperror.ValidationFailed(field, fmt.Sprintf("%s must be at least %s characters", field, fe.Param()))
	default:
		return apperror.ValidationFailed(field, field+" is invalid")
	}
}

func unauthorized(cause error) error {
	err := apperror.Unauthorized("valid authentication required")
	err.Cause = cause
	return err
}
