// Package service — authentication business logic.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/sakif/brainbox/internal/apperror"
	"github.com/sakif/brainbox/internal/auth"
	"github.com/sakif/brainbox/internal/model"
	"github.com/sakif/brainbox/internal/repository"
)

const MinPasswordLength = 8

// AuthService orchestrates signup and login for both credential kinds
// (email/password and GitHub OAuth) and issues session JWTs. It never
// touches HTTP — cookies and redirects belong to the handler.
type AuthService struct {
	users     repository.UserRepository
	stats     *StatsService
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	logger    *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	stats *StatsService,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{
		users:     users,
		stats:     stats,
		tokens:    tokens,
		passwords: passwords,
		logger:    logger,
	}
}

// AuthResult bundles the user record and the issued JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// SignUp registers an email/password account, initializes the user's
// aggregate row, and issues a session token.
func (s *AuthService) SignUp(ctx context.Context, login, email, password string) (*AuthResult, error) {
	login = strings.TrimSpace(login)
	email = strings.ToLower(strings.TrimSpace(email))

	if login == "" {
		return nil, apperror.ValidationFailed("login", "a display name is required")
	}
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email is required")
	}
	if len(password) < MinPasswordLength {
		return nil, apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, err
	}

	user := &model.User{
		Login:        login,
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	return s.finishLogin(ctx, user, "signup")
}

// Login authenticates an email/password account.
//
// Both "no such account" and "wrong password" surface as the same
// unauthorized error, so responses don't reveal which emails have accounts.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if isNotFound(err) {
			return nil, apperror.Unauthorized("invalid email or password")
		}
		return nil, err
	}
	if user.PasswordHash == "" {
		// GitHub-only account; no password to check.
		return nil, apperror.Unauthorized("invalid email or password")
	}
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.Unauthorized("invalid email or password")
	}

	return s.finishLogin(ctx, user, "login")
}

// LoginOrRegisterGitHub handles the GitHub OAuth callback: upsert the user
// (create on first login, refresh profile fields after), then issue a
// token. GitHub IDs are stable and unique, so upsert is always safe.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser) (*AuthResult, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     strings.ToLower(ghUser.Email),
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.UpsertGitHubUser(ctx, user); err != nil {
		return nil, fmt.Errorf("upserting github user: %w", err)
	}

	return s.finishLogin(ctx, user, "github")
}

// GetUser loads the profile of the authenticated user.
func (s *AuthService) GetUser(ctx context.Context, userID string) (*model.User, error) {
	return s.users.GetUserByID(ctx, userID)
}

func (s *AuthService) finishLogin(ctx context.Context, user *model.User, flow string) (*AuthResult, error) {
	// Idempotent: ensures the aggregate row exists for accounts created
	// before stats were introduced, too.
	if err := s.stats.Init(ctx, user.ID); err != nil {
		s.logger.Error("failed to initialize user stats",
			slog.String("userId", user.ID),
			slog.String("error", err.Error()),
		)
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("issuing session token: %w", err)
	}

	s.logger.Info("user authenticated",
		slog.String("userId", user.ID),
		slog.String("flow", flow),
	)
	return &AuthResult{User: user, Token: token}, nil
}
