package auth

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/mpk-pharma/kanha/internal/platform/httpx"
	"github.com/mpk-pharma/kanha/internal/shared"
)

// CredentialVerifier resolves an email and password to a principal.
type CredentialVerifier interface {
	Verify(ctx context.Context, email, password string) (User, error)
}

// BcryptVerifier checks passwords against bcrypt hashes stored with the user.
type BcryptVerifier struct {
	repo Repository
}

// NewBcryptVerifier constructs a BcryptVerifier.
func NewBcryptVerifier(repo Repository) *BcryptVerifier {
	return &BcryptVerifier{repo: repo}
}

// Verify validates email/password credentials.
func (v *BcryptVerifier) Verify(ctx context.Context, email, password string) (User, error) {
	user, err := v.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, shared.ErrInvalidCredentials
		}
		return User{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return User{}, shared.ErrInvalidCredentials
	}
	return *user, nil
}

// HashPassword returns the bcrypt hash stored for new accounts.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// Service wraps authentication business rules.
type Service struct {
	repo     Repository
	verifier CredentialVerifier
	sessions *SessionStore
	tokens   *TokenIssuer
	logger   *slog.Logger
}

// NewService constructs a new Service.
func NewService(repo Repository, verifier CredentialVerifier, sessions *SessionStore, tokens *TokenIssuer, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, verifier: verifier, sessions: sessions, tokens: tokens, logger: logger}
}

// Login verifies credentials, opens a session and issues its bearer token.
func (s *Service) Login(ctx context.Context, email, password string) (LoginResponse, error) {
	user, err := s.verifier.Verify(ctx, email, password)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidCredentials) {
			return LoginResponse{}, httpx.Unauthorized(MsgInvalidCredentials)
		}
		return LoginResponse{}, err
	}
	sessionID, expiresAt, err := s.sessions.Create(ctx, user.Principal())
	if err != nil {
		return LoginResponse{}, err
	}
	token, err := s.tokens.Issue(user.Principal(), sessionID, expiresAt)
	if err != nil {
		_ = s.sessions.Revoke(ctx, sessionID)
		return LoginResponse{}, err
	}
	s.logger.Info("user login", slog.Int64("user_id", user.ID))
	return LoginResponse{Message: "Login successful", User: user, Token: token, ExpiresAt: expiresAt}, nil
}

// Resolve checks a bearer token and returns its principal together with the
// session id it was issued for.
func (s *Service) Resolve(ctx context.Context, token string) (shared.Principal, string, error) {
	claims, err := s.tokens.Parse(token)
	if err != nil {
		return shared.Principal{}, "", httpx.Unauthorized("Invalid or expired token")
	}
	principal, err := s.sessions.Lookup(ctx, claims.ID)
	if err != nil {
		if errors.Is(err, shared.ErrSessionRevoked) {
			return shared.Principal{}, "", httpx.Unauthorized("Session has ended, please sign in again")
		}
		return shared.Principal{}, "", err
	}
	if principal.UserID != claims.UserID {
		return shared.Principal{}, "", httpx.Unauthorized("Invalid or expired token")
	}
	return principal, claims.ID, nil
}

// Logout revokes the session.
func (s *Service) Logout(ctx context.Context, sessionID string) error {
	return s.sessions.Revoke(ctx, sessionID)
}

// User returns an account by id.
func (s *Service) User(ctx context.Context, id int64) (User, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return User{}, httpx.NotFound("User not found")
		}
		return User{}, err
	}
	return *user, nil
}

// SessionTTL exposes the configured session lifetime.
func (s *Service) SessionTTL() time.Duration {
	return s.sessions.TTL()
}
