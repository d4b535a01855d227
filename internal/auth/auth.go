// Package auth manages user sessions: login, logout, refresh token rotation
// and the access token gate in front of protected routes.
package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/vidtube/accounts/internal/db"
	"github.com/vidtube/accounts/internal/logger"
	"github.com/vidtube/accounts/internal/metrics"
	"github.com/vidtube/accounts/internal/token"
	"github.com/vidtube/accounts/internal/validate"
)

var (
	ErrMissingCredentials = errors.New("username or email and password are required")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrMissingToken       = errors.New("token is required")
	ErrInvalidToken       = errors.New("invalid token")
	ErrTokenReused        = errors.New("refresh token is expired or used")
)

// Session event kinds published to the Notifier.
const (
	EventRevoked       = "session.revoked"
	EventRotated       = "session.rotated"
	EventReuseDetected = "session.reuse_detected"
)

// UserStore is the part of the credential store sessions need.
type UserStore interface {
	FindByID(ctx context.Context, id uuid.UUID) (*db.User, error)
	FindPublicByID(ctx context.Context, id uuid.UUID) (*db.PublicUser, error)
	FindByLogin(ctx context.Context, username, email string) (*db.User, error)
	SetRefreshToken(ctx context.Context, id uuid.UUID, token string) error
	SwapRefreshToken(ctx context.Context, id uuid.UUID, expected, next string) (bool, error)
	ClearRefreshToken(ctx context.Context, id uuid.UUID) error
}

// Notifier is told about session changes so open clients can react.
type Notifier interface {
	Notify(userID uuid.UUID, kind string)
}

// LoginInput identifies the user by username or email.
type LoginInput struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Tokens is a freshly issued access/refresh pair.
type Tokens struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Session is the result of a successful login.
type Session struct {
	User *db.PublicUser `json:"user"`
	Tokens
}

type Service struct {
	users    UserStore
	codec    *token.Codec
	notifier Notifier
	metrics  *metrics.Metrics
	log      *logger.Logger
}

// NewService wires the session manager. notifier may be nil; a nil m uses
// the process-wide metrics.
func NewService(users UserStore, codec *token.Codec, notifier Notifier, m *metrics.Metrics) *Service {
	if m == nil {
		m = metrics.Default()
	}
	return &Service{
		users:    users,
		codec:    codec,
		notifier: notifier,
		metrics:  m,
		log:      logger.Default().WithComponent("auth"),
	}
}

// Codec returns the token codec used to sign and check tokens.
func (s *Service) Codec() *token.Codec {
	return s.codec
}

// Login checks the password and starts a new session, replacing any refresh
// token issued before.
func (s *Service) Login(ctx context.Context, in LoginInput) (*Session, error) {
	username := validate.Username(in.Username)
	email := validate.Email(in.Email)
	if (username == "" && email == "") || in.Password == "" {
		return nil, ErrMissingCredentials
	}

	user, err := s.users.FindByLogin(ctx, username, email)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			s.metrics.IncCounter(metrics.CounterLoginFailures)
		}
		return nil, err
	}

	if !user.CheckPassword(in.Password) {
		s.metrics.IncCounter(metrics.CounterLoginFailures)
		s.log.Info(ctx, "login rejected", map[string]any{"user_id": user.ID.String()})
		return nil, ErrInvalidCredentials
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, tokens.RefreshToken); err != nil {
		return nil, fmt.Errorf("persist refresh token: %w", err)
	}

	s.metrics.IncCounter(metrics.CounterLogins)
	s.log.Info(ctx, "user logged in", map[string]any{"user_id": user.ID.String()})

	return &Session{User: user.Public(), Tokens: *tokens}, nil
}

// Logout clears the stored refresh token. Logging out twice is fine.
func (s *Service) Logout(ctx context.Context, userID uuid.UUID) error {
	if err := s.users.ClearRefreshToken(ctx, userID); err != nil {
		return err
	}
	s.metrics.IncCounter(metrics.CounterLogouts)
	s.notify(userID, EventRevoked)
	s.log.Info(ctx, "user logged out", map[string]any{"user_id": userID.String()})
	return nil
}

// Refresh exchanges a refresh token for a new pair. The presented token must
// be the one currently stored; the swap to the new one is a single
// conditional write, so of two concurrent refreshes with the same token at
// most one succeeds.
func (s *Service) Refresh(ctx context.Context, presented string) (*Tokens, error) {
	if presented == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.codec.Verify(presented, token.ClassRefresh)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	if user.RefreshToken == nil {
		// Logged out.
		return nil, ErrInvalidToken
	}
	if !user.HasRefreshToken(presented) {
		s.reused(ctx, userID)
		return nil, ErrTokenReused
	}

	tokens, err := s.issue(user)
	if err != nil {
		return nil, err
	}

	swapped, err := s.users.SwapRefreshToken(ctx, userID, presented, tokens.RefreshToken)
	if err != nil {
		return nil, err
	}
	if !swapped {
		s.reused(ctx, userID)
		return nil, ErrTokenReused
	}

	s.metrics.IncCounter(metrics.CounterRefreshes)
	s.notify(userID, EventRotated)
	return tokens, nil
}

// Authenticate resolves an access token to the user it was issued for. It
// does not consult the stored refresh token.
func (s *Service) Authenticate(ctx context.Context, accessToken string) (*db.PublicUser, error) {
	if accessToken == "" {
		return nil, ErrMissingToken
	}

	claims, err := s.codec.Verify(accessToken, token.ClassAccess)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	userID, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	user, err := s.users.FindPublicByID(ctx, userID)
	if err != nil {
		if errors.Is(err, db.ErrUserNotFound) {
			return nil, ErrInvalidToken
		}
		return nil, err
	}
	return user, nil
}

func (s *Service) issue(user *db.User) (*Tokens, error) {
	subject := token.Subject{
		UserID:   user.ID.String(),
		Username: user.Username,
		Email:    user.Email,
		FullName: user.FullName,
	}

	access, err := s.codec.Issue(token.ClassAccess, subject)
	if err != nil {
		return nil, err
	}
	refresh, err := s.codec.Issue(token.ClassRefresh, subject)
	if err != nil {
		return nil, err
	}
	return &Tokens{AccessToken: access, RefreshToken: refresh}, nil
}

func (s *Service) reused(ctx context.Context, userID uuid.UUID) {
	s.metrics.IncCounter(metrics.CounterTokenReuse)
	s.notify(userID, EventReuseDetected)
	s.log.Warn(ctx, "stale refresh token presented", map[string]any{"user_id": userID.String()})
}

func (s *Service) notify(userID uuid.UUID, kind string) {
	if s.notifier != nil {
		s.notifier.Notify(userID, kind)
	}
}
