// Package services contains server-side business logic. This file implements
// SessionService, which reconciles logins against the user directory and
// keeps the presence registry in step with session lifecycle events.
package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/chatkeeper/internal/common"
	"github.com/dmitrijs2005/chatkeeper/internal/server/auth"
	"github.com/dmitrijs2005/chatkeeper/internal/server/config"
	"github.com/dmitrijs2005/chatkeeper/internal/server/models"
	"github.com/dmitrijs2005/chatkeeper/internal/server/presence"
	"github.com/dmitrijs2005/chatkeeper/internal/server/repositories/repomanager"
)

// SessionService provides session-related operations:
//   - Login: resolve a returning or brand-new user and register presence
//   - Logout: drop presence
//   - Users: list the stored user directory
//   - ConnectedUsers: snapshot of the presence registry
type SessionService struct {
	db                    *sql.DB
	repomanager           repomanager.RepositoryManager
	registry              *presence.Registry
	jwtSecret             []byte
	tokenValidityDuration time.Duration
	storeCallTimeout      time.Duration
}

// NewSessionService constructs a SessionService using repositories, the
// presence registry, and server config.
func NewSessionService(db *sql.DB, m repomanager.RepositoryManager, registry *presence.Registry, cfg *config.Config) *SessionService {
	return &SessionService{
		db:                    db,
		repomanager:           m,
		registry:              registry,
		jwtSecret:             []byte(cfg.SecretKey),
		tokenValidityDuration: cfg.TokenValidityDuration,
		storeCallTimeout:      cfg.StoreCallTimeout,
	}
}

// Login resolves the session subject for (username, token) and registers it
// in the presence registry.
//
// With a token present, verification failure rejects the login outright:
// the returned error is one of the closed token verification outcomes and
// must not fall through to username-only lookup. A token that verifies but
// no longer matches the stored one (superseded) falls back to the
// username path. Without a token, an existing user gets a freshly issued
// token (invalidating any prior one) and an unknown username gets a new
// user row.
//
// The registry is only touched after every store round trip has completed.
func (s *SessionService) Login(ctx context.Context, username, token string) (*models.ConnectedUser, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeCallTimeout)
	defer cancel()

	repo := s.repomanager.Users(s.db)

	var user *models.User
	sessionToken := token

	if token != "" {
		decodedUsername, err := auth.UsernameFromToken(token, s.jwtSecret)
		if err != nil {
			if auth.IsVerificationFailure(err) {
				return nil, err
			}
			return nil, common.ErrorInternal
		}

		u, err := repo.GetByUsernameAndToken(ctx, decodedUsername, token)
		if err != nil && !errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorInternal
		}
		user = u
	}

	if user == nil {
		existing, err := repo.GetByUsername(ctx, username)
		switch {
		case err == nil:
			// Forced re-authentication: the previous token stops verifying
			// against the stored record the moment the new one is persisted.
			fresh, err := auth.GenerateToken(username, s.jwtSecret, s.tokenValidityDuration)
			if err != nil {
				return nil, common.ErrorInternal
			}
			if err := repo.UpdateToken(ctx, existing.ID, fresh); err != nil {
				return nil, common.ErrorInternal
			}
			existing.Token = fresh
			user = existing
			sessionToken = fresh

		case errors.Is(err, common.ErrorNotFound):
			fresh, err := auth.GenerateToken(username, s.jwtSecret, s.tokenValidityDuration)
			if err != nil {
				return nil, common.ErrorInternal
			}
			created, err := repo.Create(ctx, &models.User{Username: username, Token: fresh})
			if err != nil {
				return nil, common.ErrorInternal
			}
			user = created
			sessionToken = fresh

		default:
			return nil, common.ErrorInternal
		}
	}

	if user == nil || user.ID == "" {
		return nil, common.ErrorInternal
	}

	connected := models.ConnectedUser{ID: user.ID, Username: user.Username, Token: sessionToken}
	s.registry.Add(connected)

	return &connected, nil
}

// Logout drops the user from the presence registry. It is idempotent and
// never fails; logging out an id that is not present is a no-op.
func (s *SessionService) Logout(id string) {
	s.registry.Remove(id)
}

// Users returns the stored user directory.
func (s *SessionService) Users(ctx context.Context) ([]*models.User, error) {
	ctx, cancel := context.WithTimeout(ctx, s.storeCallTimeout)
	defer cancel()

	repo := s.repomanager.Users(s.db)
	list, err := repo.List(ctx)
	if err != nil {
		return nil, common.ErrorInternal
	}
	if list == nil {
		list = []*models.User{}
	}
	return list, nil
}

// ConnectedUsers returns the current presence list, tokens stripped.
func (s *SessionService) ConnectedUsers() []models.PublicUser {
	return s.registry.List()
}
