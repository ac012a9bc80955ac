package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/coreos/go-oidc/v3/oidc"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"golang.org/x/oauth2"

	"github.com/jw6ventures/planner/internal/config"
	httperrors "github.com/jw6ventures/planner/internal/http/errors"
	"github.com/jw6ventures/planner/internal/store"
	"github.com/jw6ventures/planner/internal/validation"
)

// ErrInvalidCredentials is returned for any failed password check. It does
// not reveal whether the username exists.
var ErrInvalidCredentials = errors.New("invalid username or password")

// Service encapsulates password accounts, OpenID Connect login and session
// enforcement.
type Service struct {
	users    store.UserRepository
	sessions *SessionManager
	logger   *zap.Logger
	oidc     *oidcClient
	cost     int
}

type oidcClient struct {
	oauth    *oauth2.Config
	verifier *oidc.IDTokenVerifier
}

// NewService builds the service. When OAuth is configured the provider's
// discovery document is fetched, so ctx bounds that request.
func NewService(ctx context.Context, cfg *config.Config, users store.UserRepository, sessions *SessionManager, logger *zap.Logger) (*Service, error) {
	s := &Service{users: users, sessions: sessions, logger: logger, cost: bcrypt.DefaultCost}
	if !cfg.OAuthEnabled() {
		return s, nil
	}

	issuer := cfg.OAuth.IssuerURL
	if issuer == "" {
		issuer = strings.TrimSuffix(cfg.OAuth.DiscoveryURL, "/.well-known/openid-configuration")
	}
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover oidc provider: %w", err)
	}
	s.oidc = &oidcClient{
		oauth: &oauth2.Config{
			ClientID:     cfg.OAuth.ClientID,
			ClientSecret: cfg.OAuth.ClientSecret,
			Endpoint:     provider.Endpoint(),
			RedirectURL:  strings.TrimRight(cfg.BaseURL, "/") + cfg.OAuth.RedirectPath,
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: provider.Verifier(&oidc.Config{ClientID: cfg.OAuth.ClientID}),
	}
	return s, nil
}

// OAuthEnabled reports whether OpenID Connect login is available.
func (s *Service) OAuthEnabled() bool {
	return s.oidc != nil
}

// Sessions returns the cookie session manager.
func (s *Service) Sessions() *SessionManager {
	return s.sessions
}

// RegisterParams is the input of Register.
type RegisterParams struct {
	Username string `json:"username" validate:"required,min=3,max=64"`
	Password string `json:"password" validate:"required,min=8,bcryptlen"`
	Name     string `json:"name" validate:"max=128"`
	Email    string `json:"email" validate:"omitempty,email"`
}

// Register creates a password account. A taken username yields
// store.ErrConflict.
func (s *Service) Register(ctx context.Context, p RegisterParams) (*store.User, error) {
	p.Username = strings.TrimSpace(p.Username)
	p.Email = strings.TrimSpace(p.Email)
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if strings.ContainsAny(p.Username, " \t\n") {
		return nil, validation.Errorf("username must not contain spaces")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(p.Password), s.cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	user, err := s.users.Create(ctx, store.User{
		Username:     p.Username,
		PasswordHash: string(hash),
		Name:         strings.TrimSpace(p.Name),
		Email:        p.Email,
	})
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, fmt.Errorf("username %q is taken: %w", p.Username, store.ErrConflict)
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.logger.Info("user registered", zap.String("user_id", user.ID), zap.String("username", user.Username))
	return user, nil
}

// Login checks a username and password.
func (s *Service) Login(ctx context.Context, username, password string) (*store.User, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.logger.Warn("login with unknown username", zap.String("username", username))
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("load user: %w", err)
	}
	// Accounts created through OIDC have no password.
	if user.PasswordHash == "" {
		return nil, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		s.logger.Warn("login with wrong password", zap.String("user_id", user.ID))
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// ProfileParams is the input of UpdateProfile.
type ProfileParams struct {
	Name  string `json:"name" validate:"max=128"`
	Email string `json:"email" validate:"omitempty,email"`
}

// UpdateProfile replaces the display name and email of a user.
func (s *Service) UpdateProfile(ctx context.Context, userID string, p ProfileParams) (*store.User, error) {
	p.Name = strings.TrimSpace(p.Name)
	p.Email = strings.TrimSpace(p.Email)
	if err := validation.Struct(p); err != nil {
		return nil, err
	}
	if err := s.users.UpdateProfile(ctx, userID, p.Name, p.Email); err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.users.GetByID(ctx, userID)
}

// ChangePassword replaces the password after checking the current one.
func (s *Service) ChangePassword(ctx context.Context, userID, current, next string) error {
	if err := validation.Struct(struct {
		Password string `json:"new_password" validate:"required,min=8,bcryptlen"`
	}{next}); err != nil {
		return err
	}
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}
	if user.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(next), s.cost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, userID, string(hash)); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.logger.Info("password changed", zap.String("user_id", userID))
	return nil
}

// RequireSession loads the user of the session cookie into the request
// context or answers 401.
func (s *Service) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := s.sessions.CurrentUserID(r)
		if !ok {
			httperrors.Write(w, r, http.StatusUnauthorized, "authentication required")
			return
		}
		user, err := s.users.GetByID(r.Context(), userID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				s.sessions.Clear(w)
				httperrors.Write(w, r, http.StatusUnauthorized, "authentication required")
				return
			}
			httperrors.InternalError(w, r, err, "load session user")
			return
		}
		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

// BeginOAuth starts the OpenID Connect authorization code flow.
func (s *Service) BeginOAuth(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		httperrors.Write(w, r, http.StatusNotFound, "oauth login is not configured")
		return
	}
	state, err := randomToken()
	if err != nil {
		httperrors.InternalError(w, r, err, "generate oauth state")
		return
	}
	nonce, err := randomToken()
	if err != nil {
		httperrors.InternalError(w, r, err, "generate oauth nonce")
		return
	}
	if err := s.sessions.issueState(w, state, nonce); err != nil {
		httperrors.InternalError(w, r, err, "issue oauth state")
		return
	}
	http.Redirect(w, r, s.oidc.oauth.AuthCodeURL(state, oidc.Nonce(nonce)), http.StatusFound)
}

// HandleOAuthCallback completes the flow, links the account by subject and
// starts a session.
func (s *Service) HandleOAuthCallback(w http.ResponseWriter, r *http.Request) {
	if s.oidc == nil {
		httperrors.Write(w, r, http.StatusNotFound, "oauth login is not configured")
		return
	}
	pending, ok := s.sessions.consumeState(w, r)
	q := r.URL.Query()
	if !ok || pending.State == "" || q.Get("state") != pending.State {
		httperrors.Write(w, r, http.StatusBadRequest, "invalid oauth state")
		return
	}
	if e := q.Get("error"); e != "" {
		httperrors.BadRequestError(w, r, errors.New(e), "oauth login was rejected")
		return
	}

	ctx := r.Context()
	token, err := s.oidc.oauth.Exchange(ctx, q.Get("code"))
	if err != nil {
		httperrors.BadRequestError(w, r, err, "oauth code exchange failed")
		return
	}
	rawID, ok := token.Extra("id_token").(string)
	if !ok {
		httperrors.BadRequestError(w, r, errors.New("token response has no id_token"), "oauth code exchange failed")
		return
	}
	idToken, err := s.oidc.verifier.Verify(ctx, rawID)
	if err != nil {
		httperrors.BadRequestError(w, r, err, "invalid id token")
		return
	}
	if idToken.Nonce != pending.Nonce {
		httperrors.Write(w, r, http.StatusBadRequest, "invalid id token")
		return
	}
	var claims struct {
		Email string `json:"email"`
	}
	if err := idToken.Claims(&claims); err != nil {
		httperrors.BadRequestError(w, r, err, "invalid id token")
		return
	}

	user, err := s.users.UpsertOAuthUser(ctx, idToken.Subject, claims.Email)
	if err != nil {
		httperrors.InternalError(w, r, err, "link oauth account")
		return
	}
	if err := s.sessions.Issue(w, user.ID); err != nil {
		httperrors.InternalError(w, r, err, "issue session")
		return
	}
	s.logger.Info("oauth login", zap.String("user_id", user.ID))
	http.Redirect(w, r, "/", http.StatusFound)
}

func randomToken() (string, error) {
	buf := make([]byte, 24)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
