package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/util"
	"github.com/Skotchmaster/storefront/internal/validation"
)

type SessionService struct {
	Repo    *repo.GormRepo
	Tokens  *tokens.Service
	Hasher  *hash.Hasher
	Events  events.Publisher
	Metrics *metrics.Metrics

	dummyOnce sync.Once
	dummyHash string
}

// Session is what register and login hand back to the client.
type Session struct {
	Account *models.Account
	Tokens  *tokens.Pair
}

type RegisterInput struct {
	Name     string `json:"name"     validate:"required,min=2,max=50"`
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required,min=6,max=100"`
}

type LoginInput struct {
	Email    string `json:"email"    validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type ProfileInput struct {
	Name    *string         `json:"name"    validate:"omitempty,min=2,max=50"`
	Phone   *string         `json:"phone"   validate:"omitempty,max=32"`
	Address *models.Address `json:"address"`
}

type PasswordInput struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword"     validate:"required,min=6,max=100"`
}

type UserList struct {
	Users []models.Account `json:"users"`
	Meta  util.Meta        `json:"pagination"`
}

func (s *SessionService) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "session.register")

	in.Name = strings.TrimSpace(in.Name)
	in.Email = repo.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		s.Metrics.Auth("register", metrics.OutcomeFailure)
		return nil, invalid(err)
	}

	pwHash, err := s.Hasher.HashPassword(in.Password)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot hash the password", "error", err)
		s.Metrics.Auth("register", metrics.OutcomeError)
		return nil, err
	}

	acc := &models.Account{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PasswordHash: pwHash,
		Role:         models.RoleUser,
		IsActive:     true,
	}
	pair, err := s.Tokens.IssuePair(acc.ID, acc.Role)
	if err != nil {
		l.Error("register_error", "status", 500, "reason", "cannot issue tokens", "error", err)
		s.Metrics.Auth("register", metrics.OutcomeError)
		return nil, err
	}
	acc.PushRefreshToken(pair.RefreshToken)

	if err := s.Repo.CreateAccount(ctx, acc); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			l.Info("register_error", "status", 409, "reason", "email already registered")
			s.Metrics.Auth("register", metrics.OutcomeFailure)
			return nil, ErrDuplicateEmail
		}
		l.Error("register_error", "status", 500, "reason", "cannot create account", "error", err)
		s.Metrics.Auth("register", metrics.OutcomeError)
		return nil, err
	}

	s.Metrics.Auth("register", metrics.OutcomeSuccess)
	events.Emit(ctx, s.Events, l, events.TopicUsers, acc.ID, events.New("user_registered", map[string]any{
		"user_id": acc.ID,
		"email":   acc.Email,
	}))
	l.Info("user_registered", "user_id", acc.ID)
	return &Session{Account: acc, Tokens: pair}, nil
}

// burnHash spends the same bcrypt work as a real comparison so unknown
// emails are not distinguishable by timing.
func (s *SessionService) burnHash(password string) {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.HashPassword(uuid.NewString())
	})
	s.Hasher.CheckPassword(s.dummyHash, password)
}

func (s *SessionService) Login(ctx context.Context, in LoginInput) (*Session, error) {
	l := logging.FromContext(ctx).With("svc", "session.login")

	in.Email = repo.NormalizeEmail(in.Email)
	if err := validation.Struct(in); err != nil {
		s.Metrics.Auth("login", metrics.OutcomeFailure)
		return nil, invalid(err)
	}

	acc, err := s.Repo.FindAccountByEmail(ctx, in.Email)
	switch {
	case errors.Is(err, repo.ErrNotFound):
		s.burnHash(in.Password)
		l.Info("login_failed", "status", 401, "reason", "invalid credentials")
		s.Metrics.Auth("login", metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	case err != nil:
		l.Error("login_failed", "status", 500, "error", err)
		s.Metrics.Auth("login", metrics.OutcomeError)
		return nil, err
	}

	if !s.Hasher.CheckPassword(acc.PasswordHash, in.Password) {
		l.Info("login_failed", "status", 401, "reason", "invalid credentials")
		s.Metrics.Auth("login", metrics.OutcomeFailure)
		return nil, ErrInvalidCredentials
	}
	if !acc.IsActive {
		l.Info("login_failed", "status", 401, "reason", "account deactivated", "user_id", acc.ID)
		s.Metrics.Auth("login", metrics.OutcomeFailure)
		return nil, ErrAccountDeactivated
	}

	var pair *tokens.Pair
	acc, err = s.Repo.UpdateAccount(ctx, acc.ID, func(a *models.Account) error {
		p, err := s.Tokens.IssuePair(a.ID, a.Role)
		if err != nil {
			return err
		}
		pair = p
		now := time.Now().UTC()
		a.LastLogin = &now
		a.PushRefreshToken(p.RefreshToken)
		return nil
	})
	if err != nil {
		l.Error("login_failed", "status", 500, "error", err)
		s.Metrics.Auth("login", metrics.OutcomeError)
		return nil, err
	}

	s.Metrics.Auth("login", metrics.OutcomeSuccess)
	events.Emit(ctx, s.Events, l, events.TopicUsers, acc.ID, events.New("user_logged_in", map[string]any{
		"user_id": acc.ID,
	}))
	return &Session{Account: acc, Tokens: pair}, nil
}

// Refresh rotates a refresh token that is still in the account's history.
// The presented token stays valid until it is trimmed or logged out.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*tokens.Pair, error) {
	l := logging.FromContext(ctx).With("svc", "session.refresh")

	claims, err := s.Tokens.Verify(refreshToken, tokens.Refresh)
	if err != nil {
		l.Info("refresh_failed", "status", 401, "reason", "token did not verify", "error", err)
		s.Metrics.Auth("refresh", metrics.OutcomeFailure)
		return nil, err
	}

	var pair *tokens.Pair
	_, err = s.Repo.UpdateAccount(ctx, claims.AccountID, func(a *models.Account) error {
		if !a.HasRefreshToken(refreshToken) {
			return tokens.ErrTokenInvalid
		}
		if !a.IsActive {
			return ErrAccountDeactivated
		}
		p, err := s.Tokens.IssuePair(a.ID, a.Role)
		if err != nil {
			return err
		}
		pair = p
		a.PushRefreshToken(p.RefreshToken)
		return nil
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		l.Info("refresh_failed", "status", 404, "reason", "account not found", "user_id", claims.AccountID)
		s.Metrics.Auth("refresh", metrics.OutcomeFailure)
		return nil, ErrAccountNotFound
	case errors.Is(err, tokens.ErrTokenInvalid), errors.Is(err, ErrAccountDeactivated):
		l.Info("refresh_failed", "status", 401, "reason", err.Error(), "user_id", claims.AccountID)
		s.Metrics.Auth("refresh", metrics.OutcomeFailure)
		return nil, err
	case err != nil:
		l.Error("refresh_failed", "status", 500, "error", err)
		s.Metrics.Auth("refresh", metrics.OutcomeError)
		return nil, err
	}

	s.Metrics.Auth("refresh", metrics.OutcomeSuccess)
	return pair, nil
}

// Logout revokes refreshToken. Tokens that do not verify or are no longer
// in the history are ignored; only storage failures are returned.
func (s *SessionService) Logout(ctx context.Context, refreshToken string) error {
	l := logging.FromContext(ctx).With("svc", "session.logout")

	if refreshToken == "" {
		return nil
	}
	claims, err := s.Tokens.Verify(refreshToken, tokens.Refresh)
	if err != nil {
		l.Debug("logout_skip", "reason", "token did not verify")
		return nil
	}

	_, err = s.Repo.UpdateAccount(ctx, claims.AccountID, func(a *models.Account) error {
		a.RemoveRefreshToken(refreshToken)
		return nil
	})
	if err != nil && !errors.Is(err, repo.ErrNotFound) {
		l.Error("logout_error", "status", 500, "error", err)
		s.Metrics.Auth("logout", metrics.OutcomeError)
		return err
	}
	s.Metrics.Auth("logout", metrics.OutcomeSuccess)
	return nil
}

func (s *SessionService) GetAccount(ctx context.Context, id string) (*models.Account, error) {
	acc, err := s.Repo.FindAccountByID(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return acc, err
}

// CurrentUser resolves an access token to its account.
func (s *SessionService) CurrentUser(ctx context.Context, accessToken string) (*models.Account, error) {
	if accessToken == "" {
		return nil, ErrUnauthorized
	}
	claims, err := s.Tokens.Verify(accessToken, tokens.Access)
	if err != nil {
		return nil, err
	}
	return s.GetAccount(ctx, claims.AccountID)
}

func (s *SessionService) UpdateProfile(ctx context.Context, id string, in ProfileInput) (*models.Account, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}

	acc, err := s.Repo.UpdateAccount(ctx, id, func(a *models.Account) error {
		if in.Name != nil {
			a.Name = *in.Name
		}
		if in.Phone != nil {
			a.Phone = strings.TrimSpace(*in.Phone)
		}
		if in.Address != nil {
			addr := *in.Address
			a.Address = &addr
		}
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	return acc, err
}

// ChangePassword also drops every refresh token so other sessions must log in again.
func (s *SessionService) ChangePassword(ctx context.Context, id string, in PasswordInput) error {
	l := logging.FromContext(ctx).With("svc", "session.password", "user_id", id)

	if err := validation.Struct(in); err != nil {
		return invalid(err)
	}

	_, err := s.Repo.UpdateAccount(ctx, id, func(a *models.Account) error {
		if !s.Hasher.CheckPassword(a.PasswordHash, in.CurrentPassword) {
			return ErrInvalidCredentials
		}
		h, err := s.Hasher.HashPassword(in.NewPassword)
		if err != nil {
			return err
		}
		a.PasswordHash = h
		a.RefreshTokens = nil
		return nil
	})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		return ErrAccountNotFound
	case errors.Is(err, ErrInvalidCredentials):
		l.Info("password_change_failed", "status", 401, "reason", "current password mismatch")
		return err
	case err != nil:
		l.Error("password_change_failed", "status", 500, "error", err)
		return err
	}
	l.Info("password_changed")
	return nil
}

func (s *SessionService) ListUsers(ctx context.Context, page, limit int) (*UserList, error) {
	offset, limit := util.Calculate(page, limit)
	total, users, err := s.Repo.ListAccounts(ctx, offset, limit)
	if err != nil {
		return nil, err
	}
	return &UserList{Users: users, Meta: util.NewMeta(page, offset, limit, total)}, nil
}

func (s *SessionService) SetRole(ctx context.Context, id, role string) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "admin.role", "user_id", id)

	if !models.ValidRole(role) {
		return nil, ErrInvalidRole
	}
	acc, err := s.Repo.UpdateAccount(ctx, id, func(a *models.Account) error {
		a.Role = role
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		l.Error("role_update_failed", "status", 500, "error", err)
		return nil, err
	}

	events.Emit(ctx, s.Events, l, events.TopicUsers, acc.ID, events.New("user_role_changed", map[string]any{
		"user_id": acc.ID,
		"role":    role,
	}))
	l.Info("user_role_changed", "role", role)
	return acc, nil
}

// SetActive toggles the account; deactivation also revokes refresh tokens.
func (s *SessionService) SetActive(ctx context.Context, id string, active bool) (*models.Account, error) {
	l := logging.FromContext(ctx).With("svc", "admin.status", "user_id", id)

	acc, err := s.Repo.UpdateAccount(ctx, id, func(a *models.Account) error {
		a.IsActive = active
		if !active {
			a.RefreshTokens = nil
		}
		return nil
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		l.Error("status_update_failed", "status", 500, "error", err)
		return nil, err
	}

	events.Emit(ctx, s.Events, l, events.TopicUsers, acc.ID, events.New("user_status_changed", map[string]any{
		"user_id":   acc.ID,
		"is_active": active,
	}))
	l.Info("user_status_changed", "is_active", active)
	return acc, nil
}
