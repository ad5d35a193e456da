package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/Skotchmaster/storefront/internal/db/dbtest"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/hash"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/tokens"
	"github.com/Skotchmaster/storefront/internal/validation"
)

func newSessionService(t *testing.T) (*SessionService, *events.Recorder) {
	t.Helper()

	rec := &events.Recorder{}
	return &SessionService{
		Repo:    repo.New(dbtest.New(t)),
		Tokens:  tokens.NewService([]byte("test-access-secret"), []byte("test-refresh-secret"), 15*time.Minute, 24*time.Hour),
		Hasher:  hash.New(bcrypt.MinCost),
		Events:  rec,
		Metrics: metrics.New(),
	}, rec
}

func register(t *testing.T, s *SessionService, email string) *Session {
	t.Helper()
	sess, err := s.Register(context.Background(), RegisterInput{Name: "Jane Doe", Email: email, Password: "secret1"})
	require.NoError(t, err)
	return sess
}

func TestSession_RegisterThenLogin(t *testing.T) {
	s, rec := newSessionService(t)
	ctx := context.Background()

	reg, err := s.Register(ctx, RegisterInput{Name: "  Jane Doe ", Email: " Jane@Example.com", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", reg.Account.Name)
	assert.Equal(t, "jane@example.com", reg.Account.Email)
	assert.Equal(t, models.RoleUser, reg.Account.Role)
	assert.True(t, reg.Account.IsActive)
	assert.NotEqual(t, "secret1", reg.Account.PasswordHash)

	stored, err := s.Repo.FindAccountByID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{reg.Tokens.RefreshToken}, stored.RefreshTokens)

	login, err := s.Login(ctx, LoginInput{Email: "JANE@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NotNil(t, login.Account.LastLogin)

	claims, err := s.Tokens.Verify(login.Tokens.AccessToken, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, claims.AccountID)
	assert.Equal(t, models.RoleUser, claims.Role)

	assert.Equal(t, []string{"user_registered", "user_logged_in"}, rec.Types(events.TopicUsers))
}

func TestSession_RegisterValidation(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
	}{
		{name: "short name", in: RegisterInput{Name: "J", Email: "j@example.com", Password: "secret1"}},
		{name: "long name", in: RegisterInput{Name: string(make([]byte, 51)), Email: "j@example.com", Password: "secret1"}},
		{name: "bad email", in: RegisterInput{Name: "Jane", Email: "not-an-email", Password: "secret1"}},
		{name: "short password", in: RegisterInput{Name: "Jane", Email: "j@example.com", Password: "12345"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Register(ctx, tt.in)
			require.ErrorIs(t, err, ErrValidation)

			var verr *validation.Error
			assert.True(t, errors.As(err, &verr))
		})
	}
}

func TestSession_RegisterDuplicateEmail(t *testing.T) {
	s, _ := newSessionService(t)
	register(t, s, "jane@example.com")

	_, err := s.Register(context.Background(), RegisterInput{Name: "Other", Email: "JANE@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrDuplicateEmail)
}

func TestSession_LoginDoesNotLeakWhichPartFailed(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	register(t, s, "jane@example.com")

	_, errWrongPw := s.Login(ctx, LoginInput{Email: "jane@example.com", Password: "wrong-pass"})
	_, errNoUser := s.Login(ctx, LoginInput{Email: "nobody@example.com", Password: "secret1"})

	require.ErrorIs(t, errWrongPw, ErrInvalidCredentials)
	require.ErrorIs(t, errNoUser, ErrInvalidCredentials)
	assert.Equal(t, errWrongPw.Error(), errNoUser.Error())

	_, err := s.Login(ctx, LoginInput{Email: "jane", Password: "x"})
	assert.ErrorIs(t, err, ErrValidation)
}

func TestSession_LoginDeactivated(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	_, err := s.SetActive(ctx, reg.Account.ID, false)
	require.NoError(t, err)

	_, err = s.Login(ctx, LoginInput{Email: "jane@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, ErrAccountDeactivated)

	_, err = s.Login(ctx, LoginInput{Email: "jane@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, ErrInvalidCredentials, "wrong password is reported before deactivation")
}

func TestSession_RotationHistoryCapped(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	var last *Session
	for i := 0; i < 8; i++ {
		sess, err := s.Login(ctx, LoginInput{Email: "jane@example.com", Password: "secret1"})
		require.NoError(t, err)
		last = sess
	}

	acc, err := s.Repo.FindAccountByID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.Len(t, acc.RefreshTokens, models.MaxRefreshTokens)
	assert.Equal(t, last.Tokens.RefreshToken, acc.RefreshTokens[len(acc.RefreshTokens)-1])

	_, err = s.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid, "trimmed tokens are revoked")
}

func TestSession_Refresh(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	pair, err := s.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, reg.Tokens.RefreshToken, pair.RefreshToken)

	claims, err := s.Tokens.Verify(pair.AccessToken, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, claims.AccountID)

	acc, err := s.Repo.FindAccountByID(ctx, reg.Account.ID)
	require.NoError(t, err)
	assert.True(t, acc.HasRefreshToken(pair.RefreshToken))
	assert.True(t, acc.HasRefreshToken(reg.Tokens.RefreshToken))

	_, err = s.Refresh(ctx, "garbage")
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid)

	_, err = s.Refresh(ctx, reg.Tokens.AccessToken)
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid, "access tokens cannot refresh")
}

func TestSession_RefreshPicksUpRoleChange(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	_, err := s.SetRole(ctx, reg.Account.ID, models.RoleAdmin)
	require.NoError(t, err)

	pair, err := s.Refresh(ctx, reg.Tokens.RefreshToken)
	require.NoError(t, err)
	claims, err := s.Tokens.Verify(pair.AccessToken, tokens.Access)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestSession_RefreshExpired(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	s.Tokens.Now = func() time.Time { return time.Now().Add(48 * time.Hour) }
	_, err := s.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, tokens.ErrTokenExpired)
}

func TestSession_RefreshAccountGone(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()

	token, _, err := s.Tokens.IssueRefresh("missing-account", models.RoleUser)
	require.NoError(t, err)

	_, err = s.Refresh(ctx, token)
	require.ErrorIs(t, err, ErrAccountNotFound)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_ConcurrentRefreshBothSucceed(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Refresh(ctx, reg.Tokens.RefreshToken)
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
}

func TestSession_LogoutRevokesRefreshToken(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	require.NoError(t, s.Logout(ctx, reg.Tokens.RefreshToken))
	_, err := s.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid)

	assert.NoError(t, s.Logout(ctx, reg.Tokens.RefreshToken), "second logout is a no-op")
	assert.NoError(t, s.Logout(ctx, "garbage"))
	assert.NoError(t, s.Logout(ctx, ""))
}

func TestSession_CurrentUser(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	acc, err := s.CurrentUser(ctx, reg.Tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, reg.Account.ID, acc.ID)

	_, err = s.CurrentUser(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = s.CurrentUser(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid)

	token, _, err := s.Tokens.IssueAccess("deleted-account", models.RoleUser)
	require.NoError(t, err)
	_, err = s.CurrentUser(ctx, token)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSession_UpdateProfileAndPassword(t *testing.T) {
	s, _ := newSessionService(t)
	ctx := context.Background()
	reg := register(t, s, "jane@example.com")

	name, phone := "Jane Q. Doe", "+1 555 0100"
	acc, err := s.UpdateProfile(ctx, reg.Account.ID, ProfileInput{
		Name:    &name,
		Phone:   &phone,
		Address: &models.Address{City: "Springfield", Country: "US"},
	})
	require.NoError(t, err)
	assert.Equal(t, name, acc.Name)
	require.NotNil(t, acc.Address)
	assert.Equal(t, "Springfield", acc.Address.City)

	short := "J"
	_, err = s.UpdateProfile(ctx, reg.Account.ID, ProfileInput{Name: &short})
	assert.ErrorIs(t, err, ErrValidation)

	err = s.ChangePassword(ctx, reg.Account.ID, PasswordInput{CurrentPassword: "nope", NewPassword: "newsecret"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	require.NoError(t, s.ChangePassword(ctx, reg.Account.ID, PasswordInput{CurrentPassword: "secret1", NewPassword: "newsecret"}))
	_, err = s.Refresh(ctx, reg.Tokens.RefreshToken)
	assert.ErrorIs(t, err, tokens.ErrTokenInvalid, "password change revokes sessions")

	_, err = s.Login(ctx, LoginInput{Email: "jane@example.com", Password: "newsecret"})
	assert.NoError(t, err)
}

func TestSession_AdminOperations(t *testing.T) {
	s, rec := newSessionService(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, register(t, s, fmt.Sprintf("user%d@example.com", i)).Account.ID)
	}

	list, err := s.ListUsers(ctx, 1, 2)
	require.NoError(t, err)
	assert.Len(t, list.Users, 2)
	assert.EqualValues(t, 3, list.Meta.Total)
	assert.True(t, list.Meta.HasNext)

	_, err = s.SetRole(ctx, ids[0], "superuser")
	assert.ErrorIs(t, err, ErrInvalidRole)
	_, err = s.SetRole(ctx, "missing", models.RoleAdmin)
	assert.ErrorIs(t, err, ErrAccountNotFound)

	acc, err := s.SetRole(ctx, ids[0], models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, acc.Role)

	acc, err = s.SetActive(ctx, ids[1], false)
	require.NoError(t, err)
	assert.False(t, acc.IsActive)
	assert.Empty(t, acc.RefreshTokens)

	types := rec.Types(events.TopicUsers)
	assert.Contains(t, types, "user_role_changed")
	assert.Contains(t, types, "user_status_changed")
}
