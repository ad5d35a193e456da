package tokens

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

var (
	ErrSigning      = errors.New("token signing misconfigured")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// Claims is the signed payload of both token kinds.
type Claims struct {
	AccountID string `json:"id"`
	Role      string `json:"role"`
	Kind      Kind   `json:"typ"`
	jwt.RegisteredClaims
}

type Pair struct {
	AccessToken  string
	RefreshToken string
	AccessExp    time.Time
	RefreshExp   time.Time
}

type Service struct {
	AccessSecret  []byte
	RefreshSecret []byte
	AccessTTL     time.Duration
	RefreshTTL    time.Duration

	// Now is overridable for tests.
	Now func() time.Time
}

func NewService(accessSecret, refreshSecret []byte, accessTTL, refreshTTL time.Duration) *Service {
	if accessTTL <= 0 {
		accessTTL = 15 * time.Minute
	}
	if refreshTTL <= 0 {
		refreshTTL = 7 * 24 * time.Hour
	}
	return &Service{
		AccessSecret:  accessSecret,
		RefreshSecret: refreshSecret,
		AccessTTL:     accessTTL,
		RefreshTTL:    refreshTTL,
		Now:           time.Now,
	}
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Service) params(kind Kind) ([]byte, time.Duration, error) {
	switch kind {
	case Access:
		return s.AccessSecret, s.AccessTTL, nil
	case Refresh:
		return s.RefreshSecret, s.RefreshTTL, nil
	default:
		return nil, 0, fmt.Errorf("unknown token kind %q: %w", kind, ErrSigning)
	}
}

func (s *Service) issue(kind Kind, accountID, role string) (string, time.Time, error) {
	secret, ttl, err := s.params(kind)
	if err != nil {
		return "", time.Time{}, err
	}
	if len(secret) == 0 {
		return "", time.Time{}, fmt.Errorf("%s secret is empty: %w", kind, ErrSigning)
	}

	now := s.now()
	exp := now.Add(ttl)
	claims := Claims{
		AccountID: accountID,
		Role:      role,
		Kind:      kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   accountID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %v: %w", kind, err, ErrSigning)
	}
	return signed, exp, nil
}

func (s *Service) IssueAccess(accountID, role string) (string, time.Time, error) {
	return s.issue(Access, accountID, role)
}

func (s *Service) IssueRefresh(accountID, role string) (string, time.Time, error) {
	return s.issue(Refresh, accountID, role)
}

func (s *Service) IssuePair(accountID, role string) (*Pair, error) {
	access, accessExp, err := s.IssueAccess(accountID, role)
	if err != nil {
		return nil, err
	}
	refresh, refreshExp, err := s.IssueRefresh(accountID, role)
	if err != nil {
		return nil, err
	}
	return &Pair{
		AccessToken:  access,
		RefreshToken: refresh,
		AccessExp:    accessExp,
		RefreshExp:   refreshExp,
	}, nil
}

// Verify checks signature, expiry and kind. Expiry is reported as
// ErrTokenExpired, every other failure as ErrTokenInvalid.
func (s *Service) Verify(token string, kind Kind) (*Claims, error) {
	secret, _, err := s.params(kind)
	if err != nil {
		return nil, ErrTokenInvalid
	}
	if token == "" || len(secret) == 0 {
		return nil, ErrTokenInvalid
	}

	var claims Claims
	tkn, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected sign method")
		}
		return secret, nil
	},
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, fmt.Errorf("%v: %w", err, ErrTokenInvalid)
	}
	if !tkn.Valid || claims.Kind != kind || claims.AccountID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims, nil
}
