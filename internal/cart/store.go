package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
)

var ErrCartNotFound = errors.New("cart not found")

// Store persists carts by owner key: the account id for account carts, the
// cart id for guest carts.
type Store interface {
	Load(ctx context.Context, key string) (*models.Cart, error)
	Save(ctx context.Context, c *models.Cart) error
	Delete(ctx context.Context, key string) error
}

type AccountStore struct {
	Repo *repo.GormRepo
}

func (s *AccountStore) Load(ctx context.Context, accountID string) (*models.Cart, error) {
	c, err := s.Repo.FindCartByUser(ctx, accountID)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, ErrCartNotFound
	}
	return c, err
}

func (s *AccountStore) Save(ctx context.Context, c *models.Cart) error {
	if c.UserID == "" {
		return fmt.Errorf("account cart without user id")
	}
	return s.Repo.SaveCart(ctx, c)
}

func (s *AccountStore) Delete(ctx context.Context, accountID string) error {
	return s.Repo.DeleteCartByUser(ctx, accountID)
}

const guestKeyPrefix = "guest_cart:"

type RedisStore struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{Client: client, TTL: ttl}
}

func (s *RedisStore) key(id string) string {
	return guestKeyPrefix + id
}

func (s *RedisStore) Load(ctx context.Context, id string) (*models.Cart, error) {
	raw, err := s.Client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("redis get guest cart: %w", err)
	}

	var c models.Cart
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, fmt.Errorf("decode guest cart: %w", err)
	}
	return &c, nil
}

func (s *RedisStore) Save(ctx context.Context, c *models.Cart) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode guest cart: %w", err)
	}
	if err := s.Client.Set(ctx, s.key(c.ID), raw, s.TTL).Err(); err != nil {
		return fmt.Errorf("redis set guest cart: %w", err)
	}
	return nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.Client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("redis del guest cart: %w", err)
	}
	return nil
}

// MemoryStore keeps guest carts in process. Used when redis is not configured.
// Entries expire TTL after their last save, like the redis store; a TTL <= 0
// keeps them until deleted. Expired entries are dropped on load and swept on save.
type MemoryStore struct {
	TTL time.Duration
	Now func() time.Time

	mu    sync.Mutex
	carts map[string]memoryEntry
}

type memoryEntry struct {
	cart      models.Cart
	expiresAt time.Time
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{TTL: ttl, Now: time.Now, carts: make(map[string]memoryEntry)}
}

func (s *MemoryStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

func (s *MemoryStore) Load(_ context.Context, id string) (*models.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.carts[id]
	if !ok {
		return nil, ErrCartNotFound
	}
	if e.expired(s.now()) {
		delete(s.carts, id)
		return nil, ErrCartNotFound
	}
	c := e.cart
	c.Items = slices.Clone(c.Items)
	return &c, nil
}

func (s *MemoryStore) Save(_ context.Context, c *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	for id, e := range s.carts {
		if e.expired(now) {
			delete(s.carts, id)
		}
	}

	cp := *c
	cp.Items = slices.Clone(c.Items)
	e := memoryEntry{cart: cp}
	if s.TTL > 0 {
		e.expiresAt = now.Add(s.TTL)
	}
	s.carts[c.ID] = e
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.carts, id)
	return nil
}

// Len reports the number of stored carts, expired ones included until swept.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.carts)
}
