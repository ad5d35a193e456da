package cart

import (
	"context"
	"errors"
	"fmt"

	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
)

var (
	ErrNoOwner         = errors.New("cart owner required")
	ErrProductNotFound = errors.New("product not found")
)

// Owner identifies whose cart an operation targets. Exactly one field is set.
type Owner struct {
	AccountID string
	GuestID   string
}

func Account(id string) Owner { return Owner{AccountID: id} }
func Guest(id string) Owner   { return Owner{GuestID: id} }

func (o Owner) key() string {
	if o.AccountID != "" {
		return o.AccountID
	}
	return o.GuestID
}

func (o Owner) kind() string {
	if o.AccountID != "" {
		return "account"
	}
	return "guest"
}

type ProductLookup interface {
	GetProduct(ctx context.Context, id string) (*models.Product, error)
}

type Service struct {
	Reconciler *Reconciler
	Accounts   Store
	Guests     Store
	Products   ProductLookup
	Events     events.Publisher
	Metrics    *metrics.Metrics
}

func (s *Service) store(o Owner) (Store, error) {
	switch {
	case o.AccountID != "":
		return s.Accounts, nil
	case o.GuestID != "":
		return s.Guests, nil
	default:
		return nil, ErrNoOwner
	}
}

func (s *Service) fresh(o Owner) *models.Cart {
	c := &models.Cart{UserID: o.AccountID, Items: []models.LineItem{}}
	if o.GuestID != "" {
		c.ID = o.GuestID
	} else {
		c.ID = s.Reconciler.newID()
	}
	c.CreatedAt = s.Reconciler.now()
	c.UpdatedAt = c.CreatedAt
	return c
}

func (s *Service) load(ctx context.Context, o Owner) (*models.Cart, error) {
	st, err := s.store(o)
	if err != nil {
		return nil, err
	}
	c, err := st.Load(ctx, o.key())
	if errors.Is(err, ErrCartNotFound) {
		return s.fresh(o), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %s cart: %w", o.kind(), err)
	}
	if c.Items == nil {
		c.Items = []models.LineItem{}
	}
	return c, nil
}

// Get returns the owner's cart, or an empty unsaved one.
func (s *Service) Get(ctx context.Context, o Owner) (*models.Cart, error) {
	return s.load(ctx, o)
}

// Apply loads the owner's cart, computes the next value and persists it.
// When persisting fails the pre-mutation cart is returned with ErrPersistFailed.
func (s *Service) Apply(ctx context.Context, o Owner, op string, mutate func(models.Cart) (models.Cart, error)) (*models.Cart, error) {
	l := logging.FromContext(ctx).With("svc", "cart."+op, "owner", o.kind())

	prev, err := s.load(ctx, o)
	if err != nil {
		s.Metrics.Cart(op, metrics.OutcomeError)
		return nil, err
	}

	next, err := mutate(*prev)
	if err != nil {
		s.Metrics.Cart(op, metrics.OutcomeFailure)
		return prev, err
	}

	st, _ := s.store(o)
	if err := st.Save(ctx, &next); err != nil {
		l.Error("cart_persist_failed", "status", 500, "error", err)
		s.Metrics.Cart(op, metrics.OutcomeError)
		return prev, fmt.Errorf("%w: %v", ErrPersistFailed, err)
	}

	s.Metrics.Cart(op, metrics.OutcomeSuccess)
	events.Emit(ctx, s.Events, l, events.TopicCarts, next.ID, events.New("cart_"+op, map[string]any{
		"cart_id":    next.ID,
		"user_id":    next.UserID,
		"item_count": next.ItemCount(),
		"total":      next.Total,
	}))
	return &next, nil
}

func (s *Service) AddItem(ctx context.Context, o Owner, productID string, quantity int) (*models.Cart, error) {
	if quantity <= 0 {
		return nil, ErrInvalidQuantity
	}
	p, err := s.Products.GetProduct(ctx, productID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	snap := p.Snapshot()
	return s.Apply(ctx, o, "add", func(c models.Cart) (models.Cart, error) {
		return s.Reconciler.AddItem(c, snap, quantity)
	})
}

func (s *Service) UpdateQuantity(ctx context.Context, o Owner, itemID string, quantity int) (*models.Cart, error) {
	return s.Apply(ctx, o, "update", func(c models.Cart) (models.Cart, error) {
		return s.Reconciler.UpdateQuantity(c, itemID, quantity)
	})
}

func (s *Service) RemoveItem(ctx context.Context, o Owner, itemID string) (*models.Cart, error) {
	return s.Apply(ctx, o, "remove", func(c models.Cart) (models.Cart, error) {
		return s.Reconciler.RemoveItem(c, itemID), nil
	})
}

func (s *Service) Clear(ctx context.Context, o Owner) (*models.Cart, error) {
	return s.Apply(ctx, o, "clear", func(c models.Cart) (models.Cart, error) {
		return s.Reconciler.Clear(c), nil
	})
}

// MergeGuest moves the guest cart into the account cart and then discards
// the guest cart. If the merged cart cannot be saved the guest cart is kept.
func (s *Service) MergeGuest(ctx context.Context, guestID, accountID string) (*models.Cart, error) {
	l := logging.FromContext(ctx).With("svc", "cart.merge")

	if guestID == "" || accountID == "" {
		return nil, ErrNoOwner
	}

	guest, err := s.Guests.Load(ctx, guestID)
	if errors.Is(err, ErrCartNotFound) {
		return s.load(ctx, Account(accountID))
	}
	if err != nil {
		return nil, fmt.Errorf("load guest cart: %w", err)
	}

	out, err := s.Apply(ctx, Account(accountID), "merge", func(c models.Cart) (models.Cart, error) {
		return s.Reconciler.Merge(*guest, c), nil
	})
	if err != nil {
		return out, err
	}

	if err := s.Guests.Delete(ctx, guestID); err != nil {
		l.Warn("guest_cart_delete_failed", "error", err)
	}
	return out, nil
}
