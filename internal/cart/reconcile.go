package cart

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/models"
)

// MaxLineQuantity caps the quantity of a single line item.
const MaxLineQuantity = 999

var (
	ErrInvalidQuantity = errors.New("quantity must be a positive integer")
	ErrPersistFailed   = errors.New("cart could not be saved")

	errQuantityTooLarge = fmt.Errorf("%w: at most %d per item", ErrInvalidQuantity, MaxLineQuantity)
)

// Reconciler applies cart mutations. Every method returns a new cart value
// with recomputed totals and never mutates the input's item slice.
type Reconciler struct {
	Pricing Pricing
	Now     func() time.Time
	NewID   func() string
}

func NewReconciler(p Pricing) *Reconciler {
	return &Reconciler{Pricing: p, Now: time.Now, NewID: uuid.NewString}
}

func (r *Reconciler) finish(c models.Cart, items []models.LineItem) models.Cart {
	if items == nil {
		items = []models.LineItem{}
	}
	c.Items = items
	r.Pricing.Recompute(&c)
	c.UpdatedAt = r.now()
	return c
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now().UTC()
	}
	return time.Now().UTC()
}

func (r *Reconciler) newID() string {
	if r.NewID != nil {
		return r.NewID()
	}
	return uuid.NewString()
}

func indexByProduct(items []models.LineItem, productID string) int {
	return slices.IndexFunc(items, func(it models.LineItem) bool { return it.Product.ID == productID })
}

func indexByID(items []models.LineItem, itemID string) int {
	return slices.IndexFunc(items, func(it models.LineItem) bool { return it.ID == itemID })
}

// AddItem increments the line for product or appends a new snapshot line.
// The resulting line quantity may not exceed MaxLineQuantity.
func (r *Reconciler) AddItem(c models.Cart, product models.ProductSnapshot, quantity int) (models.Cart, error) {
	if quantity <= 0 {
		return c, ErrInvalidQuantity
	}
	if quantity > MaxLineQuantity {
		return c, errQuantityTooLarge
	}

	items := slices.Clone(c.Items)
	if i := indexByProduct(items, product.ID); i >= 0 {
		if items[i].Quantity > MaxLineQuantity-quantity {
			return c, errQuantityTooLarge
		}
		items[i].Quantity += quantity
	} else {
		items = append(items, models.LineItem{
			ID:       r.newID(),
			Product:  product,
			Quantity: quantity,
			AddedAt:  r.now(),
		})
	}
	return r.finish(c, items), nil
}

// UpdateQuantity sets the quantity of a line; a quantity <= 0 removes it.
// An unknown item id leaves the items untouched.
func (r *Reconciler) UpdateQuantity(c models.Cart, itemID string, quantity int) (models.Cart, error) {
	if quantity <= 0 {
		return r.RemoveItem(c, itemID), nil
	}
	if quantity > MaxLineQuantity {
		return c, errQuantityTooLarge
	}

	items := slices.Clone(c.Items)
	if i := indexByID(items, itemID); i >= 0 {
		items[i].Quantity = quantity
	}
	return r.finish(c, items), nil
}

func (r *Reconciler) RemoveItem(c models.Cart, itemID string) models.Cart {
	items := slices.DeleteFunc(slices.Clone(c.Items), func(it models.LineItem) bool { return it.ID == itemID })
	return r.finish(c, items)
}

func (r *Reconciler) Clear(c models.Cart) models.Cart {
	return r.finish(c, []models.LineItem{})
}

// Merge folds guest lines into the account cart: shared products sum their
// quantities, the rest are appended in guest order. Merged lines are capped
// at MaxLineQuantity so a login never fails on the merge.
func (r *Reconciler) Merge(guest, account models.Cart) models.Cart {
	items := slices.Clone(account.Items)
	for _, g := range guest.Items {
		if g.Quantity <= 0 {
			continue
		}
		if i := indexByProduct(items, g.Product.ID); i >= 0 {
			items[i].Quantity = min(min(items[i].Quantity, MaxLineQuantity)+min(g.Quantity, MaxLineQuantity), MaxLineQuantity)
			continue
		}
		g.Quantity = min(g.Quantity, MaxLineQuantity)
		items = append(items, g)
	}
	return r.finish(account, items)
}
