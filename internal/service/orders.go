package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/Skotchmaster/storefront/internal/cart"
	"github.com/Skotchmaster/storefront/internal/events"
	"github.com/Skotchmaster/storefront/internal/logging"
	"github.com/Skotchmaster/storefront/internal/metrics"
	"github.com/Skotchmaster/storefront/internal/models"
	"github.com/Skotchmaster/storefront/internal/repo"
	"github.com/Skotchmaster/storefront/internal/util"
	"github.com/Skotchmaster/storefront/internal/validation"
)

type OrderService struct {
	Repo       *repo.GormRepo
	Reconciler *cart.Reconciler
	Events     events.Publisher
	Metrics    *metrics.Metrics

	// Now is overridable for tests.
	Now func() time.Time
}

type CheckoutInput struct {
	ShippingAddress models.Address  `json:"shippingAddress"`
	BillingAddress  *models.Address `json:"billingAddress"`
	PaymentMethod   string          `json:"paymentMethod" validate:"omitempty,oneof=card paypal cash"`
	Notes           string          `json:"notes"         validate:"max=500"`
}

// shippingAddress has the same fields as models.Address but requires the
// ones a parcel cannot do without.
type shippingAddress struct {
	Street  string `json:"street"  validate:"required,max=200"`
	City    string `json:"city"    validate:"required,max=100"`
	State   string `json:"state"   validate:"max=100"`
	ZipCode string `json:"zipCode" validate:"required,max=20"`
	Country string `json:"country" validate:"required,max=100"`
}

type StatusInput struct {
	Status         string  `json:"status"         validate:"required,oneof=pending processing shipped delivered cancelled"`
	PaymentStatus  *string `json:"paymentStatus"  validate:"omitempty,oneof=pending paid failed refunded"`
	TrackingNumber *string `json:"trackingNumber" validate:"omitempty,max=64"`
}

type OrderList struct {
	Orders []models.Order `json:"orders"`
	Meta   util.Meta      `json:"pagination"`
}

func (s *OrderService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func (s *OrderService) orderNumber() string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:6])
	return fmt.Sprintf("ORD-%d-%s", s.now().UnixMilli(), suffix)
}

// Checkout turns the account cart into a pending order and empties the cart
// in the same transaction.
func (s *OrderService) Checkout(ctx context.Context, accountID string, in CheckoutInput) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.checkout", "user_id", accountID)

	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}
	if err := validation.Struct(shippingAddress(in.ShippingAddress)); err != nil {
		return nil, invalid(err)
	}
	if in.BillingAddress != nil {
		if err := validation.Struct(*in.BillingAddress); err != nil {
			return nil, invalid(err)
		}
	}

	var order *models.Order
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		c, err := tx.FindCartByUser(ctx, accountID)
		if errors.Is(err, repo.ErrNotFound) || err == nil && len(c.Items) == 0 {
			return invalidf("cart is empty")
		}
		if err != nil {
			return err
		}

		s.Reconciler.Pricing.Recompute(c)
		order = &models.Order{
			OrderNumber:     s.orderNumber(),
			UserID:          accountID,
			Items:           c.Items,
			Subtotal:        c.Subtotal,
			Tax:             c.Tax,
			Shipping:        c.Shipping,
			Total:           c.Total,
			Status:          models.OrderPending,
			PaymentStatus:   models.PaymentPending,
			PaymentMethod:   in.PaymentMethod,
			ShippingAddress: in.ShippingAddress,
			BillingAddress:  in.BillingAddress,
			Notes:           strings.TrimSpace(in.Notes),
		}
		if err := tx.CreateOrder(ctx, order); err != nil {
			return err
		}
		for _, it := range c.Items {
			if err := tx.IncrementSales(ctx, it.Product.ID, it.Quantity); err != nil {
				return err
			}
		}

		cleared := s.Reconciler.Clear(*c)
		return tx.SaveCart(ctx, &cleared)
	})
	if err != nil {
		if !errors.Is(err, ErrValidation) {
			l.Error("checkout_error", "status", 500, "error", err)
		}
		return nil, err
	}

	s.Metrics.OrderCreated()
	events.Emit(ctx, s.Events, l, events.TopicOrders, order.ID, events.New("order_created", map[string]any{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"user_id":      accountID,
		"total":        order.Total,
		"item_count":   len(order.Items),
	}))
	l.Info("order_created", "order_id", order.ID, "total", order.Total)
	return order, nil
}

func (s *OrderService) ListOrders(ctx context.Context, accountID string, page, limit int) (*OrderList, error) {
	offset, limit := util.Calculate(page, limit)
	total, items, err := s.Repo.ListOrdersByUser(ctx, accountID, offset, limit)
	if err != nil {
		return nil, err
	}
	return &OrderList{Orders: items, Meta: util.NewMeta(page, offset, limit, total)}, nil
}

// GetOrder hides other accounts' orders as not found unless isAdmin.
func (s *OrderService) GetOrder(ctx context.Context, accountID, id string, isAdmin bool) (*models.Order, error) {
	o, err := s.Repo.GetOrder(ctx, id)
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if !isAdmin && o.UserID != accountID {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	return o, nil
}

func (s *OrderService) UpdateStatus(ctx context.Context, id string, in StatusInput) (*models.Order, error) {
	l := logging.FromContext(ctx).With("svc", "orders.status", "order_id", id)

	if err := validation.Struct(in); err != nil {
		return nil, invalid(err)
	}

	var o *models.Order
	err := s.Repo.Transaction(ctx, func(tx *repo.GormRepo) error {
		var err error
		o, err = tx.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		o.Status = in.Status
		if in.PaymentStatus != nil {
			o.PaymentStatus = *in.PaymentStatus
		}
		if in.TrackingNumber != nil {
			o.TrackingNumber = strings.TrimSpace(*in.TrackingNumber)
		}
		return tx.SaveOrder(ctx, o)
	})
	if errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("order %w", ErrNotFound)
	}
	if err != nil {
		l.Error("order_status_error", "status", 500, "error", err)
		return nil, err
	}

	events.Emit(ctx, s.Events, l, events.TopicOrders, o.ID, events.New("order_status_changed", map[string]any{
		"order_id":       o.ID,
		"status":         o.Status,
		"payment_status": o.PaymentStatus,
	}))
	return o, nil
}
