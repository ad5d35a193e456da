package cart

import (
	"math"

	"github.com/Skotchmaster/storefront/internal/models"
)

type Pricing struct {
	TaxRate          float64
	FreeShippingOver float64
	ShippingFee      float64
}

func DefaultPricing() Pricing {
	return Pricing{TaxRate: 0.10, FreeShippingOver: 100, ShippingFee: 10}
}

func toCents(v float64) int64 {
	return int64(math.Round(v * 100))
}

func fromCents(c int64) float64 {
	return float64(c) / 100
}

// Recompute derives subtotal, tax, shipping and total from the items.
// Amounts are rounded to the cent so total always equals the sum of its parts.
// Shipping is the flat fee unless subtotal exceeds FreeShippingOver, with one
// exception: an empty cart carries no shipping, so a cleared cart totals zero
// rather than the flat fee.
func (p Pricing) Recompute(c *models.Cart) {
	var subtotal int64
	for _, it := range c.Items {
		subtotal += toCents(it.Product.Price) * int64(it.Quantity)
	}

	tax := int64(math.Round(float64(subtotal) * p.TaxRate))

	var shipping int64
	if len(c.Items) > 0 && subtotal <= toCents(p.FreeShippingOver) {
		shipping = toCents(p.ShippingFee)
	}

	c.Subtotal = fromCents(subtotal)
	c.Tax = fromCents(tax)
	c.Shipping = fromCents(shipping)
	c.Total = fromCents(subtotal + tax + shipping)
}
