package pricing

import (
	"github.com/shopspring/decimal"

	"storefront/backend/internal/domain"
)

type Config struct {
	// DiscountRate is the fraction taken off the subtotal for bank transfers.
	DiscountRate    decimal.Decimal
	DefaultCurrency string
}

type Pricer struct {
	discountRate    decimal.Decimal
	defaultCurrency string
}

func New(cfg Config) *Pricer {
	return &Pricer{
		discountRate:    cfg.DiscountRate,
		defaultCurrency: cfg.DefaultCurrency,
	}
}

func (p *Pricer) DiscountRate() decimal.Decimal {
	return p.discountRate
}

// Price joins cart lines with live catalog items and derives the breakdown.
// Lines whose item the catalog did not return are dropped.
func (p *Pricer) Price(lines []domain.CartLine, items []domain.CatalogItem, fees domain.Fees, bankTransfer bool) (domain.PriceBreakdown, []domain.PricedItem) {
	byID := make(map[string]domain.CatalogItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	priced := make([]domain.PricedItem, 0, len(lines))
	subtotal := int64(0)
	for _, line := range lines {
		if line.Quantity < 1 {
			continue
		}
		item, ok := byID[line.ItemID]
		if !ok {
			continue
		}
		priced = append(priced, domain.PricedItem{
			ID:       item.ID,
			Name:     item.Name,
			Image:    item.Image,
			Quantity: line.Quantity,
			Currency: item.Currency,
			Price:    item.Price,
		})
		subtotal += item.Price * int64(line.Quantity)
	}

	currency := p.defaultCurrency
	if len(priced) > 0 && priced[0].Currency != "" {
		currency = priced[0].Currency
	}

	breakdown := domain.PriceBreakdown{
		Subtotal: subtotal,
		Shipping: fees.Shipping,
		Total:    subtotal + fees.Shipping,
		Currency: currency,
	}
	if bankTransfer {
		breakdown.Discount = Discount(subtotal, p.discountRate)
		breakdown.Total = DiscountedSubtotal(subtotal, p.discountRate) + fees.Shipping
	}
	return breakdown, priced
}

// Subtotal sums price*quantity over already priced items.
func Subtotal(items []domain.PricedItem) int64 {
	total := int64(0)
	for _, item := range items {
		total += item.Price * int64(item.Quantity)
	}
	return total
}

// Discount is ceil(subtotal*rate).
func Discount(subtotal int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).Mul(rate).Ceil().IntPart()
}

// DiscountedSubtotal is ceil(subtotal*(1-rate)).
func DiscountedSubtotal(subtotal int64, rate decimal.Decimal) int64 {
	return decimal.NewFromInt(subtotal).Mul(decimal.NewFromInt(1).Sub(rate)).Ceil().IntPart()
}
