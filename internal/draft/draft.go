// Package draft holds the in-memory aggregation of items selected for the
// current invoice before settlement. An Order is not safe for concurrent use;
// it is owned by the ledger-owning session, which serializes access.
package draft

import (
	"strings"

	"scanpos/internal/domain"
	"scanpos/internal/store"
)

type Order struct {
	lines []domain.DraftLine
}

func NewOrder() *Order {
	return &Order{lines: make([]domain.DraftLine, 0, 8)}
}

// Add merges the product into the order: an existing line for the same SKU is
// incremented by one (its mode untouched), otherwise a new line at quantity 1
// is appended with the given mode. Repeated scans of one physical item
// therefore never produce parallel lines.
func (o *Order) Add(product domain.Product, mode domain.PriceMode) domain.DraftLine {
	if !mode.Valid() {
		mode = domain.ModeRetail
	}
	for i := range o.lines {
		if o.lines[i].SKU == product.SKU {
			o.lines[i].Quantity++
			return o.lines[i]
		}
	}
	line := domain.DraftLine{
		ProductID:        product.ID,
		SKU:              product.SKU,
		Name:             product.Name,
		Quantity:         1,
		Mode:             mode,
		SellingPrice:     product.SellingPrice,
		WholesalePrice:   product.WholesalePrice,
		StockAtSelection: product.Stock,
	}
	o.lines = append(o.lines, line)
	return line
}

// SetQuantity replaces a line's quantity. Zero removes the line; negative
// quantities are rejected.
func (o *Order) SetQuantity(sku string, quantity int) error {
	if quantity < 0 {
		return store.ErrValidation
	}
	if quantity == 0 {
		return o.Remove(sku)
	}
	for i := range o.lines {
		if o.lines[i].SKU == sku {
			o.lines[i].Quantity = quantity
			return nil
		}
	}
	return store.ErrNotFound
}

func (o *Order) Remove(sku string) error {
	for i := range o.lines {
		if o.lines[i].SKU == sku {
			o.lines = append(o.lines[:i], o.lines[i+1:]...)
			return nil
		}
	}
	return store.ErrNotFound
}

func (o *Order) SetMode(sku string, mode domain.PriceMode) error {
	if !mode.Valid() {
		return store.ErrValidation
	}
	for i := range o.lines {
		if o.lines[i].SKU == sku {
			o.lines[i].Mode = mode
			return nil
		}
	}
	return store.ErrNotFound
}

func (o *Order) Line(sku string) (domain.DraftLine, bool) {
	for _, line := range o.lines {
		if line.SKU == sku {
			return line, true
		}
	}
	return domain.DraftLine{}, false
}

// Lines returns a copy of the order's lines in insertion order.
func (o *Order) Lines() []domain.DraftLine {
	out := make([]domain.DraftLine, len(o.lines))
	copy(out, o.lines)
	return out
}

// Total recomputes the order total from scratch on every call: quantity times
// the mode-selected price, summed over all lines. It is never cached, so
// quantity, mode, and removal edits can not leave a stale total behind.
func (o *Order) Total() float64 {
	total := 0.0
	for _, line := range o.lines {
		total += LineTotal(line)
	}
	return total
}

func LineTotal(line domain.DraftLine) float64 {
	price := line.SellingPrice
	if line.Mode == domain.ModeWholesale {
		price = line.WholesalePrice
	}
	return float64(line.Quantity) * price
}

func (o *Order) Len() int {
	return len(o.lines)
}

func (o *Order) Empty() bool {
	return len(o.lines) == 0
}

// Clear discards all lines. Called after a successful settlement consumes the
// order, or on explicit discard.
func (o *Order) Clear() {
	o.lines = o.lines[:0]
}

// NormalizeSKU mirrors the normalization applied when products are created,
// so lookups from scans and interactive edits agree.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
