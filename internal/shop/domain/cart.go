package domain

import "github.com/shopspring/decimal"

// CartLine accumulates repeated checkouts of one product. Price is the
// cumulative quantity × unit price captured at checkout time; it is never
// recomputed if the catalog price changes later.
type CartLine struct {
	ProductID ProductID
	Quantity  int
	Price     decimal.Decimal
}

func NewCartLine(id ProductID, quantity int, unitPrice decimal.Decimal) CartLine {
	return CartLine{
		ProductID: id,
		Quantity:  quantity,
		Price:     unitPrice.Mul(decimal.NewFromInt(int64(quantity))),
	}
}

// Add folds another checkout of the same product into the line.
func (l *CartLine) Add(quantity int, unitPrice decimal.Decimal) {
	l.Quantity += quantity
	l.Price = l.Price.Add(unitPrice.Mul(decimal.NewFromInt(int64(quantity))))
}

// ReservedQuantity returns the quantity of the given product already held in
// the cart. Checkout validates requested quantity against stock minus this.
func ReservedQuantity(lines []CartLine, id ProductID) int {
	for _, l := range lines {
		if l.ProductID == id {
			return l.Quantity
		}
	}
	return 0
}
