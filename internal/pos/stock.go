package pos

import "errors"

var ErrInsufficientStock = errors.New("insufficient stock")

// Availability computes the sellable quantity for a product given a catalog
// snapshot. Pure and deterministic; called on every add-to-cart and
// quantity increment.
//
// Rules:
//   - manual override (Available=false) wins over everything -> 0
//   - composite: min(floor(component stock / required)) across components;
//     a missing or unavailable component fails closed -> 0; if no component
//     carries a finite stock the composite is unbounded
//   - simple: the product's own stock value
func Availability(p Product, catalog map[string]Product) Stock {
	if !p.Available {
		return BoundedStock(0)
	}
	if !p.IsCombo() {
		return p.Stock
	}

	bounded := false
	min := 0
	for _, ci := range p.ComboItems {
		comp, ok := catalog[ci.ComponentID]
		if !ok || !comp.Available {
			return BoundedStock(0)
		}
		if ci.Quantity <= 0 || !comp.Stock.Bounded {
			continue
		}
		ratio := comp.Stock.Qty / ci.Quantity
		if !bounded || ratio < min {
			bounded = true
			min = ratio
		}
	}
	if !bounded {
		return Unbounded()
	}
	return BoundedStock(min)
}

// CheckQuantity rejects a requested quantity that exceeds availability.
// No state is mutated; callers surface ErrInsufficientStock to the user.
func CheckQuantity(p Product, catalog map[string]Product, qty int) error {
	if qty <= 0 {
		return ErrInsufficientStock
	}
	if !Availability(p, catalog).Allows(qty) {
		return ErrInsufficientStock
	}
	return nil
}
