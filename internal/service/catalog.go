package service

import (
	"fmt"

	"github.com/velikanov/digital_shop/internal/models"
)

// CheckPurchasable validates quantity bounds, the active flag and catalog
// stock for the requested quantity. Inventory-level availability for
// license products is checked separately at checkout and at allocation.
func CheckPurchasable(p *models.Product, quantity uint) error {
	if !p.Active {
		return fmt.Errorf("%w: product %d is not available", ErrValidation, p.ID)
	}
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", ErrValidation)
	}
	if p.MinQuantity > 0 && quantity < p.MinQuantity {
		return fmt.Errorf("%w: minimum quantity for product %d is %d", ErrValidation, p.ID, p.MinQuantity)
	}
	if p.MaxQuantity > 0 && quantity > p.MaxQuantity {
		return fmt.Errorf("%w: maximum quantity for product %d is %d", ErrValidation, p.ID, p.MaxQuantity)
	}
	if p.Stock != nil && int64(quantity) > *p.Stock {
		return fmt.Errorf("%w: product %d has %d left", ErrInsufficientStock, p.ID, *p.Stock)
	}
	return nil
}
