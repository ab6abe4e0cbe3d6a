package storefront

import (
	"encoding/json"
	"slices"

	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/xid"
)

// optionsKey canonicalizes a selected-options map so that two picks of the
// same variant always land on the same cart line. json.Marshal sorts map
// keys, which gives a stable serialization for free.
func optionsKey(selected map[string]string) string {
	if len(selected) == 0 {
		return "{}"
	}
	raw, err := json.Marshal(selected)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// AddToCart puts one unit of the product into the cart. Re-adds of the same
// product within the debounce window are ignored. Lines are keyed by product
// id plus the canonical option selection, so the same variant accumulates
// quantity instead of duplicating lines.
func (s *Synchronizer) AddToCart(productID string, selectedOptions map[string]string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if last, ok := s.lastAdd[productID]; ok && now.Sub(last) < addDebounce {
		return
	}
	s.lastAdd[productID] = now

	var product *domain.Product
	for i := range s.products {
		if s.products[i].ID == productID {
			product = &s.products[i]
			break
		}
	}
	if product == nil {
		s.notify("This product is no longer available.", "error")
		return
	}
	if product.Stock <= 0 {
		s.notify("Sorry, this product is out of stock.", "error")
		return
	}
	for _, option := range product.Options {
		if selectedOptions[option.Name] == "" {
			s.notify("Please choose "+option.Name+" before adding to your cart.", "error")
			return
		}
	}

	key := optionsKey(selectedOptions)
	for i := range s.cart {
		if s.cart[i].ID == productID && optionsKey(s.cart[i].SelectedOptions) == key {
			if s.cart[i].Quantity+1 > product.Stock {
				s.notify("No more stock available for this product.", "error")
				return
			}
			s.cart[i].Quantity++
			s.persistCartLocked()
			s.notify("Quantity increased in your cart.", "success")
			return
		}
	}

	// Snapshot the product at its effective price; later catalog edits do
	// not reprice lines already in the cart.
	snapshot := *product
	snapshot.Price = product.EffectivePrice()
	snapshot.SalePrice = 0

	item := domain.CartItem{
		Product:         snapshot,
		Quantity:        1,
		CartItemID:      xid.CartItem(productID),
		SelectedOptions: selectedOptions,
	}
	s.cart = append(s.cart, item)
	s.persistCartLocked()
	s.notify("Added to your cart.", "success")
}

func (s *Synchronizer) RemoveFromCart(cartItemID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = slices.DeleteFunc(s.cart, func(item domain.CartItem) bool {
		return item.CartItemID == cartItemID
	})
	s.persistCartLocked()
}

// UpdateQuantity sets a cart line's quantity. A quantity below one removes
// the line; a quantity above the stock snapshot is rejected and the line is
// left unchanged.
func (s *Synchronizer) UpdateQuantity(cartItemID string, quantity int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if quantity < 1 {
		s.cart = slices.DeleteFunc(s.cart, func(item domain.CartItem) bool {
			return item.CartItemID == cartItemID
		})
		s.persistCartLocked()
		return
	}

	for i := range s.cart {
		if s.cart[i].CartItemID != cartItemID {
			continue
		}
		if quantity > s.cart[i].Stock {
			s.notify("Requested quantity exceeds available stock.", "error")
			return
		}
		s.cart[i].Quantity = quantity
		s.persistCartLocked()
		return
	}
}

func (s *Synchronizer) ClearCart() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cart = nil
	s.appliedDiscount = nil
	s.persistCartLocked()
}

func (s *Synchronizer) ToggleCart() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cartOpen = !s.cartOpen
	return s.cartOpen
}

func (s *Synchronizer) ToggleWishlistModal() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.wishlistOpen = !s.wishlistOpen
	return s.wishlistOpen
}

// ToggleWishlist adds the product to the wishlist, or removes it when it is
// already present. It reports whether the product is wishlisted afterwards.
func (s *Synchronizer) ToggleWishlist(productID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if slices.Contains(s.wishlist, productID) {
		s.wishlist = slices.DeleteFunc(s.wishlist, func(id string) bool {
			return id == productID
		})
		s.persistWishlistLocked()
		return false
	}
	s.wishlist = append(s.wishlist, productID)
	s.persistWishlistLocked()
	s.notify("Added to your wishlist.", "success")
	return true
}

// ApplyDiscount activates a discount code for the current cart. The match is
// exact and case-sensitive, and only active codes qualify; the stored expiry
// date is not checked here.
func (s *Synchronizer) ApplyDiscount(code string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, dc := range s.discounts {
		if dc.Code == code && dc.IsActive {
			applied := dc
			s.appliedDiscount = &applied
			s.notify("Discount applied.", "success")
			return true
		}
	}
	s.notify("Invalid discount code.", "error")
	return false
}

func (s *Synchronizer) RemoveDiscount() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appliedDiscount = nil
}
