package storefront

import (
	"context"
	"errors"
	"log"
	"time"

	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/xid"
)

var (
	ErrEmptyCart     = errors.New("cart is empty")
	ErrOrderNotFound = errors.New("order not found")
)

// Checkout turns the current cart into an order. The order is committed
// locally first: it is prepended to the order history, stock is decremented
// in the local catalog, and the cart is cleared. The remote write follows
// and is best-effort; a failure is logged and surfaced as a notification,
// never rolled back.
func (s *Synchronizer) Checkout(ctx context.Context, customer domain.Customer) (*domain.Order, error) {
	s.mu.Lock()

	if len(s.cart) == 0 {
		s.mu.Unlock()
		return nil, ErrEmptyCart
	}

	_, _, total := s.cartTotalsLocked()
	percentage := 0
	if s.appliedDiscount != nil {
		percentage = s.appliedDiscount.Percentage
	}

	order := domain.Order{
		ID:              xid.New("ord"),
		Items:           append([]domain.CartItem(nil), s.cart...),
		Total:           total,
		DiscountApplied: percentage,
		Date:            s.now().UTC().Format(time.RFC3339),
		Status:          domain.OrderStatusPending,
		Customer:        customer,
	}

	s.orders = append([]domain.Order{order}, s.orders...)

	// Decrement local stock unconditionally, flooring at zero. The local
	// view is optimistic; the remote write below reconciles when it can.
	// A sale counts once per distinct product, no matter how many variant
	// lines of it the order holds, matching how the gateway counts.
	stockByProduct := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		for i := range s.products {
			if s.products[i].ID != item.ID {
				continue
			}
			s.products[i].Stock -= item.Quantity
			if s.products[i].Stock < 0 {
				s.products[i].Stock = 0
			}
			if _, counted := stockByProduct[item.ID]; !counted {
				s.products[i].SalesCount++
			}
			stockByProduct[item.ID] = s.products[i].Stock
			break
		}
	}

	s.cart = nil
	s.appliedDiscount = nil
	s.persistCartLocked()
	s.persistOrdersLocked()
	s.mu.Unlock()

	if err := s.remote.CreateOrderWithStock(ctx, order, stockByProduct); err != nil {
		log.Printf("[storefront] WARN: remote order write failed for %s: %v", order.ID, err)
		s.notify("Your order was saved locally and will appear once the connection recovers.", "info")
	} else {
		s.notify("Order placed successfully.", "success")
	}

	created := order
	return &created, nil
}

// UpdateOrderStatus sets an order's status without guarding transitions; an
// admin may jump an order straight from pending to delivered.
func (s *Synchronizer) UpdateOrderStatus(ctx context.Context, orderID string, status string) error {
	s.mu.Lock()
	found := false
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].Status = status
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	s.persistOrdersLocked()
	s.mu.Unlock()

	if err := s.remote.UpdateOrderStatus(ctx, orderID, status); err != nil {
		log.Printf("[storefront] WARN: remote status update failed for %s: %v", orderID, err)
	}
	s.notify("Order marked as "+status+".", "success")
	return nil
}

// ReturnOrder restores the stock of every item in the order and marks it
// returned. An order that is already returned is left untouched, so a
// double-click cannot restock twice.
func (s *Synchronizer) ReturnOrder(ctx context.Context, orderID string) error {
	s.mu.Lock()

	var order *domain.Order
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			order = &s.orders[i]
			break
		}
	}
	if order == nil {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	if order.Status == domain.OrderStatusReturned {
		s.mu.Unlock()
		return nil
	}

	restored := make(map[string]int, len(order.Items))
	for _, item := range order.Items {
		for i := range s.products {
			if s.products[i].ID != item.ID {
				continue
			}
			s.products[i].Stock += item.Quantity
			restored[item.ID] = s.products[i].Stock
			break
		}
	}
	order.Status = domain.OrderStatusReturned
	s.persistOrdersLocked()
	s.mu.Unlock()

	for productID, stock := range restored {
		stockCopy := stock
		if _, err := s.remote.UpdateProduct(ctx, productID, domain.ProductUpdate{Stock: &stockCopy}); err != nil {
			log.Printf("[storefront] WARN: remote restock failed for %s: %v", productID, err)
		}
	}
	if err := s.remote.UpdateOrderStatus(ctx, orderID, domain.OrderStatusReturned); err != nil {
		log.Printf("[storefront] WARN: remote return failed for %s: %v", orderID, err)
	}
	s.notify("Order returned and stock restored.", "success")
	return nil
}

func (s *Synchronizer) OrderByID(orderID string) (domain.Order, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, o := range s.orders {
		if o.ID == orderID {
			return o, true
		}
	}
	return domain.Order{}, false
}

// AddReview records a product review tied to a delivered order.
func (s *Synchronizer) AddReview(ctx context.Context, productID string, orderID string, customerName string, rating int, comment string) (*domain.Review, error) {
	if rating < 1 || rating > 5 {
		return nil, errors.New("rating must be between 1 and 5")
	}

	review := domain.Review{
		ID:           xid.New("rev"),
		ProductID:    productID,
		OrderID:      orderID,
		CustomerName: customerName,
		Rating:       rating,
		Comment:      comment,
		Date:         s.now().UTC().Format(time.RFC3339),
	}

	s.mu.Lock()
	s.reviews = append(s.reviews, review)
	s.mu.Unlock()

	if err := s.remote.CreateReview(ctx, review); err != nil {
		log.Printf("[storefront] WARN: remote review write failed: %v", err)
	}
	s.notify("Thank you for your review.", "success")

	created := review
	return &created, nil
}

func (s *Synchronizer) MarkOrderAsRated(ctx context.Context, orderID string) error {
	s.mu.Lock()
	found := false
	for i := range s.orders {
		if s.orders[i].ID == orderID {
			s.orders[i].IsRated = true
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return ErrOrderNotFound
	}
	s.persistOrdersLocked()
	s.mu.Unlock()

	if err := s.remote.MarkOrderRated(ctx, orderID); err != nil {
		log.Printf("[storefront] WARN: remote rated flag failed for %s: %v", orderID, err)
	}
	return nil
}

// ProductReviews returns the reviews recorded for one product.
func (s *Synchronizer) ProductReviews(productID string) []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()

	reviews := make([]domain.Review, 0, 4)
	for _, r := range s.reviews {
		if r.ProductID == productID {
			reviews = append(reviews, r)
		}
	}
	return reviews
}
