package storefront

import (
	"context"
	"errors"
	"log"

	"hivestore/backend/internal/cache"
	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway"
)

var ErrNotAdmin = errors.New("admin session required")

// LoginAdmin verifies the credentials through the injected verifier and, on
// success, flips the session into admin mode and pulls the full order
// history from the remote store.
func (s *Synchronizer) LoginAdmin(ctx context.Context, verifier CredentialVerifier, username string, password string) error {
	if err := verifier.Verify(ctx, username, password); err != nil {
		s.notify("Invalid username or password.", "error")
		return err
	}

	s.mu.Lock()
	s.isAdmin = true
	s.cache.Set(cache.KeyIsAdmin, "true")
	s.mu.Unlock()

	orders, err := s.remote.ListOrders(ctx)
	if err != nil {
		log.Printf("[storefront] WARN: order fetch after login failed: %v", err)
	} else {
		s.mu.Lock()
		s.orders = orders
		s.persistOrdersLocked()
		s.mu.Unlock()
	}

	s.notify("Welcome back.", "success")
	return nil
}

func (s *Synchronizer) LogoutAdmin() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.isAdmin = false
	s.cache.Delete(cache.KeyIsAdmin)
}

// UpdateSettings commits new site settings locally, then pushes them to the
// remote row. A stale row identity falls back to a fresh lookup, and a
// missing row is inserted; whichever path succeeds, the identity is captured
// for the next update.
func (s *Synchronizer) UpdateSettings(ctx context.Context, settings domain.SiteSettings) {
	s.mu.Lock()
	settings.RemoteID = s.settings.RemoteID
	s.settings = settings
	s.persistSettingsLocked()
	remoteID := settings.RemoteID
	s.mu.Unlock()

	if remoteID != 0 {
		affected, err := s.remote.UpdateSettings(ctx, remoteID, settings)
		if err != nil {
			log.Printf("[storefront] WARN: remote settings update failed: %v", err)
			return
		}
		if affected > 0 {
			s.notify("Settings saved.", "success")
			return
		}
	}

	// No identity, or the remembered row no longer exists.
	existing, err := s.remote.FetchSettings(ctx)
	switch {
	case err == nil:
		affected, err := s.remote.UpdateSettings(ctx, existing.RemoteID, settings)
		if err != nil || affected == 0 {
			log.Printf("[storefront] WARN: remote settings update failed: %v", err)
			return
		}
		s.setSettingsRemoteID(existing.RemoteID)
	case errors.Is(err, gateway.ErrNotFound):
		id, err := s.remote.InsertSettings(ctx, settings)
		if err != nil {
			log.Printf("[storefront] WARN: remote settings insert failed: %v", err)
			return
		}
		s.setSettingsRemoteID(id)
	default:
		log.Printf("[storefront] WARN: remote settings lookup failed: %v", err)
		return
	}
	s.notify("Settings saved.", "success")
}

func (s *Synchronizer) setSettingsRemoteID(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings.RemoteID = id
	s.persistSettingsLocked()
}

// AddProduct creates a catalog product. Catalog administration is
// remote-first: the product only enters the local catalog once the remote
// store accepted it.
func (s *Synchronizer) AddProduct(ctx context.Context, product domain.Product, tags []string) (*domain.Product, error) {
	created, err := s.remote.CreateProduct(ctx, product)
	if err != nil {
		s.notify("Could not save the product.", "error")
		return nil, err
	}

	if len(tags) > 0 {
		if err := s.remote.SetProductTags(ctx, created.ID, tags); err != nil {
			log.Printf("[storefront] WARN: tag write failed for %s: %v", created.ID, err)
		} else {
			created.Tags = tags
		}
	}

	s.mu.Lock()
	s.products = append([]domain.Product{*created}, s.products...)
	s.mu.Unlock()

	s.notify("Product added.", "success")
	return created, nil
}

// EditProduct applies a partial update to a catalog product. When the update
// carries a tag list, the product's tag set is replaced wholesale.
func (s *Synchronizer) EditProduct(ctx context.Context, id string, updates domain.ProductUpdate) (*domain.Product, error) {
	updated, err := s.remote.UpdateProduct(ctx, id, updates)
	if err != nil {
		s.notify("Could not update the product.", "error")
		return nil, err
	}

	if updates.Tags != nil {
		if err := s.remote.SetProductTags(ctx, id, *updates.Tags); err != nil {
			log.Printf("[storefront] WARN: tag write failed for %s: %v", id, err)
		}
	}

	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products[i] = *updated
			break
		}
	}
	s.mu.Unlock()

	s.notify("Product updated.", "success")
	return updated, nil
}

func (s *Synchronizer) RemoveProduct(ctx context.Context, id string) error {
	if err := s.remote.DeleteProduct(ctx, id); err != nil {
		s.notify("Could not delete the product.", "error")
		return err
	}

	s.mu.Lock()
	for i := range s.products {
		if s.products[i].ID == id {
			s.products = append(s.products[:i], s.products[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	s.notify("Product deleted.", "success")
	return nil
}

func (s *Synchronizer) AddDiscountCode(ctx context.Context, code domain.DiscountCode) (*domain.DiscountCode, error) {
	created, err := s.remote.CreateDiscountCode(ctx, code)
	if err != nil {
		s.notify("Could not save the discount code.", "error")
		return nil, err
	}

	s.mu.Lock()
	s.discounts = append(s.discounts, *created)
	s.mu.Unlock()

	s.notify("Discount code added.", "success")
	return created, nil
}

func (s *Synchronizer) DeleteDiscountCode(ctx context.Context, id string) error {
	if err := s.remote.DeleteDiscountCode(ctx, id); err != nil {
		s.notify("Could not delete the discount code.", "error")
		return err
	}

	s.mu.Lock()
	for i := range s.discounts {
		if s.discounts[i].ID == id {
			s.discounts = append(s.discounts[:i], s.discounts[i+1:]...)
			break
		}
	}
	s.mu.Unlock()
	return nil
}
