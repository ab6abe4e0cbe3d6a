// Package storefront holds the in-memory state of the shop (catalog, cart,
// orders, wishlist, settings) and keeps it synchronized with the persistent
// cache and the remote gateway. Mutations commit locally first; remote writes
// are best-effort and never block or roll back a local change.
package storefront

import (
	"context"
	"errors"
	"log"
	"slices"
	"sync"
	"time"

	"hivestore/backend/internal/cache"
	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway"
)

// Notifier receives user-facing event messages emitted by mutations. Kind is
// one of "success", "error" or "info".
type Notifier interface {
	Notify(message string, kind string)
}

type logNotifier struct{}

func (logNotifier) Notify(message string, kind string) {
	log.Printf("[storefront] %s: %s", kind, message)
}

// CredentialVerifier checks an admin username/password pair. The concrete
// implementation lives in the auth layer; the synchronizer only needs a
// yes/no answer.
type CredentialVerifier interface {
	Verify(ctx context.Context, username string, password string) error
}

// addDebounce is the window during which repeated add-to-cart calls for the
// same product collapse into the first one. Guards against double-submits
// from impatient clicks.
const addDebounce = 500 * time.Millisecond

type Synchronizer struct {
	mu     sync.Mutex
	remote gateway.Remote
	cache  cache.Store
	now    func() time.Time

	// notifier has its own lock: notify runs both with and without s.mu
	// held, so it cannot take s.mu itself.
	notifierMu sync.Mutex
	notifier   Notifier

	products  []domain.Product
	cart      []domain.CartItem
	orders    []domain.Order
	wishlist  []string
	reviews   []domain.Review
	discounts []domain.DiscountCode
	settings  domain.SiteSettings

	appliedDiscount *domain.DiscountCode
	isAdmin         bool
	cartOpen        bool
	wishlistOpen    bool
	loading         bool

	lastAdd map[string]time.Time
}

func New(remote gateway.Remote, store cache.Store) *Synchronizer {
	return &Synchronizer{
		remote:   remote,
		cache:    store,
		notifier: logNotifier{},
		now:      time.Now,
		settings: domain.DefaultSettings(),
		lastAdd:  make(map[string]time.Time),
	}
}

func (s *Synchronizer) SetNotifier(n Notifier) {
	s.notifierMu.Lock()
	defer s.notifierMu.Unlock()
	if n != nil {
		s.notifier = n
	}
}

// Hydrate rebuilds session state on startup: cached records are restored
// first so the shop is usable immediately, then the catalog and the rest of
// the remote collections are fetched. A dead remote leaves the session
// running on cached data alone.
func (s *Synchronizer) Hydrate(ctx context.Context) {
	s.mu.Lock()
	s.loading = true

	var cart []domain.CartItem
	if cache.GetJSON(s.cache, cache.KeyCart, &cart) {
		s.cart = cart
	}
	var orders []domain.Order
	if cache.GetJSON(s.cache, cache.KeyOrders, &orders) {
		s.orders = orders
	}
	var wishlist []string
	if cache.GetJSON(s.cache, cache.KeyWishlist, &wishlist) {
		s.wishlist = wishlist
	}
	if flag, ok := s.cache.Get(cache.KeyIsAdmin); ok && flag == "true" {
		s.isAdmin = true
	}
	cachedSettings := false
	var settings domain.SiteSettings
	if cache.GetJSON(s.cache, cache.KeySettings, &settings) {
		s.settings = settings
		cachedSettings = true
	}
	wasAdmin := s.isAdmin
	s.mu.Unlock()

	products, err := s.remote.ListProducts(ctx)
	if err != nil {
		log.Printf("[storefront] WARN: catalog fetch failed: %v", err)
		s.notify("Could not load the catalog. Showing cached data.", "error")
	}

	discounts, err := s.remote.ListDiscountCodes(ctx)
	if err != nil {
		log.Printf("[storefront] WARN: discount fetch failed: %v", err)
	}
	reviews, err := s.remote.ListReviews(ctx)
	if err != nil {
		log.Printf("[storefront] WARN: review fetch failed: %v", err)
	}

	// The cached settings record wins once one exists; the remote row is
	// only consulted to capture its identity (and to seed a first run).
	remoteSettings, err := s.remote.FetchSettings(ctx)
	if err != nil && !errors.Is(err, gateway.ErrNotFound) {
		log.Printf("[storefront] WARN: settings fetch failed: %v", err)
	}

	var remoteOrders []domain.Order
	if wasAdmin {
		remoteOrders, err = s.remote.ListOrders(ctx)
		if err != nil {
			log.Printf("[storefront] WARN: order fetch failed: %v", err)
			remoteOrders = nil
		}
	}

	s.mu.Lock()
	if products != nil {
		s.products = products
	}
	if discounts != nil {
		s.discounts = discounts
	}
	if reviews != nil {
		s.reviews = reviews
	}
	if remoteSettings != nil {
		if cachedSettings {
			s.settings.RemoteID = remoteSettings.RemoteID
		} else {
			// First-run seed: adopt the remote record and cache it, so a
			// later boot with a dead remote still shows these settings.
			s.settings = *remoteSettings
			s.persistSettingsLocked()
		}
	}
	if remoteOrders != nil {
		s.orders = remoteOrders
		s.persistOrdersLocked()
	}
	s.loading = false
	s.mu.Unlock()
}

func (s *Synchronizer) notify(message string, kind string) {
	s.notifierMu.Lock()
	n := s.notifier
	s.notifierMu.Unlock()
	n.Notify(message, kind)
}

// persistCartLocked writes the cart through to the cache. Callers hold s.mu.
func (s *Synchronizer) persistCartLocked() {
	cache.PutJSON(s.cache, cache.KeyCart, s.cart)
}

// persistOrdersLocked writes orders through to the cache, but only when at
// least one order exists: an empty write could clobber a backup that a
// half-hydrated session has not loaded yet.
func (s *Synchronizer) persistOrdersLocked() {
	if len(s.orders) == 0 {
		return
	}
	cache.PutJSON(s.cache, cache.KeyOrders, s.orders)
}

func (s *Synchronizer) persistWishlistLocked() {
	cache.PutJSON(s.cache, cache.KeyWishlist, s.wishlist)
}

func (s *Synchronizer) persistSettingsLocked() {
	cache.PutJSON(s.cache, cache.KeySettings, s.settings)
}

func (s *Synchronizer) Loading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

func (s *Synchronizer) Products() []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.products)
}

func (s *Synchronizer) ProductByID(id string) (domain.Product, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.products {
		if p.ID == id {
			return p, true
		}
	}
	return domain.Product{}, false
}

func (s *Synchronizer) Cart() []domain.CartItem {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.cart)
}

func (s *Synchronizer) Orders() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.orders)
}

func (s *Synchronizer) Wishlist() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.wishlist)
}

func (s *Synchronizer) Reviews() []domain.Review {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.reviews)
}

func (s *Synchronizer) DiscountCodes() []domain.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.discounts)
}

func (s *Synchronizer) Settings() domain.SiteSettings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

func (s *Synchronizer) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isAdmin
}

func (s *Synchronizer) AppliedDiscount() *domain.DiscountCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appliedDiscount == nil {
		return nil
	}
	code := *s.appliedDiscount
	return &code
}

// CartTotals reports the current subtotal, the discount amount deducted by
// the applied code, and the payable total.
func (s *Synchronizer) CartTotals() (subtotal float64, discount float64, total float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cartTotalsLocked()
}

func (s *Synchronizer) cartTotalsLocked() (subtotal float64, discount float64, total float64) {
	for _, item := range s.cart {
		subtotal += item.Price * float64(item.Quantity)
	}
	if s.appliedDiscount != nil {
		discount = subtotal * float64(s.appliedDiscount.Percentage) / 100
	}
	return subtotal, discount, subtotal - discount
}
