// Package httpapi exposes the storefront over HTTP. Shopper routes are
// public; catalog and order administration requires a bearer token issued by
// the login endpoint.
package httpapi

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"hivestore/backend/internal/advisor"
	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway"
	"hivestore/backend/internal/storefront"
)

type API struct {
	sync          *storefront.Synchronizer
	advisor       *advisor.Client
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	adviceLimiter *attemptLimiter
	csrfSecret    []byte
}

func New(sync *storefront.Synchronizer, adv *advisor.Client, auth *AuthManager, allowedOrigin string) *API {
	csrfSecret := make([]byte, 32)
	if _, err := rand.Read(csrfSecret); err != nil {
		// Fall back to a deterministic secret if crypto/rand fails (should not happen in practice).
		csrfSecret = []byte("csrf-fallback-secret-change-me!!")
	}
	return &API{
		sync:          sync,
		advisor:       adv,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		adviceLimiter: newAttemptLimiter(10, time.Minute),
		csrfSecret:    csrfSecret,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/auth/logout", a.requireAuth(a.handleLogout, "admin"))
	mux.HandleFunc("/api/v1/auth/csrf-token", a.handleCSRFToken)

	mux.HandleFunc("/api/v1/products", a.handleProducts)
	mux.HandleFunc("/api/v1/products/", a.handleProductActions)

	mux.HandleFunc("/api/v1/cart", a.handleCart)
	mux.HandleFunc("/api/v1/cart/items", a.handleCartItems)
	mux.HandleFunc("/api/v1/cart/items/", a.handleCartItemActions)
	mux.HandleFunc("/api/v1/cart/discount", a.handleCartDiscount)
	mux.HandleFunc("/api/v1/checkout", a.handleCheckout)

	mux.HandleFunc("/api/v1/wishlist", a.handleWishlist)
	mux.HandleFunc("/api/v1/wishlist/toggle", a.handleWishlistToggle)

	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders, "admin"))
	mux.HandleFunc("/api/v1/orders/", a.handleOrderActions)

	mux.HandleFunc("/api/v1/reviews", a.handleReviews)
	mux.HandleFunc("/api/v1/discounts", a.requireAuth(a.handleDiscounts, "admin"))
	mux.HandleFunc("/api/v1/discounts/", a.requireAuth(a.handleDiscountActions, "admin"))
	mux.HandleFunc("/api/v1/settings", a.handleSettings)
	mux.HandleFunc("/api/v1/advice", a.handleAdvice)

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc, roles ...string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, ok := a.authorize(w, r, roles...); !ok {
			return
		}
		next(w, r)
	}
}

// authorize parses the bearer token and checks the actor's role. It writes
// the error response itself so call sites stay one-liners.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, roles ...string) (domain.Actor, bool) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
		return domain.Actor{}, false
	}

	token := strings.TrimSpace(authorization[len("Bearer "):])
	actor, err := a.auth.ParseToken(token)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return domain.Actor{}, false
	}

	if len(roles) > 0 && !isRoleAllowed(actor.Role, roles) {
		writeError(w, http.StatusForbidden, errors.New("forbidden role"))
		return domain.Actor{}, false
	}
	return actor, true
}

func isRoleAllowed(role string, allowed []string) bool {
	for _, allow := range allowed {
		if role == allow {
			return true
		}
	}
	return false
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	// Flip the storefront session into admin mode; this also pulls the
	// order history from the remote store.
	if err := a.sync.LoginAdmin(r.Context(), a.auth, req.Username, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	resp, err := a.auth.Login(req)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	a.sync.LogoutAdmin()
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

// handleCSRFToken returns a stateless CSRF token valid for the current hour
// bucket. Clients include it in the X-CSRF-Token header on mutating requests.
func (a *API) handleCSRFToken(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"csrf_token": a.generateCSRFToken(),
	})
}

func (a *API) handleProducts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"products": a.sync.Products()})
	case http.MethodPost:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}

		var req struct {
			domain.Product
			Tags []string `json:"tags"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}

		product, err := a.sync.AddProduct(r.Context(), req.Product, req.Tags)
		if err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"product": product})
	default:
		writeMethodNotAllowed(w)
	}
}

// handleProductActions serves /api/v1/products/{id} and its sub-resources:
// related, reviews and tags.
func (a *API) handleProductActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/products/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("product id required"))
		return
	}
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			product, ok := a.sync.ProductByID(id)
			if !ok {
				writeError(w, http.StatusNotFound, errors.New("product not found"))
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"product": product})
		case http.MethodPatch:
			if _, ok := a.authorize(w, r, "admin"); !ok {
				return
			}
			var updates domain.ProductUpdate
			if err := decodeJSON(r, &updates); err != nil {
				writeError(w, http.StatusBadRequest, err)
				return
			}
			product, err := a.sync.EditProduct(r.Context(), id, updates)
			if err != nil {
				writeError(w, statusForGatewayErr(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"product": product})
		case http.MethodDelete:
			if _, ok := a.authorize(w, r, "admin"); !ok {
				return
			}
			if err := a.sync.RemoveProduct(r.Context(), id); err != nil {
				writeError(w, statusForGatewayErr(err), err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeMethodNotAllowed(w)
		}
		return
	}

	switch parts[1] {
	case "related":
		a.handleRelated(w, r, id, parts[1:])
	case "reviews":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"reviews": a.sync.ProductReviews(id)})
	case "tags":
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		tags, err := a.sync.ProductTags(r.Context(), id)
		if err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"tags": tags})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown product resource"))
	}
}

func (a *API) handleRelated(w http.ResponseWriter, r *http.Request, id string, parts []string) {
	switch r.Method {
	case http.MethodGet:
		related, err := a.sync.RelatedProducts(r.Context(), id)
		if err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"products": related})
	case http.MethodPost:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		var req struct {
			RelatedProductID string `json:"related_product_id"`
			RelationType     string `json:"relation_type"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.sync.LinkRelatedProduct(r.Context(), id, req.RelatedProductID, req.RelationType); err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"ok": true})
	case http.MethodDelete:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		if len(parts) < 2 || parts[1] == "" {
			writeError(w, http.StatusBadRequest, errors.New("related product id required"))
			return
		}
		if err := a.sync.UnlinkRelatedProduct(r.Context(), id, parts[1]); err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCart(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		subtotal, discount, total := a.sync.CartTotals()
		writeJSON(w, http.StatusOK, map[string]any{
			"items":    a.sync.Cart(),
			"subtotal": subtotal,
			"discount": discount,
			"total":    total,
		})
	case http.MethodDelete:
		a.sync.ClearCart()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID       string            `json:"product_id"`
		SelectedOptions map[string]string `json:"selected_options"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if req.ProductID == "" {
		writeError(w, http.StatusBadRequest, errors.New("product_id required"))
		return
	}

	a.sync.AddToCart(req.ProductID, req.SelectedOptions)
	writeJSON(w, http.StatusOK, map[string]any{"items": a.sync.Cart()})
}

func (a *API) handleCartItemActions(w http.ResponseWriter, r *http.Request) {
	itemID := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/cart/items/"), "/")
	if itemID == "" {
		writeError(w, http.StatusNotFound, errors.New("cart item id required"))
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req struct {
			Quantity int `json:"quantity"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.sync.UpdateQuantity(itemID, req.Quantity)
		writeJSON(w, http.StatusOK, map[string]any{"items": a.sync.Cart()})
	case http.MethodDelete:
		a.sync.RemoveFromCart(itemID)
		writeJSON(w, http.StatusOK, map[string]any{"items": a.sync.Cart()})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCartDiscount(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		var req struct {
			Code string `json:"code"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !a.sync.ApplyDiscount(req.Code) {
			writeError(w, http.StatusUnprocessableEntity, errors.New("invalid discount code"))
			return
		}
		_, discount, total := a.sync.CartTotals()
		writeJSON(w, http.StatusOK, map[string]any{"discount": discount, "total": total})
	case http.MethodDelete:
		a.sync.RemoveDiscount()
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		Customer domain.Customer `json:"customer"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Customer.Name) == "" || strings.TrimSpace(req.Customer.Phone) == "" {
		writeError(w, http.StatusBadRequest, errors.New("customer name and phone are required"))
		return
	}

	order, err := a.sync.Checkout(r.Context(), req.Customer)
	if err != nil {
		if errors.Is(err, storefront.ErrEmptyCart) {
			writeError(w, http.StatusUnprocessableEntity, err)
			return
		}
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"order": order})
}

func (a *API) handleWishlist(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"product_ids": a.sync.Wishlist()})
}

func (a *API) handleWishlistToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID string `json:"product_id"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	wishlisted := a.sync.ToggleWishlist(req.ProductID)
	writeJSON(w, http.StatusOK, map[string]any{"wishlisted": wishlisted})
}

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"orders": a.sync.Orders()})
}

// handleOrderActions serves /api/v1/orders/{id} plus the status, return and
// rated sub-resources. Order tracking and rating are open to the shopper;
// status changes and returns are admin operations.
func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/orders/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		writeError(w, http.StatusNotFound, errors.New("order id required"))
		return
	}
	orderID := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			writeMethodNotAllowed(w)
			return
		}
		order, ok := a.sync.OrderByID(orderID)
		if !ok {
			writeError(w, http.StatusNotFound, errors.New("order not found"))
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"order": order})
		return
	}

	switch parts[1] {
	case "status":
		if r.Method != http.MethodPatch {
			writeMethodNotAllowed(w)
			return
		}
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		var req struct {
			Status string `json:"status"`
		}
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if !isValidStatus(req.Status) {
			writeError(w, http.StatusBadRequest, errors.New("unknown order status"))
			return
		}
		if err := a.sync.UpdateOrderStatus(r.Context(), orderID, req.Status); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "return":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		if err := a.sync.ReturnOrder(r.Context(), orderID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case "rated":
		if r.Method != http.MethodPost {
			writeMethodNotAllowed(w)
			return
		}
		if err := a.sync.MarkOrderAsRated(r.Context(), orderID); err != nil {
			writeError(w, http.StatusNotFound, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	default:
		writeError(w, http.StatusNotFound, errors.New("unknown order resource"))
	}
}

func isValidStatus(status string) bool {
	switch status {
	case domain.OrderStatusPending, domain.OrderStatusShipped,
		domain.OrderStatusDelivered, domain.OrderStatusReturned:
		return true
	}
	return false
}

func (a *API) handleReviews(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	var req struct {
		ProductID    string `json:"product_id"`
		OrderID      string `json:"order_id"`
		CustomerName string `json:"customer_name"`
		Rating       int    `json:"rating"`
		Comment      string `json:"comment"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	review, err := a.sync.AddReview(r.Context(), req.ProductID, req.OrderID, req.CustomerName, req.Rating, req.Comment)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"review": review})
}

func (a *API) handleDiscounts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"discount_codes": a.sync.DiscountCodes()})
	case http.MethodPost:
		var code domain.DiscountCode
		if err := decodeJSON(r, &code); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := a.sync.AddDiscountCode(r.Context(), code)
		if err != nil {
			writeError(w, statusForGatewayErr(err), err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]any{"discount_code": created})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleDiscountActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeMethodNotAllowed(w)
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/v1/discounts/"), "/")
	if id == "" {
		writeError(w, http.StatusNotFound, errors.New("discount id required"))
		return
	}
	if err := a.sync.DeleteDiscountCode(r.Context(), id); err != nil {
		writeError(w, statusForGatewayErr(err), err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *API) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"settings": a.sync.Settings()})
	case http.MethodPut:
		if _, ok := a.authorize(w, r, "admin"); !ok {
			return
		}
		var settings domain.SiteSettings
		if err := decodeJSON(r, &settings); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		a.sync.UpdateSettings(r.Context(), settings)
		writeJSON(w, http.StatusOK, map[string]any{"settings": a.sync.Settings()})
	default:
		writeMethodNotAllowed(w)
	}
}

func (a *API) handleAdvice(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.adviceLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many advice requests"))
		return
	}

	var req struct {
		Query   string            `json:"query"`
		History []advisor.Message `json:"history"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, errors.New("query required"))
		return
	}

	answer := a.advisor.Advise(r.Context(), req.Query, a.sync.Products(), req.History)
	writeJSON(w, http.StatusOK, map[string]any{"answer": answer})
}

func statusForGatewayErr(err error) int {
	switch {
	case errors.Is(err, gateway.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, gateway.ErrInvalid):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// csrfTokenForHour computes an HMAC-SHA256 token for the given hour bucket
// (expressed as Unix time truncated to the hour). The token is hex-encoded.
func (a *API) csrfTokenForHour(hourBucket int64) string {
	h := hmac.New(sha256.New, a.csrfSecret)
	fmt.Fprintf(h, "%d", hourBucket)
	return hex.EncodeToString(h.Sum(nil))
}

func (a *API) generateCSRFToken() string {
	now := time.Now().UTC()
	bucket := now.Truncate(time.Hour).Unix()
	return a.csrfTokenForHour(bucket)
}

// validateCSRFToken checks whether the provided token matches the current or
// previous hour bucket, giving a 2-hour validity window.
func (a *API) validateCSRFToken(token string) bool {
	if token == "" {
		return false
	}
	now := time.Now().UTC()
	currentBucket := now.Truncate(time.Hour).Unix()
	prevBucket := currentBucket - 3600

	expected1 := a.csrfTokenForHour(currentBucket)
	expected2 := a.csrfTokenForHour(prevBucket)

	return hmac.Equal([]byte(token), []byte(expected1)) ||
		hmac.Equal([]byte(token), []byte(expected2))
}

// csrfExemptPaths lists paths exempt from CSRF validation. Login is excluded
// because it is called without a prior token fetch.
var csrfExemptPaths = []string{
	"/api/v1/auth/login",
}

func (a *API) checkCSRF(w http.ResponseWriter, r *http.Request) bool {
	method := r.Method
	if method != http.MethodPost && method != http.MethodPut && method != http.MethodPatch && method != http.MethodDelete {
		return true
	}
	for _, exempt := range csrfExemptPaths {
		if r.URL.Path == exempt {
			return true
		}
	}
	token := strings.TrimSpace(r.Header.Get("X-CSRF-Token"))
	if !a.validateCSRFToken(token) {
		writeError(w, http.StatusForbidden, errors.New("missing or invalid CSRF token"))
		return false
	}
	return true
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	kept = append(kept, now)
	l.entries[key] = kept
	return true
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-CSRF-Token")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		if !a.checkCSRF(w, r) {
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		log.Printf("%s %s %s", r.Method, r.URL.Path, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(dest)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx responses return a generic message so internal details never
	// reach the client; 4xx messages are user-facing.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
