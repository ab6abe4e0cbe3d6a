package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"hivestore/backend/internal/advisor"
	"hivestore/backend/internal/cache"
	"hivestore/backend/internal/domain"
	"hivestore/backend/internal/gateway/memory"
	"hivestore/backend/internal/storefront"
)

type testEnv struct {
	server  *httptest.Server
	remote  *memory.Store
	sync    *storefront.Synchronizer
	product domain.Product
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	remote := memory.New()
	ctx := context.Background()
	if err := remote.CreateUser(ctx, domain.UserAccount{
		Username: "admin",
		Password: "secret123",
		Role:     "admin",
	}); err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	product, err := remote.CreateProduct(ctx, domain.Product{
		Name: "Sidr Honey 500g", Price: 180, Stock: 10, Description: "Raw mountain honey.",
	})
	if err != nil {
		t.Fatalf("seed product: %v", err)
	}

	sync := storefront.New(remote, cache.Noop{})
	sync.Hydrate(ctx)

	auth := NewAuthManager("test-secret", time.Hour, remote)
	api := New(sync, advisor.New("http://127.0.0.1:0", "", "gemini-2.5-flash"), auth, "*")

	env := &testEnv{
		server:  httptest.NewServer(api.Handler()),
		remote:  remote,
		sync:    sync,
		product: *product,
	}
	t.Cleanup(env.server.Close)
	return env
}

func (e *testEnv) csrfToken(t *testing.T) string {
	t.Helper()
	resp, err := http.Get(e.server.URL + "/api/v1/auth/csrf-token")
	if err != nil {
		t.Fatalf("csrf token: %v", err)
	}
	defer resp.Body.Close()
	var body struct {
		Token string `json:"csrf_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode csrf token: %v", err)
	}
	return body.Token
}

func (e *testEnv) login(t *testing.T) string {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin", "password": "secret123",
	}, "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("login status = %d", resp.StatusCode)
	}
	var body domain.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	if body.AccessToken == "" {
		t.Fatal("empty access token")
	}
	return body.AccessToken
}

func (e *testEnv) do(t *testing.T, method string, path string, payload any, token string, csrf string) *http.Response {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if csrf != "" {
		req.Header.Set("X-CSRF-Token", csrf)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	return resp
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
}

func TestProductsArePublic(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/products")
	if err != nil {
		t.Fatalf("list products: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var body struct {
		Products []domain.Product `json:"products"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Products) != 1 {
		t.Fatalf("products = %d, want 1", len(body.Products))
	}
}

func TestMutationsRequireCSRF(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]string{
		"product_id": env.product.ID,
	}, "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("status = %d, want 403 without CSRF token", resp.StatusCode)
	}
}

func TestOrdersRequireAdminToken(t *testing.T) {
	env := newTestEnv(t)

	resp, err := http.Get(env.server.URL + "/api/v1/orders")
	if err != nil {
		t.Fatalf("list orders: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", resp.StatusCode)
	}
}

func TestLoginGrantsAdminAccess(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)

	resp := env.do(t, http.MethodGet, "/api/v1/orders", nil, token, "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 with token", resp.StatusCode)
	}
	if !env.sync.IsAdmin() {
		t.Fatal("storefront session not in admin mode after login")
	}
}

func TestLoginRejectsBadPassword(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
		"username": "admin", "password": "wrong",
	}, "", "")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", resp.StatusCode)
	}
}

func TestCartCheckoutFlow(t *testing.T) {
	env := newTestEnv(t)
	csrf := env.csrfToken(t)

	resp := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": env.product.ID,
	}, "", csrf)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("add to cart status = %d", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"customer": map[string]string{
			"name": "Maha", "phone": "0500000000", "address": "King Rd", "city": "Jeddah",
		},
	}, "", csrf)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("checkout status = %d", resp.StatusCode)
	}
	var body struct {
		Order domain.Order `json:"order"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode order: %v", err)
	}
	if body.Order.Status != domain.OrderStatusPending {
		t.Fatalf("order status = %q, want pending", body.Order.Status)
	}

	// The shopper can track the order without credentials.
	track, err := http.Get(env.server.URL + "/api/v1/orders/" + body.Order.ID)
	if err != nil {
		t.Fatalf("track order: %v", err)
	}
	defer track.Body.Close()
	if track.StatusCode != http.StatusOK {
		t.Fatalf("track status = %d", track.StatusCode)
	}
}

func TestCheckoutRejectsEmptyCart(t *testing.T) {
	env := newTestEnv(t)
	csrf := env.csrfToken(t)

	resp := env.do(t, http.MethodPost, "/api/v1/checkout", map[string]any{
		"customer": map[string]string{"name": "Maha", "phone": "0500000000"},
	}, "", csrf)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", resp.StatusCode)
	}
}

func TestProductAdministration(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	csrf := env.csrfToken(t)

	resp := env.do(t, http.MethodPost, "/api/v1/products", map[string]any{
		"name": "Acacia Honey", "price": 95.0, "stock": 12,
		"description": "Light floral honey.", "image": "/img/acacia.jpg",
		"category": "Honey", "tags": []string{"honey", "light"},
	}, token, csrf)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create product status = %d", resp.StatusCode)
	}
	var created struct {
		Product domain.Product `json:"product"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		t.Fatalf("decode product: %v", err)
	}

	tags, err := env.remote.ListProductTags(context.Background(), created.Product.ID)
	if err != nil {
		t.Fatalf("list tags: %v", err)
	}
	if len(tags) != 2 {
		t.Fatalf("tags = %v, want 2", tags)
	}

	patch := env.do(t, http.MethodPatch, "/api/v1/products/"+created.Product.ID, map[string]any{
		"price": 99.0,
	}, token, csrf)
	patch.Body.Close()
	if patch.StatusCode != http.StatusOK {
		t.Fatalf("patch status = %d", patch.StatusCode)
	}

	// Without a token the same mutation is refused.
	anon := env.do(t, http.MethodPatch, "/api/v1/products/"+created.Product.ID, map[string]any{
		"price": 1.0,
	}, "", csrf)
	anon.Body.Close()
	if anon.StatusCode != http.StatusUnauthorized {
		t.Fatalf("anonymous patch status = %d, want 401", anon.StatusCode)
	}
}

func TestDiscountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	csrf := env.csrfToken(t)

	resp := env.do(t, http.MethodPost, "/api/v1/discounts", map[string]any{
		"id": "", "code": "SAVE10", "percentage": 10, "expiry_date": "2030-01-01", "is_active": true,
	}, token, csrf)
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("create discount status = %d", resp.StatusCode)
	}

	add := env.do(t, http.MethodPost, "/api/v1/cart/items", map[string]any{
		"product_id": env.product.ID,
	}, "", csrf)
	add.Body.Close()

	apply := env.do(t, http.MethodPost, "/api/v1/cart/discount", map[string]any{
		"code": "SAVE10",
	}, "", csrf)
	defer apply.Body.Close()
	if apply.StatusCode != http.StatusOK {
		t.Fatalf("apply discount status = %d", apply.StatusCode)
	}
	var applied struct {
		Total float64 `json:"total"`
	}
	if err := json.NewDecoder(apply.Body).Decode(&applied); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if applied.Total != 162 {
		t.Fatalf("total = %v, want 180 minus 10%%", applied.Total)
	}

	bad := env.do(t, http.MethodPost, "/api/v1/cart/discount", map[string]any{
		"code": "NOPE",
	}, "", csrf)
	bad.Body.Close()
	if bad.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("bad code status = %d, want 422", bad.StatusCode)
	}
}

func TestAdviceFallsBackWithoutModel(t *testing.T) {
	env := newTestEnv(t)
	csrf := env.csrfToken(t)

	resp := env.do(t, http.MethodPost, "/api/v1/advice", map[string]any{
		"query": "Which honey is best?",
	}, "", csrf)
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("advice status = %d", resp.StatusCode)
	}
	var body struct {
		Answer string `json:"answer"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Answer != advisor.Fallback {
		t.Fatalf("answer = %q, want fallback without an API key", body.Answer)
	}
}

func TestLoginRateLimited(t *testing.T) {
	env := newTestEnv(t)

	var lastStatus int
	for i := 0; i < 7; i++ {
		resp := env.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{
			"username": "admin", "password": fmt.Sprintf("wrong-%d", i),
		}, "", "")
		lastStatus = resp.StatusCode
		resp.Body.Close()
	}
	if lastStatus != http.StatusTooManyRequests {
		t.Fatalf("status after burst = %d, want 429", lastStatus)
	}
}

func TestSettingsRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	token := env.login(t)
	csrf := env.csrfToken(t)

	settings := domain.DefaultSettings()
	settings.StoreName = "Renamed Store"
	resp := env.do(t, http.MethodPut, "/api/v1/settings", settings, token, csrf)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("put settings status = %d", resp.StatusCode)
	}

	get, err := http.Get(env.server.URL + "/api/v1/settings")
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	defer get.Body.Close()
	var body struct {
		Settings domain.SiteSettings `json:"settings"`
	}
	if err := json.NewDecoder(get.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Settings.StoreName != "Renamed Store" {
		t.Fatalf("store name = %q", body.Settings.StoreName)
	}
}
