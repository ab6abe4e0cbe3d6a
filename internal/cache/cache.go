// Package cache is the persistent key-value cache the storefront writes
// through to on every cart/order/settings change. Values are plain
// serialized text with no expiry; a missing key means "use defaults".
package cache

import "encoding/json"

// Record keys. These names are part of the persisted contract and survive
// restarts, so they must not change between releases.
const (
	KeyCart     = "cart"
	KeyOrders   = "orders"
	KeyWishlist = "wishlist"
	KeyIsAdmin  = "isAdmin"
	KeySettings = "site_settings"
)

type Store interface {
	Get(key string) (string, bool)
	Set(key string, value string)
	Delete(key string)
}

type Noop struct{}

func (Noop) Get(_ string) (string, bool) { return "", false }
func (Noop) Set(_ string, _ string)      {}
func (Noop) Delete(_ string)             {}

// PutJSON serializes value and stores it under key. Serialization failures
// are swallowed: the cache is a best-effort backup, never a gate on the
// mutation that triggered the write.
func PutJSON(s Store, key string, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		return
	}
	s.Set(key, string(payload))
}

// GetJSON loads and decodes the record under key into dest. It reports
// whether a well-formed record was present.
func GetJSON(s Store, key string, dest any) bool {
	raw, ok := s.Get(key)
	if !ok || raw == "" {
		return false
	}
	return json.Unmarshal([]byte(raw), dest) == nil
}
