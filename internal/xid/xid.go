package xid

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// New returns a prefixed unique id, e.g. "rev-1712345678901234567-a1b2c3d4e5f60708".
func New(prefix string) string {
	buf := make([]byte, 8)
	if _, err := rand.Read(buf); err != nil {
		return fmt.Sprintf("%s-%d", prefix, time.Now().UnixNano())
	}
	return fmt.Sprintf("%s-%d-%s", prefix, time.Now().UnixNano(), hex.EncodeToString(buf))
}

// CartItem returns a cart line id in the "{productID}-{timestamp}" form the
// storefront uses to distinguish lines for the same product added at
// different times.
func CartItem(productID string) string {
	return fmt.Sprintf("%s-%d", productID, time.Now().UnixMilli())
}
