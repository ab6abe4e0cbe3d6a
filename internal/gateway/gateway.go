// Package gateway defines the remote data contract: CRUD against a hosted
// relational store whose columns are snake_case while the application works
// with the shapes in internal/domain. Implementations translate between the
// two; callers treat every write as best-effort.
package gateway

import (
	"context"
	"errors"
	"strings"

	"hivestore/backend/internal/domain"
)

var (
	ErrNotFound = errors.New("not found")
	ErrInvalid  = errors.New("invalid record")
)

// NormalizeCategory maps a blank category to the catch-all bucket so every
// stored product can be grouped. Implementations apply it on create; an
// explicit category set by a later update is stored as given.
func NormalizeCategory(category string) string {
	if strings.TrimSpace(category) == "" {
		return "Uncategorized"
	}
	return category
}

type Remote interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProductByID(ctx context.Context, id string) (*domain.Product, error)
	// CreateProduct assigns the product a generated unique id before insert
	// and returns the stored row.
	CreateProduct(ctx context.Context, product domain.Product) (*domain.Product, error)
	// UpdateProduct applies only the non-nil fields of the update and
	// returns the canonical stored row.
	UpdateProduct(ctx context.Context, id string, updates domain.ProductUpdate) (*domain.Product, error)
	DeleteProduct(ctx context.Context, id string) error

	// SetProductTags replaces the product's full tag set (delete-all-then-insert).
	SetProductTags(ctx context.Context, productID string, tags []string) error
	ListProductTags(ctx context.Context, productID string) ([]string, error)

	AddRelatedProduct(ctx context.Context, productID string, relatedID string, relationType string) error
	RemoveRelatedProduct(ctx context.Context, productID string, relatedID string) error
	ListRelatedProducts(ctx context.Context, productID string) ([]domain.Product, error)

	// ListOrders returns orders newest-first.
	ListOrders(ctx context.Context) ([]domain.Order, error)
	// CreateOrderWithStock records the order and applies the given absolute
	// stock values per product id as one unit of work.
	CreateOrderWithStock(ctx context.Context, order domain.Order, stockByProduct map[string]int) error
	UpdateOrderStatus(ctx context.Context, orderID string, status string) error
	MarkOrderRated(ctx context.Context, orderID string) error

	// FetchSettings returns the singleton settings row with its RemoteID
	// populated, or ErrNotFound when no row exists yet.
	FetchSettings(ctx context.Context) (*domain.SiteSettings, error)
	// UpdateSettings targets the row with the given identity and reports
	// how many rows were affected (zero when the identity is stale).
	UpdateSettings(ctx context.Context, id int64, settings domain.SiteSettings) (int64, error)
	// InsertSettings creates the singleton row and returns its identity.
	InsertSettings(ctx context.Context, settings domain.SiteSettings) (int64, error)

	ListDiscountCodes(ctx context.Context) ([]domain.DiscountCode, error)
	CreateDiscountCode(ctx context.Context, code domain.DiscountCode) (*domain.DiscountCode, error)
	DeleteDiscountCode(ctx context.Context, id string) error

	ListReviews(ctx context.Context) ([]domain.Review, error)
	CreateReview(ctx context.Context, review domain.Review) error

	CreateUser(ctx context.Context, user domain.UserAccount) error
	ListUsers(ctx context.Context) ([]domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error
}
