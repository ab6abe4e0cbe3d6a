package storefront

import (
	"context"

	"hivestore/backend/internal/domain"
)

// Related-product links and tag lookups are not part of the synchronized
// session state; they are read from the remote store on demand.

func (s *Synchronizer) RelatedProducts(ctx context.Context, productID string) ([]domain.Product, error) {
	return s.remote.ListRelatedProducts(ctx, productID)
}

func (s *Synchronizer) ProductTags(ctx context.Context, productID string) ([]string, error) {
	return s.remote.ListProductTags(ctx, productID)
}

func (s *Synchronizer) LinkRelatedProduct(ctx context.Context, productID string, relatedID string, relationType string) error {
	if relationType == "" {
		relationType = domain.RelationManual
	}
	return s.remote.AddRelatedProduct(ctx, productID, relatedID, relationType)
}

func (s *Synchronizer) UnlinkRelatedProduct(ctx context.Context, productID string, relatedID string) error {
	return s.remote.RemoveRelatedProduct(ctx, productID, relatedID)
}
