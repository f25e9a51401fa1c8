package repository

import (
	"context"

	"canny/backend/internal/aggregator/domain"
)

// Repository defines persistence for linked aggregator items.
type Repository interface {
	// Save stores the item. Linking an already linked item again replaces its access token.
	Save(ctx context.Context, item *domain.Item) error
	ListByUser(ctx context.Context, userID string) ([]*domain.Item, error)
}
