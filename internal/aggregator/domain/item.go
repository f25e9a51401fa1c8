// Package domain holds the aggregator's linked items and account views.
package domain

import "time"

// Item is a financial institution login linked through the aggregator. AccessToken
// is the durable credential for the item and never leaves the server except to its owner.
type Item struct {
	ID          string
	UserID      string
	ItemID      string
	AccessToken string
	CreatedAt   time.Time
}
