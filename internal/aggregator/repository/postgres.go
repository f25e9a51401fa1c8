package repository

import (
	"context"
	"database/sql"

	"canny/backend/internal/aggregator/domain"
)

const itemColumns = `id, user_id, item_id, access_token, created_at`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an item repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Save inserts the item, or updates the access token of the user's existing row for the same item.
func (r *PostgresRepository) Save(ctx context.Context, item *domain.Item) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO aggregator_items (`+itemColumns+`) VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT (user_id, item_id) DO UPDATE SET access_token = EXCLUDED.access_token`,
		item.ID, item.UserID, item.ItemID, item.AccessToken, item.CreatedAt,
	)
	return err
}

// ListByUser returns the user's items, oldest first.
func (r *PostgresRepository) ListByUser(ctx context.Context, userID string) ([]*domain.Item, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM aggregator_items WHERE user_id = $1 ORDER BY created_at, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Item
	for rows.Next() {
		var it domain.Item
		if err := rows.Scan(&it.ID, &it.UserID, &it.ItemID, &it.AccessToken, &it.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}
