package subscription

import (
	"context"
	"database/sql"
	"fmt"
)

// RepositoryImpl reads subscription tiers from PostgreSQL. The billing system
// owns the rows; this core never writes them.
type RepositoryImpl struct {
	db *sql.DB
}

// NewRepository creates a new subscription repository.
func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// TierForUser returns the user's tier name. Users without a subscription row
// are on the free tier.
func (r *RepositoryImpl) TierForUser(ctx context.Context, userID int) (string, error) {
	var tier string
	err := r.db.QueryRowContext(ctx,
		"SELECT tier FROM subscriptions WHERE user_id = $1",
		userID,
	).Scan(&tier)
	if err != nil {
		if err == sql.ErrNoRows {
			return "free", nil
		}
		return "", fmt.Errorf("failed to get subscription tier: %w", err)
	}
	return tier, nil
}
