package media

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

var ErrAssetNotFound = errors.New("media asset not found")

// Asset is the durable record of one uploaded image and its two variants.
// PremiumURL is always set: the record only exists once the original write
// committed. WatermarkedURL is empty exactly when WatermarkPending is true,
// and in that state the asset must not be previewed to under-tier viewers.
type Asset struct {
	ID               string    `json:"id"`
	OwnerID          int       `json:"owner_id"`
	ContentType      string    `json:"content_type"`
	ObjectKey        string    `json:"object_key"`
	PremiumURL       string    `json:"premium_url"`
	WatermarkedURL   string    `json:"watermarked_url,omitempty"`
	WatermarkPending bool      `json:"watermark_pending"`
	CreatedAt        time.Time `json:"created_at"`
}

// RepositoryImpl implements asset persistence on PostgreSQL.
type RepositoryImpl struct {
	db *sql.DB
}

// NewRepository creates a new media asset repository.
func NewRepository(db *sql.DB) *RepositoryImpl {
	return &RepositoryImpl{db: db}
}

// CreateAsset inserts a new asset record.
func (r *RepositoryImpl) CreateAsset(ctx context.Context, asset *Asset) error {
	watermarkedURL := sql.NullString{String: asset.WatermarkedURL, Valid: asset.WatermarkedURL != ""}

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO media_assets (id, owner_id, content_type, object_key, premium_url, watermarked_url, watermark_pending, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		asset.ID, asset.OwnerID, asset.ContentType, asset.ObjectKey, asset.PremiumURL,
		watermarkedURL, asset.WatermarkPending, asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save media asset: %w", err)
	}
	return nil
}

// AttachWatermarked records the watermarked variant URL for a pending asset.
// The update is guarded so the pending->resolved transition happens at most
// once and is never reversed; it reports whether this call performed it.
func (r *RepositoryImpl) AttachWatermarked(ctx context.Context, assetID, watermarkedURL string) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`UPDATE media_assets SET watermarked_url = $2, watermark_pending = FALSE
		 WHERE id = $1 AND watermarked_url IS NULL`,
		assetID, watermarkedURL,
	)
	if err != nil {
		return false, fmt.Errorf("failed to attach watermarked url: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read rows affected: %w", err)
	}
	return affected > 0, nil
}

// GetAsset retrieves an asset by its ID.
func (r *RepositoryImpl) GetAsset(ctx context.Context, assetID string) (*Asset, error) {
	var asset Asset
	var watermarkedURL sql.NullString

	err := r.db.QueryRowContext(ctx,
		`SELECT id, owner_id, content_type, object_key, premium_url, watermarked_url, watermark_pending, created_at
		 FROM media_assets WHERE id = $1`,
		assetID,
	).Scan(
		&asset.ID, &asset.OwnerID, &asset.ContentType, &asset.ObjectKey, &asset.PremiumURL,
		&watermarkedURL, &asset.WatermarkPending, &asset.CreatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrAssetNotFound
		}
		return nil, fmt.Errorf("failed to get media asset: %w", err)
	}

	asset.WatermarkedURL = watermarkedURL.String
	return &asset, nil
}

// GetPendingAssets lists assets still waiting for a watermarked variant,
// oldest first. The background retry job works through this list.
func (r *RepositoryImpl) GetPendingAssets(ctx context.Context, limit int) ([]Asset, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, owner_id, content_type, object_key, premium_url, watermarked_url, watermark_pending, created_at
		 FROM media_assets WHERE watermark_pending ORDER BY created_at LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending assets: %w", err)
	}
	defer rows.Close()

	var assets []Asset
	for rows.Next() {
		var asset Asset
		var watermarkedURL sql.NullString
		if err := rows.Scan(
			&asset.ID, &asset.OwnerID, &asset.ContentType, &asset.ObjectKey, &asset.PremiumURL,
			&watermarkedURL, &asset.WatermarkPending, &asset.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan media asset: %w", err)
		}
		asset.WatermarkedURL = watermarkedURL.String
		assets = append(assets, asset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating media assets: %w", err)
	}
	return assets, nil
}
