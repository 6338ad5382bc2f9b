package media

import (
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
)

// API response models

// UploadResponse is returned after a successful upload. watermark_pending is
// true when only the original was stored; the watermarked variant follows
// after a retry.
type UploadResponse struct {
	Asset *mediarepo.Asset `json:"asset"`
}

// AccessResponse carries the viewer's decision for one asset. URL is the
// single variant the viewer may fetch; it is absent when the asset is locked.
type AccessResponse struct {
	AssetID string `json:"asset_id"`
	State   string `json:"state"`
	URL     string `json:"url,omitempty"`
}
