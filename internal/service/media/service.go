package media

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"path"
	"time"

	"github.com/google/uuid"

	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	storagemedia "github.com/lenslock/lenslock-backend/internal/storage/media"
)

var (
	ErrEmptyFile       = errors.New("empty file")
	ErrFileTooBig      = errors.New("file too big")
	ErrInvalidFileType = errors.New("invalid file type")
)

const (
	MaxFileSize = 10 * 1024 * 1024 // 10 MB

	ContentTypePhoto = "photo"

	defaultFolder = "media"
)

// AssetRepository persists media asset records.
type AssetRepository interface {
	CreateAsset(ctx context.Context, asset *mediarepo.Asset) error
	AttachWatermarked(ctx context.Context, assetID, watermarkedURL string) (bool, error)
	GetAsset(ctx context.Context, assetID string) (*mediarepo.Asset, error)
	GetPendingAssets(ctx context.Context, limit int) ([]mediarepo.Asset, error)
}

// Compositor produces the watermarked derivative of an image.
type Compositor interface {
	Apply(src []byte) ([]byte, error)
}

// Extensions for the mime types the pipeline accepts. Detection is done on the
// bytes themselves, not on a client-supplied filename.
var extensionByMime = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
}

// UploadService writes both variants of every uploaded image: the untouched
// original into the premium namespace and the watermarked derivative into the
// watermarked namespace.
type UploadService struct {
	repo       AssetRepository
	storage    storagemedia.StorageProvider
	compositor Compositor
}

// NewUploadService creates a new dual-tier upload service.
func NewUploadService(repo AssetRepository, storage storagemedia.StorageProvider, compositor Compositor) *UploadService {
	return &UploadService{
		repo:       repo,
		storage:    storage,
		compositor: compositor,
	}
}

type compositeResult struct {
	data []byte
	err  error
}

// Upload stores the original bytes and, when compositing succeeds, the
// watermarked derivative. The original write is authoritative: if it fails the
// upload fails and no record is created. Compositing or watermarked-write
// failures degrade the asset to watermark-pending instead of failing the
// upload; the background retry job picks those up later. The premium URL is
// never substituted for the missing watermarked one.
//
// Each call creates a new, independent asset; there is no update-in-place.
func (s *UploadService) Upload(ctx context.Context, data []byte, ownerID int, folder string) (*mediarepo.Asset, error) {
	if len(data) == 0 {
		return nil, ErrEmptyFile
	}
	if len(data) > MaxFileSize {
		return nil, ErrFileTooBig
	}

	mimeType := http.DetectContentType(data)
	ext, ok := extensionByMime[mimeType]
	if !ok {
		return nil, ErrInvalidFileType
	}

	if folder == "" {
		folder = defaultFolder
	}
	assetID := uuid.NewString()
	objectKey := path.Join(folder, fmt.Sprintf("%d", ownerID), assetID+ext)

	// Compositing only depends on the input bytes, so it runs while the
	// original write is in flight.
	composited := make(chan compositeResult, 1)
	go func() {
		out, err := s.compositor.Apply(data)
		composited <- compositeResult{data: out, err: err}
	}()

	if err := s.storage.Put(ctx, storagemedia.NamespacePremium, objectKey, data, mimeType); err != nil {
		return nil, fmt.Errorf("failed to store original: %w", err)
	}
	premiumURL, err := s.storage.PublicURL(storagemedia.NamespacePremium, objectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve premium url: %w", err)
	}

	asset := &mediarepo.Asset{
		ID:               assetID,
		OwnerID:          ownerID,
		ContentType:      ContentTypePhoto,
		ObjectKey:        objectKey,
		PremiumURL:       premiumURL,
		WatermarkPending: true,
		CreatedAt:        time.Now().UTC(),
	}

	if url, err := s.storeWatermarked(ctx, objectKey, <-composited); err != nil {
		// Degrade, don't fail: the original is durably stored, the asset just
		// has no safe preview variant yet.
		log.Printf("watermarking failed for asset %s, leaving pending: %v", assetID, err)
	} else {
		asset.WatermarkedURL = url
		asset.WatermarkPending = false
	}

	if err := s.repo.CreateAsset(ctx, asset); err != nil {
		return nil, err
	}
	return asset, nil
}

func (s *UploadService) storeWatermarked(ctx context.Context, objectKey string, res compositeResult) (string, error) {
	if res.err != nil {
		return "", res.err
	}
	if err := s.storage.Put(ctx, storagemedia.NamespaceWatermarked, objectKey, res.data, "image/jpeg"); err != nil {
		return "", err
	}
	url, err := s.storage.PublicURL(storagemedia.NamespaceWatermarked, objectKey)
	if err != nil {
		return "", err
	}
	return url, nil
}

// RetryWatermark re-runs compositing for a pending asset from the stored
// original. Safe to call on an already resolved asset: the guarded repository
// update keeps the pending->resolved transition monotonic, and the asset is
// returned as-is.
func (s *UploadService) RetryWatermark(ctx context.Context, assetID string) (*mediarepo.Asset, error) {
	asset, err := s.repo.GetAsset(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if !asset.WatermarkPending {
		return asset, nil
	}

	original, err := s.storage.Get(ctx, storagemedia.NamespacePremium, asset.ObjectKey)
	if err != nil {
		return nil, fmt.Errorf("failed to read original: %w", err)
	}

	out, err := s.compositor.Apply(original)
	if err != nil {
		return nil, err
	}
	url, err := s.storeWatermarked(ctx, asset.ObjectKey, compositeResult{data: out})
	if err != nil {
		return nil, err
	}

	attached, err := s.repo.AttachWatermarked(ctx, asset.ID, url)
	if err != nil {
		return nil, err
	}
	if attached {
		asset.WatermarkedURL = url
		asset.WatermarkPending = false
	}
	return asset, nil
}

// ProcessPending retries watermarking for up to limit pending assets and
// returns how many resolved. Failures are logged and skipped so one broken
// image cannot stall the rest of the queue.
func (s *UploadService) ProcessPending(ctx context.Context, limit int) (int, error) {
	pending, err := s.repo.GetPendingAssets(ctx, limit)
	if err != nil {
		return 0, err
	}

	resolved := 0
	for _, asset := range pending {
		updated, err := s.RetryWatermark(ctx, asset.ID)
		if err != nil {
			log.Printf("watermark retry failed for asset %s: %v", asset.ID, err)
			continue
		}
		if !updated.WatermarkPending {
			resolved++
		}
	}
	return resolved, nil
}
