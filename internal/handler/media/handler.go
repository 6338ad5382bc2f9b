package media

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/lenslock/lenslock-backend/internal/access"
	"github.com/lenslock/lenslock-backend/internal/auth"
	mediarepo "github.com/lenslock/lenslock-backend/internal/repository/media"
	mediaservice "github.com/lenslock/lenslock-backend/internal/service/media"
	"github.com/lenslock/lenslock-backend/internal/subscription"
)

// MediaService handles the dual-tier upload pipeline.
type MediaService interface {
	Upload(ctx context.Context, data []byte, ownerID int, folder string) (*mediarepo.Asset, error)
}

// AssetProvider reads stored asset records.
type AssetProvider interface {
	GetAsset(ctx context.Context, assetID string) (*mediarepo.Asset, error)
}

// MediaHandler handles requests for media operations.
type MediaHandler struct {
	service  MediaService
	assets   AssetProvider
	tiers    subscription.TierStore
	policies subscription.PolicySet
}

// NewMediaHandler creates a new instance of MediaHandler.
func NewMediaHandler(service MediaService, assets AssetProvider, tiers subscription.TierStore, policies subscription.PolicySet) *MediaHandler {
	return &MediaHandler{
		service:  service,
		assets:   assets,
		tiers:    tiers,
		policies: policies,
	}
}

// @Summary      Upload media
// @Description  Upload a photo; stores the original and a watermarked derivative
// @Tags         media
// @Accept       multipart/form-data
// @Produce      json
// @Param        file    formData  file    true   "Image file (JPEG or PNG)"
// @Param        folder  formData  string  false  "Storage folder"
// @Success      200  {object}  UploadResponse
// @Failure      400  {string}  string  "Invalid file"
// @Failure      401  {string}  string  "Unauthorized"
// @Failure      413  {string}  string  "File too large"
// @Failure      500  {string}  string  "Internal server error"
// @Router       /media [post]
// @Security     BearerAuth
func (h *MediaHandler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == 0 {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(mediaservice.MaxFileSize); err != nil {
		http.Error(w, "Could not parse form", http.StatusBadRequest)
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		http.Error(w, "Could not get file", http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, mediaservice.MaxFileSize+1))
	if err != nil {
		http.Error(w, "Could not read file", http.StatusBadRequest)
		return
	}

	asset, err := h.service.Upload(r.Context(), data, userID, r.FormValue("folder"))
	if err != nil {
		switch {
		case errors.Is(err, mediaservice.ErrInvalidFileType), errors.Is(err, mediaservice.ErrEmptyFile):
			http.Error(w, "Invalid file", http.StatusBadRequest)
		case errors.Is(err, mediaservice.ErrFileTooBig):
			http.Error(w, "File too large", http.StatusRequestEntityTooLarge)
		default:
			log.Printf("upload failed for user %d: %v", userID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(UploadResponse{Asset: asset})
}

// @Summary      Resolve access
// @Description  Decide which variant of an asset the caller may view
// @Tags         media
// @Produce      json
// @Param        mediaID  path  string  true  "Asset ID"
// @Success      200  {object}  AccessResponse
// @Failure      404  {string}  string  "Asset not found"
// @Failure      500  {string}  string  "Internal server error"
// @Router       /media/{mediaID}/access [get]
func (h *MediaHandler) ResolveAccess(w http.ResponseWriter, r *http.Request) {
	assetID := chi.URLParam(r, "mediaID")

	asset, err := h.assets.GetAsset(r.Context(), assetID)
	if err != nil {
		if errors.Is(err, mediarepo.ErrAssetNotFound) {
			http.Error(w, "Asset not found", http.StatusNotFound)
		} else {
			log.Printf("failed to load asset %s: %v", assetID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
		return
	}

	policy, err := h.policies.ForContentType(asset.ContentType)
	if err != nil {
		log.Printf("no policy for asset %s content type %q", assetID, asset.ContentType)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	viewerID := auth.UserIDFromContext(r.Context())
	tier := subscription.TierFree
	if viewerID != 0 {
		name, err := h.tiers.TierForUser(r.Context(), viewerID)
		if err != nil {
			log.Printf("failed to get tier for user %d: %v", viewerID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		if tier, err = subscription.ParseTier(name); err != nil {
			log.Printf("bad tier for user %d: %v", viewerID, err)
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
	}

	decision := access.ResolveForViewer(*asset, policy, tier, viewerID)
	if err := access.Check(decision, *asset, policy, tier, viewerID); err != nil {
		// Broken invariant: refuse to serve anything rather than leak.
		log.Printf("policy violation resolving asset %s for user %d", assetID, viewerID)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AccessResponse{
		AssetID: asset.ID,
		State:   string(decision.State),
		URL:     decision.URL,
	})
}
