package media

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
)

var assetColumns = []string{
	"id", "owner_id", "content_type", "object_key", "premium_url",
	"watermarked_url", "watermark_pending", "created_at",
}

func TestCreateAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRepository(db)

	t.Run("pending asset stores null watermarked url", func(t *testing.T) {
		asset := &Asset{
			ID:               "a1",
			OwnerID:          42,
			ContentType:      "photo",
			ObjectKey:        "media/42/a1.jpg",
			PremiumURL:       "https://cdn.example.com/premium/a1.jpg",
			WatermarkPending: true,
			CreatedAt:        time.Now().UTC(),
		}

		mock.ExpectExec("INSERT INTO media_assets").
			WithArgs(asset.ID, asset.OwnerID, asset.ContentType, asset.ObjectKey, asset.PremiumURL,
				sql.NullString{}, true, asset.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateAsset(context.Background(), asset)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("resolved asset stores both urls", func(t *testing.T) {
		asset := &Asset{
			ID:             "a2",
			OwnerID:        42,
			ContentType:    "photo",
			ObjectKey:      "media/42/a2.jpg",
			PremiumURL:     "https://cdn.example.com/premium/a2.jpg",
			WatermarkedURL: "https://cdn.example.com/watermarked/a2.jpg",
			CreatedAt:      time.Now().UTC(),
		}

		mock.ExpectExec("INSERT INTO media_assets").
			WithArgs(asset.ID, asset.OwnerID, asset.ContentType, asset.ObjectKey, asset.PremiumURL,
				sql.NullString{String: asset.WatermarkedURL, Valid: true}, false, asset.CreatedAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateAsset(context.Background(), asset)

		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("database error", func(t *testing.T) {
		asset := &Asset{ID: "a3", CreatedAt: time.Now().UTC()}

		mock.ExpectExec("INSERT INTO media_assets").
			WillReturnError(errors.New("connection refused"))

		err := repo.CreateAsset(context.Background(), asset)

		assert.Error(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestAttachWatermarked(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRepository(db)

	t.Run("attaches to a pending asset", func(t *testing.T) {
		mock.ExpectExec("UPDATE media_assets SET watermarked_url = (.+) WHERE id = (.+) AND watermarked_url IS NULL").
			WithArgs("a1", "https://cdn.example.com/watermarked/a1.jpg").
			WillReturnResult(sqlmock.NewResult(0, 1))

		attached, err := repo.AttachWatermarked(context.Background(), "a1", "https://cdn.example.com/watermarked/a1.jpg")

		assert.NoError(t, err)
		assert.True(t, attached)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already resolved asset is untouched", func(t *testing.T) {
		mock.ExpectExec("UPDATE media_assets SET watermarked_url = (.+) WHERE id = (.+) AND watermarked_url IS NULL").
			WithArgs("a1", "https://cdn.example.com/watermarked/other.jpg").
			WillReturnResult(sqlmock.NewResult(0, 0))

		attached, err := repo.AttachWatermarked(context.Background(), "a1", "https://cdn.example.com/watermarked/other.jpg")

		assert.NoError(t, err)
		assert.False(t, attached, "resolved assets must never flip back or be overwritten")
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetAsset(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRepository(db)

	t.Run("resolved asset", func(t *testing.T) {
		createdAt := time.Now().UTC()
		rows := sqlmock.NewRows(assetColumns).
			AddRow("a1", 42, "photo", "media/42/a1.jpg", "https://cdn.example.com/premium/a1.jpg",
				"https://cdn.example.com/watermarked/a1.jpg", false, createdAt)

		mock.ExpectQuery("SELECT (.+) FROM media_assets WHERE id = (.+)").
			WithArgs("a1").
			WillReturnRows(rows)

		asset, err := repo.GetAsset(context.Background(), "a1")

		assert.NoError(t, err)
		assert.Equal(t, "a1", asset.ID)
		assert.Equal(t, 42, asset.OwnerID)
		assert.Equal(t, "https://cdn.example.com/watermarked/a1.jpg", asset.WatermarkedURL)
		assert.False(t, asset.WatermarkPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("pending asset has empty watermarked url", func(t *testing.T) {
		rows := sqlmock.NewRows(assetColumns).
			AddRow("a2", 42, "photo", "media/42/a2.jpg", "https://cdn.example.com/premium/a2.jpg",
				nil, true, time.Now().UTC())

		mock.ExpectQuery("SELECT (.+) FROM media_assets WHERE id = (.+)").
			WithArgs("a2").
			WillReturnRows(rows)

		asset, err := repo.GetAsset(context.Background(), "a2")

		assert.NoError(t, err)
		assert.Empty(t, asset.WatermarkedURL)
		assert.True(t, asset.WatermarkPending)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("asset not found", func(t *testing.T) {
		mock.ExpectQuery("SELECT (.+) FROM media_assets WHERE id = (.+)").
			WithArgs("missing").
			WillReturnError(sql.ErrNoRows)

		asset, err := repo.GetAsset(context.Background(), "missing")

		assert.ErrorIs(t, err, ErrAssetNotFound)
		assert.Nil(t, asset)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetPendingAssets(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer db.Close()

	repo := NewRepository(db)

	rows := sqlmock.NewRows(assetColumns).
		AddRow("a1", 42, "photo", "media/42/a1.jpg", "https://cdn.example.com/premium/a1.jpg", nil, true, time.Now().UTC()).
		AddRow("a2", 43, "photo", "media/43/a2.jpg", "https://cdn.example.com/premium/a2.jpg", nil, true, time.Now().UTC())

	mock.ExpectQuery("SELECT (.+) FROM media_assets WHERE watermark_pending ORDER BY created_at LIMIT (.+)").
		WithArgs(10).
		WillReturnRows(rows)

	assets, err := repo.GetPendingAssets(context.Background(), 10)

	assert.NoError(t, err)
	assert.Len(t, assets, 2)
	assert.True(t, assets[0].WatermarkPending)
	assert.True(t, assets[1].WatermarkPending)
	assert.NoError(t, mock.ExpectationsWereMet())
}
