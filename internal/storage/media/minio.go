package media

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/pkg/errors"
)

// MinioConfig holds connection settings for the MinIO-backed provider.
type MinioConfig struct {
	Endpoint          string
	AccessKey         string
	SecretKey         string
	UseSSL            bool
	PremiumBucket     string
	WatermarkedBucket string
	// PublicBaseURL is the externally visible endpoint objects are served from,
	// e.g. a CDN origin. Falls back to the MinIO endpoint when empty.
	PublicBaseURL string
}

// MinioProvider implements StorageProvider on top of MinIO.
type MinioProvider struct {
	client  *minio.Client
	buckets map[string]string
	baseURL string
}

func NewMinioProvider(cfg MinioConfig) (*MinioProvider, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create minio client")
	}

	baseURL := cfg.PublicBaseURL
	if baseURL == "" {
		scheme := "http"
		if cfg.UseSSL {
			scheme = "https"
		}
		baseURL = fmt.Sprintf("%s://%s", scheme, cfg.Endpoint)
	}

	return &MinioProvider{
		client: client,
		buckets: map[string]string{
			NamespacePremium:     cfg.PremiumBucket,
			NamespaceWatermarked: cfg.WatermarkedBucket,
		},
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

// EnsureBuckets creates the namespace buckets if they do not exist yet.
func (p *MinioProvider) EnsureBuckets(ctx context.Context) error {
	for namespace, bucket := range p.buckets {
		exists, err := p.client.BucketExists(ctx, bucket)
		if err != nil {
			return errors.Wrapf(err, "failed to check bucket for namespace %s", namespace)
		}
		if exists {
			continue
		}
		if err := p.client.MakeBucket(ctx, bucket, minio.MakeBucketOptions{}); err != nil {
			return errors.Wrapf(err, "failed to create bucket for namespace %s", namespace)
		}
	}
	return nil
}

func (p *MinioProvider) bucketFor(namespace string) (string, error) {
	bucket, ok := p.buckets[namespace]
	if !ok {
		return "", errors.Errorf("unknown storage namespace: %s", namespace)
	}
	return bucket, nil
}

func (p *MinioProvider) Put(ctx context.Context, namespace, path string, data []byte, contentType string) error {
	bucket, err := p.bucketFor(namespace)
	if err != nil {
		return err
	}

	_, err = p.client.PutObject(ctx, bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	return errors.Wrapf(err, "failed to write object %s/%s", namespace, path)
}

func (p *MinioProvider) Get(ctx context.Context, namespace, path string) ([]byte, error) {
	bucket, err := p.bucketFor(namespace)
	if err != nil {
		return nil, err
	}

	obj, err := p.client.GetObject(ctx, bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open object %s/%s", namespace, path)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read object %s/%s", namespace, path)
	}
	return data, nil
}

func (p *MinioProvider) PublicURL(namespace, path string) (string, error) {
	bucket, err := p.bucketFor(namespace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s/%s/%s", p.baseURL, bucket, strings.TrimLeft(path, "/")), nil
}
