package media

import (
	"context"
)

// Storage namespaces. Each maps to its own bucket so that bucket-level access
// rules can differ between the original and the derived variant.
const (
	NamespacePremium     = "premium"
	NamespaceWatermarked = "watermarked"
)

// StorageProvider is the durable object store the media pipeline writes to.
type StorageProvider interface {
	// Put stores data at path inside the given namespace.
	Put(ctx context.Context, namespace, path string, data []byte, contentType string) error

	// Get reads the object back. Used by the watermark retry path.
	Get(ctx context.Context, namespace, path string) ([]byte, error)

	// PublicURL returns the URL under which the object is served.
	PublicURL(namespace, path string) (string, error)
}
