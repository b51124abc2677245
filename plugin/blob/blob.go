// Package blob stores raw capture assets. The ingestion endpoint writes the
// asset here before the item row is created; the processing pipeline reads it
// back for text extraction.
package blob

import "context"

// Store is the blob store contract.
type Store interface {
	// Put writes data under the given key, overwriting any existing blob.
	Put(ctx context.Context, key string, data []byte) error

	// Get reads the blob stored under key.
	Get(ctx context.Context, key string) ([]byte, error)

	// Delete removes the blob. Deleting a missing key is a no-op.
	Delete(ctx context.Context, key string) error
}
