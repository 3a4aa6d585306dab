// Package blob stores synthesized audio and uploaded voice samples. Keys
// are opaque object names; the relational rows hold the authoritative
// references.
package blob

import (
	"context"
	"io"
)

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, int64, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// URL returns a public download URL for a stored object.
	URL(key string) string
}
