package mediastore

import (
	"context"
	"errors"
	"io"
)

// MaxDeleteBatch is the largest number of public ids a single Delete call may
// carry; the hosted media API rejects bigger batches.
const MaxDeleteBatch = 100

var ErrNotFound = errors.New("media not found")

// Asset describes a stored media object.
type Asset struct {
	PublicID string
	URL      string
	Width    int
	Height   int
}

type MediaStore interface {
	Upload(ctx context.Context, folder string, r io.Reader) (*Asset, error)
	Delete(ctx context.Context, publicIDs []string) error
}

// Getter is implemented by stores that can stream an object back, so the
// HTTP server can serve it directly.
type Getter interface {
	Get(ctx context.Context, publicID string) (io.ReadCloser, string, error)
}
