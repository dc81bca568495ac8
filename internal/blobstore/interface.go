package blobstore

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound reports a blob key with no stored object.
var ErrNotFound = errors.New("blob object not found")

// BlobPutResult describes one persisted blob payload.
type BlobPutResult struct {
	SHA256    string
	SizeBytes int64
	BlobKey   string
}

// BlobStore is the byte-storage abstraction used to resolve blob references
// and to write concatenation outputs.
type BlobStore interface {
	Put(ctx context.Context, r io.Reader) (BlobPutResult, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Stat(ctx context.Context, key string) (int64, error)
	Delete(ctx context.Context, key string) error
	Backend() string
}

func casKeyFromDigest(digest string) string {
	return casAlgorithmPrefix + "/" + digest[0:2] + "/" + digest[2:4] + "/" + digest
}
