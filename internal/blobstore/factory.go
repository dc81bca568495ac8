package blobstore

import (
	"context"
	"fmt"
	"strings"
)

// Options selects and configures a driver.
type Options struct {
	Driver string
	Root   string
	S3     S3Config
}

// Open constructs the configured driver. An empty driver means local.
func Open(ctx context.Context, opts Options) (BlobStore, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", BackendLocal:
		return NewLocalCAS(opts.Root)
	case BackendMemory:
		return NewMemory(), nil
	case BackendS3:
		return NewS3(ctx, opts.S3)
	default:
		return nil, fmt.Errorf("unsupported blob driver %q", opts.Driver)
	}
}
