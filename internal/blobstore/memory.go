package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
)

const BackendMemory = "memory"

// Memory keeps blob bytes in process memory. Used by tests and ephemeral runs.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{objects: map[string][]byte{}}
}

func (m *Memory) Backend() string { return BackendMemory }

func (m *Memory) Put(ctx context.Context, r io.Reader) (BlobPutResult, error) {
	if r == nil {
		return BlobPutResult{}, fmt.Errorf("reader is required")
	}
	var buf bytes.Buffer
	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(&buf, h), contextReader{ctx: ctx, r: r})
	if err != nil {
		return BlobPutResult{}, err
	}
	digest := hex.EncodeToString(h.Sum(nil))
	key := casKeyFromDigest(digest)

	m.mu.Lock()
	if _, ok := m.objects[key]; !ok {
		m.objects[key] = buf.Bytes()
	}
	m.mu.Unlock()

	return BlobPutResult{SHA256: digest, SizeBytes: n, BlobKey: key}, nil
}

func (m *Memory) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *Memory) Stat(ctx context.Context, key string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.RLock()
	data, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return int64(len(data)), nil
}

func (m *Memory) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.objects, key)
	m.mu.Unlock()
	return nil
}

// Len returns the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
