package blobstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// fakeS3 answers the handful of path-style object calls the driver makes.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	puts    int
}

func (f *fakeS3) RoundTrip(req *http.Request) (*http.Response, error) {
	parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2)
	key := ""
	if len(parts) == 2 {
		key = parts[1]
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	switch req.Method {
	case http.MethodHead:
		body, ok := f.objects[key]
		if !ok {
			return fakeResponse(http.StatusNotFound, nil, nil), nil
		}
		return fakeResponse(http.StatusOK, nil, http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
			"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
		}), nil
	case http.MethodGet:
		body, ok := f.objects[key]
		if !ok {
			return fakeResponse(http.StatusNotFound, []byte("<Error><Code>NoSuchKey</Code></Error>"), http.Header{"Content-Type": {"application/xml"}}), nil
		}
		return fakeResponse(http.StatusOK, body, http.Header{
			"Content-Length": {strconv.Itoa(len(body))},
		}), nil
	case http.MethodPut:
		body, _ := io.ReadAll(req.Body)
		if decoded, ok := decodeSingleChunk(body); ok {
			body = decoded
		}
		f.objects[key] = body
		f.puts++
		return fakeResponse(http.StatusOK, nil, http.Header{"ETag": {"\"etag\""}}), nil
	case http.MethodDelete:
		delete(f.objects, key)
		return fakeResponse(http.StatusNoContent, nil, nil), nil
	}
	return fakeResponse(http.StatusNotImplemented, nil, nil), nil
}

func fakeResponse(status int, body []byte, header http.Header) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: header, Body: io.NopCloser(bytes.NewReader(body))}
}

// decodeSingleChunk unwraps an aws-chunked payload holding one data chunk.
func decodeSingleChunk(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size || !strings.HasPrefix(parts[2], "0") {
		return nil, false
	}
	return []byte(parts[1]), true
}

func newFakeS3Store(t *testing.T) (*S3, *fakeS3) {
	t.Helper()
	fake := &fakeS3{objects: map[string][]byte{}}
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion("us-east-1"),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	if err != nil {
		t.Fatalf("load aws config: %v", err)
	}
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: fake}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://fake.s3.local")
		o.RequestChecksumCalculation = aws.RequestChecksumCalculationWhenRequired
		o.RetryMaxAttempts = 1
	})
	store := newS3WithClient(client, "samples", "vault")
	store.tmpDir = t.TempDir()
	return store, fake
}

func TestS3PutStatOpenDelete(t *testing.T) {
	store, fake := newFakeS3Store(t)
	ctx := context.Background()

	res, err := store.Put(ctx, strings.NewReader("ACGTACGT"))
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if res.SizeBytes != 8 {
		t.Fatalf("expected 8 bytes, got %d", res.SizeBytes)
	}
	if _, ok := fake.objects["vault/"+res.BlobKey]; !ok {
		t.Fatalf("expected prefixed object key, have %v", keysOf(fake.objects))
	}

	if _, err := store.Put(ctx, strings.NewReader("ACGTACGT")); err != nil {
		t.Fatalf("put again: %v", err)
	}
	if fake.puts != 1 {
		t.Fatalf("expected existing content to skip upload, got %d puts", fake.puts)
	}

	size, err := store.Stat(ctx, res.BlobKey)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if size != 8 {
		t.Fatalf("expected stat size 8, got %d", size)
	}

	rc, err := store.Open(ctx, res.BlobKey)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	data, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(data) != "ACGTACGT" {
		t.Fatalf("unexpected content %q", data)
	}

	if err := store.Delete(ctx, res.BlobKey); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.Stat(ctx, res.BlobKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := store.Open(ctx, res.BlobKey); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound on open, got %v", err)
	}
}

func keysOf(m map[string][]byte) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return fmt.Sprint(keys)
}
