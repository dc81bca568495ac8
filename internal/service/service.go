// Package service implements the attachment engine: blob resolution,
// duplicate-safe attach and detach, read pairing, concatenation, batch
// attach and namespace metrics.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"samplevault/internal/blobstore"
	"samplevault/internal/locker"
	"samplevault/internal/models"
	"samplevault/internal/pairing"
	"samplevault/internal/store"
	"samplevault/internal/telemetry"
)

const (
	defaultBlobGCBatchSize  = 500
	defaultBatchConcurrency = 4
	defaultBlobCacheSize    = 1024

	targetKeySample            = "sample"
	targetKeyWorkflowExecution = "workflow_execution"
)

// Store is the persistence surface the engine needs.
type Store interface {
	store.AttachmentStore
	store.NamespaceStore
}

// Options configures NewEngine. Zero values select defaults.
type Options struct {
	Logger           *slog.Logger
	Observer         telemetry.Observer
	Locker           locker.Locker
	Patterns         []pairing.Pattern
	GCBatchSize      int
	BatchConcurrency int
	BlobCacheSize    int
}

// Engine bundles the wired services.
type Engine struct {
	Attachments *AttachmentService
	Pairing     *PairingResolver
	Concat      *ConcatenationEngine
	Batch       *BatchService
	Metrics     *MetricsAggregator
}

// NewEngine wires every service around one store and blob store.
func NewEngine(st Store, blobs blobstore.BlobStore, opts Options) (*Engine, error) {
	if st == nil {
		return nil, fmt.Errorf("store is required")
	}
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	observer := opts.Observer
	if observer == nil {
		observer = telemetry.Nop{}
	}
	lk := opts.Locker
	if lk == nil {
		lk = locker.NewLocal()
	}
	patterns := opts.Patterns
	if len(patterns) == 0 {
		patterns = pairing.DefaultPatterns
	}
	matcher, err := pairing.NewMatcher(patterns)
	if err != nil {
		return nil, err
	}

	resolver := NewPairingResolver(st, matcher, observer, logger)
	attachments, err := NewAttachmentService(st, blobs, AttachmentServiceOptions{
		Locker:        lk,
		Resolver:      resolver,
		Observer:      observer,
		Logger:        logger,
		GCBatchSize:   opts.GCBatchSize,
		BlobCacheSize: opts.BlobCacheSize,
	})
	if err != nil {
		return nil, err
	}

	return &Engine{
		Attachments: attachments,
		Pairing:     resolver,
		Concat:      NewConcatenationEngine(attachments),
		Batch:       NewBatchService(attachments, opts.BatchConcurrency),
		Metrics:     NewMetricsAggregator(st, observer, logger),
	}, nil
}

// ParseTarget builds an AttachableRef from CLI-style input such as
// ("sample", "s-1").
func ParseTarget(rawType, id string) (models.AttachableRef, error) {
	typ, err := models.ParseAttachableType(rawType)
	if err != nil {
		return models.AttachableRef{}, invalidArgument(err)
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return models.AttachableRef{}, invalidArgument(fmt.Errorf("attachable id is required"))
	}
	return models.AttachableRef{Type: typ, ID: id}, nil
}

// resolveTarget checks that target exists and returns its error-path key.
func resolveTarget(ctx context.Context, st Store, target models.AttachableRef) (string, error) {
	target.ID = strings.TrimSpace(target.ID)
	if target.ID == "" {
		return "", invalidArgument(fmt.Errorf("attachable id is required"))
	}
	switch target.Type {
	case models.AttachableNamespace:
		ns, err := st.GetNamespace(ctx, target.ID)
		if err != nil {
			return "", internalError(err)
		}
		if ns == nil {
			return "", notFound(fmt.Errorf("namespace not found: %s", target.ID))
		}
		return strings.ToLower(string(ns.Type)), nil
	case models.AttachableSample, models.AttachableWorkflowExecution:
		ok, err := st.AttachableExists(ctx, target)
		if err != nil {
			return "", internalError(err)
		}
		if !ok {
			return "", notFound(fmt.Errorf("%s not found: %s", strings.ToLower(string(target.Type)), target.ID))
		}
		if target.Type == models.AttachableSample {
			return targetKeySample, nil
		}
		return targetKeyWorkflowExecution, nil
	default:
		return "", invalidArgument(fmt.Errorf("invalid attachable type: %s", target.Type))
	}
}

func lockKey(target models.AttachableRef) string {
	return "attachable:" + target.String()
}
