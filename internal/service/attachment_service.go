package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"samplevault/internal/blobstore"
	"samplevault/internal/locker"
	"samplevault/internal/models"
	"samplevault/internal/pairing"
	"samplevault/internal/store"
	"samplevault/internal/telemetry"
)

// AttachmentService attaches registered blobs to attachables and keeps the
// (filename, checksum) invariant per attachable.
type AttachmentService struct {
	store    Store
	blobs    blobstore.BlobStore
	locker   locker.Locker
	resolver *PairingResolver
	observer telemetry.Observer
	logger   *slog.Logger

	blobCache   *lru.Cache[string, models.Blob]
	gcBatchSize int
}

// AttachmentServiceOptions configures NewAttachmentService.
type AttachmentServiceOptions struct {
	Locker        locker.Locker
	Resolver      *PairingResolver
	Observer      telemetry.Observer
	Logger        *slog.Logger
	GCBatchSize   int
	BlobCacheSize int
}

// AttachInput is the full form of an attach call.
type AttachInput struct {
	Target models.AttachableRef
	BlobID string
	Origin models.AttachmentOrigin
	// Type pins the read type instead of leaving it to the pairing resolver.
	Type models.ReadType
	// Extra is merged into the metadata side-map. Reserved keys are rejected.
	Extra       map[string]any
	SkipPairing bool
}

// DetachOptions controls mutations of existing attachments.
type DetachOptions struct {
	// Privileged allows mutating attachments produced by analysis runs.
	Privileged bool
}

// AttachmentContent describes an attachment byte stream.
type AttachmentContent struct {
	Reader      io.ReadCloser
	SizeBytes   int64
	ContentType string
	Filename    string
}

// BlobGCResult reports one GC run result.
type BlobGCResult struct {
	CandidateCount int   `json:"candidate_count"`
	DeletedCount   int   `json:"deleted_count"`
	FailedCount    int   `json:"failed_count"`
	ReclaimedBytes int64 `json:"reclaimed_bytes"`
	DryRun         bool  `json:"dry_run"`
}

// NewAttachmentService constructs an AttachmentService.
func NewAttachmentService(st Store, blobs blobstore.BlobStore, opts AttachmentServiceOptions) (*AttachmentService, error) {
	if st == nil || blobs == nil {
		return nil, fmt.Errorf("attachment service requires a store and a blob store")
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
	resolver := opts.Resolver
	if resolver == nil {
		matcher, err := pairing.NewMatcher(pairing.DefaultPatterns)
		if err != nil {
			return nil, err
		}
		resolver = NewPairingResolver(st, matcher, observer, logger)
	}
	cacheSize := opts.BlobCacheSize
	if cacheSize <= 0 {
		cacheSize = defaultBlobCacheSize
	}
	cache, err := lru.New[string, models.Blob](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create blob cache: %w", err)
	}
	gcBatchSize := opts.GCBatchSize
	if gcBatchSize <= 0 {
		gcBatchSize = defaultBlobGCBatchSize
	}

	return &AttachmentService{
		store:       st,
		blobs:       blobs,
		locker:      lk,
		resolver:    resolver,
		observer:    observer,
		logger:      logger,
		blobCache:   cache,
		gcBatchSize: gcBatchSize,
	}, nil
}

// RegisterUpload stores content and records a blob row. The returned blob
// id is what callers later pass to Attach.
func (s *AttachmentService) RegisterUpload(ctx context.Context, filename, contentType string, r io.Reader) (models.Blob, error) {
	start := time.Now()
	blob, err := s.registerUpload(ctx, filename, contentType, r)
	s.observer.RecordOperation(telemetry.OpUpload, time.Since(start), err)
	return blob, err
}

func (s *AttachmentService) registerUpload(ctx context.Context, filename, contentType string, r io.Reader) (models.Blob, error) {
	var zero models.Blob
	name := filepath.Base(strings.TrimSpace(filename))
	if name == "" || name == "." || name == string(filepath.Separator) {
		return zero, invalidArgument(fmt.Errorf("filename is required"), "filename")
	}
	if r == nil {
		return zero, invalidArgument(fmt.Errorf("content is required"))
	}
	contentType = strings.TrimSpace(contentType)
	if contentType == "" {
		contentType = mime.TypeByExtension(filepath.Ext(name))
	}

	put, err := s.blobs.Put(ctx, r)
	if err != nil {
		return zero, internalError(fmt.Errorf("store blob content: %w", err))
	}
	blob := models.Blob{
		BlobKey:        put.BlobKey,
		Filename:       name,
		ContentType:    contentType,
		ByteSize:       put.SizeBytes,
		Checksum:       put.SHA256,
		StorageBackend: s.blobs.Backend(),
	}
	if err := s.store.CreateBlob(ctx, &blob); err != nil {
		return zero, internalError(fmt.Errorf("record blob: %w", err))
	}
	// GC may have removed a shared object between Put and CreateBlob.
	if _, err := s.blobs.Stat(ctx, blob.BlobKey); err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return zero, internalError(fmt.Errorf("content of blob %s was collected during upload, upload again", blob.ID))
		}
		return zero, internalError(fmt.Errorf("stat blob %s: %w", blob.ID, err))
	}
	s.blobCache.Add(blob.ID, blob)
	s.observer.RecordUpload(blob.ByteSize)
	s.logger.Debug("blob registered", "blob_id", blob.ID, "filename", blob.Filename, "bytes", blob.ByteSize)
	return blob, nil
}

// Attach attaches one registered blob to target and runs pairing.
func (s *AttachmentService) Attach(ctx context.Context, target models.AttachableRef, blobID string) (models.Attachment, error) {
	return s.AttachBlob(ctx, AttachInput{Target: target, BlobID: blobID})
}

// AttachBlob attaches one registered blob under the per-attachable lock.
// Errors carry the item path: ["blob_id", id] for unresolvable blobs and
// ["attachment", id] for duplicates.
func (s *AttachmentService) AttachBlob(ctx context.Context, in AttachInput) (models.Attachment, error) {
	start := time.Now()
	attachment, err := s.attach(ctx, in)
	s.observer.RecordOperation(telemetry.OpAttach, time.Since(start), err)
	return attachment, err
}

func (s *AttachmentService) attach(ctx context.Context, in AttachInput) (models.Attachment, error) {
	var zero models.Attachment
	origin, err := models.ParseAttachmentOrigin(string(in.Origin))
	if err != nil {
		return zero, invalidArgument(err, "origin")
	}
	in.Origin = origin
	in.Target.ID = strings.TrimSpace(in.Target.ID)
	switch in.Type {
	case "", models.ReadTypeSingleEnd, models.ReadTypePairedEnd:
	default:
		return zero, invalidArgument(fmt.Errorf("invalid read type: %s", in.Type), "metadata", "type")
	}
	for key := range in.Extra {
		if models.IsReservedMetadataKey(key) {
			return zero, invalidArgument(fmt.Errorf("metadata key %q is managed by the engine", key), "metadata", key)
		}
	}
	if _, err := resolveTarget(ctx, s.store, in.Target); err != nil {
		return zero, err
	}
	blob, err := s.resolveBlob(ctx, in.BlobID)
	if err != nil {
		return zero, err
	}

	release, err := s.lock(ctx, in.Target)
	if err != nil {
		return zero, err
	}
	defer release()
	return s.attachLocked(ctx, in, blob)
}

// attachResolved attaches a blob that resolveBlob already accepted.
func (s *AttachmentService) attachResolved(ctx context.Context, in AttachInput, blob models.Blob) (models.Attachment, error) {
	start := time.Now()
	attachment, err := func() (models.Attachment, error) {
		release, err := s.lock(ctx, in.Target)
		if err != nil {
			return models.Attachment{}, err
		}
		defer release()
		return s.attachLocked(ctx, in, blob)
	}()
	s.observer.RecordOperation(telemetry.OpAttach, time.Since(start), err)
	return attachment, err
}

// attachLocked must run while the target's lock is held.
func (s *AttachmentService) attachLocked(ctx context.Context, in AttachInput, blob models.Blob) (models.Attachment, error) {
	var zero models.Attachment
	existing, err := s.store.FindAttachment(ctx, in.Target, blob.Filename, blob.Checksum)
	if err != nil {
		return zero, internalError(err)
	}
	if existing != nil {
		return zero, checksumDuplicate("attachment", in.BlobID)
	}

	meta := models.InferMetadata(blob.Filename)
	meta.Type = in.Type
	if len(in.Extra) > 0 {
		meta.Extra = make(map[string]any, len(in.Extra))
		for k, v := range in.Extra {
			meta.Extra[k] = v
		}
	}
	attachment := models.Attachment{
		AttachableType: in.Target.Type,
		AttachableID:   in.Target.ID,
		BlobID:         blob.ID,
		Filename:       blob.Filename,
		ByteSize:       blob.ByteSize,
		Checksum:       blob.Checksum,
		Origin:         in.Origin,
		Metadata:       meta,
	}
	if err := s.store.CreateAttachment(ctx, &attachment); err != nil {
		if errors.Is(err, store.ErrDuplicateAttachment) {
			return zero, checksumDuplicate("attachment", in.BlobID)
		}
		return zero, internalError(fmt.Errorf("create attachment: %w", err))
	}
	s.logger.Debug("attachment created", "id", attachment.ID, "target", in.Target.String(), "blob_id", blob.ID, "filename", blob.Filename)

	if in.SkipPairing {
		return attachment, nil
	}
	if _, err := s.resolver.Resolve(ctx, in.Target); err != nil {
		s.logger.Warn("pairing resolution failed", "target", in.Target.String(), "error", err)
		return attachment, nil
	}
	current, err := s.store.GetAttachment(ctx, attachment.ID)
	if err != nil || current == nil {
		return attachment, nil
	}
	return *current, nil
}

// Detach removes one attachment and unpairs its partner in the same
// transaction.
func (s *AttachmentService) Detach(ctx context.Context, attachmentID string, opts DetachOptions) error {
	start := time.Now()
	err := s.detach(ctx, attachmentID, opts)
	s.observer.RecordOperation(telemetry.OpDetach, time.Since(start), err)
	return err
}

func (s *AttachmentService) detach(ctx context.Context, attachmentID string, opts DetachOptions) error {
	attachment, err := s.Get(ctx, attachmentID)
	if err != nil {
		return err
	}
	if attachment.Protected() && !opts.Privileged {
		return protectedOrigin(attachment.ID)
	}
	release, err := s.lock(ctx, attachment.Attachable())
	if err != nil {
		return err
	}
	defer release()
	return s.detachLocked(ctx, attachment, opts)
}

func (s *AttachmentService) detachLocked(ctx context.Context, attachment models.Attachment, opts DetachOptions) error {
	if attachment.Protected() && !opts.Privileged {
		return protectedOrigin(attachment.ID)
	}
	res, err := s.store.DeleteAttachment(ctx, attachment.ID)
	if err != nil {
		if errors.Is(err, store.ErrAttachmentNotFound) {
			return notFound(fmt.Errorf("attachment not found: %s", attachment.ID))
		}
		return internalError(fmt.Errorf("delete attachment: %w", err))
	}
	if res.Unpaired != nil {
		s.logger.Debug("partner unpaired", "id", res.Unpaired.ID, "detached", attachment.ID)
	}
	s.logger.Debug("attachment detached", "id", attachment.ID, "target", attachment.Attachable().String())
	return nil
}

// UpdateMetadata merges extra into the attachment's metadata side-map. A nil
// value removes the key.
func (s *AttachmentService) UpdateMetadata(ctx context.Context, attachmentID string, extra map[string]any, opts DetachOptions) (models.Attachment, error) {
	var zero models.Attachment
	for key := range extra {
		if models.IsReservedMetadataKey(key) {
			return zero, invalidArgument(fmt.Errorf("metadata key %q is managed by the engine", key), "metadata", key)
		}
	}
	attachment, err := s.Get(ctx, attachmentID)
	if err != nil {
		return zero, err
	}
	if attachment.Protected() && !opts.Privileged {
		return zero, protectedOrigin(attachment.ID)
	}

	release, err := s.lock(ctx, attachment.Attachable())
	if err != nil {
		return zero, err
	}
	defer release()

	current, err := s.Get(ctx, attachment.ID)
	if err != nil {
		return zero, err
	}
	meta := current.Metadata.Clone()
	if meta.Extra == nil {
		meta.Extra = map[string]any{}
	}
	for k, v := range extra {
		if v == nil {
			delete(meta.Extra, k)
			continue
		}
		meta.Extra[k] = v
	}
	if err := s.store.UpdateAttachmentMetadata(ctx, []store.MetadataUpdate{{ID: current.ID, Metadata: meta}}); err != nil {
		if errors.Is(err, store.ErrAttachmentNotFound) {
			return zero, notFound(fmt.Errorf("attachment not found: %s", current.ID))
		}
		return zero, internalError(err)
	}
	return s.Get(ctx, current.ID)
}

// ResolvePairs runs the pairing resolver for target under its lock.
func (s *AttachmentService) ResolvePairs(ctx context.Context, target models.AttachableRef) (PairingResult, error) {
	target.ID = strings.TrimSpace(target.ID)
	if _, err := resolveTarget(ctx, s.store, target); err != nil {
		return PairingResult{}, err
	}
	release, err := s.lock(ctx, target)
	if err != nil {
		return PairingResult{}, err
	}
	defer release()
	return s.resolver.Resolve(ctx, target)
}

// Get returns one attachment.
func (s *AttachmentService) Get(ctx context.Context, attachmentID string) (models.Attachment, error) {
	id := strings.TrimSpace(attachmentID)
	if id == "" {
		return models.Attachment{}, invalidArgument(fmt.Errorf("attachment id is required"), "attachment")
	}
	attachment, err := s.store.GetAttachment(ctx, id)
	if err != nil {
		return models.Attachment{}, internalError(err)
	}
	if attachment == nil {
		return models.Attachment{}, notFound(fmt.Errorf("attachment not found: %s", id))
	}
	return *attachment, nil
}

// List returns target's attachments in creation order.
func (s *AttachmentService) List(ctx context.Context, target models.AttachableRef) ([]models.Attachment, error) {
	target.ID = strings.TrimSpace(target.ID)
	if _, err := resolveTarget(ctx, s.store, target); err != nil {
		return nil, err
	}
	attachments, err := s.store.ListAttachments(ctx, target)
	if err != nil {
		return nil, internalError(err)
	}
	return attachments, nil
}

// Open returns the attachment's content stream. Callers close Reader.
func (s *AttachmentService) Open(ctx context.Context, attachmentID string) (*AttachmentContent, error) {
	attachment, err := s.Get(ctx, attachmentID)
	if err != nil {
		return nil, err
	}
	blob, err := s.lookupBlob(ctx, attachment.BlobID)
	if err != nil {
		return nil, internalError(err)
	}
	if blob == nil {
		return nil, notFound(fmt.Errorf("blob not found for attachment %s", attachment.ID))
	}
	reader, err := s.blobs.Open(ctx, blob.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, notFound(fmt.Errorf("content missing for attachment %s", attachment.ID))
		}
		return nil, internalError(fmt.Errorf("open blob content: %w", err))
	}
	return &AttachmentContent{
		Reader:      reader,
		SizeBytes:   attachment.ByteSize,
		ContentType: blob.ContentType,
		Filename:    attachment.Filename,
	}, nil
}

// BlobGCOptions controls one GCBlobs run.
type BlobGCOptions struct {
	// BatchSize <= 0 selects the service default.
	BatchSize int
	// MinAge spares blobs registered less than MinAge ago, so uploads that
	// are about to be attached are not collected.
	MinAge time.Duration
	Apply  bool
}

// GCBlobs removes blob rows no attachment references. The stored object is
// deleted only when no other blob row shares its key.
func (s *AttachmentService) GCBlobs(ctx context.Context, opts BlobGCOptions) (BlobGCResult, error) {
	start := time.Now()
	result, err := s.gcBlobs(ctx, opts)
	s.observer.RecordOperation(telemetry.OpGC, time.Since(start), err)
	if opts.Apply {
		s.observer.RecordBlobsCollected(result.DeletedCount, result.ReclaimedBytes)
	}
	return result, err
}

func (s *AttachmentService) gcBlobs(ctx context.Context, opts BlobGCOptions) (BlobGCResult, error) {
	result := BlobGCResult{DryRun: !opts.Apply}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = s.gcBatchSize
	}
	var cutoff time.Time
	if opts.MinAge > 0 {
		cutoff = time.Now().Add(-opts.MinAge)
	}

	if !opts.Apply {
		blobs, err := s.store.ListUnreferencedBlobs(ctx, cutoff, 0)
		if err != nil {
			return result, internalError(err)
		}
		result.CandidateCount = len(blobs)
		for _, blob := range blobs {
			result.ReclaimedBytes += blob.ByteSize
		}
		return result, nil
	}

	for {
		blobs, err := s.store.ListUnreferencedBlobs(ctx, cutoff, batchSize)
		if err != nil {
			return result, internalError(err)
		}
		if len(blobs) == 0 {
			return result, nil
		}
		result.CandidateCount += len(blobs)

		progressed := 0
		for _, blob := range blobs {
			deleted, err := s.collectBlob(ctx, blob)
			if err != nil {
				result.FailedCount++
				s.logger.Warn("blob gc failed", "blob_id", blob.ID, "blob_key", blob.BlobKey, "error", err)
				continue
			}
			progressed++
			if !deleted {
				s.logger.Debug("blob referenced before gc", "blob_id", blob.ID)
				continue
			}
			result.DeletedCount++
			result.ReclaimedBytes += blob.ByteSize
		}
		// Failed rows stay unreferenced and would be listed again forever.
		if progressed == 0 {
			return result, nil
		}
	}
}

// collectBlob deletes the row if it is still unreferenced and then the object
// if no row shares its key any more.
func (s *AttachmentService) collectBlob(ctx context.Context, blob models.Blob) (bool, error) {
	deleted, sharing, err := s.store.DeleteUnreferencedBlob(ctx, blob.ID)
	if err != nil {
		return false, err
	}
	if !deleted {
		return false, nil
	}
	s.blobCache.Remove(blob.ID)
	if sharing > 0 {
		return true, nil
	}
	if err := s.blobs.Delete(ctx, blob.BlobKey); err != nil && !errors.Is(err, blobstore.ErrNotFound) {
		s.logger.Warn("blob object left behind", "blob_key", blob.BlobKey, "error", err)
	}
	return true, nil
}

// resolveBlob turns a blob id into a usable blob: the row must exist, its
// object must exist with the recorded size, and the size must be positive.
func (s *AttachmentService) resolveBlob(ctx context.Context, blobID string) (models.Blob, error) {
	id := strings.TrimSpace(blobID)
	if id == "" {
		return models.Blob{}, blobUnprocessable(nil, "blob_id", blobID)
	}
	blob, err := s.lookupBlob(ctx, id)
	if err != nil {
		return models.Blob{}, internalError(err)
	}
	if blob == nil {
		return models.Blob{}, blobUnprocessable(fmt.Errorf("unknown blob %s", id), "blob_id", blobID)
	}
	if blob.ByteSize <= 0 {
		return models.Blob{}, blobUnprocessable(fmt.Errorf("blob %s is empty", id), "blob_id", blobID)
	}
	size, err := s.blobs.Stat(ctx, blob.BlobKey)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return models.Blob{}, blobUnprocessable(err, "blob_id", blobID)
		}
		return models.Blob{}, internalError(fmt.Errorf("stat blob %s: %w", id, err))
	}
	if size != blob.ByteSize {
		return models.Blob{}, blobUnprocessable(fmt.Errorf("blob %s size %d does not match stored %d", id, blob.ByteSize, size), "blob_id", blobID)
	}
	return *blob, nil
}

func (s *AttachmentService) lookupBlob(ctx context.Context, id string) (*models.Blob, error) {
	if blob, ok := s.blobCache.Get(id); ok {
		return &blob, nil
	}
	blob, err := s.store.GetBlob(ctx, id)
	if err != nil || blob == nil {
		return blob, err
	}
	s.blobCache.Add(id, *blob)
	return blob, nil
}

func (s *AttachmentService) lock(ctx context.Context, target models.AttachableRef) (func(), error) {
	release, err := s.locker.Lock(ctx, lockKey(target))
	if err != nil {
		return nil, internalError(fmt.Errorf("lock %s: %w", target, err))
	}
	return release, nil
}
