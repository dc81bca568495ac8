package service

import (
	"context"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"samplevault/internal/models"
	"samplevault/internal/telemetry"
)

// Batch item statuses.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// ItemStatus is the outcome of one batch item.
type ItemStatus struct {
	Key    string `json:"key"`
	Status string `json:"status"`
}

// BatchResult reports per-item outcomes in input order. Errors holds item
// errors; TargetErrors holds the companion entries raised against the target
// itself.
type BatchResult struct {
	Status       []ItemStatus        `json:"status"`
	Attachments  []models.Attachment `json:"attachments"`
	Errors       []UserError         `json:"errors"`
	TargetErrors []UserError         `json:"target_errors"`
}

// StatusOf returns the status of the first item with key.
func (r BatchResult) StatusOf(key string) (string, bool) {
	for _, item := range r.Status {
		if item.Key == key {
			return item.Status, true
		}
	}
	return "", false
}

// SuccessCount returns the number of successful items.
func (r BatchResult) SuccessCount() int {
	n := 0
	for _, item := range r.Status {
		if item.Status == StatusSuccess {
			n++
		}
	}
	return n
}

// AllErrors returns item errors followed by target errors.
func (r BatchResult) AllErrors() []UserError {
	out := make([]UserError, 0, len(r.Errors)+len(r.TargetErrors))
	out = append(out, r.Errors...)
	return append(out, r.TargetErrors...)
}

// BatchService attaches or detaches many items with partial success: one
// item's failure never rolls back or skips another.
type BatchService struct {
	attachments *AttachmentService
	concurrency int
}

// NewBatchService constructs a BatchService. concurrency <= 0 selects the
// default.
func NewBatchService(attachments *AttachmentService, concurrency int) *BatchService {
	if concurrency <= 0 {
		concurrency = defaultBatchConcurrency
	}
	return &BatchService{attachments: attachments, concurrency: concurrency}
}

type itemOutcome struct {
	blob       models.Blob
	attachment *models.Attachment
	err        error
}

// AttachMany attaches each blob id to target. Only target validation fails
// the whole call; item failures land in the result. Blobs are resolved
// concurrently but inserted in input order, so of two items with the same
// filename and checksum the earlier one is attached.
func (b *BatchService) AttachMany(ctx context.Context, target models.AttachableRef, blobIDs []string) (BatchResult, error) {
	target.ID = strings.TrimSpace(target.ID)
	targetKey, err := resolveTarget(ctx, b.attachments.store, target)
	if err != nil {
		return BatchResult{}, err
	}

	outcomes := b.run(ctx, len(blobIDs), func(ctx context.Context, i int) itemOutcome {
		start := time.Now()
		blob, err := b.attachments.resolveBlob(ctx, blobIDs[i])
		if err != nil {
			b.attachments.observer.RecordOperation(telemetry.OpAttach, time.Since(start), err)
		}
		return itemOutcome{blob: blob, err: err}
	})
	for i := range outcomes {
		if outcomes[i].err != nil {
			continue
		}
		in := AttachInput{Target: target, BlobID: blobIDs[i], Origin: models.OriginUpload}
		attachment, err := b.attachments.attachResolved(ctx, in, outcomes[i].blob)
		if err != nil {
			outcomes[i].err = err
			continue
		}
		outcomes[i].attachment = &attachment
	}

	result := newBatchResult(len(blobIDs))
	for i, outcome := range outcomes {
		key := blobIDs[i]
		if outcome.err == nil {
			result.record(telemetry.OpAttach, key, StatusSuccess, b.attachments)
			result.Attachments = append(result.Attachments, *outcome.attachment)
			continue
		}
		result.record(telemetry.OpAttach, key, StatusError, b.attachments)
		switch KindOf(outcome.err) {
		case KindBlobUnprocessable:
			result.Errors = append(result.Errors, ToUserError(outcome.err, "blob_id", key))
			result.TargetErrors = append(result.TargetErrors, UserError{
				Path:    []string{targetKey, "base"},
				Message: MsgBlobUnprocessable,
			})
		default:
			result.Errors = append(result.Errors, ToUserError(outcome.err, "attachment", key))
		}
		b.attachments.logger.Debug("batch attach item failed", "target", target.String(), "blob_id", key, "error", outcome.err)
	}
	return result, nil
}

// DetachMany detaches each attachment id independently.
func (b *BatchService) DetachMany(ctx context.Context, attachmentIDs []string, opts DetachOptions) BatchResult {
	outcomes := b.run(ctx, len(attachmentIDs), func(ctx context.Context, i int) itemOutcome {
		return itemOutcome{err: b.attachments.Detach(ctx, attachmentIDs[i], opts)}
	})

	result := newBatchResult(len(attachmentIDs))
	for i, outcome := range outcomes {
		key := attachmentIDs[i]
		if outcome.err == nil {
			result.record(telemetry.OpDetach, key, StatusSuccess, b.attachments)
			continue
		}
		result.record(telemetry.OpDetach, key, StatusError, b.attachments)
		result.Errors = append(result.Errors, UserError{Path: []string{"attachment", key}, Message: userMessage(outcome.err)})
		b.attachments.logger.Debug("batch detach item failed", "attachment_id", key, "error", outcome.err)
	}
	return result
}

// run executes fn for every index with bounded concurrency and returns the
// outcomes indexed like the input.
func (b *BatchService) run(ctx context.Context, n int, fn func(ctx context.Context, i int) itemOutcome) []itemOutcome {
	outcomes := make([]itemOutcome, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			outcomes[i] = fn(gctx, i)
			return nil
		})
	}
	_ = g.Wait()
	return outcomes
}

func newBatchResult(n int) BatchResult {
	return BatchResult{
		Status:       make([]ItemStatus, 0, n),
		Attachments:  []models.Attachment{},
		Errors:       []UserError{},
		TargetErrors: []UserError{},
	}
}

func (r *BatchResult) record(op, key, status string, s *AttachmentService) {
	r.Status = append(r.Status, ItemStatus{Key: key, Status: status})
	s.observer.RecordBatchItem(op, status)
}
