package service

import (
	"context"
	"log/slog"
	"time"

	"samplevault/internal/models"
	"samplevault/internal/pairing"
	"samplevault/internal/store"
	"samplevault/internal/telemetry"
)

// PairingResolver infers forward/reverse read pairs among one attachable's
// fastq attachments.
type PairingResolver struct {
	store    store.AttachmentStore
	matcher  *pairing.Matcher
	observer telemetry.Observer
	logger   *slog.Logger
}

// PairingResult lists what one Resolve call changed.
type PairingResult struct {
	Linked  []pairing.Pair `json:"linked"`
	Cleared []string       `json:"cleared"`
}

// NewPairingResolver constructs a PairingResolver.
func NewPairingResolver(st store.AttachmentStore, matcher *pairing.Matcher, observer telemetry.Observer, logger *slog.Logger) *PairingResolver {
	if observer == nil {
		observer = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PairingResolver{store: st, matcher: matcher, observer: observer, logger: logger}
}

// Matcher returns the filename matcher in use.
func (r *PairingResolver) Matcher() *pairing.Matcher {
	return r.matcher
}

// Resolve clears broken half-pairs on target and links every unambiguous
// forward/reverse candidate pair. Running it twice changes nothing the second
// time. Callers hold the target's lock.
func (r *PairingResolver) Resolve(ctx context.Context, target models.AttachableRef) (PairingResult, error) {
	start := time.Now()
	result, err := r.resolve(ctx, target)
	r.observer.RecordOperation(telemetry.OpPair, time.Since(start), err)
	if err == nil {
		r.observer.RecordPairs(len(result.Linked))
	}
	return result, err
}

func (r *PairingResolver) resolve(ctx context.Context, target models.AttachableRef) (PairingResult, error) {
	result := PairingResult{Linked: []pairing.Pair{}, Cleared: []string{}}
	attachments, err := r.store.ListAttachments(ctx, target)
	if err != nil {
		return result, internalError(err)
	}

	byID := make(map[string]*models.Attachment, len(attachments))
	for i := range attachments {
		byID[attachments[i].ID] = &attachments[i]
	}

	working := make(map[string]models.AttachmentMetadata, len(attachments))
	changed := map[string]bool{}
	for _, a := range attachments {
		working[a.ID] = a.Metadata.Clone()
	}

	for _, a := range attachments {
		meta := a.Metadata
		if meta.Direction == "" && meta.AssociatedAttachmentID == "" {
			continue
		}
		if validPair(a, byID) {
			continue
		}
		cleared := working[a.ID]
		cleared.ClearPairing()
		working[a.ID] = cleared
		changed[a.ID] = true
		result.Cleared = append(result.Cleared, a.ID)
	}

	candidates := []pairing.Candidate{}
	for _, a := range attachments {
		meta := working[a.ID]
		if meta.IsPaired() {
			continue
		}
		if meta.Type == models.ReadTypeSingleEnd {
			continue
		}
		if models.FastqExtension(a.Filename) == "" {
			continue
		}
		candidates = append(candidates, pairing.Candidate{ID: a.ID, Filename: a.Filename})
	}

	for _, pair := range r.matcher.Pairs(candidates) {
		forward := working[pair.ForwardID]
		forward.Type = models.ReadTypePairedEnd
		forward.Direction = models.DirectionForward
		forward.AssociatedAttachmentID = pair.ReverseID
		working[pair.ForwardID] = forward

		reverse := working[pair.ReverseID]
		reverse.Type = models.ReadTypePairedEnd
		reverse.Direction = models.DirectionReverse
		reverse.AssociatedAttachmentID = pair.ForwardID
		working[pair.ReverseID] = reverse

		changed[pair.ForwardID] = true
		changed[pair.ReverseID] = true
		result.Linked = append(result.Linked, pair)
	}

	if len(changed) == 0 {
		return result, nil
	}
	updates := make([]store.MetadataUpdate, 0, len(changed))
	for _, a := range attachments {
		if changed[a.ID] {
			updates = append(updates, store.MetadataUpdate{ID: a.ID, Metadata: working[a.ID]})
		}
	}
	if err := r.store.UpdateAttachmentMetadata(ctx, updates); err != nil {
		return PairingResult{}, internalError(err)
	}
	r.logger.Debug("pairing resolved", "target", target.String(), "linked", len(result.Linked), "cleared", len(result.Cleared))
	return result, nil
}

// validPair reports whether a and its recorded partner point at each other
// with opposite directions.
func validPair(a models.Attachment, byID map[string]*models.Attachment) bool {
	meta := a.Metadata
	if !meta.IsPaired() || meta.Direction.Opposite() == "" {
		return false
	}
	partner, ok := byID[meta.AssociatedAttachmentID]
	if !ok || partner.ID == a.ID {
		return false
	}
	return partner.Metadata.AssociatedAttachmentID == a.ID &&
		partner.Metadata.Direction == meta.Direction.Opposite()
}
