package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"samplevault/internal/models"
	"samplevault/internal/telemetry"
)

var basenamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ConcatenationRequest selects attachments on one target to merge into new
// outputs named after Basename.
type ConcatenationRequest struct {
	Target          models.AttachableRef `json:"target"`
	AttachmentIDs   []string             `json:"attachment_ids"`
	Basename        string               `json:"basename"`
	DeleteOriginals bool                 `json:"delete_originals"`
}

// ConcatOutcome lists the created outputs and the detached originals.
type ConcatOutcome struct {
	Outputs []models.Attachment `json:"outputs"`
	Deleted []string            `json:"deleted"`
}

// ConcatenationEngine merges fastq attachments into new attachments.
type ConcatenationEngine struct {
	attachments *AttachmentService
}

// NewConcatenationEngine constructs a ConcatenationEngine.
func NewConcatenationEngine(attachments *AttachmentService) *ConcatenationEngine {
	return &ConcatenationEngine{attachments: attachments}
}

type concatGroup struct {
	filename string
	sources  []models.Attachment
}

// Concatenate validates req completely, then writes the outputs, then (only
// once every output exists) detaches the originals when asked to. A failed
// output rolls back the outputs already created.
func (e *ConcatenationEngine) Concatenate(ctx context.Context, req ConcatenationRequest) (ConcatOutcome, error) {
	start := time.Now()
	outcome, err := e.concatenate(ctx, req)
	e.attachments.observer.RecordOperation(telemetry.OpConcatenate, time.Since(start), err)
	return outcome, err
}

func (e *ConcatenationEngine) concatenate(ctx context.Context, req ConcatenationRequest) (ConcatOutcome, error) {
	var zero ConcatOutcome
	s := e.attachments
	req.Target.ID = strings.TrimSpace(req.Target.ID)

	basename := strings.TrimSpace(req.Basename)
	if !basenamePattern.MatchString(basename) {
		return zero, newError(KindInvalidBasename, errors.New(MsgInvalidBasename), "basename")
	}
	if _, err := resolveTarget(ctx, s.store, req.Target); err != nil {
		return zero, err
	}

	release, err := s.lock(ctx, req.Target)
	if err != nil {
		return zero, err
	}
	defer release()

	sources, err := e.loadSources(ctx, req)
	if err != nil {
		return zero, err
	}
	groups, readType, err := planConcatenation(sources, basename)
	if err != nil {
		return zero, err
	}
	if req.DeleteOriginals {
		for _, src := range sources {
			if src.Protected() {
				return zero, protectedOrigin(src.ID)
			}
		}
	}

	outputs := make([]models.Attachment, 0, len(groups))
	rollback := func() {
		for _, out := range outputs {
			if err := s.detachLocked(ctx, out, DetachOptions{Privileged: true}); err != nil {
				s.logger.Warn("concatenation rollback failed", "attachment_id", out.ID, "error", err)
			}
		}
	}
	for _, group := range groups {
		out, err := e.writeOutput(ctx, req.Target, group, readType)
		if err != nil {
			rollback()
			return zero, err
		}
		outputs = append(outputs, out)
	}
	if readType == models.ReadTypePairedEnd {
		if err := s.store.LinkPair(ctx, outputs[0].ID, outputs[1].ID); err != nil {
			rollback()
			return zero, internalError(fmt.Errorf("link concatenated pair: %w", err))
		}
		for i := range outputs {
			if current, err := s.store.GetAttachment(ctx, outputs[i].ID); err == nil && current != nil {
				outputs[i] = *current
			}
		}
	}

	outcome := ConcatOutcome{Outputs: outputs, Deleted: []string{}}
	if !req.DeleteOriginals {
		return outcome, nil
	}
	for _, src := range sources {
		if err := s.detachLocked(ctx, src, DetachOptions{}); err != nil {
			if KindOf(err) == KindNotFound {
				continue
			}
			return outcome, err
		}
		outcome.Deleted = append(outcome.Deleted, src.ID)
	}
	s.logger.Debug("concatenation complete", "target", req.Target.String(), "outputs", len(outputs), "deleted", len(outcome.Deleted))
	return outcome, nil
}

// loadSources returns the selected attachments in request order.
func (e *ConcatenationEngine) loadSources(ctx context.Context, req ConcatenationRequest) ([]models.Attachment, error) {
	ids := make([]string, 0, len(req.AttachmentIDs))
	seen := map[string]struct{}{}
	for _, raw := range req.AttachmentIDs {
		id := strings.TrimSpace(raw)
		if id == "" {
			return nil, invalidArgument(fmt.Errorf("attachment id is required"), "attachment_ids")
		}
		if _, ok := seen[id]; ok {
			return nil, invalidArgument(fmt.Errorf("attachment %s selected more than once", id), "attachment_ids")
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) < 2 {
		return nil, invalidArgument(fmt.Errorf("select at least two attachments to concatenate"), "attachment_ids")
	}

	found, err := e.attachments.store.ListAttachmentsByIDs(ctx, ids)
	if err != nil {
		return nil, internalError(err)
	}
	byID := make(map[string]models.Attachment, len(found))
	for _, a := range found {
		byID[a.ID] = a
	}
	sources := make([]models.Attachment, 0, len(ids))
	for _, id := range ids {
		a, ok := byID[id]
		if !ok {
			return nil, notFound(fmt.Errorf("attachment not found: %s", id))
		}
		if a.Attachable() != req.Target {
			return nil, invalidArgument(fmt.Errorf("attachment %s does not belong to %s", id, req.Target), "attachment_ids")
		}
		sources = append(sources, a)
	}
	return sources, nil
}

// planConcatenation checks the selection and returns the output groups with
// their source order.
func planConcatenation(sources []models.Attachment, basename string) ([]concatGroup, models.ReadType, error) {
	first := sources[0]
	compression := models.CompressionFromFilename(first.Filename)
	for _, src := range sources {
		if models.FastqExtension(src.Filename) == "" || models.CompressionFromFilename(src.Filename) != compression {
			return nil, "", newError(KindIncorrectFastqFileTypes, errors.New(MsgIncorrectFastqFileTypes), "attachment_ids")
		}
	}
	readType := first.ReadType()
	for _, src := range sources {
		if src.ReadType() != readType {
			return nil, "", newError(KindIncorrectFileTypes, errors.New(MsgIncorrectFileTypes), "attachment_ids")
		}
	}

	ext := models.FastqExtension(first.Filename)
	if readType != models.ReadTypePairedEnd {
		return []concatGroup{{filename: basename + "." + ext, sources: sources}}, models.ReadTypeSingleEnd, nil
	}

	selected := make(map[string]models.Attachment, len(sources))
	for _, src := range sources {
		selected[src.ID] = src
	}
	forward := concatGroup{filename: basename + "_1." + ext}
	reverse := concatGroup{filename: basename + "_2." + ext}
	for _, src := range sources {
		partner, ok := selected[src.Metadata.AssociatedAttachmentID]
		if !src.Metadata.IsPaired() || !ok || partner.Metadata.AssociatedAttachmentID != src.ID ||
			partner.Metadata.Direction != src.Metadata.Direction.Opposite() {
			return nil, "", newError(KindIncorrectFileTypes, errors.New(MsgIncompletePairs), "attachment_ids")
		}
		if src.Metadata.Direction == models.DirectionForward {
			forward.sources = append(forward.sources, src)
			reverse.sources = append(reverse.sources, partner)
		}
	}
	return []concatGroup{forward, reverse}, models.ReadTypePairedEnd, nil
}

// writeOutput streams group's sources into one new blob and attaches it.
// Must run under the target's lock.
func (e *ConcatenationEngine) writeOutput(ctx context.Context, target models.AttachableRef, group concatGroup, readType models.ReadType) (models.Attachment, error) {
	s := e.attachments
	readers := make([]io.Reader, 0, len(group.sources))
	closers := make([]io.Closer, 0, len(group.sources))
	defer func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}()
	for _, src := range group.sources {
		content, err := s.Open(ctx, src.ID)
		if err != nil {
			return models.Attachment{}, err
		}
		readers = append(readers, content.Reader)
		closers = append(closers, content.Reader)
	}

	blob, err := s.registerUpload(ctx, group.filename, "", io.MultiReader(readers...))
	if err != nil {
		return models.Attachment{}, err
	}
	resolved, err := s.resolveBlob(ctx, blob.ID)
	if err != nil {
		return models.Attachment{}, err
	}
	return s.attachLocked(ctx, AttachInput{
		Target:      target,
		BlobID:      blob.ID,
		Origin:      models.OriginConcatenation,
		Type:        readType,
		SkipPairing: true,
	}, resolved)
}
