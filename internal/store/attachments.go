package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"samplevault/internal/models"
)

const attachmentColumns = "id, attachable_type, attachable_id, blob_id, filename, byte_size, checksum, origin, metadata_json, created_at, updated_at"

var (
	// ErrDuplicateAttachment is returned when the attachable already holds an
	// attachment with the same filename and checksum.
	ErrDuplicateAttachment = errors.New("attachment with the same filename and checksum already exists")
	// ErrAttachmentNotFound is returned by mutations addressing a missing row.
	ErrAttachmentNotFound = errors.New("attachment not found")
)

// MetadataUpdate replaces the metadata document of one attachment.
type MetadataUpdate struct {
	ID       string
	Metadata models.AttachmentMetadata
}

// DeleteResult reports the removed attachment and the partner it was unpaired from.
type DeleteResult struct {
	Attachment models.Attachment
	Unpaired   *models.Attachment
}

type execQueryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateAttachment inserts one attachment row and bumps the owning sample's
// attachments_updated_at in the same transaction.
func (s *Store) CreateAttachment(ctx context.Context, attachment *models.Attachment) (err error) {
	if attachment == nil {
		return fmt.Errorf("attachment is required")
	}
	if strings.TrimSpace(attachment.ID) == "" {
		id, err := NewAttachmentID()
		if err != nil {
			return err
		}
		attachment.ID = id
	}
	if attachment.Origin == "" {
		attachment.Origin = models.OriginUpload
	}

	now := time.Now().UTC()
	if attachment.CreatedAt.IsZero() {
		attachment.CreatedAt = now
	}
	if attachment.UpdatedAt.IsZero() {
		attachment.UpdatedAt = attachment.CreatedAt
	}

	metaJSON, err := metadataToJSON(attachment.Metadata)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var exists int
	err = tx.QueryRowContext(ctx, s.q(`
		SELECT 1 FROM attachments
		WHERE attachable_type = ? AND attachable_id = ? AND filename = ? AND checksum = ?
		LIMIT 1
	`), string(attachment.AttachableType), attachment.AttachableID, attachment.Filename, attachment.Checksum).Scan(&exists)
	switch {
	case err == nil:
		return ErrDuplicateAttachment
	case err != sql.ErrNoRows:
		return err
	}

	_, err = tx.ExecContext(ctx, s.q(`
		INSERT INTO attachments (`+attachmentColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`),
		attachment.ID,
		string(attachment.AttachableType),
		attachment.AttachableID,
		attachment.BlobID,
		attachment.Filename,
		attachment.ByteSize,
		attachment.Checksum,
		string(attachment.Origin),
		metaJSON,
		dbFormatTime(attachment.CreatedAt),
		dbFormatTime(attachment.UpdatedAt),
	)
	if err != nil {
		if isUniqueConstraint(err) {
			return ErrDuplicateAttachment
		}
		return err
	}

	if err = s.touchAttachableTx(ctx, tx, attachment.Attachable(), now); err != nil {
		return err
	}

	return tx.Commit()
}

// GetAttachment returns one attachment, or nil when absent.
func (s *Store) GetAttachment(ctx context.Context, id string) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`), id)
	return scanAttachment(row)
}

// ListAttachments lists the attachments of one attachable, oldest first.
func (s *Store) ListAttachments(ctx context.Context, ref models.AttachableRef) ([]models.Attachment, error) {
	rows, err := s.db.QueryContext(ctx, s.q(`
		SELECT `+attachmentColumns+` FROM attachments
		WHERE attachable_type = ? AND attachable_id = ?
		ORDER BY created_at ASC, id ASC
	`), string(ref.Type), ref.ID)
	if err != nil {
		return nil, err
	}
	return collectAttachments(rows)
}

// ListAttachmentsByIDs returns the attachments matching ids. Missing ids are
// skipped; result order follows created_at.
func (s *Store) ListAttachmentsByIDs(ctx context.Context, ids []string) ([]models.Attachment, error) {
	out := []models.Attachment{}
	for _, chunk := range chunkStrings(ids, maxInArgs) {
		rows, err := s.db.QueryContext(ctx, s.q(`
			SELECT `+attachmentColumns+` FROM attachments
			WHERE id IN (`+placeholders(len(chunk))+`)
			ORDER BY created_at ASC, id ASC
		`), stringArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		attachments, err := collectAttachments(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, attachments...)
	}
	return out, nil
}

// FindAttachment returns the attachment on ref matching filename and checksum.
func (s *Store) FindAttachment(ctx context.Context, ref models.AttachableRef, filename, checksum string) (*models.Attachment, error) {
	row := s.db.QueryRowContext(ctx, s.q(`
		SELECT `+attachmentColumns+` FROM attachments
		WHERE attachable_type = ? AND attachable_id = ? AND filename = ? AND checksum = ?
	`), string(ref.Type), ref.ID, filename, checksum)
	return scanAttachment(row)
}

// CountAttachments counts the attachments of one attachable.
func (s *Store) CountAttachments(ctx context.Context, ref models.AttachableRef) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, s.q(`
		SELECT COUNT(*) FROM attachments WHERE attachable_type = ? AND attachable_id = ?
	`), string(ref.Type), ref.ID).Scan(&count)
	return count, err
}

// UpdateAttachmentMetadata writes all updates in one transaction.
func (s *Store) UpdateAttachmentMetadata(ctx context.Context, updates []MetadataUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, update := range updates {
		if err = s.writeMetadataTx(ctx, tx, update.ID, update.Metadata, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// LinkPair marks forwardID and reverseID as the two halves of one paired-end
// read set. Any previous partner of either side is unpaired first.
func (s *Store) LinkPair(ctx context.Context, forwardID, reverseID string) (err error) {
	if forwardID == reverseID {
		return fmt.Errorf("cannot pair attachment %s with itself", forwardID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	sides := []struct {
		id        string
		partner   string
		direction models.Direction
	}{
		{forwardID, reverseID, models.DirectionForward},
		{reverseID, forwardID, models.DirectionReverse},
	}

	for _, side := range sides {
		current, err := s.getAttachmentTx(ctx, tx, side.id)
		if err != nil {
			return err
		}
		if current == nil {
			return fmt.Errorf("%w: %s", ErrAttachmentNotFound, side.id)
		}

		stale := current.Metadata.AssociatedAttachmentID
		if stale != "" && stale != side.partner {
			if err := s.unpairPartnerTx(ctx, tx, stale, side.id, now); err != nil {
				return err
			}
		}

		meta := current.Metadata.Clone()
		meta.Type = models.ReadTypePairedEnd
		meta.Direction = side.direction
		meta.AssociatedAttachmentID = side.partner
		if err := s.writeMetadataTx(ctx, tx, side.id, meta, now); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// DeleteAttachment removes one attachment. When it was paired, the partner's
// direction, type and associated id are cleared in the same transaction.
func (s *Store) DeleteAttachment(ctx context.Context, id string) (result *DeleteResult, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.getAttachmentTx(ctx, tx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)
	}

	now := time.Now().UTC()
	result = &DeleteResult{Attachment: *current}

	if partnerID := current.Metadata.AssociatedAttachmentID; partnerID != "" {
		if err = s.unpairPartnerTx(ctx, tx, partnerID, id, now); err != nil {
			return nil, err
		}
		partner, err := s.getAttachmentTx(ctx, tx, partnerID)
		if err != nil {
			return nil, err
		}
		result.Unpaired = partner
	}

	if _, err = tx.ExecContext(ctx, s.q("DELETE FROM attachments WHERE id = ?"), id); err != nil {
		return nil, err
	}
	if err = s.touchAttachableTx(ctx, tx, current.Attachable(), now); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListAttachedBlobSizes returns the byte size of every distinct blob attached
// to the given attachables, keyed by blob id.
func (s *Store) ListAttachedBlobSizes(ctx context.Context, attachableType models.AttachableType, ids []string) (map[string]int64, error) {
	sizes := map[string]int64{}
	for _, chunk := range chunkStrings(ids, maxInArgs) {
		args := append([]any{string(attachableType)}, stringArgs(chunk)...)
		rows, err := s.db.QueryContext(ctx, s.q(`
			SELECT DISTINCT b.id, b.byte_size
			FROM attachments a
			JOIN blobs b ON b.id = a.blob_id
			WHERE a.attachable_type = ? AND a.attachable_id IN (`+placeholders(len(chunk))+`)
		`), args...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var blobID string
			var size int64
			if err := rows.Scan(&blobID, &size); err != nil {
				rows.Close()
				return nil, err
			}
			sizes[blobID] = size
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return sizes, nil
}

// unpairPartnerTx clears pairing keys on partnerID, but only while it still
// points back at ownerID.
func (s *Store) unpairPartnerTx(ctx context.Context, tx execQueryer, partnerID, ownerID string, now time.Time) error {
	partner, err := s.getAttachmentTx(ctx, tx, partnerID)
	if err != nil {
		return err
	}
	if partner == nil || partner.Metadata.AssociatedAttachmentID != ownerID {
		return nil
	}
	meta := partner.Metadata.Clone()
	meta.ClearPairing()
	return s.writeMetadataTx(ctx, tx, partnerID, meta, now)
}

func (s *Store) writeMetadataTx(ctx context.Context, tx execQueryer, id string, meta models.AttachmentMetadata, now time.Time) error {
	metaJSON, err := metadataToJSON(meta)
	if err != nil {
		return err
	}
	res, err := tx.ExecContext(ctx, s.q(`
		UPDATE attachments SET metadata_json = ?, updated_at = ? WHERE id = ?
	`), metaJSON, dbFormatTime(now), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrAttachmentNotFound, id)
	}
	return nil
}

func (s *Store) getAttachmentTx(ctx context.Context, tx execQueryer, id string) (*models.Attachment, error) {
	row := tx.QueryRowContext(ctx, s.q(`SELECT `+attachmentColumns+` FROM attachments WHERE id = ?`), id)
	return scanAttachment(row)
}

// touchAttachableTx maintains samples.attachments_updated_at. Other
// attachable types carry no timestamp.
func (s *Store) touchAttachableTx(ctx context.Context, tx execQueryer, ref models.AttachableRef, now time.Time) error {
	if ref.Type != models.AttachableSample {
		return nil
	}
	_, err := tx.ExecContext(ctx, s.q(`UPDATE samples SET attachments_updated_at = ? WHERE id = ?`), dbFormatTime(now), ref.ID)
	return err
}

func collectAttachments(rows *sql.Rows) ([]models.Attachment, error) {
	defer rows.Close()

	attachments := []models.Attachment{}
	for rows.Next() {
		attachment, err := scanAttachment(rows)
		if err != nil {
			return nil, err
		}
		if attachment == nil {
			continue
		}
		attachments = append(attachments, *attachment)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return attachments, nil
}

func scanAttachment(scanner interface {
	Scan(dest ...any) error
}) (*models.Attachment, error) {
	attachment := models.Attachment{}
	var attachableType string
	var origin string
	var metaJSON sql.NullString
	var createdAt string
	var updatedAt string

	err := scanner.Scan(
		&attachment.ID,
		&attachableType,
		&attachment.AttachableID,
		&attachment.BlobID,
		&attachment.Filename,
		&attachment.ByteSize,
		&attachment.Checksum,
		&origin,
		&metaJSON,
		&createdAt,
		&updatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	attachment.AttachableType = models.AttachableType(attachableType)
	attachment.Origin = models.AttachmentOrigin(origin)

	if metaJSON.Valid && strings.TrimSpace(metaJSON.String) != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &attachment.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata for %s: %w", attachment.ID, err)
		}
	}

	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	attachment.CreatedAt = parsedCreated

	parsedUpdated, err := dbParseTime(updatedAt)
	if err != nil {
		return nil, err
	}
	attachment.UpdatedAt = parsedUpdated

	return &attachment, nil
}

func metadataToJSON(meta models.AttachmentMetadata) (any, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	if string(data) == "{}" {
		return nil, nil
	}
	return string(data), nil
}
