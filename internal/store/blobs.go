package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"samplevault/internal/models"
)

const blobColumns = "id, blob_key, filename, content_type, byte_size, checksum, storage_backend, created_at"

// CreateBlob records one uploaded blob. A missing id is generated.
func (s *Store) CreateBlob(ctx context.Context, blob *models.Blob) error {
	if blob == nil {
		return fmt.Errorf("blob is required")
	}
	blob.Checksum = strings.ToLower(strings.TrimSpace(blob.Checksum))
	blob.BlobKey = strings.TrimSpace(blob.BlobKey)
	blob.Filename = strings.TrimSpace(blob.Filename)
	if blob.Checksum == "" {
		return fmt.Errorf("checksum is required")
	}
	if blob.BlobKey == "" {
		return fmt.Errorf("blob_key is required")
	}
	if blob.Filename == "" {
		return fmt.Errorf("filename is required")
	}
	if blob.ByteSize < 0 {
		return fmt.Errorf("byte_size must be >= 0")
	}
	if strings.TrimSpace(blob.ID) == "" {
		generated, err := GenerateBlobID(func(id string) (bool, error) {
			return s.blobIDExists(ctx, id)
		})
		if err != nil {
			return err
		}
		blob.ID = generated
	}
	if blob.CreatedAt.IsZero() {
		blob.CreatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO blobs (`+blobColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`), blob.ID, blob.BlobKey, blob.Filename, nullIfEmpty(blob.ContentType), blob.ByteSize, blob.Checksum, blob.StorageBackend, dbFormatTime(blob.CreatedAt))
	return err
}

// GetBlob returns one blob by id, or nil when absent.
func (s *Store) GetBlob(ctx context.Context, id string) (*models.Blob, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+blobColumns+` FROM blobs WHERE id = ?`), id)
	return scanBlob(row)
}

// ListUnreferencedBlobs returns blobs that no attachment references and that
// were registered before createdBefore. A zero createdBefore applies no age
// filter.
func (s *Store) ListUnreferencedBlobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Blob, error) {
	query := `
		SELECT b.id, b.blob_key, b.filename, b.content_type, b.byte_size, b.checksum, b.storage_backend, b.created_at
		FROM blobs b
		LEFT JOIN attachments a ON a.blob_id = b.id
		WHERE a.id IS NULL`
	args := []any{}
	if !createdBefore.IsZero() {
		query += " AND b.created_at < ?"
		args = append(args, dbTimeBefore(createdBefore))
	}
	query += " ORDER BY b.created_at ASC, b.id ASC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.q(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	blobs := []models.Blob{}
	for rows.Next() {
		blob, err := scanBlob(rows)
		if err != nil {
			return nil, err
		}
		if blob != nil {
			blobs = append(blobs, *blob)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return blobs, nil
}

// DeleteUnreferencedBlob deletes the blob row unless an attachment references
// it, and reports how many rows still share its key afterwards. Both happen in
// one transaction. deleted is false when the row is gone or referenced.
func (s *Store) DeleteUnreferencedBlob(ctx context.Context, id string) (deleted bool, sharing int, err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var key string
	err = tx.QueryRowContext(ctx, s.q("SELECT blob_key FROM blobs WHERE id = ?"), id).Scan(&key)
	if err == sql.ErrNoRows {
		return false, 0, tx.Commit()
	}
	if err != nil {
		return false, 0, err
	}

	res, err := tx.ExecContext(ctx, s.q(`
		DELETE FROM blobs
		WHERE id = ? AND NOT EXISTS (SELECT 1 FROM attachments a WHERE a.blob_id = blobs.id)
	`), id)
	if err != nil {
		return false, 0, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, 0, err
	}
	if affected == 0 {
		return false, 0, tx.Commit()
	}

	if err = tx.QueryRowContext(ctx, s.q("SELECT COUNT(*) FROM blobs WHERE blob_key = ?"), key).Scan(&sharing); err != nil {
		return false, 0, err
	}
	if err = tx.Commit(); err != nil {
		return false, 0, err
	}
	return true, sharing, nil
}

func (s *Store) blobIDExists(ctx context.Context, id string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, s.q("SELECT 1 FROM blobs WHERE id = ? LIMIT 1"), id).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func scanBlob(scanner interface {
	Scan(dest ...any) error
}) (*models.Blob, error) {
	blob := models.Blob{}
	var contentType sql.NullString
	var createdAt string

	err := scanner.Scan(&blob.ID, &blob.BlobKey, &blob.Filename, &contentType, &blob.ByteSize, &blob.Checksum, &blob.StorageBackend, &createdAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	blob.ContentType = contentType.String

	parsedCreated, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	blob.CreatedAt = parsedCreated

	return &blob, nil
}
