package models

import "time"

// Blob is an immutable uploaded content object referenced by attachments.
// Several blob rows may share one content key.
type Blob struct {
	ID             string    `json:"id"`
	BlobKey        string    `json:"blob_key"`
	Filename       string    `json:"filename"`
	ContentType    string    `json:"content_type,omitempty"`
	ByteSize       int64     `json:"byte_size"`
	Checksum       string    `json:"checksum"`
	StorageBackend string    `json:"storage_backend"`
	CreatedAt      time.Time `json:"created_at"`
}
