package models

import "time"

// Attachment links one registered blob to one attachable.
type Attachment struct {
	ID             string             `json:"id"`
	AttachableType AttachableType     `json:"attachable_type"`
	AttachableID   string             `json:"attachable_id"`
	BlobID         string             `json:"blob_id"`
	Filename       string             `json:"filename"`
	ByteSize       int64              `json:"byte_size"`
	Checksum       string             `json:"checksum"`
	Origin         AttachmentOrigin   `json:"origin"`
	Metadata       AttachmentMetadata `json:"metadata"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

// Attachable returns the owner reference.
func (a Attachment) Attachable() AttachableRef {
	return AttachableRef{Type: a.AttachableType, ID: a.AttachableID}
}

// Protected reports whether the attachment was produced by an analysis run.
func (a Attachment) Protected() bool {
	return a.Origin == OriginWorkflow
}

// ReadType returns the effective read type; a missing type counts as single-end.
func (a Attachment) ReadType() ReadType {
	if a.Metadata.Type == "" {
		return ReadTypeSingleEnd
	}
	return a.Metadata.Type
}
