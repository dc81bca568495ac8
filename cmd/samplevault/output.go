package main

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"samplevault/internal/format"
	"samplevault/internal/models"
	"samplevault/internal/service"
)

var (
	outputFormatter format.Formatter = format.JSONFormatter{}
	stdout          io.Writer        = os.Stdout
)

func writeStructured(payload any) error {
	return outputFormatter.Write(stdout, payload)
}

func writePlain(format string, args ...any) error {
	_, err := fmt.Fprintf(stdout, format, args...)
	return err
}

func writeBlob(blob models.Blob) error {
	return writePlain("%s %s %s %s\n", blob.ID, blob.Filename, format.HumanSize(blob.ByteSize), blob.Checksum)
}

func writeAttachmentList(attachments []models.Attachment) error {
	for _, a := range attachments {
		if err := writePlain("%s\n", formatAttachmentLine(a)); err != nil {
			return err
		}
	}
	return nil
}

func formatAttachmentLine(a models.Attachment) string {
	parts := []string{a.ID, a.Filename, format.HumanSize(a.ByteSize)}
	if a.Metadata.Format != "" {
		parts = append(parts, a.Metadata.Format)
	}
	if a.Metadata.Type != "" {
		parts = append(parts, string(a.Metadata.Type))
	}
	if a.Metadata.Direction != "" {
		parts = append(parts, string(a.Metadata.Direction))
	}
	if a.Metadata.AssociatedAttachmentID != "" {
		parts = append(parts, "mate="+a.Metadata.AssociatedAttachmentID)
	}
	if a.Origin != models.OriginUpload {
		parts = append(parts, "origin="+string(a.Origin))
	}
	return strings.Join(parts, " ")
}

func writeAttachmentDetail(a models.Attachment) error {
	lines := []string{
		fmt.Sprintf("id: %s", a.ID),
		fmt.Sprintf("attachable: %s", a.Attachable()),
		fmt.Sprintf("blob_id: %s", a.BlobID),
		fmt.Sprintf("filename: %s", a.Filename),
		fmt.Sprintf("byte_size: %d", a.ByteSize),
		fmt.Sprintf("checksum: %s", a.Checksum),
		fmt.Sprintf("origin: %s", a.Origin),
		fmt.Sprintf("created_at: %s", formatTime(a.CreatedAt)),
		fmt.Sprintf("updated_at: %s", formatTime(a.UpdatedAt)),
	}
	if len(a.Metadata.Extra) > 0 {
		keys := make([]string, 0, len(a.Metadata.Extra))
		for k := range a.Metadata.Extra {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		lines = append(lines, "metadata:")
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %v", k, a.Metadata.Extra[k]))
		}
	}
	for _, line := range lines {
		if err := writePlain("%s\n", line); err != nil {
			return err
		}
	}
	return nil
}

func writeBatchResult(res service.BatchResult) error {
	for _, item := range res.Status {
		if err := writePlain("%s %s\n", item.Key, item.Status); err != nil {
			return err
		}
	}
	for _, e := range res.AllErrors() {
		if err := writePlain("error [%s]: %s\n", strings.Join(e.Path, "."), e.Message); err != nil {
			return err
		}
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
