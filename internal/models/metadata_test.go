package models

import (
	"encoding/json"
	"testing"
)

func TestInferMetadata(t *testing.T) {
	tests := []struct {
		filename    string
		format      string
		compression string
	}{
		{filename: "sample_R1.fastq.gz", format: FormatFastq, compression: CompressionGzip},
		{filename: "sample_R1.fq", format: FormatFastq, compression: CompressionNone},
		{filename: "contigs.fna", format: FormatFasta, compression: CompressionNone},
		{filename: "assembly.fasta.gz", format: FormatFasta, compression: CompressionGzip},
		{filename: "annotation.gbk", format: FormatGenbank, compression: CompressionNone},
		{filename: "notes.txt", format: FormatText, compression: CompressionNone},
		{filename: "table.TSV", format: FormatTSV, compression: CompressionNone},
		{filename: "report.json", format: FormatJSON, compression: CompressionNone},
		{filename: "sheet.xlsx", format: FormatSpreadsheet, compression: CompressionNone},
		{filename: "archive.tar.gz", format: FormatUnknown, compression: CompressionGzip},
		{filename: "README", format: FormatUnknown, compression: CompressionNone},
	}

	for _, tt := range tests {
		got := InferMetadata(tt.filename)
		if got.Format != tt.format || got.Compression != tt.compression {
			t.Fatalf("%s: expected %s/%s, got %s/%s", tt.filename, tt.format, tt.compression, got.Format, got.Compression)
		}
	}
}

func TestFastqExtension(t *testing.T) {
	if got := FastqExtension("a_R1.fastq.gz"); got != "fastq.gz" {
		t.Fatalf("expected fastq.gz, got %q", got)
	}
	if got := FastqExtension("a.FQ"); got != "FQ" {
		t.Fatalf("expected FQ, got %q", got)
	}
	if got := FastqExtension("a.fasta"); got != "" {
		t.Fatalf("expected empty extension, got %q", got)
	}
}

func TestAttachmentMetadataJSONKeepsExtraKeys(t *testing.T) {
	raw := `{"format":"fastq","compression":"gzip","type":"pe","direction":"forward","associated_attachment_id":"at-1","irida_id":42,"origin_note":"import"}`

	var meta AttachmentMetadata
	if err := json.Unmarshal([]byte(raw), &meta); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if meta.Type != ReadTypePairedEnd || meta.Direction != DirectionForward || meta.AssociatedAttachmentID != "at-1" {
		t.Fatalf("unexpected reserved fields: %#v", meta)
	}
	if len(meta.Extra) != 2 || meta.Extra["origin_note"] != "import" {
		t.Fatalf("unexpected extra: %#v", meta.Extra)
	}

	encoded, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var roundTrip map[string]any
	if err := json.Unmarshal(encoded, &roundTrip); err != nil {
		t.Fatalf("unmarshal map: %v", err)
	}
	if roundTrip["irida_id"] != float64(42) || roundTrip["direction"] != "forward" {
		t.Fatalf("unexpected encoded metadata: %s", encoded)
	}
}

func TestClearPairingOmitsKeys(t *testing.T) {
	meta := AttachmentMetadata{Format: FormatFastq, Type: ReadTypePairedEnd, Direction: DirectionReverse, AssociatedAttachmentID: "at-2"}
	meta.ClearPairing()

	encoded, err := json.Marshal(meta)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if string(encoded) != `{"format":"fastq"}` {
		t.Fatalf("unexpected encoding: %s", encoded)
	}
}
