package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// ReadType is the sequencing layout of a fastq attachment.
type ReadType string

const (
	ReadTypeSingleEnd ReadType = "se"
	ReadTypePairedEnd ReadType = "pe"
)

// Direction marks the read direction of one half of a pair.
type Direction string

const (
	DirectionForward Direction = "forward"
	DirectionReverse Direction = "reverse"
)

// Opposite returns the partner direction.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionForward:
		return DirectionReverse
	case DirectionReverse:
		return DirectionForward
	default:
		return ""
	}
}

const (
	CompressionNone = "none"
	CompressionGzip = "gzip"

	FormatFastq       = "fastq"
	FormatFasta       = "fasta"
	FormatGenbank     = "genbank"
	FormatText        = "text"
	FormatCSV         = "csv"
	FormatTSV         = "tsv"
	FormatJSON        = "json"
	FormatSpreadsheet = "spreadsheet"
	FormatUnknown     = "unknown"
)

const (
	metaKeyFormat      = "format"
	metaKeyCompression = "compression"
	metaKeyType        = "type"
	metaKeyDirection   = "direction"
	metaKeyAssociated  = "associated_attachment_id"
)

var formatPatterns = []struct {
	format string
	re     *regexp.Regexp
}{
	{FormatFastq, regexp.MustCompile(`(?i)\.f(ast)?q(\.gz)?$`)},
	{FormatFasta, regexp.MustCompile(`(?i)\.(fasta|fna|fa)(\.gz)?$`)},
	{FormatGenbank, regexp.MustCompile(`(?i)\.(gbk|gbf|gb)(\.gz)?$`)},
	{FormatText, regexp.MustCompile(`(?i)\.(txt|rtf)(\.gz)?$`)},
	{FormatCSV, regexp.MustCompile(`(?i)\.csv(\.gz)?$`)},
	{FormatTSV, regexp.MustCompile(`(?i)\.tsv(\.gz)?$`)},
	{FormatJSON, regexp.MustCompile(`(?i)\.json(\.gz)?$`)},
	{FormatSpreadsheet, regexp.MustCompile(`(?i)\.xlsx?$`)},
}

var fastqExtension = regexp.MustCompile(`(?i)\.(f(ast)?q(\.gz)?)$`)

// AttachmentMetadata holds the reserved metadata keys plus any other keys
// written by imports or analyses.
type AttachmentMetadata struct {
	Format                 string
	Compression            string
	Type                   ReadType
	Direction              Direction
	AssociatedAttachmentID string
	Extra                  map[string]any
}

// InferMetadata derives format and compression from a filename.
func InferMetadata(filename string) AttachmentMetadata {
	return AttachmentMetadata{
		Format:      FormatFromFilename(filename),
		Compression: CompressionFromFilename(filename),
	}
}

// FormatFromFilename maps a filename extension to a metadata format.
func FormatFromFilename(filename string) string {
	name := strings.TrimSpace(filename)
	for _, p := range formatPatterns {
		if p.re.MatchString(name) {
			return p.format
		}
	}
	return FormatUnknown
}

// CompressionFromFilename reports gzip for .gz names and none otherwise.
func CompressionFromFilename(filename string) string {
	if strings.HasSuffix(strings.ToLower(strings.TrimSpace(filename)), ".gz") {
		return CompressionGzip
	}
	return CompressionNone
}

// FastqExtension returns the fastq extension of filename without the leading
// dot (for example "fastq.gz"), or "" when filename is not a fastq name.
func FastqExtension(filename string) string {
	match := fastqExtension.FindStringSubmatch(strings.TrimSpace(filename))
	if match == nil {
		return ""
	}
	return match[1]
}

// IsPaired reports whether pairing keys are present.
func (m AttachmentMetadata) IsPaired() bool {
	return m.Direction != "" && m.AssociatedAttachmentID != ""
}

// ClearPairing drops direction, type and partner link.
func (m *AttachmentMetadata) ClearPairing() {
	m.Direction = ""
	m.Type = ""
	m.AssociatedAttachmentID = ""
}

// Clone returns a copy with an independent Extra map.
func (m AttachmentMetadata) Clone() AttachmentMetadata {
	out := m
	if m.Extra != nil {
		out.Extra = make(map[string]any, len(m.Extra))
		for k, v := range m.Extra {
			out.Extra[k] = v
		}
	}
	return out
}

func (m AttachmentMetadata) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(m.Extra)+5)
	for k, v := range m.Extra {
		out[k] = v
	}
	setIfNotEmpty(out, metaKeyFormat, m.Format)
	setIfNotEmpty(out, metaKeyCompression, m.Compression)
	setIfNotEmpty(out, metaKeyType, string(m.Type))
	setIfNotEmpty(out, metaKeyDirection, string(m.Direction))
	setIfNotEmpty(out, metaKeyAssociated, m.AssociatedAttachmentID)
	return json.Marshal(out)
}

func (m *AttachmentMetadata) UnmarshalJSON(data []byte) error {
	raw := map[string]json.RawMessage{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*m = AttachmentMetadata{}

	reserved := []struct {
		key  string
		dest *string
	}{
		{metaKeyFormat, &m.Format},
		{metaKeyCompression, &m.Compression},
		{metaKeyAssociated, &m.AssociatedAttachmentID},
	}
	for _, r := range reserved {
		value, ok := raw[r.key]
		if !ok {
			continue
		}
		if err := json.Unmarshal(value, r.dest); err != nil {
			return fmt.Errorf("metadata %s: %w", r.key, err)
		}
		delete(raw, r.key)
	}

	if value, ok := raw[metaKeyType]; ok {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("metadata %s: %w", metaKeyType, err)
		}
		m.Type = ReadType(s)
		delete(raw, metaKeyType)
	}
	if value, ok := raw[metaKeyDirection]; ok {
		var s string
		if err := json.Unmarshal(value, &s); err != nil {
			return fmt.Errorf("metadata %s: %w", metaKeyDirection, err)
		}
		m.Direction = Direction(s)
		delete(raw, metaKeyDirection)
	}

	if len(raw) == 0 {
		return nil
	}
	m.Extra = make(map[string]any, len(raw))
	for k, value := range raw {
		var v any
		if err := json.Unmarshal(value, &v); err != nil {
			return fmt.Errorf("metadata %s: %w", k, err)
		}
		m.Extra[k] = v
	}
	return nil
}

// IsReservedMetadataKey reports whether key is managed by the engine.
func IsReservedMetadataKey(key string) bool {
	switch key {
	case metaKeyFormat, metaKeyCompression, metaKeyType, metaKeyDirection, metaKeyAssociated:
		return true
	default:
		return false
	}
}

func setIfNotEmpty(out map[string]any, key, value string) {
	if value == "" {
		return
	}
	out[key] = value
}
