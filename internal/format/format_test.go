package format

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"
)

func TestHumanSize(t *testing.T) {
	tests := []struct {
		in   int64
		want string
	}{
		{0, "0 Bytes"},
		{1, "1 Byte"},
		{2, "2 Bytes"},
		{1023, "1023 Bytes"},
		{1024, "1 KB"},
		{1536, "1.5 KB"},
		{1048575, "1020 KB"},
		{1048576, "1 MB"},
		{1234567, "1.18 MB"},
		{10 * 1024 * 1024, "10 MB"},
		{123456789, "118 MB"},
		{1 << 40, "1 TB"},
		{-1, "-1 Byte"},
		{-2048, "-2 KB"},
		{math.MaxInt64, "8 EB"},
		{math.MinInt64, "-8 EB"},
	}
	for _, tt := range tests {
		if got := HumanSize(tt.in); got != tt.want {
			t.Fatalf("HumanSize(%d): expected %q, got %q", tt.in, tt.want, got)
		}
	}
}

func TestJSONFormatter(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, map[string]any{"samples_count": 3, "filename": "a&b<1>.fastq"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if strings.TrimSpace(buf.String()) != `{"filename":"a&b<1>.fastq","samples_count":3}` {
		t.Fatalf("unexpected output: %q", buf.String())
	}

	buf.Reset()
	if err := (JSONFormatter{Indent: true}).Write(&buf, map[string]int{"members_count": 2}); err != nil {
		t.Fatalf("write indented: %v", err)
	}
	if buf.String() != "{\n  \"members_count\": 2\n}\n" {
		t.Fatalf("unexpected indented output: %q", buf.String())
	}
}

type sizedItem struct {
	Filename string `json:"filename"`
	ByteSize int64  `json:"byte_size"`
	Skipped  string `json:"-"`
}

func TestYAMLFormatterFollowsJSONTags(t *testing.T) {
	var buf bytes.Buffer
	payload := []sizedItem{{Filename: "reads_R1.fastq.gz", ByteSize: math.MaxInt64, Skipped: "x"}}
	if err := (YAMLFormatter{}).Write(&buf, payload); err != nil {
		t.Fatalf("write: %v", err)
	}

	out := buf.String()
	if !strings.Contains(out, "byte_size: 9223372036854775807") {
		t.Fatalf("expected exact unquoted byte size, got:\n%s", out)
	}
	if strings.Contains(out, "Skipped") {
		t.Fatalf("expected json-ignored fields to be dropped, got:\n%s", out)
	}

	var decoded []map[string]any
	if err := yaml.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != 1 || decoded[0]["filename"] != "reads_R1.fastq.gz" {
		t.Fatalf("unexpected document: %#v", decoded)
	}
}

func TestNew(t *testing.T) {
	for name, want := range map[string]Formatter{
		"":      JSONFormatter{},
		"json":  JSONFormatter{},
		" YAML": YAMLFormatter{},
	} {
		got, err := New(name)
		if err != nil {
			t.Fatalf("New(%q): %v", name, err)
		}
		if got != want {
			t.Fatalf("New(%q): expected %T, got %T", name, want, got)
		}
	}
	if _, err := New("xml"); err == nil {
		t.Fatal("expected error for unknown format")
	}
}
