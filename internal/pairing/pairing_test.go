package pairing

import (
	"testing"

	"samplevault/internal/models"
)

func defaultMatcher(t *testing.T) *Matcher {
	t.Helper()
	m, err := NewMatcher(nil)
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	return m
}

func TestClassify(t *testing.T) {
	m := defaultMatcher(t)

	tests := []struct {
		filename  string
		ok        bool
		pattern   string
		stem      string
		lane      string
		direction models.Direction
	}{
		{"sample_R1.fastq.gz", true, "illumina", "sample", "", models.DirectionForward},
		{"sample_R2.fastq.gz", true, "illumina", "sample", "", models.DirectionReverse},
		{"sample_S1_L001_R1_001.fastq.gz", true, "illumina", "sample_S1_L001", "_001", models.DirectionForward},
		{"reads_1.fq", true, "numeric", "reads", "", models.DirectionForward},
		{"reads_2.fq", true, "numeric", "reads", "", models.DirectionReverse},
		{"test_file_fwd_1.fastq", true, "strand", "test_file", "_1", models.DirectionForward},
		{"test_file_rev_1.fastq", true, "strand", "test_file", "_1", models.DirectionReverse},
		{"isolate_F.fastq", true, "letter", "isolate", "", models.DirectionForward},
		{"isolate_R.fastq", true, "letter", "isolate", "", models.DirectionReverse},
		{"sample_R1.fasta", false, "", "", "", ""},
		{"plain.fastq", false, "", "", "", ""},
		{"_R1.fastq", false, "", "", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.filename, func(t *testing.T) {
			got, ok := m.Classify(tt.filename)
			if ok != tt.ok {
				t.Fatalf("expected ok=%v, got %v (%#v)", tt.ok, ok, got)
			}
			if !ok {
				return
			}
			if got.Pattern != tt.pattern || got.Stem != tt.stem || got.Lane != tt.lane || got.Direction != tt.direction {
				t.Fatalf("unexpected classification: %#v", got)
			}
		})
	}
}

func TestClassifyKeySeparatesExtensions(t *testing.T) {
	m := defaultMatcher(t)
	a, _ := m.Classify("s_R1.fastq")
	b, _ := m.Classify("s_R2.fastq.gz")
	if a.Key() == b.Key() {
		t.Fatal("expected compressed and uncompressed names to use different keys")
	}
	c, _ := m.Classify("s_R2.FASTQ")
	if a.Key() != c.Key() {
		t.Fatal("expected extension comparison to ignore case")
	}
}

func TestPairs(t *testing.T) {
	m := defaultMatcher(t)

	pairs := m.Pairs([]Candidate{
		{ID: "a", Filename: "alpha_R2.fastq.gz"},
		{ID: "b", Filename: "alpha_R1.fastq.gz"},
		{ID: "c", Filename: "beta_1.fastq"},
		{ID: "d", Filename: "beta_1.fastq"},
		{ID: "e", Filename: "beta_2.fastq"},
		{ID: "f", Filename: "gamma_fwd_3.fastq"},
		{ID: "g", Filename: "notes.fastq"},
		{ID: "h", Filename: "gamma_rev_3.fastq"},
		{ID: "i", Filename: "delta_R1.fastq"},
	})

	if len(pairs) != 2 {
		t.Fatalf("expected 2 pairs, got %d: %#v", len(pairs), pairs)
	}
	if pairs[0] != (Pair{ForwardID: "b", ReverseID: "a"}) {
		t.Fatalf("unexpected first pair: %#v", pairs[0])
	}
	if pairs[1] != (Pair{ForwardID: "f", ReverseID: "h"}) {
		t.Fatalf("unexpected second pair: %#v", pairs[1])
	}
}

func TestNewMatcherValidation(t *testing.T) {
	cases := map[string][]Pattern{
		"missing name":    {{Forward: "_a", Reverse: "_b"}},
		"missing token":   {{Name: "x", Forward: "_a"}},
		"same tokens":     {{Name: "x", Forward: "_a", Reverse: "_a"}},
		"duplicate names": {{Name: "x", Forward: "_a", Reverse: "_b"}, {Name: "x", Forward: "_c", Reverse: "_d"}},
	}
	for name, patterns := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := NewMatcher(patterns); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestCustomPatternTokensAreLiteral(t *testing.T) {
	m, err := NewMatcher([]Pattern{{Name: "dotted", Forward: ".left", Reverse: ".right"}})
	if err != nil {
		t.Fatalf("new matcher: %v", err)
	}
	if _, ok := m.Classify("runXleft.fastq"); ok {
		t.Fatal("expected regexp metacharacters in tokens to be quoted")
	}
	got, ok := m.Classify("run.right.fastq")
	if !ok || got.Direction != models.DirectionReverse || got.Stem != "run" {
		t.Fatalf("unexpected classification: %#v ok=%v", got, ok)
	}
	if len(m.Patterns()) != 1 {
		t.Fatalf("expected 1 pattern, got %d", len(m.Patterns()))
	}
}
