package models

import "testing"

func TestParseAttachableType(t *testing.T) {
	tests := []struct {
		raw  string
		want AttachableType
	}{
		{raw: " Sample ", want: AttachableSample},
		{raw: "project", want: AttachableNamespace},
		{raw: "GROUP", want: AttachableNamespace},
		{raw: "workflow_execution", want: AttachableWorkflowExecution},
	}
	for _, tt := range tests {
		got, err := ParseAttachableType(tt.raw)
		if err != nil {
			t.Fatalf("parse %q: %v", tt.raw, err)
		}
		if got != tt.want {
			t.Fatalf("parse %q: expected %q, got %q", tt.raw, tt.want, got)
		}
	}

	if _, err := ParseAttachableType("invalid"); err == nil {
		t.Fatal("expected invalid attachable type error")
	}
	if _, err := ParseAttachableType(""); err == nil {
		t.Fatal("expected required attachable type error")
	}
}

func TestParseNamespaceType(t *testing.T) {
	got, err := ParseNamespaceType(" group ")
	if err != nil {
		t.Fatalf("parse namespace type: %v", err)
	}
	if got != NamespaceGroup {
		t.Fatalf("expected %q, got %q", NamespaceGroup, got)
	}

	if _, err := ParseNamespaceType("team"); err == nil {
		t.Fatal("expected invalid namespace type error")
	}
}

func TestParseAttachmentOrigin(t *testing.T) {
	got, err := ParseAttachmentOrigin("")
	if err != nil {
		t.Fatalf("parse empty origin: %v", err)
	}
	if got != OriginUpload {
		t.Fatalf("expected default origin %q, got %q", OriginUpload, got)
	}

	got, err = ParseAttachmentOrigin("Workflow")
	if err != nil {
		t.Fatalf("parse origin: %v", err)
	}
	if got != OriginWorkflow {
		t.Fatalf("expected %q, got %q", OriginWorkflow, got)
	}

	if _, err := ParseAttachmentOrigin("robot"); err == nil {
		t.Fatal("expected invalid origin error")
	}
}
