package main

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"samplevault/internal/models"
	"samplevault/internal/store"
)

const seedTree = `
namespaces:
  - id: g-lab
    type: group
    name: Lab
    members: [alice, bob]
    children:
      - id: p-reads
        type: project
        name: Reads
        members: [carol]
        samples:
          - id: s-1
            name: first
          - id: s-2
        workflow_executions:
          - id: wf-1
            name: assembly
            state: completed
  - id: g-partner
    type: group
    children:
      - id: p-shared
        type: project
        shared_with: [g-lab]
`

func TestParseSeed(t *testing.T) {
	seed, err := parseSeed(strings.NewReader(seedTree))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	if len(seed.Namespaces) != 2 {
		t.Fatalf("expected 2 roots, got %d", len(seed.Namespaces))
	}
	project := seed.Namespaces[0].Children[0]
	if project.Type != string(models.NamespaceProject) {
		t.Fatalf("expected canonical project type, got %q", project.Type)
	}
	if len(project.Samples) != 2 || project.WorkflowExecutions[0].State != "completed" {
		t.Fatalf("unexpected project %+v", project)
	}
}

func TestParseSeedRejectsInvalidTrees(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{name: "empty", body: "", want: "empty"},
		{name: "missing id", body: "namespaces:\n  - type: group\n", want: "id is required"},
		{name: "bad type", body: "namespaces:\n  - id: x\n    type: team\n", want: "invalid namespace type"},
		{name: "duplicate", body: "namespaces:\n  - id: x\n    type: group\n  - id: x\n    type: group\n", want: "declared twice"},
		{name: "samples outside project", body: "namespaces:\n  - id: x\n    type: group\n    samples: [{id: s}]\n", want: "only projects"},
		{name: "project children", body: "namespaces:\n  - id: p\n    type: project\n    children:\n      - id: c\n        type: project\n", want: "cannot have children"},
		{name: "unknown field", body: "namespaces:\n  - id: x\n    type: group\n    owner: me\n", want: "owner"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseSeed(strings.NewReader(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("expected error containing %q, got %v", tt.want, err)
			}
		})
	}
}

func TestApplySeed(t *testing.T) {
	ctx := context.Background()
	st, err := store.Open(filepath.Join(t.TempDir(), "seed.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer st.Close()

	seed, err := parseSeed(strings.NewReader(seedTree))
	if err != nil {
		t.Fatalf("parse seed: %v", err)
	}
	summary, err := applySeed(ctx, st, seed)
	if err != nil {
		t.Fatalf("apply seed: %v", err)
	}
	want := seedSummary{Namespaces: 4, Samples: 2, WorkflowExecutions: 1, Members: 3, GroupLinks: 1}
	if summary != want {
		t.Fatalf("expected %+v, got %+v", want, summary)
	}

	project, err := st.GetNamespace(ctx, "p-reads")
	if err != nil || project == nil {
		t.Fatalf("get project: %v", err)
	}
	if project.ParentID != "g-lab" || project.Path != "Lab/Reads" {
		t.Fatalf("unexpected project %+v", project)
	}
	shared, err := st.ListSharedNamespaceIDs(ctx, []string{"g-lab"})
	if err != nil {
		t.Fatalf("list shared: %v", err)
	}
	if len(shared) != 1 || shared[0] != "p-shared" {
		t.Fatalf("expected p-shared to be shared with g-lab, got %v", shared)
	}
	sample, err := st.GetSample(ctx, "s-2")
	if err != nil || sample == nil || sample.ProjectID != "p-reads" {
		t.Fatalf("expected s-2 in p-reads, got %+v (%v)", sample, err)
	}
}
