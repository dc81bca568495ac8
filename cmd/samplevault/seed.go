package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"samplevault/internal/config"
	"samplevault/internal/models"
	"samplevault/internal/store"
)

const defaultSeedAccessLevel = 30

// seedFile is a namespace tree fixture.
type seedFile struct {
	Namespaces []seedNamespace `yaml:"namespaces"`
}

type seedNamespace struct {
	ID                 string          `yaml:"id"`
	Type               string          `yaml:"type"`
	Name               string          `yaml:"name"`
	Members            []string        `yaml:"members"`
	SharedWith         []string        `yaml:"shared_with"`
	Samples            []seedSample    `yaml:"samples"`
	WorkflowExecutions []seedWorkflow  `yaml:"workflow_executions"`
	Children           []seedNamespace `yaml:"children"`
}

type seedSample struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

type seedWorkflow struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	State string `yaml:"state"`
}

// seedSummary counts the rows one seed run wrote.
type seedSummary struct {
	Namespaces         int `json:"namespaces"`
	Samples            int `json:"samples"`
	WorkflowExecutions int `json:"workflow_executions"`
	Members            int `json:"members"`
	GroupLinks         int `json:"group_links"`
}

func newSeedCmd(cfg *config.Config, structuredOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <tree.yaml>",
		Short: "Load a namespace tree with samples, members and shares",
		Args:  requireExactlyArgs(1, "seed file is required"),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			seed, err := parseSeed(f)
			if err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}

			return withApp(cmd.Context(), cfg, func(a *app) error {
				summary, err := applySeed(cmd.Context(), a.store, seed)
				if err != nil {
					return err
				}
				if *structuredOutput {
					return writeStructured(summary)
				}
				return writePlain("seeded %d namespaces, %d samples, %d workflow executions, %d members, %d shares\n",
					summary.Namespaces, summary.Samples, summary.WorkflowExecutions, summary.Members, summary.GroupLinks)
			})
		},
	}
}

func parseSeed(r io.Reader) (*seedFile, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var seed seedFile
	if err := dec.Decode(&seed); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("seed file is empty")
		}
		return nil, err
	}
	seen := map[string]struct{}{}
	var check func(nodes []seedNamespace, parent *seedNamespace) error
	check = func(nodes []seedNamespace, parent *seedNamespace) error {
		for i := range nodes {
			node := &nodes[i]
			node.ID = strings.TrimSpace(node.ID)
			if node.ID == "" {
				return fmt.Errorf("namespace id is required")
			}
			if _, ok := seen[node.ID]; ok {
				return fmt.Errorf("namespace %s is declared twice", node.ID)
			}
			seen[node.ID] = struct{}{}
			typ, err := models.ParseNamespaceType(node.Type)
			if err != nil {
				return fmt.Errorf("namespace %s: %w", node.ID, err)
			}
			node.Type = string(typ)
			if parent != nil && models.NamespaceType(parent.Type) == models.NamespaceProject {
				return fmt.Errorf("namespace %s: projects cannot have children", node.ID)
			}
			if typ != models.NamespaceProject && len(node.Samples) > 0 {
				return fmt.Errorf("namespace %s: only projects hold samples", node.ID)
			}
			if err := check(node.Children, node); err != nil {
				return err
			}
		}
		return nil
	}
	if err := check(seed.Namespaces, nil); err != nil {
		return nil, err
	}
	return &seed, nil
}

// applySeed writes the tree parents first, then members and shares once
// every namespace they may reference exists.
func applySeed(ctx context.Context, st store.NamespaceStore, seed *seedFile) (seedSummary, error) {
	var summary seedSummary
	var links []models.GroupLink
	var members []models.Member

	var walk func(nodes []seedNamespace, parentID, parentPath string) error
	walk = func(nodes []seedNamespace, parentID, parentPath string) error {
		for _, node := range nodes {
			name := node.Name
			if name == "" {
				name = node.ID
			}
			path := name
			if parentPath != "" {
				path = parentPath + "/" + name
			}
			ns := &models.Namespace{
				ID:       node.ID,
				Type:     models.NamespaceType(node.Type),
				Name:     name,
				Path:     path,
				ParentID: parentID,
			}
			if err := st.CreateNamespace(ctx, ns); err != nil {
				return fmt.Errorf("create namespace %s: %w", node.ID, err)
			}
			summary.Namespaces++

			for _, s := range node.Samples {
				sample := &models.Sample{ID: strings.TrimSpace(s.ID), ProjectID: node.ID, Name: s.Name}
				if err := st.CreateSample(ctx, sample); err != nil {
					return fmt.Errorf("create sample %s: %w", s.ID, err)
				}
				summary.Samples++
			}
			for _, w := range node.WorkflowExecutions {
				run := &models.WorkflowExecution{ID: strings.TrimSpace(w.ID), NamespaceID: node.ID, Name: w.Name, State: w.State}
				if err := st.CreateWorkflowExecution(ctx, run); err != nil {
					return fmt.Errorf("create workflow execution %s: %w", w.ID, err)
				}
				summary.WorkflowExecutions++
			}
			for _, user := range node.Members {
				members = append(members, models.Member{NamespaceID: node.ID, UserID: strings.TrimSpace(user), AccessLevel: defaultSeedAccessLevel})
			}
			for _, group := range node.SharedWith {
				links = append(links, models.GroupLink{NamespaceID: node.ID, GroupID: strings.TrimSpace(group), GroupAccessLevel: defaultSeedAccessLevel})
			}
			if err := walk(node.Children, node.ID, path); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(seed.Namespaces, "", ""); err != nil {
		return summary, err
	}

	for _, m := range members {
		if err := st.AddMember(ctx, m); err != nil {
			return summary, fmt.Errorf("add member %s to %s: %w", m.UserID, m.NamespaceID, err)
		}
		summary.Members++
	}
	for _, l := range links {
		if err := st.CreateGroupLink(ctx, l); err != nil {
			return summary, fmt.Errorf("share %s with %s: %w", l.NamespaceID, l.GroupID, err)
		}
		summary.GroupLinks++
	}
	return summary, nil
}
