package models

import "time"

// Namespace is one node of the group/project/user tree.
type Namespace struct {
	ID        string        `json:"id"`
	Type      NamespaceType `json:"type"`
	Name      string        `json:"name"`
	Path      string        `json:"path,omitempty"`
	ParentID  string        `json:"parent_id,omitempty"`
	CreatedAt time.Time     `json:"created_at"`
}

// IsProject reports whether the namespace is a project namespace.
func (n Namespace) IsProject() bool {
	return n.Type == NamespaceProject
}

// Sample belongs to exactly one project namespace.
type Sample struct {
	ID                   string     `json:"id"`
	ProjectID            string     `json:"project_id"`
	Name                 string     `json:"name"`
	AttachmentsUpdatedAt *time.Time `json:"attachments_updated_at,omitempty"`
	CreatedAt            time.Time  `json:"created_at"`
}

// Member grants a user access to a namespace and, implicitly, its descendants.
type Member struct {
	NamespaceID string `json:"namespace_id"`
	UserID      string `json:"user_id"`
	AccessLevel int    `json:"access_level"`
}

// GroupLink shares NamespaceID with GroupID without reparenting it.
type GroupLink struct {
	NamespaceID      string `json:"namespace_id"`
	GroupID          string `json:"group_id"`
	GroupAccessLevel int    `json:"group_access_level"`
}

// WorkflowExecution is an analysis run scoped to a namespace.
type WorkflowExecution struct {
	ID          string    `json:"id"`
	NamespaceID string    `json:"namespace_id"`
	Name        string    `json:"name"`
	State       string    `json:"state"`
	CreatedAt   time.Time `json:"created_at"`
}
