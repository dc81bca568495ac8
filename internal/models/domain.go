package models

import (
	"fmt"
	"strings"
)

// AttachableType discriminates the owner of an attachment.
type AttachableType string

const (
	AttachableSample            AttachableType = "Sample"
	AttachableNamespace         AttachableType = "Namespace"
	AttachableWorkflowExecution AttachableType = "WorkflowExecution"
)

// NamespaceType defines the variants of a namespace tree node.
type NamespaceType string

const (
	NamespaceGroup   NamespaceType = "Group"
	NamespaceProject NamespaceType = "Project"
	NamespaceUser    NamespaceType = "User"
)

// AttachmentOrigin records which process created an attachment.
type AttachmentOrigin string

const (
	OriginUpload        AttachmentOrigin = "upload"
	OriginWorkflow      AttachmentOrigin = "workflow"
	OriginConcatenation AttachmentOrigin = "concatenation"
)

var attachableTypeAliases = map[string]AttachableType{
	"sample":             AttachableSample,
	"namespace":          AttachableNamespace,
	"project":            AttachableNamespace,
	"group":              AttachableNamespace,
	"workflow":           AttachableWorkflowExecution,
	"workflow_execution": AttachableWorkflowExecution,
	"workflowexecution":  AttachableWorkflowExecution,
}

var validNamespaceTypes = map[NamespaceType]struct{}{
	NamespaceGroup:   {},
	NamespaceProject: {},
	NamespaceUser:    {},
}

var validAttachmentOrigins = map[AttachmentOrigin]struct{}{
	OriginUpload:        {},
	OriginWorkflow:      {},
	OriginConcatenation: {},
}

// AttachableRef identifies one attachable by (type, id).
type AttachableRef struct {
	Type AttachableType `json:"type"`
	ID   string         `json:"id"`
}

func (r AttachableRef) String() string {
	return fmt.Sprintf("%s/%s", r.Type, r.ID)
}

// IsZero reports whether the reference is unset.
func (r AttachableRef) IsZero() bool {
	return r.Type == "" && r.ID == ""
}

func ParseAttachableType(raw string) (AttachableType, error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	if value == "" {
		return "", fmt.Errorf("attachable type is required")
	}
	if typ, ok := attachableTypeAliases[value]; ok {
		return typ, nil
	}
	return "", fmt.Errorf("invalid attachable type: %s", raw)
}

func ParseNamespaceType(raw string) (NamespaceType, error) {
	value := strings.TrimSpace(raw)
	if value == "" {
		return "", fmt.Errorf("namespace type is required")
	}
	for typ := range validNamespaceTypes {
		if strings.EqualFold(string(typ), value) {
			return typ, nil
		}
	}
	return "", fmt.Errorf("invalid namespace type: %s", raw)
}

func ParseAttachmentOrigin(raw string) (AttachmentOrigin, error) {
	value := AttachmentOrigin(strings.ToLower(strings.TrimSpace(raw)))
	if value == "" {
		return OriginUpload, nil
	}
	if _, ok := validAttachmentOrigins[value]; !ok {
		return "", fmt.Errorf("invalid attachment origin: %s", value)
	}
	return value, nil
}
