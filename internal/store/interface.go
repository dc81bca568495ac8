package store

import (
	"context"
	"time"

	"samplevault/internal/models"
)

// AttachmentStore is the metadata persistence surface for attachments and blobs.
type AttachmentStore interface {
	CreateAttachment(ctx context.Context, attachment *models.Attachment) error
	GetAttachment(ctx context.Context, id string) (*models.Attachment, error)
	ListAttachments(ctx context.Context, ref models.AttachableRef) ([]models.Attachment, error)
	ListAttachmentsByIDs(ctx context.Context, ids []string) ([]models.Attachment, error)
	FindAttachment(ctx context.Context, ref models.AttachableRef, filename, checksum string) (*models.Attachment, error)
	CountAttachments(ctx context.Context, ref models.AttachableRef) (int, error)
	UpdateAttachmentMetadata(ctx context.Context, updates []MetadataUpdate) error
	LinkPair(ctx context.Context, forwardID, reverseID string) error
	DeleteAttachment(ctx context.Context, id string) (*DeleteResult, error)

	CreateBlob(ctx context.Context, blob *models.Blob) error
	GetBlob(ctx context.Context, id string) (*models.Blob, error)
	ListUnreferencedBlobs(ctx context.Context, createdBefore time.Time, limit int) ([]models.Blob, error)
	DeleteUnreferencedBlob(ctx context.Context, id string) (deleted bool, sharing int, err error)

	AttachableExists(ctx context.Context, ref models.AttachableRef) (bool, error)
}

// NamespaceStore reads and writes the namespace tree the metrics walk.
//
// Kept separate from AttachmentStore so the attachment paths never depend on
// tree traversal.
type NamespaceStore interface {
	CreateNamespace(ctx context.Context, ns *models.Namespace) error
	GetNamespace(ctx context.Context, id string) (*models.Namespace, error)
	ListChildNamespaces(ctx context.Context, parentIDs []string) ([]models.Namespace, error)
	CreateSample(ctx context.Context, sample *models.Sample) error
	GetSample(ctx context.Context, id string) (*models.Sample, error)
	ListSampleIDsByProjects(ctx context.Context, projectIDs []string) ([]string, error)
	AddMember(ctx context.Context, member models.Member) error
	ListMemberUserIDs(ctx context.Context, namespaceIDs []string) ([]string, error)
	CreateGroupLink(ctx context.Context, link models.GroupLink) error
	ListSharedNamespaceIDs(ctx context.Context, groupIDs []string) ([]string, error)
	CreateWorkflowExecution(ctx context.Context, run *models.WorkflowExecution) error
	GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error)
	ListWorkflowExecutionIDs(ctx context.Context, namespaceIDs []string) ([]string, error)
	ListAttachedBlobSizes(ctx context.Context, attachableType models.AttachableType, ids []string) (map[string]int64, error)
}

var (
	_ AttachmentStore = (*Store)(nil)
	_ NamespaceStore  = (*Store)(nil)
)
