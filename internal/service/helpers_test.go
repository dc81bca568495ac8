package service

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"samplevault/internal/blobstore"
	"samplevault/internal/models"
	"samplevault/internal/store"
)

type harness struct {
	ctx    context.Context
	store  *store.Store
	blobs  *blobstore.Memory
	engine *Engine
}

var (
	sampleOne = models.AttachableRef{Type: models.AttachableSample, ID: "s-1"}
	sampleTwo = models.AttachableRef{Type: models.AttachableSample, ID: "s-2"}
	workflow  = models.AttachableRef{Type: models.AttachableWorkflowExecution, ID: "wf-1"}
	projectP1 = models.AttachableRef{Type: models.AttachableNamespace, ID: "p-one"}
)

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "service.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	if opts.Logger == nil {
		opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	blobs := blobstore.NewMemory()
	engine, err := NewEngine(st, blobs, opts)
	require.NoError(t, err)

	h := &harness{ctx: context.Background(), store: st, blobs: blobs, engine: engine}
	h.seed(t)
	return h
}

func (h *harness) seed(t *testing.T) {
	t.Helper()
	for _, ns := range []*models.Namespace{
		{ID: "g-root", Type: models.NamespaceGroup, Name: "root"},
		{ID: "p-one", Type: models.NamespaceProject, Name: "one", ParentID: "g-root"},
	} {
		require.NoError(t, h.store.CreateNamespace(h.ctx, ns))
	}
	for _, sample := range []*models.Sample{
		{ID: "s-1", ProjectID: "p-one", Name: "first"},
		{ID: "s-2", ProjectID: "p-one", Name: "second"},
	} {
		require.NoError(t, h.store.CreateSample(h.ctx, sample))
	}
	require.NoError(t, h.store.CreateWorkflowExecution(h.ctx, &models.WorkflowExecution{ID: "wf-1", NamespaceID: "p-one", Name: "assembly"}))
}

func (h *harness) upload(t *testing.T, filename, content string) models.Blob {
	t.Helper()
	blob, err := h.engine.Attachments.RegisterUpload(h.ctx, filename, "", strings.NewReader(content))
	require.NoError(t, err)
	return blob
}

func (h *harness) attach(t *testing.T, target models.AttachableRef, filename, content string) models.Attachment {
	t.Helper()
	blob := h.upload(t, filename, content)
	attachment, err := h.engine.Attachments.Attach(h.ctx, target, blob.ID)
	require.NoError(t, err)
	return attachment
}

func (h *harness) attachInput(t *testing.T, in AttachInput, filename, content string) models.Attachment {
	t.Helper()
	in.BlobID = h.upload(t, filename, content).ID
	attachment, err := h.engine.Attachments.AttachBlob(h.ctx, in)
	require.NoError(t, err)
	return attachment
}

func (h *harness) get(t *testing.T, id string) models.Attachment {
	t.Helper()
	attachment, err := h.engine.Attachments.Get(h.ctx, id)
	require.NoError(t, err)
	return attachment
}

func (h *harness) list(t *testing.T, target models.AttachableRef) []models.Attachment {
	t.Helper()
	attachments, err := h.engine.Attachments.List(h.ctx, target)
	require.NoError(t, err)
	return attachments
}

func (h *harness) content(t *testing.T, id string) string {
	t.Helper()
	c, err := h.engine.Attachments.Open(h.ctx, id)
	require.NoError(t, err)
	defer c.Reader.Close()
	data, err := io.ReadAll(c.Reader)
	require.NoError(t, err)
	return string(data)
}

func requireKind(t *testing.T, err error, kind Kind) {
	t.Helper()
	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
}
