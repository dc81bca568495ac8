package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"samplevault/internal/models"
)

// seedMetricsTree extends the harness tree to:
//
//	g-root (group)
//	├── p-one (project)  s-1, s-2, wf-1
//	└── g-sub (group)
//	    └── p-two (project)  s-3
//	g-other (group)
//	└── p-shared (project, shared with g-sub and g-root)  s-4
//	g-empty (group, owned by u-5)
func seedMetricsTree(t *testing.T, h *harness) {
	t.Helper()
	for _, ns := range []*models.Namespace{
		{ID: "g-sub", Type: models.NamespaceGroup, Name: "sub", ParentID: "g-root"},
		{ID: "p-two", Type: models.NamespaceProject, Name: "two", ParentID: "g-sub"},
		{ID: "g-other", Type: models.NamespaceGroup, Name: "other"},
		{ID: "p-shared", Type: models.NamespaceProject, Name: "shared", ParentID: "g-other"},
		{ID: "g-empty", Type: models.NamespaceGroup, Name: "empty"},
	} {
		require.NoError(t, h.store.CreateNamespace(h.ctx, ns))
	}
	for _, sample := range []*models.Sample{
		{ID: "s-3", ProjectID: "p-two", Name: "third"},
		{ID: "s-4", ProjectID: "p-shared", Name: "fourth"},
	} {
		require.NoError(t, h.store.CreateSample(h.ctx, sample))
	}
	for _, m := range []models.Member{
		{NamespaceID: "g-root", UserID: "u-1", AccessLevel: 50},
		{NamespaceID: "g-sub", UserID: "u-2", AccessLevel: 30},
		{NamespaceID: "p-two", UserID: "u-1", AccessLevel: 40},
		{NamespaceID: "p-two", UserID: "u-3", AccessLevel: 10},
		{NamespaceID: "g-other", UserID: "u-4", AccessLevel: 50},
		{NamespaceID: "g-empty", UserID: "u-5", AccessLevel: 50},
	} {
		require.NoError(t, h.store.AddMember(h.ctx, m))
	}
	for _, link := range []models.GroupLink{
		{NamespaceID: "p-shared", GroupID: "g-sub", GroupAccessLevel: 30},
		{NamespaceID: "p-shared", GroupID: "g-root", GroupAccessLevel: 30},
		// Shares an ancestor back into its own subtree.
		{NamespaceID: "g-root", GroupID: "g-sub", GroupAccessLevel: 10},
	} {
		require.NoError(t, h.store.CreateGroupLink(h.ctx, link))
	}
}

func TestMetricsForGroup(t *testing.T) {
	h := newHarness(t, Options{})
	seedMetricsTree(t, h)

	reads := h.upload(t, "reads.fastq", strings.Repeat("A", 1000))
	_, err := h.engine.Attachments.Attach(h.ctx, sampleOne, reads.ID)
	require.NoError(t, err)
	// The workflow output references the very same blob.
	_, err = h.engine.Attachments.AttachBlob(h.ctx, AttachInput{Target: workflow, BlobID: reads.ID, Origin: models.OriginWorkflow})
	require.NoError(t, err)
	h.attach(t, models.AttachableRef{Type: models.AttachableNamespace, ID: "p-two"}, "plan.txt", strings.Repeat("B", 536))
	h.attach(t, models.AttachableRef{Type: models.AttachableSample, ID: "s-3"}, "more.fastq", strings.Repeat("C", 512))

	m, err := h.engine.Metrics.Metrics(h.ctx, "g-root")
	require.NoError(t, err)
	require.NotNil(t, m.ProjectCount)
	require.Equal(t, 2, *m.ProjectCount)
	require.Equal(t, 4, m.SamplesCount)
	require.Equal(t, 1, m.MembersCount)
	require.Equal(t, int64(1000+536+512), m.DiskUsageBytes)
	require.Equal(t, "2 KB", m.DiskUsage)
}

func TestMetricsForSubgroupAndProject(t *testing.T) {
	h := newHarness(t, Options{})
	seedMetricsTree(t, h)

	sub, err := h.engine.Metrics.Metrics(h.ctx, "g-sub")
	require.NoError(t, err)
	require.Equal(t, 1, *sub.ProjectCount)
	// s-3 from the tree; s-4 via p-shared and both p-one samples via g-root,
	// which is shared back with g-sub.
	require.Equal(t, 4, sub.SamplesCount)
	require.Equal(t, 2, sub.MembersCount)

	project, err := h.engine.Metrics.Metrics(h.ctx, "p-two")
	require.NoError(t, err)
	require.Nil(t, project.ProjectCount)
	require.Equal(t, 1, project.SamplesCount)
	require.Equal(t, 3, project.MembersCount)
	require.Equal(t, "0 Bytes", project.DiskUsage)
}

func TestMetricsForEmptyNamespace(t *testing.T) {
	h := newHarness(t, Options{})
	seedMetricsTree(t, h)

	m, err := h.engine.Metrics.Metrics(h.ctx, "g-empty")
	require.NoError(t, err)
	require.Equal(t, 0, *m.ProjectCount)
	require.Zero(t, m.SamplesCount)
	require.Equal(t, 1, m.MembersCount)
	require.Zero(t, m.DiskUsageBytes)
	require.Equal(t, "0 Bytes", m.DiskUsage)
}

func TestMetricsUnknownNamespace(t *testing.T) {
	h := newHarness(t, Options{})
	_, err := h.engine.Metrics.Metrics(h.ctx, "nope")
	requireKind(t, err, KindNotFound)

	_, err = h.engine.Metrics.Metrics(h.ctx, " ")
	requireKind(t, err, KindInvalidArgument)
}
