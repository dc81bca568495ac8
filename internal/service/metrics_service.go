package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"samplevault/internal/format"
	"samplevault/internal/models"
	"samplevault/internal/store"
	"samplevault/internal/telemetry"
)

// NamespaceMetrics are the read-only counters of one namespace.
type NamespaceMetrics struct {
	NamespaceID    string `json:"namespace_id"`
	ProjectCount   *int   `json:"project_count"`
	SamplesCount   int    `json:"samples_count"`
	MembersCount   int    `json:"members_count"`
	DiskUsageBytes int64  `json:"disk_usage_bytes"`
	DiskUsage      string `json:"disk_usage"`
}

// MetricsAggregator computes namespace counters by walking the tree. It never
// writes.
type MetricsAggregator struct {
	store    store.NamespaceStore
	observer telemetry.Observer
	logger   *slog.Logger
}

// NewMetricsAggregator constructs a MetricsAggregator.
func NewMetricsAggregator(st store.NamespaceStore, observer telemetry.Observer, logger *slog.Logger) *MetricsAggregator {
	if observer == nil {
		observer = telemetry.Nop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &MetricsAggregator{store: st, observer: observer, logger: logger}
}

// Metrics returns the counters for namespaceID.
func (m *MetricsAggregator) Metrics(ctx context.Context, namespaceID string) (NamespaceMetrics, error) {
	start := time.Now()
	metrics, err := m.metrics(ctx, namespaceID)
	m.observer.RecordOperation(telemetry.OpMetrics, time.Since(start), err)
	return metrics, err
}

func (m *MetricsAggregator) metrics(ctx context.Context, namespaceID string) (NamespaceMetrics, error) {
	id := strings.TrimSpace(namespaceID)
	if id == "" {
		return NamespaceMetrics{}, invalidArgument(fmt.Errorf("namespace id is required"), "namespace")
	}
	root, err := m.store.GetNamespace(ctx, id)
	if err != nil {
		return NamespaceMetrics{}, internalError(err)
	}
	if root == nil {
		return NamespaceMetrics{}, notFound(fmt.Errorf("namespace not found: %s", id))
	}

	subtree, err := m.descendants(ctx, []models.Namespace{*root}, map[string]struct{}{})
	if err != nil {
		return NamespaceMetrics{}, err
	}
	subtreeIDs := namespaceIDs(subtree)
	treeProjects := projectIDs(subtree)

	out := NamespaceMetrics{NamespaceID: root.ID}
	if !root.IsProject() {
		n := 0
		for _, ns := range subtree {
			if ns.ID != root.ID && ns.IsProject() {
				n++
			}
		}
		out.ProjectCount = &n
	}

	sharedProjects, err := m.sharedProjects(ctx, subtree)
	if err != nil {
		return NamespaceMetrics{}, err
	}
	treeSamples, err := m.store.ListSampleIDsByProjects(ctx, treeProjects)
	if err != nil {
		return NamespaceMetrics{}, internalError(err)
	}
	sharedSamples, err := m.store.ListSampleIDsByProjects(ctx, sharedProjects)
	if err != nil {
		return NamespaceMetrics{}, internalError(err)
	}
	samples := map[string]struct{}{}
	for _, ids := range [][]string{treeSamples, sharedSamples} {
		for _, sampleID := range ids {
			samples[sampleID] = struct{}{}
		}
	}
	out.SamplesCount = len(samples)

	lineage, err := m.ancestors(ctx, *root)
	if err != nil {
		return NamespaceMetrics{}, err
	}
	members, err := m.store.ListMemberUserIDs(ctx, lineage)
	if err != nil {
		return NamespaceMetrics{}, internalError(err)
	}
	out.MembersCount = len(members)

	runs, err := m.store.ListWorkflowExecutionIDs(ctx, subtreeIDs)
	if err != nil {
		return NamespaceMetrics{}, internalError(err)
	}
	sizes := map[string]int64{}
	for _, scope := range []struct {
		typ models.AttachableType
		ids []string
	}{
		{models.AttachableNamespace, subtreeIDs},
		{models.AttachableSample, treeSamples},
		{models.AttachableWorkflowExecution, runs},
	} {
		if len(scope.ids) == 0 {
			continue
		}
		found, err := m.store.ListAttachedBlobSizes(ctx, scope.typ, scope.ids)
		if err != nil {
			return NamespaceMetrics{}, internalError(err)
		}
		for blobID, size := range found {
			sizes[blobID] = size
		}
	}
	for _, size := range sizes {
		out.DiskUsageBytes += size
	}
	out.DiskUsage = format.HumanSize(out.DiskUsageBytes)

	m.logger.Debug("namespace metrics computed", "namespace_id", root.ID, "namespaces", len(subtree), "blobs", len(sizes))
	return out, nil
}

// descendants walks the tree breadth-first from roots. visited guards
// against cycles and is shared across walks.
func (m *MetricsAggregator) descendants(ctx context.Context, roots []models.Namespace, visited map[string]struct{}) ([]models.Namespace, error) {
	out := []models.Namespace{}
	frontier := []string{}
	for _, ns := range roots {
		if _, ok := visited[ns.ID]; ok {
			continue
		}
		visited[ns.ID] = struct{}{}
		out = append(out, ns)
		frontier = append(frontier, ns.ID)
	}
	for len(frontier) > 0 {
		children, err := m.store.ListChildNamespaces(ctx, frontier)
		if err != nil {
			return nil, internalError(err)
		}
		frontier = frontier[:0]
		for _, child := range children {
			if _, ok := visited[child.ID]; ok {
				continue
			}
			visited[child.ID] = struct{}{}
			out = append(out, child)
			frontier = append(frontier, child.ID)
		}
	}
	return out, nil
}

// sharedProjects returns projects reachable through group links that target
// groups inside subtree, including descendants of the shared namespaces.
// Projects already in subtree are not repeated.
func (m *MetricsAggregator) sharedProjects(ctx context.Context, subtree []models.Namespace) ([]string, error) {
	groups := []string{}
	visited := map[string]struct{}{}
	for _, ns := range subtree {
		visited[ns.ID] = struct{}{}
		if ns.Type == models.NamespaceGroup {
			groups = append(groups, ns.ID)
		}
	}
	if len(groups) == 0 {
		return []string{}, nil
	}
	sharedIDs, err := m.store.ListSharedNamespaceIDs(ctx, groups)
	if err != nil {
		return nil, internalError(err)
	}
	roots := []models.Namespace{}
	for _, id := range sharedIDs {
		ns, err := m.store.GetNamespace(ctx, id)
		if err != nil {
			return nil, internalError(err)
		}
		if ns != nil {
			roots = append(roots, *ns)
		}
	}
	shared, err := m.descendants(ctx, roots, visited)
	if err != nil {
		return nil, err
	}
	return projectIDs(shared), nil
}

// ancestors returns ns and every ancestor id, nearest first.
func (m *MetricsAggregator) ancestors(ctx context.Context, ns models.Namespace) ([]string, error) {
	out := []string{ns.ID}
	seen := map[string]struct{}{ns.ID: {}}
	parentID := ns.ParentID
	for parentID != "" {
		if _, ok := seen[parentID]; ok {
			break
		}
		seen[parentID] = struct{}{}
		parent, err := m.store.GetNamespace(ctx, parentID)
		if err != nil {
			return nil, internalError(err)
		}
		if parent == nil {
			break
		}
		out = append(out, parent.ID)
		parentID = parent.ParentID
	}
	return out, nil
}

func namespaceIDs(namespaces []models.Namespace) []string {
	out := make([]string, 0, len(namespaces))
	for _, ns := range namespaces {
		out = append(out, ns.ID)
	}
	return out
}

func projectIDs(namespaces []models.Namespace) []string {
	out := []string{}
	for _, ns := range namespaces {
		if ns.IsProject() {
			out = append(out, ns.ID)
		}
	}
	return out
}
