package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"samplevault/internal/models"
)

const (
	namespaceColumns = "id, type, name, path, parent_id, created_at"
	sampleColumns    = "id, project_id, name, attachments_updated_at, created_at"
	workflowColumns  = "id, namespace_id, name, state, created_at"
)

// CreateNamespace inserts one namespace node.
func (s *Store) CreateNamespace(ctx context.Context, ns *models.Namespace) error {
	if ns == nil {
		return fmt.Errorf("namespace is required")
	}
	if strings.TrimSpace(ns.ID) == "" {
		return fmt.Errorf("namespace id is required")
	}
	if ns.CreatedAt.IsZero() {
		ns.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO namespaces (`+namespaceColumns+`) VALUES (?, ?, ?, ?, ?, ?)
	`), ns.ID, string(ns.Type), ns.Name, nullIfEmpty(ns.Path), nullIfEmpty(ns.ParentID), dbFormatTime(ns.CreatedAt))
	return err
}

// GetNamespace returns one namespace, or nil when absent.
func (s *Store) GetNamespace(ctx context.Context, id string) (*models.Namespace, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+namespaceColumns+` FROM namespaces WHERE id = ?`), id)
	return scanNamespace(row)
}

// ListChildNamespaces returns the direct children of the given parents.
func (s *Store) ListChildNamespaces(ctx context.Context, parentIDs []string) ([]models.Namespace, error) {
	out := []models.Namespace{}
	for _, chunk := range chunkStrings(parentIDs, maxInArgs) {
		rows, err := s.db.QueryContext(ctx, s.q(`
			SELECT `+namespaceColumns+` FROM namespaces
			WHERE parent_id IN (`+placeholders(len(chunk))+`)
			ORDER BY id ASC
		`), stringArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			ns, err := scanNamespace(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			if ns != nil {
				out = append(out, *ns)
			}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

// CreateSample inserts one sample under a project namespace.
func (s *Store) CreateSample(ctx context.Context, sample *models.Sample) error {
	if sample == nil {
		return fmt.Errorf("sample is required")
	}
	if strings.TrimSpace(sample.ID) == "" || strings.TrimSpace(sample.ProjectID) == "" {
		return fmt.Errorf("sample id and project_id are required")
	}
	if sample.CreatedAt.IsZero() {
		sample.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO samples (`+sampleColumns+`) VALUES (?, ?, ?, ?, ?)
	`), sample.ID, sample.ProjectID, sample.Name, nullTime(sample.AttachmentsUpdatedAt), dbFormatTime(sample.CreatedAt))
	return err
}

// GetSample returns one sample, or nil when absent.
func (s *Store) GetSample(ctx context.Context, id string) (*models.Sample, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+sampleColumns+` FROM samples WHERE id = ?`), id)
	return scanSample(row)
}

// ListSampleIDsByProjects returns the ids of samples owned by any of projectIDs.
func (s *Store) ListSampleIDsByProjects(ctx context.Context, projectIDs []string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM samples WHERE project_id IN (%s) ORDER BY id ASC`, projectIDs)
}

// AddMember grants userID access to a namespace, updating the level when
// the membership already exists.
func (s *Store) AddMember(ctx context.Context, member models.Member) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO members (namespace_id, user_id, access_level) VALUES (?, ?, ?)
		ON CONFLICT (namespace_id, user_id) DO UPDATE SET access_level = excluded.access_level
	`), member.NamespaceID, member.UserID, member.AccessLevel)
	return err
}

// ListMemberUserIDs returns the distinct users holding direct membership in
// any of namespaceIDs.
func (s *Store) ListMemberUserIDs(ctx context.Context, namespaceIDs []string) ([]string, error) {
	return s.listIDs(ctx, `SELECT DISTINCT user_id FROM members WHERE namespace_id IN (%s) ORDER BY user_id ASC`, namespaceIDs)
}

// CreateGroupLink shares a namespace with a group.
func (s *Store) CreateGroupLink(ctx context.Context, link models.GroupLink) error {
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO namespace_group_links (namespace_id, group_id, group_access_level) VALUES (?, ?, ?)
		ON CONFLICT (namespace_id, group_id) DO UPDATE SET group_access_level = excluded.group_access_level
	`), link.NamespaceID, link.GroupID, link.GroupAccessLevel)
	return err
}

// ListSharedNamespaceIDs returns namespaces shared with any of groupIDs.
func (s *Store) ListSharedNamespaceIDs(ctx context.Context, groupIDs []string) ([]string, error) {
	return s.listIDs(ctx, `SELECT DISTINCT namespace_id FROM namespace_group_links WHERE group_id IN (%s) ORDER BY namespace_id ASC`, groupIDs)
}

// CreateWorkflowExecution inserts one workflow execution.
func (s *Store) CreateWorkflowExecution(ctx context.Context, run *models.WorkflowExecution) error {
	if run == nil {
		return fmt.Errorf("workflow execution is required")
	}
	if strings.TrimSpace(run.ID) == "" || strings.TrimSpace(run.NamespaceID) == "" {
		return fmt.Errorf("workflow execution id and namespace_id are required")
	}
	if run.State == "" {
		run.State = "new"
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, s.q(`
		INSERT INTO workflow_executions (`+workflowColumns+`) VALUES (?, ?, ?, ?, ?)
	`), run.ID, run.NamespaceID, run.Name, run.State, dbFormatTime(run.CreatedAt))
	return err
}

// GetWorkflowExecution returns one workflow execution, or nil when absent.
func (s *Store) GetWorkflowExecution(ctx context.Context, id string) (*models.WorkflowExecution, error) {
	row := s.db.QueryRowContext(ctx, s.q(`SELECT `+workflowColumns+` FROM workflow_executions WHERE id = ?`), id)
	run := models.WorkflowExecution{}
	var createdAt string
	if err := row.Scan(&run.ID, &run.NamespaceID, &run.Name, &run.State, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	run.CreatedAt = parsed
	return &run, nil
}

// ListWorkflowExecutionIDs returns runs scoped to any of namespaceIDs.
func (s *Store) ListWorkflowExecutionIDs(ctx context.Context, namespaceIDs []string) ([]string, error) {
	return s.listIDs(ctx, `SELECT id FROM workflow_executions WHERE namespace_id IN (%s) ORDER BY id ASC`, namespaceIDs)
}

// AttachableExists reports whether ref names an existing row.
func (s *Store) AttachableExists(ctx context.Context, ref models.AttachableRef) (bool, error) {
	var table string
	switch ref.Type {
	case models.AttachableSample:
		table = "samples"
	case models.AttachableNamespace:
		table = "namespaces"
	case models.AttachableWorkflowExecution:
		table = "workflow_executions"
	default:
		return false, fmt.Errorf("unknown attachable type %q", ref.Type)
	}
	var one int
	err := s.db.QueryRowContext(ctx, s.q(`SELECT 1 FROM `+table+` WHERE id = ? LIMIT 1`), ref.ID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// listIDs runs a single-column query whose %s is an IN list, chunking keys.
func (s *Store) listIDs(ctx context.Context, queryFmt string, keys []string) ([]string, error) {
	out := []string{}
	seen := map[string]struct{}{}
	for _, chunk := range chunkStrings(keys, maxInArgs) {
		query := fmt.Sprintf(queryFmt, placeholders(len(chunk)))
		rows, err := s.db.QueryContext(ctx, s.q(query), stringArgs(chunk)...)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, err
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return nil, err
		}
		rows.Close()
	}
	return out, nil
}

func scanNamespace(scanner interface {
	Scan(dest ...any) error
}) (*models.Namespace, error) {
	ns := models.Namespace{}
	var nsType string
	var path sql.NullString
	var parentID sql.NullString
	var createdAt string

	if err := scanner.Scan(&ns.ID, &nsType, &ns.Name, &path, &parentID, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	ns.Type = models.NamespaceType(nsType)
	ns.Path = path.String
	ns.ParentID = parentID.String

	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	ns.CreatedAt = parsed
	return &ns, nil
}

func scanSample(scanner interface {
	Scan(dest ...any) error
}) (*models.Sample, error) {
	sample := models.Sample{}
	var touched sql.NullString
	var createdAt string

	if err := scanner.Scan(&sample.ID, &sample.ProjectID, &sample.Name, &touched, &createdAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	if touched.Valid && touched.String != "" {
		parsed, err := dbParseTime(touched.String)
		if err != nil {
			return nil, err
		}
		sample.AttachmentsUpdatedAt = &parsed
	}

	parsed, err := dbParseTime(createdAt)
	if err != nil {
		return nil, err
	}
	sample.CreatedAt = parsed
	return &sample, nil
}
