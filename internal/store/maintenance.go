package store

import (
	"context"
)

// StoreInfo summarizes the database contents.
type StoreInfo struct {
	Dialect        string         `json:"dialect"`
	SchemaVersion  int            `json:"schema_version"`
	Counts         map[string]int `json:"counts"`
	TotalBlobBytes int64          `json:"total_blob_bytes"`
}

var infoTables = []string{"namespaces", "samples", "workflow_executions", "attachments", "blobs"}

// StoreInfo returns schema version and row counts.
func (s *Store) StoreInfo(ctx context.Context) (*StoreInfo, error) {
	version, err := currentVersion(s.db)
	if err != nil {
		return nil, err
	}

	info := &StoreInfo{
		Dialect:       s.dialect.name,
		SchemaVersion: version,
		Counts:        make(map[string]int, len(infoTables)),
	}
	for _, table := range infoTables {
		var count int
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count); err != nil {
			return nil, err
		}
		info.Counts[table] = count
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COALESCE(SUM(byte_size), 0) FROM blobs").Scan(&info.TotalBlobBytes); err != nil {
		return nil, err
	}
	return info, nil
}
