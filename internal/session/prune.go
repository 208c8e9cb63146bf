package session

import (
	"context"
	"fmt"
	"time"
)

// PruneByAge removes sessions last updated more than maxAgeDays ago.
// Running sessions are never removed. If dryRun is true nothing is deleted;
// the ids that would be removed are returned either way.
func (s *Store) PruneByAge(ctx context.Context, maxAgeDays int, dryRun bool) ([]string, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	ids, err := s.pruneCandidates(ctx,
		`SELECT id FROM sessions WHERE status != ? AND updated_at < ? ORDER BY updated_at`,
		string(StatusRunning), cutoff,
	)
	if err != nil {
		return nil, err
	}
	return s.prune(ctx, ids, dryRun)
}

// PruneKeepRecent removes all but the keep most recently updated sessions.
// Running sessions are never removed and do not count towards keep.
func (s *Store) PruneKeepRecent(ctx context.Context, keep int, dryRun bool) ([]string, error) {
	ids, err := s.pruneCandidates(ctx,
		`SELECT id FROM sessions WHERE status != ? ORDER BY updated_at DESC LIMIT -1 OFFSET ?`,
		string(StatusRunning), keep,
	)
	if err != nil {
		return nil, err
	}
	return s.prune(ctx, ids, dryRun)
}

func (s *Store) pruneCandidates(ctx context.Context, query string, args ...any) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prune candidates: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan prune candidate: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ids, nil
}

func (s *Store) prune(ctx context.Context, ids []string, dryRun bool) ([]string, error) {
	if dryRun {
		return ids, nil
	}
	var pruned []string
	for _, id := range ids {
		if _, err := s.DeleteSession(ctx, id); err != nil {
			return pruned, fmt.Errorf("removing %s: %w", id, err)
		}
		pruned = append(pruned, id)
	}
	return pruned, nil
}
