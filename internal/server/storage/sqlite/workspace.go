package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

// SearchWorkspaces returns (id, rowVersion) pairs for all workspaces of a user
func (t *sqlTx) SearchWorkspaces(ctx context.Context, userID string) ([]storage.VersionRow, error) {
	query := `
		SELECT id, row_version
		FROM workspaces
		WHERE user_id = ?
	`

	rows, err := t.tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to search workspaces: %w", err)
	}
	defer rows.Close()

	return scanVersionRows(rows)
}

// GetWorkspacesByID loads full workspace bodies for the given IDs
// Missing IDs are silently skipped
func (t *sqlTx) GetWorkspacesByID(ctx context.Context, ids []string) ([]*models.Workspace, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, user_id, path, name, row_version, created_at
		FROM workspaces
		WHERE id IN (%s)
	`, inPlaceholders(len(ids)))

	rows, err := t.tx.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get workspaces by id: %w", err)
	}
	defer rows.Close()

	var workspaces []*models.Workspace
	for rows.Next() {
		w, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		workspaces = append(workspaces, w)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return workspaces, nil
}

// GetWorkspace retrieves a workspace by ID
// Returns storage.ErrWorkspaceNotFound if missing
func (t *sqlTx) GetWorkspace(ctx context.Context, id string) (*models.Workspace, error) {
	query := `
		SELECT id, user_id, path, name, row_version, created_at
		FROM workspaces
		WHERE id = ?
	`

	w := &models.Workspace{}
	var createdAt int64

	err := t.tx.QueryRowContext(ctx, query, id).Scan(
		&w.ID,
		&w.UserID,
		&w.Path,
		&w.Name,
		&w.RowVersion,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrWorkspaceNotFound
		}
		return nil, fmt.Errorf("failed to get workspace: %w", err)
	}

	w.CreatedAt = time.Unix(createdAt, 0)
	return w, nil
}

// CreateWorkspace inserts a new workspace with row_version = 1
// Returns storage.ErrWorkspaceExists on duplicate ID
func (t *sqlTx) CreateWorkspace(ctx context.Context, w *models.Workspace) error {
	query := `
		INSERT INTO workspaces (id, user_id, path, name, row_version, created_at)
		VALUES (?, ?, ?, ?, 1, ?)
	`

	_, err := t.tx.ExecContext(ctx, query,
		w.ID,
		w.UserID,
		w.Path,
		w.Name,
		time.Now().Unix(),
	)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrWorkspaceExists
		}
		return fmt.Errorf("failed to create workspace: %w", err)
	}

	return nil
}

// scanWorkspace is a helper to scan one workspace row
func scanWorkspace(rows *sql.Rows) (*models.Workspace, error) {
	w := &models.Workspace{}
	var createdAt int64

	err := rows.Scan(
		&w.ID,
		&w.UserID,
		&w.Path,
		&w.Name,
		&w.RowVersion,
		&createdAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to scan workspace: %w", err)
	}

	w.CreatedAt = time.Unix(createdAt, 0)
	return w, nil
}
