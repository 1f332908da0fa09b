package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

const folderColumns = `id, user_id, workspace_id, parent_folder_id, name, type, row_version, created_at`

// SearchFolders returns (id, rowVersion) pairs for all folders of a user
func (t *sqlTx) SearchFolders(ctx context.Context, userID string) ([]storage.VersionRow, error) {
	query := `
		SELECT id, row_version
		FROM folders
		WHERE user_id = ?
	`

	rows, err := t.tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to search folders: %w", err)
	}
	defer rows.Close()

	return scanVersionRows(rows)
}

// GetFoldersByID loads full folder bodies for the given IDs
func (t *sqlTx) GetFoldersByID(ctx context.Context, ids []string) ([]*models.Folder, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM folders
		WHERE id IN (%s)
	`, folderColumns, inPlaceholders(len(ids)))

	rows, err := t.tx.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get folders by id: %w", err)
	}
	defer rows.Close()

	return scanFolders(rows)
}

// GetFolder retrieves a folder by ID
// Returns storage.ErrFolderNotFound if missing
func (t *sqlTx) GetFolder(ctx context.Context, id string) (*models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM folders
		WHERE id = ?
	`, folderColumns)

	f, err := scanFolderRow(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFolderNotFound
		}
		return nil, fmt.Errorf("failed to get folder: %w", err)
	}

	return f, nil
}

// CreateFolder inserts a new folder with row_version = 1.
// Проверка родителя выполняется атомарно с записью: INSERT ... SELECT
// вставляет строку только если родитель существует в том же workspace.
// Returns storage.ErrFolderExists on duplicate ID and
// storage.ErrParentFolderNotFound when the parent check fails.
func (t *sqlTx) CreateFolder(ctx context.Context, f *models.Folder) error {
	query := `
		INSERT INTO folders (id, user_id, workspace_id, parent_folder_id, name, type, row_version, created_at)
		SELECT ?, ?, ?, ?, ?, ?, 1, ?
		WHERE ? = ''
		   OR EXISTS (
			SELECT 1 FROM folders
			WHERE id = ? AND workspace_id = ?
		   )
	`

	res, err := t.tx.ExecContext(ctx, query,
		f.ID,
		f.UserID,
		f.WorkspaceID,
		nullString(f.ParentFolderID),
		f.Name,
		f.Type,
		time.Now().Unix(),
		f.ParentFolderID,
		f.ParentFolderID,
		f.WorkspaceID,
	)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrFolderExists
		}
		return fmt.Errorf("failed to create folder: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrParentFolderNotFound
	}

	return nil
}

// UpdateFolder applies a partial update conditioned on ownership.
// При смене родителя дополнительно проверяется, что новый родитель
// существует в том же workspace, что и сама папка.
func (t *sqlTx) UpdateFolder(ctx context.Context, userID string, upd storage.FolderUpdate) (*models.Folder, error) {
	folder, err := t.GetFolder(ctx, upd.ID)
	if err != nil {
		return nil, err
	}
	if folder.UserID != userID {
		// Не раскрываем существование чужой папки
		return nil, storage.ErrFolderNotFound
	}

	var sets []string
	var args []any

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.ParentFolderID != nil {
		if *upd.ParentFolderID != "" {
			var exists int
			err := t.tx.QueryRowContext(ctx,
				`SELECT 1 FROM folders WHERE id = ? AND workspace_id = ?`,
				*upd.ParentFolderID, folder.WorkspaceID,
			).Scan(&exists)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, storage.ErrParentFolderNotFound
			}
			if err != nil {
				return nil, fmt.Errorf("failed to check parent folder: %w", err)
			}
		}
		sets = append(sets, "parent_folder_id = ?")
		args = append(args, nullString(*upd.ParentFolderID))
	}

	if len(sets) == 0 {
		// Пустое обновление - возвращаем папку как есть, версия не растет
		return folder, nil
	}

	sets = append(sets, "row_version = row_version + 1")
	args = append(args, upd.ID, userID)

	query := fmt.Sprintf(`UPDATE folders SET %s WHERE id = ? AND user_id = ?`, strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update folder: %w", err)
	}

	return t.GetFolder(ctx, upd.ID)
}

// HasFleetingFolder reports whether the workspace already contains
// a fleeting folder
func (t *sqlTx) HasFleetingFolder(ctx context.Context, workspaceID string) (bool, error) {
	query := `
		SELECT 1 FROM folders
		WHERE workspace_id = ? AND type = ?
		LIMIT 1
	`

	var one int
	err := t.tx.QueryRowContext(ctx, query, workspaceID, models.FolderTypeFleeting).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check fleeting folder: %w", err)
	}

	return true, nil
}

// ListWorkspaceFolders returns all folders of a workspace
func (t *sqlTx) ListWorkspaceFolders(ctx context.Context, workspaceID string) ([]*models.Folder, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM folders
		WHERE workspace_id = ?
	`, folderColumns)

	rows, err := t.tx.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace folders: %w", err)
	}
	defer rows.Close()

	return scanFolders(rows)
}

// DeleteFolders removes folders by ID, missing IDs are ignored
func (t *sqlTx) DeleteFolders(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM folders WHERE id IN (%s)`, inPlaceholders(len(ids)))
	if _, err := t.tx.ExecContext(ctx, query, idsToArgs(ids)...); err != nil {
		return fmt.Errorf("failed to delete folders: %w", err)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan helpers
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFolderRow(row rowScanner) (*models.Folder, error) {
	f := &models.Folder{}
	var parentID sql.NullString
	var createdAt int64

	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.WorkspaceID,
		&parentID,
		&f.Name,
		&f.Type,
		&f.RowVersion,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	f.ParentFolderID = parentID.String
	f.CreatedAt = time.Unix(createdAt, 0)
	return f, nil
}

func scanFolders(rows *sql.Rows) ([]*models.Folder, error) {
	var folders []*models.Folder

	for rows.Next() {
		f, err := scanFolderRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan folder: %w", err)
		}
		folders = append(folders, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return folders, nil
}

// nullString конвертирует пустую строку в NULL
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
