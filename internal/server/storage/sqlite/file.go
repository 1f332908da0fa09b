package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

const fileColumns = `id, user_id, workspace_id, parent_folder_ids, name, file_type, linked_file_id, content, content_link, row_version, created_at`

// SearchFiles returns (id, rowVersion) pairs for all files of a user
func (t *sqlTx) SearchFiles(ctx context.Context, userID string) ([]storage.VersionRow, error) {
	query := `
		SELECT id, row_version
		FROM files
		WHERE user_id = ?
	`

	rows, err := t.tx.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to search files: %w", err)
	}
	defer rows.Close()

	return scanVersionRows(rows)
}

// GetFilesByID loads full file bodies for the given IDs
func (t *sqlTx) GetFilesByID(ctx context.Context, ids []string) ([]*models.File, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		WHERE id IN (%s)
	`, fileColumns, inPlaceholders(len(ids)))

	rows, err := t.tx.QueryContext(ctx, query, idsToArgs(ids)...)
	if err != nil {
		return nil, fmt.Errorf("failed to get files by id: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// GetFile retrieves a file by ID
// Returns storage.ErrFileNotFound if missing
func (t *sqlTx) GetFile(ctx context.Context, id string) (*models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		WHERE id = ?
	`, fileColumns)

	f, err := scanFileRow(t.tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrFileNotFound
		}
		return nil, fmt.Errorf("failed to get file: %w", err)
	}

	return f, nil
}

// CreateFile inserts a new file with row_version = 1.
// Returns storage.ErrFileExists on duplicate ID
func (t *sqlTx) CreateFile(ctx context.Context, f *models.File) error {
	parents, err := marshalParents(f.ParentFolderIDs)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO files (id, user_id, workspace_id, parent_folder_ids, name, file_type, linked_file_id, content, content_link, row_version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`

	_, err = t.tx.ExecContext(ctx, query,
		f.ID,
		f.UserID,
		f.WorkspaceID,
		parents,
		f.Name,
		f.FileType,
		nullString(f.LinkedFileID),
		f.Content,
		nullString(f.ContentLink),
		time.Now().Unix(),
	)
	if err != nil {
		if isConstraintErr(err) {
			return storage.ErrFileExists
		}
		return fmt.Errorf("failed to create file: %w", err)
	}

	return nil
}

// UpdateFile applies a partial update conditioned on ownership
func (t *sqlTx) UpdateFile(ctx context.Context, userID string, upd storage.FileUpdate) (*models.File, error) {
	file, err := t.GetFile(ctx, upd.ID)
	if err != nil {
		return nil, err
	}
	if file.UserID != userID {
		return nil, storage.ErrFileNotFound
	}

	var sets []string
	var args []any

	if upd.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *upd.Name)
	}
	if upd.Content != nil {
		sets = append(sets, "content = ?")
		args = append(args, *upd.Content)
	}
	if upd.ContentLink != nil {
		sets = append(sets, "content_link = ?")
		args = append(args, nullString(*upd.ContentLink))
	}
	if upd.LinkedFileID != nil {
		sets = append(sets, "linked_file_id = ?")
		args = append(args, nullString(*upd.LinkedFileID))
	}
	if upd.ParentFolderIDs != nil {
		parents, err := marshalParents(*upd.ParentFolderIDs)
		if err != nil {
			return nil, err
		}
		sets = append(sets, "parent_folder_ids = ?")
		args = append(args, parents)
	}

	if len(sets) == 0 {
		return file, nil
	}

	sets = append(sets, "row_version = row_version + 1")
	args = append(args, upd.ID, userID)

	query := fmt.Sprintf(`UPDATE files SET %s WHERE id = ? AND user_id = ?`, strings.Join(sets, ", "))
	if _, err := t.tx.ExecContext(ctx, query, args...); err != nil {
		return nil, fmt.Errorf("failed to update file: %w", err)
	}

	return t.GetFile(ctx, upd.ID)
}

// ListWorkspaceFiles returns all files of a workspace
func (t *sqlTx) ListWorkspaceFiles(ctx context.Context, workspaceID string) ([]*models.File, error) {
	query := fmt.Sprintf(`
		SELECT %s
		FROM files
		WHERE workspace_id = ?
	`, fileColumns)

	rows, err := t.tx.QueryContext(ctx, query, workspaceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list workspace files: %w", err)
	}
	defer rows.Close()

	return scanFiles(rows)
}

// SetFileParents replaces the parent folder list of a file,
// bumping its row version
func (t *sqlTx) SetFileParents(ctx context.Context, fileID string, parentIDs []string) error {
	parents, err := marshalParents(parentIDs)
	if err != nil {
		return err
	}

	query := `
		UPDATE files
		SET parent_folder_ids = ?, row_version = row_version + 1
		WHERE id = ?
	`

	res, err := t.tx.ExecContext(ctx, query, parents, fileID)
	if err != nil {
		return fmt.Errorf("failed to set file parents: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		return storage.ErrFileNotFound
	}

	return nil
}

// DeleteFiles removes files by ID, missing IDs are ignored
func (t *sqlTx) DeleteFiles(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := fmt.Sprintf(`DELETE FROM files WHERE id IN (%s)`, inPlaceholders(len(ids)))
	if _, err := t.tx.ExecContext(ctx, query, idsToArgs(ids)...); err != nil {
		return fmt.Errorf("failed to delete files: %w", err)
	}

	return nil
}

func scanFileRow(row rowScanner) (*models.File, error) {
	f := &models.File{}
	var parents string
	var linkedID, contentLink sql.NullString
	var createdAt int64

	err := row.Scan(
		&f.ID,
		&f.UserID,
		&f.WorkspaceID,
		&parents,
		&f.Name,
		&f.FileType,
		&linkedID,
		&f.Content,
		&contentLink,
		&f.RowVersion,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(parents), &f.ParentFolderIDs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal parent folder ids: %w", err)
	}

	f.LinkedFileID = linkedID.String
	f.ContentLink = contentLink.String
	f.CreatedAt = time.Unix(createdAt, 0)
	return f, nil
}

func scanFiles(rows *sql.Rows) ([]*models.File, error) {
	var files []*models.File

	for rows.Next() {
		f, err := scanFileRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan file: %w", err)
		}
		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration error: %w", err)
	}

	return files, nil
}

// marshalParents сериализует список родительских папок в JSON для хранения
func marshalParents(ids []string) (string, error) {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return "", fmt.Errorf("failed to marshal parent folder ids: %w", err)
	}
	return string(data), nil
}
