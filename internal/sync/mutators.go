package sync

import (
	"context"
	"errors"
	"fmt"
	"sort"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

// mutate dispatches a decoded operation to its handler. Исчерпывающий
// type switch по закрытому множеству операций: default недостижим для
// значений, произведенных decodeMutation.
func (p *Processor) mutate(ctx context.Context, tx storage.Tx, userID string, op Op) (Affected, error) {
	switch op := op.(type) {
	case *CreateWorkspaceOp:
		return createWorkspace(ctx, tx, userID, op)
	case *CreateFolderOp:
		return createFolder(ctx, tx, userID, op)
	case *UpdateFolderOp:
		return updateFolder(ctx, tx, userID, op)
	case *DeleteFolderOp:
		return deleteFolder(ctx, tx, userID, op)
	case *CreateFileOp:
		return createFile(ctx, tx, userID, op)
	case *UpdateFileOp:
		return updateFile(ctx, tx, userID, op)
	case *DeleteFileOp:
		return deleteFile(ctx, tx, userID, op)
	default:
		return newAffected(), fmt.Errorf("%w: %s", ErrUnknownMutation, op.name())
	}
}

// createWorkspace creates a new workspace owned by the authenticated user
func createWorkspace(ctx context.Context, tx storage.Tx, userID string, op *CreateWorkspaceOp) (Affected, error) {
	affected := newAffected()

	// Клиентским аргументам не доверяем: владелец должен совпадать
	// с аутентифицированным пользователем
	if op.Workspace.UserID != userID {
		return affected, fmt.Errorf("%w: workspace.userID", ErrOwnershipMismatch)
	}

	err := tx.CreateWorkspace(ctx, &models.Workspace{
		ID:     op.Workspace.ID,
		UserID: op.Workspace.UserID,
		Path:   op.Workspace.Path,
		Name:   op.Workspace.Name,
	})
	if err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(op.Workspace.ID)
	return affected, nil
}

// createFolder creates a folder after re-validating ownership, workspace
// membership and the one-fleeting-folder-per-workspace rule
func createFolder(ctx context.Context, tx storage.Tx, userID string, op *CreateFolderOp) (Affected, error) {
	affected := newAffected()

	if op.Folder.UserID != userID {
		return affected, fmt.Errorf("%w: folder.userID", ErrOwnershipMismatch)
	}

	workspace, err := tx.GetWorkspace(ctx, op.Folder.WorkspaceID)
	if err != nil {
		return affected, err
	}
	if workspace.UserID != userID {
		return affected, fmt.Errorf("%w: workspace %s", ErrUnauthorized, workspace.ID)
	}

	if op.Folder.Type == models.FolderTypeFleeting {
		exists, err := tx.HasFleetingFolder(ctx, op.Folder.WorkspaceID)
		if err != nil {
			return affected, err
		}
		if exists {
			return affected, ErrFleetingFolderExists
		}
	}

	// Проверка родителя атомарна со вставкой (conditional INSERT)
	err = tx.CreateFolder(ctx, &models.Folder{
		ID:             op.Folder.ID,
		UserID:         op.Folder.UserID,
		WorkspaceID:    op.Folder.WorkspaceID,
		ParentFolderID: op.Folder.ParentFolderID,
		Name:           op.Folder.Name,
		Type:           op.Folder.Type,
	})
	if err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(op.Folder.WorkspaceID)
	affected.FolderIDs.Add(op.Folder.ID)
	if op.Folder.ParentFolderID != "" {
		affected.FolderIDs.Add(op.Folder.ParentFolderID)
	}
	return affected, nil
}

// updateFolder applies a partial folder update; ownership and parent
// checks happen inside the conditional UPDATE
func updateFolder(ctx context.Context, tx storage.Tx, userID string, op *UpdateFolderOp) (Affected, error) {
	affected := newAffected()

	folder, err := tx.UpdateFolder(ctx, userID, storage.FolderUpdate{
		ID:             op.Update.ID,
		Name:           op.Update.Name,
		ParentFolderID: op.Update.ParentFolderID,
	})
	if err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(folder.WorkspaceID)
	affected.FolderIDs.Add(folder.ID)
	if op.Update.ParentFolderID != nil && *op.Update.ParentFolderID != "" {
		affected.FolderIDs.Add(*op.Update.ParentFolderID)
	}
	return affected, nil
}

// deleteFolder cascades over the folder subtree with an in-memory BFS
// inside the delete's transaction. Files whose parents are all deleted go
// away with the subtree; files with surviving parents are detached from
// the deleted folders instead.
//
// Отсутствующая или fleeting-папка - no-op: клиентский мутатор ведет
// себя так же, и реплики остаются сходящимися.
func deleteFolder(ctx context.Context, tx storage.Tx, userID string, op *DeleteFolderOp) (Affected, error) {
	affected := newAffected()

	root, err := tx.GetFolder(ctx, op.ID)
	if errors.Is(err, storage.ErrFolderNotFound) {
		return affected, nil
	}
	if err != nil {
		return affected, err
	}
	if root.UserID != userID {
		return affected, fmt.Errorf("%w: folder %s", ErrOwnershipMismatch, root.ID)
	}
	if root.Type == models.FolderTypeFleeting {
		return affected, nil
	}

	folders, err := tx.ListWorkspaceFolders(ctx, root.WorkspaceID)
	if err != nil {
		return affected, err
	}

	// Индекс folderID -> дети строится один раз на все удаление
	children := make(map[string][]*models.Folder)
	for _, f := range folders {
		if f.ParentFolderID != "" {
			children[f.ParentFolderID] = append(children[f.ParentFolderID], f)
		}
	}

	// BFS по поддереву; fleeting-папки и их поддеревья не трогаем
	deleted := mapset.NewThreadUnsafeSet[string]()
	queue := []*models.Folder{root}
	for len(queue) > 0 {
		folder := queue[0]
		queue = queue[1:]

		if folder.Type == models.FolderTypeFleeting || deleted.Contains(folder.ID) {
			continue
		}
		deleted.Add(folder.ID)
		queue = append(queue, children[folder.ID]...)
	}

	// Файлы: осиротевшие удаляем, остальные открепляем от удаленных папок
	files, err := tx.ListWorkspaceFiles(ctx, root.WorkspaceID)
	if err != nil {
		return affected, err
	}

	var orphaned []string
	for _, file := range files {
		if len(file.ParentFolderIDs) == 0 {
			continue
		}

		parents := mapset.NewThreadUnsafeSet(file.ParentFolderIDs...)
		remaining := parents.Difference(deleted)
		if remaining.Cardinality() == parents.Cardinality() {
			// Файл не прикреплен ни к одной удаляемой папке
			continue
		}

		if remaining.IsEmpty() {
			orphaned = append(orphaned, file.ID)
		} else {
			remainingIDs := remaining.ToSlice()
			sort.Strings(remainingIDs)
			if err := tx.SetFileParents(ctx, file.ID, remainingIDs); err != nil {
				return affected, err
			}
		}
		affected.FileIDs.Add(file.ID)
	}

	if err := tx.DeleteFiles(ctx, orphaned); err != nil {
		return affected, err
	}

	deletedIDs := deleted.ToSlice()
	sort.Strings(deletedIDs)
	if err := tx.DeleteFolders(ctx, deletedIDs); err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(root.WorkspaceID)
	affected.FolderIDs.Append(deletedIDs...)
	return affected, nil
}

// createFile creates a file after re-validating ownership, workspace
// membership and that every parent folder lives in the same workspace
func createFile(ctx context.Context, tx storage.Tx, userID string, op *CreateFileOp) (Affected, error) {
	affected := newAffected()

	if op.File.UserID != userID {
		return affected, fmt.Errorf("%w: file.userID", ErrOwnershipMismatch)
	}

	workspace, err := tx.GetWorkspace(ctx, op.File.WorkspaceID)
	if err != nil {
		return affected, err
	}
	if workspace.UserID != userID {
		return affected, fmt.Errorf("%w: workspace %s", ErrUnauthorized, workspace.ID)
	}

	if err := checkParentFolders(ctx, tx, op.File.ParentFolderIDs, op.File.WorkspaceID); err != nil {
		return affected, err
	}

	err = tx.CreateFile(ctx, &models.File{
		ID:              op.File.ID,
		UserID:          op.File.UserID,
		WorkspaceID:     op.File.WorkspaceID,
		ParentFolderIDs: op.File.ParentFolderIDs,
		Name:            op.File.Name,
		FileType:        op.File.FileType,
		LinkedFileID:    op.File.LinkedFileID,
		Content:         op.File.Content,
		ContentLink:     op.File.ContentLink,
	})
	if err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(op.File.WorkspaceID)
	affected.FileIDs.Add(op.File.ID)
	affected.FolderIDs.Append(op.File.ParentFolderIDs...)
	return affected, nil
}

// updateFile applies a partial file update conditioned on ownership
func updateFile(ctx context.Context, tx storage.Tx, userID string, op *UpdateFileOp) (Affected, error) {
	affected := newAffected()

	if op.Update.ParentFolderIDs != nil {
		current, err := tx.GetFile(ctx, op.Update.ID)
		if err != nil {
			return affected, err
		}
		if err := checkParentFolders(ctx, tx, *op.Update.ParentFolderIDs, current.WorkspaceID); err != nil {
			return affected, err
		}
	}

	file, err := tx.UpdateFile(ctx, userID, storage.FileUpdate{
		ID:              op.Update.ID,
		Name:            op.Update.Name,
		Content:         op.Update.Content,
		ContentLink:     op.Update.ContentLink,
		LinkedFileID:    op.Update.LinkedFileID,
		ParentFolderIDs: op.Update.ParentFolderIDs,
	})
	if err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(file.WorkspaceID)
	affected.FileIDs.Add(file.ID)
	affected.FolderIDs.Append(file.ParentFolderIDs...)
	return affected, nil
}

// deleteFile removes a single file. Отсутствующий файл - no-op
// (идемпотентное удаление).
func deleteFile(ctx context.Context, tx storage.Tx, userID string, op *DeleteFileOp) (Affected, error) {
	affected := newAffected()

	file, err := tx.GetFile(ctx, op.ID)
	if errors.Is(err, storage.ErrFileNotFound) {
		return affected, nil
	}
	if err != nil {
		return affected, err
	}
	if file.UserID != userID {
		return affected, fmt.Errorf("%w: file %s", ErrOwnershipMismatch, file.ID)
	}

	if err := tx.DeleteFiles(ctx, []string{file.ID}); err != nil {
		return affected, err
	}

	affected.WorkspaceIDs.Add(file.WorkspaceID)
	affected.FileIDs.Add(file.ID)
	affected.FolderIDs.Append(file.ParentFolderIDs...)
	return affected, nil
}

// checkParentFolders verifies that every referenced parent folder exists
// and belongs to the given workspace
func checkParentFolders(ctx context.Context, tx storage.Tx, parentIDs []string, workspaceID string) error {
	if len(parentIDs) == 0 {
		return nil
	}

	folders, err := tx.GetFoldersByID(ctx, parentIDs)
	if err != nil {
		return err
	}

	found := mapset.NewThreadUnsafeSet[string]()
	for _, folder := range folders {
		if folder.WorkspaceID == workspaceID {
			found.Add(folder.ID)
		}
	}

	for _, parentID := range parentIDs {
		if !found.Contains(parentID) {
			return fmt.Errorf("%w: %s", storage.ErrParentFolderNotFound, parentID)
		}
	}
	return nil
}
