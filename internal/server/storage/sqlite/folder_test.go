package sqlite

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/internal/server/storage"
)

// mustCreateWorkspace вставляет workspace для тестов папок/файлов
func mustCreateWorkspace(t *testing.T, tx storage.Tx, workspaceID, userID string) {
	t.Helper()
	require.NoError(t, tx.CreateWorkspace(context.Background(), &models.Workspace{
		ID: workspaceID, UserID: userID, Path: "/p", Name: "n",
	}))
}

func TestFolderCreateGet(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()
	folderID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)

		if err := tx.CreateFolder(ctx, &models.Folder{
			ID: folderID, UserID: userID, WorkspaceID: workspaceID,
			Name: "inbox", Type: models.FolderTypeStandard,
		}); err != nil {
			return err
		}

		folder, err := tx.GetFolder(ctx, folderID)
		if err != nil {
			return err
		}
		assert.Equal(t, "inbox", folder.Name)
		assert.Empty(t, folder.ParentFolderID)
		assert.Equal(t, int64(1), folder.RowVersion)
		return nil
	})
}

func TestFolderCreate_ParentChecks(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()
	parentID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)

		// Родитель должен существовать
		err := tx.CreateFolder(ctx, &models.Folder{
			ID: uuid.NewString(), UserID: userID, WorkspaceID: workspaceID,
			ParentFolderID: uuid.NewString(),
			Name:           "child", Type: models.FolderTypeStandard,
		})
		assert.ErrorIs(t, err, storage.ErrParentFolderNotFound)

		if err := tx.CreateFolder(ctx, &models.Folder{
			ID: parentID, UserID: userID, WorkspaceID: workspaceID,
			Name: "parent", Type: models.FolderTypeStandard,
		}); err != nil {
			return err
		}

		// Родитель в другом workspace не подходит
		otherWorkspace := uuid.NewString()
		mustCreateWorkspace(t, tx, otherWorkspace, userID)
		err = tx.CreateFolder(ctx, &models.Folder{
			ID: uuid.NewString(), UserID: userID, WorkspaceID: otherWorkspace,
			ParentFolderID: parentID,
			Name:           "child", Type: models.FolderTypeStandard,
		})
		assert.ErrorIs(t, err, storage.ErrParentFolderNotFound)

		// Родитель в том же workspace проходит
		return tx.CreateFolder(ctx, &models.Folder{
			ID: uuid.NewString(), UserID: userID, WorkspaceID: workspaceID,
			ParentFolderID: parentID,
			Name:           "child", Type: models.FolderTypeStandard,
		})
	})
}

func TestFolderCreate_Duplicate(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)

		f := &models.Folder{
			ID: uuid.NewString(), UserID: userID, WorkspaceID: workspaceID,
			Name: "inbox", Type: models.FolderTypeStandard,
		}
		if err := tx.CreateFolder(ctx, f); err != nil {
			return err
		}

		err := tx.CreateFolder(ctx, f)
		assert.ErrorIs(t, err, storage.ErrFolderExists)
		return nil
	})
}

func TestFolderUpdate(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()
	folderID := uuid.NewString()
	parentID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)
		for _, f := range []*models.Folder{
			{ID: folderID, UserID: userID, WorkspaceID: workspaceID, Name: "a", Type: models.FolderTypeStandard},
			{ID: parentID, UserID: userID, WorkspaceID: workspaceID, Name: "b", Type: models.FolderTypeStandard},
		} {
			if err := tx.CreateFolder(ctx, f); err != nil {
				return err
			}
		}

		// Переименование бампает версию
		name := "renamed"
		folder, err := tx.UpdateFolder(ctx, userID, storage.FolderUpdate{ID: folderID, Name: &name})
		if err != nil {
			return err
		}
		assert.Equal(t, "renamed", folder.Name)
		assert.Equal(t, int64(2), folder.RowVersion)

		// Перенос под существующего родителя
		folder, err = tx.UpdateFolder(ctx, userID, storage.FolderUpdate{ID: folderID, ParentFolderID: &parentID})
		if err != nil {
			return err
		}
		assert.Equal(t, parentID, folder.ParentFolderID)
		assert.Equal(t, int64(3), folder.RowVersion)

		// Перенос в корень через пустую строку
		root := ""
		folder, err = tx.UpdateFolder(ctx, userID, storage.FolderUpdate{ID: folderID, ParentFolderID: &root})
		if err != nil {
			return err
		}
		assert.Empty(t, folder.ParentFolderID)

		// Несуществующий родитель отклоняется
		missing := uuid.NewString()
		_, err = tx.UpdateFolder(ctx, userID, storage.FolderUpdate{ID: folderID, ParentFolderID: &missing})
		assert.ErrorIs(t, err, storage.ErrParentFolderNotFound)

		// Чужая папка выглядит отсутствующей
		_, err = tx.UpdateFolder(ctx, uuid.NewString(), storage.FolderUpdate{ID: folderID, Name: &name})
		assert.ErrorIs(t, err, storage.ErrFolderNotFound)

		// Пустое обновление не растит версию
		folder, err = tx.UpdateFolder(ctx, userID, storage.FolderUpdate{ID: folderID})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(4), folder.RowVersion)
		return nil
	})
}

func TestHasFleetingFolder(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)

		has, err := tx.HasFleetingFolder(ctx, workspaceID)
		if err != nil {
			return err
		}
		assert.False(t, has)

		if err := tx.CreateFolder(ctx, &models.Folder{
			ID: uuid.NewString(), UserID: userID, WorkspaceID: workspaceID,
			Name: "fleeting", Type: models.FolderTypeFleeting,
		}); err != nil {
			return err
		}

		has, err = tx.HasFleetingFolder(ctx, workspaceID)
		if err != nil {
			return err
		}
		assert.True(t, has)
		return nil
	})
}

func TestDeleteFolders(t *testing.T) {
	s := setupTestStorage(t)
	ctx := context.Background()
	userID := uuid.NewString()
	workspaceID := uuid.NewString()
	folderID := uuid.NewString()

	withTx(t, s, func(tx storage.Tx) error {
		mustCreateWorkspace(t, tx, workspaceID, userID)
		if err := tx.CreateFolder(ctx, &models.Folder{
			ID: folderID, UserID: userID, WorkspaceID: workspaceID,
			Name: "inbox", Type: models.FolderTypeStandard,
		}); err != nil {
			return err
		}

		// Отсутствующие ID игнорируются
		if err := tx.DeleteFolders(ctx, []string{folderID, uuid.NewString()}); err != nil {
			return err
		}

		_, err := tx.GetFolder(ctx, folderID)
		assert.ErrorIs(t, err, storage.ErrFolderNotFound)

		// Пустой список - no-op
		return tx.DeleteFolders(ctx, nil)
	})
}
