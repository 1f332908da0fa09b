package storage

import (
	"context"

	"github.com/iudanet/zettelsync/internal/models"
)

// VersionRow представляет пару (id, rowVersion) из range-скана коллекции.
// Это единственное, что нужно pull-обработчику для построения CVR -
// тела сущностей загружаются отдельно и только для изменившихся ID.
type VersionRow struct {
	ID         string
	RowVersion int64
}

// FolderUpdate описывает частичное обновление папки. Nil-поле означает
// "не менять". ParentFolderID == "" (не nil) переносит папку в корень.
type FolderUpdate struct {
	ID             string
	Name           *string
	ParentFolderID *string
}

// FileUpdate описывает частичное обновление файла.
type FileUpdate struct {
	ID              string
	Name            *string
	Content         *string
	ContentLink     *string
	LinkedFileID    *string
	ParentFolderIDs *[]string
}

// Repository defines transactional access to persisted sync state.
// InTx executes fn inside a single database transaction with bounded
// retry on serialization conflicts: fn may run more than once and must
// be idempotent with respect to its in-memory side effects.
type Repository interface {
	InTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the narrow repository surface consumed by the sync core.
// All methods operate within one transaction and see each other's writes.
type Tx interface {
	// Client group / client bookkeeping.

	// GetClientGroup returns ErrClientGroupNotFound if the record does not exist.
	GetClientGroup(ctx context.Context, id string) (*models.ClientGroup, error)
	// PutClientGroup inserts or updates the record (upsert by ID).
	PutClientGroup(ctx context.Context, group *models.ClientGroup) error
	// GetClient returns ErrClientNotFound if the record does not exist.
	GetClient(ctx context.Context, id, clientGroupID string) (*models.Client, error)
	// PutClient inserts or updates the record (upsert by ID).
	PutClient(ctx context.Context, client *models.Client) error
	// SearchClients returns (clientID, lastMutationID) pairs for a client group.
	SearchClients(ctx context.Context, clientGroupID string) ([]VersionRow, error)

	// Range scans of (id, rowVersion) pairs scoped to an owner.

	SearchWorkspaces(ctx context.Context, userID string) ([]VersionRow, error)
	SearchFolders(ctx context.Context, userID string) ([]VersionRow, error)
	SearchFiles(ctx context.Context, userID string) ([]VersionRow, error)

	// Batched loads of full entity bodies.

	GetWorkspacesByID(ctx context.Context, ids []string) ([]*models.Workspace, error)
	GetFoldersByID(ctx context.Context, ids []string) ([]*models.Folder, error)
	GetFilesByID(ctx context.Context, ids []string) ([]*models.File, error)

	// Entity writes. Referential and uniqueness checks happen atomically
	// with the write (conditional INSERT/UPDATE), not check-then-act.

	// CreateWorkspace returns ErrWorkspaceExists on duplicate ID.
	CreateWorkspace(ctx context.Context, w *models.Workspace) error
	// GetWorkspace returns ErrWorkspaceNotFound if missing.
	GetWorkspace(ctx context.Context, id string) (*models.Workspace, error)

	// CreateFolder returns ErrFolderExists on duplicate ID and
	// ErrParentFolderNotFound when the parent does not exist in the
	// folder's workspace.
	CreateFolder(ctx context.Context, f *models.Folder) error
	// GetFolder returns ErrFolderNotFound if missing.
	GetFolder(ctx context.Context, id string) (*models.Folder, error)
	// UpdateFolder applies a partial update conditioned on ownership and,
	// when the parent changes, on the parent existing in the same
	// workspace. Returns the updated folder.
	UpdateFolder(ctx context.Context, userID string, upd FolderUpdate) (*models.Folder, error)
	// HasFleetingFolder reports whether the workspace already contains a
	// folder of type fleeting.
	HasFleetingFolder(ctx context.Context, workspaceID string) (bool, error)
	// ListWorkspaceFolders returns all folders of a workspace
	// (for in-memory cascade traversal).
	ListWorkspaceFolders(ctx context.Context, workspaceID string) ([]*models.Folder, error)
	// DeleteFolders removes folders by ID. Missing IDs are ignored.
	DeleteFolders(ctx context.Context, ids []string) error

	// CreateFile returns ErrFileExists on duplicate ID.
	CreateFile(ctx context.Context, f *models.File) error
	// GetFile returns ErrFileNotFound if missing.
	GetFile(ctx context.Context, id string) (*models.File, error)
	// UpdateFile applies a partial update conditioned on ownership.
	UpdateFile(ctx context.Context, userID string, upd FileUpdate) (*models.File, error)
	// ListWorkspaceFiles returns all files of a workspace.
	ListWorkspaceFiles(ctx context.Context, workspaceID string) ([]*models.File, error)
	// SetFileParents replaces the file's parent folder list, bumping the
	// file's row version.
	SetFileParents(ctx context.Context, fileID string, parentIDs []string) error
	// DeleteFiles removes files by ID. Missing IDs are ignored.
	DeleteFiles(ctx context.Context, ids []string) error
}
