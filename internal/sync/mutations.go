package sync

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/iudanet/zettelsync/internal/models"
	"github.com/iudanet/zettelsync/pkg/api"
)

// Supported mutation names. Закрытое множество: имя вне списка -
// ошибка валидации, а не молчаливый no-op.
const (
	MutationCreateWorkspace = "createWorkspace"
	MutationCreateFolder    = "createFolder"
	MutationUpdateFolder    = "updateFolder"
	MutationDeleteFolder    = "deleteFolder"
	MutationCreateFile      = "createFile"
	MutationUpdateFile      = "updateFile"
	MutationDeleteFile      = "deleteFile"
)

// Op is one decoded, schema-validated mutation operation.
// The concrete types below form a closed sum over the mutation kinds;
// dispatch is an exhaustive type switch in Processor.mutate.
type Op interface {
	name() string
}

// WorkspaceArgs описывает создаваемый workspace
type WorkspaceArgs struct {
	ID     string `json:"id"`
	UserID string `json:"userID"`
	Path   string `json:"path"`
	Name   string `json:"name"`
}

func (a *WorkspaceArgs) validate() error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("workspace.id: %w", err)
	}
	if err := uuid.Validate(a.UserID); err != nil {
		return fmt.Errorf("workspace.userID: %w", err)
	}
	if a.Path == "" {
		return fmt.Errorf("workspace.path is required")
	}
	if a.Name == "" {
		return fmt.Errorf("workspace.name is required")
	}
	return nil
}

// CreateWorkspaceOp - мутация createWorkspace
type CreateWorkspaceOp struct {
	Workspace WorkspaceArgs `json:"workspace"`
}

func (op *CreateWorkspaceOp) name() string { return MutationCreateWorkspace }

// FolderArgs описывает создаваемую папку
type FolderArgs struct {
	ID             string `json:"id"`
	UserID         string `json:"userID"`
	WorkspaceID    string `json:"workspaceID"`
	ParentFolderID string `json:"parentFolderID,omitempty"`
	Name           string `json:"name"`
	Type           string `json:"type"`
}

func (a *FolderArgs) validate() error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("folder.id: %w", err)
	}
	if err := uuid.Validate(a.UserID); err != nil {
		return fmt.Errorf("folder.userID: %w", err)
	}
	if err := uuid.Validate(a.WorkspaceID); err != nil {
		return fmt.Errorf("folder.workspaceID: %w", err)
	}
	if a.ParentFolderID != "" {
		if err := uuid.Validate(a.ParentFolderID); err != nil {
			return fmt.Errorf("folder.parentFolderID: %w", err)
		}
	}
	if a.Name == "" {
		return fmt.Errorf("folder.name is required")
	}
	if a.Type != models.FolderTypeStandard && a.Type != models.FolderTypeFleeting {
		return fmt.Errorf("folder.type %q is not supported", a.Type)
	}
	return nil
}

// CreateFolderOp - мутация createFolder
type CreateFolderOp struct {
	Folder FolderArgs `json:"folder"`
}

func (op *CreateFolderOp) name() string { return MutationCreateFolder }

// FolderUpdateArgs описывает частичное обновление папки.
// Nil-поле означает "не менять", пустой parentFolderID - перенос в корень.
type FolderUpdateArgs struct {
	ID             string  `json:"id"`
	Name           *string `json:"name,omitempty"`
	ParentFolderID *string `json:"parentFolderID,omitempty"`
}

func (a *FolderUpdateArgs) validate() error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("update.id: %w", err)
	}
	if a.Name != nil && *a.Name == "" {
		return fmt.Errorf("update.name must not be empty")
	}
	if a.ParentFolderID != nil && *a.ParentFolderID != "" {
		if err := uuid.Validate(*a.ParentFolderID); err != nil {
			return fmt.Errorf("update.parentFolderID: %w", err)
		}
	}
	return nil
}

// UpdateFolderOp - мутация updateFolder
type UpdateFolderOp struct {
	Update FolderUpdateArgs `json:"update"`
}

func (op *UpdateFolderOp) name() string { return MutationUpdateFolder }

// DeleteFolderOp - мутация deleteFolder
type DeleteFolderOp struct {
	ID string `json:"id"`
}

func (op *DeleteFolderOp) name() string { return MutationDeleteFolder }

func (op *DeleteFolderOp) validate() error {
	if err := uuid.Validate(op.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	return nil
}

// FileArgs описывает создаваемый файл
type FileArgs struct {
	ID              string   `json:"id"`
	UserID          string   `json:"userID"`
	WorkspaceID     string   `json:"workspaceID"`
	ParentFolderIDs []string `json:"parentFolderIDs,omitempty"`
	Name            string   `json:"name"`
	FileType        string   `json:"fileType"`
	LinkedFileID    string   `json:"linkedFileID,omitempty"`
	Content         string   `json:"content"`
	ContentLink     string   `json:"contentLink,omitempty"`
}

func (a *FileArgs) validate() error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("file.id: %w", err)
	}
	if err := uuid.Validate(a.UserID); err != nil {
		return fmt.Errorf("file.userID: %w", err)
	}
	if err := uuid.Validate(a.WorkspaceID); err != nil {
		return fmt.Errorf("file.workspaceID: %w", err)
	}
	for _, parentID := range a.ParentFolderIDs {
		if err := uuid.Validate(parentID); err != nil {
			return fmt.Errorf("file.parentFolderIDs: %w", err)
		}
	}
	if a.LinkedFileID != "" {
		if err := uuid.Validate(a.LinkedFileID); err != nil {
			return fmt.Errorf("file.linkedFileID: %w", err)
		}
	}
	if a.Name == "" {
		return fmt.Errorf("file.name is required")
	}
	if a.FileType == "" {
		return fmt.Errorf("file.fileType is required")
	}
	return nil
}

// CreateFileOp - мутация createFile
type CreateFileOp struct {
	File FileArgs `json:"file"`
}

func (op *CreateFileOp) name() string { return MutationCreateFile }

// FileUpdateArgs описывает частичное обновление файла
type FileUpdateArgs struct {
	ID              string    `json:"id"`
	Name            *string   `json:"name,omitempty"`
	Content         *string   `json:"content,omitempty"`
	ContentLink     *string   `json:"contentLink,omitempty"`
	LinkedFileID    *string   `json:"linkedFileID,omitempty"`
	ParentFolderIDs *[]string `json:"parentFolderIDs,omitempty"`
}

func (a *FileUpdateArgs) validate() error {
	if err := uuid.Validate(a.ID); err != nil {
		return fmt.Errorf("update.id: %w", err)
	}
	if a.Name != nil && *a.Name == "" {
		return fmt.Errorf("update.name must not be empty")
	}
	if a.ParentFolderIDs != nil {
		for _, parentID := range *a.ParentFolderIDs {
			if err := uuid.Validate(parentID); err != nil {
				return fmt.Errorf("update.parentFolderIDs: %w", err)
			}
		}
	}
	return nil
}

// UpdateFileOp - мутация updateFile
type UpdateFileOp struct {
	Update FileUpdateArgs `json:"update"`
}

func (op *UpdateFileOp) name() string { return MutationUpdateFile }

// DeleteFileOp - мутация deleteFile
type DeleteFileOp struct {
	ID string `json:"id"`
}

func (op *DeleteFileOp) name() string { return MutationDeleteFile }

func (op *DeleteFileOp) validate() error {
	if err := uuid.Validate(op.ID); err != nil {
		return fmt.Errorf("id: %w", err)
	}
	return nil
}

// decodeMutation validates mutation metadata and decodes its arguments
// into the typed operation for the mutation's name. Any failure here is a
// validation error: the mutation is rejected before any transaction and
// no sequence number is consumed.
func decodeMutation(m api.Mutation) (Op, error) {
	if m.ID < 1 {
		return nil, fmt.Errorf("%w: mutation id must be >= 1, got %d", ErrInvalidRequest, m.ID)
	}
	if m.ClientID == "" {
		return nil, fmt.Errorf("%w: mutation clientID is required", ErrInvalidRequest)
	}

	var op Op
	switch m.Name {
	case MutationCreateWorkspace:
		op = &CreateWorkspaceOp{}
	case MutationCreateFolder:
		op = &CreateFolderOp{}
	case MutationUpdateFolder:
		op = &UpdateFolderOp{}
	case MutationDeleteFolder:
		op = &DeleteFolderOp{}
	case MutationCreateFile:
		op = &CreateFileOp{}
	case MutationUpdateFile:
		op = &UpdateFileOp{}
	case MutationDeleteFile:
		op = &DeleteFileOp{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMutation, m.Name)
	}

	if err := json.Unmarshal(m.Args, op); err != nil {
		return nil, fmt.Errorf("%w: %s args: %v", ErrInvalidRequest, m.Name, err)
	}
	if err := validateOp(op); err != nil {
		return nil, fmt.Errorf("%w: %s args: %v", ErrInvalidRequest, m.Name, err)
	}

	return op, nil
}

func validateOp(op Op) error {
	switch op := op.(type) {
	case *CreateWorkspaceOp:
		return op.Workspace.validate()
	case *CreateFolderOp:
		return op.Folder.validate()
	case *UpdateFolderOp:
		return op.Update.validate()
	case *DeleteFolderOp:
		return op.validate()
	case *CreateFileOp:
		return op.File.validate()
	case *UpdateFileOp:
		return op.Update.validate()
	case *DeleteFileOp:
		return op.validate()
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMutation, op.name())
	}
}
