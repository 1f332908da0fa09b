package models

import "time"

// Folder types.
const (
	// FolderTypeStandard обычная папка
	FolderTypeStandard = "standard"
	// FolderTypeFleeting папка для быстрых заметок.
	// Доменное правило: не более одной fleeting-папки на workspace,
	// fleeting-папка не удаляется (ни напрямую, ни каскадом).
	FolderTypeFleeting = "fleeting"
)

// Folder представляет папку внутри workspace. ParentFolderID == ""
// означает папку верхнего уровня.
type Folder struct {
	ID             string    `json:"id"`
	UserID         string    `json:"userID"`
	WorkspaceID    string    `json:"workspaceID"`
	ParentFolderID string    `json:"parentFolderID,omitempty"`
	Name           string    `json:"name"`
	Type           string    `json:"type"`
	RowVersion     int64     `json:"-"`
	CreatedAt      time.Time `json:"-"`
}
