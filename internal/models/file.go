package models

import "time"

// File представляет файл (заметку) внутри workspace. Файл может быть
// прикреплен к нескольким папкам одновременно (ParentFolderIDs), поэтому
// каскадное удаление папки удаляет файл только если у него не осталось
// других живых родителей, иначе файл лишь открепляется от удаленной папки.
type File struct {
	ID              string    `json:"id"`
	UserID          string    `json:"userID"`
	WorkspaceID     string    `json:"workspaceID"`
	ParentFolderIDs []string  `json:"parentFolderIDs,omitempty"`
	Name            string    `json:"name"`
	FileType        string    `json:"fileType"`
	LinkedFileID    string    `json:"linkedFileID,omitempty"`
	Content         string    `json:"content"`
	ContentLink     string    `json:"contentLink,omitempty"`
	RowVersion      int64     `json:"-"`
	CreatedAt       time.Time `json:"-"`
}
