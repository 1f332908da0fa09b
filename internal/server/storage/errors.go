package storage

import "errors"

// Common storage errors
var (
	// ErrClientGroupNotFound indicates that client group record was not found
	ErrClientGroupNotFound = errors.New("client group not found")

	// ErrClientNotFound indicates that client record was not found
	ErrClientNotFound = errors.New("client not found")

	// ErrWorkspaceNotFound indicates that workspace was not found
	ErrWorkspaceNotFound = errors.New("workspace not found")

	// ErrWorkspaceExists indicates that workspace with this ID already exists
	ErrWorkspaceExists = errors.New("workspace already exists")

	// ErrFolderNotFound indicates that folder was not found
	// (or does not belong to the expected owner)
	ErrFolderNotFound = errors.New("folder not found")

	// ErrFolderExists indicates that folder with this ID already exists
	ErrFolderExists = errors.New("folder already exists")

	// ErrParentFolderNotFound indicates that referenced parent folder does not
	// exist in the same workspace
	ErrParentFolderNotFound = errors.New("parent folder not found in workspace")

	// ErrFileNotFound indicates that file was not found
	// (or does not belong to the expected owner)
	ErrFileNotFound = errors.New("file not found")

	// ErrFileExists indicates that file with this ID already exists
	ErrFileExists = errors.New("file already exists")

	// ErrTxConflict indicates that transaction could not be committed after
	// the configured number of retry attempts
	ErrTxConflict = errors.New("transaction conflict: retry attempts exhausted")
)
