package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrInvalidArgument indicates a request the store cannot accept.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrConflict indicates a write that would move a record across workspaces.
	ErrConflict = errors.New("repository: conflict")
)
