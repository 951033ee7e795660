package vfs

import "errors"

// Error taxonomy shared by the VFS core and every filesystem driver.
// Drivers wrap these with fmt.Errorf("...: %w", ...) so callers can match
// with errors.Is across layers.
var (
	ErrInvalidArgument  = errors.New("vfs: invalid argument")
	ErrNotFound         = errors.New("vfs: not found")
	ErrNotSupported     = errors.New("vfs: operation not supported")
	ErrPermissionDenied = errors.New("vfs: permission denied")
	ErrReadOnly         = errors.New("vfs: filesystem is read-only")
	ErrIsDirectory      = errors.New("vfs: is a directory")
	ErrNotDirectory     = errors.New("vfs: not a directory")
	ErrIoError          = errors.New("vfs: i/o error")
	ErrInvalidFormat    = errors.New("vfs: invalid filesystem format")
	ErrAlreadyExists    = errors.New("vfs: already exists")
	ErrInvalidState     = errors.New("vfs: invalid state")
	ErrNoSpace          = errors.New("vfs: no space left on device")
)
