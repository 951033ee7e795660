package vfs

import (
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
)

// OpenFlags express the caller's intent when opening a file.
type OpenFlags uint32

const (
	// FlagRead requests read access.
	FlagRead OpenFlags = 1 << iota
	// FlagWrite requests write access.
	FlagWrite
	// FlagCreate creates the file if it does not exist.
	FlagCreate
	// FlagTrunc truncates the file to zero length on open.
	FlagTrunc
)

// CanRead reports whether the flags include read intent.
func (f OpenFlags) CanRead() bool { return f&FlagRead != 0 }

// CanWrite reports whether the flags include write intent.
func (f OpenFlags) CanWrite() bool { return f&FlagWrite != 0 }

// FileInfo describes a file as reported by a driver's Stat.
type FileInfo struct {
	Name  string
	Size  int64
	Mode  uint32
	UID   uint32
	GID   uint32
	IsDir bool
}

// Dirent is one directory entry produced during traversal.
type Dirent struct {
	Name  string
	IsDir bool
	Size  int64
}

// Driver is a filesystem implementation that can interpret the on-disk
// format of a block device. Drivers register with the VFS by name and are
// selected at mount time.
type Driver interface {
	// Name returns the filesystem type name, e.g. "fat32".
	Name() string

	// Mount interprets the device and returns a live volume. A device that
	// does not carry this filesystem's format fails with ErrInvalidFormat
	// and is left untouched.
	Mount(dev block.Device) (Volume, error)
}

// Volume is a mounted filesystem instance. Operations a driver does not
// support return ErrNotSupported; mutating operations on read-only drivers
// return ErrReadOnly (Open with write intent included).
type Volume interface {
	// Unmount flushes and releases the volume.
	Unmount() error

	// ReadOnly reports whether the volume rejects all mutation.
	ReadOnly() bool

	// Open opens the file at path, relative to the volume root.
	Open(path string, flags OpenFlags) (File, error)

	// Stat describes the file or directory at path.
	Stat(path string) (FileInfo, error)

	// Mkdir creates a directory at path.
	Mkdir(path string) error

	// Rmdir removes the empty directory at path.
	Rmdir(path string) error

	// Unlink removes the file at path.
	Unlink(path string) error

	// Rename moves oldPath to newPath within the volume.
	Rename(oldPath, newPath string) error

	// OpenDir opens the directory at path for traversal.
	OpenDir(path string) (Dir, error)
}

// File is an open file handle owned by a driver. Position bookkeeping at
// the VFS layer relies on Tell after every Seek.
type File interface {
	// Read reads up to len(p) bytes at the current position. A read past
	// EOF returns io.EOF with a zero count; a partial read returns the
	// short count with a nil error.
	Read(p []byte) (int, error)

	// Write writes len(p) bytes at the current position, extending the
	// file as needed.
	Write(p []byte) (int, error)

	// Seek repositions the handle like io.Seeker.
	Seek(offset int64, whence int) (int64, error)

	// Tell returns the current position.
	Tell() int64

	// Close flushes and releases the handle.
	Close() error
}

// Dir is an open directory traversal handle. Read returns io.EOF after the
// last entry.
type Dir interface {
	Read() (Dirent, error)
	Close() error
}
