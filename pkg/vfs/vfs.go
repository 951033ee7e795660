/*
Package vfs is the dispatch layer of the storage stack. It owns the
filesystem driver registry, the mount table, and the system-wide file
descriptor table, and enforces permissions before any call reaches a
driver.

Example Usage:

	v := vfs.New(registry, security.RootIdentity, security.NopAuditor{})
	if err := v.RegisterDriver(fat32.NewDriver()); err != nil {
		log.Fatal(err)
	}
	if err := v.Mount("disk0", "/", "fat32"); err != nil {
		log.Fatal(err)
	}

	fd, err := v.Open("/readme.txt", vfs.FlagRead)
	if err != nil {
		log.Fatal(err)
	}
	defer v.Close(fd)

	buf := make([]byte, 128)
	n, err := v.Read(fd, buf)
*/
package vfs

import (
	"fmt"
	"io"
	"sync"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/security"
)

// MaxOpenFiles is the size of the file descriptor table.
const MaxOpenFiles = 256

// FD is a file descriptor handle. The low 16 bits index the descriptor
// table; the high 16 bits carry a generation counter so a handle kept
// across a close/reopen of the same slot is detected as stale.
type FD uint32

func makeFD(index int, gen uint16) FD {
	return FD(uint32(gen)<<16 | uint32(index)&0xFFFF)
}

func (fd FD) index() int         { return int(uint32(fd) & 0xFFFF) }
func (fd FD) generation() uint16 { return uint16(uint32(fd) >> 16) }

// Mount is one active binding of a device and driver to a mountpoint.
type Mount struct {
	Mountpoint string
	FSType     string
	Device     block.Device
	Volume     Volume
}

type fdEntry struct {
	used     bool
	gen      uint16
	mount    *Mount
	file     File
	dir      Dir
	flags    OpenFlags
	position int64
}

// VFS dispatches file operations to mounted filesystem drivers.
type VFS struct {
	devices *block.Registry
	ident   security.Identity
	auditor security.Auditor

	mu      sync.RWMutex // guards drivers and mounts
	drivers map[string]Driver
	mounts  []*Mount
	root    *Mount

	fdMu sync.Mutex // guards fds
	fds  [MaxOpenFiles]fdEntry
}

// New creates a VFS bound to a device registry, a caller identity source,
// and an auditor.
func New(devices *block.Registry, ident security.Identity, auditor security.Auditor) *VFS {
	if auditor == nil {
		auditor = security.NopAuditor{}
	}
	return &VFS{
		devices: devices,
		ident:   ident,
		auditor: auditor,
		drivers: make(map[string]Driver),
	}
}

// RegisterDriver adds a filesystem driver. Duplicate names are rejected.
func (v *VFS) RegisterDriver(d Driver) error {
	if d == nil || d.Name() == "" {
		return ErrInvalidArgument
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if _, ok := v.drivers[d.Name()]; ok {
		return fmt.Errorf("driver %q: %w", d.Name(), ErrAlreadyExists)
	}
	v.drivers[d.Name()] = d
	return nil
}

// Mount binds the named block device to mountpoint using the named driver.
// Mounting at "/" designates the root mount used as the resolution
// fallback.
func (v *VFS) Mount(deviceName, mountpoint, fsType string) error {
	if err := ValidatePath(mountpoint); err != nil {
		return err
	}
	if !IsAbs(mountpoint) {
		return ErrInvalidPath
	}
	mountpoint = Clean(mountpoint)

	v.mu.Lock()
	defer v.mu.Unlock()

	driver, ok := v.drivers[fsType]
	if !ok {
		return fmt.Errorf("driver %q: %w", fsType, ErrNotFound)
	}
	dev, err := v.devices.Get(deviceName)
	if err != nil {
		return err
	}
	for _, m := range v.mounts {
		if m.Mountpoint == mountpoint {
			return fmt.Errorf("mountpoint %q: %w", mountpoint, ErrAlreadyExists)
		}
	}

	vol, err := driver.Mount(dev)
	if err != nil {
		return fmt.Errorf("mount %s on %s: %w", deviceName, mountpoint, err)
	}

	m := &Mount{
		Mountpoint: mountpoint,
		FSType:     fsType,
		Device:     dev,
		Volume:     vol,
	}
	v.mounts = append(v.mounts, m)
	if mountpoint == "/" {
		v.root = m
	}
	v.auditor.Log(security.AuditMount, v.ident.CurrentUID(), v.ident.CurrentGID(),
		true, mountpoint, fsType)
	return nil
}

// Unmount removes the mount at mountpoint. Open descriptors on the mount
// make it busy.
func (v *VFS) Unmount(mountpoint string) error {
	mountpoint = Clean(mountpoint)

	v.mu.Lock()
	defer v.mu.Unlock()

	idx := -1
	for i, m := range v.mounts {
		if m.Mountpoint == mountpoint {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("mountpoint %q: %w", mountpoint, ErrNotFound)
	}
	m := v.mounts[idx]

	v.fdMu.Lock()
	for i := range v.fds {
		if v.fds[i].used && v.fds[i].mount == m {
			v.fdMu.Unlock()
			return fmt.Errorf("mountpoint %q busy: %w", mountpoint, ErrInvalidState)
		}
	}
	v.fdMu.Unlock()

	if err := m.Volume.Unmount(); err != nil {
		return err
	}
	v.mounts = append(v.mounts[:idx], v.mounts[idx+1:]...)
	if v.root == m {
		v.root = nil
	}
	return nil
}

// Mounts returns a snapshot of the active mounts.
func (v *VFS) Mounts() []Mount {
	v.mu.RLock()
	defer v.mu.RUnlock()

	out := make([]Mount, len(v.mounts))
	for i, m := range v.mounts {
		out[i] = *m
	}
	return out
}

// Resolve maps an absolute path to the mount whose mountpoint is its
// longest component-aligned prefix, plus the remainder relative to that
// mount's root. Absolute paths matching no other mount fall back to the
// root mount.
func (v *VFS) Resolve(path string) (*Mount, string, error) {
	if err := ValidatePath(path); err != nil {
		return nil, "", err
	}
	path = Clean(path)

	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(v.mounts) == 0 {
		return nil, "", fmt.Errorf("no mounts: %w", ErrNotFound)
	}

	var best *Mount
	for _, m := range v.mounts {
		if m == v.root {
			continue
		}
		if mountMatches(m.Mountpoint, path) {
			if best == nil || len(m.Mountpoint) > len(best.Mountpoint) {
				best = m
			}
		}
	}
	if best == nil {
		if v.root == nil || !IsAbs(path) {
			return nil, "", fmt.Errorf("path %q: %w", path, ErrNotFound)
		}
		best = v.root
	}
	return best, relativeTo(best.Mountpoint, path), nil
}

// allocFD reserves a descriptor slot. The slot is returned unpopulated;
// the caller fills it in or releases it with freeFD.
func (v *VFS) allocFD() (FD, *fdEntry, error) {
	v.fdMu.Lock()
	defer v.fdMu.Unlock()

	for i := range v.fds {
		if !v.fds[i].used {
			v.fds[i].used = true
			v.fds[i].gen++
			return makeFD(i, v.fds[i].gen), &v.fds[i], nil
		}
	}
	return 0, nil, fmt.Errorf("descriptor table full: %w", ErrInvalidState)
}

func (v *VFS) freeFD(fd FD) {
	v.fdMu.Lock()
	defer v.fdMu.Unlock()

	e := &v.fds[fd.index()]
	e.used = false
	e.mount = nil
	e.file = nil
	e.dir = nil
	e.flags = 0
	e.position = 0
}

// lookupFD validates a descriptor, including its generation.
func (v *VFS) lookupFD(fd FD) (*fdEntry, error) {
	idx := fd.index()
	if idx < 0 || idx >= MaxOpenFiles {
		return nil, ErrInvalidArgument
	}

	v.fdMu.Lock()
	defer v.fdMu.Unlock()

	e := &v.fds[idx]
	if !e.used || e.gen != fd.generation() {
		return nil, fmt.Errorf("stale fd %d: %w", fd, ErrInvalidArgument)
	}
	return e, nil
}

// Open opens the file at path. The caller's identity is checked against
// the file's owner and mode before the driver sees the open; a denied
// check consumes no descriptor.
func (v *VFS) Open(path string, flags OpenFlags) (FD, error) {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return 0, err
	}

	fd, entry, err := v.allocFD()
	if err != nil {
		return 0, err
	}

	uid, gid := v.ident.CurrentUID(), v.ident.CurrentGID()
	info, statErr := mount.Volume.Stat(rel)
	if statErr == nil {
		perm := security.FilePerm{Mode: info.Mode, UID: info.UID, GID: info.GID}
		if flags.CanRead() && !perm.CheckRead(uid, gid) {
			v.freeFD(fd)
			v.auditor.Log(security.AuditDenied, uid, gid, false, path, "read")
			return 0, fmt.Errorf("open %q: %w", path, ErrPermissionDenied)
		}
		if flags.CanWrite() && !perm.CheckWrite(uid, gid) {
			v.freeFD(fd)
			v.auditor.Log(security.AuditDenied, uid, gid, false, path, "write")
			return 0, fmt.Errorf("open %q: %w", path, ErrPermissionDenied)
		}
	}

	file, err := mount.Volume.Open(rel, flags)
	if err != nil {
		v.freeFD(fd)
		return 0, fmt.Errorf("open %q: %w", path, err)
	}

	entry.mount = mount
	entry.file = file
	entry.flags = flags
	entry.position = 0
	v.auditor.Log(security.AuditOpen, uid, gid, true, path, "open")
	return fd, nil
}

// Close releases the descriptor after giving the driver a chance to flush.
// The slot is freed even when the driver's close fails.
func (v *VFS) Close(fd FD) error {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return err
	}

	var closeErr error
	if entry.file != nil {
		closeErr = entry.file.Close()
	} else if entry.dir != nil {
		closeErr = entry.dir.Close()
	}
	v.freeFD(fd)
	return closeErr
}

// Read reads up to len(p) bytes from the descriptor, advancing its
// position by the bytes actually transferred. EOF is reported as a zero
// count with a nil error.
func (v *VFS) Read(fd FD, p []byte) (int, error) {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return 0, err
	}
	if entry.file == nil {
		return 0, fmt.Errorf("fd %d is not a file: %w", fd, ErrInvalidArgument)
	}

	n, err := entry.file.Read(p)
	entry.position += int64(n)
	if err == io.EOF {
		return n, nil
	}
	return n, err
}

// Write writes len(p) bytes to the descriptor. Descriptors opened without
// write intent are rejected before the driver is consulted.
func (v *VFS) Write(fd FD, p []byte) (int, error) {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return 0, err
	}
	if entry.file == nil {
		return 0, fmt.Errorf("fd %d is not a file: %w", fd, ErrInvalidArgument)
	}
	if !entry.flags.CanWrite() {
		return 0, fmt.Errorf("fd %d not opened for writing: %w", fd, ErrPermissionDenied)
	}

	n, err := entry.file.Write(p)
	entry.position += int64(n)
	return n, err
}

// Seek repositions the descriptor, then resynchronizes the cached position
// from the driver's own notion of it.
func (v *VFS) Seek(fd FD, offset int64, whence int) (int64, error) {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return 0, err
	}
	if entry.file == nil {
		return 0, fmt.Errorf("fd %d is not a file: %w", fd, ErrInvalidArgument)
	}

	if _, err := entry.file.Seek(offset, whence); err != nil {
		return 0, err
	}
	entry.position = entry.file.Tell()
	return entry.position, nil
}

// Tell returns the descriptor's current position.
func (v *VFS) Tell(fd FD) (int64, error) {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return 0, err
	}
	return entry.position, nil
}

// Stat describes the file at path.
func (v *VFS) Stat(path string) (FileInfo, error) {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return FileInfo{}, err
	}
	return mount.Volume.Stat(rel)
}

// Mkdir creates a directory at path.
func (v *VFS) Mkdir(path string) error {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return err
	}
	return mount.Volume.Mkdir(rel)
}

// Rmdir removes the empty directory at path.
func (v *VFS) Rmdir(path string) error {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return err
	}
	return mount.Volume.Rmdir(rel)
}

// Unlink removes the file at path.
func (v *VFS) Unlink(path string) error {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return err
	}
	return mount.Volume.Unlink(rel)
}

// Rename moves oldPath to newPath. Both paths must resolve to the same
// mount; cross-filesystem renames are not supported.
func (v *VFS) Rename(oldPath, newPath string) error {
	oldMount, oldRel, err := v.Resolve(oldPath)
	if err != nil {
		return err
	}
	newMount, newRel, err := v.Resolve(newPath)
	if err != nil {
		return err
	}
	if oldMount != newMount {
		return fmt.Errorf("rename across mounts: %w", ErrNotSupported)
	}
	return oldMount.Volume.Rename(oldRel, newRel)
}

// OpenDir opens the directory at path for traversal. The returned
// descriptor is distinct from file descriptors, so a directory walk and a
// file read can be open at the same time.
func (v *VFS) OpenDir(path string) (FD, error) {
	mount, rel, err := v.Resolve(path)
	if err != nil {
		return 0, err
	}

	fd, entry, err := v.allocFD()
	if err != nil {
		return 0, err
	}

	dir, err := mount.Volume.OpenDir(rel)
	if err != nil {
		v.freeFD(fd)
		return 0, fmt.Errorf("opendir %q: %w", path, err)
	}

	entry.mount = mount
	entry.dir = dir
	return fd, nil
}

// ReadDir returns the next entry of an open directory descriptor, or
// io.EOF when the listing is exhausted.
func (v *VFS) ReadDir(fd FD) (Dirent, error) {
	entry, err := v.lookupFD(fd)
	if err != nil {
		return Dirent{}, err
	}
	if entry.dir == nil {
		return Dirent{}, fmt.Errorf("fd %d is not a directory: %w", fd, ErrInvalidArgument)
	}
	return entry.dir.Read()
}

// CloseDir releases a directory descriptor.
func (v *VFS) CloseDir(fd FD) error {
	return v.Close(fd)
}

// Shutdown unmounts every mount in reverse mount order. The first error is
// returned but all unmounts are attempted.
func (v *VFS) Shutdown() error {
	v.mu.Lock()
	mounts := v.mounts
	v.mounts = nil
	v.root = nil
	v.mu.Unlock()

	var first error
	for i := len(mounts) - 1; i >= 0; i-- {
		if err := mounts[i].Volume.Unmount(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
