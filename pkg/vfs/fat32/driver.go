package fat32

import (
	"errors"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// Driver mounts FAT32 volumes. Register it with a VFS under the name
// "fat32".
type Driver struct{}

// NewDriver returns the FAT32 driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string {
	return "fat32"
}

// Mount interprets dev as a FAT32 volume.
func (d *Driver) Mount(dev block.Device) (vfs.Volume, error) {
	fs, err := Open(dev)
	if err != nil {
		return nil, err
	}
	return &volume{fs: fs}, nil
}

// volume adapts FS to the vfs.Volume contract.
type volume struct {
	fs *FS
}

func (v *volume) Unmount() error {
	return v.fs.dev.Flush()
}

func (v *volume) ReadOnly() bool {
	return false
}

func (v *volume) Open(path string, flags vfs.OpenFlags) (vfs.File, error) {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()

	if len(splitPath(path)) == 0 {
		return nil, vfs.ErrIsDirectory
	}

	e, loc, _, err := v.fs.lookup(path)
	if errors.Is(err, vfs.ErrNotFound) && flags&vfs.FlagCreate != 0 && flags.CanWrite() {
		e, loc, err = v.fs.createFile(path)
	}
	if err != nil {
		return nil, err
	}
	if e.isDir() {
		return nil, vfs.ErrIsDirectory
	}
	return v.fs.openFile(e, loc, flags)
}

func (v *volume) Stat(path string) (vfs.FileInfo, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()

	if len(splitPath(path)) == 0 {
		return vfs.FileInfo{Name: "/", Mode: 0o755, IsDir: true}, nil
	}

	e, _, _, err := v.fs.lookup(path)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	info := vfs.FileInfo{
		Name:  displayName(e.name),
		Size:  int64(e.fileSize),
		IsDir: e.isDir(),
	}
	if e.isDir() {
		info.Mode = 0o755
	} else {
		info.Mode = 0o644
		if e.attributes&attrReadOnly != 0 {
			info.Mode = 0o444
		}
	}
	return info, nil
}

// Mkdir is not implemented; directories can only be created by external
// tooling.
func (v *volume) Mkdir(path string) error {
	return vfs.ErrNotSupported
}

func (v *volume) Rmdir(path string) error {
	return vfs.ErrNotSupported
}

func (v *volume) Unlink(path string) error {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return v.fs.deleteFile(path)
}

func (v *volume) Rename(oldPath, newPath string) error {
	v.fs.mu.Lock()
	defer v.fs.mu.Unlock()
	return v.fs.renameFile(oldPath, newPath)
}

func (v *volume) OpenDir(path string) (vfs.Dir, error) {
	v.fs.mu.RLock()
	defer v.fs.mu.RUnlock()

	cluster, err := v.fs.lookupDir(path)
	if err != nil {
		return nil, err
	}
	return v.fs.openDirHandle(cluster)
}
