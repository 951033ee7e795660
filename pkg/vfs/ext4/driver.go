package ext4

import (
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// Driver mounts ext4 volumes read-only. Register it with a VFS under
// the name "ext4".
type Driver struct{}

// NewDriver returns the ext4 driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string {
	return "ext4"
}

// Mount interprets dev as an ext4 volume.
func (d *Driver) Mount(dev block.Device) (vfs.Volume, error) {
	fs, err := Open(dev)
	if err != nil {
		return nil, err
	}
	return &volume{fs: fs}, nil
}

// volume adapts FS to the vfs.Volume contract. All mutation is
// rejected.
type volume struct {
	fs *FS
}

func (v *volume) Unmount() error {
	return nil
}

func (v *volume) ReadOnly() bool {
	return true
}

func (v *volume) Open(path string, flags vfs.OpenFlags) (vfs.File, error) {
	if flags.CanWrite() || flags&(vfs.FlagCreate|vfs.FlagTrunc) != 0 {
		return nil, vfs.ErrReadOnly
	}
	_, ino, err := v.fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if ino.isDir() {
		return nil, vfs.ErrIsDirectory
	}
	return v.fs.openFile(ino), nil
}

func (v *volume) Stat(path string) (vfs.FileInfo, error) {
	_, ino, err := v.fs.lookup(path)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	name := "/"
	if comps := splitPath(path); len(comps) > 0 {
		name = comps[len(comps)-1]
	}
	return vfs.FileInfo{
		Name:  name,
		Size:  ino.size(),
		Mode:  uint32(ino.mode) & 0o7777,
		UID:   uint32(ino.uid),
		GID:   uint32(ino.gid),
		IsDir: ino.isDir(),
	}, nil
}

func (v *volume) Mkdir(path string) error {
	return vfs.ErrReadOnly
}

func (v *volume) Rmdir(path string) error {
	return vfs.ErrReadOnly
}

func (v *volume) Unlink(path string) error {
	return vfs.ErrReadOnly
}

func (v *volume) Rename(oldPath, newPath string) error {
	return vfs.ErrReadOnly
}

func (v *volume) OpenDir(path string) (vfs.Dir, error) {
	_, ino, err := v.fs.lookup(path)
	if err != nil {
		return nil, err
	}
	return v.fs.openDirHandle(ino)
}
