package ntfs

import (
	"errors"
	"io"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// Driver mounts NTFS volumes read-only. Register it with a VFS under
// the name "ntfs".
type Driver struct{}

// NewDriver returns the NTFS driver.
func NewDriver() *Driver {
	return &Driver{}
}

func (d *Driver) Name() string {
	return "ntfs"
}

// Mount interprets dev as an NTFS volume.
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
	_, record, err := v.fs.lookup(path)
	if err != nil {
		return nil, err
	}
	if recordIsDirectory(record) {
		return nil, vfs.ErrIsDirectory
	}
	data, err := findAttribute(record, attrData)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, vfs.ErrInvalidFormat
		}
		return nil, err
	}
	return &file{fs: v.fs, data: data, size: int64(data.dataSize())}, nil
}

func (v *volume) Stat(path string) (vfs.FileInfo, error) {
	_, record, err := v.fs.lookup(path)
	if err != nil {
		return vfs.FileInfo{}, err
	}

	name := "/"
	if comps := splitPath(path); len(comps) > 0 {
		name = comps[len(comps)-1]
	}
	info := vfs.FileInfo{Name: name, IsDir: recordIsDirectory(record)}
	if info.IsDir {
		info.Mode = 0o555
	} else {
		info.Mode = 0o444
		if data, err := findAttribute(record, attrData); err == nil {
			info.Size = int64(data.dataSize())
		}
	}
	return info, nil
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
	_, record, err := v.fs.lookup(path)
	if err != nil {
		return nil, err
	}
	return v.fs.openDirHandle(record)
}

// file is a read-only open file handle over a $DATA attribute. The
// attribute, including its run list, is captured at open time.
type file struct {
	fs       *FS
	data     attribute
	size     int64
	position int64
	closed   bool
}

func (f *file) Read(p []byte) (int, error) {
	if f.closed {
		return 0, vfs.ErrInvalidState
	}
	if f.position >= f.size {
		return 0, io.EOF
	}
	n, err := f.fs.readData(&f.data, uint64(f.position), p)
	if err != nil {
		return 0, err
	}
	f.position += int64(n)
	return n, nil
}

func (f *file) Write(p []byte) (int, error) {
	return 0, vfs.ErrReadOnly
}

func (f *file) Seek(offset int64, whence int) (int64, error) {
	if f.closed {
		return 0, vfs.ErrInvalidState
	}

	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = f.position + offset
	case io.SeekEnd:
		pos = f.size + offset
	default:
		return 0, vfs.ErrInvalidArgument
	}
	if pos < 0 {
		pos = 0
	}
	if pos > f.size {
		pos = f.size
	}
	f.position = pos
	return pos, nil
}

func (f *file) Tell() int64 {
	return f.position
}

func (f *file) Close() error {
	f.closed = true
	return nil
}
