package ext4

import (
	"io"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// file is a read-only open file handle.
type file struct {
	fs       *FS
	ino      inode
	size     int64
	position int64
	closed   bool
}

func (fs *FS) openFile(ino inode) *file {
	return &file{fs: fs, ino: ino, size: ino.size()}
}

// Read copies up to len(p) bytes block by block from the current
// position.
func (f *file) Read(p []byte) (int, error) {
	if f.closed {
		return 0, vfs.ErrInvalidState
	}
	if f.position >= f.size {
		return 0, io.EOF
	}

	toRead := int64(len(p))
	if remaining := f.size - f.position; toRead > remaining {
		toRead = remaining
	}

	buf := make([]byte, f.fs.blockSize)
	total := int64(0)
	for total < toRead {
		blockIndex := uint32(f.position / int64(f.fs.blockSize))
		if err := f.fs.readInodeBlock(&f.ino, blockIndex, buf); err != nil {
			return int(total), err
		}

		offset := f.position % int64(f.fs.blockSize)
		span := int64(f.fs.blockSize) - offset
		if span > toRead-total {
			span = toRead - total
		}
		copy(p[total:], buf[offset:offset+span])

		total += span
		f.position += span
	}
	return int(total), nil
}

func (f *file) Write(p []byte) (int, error) {
	return 0, vfs.ErrReadOnly
}

// Seek repositions the handle, clamping the result to [0, size].
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
