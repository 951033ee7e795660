package ext4

import (
	"fmt"
	"io"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

const (
	fileTypeRegular = 1
	fileTypeDir     = 2
)

// dirent is one decoded directory entry from an entry stream.
type dirent struct {
	inode    uint32
	recLen   uint16
	nameLen  uint8
	fileType uint8
	name     string
}

// decodeDirent decodes the entry at the start of raw. A zero inode is
// the end-of-block sentinel and a zero rec_len is a malformed stream;
// both are surfaced to the caller through the ok result.
func decodeDirent(raw []byte) (dirent, bool) {
	if len(raw) < 8 {
		return dirent{}, false
	}
	var e dirent
	e.inode = uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	e.recLen = uint16(raw[4]) | uint16(raw[5])<<8
	e.nameLen = raw[6]
	e.fileType = raw[7]
	if e.inode == 0 || e.recLen == 0 || int(8+e.nameLen) > len(raw) {
		return e, false
	}
	e.name = string(raw[8 : 8+e.nameLen])
	return e, true
}

// findInDir scans a directory's entry stream for name, covering the
// inode's direct blocks.
func (fs *FS) findInDir(dir *inode, name string) (uint32, error) {
	if !dir.isDir() {
		return 0, vfs.ErrNotDirectory
	}

	size := dir.size()
	blocksToRead := uint32((size + int64(fs.blockSize) - 1) / int64(fs.blockSize))
	if blocksToRead > directBlocks {
		blocksToRead = directBlocks
	}

	buf := make([]byte, fs.blockSize)
	for i := uint32(0); i < blocksToRead; i++ {
		if err := fs.readInodeBlock(dir, i, buf); err != nil {
			return 0, err
		}
		pos := uint32(0)
		for pos < fs.blockSize {
			e, ok := decodeDirent(buf[pos:])
			if !ok {
				break
			}
			if e.name == name {
				return e.inode, nil
			}
			pos += uint32(e.recLen)
		}
	}
	return 0, fmt.Errorf("ext4: %q: %w", name, vfs.ErrNotFound)
}

// lookup resolves a path relative to the volume root to an inode
// number and its decoded inode.
func (fs *FS) lookup(path string) (uint32, inode, error) {
	num := uint32(rootInode)
	ino, err := fs.readInode(num)
	if err != nil {
		return 0, inode{}, err
	}
	for _, comp := range splitPath(path) {
		num, err = fs.findInDir(&ino, comp)
		if err != nil {
			return 0, inode{}, err
		}
		ino, err = fs.readInode(num)
		if err != nil {
			return 0, inode{}, err
		}
	}
	return num, ino, nil
}

func splitPath(path string) []string {
	var comps []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' {
			if i > start {
				comps = append(comps, path[start:i])
			}
			start = i + 1
		}
	}
	return comps
}

// dirHandle iterates a directory's entry stream.
type dirHandle struct {
	fs    *FS
	ino   inode
	block uint32
	pos   uint32
	buf   []byte
	done  bool
}

func (fs *FS) openDirHandle(ino inode) (*dirHandle, error) {
	if !ino.isDir() {
		return nil, vfs.ErrNotDirectory
	}
	d := &dirHandle{fs: fs, ino: ino, buf: make([]byte, fs.blockSize)}
	if err := fs.readInodeBlock(&d.ino, 0, d.buf); err != nil {
		return nil, err
	}
	return d, nil
}

// Read returns the next entry, skipping the "." and ".." links, or
// io.EOF at the end of the stream.
func (d *dirHandle) Read() (vfs.Dirent, error) {
	for {
		if d.done {
			return vfs.Dirent{}, io.EOF
		}

		e, ok := decodeDirent(d.buf[d.pos:])
		if !ok {
			if err := d.advanceBlock(); err != nil {
				return vfs.Dirent{}, err
			}
			continue
		}
		d.pos += uint32(e.recLen)
		if d.pos >= d.fs.blockSize {
			if err := d.advanceBlock(); err != nil && err != io.EOF {
				return vfs.Dirent{}, err
			}
		}

		if e.name == "." || e.name == ".." {
			continue
		}

		ent := vfs.Dirent{
			Name:  e.name,
			IsDir: e.fileType == fileTypeDir,
		}
		if child, err := d.fs.readInode(e.inode); err == nil {
			ent.Size = child.size()
			if e.fileType == 0 {
				ent.IsDir = child.isDir()
			}
		}
		return ent, nil
	}
}

// advanceBlock moves to the next direct block of the directory, marking
// the handle done past the last one.
func (d *dirHandle) advanceBlock() error {
	size := d.ino.size()
	blocks := uint32((size + int64(d.fs.blockSize) - 1) / int64(d.fs.blockSize))
	if blocks > directBlocks {
		blocks = directBlocks
	}

	d.block++
	d.pos = 0
	if d.block >= blocks {
		d.done = true
		return io.EOF
	}
	return d.fs.readInodeBlock(&d.ino, d.block, d.buf)
}

func (d *dirHandle) Close() error {
	d.done = true
	return nil
}
