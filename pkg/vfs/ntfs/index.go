package ntfs

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

const (
	// Index entry flags.
	entryHasSubnode = 0x01
	entryIsLast     = 0x02

	// $FILE_NAME file flags.
	fileNameDirectory = 0x10000000

	// DOS short-name namespace, filtered from listings in favor of the
	// Win32 long name.
	namespaceDOS = 2
)

// indexEntry is one decoded entry of a directory's $INDEX_ROOT node,
// with the interesting fields of its embedded $FILE_NAME key.
type indexEntry struct {
	ref       uint64
	name      string
	size      uint64
	isDir     bool
	namespace uint8
}

// parseIndexRoot decodes the entry list of a directory's $INDEX_ROOT
// attribute value. The list ends at the entry flagged as last, which
// carries no key.
func parseIndexRoot(value []byte) ([]indexEntry, error) {
	if len(value) < 32 {
		return nil, fmt.Errorf("ntfs: short index root: %w", vfs.ErrInvalidFormat)
	}
	// The node header starts at offset 16; its entries-offset field is
	// relative to the node header.
	entriesOffset := binary.LittleEndian.Uint32(value[16:20])
	pos := 16 + entriesOffset

	var entries []indexEntry
	for pos+16 <= uint32(len(value)) {
		length := uint32(binary.LittleEndian.Uint16(value[pos+8 : pos+10]))
		keyLength := uint32(binary.LittleEndian.Uint16(value[pos+10 : pos+12]))
		flags := binary.LittleEndian.Uint16(value[pos+12 : pos+14])

		if flags&entryIsLast != 0 {
			break
		}
		if length == 0 || pos+length > uint32(len(value)) {
			return nil, fmt.Errorf("ntfs: malformed index entry at %d: %w", pos, vfs.ErrInvalidFormat)
		}

		if keyLength >= 66 {
			key := value[pos+16 : pos+16+keyLength]
			nameLen := uint32(key[64])
			if 66+2*nameLen <= keyLength {
				entries = append(entries, indexEntry{
					ref:       binary.LittleEndian.Uint64(value[pos:pos+8]) & mftRefMask,
					name:      decodeName(key[66 : 66+2*nameLen]),
					size:      binary.LittleEndian.Uint64(key[48:56]),
					isDir:     binary.LittleEndian.Uint32(key[56:60])&fileNameDirectory != 0,
					namespace: key[65],
				})
			}
		}
		pos += length
	}
	return entries, nil
}

// decodeName narrows a UTF-16LE name to bytes. Code units outside the
// ASCII range come out as '?'.
func decodeName(raw []byte) string {
	out := make([]byte, 0, len(raw)/2)
	for i := 0; i+1 < len(raw); i += 2 {
		u := binary.LittleEndian.Uint16(raw[i : i+2])
		if u > 0x7F {
			out = append(out, '?')
			continue
		}
		out = append(out, byte(u))
	}
	return string(out)
}

// indexEntries reads and parses the $INDEX_ROOT of the directory MFT
// record.
func (fs *FS) indexEntries(record []byte) ([]indexEntry, error) {
	root, err := findAttribute(record, attrIndexRoot)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return nil, vfs.ErrNotDirectory
		}
		return nil, err
	}
	value, err := root.residentValue()
	if err != nil {
		return nil, err
	}
	return parseIndexRoot(value)
}

// findInIndex looks name up in a directory record's index and returns
// the referenced MFT record number.
func (fs *FS) findInIndex(record []byte, name string) (uint64, error) {
	entries, err := fs.indexEntries(record)
	if err != nil {
		return 0, err
	}
	for _, e := range entries {
		if e.name == name {
			return e.ref, nil
		}
	}
	return 0, fmt.Errorf("ntfs: %q: %w", name, vfs.ErrNotFound)
}

// lookup resolves a path relative to the volume root to its MFT record
// number and record contents.
func (fs *FS) lookup(path string) (uint64, []byte, error) {
	num := uint64(rootRecord)
	record, err := fs.readMFTRecord(num)
	if err != nil {
		return 0, nil, err
	}
	for _, comp := range splitPath(path) {
		num, err = fs.findInIndex(record, comp)
		if err != nil {
			return 0, nil, err
		}
		record, err = fs.readMFTRecord(num)
		if err != nil {
			return 0, nil, err
		}
	}
	return num, record, nil
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

// dirHandle iterates the entries of a directory's root index. The
// entry list is materialized at open time; DOS short-name duplicates
// are filtered out.
type dirHandle struct {
	entries []indexEntry
	pos     int
}

func (fs *FS) openDirHandle(record []byte) (*dirHandle, error) {
	all, err := fs.indexEntries(record)
	if err != nil {
		return nil, err
	}
	entries := all[:0:0]
	for _, e := range all {
		if e.namespace == namespaceDOS {
			continue
		}
		entries = append(entries, e)
	}
	return &dirHandle{entries: entries}, nil
}

func (d *dirHandle) Read() (vfs.Dirent, error) {
	if d.pos >= len(d.entries) {
		return vfs.Dirent{}, io.EOF
	}
	e := d.entries[d.pos]
	d.pos++
	return vfs.Dirent{
		Name:  e.name,
		IsDir: e.isDir,
		Size:  int64(e.size),
	}, nil
}

func (d *dirHandle) Close() error {
	d.pos = len(d.entries)
	return nil
}
