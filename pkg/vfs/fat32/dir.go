package fat32

import (
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// dirEntry is a decoded 32-byte FAT directory entry.
type dirEntry struct {
	name       [11]byte
	attributes uint8
	crtTime    uint16
	crtDate    uint16
	accDate    uint16
	wrtTime    uint16
	wrtDate    uint16
	cluster    uint32
	fileSize   uint32
}

func decodeDirEntry(raw []byte) dirEntry {
	var e dirEntry
	copy(e.name[:], raw[0:11])
	e.attributes = raw[11]
	e.crtTime = binary.LittleEndian.Uint16(raw[14:16])
	e.crtDate = binary.LittleEndian.Uint16(raw[16:18])
	e.accDate = binary.LittleEndian.Uint16(raw[18:20])
	high := binary.LittleEndian.Uint16(raw[20:22])
	e.wrtTime = binary.LittleEndian.Uint16(raw[22:24])
	e.wrtDate = binary.LittleEndian.Uint16(raw[24:26])
	low := binary.LittleEndian.Uint16(raw[26:28])
	e.cluster = uint32(high)<<16 | uint32(low)
	e.fileSize = binary.LittleEndian.Uint32(raw[28:32])
	return e
}

func (e *dirEntry) encode(raw []byte) {
	copy(raw[0:11], e.name[:])
	raw[11] = e.attributes
	raw[12] = 0
	raw[13] = 0
	binary.LittleEndian.PutUint16(raw[14:16], e.crtTime)
	binary.LittleEndian.PutUint16(raw[16:18], e.crtDate)
	binary.LittleEndian.PutUint16(raw[18:20], e.accDate)
	binary.LittleEndian.PutUint16(raw[20:22], uint16(e.cluster>>16))
	binary.LittleEndian.PutUint16(raw[22:24], e.wrtTime)
	binary.LittleEndian.PutUint16(raw[24:26], e.wrtDate)
	binary.LittleEndian.PutUint16(raw[26:28], uint16(e.cluster&0xFFFF))
	binary.LittleEndian.PutUint32(raw[28:32], e.fileSize)
}

func (e *dirEntry) isDir() bool  { return e.attributes&attrDirectory != 0 }
func (e *dirEntry) isFree() bool { return e.name[0] == 0x00 || e.name[0] == 0xE5 }

// skippable reports entries that never surface in listings: deleted
// entries, long-name fragments, and volume labels.
func (e *dirEntry) skippable() bool {
	if e.name[0] == 0xE5 {
		return true
	}
	if e.attributes&attrLongName == attrLongName {
		return true
	}
	return e.attributes&attrVolumeID != 0
}

// formatName83 converts a dotted name to the 11-byte uppercase on-disk
// form, space padded.
func formatName83(name string) ([11]byte, error) {
	var out [11]byte
	for i := range out {
		out[i] = ' '
	}

	base, ext := name, ""
	if dot := strings.LastIndexByte(name, '.'); dot >= 0 {
		base, ext = name[:dot], name[dot+1:]
	}
	if base == "" || len(base) > 8 || len(ext) > 3 {
		return out, fmt.Errorf("fat32: name %q does not fit 8.3: %w", name, vfs.ErrInvalidArgument)
	}

	for i := 0; i < len(base); i++ {
		out[i] = upperByte(base[i])
	}
	for i := 0; i < len(ext); i++ {
		out[8+i] = upperByte(ext[i])
	}
	return out, nil
}

func upperByte(c byte) byte {
	if c >= 'a' && c <= 'z' {
		return c - 'a' + 'A'
	}
	return c
}

// displayName converts the 11-byte on-disk form back to a dotted name.
func displayName(raw [11]byte) string {
	var sb strings.Builder
	for i := 0; i < 8; i++ {
		if raw[i] == ' ' {
			break
		}
		sb.WriteByte(raw[i])
	}
	if raw[8] != ' ' {
		sb.WriteByte('.')
		for i := 8; i < 11; i++ {
			if raw[i] == ' ' {
				break
			}
			sb.WriteByte(raw[i])
		}
	}
	return sb.String()
}

// entryLocation pins a directory entry to its containing cluster and slot.
type entryLocation struct {
	cluster uint32
	index   uint32
}

// findInDir scans the directory chain starting at dirCluster for name.
// The scan stops at the 0x00 end sentinel.
func (fs *FS) findInDir(dirCluster uint32, name string) (dirEntry, entryLocation, error) {
	want, err := formatName83(name)
	if err != nil {
		return dirEntry{}, entryLocation{}, err
	}

	buf := make([]byte, fs.bytesPerCluster)
	entriesPerCluster := fs.bytesPerCluster / dirEntrySize

	cluster := dirCluster
	for fs.validCluster(cluster) {
		if err := fs.readCluster(cluster, buf); err != nil {
			return dirEntry{}, entryLocation{}, err
		}
		for i := uint32(0); i < entriesPerCluster; i++ {
			raw := buf[i*dirEntrySize : (i+1)*dirEntrySize]
			if raw[0] == 0x00 {
				return dirEntry{}, entryLocation{}, vfs.ErrNotFound
			}
			e := decodeDirEntry(raw)
			if e.skippable() {
				continue
			}
			if e.name == want {
				return e, entryLocation{cluster: cluster, index: i}, nil
			}
		}
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return dirEntry{}, entryLocation{}, err
		}
		if next >= clusterEOF {
			break
		}
		cluster = next
	}
	return dirEntry{}, entryLocation{}, vfs.ErrNotFound
}

// lookupDir walks the components of a directory path and returns the
// cluster of the final directory. An empty path is the root directory.
func (fs *FS) lookupDir(path string) (uint32, error) {
	cluster := fs.rootCluster
	for _, comp := range splitPath(path) {
		e, _, err := fs.findInDir(cluster, comp)
		if err != nil {
			return 0, err
		}
		if !e.isDir() {
			return 0, fmt.Errorf("fat32: %q: %w", comp, vfs.ErrNotDirectory)
		}
		cluster = e.cluster
	}
	return cluster, nil
}

// lookup resolves a file path to its entry, its location, and its parent
// directory cluster.
func (fs *FS) lookup(path string) (dirEntry, entryLocation, uint32, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return dirEntry{}, entryLocation{}, 0, fmt.Errorf("fat32: root has no entry: %w", vfs.ErrIsDirectory)
	}

	parent := fs.rootCluster
	for _, comp := range comps[:len(comps)-1] {
		e, _, err := fs.findInDir(parent, comp)
		if err != nil {
			return dirEntry{}, entryLocation{}, 0, err
		}
		if !e.isDir() {
			return dirEntry{}, entryLocation{}, 0, fmt.Errorf("fat32: %q: %w", comp, vfs.ErrNotDirectory)
		}
		parent = e.cluster
	}

	e, loc, err := fs.findInDir(parent, comps[len(comps)-1])
	return e, loc, parent, err
}

func splitPath(path string) []string {
	var comps []string
	for _, c := range strings.Split(path, "/") {
		if c != "" {
			comps = append(comps, c)
		}
	}
	return comps
}

// updateEntry rewrites a directory entry in place.
func (fs *FS) updateEntry(loc entryLocation, e *dirEntry) error {
	buf := make([]byte, fs.bytesPerCluster)
	if err := fs.readCluster(loc.cluster, buf); err != nil {
		return err
	}
	e.encode(buf[loc.index*dirEntrySize : (loc.index+1)*dirEntrySize])
	return fs.writeCluster(loc.cluster, buf)
}

// dirHandle iterates a directory's cluster chain entry by entry.
type dirHandle struct {
	fs      *FS
	cluster uint32
	index   uint32
	buf     []byte
	done    bool
}

func (fs *FS) openDirHandle(cluster uint32) (*dirHandle, error) {
	d := &dirHandle{
		fs:      fs,
		cluster: cluster,
		buf:     make([]byte, fs.bytesPerCluster),
	}
	if err := fs.readCluster(cluster, d.buf); err != nil {
		return nil, err
	}
	return d, nil
}

// Read returns the next visible entry, or io.EOF at the end sentinel or
// the end of the cluster chain.
func (d *dirHandle) Read() (vfs.Dirent, error) {
	if d.done {
		return vfs.Dirent{}, io.EOF
	}
	entriesPerCluster := d.fs.bytesPerCluster / dirEntrySize

	for {
		if d.index >= entriesPerCluster {
			next, err := d.fs.nextCluster(d.cluster)
			if err != nil {
				return vfs.Dirent{}, err
			}
			if next >= clusterEOF {
				d.done = true
				return vfs.Dirent{}, io.EOF
			}
			d.cluster = next
			d.index = 0
			if err := d.fs.readCluster(d.cluster, d.buf); err != nil {
				return vfs.Dirent{}, err
			}
		}

		raw := d.buf[d.index*dirEntrySize : (d.index+1)*dirEntrySize]
		if raw[0] == 0x00 {
			d.done = true
			return vfs.Dirent{}, io.EOF
		}
		e := decodeDirEntry(raw)
		d.index++
		if e.skippable() {
			continue
		}
		return vfs.Dirent{
			Name:  displayName(e.name),
			IsDir: e.isDir(),
			Size:  int64(e.fileSize),
		}, nil
	}
}

func (d *dirHandle) Close() error {
	d.done = true
	return nil
}
