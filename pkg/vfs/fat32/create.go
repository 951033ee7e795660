package fat32

import (
	"errors"
	"fmt"
	"time"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// findFreeSlot returns the location of the first reusable entry in the
// directory chain starting at dirCluster, extending the chain with a
// fresh zeroed cluster when every slot is taken.
func (fs *FS) findFreeSlot(dirCluster uint32) (entryLocation, error) {
	buf := make([]byte, fs.bytesPerCluster)
	entriesPerCluster := fs.bytesPerCluster / dirEntrySize

	cluster := dirCluster
	for {
		if err := fs.readCluster(cluster, buf); err != nil {
			return entryLocation{}, err
		}
		for i := uint32(0); i < entriesPerCluster; i++ {
			first := buf[i*dirEntrySize]
			if first == 0x00 || first == 0xE5 {
				return entryLocation{cluster: cluster, index: i}, nil
			}
		}
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return entryLocation{}, err
		}
		if next >= clusterEOF {
			break
		}
		cluster = next
	}

	fresh, err := fs.allocCluster()
	if err != nil {
		return entryLocation{}, err
	}
	if err := fs.zeroCluster(fresh); err != nil {
		return entryLocation{}, err
	}
	if err := fs.setNextCluster(cluster, fresh); err != nil {
		return entryLocation{}, err
	}
	return entryLocation{cluster: fresh, index: 0}, nil
}

func (fs *FS) zeroCluster(cluster uint32) error {
	return fs.writeCluster(cluster, make([]byte, fs.bytesPerCluster))
}

// createFile adds a new empty file entry under the parent directory of
// path, allocating its first cluster.
func (fs *FS) createFile(path string) (dirEntry, entryLocation, error) {
	comps := splitPath(path)
	if len(comps) == 0 {
		return dirEntry{}, entryLocation{}, fmt.Errorf("fat32: cannot create root: %w", vfs.ErrInvalidArgument)
	}
	name := comps[len(comps)-1]

	parent := fs.rootCluster
	for _, comp := range comps[:len(comps)-1] {
		e, _, err := fs.findInDir(parent, comp)
		if err != nil {
			return dirEntry{}, entryLocation{}, err
		}
		if !e.isDir() {
			return dirEntry{}, entryLocation{}, fmt.Errorf("fat32: %q: %w", comp, vfs.ErrNotDirectory)
		}
		parent = e.cluster
	}

	if _, _, err := fs.findInDir(parent, name); err == nil {
		return dirEntry{}, entryLocation{}, fmt.Errorf("fat32: %q: %w", name, vfs.ErrAlreadyExists)
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return dirEntry{}, entryLocation{}, err
	}

	raw, err := formatName83(name)
	if err != nil {
		return dirEntry{}, entryLocation{}, err
	}

	cluster, err := fs.allocCluster()
	if err != nil {
		return dirEntry{}, entryLocation{}, err
	}
	if err := fs.zeroCluster(cluster); err != nil {
		return dirEntry{}, entryLocation{}, err
	}

	loc, err := fs.findFreeSlot(parent)
	if err != nil {
		return dirEntry{}, entryLocation{}, err
	}

	date, tod := timeToFAT(time.Now())
	e := dirEntry{
		name:       raw,
		attributes: attrArchive,
		crtTime:    tod,
		crtDate:    date,
		accDate:    date,
		wrtTime:    tod,
		wrtDate:    date,
		cluster:    cluster,
		fileSize:   0,
	}
	if err := fs.updateEntry(loc, &e); err != nil {
		return dirEntry{}, entryLocation{}, err
	}
	return e, loc, nil
}

// deleteFile removes a file: its cluster chain goes back to the free
// pool and its directory entry is marked deleted.
func (fs *FS) deleteFile(path string) error {
	e, loc, _, err := fs.lookup(path)
	if err != nil {
		return err
	}
	if e.isDir() {
		return fmt.Errorf("fat32: %q: %w", path, vfs.ErrIsDirectory)
	}

	if fs.validCluster(e.cluster) {
		if err := fs.freeChain(e.cluster); err != nil {
			return err
		}
	}

	buf := make([]byte, fs.bytesPerCluster)
	if err := fs.readCluster(loc.cluster, buf); err != nil {
		return err
	}
	buf[loc.index*dirEntrySize] = 0xE5
	return fs.writeCluster(loc.cluster, buf)
}

// renameFile renames an entry in place. Both paths must share the same
// parent directory.
func (fs *FS) renameFile(oldPath, newPath string) error {
	oldComps := splitPath(oldPath)
	newComps := splitPath(newPath)
	if len(oldComps) == 0 || len(newComps) == 0 {
		return fmt.Errorf("fat32: rename: %w", vfs.ErrInvalidArgument)
	}
	if len(oldComps) != len(newComps) {
		return vfs.ErrNotSupported
	}
	for i := 0; i < len(oldComps)-1; i++ {
		if upperPath(oldComps[i]) != upperPath(newComps[i]) {
			return vfs.ErrNotSupported
		}
	}

	e, loc, parent, err := fs.lookup(oldPath)
	if err != nil {
		return err
	}
	newName := newComps[len(newComps)-1]
	if _, _, err := fs.findInDir(parent, newName); err == nil {
		return fmt.Errorf("fat32: %q: %w", newName, vfs.ErrAlreadyExists)
	} else if !errors.Is(err, vfs.ErrNotFound) {
		return err
	}

	raw, err := formatName83(newName)
	if err != nil {
		return err
	}
	e.name = raw
	e.wrtDate, e.wrtTime = timeToFAT(time.Now())
	return fs.updateEntry(loc, &e)
}

func upperPath(s string) string {
	b := []byte(s)
	for i := range b {
		b[i] = upperByte(b[i])
	}
	return string(b)
}
