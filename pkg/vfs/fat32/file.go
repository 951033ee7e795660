package fat32

import (
	"errors"
	"io"
	"time"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// file is an open FAT32 file handle. One cluster is cached at a time; the
// cache is written back before switching clusters and on close.
type file struct {
	fs    *FS
	entry dirEntry
	loc   entryLocation

	position       int64
	size           int64
	currentCluster uint32
	clusterBuf     []byte
	clusterDirty   bool
	writable       bool
	entryModified  bool
	closed         bool
}

func (fs *FS) openFile(e dirEntry, loc entryLocation, flags vfs.OpenFlags) (*file, error) {
	f := &file{
		fs:       fs,
		entry:    e,
		loc:      loc,
		size:     int64(e.fileSize),
		writable: flags.CanWrite(),
	}
	if flags&vfs.FlagTrunc != 0 && flags.CanWrite() && f.size > 0 {
		if fs.validCluster(e.cluster) {
			// Keep the first cluster, release the rest of the chain.
			next, err := fs.nextCluster(e.cluster)
			if err != nil {
				return nil, err
			}
			if next < clusterEOF {
				if err := fs.freeChain(next); err != nil {
					return nil, err
				}
				if err := fs.setNextCluster(e.cluster, clusterEOF); err != nil {
					return nil, err
				}
			}
		}
		f.size = 0
		f.entry.fileSize = 0
		f.entryModified = true
	}
	return f, nil
}

// flushCluster writes back the cached cluster if it is dirty.
func (f *file) flushCluster() error {
	if !f.clusterDirty || f.clusterBuf == nil || !f.fs.validCluster(f.currentCluster) {
		return nil
	}
	if err := f.fs.writeCluster(f.currentCluster, f.clusterBuf); err != nil {
		return err
	}
	f.clusterDirty = false
	return nil
}

// loadCluster makes cluster the cached one, flushing the previous cache
// first.
func (f *file) loadCluster(cluster uint32) error {
	if err := f.flushCluster(); err != nil {
		return err
	}
	if f.clusterBuf == nil {
		f.clusterBuf = make([]byte, f.fs.bytesPerCluster)
	}
	if err := f.fs.readCluster(cluster, f.clusterBuf); err != nil {
		return err
	}
	f.currentCluster = cluster
	return nil
}

// clusterForRead maps a position inside the file to its cluster by walking
// the chain from the first cluster. Positions at or past EOF map to zero.
func (f *file) clusterForRead(position int64) (uint32, error) {
	if position >= f.size || !f.fs.validCluster(f.entry.cluster) {
		return 0, nil
	}
	hops := uint32(position / int64(f.fs.bytesPerCluster))
	cluster, err := f.fs.walkChain(f.entry.cluster, hops)
	if err != nil {
		if errors.Is(err, vfs.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return cluster, nil
}

// clusterForWrite maps a position to its cluster, allocating and linking
// new clusters onto the chain as needed.
func (f *file) clusterForWrite(position int64) (uint32, error) {
	idx := uint32(position / int64(f.fs.bytesPerCluster))

	if !f.fs.validCluster(f.entry.cluster) {
		first, err := f.fs.allocCluster()
		if err != nil {
			return 0, err
		}
		f.entry.cluster = first
		f.entryModified = true
	}

	cluster := f.entry.cluster
	for i := uint32(0); i < idx; i++ {
		next, err := f.fs.nextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if next >= clusterEOF {
			fresh, err := f.fs.allocCluster()
			if err != nil {
				return 0, err
			}
			if err := f.fs.setNextCluster(cluster, fresh); err != nil {
				return 0, err
			}
			next = fresh
		}
		cluster = next
	}
	return cluster, nil
}

// Read copies up to len(p) bytes cluster by cluster. A read past EOF
// returns io.EOF with a zero count; a chain hole is a short read.
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

	total := 0
	for toRead > 0 {
		cluster, err := f.clusterForRead(f.position)
		if err != nil {
			return total, err
		}
		if cluster == 0 {
			break
		}
		if f.currentCluster != cluster {
			if err := f.loadCluster(cluster); err != nil {
				return total, err
			}
		}

		offset := uint32(f.position % int64(f.fs.bytesPerCluster))
		span := int64(f.fs.bytesPerCluster - offset)
		if span > toRead {
			span = toRead
		}
		copy(p[total:], f.clusterBuf[offset:int64(offset)+span])

		total += int(span)
		f.position += span
		toRead -= span
	}
	return total, nil
}

// Write copies len(p) bytes cluster by cluster, extending the file and its
// cluster chain as needed.
func (f *file) Write(p []byte) (int, error) {
	if f.closed {
		return 0, vfs.ErrInvalidState
	}
	if !f.writable {
		return 0, vfs.ErrPermissionDenied
	}
	if f.entry.attributes&attrReadOnly != 0 {
		return 0, vfs.ErrPermissionDenied
	}

	total := 0
	for total < len(p) {
		cluster, err := f.clusterForWrite(f.position)
		if err != nil {
			return total, err
		}
		if f.currentCluster != cluster {
			if err := f.loadCluster(cluster); err != nil {
				return total, err
			}
		}

		offset := uint32(f.position % int64(f.fs.bytesPerCluster))
		span := int(f.fs.bytesPerCluster - offset)
		if span > len(p)-total {
			span = len(p) - total
		}
		copy(f.clusterBuf[offset:], p[total:total+span])
		f.clusterDirty = true

		total += span
		f.position += int64(span)
		if f.position > f.size {
			f.size = f.position
			f.entryModified = true
		}
	}
	return total, nil
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

// Tell returns the current position.
func (f *file) Tell() int64 {
	return f.position
}

// Close writes back the cached cluster and, when the file grew or moved,
// its directory entry.
func (f *file) Close() error {
	if f.closed {
		return nil
	}
	f.closed = true

	if err := f.flushCluster(); err != nil {
		return err
	}
	if f.entryModified {
		f.entry.fileSize = uint32(f.size)
		f.entry.wrtDate, f.entry.wrtTime = timeToFAT(time.Now())
		f.fs.mu.Lock()
		err := f.fs.updateEntry(f.loc, &f.entry)
		f.fs.mu.Unlock()
		if err != nil {
			return err
		}
	}
	return f.fs.dev.Flush()
}
