package block

import (
	"fmt"
	"os"
	"sync"
)

// FileDevice is a block device backed by a file.
type FileDevice struct {
	name       string
	file       *os.File
	blockSize  int
	blockCount uint64
	closed     bool
	mu         sync.RWMutex
}

// NewFileDevice creates a block device backed by a file, creating or
// extending the file as needed.
func NewFileDevice(name, path string, blockCount uint64, blockSize int) (*FileDevice, error) {
	if name == "" {
		return nil, fmt.Errorf("block: empty device name")
	}
	if blockCount == 0 {
		return nil, ErrInvalidBlockNumber
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block: invalid block size: %d", blockSize)
	}

	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0600)
	if err != nil {
		return nil, err
	}

	totalSize := int64(blockCount) * int64(blockSize)
	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}
	if stat.Size() < totalSize {
		if err := file.Truncate(totalSize); err != nil {
			file.Close()
			return nil, err
		}
	}

	return &FileDevice{
		name:       name,
		file:       file,
		blockSize:  blockSize,
		blockCount: blockCount,
	}, nil
}

// OpenFileDevice opens an existing file as a block device. The block count
// is derived from the file size.
func OpenFileDevice(name, path string, blockSize int) (*FileDevice, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("block: invalid block size: %d", blockSize)
	}

	file, err := os.OpenFile(path, os.O_RDWR, 0600)
	if err != nil {
		return nil, err
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, err
	}

	return &FileDevice{
		name:       name,
		file:       file,
		blockSize:  blockSize,
		blockCount: uint64(stat.Size()) / uint64(blockSize),
	}, nil
}

// Name returns the device name.
func (d *FileDevice) Name() string {
	return d.name
}

// Read reads a block from the file.
func (d *FileDevice) Read(blockNum uint64, data []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if blockNum >= d.blockCount {
		return ErrInvalidBlockNumber
	}
	if len(data) != d.blockSize {
		return ErrBlockSizeMismatch
	}

	offset := int64(blockNum) * int64(d.blockSize)
	_, err := d.file.ReadAt(data, offset)
	return err
}

// Write writes a block to the file.
func (d *FileDevice) Write(blockNum uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	if blockNum >= d.blockCount {
		return ErrInvalidBlockNumber
	}
	if len(data) != d.blockSize {
		return ErrBlockSizeMismatch
	}

	offset := int64(blockNum) * int64(d.blockSize)
	_, err := d.file.WriteAt(data, offset)
	return err
}

// ReadBlocks reads a contiguous run of blocks with a single ReadAt call.
func (d *FileDevice) ReadBlocks(blockNum, count uint64, data []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}
	offset := int64(blockNum) * int64(d.blockSize)
	_, err := d.file.ReadAt(data, offset)
	return err
}

// WriteBlocks writes a contiguous run of blocks with a single WriteAt call.
func (d *FileDevice) WriteBlocks(blockNum, count uint64, data []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrDeviceClosed
	}
	offset := int64(blockNum) * int64(d.blockSize)
	_, err := d.file.WriteAt(data, offset)
	return err
}

// BlockSize returns the configured block size.
func (d *FileDevice) BlockSize() int {
	return d.blockSize
}

// BlockCount returns the total number of blocks.
func (d *FileDevice) BlockCount() uint64 {
	return d.blockCount
}

// Flush syncs the file to disk.
func (d *FileDevice) Flush() error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		return ErrDeviceClosed
	}
	return d.file.Sync()
}

// Close closes the file.
func (d *FileDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	return d.file.Close()
}
