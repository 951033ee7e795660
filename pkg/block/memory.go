package block

import (
	"fmt"
	"sync"
)

// MemoryDevice is a simple in-memory block device.
type MemoryDevice struct {
	name       string
	data       [][]byte
	blockSize  int
	blockCount uint64
	closed     bool
	mu         sync.RWMutex
}

// NewMemoryDevice creates a new memory-backed block device.
func NewMemoryDevice(name string, blockCount uint64, blockSize int) (*MemoryDevice, error) {
	if name == "" {
		return nil, fmt.Errorf("block: empty device name")
	}
	if blockCount == 0 {
		return nil, ErrInvalidBlockNumber
	}
	if blockSize <= 0 {
		return nil, fmt.Errorf("block: invalid block size: %d", blockSize)
	}

	data := make([][]byte, blockCount)
	for i := range data {
		data[i] = make([]byte, blockSize)
	}

	return &MemoryDevice{
		name:       name,
		data:       data,
		blockSize:  blockSize,
		blockCount: blockCount,
	}, nil
}

// Name returns the device name.
func (d *MemoryDevice) Name() string {
	return d.name
}

// Read reads a block from memory.
func (d *MemoryDevice) Read(blockNum uint64, data []byte) error {
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

	copy(data, d.data[blockNum])
	return nil
}

// Write writes a block to memory.
func (d *MemoryDevice) Write(blockNum uint64, data []byte) error {
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

	copy(d.data[blockNum], data)
	return nil
}

// BlockSize returns the configured block size.
func (d *MemoryDevice) BlockSize() int {
	return d.blockSize
}

// BlockCount returns the total number of blocks.
func (d *MemoryDevice) BlockCount() uint64 {
	return d.blockCount
}

// Flush is a no-op for memory devices.
func (d *MemoryDevice) Flush() error {
	return nil
}

// Close marks the device as closed.
func (d *MemoryDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return nil
	}
	d.closed = true
	d.data = nil
	return nil
}
