/*
Package block provides the sector-addressable storage abstraction that the
rest of the storage stack is built on: a uniform Device interface, memory
and file backed implementations, a name-keyed registry, and a parity array
for redundancy across several member devices.

Example Usage:

	// Create a memory-backed block device
	device, err := block.NewMemoryDevice("ram0", 1024, 512)
	if err != nil {
		log.Fatal(err)
	}
	defer device.Close()

	// Register it for lookup by name
	reg := block.NewRegistry()
	if err := reg.Register(device); err != nil {
		log.Fatal(err)
	}

	// Read the first block
	buf := make([]byte, device.BlockSize())
	if err := device.Read(0, buf); err != nil {
		log.Fatal(err)
	}
*/
package block

import (
	"errors"
	"fmt"
)

// Common errors
var (
	ErrInvalidBlockNumber = errors.New("block: invalid block number")
	ErrBlockSizeMismatch  = errors.New("block: data length does not match device block size")
	ErrDeviceClosed       = errors.New("block: device is closed")
	ErrDeviceNotFound     = errors.New("block: device not found")
	ErrDeviceExists       = errors.New("block: device already registered")
	ErrReadOnly           = errors.New("block: device is read-only")
	ErrNotSupported       = errors.New("block: operation not supported")
)

// Device is the contract every block device satisfies. Block indices are
// validated against BlockCount before the backing store is touched, and
// BlockSize is fixed for the lifetime of the device.
type Device interface {
	// Name returns the registry name of the device.
	Name() string

	// Read reads one block into data.
	// The data slice must have length equal to BlockSize().
	Read(blockNum uint64, data []byte) error

	// Write writes one block from data.
	// The data slice must have length equal to BlockSize().
	Write(blockNum uint64, data []byte) error

	// BlockSize returns the size of each block in bytes.
	BlockSize() int

	// BlockCount returns the total number of blocks on the device.
	BlockCount() uint64

	// Flush ensures all pending writes are persisted.
	Flush() error

	// Close releases any resources held by the device.
	Close() error
}

// BulkReader is implemented by devices with an optimized multi-block read.
type BulkReader interface {
	ReadBlocks(blockNum uint64, count uint64, data []byte) error
}

// BulkWriter is implemented by devices with an optimized multi-block write.
type BulkWriter interface {
	WriteBlocks(blockNum uint64, count uint64, data []byte) error
}

// checkRange validates that [blockNum, blockNum+count) fits on the device.
func checkRange(dev Device, blockNum, count uint64) error {
	if count == 0 {
		return nil
	}
	if blockNum >= dev.BlockCount() || count > dev.BlockCount()-blockNum {
		return ErrInvalidBlockNumber
	}
	return nil
}

// ReadBlocks reads count consecutive blocks starting at blockNum into data.
// Devices implementing BulkReader get a single call; everything else falls
// back to a per-block loop.
func ReadBlocks(dev Device, blockNum, count uint64, data []byte) error {
	if err := checkRange(dev, blockNum, count); err != nil {
		return err
	}
	bs := dev.BlockSize()
	if uint64(len(data)) != count*uint64(bs) {
		return ErrBlockSizeMismatch
	}
	if br, ok := dev.(BulkReader); ok {
		return br.ReadBlocks(blockNum, count, data)
	}
	for i := uint64(0); i < count; i++ {
		off := i * uint64(bs)
		if err := dev.Read(blockNum+i, data[off:off+uint64(bs)]); err != nil {
			return fmt.Errorf("block %d: %w", blockNum+i, err)
		}
	}
	return nil
}

// WriteBlocks writes count consecutive blocks starting at blockNum from data.
// Devices implementing BulkWriter get a single call; everything else falls
// back to a per-block loop.
func WriteBlocks(dev Device, blockNum, count uint64, data []byte) error {
	if err := checkRange(dev, blockNum, count); err != nil {
		return err
	}
	bs := dev.BlockSize()
	if uint64(len(data)) != count*uint64(bs) {
		return ErrBlockSizeMismatch
	}
	if bw, ok := dev.(BulkWriter); ok {
		return bw.WriteBlocks(blockNum, count, data)
	}
	for i := uint64(0); i < count; i++ {
		off := i * uint64(bs)
		if err := dev.Write(blockNum+i, data[off:off+uint64(bs)]); err != nil {
			return fmt.Errorf("block %d: %w", blockNum+i, err)
		}
	}
	return nil
}

// Info contains metadata about a block device.
type Info struct {
	Name       string `json:"name"`
	BlockSize  int    `json:"blockSize"`
	BlockCount uint64 `json:"blockCount"`
	TotalSize  uint64 `json:"totalSize"`
}

// GetInfo returns metadata about the device.
func GetInfo(dev Device) Info {
	return Info{
		Name:       dev.Name(),
		BlockSize:  dev.BlockSize(),
		BlockCount: dev.BlockCount(),
		TotalSize:  uint64(dev.BlockSize()) * dev.BlockCount(),
	}
}
