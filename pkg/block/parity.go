package block

import (
	"errors"
	"fmt"
	"sync"

	"github.com/klauspost/reedsolomon"
)

// Parity array errors
var (
	ErrParityDeviceCount = errors.New("block: parity array needs at least two data devices and one parity device")
	ErrParityBlockSize   = errors.New("block: parity array member block size mismatch")
	ErrParityDegraded    = errors.New("block: too many failed devices to reconstruct")
)

// ParityArray stripes blocks across several data devices and protects them
// with Reed-Solomon parity shards on dedicated parity devices. Logical block
// i lives on data device i % dataCount at member block i / dataCount. Reads
// from a failed member are reconstructed from the surviving shards.
type ParityArray struct {
	name       string
	data       []Device
	parity     []Device
	failed     []bool
	enc        reedsolomon.Encoder
	blockSize  int
	blockCount uint64
	closed     bool
	mu         sync.RWMutex
}

// NewParityArray builds a parity array over the given data and parity
// devices. All members must share one block size; capacity is the smallest
// member's block count times the number of data devices.
func NewParityArray(name string, data, parity []Device) (*ParityArray, error) {
	if len(data) < 2 || len(parity) < 1 {
		return nil, ErrParityDeviceCount
	}

	blockSize := data[0].BlockSize()
	minBlocks := data[0].BlockCount()
	for _, dev := range append(append([]Device{}, data...), parity...) {
		if dev.BlockSize() != blockSize {
			return nil, ErrParityBlockSize
		}
		if dev.BlockCount() < minBlocks {
			minBlocks = dev.BlockCount()
		}
	}

	enc, err := reedsolomon.New(len(data), len(parity))
	if err != nil {
		return nil, fmt.Errorf("block: reedsolomon init: %w", err)
	}

	return &ParityArray{
		name:       name,
		data:       data,
		parity:     parity,
		failed:     make([]bool, len(data)+len(parity)),
		enc:        enc,
		blockSize:  blockSize,
		blockCount: minBlocks * uint64(len(data)),
	}, nil
}

// Name returns the array name.
func (p *ParityArray) Name() string {
	return p.name
}

// BlockSize returns the member block size.
func (p *ParityArray) BlockSize() int {
	return p.blockSize
}

// BlockCount returns the usable (data) capacity in blocks.
func (p *ParityArray) BlockCount() uint64 {
	return p.blockCount
}

// MarkFailed marks a member device as failed. Data members are indexed
// 0..len(data)-1, parity members follow.
func (p *ParityArray) MarkFailed(index int) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if index < 0 || index >= len(p.failed) {
		return ErrInvalidBlockNumber
	}
	p.failed[index] = true

	count := 0
	for _, f := range p.failed {
		if f {
			count++
		}
	}
	if count > len(p.parity) {
		return ErrParityDegraded
	}
	return nil
}

func (p *ParityArray) locate(blockNum uint64) (member int, memberBlock uint64) {
	return int(blockNum % uint64(len(p.data))), blockNum / uint64(len(p.data))
}

// readStripe reads every surviving shard of a stripe, leaving failed
// members nil for reconstruction.
func (p *ParityArray) readStripe(memberBlock uint64) ([][]byte, error) {
	shards := make([][]byte, len(p.data)+len(p.parity))
	missing := 0
	for i := range shards {
		var dev Device
		if i < len(p.data) {
			dev = p.data[i]
		} else {
			dev = p.parity[i-len(p.data)]
		}
		if p.failed[i] {
			missing++
			continue
		}
		buf := make([]byte, p.blockSize)
		if err := dev.Read(memberBlock, buf); err != nil {
			return nil, fmt.Errorf("member %d: %w", i, err)
		}
		shards[i] = buf
	}
	if missing > len(p.parity) {
		return nil, ErrParityDegraded
	}
	return shards, nil
}

// Read reads a logical block, reconstructing it from parity if its member
// device has failed.
func (p *ParityArray) Read(blockNum uint64, data []byte) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrDeviceClosed
	}
	if blockNum >= p.blockCount {
		return ErrInvalidBlockNumber
	}
	if len(data) != p.blockSize {
		return ErrBlockSizeMismatch
	}

	member, memberBlock := p.locate(blockNum)
	if !p.failed[member] {
		return p.data[member].Read(memberBlock, data)
	}

	shards, err := p.readStripe(memberBlock)
	if err != nil {
		return err
	}
	if err := p.enc.Reconstruct(shards); err != nil {
		return fmt.Errorf("block: reconstruct stripe %d: %w", memberBlock, err)
	}
	copy(data, shards[member])
	return nil
}

// Write writes a logical block and refreshes the stripe's parity shards.
func (p *ParityArray) Write(blockNum uint64, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrDeviceClosed
	}
	if blockNum >= p.blockCount {
		return ErrInvalidBlockNumber
	}
	if len(data) != p.blockSize {
		return ErrBlockSizeMismatch
	}

	member, memberBlock := p.locate(blockNum)

	shards, err := p.readStripe(memberBlock)
	if err != nil {
		return err
	}
	// Encode needs every shard buffer present, so rebuild any missing ones.
	for _, shard := range shards {
		if shard == nil {
			if err := p.enc.Reconstruct(shards); err != nil {
				return fmt.Errorf("block: reconstruct stripe %d: %w", memberBlock, err)
			}
			break
		}
	}
	copy(shards[member], data)

	if err := p.enc.Encode(shards); err != nil {
		return fmt.Errorf("block: encode stripe %d: %w", memberBlock, err)
	}

	for i, shard := range shards {
		if p.failed[i] {
			continue
		}
		var dev Device
		if i < len(p.data) {
			dev = p.data[i]
		} else {
			dev = p.parity[i-len(p.data)]
		}
		if err := dev.Write(memberBlock, shard); err != nil {
			return fmt.Errorf("member %d: %w", i, err)
		}
	}
	return nil
}

// Flush flushes every surviving member.
func (p *ParityArray) Flush() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return ErrDeviceClosed
	}
	for i, dev := range append(append([]Device{}, p.data...), p.parity...) {
		if p.failed[i] {
			continue
		}
		if err := dev.Flush(); err != nil {
			return err
		}
	}
	return nil
}

// Close closes every member device.
func (p *ParityArray) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true
	for _, dev := range append(append([]Device{}, p.data...), p.parity...) {
		dev.Close()
	}
	return nil
}
