/*
Package crypt makes a block device's contents opaque at rest. Wrap decorates
an existing device with transparent per-block encryption and presents the
result as another block device, so filesystem drivers mount it unchanged.

Block 0 of the underlying device is reserved for the encryption header
(magic, cipher suite, volume id, KDF salt and iteration count); logical
block n of the wrapped device maps to physical block n+1.

Example Usage:

	key, err := crypt.GenerateKey()
	if err != nil {
		log.Fatal(err)
	}

	enc, err := crypt.Wrap(underlying, key)
	if err != nil {
		log.Fatal(err)
	}

	// enc is a block.Device; everything written through it is
	// AES-256 encrypted on the underlying device.
*/
package crypt

import (
	"crypto/aes"
	"errors"
	"sync"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
)

// Wrapper errors
var (
	ErrNilDevice      = errors.New("crypt: nil underlying device")
	ErrDeviceTooSmall = errors.New("crypt: underlying device too small for header block")
)

// Device wraps an underlying block device with transparent per-block
// encryption. It satisfies block.Device.
type Device struct {
	name       string
	underlying block.Device
	engine     Engine
	enabled    bool
	mu         sync.RWMutex
}

// headerBlocks is the number of physical blocks reserved at the front of
// the underlying device.
const headerBlocks = 1

// Wrap decorates underlying with AES-256-CBC encryption under key. The
// wrapped device is named "enc_" plus the underlying name and exposes one
// block less than the underlying device.
func Wrap(underlying block.Device, key []byte) (*Device, error) {
	return WrapSuite(underlying, key, SuiteAES256CBC)
}

// WrapSuite is Wrap with an explicit cipher suite.
func WrapSuite(underlying block.Device, key []byte, suite Suite) (*Device, error) {
	if underlying == nil {
		return nil, ErrNilDevice
	}
	if underlying.BlockCount() <= headerBlocks {
		return nil, ErrDeviceTooSmall
	}
	if suite == SuiteAES256CBC && underlying.BlockSize()%aes.BlockSize != 0 {
		return nil, ErrBadBlockSize
	}

	engine, err := NewEngine(suite, key)
	if err != nil {
		return nil, err
	}

	return &Device{
		name:       "enc_" + underlying.Name(),
		underlying: underlying,
		engine:     engine,
		enabled:    true,
	}, nil
}

// Name returns the wrapped device name.
func (d *Device) Name() string {
	return d.name
}

// BlockSize returns the underlying device's block size.
func (d *Device) BlockSize() int {
	return d.underlying.BlockSize()
}

// BlockCount returns the underlying count minus the reserved header block.
func (d *Device) BlockCount() uint64 {
	return d.underlying.BlockCount() - headerBlocks
}

// Unwrap returns the underlying device.
func (d *Device) Unwrap() block.Device {
	return d.underlying
}

// Enable turns encryption on for subsequent reads and writes.
func (d *Device) Enable() {
	d.mu.Lock()
	d.enabled = true
	d.mu.Unlock()
}

// Disable turns encryption off; reads and writes pass through unmodified.
func (d *Device) Disable() {
	d.mu.Lock()
	d.enabled = false
	d.mu.Unlock()
}

// IsEncrypted reports whether encryption is currently enabled.
func (d *Device) IsEncrypted() bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.enabled
}

// SetKey replaces the encryption key, keeping the current suite. Existing
// on-device data is not re-encrypted.
func (d *Device) SetKey(key []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	engine, err := NewEngine(d.engine.Suite(), key)
	if err != nil {
		return err
	}
	d.engine = engine
	return nil
}

// Read reads logical block blockNum and decrypts it in place.
func (d *Device) Read(blockNum uint64, data []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if blockNum >= d.BlockCount() {
		return block.ErrInvalidBlockNumber
	}
	if err := d.underlying.Read(blockNum+headerBlocks, data); err != nil {
		return err
	}
	if !d.enabled {
		return nil
	}
	return d.engine.Decrypt(blockNum, data, data)
}

// Write encrypts data and writes it to logical block blockNum. The caller's
// buffer is left untouched.
func (d *Device) Write(blockNum uint64, data []byte) error {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if blockNum >= d.BlockCount() {
		return block.ErrInvalidBlockNumber
	}
	if !d.enabled {
		return d.underlying.Write(blockNum+headerBlocks, data)
	}

	ct := make([]byte, len(data))
	if err := d.engine.Encrypt(blockNum, data, ct); err != nil {
		return err
	}
	return d.underlying.Write(blockNum+headerBlocks, ct)
}

// Flush forwards to the underlying device.
func (d *Device) Flush() error {
	return d.underlying.Flush()
}

// Close forwards to the underlying device.
func (d *Device) Close() error {
	return d.underlying.Close()
}
