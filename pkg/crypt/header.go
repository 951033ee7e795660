package crypt

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
)

// Header errors
var (
	ErrBadHeaderMagic   = errors.New("crypt: bad encryption header magic")
	ErrBadHeaderVersion = errors.New("crypt: unsupported encryption header version")
)

// headerMagic identifies an encrypted volume. It occupies a fixed 24-byte
// field, NUL padded.
const headerMagic = "SCARLETT_ENCRYPTED_V1"

// HeaderVersion is the current on-disk header layout version.
const HeaderVersion = 1

// SaltSize is the fixed salt length stored in the header.
const SaltSize = 16

// headerSize is the encoded length: magic[24] version[4] suite[4]
// salt[16] iterations[4] volumeID[16].
const headerSize = 24 + 4 + 4 + SaltSize + 4 + 16

// Header is the encryption metadata persisted in physical block 0 of a
// wrapped device. It carries everything needed to re-derive the volume key
// from a password after a reboot.
type Header struct {
	Version    uint32
	CipherType Suite
	Salt       [SaltSize]byte
	Iterations uint32
	VolumeID   uuid.UUID
}

// NewHeader builds a header for a freshly encrypted volume.
func NewHeader(suite Suite, salt []byte, iterations uint32) (*Header, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("crypt: salt must be %d bytes, got %d", SaltSize, len(salt))
	}
	h := &Header{
		Version:    HeaderVersion,
		CipherType: suite,
		Iterations: iterations,
		VolumeID:   uuid.New(),
	}
	copy(h.Salt[:], salt)
	return h, nil
}

// Marshal encodes the header into a buffer of blockSize bytes. Bytes past
// the fixed fields are reserved and zeroed.
func (h *Header) Marshal(blockSize int) ([]byte, error) {
	if blockSize < headerSize {
		return nil, fmt.Errorf("crypt: block size %d too small for header", blockSize)
	}
	buf := make([]byte, blockSize)
	copy(buf[0:24], headerMagic)
	binary.LittleEndian.PutUint32(buf[24:28], h.Version)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.CipherType))
	copy(buf[32:32+SaltSize], h.Salt[:])
	binary.LittleEndian.PutUint32(buf[48:52], h.Iterations)
	copy(buf[52:68], h.VolumeID[:])
	return buf, nil
}

// UnmarshalHeader decodes a header from a raw block.
func UnmarshalHeader(buf []byte) (*Header, error) {
	if len(buf) < headerSize {
		return nil, ErrBadHeaderMagic
	}
	magic := make([]byte, 24)
	copy(magic, headerMagic)
	if !bytes.Equal(buf[0:24], magic) {
		return nil, ErrBadHeaderMagic
	}

	h := &Header{
		Version:    binary.LittleEndian.Uint32(buf[24:28]),
		CipherType: Suite(binary.LittleEndian.Uint32(buf[28:32])),
		Iterations: binary.LittleEndian.Uint32(buf[48:52]),
	}
	copy(h.Salt[:], buf[32:32+SaltSize])
	copy(h.VolumeID[:], buf[52:68])

	if h.Version != HeaderVersion {
		return nil, ErrBadHeaderVersion
	}
	return h, nil
}

// WriteHeader persists the header to physical block 0 of dev. The header
// block is never encrypted.
func WriteHeader(dev block.Device, h *Header) error {
	buf, err := h.Marshal(dev.BlockSize())
	if err != nil {
		return err
	}
	return dev.Write(0, buf)
}

// ReadHeader loads the header from physical block 0 of dev.
func ReadHeader(dev block.Device) (*Header, error) {
	buf := make([]byte, dev.BlockSize())
	if err := dev.Read(0, buf); err != nil {
		return nil, err
	}
	return UnmarshalHeader(buf)
}

// IsEncryptedDevice reports whether dev carries a valid encryption header.
func IsEncryptedDevice(dev block.Device) bool {
	_, err := ReadHeader(dev)
	return err == nil
}
