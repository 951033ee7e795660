// Package ntfs implements a read-only NTFS filesystem driver.
//
// The driver reads the boot sector, MFT records, and attribute streams
// directly from a block device. Resident and non-resident $DATA
// attributes are supported, with non-resident content located through
// the packed data-run list. Directory lookups and listings walk the
// $INDEX_ROOT attribute; directories large enough to spill into
// $INDEX_ALLOCATION are only visible through their root index.
//
// Example Usage:
//
//	v := vfs.New(devices, ident, nil)
//	v.RegisterDriver(ntfs.NewDriver())
//	v.Mount("disk2", "/mnt/windows", "ntfs")
//	info, _ := v.Stat("/mnt/windows/pagefile.sys")
package ntfs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

const (
	oemID         = "NTFS    "
	bootSignature = 0xAA55

	recordMagic = 0x454C4946 // "FILE"

	rootRecord = 5

	// MFT record header flags.
	recordInUse     = 0x0001
	recordDirectory = 0x0002

	// Attribute types.
	attrStandardInformation = 0x10
	attrFileName            = 0x30
	attrData                = 0x80
	attrIndexRoot           = 0x90
	attrEnd                 = 0xFFFFFFFF

	// Low 48 bits of an MFT reference are the record number.
	mftRefMask = 0x0000FFFFFFFFFFFF
)

// bootSector holds the fields the driver reads from sector 0.
type bootSector struct {
	bytesPerSector       uint16
	sectorsPerCluster    uint8
	mftCluster           uint64
	mftMirrorCluster     uint64
	clustersPerMFTRecord int8
}

func parseBootSector(sector []byte) (*bootSector, error) {
	if len(sector) < 512 {
		return nil, fmt.Errorf("ntfs: short boot sector: %w", vfs.ErrInvalidFormat)
	}
	if !bytes.Equal(sector[3:11], []byte(oemID)) {
		return nil, fmt.Errorf("ntfs: bad OEM id: %w", vfs.ErrInvalidFormat)
	}
	if binary.LittleEndian.Uint16(sector[510:512]) != bootSignature {
		return nil, fmt.Errorf("ntfs: bad boot signature: %w", vfs.ErrInvalidFormat)
	}

	bs := &bootSector{
		bytesPerSector:       binary.LittleEndian.Uint16(sector[11:13]),
		sectorsPerCluster:    sector[13],
		mftCluster:           binary.LittleEndian.Uint64(sector[48:56]),
		mftMirrorCluster:     binary.LittleEndian.Uint64(sector[56:64]),
		clustersPerMFTRecord: int8(sector[64]),
	}
	if bs.bytesPerSector == 0 || bs.sectorsPerCluster == 0 {
		return nil, fmt.Errorf("ntfs: zero geometry field: %w", vfs.ErrInvalidFormat)
	}
	return bs, nil
}

// FS is a mounted NTFS filesystem instance.
type FS struct {
	dev  block.Device
	boot *bootSector

	bytesPerSector  uint32
	bytesPerCluster uint32
	mftCluster      uint64
	mftRecordSize   uint32
}

// Open interprets dev as an NTFS volume.
func Open(dev block.Device) (*FS, error) {
	sector := make([]byte, dev.BlockSize())
	if err := dev.Read(0, sector); err != nil {
		return nil, fmt.Errorf("ntfs: read boot sector: %w", err)
	}
	boot, err := parseBootSector(sector)
	if err != nil {
		return nil, err
	}
	if int(boot.bytesPerSector) != dev.BlockSize() {
		return nil, fmt.Errorf("ntfs: sector size %d does not match device block size %d: %w",
			boot.bytesPerSector, dev.BlockSize(), vfs.ErrInvalidFormat)
	}

	fs := &FS{
		dev:             dev,
		boot:            boot,
		bytesPerSector:  uint32(boot.bytesPerSector),
		bytesPerCluster: uint32(boot.bytesPerSector) * uint32(boot.sectorsPerCluster),
		mftCluster:      boot.mftCluster,
	}
	// A negative clusters-per-record value encodes the record size as a
	// power of two in bytes.
	if boot.clustersPerMFTRecord < 0 {
		fs.mftRecordSize = 1 << uint(-boot.clustersPerMFTRecord)
	} else {
		fs.mftRecordSize = uint32(boot.clustersPerMFTRecord) * fs.bytesPerCluster
	}
	if fs.mftRecordSize == 0 || fs.mftRecordSize%fs.bytesPerSector != 0 {
		return nil, fmt.Errorf("ntfs: bad MFT record size %d: %w", fs.mftRecordSize, vfs.ErrInvalidFormat)
	}
	return fs, nil
}

// readMFTRecord reads record n of the MFT and verifies its magic.
func (fs *FS) readMFTRecord(n uint64) ([]byte, error) {
	byteOffset := fs.mftCluster*uint64(fs.bytesPerCluster) + n*uint64(fs.mftRecordSize)
	startSector := byteOffset / uint64(fs.bytesPerSector)
	sectorCount := uint64(fs.mftRecordSize / fs.bytesPerSector)

	buf := make([]byte, fs.mftRecordSize)
	if err := block.ReadBlocks(fs.dev, startSector, sectorCount, buf); err != nil {
		return nil, fmt.Errorf("ntfs: read MFT record %d: %w", n, err)
	}
	if binary.LittleEndian.Uint32(buf[0:4]) != recordMagic {
		return nil, fmt.Errorf("ntfs: MFT record %d has no FILE magic: %w", n, vfs.ErrInvalidFormat)
	}
	return buf, nil
}

func recordIsDirectory(record []byte) bool {
	return binary.LittleEndian.Uint16(record[22:24])&recordDirectory != 0
}
