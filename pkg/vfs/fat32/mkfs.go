package fat32

import (
	"encoding/binary"
	"fmt"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// FormatOptions controls Format. Zero values pick sane defaults.
type FormatOptions struct {
	SectorsPerCluster uint8
	ReservedSectors   uint16
	NumFATs           uint8
	Label             string
}

const (
	defaultReservedSectors = 32
	defaultNumFATs         = 2
)

// Format writes an empty FAT32 filesystem onto dev.
func Format(dev block.Device, opts FormatOptions) error {
	if opts.SectorsPerCluster == 0 {
		opts.SectorsPerCluster = 1
	}
	if opts.ReservedSectors == 0 {
		opts.ReservedSectors = defaultReservedSectors
	}
	if opts.NumFATs == 0 {
		opts.NumFATs = defaultNumFATs
	}

	bps := uint32(dev.BlockSize())
	totalSectors := uint32(dev.BlockCount())
	spc := uint32(opts.SectorsPerCluster)
	reserved := uint32(opts.ReservedSectors)
	nfats := uint32(opts.NumFATs)

	// Size each FAT for the worst case of every post-reserved sector
	// being a data cluster. Entries 0 and 1 are reserved.
	maxClusters := (totalSectors-reserved)/spc + 2
	fatSize := (maxClusters*4 + bps - 1) / bps
	dataStart := reserved + nfats*fatSize
	if dataStart+spc >= totalSectors {
		return fmt.Errorf("fat32: device too small to format: %w", vfs.ErrNoSpace)
	}

	boot := make([]byte, bps)
	copy(boot[3:11], []byte("SCARLETT"))
	binary.LittleEndian.PutUint16(boot[11:13], uint16(bps))
	boot[13] = opts.SectorsPerCluster
	binary.LittleEndian.PutUint16(boot[14:16], opts.ReservedSectors)
	boot[16] = opts.NumFATs
	boot[21] = 0xF8 // media descriptor, fixed disk
	binary.LittleEndian.PutUint32(boot[32:36], totalSectors)
	binary.LittleEndian.PutUint32(boot[36:40], fatSize)
	binary.LittleEndian.PutUint32(boot[44:48], firstDataClus)
	label := opts.Label
	if label == "" {
		label = "NO NAME"
	}
	for i := 0; i < 11; i++ {
		if i < len(label) {
			boot[71+i] = upperByte(label[i])
		} else {
			boot[71+i] = ' '
		}
	}
	copy(boot[82:90], []byte("FAT32   "))
	boot[510] = 0x55
	boot[511] = 0xAA
	if err := dev.Write(0, boot); err != nil {
		return fmt.Errorf("fat32: write boot sector: %w", err)
	}

	// Zero both FATs, then seed the reserved entries and the root
	// directory chain in every copy.
	zero := make([]byte, bps)
	for f := uint32(0); f < nfats; f++ {
		for s := uint32(0); s < fatSize; s++ {
			if err := dev.Write(uint64(reserved+f*fatSize+s), zero); err != nil {
				return err
			}
		}
	}
	fat0 := make([]byte, bps)
	binary.LittleEndian.PutUint32(fat0[0:4], 0x0FFFFFF8)
	binary.LittleEndian.PutUint32(fat0[4:8], 0x0FFFFFFF)
	binary.LittleEndian.PutUint32(fat0[8:12], clusterEOF) // root directory
	for f := uint32(0); f < nfats; f++ {
		if err := dev.Write(uint64(reserved+f*fatSize), fat0); err != nil {
			return err
		}
	}

	// Zero the root directory cluster.
	for s := uint32(0); s < spc; s++ {
		if err := dev.Write(uint64(dataStart+s), zero); err != nil {
			return err
		}
	}
	return dev.Flush()
}
