/*
Package fat32 implements a read/write FAT32 driver on top of the block
device abstraction. It interprets the standard on-disk layout: boot sector,
mirrored file allocation tables, and 32-byte directory entries in cluster
chains. Long file names are not supported; names use the 8.3 convention.
*/
package fat32

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// FAT entry values. Entries are 28-bit: the top nibble is reserved and
// preserved on update.
const (
	clusterFree   = 0x00000000
	clusterEOF    = 0x0FFFFFF8 // values >= this terminate a chain
	clusterMask   = 0x0FFFFFFF
	reservedMask  = 0xF0000000
	firstDataClus = 2
)

// Directory entry attributes.
const (
	attrReadOnly  = 0x01
	attrHidden    = 0x02
	attrSystem    = 0x04
	attrVolumeID  = 0x08
	attrDirectory = 0x10
	attrArchive   = 0x20
	attrLongName  = attrReadOnly | attrHidden | attrSystem | attrVolumeID
)

const dirEntrySize = 32

var (
	errBadSignature = fmt.Errorf("fat32: missing 0xAA55 boot signature: %w", vfs.ErrInvalidFormat)
	errBadFSType    = fmt.Errorf("fat32: fs type is not FAT32: %w", vfs.ErrInvalidFormat)
	errDiskFull     = fmt.Errorf("fat32: no free clusters: %w", vfs.ErrNoSpace)
)

// bootSector is the subset of the FAT32 BPB the driver needs.
type bootSector struct {
	bytesPerSector  uint16
	sectorsPerClus  uint8
	reservedSectors uint16
	numFATs         uint8
	totalSectors32  uint32
	sectorsPerFAT32 uint32
	rootCluster     uint32
}

func parseBootSector(sector []byte) (*bootSector, error) {
	if len(sector) < 512 {
		return nil, errBadSignature
	}
	if binary.LittleEndian.Uint16(sector[510:512]) != 0xAA55 {
		return nil, errBadSignature
	}
	if string(sector[82:87]) != "FAT32" {
		return nil, errBadFSType
	}

	bs := &bootSector{
		bytesPerSector:  binary.LittleEndian.Uint16(sector[11:13]),
		sectorsPerClus:  sector[13],
		reservedSectors: binary.LittleEndian.Uint16(sector[14:16]),
		numFATs:         sector[16],
		totalSectors32:  binary.LittleEndian.Uint32(sector[32:36]),
		sectorsPerFAT32: binary.LittleEndian.Uint32(sector[36:40]),
		rootCluster:     binary.LittleEndian.Uint32(sector[44:48]),
	}
	if bs.bytesPerSector == 0 || bs.sectorsPerClus == 0 || bs.numFATs == 0 {
		return nil, fmt.Errorf("fat32: zero geometry field: %w", vfs.ErrInvalidFormat)
	}
	return bs, nil
}

// FS is a mounted FAT32 filesystem instance.
type FS struct {
	dev  block.Device
	boot *bootSector

	sectorsPerCluster uint32
	bytesPerCluster   uint32
	fatStartSector    uint32
	fatSizeSectors    uint32
	dataStartSector   uint32
	rootCluster       uint32
	totalClusters     uint32

	// One FAT sector is cached at a time.
	fatMu          sync.Mutex
	fatCache       []byte
	fatCacheSector uint32

	mu sync.RWMutex // serializes directory and allocation updates
}

// Open interprets dev as a FAT32 volume.
func Open(dev block.Device) (*FS, error) {
	sector := make([]byte, dev.BlockSize())
	if err := dev.Read(0, sector); err != nil {
		return nil, fmt.Errorf("fat32: read boot sector: %w", err)
	}
	boot, err := parseBootSector(sector)
	if err != nil {
		return nil, err
	}
	if int(boot.bytesPerSector) != dev.BlockSize() {
		return nil, fmt.Errorf("fat32: sector size %d does not match device block size %d: %w",
			boot.bytesPerSector, dev.BlockSize(), vfs.ErrInvalidFormat)
	}

	fs := &FS{
		dev:               dev,
		boot:              boot,
		sectorsPerCluster: uint32(boot.sectorsPerClus),
		bytesPerCluster:   uint32(boot.sectorsPerClus) * uint32(boot.bytesPerSector),
		fatStartSector:    uint32(boot.reservedSectors),
		fatSizeSectors:    boot.sectorsPerFAT32,
		rootCluster:       boot.rootCluster,
		fatCache:          make([]byte, boot.bytesPerSector),
		fatCacheSector:    0xFFFFFFFF,
	}
	fs.dataStartSector = fs.fatStartSector + uint32(boot.numFATs)*fs.fatSizeSectors
	dataSectors := boot.totalSectors32 - fs.dataStartSector
	fs.totalClusters = dataSectors / fs.sectorsPerCluster
	return fs, nil
}

func (fs *FS) validCluster(cluster uint32) bool {
	return cluster >= firstDataClus && cluster < fs.totalClusters+firstDataClus
}

func (fs *FS) clusterSector(cluster uint32) uint32 {
	return fs.dataStartSector + (cluster-firstDataClus)*fs.sectorsPerCluster
}

// readCluster reads a whole cluster into buf.
func (fs *FS) readCluster(cluster uint32, buf []byte) error {
	if !fs.validCluster(cluster) || len(buf) != int(fs.bytesPerCluster) {
		return vfs.ErrInvalidArgument
	}
	return block.ReadBlocks(fs.dev, uint64(fs.clusterSector(cluster)), uint64(fs.sectorsPerCluster), buf)
}

// writeCluster writes a whole cluster from buf.
func (fs *FS) writeCluster(cluster uint32, buf []byte) error {
	if !fs.validCluster(cluster) || len(buf) != int(fs.bytesPerCluster) {
		return vfs.ErrInvalidArgument
	}
	return block.WriteBlocks(fs.dev, uint64(fs.clusterSector(cluster)), uint64(fs.sectorsPerCluster), buf)
}

// loadFATSector fills the FAT cache with the sector holding cluster's
// entry and returns the entry's byte offset within it. Caller holds fatMu.
func (fs *FS) loadFATSector(cluster uint32) (uint32, error) {
	fatOffset := cluster * 4
	fatSector := fs.fatStartSector + fatOffset/uint32(fs.boot.bytesPerSector)
	entryOffset := fatOffset % uint32(fs.boot.bytesPerSector)

	if fatSector != fs.fatCacheSector {
		if err := fs.dev.Read(uint64(fatSector), fs.fatCache); err != nil {
			return 0, err
		}
		fs.fatCacheSector = fatSector
	}
	return entryOffset, nil
}

// nextCluster returns the chain successor of cluster, masked to 28 bits.
func (fs *FS) nextCluster(cluster uint32) (uint32, error) {
	if !fs.validCluster(cluster) {
		return clusterEOF, vfs.ErrInvalidArgument
	}

	fs.fatMu.Lock()
	defer fs.fatMu.Unlock()

	off, err := fs.loadFATSector(cluster)
	if err != nil {
		return clusterEOF, err
	}
	return binary.LittleEndian.Uint32(fs.fatCache[off:off+4]) & clusterMask, nil
}

// setNextCluster points cluster's FAT entry at next, preserving the
// reserved top nibble, and mirrors the updated sector into every FAT copy.
func (fs *FS) setNextCluster(cluster, next uint32) error {
	if !fs.validCluster(cluster) {
		return vfs.ErrInvalidArgument
	}

	fs.fatMu.Lock()
	defer fs.fatMu.Unlock()

	off, err := fs.loadFATSector(cluster)
	if err != nil {
		return err
	}
	old := binary.LittleEndian.Uint32(fs.fatCache[off : off+4])
	binary.LittleEndian.PutUint32(fs.fatCache[off:off+4], old&reservedMask|next&clusterMask)

	if err := fs.dev.Write(uint64(fs.fatCacheSector), fs.fatCache); err != nil {
		return err
	}
	for i := uint32(1); i < uint32(fs.boot.numFATs); i++ {
		mirror := fs.fatCacheSector + i*fs.fatSizeSectors
		if err := fs.dev.Write(uint64(mirror), fs.fatCache); err != nil {
			return err
		}
	}
	return nil
}

// allocCluster claims the first free cluster, marks it end-of-chain, and
// returns it. The linear scan restarts from the front every time.
func (fs *FS) allocCluster() (uint32, error) {
	for cluster := uint32(firstDataClus); cluster < fs.totalClusters+firstDataClus; cluster++ {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if next == clusterFree {
			if err := fs.setNextCluster(cluster, clusterEOF); err != nil {
				return 0, err
			}
			return cluster, nil
		}
	}
	return 0, errDiskFull
}

// freeChain releases every cluster in the chain starting at cluster.
func (fs *FS) freeChain(cluster uint32) error {
	for fs.validCluster(cluster) {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return err
		}
		if err := fs.setNextCluster(cluster, clusterFree); err != nil {
			return err
		}
		if next >= clusterEOF {
			break
		}
		cluster = next
	}
	return nil
}

// walkChain returns the cluster reached after hops steps from start.
func (fs *FS) walkChain(start uint32, hops uint32) (uint32, error) {
	cluster := start
	for i := uint32(0); i < hops; i++ {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if next >= clusterEOF {
			return 0, vfs.ErrNotFound
		}
		cluster = next
	}
	return cluster, nil
}

// countFreeClusters scans the FAT. Used by Statfs-style reporting and
// tests.
func (fs *FS) countFreeClusters() (uint32, error) {
	var free uint32
	for cluster := uint32(firstDataClus); cluster < fs.totalClusters+firstDataClus; cluster++ {
		next, err := fs.nextCluster(cluster)
		if err != nil {
			return 0, err
		}
		if next == clusterFree {
			free++
		}
	}
	return free, nil
}
