// Package ext4 implements a read-only ext4 filesystem driver for classic
// indirect-block files.
//
// The driver reads the superblock, group descriptors, fixed-size inodes,
// and directory entry streams directly from a block device. Files mapped
// with the 12 direct pointers plus single, double, and triple indirect
// blocks are supported; extent-mapped files are not. Inodes are read
// fresh from disk on every lookup.
//
// Example Usage:
//
//	v := vfs.New(devices, ident, nil)
//	v.RegisterDriver(ext4.NewDriver())
//	v.Mount("disk1", "/mnt/linux", "ext4")
//	fd, _ := v.Open("/mnt/linux/etc/hostname", vfs.FlagRead)
package ext4

import (
	"encoding/binary"
	"fmt"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

const (
	superMagic       = 0xEF53
	superblockOffset = 1024
	superblockSize   = 1024

	rootInode = 2

	groupDescSize = 32

	// Inode mode type bits.
	modeTypeMask = 0xF000
	modeDir      = 0x4000
	modeRegular  = 0x8000

	directBlocks = 12
)

// superblock holds the fields the driver reads. Offsets follow the
// classic ext2 layout shared by ext4.
type superblock struct {
	inodesCount    uint32
	blocksCount    uint32
	firstDataBlock uint32
	logBlockSize   uint32
	blocksPerGroup uint32
	inodesPerGroup uint32
	magic          uint16
	inodeSize      uint16
}

func parseSuperblock(raw []byte) (*superblock, error) {
	if len(raw) < superblockSize {
		return nil, fmt.Errorf("ext4: short superblock: %w", vfs.ErrInvalidFormat)
	}
	sb := &superblock{
		inodesCount:    binary.LittleEndian.Uint32(raw[0:4]),
		blocksCount:    binary.LittleEndian.Uint32(raw[4:8]),
		firstDataBlock: binary.LittleEndian.Uint32(raw[20:24]),
		logBlockSize:   binary.LittleEndian.Uint32(raw[24:28]),
		blocksPerGroup: binary.LittleEndian.Uint32(raw[32:36]),
		inodesPerGroup: binary.LittleEndian.Uint32(raw[40:44]),
		magic:          binary.LittleEndian.Uint16(raw[56:58]),
		inodeSize:      binary.LittleEndian.Uint16(raw[88:90]),
	}
	if sb.magic != superMagic {
		return nil, fmt.Errorf("ext4: bad magic 0x%04x: %w", sb.magic, vfs.ErrInvalidFormat)
	}
	if sb.blocksPerGroup == 0 || sb.inodesPerGroup == 0 {
		return nil, fmt.Errorf("ext4: zero group geometry: %w", vfs.ErrInvalidFormat)
	}
	return sb, nil
}

// FS is a mounted ext4 filesystem instance.
type FS struct {
	dev block.Device
	sb  *superblock

	blockSize       uint32
	inodeSize       uint32
	sectorsPerBlock uint32
	groupCount      uint32
}

// Open interprets dev as an ext4 volume.
func Open(dev block.Device) (*FS, error) {
	devBS := uint32(dev.BlockSize())
	if devBS == 0 || superblockOffset%devBS != 0 || superblockSize%devBS != 0 {
		return nil, fmt.Errorf("ext4: device block size %d: %w", devBS, vfs.ErrInvalidFormat)
	}

	raw := make([]byte, superblockSize)
	start := uint64(superblockOffset / devBS)
	count := uint64(superblockSize / devBS)
	if err := block.ReadBlocks(dev, start, count, raw); err != nil {
		return nil, fmt.Errorf("ext4: read superblock: %w", err)
	}
	sb, err := parseSuperblock(raw)
	if err != nil {
		return nil, err
	}

	fs := &FS{
		dev:       dev,
		sb:        sb,
		blockSize: 1024 << sb.logBlockSize,
		inodeSize: 128,
	}
	if sb.inodeSize != 0 {
		fs.inodeSize = uint32(sb.inodeSize)
	}
	if fs.blockSize%devBS != 0 {
		return nil, fmt.Errorf("ext4: fs block size %d not a multiple of device block size %d: %w",
			fs.blockSize, devBS, vfs.ErrInvalidFormat)
	}
	fs.sectorsPerBlock = fs.blockSize / devBS
	fs.groupCount = (sb.blocksCount + sb.blocksPerGroup - 1) / sb.blocksPerGroup
	return fs, nil
}

// readBlock reads one filesystem block.
func (fs *FS) readBlock(blockNum uint32, buf []byte) error {
	if len(buf) != int(fs.blockSize) {
		return vfs.ErrInvalidArgument
	}
	start := uint64(blockNum) * uint64(fs.sectorsPerBlock)
	return block.ReadBlocks(fs.dev, start, uint64(fs.sectorsPerBlock), buf)
}

// inode is the fixed-size on-disk inode, decoded.
type inode struct {
	mode   uint16
	uid    uint16
	sizeLo uint32
	gid    uint16
	blocks [15]uint32
	sizeHi uint32
}

func decodeInode(raw []byte) inode {
	var ino inode
	ino.mode = binary.LittleEndian.Uint16(raw[0:2])
	ino.uid = binary.LittleEndian.Uint16(raw[2:4])
	ino.sizeLo = binary.LittleEndian.Uint32(raw[4:8])
	ino.gid = binary.LittleEndian.Uint16(raw[24:26])
	for i := 0; i < 15; i++ {
		ino.blocks[i] = binary.LittleEndian.Uint32(raw[40+i*4 : 44+i*4])
	}
	ino.sizeHi = binary.LittleEndian.Uint32(raw[108:112])
	return ino
}

func (ino *inode) isDir() bool     { return ino.mode&modeTypeMask == modeDir }
func (ino *inode) isRegular() bool { return ino.mode&modeTypeMask == modeRegular }

func (ino *inode) size() int64 {
	sz := int64(ino.sizeLo)
	if ino.isRegular() {
		sz |= int64(ino.sizeHi) << 32
	}
	return sz
}

// groupDescBlock is where the group descriptor table starts.
func (fs *FS) groupDescBlock() uint32 {
	if fs.blockSize >= 2048 {
		return 1
	}
	return fs.sb.firstDataBlock + 1
}

// readInode reads inode number n from its group's inode table. Every
// call re-derives the table location from the group descriptor; there
// is no inode cache.
func (fs *FS) readInode(n uint32) (inode, error) {
	if n == 0 || n > fs.sb.inodesCount {
		return inode{}, fmt.Errorf("ext4: inode %d: %w", n, vfs.ErrNotFound)
	}

	group := (n - 1) / fs.sb.inodesPerGroup
	index := (n - 1) % fs.sb.inodesPerGroup

	descsPerBlock := fs.blockSize / groupDescSize
	descBlock := fs.groupDescBlock() + group/descsPerBlock
	descOffset := (group % descsPerBlock) * groupDescSize

	buf := make([]byte, fs.blockSize)
	if err := fs.readBlock(descBlock, buf); err != nil {
		return inode{}, err
	}
	// The inode table pointer is the third 32-bit field of the
	// descriptor, after the block and inode bitmap pointers.
	inodeTable := binary.LittleEndian.Uint32(buf[descOffset+8 : descOffset+12])

	inodeBlock := inodeTable + index*fs.inodeSize/fs.blockSize
	inodeOffset := index * fs.inodeSize % fs.blockSize
	if err := fs.readBlock(inodeBlock, buf); err != nil {
		return inode{}, err
	}
	return decodeInode(buf[inodeOffset : inodeOffset+fs.inodeSize]), nil
}

// blockPointer resolves the logical block index of a file to a physical
// block number through the direct and indirect pointer levels. A zero
// pointer at any level is a hole, reported as ErrNotFound.
func (fs *FS) blockPointer(ino *inode, index uint32) (uint32, error) {
	ptrsPerBlock := fs.blockSize / 4

	if index < directBlocks {
		return fs.checkPointer(ino.blocks[index])
	}
	index -= directBlocks

	if index < ptrsPerBlock {
		return fs.indirectLookup(ino.blocks[12], []uint32{index})
	}
	index -= ptrsPerBlock

	if index < ptrsPerBlock*ptrsPerBlock {
		return fs.indirectLookup(ino.blocks[13], []uint32{index / ptrsPerBlock, index % ptrsPerBlock})
	}
	index -= ptrsPerBlock * ptrsPerBlock

	return fs.indirectLookup(ino.blocks[14], []uint32{
		index / (ptrsPerBlock * ptrsPerBlock),
		index / ptrsPerBlock % ptrsPerBlock,
		index % ptrsPerBlock,
	})
}

func (fs *FS) checkPointer(p uint32) (uint32, error) {
	if p == 0 {
		return 0, vfs.ErrNotFound
	}
	return p, nil
}

// indirectLookup dereferences one pointer-array block per element of
// indices, starting from start.
func (fs *FS) indirectLookup(start uint32, indices []uint32) (uint32, error) {
	current, err := fs.checkPointer(start)
	if err != nil {
		return 0, err
	}
	buf := make([]byte, fs.blockSize)
	for _, idx := range indices {
		if err := fs.readBlock(current, buf); err != nil {
			return 0, err
		}
		p := binary.LittleEndian.Uint32(buf[idx*4 : idx*4+4])
		current, err = fs.checkPointer(p)
		if err != nil {
			return 0, err
		}
	}
	return current, nil
}

// readInodeBlock reads the logical block index of a file into buf.
func (fs *FS) readInodeBlock(ino *inode, index uint32, buf []byte) error {
	blockNum, err := fs.blockPointer(ino, index)
	if err != nil {
		return err
	}
	return fs.readBlock(blockNum, buf)
}
