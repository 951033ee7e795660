package ntfs

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// The test image uses 512-byte sectors, two sectors per cluster, and
// 1024-byte MFT records starting at cluster 4. Record numbers: 5 root,
// 6 resident file, 7 data-run file, 8 subdirectory, 9 nested file,
// 10 sparse file.
const (
	imgSectors       = 1024
	imgSectorSize    = 512
	imgClusterSize   = 1024
	imgMFTCluster    = 4
	imgMFTRecordSize = 1024
	imgRecHello      = 6
	imgRecRuns       = 7
	imgRecSubdir     = 8
	imgRecNested     = 9
	imgRecSparse     = 10
)

const (
	helloContent = "ntfs resident data"
	runsFileSize = 5020
)

func pad8(b []byte) []byte {
	for len(b)%8 != 0 {
		b = append(b, 0)
	}
	return b
}

// attrResident builds a resident attribute with an inline value.
func attrResident(attrType uint32, value []byte) []byte {
	valueOffset := 24
	attr := make([]byte, valueOffset+len(value))
	binary.LittleEndian.PutUint32(attr[0:4], attrType)
	binary.LittleEndian.PutUint16(attr[20:22], uint16(valueOffset))
	binary.LittleEndian.PutUint32(attr[16:20], uint32(len(value)))
	copy(attr[valueOffset:], value)
	attr = pad8(attr)
	binary.LittleEndian.PutUint32(attr[4:8], uint32(len(attr)))
	return attr
}

// attrNonResident builds a non-resident attribute over a packed run
// list.
func attrNonResident(attrType uint32, dataSize uint64, lastVCN uint64, runs []byte) []byte {
	runOffset := 64
	attr := make([]byte, runOffset+len(runs)+1)
	binary.LittleEndian.PutUint32(attr[0:4], attrType)
	attr[8] = 1
	binary.LittleEndian.PutUint64(attr[24:32], lastVCN)
	binary.LittleEndian.PutUint16(attr[32:34], uint16(runOffset))
	binary.LittleEndian.PutUint64(attr[40:48], (dataSize+imgClusterSize-1)/imgClusterSize*imgClusterSize)
	binary.LittleEndian.PutUint64(attr[48:56], dataSize)
	binary.LittleEndian.PutUint64(attr[56:64], dataSize)
	copy(attr[runOffset:], runs)
	attr = pad8(attr)
	binary.LittleEndian.PutUint32(attr[4:8], uint32(len(attr)))
	return attr
}

// fileNameKey builds a $FILE_NAME structure as embedded in index
// entries.
func fileNameKey(name string, size uint64, isDir bool) []byte {
	key := make([]byte, 66+2*len(name))
	binary.LittleEndian.PutUint64(key[48:56], size)
	if isDir {
		binary.LittleEndian.PutUint32(key[56:60], fileNameDirectory)
	}
	key[64] = uint8(len(name))
	key[65] = 1 // Win32 namespace
	for i := 0; i < len(name); i++ {
		binary.LittleEndian.PutUint16(key[66+2*i:68+2*i], uint16(name[i]))
	}
	return key
}

type childEntry struct {
	ref  uint64
	name string
	size uint64
	dir  bool
}

// indexRootAttr builds a resident $INDEX_ROOT holding the given child
// entries plus the terminating last entry.
func indexRootAttr(children []childEntry) []byte {
	value := make([]byte, 32)
	binary.LittleEndian.PutUint32(value[0:4], attrFileName) // indexed attribute
	binary.LittleEndian.PutUint32(value[8:12], 4096)        // index block size
	binary.LittleEndian.PutUint32(value[16:20], 16)         // entries offset from node header

	for _, c := range children {
		key := fileNameKey(c.name, c.size, c.dir)
		entry := make([]byte, 16+len(key))
		binary.LittleEndian.PutUint64(entry[0:8], c.ref)
		binary.LittleEndian.PutUint16(entry[10:12], uint16(len(key)))
		copy(entry[16:], key)
		entry = pad8(entry)
		binary.LittleEndian.PutUint16(entry[8:10], uint16(len(entry)))
		value = append(value, entry...)
	}

	last := make([]byte, 16)
	binary.LittleEndian.PutUint16(last[8:10], 16)
	binary.LittleEndian.PutUint16(last[12:14], entryIsLast)
	value = append(value, last...)

	binary.LittleEndian.PutUint32(value[20:24], uint32(len(value)-16)) // index length
	binary.LittleEndian.PutUint32(value[24:28], uint32(len(value)-16)) // allocated
	return attrResident(attrIndexRoot, value)
}

// buildRecord assembles a full MFT record from attributes.
func buildRecord(t *testing.T, isDir bool, attrs ...[]byte) []byte {
	t.Helper()
	record := make([]byte, imgMFTRecordSize)
	binary.LittleEndian.PutUint32(record[0:4], recordMagic)
	flags := uint16(recordInUse)
	if isDir {
		flags |= recordDirectory
	}
	binary.LittleEndian.PutUint16(record[22:24], flags)
	binary.LittleEndian.PutUint16(record[20:22], 56)

	pos := 56
	for _, a := range attrs {
		if pos+len(a) > len(record)-4 {
			t.Fatalf("attributes overflow MFT record (%d bytes)", pos+len(a))
		}
		copy(record[pos:], a)
		pos += len(a)
	}
	binary.LittleEndian.PutUint32(record[pos:pos+4], attrEnd)
	return record
}

type ntfsImage struct {
	t   *testing.T
	dev *block.MemoryDevice
}

func (img *ntfsImage) writeRecord(n uint64, record []byte) {
	img.t.Helper()
	startSector := uint64(imgMFTCluster*imgClusterSize+int(n)*imgMFTRecordSize) / imgSectorSize
	for i := 0; i < imgMFTRecordSize/imgSectorSize; i++ {
		if err := img.dev.Write(startSector+uint64(i), record[i*imgSectorSize:(i+1)*imgSectorSize]); err != nil {
			img.t.Fatalf("write MFT record %d: %v", n, err)
		}
	}
}

func (img *ntfsImage) fillCluster(cluster uint64, b byte) {
	img.t.Helper()
	sector := bytes.Repeat([]byte{b}, imgSectorSize)
	for i := uint64(0); i < imgClusterSize/imgSectorSize; i++ {
		if err := img.dev.Write(cluster*(imgClusterSize/imgSectorSize)+i, sector); err != nil {
			img.t.Fatalf("fill cluster %d: %v", cluster, err)
		}
	}
}

func buildTestImage(t *testing.T) *block.MemoryDevice {
	t.Helper()
	dev, err := block.NewMemoryDevice("ntfsimg", imgSectors, imgSectorSize)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	img := &ntfsImage{t: t, dev: dev}

	boot := make([]byte, imgSectorSize)
	copy(boot[3:11], []byte(oemID))
	binary.LittleEndian.PutUint16(boot[11:13], imgSectorSize)
	boot[13] = imgClusterSize / imgSectorSize
	binary.LittleEndian.PutUint64(boot[48:56], imgMFTCluster)
	boot[64] = 0xF6 // -10: MFT records are 2^10 bytes
	binary.LittleEndian.PutUint16(boot[510:512], bootSignature)
	if err := dev.Write(0, boot); err != nil {
		t.Fatalf("write boot sector: %v", err)
	}

	img.writeRecord(rootRecord, buildRecord(t, true, indexRootAttr([]childEntry{
		{ref: imgRecHello, name: "hello.txt", size: uint64(len(helloContent))},
		{ref: imgRecRuns, name: "runs.bin", size: runsFileSize},
		{ref: imgRecSubdir, name: "subdir", dir: true},
		{ref: imgRecSparse, name: "sparse.bin", size: 3 * imgClusterSize},
	})))

	img.writeRecord(imgRecHello, buildRecord(t, false,
		attrResident(attrData, []byte(helloContent))))

	// runs.bin: two clusters at LCN 100 then three clusters at LCN 90,
	// encoded as run deltas +100 and -10.
	img.writeRecord(imgRecRuns, buildRecord(t, false,
		attrNonResident(attrData, runsFileSize, 4, []byte{0x11, 0x02, 100, 0x11, 0x03, 0xF6})))
	img.fillCluster(100, 0x01)
	img.fillCluster(101, 0x02)
	img.fillCluster(90, 0x03)
	img.fillCluster(91, 0x04)
	img.fillCluster(92, 0x05)

	img.writeRecord(imgRecSubdir, buildRecord(t, true, indexRootAttr([]childEntry{
		{ref: imgRecNested, name: "nested.txt", size: uint64(len("nested"))},
	})))
	img.writeRecord(imgRecNested, buildRecord(t, false,
		attrResident(attrData, []byte("nested"))))

	// sparse.bin: one stored cluster at LCN 95, then a two-cluster hole.
	img.writeRecord(imgRecSparse, buildRecord(t, false,
		attrNonResident(attrData, 3*imgClusterSize, 2, []byte{0x11, 0x01, 95, 0x01, 0x02})))
	img.fillCluster(95, 0xAA)

	return dev
}

func mountTestImage(t *testing.T) vfs.Volume {
	t.Helper()
	vol, err := NewDriver().Mount(buildTestImage(t))
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	return vol
}

func TestMountBadBootSector(t *testing.T) {
	dev, err := block.NewMemoryDevice("blank", 64, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	if _, err := NewDriver().Mount(dev); !errors.Is(err, vfs.ErrInvalidFormat) {
		t.Errorf("Mount on blank device = %v, want ErrInvalidFormat", err)
	}
}

func TestRecordSizeFromNegativeEncoding(t *testing.T) {
	fs, err := Open(buildTestImage(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fs.mftRecordSize != imgMFTRecordSize {
		t.Errorf("MFT record size = %d, want %d", fs.mftRecordSize, imgMFTRecordSize)
	}
	if fs.bytesPerCluster != imgClusterSize {
		t.Errorf("cluster size = %d, want %d", fs.bytesPerCluster, imgClusterSize)
	}
}

func TestResidentRead(t *testing.T) {
	v := mountTestImage(t)

	f, err := v.Open("hello.txt", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got := make([]byte, 64)
	n, err := f.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got[:n]) != helloContent {
		t.Errorf("read %q, want %q", got[:n], helloContent)
	}
	if _, err := f.Read(got); err != io.EOF {
		t.Errorf("read past EOF = %v, want io.EOF", err)
	}
}

func TestDataRunReconstruction(t *testing.T) {
	v := mountTestImage(t)

	f, err := v.Open("runs.bin", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	got := make([]byte, runsFileSize)
	total := 0
	for total < len(got) {
		n, err := f.Read(got[total:])
		if err != nil {
			t.Fatalf("Read at %d: %v", total, err)
		}
		total += n
	}

	// Virtual clusters 0..4 map to physical 100, 101, 90, 91, 92.
	for vc, want := range []byte{0x01, 0x02, 0x03, 0x04, 0x05} {
		off := vc * imgClusterSize
		if off >= runsFileSize {
			break
		}
		if got[off] != want {
			t.Errorf("virtual cluster %d content = 0x%02x, want 0x%02x", vc, got[off], want)
		}
	}

	// A read spanning the boundary between the two runs.
	if _, err := f.Seek(2*imgClusterSize-256, io.SeekStart); err != nil {
		t.Fatalf("Seek: %v", err)
	}
	span := make([]byte, 512)
	if _, err := io.ReadFull(readerOf(f), span); err != nil {
		t.Fatalf("read across run boundary: %v", err)
	}
	if span[0] != 0x02 || span[511] != 0x03 {
		t.Errorf("boundary bytes = 0x%02x..0x%02x, want 0x02..0x03", span[0], span[511])
	}
}

// readerOf adapts a vfs.File to io.Reader for io.ReadFull.
func readerOf(f vfs.File) io.Reader {
	return readerFunc(f.Read)
}

type readerFunc func([]byte) (int, error)

func (fn readerFunc) Read(p []byte) (int, error) { return fn(p) }

func TestSparseRunReadsZeros(t *testing.T) {
	v := mountTestImage(t)

	f, err := v.Open("sparse.bin", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	got := make([]byte, 3*imgClusterSize)
	total := 0
	for total < len(got) {
		n, err := f.Read(got[total:])
		if err != nil {
			t.Fatalf("Read at %d: %v", total, err)
		}
		total += n
	}
	if got[0] != 0xAA {
		t.Errorf("stored cluster byte = 0x%02x, want 0xAA", got[0])
	}
	for _, off := range []int{imgClusterSize, 2*imgClusterSize + 511, 3*imgClusterSize - 1} {
		if got[off] != 0 {
			t.Errorf("hole byte at %d = 0x%02x, want 0", off, got[off])
		}
	}
}

func TestRunListShorterThanDataSize(t *testing.T) {
	dev, err := block.NewMemoryDevice("short", 64, imgSectorSize)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	defer dev.Close()

	img := &ntfsImage{t: t, dev: dev}
	img.fillCluster(5, 0xAB)

	fs := &FS{dev: dev, bytesPerSector: imgSectorSize, bytesPerCluster: imgClusterSize}

	// The declared size spans three clusters but the run list stores
	// only the first; the uncovered tail must read as zeros.
	attr := attrNonResident(attrData, 3*imgClusterSize, 0, []byte{0x11, 0x01, 0x05, 0x00})
	a := attribute{attrType: attrData, nonResident: true, raw: attr}

	out := make([]byte, 3*imgClusterSize)
	for i := range out {
		out[i] = 0xEE
	}
	n, err := fs.readData(&a, 0, out)
	if err != nil {
		t.Fatalf("readData: %v", err)
	}
	if n != len(out) {
		t.Fatalf("readData = %d bytes, want %d", n, len(out))
	}
	for _, off := range []int{0, imgClusterSize - 1} {
		if out[off] != 0xAB {
			t.Errorf("stored byte at %d = 0x%02x, want 0xAB", off, out[off])
		}
	}
	for _, off := range []int{imgClusterSize, 2 * imgClusterSize, 3*imgClusterSize - 1} {
		if out[off] != 0 {
			t.Errorf("uncovered byte at %d = 0x%02x, want 0", off, out[off])
		}
	}
}

func TestDirectoryLookupNested(t *testing.T) {
	v := mountTestImage(t)

	f, err := v.Open("subdir/nested.txt", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	got := make([]byte, 16)
	n, err := f.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if string(got[:n]) != "nested" {
		t.Errorf("read %q, want %q", got[:n], "nested")
	}

	if _, err := v.Open("subdir", vfs.FlagRead); !errors.Is(err, vfs.ErrIsDirectory) {
		t.Errorf("Open on directory = %v, want ErrIsDirectory", err)
	}
	if _, err := v.Open("missing.txt", vfs.FlagRead); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("Open missing = %v, want ErrNotFound", err)
	}
}

func TestReadDirListing(t *testing.T) {
	v := mountTestImage(t)

	d, err := v.OpenDir("")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer d.Close()

	seen := map[string]vfs.Dirent{}
	for {
		ent, err := d.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		seen[ent.Name] = ent
	}
	if len(seen) != 4 {
		t.Errorf("listing has %d entries, want 4: %v", len(seen), seen)
	}
	if ent := seen["subdir"]; !ent.IsDir {
		t.Errorf("subdir entry = %+v, want directory", ent)
	}
	if ent := seen["runs.bin"]; ent.Size != runsFileSize {
		t.Errorf("runs.bin size = %d, want %d", ent.Size, runsFileSize)
	}
}

func TestReadOnlyVolume(t *testing.T) {
	v := mountTestImage(t)

	if !v.ReadOnly() {
		t.Error("ReadOnly = false, want true")
	}
	if _, err := v.Open("hello.txt", vfs.FlagRead|vfs.FlagWrite); !errors.Is(err, vfs.ErrReadOnly) {
		t.Errorf("Open for write = %v, want ErrReadOnly", err)
	}
	if err := v.Unlink("hello.txt"); !errors.Is(err, vfs.ErrReadOnly) {
		t.Errorf("Unlink = %v, want ErrReadOnly", err)
	}
	if err := v.Mkdir("x"); !errors.Is(err, vfs.ErrReadOnly) {
		t.Errorf("Mkdir = %v, want ErrReadOnly", err)
	}

	f, err := v.Open("hello.txt", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := f.Write([]byte("x")); !errors.Is(err, vfs.ErrReadOnly) {
		t.Errorf("Write = %v, want ErrReadOnly", err)
	}
}

func TestDataRunDecoding(t *testing.T) {
	attr := attrNonResident(attrData, 5*imgClusterSize, 4,
		[]byte{0x11, 0x02, 100, 0x11, 0x03, 0xF6})
	a := attribute{attrType: attrData, nonResident: true, raw: attr}

	runs, err := a.decodeDataRuns()
	if err != nil {
		t.Fatalf("decodeDataRuns: %v", err)
	}
	want := []dataRun{
		{vcn: 0, length: 2, lcn: 100},
		{vcn: 2, length: 3, lcn: 90},
	}
	if len(runs) != len(want) {
		t.Fatalf("got %d runs, want %d", len(runs), len(want))
	}
	for i, w := range want {
		if runs[i] != w {
			t.Errorf("run %d = %+v, want %+v", i, runs[i], w)
		}
	}
}
