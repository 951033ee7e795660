package fat32

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

func newTestVolume(t *testing.T) (*volume, *FS) {
	t.Helper()
	dev, err := block.NewMemoryDevice("disk0", 4096, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	if err := Format(dev, FormatOptions{}); err != nil {
		t.Fatalf("Format: %v", err)
	}
	vol, err := NewDriver().Mount(dev)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}
	v := vol.(*volume)
	return v, v.fs
}

func TestFormatGeometry(t *testing.T) {
	_, fs := newTestVolume(t)
	if fs.rootCluster != firstDataClus {
		t.Errorf("root cluster = %d, want %d", fs.rootCluster, firstDataClus)
	}
	if fs.bytesPerCluster != 512 {
		t.Errorf("bytes per cluster = %d, want 512", fs.bytesPerCluster)
	}
	if fs.totalClusters == 0 {
		t.Error("no data clusters after format")
	}
}

func TestMountBadSignature(t *testing.T) {
	dev, err := block.NewMemoryDevice("blank", 64, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	if _, err := NewDriver().Mount(dev); !errors.Is(err, vfs.ErrInvalidFormat) {
		t.Errorf("Mount on blank device = %v, want ErrInvalidFormat", err)
	}
}

func TestCreateWriteReadBack(t *testing.T) {
	v, _ := newTestVolume(t)

	data := []byte("hello from the fat32 driver")
	f, err := v.Open("hello.txt", vfs.FlagRead|vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open create: %v", err)
	}
	if n, err := f.Write(data); err != nil || n != len(data) {
		t.Fatalf("Write = (%d, %v), want (%d, nil)", n, err, len(data))
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := v.Stat("hello.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != int64(len(data)) {
		t.Errorf("Stat size = %d, want %d", info.Size, len(data))
	}
	if info.Name != "HELLO.TXT" {
		t.Errorf("Stat name = %q, want %q", info.Name, "HELLO.TXT")
	}

	f, err = v.Open("HELLO.TXT", vfs.FlagRead)
	if err != nil {
		t.Fatalf("Open reopen: %v", err)
	}
	defer f.Close()
	got := make([]byte, len(data)+16)
	n, err := f.Read(got)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got[:n], data) {
		t.Errorf("read back %q, want %q", got[:n], data)
	}
	if _, err := f.Read(got); err != io.EOF {
		t.Errorf("read past EOF = %v, want io.EOF", err)
	}
}

func TestWriteAllocatesExactClusters(t *testing.T) {
	v, fs := newTestVolume(t)

	free0, err := fs.countFreeClusters()
	if err != nil {
		t.Fatalf("countFreeClusters: %v", err)
	}

	// 1200 bytes at 512 bytes per cluster needs three clusters.
	f, err := v.Open("big.bin", vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	payload := bytes.Repeat([]byte{0xAB}, 1200)
	if _, err := f.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	free1, err := fs.countFreeClusters()
	if err != nil {
		t.Fatalf("countFreeClusters: %v", err)
	}
	if used := free0 - free1; used != 3 {
		t.Errorf("write consumed %d clusters, want 3", used)
	}

	if err := v.Unlink("big.bin"); err != nil {
		t.Fatalf("Unlink: %v", err)
	}
	free2, err := fs.countFreeClusters()
	if err != nil {
		t.Fatalf("countFreeClusters: %v", err)
	}
	if free2 != free0 {
		t.Errorf("free clusters after unlink = %d, want %d", free2, free0)
	}
	if _, err := v.Stat("big.bin"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("Stat after unlink = %v, want ErrNotFound", err)
	}
}

func TestSeekClamps(t *testing.T) {
	v, _ := newTestVolume(t)

	f, err := v.Open("seek.dat", vfs.FlagRead|vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(make([]byte, 100)); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if pos, err := f.Seek(500, io.SeekStart); err != nil || pos != 100 {
		t.Errorf("Seek past EOF = (%d, %v), want (100, nil)", pos, err)
	}
	if pos, err := f.Seek(-500, io.SeekCurrent); err != nil || pos != 0 {
		t.Errorf("Seek before start = (%d, %v), want (0, nil)", pos, err)
	}
	if pos, err := f.Seek(-10, io.SeekEnd); err != nil || pos != 90 {
		t.Errorf("Seek from end = (%d, %v), want (90, nil)", pos, err)
	}
	if got := f.Tell(); got != 90 {
		t.Errorf("Tell = %d, want 90", got)
	}
}

func TestTruncateOnOpen(t *testing.T) {
	v, _ := newTestVolume(t)

	f, err := v.Open("t.txt", vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write(bytes.Repeat([]byte{1}, 900)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err = v.Open("t.txt", vfs.FlagWrite|vfs.FlagTrunc)
	if err != nil {
		t.Fatalf("Open trunc: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	info, err := v.Stat("t.txt")
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if info.Size != 0 {
		t.Errorf("size after truncate = %d, want 0", info.Size)
	}
}

func TestReadDir(t *testing.T) {
	v, _ := newTestVolume(t)

	for _, name := range []string{"a.txt", "b.txt", "c.bin"} {
		f, err := v.Open(name, vfs.FlagWrite|vfs.FlagCreate)
		if err != nil {
			t.Fatalf("Open %q: %v", name, err)
		}
		if err := f.Close(); err != nil {
			t.Fatalf("Close %q: %v", name, err)
		}
	}

	d, err := v.OpenDir("")
	if err != nil {
		t.Fatalf("OpenDir: %v", err)
	}
	defer d.Close()

	seen := map[string]bool{}
	for {
		ent, err := d.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("Read: %v", err)
		}
		seen[ent.Name] = true
	}
	for _, want := range []string{"A.TXT", "B.TXT", "C.BIN"} {
		if !seen[want] {
			t.Errorf("directory listing is missing %q (got %v)", want, seen)
		}
	}
}

func TestRename(t *testing.T) {
	v, _ := newTestVolume(t)

	f, err := v.Open("old.txt", vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.Write([]byte("payload")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := v.Rename("old.txt", "new.txt"); err != nil {
		t.Fatalf("Rename: %v", err)
	}
	if _, err := v.Stat("old.txt"); !errors.Is(err, vfs.ErrNotFound) {
		t.Errorf("Stat old name = %v, want ErrNotFound", err)
	}
	info, err := v.Stat("new.txt")
	if err != nil {
		t.Fatalf("Stat new name: %v", err)
	}
	if info.Size != int64(len("payload")) {
		t.Errorf("size survived rename = %d, want %d", info.Size, len("payload"))
	}

	if err := v.Rename("new.txt", "sub/new.txt"); !errors.Is(err, vfs.ErrNotSupported) {
		t.Errorf("cross-directory rename = %v, want ErrNotSupported", err)
	}
}

func TestDirectoriesNotWritable(t *testing.T) {
	v, _ := newTestVolume(t)

	if err := v.Mkdir("sub"); !errors.Is(err, vfs.ErrNotSupported) {
		t.Errorf("Mkdir = %v, want ErrNotSupported", err)
	}
	if err := v.Rmdir("sub"); !errors.Is(err, vfs.ErrNotSupported) {
		t.Errorf("Rmdir = %v, want ErrNotSupported", err)
	}
	if _, err := v.Open("", vfs.FlagRead); !errors.Is(err, vfs.ErrIsDirectory) {
		t.Errorf("Open root = %v, want ErrIsDirectory", err)
	}
}

func TestCreateRejectsDuplicate(t *testing.T) {
	v, _ := newTestVolume(t)

	f, err := v.Open("dup.txt", vfs.FlagWrite|vfs.FlagCreate)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := f.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, _, err := v.fs.createFile("dup.txt"); !errors.Is(err, vfs.ErrAlreadyExists) {
		t.Errorf("createFile duplicate = %v, want ErrAlreadyExists", err)
	}
}

func TestShortNameConversion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"readme.md", "README  MD "},
		{"a", "A          "},
		{"kernel.bin", "KERNEL  BIN"},
	}
	for _, tt := range tests {
		raw, err := formatName83(tt.in)
		if err != nil {
			t.Errorf("formatName83(%q): %v", tt.in, err)
			continue
		}
		if string(raw[:]) != tt.want {
			t.Errorf("formatName83(%q) = %q, want %q", tt.in, raw[:], tt.want)
		}
	}

	for _, bad := range []string{"", "waytoolongname.txt", "file.jpeg"} {
		if _, err := formatName83(bad); !errors.Is(err, vfs.ErrInvalidArgument) {
			t.Errorf("formatName83(%q) = %v, want ErrInvalidArgument", bad, err)
		}
	}

	raw, _ := formatName83("boot.cfg")
	if got := displayName(raw); got != "BOOT.CFG" {
		t.Errorf("displayName = %q, want %q", got, "BOOT.CFG")
	}
}

func TestFATTimestampRoundTrip(t *testing.T) {
	orig := time.Date(2026, time.March, 14, 15, 9, 26, 0, time.UTC)
	date, tod := timeToFAT(orig)
	got := fatToTime(date, tod)
	if got != orig {
		t.Errorf("round trip = %v, want %v", got, orig)
	}
}
