package crypt

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key, err := GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	if len(key) != KeySize {
		t.Fatalf("key length = %d, want %d", len(key), KeySize)
	}
	return key
}

func TestWrapGeometry(t *testing.T) {
	under, err := block.NewMemoryDevice("ram0", 64, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	dev, err := Wrap(under, testKey(t))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	if dev.Name() != "enc_ram0" {
		t.Fatalf("Name = %q, want enc_ram0", dev.Name())
	}
	if dev.BlockCount() != 63 {
		t.Fatalf("BlockCount = %d, want 63", dev.BlockCount())
	}
	if dev.BlockSize() != 512 {
		t.Fatalf("BlockSize = %d, want 512", dev.BlockSize())
	}

	buf := make([]byte, 512)
	if err := dev.Read(63, buf); !errors.Is(err, block.ErrInvalidBlockNumber) {
		t.Fatalf("read past end: got %v, want ErrInvalidBlockNumber", err)
	}
}

func TestEncryptionRoundTrip(t *testing.T) {
	for _, suite := range []Suite{SuiteAES256CBC, SuiteChaCha20} {
		t.Run(suite.String(), func(t *testing.T) {
			under, err := block.NewMemoryDevice("ram0", 16, 512)
			if err != nil {
				t.Fatalf("NewMemoryDevice: %v", err)
			}
			dev, err := WrapSuite(under, testKey(t), suite)
			if err != nil {
				t.Fatalf("WrapSuite: %v", err)
			}

			out := make([]byte, 512)
			for i := range out {
				out[i] = byte(i * 7)
			}
			if err := dev.Write(4, out); err != nil {
				t.Fatalf("Write: %v", err)
			}

			// Ciphertext on the underlying device differs from plaintext
			// and lands one block past the header.
			raw := make([]byte, 512)
			if err := under.Read(5, raw); err != nil {
				t.Fatalf("underlying read: %v", err)
			}
			if bytes.Equal(raw, out) {
				t.Fatal("ciphertext equals plaintext")
			}

			in := make([]byte, 512)
			if err := dev.Read(4, in); err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !bytes.Equal(in, out) {
				t.Fatal("round trip mismatch")
			}
		})
	}
}

func TestEncryptionIdempotent(t *testing.T) {
	under, err := block.NewMemoryDevice("ram0", 16, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	dev, err := Wrap(under, testKey(t))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	out := bytes.Repeat([]byte{0x42}, 512)
	if err := dev.Write(2, out); err != nil {
		t.Fatalf("first write: %v", err)
	}
	ct1 := make([]byte, 512)
	if err := under.Read(3, ct1); err != nil {
		t.Fatalf("underlying read: %v", err)
	}

	// Writing the same plaintext to the same logical block again must
	// produce identical ciphertext: the IV depends only on the block number.
	if err := dev.Write(2, out); err != nil {
		t.Fatalf("second write: %v", err)
	}
	ct2 := make([]byte, 512)
	if err := under.Read(3, ct2); err != nil {
		t.Fatalf("underlying read: %v", err)
	}
	if !bytes.Equal(ct1, ct2) {
		t.Fatal("ciphertext changed between identical writes")
	}

	// Repeated out-of-order reads decrypt consistently.
	for i := 0; i < 3; i++ {
		in := make([]byte, 512)
		if err := dev.Read(2, in); err != nil {
			t.Fatalf("read %d: %v", i, err)
		}
		if !bytes.Equal(in, out) {
			t.Fatalf("read %d mismatch", i)
		}
	}
}

func TestDistinctBlocksDistinctCiphertext(t *testing.T) {
	under, err := block.NewMemoryDevice("ram0", 16, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	dev, err := Wrap(under, testKey(t))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	out := bytes.Repeat([]byte{0x11}, 512)
	if err := dev.Write(0, out); err != nil {
		t.Fatalf("write block 0: %v", err)
	}
	if err := dev.Write(1, out); err != nil {
		t.Fatalf("write block 1: %v", err)
	}

	ct0 := make([]byte, 512)
	ct1 := make([]byte, 512)
	if err := under.Read(1, ct0); err != nil {
		t.Fatalf("underlying read: %v", err)
	}
	if err := under.Read(2, ct1); err != nil {
		t.Fatalf("underlying read: %v", err)
	}
	if bytes.Equal(ct0, ct1) {
		t.Fatal("same plaintext in different blocks produced same ciphertext")
	}
}

func TestEnableDisable(t *testing.T) {
	under, err := block.NewMemoryDevice("ram0", 16, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}
	dev, err := Wrap(under, testKey(t))
	if err != nil {
		t.Fatalf("Wrap: %v", err)
	}

	if !dev.IsEncrypted() {
		t.Fatal("encryption should start enabled")
	}

	dev.Disable()
	if dev.IsEncrypted() {
		t.Fatal("Disable did not take effect")
	}

	out := bytes.Repeat([]byte{0x33}, 512)
	if err := dev.Write(0, out); err != nil {
		t.Fatalf("passthrough write: %v", err)
	}
	raw := make([]byte, 512)
	if err := under.Read(1, raw); err != nil {
		t.Fatalf("underlying read: %v", err)
	}
	if !bytes.Equal(raw, out) {
		t.Fatal("disabled write was transformed")
	}

	dev.Enable()
	in := make([]byte, 512)
	if err := dev.Read(0, in); err != nil {
		t.Fatalf("read: %v", err)
	}
	if bytes.Equal(in, out) {
		t.Fatal("enabled read of plaintext block should decrypt to garbage")
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	salt := []byte("0123456789abcdef")

	k1 := DeriveKey("hunter2", salt, 1000)
	k2 := DeriveKey("hunter2", salt, 1000)
	if !bytes.Equal(k1, k2) {
		t.Fatal("same inputs derived different keys")
	}
	if len(k1) != KeySize {
		t.Fatalf("derived key length = %d, want %d", len(k1), KeySize)
	}

	if bytes.Equal(k1, DeriveKey("hunter3", salt, 1000)) {
		t.Fatal("different passwords derived the same key")
	}
	if bytes.Equal(k1, DeriveKey("hunter2", salt, 1001)) {
		t.Fatal("different iteration counts derived the same key")
	}

	a1 := DeriveKeyArgon2("hunter2", salt, DefaultArgon2Params)
	a2 := DeriveKeyArgon2("hunter2", salt, DefaultArgon2Params)
	if !bytes.Equal(a1, a2) {
		t.Fatal("argon2 derivation not deterministic")
	}
	if bytes.Equal(a1, k1) {
		t.Fatal("argon2 and pbkdf2 should not collide")
	}
}

func TestHeaderRoundTrip(t *testing.T) {
	under, err := block.NewMemoryDevice("ram0", 16, 512)
	if err != nil {
		t.Fatalf("NewMemoryDevice: %v", err)
	}

	salt, err := GenerateSalt(SaltSize)
	if err != nil {
		t.Fatalf("GenerateSalt: %v", err)
	}
	h, err := NewHeader(SuiteAES256CBC, salt, 4096)
	if err != nil {
		t.Fatalf("NewHeader: %v", err)
	}

	if IsEncryptedDevice(under) {
		t.Fatal("fresh device should not look encrypted")
	}
	if err := WriteHeader(under, h); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	if !IsEncryptedDevice(under) {
		t.Fatal("device with header should look encrypted")
	}

	got, err := ReadHeader(under)
	if err != nil {
		t.Fatalf("ReadHeader: %v", err)
	}
	if got.Version != HeaderVersion || got.CipherType != SuiteAES256CBC {
		t.Fatalf("header fields wrong: %+v", got)
	}
	if !bytes.Equal(got.Salt[:], salt) {
		t.Fatal("salt mismatch")
	}
	if got.Iterations != 4096 {
		t.Fatalf("Iterations = %d, want 4096", got.Iterations)
	}
	if got.VolumeID != h.VolumeID {
		t.Fatal("volume id mismatch")
	}
}

func TestHeaderBadMagic(t *testing.T) {
	buf := make([]byte, 512)
	copy(buf, "NOT_AN_ENCRYPTED_VOLUME")
	if _, err := UnmarshalHeader(buf); !errors.Is(err, ErrBadHeaderMagic) {
		t.Fatalf("got %v, want ErrBadHeaderMagic", err)
	}
}
