package ntfs

import (
	"encoding/binary"
	"fmt"

	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/block"
	"github.com/Whoisraeen/Scarlett-OS-sub004/pkg/vfs"
)

// attribute is one entry of an MFT record's attribute stream. raw spans
// the whole attribute including its header.
type attribute struct {
	attrType    uint32
	nonResident bool
	raw         []byte
}

// findAttribute scans the record's attribute stream for the first
// attribute of the wanted type. The stream ends at the 0xFFFFFFFF
// terminator.
func findAttribute(record []byte, wanted uint32) (attribute, error) {
	offset := uint32(binary.LittleEndian.Uint16(record[20:22]))
	for offset+8 <= uint32(len(record)) {
		attrType := binary.LittleEndian.Uint32(record[offset : offset+4])
		if attrType == attrEnd {
			break
		}
		length := binary.LittleEndian.Uint32(record[offset+4 : offset+8])
		if length == 0 || offset+length > uint32(len(record)) {
			return attribute{}, fmt.Errorf("ntfs: malformed attribute at offset %d: %w", offset, vfs.ErrInvalidFormat)
		}
		if attrType == wanted {
			return attribute{
				attrType:    attrType,
				nonResident: record[offset+8] != 0,
				raw:         record[offset : offset+length],
			}, nil
		}
		offset += length
	}
	return attribute{}, vfs.ErrNotFound
}

// residentValue returns the inline value of a resident attribute.
func (a *attribute) residentValue() ([]byte, error) {
	if a.nonResident {
		return nil, vfs.ErrInvalidFormat
	}
	size := binary.LittleEndian.Uint32(a.raw[16:20])
	offset := uint32(binary.LittleEndian.Uint16(a.raw[20:22]))
	if offset+size > uint32(len(a.raw)) {
		return nil, fmt.Errorf("ntfs: resident value out of bounds: %w", vfs.ErrInvalidFormat)
	}
	return a.raw[offset : offset+size], nil
}

// dataSize returns the byte size of the attribute's content.
func (a *attribute) dataSize() uint64 {
	if a.nonResident {
		return binary.LittleEndian.Uint64(a.raw[48:56])
	}
	return uint64(binary.LittleEndian.Uint32(a.raw[16:20]))
}

// dataRun is one decoded run of a non-resident attribute: length
// clusters starting at virtual cluster vcn, stored at logical cluster
// lcn. A sparse run has no storage and reads as zeros.
type dataRun struct {
	vcn    uint64
	length uint64
	lcn    uint64
	sparse bool
}

// decodeDataRuns unpacks the run list of a non-resident attribute.
// Each run is a nibble header giving the byte widths of the length and
// offset fields, a little-endian length, and a sign-extended
// little-endian cluster delta relative to the previous run. The run's
// starting VCN is the running length total before the run itself is
// added.
func (a *attribute) decodeDataRuns() ([]dataRun, error) {
	if !a.nonResident {
		return nil, vfs.ErrInvalidFormat
	}
	start := uint32(binary.LittleEndian.Uint16(a.raw[32:34]))
	if start >= uint32(len(a.raw)) {
		return nil, fmt.Errorf("ntfs: run list out of bounds: %w", vfs.ErrInvalidFormat)
	}

	var runs []dataRun
	var vcn uint64
	var lcn int64
	p := a.raw[start:]
	for len(p) > 0 && p[0] != 0 {
		lengthBytes := int(p[0] & 0x0F)
		offsetBytes := int(p[0] >> 4)
		p = p[1:]
		if len(p) < lengthBytes+offsetBytes {
			return nil, fmt.Errorf("ntfs: truncated data run: %w", vfs.ErrInvalidFormat)
		}

		var length uint64
		for i := 0; i < lengthBytes; i++ {
			length |= uint64(p[i]) << (8 * i)
		}
		p = p[lengthBytes:]

		run := dataRun{vcn: vcn, length: length, sparse: offsetBytes == 0}
		if !run.sparse {
			var delta int64
			for i := 0; i < offsetBytes; i++ {
				delta |= int64(p[i]) << (8 * i)
			}
			// Sign-extend from the encoded width.
			shift := uint(64 - 8*offsetBytes)
			delta = delta << shift >> shift
			lcn += delta
			if lcn < 0 {
				return nil, fmt.Errorf("ntfs: negative cluster in run list: %w", vfs.ErrInvalidFormat)
			}
			run.lcn = uint64(lcn)
		}
		p = p[offsetBytes:]

		runs = append(runs, run)
		vcn += length
	}
	return runs, nil
}

// readData copies up to count bytes of the attribute's content starting
// at offset into out, returning the number of bytes produced.
func (fs *FS) readData(a *attribute, offset uint64, out []byte) (int, error) {
	size := a.dataSize()
	if offset >= size {
		return 0, nil
	}
	toRead := uint64(len(out))
	if offset+toRead > size {
		toRead = size - offset
	}
	out = out[:toRead]

	if !a.nonResident {
		value, err := a.residentValue()
		if err != nil {
			return 0, err
		}
		return copy(out, value[offset:]), nil
	}

	runs, err := a.decodeDataRuns()
	if err != nil {
		return 0, err
	}

	// Spans not covered by any stored run read as zeros. This handles
	// sparse runs and any gap a malformed run list leaves between runs.
	for i := range out {
		out[i] = 0
	}

	end := offset + toRead
	cs := uint64(fs.bytesPerCluster)
	for _, run := range runs {
		runStart := run.vcn * cs
		runEnd := runStart + run.length*cs
		if runEnd <= offset || runStart >= end {
			continue
		}

		copyStart := runStart
		if offset > copyStart {
			copyStart = offset
		}
		copyEnd := runEnd
		if end < copyEnd {
			copyEnd = end
		}
		dst := out[copyStart-offset : copyEnd-offset]

		if run.sparse {
			continue
		}

		if err := fs.readRunSpan(run, copyStart-runStart, dst); err != nil {
			return 0, err
		}
	}
	return int(toRead), nil
}

// readRunSpan reads into dst from a stored run, starting runOffset
// bytes into the run.
func (fs *FS) readRunSpan(run dataRun, runOffset uint64, dst []byte) error {
	byteStart := run.lcn*uint64(fs.bytesPerCluster) + runOffset
	sector := byteStart / uint64(fs.bytesPerSector)
	skew := byteStart % uint64(fs.bytesPerSector)

	sectorCount := (skew + uint64(len(dst)) + uint64(fs.bytesPerSector) - 1) / uint64(fs.bytesPerSector)
	buf := make([]byte, sectorCount*uint64(fs.bytesPerSector))
	if err := block.ReadBlocks(fs.dev, sector, sectorCount, buf); err != nil {
		return err
	}
	copy(dst, buf[skew:])
	return nil
}
