// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunked

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"
)

// On-disk layout, all multi-byte fields little-endian.
//
// Header (64 bytes at offset 0):
//
//	magic "GOCHUNK1" (8) | version u32 | flags u32 | chunk size u64 (elements) |
//	element size u32 | fill value i32 | filter u8 | level u8 | reserved u16 |
//	extent u64 (elements) | dataset name (20, NUL-padded)
//
// The extent field is rewritten in place by SetExtent; everything else is
// immutable after Create.
//
// Chunk records follow the header back to back:
//
//	element offset u64 | filter mask u32 | payload length u32 | crc32 u32 | payload
//
// The checksum (Castagnoli) covers the payload only. Records are never
// rewritten; if an offset appears twice, the later record wins.
const (
	formatVersion = 1

	headerSize       = 64
	recordHeaderSize = 20

	// byte position of the extent field within the header
	extentFieldOff = 36

	datasetNameSize = 20
)

var headerMagic = [8]byte{'G', 'O', 'C', 'H', 'U', 'N', 'K', '1'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// elementSize is the byte size of one array element. The container stores
// 32-bit signed integers only.
const elementSize = 4

type header struct {
	chunkSize   uint64
	extent      uint64
	fillValue   int32
	filter      Filter
	level       int
	datasetName string
}

func (h header) encode() []byte {
	buf := make([]byte, headerSize)

	copy(buf[0:8], headerMagic[:])
	binary.LittleEndian.PutUint32(buf[8:12], formatVersion)
	// buf[12:16] flags, reserved
	binary.LittleEndian.PutUint64(buf[16:24], h.chunkSize)
	binary.LittleEndian.PutUint32(buf[24:28], elementSize)
	binary.LittleEndian.PutUint32(buf[28:32], uint32(h.fillValue))
	buf[32] = byte(h.filter)
	buf[33] = byte(h.level)
	// buf[34:36] reserved
	binary.LittleEndian.PutUint64(buf[extentFieldOff:extentFieldOff+8], h.extent)
	copy(buf[44:44+datasetNameSize], h.datasetName)

	return buf
}

func decodeHeader(buf []byte) (header, error) {
	var h header

	if len(buf) < headerSize {
		return h, fmt.Errorf("%w: short header: %d bytes", ErrCorrupt, len(buf))
	}

	if [8]byte(buf[0:8]) != headerMagic {
		return h, fmt.Errorf("%w: bad magic %q", ErrCorrupt, buf[0:8])
	}

	if v := binary.LittleEndian.Uint32(buf[8:12]); v != formatVersion {
		return h, fmt.Errorf("%w: unsupported format version %d", ErrCorrupt, v)
	}

	if es := binary.LittleEndian.Uint32(buf[24:28]); es != elementSize {
		return h, fmt.Errorf("%w: unsupported element size %d", ErrCorrupt, es)
	}

	h.chunkSize = binary.LittleEndian.Uint64(buf[16:24])
	if h.chunkSize == 0 {
		return h, fmt.Errorf("%w: zero chunk size", ErrCorrupt)
	}

	h.fillValue = int32(binary.LittleEndian.Uint32(buf[28:32]))
	h.filter = Filter(buf[32])
	h.level = int(buf[33])
	h.extent = binary.LittleEndian.Uint64(buf[extentFieldOff : extentFieldOff+8])

	name := buf[44 : 44+datasetNameSize]
	for len(name) > 0 && name[len(name)-1] == 0 {
		name = name[:len(name)-1]
	}

	h.datasetName = string(name)

	return h, nil
}

// record describes one stored chunk: where its payload lives in the file and
// how it was filtered.
type record struct {
	payloadPos int64
	length     uint32
	sum        uint32
	mask       FilterMask
}

func encodeRecordHeader(offset uint64, mask FilterMask, payload []byte) []byte {
	buf := make([]byte, recordHeaderSize)

	binary.LittleEndian.PutUint64(buf[0:8], offset)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(mask))
	binary.LittleEndian.PutUint32(buf[12:16], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[16:20], crc32.Checksum(payload, castagnoli))

	return buf
}

func decodeRecordHeader(buf []byte) (offset uint64, mask FilterMask, length, sum uint32) {
	offset = binary.LittleEndian.Uint64(buf[0:8])
	mask = FilterMask(binary.LittleEndian.Uint32(buf[8:12]))
	length = binary.LittleEndian.Uint32(buf[12:16])
	sum = binary.LittleEndian.Uint32(buf[16:20])

	return offset, mask, length, sum
}

func encodeInt32s(values []int32, dst []byte) []byte {
	for _, v := range values {
		dst = binary.LittleEndian.AppendUint32(dst, uint32(v))
	}

	return dst
}

func decodeInt32s(buf []byte, dst []int32) []int32 {
	for len(buf) >= elementSize {
		dst = append(dst, int32(binary.LittleEndian.Uint32(buf[:elementSize])))
		buf = buf[elementSize:]
	}

	return dst
}
