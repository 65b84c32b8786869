// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package chunked implements a self-describing container file holding one
// extensible one-dimensional array of 32-bit signed integers, stored as
// fixed-size chunks.
//
// The logical extent of the array grows monotonically and independently of
// which chunk slots have been written; unwritten positions read back as the
// configured fill value. Chunks are written verbatim with WriteChunkDirect
// (optionally pre-compressed by the caller) or through the declared filter
// pipeline with WriteChunk.
//
// A container is written by exactly one process, but may be re-opened
// read-only by concurrent readers while the writer is live: the writer grows
// the extent before writing the chunk, so a reader never observes chunk data
// beyond the extent it read from the header.
package chunked

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"maps"
	"os"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/siderolabs/gen/optional"
	"go.uber.org/zap"

	"github.com/derobins/go-chunked/deflate"
	"github.com/derobins/go-chunked/zstd"
)

// Container is a single-dataset chunked array file.
//
// All methods are safe for concurrent use, but the write path assumes a
// single writer process.
type Container struct {
	f *os.File

	comp Compressor

	// chunk records by starting element offset
	index map[uint64]record

	opt Options

	hdr header

	// append position for the next chunk record
	wpos int64

	readOnly bool

	closed atomic.Bool

	// synchronizing access to index, hdr.extent, wpos
	mu sync.Mutex
}

// Create creates a new container file with the specified options, truncating
// any existing file at path.
//
// On failure no partially-initialized file is left behind.
func Create(path string, opts ...OptionFunc) (*Container, error) {
	c := &Container{
		opt: defaultOptions(),
	}

	for _, o := range opts {
		if err := o(&c.opt); err != nil {
			return nil, err
		}
	}

	var err error

	c.comp, err = newCompressor(c.opt.Filter, c.opt.Level)
	if err != nil {
		return nil, err
	}

	c.hdr = header{
		chunkSize:   c.opt.ChunkSize,
		fillValue:   c.opt.FillValue,
		filter:      c.opt.Filter,
		level:       c.opt.Level,
		datasetName: c.opt.DatasetName,
	}

	c.f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to create container file: %w", err)
	}

	if _, err = c.f.WriteAt(c.hdr.encode(), 0); err != nil {
		c.f.Close() //nolint:errcheck
		os.Remove(path) //nolint:errcheck

		return nil, fmt.Errorf("failed to write container header: %w", err)
	}

	c.index = map[uint64]record{}
	c.wpos = headerSize

	c.opt.Logger.Debug("container created",
		zap.String("path", path),
		zap.String("dataset", c.hdr.datasetName),
		zap.Uint64("chunk_size", c.hdr.chunkSize),
		zap.Stringer("filter", c.hdr.filter),
	)

	return c, nil
}

// Open opens an existing container file read-only and scans its chunk
// records.
//
// Schema settings come from the file header; options only matter for
// non-schema settings such as WithLogger.
//
// Open may be used on a file which is concurrently appended to by a writer;
// the scan stops cleanly at the last complete record.
func Open(path string, opts ...OptionFunc) (*Container, error) {
	c := &Container{
		opt:      defaultOptions(),
		readOnly: true,
	}

	for _, o := range opts {
		if err := o(&c.opt); err != nil {
			return nil, err
		}
	}

	var err error

	c.f, err = os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open container file: %w", err)
	}

	if err = c.load(); err != nil {
		c.f.Close() //nolint:errcheck

		return nil, err
	}

	return c, nil
}

// load parses the header and builds the in-memory chunk index.
func (c *Container) load() error {
	hdrBuf := make([]byte, headerSize)

	if _, err := io.ReadFull(c.f, hdrBuf); err != nil {
		return fmt.Errorf("%w: failed to read header: %w", ErrCorrupt, err)
	}

	var err error

	c.hdr, err = decodeHeader(hdrBuf)
	if err != nil {
		return err
	}

	c.comp, err = newCompressor(c.hdr.filter, c.hdr.level)
	if err != nil {
		return err
	}

	c.index = map[uint64]record{}
	c.wpos = headerSize

	chunkBytes := c.hdr.chunkSize * elementSize

	r := bufio.NewReader(c.f)
	recBuf := make([]byte, recordHeaderSize)

	for {
		if _, err := io.ReadFull(r, recBuf); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}

			if errors.Is(err, io.ErrUnexpectedEOF) {
				// in-flight append by a live writer, records before it are
				// complete
				c.opt.Logger.Debug("trailing partial record, stopping scan", zap.Int64("pos", c.wpos))

				break
			}

			return fmt.Errorf("%w: failed to read record header: %w", ErrCorrupt, err)
		}

		offset, mask, length, sum := decodeRecordHeader(recBuf)

		if length == 0 || uint64(length) > chunkBytes {
			return fmt.Errorf("%w: record at %d has invalid payload length %d", ErrCorrupt, c.wpos, length)
		}

		if offset%c.hdr.chunkSize != 0 {
			return fmt.Errorf("%w: record at %d has unaligned offset %d", ErrCorrupt, c.wpos, offset)
		}

		payload := make([]byte, length)

		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				c.opt.Logger.Debug("trailing partial record, stopping scan", zap.Int64("pos", c.wpos))

				break
			}

			return fmt.Errorf("%w: failed to read record payload: %w", ErrCorrupt, err)
		}

		if crc32.Checksum(payload, castagnoli) != sum {
			return fmt.Errorf("%w: checksum mismatch for chunk at offset %d", ErrCorrupt, offset)
		}

		c.index[offset] = record{
			payloadPos: c.wpos + recordHeaderSize,
			length:     length,
			sum:        sum,
			mask:       mask,
		}

		c.wpos += recordHeaderSize + int64(length)
	}

	c.opt.Logger.Debug("container opened",
		zap.String("path", c.f.Name()),
		zap.String("dataset", c.hdr.datasetName),
		zap.Uint64("extent", c.hdr.extent),
		zap.Int("chunks", len(c.index)),
	)

	return nil
}

func newCompressor(filter Filter, level int) (Compressor, error) {
	switch filter {
	case FilterNone:
		return nil, nil
	case FilterDeflate:
		return deflate.NewCompressor(level)
	case FilterZstd:
		return zstd.NewCompressor()
	default:
		return nil, fmt.Errorf("unknown filter %d", filter)
	}
}

// Extent returns the current logical length of the array, in elements.
func (c *Container) Extent() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.hdr.extent
}

// SetExtent grows the logical extent of the array to extent elements.
//
// The extent must be grown past a chunk before that chunk can be written;
// shrinking is not supported.
func (c *Container) SetExtent(extent uint64) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.readOnly {
		return ErrReadOnly
	}

	if extent < c.hdr.extent {
		return fmt.Errorf("%w: %d -> %d", ErrShrinkExtent, c.hdr.extent, extent)
	}

	if extent == c.hdr.extent {
		return nil
	}

	var buf [8]byte

	binary.LittleEndian.PutUint64(buf[:], extent)

	if _, err := c.f.WriteAt(buf[:], extentFieldOff); err != nil {
		return fmt.Errorf("failed to update extent: %w", err)
	}

	c.hdr.extent = extent

	return nil
}

// WriteChunkDirect writes payload verbatim as the chunk starting at the given
// element offset, bypassing the filter pipeline.
//
// The mask records which declared filters the payload has not been through; a
// zero mask means the payload is already in its final filtered form. The
// chunk must lie within the current extent, and the payload must not exceed
// the chunk byte capacity.
func (c *Container) WriteChunkDirect(offset uint64, payload []byte, mask FilterMask) error {
	if c.closed.Load() {
		return ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.writeDirectLocked(offset, payload, mask)
}

// WriteChunk writes one full chunk of values through the declared filter
// pipeline.
//
// If the declared filter inflates the chunk, the chunk is stored raw with a
// mask marking the filter as skipped.
func (c *Container) WriteChunk(offset uint64, values []int32) error {
	if c.closed.Load() {
		return ErrClosed
	}

	if uint64(len(values)) != c.hdr.chunkSize {
		return fmt.Errorf("chunk should have exactly %d values: %d", c.hdr.chunkSize, len(values))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	raw := encodeInt32s(values, make([]byte, 0, len(values)*elementSize))

	if c.comp == nil {
		return c.writeDirectLocked(offset, raw, 0)
	}

	compressed, err := c.comp.Compress(raw, make([]byte, 0, c.comp.Bound(len(raw))))
	if err != nil {
		return fmt.Errorf("failed to compress chunk at offset %d: %w", offset, err)
	}

	if len(compressed) >= len(raw) {
		// filter inflated the chunk, store raw
		return c.writeDirectLocked(offset, raw, MaskSkipFilter)
	}

	return c.writeDirectLocked(offset, compressed, 0)
}

func (c *Container) writeDirectLocked(offset uint64, payload []byte, mask FilterMask) error {
	if c.readOnly {
		return ErrReadOnly
	}

	if offset%c.hdr.chunkSize != 0 {
		return fmt.Errorf("%w: %d", ErrUnalignedOffset, offset)
	}

	// phrased to avoid wrapping for offsets near the top of the range
	if offset > c.hdr.extent || c.hdr.chunkSize > c.hdr.extent-offset {
		return fmt.Errorf("%w: chunk at %d, extent %d", ErrBeyondExtent, offset, c.hdr.extent)
	}

	if len(payload) == 0 {
		return fmt.Errorf("empty chunk payload at offset %d", offset)
	}

	if uint64(len(payload)) > c.hdr.chunkSize*elementSize {
		return fmt.Errorf("%w: %d bytes, capacity %d", ErrChunkTooLarge, len(payload), c.hdr.chunkSize*elementSize)
	}

	buf := append(encodeRecordHeader(offset, mask, payload), payload...)

	if _, err := c.f.WriteAt(buf, c.wpos); err != nil {
		return fmt.Errorf("failed to write chunk at offset %d: %w", offset, err)
	}

	c.index[offset] = record{
		payloadPos: c.wpos + recordHeaderSize,
		length:     uint32(len(payload)),
		sum:        crc32.Checksum(payload, castagnoli),
		mask:       mask,
	}

	c.wpos += int64(len(buf))

	c.opt.Logger.Debug("chunk written",
		zap.Uint64("offset", offset),
		zap.Int("stored_bytes", len(payload)),
		zap.Uint32("filter_mask", uint32(mask)),
	)

	return nil
}

// ReadChunk reads the chunk starting at the given element offset, appending
// its values to dst and returning the result.
//
// An unwritten chunk reads back as the fill value. If the extent ends inside
// the chunk, only the elements within the extent are returned.
func (c *Container) ReadChunk(offset uint64, dst []int32) ([]int32, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	return c.readChunkLocked(offset, dst)
}

func (c *Container) readChunkLocked(offset uint64, dst []int32) ([]int32, error) {
	if offset%c.hdr.chunkSize != 0 {
		return nil, fmt.Errorf("%w: %d", ErrUnalignedOffset, offset)
	}

	if offset >= c.hdr.extent {
		return nil, fmt.Errorf("%w: chunk at %d, extent %d", ErrBeyondExtent, offset, c.hdr.extent)
	}

	count := min(c.hdr.chunkSize, c.hdr.extent-offset)

	rec, ok := c.recordFor(offset).Get()
	if !ok {
		for range count {
			dst = append(dst, c.hdr.fillValue)
		}

		return dst, nil
	}

	payload, err := c.readPayloadLocked(offset, rec)
	if err != nil {
		return nil, err
	}

	if c.comp != nil && rec.mask&MaskSkipFilter == 0 {
		payload, err = c.comp.Decompress(payload, make([]byte, 0, c.hdr.chunkSize*elementSize))
		if err != nil {
			return nil, fmt.Errorf("failed to decompress chunk at offset %d: %w", offset, err)
		}
	}

	if uint64(len(payload)) > count*elementSize {
		payload = payload[:count*elementSize]
	}

	dst = decodeInt32s(payload, dst)

	// a short payload leaves the chunk tail at the fill value
	for uint64(len(dst)) < count {
		dst = append(dst, c.hdr.fillValue)
	}

	return dst, nil
}

// ReadChunkDirect returns the stored bytes of the chunk at the given element
// offset verbatim, along with its filter mask.
func (c *Container) ReadChunkDirect(offset uint64) ([]byte, FilterMask, error) {
	if c.closed.Load() {
		return nil, 0, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	rec, ok := c.recordFor(offset).Get()
	if !ok {
		return nil, 0, fmt.Errorf("no chunk stored at offset %d", offset)
	}

	payload, err := c.readPayloadLocked(offset, rec)
	if err != nil {
		return nil, 0, err
	}

	return payload, rec.mask, nil
}

func (c *Container) readPayloadLocked(offset uint64, rec record) ([]byte, error) {
	payload := make([]byte, rec.length)

	if _, err := c.f.ReadAt(payload, rec.payloadPos); err != nil {
		return nil, fmt.Errorf("failed to read chunk at offset %d: %w", offset, err)
	}

	if crc32.Checksum(payload, castagnoli) != rec.sum {
		return nil, fmt.Errorf("%w: checksum mismatch for chunk at offset %d", ErrCorrupt, offset)
	}

	return payload, nil
}

// ReadAll reads the whole logical array.
func (c *Container) ReadAll() ([]int32, error) {
	if c.closed.Load() {
		return nil, ErrClosed
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	dst := make([]int32, 0, c.hdr.extent)

	var err error

	for offset := uint64(0); offset < c.hdr.extent; offset += c.hdr.chunkSize {
		dst, err = c.readChunkLocked(offset, dst)
		if err != nil {
			return nil, err
		}
	}

	return dst, nil
}

func (c *Container) recordFor(offset uint64) optional.Optional[record] {
	if rec, ok := c.index[offset]; ok {
		return optional.Some(rec)
	}

	return optional.None[record]()
}

// HasChunk reports whether a chunk has been written at the given element
// offset.
func (c *Container) HasChunk(offset uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.index[offset]

	return ok
}

// Chunks returns the number of chunks written so far.
func (c *Container) Chunks() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.index)
}

// Offsets returns the element offsets of all written chunks, sorted.
func (c *Container) Offsets() []uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	return slices.Sorted(maps.Keys(c.index))
}

// ChunkSize returns the number of elements per chunk.
func (c *Container) ChunkSize() uint64 { return c.hdr.chunkSize }

// FillValue returns the configured fill value.
func (c *Container) FillValue() int32 { return c.hdr.fillValue }

// Filter returns the declared chunk filter.
func (c *Container) Filter() Filter { return c.hdr.filter }

// DatasetName returns the dataset name recorded in the header.
func (c *Container) DatasetName() string { return c.hdr.datasetName }

// Path returns the path of the underlying file.
func (c *Container) Path() string { return c.f.Name() }

// Close syncs (for a writable container) and closes the underlying file.
//
// Close is idempotent; operations after Close return ErrClosed.
func (c *Container) Close() error {
	if c.closed.Swap(true) {
		return nil
	}

	if !c.readOnly {
		if err := c.f.Sync(); err != nil {
			c.f.Close() //nolint:errcheck

			return fmt.Errorf("failed to sync container: %w", err)
		}
	}

	if err := c.f.Close(); err != nil {
		return fmt.Errorf("failed to close container: %w", err)
	}

	return nil
}
