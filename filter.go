// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunked

// Filter identifies the compression filter declared on a container's chunk
// pipeline.
type Filter uint8

// Declared filters.
const (
	FilterNone Filter = iota
	FilterDeflate
	FilterZstd
)

// String implements fmt.Stringer.
func (f Filter) String() string {
	switch f {
	case FilterNone:
		return "none"
	case FilterDeflate:
		return "deflate"
	case FilterZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// FilterMask records, per written chunk, which declared filters the stored
// payload has not been through.
//
// A zero mask means the payload is in its final, fully-filtered form: readers
// apply the inverse of the declared pipeline. Setting MaskSkipFilter marks the
// payload as raw, so readers return it verbatim. A caller that compresses a
// chunk itself and writes the result with WriteChunkDirect passes a zero mask,
// since the bytes are already in filtered form and must not be filtered again.
type FilterMask uint32

// MaskSkipFilter marks a directly-written chunk as not having been through the
// declared filter.
const MaskSkipFilter FilterMask = 1 << 0

// Compressor implements a one-shot chunk compression filter.
//
// Compress and Decompress append to the dest slice and return the result.
// Bound returns the worst-case compressed size for n input bytes, suitable
// for sizing the destination buffer up front.
//
// Compressor should be safe for concurrent use by multiple goroutines.
type Compressor interface {
	Compress(src, dest []byte) ([]byte, error)
	Decompress(src, dest []byte) ([]byte, error)
	Bound(n int) int
}
