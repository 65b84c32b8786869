// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package deflate provides zlib compression and decompression functions.
package deflate

import (
	"bytes"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zlib"
)

// Compressor implements one-shot zlib (deflate) compression.
type Compressor struct {
	level int
}

// NewCompressor creates new Compressor with the given deflate level.
func NewCompressor(level int) (*Compressor, error) {
	if level < zlib.BestSpeed || level > zlib.BestCompression {
		return nil, fmt.Errorf("deflate level should be in range [%d, %d]: %d", zlib.BestSpeed, zlib.BestCompression, level)
	}

	return &Compressor{
		level: level,
	}, nil
}

// Compress data using zlib, appending to dest.
func (c *Compressor) Compress(src, dest []byte) ([]byte, error) {
	buf := bytes.NewBuffer(dest)

	w, err := zlib.NewWriterLevel(buf, c.level)
	if err != nil {
		return nil, err
	}

	if _, err = w.Write(src); err != nil {
		return nil, err
	}

	if err = w.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Decompress data using zlib, appending to dest.
func (c *Compressor) Decompress(src, dest []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return nil, err
	}

	buf := bytes.NewBuffer(dest)

	if _, err = io.Copy(buf, r); err != nil {
		r.Close() //nolint:errcheck

		return nil, err
	}

	if err = r.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Bound returns the worst-case compressed size for n input bytes.
//
// This is the documented compress2() upper bound for a zlib stream:
// ceil(n * 1.001) + 12.
func (c *Compressor) Bound(n int) int {
	return int(math.Ceil(float64(n)*1.001)) + 12
}
