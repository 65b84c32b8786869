// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package deflate_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derobins/go-chunked/deflate"
)

func TestCompressor(t *testing.T) {
	t.Parallel()

	compressor, err := deflate.NewCompressor(5)
	require.NoError(t, err)

	for _, test := range []struct {
		size int
	}{
		{
			size: 0,
		},
		{
			size: 1024,
		},
		{
			size: 1024 * 1024,
		},
	} {
		t.Run(strconv.Itoa(test.size), func(t *testing.T) {
			t.Parallel()

			data, err := io.ReadAll(io.LimitReader(rand.Reader, int64(test.size)))
			require.NoError(t, err)

			compressed, err := compressor.Compress(data, nil)
			require.NoError(t, err)

			require.LessOrEqual(t, len(compressed), compressor.Bound(len(data)))

			decompressed, err := compressor.Decompress(compressed, nil)
			require.NoError(t, err)

			if len(data) == 0 {
				data = nil
			}

			require.Equal(t, data, decompressed)
		})
	}
}

func TestCompressorConstantData(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	compressor, err := deflate.NewCompressor(5)
	req.NoError(err)

	// a 10-element int32 chunk holding a single repeated value compresses
	// well below its raw 40 bytes
	data := bytes.Repeat([]byte{3, 0, 0, 0}, 10)

	compressed, err := compressor.Compress(data, nil)
	req.NoError(err)

	req.Less(len(compressed), len(data))

	decompressed, err := compressor.Decompress(compressed, nil)
	req.NoError(err)
	req.Equal(data, decompressed)
}

func TestBound(t *testing.T) {
	t.Parallel()

	compressor, err := deflate.NewCompressor(1)
	require.NoError(t, err)

	// ceil(n * 1.001) + 12
	assert.Equal(t, 12, compressor.Bound(0))
	assert.Equal(t, 53, compressor.Bound(40))
	assert.Equal(t, 1013, compressor.Bound(1000))
}

func TestNewCompressorValidation(t *testing.T) {
	t.Parallel()

	for _, level := range []int{-1, 0, 10} {
		_, err := deflate.NewCompressor(level)
		assert.Error(t, err, "level %d", level)
	}

	for level := 1; level <= 9; level++ {
		_, err := deflate.NewCompressor(level)
		assert.NoError(t, err, "level %d", level)
	}
}
