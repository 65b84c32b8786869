// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunked_test

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/derobins/go-chunked"
)

func TestOptions(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name string

		option chunked.OptionFunc

		expectedError string
	}{
		{
			name:   "zero chunk size",
			option: chunked.WithChunkSize(0),

			expectedError: "chunk size should be positive: 0",
		},
		{
			name:   "empty dataset name",
			option: chunked.WithDatasetName(""),

			expectedError: "dataset name should not be empty",
		},
		{
			name:   "long dataset name",
			option: chunked.WithDatasetName(strings.Repeat("x", 21)),

			expectedError: "dataset name should be at most 20 bytes: \"xxxxxxxxxxxxxxxxxxxxx\"",
		},
		{
			name:   "deflate level too low",
			option: chunked.WithDeflate(0),

			expectedError: "deflate level should be in range [1, 9]: 0",
		},
		{
			name:   "deflate level too high",
			option: chunked.WithDeflate(10),

			expectedError: "deflate level should be in range [1, 9]: 10",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			_, err := chunked.Create(filepath.Join(t.TempDir(), "options.bin"), test.option)
			assert.EqualError(t, err, test.expectedError)
		})
	}
}

func TestOptionsApplied(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	path := filepath.Join(t.TempDir(), "applied.bin")

	c, err := chunked.Create(path,
		chunked.WithChunkSize(128),
		chunked.WithFillValue(0),
		chunked.WithDatasetName("samples"),
		chunked.WithDeflate(9),
	)
	req.NoError(err)

	assert.EqualValues(t, 128, c.ChunkSize())
	assert.EqualValues(t, 0, c.FillValue())
	assert.Equal(t, "samples", c.DatasetName())
	assert.Equal(t, chunked.FilterDeflate, c.Filter())

	req.NoError(c.Close())

	// the header round-trips the same settings
	c, err = chunked.Open(path)
	req.NoError(err)

	assert.EqualValues(t, 128, c.ChunkSize())
	assert.EqualValues(t, 0, c.FillValue())
	assert.Equal(t, "samples", c.DatasetName())
	assert.Equal(t, chunked.FilterDeflate, c.Filter())

	req.NoError(c.Close())
}
