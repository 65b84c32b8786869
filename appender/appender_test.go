// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package appender_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	"github.com/derobins/go-chunked"
	"github.com/derobins/go-chunked/appender"
)

func testConfig(t *testing.T) appender.Config {
	cfg := appender.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "appender.bin")
	cfg.Interval = 10 * time.Millisecond

	return cfg
}

// runUntilChunks runs the appender until at least minChunks chunks have been
// appended, then cancels it and verifies a clean shutdown.
func runUntilChunks(t *testing.T, app *appender.Appender, minChunks uint64) {
	ctx, cancel := context.WithCancel(t.Context())

	var eg errgroup.Group

	eg.Go(func() error {
		return app.Run(ctx)
	})

	require.Eventually(t, func() bool {
		return app.Chunks() >= minChunks
	}, 10*time.Second, time.Millisecond)

	cancel()

	require.NoError(t, eg.Wait())
}

func TestRunRaw(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg := testConfig(t)

	app, err := appender.New(cfg, zaptest.NewLogger(t))
	req.NoError(err)

	runUntilChunks(t, app, 3)

	chunks := app.Chunks()

	c, err := chunked.Open(cfg.Path)
	req.NoError(err)

	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	assert.Equal(t, chunked.FilterNone, c.Filter())
	assert.EqualValues(t, chunks, c.Chunks())
	assert.EqualValues(t, chunks*cfg.ChunkSize, c.Extent())

	all, err := c.ReadAll()
	req.NoError(err)
	req.Len(all, int(chunks*cfg.ChunkSize))

	// every element of chunk i reads back as i
	for i, v := range all {
		assert.EqualValues(t, uint64(i)/cfg.ChunkSize, v)
	}
}

func TestRunCompressed(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg := testConfig(t)
	cfg.Compress = true

	app, err := appender.New(cfg, zaptest.NewLogger(t))
	req.NoError(err)

	runUntilChunks(t, app, 3)

	chunks := app.Chunks()

	c, err := chunked.Open(cfg.Path)
	req.NoError(err)

	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	assert.Equal(t, chunked.FilterDeflate, c.Filter())
	assert.EqualValues(t, chunks*cfg.ChunkSize, c.Extent())

	chunkBytes := int(cfg.ChunkSize) * 4

	for _, offset := range c.Offsets() {
		payload, mask, err := c.ReadChunkDirect(offset)
		req.NoError(err)

		// stored pre-compressed, never larger than the raw chunk
		assert.LessOrEqual(t, len(payload), chunkBytes)
		assert.EqualValues(t, 0, mask)
	}

	all, err := c.ReadAll()
	req.NoError(err)
	req.Len(all, int(chunks*cfg.ChunkSize))

	for i, v := range all {
		assert.EqualValues(t, uint64(i)/cfg.ChunkSize, v)
	}
}

func TestCreateTruncatesPreviousRun(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg := testConfig(t)

	app, err := appender.New(cfg, zaptest.NewLogger(t))
	req.NoError(err)

	runUntilChunks(t, app, 2)

	// a fresh run starts from an empty array
	app, err = appender.New(cfg, zaptest.NewLogger(t))
	req.NoError(err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	req.NoError(app.Run(ctx))

	c, err := chunked.Open(cfg.Path)
	req.NoError(err)

	assert.EqualValues(t, 0, c.Extent())
	assert.Equal(t, 0, c.Chunks())

	req.NoError(c.Close())
}

func TestRunSetupFailure(t *testing.T) {
	t.Parallel()

	req := require.New(t)

	cfg := appender.DefaultConfig()
	cfg.Path = filepath.Join(t.TempDir(), "missing", "sub", "dir.bin")

	app, err := appender.New(cfg, zaptest.NewLogger(t))
	req.NoError(err)

	req.Error(app.Run(t.Context()))
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		name   string
		mutate func(*appender.Config)

		expectedError string
	}{
		{
			name:   "empty path",
			mutate: func(cfg *appender.Config) { cfg.Path = "" },

			expectedError: "path should be set",
		},
		{
			name:   "zero chunk size",
			mutate: func(cfg *appender.Config) { cfg.ChunkSize = 0 },

			expectedError: "chunk size should be positive: 0",
		},
		{
			name:   "zero interval",
			mutate: func(cfg *appender.Config) { cfg.Interval = 0 },

			expectedError: "interval should be positive: 0s",
		},
		{
			name: "bad deflate level",
			mutate: func(cfg *appender.Config) {
				cfg.Compress = true
				cfg.Level = 0
			},

			expectedError: "deflate level should be in range [1, 9]: 0",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			cfg := appender.DefaultConfig()
			test.mutate(&cfg)

			_, err := appender.New(cfg, nil)
			assert.EqualError(t, err, test.expectedError)
		})
	}
}

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}
