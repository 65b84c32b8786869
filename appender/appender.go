// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// Package appender implements a periodic bounded-size record appender: once
// per tick it extends a chunked container's array by one chunk and writes a
// chunk of synthetic data directly, optionally pre-compressed with deflate.
package appender

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/derobins/go-chunked"
	"github.com/derobins/go-chunked/deflate"
)

// Config defines the appender settings.
type Config struct {
	// Path of the container file; created (truncating) on Run.
	Path string

	// DatasetName recorded in the container header.
	DatasetName string

	// ChunkSize is the number of elements per chunk.
	ChunkSize uint64

	// FillValue of unwritten array positions.
	FillValue int32

	// Interval between appended chunks.
	Interval time.Duration

	// Compress pre-compresses every chunk with deflate before the direct
	// write. The container declares the deflate filter so readers know how
	// to undo it.
	Compress bool

	// Level is the deflate level for the compressed mode.
	Level int
}

// DefaultConfig returns the reference writer settings: a 10-element chunk of
// int32 appended every second, fill value -1, deflate level 5 when the
// compressed mode is enabled.
func DefaultConfig() Config {
	return Config{
		Path:        "direct_chunk.bin",
		DatasetName: "data",
		ChunkSize:   10,
		FillValue:   -1,
		Interval:    time.Second,
		Level:       5,
	}
}

// Appender writes one chunk of synthetic data per tick.
//
// Every element of chunk i holds the value i, which makes write ordering
// mistakes easy to spot on read-back.
type Appender struct {
	logger *zap.Logger
	comp   *deflate.Compressor

	cfg Config

	chunks atomic.Uint64
}

// New creates an Appender with the given configuration.
func New(cfg Config, logger *zap.Logger) (*Appender, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("path should be set")
	}

	if cfg.ChunkSize == 0 {
		return nil, fmt.Errorf("chunk size should be positive: %d", cfg.ChunkSize)
	}

	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval should be positive: %s", cfg.Interval)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	a := &Appender{
		cfg:    cfg,
		logger: logger,
	}

	if cfg.Compress {
		var err error

		a.comp, err = deflate.NewCompressor(cfg.Level)
		if err != nil {
			return nil, err
		}
	}

	return a, nil
}

// Chunks returns the number of chunks appended so far.
func (a *Appender) Chunks() uint64 {
	return a.chunks.Load()
}

// Run creates the container and appends one chunk per interval until ctx is
// canceled.
//
// Cancellation is the normal shutdown path and returns nil; any setup,
// extend, compression or write failure is terminal and returned after the
// container is closed.
func (a *Appender) Run(ctx context.Context) error {
	opts := []chunked.OptionFunc{
		chunked.WithChunkSize(a.cfg.ChunkSize),
		chunked.WithFillValue(a.cfg.FillValue),
		chunked.WithDatasetName(a.cfg.DatasetName),
		chunked.WithLogger(a.logger),
	}

	if a.cfg.Compress {
		opts = append(opts, chunked.WithDeflate(a.cfg.Level))
	}

	c, err := chunked.Create(a.cfg.Path, opts...)
	if err != nil {
		return fmt.Errorf("failed to set up container: %w", err)
	}

	a.logger.Info("container created",
		zap.String("path", a.cfg.Path),
		zap.Uint64("chunk_size", a.cfg.ChunkSize),
		zap.Bool("compress", a.cfg.Compress),
	)

	runErr := a.loop(ctx, c)

	closeErr := c.Close()

	a.logger.Info("appender stopped", zap.Uint64("chunks", a.chunks.Load()))

	if runErr != nil {
		return runErr
	}

	return closeErr
}

func (a *Appender) loop(ctx context.Context, c *chunked.Container) error {
	chunkBytes := int(a.cfg.ChunkSize) * 4

	raw := make([]byte, 0, chunkBytes)

	var scratch []byte

	if a.comp != nil {
		scratch = make([]byte, 0, a.comp.Bound(chunkBytes))
	}

	limiter := rate.NewLimiter(rate.Every(a.cfg.Interval), 1)

	// drain the initial token so the first chunk lands a full interval in
	limiter.Allow()

	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				// interrupt, normal shutdown
				return nil
			}

			return err
		}

		n := a.chunks.Load()
		if n > math.MaxInt32 {
			return fmt.Errorf("can't have more than %d chunks", math.MaxInt32)
		}

		offset := n * a.cfg.ChunkSize

		// grow first, write second: a concurrent reader that sees the new
		// extent before the chunk lands reads the fill value, never garbage
		if err := c.SetExtent(offset + a.cfg.ChunkSize); err != nil {
			return fmt.Errorf("failed to extend dataset: %w", err)
		}

		raw = raw[:0]
		for range a.cfg.ChunkSize {
			raw = binary.LittleEndian.AppendUint32(raw, uint32(int32(n)))
		}

		payload := raw

		if a.comp != nil {
			compressed, err := a.comp.Compress(raw, scratch[:0])
			if err != nil {
				return fmt.Errorf("failed to compress chunk %d: %w", n, err)
			}

			if len(compressed) > chunkBytes {
				return fmt.Errorf("%w: chunk %d compressed to %d bytes, capacity %d",
					chunked.ErrChunkTooLarge, n, len(compressed), chunkBytes)
			}

			payload = compressed
		}

		if err := c.WriteChunkDirect(offset, payload, 0); err != nil {
			return fmt.Errorf("failed to write chunk %d: %w", n, err)
		}

		a.chunks.Add(1)

		a.logger.Debug("chunk appended",
			zap.Uint64("chunk", n),
			zap.Uint64("offset", offset),
			zap.Int("stored_bytes", len(payload)),
		)
	}
}
