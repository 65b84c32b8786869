// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

package chunked

import (
	"fmt"

	"go.uber.org/zap"
)

// Options defines settings for a Container created with Create.
type Options struct {
	Logger *zap.Logger

	DatasetName string

	// ChunkSize is the number of elements per chunk.
	ChunkSize uint64

	// FillValue is returned when reading any element not yet covered by a
	// written chunk.
	FillValue int32

	Filter Filter
	Level  int
}

// defaultOptions returns default initial values.
//
// The defaults match the reference writer: tiny 10-element chunks (don't make
// chunks this size in real code), fill value -1, no filter.
func defaultOptions() Options {
	return Options{
		DatasetName: "data",
		ChunkSize:   10,
		FillValue:   -1,
		Filter:      FilterNone,
		Logger:      zap.NewNop(),
	}
}

// OptionFunc allows setting Container options.
type OptionFunc func(*Options) error

// WithChunkSize sets the number of elements per chunk.
func WithChunkSize(size uint64) OptionFunc {
	return func(opt *Options) error {
		if size == 0 {
			return fmt.Errorf("chunk size should be positive: %d", size)
		}

		opt.ChunkSize = size

		return nil
	}
}

// WithFillValue sets the value read back from unwritten array positions.
func WithFillValue(value int32) OptionFunc {
	return func(opt *Options) error {
		opt.FillValue = value

		return nil
	}
}

// WithDatasetName sets the name recorded in the container header.
func WithDatasetName(name string) OptionFunc {
	return func(opt *Options) error {
		if name == "" {
			return fmt.Errorf("dataset name should not be empty")
		}

		if len(name) > datasetNameSize {
			return fmt.Errorf("dataset name should be at most %d bytes: %q", datasetNameSize, name)
		}

		opt.DatasetName = name

		return nil
	}
}

// WithDeflate declares a deflate filter with the given level on the chunk
// pipeline.
//
// Chunks written through WriteChunk are compressed with it; chunks written
// through WriteChunkDirect with a zero mask are assumed to be compressed
// already.
func WithDeflate(level int) OptionFunc {
	return func(opt *Options) error {
		if level < 1 || level > 9 {
			return fmt.Errorf("deflate level should be in range [1, 9]: %d", level)
		}

		opt.Filter = FilterDeflate
		opt.Level = level

		return nil
	}
}

// WithZstd declares a zstd filter on the chunk pipeline.
func WithZstd() OptionFunc {
	return func(opt *Options) error {
		opt.Filter = FilterZstd
		opt.Level = 0

		return nil
	}
}

// WithLogger sets logger for the Container.
func WithLogger(logger *zap.Logger) OptionFunc {
	return func(opt *Options) error {
		opt.Logger = logger

		return nil
	}
}
