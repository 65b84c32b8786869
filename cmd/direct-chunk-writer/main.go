// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at http://mozilla.org/MPL/2.0/.

// direct-chunk-writer appends one chunk of synthetic int32 data per interval
// to a chunked container file until interrupted.
//
// With -compress, every chunk is deflate-compressed before being written
// directly into the container.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/derobins/go-chunked/appender"
)

func main() {
	cfgPath := flag.String("config", "", "optional YAML config file (flags override)")
	file := flag.String("file", "", "container file path (default direct_chunk.bin, direct_chunk_zlib.bin with -compress)")
	dataset := flag.String("dataset", "data", "dataset name")
	chunkSize := flag.Uint64("chunk-size", 10, "elements per chunk")
	interval := flag.Duration("interval", time.Second, "time between chunks")
	compress := flag.Bool("compress", false, "deflate-compress chunks before the direct write")
	level := flag.Int("level", 5, "deflate level (with -compress)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	zapCfg := zap.NewDevelopmentConfig()
	if !*debug {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}

	logger := zap.Must(zapCfg.Build())
	defer logger.Sync() //nolint:errcheck

	cfg := appender.DefaultConfig()

	pathSet := false

	if *cfgPath != "" {
		var err error

		pathSet, err = loadConfig(*cfgPath, &cfg)
		if err != nil {
			logger.Fatal("failed to load config", zap.String("path", *cfgPath), zap.Error(err))
		}
	}

	// explicit flags override the config file
	setFlags := map[string]bool{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = true })

	if setFlags["file"] {
		cfg.Path = *file
		pathSet = true
	}

	if setFlags["dataset"] {
		cfg.DatasetName = *dataset
	}

	if setFlags["chunk-size"] {
		cfg.ChunkSize = *chunkSize
	}

	if setFlags["interval"] {
		cfg.Interval = *interval
	}

	if setFlags["compress"] {
		cfg.Compress = *compress
	}

	if setFlags["level"] {
		cfg.Level = *level
	}

	applyPathDefault(&cfg, pathSet)

	app, err := appender.New(cfg, logger)
	if err != nil {
		logger.Fatal("invalid configuration", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("press ctrl-c to halt data generation",
		zap.String("file", cfg.Path),
		zap.Duration("interval", cfg.Interval),
		zap.Bool("compress", cfg.Compress),
	)

	if err := app.Run(ctx); err != nil {
		logger.Error("appender failed", zap.Error(err))

		os.Exit(1)
	}

	fmt.Println("DONE")
}
