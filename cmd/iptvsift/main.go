// Command iptvsift aggregates public IPTV playlists into one categorized
// playlist of validated, ranked stream URLs, written as result.m3u and
// result.txt.
//
// Settings come from flags, IPTVSIFT_* environment variables and an optional
// .env file in the working directory. Run with -h for the flag list.
//
// Exit status: 0 on success (including best-effort output after an
// interrupt), 1 on a fatal error, 2 on a usage error, 130 when interrupted
// before any output was written.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/snapetech/iptvsift/internal/config"
	"github.com/snapetech/iptvsift/internal/logging"
	"github.com/snapetech/iptvsift/internal/metrics"
	"github.com/snapetech/iptvsift/internal/pipeline"
)

const (
	exitOK          = 0
	exitFatal       = 1
	exitUsage       = 2
	exitInterrupted = 130
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	if err := config.LoadEnvFile(".env"); err != nil {
		fmt.Fprintf(stderr, "iptvsift: .env: %v\n", err)
		return exitUsage
	}
	cfg, err := config.Parse("iptvsift", args)
	switch {
	case errors.Is(err, flag.ErrHelp):
		return exitOK
	case err != nil:
		fmt.Fprintf(stderr, "iptvsift: %v\n", err)
		return exitUsage
	}

	log, closeLog, err := logging.New(logging.Options{File: cfg.LogFile, Level: cfg.LogLevel, Stderr: stderr})
	if err != nil {
		fmt.Fprintf(stderr, "iptvsift: %v\n", err)
		return exitFatal
	}
	defer closeLog()

	sum, err := pipeline.Run(ctx, cfg, pipeline.Deps{Log: log, Metrics: metrics.New()})
	switch {
	case err == nil:
		return exitOK
	case pipeline.IsFatal(err):
		return exitFatal
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		if sum.Wrote {
			return exitOK
		}
		return exitInterrupted
	default:
		return exitFatal
	}
}
