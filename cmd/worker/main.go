// Package main starts the outbox worker process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	workercmd "github.com/acdrainwiz/drainwiz/internal/cmd/worker"
	"github.com/acdrainwiz/drainwiz/internal/platform/config"
)

func main() {
	cfg, err := workercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Fail("parse flags", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := workercmd.Run(ctx, cfg); err != nil {
		config.Fail("worker", err)
	}
}
