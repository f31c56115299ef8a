// Package main runs the drainwiz-admin operator CLI.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	admincmd "github.com/acdrainwiz/drainwiz/internal/cmd/admin"
	"github.com/acdrainwiz/drainwiz/internal/platform/config"
)

func main() {
	cfg, err := admincmd.LoadConfig()
	if err != nil {
		config.Fail("load config", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := admincmd.Execute(ctx, cfg)
	stop()
	os.Exit(code)
}
