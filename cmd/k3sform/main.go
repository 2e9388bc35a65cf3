// Package main is the entry point for the k3sform CLI.
//
// k3sform provisions a single k3s server on Hetzner Cloud and deploys a
// catalog of Helm releases onto it in dependency order.
//
// Commands: init, plan, apply, destroy, kubeconfig, outputs, nodes, version.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dimo-network/k3sform/cmd/k3sform/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}
