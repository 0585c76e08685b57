package main

import (
	"context"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/abdatta/wappflow/internal/pkg/logs"
)

func main() {
	cmd := &cli.Command{
		Name:  "wfsched",
		Usage: "A local-first scheduler for personal messages",
		Commands: []*cli.Command{
			serveHwd.cmd(),
			jobHwd.cmd(),
			historyHwd.cmd(),
			sendHwd.cmd(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logs.Error("command execution failed: %v", err)
		os.Exit(1)
	}
}
