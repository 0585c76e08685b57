package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v3"
)

var historyHwd = &HistoryRunner{}

type HistoryRunner struct{}

func (r *HistoryRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "List execution history",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "job", Usage: "Restrict to one job's history"},
			&cli.IntFlag{Name: "limit", Usage: "Maximum entries to show, newest first", Value: 50},
		},
		Action: r.list,
	}
}

func (r *HistoryRunner) list(ctx context.Context, cmd *cli.Command) error {
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	entries, err := db.HistoryList(ctx, cmd.String("job"), int(cmd.Int("limit")))
	if err != nil {
		return fmt.Errorf("list history: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("no history")
		return nil
	}
	for _, e := range entries {
		errSuffix := ""
		if e.Error != "" {
			errSuffix = " error=" + e.Error
		}
		fmt.Printf("%s  %-8s %-20s %s%s\n", e.Timestamp.Format(time.RFC3339), e.Status, e.ContactName, e.JobID, errSuffix)
	}
	return nil
}
