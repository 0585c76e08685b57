package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/abdatta/wappflow/internal/scheduler"
	"github.com/abdatta/wappflow/internal/sender"
)

var sendHwd = &SendRunner{}

type SendRunner struct{}

func (r *SendRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "send",
		Usage: "Send a one-off message immediately, bypassing the schedule",
		Flags: []cli.Flag{
			configFlag(),
			&cli.StringFlag{Name: "contact", Usage: "Contact name as it appears in the chat list"},
			&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message body"},
		},
		Action: r.run,
	}
}

func (r *SendRunner) run(ctx context.Context, cmd *cli.Command) error {
	contact := strings.TrimSpace(cmd.String("contact"))
	if contact == "" {
		return errors.New("--contact is required")
	}
	message := cmd.String("message")
	if message == "" {
		return errors.New("--message cannot be empty")
	}

	db, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	sndr, err := sender.New(sender.Config{
		UserDataDir: cfg.Scheduler.SenderUserDataDir,
		Headless:    cfg.Scheduler.SenderHeadless,
		SendTimeout: time.Duration(cfg.Scheduler.SendTimeoutSec) * time.Second,
		TargetURL:   cfg.Scheduler.SenderTargetURL,
	})
	if err != nil {
		return fmt.Errorf("start sender: %w", err)
	}
	defer func() { _ = sndr.Close() }()

	if !sndr.IsReady(ctx) {
		return fmt.Errorf("%w: scan the login QR code first", scheduler.ErrNotReady)
	}

	hid, err := db.HistoryAppend(ctx, &scheduler.HistoryEntry{
		Kind: "instant", ContactName: contact, Message: message,
		Status: scheduler.HistorySending, Timestamp: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("record history: %w", err)
	}

	outcome, sendErr := sndr.Send(ctx, contact, message)
	status, errMsg := instantOutcomeStatus(outcome, sendErr)
	if err := db.HistoryUpdate(ctx, hid, status, errMsg); err != nil {
		fmt.Printf("warning: failed to record outcome: %v\n", err)
	}

	fmt.Printf("send outcome: %s\n", status)
	if errMsg != "" {
		fmt.Printf("detail: %s\n", errMsg)
	}
	if status != scheduler.HistorySent {
		return fmt.Errorf("message not confirmed sent")
	}
	return nil
}

func instantOutcomeStatus(outcome scheduler.SendOutcome, err error) (scheduler.HistoryStatus, string) {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	switch outcome {
	case scheduler.SendOK:
		return scheduler.HistorySent, ""
	case scheduler.SendFailed:
		return scheduler.HistoryFailed, msg
	default:
		return scheduler.HistoryUnknown, msg
	}
}
