package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/abdatta/wappflow/internal/config"
	"github.com/abdatta/wappflow/internal/consts"
	"github.com/abdatta/wappflow/internal/scheduler"
	"github.com/abdatta/wappflow/internal/store"
)

var jobHwd = &JobRunner{}

type JobRunner struct{}

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:    "config",
		Aliases: []string{"c"},
		Usage:   "Path to the runtime config file",
	}
}

func (r *JobRunner) cmd() *cli.Command {
	return &cli.Command{
		Name:  "job",
		Usage: "Manage scheduled jobs",
		Commands: []*cli.Command{
			{
				Name:   "list",
				Usage:  "List every persisted job",
				Flags:  []cli.Flag{configFlag()},
				Action: r.list,
			},
			{
				Name:  "create",
				Usage: "Create a new job",
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{Name: "kind", Usage: "once or recurring", Value: "once"},
					&cli.StringFlag{Name: "contact", Usage: "Contact name as it appears in the chat list"},
					&cli.StringFlag{Name: "message", Aliases: []string{"m"}, Usage: "Message body"},
					&cli.StringFlag{Name: "anchor", Usage: "RFC3339 anchor time"},
					&cli.IntFlag{Name: "interval-value", Usage: "Recurring interval magnitude"},
					&cli.StringFlag{Name: "interval-unit", Usage: "minute, hour, day, week, or month"},
					&cli.IntFlag{Name: "tolerance", Usage: "Catch-up tolerance in minutes", Value: -1},
				},
				Action: r.create,
			},
			{
				Name:      "pause",
				Usage:     "Pause a job",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{configFlag()},
				Action:    r.pause,
			},
			{
				Name:      "resume",
				Usage:     "Resume a paused job",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{configFlag()},
				Action:    r.resume,
			},
			{
				Name:      "delete",
				Usage:     "Delete a job and its history",
				ArgsUsage: "<id>",
				Flags:     []cli.Flag{configFlag()},
				Action:    r.delete,
			},
		},
	}
}

func openStore(cmd *cli.Command) (*store.Store, *config.Config, error) {
	cfgPath := getConfigPath(cmd.String("config"))
	cfg, err := config.Load(cfgPath)
	if err != nil {
		cfg, err = config.Load(consts.DefaultConfigPath())
		if err != nil {
			return nil, nil, fmt.Errorf("load config: %w", err)
		}
	}
	db, err := store.Open(cfg.Scheduler.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open store: %w", err)
	}
	return db, cfg, nil
}

func (r *JobRunner) list(ctx context.Context, cmd *cli.Command) error {
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	jobs, err := db.List(ctx)
	if err != nil {
		return fmt.Errorf("list jobs: %w", err)
	}
	if len(jobs) == 0 {
		fmt.Println("no jobs")
		return nil
	}
	for _, j := range jobs {
		next := "-"
		if j.NextRun != nil {
			next = j.NextRun.Format(time.RFC3339)
		}
		fmt.Printf("%s\t%-9s %-7s %-20s next=%s\n", j.ID, j.Status, j.Kind, j.ContactName, next)
	}
	return nil
}

func (r *JobRunner) create(ctx context.Context, cmd *cli.Command) error {
	db, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	anchor, err := time.Parse(time.RFC3339, cmd.String("anchor"))
	if err != nil {
		return fmt.Errorf("--anchor must be RFC3339: %w", err)
	}

	var tolerance *int
	if t := cmd.Int("tolerance"); t >= 0 {
		tv := int(t)
		tolerance = &tv
	} else {
		tolerance = cfg.Scheduler.DefaultToleranceMinutes
	}

	job := &scheduler.Job{
		Kind:             scheduler.Kind(strings.ToLower(strings.TrimSpace(cmd.String("kind")))),
		ContactName:      strings.TrimSpace(cmd.String("contact")),
		Message:          cmd.String("message"),
		AnchorTime:       anchor.UTC(),
		IntervalValue:    int(cmd.Int("interval-value")),
		IntervalUnit:     scheduler.IntervalUnit(strings.ToLower(strings.TrimSpace(cmd.String("interval-unit")))),
		ToleranceMinutes: tolerance,
	}
	if err := job.Validate(); err != nil {
		return err
	}
	if err := db.Create(ctx, job); err != nil {
		return fmt.Errorf("create job: %w", err)
	}

	fmt.Printf("created job %s, next run %s\n", job.ID, formatNextRun(job))
	return nil
}

func formatNextRun(job *scheduler.Job) string {
	if job.NextRun == nil {
		return "-"
	}
	return job.NextRun.Format(time.RFC3339)
}

func jobIDArg(cmd *cli.Command) (string, error) {
	id := strings.TrimSpace(cmd.Args().First())
	if id == "" {
		return "", errors.New("job id is required")
	}
	return id, nil
}

func (r *JobRunner) pause(ctx context.Context, cmd *cli.Command) error {
	id, err := jobIDArg(cmd)
	if err != nil {
		return err
	}
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	job, err := db.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}
	if err := db.SetStatus(ctx, id, scheduler.StatusPaused, nil, job.LastRun); err != nil {
		return fmt.Errorf("pause job: %w", err)
	}
	fmt.Printf("paused job %s\n", id)
	return nil
}

func (r *JobRunner) resume(ctx context.Context, cmd *cli.Command) error {
	id, err := jobIDArg(cmd)
	if err != nil {
		return err
	}
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	job, err := db.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	next := scheduler.ResumeNextRun(job, time.Now().UTC())
	if err := db.SetStatus(ctx, id, scheduler.StatusActive, &next, job.LastRun); err != nil {
		return fmt.Errorf("resume job: %w", err)
	}
	fmt.Printf("resumed job %s, next run %s\n", id, next.Format(time.RFC3339))
	return nil
}

func (r *JobRunner) delete(ctx context.Context, cmd *cli.Command) error {
	id, err := jobIDArg(cmd)
	if err != nil {
		return err
	}
	db, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer func() { _ = db.Close() }()

	if err := db.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	fmt.Printf("deleted job %s\n", id)
	return nil
}
