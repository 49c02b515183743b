// Command wardlinectl runs one-off operator tasks against the wardline
// database and buckets.
//
//	wardlinectl migrate [-down]
//	wardlinectl sweep [-force]
//	wardlinectl reconcile [-delete]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/gosuda/wardline/internal/app"
	"github.com/gosuda/wardline/internal/config"
	"github.com/gosuda/wardline/internal/retention"
	"github.com/gosuda/wardline/internal/store/postgres"
)

const usage = `usage: wardlinectl <command> [flags]

commands:
  migrate [-down]     apply (or roll back) database migrations
  sweep [-force]      run one retention sweep; -force skips the replica lock
  reconcile [-delete] list archive blobs no report references; -delete removes them
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := run(os.Args[1], os.Args[2:]); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(2)
		}
		log.Fatal().Err(err).Str("command", os.Args[1]).Msg("wardlinectl failed")
	}
}

func run(cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	down := fs.Bool("down", false, "roll back all migrations")
	force := fs.Bool("force", false, "sweep without taking the replica lock")
	del := fs.Bool("delete", false, "delete orphaned archive blobs")

	switch cmd {
	case "migrate", "sweep", "reconcile":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	app.SetupLogging(cfg.Log)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	switch cmd {
	case "migrate":
		if *down {
			return postgres.MigrateDown(cfg.Database.DSN())
		}
		return postgres.Migrate(cfg.Database.DSN())
	case "sweep":
		return sweep(ctx, cfg, *force)
	default:
		return reconcile(ctx, cfg, *del)
	}
}

func sweep(ctx context.Context, cfg *config.Config, force bool) error {
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	var res *retention.Result
	if force {
		res, err = a.Sweeper().Sweep(ctx)
	} else {
		sched, serr := a.Scheduler()
		if serr != nil {
			return serr
		}
		res, err = sched.RunOnce(ctx)
	}
	if errors.Is(err, retention.ErrSkipped) {
		log.Warn().Msg("another replica holds the sweep lock; use -force to override")
		return nil
	}
	if err != nil {
		return err
	}

	log.Info().
		Int("tenants_swept", res.TenantsSwept).
		Int("tenants_skipped", res.TenantsSkipped).
		Int("attachments_deleted", res.AttachmentsDeleted).
		Int64("events_deleted", res.EventsDeleted).
		Int("errors", res.Errors).
		Msg("sweep finished")
	return nil
}

func reconcile(ctx context.Context, cfg *config.Config, deleteOrphans bool) error {
	a, err := app.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	res, err := a.Reconciler().Run(ctx, deleteOrphans)
	if err != nil {
		return err
	}

	for _, key := range res.Orphans {
		fmt.Println(key)
	}
	log.Info().
		Int("referenced", res.Referenced).
		Int("stored", res.Stored).
		Int("orphans", len(res.Orphans)).
		Int("deleted", res.Deleted).
		Bool("delete", deleteOrphans).
		Msg("reconcile finished")
	return nil
}
