package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/google/subcommands"

	"github.com/mmynk/groupledger/internal/cache"
	"github.com/mmynk/groupledger/internal/ledger"
	"github.com/mmynk/groupledger/internal/serializer"
	"github.com/mmynk/groupledger/internal/storage"
	"github.com/mmynk/groupledger/internal/storage/sqlite"
)

type summaryCmd struct {
	dataDir string
}

func (*summaryCmd) Name() string     { return "summary" }
func (*summaryCmd) Synopsis() string { return "print the active cycle of every group" }
func (*summaryCmd) Usage() string {
	return `ledgerbot summary [-data <dir>]

  Reads every group database in the data directory and prints the state of
  its active cycle and its carried balance. Safe to run beside the bot.
`
}

func (c *summaryCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dataDir, "data", "", "Data directory (overrides LEDGER_DATA_DIR).")
}

func (c *summaryCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, err := sqlite.New(cfg.DataDir, slog.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	l := ledger.New(store, serializer.New(), cache.NewActiveCycles())
	if err := printSummaries(ctx, os.Stdout, store, l); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func printSummaries(ctx context.Context, w io.Writer, store storage.Store, l *ledger.Ledger) error {
	groups, err := store.Groups(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GROUP\tCYCLE\tSINCE\tIN\tOUT\tCARRIED\tNET\tENTRIES")
	for _, g := range groups {
		st, err := l.Status(ctx, g)
		switch {
		case errors.Is(err, ledger.ErrNoActiveCycle):
			fmt.Fprintf(tw, "%d\t-\t-\t-\t-\t%d\t-\t-\n", g, st.CarriedBalance)
			continue
		case err != nil:
			return fmt.Errorf("group %d: %w", g, err)
		}
		s := st.Summary
		fmt.Fprintf(tw, "%d\t%d\t%s\t%d\t%d\t%d\t%d\t%d\n",
			g, st.Cycle.ID, st.Cycle.StartTime.Format(time.DateTime),
			s.TotalDeposits, s.TotalWithdrawals, s.PreviousBalance, s.NetBalance, s.EntryCount)
	}
	return tw.Flush()
}

type migrateCmd struct {
	dataDir string
}

func (*migrateCmd) Name() string     { return "migrate" }
func (*migrateCmd) Synopsis() string { return "apply schema migrations to every group database" }
func (*migrateCmd) Usage() string {
	return `ledgerbot migrate [-data <dir>]

  Opens each group database in the data directory, applying any pending
  migrations. Databases are otherwise migrated when first used.
`
}

func (c *migrateCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dataDir, "data", "", "Data directory (overrides LEDGER_DATA_DIR).")
}

func (c *migrateCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig(c.dataDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	store, err := sqlite.New(cfg.DataDir, slog.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer store.Close()

	n, err := migrateAll(ctx, store)
	if err != nil {
		slog.Error("Migration failed", "error", err)
		return subcommands.ExitFailure
	}
	slog.Info("Migrations applied", "groups", n)
	return subcommands.ExitSuccess
}

// migrateAll opens every group database; opening applies pending migrations.
func migrateAll(ctx context.Context, store storage.Store) (int, error) {
	groups, err := store.Groups(ctx)
	if err != nil {
		return 0, err
	}
	for _, g := range groups {
		if err := store.View(ctx, g, func(tx storage.Tx) error { return nil }); err != nil {
			return 0, fmt.Errorf("group %d: %w", g, err)
		}
	}
	return len(groups), nil
}
