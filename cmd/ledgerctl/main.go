package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/odyssey-erp/gstbilling/cmd/ledgerctl/cli"
	"github.com/odyssey-erp/gstbilling/internal/app"
	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/ledger/export"
	"github.com/odyssey-erp/gstbilling/internal/platform/cache"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/jobs"
)

const usage = `usage: ledgerctl <command> [flags]

commands:
  recompute      -tenant N (0 = all)
  merge          -tenant N -kind customers|products
  push-to-books  -tenant N -invoice ID
  export-book    -tenant N -book ID -out file.xlsx
  enqueue        -task NAME [-tenant N] [-kind K]
  queue          show default queue stats and scheduled tasks
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		_, _ = fmt.Fprint(stderr, usage)
		return 2
	}
	cmd, rest := args[0], args[1:]

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(stderr)
	tenant := fs.Int64("tenant", 0, "tenant id")
	kind := fs.String("kind", "", "merge kind: customers or products")
	invoice := fs.Int64("invoice", 0, "invoice id")
	book := fs.Int64("book", 0, "book id")
	outPath := fs.String("out", "", "output file")
	task := fs.String("task", "", "task name")
	asJSON := fs.Bool("json", false, "print JSON")
	if err := fs.Parse(rest); err != nil {
		return 2
	}

	_ = godotenv.Load()
	cfg, err := app.LoadConfig()
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	logger := app.NewLogger(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	out := cli.Output{JSON: *asJSON, Stdout: stdout, Stderr: stderr}

	switch cmd {
	case "enqueue", "queue":
		return runJobs(ctx, cfg, cmd, *task, *tenant, *kind, out)
	case "recompute", "merge", "push-to-books", "export-book":
	default:
		_, _ = fmt.Fprintf(stderr, "unknown command %q\n%s", cmd, usage)
		return 2
	}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()
	locker := lock.New(redisClient, cfg.MergeLockTTL)

	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer(cfg.PhoneRegion), engine)
	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, engine, nil, ledger.NewMetrics(nil), logger)

	ops := cli.NewOpsCLI(cli.OpsDeps{
		Recompute:  jobs.NewRecomputeAllJob(ledgerService, ledgerRepo, locker, cfg.RecomputeConcurrency, logger, nil),
		Merger:     identity.NewService(identity.NewRepository(pool), resolver, identity.NewMerger(engine), locker, logger),
		Invoices:   billing.NewService(billing.NewRepository(pool), resolver, engine, nil, logger),
		Books:      ledgerService,
		Statements: export.NewExporter(),
	})

	switch cmd {
	case "recompute":
		return ops.RecomputeCommand(ctx, *tenant, out)
	case "merge":
		return ops.MergeCommand(ctx, *tenant, *kind, out)
	case "push-to-books":
		return ops.PushToBooksCommand(ctx, *tenant, *invoice, out)
	default:
		return ops.ExportBookCommand(ctx, *tenant, *book, *outPath, out)
	}
}

func runJobs(ctx context.Context, cfg *app.Config, cmd, task string, tenant int64, kind string, out cli.Output) int {
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "%s: %v\n", cmd, err)
		return 1
	}
	defer func() { _ = jobsCLI.Close() }()

	if cmd == "enqueue" {
		info, err := jobsCLI.Trigger(ctx, task, tenant, kind)
		if err != nil {
			_, _ = fmt.Fprintf(out.Stderr, "enqueue: %v\n", err)
			return 1
		}
		_, _ = fmt.Fprintf(out.Stdout, "enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
		return 0
	}

	stats, err := jobsCLI.InspectQueue(ctx)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "queue: %v\n", err)
		return 1
	}
	_, _ = fmt.Fprintf(out.Stdout, "queue %s: pending=%d active=%d scheduled=%d retry=%d\n",
		stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry)
	scheduled, err := jobsCLI.ListScheduled(ctx, 10)
	if err != nil {
		_, _ = fmt.Fprintf(out.Stderr, "queue: %v\n", err)
		return 1
	}
	for _, t := range scheduled {
		_, _ = fmt.Fprintf(out.Stdout, "  %s %s at %s\n", t.ID, t.Type, t.NextProcessAt.Format("2006-01-02 15:04:05"))
	}
	return 0
}
