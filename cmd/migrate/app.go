package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/config"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/lock/advisory"
	"github.com/getpup/pupsourcing-migrate/lock/lease"
	lockmemory "github.com/getpup/pupsourcing-migrate/lock/memory"
	"github.com/getpup/pupsourcing-migrate/lock/redislock"
	"github.com/getpup/pupsourcing-migrate/metrics"
	"github.com/getpup/pupsourcing-migrate/pkg/migrator"
	"github.com/getpup/pupsourcing-migrate/pkg/version"
	"github.com/getpup/pupsourcing-migrate/snapshot"
)

var errUsage = errors.New("usage")

const usage = `usage: migrate [-config file] <command> [flags]

commands:
  up [-to ID]          apply pending migrations
  down [-n N]          revert the N most recently applied migrations (default 1)
  status               list applied, pending, missing and drifted migrations
  plan [-to ID|-down N] show what up or down would do
  bootstrap            load the schema snapshot into an empty database
  snapshot [-o FILE]   rebuild the schema snapshot from the ledger
  new NAME             create an empty migration file
  version              print the version
`

// run executes one command. It is main without the process exits.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("migrate", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprint(stderr, usage) }
	configPath := global.String("config", os.Getenv("MIGRATE_CONFIG"), "path to the YAML config file")
	if err := global.Parse(args); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	if global.NArg() == 0 {
		global.Usage()
		return errUsage
	}

	command, rest := global.Arg(0), global.Args()[1:]
	switch command {
	case "version":
		_, err := fmt.Fprintf(stdout, "migrate %s\n", version.Version)
		return err
	case "help", "-h", "--help":
		global.Usage()
		return nil
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}

	if command == "new" {
		return newMigration(cfg, rest, stdout)
	}

	app, err := newApp(cfg, stderr)
	if err != nil {
		return err
	}
	defer app.Close()

	g, gctx := errgroup.WithContext(ctx)
	done := make(chan struct{})
	if cfg.Metrics.Addr != "" {
		server := metrics.NewServer(cfg.Metrics.Addr)
		metricsCtx, stopMetrics := context.WithCancel(gctx)
		g.Go(func() error {
			<-done
			stopMetrics()
			return nil
		})
		g.Go(func() error {
			return server.Run(metricsCtx)
		})
	}
	g.Go(func() error {
		defer close(done)
		return app.dispatch(gctx, command, rest, stdout)
	})
	return g.Wait()
}

// app holds the resources shared by the database commands.
type app struct {
	cfg      config.Config
	db       *sql.DB
	redis    *redis.Client
	migrator *migrator.Migrator
	logger   migrate.Logger
}

func newApp(cfg config.Config, stderr io.Writer) (*app, error) {
	d, err := cfg.Dialect()
	if err != nil {
		return nil, err
	}

	db, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if d.Name() == dialect.SQLite.Name() {
		db.SetMaxOpenConns(1)
	}

	a := &app{
		cfg:    cfg,
		db:     db,
		logger: migrate.NewSlogLogger(cfg.Log.NewLogger(stderr)),
	}

	collector := metrics.NewCollector(cfg.MetricsTarget())
	locker, err := a.newLocker(d, collector)
	if err != nil {
		a.Close()
		return nil, err
	}

	m, err := migrator.New(
		migrator.WithDatabase(db, d),
		migrator.WithLedgerTable(cfg.LedgerTable),
		migrator.WithMigrationsFS(os.DirFS(cfg.MigrationsDir)),
		migrator.WithLocker(locker),
		migrator.WithLockKey(cfg.Lock.Key),
		migrator.WithLockWait(cfg.Lock.Wait, 0),
		migrator.WithSnapshotStore(snapshot.NewFileStore(cfg.SnapshotPath)),
		migrator.WithMigrationTimeout(cfg.MigrationTimeout),
		migrator.WithLogger(a.logger),
		migrator.WithMetrics(collector),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.migrator = m
	return a, nil
}

func (a *app) newLocker(d dialect.Dialect, collector *metrics.Collector) (lock.Locker, error) {
	switch a.cfg.LockBackend() {
	case config.LockNone:
		return lock.Nop{}, nil
	case config.LockMemory:
		return lockmemory.New(lockmemory.Config{TTL: a.cfg.Lock.TTL, Logger: a.logger}), nil
	case config.LockAdvisory:
		return advisory.New(a.db, d, advisory.Config{Logger: a.logger, Metrics: collector})
	case config.LockTable:
		return lease.New(a.db, lease.Config{
			Dialect: d,
			Table:   lease.TableConfig{LockTable: a.cfg.Lock.Table},
			TTL:     a.cfg.Lock.TTL,
			Logger:  a.logger,
			Metrics: collector,
		}), nil
	case config.LockRedis:
		a.redis = redis.NewClient(&redis.Options{Addr: a.cfg.Lock.RedisAddr})
		return redislock.New(a.redis, redislock.Config{TTL: a.cfg.Lock.TTL, Logger: a.logger, Metrics: collector}), nil
	default:
		return nil, fmt.Errorf("unknown lock backend %q", a.cfg.Lock.Backend)
	}
}

// Close releases the database and Redis connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	_ = a.db.Close()
}

func (a *app) dispatch(ctx context.Context, command string, args []string, stdout io.Writer) error {
	switch command {
	case "up":
		fs := flag.NewFlagSet("up", flag.ContinueOnError)
		to := fs.String("to", "", "stop after this migration ID")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		var target migrate.ID
		if *to != "" {
			id, err := migrate.ParseID(*to)
			if err != nil {
				return err
			}
			target = id
		}
		return report(stdout, func() (*migrate.ExecutionReport, error) { return a.migrator.UpTo(ctx, target) })

	case "down":
		fs := flag.NewFlagSet("down", flag.ContinueOnError)
		n := fs.Int("n", 1, "number of migrations to revert")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		if *n < 1 {
			return fmt.Errorf("%w: -n must be at least 1", errUsage)
		}
		return report(stdout, func() (*migrate.ExecutionReport, error) { return a.migrator.Down(ctx, *n) })

	case "status":
		status, err := a.migrator.Status(ctx)
		if err != nil {
			return err
		}
		return writeStatus(stdout, status)

	case "plan":
		fs := flag.NewFlagSet("plan", flag.ContinueOnError)
		to := fs.String("to", "", "plan up to this migration ID")
		down := fs.Int("down", 0, "plan reverting this many migrations instead")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		directive := migrator.Directive{Kind: migrate.DirectiveApply}
		if *down > 0 {
			directive = migrator.Directive{Kind: migrate.DirectiveRollback, Count: *down}
		} else if *to != "" {
			id, err := migrate.ParseID(*to)
			if err != nil {
				return err
			}
			directive.Target = id
		}
		dry, err := a.migrator.Plan(ctx, directive)
		if err != nil {
			return err
		}
		return writePlan(stdout, dry)

	case "bootstrap":
		if err := a.migrator.Bootstrap(ctx); err != nil {
			return err
		}
		_, err := fmt.Fprintf(stdout, "bootstrapped from %s\n", a.cfg.SnapshotPath)
		return err

	case "snapshot":
		fs := flag.NewFlagSet("snapshot", flag.ContinueOnError)
		out := fs.String("o", "", "write to this file instead of stdout")
		if err := fs.Parse(args); err != nil {
			return fmt.Errorf("%w: %w", errUsage, err)
		}
		doc, err := a.migrator.Snapshot(ctx)
		if err != nil {
			return err
		}
		if *out != "" {
			return snapshot.NewFileStore(*out).Save(ctx, doc)
		}
		return snapshot.Encode(stdout, doc)

	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func report(stdout io.Writer, fn func() (*migrate.ExecutionReport, error)) error {
	r, err := fn()
	if r != nil {
		if werr := r.Write(stdout); werr != nil && err == nil {
			err = werr
		}
	}
	return err
}

const migrationTemplate = `name: %s
up:
  # - create_table:
  #     name: users
  #     columns:
  #       - {name: id, type: bigint, primary_key: true}
# down is optional when every operation in up can be inverted
`

func newMigration(cfg config.Config, args []string, stdout io.Writer) error {
	if len(args) != 1 || strings.TrimSpace(args[0]) == "" {
		return fmt.Errorf("%w: new takes exactly one migration name", errUsage)
	}
	name := strings.ReplaceAll(strings.TrimSpace(args[0]), " ", "_")
	if err := dialect.ValidateIdentifier(name, "name"); err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}

	if err := os.MkdirAll(cfg.MigrationsDir, 0o755); err != nil {
		return fmt.Errorf("failed to create migrations folder: %w", err)
	}
	filename := fmt.Sprintf("%s_%s.yaml", migrate.NewID(time.Now()), name)
	path := filepath.Join(cfg.MigrationsDir, filename)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return fmt.Errorf("failed to create migration file: %w", err)
	}
	if _, err := fmt.Fprintf(f, migrationTemplate, name); err != nil {
		f.Close()
		return fmt.Errorf("failed to write migration file: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	_, err = fmt.Fprintf(stdout, "created %s\n", path)
	return err
}

// exitCode maps failures to process exit codes: 2 for usage errors, 3 when the lock is held
// elsewhere, 4 for partial runs and 1 otherwise.
func exitCode(err error) int {
	switch {
	case errors.Is(err, errUsage):
		return 2
	case errors.Is(err, migrate.ErrLockContention):
		return 3
	case errors.Is(err, migrate.ErrPartialFailure):
		return 4
	default:
		return 1
	}
}
