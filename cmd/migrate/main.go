// Command migrate manages the PostgreSQL schema and seeds marketplaces.
package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	_ "github.com/lib/pq"
	"go.uber.org/zap"

	appsync "github.com/meschain/marketsync/internal/application/marketsync"
	"github.com/meschain/marketsync/internal/infrastructure/config"
	"github.com/meschain/marketsync/internal/infrastructure/logger"
	"github.com/meschain/marketsync/internal/infrastructure/migration"
	"github.com/meschain/marketsync/internal/infrastructure/persistence"
	"github.com/meschain/marketsync/internal/infrastructure/secrets"
	"github.com/meschain/marketsync/migrations"
)

const defaultMigrationsPath = "migrations"

func main() {
	var (
		configPath     string
		migrationsPath string
		logLevel       string
	)
	flag.StringVar(&configPath, "config", "", "path to config.toml")
	flag.StringVar(&migrationsPath, "path", "", "read migrations from this directory instead of the embedded set")
	flag.StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}

	log, err := logger.New(&logger.Config{
		Level:      logLevel,
		Format:     "console",
		Output:     "stdout",
		TimeFormat: "2006-01-02 15:04:05",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, args, configPath, migrationsPath, log)
	stop()
	_ = log.Sync()
	if err != nil {
		var usage usageError
		if errors.As(err, &usage) {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		log.Error("Migration command failed", zap.String("command", args[0]), zap.Error(err))
		os.Exit(1)
	}
}

type usageError string

func (e usageError) Error() string { return "usage: migrate " + string(e) }

func run(ctx context.Context, args []string, configPath, migrationsPath string, log *zap.Logger) error {
	command := args[0]

	// create and list only touch files
	switch command {
	case "create":
		if len(args) < 2 {
			return usageError("create <name> [description]")
		}
		dir := migrationsPath
		if dir == "" {
			dir = defaultMigrationsPath
		}
		description := ""
		if len(args) > 2 {
			description = args[2]
		}
		mf, err := migration.CreateMigration(dir, args[1], description)
		if err != nil {
			return err
		}
		log.Info("Migration created",
			zap.String("version", mf.Version),
			zap.String("up_file", mf.UpPath),
			zap.String("down_file", mf.DownPath),
		)
		return nil

	case "list":
		var (
			names []string
			err   error
		)
		if migrationsPath != "" {
			names, err = migration.ListMigrations(migrationsPath)
		} else {
			names, err = migration.ListMigrationsFS(migrations.FS)
		}
		if err != nil {
			return err
		}
		if len(names) == 0 {
			log.Info("No migrations found")
			return nil
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	}

	cfg, err := config.LoadFrom(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if command == "seed" {
		if len(args) < 2 {
			return usageError("seed <file.yaml>")
		}
		return seed(ctx, cfg, args[1], log)
	}

	if cfg.Database.Driver != "postgres" {
		if command == "up" {
			return autoMigrate(cfg, log)
		}
		return fmt.Errorf("%s needs database.driver postgres; sqlite schemas are created by `migrate up`", command)
	}

	m, err := openMigrator(cfg, migrationsPath, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			log.Warn("Failed to close migrator", zap.Error(err))
		}
	}()

	switch command {
	case "up":
		return m.Up()

	case "down":
		return m.Down()

	case "step":
		if len(args) < 2 {
			return usageError("step <n>")
		}
		n, err := strconv.Atoi(args[1])
		if err != nil || n == 0 {
			return usageError("step <n>, n is a non-zero integer")
		}
		return m.Steps(n)

	case "version":
		st, err := m.Status()
		if err != nil {
			return err
		}
		if st.Version == 0 {
			log.Info("No migrations applied", zap.Int("pending", len(st.Pending)))
			return nil
		}
		log.Info("Current migration version",
			zap.Uint("version", st.Version),
			zap.Bool("dirty", st.Dirty),
			zap.Strings("pending", st.Pending),
		)
		return nil

	case "force":
		if len(args) < 2 {
			return usageError("force <version>")
		}
		version, err := strconv.Atoi(args[1])
		if err != nil {
			return usageError("force <version>, version is an integer")
		}
		return m.Force(version)
	}

	printUsage()
	return usageError(fmt.Sprintf("unknown command %q", command))
}

func openMigrator(cfg *config.Config, migrationsPath string, log *zap.Logger) (*migration.Migrator, error) {
	if migrationsPath != "" {
		abs, err := filepath.Abs(migrationsPath)
		if err != nil {
			return nil, err
		}
		log.Info("Using migrations directory", zap.String("path", abs))
		return migration.NewFromDir(cfg.Database.DSN(), abs, log)
	}

	db, err := sql.Open("postgres", cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	m, err := migration.New(db, migrations.FS, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return m, nil
}

func openDatabase(cfg *config.Config, log *zap.Logger) (*persistence.Database, error) {
	gormLog := logger.NewGormLogger(log.Named("gorm"), logger.MapGormLogLevel(cfg.Log.Level), cfg.Telemetry.DBSlowQueryThresh)
	return persistence.NewDatabase(&cfg.Database, gormLog)
}

func autoMigrate(cfg *config.Config, log *zap.Logger) error {
	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if err := db.AutoMigrate(); err != nil {
		return err
	}
	log.Info("SQLite schema is up to date", zap.String("path", cfg.Database.SQLitePath))
	return nil
}

func seed(ctx context.Context, cfg *config.Config, path string, log *zap.Logger) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	file, err := ParseSeed(f)
	if err != nil {
		return err
	}

	key, err := cfg.Security.Key()
	if err != nil {
		return err
	}
	sealer, err := secrets.NewSealer(key)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg, log)
	if err != nil {
		return err
	}
	defer db.Close()
	if !db.IsPostgres() {
		if err := db.AutoMigrate(); err != nil {
			return err
		}
	}

	res, err := ApplySeed(ctx, file,
		persistence.NewGormMarketplaceRepository(db.DB),
		appsync.NewStatusMapper(persistence.NewGormStatusMappingRepository(db.DB)),
		sealer, log)
	if err != nil {
		return err
	}
	log.Info("Seed applied", zap.Int("marketplaces", res.Marketplaces), zap.Int("status_pairs", res.StatusPairs))
	return nil
}

func printUsage() {
	fmt.Fprint(os.Stderr, `Marketsync database tool

Usage:
  migrate [flags] <command> [arguments]

Commands:
  up                    Apply all pending migrations (sqlite: create tables)
  down                  Roll back all migrations
  step <n>              Apply n migrations (positive=up, negative=down)
  version               Show the applied version and pending migrations
  force <version>       Force the recorded version (clears a dirty state)
  create <name> [desc]  Create a new migration file pair
  list                  List available migrations
  seed <file.yaml>      Upsert marketplaces and status mappings

Flags:
  -config string        Path to config.toml
  -path string          Migrations directory (default: embedded set; create uses ./migrations)
  -log-level string     Log level: debug, info, warn, error (default: info)

Environment:
  MARKETSYNC_DATABASE_HOST, MARKETSYNC_DATABASE_PASSWORD, MARKETSYNC_SECURITY_CREDENTIALS_KEY, ...

Examples:
  migrate up
  migrate step -1
  migrate create add_listing_table "Track marketplace listings"
  migrate seed configs/seed.example.yaml
`)
}
