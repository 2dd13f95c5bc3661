package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/joho/godotenv"

	products "github.com/angelmondragon/storefront/internal/products"
	"github.com/angelmondragon/storefront/pkg/config"
	"github.com/angelmondragon/storefront/pkg/db"
	"github.com/angelmondragon/storefront/pkg/logger"
	"github.com/angelmondragon/storefront/pkg/migrate"
)

type options struct {
	cmd     string
	dir     string
	name    string
	version string
	seed    uint64
	count   int
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	var opts options
	flag.StringVar(&opts.cmd, "cmd", "up", "migration command: up|down|status|pending|version|create|validate|seed")
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Uint64Var(&opts.seed, "seed", products.DefaultCatalogSeed, "catalog generator seed (for seed)")
	flag.IntVar(&opts.count, "count", products.DefaultCatalogSize, "number of products (for seed)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}
	logg = logger.New(logger.Options{
		ServiceName: "migrate",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx := logg.WithFields(context.Background(), map[string]any{
		"env": cfg.App.Env,
		"cmd": opts.cmd,
		"dir": opts.dir,
	})
	if err := run(ctx, cfg.DB, opts, logg, os.Stdout); err != nil {
		logg.Error(ctx, "migrate command failed", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dbCfg config.DBConfig, opts options, logg *logger.Logger, out io.Writer) (err error) {
	// commands that only touch the migrations dir
	switch opts.cmd {
	case "create":
		if opts.name == "" {
			return errors.New("missing -name for create")
		}
		path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(out, "created migration:", path)
		return err
	case "validate":
		if err := migrate.ValidateDir(opts.dir); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "migration validation passed")
		return err
	}

	client, err := db.New(ctx, dbCfg, logg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := client.Close(); err == nil {
			err = closeErr
		}
	}()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}
	dialect := client.Dialect()
	ctx = logg.WithField(ctx, "dialect", dialect)
	logg.Info(ctx, "migrate ready")

	switch opts.cmd {
	case "up", "down", "status":
		return migrate.Run(ctx, sqlDB, dialect, opts.dir, opts.cmd)
	case "version":
		if opts.version == "" {
			return errors.New("missing -version for version command")
		}
		return migrate.MigrateToVersion(ctx, sqlDB, dialect, opts.dir, opts.version)
	case "pending":
		pending, err := migrate.Pending(sqlDB, dialect, opts.dir)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			_, err = fmt.Fprintln(out, "schema up to date")
			return err
		}
		for _, f := range pending {
			if _, err := fmt.Fprintf(out, "%d\t%s\n", f.Version, f.Name); err != nil {
				return err
			}
		}
		return nil
	case "seed":
		svc, err := products.NewService(products.NewRepository(client.DB()), client)
		if err != nil {
			return err
		}
		inserted, err := svc.SeedCatalog(ctx, opts.count, opts.seed)
		if err != nil {
			return err
		}
		logg.Info(logg.WithField(ctx, "inserted", inserted), "catalog.seeded")
		_, err = fmt.Fprintf(out, "seeded %d products\n", inserted)
		return err
	default:
		return fmt.Errorf("unknown -cmd value: %s", opts.cmd)
	}
}
