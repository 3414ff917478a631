package migrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/gffdb/gffdb/pkg/storage/sqlite"
)

// UnknownEngineError reports a datastore engine no migrations exist for.
type UnknownEngineError struct {
	Engine string
}

func (e *UnknownEngineError) Error() string {
	return fmt.Sprintf("no migrations registered for datastore engine %q", e.Engine)
}

// Config contains the configuration needed for running migrations.
type Config struct {
	Engine        string
	URI           string
	TargetVersion int64
	Timeout       time.Duration
	Verbose       bool
}

func driverFor(engine string) string {
	switch engine {
	case "postgres":
		return "pgx"
	case "mysql":
		return "mysql"
	default:
		return engine
	}
}

// RunMigrations migrates the datastore schema to the target version (the
// latest when TargetVersion is zero) and returns the resulting version.
// The "memory" engine has no schema and is a no-op.
func RunMigrations(ctx context.Context, cfg Config) (int64, error) {
	if cfg.Engine == "memory" {
		return 0, nil
	}

	registry, err := RegistryForEngine(cfg.Engine)
	if err != nil {
		return 0, err
	}

	uri := cfg.URI
	if cfg.Engine == "sqlite" {
		uri, err = sqlite.PrepareDSN(uri)
		if err != nil {
			return 0, err
		}
	}

	db, err := sql.Open(driverFor(cfg.Engine), uri)
	if err != nil {
		return 0, fmt.Errorf("open %s connection: %w", cfg.Engine, err)
	}
	defer db.Close()

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = cfg.Timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, policy)
	if err != nil {
		return 0, fmt.Errorf("initialize %s connection: %w", cfg.Engine, err)
	}

	var opts []runOption
	if cfg.TargetVersion != 0 {
		opts = append(opts, WithTargetVersion(cfg.TargetVersion))
	}
	if cfg.Verbose {
		opts = append(opts, WithVerbose(true))
	}
	return registry.Run(ctx, db, opts...)
}
