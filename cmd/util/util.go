// Package util provides common utilities for spf13/cobra CLI utilities
// that can be used for various commands within this project.
package util

import (
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
	"github.com/gffdb/gffdb/pkg/storage/memory"
	"github.com/gffdb/gffdb/pkg/storage/mysql"
	"github.com/gffdb/gffdb/pkg/storage/postgres"
	"github.com/gffdb/gffdb/pkg/storage/sqlcommon"
	"github.com/gffdb/gffdb/pkg/storage/sqlite"
)

// MustBindPFlag attempts to bind a specific key to a pflag (as used by cobra) and panics
// if the binding fails with a non-nil error.
func MustBindPFlag(key string, flag *pflag.Flag) {
	if err := viper.BindPFlag(key, flag); err != nil {
		panic("failed to bind pflag: " + err.Error())
	}
}

func MustBindEnv(input ...string) {
	if err := viper.BindEnv(input...); err != nil {
		panic("failed to bind env key: " + err.Error())
	}
}

// OpenDatastore constructs the storage backend selected by engine.
func OpenDatastore(engine, uri string, log logger.Logger) (storage.Backend, error) {
	cfg := sqlcommon.NewConfig(sqlcommon.WithLogger(log))

	switch engine {
	case "memory":
		return memory.New(), nil
	case "sqlite":
		return sqlite.New(uri, cfg)
	case "postgres":
		return postgres.New(uri, cfg)
	case "mysql":
		return mysql.New(uri, cfg)
	case "":
		return nil, fmt.Errorf("missing datastore engine type")
	default:
		return nil, fmt.Errorf("unknown datastore engine type: %s", engine)
	}
}
