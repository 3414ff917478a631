package migrate

import (
	"context"
	"database/sql"
)

func execAll(ctx context.Context, tx *sql.Tx, stmts []string) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

var dropSchema = []string{
	`DROP TABLE fdata`,
	`DROP TABLE refseq`,
}

var sqliteSchema = []string{
	`CREATE TABLE refseq (
		name   TEXT PRIMARY KEY,
		length INTEGER NOT NULL
	)`,
	`CREATE TABLE fdata (
		id      TEXT PRIMARY KEY,
		fref    TEXT NOT NULL,
		fstart  INTEGER NOT NULL,
		fstop   INTEGER NOT NULL,
		fmethod TEXT NOT NULL,
		fsource TEXT NOT NULL DEFAULT '',
		fscore  REAL,
		fstrand TEXT NOT NULL DEFAULT '.',
		fphase  INTEGER,
		gclass  TEXT NOT NULL DEFAULT '',
		gname   TEXT NOT NULL DEFAULT '',
		tstart  INTEGER,
		tstop   INTEGER
	)`,
	`CREATE INDEX idx_fdata_range ON fdata (fref, fstart, fstop)`,
	`CREATE INDEX idx_fdata_grp ON fdata (gclass, gname, tstart, tstop)`,
	`CREATE INDEX idx_fdata_type ON fdata (fmethod, fsource)`,
}

var postgresSchema = []string{
	`CREATE TABLE refseq (
		name   TEXT PRIMARY KEY,
		length BIGINT NOT NULL
	)`,
	`CREATE TABLE fdata (
		id      TEXT PRIMARY KEY,
		fref    TEXT NOT NULL,
		fstart  BIGINT NOT NULL,
		fstop   BIGINT NOT NULL,
		fmethod TEXT NOT NULL,
		fsource TEXT NOT NULL DEFAULT '',
		fscore  DOUBLE PRECISION,
		fstrand TEXT NOT NULL DEFAULT '.',
		fphase  SMALLINT,
		gclass  TEXT NOT NULL DEFAULT '',
		gname   TEXT NOT NULL DEFAULT '',
		tstart  BIGINT,
		tstop   BIGINT
	)`,
	`CREATE INDEX idx_fdata_range ON fdata (fref, fstart, fstop)`,
	`CREATE INDEX idx_fdata_grp ON fdata (gclass, gname, tstart, tstop)`,
	`CREATE INDEX idx_fdata_type ON fdata (LOWER(fmethod), LOWER(fsource))`,
}

var mysqlSchema = []string{
	`CREATE TABLE refseq (
		name   VARCHAR(255) PRIMARY KEY,
		length BIGINT NOT NULL
	)`,
	`CREATE TABLE fdata (
		id      VARCHAR(26) PRIMARY KEY,
		fref    VARCHAR(255) NOT NULL,
		fstart  BIGINT NOT NULL,
		fstop   BIGINT NOT NULL,
		fmethod VARCHAR(255) NOT NULL,
		fsource VARCHAR(255) NOT NULL DEFAULT '',
		fscore  DOUBLE,
		fstrand VARCHAR(1) NOT NULL DEFAULT '.',
		fphase  TINYINT,
		gclass  VARCHAR(255) NOT NULL DEFAULT '',
		gname   VARCHAR(255) NOT NULL DEFAULT '',
		tstart  BIGINT,
		tstop   BIGINT
	)`,
	`CREATE INDEX idx_fdata_range ON fdata (fref, fstart, fstop)`,
	`CREATE INDEX idx_fdata_grp ON fdata (gclass, gname, tstart, tstop)`,
	`CREATE INDEX idx_fdata_type ON fdata (fmethod, fsource)`,
}

func schemaRegistry(engine string, schema []string) *Registry {
	r := NewRegistry(engine)
	r.MustRegister(&Migration{
		Version: 1,
		Forward: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, schema)
		},
		Backward: func(ctx context.Context, tx *sql.Tx) error {
			return execAll(ctx, tx, dropSchema)
		},
	})
	return r
}

// RegistryForEngine returns the migration registry for a datastore
// engine ("sqlite", "postgres" or "mysql").
func RegistryForEngine(engine string) (*Registry, error) {
	switch engine {
	case "sqlite":
		return schemaRegistry("sqlite", sqliteSchema), nil
	case "postgres":
		return schemaRegistry("postgres", postgresSchema), nil
	case "mysql":
		return schemaRegistry("mysql", mysqlSchema), nil
	default:
		return nil, &UnknownEngineError{Engine: engine}
	}
}
