// Package mysql provides a MySQL based implementation of
// [storage.Backend].
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
	"github.com/gffdb/gffdb/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("gffdb/pkg/storage/mysql")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "mysql."+name)
}

// Datastore provides a MySQL based implementation of [storage.Backend].
type Datastore struct {
	stbl             sq.StatementBuilderType
	db               *sql.DB
	dbInfo           *sqlcommon.DBInfo
	logger           logger.Logger
	dbStatsCollector prometheus.Collector
	streamGuard      sqlcommon.StreamGuard
	versionReady     bool
}

var _ storage.Backend = (*Datastore)(nil)

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	db, err := sql.Open("mysql", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize mysql connection: %w", err)
	}

	if cfg.MaxIdleConns != 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = 1 * time.Minute
	attempt := 1
	err = backoff.Retry(func() error {
		err := db.PingContext(context.Background())
		if err != nil {
			cfg.Logger.Info("waiting for database", zap.Int("attempt", attempt))
			attempt++
			return err
		}
		return nil
	}, policy)
	if err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "gffdb")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "mysql")

	return &Datastore{
		stbl:             stbl,
		db:               db,
		dbInfo:           dbInfo,
		logger:           cfg.Logger,
		dbStatsCollector: collector,
	}, nil
}

// Close see [storage.Backend].Close.
func (s *Datastore) Close() {
	if s.dbStatsCollector != nil {
		prometheus.Unregister(s.dbStatsCollector)
	}
	s.db.Close()
}

// LookupLandmark see [storage.Backend].LookupLandmark.
func (s *Datastore) LookupLandmark(ctx context.Context, name, class string) ([]storage.LandmarkLocation, error) {
	ctx, span := startTrace(ctx, "LookupLandmark")
	defer span.End()

	return sqlcommon.LookupLandmark(ctx, s.dbInfo, name, class)
}

// FetchRange see [storage.Backend].FetchRange.
func (s *Datastore) FetchRange(ctx context.Context, q storage.RangeQuery) (storage.RecordIterator, error) {
	ctx, span := startTrace(ctx, "FetchRange")
	defer span.End()

	sb := sqlcommon.BuildRangeQuery(s.stbl, q)

	if q.Stream {
		if err := s.streamGuard.Acquire(); err != nil {
			return nil, err
		}
		return sqlcommon.NewSQLRecordIterator(sb, HandleSQLError, s.streamGuard.Release), nil
	}
	return sqlcommon.NewSQLRecordIterator(sb, HandleSQLError, nil), nil
}

// FetchGroup see [storage.Backend].FetchGroup.
func (s *Datastore) FetchGroup(ctx context.Context, class, name string) (storage.RecordIterator, error) {
	ctx, span := startTrace(ctx, "FetchGroup")
	defer span.End()

	sb := sqlcommon.BuildGroupQuery(s.stbl, class, name)
	return sqlcommon.NewSQLRecordIterator(sb, HandleSQLError, nil), nil
}

// EnumerateTypes see [storage.Backend].EnumerateTypes.
func (s *Datastore) EnumerateTypes(ctx context.Context, filter storage.TypesFilter) ([]storage.TypeCount, error) {
	ctx, span := startTrace(ctx, "EnumerateTypes")
	defer span.End()

	return sqlcommon.EnumerateTypes(ctx, s.dbInfo, filter)
}

// LoadRecords see [storage.Backend].LoadRecords.
func (s *Datastore) LoadRecords(ctx context.Context, records []*storage.Record) error {
	ctx, span := startTrace(ctx, "LoadRecords")
	defer span.End()

	return sqlcommon.InsertRecords(ctx, s.dbInfo, records, time.Now().UTC())
}

// UpsertRefseq see [storage.Backend].UpsertRefseq.
func (s *Datastore) UpsertRefseq(ctx context.Context, name string, length int64) error {
	ctx, span := startTrace(ctx, "UpsertRefseq")
	defer span.End()

	_, err := s.stbl.
		Insert("refseq").
		Columns("name", "length").
		Values(name, length).
		Suffix("ON DUPLICATE KEY UPDATE length = GREATEST(length, VALUES(length))").
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}
	return nil
}

// IsReady see [sqlcommon.IsReady].
func (s *Datastore) IsReady(ctx context.Context) (storage.ReadinessStatus, error) {
	versionReady, err := sqlcommon.IsReady(ctx, s.versionReady, s.db)
	if err != nil {
		return versionReady, err
	}
	s.versionReady = versionReady.IsReady
	return versionReady, nil
}

// HandleSQLError processes an SQL error and converts it into a more
// specific error type based on the nature of the SQL error.
func HandleSQLError(err error, _ ...interface{}) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}

	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return storage.ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}
