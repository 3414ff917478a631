// Package sqlite provides a SQLite based implementation of
// [storage.Backend] using the cgo-free modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
	"github.com/gffdb/gffdb/pkg/storage/sqlcommon"
)

var tracer = otel.Tracer("gffdb/pkg/storage/sqlite")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

// Datastore provides a SQLite based implementation of [storage.Backend].
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

// PrepareDSN prepares a raw DSN from config for use with SQLite,
// specifying defaults for journal mode and busy timeout.
func PrepareDSN(uri string) (string, error) {
	// Set journal mode and busy timeout pragmas if not specified.
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}

		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(100)")
	}

	// Set transaction mode to immediate if not specified
	if !query.Has("_txlock") {
		query.Set("_txlock", "immediate")
	}

	uri += "?" + query.Encode()

	return uri, nil
}

// New creates a new [Datastore] storage.
func New(uri string, cfg *sqlcommon.Config) (*Datastore, error) {
	uri, err := PrepareDSN(uri)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", uri)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	var collector prometheus.Collector
	if cfg.ExportMetrics {
		collector = collectors.NewDBStatsCollector(db, "gffdb")
		if err := prometheus.Register(collector); err != nil {
			return nil, fmt.Errorf("initialize metrics: %w", err)
		}
	}

	stbl := sq.StatementBuilder.RunWith(db)
	dbInfo := sqlcommon.NewDBInfo(db, stbl, HandleSQLError, "sqlite")

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

	return busyRetry(func() error {
		return sqlcommon.InsertRecords(ctx, s.dbInfo, records, time.Now().UTC())
	})
}

// UpsertRefseq see [storage.Backend].UpsertRefseq. The stored length
// only ever grows.
func (s *Datastore) UpsertRefseq(ctx context.Context, name string, length int64) error {
	ctx, span := startTrace(ctx, "UpsertRefseq")
	defer span.End()

	err := busyRetry(func() error {
		_, err := s.stbl.
			Insert("refseq").
			Columns("name", "length").
			Values(name, length).
			Suffix("ON CONFLICT (name) DO UPDATE SET length = excluded.length WHERE excluded.length > refseq.length").
			ExecContext(ctx)
		return err
	})
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

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		if sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
			return storage.ErrCollision
		}
	}

	return fmt.Errorf("sql error: %w", err)
}

// SQLite will return an SQLITE_BUSY error when the database is locked rather than waiting for the lock.
// This function retries the operation up to maxRetries times before returning the error.
func busyRetry(fn func() error) error {
	const maxRetries = 10
	for retries := 0; ; retries++ {
		err := fn()
		if err == nil {
			return nil
		}

		if isBusyError(err) {
			if retries < maxRetries {
				continue
			}

			return fmt.Errorf("sqlite busy error after %d retries: %w", maxRetries, err)
		}

		return err
	}
}

var busyErrors = map[int]struct{}{
	sqlite3.SQLITE_BUSY_RECOVERY:      {},
	sqlite3.SQLITE_BUSY_SNAPSHOT:      {},
	sqlite3.SQLITE_BUSY_TIMEOUT:       {},
	sqlite3.SQLITE_BUSY:               {},
	sqlite3.SQLITE_LOCKED_SHAREDCACHE: {},
	sqlite3.SQLITE_LOCKED:             {},
}

func isBusyError(err error) bool {
	var sqliteErr *sqlite.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}

	_, ok := busyErrors[sqliteErr.Code()]
	return ok
}
