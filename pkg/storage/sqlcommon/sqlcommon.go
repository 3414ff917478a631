// Package sqlcommon holds the plumbing shared by the SQL backends:
// connection configuration, the lazy record iterator, query builders for
// the fdata/refseq schema, and the readiness check.
package sqlcommon

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/oklog/ulid/v2"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/gffdb/gffdb/internal/build"
	"github.com/gffdb/gffdb/pkg/gff"
	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
)

var tracer = otel.Tracer("gffdb/pkg/storage/sqlcommon")

// Config defines the configuration parameters
// for setting up and managing a sql connection.
type Config struct {
	Logger        logger.Logger
	LoadBatchSize int

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxIdleTime time.Duration
	ConnMaxLifetime time.Duration

	ExportMetrics bool
}

// DatastoreOption defines a function type
// used for configuring a Config object.
type DatastoreOption func(*Config)

// WithLogger returns a DatastoreOption that sets the Logger in the Config.
func WithLogger(l logger.Logger) DatastoreOption {
	return func(cfg *Config) {
		cfg.Logger = l
	}
}

// WithLoadBatchSize returns a DatastoreOption that sets the number of
// records inserted per statement during bulk loads.
func WithLoadBatchSize(size int) DatastoreOption {
	return func(cfg *Config) {
		cfg.LoadBatchSize = size
	}
}

// WithMaxOpenConns returns a DatastoreOption that sets the
// maximum number of open connections in the Config.
func WithMaxOpenConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxOpenConns = c
	}
}

// WithMaxIdleConns returns a DatastoreOption that sets the
// maximum number of idle connections in the Config.
func WithMaxIdleConns(c int) DatastoreOption {
	return func(cfg *Config) {
		cfg.MaxIdleConns = c
	}
}

// WithConnMaxIdleTime returns a DatastoreOption that sets
// the maximum idle time for a connection in the Config.
func WithConnMaxIdleTime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxIdleTime = d
	}
}

// WithConnMaxLifetime returns a DatastoreOption that sets
// the maximum lifetime for a connection in the Config.
func WithConnMaxLifetime(d time.Duration) DatastoreOption {
	return func(cfg *Config) {
		cfg.ConnMaxLifetime = d
	}
}

// WithMetrics returns a DatastoreOption that
// enables the export of metrics in the Config.
func WithMetrics() DatastoreOption {
	return func(cfg *Config) {
		cfg.ExportMetrics = true
	}
}

// NewConfig creates a new Config instance with default values
// and applies any provided DatastoreOption modifications.
func NewConfig(opts ...DatastoreOption) *Config {
	cfg := &Config{}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	if cfg.LoadBatchSize == 0 {
		cfg.LoadBatchSize = storage.DefaultLoadBatchSize
	}

	return cfg
}

type errorHandlerFn func(error, ...interface{}) error

// DBInfo encapsulates DB information for use in common methods.
type DBInfo struct {
	db             *sql.DB
	stbl           sq.StatementBuilderType
	HandleSQLError errorHandlerFn
}

// NewDBInfo constructs a [DBInfo] object.
func NewDBInfo(db *sql.DB, stbl sq.StatementBuilderType, errorHandler errorHandlerFn, dialect string) *DBInfo {
	if err := goose.SetDialect(dialect); err != nil {
		panic("failed to set database dialect: " + err.Error())
	}

	return &DBInfo{
		db:             db,
		stbl:           stbl,
		HandleSQLError: errorHandler,
	}
}

// recordColumns are the fdata columns scanned by the record iterator, in
// scan order.
var recordColumns = []string{
	"id",
	"fref",
	"fstart",
	"fstop",
	"fmethod",
	"fsource",
	"fscore",
	"fstrand",
	"fphase",
	"gclass",
	"gname",
	"tstart",
	"tstop",
}

// RecordColumns returns the columns used in the SQL record iterator.
func RecordColumns() []string {
	return recordColumns
}

func scanRecord(rows *sql.Rows) (*storage.Record, error) {
	var (
		record  storage.Record
		fscore  sql.NullFloat64
		fstrand sql.NullString
		fphase  sql.NullInt64
		tstart  sql.NullInt64
		tstop   sql.NullInt64
	)
	err := rows.Scan(
		&record.ID,
		&record.Ref,
		&record.Start,
		&record.Stop,
		&record.Method,
		&record.Source,
		&fscore,
		&fstrand,
		&fphase,
		&record.GroupClass,
		&record.GroupName,
		&tstart,
		&tstop,
	)
	if err != nil {
		return nil, err
	}

	if fscore.Valid {
		score := fscore.Float64
		record.Score = &score
	}
	record.Strand = gff.ParseStrand(fstrand.String)
	if fphase.Valid {
		phase := int8(fphase.Int64)
		record.Phase = &phase
	}
	if tstart.Valid {
		record.TargetStart = gff.NewCoord(tstart.Int64)
	}
	if tstop.Valid {
		record.TargetStop = gff.NewCoord(tstop.Int64)
	}
	return &record, nil
}

// SQLRecordIterator implements storage.RecordIterator over a select
// statement. The query is not issued until the first Next call, so a
// streaming retrieval holds no cursor before it is consumed.
type SQLRecordIterator struct {
	rows           *sql.Rows // GUARDED_BY(mu)
	sb             sq.SelectBuilder
	handleSQLError errorHandlerFn
	onStop         func()
	stopped        bool
	mu             sync.Mutex
}

var _ storage.RecordIterator = (*SQLRecordIterator)(nil)

// NewSQLRecordIterator returns a lazy record iterator. onStop, when
// non-nil, runs exactly once when iteration ends or Stop is called.
func NewSQLRecordIterator(sb sq.SelectBuilder, errHandler errorHandlerFn, onStop func()) *SQLRecordIterator {
	return &SQLRecordIterator{
		sb:             sb,
		handleSQLError: errHandler,
		onStop:         onStop,
	}
}

func (t *SQLRecordIterator) fetchBuffer(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "sqlcommon.fetchBuffer", trace.WithAttributes())
	defer span.End()
	ctx = context.WithoutCancel(ctx)
	rows, err := t.sb.QueryContext(ctx)
	if err != nil {
		return t.handleSQLError(err)
	}
	t.rows = rows
	return nil
}

// Next will return the next available record.
func (t *SQLRecordIterator) Next(ctx context.Context) (*storage.Record, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.stopped {
		return nil, storage.ErrIteratorDone
	}

	if t.rows == nil {
		if err := t.fetchBuffer(ctx); err != nil {
			t.release()
			return nil, err
		}
	}

	if !t.rows.Next() {
		err := t.rows.Err()
		t.release()
		if err != nil {
			return nil, t.handleSQLError(err)
		}
		return nil, storage.ErrIteratorDone
	}

	record, err := scanRecord(t.rows)
	if err != nil {
		t.release()
		return nil, t.handleSQLError(err)
	}
	return record, nil
}

// Stop terminates iteration.
func (t *SQLRecordIterator) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.release()
}

func (t *SQLRecordIterator) release() {
	if t.stopped {
		return
	}
	t.stopped = true
	if t.rows != nil {
		_ = t.rows.Close()
	}
	if t.onStop != nil {
		t.onStop()
	}
}

// StreamGuard enforces the one-outstanding-stream restriction of
// connection-bound backends.
type StreamGuard struct {
	active atomic.Bool
}

// Acquire reserves the stream slot, failing with ErrStreamInProgress if
// another streaming retrieval still holds it.
func (g *StreamGuard) Acquire() error {
	if !g.active.CompareAndSwap(false, true) {
		return storage.ErrStreamInProgress
	}
	return nil
}

// Release frees the stream slot.
func (g *StreamGuard) Release() {
	g.active.Store(false)
}

// BuildRangeQuery translates a range query into a select over fdata.
// Rows come back group-contiguous: ordered by group key first, then by
// position within the group.
func BuildRangeQuery(stbl sq.StatementBuilderType, q storage.RangeQuery) sq.SelectBuilder {
	sb := stbl.
		Select(recordColumns...).
		From("fdata")

	if q.Ref != "" {
		sb = sb.Where(sq.Eq{"fref": q.Ref})
	}

	if q.Start != 0 || q.Stop != 0 {
		switch q.Policy {
		case storage.RangeContainedIn:
			sb = sb.Where(sq.GtOrEq{"fstart": q.Start}).Where(sq.LtOrEq{"fstop": q.Stop})
		case storage.RangeContains:
			sb = sb.Where(sq.LtOrEq{"fstart": q.Start}).Where(sq.GtOrEq{"fstop": q.Stop})
		default:
			sb = sb.Where(sq.LtOrEq{"fstart": q.Stop}).Where(sq.GtOrEq{"fstop": q.Start})
		}
	}

	if len(q.Types) > 0 {
		or := sq.Or{}
		for _, t := range q.Types {
			and := sq.And{}
			if t.Method != "" {
				and = append(and, sq.Expr("LOWER(fmethod) = ?", strings.ToLower(t.Method)))
			}
			if t.Source != "" {
				and = append(and, sq.Expr("LOWER(fsource) = ?", strings.ToLower(t.Source)))
			}
			or = append(or, and)
		}
		sb = sb.Where(or)
	}

	return sb.OrderBy("gclass", "gname", "tstart", "tstop", "fref", "fstart", "fstop")
}

// BuildGroupQuery selects the records of one composite object.
func BuildGroupQuery(stbl sq.StatementBuilderType, class, name string) sq.SelectBuilder {
	return stbl.
		Select(recordColumns...).
		From("fdata").
		Where(sq.Expr("LOWER(gclass) = ?", strings.ToLower(class))).
		Where(sq.Eq{"gname": name}).
		OrderBy("tstart", "tstop", "fref", "fstart", "fstop")
}

// LookupLandmark resolves landmark occurrences from refseq rows and
// group spans. Reference sequences answer to class "" or "Sequence";
// groups answer to their own class.
func LookupLandmark(ctx context.Context, dbInfo *DBInfo, name, class string) ([]storage.LandmarkLocation, error) {
	if class == "" || strings.EqualFold(class, "Sequence") {
		var length int64
		err := dbInfo.stbl.
			Select("length").
			From("refseq").
			Where(sq.Eq{"name": name}).
			QueryRowContext(ctx).
			Scan(&length)
		if err == nil {
			return []storage.LandmarkLocation{{
				Ref:      name,
				RefClass: "Sequence",
				Start:    1,
				Stop:     length,
				Strand:   gff.StrandForward,
			}}, nil
		}
		if handled := dbInfo.HandleSQLError(err); !errors.Is(handled, storage.ErrNotFound) {
			return nil, handled
		}
	}

	sb := dbInfo.stbl.
		Select("fref", "MIN(gclass)", "MIN(fstart)", "MAX(fstop)", "MIN(fstrand)", "MAX(fstrand)").
		From("fdata").
		Where(sq.Eq{"gname": name})
	if class != "" {
		sb = sb.Where(sq.Expr("LOWER(gclass) = ?", strings.ToLower(class)))
	}
	sb = sb.GroupBy("fref").OrderBy("fref")

	rows, err := sb.QueryContext(ctx)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	var locations []storage.LandmarkLocation
	for rows.Next() {
		var (
			loc                  storage.LandmarkLocation
			minStrand, maxStrand sql.NullString
		)
		if err := rows.Scan(&loc.Ref, &loc.RefClass, &loc.Start, &loc.Stop, &minStrand, &maxStrand); err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		if minStrand.String == maxStrand.String {
			loc.Strand = gff.ParseStrand(minStrand.String)
		}
		locations = append(locations, loc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}

	if len(locations) == 0 {
		return nil, storage.LandmarkNotFoundError(name, class)
	}
	return locations, nil
}

// EnumerateTypes lists the distinct (method, source) pairs with counts,
// optionally restricted to a window.
func EnumerateTypes(ctx context.Context, dbInfo *DBInfo, filter storage.TypesFilter) ([]storage.TypeCount, error) {
	sb := dbInfo.stbl.
		Select("MIN(fmethod)", "MIN(fsource)", "COUNT(*)").
		From("fdata")

	if filter.Ref != "" {
		sb = sb.Where(sq.Eq{"fref": filter.Ref})
	}
	if filter.Start != 0 || filter.Stop != 0 {
		sb = sb.Where(sq.LtOrEq{"fstart": filter.Stop}).Where(sq.GtOrEq{"fstop": filter.Start})
	}

	rows, err := sb.
		GroupBy("LOWER(fmethod)", "LOWER(fsource)").
		OrderBy("LOWER(fmethod)", "LOWER(fsource)").
		QueryContext(ctx)
	if err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	defer rows.Close()

	var counts []storage.TypeCount
	for rows.Next() {
		var tc storage.TypeCount
		if err := rows.Scan(&tc.Type.Method, &tc.Type.Source, &tc.Count); err != nil {
			return nil, dbInfo.HandleSQLError(err)
		}
		counts = append(counts, tc)
	}
	if err := rows.Err(); err != nil {
		return nil, dbInfo.HandleSQLError(err)
	}
	return counts, nil
}

// InsertRecords bulk-inserts raw records in one statement. Records
// without an id are assigned a fresh ULID.
func InsertRecords(ctx context.Context, dbInfo *DBInfo, records []*storage.Record, now time.Time) error {
	if len(records) == 0 {
		return nil
	}

	insertBuilder := dbInfo.stbl.
		Insert("fdata").
		Columns(recordColumns...)

	for _, r := range records {
		id := r.ID
		if id == "" {
			id = ulid.MustNew(ulid.Timestamp(now), ulid.DefaultEntropy()).String()
		}

		var score interface{}
		if r.Score != nil {
			score = *r.Score
		}
		var phase interface{}
		if r.Phase != nil {
			phase = *r.Phase
		}
		var tstart, tstop interface{}
		if r.TargetStart.OK {
			tstart = r.TargetStart.Pos
		}
		if r.TargetStop.OK {
			tstop = r.TargetStop.Pos
		}

		insertBuilder = insertBuilder.Values(
			id,
			r.Ref,
			r.Start,
			r.Stop,
			r.Method,
			r.Source,
			score,
			r.Strand.String(),
			phase,
			r.GroupClass,
			r.GroupName,
			tstart,
			tstop,
		)
	}

	if _, err := insertBuilder.ExecContext(ctx); err != nil {
		return dbInfo.HandleSQLError(err)
	}
	return nil
}

// IsReady returns true if the connection to the datastore is successful
// AND the datastore has the minimum supported schema revision applied.
func IsReady(ctx context.Context, versionReady bool, db *sql.DB) (storage.ReadinessStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	// do ping first to ensure we have better error message
	// if error is due to connection issue.
	if pingErr := db.PingContext(ctx); pingErr != nil {
		return storage.ReadinessStatus{}, pingErr
	}

	if versionReady {
		return storage.ReadinessStatus{
			IsReady: true,
		}, nil
	}

	revision, err := goose.GetDBVersionContext(ctx, db)
	if err != nil {
		return storage.ReadinessStatus{}, err
	}

	if revision < build.MinimumSupportedDatastoreSchemaRevision {
		return storage.ReadinessStatus{
			Message: "datastore requires migrations: at revision '" +
				strconv.FormatInt(revision, 10) +
				"', but requires '" +
				strconv.FormatInt(build.MinimumSupportedDatastoreSchemaRevision, 10) +
				"'. Run 'gffdb migrate'.",
			IsReady: false,
		}, nil
	}
	return storage.ReadinessStatus{
		IsReady: true,
	}, nil
}
