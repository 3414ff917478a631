package gffio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"go.uber.org/zap"

	"github.com/gffdb/gffdb/pkg/logger"
	"github.com/gffdb/gffdb/pkg/storage"
)

const defaultLoadConcurrency = 4

// Loader streams GFF text into a storage backend in batches.
type Loader struct {
	backend     storage.Backend
	batchSize   int
	concurrency int
	logger      logger.Logger
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithBatchSize sets the number of records per LoadRecords call.
func WithBatchSize(n int) LoaderOption {
	return func(l *Loader) {
		l.batchSize = n
	}
}

// WithConcurrency bounds the number of concurrent insert batches.
func WithConcurrency(n int) LoaderOption {
	return func(l *Loader) {
		l.concurrency = n
	}
}

// WithLogger sets the logger used for skipped-line warnings.
func WithLogger(log logger.Logger) LoaderOption {
	return func(l *Loader) {
		l.logger = log
	}
}

// NewLoader creates a loader writing to backend.
func NewLoader(backend storage.Backend, opts ...LoaderOption) *Loader {
	l := &Loader{
		backend:     backend,
		batchSize:   storage.DefaultLoadBatchSize,
		concurrency: defaultLoadConcurrency,
		logger:      logger.NewNoopLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// LoadStats summarizes one Load call.
type LoadStats struct {
	// Records is the number of feature records inserted.
	Records int64

	// Refseqs is the number of reference sequences upserted.
	Refseqs int

	// Skipped is the number of malformed lines skipped.
	Skipped int64
}

// Load reads GFF text (plain or gzipped) from r and inserts it into the
// backend. Malformed lines are skipped with a warning. Reference
// sequence lengths come from `##sequence-region` directives, from
// records with method "Sequence", and from the maximum stop seen per
// reference, whichever is largest, so every landmark in the input
// resolves afterwards.
func (l *Loader) Load(ctx context.Context, r io.Reader) (LoadStats, error) {
	reader, err := NewReader(r)
	if err != nil {
		return LoadStats{}, err
	}

	p := pool.New().
		WithContext(ctx).
		WithCancelOnError().
		WithFirstError().
		WithMaxGoroutines(l.concurrency)

	var stats LoadStats
	var mu sync.Mutex
	refseqs := make(map[string]int64)
	note := func(ref string, length int64) {
		if length > refseqs[ref] {
			refseqs[ref] = length
		}
	}

	batch := make([]*storage.Record, 0, l.batchSize)
	submit := func() {
		records := batch
		batch = make([]*storage.Record, 0, l.batchSize)
		p.Go(func(ctx context.Context) error {
			if err := l.backend.LoadRecords(ctx, records); err != nil {
				return fmt.Errorf("load batch: %w", err)
			}
			mu.Lock()
			stats.Records += int64(len(records))
			mu.Unlock()
			return nil
		})
	}

	for {
		rec, err := reader.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			var perr *ParseError
			if errors.As(err, &perr) {
				stats.Skipped++
				l.logger.Warn("skipping malformed gff line",
					zap.Int("line", perr.Line),
					zap.Error(perr.Err),
				)
				continue
			}
			return stats, err
		}

		// max stop per reference doubles as the refseq length when no
		// directive or Sequence record declares one
		note(rec.Ref, rec.Stop)

		batch = append(batch, rec)
		if len(batch) >= l.batchSize {
			submit()
		}
	}
	if len(batch) > 0 {
		submit()
	}

	if err := p.Wait(); err != nil {
		return stats, err
	}

	for ref, length := range reader.Refseqs() {
		note(ref, length)
	}

	refs := make([]string, 0, len(refseqs))
	for ref := range refseqs {
		refs = append(refs, ref)
	}
	sort.Strings(refs)
	for _, ref := range refs {
		if err := l.backend.UpsertRefseq(ctx, ref, refseqs[ref]); err != nil {
			return stats, fmt.Errorf("upsert refseq %q: %w", ref, err)
		}
		stats.Refseqs++
	}
	return stats, nil
}
