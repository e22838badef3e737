// Package ingest runs one ingestion cycle: it routes labelled series to table
// builders, optionally running the processor chain over each label set first,
// and flushes the result as a rowbuilder.ContextReq.
//
// An Ingestor is read-only once built and may serve many concurrent cycles;
// every cycle borrows its own aggregator from a pool.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"tsingest/internal/config"
	"tsingest/internal/metrics"
	"tsingest/internal/processor"
	_ "tsingest/internal/processor/builtin" // register builtin stages
	"tsingest/internal/rowbuilder"
)

// Options tune a cycle.
type Options struct {
	Mode                 rowbuilder.ValidationMode
	DefaultSchema        string
	DefaultPhysicalTable string

	// LabelHint and RowHint size new table builders.
	LabelHint int
	RowHint   int
}

// Stats summarizes one cycle.
type Stats struct {
	Series       int // series seen
	Rows         int // rows written to builders
	Dropped      int // series skipped for any reason
	DecodeErrors int // subset of Dropped rejected by label decoding
}

// Add accumulates o into s.
func (s *Stats) Add(o Stats) {
	s.Series += o.Series
	s.Rows += o.Rows
	s.Dropped += o.Dropped
	s.DecodeErrors += o.DecodeErrors
}

// Ingestor turns series into row batches.
type Ingestor struct {
	Chain   processor.Chain
	Options Options
	Logger  logrus.FieldLogger
	Job     string
}

// New builds an Ingestor from a pipeline configuration. Stage errors are
// configuration errors and are returned as-is.
func New(p config.Pipeline, logger logrus.FieldLogger) (*Ingestor, error) {
	mode, err := rowbuilder.ParseValidationMode(p.Ingest.ValidationMode)
	if err != nil {
		return nil, fmt.Errorf("ingest: %w", err)
	}
	chain, err := processor.Build(p.Processors)
	if err != nil {
		return nil, fmt.Errorf("ingest: build processors: %w", err)
	}
	return &Ingestor{
		Chain: chain,
		Options: Options{
			Mode:                 mode,
			DefaultSchema:        p.Ingest.DefaultSchema,
			DefaultPhysicalTable: p.Ingest.DefaultPhysicalTable,
			LabelHint:            p.Runtime.LabelHint,
			RowHint:              p.Runtime.RowHint,
		},
		Logger: logger,
		Job:    p.Job,
	}, nil
}

var tablesPool = sync.Pool{
	New: func() any { return rowbuilder.NewTables() },
}

func getTables() *rowbuilder.Tables {
	t := tablesPool.Get().(*rowbuilder.Tables)
	t.Clear()
	return t
}

func putTables(t *rowbuilder.Tables) {
	t.Clear()
	tablesPool.Put(t)
}

var discard = func() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}()

func (in *Ingestor) logger() logrus.FieldLogger {
	if in.Logger == nil {
		return discard
	}
	return in.Logger
}

// Ingest runs one cycle over series. Per-series failures are counted and
// logged and never abort the cycle; only ctx cancellation does, in which case
// everything accumulated so far is discarded.
func (in *Ingestor) Ingest(ctx context.Context, series []rowbuilder.TimeSeries) (rowbuilder.ContextReq, Stats, error) {
	start := time.Now()
	log := in.logger().WithFields(logrus.Fields{
		"cycle": uuid.NewString(),
		"job":   in.Job,
	})

	tables := getTables()
	var (
		stats Stats
		tags  []rowbuilder.Label
	)
	for i := range series {
		if err := ctx.Err(); err != nil {
			putTables(tables)
			metrics.RecordStep(in.Job, "cycle", err, time.Since(start))
			log.WithError(err).WithField("series", i).Warn("ingest: cycle aborted")
			return rowbuilder.ContextReq{}, stats, err
		}

		ts := &series[i]
		stats.Series++
		var err error
		if len(in.Chain) == 0 {
			tags, err = in.addRaw(tables, ts, tags)
		} else {
			err = in.addProcessed(tables, ts)
		}
		if err != nil {
			stats.Dropped++
			entry := log.WithError(err).WithField("series", i)
			var de *rowbuilder.DecodeError
			var pe *processor.Error
			var se *processor.StageError
			switch {
			case errors.As(err, &de):
				stats.DecodeErrors++
				entry = entry.WithFields(logrus.Fields{"label": de.Label, "part": de.Part})
			case errors.As(err, &se):
				entry = entry.WithFields(logrus.Fields{"stage": se.Index, "kind": se.Kind})
				if errors.As(err, &pe) && pe.Field != "" {
					entry = entry.WithField("field", pe.Field)
				}
			}
			entry.Debug("ingest: series dropped")
			continue
		}
		stats.Rows += len(ts.Samples)
	}

	flushStart := time.Now()
	req := tables.AsInsertRequests()
	putTables(tables)
	metrics.RecordStep(in.Job, "flush", nil, time.Since(flushStart))

	batches := 0
	for _, e := range req.Entries() {
		batches += len(e.Requests)
	}
	metrics.RecordStep(in.Job, "cycle", nil, time.Since(start))
	metrics.RecordRecords(in.Job, metrics.KindSeries, int64(stats.Series))
	metrics.RecordRecords(in.Job, metrics.KindRows, int64(stats.Rows))
	metrics.RecordRecords(in.Job, metrics.KindDropped, int64(stats.Dropped))
	metrics.RecordRecords(in.Job, metrics.KindDecodeErrors, int64(stats.DecodeErrors))
	metrics.RecordBatches(in.Job, int64(batches))

	log.WithFields(logrus.Fields{
		"series":   stats.Series,
		"rows":     stats.Rows,
		"dropped":  stats.Dropped,
		"batches":  batches,
		"duration": time.Since(start),
	}).Debug("ingest: cycle done")
	return req, stats, nil
}

// addRaw appends a series without a chain. Tag labels go to the builder
// undecoded so it validates them under the configured mode.
func (in *Ingestor) addRaw(tables *rowbuilder.Tables, ts *rowbuilder.TimeSeries, scratch []rowbuilder.Label) ([]rowbuilder.Label, error) {
	r, tags, err := in.splitRaw(ts.Labels, scratch)
	if err != nil {
		return tags, err
	}
	if r.table == "" {
		return tags, errNoMetricName
	}
	b := tables.GetOrCreateTableBuilder(r.ctx, r.table, in.labelHint(len(tags)), in.Options.RowHint)
	return tags, b.AddLabelsAndSamples(tags, ts.Samples, in.Options.Mode)
}

// addProcessed runs the chain over the decoded label set and appends the
// result. Labels were validated while decoding, so the builder skips it.
func (in *Ingestor) addProcessed(tables *rowbuilder.Tables, ts *rowbuilder.TimeSeries) error {
	obj, err := in.toObject(ts.Labels)
	if err != nil {
		return err
	}
	out, err := in.Chain.Exec(obj)
	if err != nil {
		return err
	}
	r, tags, err := in.fromObject(out)
	if err != nil {
		return err
	}
	if r.table == "" {
		return errNoMetricName
	}
	b := tables.GetOrCreateTableBuilder(r.ctx, r.table, in.labelHint(len(tags)), in.Options.RowHint)
	return b.AddLabelsAndSamples(tags, ts.Samples, rowbuilder.Unchecked)
}

func (in *Ingestor) labelHint(n int) int {
	if in.Options.LabelHint > n {
		return in.Options.LabelHint
	}
	return n
}
