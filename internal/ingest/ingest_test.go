package ingest

import (
	"bytes"
	"context"
	"sync"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"tsingest/internal/config"
	"tsingest/internal/metrics"
	"tsingest/internal/processor"
	"tsingest/internal/rowbuilder"
	"tsingest/pkg/records"
)

func series(samples []rowbuilder.Sample, kv ...string) rowbuilder.TimeSeries {
	ts := rowbuilder.TimeSeries{Samples: samples}
	for i := 0; i+1 < len(kv); i += 2 {
		ts.Labels = append(ts.Labels, rowbuilder.Label{Name: []byte(kv[i]), Value: []byte(kv[i+1])})
	}
	return ts
}

func one(ts int64, v float64) []rowbuilder.Sample {
	return []rowbuilder.Sample{{Timestamp: ts, Value: v}}
}

func names(schema []rowbuilder.ColumnSchema) []string {
	out := make([]string, len(schema))
	for i, c := range schema {
		out[i] = c.Name
	}
	return out
}

func TestIngest_RoutesBySpecialLabels(t *testing.T) {
	in := &Ingestor{Job: "test"}
	req, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu", "host", "a"),
		series(one(2, 2), "__name__", "mem", "__database__", "db1", "host", "b"),
		series(one(3, 3), "__name__", "cpu", "host", "c", "__physical_table__", "phy"),
		series(one(4, 4), "__name__", "cpu", "region", "eu"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Series: 4, Rows: 4}, stats)

	cpu := req.Requests(rowbuilder.ContextOpt{})
	require.Len(t, cpu, 1)
	require.Equal(t, "cpu", cpu[0].TableName)
	require.Equal(t, []string{rowbuilder.TimestampColumn, rowbuilder.ValueColumn, "host", "region"}, names(cpu[0].Rows.Schema))
	require.Len(t, cpu[0].Rows.Rows, 2)

	mem := req.Requests(rowbuilder.ContextOpt{Schema: "db1"})
	require.Len(t, mem, 1)
	require.Equal(t, "mem", mem[0].TableName)

	phy := req.Requests(rowbuilder.ContextOpt{PhysicalTable: "phy"})
	require.Len(t, phy, 1)
	require.Equal(t, []string{rowbuilder.TimestampColumn, rowbuilder.ValueColumn, "host"}, names(phy[0].Rows.Schema))
}

func TestIngest_DefaultsApply(t *testing.T) {
	in := &Ingestor{Options: Options{DefaultSchema: "public", DefaultPhysicalTable: "greptime_physical_table"}}
	req, _, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "up"),
		series(one(1, 1), "__name__", "up", "__database__", "other"),
	})
	require.NoError(t, err)
	require.Len(t, req.Requests(rowbuilder.ContextOpt{Schema: "public", PhysicalTable: "greptime_physical_table"}), 1)
	require.Len(t, req.Requests(rowbuilder.ContextOpt{Schema: "other", PhysicalTable: "greptime_physical_table"}), 1)
}

/*
TestIngest_StrictDecodeErrorSkipsSeries feeds an invalid label value in the
middle of a batch and checks that only that series is lost.
*/
func TestIngest_StrictDecodeErrorSkipsSeries(t *testing.T) {
	bad := series(one(2, 2), "__name__", "cpu")
	bad.Labels = append(bad.Labels, rowbuilder.Label{Name: []byte("host"), Value: []byte{0xff}})

	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetLevel(logrus.DebugLevel)

	in := &Ingestor{Logger: logger, Job: "strict"}
	req, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu", "host", "a"),
		bad,
		series(one(3, 3), "__name__", "cpu", "host", "c"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Series: 3, Rows: 2, Dropped: 1, DecodeErrors: 1}, stats)
	require.Equal(t, 2, req.TotalRows())
	require.Contains(t, buf.String(), "series dropped")
	require.Contains(t, buf.String(), "label=host")

	in.Options.Mode = rowbuilder.Lossy
	req, stats, err = in.Ingest(context.Background(), []rowbuilder.TimeSeries{bad})
	require.NoError(t, err)
	require.Equal(t, 0, stats.Dropped)
	require.Equal(t, rowbuilder.StringValue("�"), req.Requests(rowbuilder.ContextOpt{})[0].Rows.Rows[0].Values[2])
}

func TestIngest_MissingMetricNameDropped(t *testing.T) {
	in := &Ingestor{}
	req, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "host", "a"),
		series(one(1, 1), "__name__", "", "host", "a"),
	})
	require.NoError(t, err)
	require.Equal(t, 2, stats.Dropped)
	require.Equal(t, 0, stats.DecodeErrors)
	require.Equal(t, 0, req.Len())
}

func newIngestor(t *testing.T, yamlDoc string) *Ingestor {
	t.Helper()
	p, err := config.ParseYAML([]byte(yamlDoc))
	require.NoError(t, err)
	in, err := New(p, nil)
	require.NoError(t, err)
	return in
}

func TestIngest_WithChain(t *testing.T) {
	in := newIngestor(t, `
job: chain
processors:
  - select:
      fields: [__name__, host, "region, dc"]
  - letter: { field: host, method: upper, ignore_missing: true }
`)
	require.Len(t, in.Chain, 2)

	req, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu", "host", "a", "region", "eu", "noise", "x"),
		series(one(2, 2), "__name__", "cpu", "region", "us"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Series: 2, Rows: 2}, stats)

	reqs := req.Requests(rowbuilder.ContextOpt{})
	require.Len(t, reqs, 1)
	require.Equal(t, []string{rowbuilder.TimestampColumn, rowbuilder.ValueColumn, "dc", "host"}, names(reqs[0].Rows.Schema))
	require.Equal(t, []rowbuilder.Value{
		rowbuilder.TimestampMillisecondValue(1), rowbuilder.F64Value(1), rowbuilder.StringValue("eu"), rowbuilder.StringValue("A"),
	}, reqs[0].Rows.Rows[0].Values)
	require.Equal(t, []rowbuilder.Value{
		rowbuilder.TimestampMillisecondValue(2), rowbuilder.F64Value(2), rowbuilder.StringValue("us"), nil,
	}, reqs[0].Rows.Rows[1].Values)
}

func TestIngest_ChainFailureDropsRecord(t *testing.T) {
	in := newIngestor(t, `
job: chain
processors:
  - require: { field: host }
`)
	_, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu", "host", "a"),
		series(one(2, 2), "__name__", "cpu"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Series: 2, Rows: 1, Dropped: 1}, stats)
}

func TestIngest_SelectDropsName(t *testing.T) {
	in := newIngestor(t, `
job: chain
processors:
  - select: { field: host }
`)
	_, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu", "host", "a"),
	})
	require.NoError(t, err)
	require.Equal(t, 1, stats.Dropped)
}

// rawBytesStage stores a fixed byte value under key.
type rawBytesStage struct {
	key string
	val []byte
}

func (rawBytesStage) Kind() string        { return "raw_bytes" }
func (rawBytesStage) IgnoreMissing() bool { return false }
func (s rawBytesStage) Exec(v records.Value) (records.Value, error) {
	obj := v.(records.Object)
	obj[s.key] = records.Bytes(s.val)
	return obj, nil
}

func TestIngest_ChainBytesDecodedUnderMode(t *testing.T) {
	chain := processor.Chain{rawBytesStage{key: "host", val: []byte{'a', 0xff}}}

	in := &Ingestor{Chain: chain}
	req, stats, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu"),
	})
	require.NoError(t, err)
	require.Equal(t, Stats{Series: 1, Dropped: 1, DecodeErrors: 1}, stats)
	require.Equal(t, 0, req.Len())

	in.Options.Mode = rowbuilder.Lossy
	req, stats, err = in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu"),
	})
	require.NoError(t, err)
	require.Equal(t, 0, stats.Dropped)
	require.Equal(t, rowbuilder.StringValue("a\uFFFD"), req.Requests(rowbuilder.ContextOpt{})[0].Rows.Rows[0].Values[2])
}

func TestNew_Errors(t *testing.T) {
	_, err := New(config.Pipeline{Job: "x", Ingest: config.Ingest{ValidationMode: "loose"}}, nil)
	require.Error(t, err)

	_, err = New(config.Pipeline{Job: "x", Processors: []config.Transform{{Kind: "nope"}}}, nil)
	require.ErrorIs(t, err, processor.ErrConfig)
}

func TestIngest_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	in := &Ingestor{}
	req, _, err := in.Ingest(ctx, []rowbuilder.TimeSeries{series(one(1, 1), "__name__", "cpu")})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 0, req.Len())
}

/*
TestIngest_ConcurrentCycles runs cycles in parallel on one Ingestor and
checks each result is independent of the others.
*/
func TestIngest_ConcurrentCycles(t *testing.T) {
	in := &Ingestor{Options: Options{LabelHint: 4, RowHint: 8}}
	var wg sync.WaitGroup
	errs := make([]error, 16)
	rows := make([]int, 16)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			batch := make([]rowbuilder.TimeSeries, i+1)
			for j := range batch {
				batch[j] = series(one(int64(j), 1), "__name__", "m", "worker", "w")
			}
			req, _, err := in.Ingest(context.Background(), batch)
			errs[i] = err
			rows[i] = req.TotalRows()
		}(i)
	}
	wg.Wait()
	for i := range errs {
		require.NoError(t, errs[i])
		require.Equal(t, i+1, rows[i])
	}
}

type countingBackend struct {
	mu       sync.Mutex
	counters map[string]float64
}

func (c *countingBackend) IncCounter(name string, delta float64, labels metrics.Labels) {
	c.mu.Lock()
	defer c.mu.Unlock()
	key := name
	if k := labels["kind"]; k != "" {
		key += "/" + k
	}
	c.counters[key] += delta
}
func (c *countingBackend) ObserveHistogram(string, float64, metrics.Labels) {}
func (c *countingBackend) Flush() error                                     { return nil }

func TestIngest_RecordsMetrics(t *testing.T) {
	cb := &countingBackend{counters: map[string]float64{}}
	metrics.SetBackend(cb)

	in := &Ingestor{Job: "m"}
	_, _, err := in.Ingest(context.Background(), []rowbuilder.TimeSeries{
		series(one(1, 1), "__name__", "cpu"),
		series(one(1, 1), "__name__", "mem"),
		series(one(1, 1), "nope", "x"),
	})
	require.NoError(t, err)

	cb.mu.Lock()
	defer cb.mu.Unlock()
	require.Equal(t, float64(3), cb.counters[metrics.RecordsTotal+"/"+metrics.KindSeries])
	require.Equal(t, float64(2), cb.counters[metrics.RecordsTotal+"/"+metrics.KindRows])
	require.Equal(t, float64(1), cb.counters[metrics.RecordsTotal+"/"+metrics.KindDropped])
	require.Equal(t, float64(2), cb.counters[metrics.BatchesTotal])
	require.Equal(t, float64(2), cb.counters[metrics.StepTotal])
}
