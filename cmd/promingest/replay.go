package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/apache/arrow-go/v18/arrow/memory"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"tsingest/internal/ingest"
	"tsingest/internal/rowbuilder"
)

const maxLineSize = 64 << 20

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay JSON-lines write requests through the ingestion core.",
	Long: `Replay reads one write request per line:

  {"timeseries":[{"labels":[{"name":"__name__","value":"cpu"}],"samples":[{"timestamp":1,"value":0.5}]}]}

Each line is one ingestion cycle. Cycles run in parallel and their batches are
merged in input order before being reported.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := loadPipeline(GetString(cmd, "config"))
		if err != nil {
			return err
		}
		if v := GetString(cmd, "validation"); v != "" {
			p.Ingest.ValidationMode = v
		}
		workers := GetInt(cmd, "workers")
		if workers <= 0 {
			workers = p.Runtime.Workers
		}

		flush := setupMetrics(cmd, p.Job)
		defer flush()

		in, err := ingest.New(p, log.StandardLogger())
		if err != nil {
			return err
		}
		opts := replayOptions{
			input:   GetString(cmd, "input"),
			workers: workers,
			format:  GetString(cmd, "format"),
			outDir:  GetString(cmd, "out"),
		}
		return runReplay(cmd.Context(), in, opts, cmd.OutOrStdout())
	},
}

func init() {
	replayCmd.Flags().StringP("input", "i", "-", "JSON-lines input file, - for stdin")
	replayCmd.Flags().IntP("workers", "w", 0, "parallel cycles (default runtime.workers, then 1)")
	replayCmd.Flags().String("validation", "", "override ingest.validation_mode (strict, lossy, unchecked)")
	replayCmd.Flags().StringP("format", "f", "summary", "output format: summary, json or arrow")
	replayCmd.Flags().StringP("out", "o", ".", "output directory for --format arrow")
	addMetricsFlags(replayCmd)
	rootCmd.AddCommand(replayCmd)
}

type replayOptions struct {
	input   string
	workers int
	format  string
	outDir  string
}

type wireLabel struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type wireSample struct {
	Timestamp int64   `json:"timestamp"`
	Value     float64 `json:"value"`
}

type wireSeries struct {
	Labels  []wireLabel  `json:"labels"`
	Samples []wireSample `json:"samples"`
}

type wireRequest struct {
	TimeSeries []wireSeries `json:"timeseries"`
}

func (w wireRequest) series() []rowbuilder.TimeSeries {
	out := make([]rowbuilder.TimeSeries, len(w.TimeSeries))
	for i, s := range w.TimeSeries {
		ts := rowbuilder.TimeSeries{
			Labels:  make([]rowbuilder.Label, len(s.Labels)),
			Samples: make([]rowbuilder.Sample, len(s.Samples)),
		}
		for j, l := range s.Labels {
			ts.Labels[j] = rowbuilder.Label{Name: []byte(l.Name), Value: []byte(l.Value)}
		}
		for j, smp := range s.Samples {
			ts.Samples[j] = rowbuilder.Sample{Timestamp: smp.Timestamp, Value: smp.Value}
		}
		out[i] = ts
	}
	return out
}

// readRequests decodes every non-empty line of r.
func readRequests(r io.Reader) ([][]rowbuilder.TimeSeries, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	var out [][]rowbuilder.TimeSeries
	line := 0
	for sc.Scan() {
		line++
		b := sc.Bytes()
		if len(b) == 0 {
			continue
		}
		var req wireRequest
		if err := json.Unmarshal(b, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, req.series())
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return out, nil
}

func openInput(path string) (io.ReadCloser, error) {
	if path == "" || path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	adviseSequential(f)
	return f, nil
}

// replayResult is the merged output of every cycle.
type replayResult struct {
	Req   rowbuilder.ContextReq
	Stats ingest.Stats
}

// replay runs one cycle per request on up to workers goroutines and merges
// the batches in request order.
func replay(ctx context.Context, in *ingest.Ingestor, reqs [][]rowbuilder.TimeSeries, workers int) (replayResult, error) {
	if workers <= 0 {
		workers = 1
	}
	results := make([]replayResult, len(reqs))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range reqs {
		g.Go(func() error {
			req, stats, err := in.Ingest(gctx, reqs[i])
			if err != nil {
				return fmt.Errorf("request %d: %w", i, err)
			}
			results[i] = replayResult{Req: req, Stats: stats}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return replayResult{}, err
	}

	var out replayResult
	for i := range results {
		if err := out.Req.Merge(results[i].Req); err != nil {
			return replayResult{}, fmt.Errorf("request %d: %w", i, err)
		}
		out.Stats.Add(results[i].Stats)
	}
	return out, nil
}

func runReplay(ctx context.Context, in *ingest.Ingestor, opts replayOptions, out io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	switch opts.format {
	case "summary", "json", "arrow":
	default:
		return fmt.Errorf("unknown format %q, expect summary, json or arrow", opts.format)
	}

	rc, err := openInput(opts.input)
	if err != nil {
		return err
	}
	reqs, err := readRequests(rc)
	rc.Close()
	if err != nil {
		return err
	}

	start := time.Now()
	res, err := replay(ctx, in, reqs, opts.workers)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{
		"requests": len(reqs),
		"workers":  opts.workers,
		"series":   res.Stats.Series,
		"rows":     res.Stats.Rows,
		"dropped":  res.Stats.Dropped,
		"duration": time.Since(start).Truncate(time.Millisecond),
	}).Info("replay: done")

	switch opts.format {
	case "json":
		return writeJSON(out, res)
	case "arrow":
		return writeArrow(memory.NewGoAllocator(), opts.outDir, res.Req, out)
	default:
		return writeSummary(out, res)
	}
}
