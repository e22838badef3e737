package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/stretchr/testify/require"

	"tsingest/internal/config"
	"tsingest/internal/ingest"
	"tsingest/internal/processor"
	"tsingest/internal/rowbuilder"
)

const testPipeline = `job: replay_test
ingest:
  validation_mode: strict
processors:
  - select:
      fields: [__name__, __database__, host, "region, dc"]
runtime:
  workers: 2
`

const testInput = `{"timeseries":[{"labels":[{"name":"__name__","value":"cpu"},{"name":"host","value":"a"}],"samples":[{"timestamp":1,"value":0.5}]}]}

{"timeseries":[{"labels":[{"name":"__name__","value":"cpu"},{"name":"region","value":"eu"},{"name":"noise","value":"x"}],"samples":[{"timestamp":2,"value":1},{"timestamp":3,"value":2}]}]}
{"timeseries":[{"labels":[{"name":"__name__","value":"mem"},{"name":"__database__","value":"db1"}],"samples":[{"timestamp":4,"value":3}]},{"labels":[{"name":"host","value":"orphan"}],"samples":[{"timestamp":5,"value":4}]}]}
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestRunValidate(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	require.NoError(t, runValidate(writeFile(t, dir, "p.yaml", testPipeline), &out))
	require.Contains(t, out.String(), `pipeline "replay_test" is valid (processors: select)`)

	out.Reset()
	bad := writeFile(t, dir, "bad.yaml", "job: x\nprocessors:\n  - select: { field: a, type: sideways }\n")
	err := runValidate(bad, &out)
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown select type")

	out.Reset()
	lint := writeFile(t, dir, "lint.json", `{"job": "", "processors": [{"kind": "mystery"}]}`)
	err = runValidate(lint, &out)
	require.Error(t, err)
	require.Contains(t, out.String(), "warning: processors[0].kind")
	require.Contains(t, out.String(), "error: job")

	require.Error(t, runValidate("", &out))
}

func newTestIngestor(t *testing.T) *ingest.Ingestor {
	t.Helper()
	p, err := config.ParseYAML([]byte(testPipeline))
	require.NoError(t, err)
	in, err := ingest.New(p, nil)
	require.NoError(t, err)
	return in
}

func TestRunReplay_Summary(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "in.jsonl", testInput)

	var out bytes.Buffer
	err := runReplay(context.Background(), newTestIngestor(t), replayOptions{input: input, workers: 3, format: "summary"}, &out)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Equal(t, []string{
		"series=4 rows=4 dropped=1 decode_errors=0",
		`schema="" physical_table="" table="cpu" rows=3 columns=4 tags=host,dc`,
		`schema="db1" physical_table="" table="mem" rows=1 columns=2 tags=`,
	}, lines)
}

func TestRunReplay_JSON(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "in.jsonl", testInput)

	var out bytes.Buffer
	err := runReplay(context.Background(), newTestIngestor(t), replayOptions{input: input, workers: 1, format: "json"}, &out)
	require.NoError(t, err)

	var rep jsonReport
	require.NoError(t, json.Unmarshal(out.Bytes(), &rep))
	require.Len(t, rep.Tables, 2)

	cpu := rep.Tables[0]
	require.Equal(t, "cpu", cpu.Table)
	require.Equal(t, jsonColumn{Name: rowbuilder.TimestampColumn, DataType: "timestamp_millisecond", Semantic: "timestamp"}, cpu.Columns[0])
	require.Equal(t, jsonColumn{Name: "dc", DataType: "string", Semantic: "tag"}, cpu.Columns[3])
	require.Equal(t, []any{float64(1), 0.5, "a", nil}, cpu.Rows[0])
	require.Equal(t, []any{float64(3), float64(2), nil, "eu"}, cpu.Rows[2])
	require.Equal(t, "db1", rep.Tables[1].Schema)
	require.Len(t, cpu.Fingerprint, 16)
	require.NotEqual(t, cpu.Fingerprint, rep.Tables[1].Fingerprint)
}

func TestRunReplay_Arrow(t *testing.T) {
	dir := t.TempDir()
	input := writeFile(t, dir, "in.jsonl", testInput)
	outDir := filepath.Join(dir, "out")

	var out bytes.Buffer
	err := runReplay(context.Background(), newTestIngestor(t), replayOptions{input: input, workers: 2, format: "arrow", outDir: outDir}, &out)
	require.NoError(t, err)
	require.Equal(t, filepath.Join(outDir, "cpu.arrow")+"\n"+filepath.Join(outDir, "db1.mem.arrow")+"\n", out.String())

	f, err := os.Open(filepath.Join(outDir, "cpu.arrow"))
	require.NoError(t, err)
	defer f.Close()
	r, err := ipc.NewFileReader(f)
	require.NoError(t, err)
	defer r.Close()
	require.Equal(t, 1, r.NumRecords())
	rec, err := r.Record(0)
	require.NoError(t, err)
	require.Equal(t, int64(3), rec.NumRows())
	require.Equal(t, int64(4), rec.NumCols())
}

func TestRunReplay_Errors(t *testing.T) {
	dir := t.TempDir()
	in := newTestIngestor(t)

	err := runReplay(context.Background(), in, replayOptions{input: filepath.Join(dir, "missing"), format: "summary"}, &bytes.Buffer{})
	require.Error(t, err)

	err = runReplay(context.Background(), in, replayOptions{input: writeFile(t, dir, "x", "{}"), format: "xml"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "unknown format")

	err = runReplay(context.Background(), in, replayOptions{input: writeFile(t, dir, "bad.jsonl", "{\"timeseries\": 3}\n"), format: "json"}, &bytes.Buffer{})
	require.ErrorContains(t, err, "line 1")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = runReplay(ctx, in, replayOptions{input: writeFile(t, dir, "ok.jsonl", testInput), format: "summary"}, &bytes.Buffer{})
	require.ErrorIs(t, err, context.Canceled)
}

func TestArrowFileName(t *testing.T) {
	require.Equal(t, "cpu.arrow", arrowFileName(rowbuilder.ContextOpt{}, "cpu"))
	require.Equal(t, "s.p.cpu.arrow", arrowFileName(rowbuilder.ContextOpt{Schema: "s", PhysicalTable: "p"}, "cpu"))
	require.Equal(t, "a_b.arrow", arrowFileName(rowbuilder.ContextOpt{}, "a/b"))
}

func TestRunProcess(t *testing.T) {
	p, err := config.ParseYAML([]byte(`job: records
processors:
  - letter: { field: host, method: upper }
  - require: { field: id }
`))
	require.NoError(t, err)
	chain, err := processor.Build(p.Processors)
	require.NoError(t, err)

	in := strings.NewReader(`{"host":"a","id":1,"x":2.5}
{"host":"b"}

[1,2]
{"host":"c","id":"x"}
`)
	var out bytes.Buffer
	st, err := runProcess(chain, in, &out)
	require.NoError(t, err)
	require.Equal(t, processStats{Records: 4, Kept: 2, Dropped: 2}, st)
	require.Equal(t, `{"host":"A","id":1,"x":2.5}`+"\n"+`{"host":"C","id":"x"}`+"\n", out.String())

	_, err = runProcess(chain, strings.NewReader("{\"host\": \n"), &bytes.Buffer{})
	require.ErrorContains(t, err, "line 1")
}
