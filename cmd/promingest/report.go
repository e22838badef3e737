package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/apache/arrow-go/v18/arrow/memory"

	"tsingest/internal/rowbuilder"
	"tsingest/internal/rowbuilder/arrowconv"
)

func writeSummary(w io.Writer, res replayResult) error {
	s := res.Stats
	if _, err := fmt.Fprintf(w, "series=%d rows=%d dropped=%d decode_errors=%d\n",
		s.Series, s.Rows, s.Dropped, s.DecodeErrors); err != nil {
		return err
	}
	for _, e := range res.Req.Entries() {
		for _, r := range e.Requests {
			if _, err := fmt.Fprintf(w, "schema=%q physical_table=%q table=%q rows=%d columns=%d tags=%s\n",
				e.Opt.Schema, e.Opt.PhysicalTable, r.TableName, len(r.Rows.Rows), len(r.Rows.Schema),
				strings.Join(tagNames(r.Rows.Schema), ",")); err != nil {
				return err
			}
		}
	}
	return nil
}

func tagNames(schema []rowbuilder.ColumnSchema) []string {
	var out []string
	for _, c := range schema {
		if c.SemanticType == rowbuilder.SemanticTag {
			out = append(out, c.Name)
		}
	}
	return out
}

type jsonColumn struct {
	Name     string `json:"name"`
	DataType string `json:"data_type"`
	Semantic string `json:"semantic_type"`
}

type jsonTable struct {
	Schema        string       `json:"schema,omitempty"`
	PhysicalTable string       `json:"physical_table,omitempty"`
	Table         string       `json:"table"`
	Fingerprint   string       `json:"schema_fingerprint"`
	Columns       []jsonColumn `json:"columns"`
	Rows          [][]any      `json:"rows"`
}

type jsonReport struct {
	Series       int         `json:"series"`
	Rows         int         `json:"rows"`
	Dropped      int         `json:"dropped"`
	DecodeErrors int         `json:"decode_errors"`
	Tables       []jsonTable `json:"tables"`
}

func cellJSON(v rowbuilder.Value) any {
	switch x := v.(type) {
	case rowbuilder.TimestampMillisecondValue:
		return int64(x)
	case rowbuilder.F64Value:
		return float64(x)
	case rowbuilder.I64Value:
		return int64(x)
	case rowbuilder.StringValue:
		return string(x)
	case rowbuilder.BoolValue:
		return bool(x)
	}
	return nil
}

func writeJSON(w io.Writer, res replayResult) error {
	rep := jsonReport{
		Series:       res.Stats.Series,
		Rows:         res.Stats.Rows,
		Dropped:      res.Stats.Dropped,
		DecodeErrors: res.Stats.DecodeErrors,
		Tables:       []jsonTable{},
	}
	for _, e := range res.Req.Entries() {
		for _, r := range e.Requests {
			t := jsonTable{
				Schema:        e.Opt.Schema,
				PhysicalTable: e.Opt.PhysicalTable,
				Table:         r.TableName,
				Fingerprint:   fmt.Sprintf("%016x", rowbuilder.Fingerprint(r.Rows.Schema)),
				Columns:       make([]jsonColumn, len(r.Rows.Schema)),
				Rows:          make([][]any, len(r.Rows.Rows)),
			}
			for i, c := range r.Rows.Schema {
				t.Columns[i] = jsonColumn{Name: c.Name, DataType: c.DataType.String(), Semantic: c.SemanticType.String()}
			}
			for i, row := range r.Rows.Rows {
				vals := make([]any, len(row.Values))
				for j, v := range row.Values {
					vals[j] = cellJSON(v)
				}
				t.Rows[i] = vals
			}
			rep.Tables = append(rep.Tables, t)
		}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(rep)
}

// arrowFileName builds "<schema>.<physical_table>.<table>.arrow", leaving out
// unset parts.
func arrowFileName(opt rowbuilder.ContextOpt, table string) string {
	parts := make([]string, 0, 3)
	for _, p := range []string{opt.Schema, opt.PhysicalTable, table} {
		if p != "" {
			parts = append(parts, strings.ReplaceAll(p, string(filepath.Separator), "_"))
		}
	}
	return strings.Join(parts, ".") + ".arrow"
}

// writeArrow writes one Arrow IPC file per table into dir and lists the files
// on w.
func writeArrow(mem memory.Allocator, dir string, req rowbuilder.ContextReq, w io.Writer) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	for _, e := range req.Entries() {
		for _, r := range e.Requests {
			path := filepath.Join(dir, arrowFileName(e.Opt, r.TableName))
			if err := writeArrowFile(mem, path, r); err != nil {
				return err
			}
			if _, err := fmt.Fprintln(w, path); err != nil {
				return err
			}
		}
	}
	return nil
}

func writeArrowFile(mem memory.Allocator, path string, r rowbuilder.RowInsertRequest) error {
	rec, err := arrowconv.Record(mem, r)
	if err != nil {
		return err
	}
	defer rec.Release()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	fw, err := ipc.NewFileWriter(f, ipc.WithSchema(rec.Schema()), ipc.WithAllocator(mem))
	if err != nil {
		f.Close()
		return fmt.Errorf("arrow writer %s: %w", path, err)
	}
	if err := fw.Write(rec); err != nil {
		fw.Close()
		f.Close()
		return fmt.Errorf("arrow write %s: %w", path, err)
	}
	if err := fw.Close(); err != nil {
		f.Close()
		return fmt.Errorf("arrow close %s: %w", path, err)
	}
	return f.Close()
}
