package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tsingest/internal/processor"
	"tsingest/pkg/records"
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the processor chain over JSON-lines records.",
	Long: `Process reads one JSON value per line, runs it through the pipeline's
processor chain and writes each surviving record as one JSON line. Records the
chain rejects are logged and skipped.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, _, err := loadPipeline(GetString(cmd, "config"))
		if err != nil {
			return err
		}
		chain, err := processor.Build(p.Processors)
		if err != nil {
			return err
		}
		rc, err := openInput(GetString(cmd, "input"))
		if err != nil {
			return err
		}
		defer rc.Close()
		_, err = runProcess(chain, rc, cmd.OutOrStdout())
		return err
	},
}

func init() {
	processCmd.Flags().StringP("input", "i", "-", "JSON-lines input file, - for stdin")
	rootCmd.AddCommand(processCmd)
}

type processStats struct {
	Records int
	Kept    int
	Dropped int
}

// runProcess executes chain on every non-empty line of r. Malformed JSON
// aborts the run; chain failures only drop the record.
func runProcess(chain processor.Chain, r io.Reader, w io.Writer) (processStats, error) {
	var st processStats
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 1<<20), maxLineSize)
	bw := bufio.NewWriter(w)
	enc := json.NewEncoder(bw)

	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.UseNumber()
		var raw any
		if err := dec.Decode(&raw); err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}
		v, err := records.FromAny(raw)
		if err != nil {
			return st, fmt.Errorf("line %d: %w", line, err)
		}

		st.Records++
		out, err := chain.Exec(v)
		if err != nil {
			st.Dropped++
			entry := log.WithField("line", line).WithError(err)
			var se *processor.StageError
			if errors.As(err, &se) {
				entry = entry.WithFields(log.Fields{"stage": se.Index, "kind": se.Kind})
			}
			entry.Warn("process: record dropped")
			continue
		}
		if err := enc.Encode(records.ToAny(out)); err != nil {
			return st, err
		}
		st.Kept++
	}
	if err := sc.Err(); err != nil {
		return st, fmt.Errorf("read input: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return st, err
	}
	log.WithFields(log.Fields{
		"records": st.Records,
		"kept":    st.Kept,
		"dropped": st.Dropped,
	}).Info("process: done")
	return st, nil
}
