package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"tsingest/internal/processor"
	_ "tsingest/internal/processor/builtin"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check a pipeline file and build its processor chain.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runValidate(GetString(cmd, "config"), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

// runValidate lints the pipeline, then builds its chain so malformed stage
// options are reported too.
func runValidate(path string, out io.Writer) error {
	p, issues, err := loadPipeline(path)
	for _, iss := range issues {
		fmt.Fprintf(out, "%s: %s: %s\n", iss.Severity, iss.Path, iss.Message)
	}
	if err != nil {
		return err
	}

	chain, err := processor.Build(p.Processors)
	if err != nil {
		return fmt.Errorf("invalid pipeline %s: %w", path, err)
	}
	kinds := "none"
	if len(chain) > 0 {
		kinds = strings.Join(chain.Kinds(), " -> ")
	}
	fmt.Fprintf(out, "pipeline %q is valid (processors: %s)\n", p.Job, kinds)
	return nil
}
