// Command promingest validates pipeline files, runs processor chains over
// JSON records and replays recorded write requests through the ingestion core.
//
//	promingest validate --config pipeline.yaml
//	promingest replay --config pipeline.yaml --input writes.jsonl --workers 4
//	promingest process --config pipeline.yaml --input records.jsonl
package main

import (
	"fmt"
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tsingest/internal/config"
)

var rootCmd = &cobra.Command{
	Use:           "promingest",
	Short:         "Schema-on-write ingestion of labelled time series.",
	Long:          "Turns remote-write style label sets and samples into column-typed row batches.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level, err := log.ParseLevel(GetString(cmd, "log-level"))
		if err != nil {
			return err
		}
		log.SetOutput(os.Stderr)
		log.SetLevel(level)
		return nil
	},
}

// Execute runs the root command. It is called once from main.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "promingest:", err)
		os.Exit(1)
	}
}

func main() {
	Execute()
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", "", "pipeline config path (.json, .yaml or .yml)")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// GetString returns a string flag, panicking on a programming error.
func GetString(cmd *cobra.Command, name string) string {
	v, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(err)
	}
	return v
}

// GetInt returns an int flag, panicking on a programming error.
func GetInt(cmd *cobra.Command, name string) int {
	v, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(err)
	}
	return v
}

// loadPipeline reads the pipeline named by --config and reports its issues.
// Warnings are logged; any error-severity issue fails the load.
func loadPipeline(path string) (config.Pipeline, []config.Issue, error) {
	if path == "" {
		return config.Pipeline{}, nil, fmt.Errorf("--config is required")
	}
	p, err := config.Load(path)
	if err != nil {
		return config.Pipeline{}, nil, err
	}
	issues := config.ValidatePipeline(p)
	for _, iss := range issues {
		entry := log.WithField("path", iss.Path)
		if iss.Severity == config.SeverityError {
			entry.Error(iss.Message)
		} else {
			entry.Warn(iss.Message)
		}
	}
	if config.HasErrors(issues) {
		msgs := make([]string, 0, len(issues))
		for _, iss := range issues {
			if iss.Severity == config.SeverityError {
				msgs = append(msgs, iss.Error())
			}
		}
		return p, issues, fmt.Errorf("invalid pipeline %s: %s", path, strings.Join(msgs, "; "))
	}
	return p, issues, nil
}
