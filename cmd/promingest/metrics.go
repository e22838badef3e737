package main

import (
	"os"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"tsingest/internal/metrics"
	"tsingest/internal/metrics/datadog"
	"tsingest/internal/metrics/prompush"
)

const (
	defaultPushgatewayURL = "http://localhost:9091"
	defaultStatsdAddr     = "127.0.0.1:8125"
)

func addMetricsFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-backend", "", "metrics backend: pushgateway, datadog or none (env METRICS_BACKEND)")
	cmd.Flags().String("pushgateway-url", "", "Pushgateway base URL (env PUSHGATEWAY_URL)")
	cmd.Flags().String("statsd-addr", "", "DogStatsD address (env DD_AGENT_ADDR)")
}

// flagOrEnv picks the flag value, then the environment, then def.
func flagOrEnv(cmd *cobra.Command, flag, env, def string) string {
	if v := GetString(cmd, flag); v != "" {
		return v
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

// setupMetrics installs the configured backend and returns the function that
// flushes it. A backend that fails to initialize leaves metrics disabled.
func setupMetrics(cmd *cobra.Command, job string) func() {
	name := strings.ToLower(flagOrEnv(cmd, "metrics-backend", "METRICS_BACKEND", "none"))
	entry := log.WithField("backend", name)

	var (
		b   metrics.Backend
		err error
	)
	switch name {
	case "pushgateway":
		url := flagOrEnv(cmd, "pushgateway-url", "PUSHGATEWAY_URL", defaultPushgatewayURL)
		entry = entry.WithField("url", url)
		b, err = prompush.NewBackend(job, url)
	case "datadog":
		addr := flagOrEnv(cmd, "statsd-addr", "DD_AGENT_ADDR", defaultStatsdAddr)
		entry = entry.WithField("addr", addr)
		b, err = datadog.NewBackend(datadog.Config{Addr: addr, GlobalTags: []string{"job:" + job}})
	case "", "none":
		entry.Debug("metrics: disabled")
		return func() {}
	default:
		entry.Warn("metrics: unknown backend; metrics disabled")
		return func() {}
	}
	if err != nil {
		entry.WithError(err).Warn("metrics: init failed; using nop")
		return func() {}
	}

	entry.Info("metrics: enabled")
	metrics.SetBackend(b)
	return func() {
		if err := metrics.Flush(); err != nil {
			entry.WithError(err).Warn("metrics: flush error")
		}
	}
}
