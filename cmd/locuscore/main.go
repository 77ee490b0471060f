package main

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"locuscore/internal/cli"
	"locuscore/internal/config"
	"locuscore/internal/metrics"
)

func main() {
	metrics.Register(prometheus.DefaultRegisterer)

	// Long-running invocations (bulk imports, rollbacks) can expose their
	// progress counters while they run.
	if cfg, err := config.FromEnv(); err == nil && cfg.MetricsListenAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			if err := http.ListenAndServe(cfg.MetricsListenAddr, mux); err != nil {
				fmt.Fprintf(os.Stderr, "metrics listener: %v\n", err)
			}
		}()
	}

	root := cli.NewRootCommand()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(cli.GetExitCode(err))
	}
}
