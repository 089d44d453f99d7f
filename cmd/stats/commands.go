// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianStats/pkg/logging"
	"github.com/AleutianAI/AleutianStats/services/stats"
	"github.com/AleutianAI/AleutianStats/services/stats/cluster"
	"github.com/AleutianAI/AleutianStats/services/stats/colony"
	"github.com/AleutianAI/AleutianStats/services/stats/conjoint"
	"github.com/AleutianAI/AleutianStats/services/stats/dea"
	"github.com/AleutianAI/AleutianStats/services/stats/descriptive"
	"github.com/AleutianAI/AleutianStats/services/stats/hypothesis"
	"github.com/AleutianAI/AleutianStats/services/stats/market"
	"github.com/AleutianAI/AleutianStats/services/stats/mcdm"
	"github.com/AleutianAI/AleutianStats/services/stats/netstat"
	"github.com/AleutianAI/AleutianStats/services/stats/regress"
	"github.com/AleutianAI/AleutianStats/services/stats/spatial"
	"github.com/AleutianAI/AleutianStats/services/stats/survival"
	"github.com/AleutianAI/AleutianStats/services/stats/tseries"
)

// buildRegistry wires every analysis package into one registry.
func buildRegistry() (*stats.Registry, error) {
	reg := stats.NewRegistry()
	groups := [][]stats.Analysis{
		descriptive.Analyses(),
		hypothesis.Analyses(),
		regress.Analyses(),
		cluster.Analyses(),
		conjoint.Analyses(),
		survival.Analyses(),
		spatial.Analyses(),
		dea.Analyses(),
		netstat.Analyses(),
		mcdm.Analyses(),
		market.Analyses(),
		colony.Analyses(),
		tseries.Analyses(),
	}
	for _, g := range groups {
		if err := reg.Register(g...); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// run builds the cobra tree and executes it; the exit code follows
// the stdin/stdout/stderr contract of each analysis.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	var (
		logLevel string
		logDir   string
		logJSON  bool
		quiet    bool
	)
	exitCode := 0

	root := &cobra.Command{
		Use:           "stats",
		Short:         "Stateless statistical analysis over JSON on stdin",
		Long:          "Each subcommand reads one JSON document ({\"data\": [...], ...params}) from stdin,\nruns a single analysis, and writes one JSON document to stdout.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&logDir, "log-dir", "", "directory for JSON log files (disabled when empty)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "write structured JSON logs to --log-dir")
	root.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress stderr log output")

	newLogger := func() *logging.Logger {
		return logging.New(logging.Config{
			Level:   parseLevel(logLevel),
			LogDir:  logDir,
			Service: "stats",
			JSON:    logJSON,
			Quiet:   quiet,
		})
	}

	reg, err := buildRegistry()
	if err != nil {
		fmt.Fprintf(stderr, "{\"error\": %q}\n", err.Error())
		return 1
	}

	for _, name := range reg.Names() {
		a, _ := reg.Get(name)
		root.AddCommand(&cobra.Command{
			Use:   a.Name(),
			Short: a.Summary(),
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, _ []string) {
				logger := newLogger()
				defer logger.Close()
				exitCode = stats.Execute(cmd.Context(), a, stdin, stdout, stderr, logger)
			},
		})
	}

	root.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List every available analysis",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			for _, name := range reg.Names() {
				a, _ := reg.Get(name)
				fmt.Fprintf(stdout, "%-16s %s\n", name, a.Summary())
			}
		},
	})

	root.SetArgs(args)
	if err := root.Execute(); err != nil {
		fmt.Fprintf(stderr, "{\"error\": %q}\n", err.Error())
		return 1
	}
	return exitCode
}

// parseLevel maps a flag value to a log level; unknown values fall
// back to Info.
func parseLevel(s string) logging.Level {
	switch s {
	case "debug":
		return logging.LevelDebug
	case "warn":
		return logging.LevelWarn
	case "error":
		return logging.LevelError
	default:
		return logging.LevelInfo
	}
}
