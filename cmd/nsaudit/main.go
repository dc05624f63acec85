// Copyright 2025 Esteban Alvarez. All Rights Reserved.
//
// Created: October 2025
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Command nsaudit audits and exports operational data from a hierarchical
// secrets-management cluster: a full namespace/mount inventory, and
// per-period activity and entity usage reports.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"nsaudit/internal/client"
	"nsaudit/internal/config"
	"nsaudit/internal/logging"
	"nsaudit/internal/metrics"
	"nsaudit/internal/orchestrator"
)

var (
	debug          bool
	metricsAddr    string
	namespaceFlag  string
	workersFlag    int
	noRateLimit    bool
	rateLimitBatch int
	rateLimitSleep int
	startDateFlag  string
	endDateFlag    string
)

func main() {
	root := &cobra.Command{
		Use:           "nsaudit",
		Short:         "Audit and export data from a hierarchical secrets-management cluster",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "if set, serve Prometheus metrics on this address")

	root.AddCommand(namespaceAuditCmd(), activityExportCmd(), entityExportCmd(), allCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func namespaceAuditCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "namespace-audit",
		Short: "Traverse the namespace tree and export a full mount inventory",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, ctx, cancel, err := setup()
			if err != nil {
				return err
			}
			defer cancel()
			return o.RunNamespaceAudit(ctx, auditOptions())
		},
	}
	addAuditFlags(cmd)
	return cmd
}

func activityExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "activity-export",
		Short: "Export client activity counts for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, ctx, cancel, err := setup()
			if err != nil {
				return err
			}
			defer cancel()
			return o.RunActivityExport(ctx, startDateFlag, endDateFlag)
		},
	}
	addDateFlags(cmd)
	return cmd
}

func entityExportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity-export",
		Short: "Export per-client entity records for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, ctx, cancel, err := setup()
			if err != nil {
				return err
			}
			defer cancel()
			return o.RunEntityExport(ctx, startDateFlag, endDateFlag)
		},
	}
	addDateFlags(cmd)
	return cmd
}

func allCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "all",
		Short: "Run the namespace audit and both period exports in sequence",
		RunE: func(cmd *cobra.Command, args []string) error {
			o, ctx, cancel, err := setup()
			if err != nil {
				return err
			}
			defer cancel()
			return o.RunAll(ctx, auditOptions(), startDateFlag, endDateFlag)
		},
	}
	addAuditFlags(cmd)
	addDateFlags(cmd)
	return cmd
}

func addAuditFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&namespaceFlag, "namespace", "n", "", "starting namespace path (default: root)")
	cmd.Flags().IntVarP(&workersFlag, "workers", "w", 4, "traversal worker pool size")
	cmd.Flags().BoolVar(&noRateLimit, "no-rate-limit", false, "bypass the batch-sleep rate limit")
	cmd.Flags().IntVar(&rateLimitBatch, "rate-limit-batch", 100, "namespaces processed between rate-limit sleeps")
	cmd.Flags().IntVar(&rateLimitSleep, "rate-limit-sleep", 3, "seconds slept at each rate-limit batch boundary")
}

func addDateFlags(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&startDateFlag, "start-date", "s", "", "period start date (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&endDateFlag, "end-date", "e", "", "period end date (YYYY-MM-DD)")
	_ = cmd.MarkFlagRequired("start-date")
	_ = cmd.MarkFlagRequired("end-date")
}

func auditOptions() orchestrator.NamespaceAuditOptions {
	return orchestrator.NamespaceAuditOptions{
		Namespace:             namespaceFlag,
		Workers:               workersFlag,
		RateLimitBatchSize:    rateLimitBatch,
		RateLimitSleepSeconds: rateLimitSleep,
		RateLimitDisabled:     noRateLimit,
	}
}

// setup resolves configuration, builds the logger and Server client, and
// returns a context cancelled on SIGINT/SIGTERM so the traversal engine
// can shut down cleanly instead of being killed mid-write.
func setup() (*orchestrator.Orchestrator, context.Context, context.CancelFunc, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, nil, err
	}
	if debug {
		cfg.Debug = true
	}

	format := logging.FormatConsole
	log := logging.New(cfg.Debug, format)

	if metricsAddr != "" {
		metrics.Serve(metricsAddr)
		log.Infow("metrics endpoint enabled", "addr", metricsAddr)
	}

	c := client.New(cfg, log)
	o := orchestrator.New(cfg, c, log)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	return o, ctx, cancel, nil
}
