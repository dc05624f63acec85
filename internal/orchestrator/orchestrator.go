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

// Package orchestrator wires the Server client to the traversal engine and
// the two exporters, and writes every artifact a subcommand produces.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"nsaudit/internal/activity"
	"nsaudit/internal/audit"
	"nsaudit/internal/client"
	"nsaudit/internal/config"
	"nsaudit/internal/entity"
	"nsaudit/internal/output"
)

// Orchestrator dispatches subcommands to the namespace-audit engine and the
// two period exporters, sharing one Server client across all three. The
// cluster name is not shared: each run resolves it through its own
// connection validation.
type Orchestrator struct {
	cfg    config.Config
	client *client.Client
	log    *zap.SugaredLogger
}

func New(cfg config.Config, c *client.Client, log *zap.SugaredLogger) *Orchestrator {
	return &Orchestrator{cfg: cfg, client: c, log: log}
}

// NamespaceAuditOptions configures one namespace-audit run.
type NamespaceAuditOptions struct {
	Namespace             string
	Workers               int
	RateLimitBatchSize    int
	RateLimitSleepSeconds int
	RateLimitDisabled     bool
}

// RunNamespaceAudit runs the traversal engine and writes its six artifacts.
// On interrupt, nothing is written, matching §7's "no partial output"
// contract.
func (o *Orchestrator) RunNamespaceAudit(ctx context.Context, opts NamespaceAuditOptions) error {
	engine := audit.New(o.client, o.log, audit.Options{
		Workers:               opts.Workers,
		RateLimitBatchSize:    opts.RateLimitBatchSize,
		RateLimitSleepSeconds: opts.RateLimitSleepSeconds,
		RateLimitDisabled:     opts.RateLimitDisabled,
	})

	clusterName, snapshot, stats, err := engine.Audit(ctx, opts.Namespace)
	if err != nil {
		var interrupted *audit.InterruptedError
		if errors.As(err, &interrupted) {
			o.log.Warnw("namespace audit interrupted, no output written")
			return err
		}
		return fmt.Errorf("namespace audit: %w", err)
	}

	now := time.Now()
	if err := writeNamespaceAuditArtifacts(o.cfg.OutputDir, clusterName, now, snapshot); err != nil {
		return fmt.Errorf("namespace audit: write artifacts: %w", err)
	}

	o.log.Infow("namespace audit complete",
		"processed", stats.Processed(),
		"errors", stats.Errors(),
		"duration", stats.Duration())
	return nil
}

// RunActivityExport fetches and writes the activity-period artifacts.
func (o *Orchestrator) RunActivityExport(ctx context.Context, start, end string) error {
	clusterName, err := o.client.ValidateConnection(ctx)
	if err != nil {
		return fmt.Errorf("activity export: %w", err)
	}

	exporter := activity.New(o.client, o.log)
	result, err := exporter.Run(ctx, start, end)
	if err != nil {
		return err
	}
	return exporter.Write(o.cfg.OutputDir, clusterName, time.Now(), result)
}

// RunEntityExport fetches and writes the entity-period artifacts.
func (o *Orchestrator) RunEntityExport(ctx context.Context, start, end string) error {
	clusterName, err := o.client.ValidateConnection(ctx)
	if err != nil {
		return fmt.Errorf("entity export: %w", err)
	}

	exporter := entity.New(o.client, o.log)
	result, err := exporter.Run(ctx, start, end)
	if err != nil {
		return err
	}
	return exporter.Write(o.cfg.OutputDir, clusterName, time.Now(), result)
}

// RunAll validates the connection, then runs the namespace audit followed
// by both exporters in sequence. Each of the three runs validates the
// connection again and resolves the cluster name on its own.
func (o *Orchestrator) RunAll(ctx context.Context, auditOpts NamespaceAuditOptions, start, end string) error {
	if _, err := o.client.ValidateConnection(ctx); err != nil {
		return fmt.Errorf("all: %w", err)
	}
	if err := o.RunNamespaceAudit(ctx, auditOpts); err != nil {
		return err
	}
	if err := o.RunActivityExport(ctx, start, end); err != nil {
		return err
	}
	return o.RunEntityExport(ctx, start, end)
}

func writeNamespaceAuditArtifacts(dir, cluster string, t time.Time, snapshot audit.Snapshot) error {
	if err := output.WriteJSON(dir+"/"+output.Name(cluster, "namespaces", "json", t), snapshot.Namespaces); err != nil {
		return err
	}
	if err := output.WriteJSON(dir+"/"+output.Name(cluster, "auth-methods", "json", t), snapshot.AuthMethods); err != nil {
		return err
	}
	if err := output.WriteJSON(dir+"/"+output.Name(cluster, "secrets-engines", "json", t), snapshot.SecretEngines); err != nil {
		return err
	}

	if err := output.WriteCSV(dir+"/"+output.Name(cluster, "summary-namespaces", "csv", t), namespaceRows(snapshot.Namespaces), []string{"path", "id", "custom_metadata"}); err != nil {
		return err
	}

	authRows, authHeaders := mountSummary(snapshot.AuthMethods)
	if err := output.WriteCSV(dir+"/"+output.Name(cluster, "summary-auth-methods", "csv", t), authRows, authHeaders); err != nil {
		return err
	}

	secretRows, secretHeaders := mountSummary(snapshot.SecretEngines)
	return output.WriteCSV(dir+"/"+output.Name(cluster, "summary-secrets-engines", "csv", t), secretRows, secretHeaders)
}

func namespaceRows(namespaces map[string]audit.NamespaceInfo) []map[string]any {
	rows := make([]map[string]any, 0, len(namespaces))
	for path, info := range namespaces {
		rows = append(rows, map[string]any{
			"path":            displayPath(path),
			"id":              info.ID,
			"custom_metadata": info.CustomMetadata,
		})
	}
	return rows
}

// mountSummary counts mount types per namespace, building one row per
// namespace with one column per observed type. Missing cells default to 0.
func mountSummary(byNamespace map[string]map[string]audit.MountInfo) ([]map[string]any, []string) {
	typeSet := map[string]bool{}
	rows := make([]map[string]any, 0, len(byNamespace))

	for namespace, mounts := range byNamespace {
		row := map[string]any{"namespace": displayPath(namespace)}
		for _, mount := range mounts {
			mountType, _ := mount["type"].(string)
			if mountType == "" {
				continue
			}
			typeSet[mountType] = true
			if count, ok := row[mountType].(int); ok {
				row[mountType] = count + 1
			} else {
				row[mountType] = 1
			}
		}
		rows = append(rows, row)
	}

	types := make([]string, 0, len(typeSet))
	for t := range typeSet {
		types = append(types, t)
	}
	sort.Strings(types)

	for _, row := range rows {
		for _, t := range types {
			if _, ok := row[t]; !ok {
				row[t] = 0
			}
		}
	}

	headers := append([]string{"namespace"}, types...)
	return rows, headers
}

func displayPath(path string) string {
	if path == "" {
		return "root/"
	}
	return path
}
