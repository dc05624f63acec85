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

// Package activity fetches and flattens a period's client-activity counts
// by namespace and mount.
package activity

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"nsaudit/internal/client"
	"nsaudit/internal/output"
)

const dateLayout = "2006-01-02"

// Result holds the flattened rows this export produces, alongside the
// response's data object (Raw) for JSON output.
type Result struct {
	Raw            any
	NamespaceRows  []map[string]any
	MountRows      []map[string]any
	TotalClients   int
	TotalEntity    int
	TotalNonEntity int
}

// Exporter runs the activity export against a Server client.
type Exporter struct {
	client *client.Client
	log    *zap.SugaredLogger
}

func New(c *client.Client, log *zap.SugaredLogger) *Exporter {
	return &Exporter{client: c, log: log}
}

// Run fetches and flattens the activity export for start and end
// (YYYY-MM-DD), each sent as midnight UTC of its date. Any error is fatal
// to the subcommand; no partial output is produced.
func (e *Exporter) Run(ctx context.Context, start, end string) (Result, error) {
	if _, err := time.Parse(dateLayout, start); err != nil {
		return Result{}, fmt.Errorf("activity export: invalid start date %q: %w", start, err)
	}
	if _, err := time.Parse(dateLayout, end); err != nil {
		return Result{}, fmt.Errorf("activity export: invalid end date %q: %w", end, err)
	}

	params := map[string]string{
		"start_time": start + "T00:00:00Z",
		"end_time":   end + "T00:00:00Z",
	}
	raw, err := e.client.Get(ctx, "sys/internal/counters/activity", params, "")
	if err != nil {
		return Result{}, fmt.Errorf("activity export: fetch: %w", err)
	}

	envelope, _ := raw.(map[string]any)
	data, _ := envelope["data"].(map[string]any)

	result := Result{Raw: data}

	if total, ok := data["total"].(map[string]any); ok {
		result.TotalClients = asInt(total["clients"])
		result.TotalEntity = asInt(total["entity_clients"])
		result.TotalNonEntity = asInt(total["non_entity_clients"])
		e.log.Infow("cluster activity total", "clients", result.TotalClients, "entity_clients", result.TotalEntity, "non_entity_clients", result.TotalNonEntity)
	}

	byNamespace, _ := data["by_namespace"].([]any)
	for _, entry := range byNamespace {
		ns, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		namespaceID := asString(ns["namespace_id"])
		namespacePath := asString(ns["namespace_path"])
		displayPath := rewriteRootPath(namespaceID, namespacePath)

		mounts, _ := ns["mounts"].([]any)
		counts, _ := ns["counts"].(map[string]any)

		result.NamespaceRows = append(result.NamespaceRows, map[string]any{
			"namespace_id":       namespaceID,
			"namespace_path":     displayPath,
			"mounts":             len(mounts),
			"clients":            asInt(counts["clients"]),
			"entity_clients":     asInt(counts["entity_clients"]),
			"non_entity_clients": asInt(counts["non_entity_clients"]),
		})

		for _, m := range mounts {
			mount, ok := m.(map[string]any)
			if !ok {
				continue
			}
			mountCounts, _ := mount["counts"].(map[string]any)
			result.MountRows = append(result.MountRows, map[string]any{
				"namespace_id":       namespaceID,
				"namespace_path":     displayPath,
				"mount_path":         asString(mount["mount_path"]),
				"clients":            asInt(mountCounts["clients"]),
				"entity_clients":     asInt(mountCounts["entity_clients"]),
				"non_entity_clients": asInt(mountCounts["non_entity_clients"]),
			})
		}
	}

	return result, nil
}

// Write emits the raw JSON and the two flattened CSVs.
func (e *Exporter) Write(dir, cluster string, t time.Time, result Result) error {
	if err := output.WriteJSON(dir+"/"+output.Name(cluster, "activity", "json", t), result.Raw); err != nil {
		return err
	}
	nsHeaders := []string{"namespace_id", "namespace_path", "mounts", "clients", "entity_clients", "non_entity_clients"}
	if err := output.WriteCSV(dir+"/"+output.Name(cluster, "activity-namespaces", "csv", t), result.NamespaceRows, nsHeaders); err != nil {
		return err
	}
	mountHeaders := []string{"namespace_id", "namespace_path", "mount_path", "clients", "entity_clients", "non_entity_clients"}
	return output.WriteCSV(dir+"/"+output.Name(cluster, "activity-mounts", "csv", t), result.MountRows, mountHeaders)
}

func rewriteRootPath(namespaceID, namespacePath string) string {
	if namespaceID == "root" && namespacePath == "" {
		return "root/"
	}
	return namespacePath
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}
