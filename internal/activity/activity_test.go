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

package activity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"nsaudit/internal/client"
	"nsaudit/internal/config"
	"nsaudit/internal/logging"
)

// TestRun_FlattensNamespaceAndMountRows covers scenario 5 of §8: a root
// namespace with two mounts flattens to one namespace row and two mount
// rows, with the root path rewritten to "root/".
func TestRun_FlattensNamespaceAndMountRows(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"data": map[string]any{
				"by_namespace": []any{
					map[string]any{
						"namespace_id":   "root",
						"namespace_path": "",
						"counts": map[string]any{
							"clients": 5, "entity_clients": 4, "non_entity_clients": 1,
						},
						"mounts": []any{
							map[string]any{
								"mount_path": "secret/",
								"counts":     map[string]any{"clients": 3, "entity_clients": 2, "non_entity_clients": 1},
							},
							map[string]any{
								"mount_path": "token/",
								"counts":     map[string]any{"clients": 2, "entity_clients": 2, "non_entity_clients": 0},
							},
						},
					},
				},
			},
		})
	}))
	defer server.Close()

	c := client.New(config.Config{Addr: server.URL, Token: "t"}, logging.Noop())
	exporter := New(c, logging.Noop())

	result, err := exporter.Run(context.Background(), "2026-03-01", "2026-03-31")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(result.NamespaceRows) != 1 {
		t.Fatalf("len(NamespaceRows) = %d, want 1", len(result.NamespaceRows))
	}
	row := result.NamespaceRows[0]
	if row["namespace_path"] != "root/" {
		t.Errorf("namespace_path = %v, want root/", row["namespace_path"])
	}
	if row["mounts"] != 2 {
		t.Errorf("mounts = %v, want 2", row["mounts"])
	}
	if row["clients"] != 5 {
		t.Errorf("clients = %v, want 5", row["clients"])
	}

	if len(result.MountRows) != 2 {
		t.Fatalf("len(MountRows) = %d, want 2", len(result.MountRows))
	}
	for _, mr := range result.MountRows {
		if mr["namespace_path"] != "root/" {
			t.Errorf("mount row namespace_path = %v, want root/", mr["namespace_path"])
		}
	}
}

func TestRun_InvalidDateIsRejected(t *testing.T) {
	c := client.New(config.Config{Addr: "http://unused", Token: "t"}, logging.Noop())
	exporter := New(c, logging.Noop())

	if _, err := exporter.Run(context.Background(), "03-01-2026", "2026-03-31"); err == nil {
		t.Fatal("Run() error = nil, want non-nil for a malformed start date")
	}
}
