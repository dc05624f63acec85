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

// Package audit contains integration tests for the traversal engine driven
// against an httptest-backed fake Server, following the same
// spin-up-goroutines-and-assert-on-final-state style used elsewhere in this
// repository's test suite.
package audit

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nsaudit/internal/client"
	"nsaudit/internal/config"
	"nsaudit/internal/logging"
)

// fakeNode describes one namespace's fixture data for the fake Server.
type fakeNode struct {
	auth      map[string]map[string]any
	secrets   map[string]map[string]any
	children   map[string]map[string]any // name (with trailing slash) -> key_info entry
	forbidden  bool                      // auth/mounts return 403
	noChildren bool                      // namespaces list returns 404
}

func newFakeServer(t *testing.T, tree map[string]fakeNode) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/sys/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"initialized":   true,
			"sealed":        false,
			"standby":       false,
			"authenticated": true,
			"cluster_name":  "test-cluster",
		})
	})

	mux.HandleFunc("/v1/sys/auth", func(w http.ResponseWriter, r *http.Request) {
		ns := r.Header.Get("X-Vault-Namespace")
		node, ok := tree[ns]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"not found"}})
			return
		}
		if node.forbidden {
			writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"forbidden"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": node.auth})
	})

	mux.HandleFunc("/v1/sys/mounts", func(w http.ResponseWriter, r *http.Request) {
		ns := r.Header.Get("X-Vault-Namespace")
		node, ok := tree[ns]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"not found"}})
			return
		}
		if node.forbidden {
			writeJSON(w, http.StatusForbidden, map[string]any{"errors": []string{"forbidden"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"data": node.secrets})
	})

	mux.HandleFunc("/v1/sys/namespaces", func(w http.ResponseWriter, r *http.Request) {
		ns := r.Header.Get("X-Vault-Namespace")
		node, ok := tree[ns]
		if !ok || node.noChildren {
			writeJSON(w, http.StatusNotFound, map[string]any{"errors": []string{"not found"}})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"data": map[string]any{"key_info": node.children},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestEngine(t *testing.T, server *httptest.Server, opts Options) *Engine {
	t.Helper()
	cfg := config.Config{Addr: server.URL, Token: "test-token"}
	c := client.New(cfg, logging.Noop())
	return New(c, logging.Noop(), opts)
}

// TestAudit_EmptyRoot covers scenario 1 of §8: a root with no children and
// no mounts. processed=1, errors=0, both mount maps carry the root key.
func TestAudit_EmptyRoot(t *testing.T) {
	tree := map[string]fakeNode{
		"": {auth: map[string]map[string]any{}, secrets: map[string]map[string]any{}, noChildren: true},
	}
	server := newFakeServer(t, tree)
	engine := newTestEngine(t, server, Options{Workers: 2})

	clusterName, snap, stats, err := engine.Audit(context.Background(), "")
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if clusterName != "test-cluster" {
		t.Errorf("clusterName = %q, want %q", clusterName, "test-cluster")
	}
	if len(snap.Namespaces) != 0 {
		t.Errorf("len(Namespaces) = %d, want 0", len(snap.Namespaces))
	}
	if _, ok := snap.AuthMethods[""]; !ok {
		t.Error(`AuthMethods[""] missing`)
	}
	if _, ok := snap.SecretEngines[""]; !ok {
		t.Error(`SecretEngines[""] missing`)
	}
	if stats.Processed() != 1 {
		t.Errorf("Processed() = %d, want 1", stats.Processed())
	}
	if stats.Errors() != 0 {
		t.Errorf("Errors() = %d, want 0", stats.Errors())
	}
}

// TestAudit_TwoLevelTree covers scenario 2 of §8.
func TestAudit_TwoLevelTree(t *testing.T) {
	leafMounts := map[string]map[string]any{
		"a/": {"type": "kv"},
		"b/": {"type": "kv"},
	}
	tree := map[string]fakeNode{
		"": {
			auth: map[string]map[string]any{}, secrets: map[string]map[string]any{},
			children: map[string]map[string]any{
				"team-a/": {"id": "id-a", "custom_metadata": map[string]any{}},
				"team-b/": {"id": "id-b", "custom_metadata": map[string]any{}},
			},
		},
		"team-a/": {auth: leafMounts, secrets: leafMounts, noChildren: true},
		"team-b/": {auth: leafMounts, secrets: leafMounts, noChildren: true},
	}
	server := newFakeServer(t, tree)
	engine := newTestEngine(t, server, Options{Workers: 4})

	_, snap, stats, err := engine.Audit(context.Background(), "")
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if len(snap.Namespaces) != 2 {
		t.Fatalf("len(Namespaces) = %d, want 2", len(snap.Namespaces))
	}
	for _, path := range []string{"", "team-a", "team-b"} {
		if _, ok := snap.AuthMethods[path]; !ok {
			t.Errorf("AuthMethods[%q] missing", path)
		}
		if _, ok := snap.SecretEngines[path]; !ok {
			t.Errorf("SecretEngines[%q] missing", path)
		}
	}
	if stats.Processed() != 3 {
		t.Errorf("Processed() = %d, want 3", stats.Processed())
	}
	if stats.Errors() != 0 {
		t.Errorf("Errors() = %d, want 0", stats.Errors())
	}
}

// TestAudit_ForbiddenBranch covers scenario 3 of §8: a forbidden child is
// still discovered as a namespace but never gains mount entries, and the
// run still exits without error.
func TestAudit_ForbiddenBranch(t *testing.T) {
	tree := map[string]fakeNode{
		"": {
			auth: map[string]map[string]any{}, secrets: map[string]map[string]any{},
			children: map[string]map[string]any{
				"ok/":     {"id": "id-ok", "custom_metadata": map[string]any{}},
				"secret/": {"id": "id-secret", "custom_metadata": map[string]any{}},
			},
		},
		"ok/":     {auth: map[string]map[string]any{}, secrets: map[string]map[string]any{}, noChildren: true},
		"secret/": {forbidden: true, noChildren: true},
	}
	server := newFakeServer(t, tree)
	engine := newTestEngine(t, server, Options{Workers: 4})

	_, snap, stats, err := engine.Audit(context.Background(), "")
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	if _, ok := snap.AuthMethods["secret"]; ok {
		t.Error(`AuthMethods["secret"] present, want absent`)
	}
	if _, ok := snap.SecretEngines["secret"]; ok {
		t.Error(`SecretEngines["secret"] present, want absent`)
	}
	if _, ok := snap.Namespaces["secret"]; !ok {
		t.Error(`Namespaces["secret"] missing, want present (discovered by root)`)
	}
	if stats.Errors() != 1 {
		t.Errorf("Errors() = %d, want 1", stats.Errors())
	}
}

// TestAudit_DeepChainWorkerCountInvariant covers scenario 4 of §8: a linear
// chain produces the same result regardless of worker pool size.
func TestAudit_DeepChainWorkerCountInvariant(t *testing.T) {
	chain := []string{"a/", "b/", "c/", "d/"}
	mounts := map[string]map[string]any{"kv/": {"type": "kv"}}

	buildTree := func() map[string]fakeNode {
		tree := map[string]fakeNode{}
		path := ""
		for _, name := range chain {
			tree[path] = fakeNode{
				auth: mounts, secrets: mounts,
				children: map[string]map[string]any{name: {"id": "id-" + name, "custom_metadata": map[string]any{}}},
			}
			path += name
		}
		tree[path] = fakeNode{auth: mounts, secrets: mounts, noChildren: true}
		return tree
	}

	for _, workers := range []int{1, 8} {
		tree := buildTree()
		server := newFakeServer(t, tree)
		engine := newTestEngine(t, server, Options{Workers: workers})

		_, snap, stats, err := engine.Audit(context.Background(), "")
		if err != nil {
			t.Fatalf("workers=%d: Audit() error = %v", workers, err)
		}
		if len(snap.Namespaces) != len(chain) {
			t.Errorf("workers=%d: len(Namespaces) = %d, want %d", workers, len(snap.Namespaces), len(chain))
		}
		if stats.Processed() != int64(len(chain)+1) {
			t.Errorf("workers=%d: Processed() = %d, want %d", workers, stats.Processed(), len(chain)+1)
		}
		if stats.Errors() != 0 {
			t.Errorf("workers=%d: Errors() = %d, want 0", workers, stats.Errors())
		}
	}
}

// TestAudit_RateLimitSleepBound covers the §8 rate-limit bound invariant:
// across N namespaces the total sleep contributed equals floor(N/B)*T.
func TestAudit_RateLimitSleepBound(t *testing.T) {
	const n = 5
	tree := map[string]fakeNode{
		"": {
			auth: map[string]map[string]any{}, secrets: map[string]map[string]any{},
			children: map[string]map[string]any{},
		},
	}
	for i := 0; i < n; i++ {
		name := rangeName(i)
		node := tree[""]
		node.children[name+"/"] = map[string]any{"id": "id-" + name, "custom_metadata": map[string]any{}}
		tree[""] = node
		tree[name+"/"] = fakeNode{auth: map[string]map[string]any{}, secrets: map[string]map[string]any{}, noChildren: true}
	}

	server := newFakeServer(t, tree)
	engine := newTestEngine(t, server, Options{
		Workers:               1,
		RateLimitBatchSize:    2,
		RateLimitSleepSeconds: 1,
	})

	started := time.Now()
	_, _, stats, err := engine.Audit(context.Background(), "")
	if err != nil {
		t.Fatalf("Audit() error = %v", err)
	}
	elapsed := time.Since(started)

	wantSleeps := int(stats.Processed()) / 2
	wantMinElapsed := time.Duration(wantSleeps) * time.Second
	if elapsed < wantMinElapsed {
		t.Errorf("elapsed = %v, want at least %v for %d batch sleeps", elapsed, wantMinElapsed, wantSleeps)
	}
}

func rangeName(i int) string {
	return string(rune('a' + i))
}

func TestCanonical(t *testing.T) {
	cases := map[string]string{
		"":            "",
		"/":           "",
		"team-a/":     "team-a",
		"team-a/sub/": "team-a/sub",
		"team-a":      "team-a",
	}
	for in, want := range cases {
		if got := canonical(in); got != want {
			t.Errorf("canonical(%q) = %q, want %q", in, got, want)
		}
	}
}
