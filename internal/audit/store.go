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

package audit

import (
	"strconv"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/dgryski/go-rendezvous"
)

// defaultShards is the number of lock-striped shards backing a Result.
// Chosen so that a typical W=4..16 worker pool rarely contends on the same
// shard for two different namespace paths.
const defaultShards = 16

// NamespaceInfo is the {id, custom_metadata} pair stored for every
// discovered child namespace.
type NamespaceInfo struct {
	ID             string         `json:"id"`
	CustomMetadata map[string]any `json:"custom_metadata"`
}

// MountInfo is a single auth or secret backend's mount entry, kept as a
// free-form map because its shape varies across Server versions (the
// Server client normalises the envelope, not the mount body itself).
type MountInfo map[string]any

// Result is the thread-safe aggregate the traversal engine builds: the
// three maps named in the data model, namespaces / auth_methods /
// secret_engines, all keyed by canonical path (no trailing slash; the root
// is the empty string).
type Result struct {
	shards []*shard
	rv     *rendezvous.Rendezvous
}

type shard struct {
	mu            sync.Mutex
	namespaces    map[string]NamespaceInfo
	authMethods   map[string]map[string]MountInfo
	secretEngines map[string]map[string]MountInfo
}

// NewResult builds an empty Result striped across n shards (0 or negative
// falls back to defaultShards). A single lock over all three maps, as the
// source does, would serialize every worker on every visit; rendezvous
// hashing the path to a shard realizes the sharded-map alternative §9
// names without giving up a simple mutex per shard.
func NewResult(n int) *Result {
	if n <= 0 {
		n = defaultShards
	}
	ids := make([]string, n)
	shards := make([]*shard, n)
	for i := 0; i < n; i++ {
		ids[i] = strconv.Itoa(i)
		shards[i] = &shard{
			namespaces:    make(map[string]NamespaceInfo),
			authMethods:   make(map[string]map[string]MountInfo),
			secretEngines: make(map[string]map[string]MountInfo),
		}
	}
	return &Result{
		shards: shards,
		rv:     rendezvous.New(ids, hashString),
	}
}

func hashString(s string) uint64 {
	return xxhash.Sum64String(s)
}

func (r *Result) shardFor(path string) *shard {
	idx, err := strconv.Atoi(r.rv.Lookup(path))
	if err != nil {
		// unreachable: Lookup always returns one of the ids we registered.
		idx = 0
	}
	return r.shards[idx]
}

// StoreNamespace records child's {id, custom_metadata} if not already
// present. Idempotent by design: a path is discovered by exactly one
// parent under the BFS discipline, so the common case never overwrites,
// but a defensive re-visit (e.g. a retried enqueue) leaves the first write
// standing rather than racing two writers to the same key.
func (r *Result) StoreNamespace(path string, info NamespaceInfo) {
	s := r.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.namespaces[path]; !exists {
		s.namespaces[path] = info
	}
}

// StoreAuth records the auth methods observed at path.
func (r *Result) StoreAuth(path string, mounts map[string]MountInfo) {
	s := r.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.authMethods[path] = mounts
}

// StoreSecrets records the secret engines observed at path.
func (r *Result) StoreSecrets(path string, mounts map[string]MountInfo) {
	s := r.shardFor(path)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.secretEngines[path] = mounts
}

// Snapshot copies the sharded maps into the plain, exportable shape used
// by the output writer. Called once, after the pool has drained.
func (r *Result) Snapshot() Snapshot {
	out := Snapshot{
		Namespaces:    make(map[string]NamespaceInfo),
		AuthMethods:   make(map[string]map[string]MountInfo),
		SecretEngines: make(map[string]map[string]MountInfo),
	}
	for _, s := range r.shards {
		s.mu.Lock()
		for k, v := range s.namespaces {
			out.Namespaces[k] = v
		}
		for k, v := range s.authMethods {
			out.AuthMethods[k] = v
		}
		for k, v := range s.secretEngines {
			out.SecretEngines[k] = v
		}
		s.mu.Unlock()
	}
	return out
}

// Snapshot is the plain, non-concurrent view of a drained Result.
type Snapshot struct {
	Namespaces    map[string]NamespaceInfo        `json:"namespaces"`
	AuthMethods   map[string]map[string]MountInfo `json:"auth_methods"`
	SecretEngines map[string]map[string]MountInfo `json:"secret_engines"`
}
