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

// Package audit implements the traversal engine: a bounded worker pool
// doing a BFS of the Server's namespace tree over a dynamically growing
// work queue, with thread-safe result aggregation and a batch-sleep rate
// limit.
package audit

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"nsaudit/internal/client"
	"nsaudit/internal/metrics"
)

// stallWarning is the interval after which a traversal that has not
// processed a new namespace logs a stall warning. This never aborts the run.
const stallWarning = 300 * time.Second

// InterruptedError signals that the context was cancelled before the
// worker pool fully drained. The orchestrator must not write partial
// output when it sees this error.
type InterruptedError struct{}

func (e *InterruptedError) Error() string { return "audit interrupted before queue drained" }

// Options configures a traversal run. Zero values are replaced with the
// documented defaults by New.
type Options struct {
	Workers               int
	Shards                int
	RateLimitBatchSize    int
	RateLimitSleepSeconds int
	RateLimitDisabled     bool
}

const (
	defaultWorkers               = 4
	defaultRateLimitBatchSize    = 100
	defaultRateLimitSleepSeconds = 3
)

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = defaultWorkers
	}
	if o.RateLimitBatchSize <= 0 {
		o.RateLimitBatchSize = defaultRateLimitBatchSize
	}
	if o.RateLimitSleepSeconds <= 0 {
		o.RateLimitSleepSeconds = defaultRateLimitSleepSeconds
	}
	return o
}

// Engine runs the traversal against a Server client.
type Engine struct {
	client *client.Client
	log    *zap.SugaredLogger
	opts   Options
}

// New builds an Engine. Unset Options fall back to the documented
// defaults (4 workers, batch size 100, sleep 3s).
func New(c *client.Client, log *zap.SugaredLogger, opts Options) *Engine {
	return &Engine{client: c, log: log, opts: opts.withDefaults()}
}

// Audit performs the BFS traversal rooted at startPath (empty string or
// "/" both mean the Server's root namespace) and returns the cluster name
// resolved during connection validation along with the aggregated result
// and run statistics. It returns an error only when the initial connection
// validation fails, or when ctx is cancelled before the pool drains
// (*InterruptedError); per-namespace failures are counted, not propagated.
func (e *Engine) Audit(ctx context.Context, startPath string) (string, Snapshot, *Stats, error) {
	clusterName, err := e.client.ValidateConnection(ctx)
	if err != nil {
		return "", Snapshot{}, nil, err
	}
	e.log.Infow("connection validated", "cluster", clusterName)

	start := canonical(startPath)

	result := NewResult(e.opts.Shards)
	stats := newStats()
	rl := rateLimiter{
		BatchSize: e.opts.RateLimitBatchSize,
		Sleep:     time.Duration(e.opts.RateLimitSleepSeconds) * time.Second,
		Disabled:  e.opts.RateLimitDisabled,
	}
	queue := newPathQueue()

	var itemsWG sync.WaitGroup
	var workersWG sync.WaitGroup
	var cancelled atomic.Bool

	itemsWG.Add(1)
	queue.Put(start)

	for i := 0; i < e.opts.Workers; i++ {
		workersWG.Add(1)
		go e.workerLoop(ctx, queue, result, stats, rl, &itemsWG, &cancelled, &workersWG)
	}

	drained := make(chan struct{})
	go func() {
		itemsWG.Wait()
		close(drained)
	}()

	stall := time.NewTicker(stallWarning)
	defer stall.Stop()
	lastProcessed := stats.Processed()

	for {
		select {
		case <-drained:
			queue.Close()
			workersWG.Wait()
			stats.Finish()
			e.log.Infow("audit finished",
				"processed", stats.Processed(),
				"errors", stats.Errors(),
				"duration", stats.Duration())
			return clusterName, result.Snapshot(), stats, nil

		case <-ctx.Done():
			cancelled.Store(true)
			queue.Close()
			workersWG.Wait()
			stats.Finish()
			e.log.Warnw("audit interrupted before drain",
				"processed", stats.Processed(),
				"errors", stats.Errors())
			return "", Snapshot{}, stats, &InterruptedError{}

		case <-stall.C:
			p := stats.Processed()
			if p == lastProcessed {
				e.log.Warnw("traversal queue stall watchdog", "processed", p)
			}
			lastProcessed = p
		}
	}
}

func (e *Engine) workerLoop(ctx context.Context, queue *pathQueue, result *Result, stats *Stats, rl rateLimiter, itemsWG *sync.WaitGroup, cancelled *atomic.Bool, workersWG *sync.WaitGroup) {
	defer workersWG.Done()
	for {
		path, ok := queue.Get()
		if !ok {
			return
		}
		e.visitOne(ctx, path, queue, result, stats, rl, itemsWG, cancelled)
	}
}

// visitOne wraps a single VisitNamespace call with panic recovery and the
// rate-limit check, and always releases the item's in-flight slot — a
// panicking namespace must not wedge the wait group.
func (e *Engine) visitOne(ctx context.Context, path string, queue *pathQueue, result *Result, stats *Stats, rl rateLimiter, itemsWG *sync.WaitGroup, cancelled *atomic.Bool) {
	defer itemsWG.Done()
	defer func() {
		if r := recover(); r != nil {
			stats.IncrementErrors()
			metrics.RecordError()
			e.log.Errorw("panic while visiting namespace", "path", displayPath(path), "recovered", r)
		}
	}()

	processed := stats.IncrementProcessed()
	metrics.RecordProcessed()
	rl.maybeThrottle(processed)

	visitStart := time.Now()
	e.visitNamespace(ctx, path, queue, result, stats, itemsWG, cancelled)
	metrics.ObserveVisit(time.Since(visitStart))
}

// visitNamespace implements §4.1 step 5: fetch auth methods, secret
// engines, and child namespaces for path, storing whichever succeed and
// enqueuing children regardless of the first two outcomes.
func (e *Engine) visitNamespace(ctx context.Context, path string, queue *pathQueue, result *Result, stats *Stats, itemsWG *sync.WaitGroup, cancelled *atomic.Bool) {
	apiNamespace := ""
	if path != "" {
		apiNamespace = path + "/"
	}

	// A namespace counts as one error however many of its three calls fail.
	var visitErrs Stats
	e.storeAuth(ctx, path, apiNamespace, result, &visitErrs)
	e.storeSecrets(ctx, path, apiNamespace, result, &visitErrs)
	e.listChildren(ctx, path, apiNamespace, queue, result, &visitErrs, itemsWG, cancelled)
	if visitErrs.Errors() > 0 {
		stats.IncrementErrors()
		metrics.RecordError()
	}
}

func (e *Engine) storeAuth(ctx context.Context, path, namespace string, result *Result, stats *Stats) {
	mounts, err := e.client.ListAuth(ctx, namespace)
	if err == nil {
		result.StoreAuth(path, toMounts(mounts))
		return
	}
	if isNotFound(err) {
		return
	}
	e.recordPathError(path, "list auth methods", err, stats)
}

func (e *Engine) storeSecrets(ctx context.Context, path, namespace string, result *Result, stats *Stats) {
	mounts, err := e.client.ListSecrets(ctx, namespace)
	if err == nil {
		result.StoreSecrets(path, toMounts(mounts))
		return
	}
	if isNotFound(err) {
		return
	}
	e.recordPathError(path, "list secret engines", err, stats)
}

func (e *Engine) listChildren(ctx context.Context, path, namespace string, queue *pathQueue, result *Result, stats *Stats, itemsWG *sync.WaitGroup, cancelled *atomic.Bool) {
	children, err := e.client.ListNamespaces(ctx, namespace)
	if err != nil {
		if isNotFound(err) {
			return
		}
		e.recordPathError(path, "list child namespaces", err, stats)
		return
	}

	keyInfo, _ := children["key_info"].(map[string]any)
	for name, rawInfo := range keyInfo {
		childFull := namespace + name
		childPath := canonical(childFull)

		result.StoreNamespace(childPath, namespaceInfoFrom(rawInfo))

		if cancelled.Load() {
			continue
		}
		itemsWG.Add(1)
		if !queue.Put(childPath) {
			itemsWG.Done()
		}
	}
}

func (e *Engine) recordPathError(path, op string, err error, stats *Stats) {
	stats.IncrementErrors()
	var perm *client.PermissionError
	if errors.As(err, &perm) {
		e.log.Warnw(op+" forbidden", "path", displayPath(path))
		return
	}
	e.log.Errorw(op+" failed", "path", displayPath(path), "err", err)
}

func namespaceInfoFrom(raw any) NamespaceInfo {
	info := NamespaceInfo{}
	m, ok := raw.(map[string]any)
	if !ok {
		return info
	}
	if id, ok := m["id"].(string); ok {
		info.ID = id
	}
	if meta, ok := m["custom_metadata"].(map[string]any); ok {
		info.CustomMetadata = meta
	}
	return info
}

func toMounts(data map[string]any) map[string]MountInfo {
	out := make(map[string]MountInfo, len(data))
	for k, v := range data {
		if m, ok := v.(map[string]any); ok {
			out[k] = MountInfo(m)
		}
	}
	return out
}

func isNotFound(err error) bool {
	var nf *client.NotFoundError
	return errors.As(err, &nf)
}

// canonical strips a trailing slash, mapping "/" and "" both to "" (the
// root's internal key).
func canonical(p string) string {
	if p == "/" {
		return ""
	}
	return strings.TrimSuffix(p, "/")
}

func displayPath(p string) string {
	if p == "" {
		return "root"
	}
	return p
}
