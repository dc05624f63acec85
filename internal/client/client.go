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

// Package client talks to the Server's HTTP API: namespace-scoped GET/POST,
// health-based connection validation, and the three list operations the
// traversal engine drives.
package client

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nsaudit/internal/config"
)

// defaultTimeout bounds a single request. It is applied as a context
// deadline per call, derived from the caller's context, so when the caller
// also set a deadline the shorter of the two applies.
const defaultTimeout = 30 * time.Second

// Client is a thin namespace-aware HTTP client for the Server's API.
type Client struct {
	addr  string
	token string
	http  *http.Client
	log   *zap.SugaredLogger

	warnOnce sync.Once
}

// New builds a Client from cfg. When cfg.SkipVerify is set, TLS certificate
// verification is disabled and a one-time warning is logged at
// construction, never repeated per-request.
func New(cfg config.Config, log *zap.SugaredLogger) *Client {
	transport := &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: cfg.SkipVerify}, //nolint:gosec // operator opt-in via VAULT_SKIP_VERIFY
	}
	c := &Client{
		addr:  strings.TrimRight(cfg.Addr, "/"),
		token: cfg.Token,
		http:  &http.Client{Transport: transport},
		log:   log,
	}
	if cfg.SkipVerify {
		c.warnOnce.Do(func() {
			log.Warn("TLS certificate verification is disabled (VAULT_SKIP_VERIFY=true); connections are not authenticated against the Server's certificate")
		})
	}
	return c
}

// HealthStatus is the subset of /v1/sys/health this tool reads.
type HealthStatus struct {
	Initialized   bool   `json:"initialized"`
	Sealed        bool   `json:"sealed"`
	Authenticated bool   `json:"authenticated,omitempty"`
	ClusterName   string `json:"cluster_name"`
}

// ValidateConnection checks that the Server is reachable and usable,
// returning its cluster name. A sealed, uninitialized, or unreachable
// Server produces a ConnectionError.
func (c *Client) ValidateConnection(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := fmt.Sprintf("%s/v1/sys/health?sealedcode=200&uninitcode=200&standbycode=200&performancestandbycode=200", c.addr)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", &ConnectionError{Message: "build health request", Cause: err}
	}
	c.setHeaders(req)

	resp, err := c.do(ctx, req)
	if err != nil {
		return "", &ConnectionError{Message: "reach Server", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &ConnectionError{Message: "read health response", Cause: err}
	}

	var health HealthStatus
	if err := json.Unmarshal(body, &health); err != nil {
		return "", &ConnectionError{Message: "parse health response", Cause: err}
	}

	if health.Sealed {
		return "", &ConnectionError{Message: "Server is sealed"}
	}
	if !health.Initialized {
		return "", &ConnectionError{Message: "Server is not initialized"}
	}
	if !health.Authenticated {
		return "", &ConnectionError{Message: "Server did not authenticate the request"}
	}

	clusterName := health.ClusterName
	if clusterName == "" {
		clusterName = "cluster"
	}
	return clusterName, nil
}

// Get issues a namespace-scoped GET against path, with optional query
// params. path is cleaned of a leading slash and any "v1/" prefix before
// the request is built.
func (c *Client) Get(ctx context.Context, path string, params map[string]string, namespace string) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := c.buildURL(path, params)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &APIError{Path: path, Message: err.Error()}
	}
	c.setHeaders(req)
	if namespace != "" {
		req.Header.Set("X-Vault-Namespace", namespace)
	}

	return c.doAndDecode(reqCtx, req, path)
}

// GetRaw issues a namespace-scoped GET like Get, but returns the response
// body undecoded. Callers that need something Get's decode step throws
// away (namely, a JSON object's original key order) can run their own
// decoding pass over these bytes; DecodeBody reproduces Get's own decoding
// for the common case.
func (c *Client) GetRaw(ctx context.Context, path string, params map[string]string, namespace string) ([]byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	url := c.buildURL(path, params)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &APIError{Path: path, Message: err.Error()}
	}
	c.setHeaders(req)
	if namespace != "" {
		req.Header.Set("X-Vault-Namespace", namespace)
	}

	return c.doRaw(reqCtx, req, path)
}

// Post issues a namespace-scoped POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body any, namespace string) (any, error) {
	reqCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, &APIError{Path: path, Message: "marshal request body: " + err.Error()}
		}
		reader = bytes.NewReader(encoded)
	}

	url := c.buildURL(path, nil)
	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, url, reader)
	if err != nil {
		return nil, &APIError{Path: path, Message: err.Error()}
	}
	c.setHeaders(req)
	req.Header.Set("Content-Type", "application/json")
	if namespace != "" {
		req.Header.Set("X-Vault-Namespace", namespace)
	}

	return c.doAndDecode(reqCtx, req, path)
}

// ListAuth lists the auth methods mounted at namespace.
func (c *Client) ListAuth(ctx context.Context, namespace string) (map[string]any, error) {
	return c.list(ctx, "sys/auth", namespace)
}

// ListSecrets lists the secret engines mounted at namespace.
func (c *Client) ListSecrets(ctx context.Context, namespace string) (map[string]any, error) {
	return c.list(ctx, "sys/mounts", namespace)
}

// ListNamespaces lists the child namespaces of namespace.
func (c *Client) ListNamespaces(ctx context.Context, namespace string) (map[string]any, error) {
	return c.list(ctx, "sys/namespaces", namespace)
}

func (c *Client) list(ctx context.Context, path, namespace string) (map[string]any, error) {
	data, err := c.Get(ctx, path, map[string]string{"list": "true"}, namespace)
	if err != nil {
		return nil, err
	}
	envelope, ok := data.(map[string]any)
	if !ok {
		return nil, &DataError{Path: path, Cause: fmt.Errorf("expected a JSON object, got %T", data)}
	}
	inner, ok := envelope["data"].(map[string]any)
	if !ok {
		return map[string]any{}, nil
	}
	return inner, nil
}

func (c *Client) buildURL(path string, params map[string]string) string {
	clean := strings.TrimPrefix(strings.TrimPrefix(path, "/"), "v1/")
	url := fmt.Sprintf("%s/v1/%s", c.addr, clean)
	if len(params) == 0 {
		return url
	}
	var b strings.Builder
	b.WriteString(url)
	b.WriteByte('?')
	first := true
	for k, v := range params {
		if !first {
			b.WriteByte('&')
		}
		first = false
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return b.String()
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("X-Vault-Token", c.token)
}

func (c *Client) do(_ context.Context, req *http.Request) (*http.Response, error) {
	return c.http.Do(req)
}

func (c *Client) doAndDecode(ctx context.Context, req *http.Request, path string) (any, error) {
	body, err := c.doRaw(ctx, req, path)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	value, err := decodeBody(body)
	if err != nil {
		return nil, &DataError{Path: path, Cause: err}
	}
	return value, nil
}

// doRaw performs the request and applies the status-code mapping shared by
// every call (forbidden/not-found/no-content/other non-2xx), returning the
// response body undecoded.
func (c *Client) doRaw(ctx context.Context, req *http.Request, path string) ([]byte, error) {
	resp, err := c.do(ctx, req)
	if err != nil {
		return nil, &ConnectionError{Message: fmt.Sprintf("request %s", path), Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DataError{Path: path, Cause: err}
	}

	switch resp.StatusCode {
	case http.StatusForbidden:
		return nil, &PermissionError{Path: path}
	case http.StatusNotFound:
		return nil, &NotFoundError{Path: path}
	case http.StatusNoContent:
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{Path: path, StatusCode: resp.StatusCode, Message: string(body)}
	}
	return body, nil
}
