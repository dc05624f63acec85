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

package client

import "fmt"

// ConnectionError signals a transport-level failure: the Server could not
// be reached, or its health status rules out a usable connection (sealed,
// uninitialized, unauthenticated).
type ConnectionError struct {
	Message string
	Cause   error
}

func (e *ConnectionError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("connection error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("connection error: %s", e.Message)
}

func (e *ConnectionError) Unwrap() error { return e.Cause }

// APIError signals a non-2xx response other than 403 and 404, or a request
// that could not be built on the client side.
type APIError struct {
	Path       string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: %s (status %d): %s", e.Path, e.StatusCode, e.Message)
}

// DataError signals that a response body could not be decoded as JSON or
// NDJSON.
type DataError struct {
	Path  string
	Cause error
}

func (e *DataError) Error() string {
	return fmt.Sprintf("data error: %s: %v", e.Path, e.Cause)
}

func (e *DataError) Unwrap() error { return e.Cause }

// PermissionError signals a 403 Forbidden response.
type PermissionError struct {
	Path string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("permission denied: %s", e.Path)
}

// NotFoundError signals a 404 / invalid-path response. Callers that treat
// "no data at this path" as a non-error condition should check for this
// type specifically rather than APIError.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Path)
}
