// Copyright 2022-2023 VMware, Inc.
//
// This product is licensed to you under the BSD-2 license (the "License").
// You may not use this product except in compliance with the BSD-2 License.
// This product may include a number of subcomponents with separate copyright
// notices and license terms. Your use of these subcomponents is subject to
// the terms and conditions of the subcomponent's license, as noted in the
// LICENSE file.
//
// SPDX-License-Identifier: BSD-2-Clause

// Package fetcher implements the transport capability and the bounded-fetch
// primitives built on top of it: fetch_max_size and fetch_sha256. Every
// Transport implementation here (HTTP/file, S3, GCS, rate-limited, JWT-auth)
// satisfies the same one-method interface so the update workflow in
// metadata/updater never needs to know which one it was handed.
package fetcher

import (
	"context"
	"fmt"
	"io"
)

// Kind classifies a transport-level failure. The root-walk loop ends on a
// failed fetch of any kind (FileNotFound or not); everywhere else a transport
// error of any kind propagates as an error.
type Kind string

const (
	FileNotFound Kind = "file_not_found"
	Other        Kind = "other"
)

// TransportError reports a transport-level failure fetching location.
type TransportError struct {
	Kind     Kind
	Location string
	Err      error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.Location, e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Transport is a capability with a single operation: stream bytes from a
// location. Implementations must return a *TransportError (so the caller can
// distinguish FileNotFound from other failures) rather than a bare error.
type Transport interface {
	Fetch(ctx context.Context, location string) (io.ReadCloser, error)
}

// TransportFunc adapts a function to a Transport, the way http.HandlerFunc
// adapts a function to http.Handler, for single-method interfaces where a
// named type would otherwise be overkill (e.g. tests).
type TransportFunc func(ctx context.Context, location string) (io.ReadCloser, error)

func (f TransportFunc) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	return f(ctx, location)
}
