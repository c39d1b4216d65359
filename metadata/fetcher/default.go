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

package fetcher

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
)

// DefaultTransport fetches over HTTP(S) and, for file:// or bare-path
// locations, the local filesystem. It is the Transport used when callers
// don't configure one explicitly, matching the reference config package's
// "use the default built-in download fetcher" behavior.
type DefaultTransport struct {
	Client *http.Client
}

// NewDefaultTransport builds a DefaultTransport with a zero-value http.Client
// (no default timeout is imposed; callers drive timeouts via ctx).
func NewDefaultTransport() *DefaultTransport {
	return &DefaultTransport{Client: &http.Client{}}
}

func (t *DefaultTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	if u.Scheme == "" || u.Scheme == "file" {
		path := u.Path
		if path == "" {
			path = location
		}
		f, err := os.Open(path)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, &TransportError{Kind: FileNotFound, Location: location, Err: err}
			}
			return nil, &TransportError{Kind: Other, Location: location, Err: err}
		}
		return f, nil
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &TransportError{Kind: FileNotFound, Location: location, Err: &httpStatusError{resp.StatusCode}}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		resp.Body.Close()
		return nil, &TransportError{Kind: Other, Location: location, Err: &httpStatusError{resp.StatusCode}}
	}
	return resp.Body, nil
}

type httpStatusError struct{ StatusCode int }

func (e *httpStatusError) Error() string {
	return "unexpected HTTP status " + http.StatusText(e.StatusCode)
}
