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
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/golang-jwt/jwt/v5"
)

// TokenSource mints a bearer token on demand, e.g. backed by a client-credentials
// OAuth flow or a static service-account key.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticSigningTokenSource signs a fresh JWT with Claims on every call, for
// repositories that authenticate with short-lived self-signed bearer tokens
// rather than an external token endpoint.
type StaticSigningTokenSource struct {
	Method jwt.SigningMethod
	Key    any
	Claims func() jwt.Claims
}

func (s *StaticSigningTokenSource) Token(ctx context.Context) (string, error) {
	tok := jwt.NewWithClaims(s.Method, s.Claims())
	signed, err := tok.SignedString(s.Key)
	if err != nil {
		return "", fmt.Errorf("signing bearer token: %w", err)
	}
	return signed, nil
}

// JWTAuthTransport decorates a Transport, attaching an "Authorization: Bearer"
// header sourced from TokenSource to every HTTP(S) fetch. Non-HTTP locations
// (e.g. file://) are passed through untouched by the wrapped transport.
type JWTAuthTransport struct {
	Transport   *DefaultTransport
	TokenSource TokenSource
}

func NewJWTAuthTransport(ts TokenSource) *JWTAuthTransport {
	return &JWTAuthTransport{Transport: NewDefaultTransport(), TokenSource: ts}
}

func (t *JWTAuthTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if u, err := url.Parse(location); err == nil && u.Scheme != "http" && u.Scheme != "https" {
		return t.Transport.Fetch(ctx, location)
	}
	tok, err := t.TokenSource.Token(ctx)
	if err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+tok)

	client := t.Transport.Client
	if client == nil {
		client = http.DefaultClient
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
