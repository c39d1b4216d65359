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

	"golang.org/x/time/rate"
)

// RateLimitedTransport decorates any Transport with a token-bucket rate
// limit on Fetch calls, for repositories that throttle or bill per request.
type RateLimitedTransport struct {
	Transport Transport
	Limiter   *rate.Limiter
}

// NewRateLimitedTransport wraps next with a limiter allowing r fetches per
// second, with the given burst.
func NewRateLimitedTransport(next Transport, r rate.Limit, burst int) *RateLimitedTransport {
	return &RateLimitedTransport{Transport: next, Limiter: rate.NewLimiter(r, burst)}
}

func (t *RateLimitedTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if err := t.Limiter.Wait(ctx); err != nil {
		return nil, &TransportError{Kind: Other, Location: location, Err: err}
	}
	return t.Transport.Fetch(ctx, location)
}
