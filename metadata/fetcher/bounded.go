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

	digest "github.com/opencontainers/go-digest"
	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
)

// ErrOverrun is returned once more than the bounded maximum has been read from
// a fetch_max_size/fetch_sha256 stream.
type ErrOverrun struct {
	Label string
	Max   int64
}

func (e ErrOverrun) Error() string {
	return fmt.Sprintf("%s: exceeded maximum of %d bytes", e.Label, e.Max)
}
func (e ErrOverrun) Is(t error) bool { _, ok := t.(metadata.ErrRepository); return ok }

// ErrDigestMismatch is returned when the incremental digest of a fetch_sha256
// stream does not match the expected digest at EOF.
type ErrDigestMismatch struct {
	Label    string
	Expected digest.Digest
	Got      digest.Digest
}

func (e ErrDigestMismatch) Error() string {
	return fmt.Sprintf("%s: digest mismatch, expected %s got %s", e.Label, e.Expected, e.Got)
}
func (e ErrDigestMismatch) Is(t error) bool { _, ok := t.(metadata.ErrRepository); return ok }

// Fetcher pairs a Transport with the bounded-fetch primitives.
type Fetcher struct {
	Transport Transport
}

// New wraps a Transport in a Fetcher.
func New(t Transport) *Fetcher { return &Fetcher{Transport: t} }

// FetchMaxSize implements fetch_max_size: a byte stream that fails with
// ErrOverrun naming label if more than max bytes are read. Short reads and
// early EOF are permitted.
func (f *Fetcher) FetchMaxSize(ctx context.Context, location string, max int64, label string) (io.ReadCloser, error) {
	rc, err := f.Transport.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	return newBoundedReader(rc, max, label, nil), nil
}

// FetchSHA256 implements fetch_sha256: a byte stream that fails if more than
// expectedLen bytes are read, or if the incremental SHA-256 of the consumed
// bytes does not match expectedDigest once EOF is reached. The digest check
// happens only after EOF; callers must not trust bytes read before that point.
func (f *Fetcher) FetchSHA256(ctx context.Context, location string, expectedLen int64, label string, expectedDigest metadata.HexBytes) (io.ReadCloser, error) {
	rc, err := f.Transport.Fetch(ctx, location)
	if err != nil {
		return nil, err
	}
	want := digest.NewDigestFromEncoded(digest.SHA256, fmt.Sprintf("%x", []byte(expectedDigest)))
	return newBoundedReader(rc, expectedLen, label, &want), nil
}

// boundedReader enforces a byte-count cap and, optionally, a digest check
// performed strictly after the underlying stream reaches EOF.
type boundedReader struct {
	underlying io.ReadCloser
	limited    io.Reader
	max        int64
	read       int64
	label      string
	digester   digest.Digester
	expected   digest.Digest
	checkDone  bool
}

func newBoundedReader(underlying io.ReadCloser, max int64, label string, expected *digest.Digest) *boundedReader {
	br := &boundedReader{underlying: underlying, max: max, label: label}
	limit := io.LimitReader(underlying, max+1)
	if expected != nil {
		br.digester = digest.Canonical.Digester()
		br.expected = *expected
		br.limited = io.TeeReader(limit, br.digester.Hash())
	} else {
		br.limited = limit
	}
	return br
}

func (b *boundedReader) Read(p []byte) (int, error) {
	n, err := b.limited.Read(p)
	b.read += int64(n)
	if b.read > b.max {
		log.Debugf("fetch %s: overran bound of %d bytes", b.label, b.max)
		return n, ErrOverrun{Label: b.label, Max: b.max}
	}
	if err == io.EOF {
		if b.digester != nil && !b.checkDone {
			b.checkDone = true
			got := b.digester.Digest()
			if got != b.expected {
				return n, ErrDigestMismatch{Label: b.label, Expected: b.expected, Got: got}
			}
		}
		return n, io.EOF
	}
	return n, err
}

func (b *boundedReader) Close() error { return b.underlying.Close() }
