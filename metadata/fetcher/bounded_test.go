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
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func transportOf(t *testing.T, data []byte) Transport {
	t.Helper()
	return TransportFunc(func(ctx context.Context, location string) (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	})
}

func TestFetchMaxSizeAllowsUnderBound(t *testing.T) {
	data := []byte("hello world")
	f := New(transportOf(t, data))
	rc, err := f.FetchMaxSize(context.Background(), "loc", int64(len(data)), "label")
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchMaxSizeRejectsOverrun(t *testing.T) {
	data := []byte("hello world, this is too long")
	f := New(transportOf(t, data))
	rc, err := f.FetchMaxSize(context.Background(), "loc", 5, "max_timestamp_size argument")
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.Error(t, err)
	var overrun ErrOverrun
	require.True(t, errors.As(err, &overrun))
	assert.Equal(t, "max_timestamp_size argument", overrun.Label)
}

func TestFetchSHA256VerifiesDigestAfterEOF(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := sha256.Sum256(data)
	f := New(transportOf(t, data))
	rc, err := f.FetchSHA256(context.Background(), "loc", int64(len(data)), "targets.json", sum[:])
	require.NoError(t, err)
	defer rc.Close()
	got, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestFetchSHA256RejectsDigestMismatch(t *testing.T) {
	data := []byte("the quick brown fox")
	wrongSum := sha256.Sum256([]byte("a different payload"))
	f := New(transportOf(t, data))
	rc, err := f.FetchSHA256(context.Background(), "loc", int64(len(data)), "targets.json", wrongSum[:])
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.Error(t, err)
	var mismatch ErrDigestMismatch
	assert.True(t, errors.As(err, &mismatch))
}

func TestFetchSHA256RejectsSingleByteFlip(t *testing.T) {
	data := []byte("the quick brown fox")
	sum := sha256.Sum256(data)
	flipped := append([]byte(nil), data...)
	flipped[0] ^= 0xFF
	f := New(transportOf(t, flipped))
	rc, err := f.FetchSHA256(context.Background(), "loc", int64(len(flipped)), "targets.json", sum[:])
	require.NoError(t, err)
	defer rc.Close()
	_, err = io.ReadAll(rc)
	require.Error(t, err)
}
