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

package datastore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBadgerDatastoreRoundTrip(t *testing.T) {
	ds, err := NewBadgerDatastore(t.TempDir())
	require.NoError(t, err)
	defer ds.Close()
	ctx := context.Background()

	_, ok, err := ds.Reader(ctx, TimestampFile)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, ds.Create(ctx, TimestampFile, []byte("hello")))
	data, ok, err := ds.Reader(ctx, TimestampFile)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []byte("hello"), data)

	require.NoError(t, ds.Remove(ctx, TimestampFile))
	_, ok, err = ds.Reader(ctx, TimestampFile)
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing key is idempotent
	require.NoError(t, ds.Remove(ctx, TimestampFile))
}
