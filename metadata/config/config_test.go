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

package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaults(t *testing.T) {
	cfg, err := New("https://example.com/metadata", []byte("root bytes"))
	require.NoError(t, err)

	assert.Equal(t, int64(1<<20), cfg.MaxRootSize)
	assert.Equal(t, int64(1<<20), cfg.MaxTimestampSize)
	assert.Equal(t, int64(10<<20), cfg.MaxTargetsSize)
	assert.Equal(t, int64(1024), cfg.MaxRootUpdates)
	assert.Equal(t, 32, cfg.MaxDelegations)
	assert.Equal(t, Safe, cfg.ExpirationEnforcement)
	assert.Equal(t, "https://example.com/metadata/targets", cfg.RemoteTargetsURL)
}

func TestExpirationEnforcementBoolCoercion(t *testing.T) {
	assert.True(t, Safe.Bool())
	assert.False(t, Unsafe.Bool())
	assert.Equal(t, Safe, FromBool(true))
	assert.Equal(t, Unsafe, FromBool(false))
}

func TestValidateRejectsMissingRoot(t *testing.T) {
	cfg, err := New("https://example.com/metadata", nil)
	require.NoError(t, err)
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsNonPositiveLimit(t *testing.T) {
	cfg, err := New("https://example.com/metadata", []byte("root"))
	require.NoError(t, err)
	cfg.LocalMetadataDir = "/tmp/whatever"
	cfg.MaxRootSize = 0
	assert.Error(t, cfg.Validate())
}

func TestDecodeLimitsOverride(t *testing.T) {
	limits := DefaultLimits()
	raw := map[string]any{"max_root_updates": int64(64)}
	require.NoError(t, DecodeLimits(raw, &limits))
	assert.Equal(t, int64(64), limits.MaxRootUpdates)
	assert.Equal(t, int64(1<<20), limits.MaxRootSize)
}
