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

package updater

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/config"
	"github.com/practicaltuf/tufclient/metadata/datastore"
	"github.com/practicaltuf/tufclient/metadata/fetcher"
)

// Scenario F: rotating the root's Timestamp key deletes the cached
// timestamp.json (and snapshot.json) by the end of loadRoot.
func TestRootRotationTriggersFastForwardRecovery(t *testing.T) {
	tr := buildTestRepo(t, false, defaultTargetFixtures())
	ctx := context.Background()

	ds, err := datastore.NewFileDatastore(tr.cfg.LocalMetadataDir)
	require.NoError(t, err)
	require.NoError(t, ds.Create(ctx, datastore.TimestampFile, []byte("stale")))
	require.NoError(t, ds.Create(ctx, datastore.SnapshotFile, []byte("stale")))

	newTimestampKeys := newTestKeyring(t)
	root2 := metadata.Root(tr.root.Signed.Expires)
	root2.Signed.Version = 2
	require.NoError(t, root2.Signed.AddKey(tr.rootKeys.key, metadata.ROOT))
	require.NoError(t, root2.Signed.AddKey(newTimestampKeys.key, metadata.TIMESTAMP))
	require.NoError(t, root2.Signed.AddKey(tr.snapshotKeys.key, metadata.SNAPSHOT))
	require.NoError(t, root2.Signed.AddKey(tr.targetsKeys.key, metadata.TARGETS))
	_, err = root2.Sign(tr.rootKeys.signer)
	require.NoError(t, err)
	root2Bytes, err := root2.ToBytes(false)
	require.NoError(t, err)

	metaBase, err := normalizeBaseURL(testMetadataBase)
	require.NoError(t, err)
	loc, err := joinBase(metaBase, rootFilename(2))
	require.NoError(t, err)
	tr.transport.set(loc, root2Bytes)

	r := &Repository{
		cfg:             tr.cfg,
		fetcher:         fetcher.New(tr.transport),
		ds:              ds,
		oracle:          newTimeOracle(ds),
		metadataBaseURL: metaBase,
	}
	require.NoError(t, r.loadRoot(ctx))

	_, ok, err := ds.Reader(ctx, datastore.TimestampFile)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = ds.Reader(ctx, datastore.SnapshotFile)
	require.NoError(t, err)
	assert.False(t, ok)
}

// datastoreTransport adapts a Datastore to a Transport by stripping a known
// base-URL prefix off the requested location to recover the stored filename,
// letting reload tests serve an exported cache directory without touching a
// real filesystem path or network.
type datastoreTransport struct {
	base string
	ds   datastore.Datastore
}

func (t datastoreTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	name := strings.TrimPrefix(location, t.base)
	data, ok, err := t.ds.Reader(ctx, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, &fetcher.TransportError{Kind: fetcher.FileNotFound, Location: location}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// splitTransport dispatches to a metadata or a targets datastoreTransport
// depending on which base URL the requested location falls under.
type splitTransport struct {
	metaBase, targetsBase string
	meta, targets         datastoreTransport
}

func (t splitTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	if strings.HasPrefix(location, t.targetsBase) {
		return t.targets.Fetch(ctx, location)
	}
	return t.meta.Fetch(ctx, location)
}

const (
	reloadMetaBase    = "mem://reload-metadata"
	reloadTargetsBase = "mem://reload-targets"
)

// newReloadConfig builds an UpdaterConfig pointed at the reload base URLs,
// reusing tr's original trusted root bytes (the root chain was exported
// verbatim, so the pinned anchor is unchanged).
func newReloadConfig(t *testing.T, tr *testRepo) *config.UpdaterConfig {
	t.Helper()
	cfg, err := config.New(reloadMetaBase, tr.rootBytes)
	require.NoError(t, err)
	cfg.RemoteTargetsURL = reloadTargetsBase
	cfg.LocalMetadataDir = t.TempDir()
	cfg.LocalTargetsDir = t.TempDir()
	return cfg
}

func newReloadTransport(t *testing.T, destMeta, destTargets datastore.Datastore) splitTransport {
	t.Helper()
	metaBase, err := normalizeBaseURL(reloadMetaBase)
	require.NoError(t, err)
	targetsBase, err := normalizeBaseURL(reloadTargetsBase)
	require.NoError(t, err)
	return splitTransport{
		metaBase:    metaBase,
		targetsBase: targetsBase,
		meta:        datastoreTransport{base: metaBase, ds: destMeta},
		targets:     datastoreTransport{base: targetsBase, ds: destTargets},
	}
}

// Scenario B: cache_metadata(include_root_chain=true) followed by a reload;
// no target files were exported, so read_target errors on transport.
func TestCacheMetadataRoundTrip(t *testing.T) {
	tr := buildTestRepo(t, true, defaultTargetFixtures())
	repo, err := tr.load(t)
	require.NoError(t, err)

	ctx := context.Background()
	destMeta, err := datastore.NewFileDatastore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.CacheMetadata(ctx, destMeta, true))

	_, ok, err := destMeta.Reader(ctx, rootFilename(1))
	require.NoError(t, err)
	assert.True(t, ok)

	destTargets, err := datastore.NewFileDatastore(t.TempDir())
	require.NoError(t, err)
	destCfg := newReloadConfig(t, tr)

	reloaded, err := NewRepositoryLoader(destCfg).
		WithTransport(newReloadTransport(t, destMeta, destTargets)).
		Load(ctx)
	require.NoError(t, err)

	_, found, err := reloaded.ReadTarget(ctx, "file1.txt")
	require.Error(t, err)
	assert.False(t, found)
}

// Scenario C: cache(subset=["file2.txt"]) followed by a reload; only
// file2.txt is servable afterward.
func TestCacheSubsetRoundTrip(t *testing.T) {
	tr := buildTestRepo(t, true, defaultTargetFixtures())
	repo, err := tr.load(t)
	require.NoError(t, err)

	ctx := context.Background()
	destMeta, err := datastore.NewFileDatastore(t.TempDir())
	require.NoError(t, err)
	destTargets, err := datastore.NewFileDatastore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, repo.Cache(ctx, destMeta, destTargets, []string{"file2.txt"}, true))

	destCfg := newReloadConfig(t, tr)
	reloaded, err := NewRepositoryLoader(destCfg).
		WithTransport(newReloadTransport(t, destMeta, destTargets)).
		Load(ctx)
	require.NoError(t, err)

	_, found, err := reloaded.ReadTarget(ctx, "file1.txt")
	require.Error(t, err)
	assert.False(t, found)

	rc, found, err := reloaded.ReadTarget(ctx, "file2.txt")
	require.NoError(t, err)
	require.True(t, found)
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.NoError(t, rc.Close())
	assert.Len(t, data, 39)
}
