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
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"testing"
	"time"

	"github.com/sigstore/sigstore/pkg/signature"
	"github.com/stretchr/testify/require"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/config"
	"github.com/practicaltuf/tufclient/metadata/fetcher"
)

const (
	testMetadataBase = "mem://metadata"
	testTargetsBase  = "mem://targets"
)

// memTransport serves fixed byte blobs keyed by the exact location string the
// loader's own URL helpers compute, so tests never touch a real network or
// filesystem.
type memTransport struct {
	files map[string][]byte
}

func newMemTransport() *memTransport { return &memTransport{files: map[string][]byte{}} }

func (t *memTransport) set(location string, data []byte) { t.files[location] = data }

func (t *memTransport) Fetch(ctx context.Context, location string) (io.ReadCloser, error) {
	data, ok := t.files[location]
	if !ok {
		return nil, &fetcher.TransportError{Kind: fetcher.FileNotFound, Location: location, Err: os.ErrNotExist}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// testKeyring is one ed25519 keypair wrapped as both a TUF Key record and a
// sigstore Signer, the shape every role key needs in these fixtures.
type testKeyring struct {
	key    *metadata.Key
	signer signature.Signer
}

func newTestKeyring(t *testing.T) testKeyring {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := signature.LoadED25519Signer(priv)
	require.NoError(t, err)
	key, err := metadata.KeyFromPublicKey(pub)
	require.NoError(t, err)
	return testKeyring{key: key, signer: signer}
}

// testRepo is a fully signed, in-memory four-role TUF repository plus the
// transport that serves it and the config a RepositoryLoader needs to load it.
type testRepo struct {
	rootKeys, timestampKeys, snapshotKeys, targetsKeys testKeyring

	root      *metadata.Metadata[metadata.RootType]
	timestamp *metadata.Metadata[metadata.TimestampType]
	snapshot  *metadata.Metadata[metadata.SnapshotType]
	targets   *metadata.Metadata[metadata.TargetsType]

	rootBytes []byte

	transport *memTransport
	cfg       *config.UpdaterConfig
}

type targetFixture struct {
	name string
	data []byte
}

func defaultTargetFixtures() []targetFixture {
	return []targetFixture{
		{name: "file1.txt", data: bytes.Repeat([]byte("a"), 31)},
		{name: "file2.txt", data: bytes.Repeat([]byte("b"), 39)},
	}
}

// buildTestRepo signs a fresh root/timestamp/snapshot/targets chain (one key
// per role, threshold 1) serving the given target fixtures, and wires a
// memTransport plus UpdaterConfig to load it.
func buildTestRepo(t *testing.T, consistentSnapshot bool, fixtures []targetFixture) *testRepo {
	t.Helper()
	expires := time.Now().AddDate(1, 0, 0).UTC()

	tr := &testRepo{
		rootKeys:      newTestKeyring(t),
		timestampKeys: newTestKeyring(t),
		snapshotKeys:  newTestKeyring(t),
		targetsKeys:   newTestKeyring(t),
		transport:     newMemTransport(),
	}

	root := metadata.Root(expires)
	root.Signed.ConsistentSnapshot = consistentSnapshot
	require.NoError(t, root.Signed.AddKey(tr.rootKeys.key, metadata.ROOT))
	require.NoError(t, root.Signed.AddKey(tr.timestampKeys.key, metadata.TIMESTAMP))
	require.NoError(t, root.Signed.AddKey(tr.snapshotKeys.key, metadata.SNAPSHOT))
	require.NoError(t, root.Signed.AddKey(tr.targetsKeys.key, metadata.TARGETS))

	targets := metadata.Targets(expires)
	for _, f := range fixtures {
		tf, err := (&metadata.TargetFiles{}).FromBytes(f.name, f.data)
		require.NoError(t, err)
		targets.Signed.Targets[f.name] = *tf
	}
	_, err := targets.Sign(tr.targetsKeys.signer)
	require.NoError(t, err)
	targetsBytes, err := targets.ToBytes(false)
	require.NoError(t, err)

	snapshot := metadata.Snapshot(expires)
	snapshot.Signed.Meta["targets.json"] = digestMeta(targetsBytes, targets.Signed.Version)
	_, err = snapshot.Sign(tr.snapshotKeys.signer)
	require.NoError(t, err)
	snapshotBytes, err := snapshot.ToBytes(false)
	require.NoError(t, err)

	timestamp := metadata.Timestamp(expires)
	timestamp.Signed.Meta["snapshot.json"] = digestMeta(snapshotBytes, snapshot.Signed.Version)
	_, err = timestamp.Sign(tr.timestampKeys.signer)
	require.NoError(t, err)
	timestampBytes, err := timestamp.ToBytes(false)
	require.NoError(t, err)

	_, err = root.Sign(tr.rootKeys.signer)
	require.NoError(t, err)
	rootBytes, err := root.ToBytes(false)
	require.NoError(t, err)

	tr.root, tr.timestamp, tr.snapshot, tr.targets = root, timestamp, snapshot, targets
	tr.rootBytes = rootBytes

	metaBase, err := normalizeBaseURL(testMetadataBase)
	require.NoError(t, err)
	targetsBase, err := normalizeBaseURL(testTargetsBase)
	require.NoError(t, err)

	mustJoin := func(base, name string) string {
		loc, err := joinBase(base, name)
		require.NoError(t, err)
		return loc
	}

	tr.transport.set(mustJoin(metaBase, rootFilename(1)), rootBytes)
	tr.transport.set(mustJoin(metaBase, "timestamp.json"), timestampBytes)
	tr.transport.set(mustJoin(metaBase, metadataFilename(metadata.SNAPSHOT, snapshot.Signed.Version, consistentSnapshot)), snapshotBytes)
	tr.transport.set(mustJoin(metaBase, metadataFilename(metadata.TARGETS, targets.Signed.Version, consistentSnapshot)), targetsBytes)
	for _, f := range fixtures {
		hexDigest := hex.EncodeToString(sha256Sum(f.data))
		tr.transport.set(mustJoin(targetsBase, targetFilename(f.name, hexDigest, consistentSnapshot)), f.data)
	}

	cfg, err := config.New(testMetadataBase, rootBytes)
	require.NoError(t, err)
	cfg.RemoteTargetsURL = testTargetsBase
	cfg.LocalMetadataDir = t.TempDir()
	cfg.LocalTargetsDir = t.TempDir()
	tr.cfg = cfg

	return tr
}

func digestMeta(data []byte, version int64) metadata.MetaFiles {
	sum := sha256Sum(data)
	return metadata.MetaFiles{
		Length:  int64(len(data)),
		Hashes:  metadata.Hashes{"sha256": metadata.HexBytes(sum)},
		Version: version,
	}
}

func sha256Sum(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

func (tr *testRepo) load(t *testing.T) (*Repository, error) {
	t.Helper()
	return NewRepositoryLoader(tr.cfg).WithTransport(tr.transport).Load(context.Background())
}
