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
	"context"

	"github.com/Masterminds/semver/v3"
	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/datastore"
	"github.com/practicaltuf/tufclient/metadata/trustedmetadata"
)

// supportedSpecVersions is the range of TUF spec_version strings this client
// will trust a root for. original_source/tough checks this field on every
// root it loads; spec.md never mentions it, but a client that ignores it
// would happily parse metadata from an incompatible future TUF dialect.
var supportedSpecVersions = func() *semver.Constraints {
	c, err := semver.NewConstraint("^1.0.0")
	if err != nil {
		panic(err)
	}
	return c
}()

func checkSpecVersion(raw string) error {
	v, err := semver.NewVersion(raw)
	if err != nil {
		return metadata.ErrUnsupportedSpecVersion{Version: raw}
	}
	if !supportedSpecVersions.Check(v) {
		return metadata.ErrUnsupportedSpecVersion{Version: raw}
	}
	return nil
}

// keySetsEqual reports whether two role key-ID sets are the same, ignoring order.
func keySetsEqual(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	seen := map[string]bool{}
	for _, k := range a {
		seen[k] = true
	}
	for _, k := range b {
		if !seen[k] {
			return false
		}
	}
	return true
}

// loadRoot runs the root-rotation walk: it seeds trust from
// the caller-supplied root bytes, then walks "{N+1}.root.json" forward until
// the remote has nothing newer to offer, stopping at max_root_updates. Every
// verified root version's raw bytes are retained in r.rootChain so
// cache_metadata can later export the whole chain without re-fetching.
func (r *Repository) loadRoot(ctx context.Context) error {
	trustedBytes := r.cfg.LocalTrustedRoot
	root, err := (&metadata.Metadata[metadata.RootType]{}).FromBytes(trustedBytes)
	if err != nil {
		return metadata.ErrParseMetadata{Role: metadata.ROOT, Err: err}
	}
	if err := checkSpecVersion(root.Signed.SpecVersion); err != nil {
		return err
	}
	tm, err := trustedmetadata.New(root)
	if err != nil {
		return err
	}
	r.trusted = tm
	r.rootChain = map[int64][]byte{root.Signed.Version: trustedBytes}
	if err := r.ds.Create(ctx, datastore.RootFile, trustedBytes); err != nil {
		return err
	}

	n0 := root.Signed.Version
	initialTimestampKeys := append([]string(nil), root.Signed.Roles[metadata.TIMESTAMP].KeyIDs...)
	initialSnapshotKeys := append([]string(nil), root.Signed.Roles[metadata.SNAPSHOT].KeyIDs...)

	for {
		n := r.trusted.Root.Signed.Version
		if n >= n0+r.cfg.MaxRootUpdates {
			return metadata.ErrMaxUpdatesExceeded{What: "root-walk", Limit: r.cfg.MaxRootUpdates}
		}

		loc, err := joinBase(r.metadataBaseURL, rootFilename(n+1))
		if err != nil {
			return err
		}
		data, err := r.fetchAll(ctx, loc, r.cfg.MaxRootSize, "max_root_size argument")
		if err != nil {
			log.Debugf("root-walk stopped at version %d: %v", n, err)
			break
		}

		newRoot, err := (&metadata.Metadata[metadata.RootType]{}).FromBytes(data)
		if err != nil {
			return metadata.ErrParseMetadata{Role: metadata.ROOT, Err: err}
		}
		if err := checkSpecVersion(newRoot.Signed.SpecVersion); err != nil {
			return err
		}
		if err := r.trusted.UpdateRoot(newRoot); err != nil {
			if _, equal := err.(metadata.ErrEqualVersionNumber); equal {
				break
			}
			if _, rollback := err.(metadata.ErrOlderMetadata); rollback {
				r.metrics.observeRollbackRejected(metadata.ROOT)
			}
			return err
		}
		if err := r.ds.Create(ctx, datastore.RootFile, data); err != nil {
			return err
		}
		r.rootChain[newRoot.Signed.Version] = data
	}

	now, err := r.oracle.Now(ctx)
	if err != nil {
		return err
	}
	if err := trustedmetadata.CheckExpiredInclusive(r.cfg.ExpirationEnforcement, now, r.trusted.Root.Signed.Expires, metadata.ROOT); err != nil {
		return err
	}

	finalTimestampKeys := r.trusted.Root.Signed.Roles[metadata.TIMESTAMP].KeyIDs
	finalSnapshotKeys := r.trusted.Root.Signed.Roles[metadata.SNAPSHOT].KeyIDs
	if !keySetsEqual(initialTimestampKeys, finalTimestampKeys) || !keySetsEqual(initialSnapshotKeys, finalSnapshotKeys) {
		log.Infof("root rotation changed timestamp/snapshot keys, invalidating cached timestamp and snapshot")
		if err := r.ds.Remove(ctx, datastore.TimestampFile); err != nil {
			return err
		}
		if err := r.ds.Remove(ctx, datastore.SnapshotFile); err != nil {
			return err
		}
	}
	return nil
}
