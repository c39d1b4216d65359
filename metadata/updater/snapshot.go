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

	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/datastore"
	"github.com/practicaltuf/tufclient/metadata/trustedmetadata"
)

// loadSnapshot fetches, verifies, and persists the snapshot role.
func (r *Repository) loadSnapshot(ctx context.Context) error {
	d, ok := r.trusted.Timestamp.Signed.Meta[datastore.SnapshotFile]
	if !ok {
		return metadata.ErrMetaMissing{File: datastore.SnapshotFile, Role: metadata.TIMESTAMP}
	}

	r.primeStoredSnapshot(ctx)

	filename := metadataFilename(metadata.SNAPSHOT, d.Version, r.trusted.Root.Signed.ConsistentSnapshot)
	loc, err := joinBase(r.metadataBaseURL, filename)
	if err != nil {
		return err
	}
	data, err := r.fetchSHA256All(ctx, loc, d.Length, "timestamp.json", d.Hashes["sha256"])
	if err != nil {
		return err
	}
	newSnapshot, err := (&metadata.Metadata[metadata.SnapshotType]{}).FromBytes(data)
	if err != nil {
		return metadata.ErrParseMetadata{Role: metadata.SNAPSHOT, Err: err}
	}
	if err := r.trusted.UpdateSnapshot(newSnapshot); err != nil {
		if _, rollback := err.(metadata.ErrOlderMetadata); rollback {
			r.metrics.observeRollbackRejected(metadata.SNAPSHOT)
		}
		return err
	}

	now, err := r.oracle.Now(ctx)
	if err != nil {
		return err
	}
	if err := trustedmetadata.CheckExpiredInclusive(r.cfg.ExpirationEnforcement, now, newSnapshot.Signed.Expires, metadata.SNAPSHOT); err != nil {
		return err
	}
	return r.ds.Create(ctx, datastore.SnapshotFile, data)
}

// primeStoredSnapshot mirrors primeStoredTimestamp: it seeds r.trusted.Snapshot
// from whatever snapshot.json survives in the datastore, provided it still
// verifies under the current trusted root, so UpdateSnapshot's rollback and
// continuity checks see it.
func (r *Repository) primeStoredSnapshot(ctx context.Context) {
	data, ok, err := r.ds.Reader(ctx, datastore.SnapshotFile)
	if err != nil || !ok {
		return
	}
	stored, err := (&metadata.Metadata[metadata.SnapshotType]{}).FromBytes(data)
	if err != nil {
		log.Debugf("ignoring unparsable stored snapshot.json: %v", err)
		return
	}
	if err := r.trusted.Root.VerifyDelegate(metadata.SNAPSHOT, stored); err != nil {
		log.Debugf("ignoring stored snapshot.json that no longer verifies: %v", err)
		return
	}
	r.trusted.Snapshot = stored
}
