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

// loadTimestamp fetches, verifies, and checks for rollback against
// whatever timestamp.json survives from a previous load cycle, check
// expiration, and persist.
func (r *Repository) loadTimestamp(ctx context.Context) error {
	r.primeStoredTimestamp(ctx)

	loc, err := joinBase(r.metadataBaseURL, "timestamp.json")
	if err != nil {
		return err
	}
	data, err := r.fetchAll(ctx, loc, r.cfg.MaxTimestampSize, "max_timestamp_size argument")
	if err != nil {
		return err
	}
	newTimestamp, err := (&metadata.Metadata[metadata.TimestampType]{}).FromBytes(data)
	if err != nil {
		return metadata.ErrParseMetadata{Role: metadata.TIMESTAMP, Err: err}
	}
	if err := r.trusted.UpdateTimestamp(newTimestamp); err != nil {
		if _, rollback := err.(metadata.ErrOlderMetadata); rollback {
			r.metrics.observeRollbackRejected(metadata.TIMESTAMP)
		}
		return err
	}

	now, err := r.oracle.Now(ctx)
	if err != nil {
		return err
	}
	if err := trustedmetadata.CheckExpiredInclusive(r.cfg.ExpirationEnforcement, now, newTimestamp.Signed.Expires, metadata.TIMESTAMP); err != nil {
		return err
	}
	return r.ds.Create(ctx, datastore.TimestampFile, data)
}

// primeStoredTimestamp loads whatever timestamp.json survives in the
// datastore from a previous load cycle and, if it verifies under the
// currently trusted root, seeds r.trusted.Timestamp with it so
// UpdateTimestamp's version check catches a rollback. A stored file that
// fails to verify is silently ignored: the trusted root may
// have rotated Timestamp keys between cycles.
func (r *Repository) primeStoredTimestamp(ctx context.Context) {
	data, ok, err := r.ds.Reader(ctx, datastore.TimestampFile)
	if err != nil || !ok {
		return
	}
	stored, err := (&metadata.Metadata[metadata.TimestampType]{}).FromBytes(data)
	if err != nil {
		log.Debugf("ignoring unparsable stored timestamp.json: %v", err)
		return
	}
	if err := r.trusted.Root.VerifyDelegate(metadata.TIMESTAMP, stored); err != nil {
		log.Debugf("ignoring stored timestamp.json that no longer verifies: %v", err)
		return
	}
	r.trusted.Timestamp = stored
}
