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

// Package trustedmetadata is the pure, I/O-free verification state machine at
// the center of a load cycle. It holds the currently trusted Root, Timestamp,
// Snapshot and Targets payloads and exposes one Update method per role; each
// checks signatures, version ordering and rollback/continuity rules and only
// then replaces the trusted value. Nothing in this package performs network
// I/O, filesystem I/O, or reads the wall clock - every time-dependent check
// takes "now" as a parameter supplied by the caller (the time oracle in
// metadata/updater).
package trustedmetadata

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/config"
)

// delegator is satisfied by *metadata.Metadata[RootType] and
// *metadata.Metadata[TargetsType], the two payload shapes that can delegate
// signing authority to another role.
type delegator interface {
	VerifyDelegate(delegatedRole string, delegatedMetadata any) error
}

// TrustedMetadata is the accumulated, verified trust state of one load cycle.
type TrustedMetadata struct {
	Root      *metadata.Metadata[metadata.RootType]
	Timestamp *metadata.Metadata[metadata.TimestampType]
	Snapshot  *metadata.Metadata[metadata.SnapshotType]
	// Targets maps role name ("targets" for the top-level role, or a
	// delegated role's name) to its verified Targets payload.
	Targets map[string]*metadata.Metadata[metadata.TargetsType]
}

// New verifies root self-consistently (under its own Root keys/threshold) and
// seeds a TrustedMetadata with it as the sole trusted value.
func New(root *metadata.Metadata[metadata.RootType]) (*TrustedMetadata, error) {
	if err := root.VerifyDelegate(metadata.ROOT, root); err != nil {
		return nil, metadata.ErrVerifyMetadata{Role: metadata.ROOT, Err: err}
	}
	log.Debugf("Trusted root self-verified at version %d\n", root.Signed.Version)
	return &TrustedMetadata{Root: root}, nil
}

// UpdateRoot verifies newRoot under both the currently trusted root's Root
// keys (continuity) and newRoot's own Root keys (self-consistency), enforces
// monotonic versioning, and on success replaces the trusted root.
//
// A newRoot with the same version as the trusted root is reported via
// metadata.ErrEqualVersionNumber rather than being treated as a hard failure:
// the root-walk loop in metadata/updater uses this to end the walk cleanly.
func (tm *TrustedMetadata) UpdateRoot(newRoot *metadata.Metadata[metadata.RootType]) error {
	if err := tm.Root.VerifyDelegate(metadata.ROOT, newRoot); err != nil {
		return metadata.ErrVerifyMetadata{Role: metadata.ROOT, Err: err}
	}
	if err := newRoot.VerifyDelegate(metadata.ROOT, newRoot); err != nil {
		return metadata.ErrVerifyMetadata{Role: metadata.ROOT, Err: err}
	}
	if newRoot.Signed.Version < tm.Root.Signed.Version {
		return metadata.ErrOlderMetadata{Role: metadata.ROOT, Current: tm.Root.Signed.Version, Fetched: newRoot.Signed.Version}
	}
	if newRoot.Signed.Version == tm.Root.Signed.Version {
		return metadata.ErrEqualVersionNumber{Role: metadata.ROOT}
	}
	log.Infof("Root rotated from version %d to %d\n", tm.Root.Signed.Version, newRoot.Signed.Version)
	tm.Root = newRoot
	return nil
}

// UpdateTimestamp verifies newTimestamp under the trusted root's Timestamp
// keys and, if a timestamp is already trusted, enforces that the version
// never decreases.
func (tm *TrustedMetadata) UpdateTimestamp(newTimestamp *metadata.Metadata[metadata.TimestampType]) error {
	if err := tm.Root.VerifyDelegate(metadata.TIMESTAMP, newTimestamp); err != nil {
		return metadata.ErrVerifyMetadata{Role: metadata.TIMESTAMP, Err: err}
	}
	if tm.Timestamp != nil && newTimestamp.Signed.Version < tm.Timestamp.Signed.Version {
		return metadata.ErrOlderMetadata{Role: metadata.TIMESTAMP, Current: tm.Timestamp.Signed.Version, Fetched: newTimestamp.Signed.Version}
	}
	tm.Timestamp = newTimestamp
	return nil
}

// UpdateSnapshot verifies newSnapshot's declared version against the trusted
// timestamp's meta entry, verifies its signatures under the trusted root's
// Snapshot keys, and - if a snapshot is already trusted - enforces rollback
// and continuity: the snapshot version and the targets.json entry's version
// may not decrease, and every filename listed in the old snapshot must still
// be listed in the new one.
func (tm *TrustedMetadata) UpdateSnapshot(newSnapshot *metadata.Metadata[metadata.SnapshotType]) error {
	declared, ok := tm.Timestamp.Signed.Meta["snapshot.json"]
	if !ok {
		return metadata.ErrMetaMissing{File: "snapshot.json", Role: metadata.TIMESTAMP}
	}
	if newSnapshot.Signed.Version != declared.Version {
		return metadata.ErrVersionMismatch{Role: metadata.SNAPSHOT, Fetched: newSnapshot.Signed.Version, Expected: declared.Version}
	}
	if err := tm.Root.VerifyDelegate(metadata.SNAPSHOT, newSnapshot); err != nil {
		return metadata.ErrVerifyMetadata{Role: metadata.SNAPSHOT, Err: err}
	}
	if tm.Snapshot != nil {
		if newSnapshot.Signed.Version < tm.Snapshot.Signed.Version {
			return metadata.ErrOlderMetadata{Role: metadata.SNAPSHOT, Current: tm.Snapshot.Signed.Version, Fetched: newSnapshot.Signed.Version}
		}
		if oldTargetsMeta, ok := tm.Snapshot.Signed.Meta["targets.json"]; ok {
			if newTargetsMeta, ok := newSnapshot.Signed.Meta["targets.json"]; ok {
				if newTargetsMeta.Version < oldTargetsMeta.Version {
					return metadata.ErrOlderMetadata{Role: metadata.TARGETS, Current: oldTargetsMeta.Version, Fetched: newTargetsMeta.Version}
				}
			}
		}
		for filename := range tm.Snapshot.Signed.Meta {
			if _, stillPresent := newSnapshot.Signed.Meta[filename]; !stillPresent {
				return metadata.ErrSnapshotMetaRemoved{Filename: filename}
			}
		}
	}
	tm.Snapshot = newSnapshot
	return nil
}

// UpdateDelegatedTargets verifies newTargets (the top-level "targets" role, or
// a role delegated by delegator) against the declared version in the trusted
// snapshot's meta map, and - if that role is already trusted - enforces that
// its version never decreases.
func (tm *TrustedMetadata) UpdateDelegatedTargets(roleName string, delegator delegator, newTargets *metadata.Metadata[metadata.TargetsType]) error {
	if tm.Snapshot == nil {
		return metadata.ErrValue{Msg: "cannot update targets before snapshot is trusted"}
	}
	filename := roleName + ".json"
	declared, ok := tm.Snapshot.Signed.Meta[filename]
	if !ok {
		return metadata.ErrRoleNotInMeta{Name: roleName}
	}
	if newTargets.Signed.Version != declared.Version {
		return metadata.ErrVersionMismatch{Role: roleName, Fetched: newTargets.Signed.Version, Expected: declared.Version}
	}
	if err := delegator.VerifyDelegate(roleName, newTargets); err != nil {
		return metadata.ErrVerifyMetadata{Role: roleName, Err: err}
	}
	if old, ok := tm.Targets[roleName]; ok && newTargets.Signed.Version < old.Signed.Version {
		return metadata.ErrOlderMetadata{Role: roleName, Current: old.Signed.Version, Fetched: newTargets.Signed.Version}
	}
	if tm.Targets == nil {
		tm.Targets = map[string]*metadata.Metadata[metadata.TargetsType]{}
	}
	tm.Targets[roleName] = newTargets
	log.Debugf("Trusted targets role %s at version %d\n", roleName, newTargets.Signed.Version)
	return nil
}

// roleExpirationOrder is the fixed tie-break order used by EarliestExpiration:
// the first strictly-smallest expiration wins, scanned Root, Timestamp,
// Snapshot, then top-level Targets.
var roleExpirationOrder = []string{metadata.ROOT, metadata.TIMESTAMP, metadata.SNAPSHOT, metadata.TARGETS}

// EarliestExpiration returns the role name and instant of whichever trusted
// role expires soonest, scanning Root/Timestamp/Snapshot/Targets in that fixed
// order and keeping the first strict minimum (matching the reference
// implementation's array-order argmin).
func (tm *TrustedMetadata) EarliestExpiration() (role string, expires time.Time, ok bool) {
	candidates := map[string]time.Time{}
	if tm.Root != nil {
		candidates[metadata.ROOT] = tm.Root.Signed.Expires
	}
	if tm.Timestamp != nil {
		candidates[metadata.TIMESTAMP] = tm.Timestamp.Signed.Expires
	}
	if tm.Snapshot != nil {
		candidates[metadata.SNAPSHOT] = tm.Snapshot.Signed.Expires
	}
	if top, present := tm.Targets[metadata.TARGETS]; present {
		candidates[metadata.TARGETS] = top.Signed.Expires
	}
	for _, r := range roleExpirationOrder {
		t, present := candidates[r]
		if !present {
			continue
		}
		if !ok || t.Before(expires) {
			role, expires, ok = r, t, true
		}
	}
	return role, expires, ok
}

// CheckExpiredInclusive implements check_expired: it fails unless
// now <= expires, when enforcement is Safe. Unsafe enforcement always passes.
func CheckExpiredInclusive(enforcement config.ExpirationEnforcement, now time.Time, expires time.Time, role string) error {
	if enforcement == config.Unsafe {
		return nil
	}
	if now.After(expires) {
		return metadata.ErrExpiredMetadata{Role: role}
	}
	return nil
}

// CheckNotExpiredStrict implements the read_target-time check: it fails
// unless now is strictly before expires, when enforcement is Safe.
func CheckNotExpiredStrict(enforcement config.ExpirationEnforcement, now time.Time, expires time.Time, role string) error {
	if enforcement == config.Unsafe {
		return nil
	}
	if !now.Before(expires) {
		return metadata.ErrExpiredMetadata{Role: role}
	}
	return nil
}
