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

// loadTargets loads the top-level targets role (delegated
// directly by root), then recurses into its delegation tree.
func (r *Repository) loadTargets(ctx context.Context) error {
	d, ok := r.trusted.Snapshot.Signed.Meta[datastore.TargetsFile]
	if !ok {
		return metadata.ErrMetaMissing{File: datastore.TargetsFile, Role: metadata.SNAPSHOT}
	}

	r.primeStoredTargets(ctx, metadata.TARGETS)

	filename := metadataFilename(metadata.TARGETS, d.Version, r.trusted.Root.Signed.ConsistentSnapshot)
	loc, err := joinBase(r.metadataBaseURL, filename)
	if err != nil {
		return err
	}
	data, err := r.fetchMetaBounded(ctx, loc, d, "max_targets_size argument")
	if err != nil {
		return err
	}
	newTargets, err := (&metadata.Metadata[metadata.TargetsType]{}).FromBytes(data)
	if err != nil {
		return metadata.ErrParseMetadata{Role: metadata.TARGETS, Err: err}
	}
	if err := r.trusted.UpdateDelegatedTargets(metadata.TARGETS, r.trusted.Root, newTargets); err != nil {
		if _, rollback := err.(metadata.ErrOlderMetadata); rollback {
			r.metrics.observeRollbackRejected(metadata.TARGETS)
		}
		return err
	}

	now, err := r.oracle.Now(ctx)
	if err != nil {
		return err
	}
	if err := trustedmetadata.CheckExpiredInclusive(r.cfg.ExpirationEnforcement, now, newTargets.Signed.Expires, metadata.TARGETS); err != nil {
		return err
	}
	if err := r.ds.Create(ctx, datastore.TargetsFile, data); err != nil {
		return err
	}

	visited := 0
	return r.loadDelegations(ctx, metadata.TARGETS, newTargets, &visited)
}

// fetchMetaBounded applies the size/digest policy for a targets fetch: digest-bound
// when the meta entry declares hashes, length-bound otherwise, falling back
// to max_targets_size when no length was declared either.
func (r *Repository) fetchMetaBounded(ctx context.Context, loc string, d metadata.MetaFiles, label string) ([]byte, error) {
	limit := d.Length
	if limit == 0 {
		limit = r.cfg.MaxTargetsSize
	}
	if len(d.Hashes) > 0 {
		return r.fetchSHA256All(ctx, loc, limit, label, d.Hashes["sha256"])
	}
	return r.fetchAll(ctx, loc, limit, label)
}

func (r *Repository) primeStoredTargets(ctx context.Context, roleName string) {
	filename := roleName + ".json"
	data, ok, err := r.ds.Reader(ctx, filename)
	if err != nil || !ok {
		return
	}
	stored, err := (&metadata.Metadata[metadata.TargetsType]{}).FromBytes(data)
	if err != nil {
		log.Debugf("ignoring unparsable stored %s: %v", filename, err)
		return
	}
	var verifyErr error
	if roleName == metadata.TARGETS {
		verifyErr = r.trusted.Root.VerifyDelegate(roleName, stored)
	} else {
		parent, ok := r.trusted.Targets[metadata.TARGETS]
		if !ok {
			return
		}
		verifyErr = parent.VerifyDelegate(roleName, stored)
	}
	if verifyErr != nil {
		log.Debugf("ignoring stored %s that no longer verifies: %v", filename, verifyErr)
		return
	}
	if r.trusted.Targets == nil {
		r.trusted.Targets = map[string]*metadata.Metadata[metadata.TargetsType]{}
	}
	r.trusted.Targets[roleName] = stored
}

// loadDelegations runs a pre-order DFS over parent's delegated
// roles. All direct children are fetched and verified before any is attached
// or any grandchild is visited; any failure aborts the whole load cycle.
func (r *Repository) loadDelegations(ctx context.Context, parentName string, parent *metadata.Metadata[metadata.TargetsType], visited *int) error {
	if parent.Signed.Delegations == nil {
		return nil
	}
	roles := parent.Signed.Delegations.Roles
	for _, role := range roles {
		if err := role.VerifyPaths(); err != nil {
			return err
		}
	}
	fetched := make(map[string]*metadata.Metadata[metadata.TargetsType], len(roles))

	for _, role := range roles {
		*visited++
		if *visited > r.cfg.MaxDelegations {
			return metadata.ErrMaxUpdatesExceeded{What: "delegation traversal", Limit: int64(r.cfg.MaxDelegations)}
		}

		d, ok := r.trusted.Snapshot.Signed.Meta[role.Name+".json"]
		if !ok {
			return metadata.ErrRoleNotInMeta{Name: role.Name}
		}
		filename := metadataFilename(role.Name, d.Version, r.trusted.Root.Signed.ConsistentSnapshot)
		loc, err := joinBase(r.metadataBaseURL, filename)
		if err != nil {
			return err
		}
		data, err := r.fetchAll(ctx, loc, r.cfg.MaxTargetsSize, "max_targets_size parameter")
		if err != nil {
			return err
		}
		child, err := (&metadata.Metadata[metadata.TargetsType]{}).FromBytes(data)
		if err != nil {
			return metadata.ErrParseMetadata{Role: role.Name, Err: err}
		}
		if err := parent.VerifyDelegate(role.Name, child); err != nil {
			return metadata.ErrVerifyMetadata{Role: role.Name, Err: err}
		}
		if child.Signed.Version != d.Version {
			return metadata.ErrVersionMismatch{Role: role.Name, Fetched: child.Signed.Version, Expected: d.Version}
		}
		if err := r.ds.Create(ctx, role.Name+".json", data); err != nil {
			return err
		}
		r.delegatedFilenames = append(r.delegatedFilenames, role.Name+".json")
		fetched[role.Name] = child
		if r.trusted.Targets == nil {
			r.trusted.Targets = map[string]*metadata.Metadata[metadata.TargetsType]{}
		}
		r.trusted.Targets[role.Name] = child
	}

	for i := range roles {
		role := &parent.Signed.Delegations.Roles[i]
		child, ok := fetched[role.Name]
		if !ok {
			return metadata.ErrDelegatedRolesNotConsistent{Name: role.Name}
		}
		role.Targets = child
	}

	for i := range roles {
		role := &parent.Signed.Delegations.Roles[i]
		if err := r.loadDelegations(ctx, role.Name, role.Targets, visited); err != nil {
			return err
		}
	}
	return nil
}
