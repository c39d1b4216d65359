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
	"io"
	"strings"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/datastore"
)

// CacheMetadata copies every verified
// metadata file currently held - the four top-level roles plus every visited
// delegated targets file - into dest under the same filename conventions
// this Repository uses. With includeRootChain, it additionally writes every
// intermediate root version this load cycle traversed.
func (r *Repository) CacheMetadata(ctx context.Context, dest datastore.Datastore, includeRootChain bool) error {
	consistent := r.trusted.Root.Signed.ConsistentSnapshot
	// each pair is {name in r.ds, name the metadata base URL serves it under}
	exports := [][2]string{
		{datastore.RootFile, datastore.RootFile},
		{datastore.TimestampFile, datastore.TimestampFile},
		{datastore.SnapshotFile, metadataFilename(metadata.SNAPSHOT, r.trusted.Snapshot.Signed.Version, consistent)},
	}
	for _, name := range append([]string{datastore.TargetsFile}, r.delegatedFilenames...) {
		role := strings.TrimSuffix(name, ".json")
		wire := name
		if t, ok := r.trusted.Targets[role]; ok {
			wire = metadataFilename(role, t.Signed.Version, consistent)
		}
		exports = append(exports, [2]string{name, wire})
	}

	for _, e := range exports {
		data, ok, err := r.ds.Reader(ctx, e[0])
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := dest.Create(ctx, e[1], data); err != nil {
			return err
		}
	}

	if includeRootChain {
		for version, data := range r.rootChain {
			if err := dest.Create(ctx, rootFilename(version), data); err != nil {
				return err
			}
		}
	}
	return nil
}

// Cache runs CacheMetadata plus, for each target in
// subset (or every known target if subset is empty), streaming it through
// the verified ReadTarget path into targetsDest under the on-disk filename
// the targets base URL would serve.
func (r *Repository) Cache(ctx context.Context, metadataDest, targetsDest datastore.Datastore, subset []string, includeRootChain bool) error {
	if err := r.CacheMetadata(ctx, metadataDest, includeRootChain); err != nil {
		return err
	}

	names := subset
	if len(names) == 0 {
		names = r.allTargetNames()
	}

	consistent := r.usesHashPrefixedTargets()
	for _, name := range names {
		rc, found, err := r.ReadTarget(ctx, name)
		if err != nil {
			return err
		}
		if !found {
			continue
		}
		data, err := io.ReadAll(rc)
		closeErr := rc.Close()
		if err != nil {
			return err
		}
		if closeErr != nil {
			return closeErr
		}

		target, _ := r.GetTargetInfo(name)
		hexDigest, _ := sha256HexOf(target.Hashes)
		filename := targetFilename(name, hexDigest, consistent)
		if err := targetsDest.Create(ctx, filename, data); err != nil {
			return err
		}
	}
	return nil
}

// allTargetNames collects every target path reachable from the top-level
// targets payload and its delegation tree, in pre-order.
func (r *Repository) allTargetNames() []string {
	top, ok := r.trusted.Targets[metadata.TARGETS]
	if !ok {
		return nil
	}
	var names []string
	collectTargetNames(top, &names)
	return names
}

// Targets returns the merged view of every target this repository knows
// about, top-level plus every visited delegation, in the same pre-order
// precedence GetTargetInfo searches by (the first occurrence wins; a
// delegated entry never shadows a top-level one of the same name).
func (r *Repository) Targets() map[string]metadata.TargetFiles {
	top, ok := r.trusted.Targets[metadata.TARGETS]
	if !ok {
		return nil
	}
	merged := map[string]metadata.TargetFiles{}
	collectTargets(top, merged)
	return merged
}

func collectTargets(node *metadata.Metadata[metadata.TargetsType], out map[string]metadata.TargetFiles) {
	for name, tf := range node.Signed.Targets {
		if _, exists := out[name]; !exists {
			out[name] = tf
		}
	}
	if node.Signed.Delegations == nil {
		return
	}
	for _, role := range node.Signed.Delegations.Roles {
		if role.Targets != nil {
			collectTargets(role.Targets, out)
		}
	}
}

func collectTargetNames(node *metadata.Metadata[metadata.TargetsType], out *[]string) {
	for name := range node.Signed.Targets {
		*out = append(*out, name)
	}
	if node.Signed.Delegations == nil {
		return
	}
	for _, role := range node.Signed.Delegations.Roles {
		if role.Targets != nil {
			collectTargetNames(role.Targets, out)
		}
	}
}
