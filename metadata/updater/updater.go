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

// Package updater is the core update workflow: the root-rotation walk, the
// timestamp/snapshot/targets loaders, the delegation traversal, and the
// Repository facade (read_target, delegated_role, cache export) that callers
// actually hold onto. Everything here is built on top of metadata (schema and
// verification), metadata/fetcher (transport and bounded fetch), and
// metadata/datastore (persistence) - this package owns the sequencing and the
// policy decisions (rollback, continuity, expiration, fast-forward recovery)
// that tie them together.
package updater

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/practicaltuf/tufclient/metadata"
	"github.com/practicaltuf/tufclient/metadata/config"
	"github.com/practicaltuf/tufclient/metadata/datastore"
	"github.com/practicaltuf/tufclient/metadata/fetcher"
	"github.com/practicaltuf/tufclient/metadata/trustedmetadata"
)

// Repository is the immutable result of a successful load cycle: the trusted
// metadata tree, plus everything a read_target/cache_metadata/cache call
// needs afterward. It is safe for concurrent read_target calls iff the
// underlying transport is.
type Repository struct {
	trusted *trustedmetadata.TrustedMetadata
	cfg     *config.UpdaterConfig
	fetcher *fetcher.Fetcher
	ds      datastore.Datastore
	oracle  *timeOracle
	metrics *Metrics
	tracer  Tracer

	metadataBaseURL string
	targetsBaseURL  string
	loadID          string

	// rootChain retains every verified root version's raw bytes fetched
	// during this load cycle, so cache_metadata(include_root_chain=true) can
	// export the whole chain without re-fetching it.
	rootChain map[int64][]byte
	// delegatedFilenames lists, in fetch order, every delegated targets
	// filename persisted to r.ds this cycle, since Datastore has no list
	// operation of its own.
	delegatedFilenames []string

	earliestRole    string
	earliestExpires time.Time
}

// RepositoryLoader builds a Repository via a sequence of functional options,
// mirroring config.New's builder shape.
type RepositoryLoader struct {
	cfg       *config.UpdaterConfig
	transport fetcher.Transport
	ds        datastore.Datastore
	metrics   *Metrics
	tracer    Tracer
}

// NewRepositoryLoader starts a builder from cfg. Call With* methods to
// override the default transport/datastore, then Load.
func NewRepositoryLoader(cfg *config.UpdaterConfig) *RepositoryLoader {
	return &RepositoryLoader{cfg: cfg}
}

// WithTransport overrides the default HTTP/file transport (e.g. with an S3,
// GCS, rate-limited, or JWT-authenticated one).
func (l *RepositoryLoader) WithTransport(t fetcher.Transport) *RepositoryLoader {
	l.transport = t
	return l
}

// WithDatastore overrides the default flat-file datastore (e.g. with a
// Badger or Redis-backed one).
func (l *RepositoryLoader) WithDatastore(ds datastore.Datastore) *RepositoryLoader {
	l.ds = ds
	return l
}

// WithMetrics attaches a Metrics collector; nil (the default) disables metrics.
func (l *RepositoryLoader) WithMetrics(m *Metrics) *RepositoryLoader {
	l.metrics = m
	return l
}

// WithTracer attaches a Tracer; nil (the default) disables tracing.
func (l *RepositoryLoader) WithTracer(t Tracer) *RepositoryLoader {
	l.tracer = t
	return l
}

// Load runs the root, timestamp, snapshot, and targets loaders in strict order and returns the resulting
// Repository. Any verification, rollback, continuity, or expiration failure
// aborts the whole cycle; the caller gets no partially-trusted Repository.
func (l *RepositoryLoader) Load(ctx context.Context) (*Repository, error) {
	if err := l.cfg.Validate(); err != nil {
		return nil, err
	}
	if err := l.cfg.EnsurePathsExist(); err != nil {
		return nil, err
	}

	ds := l.ds
	if ds == nil {
		var err error
		if l.cfg.DisableLocalCache {
			ds, err = datastore.NewEphemeralFileDatastore()
		} else {
			ds, err = datastore.NewFileDatastore(l.cfg.LocalMetadataDir)
		}
		if err != nil {
			return nil, err
		}
	}

	transport := l.transport
	if transport == nil {
		transport = fetcher.NewDefaultTransport()
	}

	metadataBase, err := normalizeBaseURL(l.cfg.RemoteMetadataURL)
	if err != nil {
		return nil, err
	}
	targetsBase, err := normalizeBaseURL(l.cfg.RemoteTargetsURL)
	if err != nil {
		return nil, err
	}

	r := &Repository{
		cfg:             l.cfg,
		fetcher:         fetcher.New(transport),
		ds:              ds,
		oracle:          newTimeOracle(ds),
		metrics:         l.metrics,
		tracer:          l.tracer,
		metadataBaseURL: metadataBase,
		targetsBaseURL:  targetsBase,
		loadID:          uuid.NewString(),
	}
	log.WithField("load_id", r.loadID).Info("starting repository load")

	span := startSpan(ctx, r.tracer, "tuf.load_root")
	err = r.loadRoot(ctx)
	span.End(err)
	if err != nil {
		r.metrics.observeRootRotation(false)
		return nil, fmt.Errorf("load root: %w", err)
	}
	r.metrics.observeRootRotation(true)

	span = startSpan(ctx, r.tracer, "tuf.load_timestamp")
	err = r.loadTimestamp(ctx)
	span.End(err)
	if err != nil {
		return nil, fmt.Errorf("load timestamp: %w", err)
	}

	span = startSpan(ctx, r.tracer, "tuf.load_snapshot")
	err = r.loadSnapshot(ctx)
	span.End(err)
	if err != nil {
		return nil, fmt.Errorf("load snapshot: %w", err)
	}

	span = startSpan(ctx, r.tracer, "tuf.load_targets")
	err = r.loadTargets(ctx)
	span.End(err)
	if err != nil {
		return nil, fmt.Errorf("load targets: %w", err)
	}

	role, expires, ok := r.trusted.EarliestExpiration()
	if ok {
		r.earliestRole, r.earliestExpires = role, expires
	}
	log.WithField("load_id", r.loadID).Infof("repository load complete, earliest expiration %s at %s", r.earliestRole, r.earliestExpires)
	return r, nil
}

// IncludesRootChainByDefault reports whether this repository's config asks
// cache exports to include the full root chain unless a caller overrides it.
func (r *Repository) IncludesRootChainByDefault() bool {
	return r.cfg.IncludeRootChain
}

// GetTargetInfo returns the verified TargetFiles record for name, searching
// the top-level targets payload and then the delegation tree in pre-order.
func (r *Repository) GetTargetInfo(name string) (*metadata.TargetFiles, bool) {
	top, ok := r.trusted.Targets[metadata.TARGETS]
	if !ok {
		return nil, false
	}
	return searchTarget(top, name)
}

func searchTarget(node *metadata.Metadata[metadata.TargetsType], name string) (*metadata.TargetFiles, bool) {
	if tf, ok := node.Signed.Targets[name]; ok {
		return &tf, true
	}
	if node.Signed.Delegations == nil {
		return nil, false
	}
	for _, role := range node.Signed.Delegations.Roles {
		if role.Targets == nil {
			continue
		}
		if tf, ok := searchTarget(role.Targets, name); ok {
			return tf, true
		}
	}
	return nil, false
}

// DelegatedRole returns the verified delegated-role entry named name if it
// was visited during load, else false.
func (r *Repository) DelegatedRole(name string) (*metadata.DelegatedRole, bool) {
	top, ok := r.trusted.Targets[metadata.TARGETS]
	if !ok {
		return nil, false
	}
	return searchDelegatedRole(top, name)
}

func searchDelegatedRole(node *metadata.Metadata[metadata.TargetsType], name string) (*metadata.DelegatedRole, bool) {
	if node.Signed.Delegations == nil {
		return nil, false
	}
	for i := range node.Signed.Delegations.Roles {
		role := &node.Signed.Delegations.Roles[i]
		if role.Name == name {
			return role, true
		}
		if role.Targets != nil {
			if found, ok := searchDelegatedRole(role.Targets, name); ok {
				return found, true
			}
		}
	}
	return nil, false
}

// ReadTarget enforces the strict
// aggregate expiration check, locates name in the trusted target tree, and
// returns a bounded-digest stream over it. A nil, false, nil result means the
// target is simply not listed anywhere in the tree.
func (r *Repository) ReadTarget(ctx context.Context, name string) (io.ReadCloser, bool, error) {
	now, err := r.oracle.Now(ctx)
	if err != nil {
		return nil, false, err
	}
	if err := trustedmetadata.CheckNotExpiredStrict(r.cfg.ExpirationEnforcement, now, r.earliestExpires, r.earliestRole); err != nil {
		return nil, false, err
	}

	target, ok := r.GetTargetInfo(name)
	if !ok {
		return nil, false, nil
	}

	hexDigest, _ := sha256HexOf(target.Hashes)
	filename := targetFilename(name, hexDigest, r.usesHashPrefixedTargets())
	loc, err := joinBase(r.targetsBaseURL, filename)
	if err != nil {
		return nil, false, err
	}
	rc, err := r.fetcher.FetchSHA256(ctx, loc, target.Length, "targets.json", target.Hashes["sha256"])
	if err != nil {
		return nil, false, err
	}
	r.metrics.observeTargetServed(target.Length)
	return rc, true, nil
}

// usesHashPrefixedTargets reports whether target filenames on the wire carry
// a hex digest prefix, which consistent snapshots require unconditionally.
func (r *Repository) usesHashPrefixedTargets() bool {
	return r.trusted.Root.Signed.ConsistentSnapshot
}
