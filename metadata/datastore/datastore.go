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

// Package datastore implements the scoped persistence layer the update
// workflow uses to cache trusted metadata between load cycles and to detect
// rollback. The default backend is a flat directory with atomic replace; two
// alternate backends (an embedded Badger store and a networked Redis store)
// implement the same interface for callers who need the rollback-detection
// cache to live somewhere other than a plain directory.
package datastore

import (
	"context"
	"io"
)

// Names are the fixed keys the update workflow reads and writes; the only
// other names it stores are delegated role files ("<role>.json"). No
// subdirectories are used.
const (
	RootFile           = "root.json"
	TimestampFile      = "timestamp.json"
	SnapshotFile       = "snapshot.json"
	TargetsFile        = "targets.json"
	LatestKnownTimeFile = "latest_known_time.json"
)

// Datastore is a scoped key/value store keyed by one of the fixed filenames
// above (plus delegated role files like "<role>.json", and, in a cache-export
// destination, version-prefixed names like "7.root.json").
type Datastore interface {
	// Reader returns the stored bytes for name. ok is false (err nil) if no
	// value is stored for name; callers must not treat a missing file as an error.
	Reader(ctx context.Context, name string) (data []byte, ok bool, err error)
	// Create atomically replaces the stored value for name.
	Create(ctx context.Context, name string, data []byte) error
	// Remove deletes the stored value for name. It is idempotent: removing a
	// name that doesn't exist is not an error.
	Remove(ctx context.Context, name string) error
}

// readAll is a small helper shared by backends that expose a stream rather
// than bytes directly.
func readAll(r io.Reader) ([]byte, error) {
	return io.ReadAll(r)
}
