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

// Package metadata implements the TUF signed-metadata schema: the envelope, the
// four top-level role payloads, keys, delegations, and the primitives (signing,
// signature verification, hash/length checks) that the update workflow in
// metadata/updater builds on. It does not itself fetch or cache anything.
package metadata

import (
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"
)

// Roles is the closed set of Signed payload shapes this package supports.
type Roles interface {
	RootType | SnapshotType | TimestampType | TargetsType
}

// SPECIFICATION_VERSION is the TUF specification version this client speaks.
const SPECIFICATION_VERSION = "1.0.31"

// Top-level role names, used both as map keys and as the `_type` discriminator.
const (
	ROOT      = "root"
	SNAPSHOT  = "snapshot"
	TARGETS   = "targets"
	TIMESTAMP = "timestamp"
)

// Metadata is a signed envelope around one of the four role payload types.
type Metadata[T Roles] struct {
	Signed             T              `json:"signed"`
	Signatures         []Signature    `json:"signatures"`
	UnrecognizedFields map[string]any `json:"-"`
}

// Signature is a single role signature over the canonical encoding of Signed.
type Signature struct {
	KeyID              string         `json:"keyid"`
	Signature          HexBytes       `json:"sig"`
	UnrecognizedFields map[string]any `json:"-"`
}

// RootType is the Signed portion of root metadata: the trust anchor for every
// other role's keys and thresholds.
type RootType struct {
	Type               string           `json:"_type"`
	SpecVersion        string           `json:"spec_version"`
	ConsistentSnapshot bool             `json:"consistent_snapshot"`
	Version            int64            `json:"version"`
	Expires            time.Time        `json:"expires"`
	Keys               map[string]*Key  `json:"keys"`
	Roles              map[string]*Role `json:"roles"`
	UnrecognizedFields map[string]any   `json:"-"`
}

// SnapshotType is the Signed portion of snapshot metadata: the version/hash
// manifest for targets.json and every delegated targets file.
type SnapshotType struct {
	Type               string               `json:"_type"`
	SpecVersion        string               `json:"spec_version"`
	Version            int64                `json:"version"`
	Expires            time.Time            `json:"expires"`
	Meta               map[string]MetaFiles `json:"meta"`
	UnrecognizedFields map[string]any       `json:"-"`
}

// TimestampType is the Signed portion of timestamp metadata: the version/hash
// pointer to the current snapshot.
type TimestampType struct {
	Type               string               `json:"_type"`
	SpecVersion        string               `json:"spec_version"`
	Version            int64                `json:"version"`
	Expires            time.Time            `json:"expires"`
	Meta               map[string]MetaFiles `json:"meta"`
	UnrecognizedFields map[string]any       `json:"-"`
}

// TargetsType is the Signed portion of a targets (or delegated targets) file.
type TargetsType struct {
	Type               string                 `json:"_type"`
	SpecVersion        string                 `json:"spec_version"`
	Version            int64                  `json:"version"`
	Expires            time.Time              `json:"expires"`
	Targets            map[string]TargetFiles `json:"targets"`
	Delegations        *Delegations           `json:"delegations,omitempty"`
	UnrecognizedFields map[string]any         `json:"-"`
}

// Key types recognized by ToPublicKey/KeyFromPublicKey.
const (
	KeyTypeEd25519        = "ed25519"
	KeyTypeECDSA_SHA2_P256 = "ecdsa-sha2-nistp256"
	KeyTypeRSA            = "rsa"
)

// Key is a public key record as carried in root.keys / delegations.keys.
type Key struct {
	Type               string         `json:"keytype"`
	Scheme             string         `json:"scheme"`
	Value              KeyVal         `json:"keyval"`
	id                 string         `json:"-"`
	idOnce             sync.Once      `json:"-"`
	UnrecognizedFields map[string]any `json:"-"`
}

// KeyVal carries the PEM-encoded public key material.
type KeyVal struct {
	PublicKey          string         `json:"public"`
	UnrecognizedFields map[string]any `json:"-"`
}

// Role names the keys and threshold trusted to sign for a top-level role kind.
type Role struct {
	KeyIDs             []string       `json:"keyids"`
	Threshold          int            `json:"threshold"`
	UnrecognizedFields map[string]any `json:"-"`
}

// HexBytes (de)serializes as a lowercase hex string, used for signatures and
// digests throughout the schema.
type HexBytes []byte

// MarshalJSON encodes b as a lowercase hex string.
func (b HexBytes) MarshalJSON() ([]byte, error) { return json.Marshal(hex.EncodeToString(b)) }

// UnmarshalJSON decodes a hex string into b.
func (b *HexBytes) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	*b = decoded
	return err
}

// Hashes maps a hash algorithm name ("sha256", "sha512") to its digest.
type Hashes map[string]HexBytes

// MetaFiles describes one entry in a snapshot or timestamp meta map. Length and
// Hashes are optional: snapshot.json's targets.json entries may omit either,
// falling back to the loader's configured size limits.
type MetaFiles struct {
	Length             int64          `json:"length,omitempty"`
	Hashes             Hashes         `json:"hashes,omitempty"`
	Version            int64          `json:"version"`
	UnrecognizedFields map[string]any `json:"-"`
}

// TargetFiles describes one entry in a targets.json targets map.
type TargetFiles struct {
	Length             int64            `json:"length"`
	Hashes             Hashes           `json:"hashes"`
	Custom             *json.RawMessage `json:"custom,omitempty"`
	Path               string           `json:"-"`
	UnrecognizedFields map[string]any   `json:"-"`
}

// Delegations is the optional delegation record attached to a Targets payload.
type Delegations struct {
	Keys               map[string]*Key `json:"keys"`
	Roles              []DelegatedRole `json:"roles,omitempty"`
	SuccinctRoles      *SuccinctRoles  `json:"succinct_roles,omitempty"`
	UnrecognizedFields map[string]any  `json:"-"`
}

// DelegatedRole names a sub-role, its keys/threshold, and the path patterns it
// is trusted to provide. Targets is populated once the delegation traversal has
// fetched and verified this role's own Targets payload.
type DelegatedRole struct {
	Name               string             `json:"name"`
	KeyIDs             []string           `json:"keyids"`
	Threshold          int                `json:"threshold"`
	Terminating        bool               `json:"terminating"`
	PathHashPrefixes   []string           `json:"path_hash_prefixes,omitempty"`
	Paths              []string           `json:"paths,omitempty"`
	UnrecognizedFields map[string]any     `json:"-"`
	Targets            *Metadata[TargetsType] `json:"-"`
}

// SuccinctRoles describes a uniform hash-bin delegation graph. The core does not
// need to support it to implement spec.md, but the type is kept so unmarshaling
// a repository that uses it doesn't silently drop the field.
type SuccinctRoles struct {
	KeyIDs             []string       `json:"keyids"`
	Threshold          int            `json:"threshold"`
	BitLength          int            `json:"bit_length"`
	NamePrefix         string         `json:"name_prefix"`
	UnrecognizedFields map[string]any `json:"-"`
}
