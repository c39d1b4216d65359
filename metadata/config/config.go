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

// Package config holds the tunables a RepositoryLoader needs: resource bounds
// on every bounded fetch, the root-walk/delegation recursion bounds, the
// expiration enforcement mode, and the wiring for transport/datastore/caches.
package config

import (
	"fmt"
	"net/url"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
)

// ExpirationEnforcement selects whether load-time and read-time expiration
// checks are enforced. Boolean coercion: true<->Safe, false<->Unsafe.
type ExpirationEnforcement int

const (
	// Safe enforces every expiration check.
	Safe ExpirationEnforcement = iota
	// Unsafe skips every expiration check, including at read_target time.
	Unsafe
)

// Bool reports the enforcement mode's boolean coercion (true == Safe).
func (e ExpirationEnforcement) Bool() bool { return e == Safe }

// FromBool builds an ExpirationEnforcement from its boolean coercion.
func FromBool(safe bool) ExpirationEnforcement {
	if safe {
		return Safe
	}
	return Unsafe
}

func (e ExpirationEnforcement) String() string {
	if e == Safe {
		return "Safe"
	}
	return "Unsafe"
}

// Limits bounds every size-capped fetch and every iteration count the loader performs.
type Limits struct {
	// MaxRootSize bounds a single {N}.root.json fetch. Default 1 MiB.
	MaxRootSize int64 `validate:"gt=0" mapstructure:"max_root_size"`
	// MaxTimestampSize bounds the timestamp.json fetch (it carries no declared
	// length of its own). Default 1 MiB.
	MaxTimestampSize int64 `validate:"gt=0" mapstructure:"max_timestamp_size"`
	// MaxTargetsSize is the fallback cap used whenever snapshot/timestamp omits
	// a declared length for a targets file. Default 10 MiB.
	MaxTargetsSize int64 `validate:"gt=0" mapstructure:"max_targets_size"`
	// MaxRootUpdates bounds the number of successive root versions the
	// root-walk loop will fetch in one load cycle. Default 1024.
	MaxRootUpdates int64 `validate:"gt=0" mapstructure:"max_root_updates"`
	// MaxDelegations bounds the total number of delegated targets roles
	// visited by the pre-order traversal in one load cycle. Default 32.
	MaxDelegations int `validate:"gt=0" mapstructure:"max_delegations"`
}

// DefaultLimits returns the default bounds: 1 MiB roots, 1 MiB
// timestamp, 10 MiB targets fallback, 1024 root updates, 32 delegations.
func DefaultLimits() Limits {
	return Limits{
		MaxRootSize:      1 << 20,
		MaxTimestampSize: 1 << 20,
		MaxTargetsSize:   10 << 20,
		MaxRootUpdates:   1024,
		MaxDelegations:   32,
	}
}

// UpdaterConfig is the full set of inputs a RepositoryLoader needs to run a
// load cycle: size/iteration limits, the expiration enforcement mode, the
// trusted root bytes, the remote base URLs, and the local cache layout.
type UpdaterConfig struct {
	Limits
	ExpirationEnforcement ExpirationEnforcement

	LocalTrustedRoot []byte
	LocalMetadataDir string
	LocalTargetsDir  string

	RemoteMetadataURL string
	RemoteTargetsURL  string

	DisableLocalCache bool
	IncludeRootChain  bool
}

// New builds an UpdaterConfig with spec-default limits, Safe enforcement, and
// a targets URL derived from remoteURL the way the reference config package
// does (<metadata-url>/targets).
func New(remoteURL string, rootBytes []byte) (*UpdaterConfig, error) {
	targetsURL, err := url.JoinPath(remoteURL, "targets")
	if err != nil {
		return nil, fmt.Errorf("deriving default targets URL: %w", err)
	}
	return &UpdaterConfig{
		Limits:                DefaultLimits(),
		ExpirationEnforcement: Safe,
		LocalTrustedRoot:      rootBytes,
		RemoteMetadataURL:     remoteURL,
		RemoteTargetsURL:      targetsURL,
		IncludeRootChain:      false,
	}, nil
}

// DecodeLimits fills a Limits from a loosely-typed map (e.g. a parsed TOML or
// JSON document of unknown provenance), useful for callers sourcing overrides
// from an external config file rather than code.
func DecodeLimits(raw map[string]any, into *Limits) error {
	return mapstructure.Decode(raw, into)
}

var validate = validator.New()

// Validate checks that every limit is positive and that the required URLs and
// trusted root are present. It is called once by RepositoryLoader.Load.
func (c *UpdaterConfig) Validate() error {
	if err := validate.Struct(c.Limits); err != nil {
		return fmt.Errorf("invalid limits: %w", err)
	}
	if len(c.LocalTrustedRoot) == 0 {
		return fmt.Errorf("config: LocalTrustedRoot must not be empty")
	}
	if c.RemoteMetadataURL == "" {
		return fmt.Errorf("config: RemoteMetadataURL must not be empty")
	}
	if _, err := url.Parse(c.RemoteMetadataURL); err != nil {
		return fmt.Errorf("config: invalid RemoteMetadataURL: %w", err)
	}
	if !c.DisableLocalCache {
		if c.LocalMetadataDir == "" {
			return fmt.Errorf("config: LocalMetadataDir must be set unless DisableLocalCache")
		}
	}
	return nil
}

// EnsurePathsExist creates the local metadata/targets directories if local
// caching is enabled.
func (c *UpdaterConfig) EnsurePathsExist() error {
	if c.DisableLocalCache {
		return nil
	}
	for _, path := range []string{c.LocalMetadataDir, c.LocalTargetsDir} {
		if path == "" {
			continue
		}
		if err := os.MkdirAll(path, 0o700); err != nil {
			return err
		}
	}
	return nil
}
