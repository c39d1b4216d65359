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
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/practicaltuf/tufclient/metadata"
)

// normalizeBaseURL appends a trailing slash if raw lacks one; otherwise it is
// used verbatim. Idempotent: normalizing an already-normalized URL is a no-op.
func normalizeBaseURL(raw string) (string, error) {
	if _, err := url.Parse(raw); err != nil {
		return "", metadata.ErrParseURL{URL: raw, Err: err}
	}
	if strings.HasSuffix(raw, "/") {
		return raw, nil
	}
	return raw + "/", nil
}

// joinBase joins a normalized base URL with a relative filename.
func joinBase(base, rel string) (string, error) {
	joined, err := url.JoinPath(base, rel)
	if err != nil {
		return "", metadata.ErrJoinURL{Base: base, Path: rel, Err: err}
	}
	return joined, nil
}

// metadataFilename builds the on-the-wire filename for a role, following the
// metadata URL conventions: "{version}.{role}.json" under consistent
// snapshots (root is always version-prefixed), else "{role}.json".
func metadataFilename(role string, version int64, consistentSnapshot bool) string {
	if role == metadata.ROOT || consistentSnapshot {
		return fmt.Sprintf("%d.%s.json", version, role)
	}
	return role + ".json"
}

// rootFilename builds "{version}.root.json"; root is always version-prefixed
// regardless of the consistent-snapshot flag.
func rootFilename(version int64) string {
	return strconv.FormatInt(version, 10) + ".root.json"
}

// targetFilename builds the on-disk/on-the-wire filename for a target, per
// target URL conventions: "{sha256_hex}.{name}" under consistent
// snapshots, else "{name}".
func targetFilename(name string, hexDigest string, consistentSnapshot bool) string {
	if !consistentSnapshot {
		return name
	}
	dir, base := splitDirBase(name)
	if dir == "" {
		return hexDigest + "." + base
	}
	return dir + "/" + hexDigest + "." + base
}

func splitDirBase(path string) (dir, base string) {
	idx := strings.LastIndex(path, "/")
	if idx < 0 {
		return "", path
	}
	return path[:idx], path[idx+1:]
}

// sha256HexOf returns the lowercase hex SHA-256 digest listed for a target,
// preferring "sha256" if present among possibly several hash algorithms.
func sha256HexOf(hashes metadata.Hashes) (string, bool) {
	h, ok := hashes["sha256"]
	if !ok {
		return "", false
	}
	return fmt.Sprintf("%x", []byte(h)), true
}
