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

	"github.com/practicaltuf/tufclient/metadata"
)

// fetchAll runs fetch_max_size and drains it fully into memory. Role loaders
// need the whole artifact anyway to parse it as JSON, so there is no benefit
// to streaming past this point; only read_target hands its
// caller a live stream.
func (r *Repository) fetchAll(ctx context.Context, loc string, max int64, label string) ([]byte, error) {
	rc, err := r.fetcher.FetchMaxSize(ctx, loc, max, label)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// fetchSHA256All runs fetch_sha256 and drains it fully into memory.
func (r *Repository) fetchSHA256All(ctx context.Context, loc string, expectedLen int64, label string, expectedDigest metadata.HexBytes) ([]byte, error) {
	rc, err := r.fetcher.FetchSHA256(ctx, loc, expectedLen, label, expectedDigest)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
