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

package metadata

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

// TestRootRoundTripPreservesSignedPayload decodes a fresh Root after a
// ToBytes/FromBytes round trip and diffs the Signed payload structurally,
// since reflect.DeepEqual would choke on the Expires time.Time's internal
// monotonic reading surviving serialization differently than the parsed copy.
func TestRootRoundTripPreservesSignedPayload(t *testing.T) {
	expires := time.Now().AddDate(1, 0, 0).UTC()
	root := Root(expires)
	data, err := root.ToBytes(false)
	require.NoError(t, err)

	decoded, err := (&Metadata[RootType]{}).FromBytes(data)
	require.NoError(t, err)

	diff := cmp.Diff(root.Signed, decoded.Signed, cmp.Comparer(func(a, b time.Time) bool {
		return a.Equal(b)
	}))
	require.Empty(t, diff, "decoded root payload diverged from the original:\n%s", diff)
}
