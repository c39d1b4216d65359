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
	"testing"

	"pgregory.net/rapid"
)

// TestNormalizeBaseURLIsIdempotent checks that running normalizeBaseURL on
// its own output always returns the same string, since joinBase relies on
// callers never double-normalizing a base URL.
func TestNormalizeBaseURLIsIdempotent(t *testing.T) {
	host := rapid.StringMatching(`[a-z][a-z0-9]{0,10}(\.[a-z][a-z0-9]{0,10}){0,2}`)
	path := rapid.SliceOfN(rapid.StringMatching(`[a-z0-9_-]{1,8}`), 0, 4)

	rapid.Check(t, func(t *rapid.T) {
		raw := "https://" + host.Draw(t, "host")
		for _, segment := range path.Draw(t, "path") {
			raw += "/" + segment
		}

		once, err := normalizeBaseURL(raw)
		if err != nil {
			t.Fatalf("normalizeBaseURL(%q): %v", raw, err)
		}
		twice, err := normalizeBaseURL(once)
		if err != nil {
			t.Fatalf("normalizeBaseURL(%q): %v", once, err)
		}
		if once != twice {
			t.Fatalf("not idempotent: normalizeBaseURL(%q) = %q, normalizeBaseURL(%q) = %q", raw, once, once, twice)
		}
	})
}
