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

// Command tuf-fetch is a thin CLI front-end over the updater package: load a
// repository from a trusted root, then download targets or list what a
// repository currently serves. It is not meant to be a full-featured
// replacement for embedding the updater package directly.
package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		log.Error(err)
		fmt.Fprintln(os.Stderr, "tuf-fetch:", err)
		os.Exit(1)
	}
}
