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

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/practicaltuf/tufclient/metadata/updater"
)

func newListCommand(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Load a repository and print every target it currently serves",
		RunE: func(cmd *cobra.Command, args []string) error {
			cacheDir, err := os.MkdirTemp("", "tuf-fetch-metadata-")
			if err != nil {
				return err
			}
			targetsDir, err := os.MkdirTemp("", "tuf-fetch-targets-")
			if err != nil {
				return err
			}
			cfg, _, err := loadUpdaterConfig(opts, cacheDir, targetsDir)
			if err != nil {
				return err
			}
			repo, err := updater.NewRepositoryLoader(cfg).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading repository: %w", err)
			}
			printTargetsTable(repo)
			return nil
		},
	}
}

func printTargetsTable(repo *updater.Repository) {
	targets := repo.Targets()
	names := make([]string, 0, len(targets))
	for name := range targets {
		names = append(names, name)
	}
	sort.Strings(names)

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"target", "length", "sha256"})
	for _, name := range names {
		tf := targets[name]
		hexDigest := ""
		if h, ok := tf.Hashes["sha256"]; ok {
			hexDigest = fmt.Sprintf("%x", []byte(h))
		}
		table.Append([]string{name, strconv.FormatInt(tf.Length, 10), hexDigest})
	}
	table.Render()
}
