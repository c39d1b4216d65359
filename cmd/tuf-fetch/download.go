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
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/practicaltuf/tufclient/metadata/updater"
)

func newDownloadCommand(opts *globalOptions) *cobra.Command {
	var outdir string
	var targetNames []string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Load a repository and download targets to a local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if opts.allowExpired {
				fmt.Fprintf(os.Stderr, "WARNING: --allow-expired-repo is unsafe and will not establish trust; testing only\n")
			}
			cacheDir, err := os.MkdirTemp("", "tuf-fetch-metadata-")
			if err != nil {
				return err
			}
			cfg, _, err := loadUpdaterConfig(opts, cacheDir, outdir)
			if err != nil {
				return err
			}
			repo, err := updater.NewRepositoryLoader(cfg).Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("loading repository: %w", err)
			}

			if err := os.MkdirAll(outdir, 0o755); err != nil {
				return err
			}
			names := targetNames
			if len(names) == 0 {
				for name := range repo.Targets() {
					names = append(names, name)
				}
			}
			fmt.Printf("Downloading %d target(s) to %s\n", len(names), outdir)
			for _, name := range names {
				if err := downloadOne(cmd, repo, outdir, name); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outdir, "outdir", "o", ".", "output directory for downloaded targets")
	cmd.Flags().StringSliceVarP(&targetNames, "target-name", "n", nil, "download only these targets (repeatable); defaults to every known target")
	return cmd
}

func downloadOne(cmd *cobra.Command, repo *updater.Repository, outdir, name string) error {
	fmt.Printf("\t-> %s\n", name)
	rc, found, err := repo.ReadTarget(cmd.Context(), name)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	if !found {
		return fmt.Errorf("%s: not found in repository", name)
	}
	defer rc.Close()

	path := filepath.Join(outdir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = f.ReadFrom(rc)
	return err
}
