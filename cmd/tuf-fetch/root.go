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
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/practicaltuf/tufclient/metadata/config"
)

// globalOptions holds the flags shared by every subcommand. viper binds them
// to TUF_FETCH_* environment variables (hyphens in a flag name become
// underscores) so a CI pipeline can set them once instead of repeating flags
// on every invocation.
type globalOptions struct {
	rootPath        string
	metadataBaseURL string
	targetsBaseURL  string
	allowExpired    bool
}

func newRootCommand() *cobra.Command {
	opts := &globalOptions{}
	v := viper.New()
	v.SetEnvPrefix("tuf_fetch")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	root := &cobra.Command{
		Use:           "tuf-fetch",
		Short:         "Fetch and verify targets from a TUF repository",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVarP(&opts.rootPath, "root", "r", "", "path to a trusted root.json")
	root.PersistentFlags().StringVarP(&opts.metadataBaseURL, "metadata-url", "m", "", "TUF repository metadata base URL")
	root.PersistentFlags().StringVarP(&opts.targetsBaseURL, "targets-url", "t", "", "TUF repository targets base URL (defaults to <metadata-url>/targets)")
	root.PersistentFlags().BoolVar(&opts.allowExpired, "allow-expired-repo", false, "load the repository even if its metadata has expired (unsafe, testing only)")

	for _, name := range []string{"root", "metadata-url", "targets-url", "allow-expired-repo"} {
		if err := v.BindPFlag(name, root.PersistentFlags().Lookup(name)); err != nil {
			panic(err)
		}
	}
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts.rootPath == "" {
			opts.rootPath = v.GetString("root")
		}
		if opts.metadataBaseURL == "" {
			opts.metadataBaseURL = v.GetString("metadata-url")
		}
		if opts.targetsBaseURL == "" {
			opts.targetsBaseURL = v.GetString("targets-url")
		}
		if !opts.allowExpired {
			opts.allowExpired = v.GetBool("allow-expired-repo")
		}
		return nil
	}

	root.AddCommand(newDownloadCommand(opts), newListCommand(opts))
	return root
}

// loadUpdaterConfig builds an UpdaterConfig from the global flags, deriving
// the targets URL from the metadata URL the way config.New already does
// unless the caller overrode it.
func loadUpdaterConfig(opts *globalOptions, localMetadataDir, localTargetsDir string) (*config.UpdaterConfig, []byte, error) {
	if opts.metadataBaseURL == "" {
		return nil, nil, fmt.Errorf("--metadata-url is required")
	}
	if opts.rootPath == "" {
		return nil, nil, fmt.Errorf("--root is required (see --allow-root-download in a future release)")
	}
	rootBytes, err := os.ReadFile(opts.rootPath)
	if err != nil {
		return nil, nil, fmt.Errorf("reading root file: %w", err)
	}
	cfg, err := config.New(opts.metadataBaseURL, rootBytes)
	if err != nil {
		return nil, nil, err
	}
	if opts.targetsBaseURL != "" {
		cfg.RemoteTargetsURL = opts.targetsBaseURL
	}
	cfg.ExpirationEnforcement = config.FromBool(!opts.allowExpired)
	cfg.LocalMetadataDir = localMetadataDir
	cfg.LocalTargetsDir = localTargetsDir
	return cfg, rootBytes, nil
}
