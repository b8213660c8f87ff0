// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"github.com/spf13/cobra"

	"github.com/holomush/adminauth/internal/config"
	"github.com/holomush/adminauth/internal/logging"
	"github.com/holomush/adminauth/internal/xdg"
)

// serviceName identifies this process in logs and traces.
const serviceName = "adminauth"

// Global flags available to all subcommands.
var configFile string

// NewRootCmd creates the root command for the adminauth CLI.
func NewRootCmd() *cobra.Command {
	return newRootCmd(nil)
}

func newRootCmd(deps *Deps) *cobra.Command {
	deps = deps.withDefaults()

	cmd := &cobra.Command{
		Use:   "adminauth",
		Short: "Administrator credential service",
		Long: `adminauth manages administrator accounts and the password reset flow:
registration, profile edits, deletion, and single-use reset tokens.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "config file path (default: $XDG_CONFIG_HOME/adminauth/config.yaml)")
	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(NewServeCmd(deps))
	cmd.AddCommand(NewMigrateCmd(deps))
	cmd.AddCommand(NewBootstrapCmd(deps))
	cmd.AddCommand(NewTokensCmd(deps))

	return cmd
}

// loadConfig reads the configuration for cmd and installs the default logger.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, err := xdg.ResolveConfigFile(configFile)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path, cmd.Flags())
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logging.SetDefault(logging.Options{
		Service: serviceName,
		Version: version,
		Format:  cfg.Log.Format,
		Level:   cfg.Log.Level,
	})
	return cfg, nil
}
