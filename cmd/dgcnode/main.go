// Copyright (C) 2026 Storj Labs, Inc.
// See LICENSE for copying information.

package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"storj.io/common/cfgstruct"
	"storj.io/common/fpath"
	"storj.io/common/process"
	"storj.io/dgc/node"
)

var (
	rootCmd = &cobra.Command{
		Use:   "dgcnode",
		Short: "Node exporting and importing remote objects",
	}
	setupCmd = &cobra.Command{
		Use:         "setup",
		Short:       "Create config files",
		RunE:        cmdSetup,
		Annotations: map[string]string{"type": "setup"},
	}
	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run a node exporting a counter factory",
		RunE:  cmdRun,
	}
	holdCmd = &cobra.Command{
		Use:   "hold <stub>",
		Short: "Create a counter through a remote factory, hold it and release it",
		Args:  cobra.ExactArgs(1),
		RunE:  cmdHold,
	}
	confDir string

	setupCfg node.Config
	runCfg   node.Config
	holdCfg  HoldConfig
)

// HoldConfig configures the hold command.
type HoldConfig struct {
	node.Config

	Increments int           `help:"how many times the created counter is incremented" default:"3"`
	Hold       time.Duration `help:"how long the created counter is held" default:"30s"`
	Release    time.Duration `help:"how long to wait for the remote leases to be released" default:"1m"`
}

func cmdSetup(cmd *cobra.Command, args []string) (err error) {
	setupDir, err := filepath.Abs(confDir)
	if err != nil {
		return err
	}

	valid, _ := fpath.IsValidSetupDir(setupDir)
	if !valid {
		return fmt.Errorf("dgcnode configuration already exists (%v)", setupDir)
	}

	err = os.MkdirAll(setupDir, 0700)
	if err != nil {
		return err
	}

	return process.SaveConfig(cmd, filepath.Join(setupDir, "config.yaml"))
}

func init() {
	defaultConfDir := fpath.ApplicationDir("storj", "dgcnode")
	cfgstruct.SetupFlag(zap.L(), rootCmd, &confDir, "config-dir", defaultConfDir, "main directory for dgcnode configuration")
	defaults := cfgstruct.DefaultsFlag(rootCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(holdCmd)
	process.Bind(setupCmd, &setupCfg, defaults, cfgstruct.ConfDir(confDir), cfgstruct.SetupMode())
	process.Bind(runCmd, &runCfg, defaults, cfgstruct.ConfDir(confDir))
	process.Bind(holdCmd, &holdCfg, defaults, cfgstruct.ConfDir(confDir))
}

func main() {
	logger, _, _ := process.NewLogger("dgcnode")
	zap.ReplaceGlobals(logger)

	process.Exec(rootCmd)
}
