// Package main provides the CLI entrypoint for lanecount.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/banshee-data/lanecount/internal/monitoring"
	"github.com/banshee-data/lanecount/internal/version"
)

const (
	defaultLogLevel = "ops"
	defaultDBPath   = ""
)

type rootOptions struct {
	logLevel string
	dbPath   string
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &rootOptions{}
	rootCmd := &cobra.Command{
		Use:           "lanecount",
		Short:         "Count vehicles crossing a line, per lane and class, from tracked detections",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return root.configureLogging(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&root.logLevel, "log-level", defaultLogLevel, "log streams to enable: quiet, ops, diag or trace")
	rootCmd.PersistentFlags().StringVar(&root.dbPath, "db", defaultDBPath, "sqlite database for sessions and crossings (optional)")

	rootCmd.AddCommand(newRunCmd(root))
	rootCmd.AddCommand(newBatchCmd(root))
	rootCmd.AddCommand(newSessionsCmd(root))
	rootCmd.AddCommand(newMigrateCmd(root))
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

func (o *rootOptions) configureLogging(cmd *cobra.Command) error {
	level, err := monitoring.ParseLevel(o.logLevel)
	if err != nil {
		return err
	}
	errOut := cmd.ErrOrStderr()
	monitoring.ConfigureLogging(level, errOut)
	if level == monitoring.LevelQuiet {
		monitoring.SetLogger(nil)
	} else {
		monitoring.SetLogger(func(format string, v ...interface{}) {
			fmt.Fprintf(errOut, format+"\n", v...)
		})
	}
	return nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), version.String())
			return err
		},
	}
}
