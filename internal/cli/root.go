// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-protectedfs.
//
// go-protectedfs is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global configuration
	globalConfig *Config
)

// rootCmd represents the base command
var rootCmd = newRootCmd(os.Stdin, os.Stdout)

// newRootCmd builds the command tree reading from in and printing to out.
func newRootCmd(in io.Reader, out io.Writer) *cobra.Command {
	globalConfig = NewConfig()

	cmd := &cobra.Command{
		Use:   "pfs",
		Short: "pfs - protected file tool",
		Long: `pfs reads and writes protected files: encrypted files whose
confidentiality, integrity and freshness do not depend on the host.

Every node of a protected file is sealed with AES-128-GCM under a fresh key
and authenticated by a Merkle hash tree rooted in metadata sealed with the
key-derivation key (KDK). Commits are made atomic with a recovery log.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.SetIn(in)
	cmd.SetOut(out)

	// Persistent flags (available to all commands)
	flags := cmd.PersistentFlags()
	flags.StringVar(&globalConfig.ConfigFile, "config", "",
		"config file (YAML)")
	flags.StringVar(&globalConfig.Root, "root", "",
		"directory holding protected files (overrides storage.root)")
	flags.StringVar(&globalConfig.KDKFile, "kdk-file", "",
		"file holding the 16-byte key-derivation key, raw or hex")
	flags.StringVar(&globalConfig.KDKHex, "kdk-hex", "",
		"key-derivation key as 32 hex characters")
	flags.BoolVar(&globalConfig.NoRecovery, "no-recovery", false,
		"disable the recovery log")
	flags.StringVarP(&globalConfig.OutputFormat, "output", "o", "text",
		"output format (text, json)")
	flags.BoolVarP(&globalConfig.Verbose, "verbose", "v", false,
		"verbose output")

	// Add subcommands
	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWriteCmd())
	cmd.AddCommand(newCatCmd())
	cmd.AddCommand(newVerifyCmd())
	cmd.AddCommand(newInfoCmd())
	cmd.AddCommand(newRecoverCmd())
	return cmd
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		handleError(err)
		return err
	}
	return nil
}

// getConfig returns the global configuration
func getConfig() *Config {
	return globalConfig
}

// handleError prints an error to stderr
func handleError(err error) {
	printer := NewPrinter(globalConfig.OutputFormat, os.Stderr)
	_ = printer.PrintError(err) // Error printing to stderr is best-effort
}

// printVerbose prints a message if verbose mode is enabled
func printVerbose(format string, args ...interface{}) {
	if globalConfig.Verbose {
		fmt.Fprintf(os.Stderr, "[VERBOSE] "+format+"\n", args...)
	}
}
