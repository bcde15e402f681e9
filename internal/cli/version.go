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
	"runtime"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/aead"
)

// Version information (injected at build time via -ldflags)
var (
	Version   = "dev"     // Set via -ldflags "-X github.com/jeremyhahn/go-protectedfs/internal/cli.Version=x.y.z"
	GitCommit = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-protectedfs/internal/cli.GitCommit=abc123"
	BuildDate = "unknown" // Set via -ldflags "-X github.com/jeremyhahn/go-protectedfs/internal/cli.BuildDate=2025-01-15"
)

// newVersionCmd builds the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version information for the pfs tool`,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			printer := NewPrinter(getConfig().OutputFormat, out)

			if getConfig().OutputFormat == "json" {
				return printer.printJSON(map[string]interface{}{
					"version":      Version,
					"commit":       GitCommit,
					"build_date":   BuildDate,
					"go_version":   runtime.Version(),
					"os":           runtime.GOOS,
					"arch":         runtime.GOARCH,
					"cipher":       aead.BackendAES128GCM,
					"acceleration": aead.Acceleration(),
				})
			}
			fmt.Fprintf(out, "pfs version %s\n", Version)
			fmt.Fprintf(out, "Git commit: %s\n", GitCommit)
			fmt.Fprintf(out, "Build date: %s\n", BuildDate)
			fmt.Fprintf(out, "Go version: %s\n", runtime.Version())
			fmt.Fprintf(out, "OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(out, "Cipher: %s (%s)\n", aead.BackendAES128GCM, aead.Acceleration())
			return nil
		},
	}
}
