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
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/jeremyhahn/go-protectedfs/internal/config"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/aead"
	"github.com/jeremyhahn/go-protectedfs/pkg/journal"
	"github.com/jeremyhahn/go-protectedfs/pkg/pfs"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage/file"
)

// newWriteCmd builds the write command
func newWriteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "write <name>",
		Short: "Write plaintext into a protected file",
		Long: `Write plaintext from --input or stdin into a protected file, creating it
if it does not exist. By default the data is written at offset 0 over the
existing contents; --append writes at the end and --replace starts a new file.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := args[0]
			input, _ := cmd.Flags().GetString("input")
			offset, _ := cmd.Flags().GetInt64("offset")
			appendMode, _ := cmd.Flags().GetBool("append")
			replace, _ := cmd.Flags().GetBool("replace")

			if appendMode && (offset != 0 || replace) {
				return fmt.Errorf("--append cannot be combined with --offset or --replace")
			}

			var src io.Reader = cmd.InOrStdin()
			if input != "" && input != "-" {
				// #nosec G304 - Input path is provided by the user
				f, err := os.Open(input)
				if err != nil {
					return fmt.Errorf("failed to open input: %w", err)
				}
				defer f.Close()
				src = f
			}

			cfg := getConfig()
			if replace {
				if err := removeProtectedFile(cfg, name); err != nil {
					return err
				}
			}

			mode := pfs.ModeReadWrite
			if appendMode {
				mode = pfs.ModeAppend
			}
			printVerbose("Writing %s (mode %s, offset %d)", name, mode, offset)

			s, err := cfg.openSession(name, mode, true)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", name, err)
			}
			if offset != 0 {
				if _, err := s.Seek(offset, io.SeekStart); err != nil {
					return errors.Join(err, s.close())
				}
			}
			n, err := io.Copy(s, src)
			if err != nil {
				return errors.Join(fmt.Errorf("write failed after %d bytes: %w", n, err), s.close())
			}
			size := s.Size()
			if err := s.close(); err != nil {
				return fmt.Errorf("failed to commit %s: %w", name, err)
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintWrite(name, n, size)
		},
	}
	cmd.Flags().StringP("input", "i", "", "read plaintext from this file instead of stdin")
	cmd.Flags().Int64("offset", 0, "plaintext offset to start writing at")
	cmd.Flags().Bool("append", false, "write at the end of the file")
	cmd.Flags().Bool("replace", false, "discard any existing file first")
	return cmd
}

// removeProtectedFile deletes a protected file and its recovery log.
func removeProtectedFile(c *Config, name string) error {
	return c.withStore(func(cfg *config.Config, store *file.FileStorage) error {
		if err := store.Remove(name); err != nil && !errors.Is(err, storage.ErrNotFound) {
			return fmt.Errorf("failed to remove %s: %w", name, err)
		}
		return journal.Remove(store, name+cfg.Recovery.Suffix)
	})
}

// newCatCmd builds the cat command
func newCatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cat <name>",
		Short: "Print the plaintext of a protected file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			offset, _ := cmd.Flags().GetInt64("offset")
			length, _ := cmd.Flags().GetInt64("length")

			s, err := getConfig().openSession(args[0], pfs.ModeRead, false)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			if _, err := s.Seek(offset, io.SeekStart); err != nil {
				return errors.Join(err, s.close())
			}
			var src io.Reader = s
			if length > 0 {
				src = io.LimitReader(s, length)
			}
			if _, err := io.Copy(cmd.OutOrStdout(), src); err != nil {
				return errors.Join(err, s.close())
			}
			return s.close()
		},
	}
	cmd.Flags().Int64("offset", 0, "plaintext offset to start reading at")
	cmd.Flags().Int64("length", 0, "number of bytes to print (0 for all)")
	return cmd
}

// newVerifyCmd builds the verify command
func newVerifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "verify <name>",
		Short: "Authenticate every node of a protected file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getConfig().openSession(args[0], pfs.ModeRead, false)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			if err := s.Verify(); err != nil {
				return errors.Join(fmt.Errorf("%s failed verification: %w", args[0], err), s.close())
			}
			info := s.Info()
			if err := s.close(); err != nil {
				return err
			}
			return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintSuccess(
				fmt.Sprintf("%s verified: %d bytes, %d data nodes, %d MHT nodes",
					args[0], info.Size, info.DataNodes, info.MHTNodes))
		},
	}
}

// newInfoCmd builds the info command
func newInfoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "info <name>",
		Short: "Show metadata of a protected file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := getConfig().openSession(args[0], pfs.ModeRead, false)
			if err != nil {
				return fmt.Errorf("failed to open %s: %w", args[0], err)
			}
			info := s.Info()
			if err := s.close(); err != nil {
				return err
			}
			return NewPrinter(getConfig().OutputFormat, cmd.OutOrStdout()).PrintInfo(info, aead.Acceleration())
		},
	}
}

// newRecoverCmd builds the recover command
func newRecoverCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "recover <name>",
		Short: "Replay or discard a leftover recovery log",
		Long: `Open the protected file for writing so that a recovery log left by an
interrupted commit is replayed, or discarded if it was never completed.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := getConfig()
			if cfg.NoRecovery {
				return fmt.Errorf("recover cannot run with --no-recovery")
			}
			var hadLog bool
			err := cfg.withStore(func(app *config.Config, store *file.FileStorage) error {
				if !app.Recovery.Enabled {
					return fmt.Errorf("recover needs recovery.enabled in the configuration")
				}
				var err error
				hadLog, err = journal.Exists(store, args[0]+app.Recovery.Suffix)
				return err
			})
			if err != nil {
				return err
			}

			s, err := cfg.openSession(args[0], pfs.ModeReadWrite, false)
			if err != nil {
				return fmt.Errorf("failed to recover %s: %w", args[0], err)
			}
			hasLog, err := s.hasRecoveryLog()
			if cerr := s.close(); cerr != nil {
				return cerr
			}
			if err != nil {
				return err
			}
			return NewPrinter(cfg.OutputFormat, cmd.OutOrStdout()).PrintRecover(args[0], hadLog, hasLog)
		},
	}
}
