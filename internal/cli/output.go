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
	"encoding/json"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-protectedfs/pkg/pfs"
)

// OutputFormat defines the output format type
type OutputFormat string

const (
	OutputFormatText OutputFormat = "text"
	OutputFormatJSON OutputFormat = "json"
)

// Printer handles formatted output
type Printer struct {
	format OutputFormat
	writer io.Writer
}

// NewPrinter creates a new Printer
func NewPrinter(format string, writer io.Writer) *Printer {
	return &Printer{
		format: OutputFormat(format),
		writer: writer,
	}
}

// PrintInfo prints a session snapshot
func (p *Printer) PrintInfo(info pfs.Info, acceleration string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"file":         info,
			"acceleration": acceleration,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Name:          %s\n", info.Name)
		fmt.Fprintf(p.writer, "File ID:       %s\n", info.FileID)
		fmt.Fprintf(p.writer, "Size:          %d bytes\n", info.Size)
		fmt.Fprintf(p.writer, "Data nodes:    %d\n", info.DataNodes)
		fmt.Fprintf(p.writer, "MHT nodes:     %d\n", info.MHTNodes)
		fmt.Fprintf(p.writer, "Status:        %s\n", info.Status)
		if info.Recovery {
			fmt.Fprintf(p.writer, "Recovery log:  %s\n", info.RecoveryName)
		} else {
			fmt.Fprintln(p.writer, "Recovery log:  disabled")
		}
		fmt.Fprintf(p.writer, "Cache:         %d/%d nodes, %.1f%% hits\n",
			info.Cache.Len, info.Cache.Capacity, 100*info.Cache.HitRate)
		fmt.Fprintf(p.writer, "AES-GCM:       %s\n", acceleration)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintWrite reports a completed write
func (p *Printer) PrintWrite(name string, written int64, size int64) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"name":    name,
			"written": written,
			"size":    size,
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Wrote %d bytes to %s (size %d)\n", written, name, size)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintRecover reports the outcome of a recovery run
func (p *Printer) PrintRecover(name string, hadLog, hasLog bool) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":       "success",
			"name":         name,
			"log_found":    hadLog,
			"log_resolved": hadLog && !hasLog,
		})
	case OutputFormatText:
		switch {
		case !hadLog:
			fmt.Fprintf(p.writer, "%s: no recovery log, nothing to do\n", name)
		case hasLog:
			fmt.Fprintf(p.writer, "%s: recovery log could not be removed\n", name)
		default:
			fmt.Fprintf(p.writer, "%s: recovery log resolved\n", name)
		}
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(message string) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status":  "success",
			"message": message,
		})
	case OutputFormatText:
		fmt.Fprintln(p.writer, message)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// PrintError prints an error message
func (p *Printer) PrintError(err error) error {
	switch p.format {
	case OutputFormatJSON:
		return p.printJSON(map[string]interface{}{
			"status": "error",
			"error":  err.Error(),
		})
	case OutputFormatText:
		fmt.Fprintf(p.writer, "Error: %v\n", err)
		return nil
	default:
		return fmt.Errorf("unknown output format: %s", p.format)
	}
}

// printJSON prints data as JSON
func (p *Printer) printJSON(data interface{}) error {
	encoder := json.NewEncoder(p.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}
