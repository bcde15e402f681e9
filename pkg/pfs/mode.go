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

package pfs

import (
	"fmt"
	"strings"
)

// Mode is the access mode of a session.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite

	// ModeAppend sessions write at the end of the file regardless of the
	// current offset.
	ModeAppend

	ModeReadWrite = ModeRead | ModeWrite
)

func (m Mode) valid() bool {
	switch m {
	case ModeRead, ModeWrite, ModeReadWrite, ModeAppend, ModeRead | ModeAppend:
		return true
	}
	return false
}

func (m Mode) readable() bool { return m&ModeRead != 0 }
func (m Mode) writable() bool { return m&(ModeWrite|ModeAppend) != 0 }
func (m Mode) appending() bool { return m&ModeAppend != 0 }

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read-write"
	case ModeAppend:
		return "append"
	case ModeRead | ModeAppend:
		return "read-append"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode parses the names returned by Mode.String.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read", "r":
		return ModeRead, nil
	case "write", "w":
		return ModeWrite, nil
	case "read-write", "rw":
		return ModeReadWrite, nil
	case "append", "a":
		return ModeAppend, nil
	case "read-append", "ra":
		return ModeRead | ModeAppend, nil
	}
	return 0, fmt.Errorf("%w: unknown mode %q", ErrUsage, s)
}
