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

//go:build unix

package file

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"

	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// lockFile takes a non-blocking advisory lock on fd. Writers take an
// exclusive lock and readers a shared one.
func lockFile(fd *os.File, exclusive bool) error {
	how := unix.LOCK_SH
	if exclusive {
		how = unix.LOCK_EX
	}
	if err := unix.Flock(int(fd.Fd()), how|unix.LOCK_NB); err != nil {
		if errors.Is(err, unix.EWOULDBLOCK) {
			return storage.ErrLocked
		}
		return err
	}
	return nil
}

func unlockFile(fd *os.File) {
	_ = unix.Flock(int(fd.Fd()), unix.LOCK_UN)
}
