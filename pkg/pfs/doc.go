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

// Package pfs implements protected files: a confidential, integrity- and
// freshness-protected file format for code that does not trust the host
// operating system or its disk.
//
// A protected file is a sequence of fixed-size encrypted nodes. Node 0 holds
// the metadata and the first InlineDataSize bytes of plaintext. Every other
// node is either a data node or a node of the Merkle hash tree (MHT) whose
// slots carry the key and GCM tag of each child. The root of the tree is
// authenticated by the metadata node, which in turn is sealed under a key
// derived from the caller's key-derivation key (KDK). Any altered, swapped or
// rolled-back node therefore fails authentication when it is read.
//
// Commits are made atomic with a redo log (see package journal): the new
// image of every node is written and synced to the recovery artifact before
// the protected file is touched, and a leftover log is replayed the next time
// the file is opened.
//
// A File is not safe for concurrent use.
//
//	f, err := pfs.Open(&pfs.Config{
//	    Name:           "secrets.db",
//	    Mode:           pfs.ModeReadWrite,
//	    Create:         true,
//	    Handle:         handle,
//	    KDK:            kdk,
//	    EnableRecovery: true,
//	    RecoveryStore:  backend,
//	})
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	_, err = f.Write([]byte("hello"))
package pfs
