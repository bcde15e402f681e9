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
	"errors"
	"fmt"
	"io"

	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// fail moves the session into status unless it already holds an error
// status, and returns err. A fatal status replaces a recoverable one.
func (f *File) fail(status Status, err error) error {
	if f.status == StatusOK || (!f.status.Fatal() && status.Fatal()) {
		f.status = status
		f.log.Debug("session status changed", "status", status.String(), "error", err)
	}
	return err
}

// exists reports whether ref lies within the file as of its current size.
// Such a node must have a populated slot in its parent.
func (f *File) exists(ref nodeRef) bool {
	switch ref.kind {
	case kindData:
		return ref.number < dataNodeCount(f.meta.size)
	case kindMHT:
		return ref.number < mhtNodeCount(f.meta.size)
	}
	return false
}

// resident returns a node already in memory without fetching it and without
// changing its cache position.
func (f *File) resident(ref nodeRef) (*fileNode, bool) {
	if ref == rootRef {
		return f.root, f.root != nil
	}
	return f.cache.Peek(ref)
}

// readImage reads the ciphertext of node n from the protected file.
func (f *File) readImage(n *fileNode) error {
	if err := storage.ReadFull(f.handle, n.image[:], int64(n.physical)*NodeSize); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return f.fail(StatusCorrupted, fmt.Errorf("%w: %s node %d (physical %d) is beyond the end of the file",
				ErrCorrupted, n.ref.kind, n.ref.number, n.physical))
		}
		return fmt.Errorf("%w: read node %d: %v", ErrIO, n.physical, err)
	}
	metrics.RecordNodeRead(n.ref.kind.String())
	return nil
}

// load populates n using the slot s of its parent. A node behind an empty
// slot is created fresh, unless the file size says it must already exist.
func (f *File) load(n *fileNode, s *slot) error {
	if !s.inUse() {
		if f.exists(n.ref) {
			return f.fail(StatusCorrupted, fmt.Errorf("%w: %s node %d has no slot in its parent",
				ErrCorrupted, n.ref.kind, n.ref.number))
		}
		n.fresh = true
		f.debugf("created %s node %d at physical %d", n.ref.kind, n.ref.number, n.physical)
		return f.markDirty(n)
	}
	if err := f.readImage(n); err != nil {
		return err
	}
	if err := f.keys.open(n, s); err != nil {
		if errors.Is(err, ErrIntegrity) {
			metrics.RecordIntegrityFailure(n.ref.kind.String())
			n.wipe()
			return f.fail(StatusIntegrityFailure, err)
		}
		return f.fail(StatusCryptoFailure, err)
	}
	return nil
}

// getMHT returns MHT node n, fetching its ancestors as needed.
func (f *File) getMHT(n uint64) (*fileNode, error) {
	if n == 0 {
		return f.root, nil
	}
	ref := nodeRef{kind: kindMHT, number: n}
	if node, ok := f.cache.Get(ref); ok {
		metrics.RecordCacheEvent(metrics.CacheHit)
		f.touchAncestors(node)
		return node, nil
	}
	metrics.RecordCacheEvent(metrics.CacheMiss)

	node := newMHTNode(n)
	parent, err := f.getMHT(node.parent.number)
	if err != nil {
		return nil, err
	}
	if err := f.load(node, parent.slotFor(node)); err != nil {
		return nil, err
	}
	return node, f.insert(node)
}

// getData returns data node d, fetching its MHT ancestors as needed.
func (f *File) getData(d uint64) (*fileNode, error) {
	ref := nodeRef{kind: kindData, number: d}
	if node, ok := f.cache.Get(ref); ok {
		metrics.RecordCacheEvent(metrics.CacheHit)
		f.touchAncestors(node)
		return node, nil
	}
	metrics.RecordCacheEvent(metrics.CacheMiss)

	node := newDataNode(d)
	parent, err := f.getMHT(node.parent.number)
	if err != nil {
		return nil, err
	}
	if err := f.load(node, parent.slotFor(node)); err != nil {
		return nil, err
	}
	return node, f.insert(node)
}

// markDirty marks n and every ancestor up to the root dirty.
func (f *File) markDirty(n *fileNode) error {
	n.dirty = true
	f.dirty = true
	for cur := n; !cur.isRoot(); {
		parent, ok := f.resident(cur.parent)
		if !ok {
			return f.fail(StatusCorrupted, fmt.Errorf("%w: parent of %s node %d is not resident",
				ErrCorrupted, cur.ref.kind, cur.ref.number))
		}
		parent.dirty = true
		cur = parent
	}
	return nil
}

// touchAncestors moves the cached ancestors of n to the front of the cache
// so a parent is never evicted ahead of its children.
func (f *File) touchAncestors(n *fileNode) {
	if n.isRoot() {
		return
	}
	for ref := n.parent; ref != rootRef; {
		f.cache.Touch(ref)
		p, _ := mhtParent(ref.number)
		ref = nodeRef{kind: kindMHT, number: p}
	}
}

func (f *File) insert(n *fileNode) error {
	f.cache.Put(n.ref, n)
	f.touchAncestors(n)
	return f.trim()
}

// trim evicts least recently used nodes until the cache is within capacity.
// A dirty node at the tail forces a commit first, which leaves every cached
// node clean.
func (f *File) trim() error {
	for f.cache.Overfull() {
		_, oldest, ok := f.cache.Oldest()
		if !ok {
			return nil
		}
		if oldest.dirty {
			metrics.RecordCacheEvent(metrics.CacheWriteBack)
			f.debugf("cache full with dirty tail, committing %d nodes", f.cache.Len())
			if err := f.commit(false); err != nil {
				return err
			}
			if oldest.dirty {
				return f.fail(StatusCorrupted, fmt.Errorf("%w: %s node %d still dirty after commit",
					ErrCorrupted, oldest.ref.kind, oldest.ref.number))
			}
			continue
		}
		f.cache.RemoveOldest()
		metrics.RecordCacheEvent(metrics.CacheEviction)
		oldest.wipe()
	}
	return nil
}

func (f *File) debugf(format string, args ...any) {
	if f.debug {
		f.log.Debugf(format, args...)
	}
}
