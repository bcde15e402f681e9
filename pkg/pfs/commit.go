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
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-protectedfs/pkg/journal"
	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// pendingCommit is a prepared commit whose images have not all reached the
// protected file. The records run from the leaves to the root with the
// metadata node last, which is also the order they are written in.
type pendingCommit struct {
	records []journal.Record
	nodes   []*fileNode
}

// commit persists every dirty node and the metadata.
//
// The sequence is: raise the update flag on disk, seal dirty nodes bottom up
// so each parent slot holds its child's new key and tag, seal the metadata,
// write the recovery log, then write the images in place. A failure before
// the protected file is touched leaves StatusFlushError; a failure while
// writing the images leaves StatusWriteToDiskFailed with the images kept for
// ClearError.
func (f *File) commit(flushToDisk bool) (err error) {
	if !f.dirty {
		return nil
	}
	start := time.Now()
	defer func() {
		metrics.RecordCommit(err, time.Since(start).Seconds())
	}()

	if f.persisted {
		if err := f.raiseUpdateFlag(); err != nil {
			return f.fail(StatusFlushError, err)
		}
	}

	pc, err := f.prepare()
	if err != nil {
		return err
	}

	if f.recovery {
		if err := journal.Write(f.recoveryStore, f.recoveryName, f.name, pc.records); err != nil {
			return f.fail(StatusFlushError, fmt.Errorf("%w: %v", ErrIO, err))
		}
	}

	f.pending = pc
	return f.persist(pc, flushToDisk)
}

// raiseUpdateFlag marks the on-disk metadata as mid-commit. The flag is not
// covered by the metadata tag and is cleared by the metadata image the
// commit writes last.
func (f *File) raiseUpdateFlag() error {
	if err := storage.WriteFull(f.handle, []byte{1}, offUpdate); err != nil {
		return fmt.Errorf("%w: set update flag: %v", ErrIO, err)
	}
	if err := f.handle.Sync(); err != nil {
		return fmt.Errorf("%w: sync update flag: %v", ErrIO, err)
	}
	f.header.update = true
	return nil
}

// prepare seals every dirty node and the metadata into their images.
func (f *File) prepare() (*pendingCommit, error) {
	var nodes []*fileNode
	f.cache.Range(func(_ nodeRef, n *fileNode) bool {
		if n.dirty {
			nodes = append(nodes, n)
		}
		return true
	})
	// Children before parents: data nodes, then MHT nodes from the deepest
	// number down. The root is always sealed last.
	slices.SortFunc(nodes, func(a, b *fileNode) int {
		if a.ref.kind != b.ref.kind {
			if a.ref.kind == kindData {
				return -1
			}
			return 1
		}
		if a.ref.kind == kindData {
			return cmp.Compare(a.ref.number, b.ref.number)
		}
		return cmp.Compare(b.ref.number, a.ref.number)
	})
	if f.root.dirty {
		nodes = append(nodes, f.root)
	}

	pc := &pendingCommit{
		records: make([]journal.Record, 0, len(nodes)+1),
		nodes:   nodes,
	}
	for _, n := range nodes {
		s := &f.meta.root
		if !n.isRoot() {
			parent, ok := f.resident(n.parent)
			if !ok {
				return nil, f.fail(StatusCorrupted, fmt.Errorf("%w: parent of dirty %s node %d is not resident",
					ErrCorrupted, n.ref.kind, n.ref.number))
			}
			s = parent.slotFor(n)
		}
		if err := f.keys.seal(n, s); err != nil {
			return nil, f.fail(StatusCryptoFailure, err)
		}
		pc.records = append(pc.records, journal.Record{Physical: n.physical, Image: n.image[:]})
	}

	if err := f.sealMetadata(); err != nil {
		return nil, f.fail(StatusCryptoFailure, err)
	}
	pc.records = append(pc.records, journal.Record{Physical: 0, Image: f.metaImage[:]})
	return pc, nil
}

// sealMetadata derives keys for a new key id and seals the metadata node
// into f.metaImage with the update flag cleared.
func (f *File) sealMetadata() error {
	h := metadataHeader{
		major: metaMajorVersion,
		minor: metaMinorVersion,
	}
	if err := f.keys.random(h.keyID[:]); err != nil {
		return err
	}
	var key, check [KeySize]byte
	defer clear(key[:])
	if err := f.keys.metadataKeys(h.keyID[:], &key, &check); err != nil {
		return err
	}
	h.kdkCheck = check

	var plain [encryptedSize]byte
	defer clear(plain[:])
	f.meta.encode(plain[:])

	img := f.metaImage[:]
	encodeHeader(&h, img)
	if err := f.keys.cipher.Seal(key[:], plain[:], metadataAAD(img), img[offEncrypted:offTail], h.tag[:]); err != nil {
		return fmt.Errorf("%w: seal metadata: %v", ErrCrypto, err)
	}
	copy(img[offMetaTag:offEncrypted], h.tag[:])
	// The flag on disk stays raised until this image lands.
	h.update = f.header.update
	f.header = h
	return nil
}

// persist writes the images of pc in order, then finishes the commit.
func (f *File) persist(pc *pendingCommit, flushToDisk bool) error {
	for _, r := range pc.records {
		if err := storage.WriteFull(f.handle, r.Image, int64(r.Physical)*NodeSize); err != nil {
			return f.fail(StatusWriteToDiskFailed, fmt.Errorf("%w: write node %d: %v", ErrIO, r.Physical, err))
		}
		metrics.RecordNodeWrite(physicalKind(r.Physical))
	}
	if flushToDisk {
		if err := f.handle.Sync(); err != nil {
			return f.fail(StatusWriteToDiskFailed, fmt.Errorf("%w: sync: %v", ErrIO, err))
		}
	}
	if f.recovery {
		if err := journal.Remove(f.recoveryStore, f.recoveryName); err != nil {
			f.log.Warn("failed to remove recovery log", "artifact", f.recoveryName, "error", err)
		}
	}

	for _, n := range pc.nodes {
		n.dirty = false
		n.fresh = false
	}
	f.header.update = false
	f.dirty = false
	f.persisted = true
	f.pending = nil
	f.debugf("committed %d nodes, size %d", len(pc.records), f.meta.size)
	return nil
}

// physicalKind names the kind of node stored at a physical position.
func physicalKind(physical uint64) string {
	switch {
	case physical == 0:
		return metrics.KindMetadata
	case (physical-1)%nodesPerGroup == 0:
		return metrics.KindMHT
	default:
		return metrics.KindData
	}
}

// newFileID draws a random file identifier from the session random source.
func (f *File) newFileID() (uuid.UUID, error) {
	id, err := uuid.NewRandomFromReader(f.keys)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: file id: %v", ErrCrypto, err)
	}
	return id, nil
}
