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

	"github.com/google/uuid"

	"github.com/jeremyhahn/go-protectedfs/internal/lru"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/aead"
	"github.com/jeremyhahn/go-protectedfs/pkg/logging"
	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
	"github.com/jeremyhahn/go-protectedfs/pkg/storage"
)

// File is an open session on a protected file. It implements io.Reader,
// io.Writer, io.Seeker and io.Closer. A File is not safe for concurrent use.
type File struct {
	name   string
	mode   Mode
	handle storage.Handle
	keys   *keyring
	cache  *lru.Cache[nodeRef, *fileNode]

	header    metadataHeader
	meta      metadataBody
	metaImage [NodeSize]byte
	root      *fileNode

	offset    int64
	eof       bool
	dirty     bool
	persisted bool
	status    Status

	recovery      bool
	recoveryName  string
	recoveryStore storage.Backend
	pending       *pendingCommit

	log    *logging.Logger
	debug  bool
	closed bool
}

var (
	_ io.Reader = (*File)(nil)
	_ io.Writer = (*File)(nil)
	_ io.Seeker = (*File)(nil)
	_ io.Closer = (*File)(nil)
)

// Open starts a session on the protected file behind cfg.Handle.
//
// An empty host file is initialized as a new protected file when cfg.Create
// is set. Otherwise the metadata is verified against the KDK and the file
// name, a leftover recovery log is replayed first when recovery is enabled,
// and the MHT root is loaded and verified.
func Open(cfg *Config) (*File, error) {
	if cfg == nil {
		return nil, fmt.Errorf("%w: nil config", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	c := cfg.withDefaults()
	log := c.Logger.With("file", c.Name)

	keys, err := newKeyring(c.KDK, c.Cipher, c.PRF, c.Random, c.MasterKeyUses)
	if err != nil {
		return nil, err
	}
	f := &File{
		name:          c.Name,
		mode:          c.Mode,
		handle:        c.Handle,
		keys:          keys,
		cache:         lru.New[nodeRef, *fileNode](c.CacheSize),
		recovery:      c.EnableRecovery,
		recoveryName:  c.RecoveryName,
		recoveryStore: c.RecoveryStore,
		log:           log,
		debug:         c.Debug,
	}

	replayed := false
	if c.EnableRecovery {
		if replayed, err = replayRecoveryLog(&c, log); err != nil {
			f.release()
			return nil, err
		}
	}

	size := c.KnownSize
	if replayed || size <= 0 {
		if size, err = c.Handle.Size(); err != nil {
			f.release()
			return nil, fmt.Errorf("%w: size: %v", ErrIO, err)
		}
	}

	switch {
	case size == 0 && c.Create:
		err = f.initNew()
	case size == 0:
		err = fmt.Errorf("%w: empty file is not a protected file", ErrCorrupted)
	case size%NodeSize != 0:
		err = fmt.Errorf("%w: size %d is not a multiple of %d", ErrCorrupted, size, NodeSize)
	default:
		err = f.initExisting(&c, replayed)
	}
	if err != nil {
		f.release()
		return nil, err
	}

	if f.mode.appending() {
		f.offset = f.meta.size
	}
	metrics.SessionOpened()
	log.Debug("protected file opened", "mode", f.mode.String(), "size", f.meta.size, "replayed", replayed)
	return f, nil
}

func (f *File) initNew() error {
	id, err := f.newFileID()
	if err != nil {
		return err
	}
	f.meta.fileID = id
	f.meta.name = f.name
	f.root = newMHTNode(0)
	f.root.fresh = true
	// The metadata node is written on the first commit even if no data is.
	f.dirty = true
	return nil
}

func (f *File) initExisting(c *Config, replayed bool) error {
	img := f.metaImage[:]
	if err := storage.ReadFull(f.handle, img, 0); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: short metadata node", ErrCorrupted)
		}
		return fmt.Errorf("%w: read metadata: %v", ErrIO, err)
	}
	metrics.RecordNodeRead(metrics.KindMetadata)

	h, err := parseHeader(img)
	if err != nil {
		return err
	}

	var key, check [KeySize]byte
	defer clear(key[:])
	if err := f.keys.metadataKeys(h.keyID[:], &key, &check); err != nil {
		return err
	}
	if !aead.EqualTags(check[:], h.kdkCheck[:]) {
		return ErrKeyAuthentication
	}

	var plain [encryptedSize]byte
	defer clear(plain[:])
	if err := f.keys.cipher.Open(key[:], img[offEncrypted:offTail], metadataAAD(img), h.tag[:], plain[:]); err != nil {
		if errors.Is(err, aead.ErrAuthentication) {
			metrics.RecordIntegrityFailure(metrics.KindMetadata)
			return fmt.Errorf("%w: metadata node", ErrIntegrity)
		}
		return fmt.Errorf("%w: open metadata: %v", ErrCrypto, err)
	}
	if err := f.meta.decode(plain[:]); err != nil {
		return err
	}
	if f.meta.name != c.Name {
		metrics.RecordIntegrityFailure(metrics.KindMetadata)
		return fmt.Errorf("%w: file was sealed as %q", ErrIntegrity, f.meta.name)
	}

	if h.update && !replayed {
		if !c.EnableRecovery {
			return fmt.Errorf("%w: an earlier commit was interrupted and recovery is disabled", ErrRecovery)
		}
		// The recovery log never became complete, so the interrupted
		// commit did not write anything past the flag.
		f.log.Warn("update flag set without a recovery log, ignoring interrupted commit")
	}
	f.header = h
	f.persisted = true

	f.root = newMHTNode(0)
	if !f.meta.root.inUse() {
		if f.meta.size > InlineDataSize {
			return fmt.Errorf("%w: file of %d bytes has no MHT root", ErrCorrupted, f.meta.size)
		}
		f.root.fresh = true
		return nil
	}
	return f.load(f.root, &f.meta.root)
}

// ready returns an error unless the session can serve requests.
func (f *File) ready() error {
	if f.closed {
		return ErrClosed
	}
	if f.status != StatusOK {
		return fmt.Errorf("%w: %s", ErrBadStatus, f.status)
	}
	return nil
}

// Read reads up to len(p) bytes at the current offset. It returns io.EOF at
// the end of the file.
func (f *File) Read(p []byte) (int, error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	if !f.mode.readable() {
		return 0, fmt.Errorf("%w: session is not readable", ErrUsage)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.offset >= f.meta.size {
		f.eof = true
		return 0, io.EOF
	}

	want := len(p)
	if left := f.meta.size - f.offset; int64(want) > left {
		want = int(left)
	}
	n := 0
	for n < want {
		var c int
		if f.offset < InlineDataSize {
			c = copy(p[n:want], f.meta.inline[f.offset:])
		} else {
			d, within := dataLocation(f.offset)
			node, err := f.getData(d)
			if err != nil {
				metrics.RecordBytes(metrics.DirectionRead, n)
				return n, err
			}
			c = copy(p[n:want], node.data().bytes[within:])
		}
		n += c
		f.offset += int64(c)
	}
	if f.offset == f.meta.size {
		f.eof = true
	}
	metrics.RecordBytes(metrics.DirectionRead, n)
	return n, nil
}

// Write writes p at the current offset, or at the end of the file in append
// mode, growing the file as needed. Data becomes durable on Flush or Close.
func (f *File) Write(p []byte) (int, error) {
	if err := f.ready(); err != nil {
		return 0, err
	}
	if !f.mode.writable() {
		return 0, fmt.Errorf("%w: session is read-only", ErrUsage)
	}
	if len(p) == 0 {
		return 0, nil
	}
	if f.mode.appending() {
		f.offset = f.meta.size
	}

	n := 0
	for n < len(p) {
		var c int
		if f.offset < InlineDataSize {
			c = copy(f.meta.inline[f.offset:], p[n:])
			f.dirty = true
		} else {
			d, within := dataLocation(f.offset)
			node, err := f.getData(d)
			if err != nil {
				metrics.RecordBytes(metrics.DirectionWrite, n)
				return n, err
			}
			c = copy(node.data().bytes[within:], p[n:])
			if err := f.markDirty(node); err != nil {
				return n, err
			}
		}
		n += c
		f.offset += int64(c)
		if f.offset > f.meta.size {
			f.meta.size = f.offset
		}
	}
	f.eof = false
	metrics.RecordBytes(metrics.DirectionWrite, n)
	return n, nil
}

// Seek sets the offset for the next Read or Write. The target must lie
// within the file; sessions opened for append without read can only seek
// to the end.
func (f *File) Seek(offset int64, whence int) (int64, error) {
	if err := f.ready(); err != nil {
		return f.offset, err
	}
	var target int64
	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = f.offset + offset
	case io.SeekEnd:
		target = f.meta.size + offset
	default:
		return f.offset, fmt.Errorf("%w: invalid whence %d", ErrUsage, whence)
	}
	if target < 0 || target > f.meta.size {
		return f.offset, fmt.Errorf("%w: offset %d outside file of %d bytes", ErrUsage, target, f.meta.size)
	}
	if f.mode == ModeAppend && target != f.meta.size {
		return f.offset, fmt.Errorf("%w: append-only session can only seek to the end", ErrUsage)
	}
	f.offset = target
	f.eof = false
	return target, nil
}

// Flush commits all pending changes and syncs the protected file. It is a
// no-op on read-only sessions.
func (f *File) Flush() error {
	if err := f.ready(); err != nil {
		return err
	}
	if !f.mode.writable() {
		return nil
	}
	return f.commit(true)
}

// ClearError returns a session with a recoverable status to StatusOK by
// retrying the failed part of the last commit. Fatal statuses cannot be
// cleared.
func (f *File) ClearError() error {
	if f.closed {
		return ErrClosed
	}
	switch f.status {
	case StatusOK:
	case StatusFlushError:
		f.status = StatusOK
		if err := f.commit(true); err != nil {
			return err
		}
	case StatusWriteToDiskFailed:
		f.status = StatusOK
		var err error
		if f.pending != nil {
			err = f.persist(f.pending, true)
		} else {
			err = f.commit(true)
		}
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: %s cannot be cleared", ErrBadStatus, f.status)
	}
	f.eof = false
	return nil
}

// Close commits pending changes and ends the session. Key material and
// plaintext are wiped even when the commit fails, and the error is returned
// so unsaved data is never dropped silently. Close does not close the host
// handle.
func (f *File) Close() error {
	if f.closed {
		return ErrClosed
	}

	var err error
	switch {
	case f.mode.writable() && f.dirty && f.status == StatusOK:
		err = f.commit(true)
	case f.mode.writable() && f.dirty && f.status.Recoverable():
		err = f.ClearError()
	case f.status != StatusOK:
		err = fmt.Errorf("%w: %s", ErrBadStatus, f.status)
	}
	if err != nil {
		f.log.Error(err, "closed with unsaved changes or in an error state")
	}

	f.release()
	f.closed = true
	f.status = StatusClosed
	metrics.SessionClosed()
	return err
}

// release wipes key material and every resident plaintext.
func (f *File) release() {
	if f.cache != nil {
		f.cache.Range(func(_ nodeRef, n *fileNode) bool {
			n.wipe()
			return true
		})
		f.cache.Clear()
	}
	if f.root != nil {
		f.root.wipe()
		f.root = nil
	}
	f.meta.wipe()
	clear(f.metaImage[:])
	if f.keys != nil {
		f.keys.wipe()
	}
	f.pending = nil
}

// Verify authenticates every node of the file without moving the offset.
func (f *File) Verify() error {
	if err := f.ready(); err != nil {
		return err
	}
	for d := uint64(0); d < dataNodeCount(f.meta.size); d++ {
		if _, err := f.getData(d); err != nil {
			return err
		}
	}
	return nil
}

// Name returns the name bound into the metadata.
func (f *File) Name() string { return f.name }

// Size returns the plaintext size, including unflushed writes.
func (f *File) Size() int64 { return f.meta.size }

// Offset returns the current offset.
func (f *File) Offset() int64 { return f.offset }

// EOF reports whether a read reached the end of the file.
func (f *File) EOF() bool { return f.eof }

// Status returns the error status of the session.
func (f *File) Status() Status { return f.status }

// CacheStats describes the node cache of a session.
type CacheStats struct {
	Len       int     `json:"len"`
	Capacity  int     `json:"capacity"`
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	HitRate   float64 `json:"hit_rate"`
}

// Info is a snapshot of a session.
type Info struct {
	Name               string     `json:"name"`
	FileID             uuid.UUID  `json:"file_id"`
	Size               int64      `json:"size"`
	DataNodes          uint64     `json:"data_nodes"`
	MHTNodes           uint64     `json:"mht_nodes"`
	Mode               string     `json:"mode"`
	Status             string     `json:"status"`
	Dirty              bool       `json:"dirty"`
	Recovery           bool       `json:"recovery"`
	RecoveryName       string     `json:"recovery_name,omitempty"`
	MasterKeyRotations int        `json:"master_key_rotations"`
	Cache              CacheStats `json:"cache"`
}

// Info returns a snapshot of the session state.
func (f *File) Info() Info {
	info := Info{
		Name:      f.name,
		FileID:    f.meta.fileID,
		Size:      f.meta.size,
		DataNodes: dataNodeCount(f.meta.size),
		MHTNodes:  mhtNodeCount(f.meta.size),
		Mode:      f.mode.String(),
		Status:    f.status.String(),
		Dirty:     f.dirty,
		Recovery:  f.recovery,
	}
	if f.recovery {
		info.RecoveryName = f.recoveryName
	}
	if f.keys != nil {
		// The first master key is not a rotation.
		info.MasterKeyRotations = f.keys.rotated - 1
	}
	if f.cache != nil {
		s := f.cache.Stats()
		info.Cache = CacheStats{
			Len:       s.Len,
			Capacity:  s.Capacity,
			Hits:      s.Hits,
			Misses:    s.Misses,
			Evictions: s.Evictions,
			HitRate:   s.HitRate(),
		}
	}
	return info
}
