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
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Metadata node layout. Everything outside the encrypted part, except the
// GCM tag and the update flag, is authenticated as associated data.
const (
	metaMajorVersion = 1
	metaMinorVersion = 0

	keyIDSize = 32

	offMagic     = 0
	offMajor     = 8
	offMinor     = 9
	offUpdate    = 10
	offReserved  = 11
	offKeyID     = 16
	offKDKCheck  = offKeyID + keyIDSize
	offMetaTag   = offKDKCheck + TagSize
	offEncrypted = offMetaTag + TagSize

	// file id, size, root slot, name length, name, inline data
	encryptedSize = 16 + 8 + slotSize + 2 + (MaxNameLength + 1) + InlineDataSize
	offTail       = offEncrypted + encryptedSize
)

var metaMagic = [8]byte{'P', 'F', 'S', 0, 'F', 'I', 'L', 'E'}

// metadataHeader is the plain part of the metadata node.
type metadataHeader struct {
	major    uint8
	minor    uint8
	update   bool
	keyID    [keyIDSize]byte
	kdkCheck [TagSize]byte
	tag      [TagSize]byte
}

// metadataBody is the encrypted part of the metadata node.
type metadataBody struct {
	fileID uuid.UUID
	size   int64
	root   slot
	name   string
	inline [InlineDataSize]byte
}

func parseHeader(image []byte) (metadataHeader, error) {
	var h metadataHeader
	if !bytes.Equal(image[offMagic:offMagic+len(metaMagic)], metaMagic[:]) {
		return h, fmt.Errorf("%w: not a protected file", ErrCorrupted)
	}
	h.major = image[offMajor]
	h.minor = image[offMinor]
	if h.major != metaMajorVersion {
		return h, fmt.Errorf("%w: unsupported format version %d.%d", ErrCorrupted, h.major, h.minor)
	}
	switch image[offUpdate] {
	case 0:
	case 1:
		h.update = true
	default:
		return h, fmt.Errorf("%w: invalid update flag %#x", ErrCorrupted, image[offUpdate])
	}
	copy(h.keyID[:], image[offKeyID:offKDKCheck])
	copy(h.kdkCheck[:], image[offKDKCheck:offMetaTag])
	copy(h.tag[:], image[offMetaTag:offEncrypted])
	return h, nil
}

// encodeHeader writes the plain part of h into image, clearing the reserved
// bytes and the tail.
func encodeHeader(h *metadataHeader, image []byte) {
	copy(image[offMagic:], metaMagic[:])
	image[offMajor] = h.major
	image[offMinor] = h.minor
	image[offUpdate] = 0
	if h.update {
		image[offUpdate] = 1
	}
	clear(image[offReserved:offKeyID])
	copy(image[offKeyID:], h.keyID[:])
	copy(image[offKDKCheck:], h.kdkCheck[:])
	copy(image[offMetaTag:], h.tag[:])
	clear(image[offTail:])
}

// metadataAAD returns the authenticated plain bytes of a metadata image.
func metadataAAD(image []byte) []byte {
	aad := make([]byte, 0, offUpdate+(offMetaTag-offReserved)+(NodeSize-offTail))
	aad = append(aad, image[:offUpdate]...)
	aad = append(aad, image[offReserved:offMetaTag]...)
	return append(aad, image[offTail:NodeSize]...)
}

func (b *metadataBody) encode(dst []byte) {
	off := 0
	copy(dst[off:], b.fileID[:])
	off += 16
	binary.BigEndian.PutUint64(dst[off:], uint64(b.size))
	off += 8
	b.root.encode(dst[off:])
	off += slotSize
	binary.BigEndian.PutUint16(dst[off:], uint16(len(b.name)))
	off += 2
	clear(dst[off : off+MaxNameLength+1])
	copy(dst[off:], b.name)
	off += MaxNameLength + 1
	copy(dst[off:], b.inline[:])
}

func (b *metadataBody) decode(src []byte) error {
	off := 0
	copy(b.fileID[:], src[off:off+16])
	off += 16
	size := binary.BigEndian.Uint64(src[off:])
	off += 8
	b.root.decode(src[off:])
	off += slotSize
	nameLen := int(binary.BigEndian.Uint16(src[off:]))
	off += 2
	if nameLen > MaxNameLength {
		return fmt.Errorf("%w: name length %d", ErrCorrupted, nameLen)
	}
	b.name = string(src[off : off+nameLen])
	off += MaxNameLength + 1
	copy(b.inline[:], src[off:off+InlineDataSize])

	if size > 1<<62 {
		return fmt.Errorf("%w: size %d", ErrCorrupted, size)
	}
	b.size = int64(size)
	return nil
}

func (b *metadataBody) wipe() {
	b.root.wipe()
	clear(b.inline[:])
	b.size = 0
}
