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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPhysicalLayout(t *testing.T) {
	assert.Equal(t, uint64(1), mhtPhysical(0))
	assert.Equal(t, uint64(2), dataPhysical(0))
	assert.Equal(t, uint64(97), dataPhysical(95))
	assert.Equal(t, uint64(98), mhtPhysical(1))
	assert.Equal(t, uint64(99), dataPhysical(96))
	assert.Equal(t, uint64(195), mhtPhysical(2))

	// Every physical position is used by exactly one node.
	seen := map[uint64]bool{0: true}
	for n := uint64(0); n < 40; n++ {
		p := mhtPhysical(n)
		assert.False(t, seen[p], "mht %d collides at %d", n, p)
		seen[p] = true
		for s := uint64(0); s < DataSlotsPerMHT; s++ {
			d := n*DataSlotsPerMHT + s
			p := dataPhysical(d)
			assert.False(t, seen[p], "data %d collides at %d", d, p)
			seen[p] = true
		}
	}
	for p := uint64(0); p < uint64(len(seen)); p++ {
		assert.True(t, seen[p], "gap at physical %d", p)
	}
}

func TestParents(t *testing.T) {
	n, s := dataParent(0)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, 0, s)
	n, s = dataParent(DataSlotsPerMHT + 5)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, 5, s)

	n, s = mhtParent(1)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, 0, s)
	n, s = mhtParent(ChildMHTsPerMHT)
	assert.Equal(t, uint64(0), n)
	assert.Equal(t, ChildMHTsPerMHT-1, s)
	n, s = mhtParent(ChildMHTsPerMHT + 1)
	assert.Equal(t, uint64(1), n)
	assert.Equal(t, 0, s)
}

func TestNodeCounts(t *testing.T) {
	tests := []struct {
		size int64
		data uint64
		mht  uint64
	}{
		{0, 0, 0},
		{InlineDataSize, 0, 0},
		{InlineDataSize + 1, 1, 1},
		{InlineDataSize + NodeSize, 1, 1},
		{InlineDataSize + NodeSize + 1, 2, 1},
		{InlineDataSize + DataSlotsPerMHT*NodeSize, DataSlotsPerMHT, 1},
		{InlineDataSize + DataSlotsPerMHT*NodeSize + 1, DataSlotsPerMHT + 1, 2},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.data, dataNodeCount(tt.size), "data nodes for %d", tt.size)
		assert.Equal(t, tt.mht, mhtNodeCount(tt.size), "mht nodes for %d", tt.size)
	}

	d, within := dataLocation(InlineDataSize + NodeSize + 7)
	assert.Equal(t, uint64(1), d)
	assert.Equal(t, 7, within)
}

func TestMetadataLayoutFits(t *testing.T) {
	assert.Equal(t, 80, offEncrypted)
	assert.LessOrEqual(t, offTail, NodeSize)
	assert.Equal(t, NodeSize, DataSlotsPerMHT*slotSize+ChildMHTsPerMHT*slotSize)
}

func TestMetadataHeaderRoundTrip(t *testing.T) {
	var img [NodeSize]byte
	for i := range img {
		img[i] = 0xff
	}
	h := metadataHeader{major: metaMajorVersion, minor: metaMinorVersion, update: true}
	h.keyID[0] = 1
	h.kdkCheck[1] = 2
	h.tag[2] = 3
	encodeHeader(&h, img[:])

	got, err := parseHeader(img[:])
	assert.NoError(t, err)
	assert.Equal(t, h, got)
	assert.Equal(t, make([]byte, NodeSize-offTail), img[offTail:], "tail is cleared")

	// The update flag is outside the associated data.
	aad := metadataAAD(img[:])
	img[offUpdate] = 0
	assert.Equal(t, aad, metadataAAD(img[:]))
}

func TestMetadataBodyRejectsLongName(t *testing.T) {
	var buf [encryptedSize]byte
	b := metadataBody{name: "ok"}
	b.encode(buf[:])
	// Name length field follows the id, size and root slot.
	buf[16+8+slotSize] = 0x01
	buf[16+8+slotSize+1] = 0x00

	var out metadataBody
	assert.ErrorIs(t, out.decode(buf[:]), ErrCorrupted)
}
