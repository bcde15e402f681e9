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

// slot authenticates one child node: the key it was sealed under and the
// resulting GCM tag. A slot is in use once either half is non-zero.
type slot struct {
	key [KeySize]byte
	tag [TagSize]byte
}

func (s *slot) inUse() bool {
	return s.key != [KeySize]byte{} || s.tag != [TagSize]byte{}
}

func (s *slot) wipe() {
	clear(s.key[:])
	clear(s.tag[:])
}

func (s *slot) encode(dst []byte) {
	copy(dst[:KeySize], s.key[:])
	copy(dst[KeySize:slotSize], s.tag[:])
}

func (s *slot) decode(src []byte) {
	copy(s.key[:], src[:KeySize])
	copy(s.tag[:], src[KeySize:slotSize])
}

// payload is the decrypted body of a node. The concrete type is fixed by
// the node kind.
type payload interface {
	encode(dst []byte)
	decode(src []byte)
	wipe()
}

// mhtPayload holds the slots of the data nodes an MHT node covers followed
// by the slots of its child MHT nodes.
type mhtPayload struct {
	data     [DataSlotsPerMHT]slot
	children [ChildMHTsPerMHT]slot
}

func (m *mhtPayload) encode(dst []byte) {
	for i := range m.data {
		m.data[i].encode(dst[i*slotSize:])
	}
	base := DataSlotsPerMHT * slotSize
	for i := range m.children {
		m.children[i].encode(dst[base+i*slotSize:])
	}
}

func (m *mhtPayload) decode(src []byte) {
	for i := range m.data {
		m.data[i].decode(src[i*slotSize:])
	}
	base := DataSlotsPerMHT * slotSize
	for i := range m.children {
		m.children[i].decode(src[base+i*slotSize:])
	}
}

func (m *mhtPayload) wipe() {
	for i := range m.data {
		m.data[i].wipe()
	}
	for i := range m.children {
		m.children[i].wipe()
	}
}

type dataPayload struct {
	bytes [NodeSize]byte
}

func (d *dataPayload) encode(dst []byte) { copy(dst[:NodeSize], d.bytes[:]) }
func (d *dataPayload) decode(src []byte) { copy(d.bytes[:], src[:NodeSize]) }
func (d *dataPayload) wipe()             { clear(d.bytes[:]) }

// fileNode is a resident node. parent is only used to find the slot that
// authenticates this node; the root has no parent and is authenticated by
// the metadata.
type fileNode struct {
	ref      nodeRef
	physical uint64
	parent   nodeRef
	slot     int

	// dirty nodes differ from their image on disk. fresh nodes have never
	// been written.
	dirty bool
	fresh bool

	// image is the ciphertext last read from disk or, during a commit, the
	// ciphertext about to be written.
	image [NodeSize]byte

	body payload
}

func newMHTNode(n uint64) *fileNode {
	node := &fileNode{
		ref:      nodeRef{kind: kindMHT, number: n},
		physical: mhtPhysical(n),
		body:     &mhtPayload{},
	}
	if n > 0 {
		p, s := mhtParent(n)
		node.parent = nodeRef{kind: kindMHT, number: p}
		node.slot = s
	}
	return node
}

func newDataNode(d uint64) *fileNode {
	p, s := dataParent(d)
	return &fileNode{
		ref:      nodeRef{kind: kindData, number: d},
		physical: dataPhysical(d),
		parent:   nodeRef{kind: kindMHT, number: p},
		slot:     s,
		body:     &dataPayload{},
	}
}

func (n *fileNode) isRoot() bool {
	return n.ref == rootRef
}

// mht returns the MHT payload. It must only be called on MHT nodes.
func (n *fileNode) mht() *mhtPayload {
	return n.body.(*mhtPayload)
}

// data returns the data payload. It must only be called on data nodes.
func (n *fileNode) data() *dataPayload {
	return n.body.(*dataPayload)
}

// slotFor returns the slot of MHT node n that authenticates child.
func (n *fileNode) slotFor(child *fileNode) *slot {
	if child.ref.kind == kindData {
		return &n.mht().data[child.slot]
	}
	return &n.mht().children[child.slot]
}

func (n *fileNode) wipe() {
	n.body.wipe()
	clear(n.image[:])
}
