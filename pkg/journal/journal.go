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

// Package journal reads and writes the recovery log of a protected file.
//
// The log is a redo log: it holds the new encrypted image of every node a
// commit is about to overwrite, keyed by physical node number. It is written
// and synced before the protected file is touched, so after a crash either
// the log is complete and replaying it yields the committed state, or it is
// torn and the protected file still holds the previous state.
//
// Layout:
//
//	magic "PFSJRNL1"              8 bytes
//	manifest length               uint32, big endian
//	manifest                      CBOR, core deterministic encoding
//	records                       be64 physical node number + node image
//	trailer                       BLAKE3-256 over everything above
package journal

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"
)

const (
	// Version is the only log version understood.
	Version = 1

	// ChecksumSize is the size of the BLAKE3 trailer.
	ChecksumSize = 32

	headerSize    = len(magic) + 4
	maxManifest   = 4096
	physicalBytes = 8
)

var magic = [8]byte{'P', 'F', 'S', 'J', 'R', 'N', 'L', '1'}

var (
	// ErrTorn means the log ends early. An interrupted write leaves a torn
	// log behind; the protected file was not touched yet.
	ErrTorn = errors.New("journal: log is incomplete")

	// ErrChecksum means the trailer does not match the contents.
	ErrChecksum = errors.New("journal: checksum mismatch")

	// ErrFormat means the log is not a recovery log this package wrote.
	ErrFormat = errors.New("journal: invalid format")
)

// Manifest describes the records that follow it.
type Manifest struct {
	Version  uint16 `cbor:"1,keyasint"`
	NodeSize uint32 `cbor:"2,keyasint"`
	Records  uint32 `cbor:"3,keyasint"`
	Name     string `cbor:"4,keyasint,omitempty"`
}

// Record is one node image to be written at Physical.
type Record struct {
	Physical uint64
	Image    []byte
}

// Journal is a decoded, verified recovery log.
type Journal struct {
	Manifest Manifest
	Records  []Record
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error

	// Same logical manifest always produces identical bytes, which keeps the
	// trailer reproducible.
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("journal: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		MaxMapPairs: 16,
	}.DecMode()
	if err != nil {
		panic("journal: CBOR decoder initialization failed: " + err.Error())
	}
}

func newManifest(name string, records []Record) (Manifest, error) {
	if len(records) == 0 {
		return Manifest{}, fmt.Errorf("%w: no records", ErrFormat)
	}
	size := len(records[0].Image)
	if size == 0 {
		return Manifest{}, fmt.Errorf("%w: empty node image", ErrFormat)
	}
	for i, r := range records {
		if len(r.Image) != size {
			return Manifest{}, fmt.Errorf("%w: record %d is %d bytes, want %d", ErrFormat, i, len(r.Image), size)
		}
	}
	return Manifest{
		Version:  Version,
		NodeSize: uint32(size),
		Records:  uint32(len(records)),
		Name:     name,
	}, nil
}

// encodeHeader returns the magic, manifest length and manifest.
func encodeHeader(m Manifest) ([]byte, error) {
	body, err := encMode.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("journal: failed to encode manifest: %w", err)
	}
	if len(body) > maxManifest {
		return nil, fmt.Errorf("%w: manifest of %d bytes", ErrFormat, len(body))
	}
	header := make([]byte, 0, headerSize+len(body))
	header = append(header, magic[:]...)
	header = binary.BigEndian.AppendUint32(header, uint32(len(body)))
	return append(header, body...), nil
}

func encodeRecord(r Record) []byte {
	out := make([]byte, 0, physicalBytes+len(r.Image))
	out = binary.BigEndian.AppendUint64(out, r.Physical)
	return append(out, r.Image...)
}

// Encode returns the complete log for records. All images must have the
// same size.
func Encode(name string, records []Record) ([]byte, error) {
	m, err := newManifest(name, records)
	if err != nil {
		return nil, err
	}
	header, err := encodeHeader(m)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.Grow(len(header) + len(records)*(physicalBytes+int(m.NodeSize)) + ChecksumSize)
	buf.Write(header)
	for _, r := range records {
		buf.Write(encodeRecord(r))
	}
	sum := blake3.Sum256(buf.Bytes())
	buf.Write(sum[:])
	return buf.Bytes(), nil
}

// Decode parses and verifies a complete log.
func Decode(data []byte) (*Journal, error) {
	if len(data) < headerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTorn, len(data))
	}
	if !bytes.Equal(data[:len(magic)], magic[:]) {
		return nil, fmt.Errorf("%w: bad magic", ErrFormat)
	}
	mlen := int(binary.BigEndian.Uint32(data[len(magic):headerSize]))
	if mlen == 0 || mlen > maxManifest {
		return nil, fmt.Errorf("%w: manifest length %d", ErrFormat, mlen)
	}
	if len(data) < headerSize+mlen {
		return nil, fmt.Errorf("%w: manifest cut short", ErrTorn)
	}

	var m Manifest
	if err := decMode.Unmarshal(data[headerSize:headerSize+mlen], &m); err != nil {
		return nil, fmt.Errorf("%w: manifest: %v", ErrFormat, err)
	}
	if m.Version != Version {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrFormat, m.Version)
	}
	if m.NodeSize == 0 || m.Records == 0 {
		return nil, fmt.Errorf("%w: empty manifest", ErrFormat)
	}

	recordSize := physicalBytes + int(m.NodeSize)
	bodyEnd := headerSize + mlen + int(m.Records)*recordSize
	switch total := bodyEnd + ChecksumSize; {
	case len(data) < total:
		return nil, fmt.Errorf("%w: %d of %d bytes", ErrTorn, len(data), total)
	case len(data) > total:
		return nil, fmt.Errorf("%w: %d trailing bytes", ErrFormat, len(data)-total)
	}

	sum := blake3.Sum256(data[:bodyEnd])
	if !bytes.Equal(sum[:], data[bodyEnd:]) {
		return nil, ErrChecksum
	}

	records := make([]Record, 0, m.Records)
	for off := headerSize + mlen; off < bodyEnd; off += recordSize {
		image := make([]byte, m.NodeSize)
		copy(image, data[off+physicalBytes:off+recordSize])
		records = append(records, Record{
			Physical: binary.BigEndian.Uint64(data[off : off+physicalBytes]),
			Image:    image,
		})
	}
	return &Journal{Manifest: m, Records: records}, nil
}
