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

	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/aead"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/kdf"
	"github.com/jeremyhahn/go-protectedfs/pkg/crypto/rand"
	"github.com/jeremyhahn/go-protectedfs/pkg/metrics"
)

// keyring holds the key material of one session.
//
// The KDK authenticates and seals the metadata node. Every other node gets
// a fresh key derived from the session master key, which is itself random
// and rotated after a bounded number of derivations. Node keys are never a
// function of the data, so no key is reused across commits or sessions.
type keyring struct {
	kdk    [KDKSize]byte
	master [KeySize]byte

	cipher aead.Cipher
	prf    kdf.PRF
	rng    rand.Source

	uses    *kdf.UsageTracker
	used    *aead.KeyTracker
	rotated int
}

func newKeyring(kdk []byte, cipher aead.Cipher, prf kdf.PRF, rng rand.Source, masterKeyUses int64) (*keyring, error) {
	if len(kdk) != KDKSize {
		return nil, fmt.Errorf("%w: KDK must be %d bytes, got %d", ErrUsage, KDKSize, len(kdk))
	}
	k := &keyring{
		cipher: cipher,
		prf:    prf,
		rng:    rng,
		uses:   kdf.NewUsageTracker(true, masterKeyUses),
		used:   aead.NewKeyTracker(true),
	}
	copy(k.kdk[:], kdk)
	if err := k.rotateMaster(); err != nil {
		k.wipe()
		return nil, err
	}
	return k, nil
}

func (k *keyring) random(p []byte) error {
	if err := rand.Fill(k.rng, p); err != nil {
		return fmt.Errorf("%w: random source: %v", ErrCrypto, err)
	}
	return nil
}

// rotateMaster replaces the session master key with a PRF output over a
// fresh random seed.
func (k *keyring) rotateMaster() error {
	var (
		seed  [KeySize]byte
		nonce [kdf.NonceSize]byte
	)
	defer clear(seed[:])

	if err := k.random(seed[:]); err != nil {
		return err
	}
	if err := k.random(nonce[:]); err != nil {
		return err
	}
	if err := k.prf.Derive(seed[:], kdf.LabelMasterKey, 0, nonce[:], k.master[:]); err != nil {
		return fmt.Errorf("%w: master key: %v", ErrCrypto, err)
	}
	k.uses.Reset()
	// Keys derived from the previous master key can no longer repeat.
	k.used.Clear()
	k.rotated++
	return nil
}

// nodeKey derives a fresh key for sealing the node at physical.
func (k *keyring) nodeKey(physical uint64, out *[KeySize]byte) error {
	if err := k.uses.CheckAndIncrement(); err != nil {
		if !errors.Is(err, kdf.ErrUsageLimit) {
			return fmt.Errorf("%w: %v", ErrCrypto, err)
		}
		if err := k.rotateMaster(); err != nil {
			return err
		}
		metrics.RecordMasterKeyRotation()
		if err := k.uses.CheckAndIncrement(); err != nil {
			return fmt.Errorf("%w: %v", ErrCrypto, err)
		}
	}

	var nonce [kdf.NonceSize]byte
	if err := k.random(nonce[:]); err != nil {
		return err
	}
	if err := k.prf.Derive(k.master[:], kdf.LabelRandomKey, physical, nonce[:], out[:]); err != nil {
		return fmt.Errorf("%w: node key: %v", ErrCrypto, err)
	}
	if err := k.used.CheckAndRecord(out[:]); err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return nil
}

// metadataKeys derives the metadata sealing key and the KDK verification
// tag for keyID.
func (k *keyring) metadataKeys(keyID []byte, key, check *[KeySize]byte) error {
	if err := k.prf.Derive(k.kdk[:], kdf.LabelMetadataKey, 0, keyID, key[:]); err != nil {
		return fmt.Errorf("%w: metadata key: %v", ErrCrypto, err)
	}
	if err := k.prf.Derive(k.kdk[:], kdf.LabelKDKCheck, 0, keyID, check[:]); err != nil {
		return fmt.Errorf("%w: KDK check: %v", ErrCrypto, err)
	}
	return nil
}

// seal encrypts n's payload into n.image under a fresh key and records the
// key and tag in s.
func (k *keyring) seal(n *fileNode, s *slot) error {
	var plain [NodeSize]byte
	defer clear(plain[:])

	var key [KeySize]byte
	if err := k.nodeKey(n.physical, &key); err != nil {
		return err
	}
	n.body.encode(plain[:])

	var tag [TagSize]byte
	if err := k.cipher.Seal(key[:], plain[:], nodeAAD(n.physical), n.image[:], tag[:]); err != nil {
		clear(key[:])
		return fmt.Errorf("%w: seal node %d: %v", ErrCrypto, n.physical, err)
	}
	s.key = key
	s.tag = tag
	clear(key[:])
	return nil
}

// open verifies n.image against s and decrypts it into n's payload.
func (k *keyring) open(n *fileNode, s *slot) error {
	var plain [NodeSize]byte
	defer clear(plain[:])

	if err := k.cipher.Open(s.key[:], n.image[:], nodeAAD(n.physical), s.tag[:], plain[:]); err != nil {
		if errors.Is(err, aead.ErrAuthentication) {
			return fmt.Errorf("%w: %s node %d (physical %d)", ErrIntegrity, n.ref.kind, n.ref.number, n.physical)
		}
		return fmt.Errorf("%w: open node %d: %v", ErrCrypto, n.physical, err)
	}
	n.body.decode(plain[:])
	return nil
}

func (k *keyring) wipe() {
	clear(k.kdk[:])
	clear(k.master[:])
	k.used.Clear()
}

// Read fills p from the session random source, so the keyring can stand in
// for an io.Reader when generating file identifiers.
func (k *keyring) Read(p []byte) (int, error) {
	if err := k.random(p); err != nil {
		return 0, err
	}
	return len(p), nil
}
