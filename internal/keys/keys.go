// Copyright 2024 The Armored Signer authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package keys derives the device's signing keys.
//
// Keys are never stored: for a given root secret and derivation path the
// same key MUST be reproduced on every boot.
package keys

import (
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/goombaio/namegenerator"
	"golang.org/x/crypto/hkdf"
)

// MaxPathLen is the deepest derivation path accepted.
const MaxPathLen = 10

var ErrPathTooLong = fmt.Errorf("derivation path longer than %d elements", MaxPathLen)

// Deriver produces keys from a device root secret.
type Deriver struct {
	secret   []byte
	uniqueID string
}

// NewDeriver returns a Deriver for the given root secret. uniqueID should be
// the device's hardware unique identifier.
func NewDeriver(secret []byte, uniqueID string) *Deriver {
	return &Deriver{
		secret:   append([]byte{}, secret...),
		uniqueID: uniqueID,
	}
}

// reader returns a reproducible byte stream for the given diversifier.
func (d *Deriver) reader(diversifier string) io.Reader {
	return hkdf.New(sha256.New, d.secret, []byte(d.uniqueID), []byte(diversifier))
}

// Derive returns the signing key for path.
func (d *Deriver) Derive(path []uint32) (*PrivateKey, error) {
	if len(path) > MaxPathLen {
		return nil, ErrPathTooLong
	}
	// The diversifier MUST NOT be changed, or every derived key changes.
	_, priv, err := ed25519.GenerateKey(d.reader("signer-key:" + FormatPath(path)))
	if err != nil {
		return nil, fmt.Errorf("failed to generate derived ed25519 key: %v", err)
	}
	return &PrivateKey{key: priv}, nil
}

// Name returns a stable human-friendly name for the device.
func (d *Deriver) Name() string {
	nSeed := make([]byte, 8)
	if _, err := io.ReadFull(d.reader("signer-name"), nSeed); err != nil {
		panic(fmt.Errorf("failed to read name entropy: %v", err))
	}
	ng := namegenerator.NewNameGenerator(int64(binary.LittleEndian.Uint64(nSeed)))
	return ng.Generate()
}

// Wipe zeroes the root secret.
func (d *Deriver) Wipe() {
	clear(d.secret)
}

// PrivateKey is a derived signing key. Holders must call Wipe on every exit
// path once the key is no longer needed.
type PrivateKey struct {
	key ed25519.PrivateKey
}

// Public returns the public half of the key.
func (k *PrivateKey) Public() ed25519.PublicKey {
	return k.key.Public().(ed25519.PublicKey)
}

// Sign signs msg.
func (k *PrivateKey) Sign(msg []byte) ([]byte, error) {
	if k.wiped() {
		return nil, errors.New("key has been wiped")
	}
	return ed25519.Sign(k.key, msg), nil
}

// Wipe zeroes the key material.
func (k *PrivateKey) Wipe() {
	if k == nil {
		return
	}
	clear(k.key)
}

func (k *PrivateKey) wiped() bool {
	for _, b := range k.key {
		if b != 0 {
			return false
		}
	}
	return true
}

// Address renders a public key for display to the user and the host.
func Address(pub ed25519.PublicKey) string {
	return hex.EncodeToString(pub)
}

// FormatPath renders a derivation path as slash separated decimal elements.
func FormatPath(path []uint32) string {
	var b strings.Builder
	for i, p := range path {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(strconv.FormatUint(uint64(p), 10))
	}
	return b.String()
}

// ParsePath parses the format produced by FormatPath.
func ParsePath(s string) ([]uint32, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, "/")
	if len(parts) > MaxPathLen {
		return nil, ErrPathTooLong
	}
	path := make([]uint32, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid path element %q: %v", p, err)
		}
		path = append(path, uint32(v))
	}
	return path, nil
}

// EncodePath returns the wire encoding of path: an element count followed by
// little endian 32-bit elements.
func EncodePath(path []uint32) ([]byte, error) {
	if len(path) > MaxPathLen {
		return nil, ErrPathTooLong
	}
	b := []byte{byte(len(path))}
	for _, p := range path {
		b = binary.LittleEndian.AppendUint32(b, p)
	}
	return b, nil
}
