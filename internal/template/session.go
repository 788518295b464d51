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

// Package template implements templated transaction verification.
//
// A transaction is described to the user as a sequence of Sections. The
// sequence's structure is committed to by a template checksum which must
// appear in an allow-list of approved templates, itself committed to by a
// meta-hash compiled into the firmware. What is signed is a separate hash
// over the content the user actually saw.
package template

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"hash"

	"github.com/transparency-dev/armored-signer/api"
	"golang.org/x/crypto/blake2b"
	"k8s.io/klog/v2"
)

// HashSize is the size of every hash used by a Session.
const HashSize = 32

// Hash is a template checksum, allow-list entry, or signed-content hash.
type Hash [HashSize]byte

// Phase is the stage a Session has reached.
type Phase int

const (
	// HashingBody accumulates Sections.
	HashingBody Phase = iota
	// ChecksumValidation accumulates the allow-list.
	ChecksumValidation
	// Signing holds a verified signed-content hash.
	Signing
)

func (p Phase) String() string {
	switch p {
	case HashingBody:
		return "HashingBody"
	case ChecksumValidation:
		return "ChecksumValidation"
	case Signing:
		return "Signing"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Session is the verification state of one Sign instruction.
type Session struct {
	trusted Hash
	phase   Phase

	checksum hash.Hash
	signed   hash.Hash
	meta     hash.Hash

	templateChecksum Hash
	signedHash       Hash
	found            bool
}

// NewSession returns a Session in the HashingBody phase which accepts
// allow-lists whose meta-hash is trusted.
func NewSession(trusted Hash) *Session {
	signed, err := blake2b.New256(nil)
	if err != nil {
		// Only fails for oversized keys.
		panic(err)
	}
	return &Session{
		trusted:  trusted,
		checksum: sha256.New(),
		signed:   signed,
		meta:     sha256.New(),
	}
}

// Phase returns the current phase.
func (s *Session) Phase() Phase {
	return s.phase
}

func (s *Session) expect(p Phase) error {
	switch s.phase {
	case HashingBody, ChecksumValidation, Signing:
	default:
		panic(fmt.Sprintf("session in impossible %v", s.phase))
	}
	if s.phase != p {
		return fmt.Errorf("%w: operation for %v during %v", api.ErrMalformed, p, s.phase)
	}
	return nil
}

// AddSection folds sec into both running hashes.
func (s *Session) AddSection(sec *Section) error {
	if err := s.expect(HashingBody); err != nil {
		return err
	}
	s.checksum.Write(sec.ChecksumBytes())
	s.signed.Write(sec.SigBytes())
	return nil
}

// FinishBody finalises both hashes and moves to ChecksumValidation.
func (s *Session) FinishBody() error {
	if err := s.expect(HashingBody); err != nil {
		return err
	}
	s.checksum.Sum(s.templateChecksum[:0])
	s.signed.Sum(s.signedHash[:0])
	s.phase = ChecksumValidation
	klog.V(2).Infof("Template checksum %x", s.templateChecksum)
	return nil
}

// AddCandidate checks one allow-list entry and folds it into the meta-hash.
func (s *Session) AddCandidate(c Hash) error {
	if err := s.expect(ChecksumValidation); err != nil {
		return err
	}
	if c == s.templateChecksum {
		s.found = true
	}
	s.meta.Write(c[:])
	return nil
}

// FinishAllowlist moves to Signing if the template checksum was found in an
// allow-list whose meta-hash is the trusted one.
func (s *Session) FinishAllowlist() error {
	if err := s.expect(ChecksumValidation); err != nil {
		return err
	}
	var meta Hash
	s.meta.Sum(meta[:0])
	if !s.found {
		return fmt.Errorf("%w: template %x not in allow-list", api.ErrUntrustedTemplate, s.templateChecksum)
	}
	if !bytes.Equal(meta[:], s.trusted[:]) {
		return fmt.Errorf("%w: allow-list meta-hash %x is not trusted", api.ErrUntrustedTemplate, meta)
	}
	s.phase = Signing
	return nil
}

// SignedHash returns the verified signed-content hash.
func (s *Session) SignedHash() (Hash, error) {
	if err := s.expect(Signing); err != nil {
		return Hash{}, err
	}
	return s.signedHash, nil
}

// Reset returns the session to an empty HashingBody phase.
func (s *Session) Reset() {
	s.phase = HashingBody
	s.checksum.Reset()
	s.signed.Reset()
	s.meta.Reset()
	s.templateChecksum = Hash{}
	s.signedHash = Hash{}
	s.found = false
}
