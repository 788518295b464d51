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

package template

import (
	"bufio"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/sumdb/note"
)

// allowlistHeader is the first line of an allow-list note.
const allowlistHeader = "Armored Signer template allow-list v1"

// Checksum returns the template checksum of a Section sequence.
func Checksum(secs []Section) Hash {
	h := sha256.New()
	for i := range secs {
		h.Write(secs[i].ChecksumBytes())
	}
	var res Hash
	h.Sum(res[:0])
	return res
}

// SignedHash returns the signed-content hash of a Section sequence.
func SignedHash(secs []Section) Hash {
	h, _ := blake2b.New256(nil)
	for i := range secs {
		h.Write(secs[i].SigBytes())
	}
	var res Hash
	h.Sum(res[:0])
	return res
}

// MetaHash returns the commitment to an ordered allow-list. This is the
// value compiled into the firmware as the trusted allow-list.
func MetaHash(list []Hash) Hash {
	h := sha256.New()
	for _, c := range list {
		h.Write(c[:])
	}
	var res Hash
	h.Sum(res[:0])
	return res
}

// ParseHash decodes a hex encoded Hash.
func ParseHash(s string) (Hash, error) {
	var h Hash
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("invalid hash %q: %v", s, err)
	}
	if len(b) != HashSize {
		return h, fmt.Errorf("hash %q is %d bytes, want %d", s, len(b), HashSize)
	}
	copy(h[:], b)
	return h, nil
}

// FormatAllowlist renders an allow-list as note text:
//
//	"Armored Signer template allow-list v1"
//	<template checksum in hex>
//	...
func FormatAllowlist(list []Hash) string {
	var b strings.Builder
	b.WriteString(allowlistHeader + "\n")
	for _, c := range list {
		b.WriteString(hex.EncodeToString(c[:]) + "\n")
	}
	return b.String()
}

// ParseAllowlist parses the format produced by FormatAllowlist.
func ParseAllowlist(text string) ([]Hash, error) {
	sc := bufio.NewScanner(strings.NewReader(text))
	if !sc.Scan() || sc.Text() != allowlistHeader {
		return nil, errors.New("missing allow-list header")
	}
	var list []Hash
	for sc.Scan() {
		h, err := ParseHash(sc.Text())
		if err != nil {
			return nil, err
		}
		list = append(list, h)
	}
	return list, sc.Err()
}

// SignAllowlist returns a signed note carrying list.
func SignAllowlist(list []Hash, signers ...note.Signer) ([]byte, error) {
	return note.Sign(&note.Note{Text: FormatAllowlist(list)}, signers...)
}

// OpenAllowlist verifies a signed allow-list note and returns its entries.
func OpenAllowlist(msg []byte, verifiers ...note.Verifier) ([]Hash, error) {
	n, err := note.Open(msg, note.VerifierList(verifiers...))
	if err != nil {
		return nil, fmt.Errorf("failed to open allow-list note: %v", err)
	}
	return ParseAllowlist(n.Text)
}
