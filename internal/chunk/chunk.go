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

// Package chunk implements a single-entry, content addressed scratch store
// used to hand results larger than one reply to the host across round trips.
package chunk

import (
	"crypto/sha256"
	"errors"
	"fmt"
)

// Capacity is the largest entry the store can hold.
const Capacity = 2048

// Handle identifies a stored entry by the SHA-256 of its contents.
type Handle [sha256.Size]byte

// ErrTooLarge is returned when an entry exceeds Capacity.
var ErrTooLarge = errors.New("chunk too large")

// Store holds at most one entry at a time. Its backing storage is allocated
// once with the store.
type Store struct {
	buf    [Capacity]byte
	n      int
	handle Handle
	live   bool
}

// Put replaces the live entry with a copy of b and returns its handle. b must
// not alias the store.
func (s *Store) Put(b []byte) (Handle, error) {
	if len(b) > Capacity {
		return Handle{}, fmt.Errorf("%w: %d > %d bytes", ErrTooLarge, len(b), Capacity)
	}
	s.Clear()
	s.n = copy(s.buf[:], b)
	s.handle = sha256.Sum256(b)
	s.live = true
	return s.handle, nil
}

// Get returns the live entry if h addresses it. The returned slice is only
// valid until the next Put or Clear.
func (s *Store) Get(h Handle) ([]byte, bool) {
	if !s.live || h != s.handle {
		return nil, false
	}
	return s.buf[:s.n], true
}

// Live reports whether an entry is stored.
func (s *Store) Live() bool {
	return s.live
}

// Clear drops and zeroes the live entry.
func (s *Store) Clear() {
	clear(s.buf[:s.n])
	s.n = 0
	s.handle = Handle{}
	s.live = false
}
