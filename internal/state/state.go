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

// Package state holds the one computation which may be in flight between
// commands.
package state

import (
	"context"
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"k8s.io/klog/v2"
)

// Kind identifies what the slot holds.
type Kind int

const (
	Idle Kind = iota
	GetAddress
	Sign
	Diagnostic
)

func (k Kind) String() string {
	switch k {
	case Idle:
		return "Idle"
	case GetAddress:
		return "GetAddress"
	case Sign:
		return "Sign"
	case Diagnostic:
		return "Diagnostic"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Computation is a paused instruction.
type Computation interface {
	// Resume feeds the current command to the computation. It returns true
	// once the reply has been completed, false with a nil error when more
	// input is needed, and parser.ErrPending while waiting for the user.
	Resume(ctx context.Context, io *hostio.IO) (bool, error)
	// Reset discards all progress and wipes any secrets held.
	Reset()
}

// Slot owns the storage of every computation kind, of which at most one is
// live at a time. Storage is allocated once, so beginning a computation
// never needs room for two.
type Slot struct {
	kind  Kind
	comps map[Kind]Computation
}

// NewSlot returns an idle slot over the given computations.
func NewSlot(comps map[Kind]Computation) *Slot {
	if _, ok := comps[Idle]; ok {
		panic("Idle cannot have a computation")
	}
	return &Slot{comps: comps}
}

// Kind returns what the slot holds.
func (s *Slot) Kind() Kind {
	return s.kind
}

// Busy reports whether a computation is in flight.
func (s *Slot) Busy() bool {
	return s.kind != Idle
}

// Supports reports whether k can be begun.
func (s *Slot) Supports(k Kind) bool {
	_, ok := s.comps[k]
	return ok
}

// Begin discards whatever is in flight and starts a fresh computation of
// kind k.
func (s *Slot) Begin(k Kind) error {
	if !s.Supports(k) {
		return fmt.Errorf("no computation for %v", k)
	}
	s.Reset()
	s.kind = k
	klog.V(1).Infof("Began %v", k)
	return nil
}

// Resume feeds the current command to the live computation. The slot returns
// to Idle when the computation completes or fails.
func (s *Slot) Resume(ctx context.Context, io *hostio.IO) (bool, error) {
	if s.kind == Idle {
		return false, errors.New("no computation in flight")
	}
	done, err := s.comps[s.kind].Resume(ctx, io)
	switch {
	case errors.Is(err, parser.ErrPending):
		return false, err
	case err != nil:
		s.Reset()
		return false, err
	case done:
		s.Reset()
	}
	return done, nil
}

// Reset returns the slot to Idle, wiping the computation that was in flight.
func (s *Slot) Reset() {
	if s.kind == Idle {
		return
	}
	klog.V(1).Infof("Reset %v", s.kind)
	s.comps[s.kind].Reset()
	s.kind = Idle
}
