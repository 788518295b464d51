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

// Package app implements the signer's instructions as resumable
// computations.
package app

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/state"
	"github.com/transparency-dev/armored-signer/internal/template"
)

// Env is what computations need from the device.
type Env struct {
	Keys     *keys.Deriver
	Prompter prompt.Prompter
	// Trusted is the meta-hash of the approved template allow-list.
	Trusted template.Hash
	// Config is consulted on every use, so changes apply to computations
	// already in flight.
	Config *api.Configuration
}

// Computations returns the storage for every instruction, ready to be owned
// by a state.Slot.
func Computations(env *Env) map[state.Kind]state.Computation {
	return map[state.Kind]state.Computation{
		state.GetAddress: NewGetAddress(env),
		state.Sign:       NewSign(env),
		state.Diagnostic: NewDiagnostic(env),
	}
}

// pathParser decodes a key derivation path.
func pathParser() *parser.DArray[uint8, uint32] {
	return parser.NewDArray[uint8, uint32](parser.U8(), parser.U32(parser.LittleEndian), keys.MaxPathLen)
}

// drive runs p over s and translates the outcome for a computation: a nil
// error with false means more input is needed.
func drive[T any](p parser.Parser[T], s *bytestream.Stream, hold func(*bytestream.Stream) error) (bool, error) {
	_, err := p.Parse(s)
	switch {
	case errors.Is(err, parser.ErrNeedMore):
		return false, nil
	case errors.Is(err, parser.ErrPending):
		if herr := hold(s); herr != nil {
			return false, herr
		}
		return false, err
	case err != nil:
		return false, err
	}
	if !s.Empty() {
		return false, fmt.Errorf("%w: %d trailing bytes", api.ErrMalformed, s.Len())
	}
	return true, nil
}

// confirmAddress returns whether the address must be shown before signing.
func (e *Env) confirmAddress() bool {
	return e.Config == nil || e.Config.ConfirmAddress
}
