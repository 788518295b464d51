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

// Package hostio is the per-command view of the host link handed to
// computations: the command's parameters and the reply being built.
package hostio

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
	"github.com/transparency-dev/armored-signer/internal/chunk"
)

const (
	// MaxReplySize is the largest data field of a single reply.
	MaxReplySize = 255
	// MaxHeld is the largest amount of unread input carried over a
	// suspension.
	MaxHeld = 255

	handleSize = len(chunk.Handle{})
	pieceSize  = MaxReplySize - handleSize
)

var errResultTooLarge = errors.New("result exceeds reply buffer")

// IO carries one command in and one reply out. A single IO is reused for
// every command; Load starts a new one.
type IO struct {
	store *chunk.Store

	cmd    api.Command
	params bytestream.Params
	// p1 of the command being served; a resume keeps the suspended one's.
	p1 byte

	held  [MaxHeld]byte
	heldN int

	result  [chunk.Capacity]byte
	resultN int
	final   bool

	out  [MaxReplySize]byte
	outN int
	sw   uint16
}

// New returns an IO which stashes oversized replies in store.
func New(store *chunk.Store) *IO {
	return &IO{store: store, sw: api.SwOK}
}

// Load prepares io for cmd. Input held from a suspended command survives
// only into a resume.
func (io *IO) Load(cmd api.Command) {
	io.cmd = cmd
	io.params = bytestream.Params{}
	if cmd.P2 != api.P2Resume {
		io.heldN = 0
		io.p1 = cmd.P1
	}
	clear(io.result[:io.resultN])
	io.resultN = 0
	io.final = false
	io.outN = 0
	io.sw = api.SwOK
}

// Ins returns the instruction code.
func (io *IO) Ins() byte {
	return io.cmd.Ins
}

// Finalize reports whether the command terminates the current phase. On a
// resume it answers for the command that was suspended.
func (io *IO) Finalize() bool {
	return io.p1 != api.P1More
}

// Resuming reports whether the command resumes a suspended computation.
func (io *IO) Resuming() bool {
	return io.cmd.P2 == api.P2Resume
}

// Params splits the command data into n parameters. A resume carries no
// data of its own; its single parameter is the input held by Hold.
func (io *IO) Params(n int) (*bytestream.Params, error) {
	if io.Resuming() {
		if len(io.cmd.Data) != 0 {
			return nil, fmt.Errorf("%w: resume carries %d bytes of data", api.ErrMalformed, len(io.cmd.Data))
		}
		io.params.Assign(io.held[:io.heldN])
		io.heldN = 0
		return &io.params, nil
	}
	if len(io.cmd.Data) == 0 {
		return nil, api.ErrTransportEmpty
	}
	if err := io.params.Split(io.cmd.Data, n); err != nil {
		return nil, err
	}
	return &io.params, nil
}

// Hold keeps the unread remainder of s for the command which resumes this
// one.
func (io *IO) Hold(s *bytestream.Stream) error {
	if s.Len() > MaxHeld {
		return fmt.Errorf("%w: %d unread bytes", api.ErrMalformed, s.Len())
	}
	// s may alias the held buffer itself.
	io.heldN = copy(io.held[:], s.Take(s.Len()))
	return nil
}

// ResultAccumulating appends b to the reply without completing it.
func (io *IO) ResultAccumulating(b []byte) error {
	if io.final {
		return errors.New("reply already final")
	}
	if len(b) > len(io.result)-io.resultN {
		return errResultTooLarge
	}
	io.resultN += copy(io.result[io.resultN:], b)
	return nil
}

// ResultFinal appends b and completes the reply.
func (io *IO) ResultFinal(b []byte) error {
	if err := io.ResultAccumulating(b); err != nil {
		return err
	}
	io.final = true
	return io.emit()
}

// Final reports whether the reply has been completed.
func (io *IO) Final() bool {
	return io.final
}

// emit fills the outgoing reply from the result, stashing whatever does not
// fit for retrieval with ServeChunk.
func (io *IO) emit() error {
	data := io.result[:io.resultN]
	if len(data) <= MaxReplySize {
		io.outN = copy(io.out[:], data)
		io.sw = api.SwOK
		io.store.Clear()
		return nil
	}
	h, err := io.store.Put(data[pieceSize:])
	if err != nil {
		return err
	}
	io.outN = copy(io.out[:], data[:pieceSize])
	io.outN += copy(io.out[io.outN:], h[:])
	io.sw = api.SwMoreData
	return nil
}

// ServeChunk replies with the stashed piece addressed by the handle in the
// command data.
func (io *IO) ServeChunk() error {
	var h chunk.Handle
	if len(io.cmd.Data) != len(h) {
		return fmt.Errorf("%w: chunk handle is %d bytes", api.ErrMalformed, len(io.cmd.Data))
	}
	copy(h[:], io.cmd.Data)
	b, ok := io.store.Get(h)
	if !ok {
		return fmt.Errorf("%w: no stashed chunk %x", api.ErrMalformed, h)
	}
	// b aliases the store, which emit may overwrite.
	io.resultN = copy(io.result[:], b)
	io.final = true
	return io.emit()
}

// Reply returns the data and status word to send for this command.
func (io *IO) Reply() ([]byte, uint16) {
	return io.out[:io.outN], io.sw
}

// Discard drops held input, the reply and any stashed chunk.
func (io *IO) Discard() {
	io.p1 = api.P1More
	io.heldN = 0
	clear(io.held[:])
	clear(io.result[:io.resultN])
	io.resultN = 0
	io.final = false
	io.outN = 0
	io.sw = api.SwOK
	io.store.Clear()
}
