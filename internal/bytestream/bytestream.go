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

// Package bytestream provides the read cursor handed to parsers for the bytes
// of one command argument, and the parameter set carried by a command.
package bytestream

import (
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
)

// MaxParams is the largest number of arguments a single command may carry.
const MaxParams = 4

// Stream is a sequential, non-backtracking read cursor over one chunk of an
// argument.
type Stream struct {
	buf []byte
	off int
}

// New returns a Stream over b. The stream does not copy b.
func New(b []byte) *Stream {
	return &Stream{buf: b}
}

// Reset points the stream at a new chunk.
func (s *Stream) Reset(b []byte) {
	s.buf = b
	s.off = 0
}

// Len returns the number of unread bytes.
func (s *Stream) Len() int {
	return len(s.buf) - s.off
}

// Empty reports whether all bytes have been read.
func (s *Stream) Empty() bool {
	return s.Len() == 0
}

// Consumed returns the number of bytes read so far.
func (s *Stream) Consumed() int {
	return s.off
}

// Take returns up to n unread bytes and advances past them. Fewer than n
// bytes are returned only when the stream is exhausted.
// The returned slice aliases the chunk.
func (s *Stream) Take(n int) []byte {
	if n > s.Len() {
		n = s.Len()
	}
	b := s.buf[s.off : s.off+n]
	s.off += n
	return b
}

// Params is the ordered set of arguments carried by a command.
type Params struct {
	n       int
	streams [MaxParams]Stream
}

// Len returns the number of parameters.
func (p *Params) Len() int {
	return p.n
}

// Get returns the i-th parameter stream.
func (p *Params) Get(i int) *Stream {
	if i < 0 || i >= p.n {
		panic(fmt.Sprintf("parameter %d out of range [0, %d)", i, p.n))
	}
	return &p.streams[i]
}

// Split decodes n parameters from a command payload, each framed as
// len:u8 || bytes. Streams alias payload.
func (p *Params) Split(payload []byte, n int) error {
	if n < 0 || n > MaxParams {
		return fmt.Errorf("%w: %d parameters requested, at most %d supported", api.ErrMalformed, n, MaxParams)
	}

	p.n = 0
	for i := 0; i < n; i++ {
		if len(payload) < 1 {
			return fmt.Errorf("%w: missing length of parameter %d", api.ErrMalformed, i)
		}
		l := int(payload[0])
		payload = payload[1:]
		if l > len(payload) {
			return fmt.Errorf("%w: parameter %d declares %d bytes, %d available", api.ErrMalformed, i, l, len(payload))
		}
		p.streams[i].Reset(payload[:l])
		payload = payload[l:]
		p.n++
	}

	if len(payload) != 0 {
		p.n = 0
		return fmt.Errorf("%w: %d trailing bytes after parameters", api.ErrMalformed, len(payload))
	}

	return nil
}

// Frame encodes arguments in the format decoded by Split.
func Frame(args ...[]byte) ([]byte, error) {
	if len(args) > MaxParams {
		return nil, fmt.Errorf("too many parameters (%d > %d)", len(args), MaxParams)
	}
	var res []byte
	for i, a := range args {
		if len(a) > 0xff {
			return nil, fmt.Errorf("parameter %d too long (%d bytes)", i, len(a))
		}
		res = append(res, byte(len(a)))
		res = append(res, a...)
	}
	return res, nil
}

// Assign makes b the single parameter.
func (p *Params) Assign(b []byte) {
	p.streams[0].Reset(b)
	p.n = 1
}
