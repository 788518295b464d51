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

package parser

import (
	"fmt"

	"github.com/transparency-dev/armored-signer/internal/bytestream"
)

// Endianness selects the byte order of an integer.
type Endianness int

const (
	BigEndian Endianness = iota
	LittleEndian
)

// Unsigned is the set of integer types decoded by Int.
type Unsigned interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64
}

// Int decodes a fixed width unsigned integer.
type Int[T Unsigned] struct {
	order Endianness
	width int
	n     int
	buf   [8]byte
}

// U8 returns a parser for a single byte.
func U8() *Int[uint8] {
	return &Int[uint8]{width: 1}
}

// U16 returns a parser for a 16-bit integer in the given byte order.
func U16(order Endianness) *Int[uint16] {
	return &Int[uint16]{order: order, width: 2}
}

// U32 returns a parser for a 32-bit integer in the given byte order.
func U32(order Endianness) *Int[uint32] {
	return &Int[uint32]{order: order, width: 4}
}

// U64 returns a parser for a 64-bit integer in the given byte order.
func U64(order Endianness) *Int[uint64] {
	return &Int[uint64]{order: order, width: 8}
}

func (p *Int[T]) Parse(s *bytestream.Stream) (T, error) {
	p.n += copy(p.buf[p.n:p.width], s.Take(p.width-p.n))
	if p.n < p.width {
		return 0, ErrNeedMore
	}

	var v uint64
	for i := 0; i < p.width; i++ {
		if p.order == BigEndian {
			v = v<<8 | uint64(p.buf[i])
		} else {
			v |= uint64(p.buf[i]) << (8 * i)
		}
	}
	p.Reset()

	return T(v), nil
}

func (p *Int[T]) Reset() {
	p.n = 0
	clear(p.buf[:])
}

// Bytes decodes a fixed number of raw bytes.
type Bytes struct {
	buf []byte
	n   int
}

// FixedBytes returns a parser for exactly n bytes.
func FixedBytes(n int) *Bytes {
	return &Bytes{buf: make([]byte, n)}
}

func (p *Bytes) Parse(s *bytestream.Stream) ([]byte, error) {
	p.n += copy(p.buf[p.n:], s.Take(len(p.buf)-p.n))
	if p.n < len(p.buf) {
		return nil, ErrNeedMore
	}
	p.n = 0
	return p.buf, nil
}

// Reset discards progress and zeroes the buffer.
func (p *Bytes) Reset() {
	p.n = 0
	clear(p.buf)
}

// Array decodes a fixed number of elements. Element values must not alias
// the element parser's storage.
type Array[T any] struct {
	elem Parser[T]
	out  []T
}

// NewArray returns a parser for exactly n elements.
func NewArray[T any](elem Parser[T], n int) *Array[T] {
	return &Array[T]{elem: elem, out: make([]T, 0, n)}
}

func (p *Array[T]) Parse(s *bytestream.Stream) ([]T, error) {
	for len(p.out) < cap(p.out) {
		v, err := p.elem.Parse(s)
		if err != nil {
			if !Suspended(err) {
				p.Reset()
			}
			return nil, err
		}
		p.out = append(p.out, v)
	}
	res := p.out
	p.out = p.out[:0]
	return res, nil
}

func (p *Array[T]) Reset() {
	p.elem.Reset()
	clear(p.out[:cap(p.out)])
	p.out = p.out[:0]
}

// DArray decodes a length prefix followed by that many elements, up to a
// fixed bound. Element values must not alias the element parser's storage.
type DArray[L Unsigned, T any] struct {
	length  Parser[L]
	elem    Parser[T]
	count   int
	started bool
	out     []T
}

// NewDArray returns a parser for a length-prefixed sequence of at most max
// elements.
func NewDArray[L Unsigned, T any](length Parser[L], elem Parser[T], max int) *DArray[L, T] {
	return &DArray[L, T]{length: length, elem: elem, out: make([]T, 0, max)}
}

func (p *DArray[L, T]) Parse(s *bytestream.Stream) ([]T, error) {
	if !p.started {
		l, err := p.length.Parse(s)
		if err != nil {
			if !Suspended(err) {
				p.Reset()
			}
			return nil, err
		}
		if uint64(l) > uint64(cap(p.out)) {
			p.Reset()
			return nil, fmt.Errorf("%w: %d > %d elements", ErrTooLong, uint64(l), cap(p.out))
		}
		p.count = int(l)
		p.started = true
	}

	for len(p.out) < p.count {
		v, err := p.elem.Parse(s)
		if err != nil {
			if !Suspended(err) {
				p.Reset()
			}
			return nil, err
		}
		p.out = append(p.out, v)
	}

	res := p.out
	p.out = p.out[:0]
	p.started = false
	p.count = 0
	return res, nil
}

func (p *DArray[L, T]) Reset() {
	p.length.Reset()
	p.elem.Reset()
	clear(p.out[:cap(p.out)])
	p.out = p.out[:0]
	p.started = false
	p.count = 0
}
