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

// Package parser implements resumable binary decoders.
//
// A parser is handed one chunk of input at a time. When the chunk runs out
// before a value is complete the parser returns ErrNeedMore, keeping every
// byte consumed so far; calling Parse again with the next chunk continues
// exactly where it stopped. Parsing a sequence split into any number of
// chunks yields the same result as parsing it in one go.
//
// Parsers hold their progress in storage sized when they are constructed and
// do not allocate while parsing. Slices returned by a parser alias its own
// storage and remain valid until that parser is invoked again.
//
// After yielding a value a parser is ready to decode the next one, which lets
// repetition combinators reuse a single element parser.
package parser

import (
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
)

var (
	// ErrNeedMore is returned when the input ends before a value is complete.
	ErrNeedMore = errors.New("need more input")
	// ErrPending is returned by actions waiting on an external decision, such
	// as a user confirmation.
	ErrPending = errors.New("awaiting decision")
	// ErrTooLong is returned when a length prefix exceeds its bound.
	ErrTooLong = fmt.Errorf("%w: length exceeds bound", api.ErrMalformed)
)

// Suspended reports whether err means the parse is paused rather than failed.
func Suspended(err error) bool {
	return errors.Is(err, ErrNeedMore) || errors.Is(err, ErrPending)
}

// Parser decodes values of type T from a byte stream.
type Parser[T any] interface {
	// Parse consumes input from s. It returns ErrNeedMore or ErrPending when
	// the value is not complete yet, and any other error on failure. A failed
	// parser is reset.
	Parse(s *bytestream.Stream) (T, error)
	// Reset discards all progress.
	Reset()
}

// Tuple is the value produced by Pair.
type Tuple[A, B any] struct {
	First  A
	Second B
}

// Pair parses a then b.
type Pair[A, B any] struct {
	a     Parser[A]
	b     Parser[B]
	haveA bool
	va    A
}

// NewPair returns a parser for a followed by b.
func NewPair[A, B any](a Parser[A], b Parser[B]) *Pair[A, B] {
	return &Pair[A, B]{a: a, b: b}
}

func (p *Pair[A, B]) Parse(s *bytestream.Stream) (Tuple[A, B], error) {
	if !p.haveA {
		va, err := p.a.Parse(s)
		if err != nil {
			return Tuple[A, B]{}, p.fail(err)
		}
		p.va = va
		p.haveA = true
	}

	vb, err := p.b.Parse(s)
	if err != nil {
		return Tuple[A, B]{}, p.fail(err)
	}

	res := Tuple[A, B]{First: p.va, Second: vb}
	p.clear()

	return res, nil
}

func (p *Pair[A, B]) fail(err error) error {
	if !Suspended(err) {
		p.Reset()
	}
	return err
}

func (p *Pair[A, B]) clear() {
	var zero A
	p.va = zero
	p.haveA = false
}

func (p *Pair[A, B]) Reset() {
	p.a.Reset()
	p.b.Reset()
	p.clear()
}

// Action runs a side effect on the output of a sub-parser and yields its
// result. The side effect may return ErrPending, in which case it is invoked
// again on the next Parse without re-running the sub-parser.
type Action[I, O any] struct {
	sub  Parser[I]
	fn   func(I) (O, error)
	have bool
	in   I
}

// NewAction returns a parser applying fn to the values decoded by sub.
func NewAction[I, O any](sub Parser[I], fn func(I) (O, error)) *Action[I, O] {
	return &Action[I, O]{sub: sub, fn: fn}
}

func (p *Action[I, O]) Parse(s *bytestream.Stream) (O, error) {
	var zero O

	if !p.have {
		in, err := p.sub.Parse(s)
		if err != nil {
			if !Suspended(err) {
				p.Reset()
			}
			return zero, err
		}
		p.in = in
		p.have = true
	}

	out, err := p.fn(p.in)
	if errors.Is(err, ErrPending) {
		return zero, err
	}

	p.clear()
	if err != nil {
		p.Reset()
		return zero, err
	}

	return out, nil
}

func (p *Action[I, O]) clear() {
	var zero I
	p.in = zero
	p.have = false
}

func (p *Action[I, O]) Reset() {
	p.sub.Reset()
	p.clear()
}

// Many applies an element parser repeatedly for as long as input remains.
// It never completes by itself: the caller decides when the sequence ends
// and uses Partial to check that it ended on an element boundary.
type Many[T any] struct {
	elem    Parser[T]
	partial bool
}

// NewMany returns a repetition of elem.
func NewMany[T any](elem Parser[T]) *Many[T] {
	return &Many[T]{elem: elem}
}

// Feed parses elements from s until it is exhausted and returns how many were
// completed. A chunk ending inside an element is not an error.
func (p *Many[T]) Feed(s *bytestream.Stream) (int, error) {
	n := 0
	for !s.Empty() || p.partial {
		_, err := p.elem.Parse(s)
		switch {
		case err == nil:
			p.partial = false
			n++
		case errors.Is(err, ErrNeedMore):
			p.partial = true
			return n, nil
		case errors.Is(err, ErrPending):
			p.partial = true
			return n, err
		default:
			p.Reset()
			return n, err
		}
	}
	return n, nil
}

// Partial reports whether an element has been started but not completed.
func (p *Many[T]) Partial() bool {
	return p.partial
}

func (p *Many[T]) Reset() {
	p.elem.Reset()
	p.partial = false
}
