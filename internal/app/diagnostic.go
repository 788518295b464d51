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

package app

import (
	"context"
	"fmt"

	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/prompt"
)

type (
	u16Pair = parser.Tuple[uint16, uint16]
	u32Pair = parser.Tuple[uint32, uint32]
	u64Pair = parser.Tuple[uint64, uint64]
	unit    = struct{}
	units   = parser.Tuple[unit, unit]
)

// Diagnostic exercises every parser kind on the schema
//
//	((u8, [32]u8), (u16be, u16le)), ((u64be, u64le), (darray<u8, u8, 24>, darray<u8, (u32be, u32le), 4>))
//
// showing what it decoded. It replies with no data once the user accepts.
type Diagnostic struct {
	env *Env
	// Pages are split over two queues, shown in order.
	first, second prompt.Queue

	schema *parser.Action[parser.Tuple[units, units], unit]

	ctx   context.Context
	io    *hostio.IO
	shown bool
}

// NewDiagnostic returns an idle Diagnostic computation.
func NewDiagnostic(env *Env) *Diagnostic {
	d := &Diagnostic{env: env}

	bytesGroup := parser.NewAction[parser.Tuple[uint8, []byte], unit](
		parser.NewPair[uint8, []byte](parser.U8(), parser.FixedBytes(32)),
		func(v parser.Tuple[uint8, []byte]) (unit, error) {
			return d.page(&d.second, "Got Bytes", fmt.Sprintf("v1: %d, v2: %x", v.First, v.Second))
		})
	u16Group := parser.NewAction[u16Pair, unit](
		parser.NewPair[uint16, uint16](parser.U16(parser.BigEndian), parser.U16(parser.LittleEndian)),
		func(v u16Pair) (unit, error) {
			return d.page(&d.first, "Got U16", fmt.Sprintf("v1: %d, v2: %d", v.First, v.Second))
		})
	u64Group := parser.NewAction[u64Pair, unit](
		parser.NewPair[uint64, uint64](parser.U64(parser.BigEndian), parser.U64(parser.LittleEndian)),
		func(v u64Pair) (unit, error) {
			return d.page(&d.second, "Got U64", fmt.Sprintf("v1: %d, v2: %d", v.First, v.Second))
		})
	u32Group := parser.NewAction[u32Pair, unit](
		parser.NewPair[uint32, uint32](parser.U32(parser.BigEndian), parser.U32(parser.LittleEndian)),
		func(v u32Pair) (unit, error) {
			return d.page(&d.first, "Got U32", fmt.Sprintf("v1: %d, v2: %d", v.First, v.Second))
		})
	darrayGroup := parser.NewAction[parser.Tuple[[]uint8, []unit], unit](
		parser.NewPair[[]uint8, []unit](
			parser.NewDArray[uint8, uint8](parser.U8(), parser.U8(), 24),
			parser.NewDArray[uint8, unit](parser.U8(), u32Group, 4),
		),
		func(v parser.Tuple[[]uint8, []unit]) (unit, error) {
			return d.page(&d.first, "Got Darray", fmt.Sprintf("v1: %x", v.First))
		})

	d.schema = parser.NewAction[parser.Tuple[units, units], unit](
		parser.NewPair[units, units](
			parser.NewPair[unit, unit](bytesGroup, u16Group),
			parser.NewPair[unit, unit](u64Group, darrayGroup),
		),
		d.finish)
	return d
}

func (d *Diagnostic) page(q *prompt.Queue, title, text string) (unit, error) {
	return unit{}, q.Add(d.ctx, d.env.Prompter, prompt.Page{Title: title, Text: text})
}

func (d *Diagnostic) finish(parser.Tuple[units, units]) (unit, error) {
	if !d.shown {
		if err := d.first.Show(d.ctx, d.env.Prompter); err != nil {
			return unit{}, err
		}
		d.shown = true
	}
	if err := d.second.Show(d.ctx, d.env.Prompter); err != nil {
		return unit{}, err
	}
	return unit{}, d.io.ResultFinal(nil)
}

func (d *Diagnostic) Resume(ctx context.Context, io *hostio.IO) (bool, error) {
	d.ctx, d.io = ctx, io
	defer func() { d.ctx, d.io = nil, nil }()

	params, err := io.Params(1)
	if err != nil {
		return false, err
	}
	return drive[unit](d.schema, params.Get(0), io.Hold)
}

func (d *Diagnostic) Reset() {
	d.schema.Reset()
	d.first.Reset()
	d.second.Reset()
	d.shown = false
}
