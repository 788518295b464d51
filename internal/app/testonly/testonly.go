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

// Package testonly provides support for instruction tests.
package testonly

import (
	"bytes"
	"context"
	"testing"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/template"
)

// Secret is the root secret of test devices.
var Secret = bytes.Repeat([]byte{0x5a}, 32)

// Serial is the unique ID of test devices.
const Serial = "TEST-SERIAL"

// Deriver returns a key deriver for a test device.
func Deriver() *keys.Deriver {
	return keys.NewDeriver(Secret, Serial)
}

// Prompter records every confirmation it is asked for and answers from a
// script.
type Prompter struct {
	// Answers are consumed in order; once exhausted Default is used.
	Answers []bool
	Default bool
	// Pending is the number of calls answered with parser.ErrPending before
	// each decision.
	Pending int

	Shown   [][]prompt.Page
	pending int
}

// Accepting returns a Prompter which accepts everything.
func Accepting() *Prompter {
	return &Prompter{Default: true}
}

func (p *Prompter) Confirm(_ context.Context, pages []prompt.Page) (bool, error) {
	if p.pending < p.Pending {
		p.pending++
		return false, parser.ErrPending
	}
	p.pending = 0
	p.Shown = append(p.Shown, append([]prompt.Page{}, pages...))
	if len(p.Answers) > 0 {
		a := p.Answers[0]
		p.Answers = p.Answers[1:]
		return a, nil
	}
	return p.Default, nil
}

// Pages returns every page shown, flattened.
func (p *Prompter) Pages() []prompt.Page {
	var r []prompt.Page
	for _, s := range p.Shown {
		r = append(r, s...)
	}
	return r
}

// Param frames b as the single parameter of a command.
func Param(t *testing.T, b []byte) []byte {
	t.Helper()
	r, err := bytestream.Frame(b)
	if err != nil {
		t.Fatalf("Frame: %v", err)
	}
	return r
}

// Command returns a data command carrying b as its single parameter.
func Command(t *testing.T, ins, p1 byte, b []byte) api.Command {
	t.Helper()
	return api.Command{Ins: ins, P1: p1, P2: api.P2Data, Data: Param(t, b)}
}

// Resume returns a command resuming a suspended ins.
func Resume(ins byte) api.Command {
	return api.Command{Ins: ins, P2: api.P2Resume}
}

// Transfer returns the Sections of a sample transfer transaction.
func Transfer(t *testing.T, amount string) []template.Section {
	t.Helper()
	msg, err := template.NewUserMessage("Transfer funds")
	if err != nil {
		t.Fatal(err)
	}
	lit, err := template.NewLiteralText("amount:")
	if err != nil {
		t.Fatal(err)
	}
	sub, err := template.NewSubstitution("Amount", amount)
	if err != nil {
		t.Fatal(err)
	}
	return []template.Section{msg, lit, sub}
}

// Concat returns the wire form of secs.
func Concat(secs []template.Section) []byte {
	var b []byte
	for i := range secs {
		b = append(b, secs[i][:]...)
	}
	return b
}

// Split cuts b into pieces of at most n bytes.
func Split(b []byte, n int) [][]byte {
	var r [][]byte
	for len(b) > n {
		r = append(r, b[:n])
		b = b[n:]
	}
	return append(r, b)
}
