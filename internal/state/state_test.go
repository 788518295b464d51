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

package state

import (
	"context"
	"errors"
	"testing"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/chunk"
	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/parser"
)

// fake completes after a fixed number of resumes.
type fake struct {
	steps  int
	seen   int
	err    error
	resets int
}

func (f *fake) Resume(context.Context, *hostio.IO) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	f.seen++
	return f.seen == f.steps, nil
}

func (f *fake) Reset() {
	f.seen = 0
	f.resets++
}

func TestLifecycle(t *testing.T) {
	ctx := context.Background()
	io := hostio.New(&chunk.Store{})
	sign := &fake{steps: 2}
	s := NewSlot(map[Kind]Computation{Sign: sign})

	if _, err := s.Resume(ctx, io); err == nil {
		t.Fatal("Resume on idle slot succeeded")
	}
	if err := s.Begin(GetAddress); err == nil {
		t.Fatal("Begin of unsupported kind succeeded")
	}

	if err := s.Begin(Sign); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if !s.Busy() || s.Kind() != Sign {
		t.Fatalf("Kind() = %v after Begin", s.Kind())
	}
	if done, err := s.Resume(ctx, io); done || err != nil {
		t.Fatalf("first Resume = %t, %v", done, err)
	}
	if done, err := s.Resume(ctx, io); !done || err != nil {
		t.Fatalf("second Resume = %t, %v", done, err)
	}
	if s.Busy() {
		t.Fatal("slot busy after completion")
	}
	if sign.resets != 1 {
		t.Fatalf("computation reset %d times, want 1", sign.resets)
	}
}

func TestBeginDiscardsInFlight(t *testing.T) {
	ctx := context.Background()
	io := hostio.New(&chunk.Store{})
	sign := &fake{steps: 3}
	s := NewSlot(map[Kind]Computation{Sign: sign})

	_ = s.Begin(Sign)
	_, _ = s.Resume(ctx, io)
	_ = s.Begin(Sign)
	if sign.seen != 0 {
		t.Fatalf("restarted computation kept %d steps of progress", sign.seen)
	}
}

func TestErrors(t *testing.T) {
	ctx := context.Background()
	io := hostio.New(&chunk.Store{})
	for _, test := range []struct {
		name     string
		err      error
		wantBusy bool
	}{
		{name: "pending", err: parser.ErrPending, wantBusy: true},
		{name: "malformed", err: api.ErrMalformed, wantBusy: false},
		{name: "rejected", err: api.ErrUserRejected, wantBusy: false},
	} {
		t.Run(test.name, func(t *testing.T) {
			c := &fake{err: test.err}
			s := NewSlot(map[Kind]Computation{Diagnostic: c})
			_ = s.Begin(Diagnostic)
			if _, err := s.Resume(ctx, io); !errors.Is(err, test.err) {
				t.Fatalf("Got %v, want %v", err, test.err)
			}
			if s.Busy() != test.wantBusy {
				t.Fatalf("Busy() = %t, want %t", s.Busy(), test.wantBusy)
			}
		})
	}
}

func TestReset(t *testing.T) {
	c := &fake{steps: 5}
	s := NewSlot(map[Kind]Computation{GetAddress: c})
	s.Reset()
	if c.resets != 0 {
		t.Fatal("idle Reset touched a computation")
	}
	_ = s.Begin(GetAddress)
	s.Reset()
	if s.Busy() || c.resets != 1 {
		t.Fatalf("Busy() = %t, resets = %d", s.Busy(), c.resets)
	}
}
