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

package prompt

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/parser"
)

type recorder struct {
	shown  [][]Page
	answer bool
}

func (r *recorder) Confirm(_ context.Context, pages []Page) (bool, error) {
	r.shown = append(r.shown, append([]Page{}, pages...))
	return r.answer, nil
}

func TestQueueShowsWhenFull(t *testing.T) {
	ctx := context.Background()
	r := &recorder{answer: true}
	var q Queue

	for i := 0; i < MaxPages+1; i++ {
		if err := q.Add(ctx, r, Page{Title: "Message", Text: fmt.Sprint(i)}); err != nil {
			t.Fatalf("Add(%d): %v", i, err)
		}
	}
	if got, want := len(r.shown), 1; got != want {
		t.Fatalf("shown %d times, want %d", got, want)
	}
	if got, want := len(r.shown[0]), MaxPages; got != want {
		t.Fatalf("first confirmation had %d pages, want %d", got, want)
	}
	if got, want := q.Len(), 1; got != want {
		t.Fatalf("Len() = %d, want %d", got, want)
	}

	if err := q.Show(ctx, r); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if diff := cmp.Diff([]Page{{Title: "Message", Text: fmt.Sprint(MaxPages)}}, r.shown[1]); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestQueueRejection(t *testing.T) {
	r := &recorder{answer: false}
	var q Queue
	_ = q.Add(context.Background(), r, Page{Title: "Sign Transaction"})

	if err := q.Show(context.Background(), r); !errors.Is(err, api.ErrUserRejected) {
		t.Fatalf("Got %v, want ErrUserRejected", err)
	}
	if q.Len() != 0 {
		t.Fatal("queue not emptied after rejection")
	}
}

func TestShowEmptyQueue(t *testing.T) {
	r := &recorder{}
	var q Queue
	if err := q.Show(context.Background(), r); err != nil {
		t.Fatalf("Show: %v", err)
	}
	if len(r.shown) != 0 {
		t.Fatal("empty queue was shown")
	}
}

func TestDeferred(t *testing.T) {
	ctx := context.Background()
	d := &Deferred{}
	var q Queue
	_ = q.Add(ctx, d, Page{Title: "Provide Public Key", Text: "For Address abc"})

	if err := d.Decide(true); err == nil {
		t.Fatal("Decide with nothing showing succeeded")
	}
	for i := 0; i < 2; i++ {
		if err := q.Show(ctx, d); !errors.Is(err, parser.ErrPending) {
			t.Fatalf("Show = %v, want ErrPending", err)
		}
	}
	pages, ok := d.Showing()
	if !ok {
		t.Fatal("nothing showing")
	}
	if diff := cmp.Diff([]Page{{Title: "Provide Public Key", Text: "For Address abc"}}, pages); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}

	if err := d.Decide(true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if err := q.Show(ctx, d); err != nil {
		t.Fatalf("Show after accept: %v", err)
	}
	if _, ok := d.Showing(); ok {
		t.Fatal("still showing after decision was consumed")
	}
}

func TestDeferredNewPagesDropDecision(t *testing.T) {
	ctx := context.Background()
	d := &Deferred{}
	first := []Page{{Title: "Sign Transaction", Text: "Hash: a"}}
	second := []Page{{Title: "Provide Public Key", Text: "For Address b"}}

	if _, err := d.Confirm(ctx, first); !errors.Is(err, parser.ErrPending) {
		t.Fatalf("Confirm = %v, want ErrPending", err)
	}
	if err := d.Decide(true); err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if _, err := d.Confirm(ctx, second); !errors.Is(err, parser.ErrPending) {
		t.Fatalf("Confirm(other pages) = %v, want ErrPending", err)
	}
	pages, ok := d.Showing()
	if !ok {
		t.Fatal("nothing showing")
	}
	if diff := cmp.Diff(second, pages); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}
