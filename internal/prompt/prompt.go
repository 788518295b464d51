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

// Package prompt defines how computations ask the user to approve what they
// are about to do.
package prompt

import (
	"context"
	"fmt"
	"slices"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"k8s.io/klog/v2"
)

// MaxPages is the capacity of a Queue.
const MaxPages = 16

// Page is one screen of a confirmation.
type Page struct {
	Title string
	Text  string
}

// Prompter shows pages to the user and reports their decision.
//
// Implementations which cannot block until the user decides return
// parser.ErrPending; the caller retries with the same pages later.
type Prompter interface {
	Confirm(ctx context.Context, pages []Page) (bool, error)
}

// Queue collects pages to be confirmed together.
type Queue struct {
	pages [MaxPages]Page
	n     int
}

// Add appends page, first showing the queued pages if the queue is full.
func (q *Queue) Add(ctx context.Context, p Prompter, page Page) error {
	if q.n == MaxPages {
		if err := q.Show(ctx, p); err != nil {
			return err
		}
	}
	q.pages[q.n] = page
	q.n++
	return nil
}

// Show asks for confirmation of the queued pages and empties the queue once
// the user has accepted them. A rejection is api.ErrUserRejected.
func (q *Queue) Show(ctx context.Context, p Prompter) error {
	if q.n == 0 {
		return nil
	}
	ok, err := p.Confirm(ctx, q.pages[:q.n])
	if err != nil {
		return err
	}
	if !ok {
		q.Reset()
		return api.ErrUserRejected
	}
	q.Reset()
	return nil
}

// Len returns the number of queued pages.
func (q *Queue) Len() int {
	return q.n
}

// Reset drops all queued pages.
func (q *Queue) Reset() {
	clear(q.pages[:])
	q.n = 0
}

// AutoAccept approves everything, logging what was approved.
type AutoAccept struct{}

func (AutoAccept) Confirm(_ context.Context, pages []Page) (bool, error) {
	for _, p := range pages {
		klog.Infof("Accepting %q: %q", p.Title, p.Text)
	}
	return true, nil
}

// Deferred is a Prompter for event driven devices: Confirm publishes the
// pages and returns parser.ErrPending until Decide is called.
//
// It is not safe for concurrent use; all calls come from the device loop.
type Deferred struct {
	showing  bool
	pages    []Page
	decided  bool
	accepted bool
}

func (d *Deferred) Confirm(_ context.Context, pages []Page) (bool, error) {
	// A decision only applies to the pages it was made on.
	if d.showing && !slices.Equal(d.pages, pages) {
		d.Cancel()
	}
	if d.decided {
		ok := d.accepted
		d.Cancel()
		return ok, nil
	}
	if !d.showing {
		d.pages = append(d.pages[:0], pages...)
		d.showing = true
		klog.V(1).Infof("Awaiting decision on %d pages", len(pages))
	}
	return false, parser.ErrPending
}

// Showing returns the pages awaiting a decision, if any.
func (d *Deferred) Showing() ([]Page, bool) {
	return d.pages, d.showing && !d.decided
}

// Decide records the user's decision for the pages being shown.
func (d *Deferred) Decide(accept bool) error {
	if !d.showing {
		return fmt.Errorf("no confirmation pending")
	}
	d.decided = true
	d.accepted = accept
	return nil
}

// Cancel abandons any pending confirmation.
func (d *Deferred) Cancel() {
	clear(d.pages)
	d.pages = d.pages[:0]
	d.showing = false
	d.decided = false
	d.accepted = false
}
