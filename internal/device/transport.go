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

package device

import (
	"context"
	"errors"
	"sync"

	"github.com/transparency-dev/armored-signer/api"
)

// ErrStopped is returned by transport calls once the device loop has exited.
var ErrStopped = errors.New("device stopped")

// EventKind says what an Event carries.
type EventKind int

const (
	EventCommand EventKind = iota
	EventButton
	EventConfig
)

// Event is one input to the device loop.
type Event struct {
	Kind   EventKind
	APDU   []byte
	Button api.Button
	Config api.Configuration

	reply chan []byte
}

// ChanTransport carries events from any goroutine into the device loop and
// replies back to the submitter.
type ChanTransport struct {
	events chan Event
	done   chan struct{}
	once   sync.Once
}

// NewChanTransport returns a transport ready for use by Device.Run.
func NewChanTransport() *ChanTransport {
	return &ChanTransport{
		events: make(chan Event),
		done:   make(chan struct{}),
	}
}

func (t *ChanTransport) submit(ctx context.Context, ev Event) ([]byte, error) {
	ev.reply = make(chan []byte, 1)
	select {
	case t.events <- ev:
	case <-t.done:
		return nil, ErrStopped
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-ev.reply:
		return r, nil
	case <-t.done:
		// The loop replies before it stops.
		select {
		case r := <-ev.reply:
			return r, nil
		default:
			return nil, ErrStopped
		}
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Exchange delivers a command APDU and returns the reply APDU.
func (t *ChanTransport) Exchange(ctx context.Context, apdu []byte) ([]byte, error) {
	return t.submit(ctx, Event{Kind: EventCommand, APDU: apdu})
}

// Press delivers a button event.
func (t *ChanTransport) Press(ctx context.Context, b api.Button) error {
	_, err := t.submit(ctx, Event{Kind: EventButton, Button: b})
	return err
}

// Configure replaces the runtime configuration. Any computation in flight is
// discarded.
func (t *ChanTransport) Configure(ctx context.Context, cfg api.Configuration) error {
	_, err := t.submit(ctx, Event{Kind: EventConfig, Config: cfg})
	return err
}

func (t *ChanTransport) stop() {
	t.once.Do(func() { close(t.done) })
}
