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

// Package dispatch routes commands to the computation they belong to and
// turns the outcome into a reply.
package dispatch

import (
	"context"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/state"
	"k8s.io/klog/v2"
)

type metrics struct {
	commands   *prometheus.CounterVec
	resets     *prometheus.CounterVec
	signatures prometheus.Counter
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		commands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signer",
				Name:      "commands_total",
				Help:      "Commands handled, by instruction and status word.",
			},
			[]string{"ins", "status"},
		),
		resets: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "signer",
				Name:      "session_resets_total",
				Help:      "In-flight computations discarded, by reason.",
			},
			[]string{"reason"},
		),
		signatures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "signer",
				Name:      "signatures_total",
				Help:      "Transactions signed.",
			},
		),
	}
	if reg != nil {
		reg.MustRegister(m.commands, m.resets, m.signatures)
	}
	return m
}

// Dispatcher owns the computation slot and the host I/O state. It is not
// safe for concurrent use; the device loop serialises all calls.
type Dispatcher struct {
	slot *state.Slot
	io   *hostio.IO
	cfg  *api.Configuration
	m    *metrics
}

// New returns a Dispatcher. Metrics are registered with reg if it is not nil.
func New(slot *state.Slot, io *hostio.IO, cfg *api.Configuration, reg prometheus.Registerer) *Dispatcher {
	return &Dispatcher{
		slot: slot,
		io:   io,
		cfg:  cfg,
		m:    newMetrics(reg),
	}
}

// Busy reports whether a computation is in flight.
func (d *Dispatcher) Busy() bool {
	return d.slot.Busy()
}

// Handle processes one command APDU and returns the reply APDU.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte) []byte {
	cmd, err := api.ParseCommand(raw)
	if err != nil {
		d.fail()
		d.m.commands.WithLabelValues("malformed", fmt.Sprintf("%04x", api.SwUnknown)).Inc()
		return api.EncodeReply(nil, api.StatusWordFor(err))
	}
	data, sw := d.Command(ctx, cmd)
	return api.EncodeReply(data, sw)
}

// Command processes one decoded command. The returned data is only valid
// until the next call.
func (d *Dispatcher) Command(ctx context.Context, cmd api.Command) ([]byte, uint16) {
	data, sw, err := d.command(ctx, cmd)
	switch {
	case errors.Is(err, parser.ErrPending):
		data, sw = nil, api.SwAwaitingUser
	case err != nil:
		klog.Warningf("%s failed: %v", api.InsName(cmd.Ins), err)
		d.fail()
		data, sw = nil, api.StatusWordFor(err)
	}
	d.m.commands.WithLabelValues(api.InsName(cmd.Ins), fmt.Sprintf("%04x", sw)).Inc()
	return data, sw
}

func (d *Dispatcher) command(ctx context.Context, cmd api.Command) ([]byte, uint16, error) {
	kind, err := d.kindFor(cmd.Ins)
	if err != nil {
		return nil, 0, err
	}

	if cmd.P2 == api.P2GetChunk {
		d.io.Load(cmd)
		if err := d.io.ServeChunk(); err != nil {
			return nil, 0, err
		}
		data, sw := d.io.Reply()
		return data, sw, nil
	}

	if cmd.P2 == api.P2Resume && d.slot.Kind() != kind {
		return nil, 0, fmt.Errorf("%w: no %v in flight to resume", api.ErrMalformed, kind)
	}

	d.io.Load(cmd)
	if d.slot.Kind() != kind {
		if d.slot.Busy() {
			klog.Infof("Discarding %v for %v", d.slot.Kind(), kind)
			d.m.resets.WithLabelValues("replaced").Inc()
		}
		d.io.Discard()
		if err := d.slot.Begin(kind); err != nil {
			return nil, 0, err
		}
	}

	done, err := d.slot.Resume(ctx, d.io)
	if err != nil {
		if !errors.Is(err, parser.ErrPending) {
			// The slot has already returned to Idle.
			d.m.resets.WithLabelValues("error").Inc()
		}
		return nil, 0, err
	}
	if !done {
		klog.V(2).Infof("%v awaiting more input", kind)
		return nil, api.SwOK, nil
	}
	if kind == state.Sign {
		d.m.signatures.Inc()
	}
	data, sw := d.io.Reply()
	return data, sw, nil
}

func (d *Dispatcher) kindFor(ins byte) (state.Kind, error) {
	switch ins {
	case api.InsGetPubkey:
		return state.GetAddress, nil
	case api.InsSign:
		return state.Sign, nil
	case api.InsTestParsers:
		if d.cfg != nil && d.cfg.Diagnostics && d.slot.Supports(state.Diagnostic) {
			return state.Diagnostic, nil
		}
	}
	return state.Idle, fmt.Errorf("%w: %#02x", api.ErrUnknownInstruction, ins)
}

// fail returns to Idle after a protocol error.
func (d *Dispatcher) fail() {
	if d.slot.Busy() {
		d.m.resets.WithLabelValues("error").Inc()
	}
	d.slot.Reset()
	d.io.Discard()
}

// Cancel discards the computation in flight, if any.
func (d *Dispatcher) Cancel() {
	if !d.slot.Busy() {
		return
	}
	klog.Infof("Cancelling %v at user direction", d.slot.Kind())
	d.m.resets.WithLabelValues("cancel").Inc()
	d.slot.Reset()
	d.io.Discard()
}
