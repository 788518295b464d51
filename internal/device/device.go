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

// Package device is the application shell of the signer: it owns the
// command engine and runs the single threaded loop which feeds it host
// commands, button presses and configuration updates.
package device

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/app"
	"github.com/transparency-dev/armored-signer/internal/chunk"
	"github.com/transparency-dev/armored-signer/internal/dispatch"
	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/state"
	"github.com/transparency-dev/armored-signer/internal/template"
	"k8s.io/klog/v2"
)

// AppName is reported by GetVersion.
const AppName = "armored signer"

const defaultTick = time.Second

// Display renders one screen.
type Display interface {
	Draw(title, text string)
}

type logDisplay struct{}

func (logDisplay) Draw(title, text string) {
	klog.V(2).Infof("Screen: %q %q", title, text)
}

// Config describes a signer.
type Config struct {
	// Secret is the device root secret keys are derived from.
	Secret []byte
	// UniqueID diversifies keys between devices sharing a secret.
	UniqueID string
	// Trusted is the meta-hash of the approved template allow-list.
	Trusted template.Hash
	// Settings are the initial runtime options.
	Settings api.Configuration
	// Version is the semantic version of the firmware.
	Version string

	// Prompter approves confirmations. If nil the buttons do.
	Prompter prompt.Prompter
	// Registerer, if set, receives the command engine's metrics.
	Registerer prometheus.Registerer
	// Display defaults to logging screens at V(2).
	Display Display
	// Tick is the display refresh interval.
	Tick time.Duration
}

type action int

const (
	actNone action = iota
	actAccept
	actReject
	actCancel
	actExit
)

type mode int

const (
	modeIdle mode = iota
	modeBusy
	modeConfirm
)

type screen struct {
	title, text string
	act         action
}

// Device runs the command engine. Everything except Busy, Name and Version
// must only be used from the goroutine calling Run.
type Device struct {
	disp    *dispatch.Dispatcher
	keys    *keys.Deriver
	ui      *prompt.Deferred
	cfg     *api.Configuration
	version semver.Version
	name    string
	display Display
	tick    time.Duration

	mode   mode
	cursor int
	busy   atomic.Bool
}

// New returns a Device for c.
func New(c Config) (*Device, error) {
	v, err := semver.NewVersion(strings.TrimPrefix(c.Version, "v"))
	if err != nil {
		return nil, fmt.Errorf("invalid version %q: %v", c.Version, err)
	}
	if len(c.Secret) == 0 {
		return nil, fmt.Errorf("empty root secret")
	}

	settings := c.Settings
	d := &Device{
		keys:    keys.NewDeriver(c.Secret, c.UniqueID),
		cfg:     &settings,
		version: *v,
		display: c.Display,
		tick:    c.Tick,
	}
	if d.display == nil {
		d.display = logDisplay{}
	}
	if d.tick <= 0 {
		d.tick = defaultTick
	}
	d.name = d.keys.Name()

	p := c.Prompter
	if p == nil {
		d.ui = &prompt.Deferred{}
		p = d.ui
	}
	env := &app.Env{
		Keys:     d.keys,
		Prompter: p,
		Trusted:  c.Trusted,
		Config:   d.cfg,
	}
	d.disp = dispatch.New(state.NewSlot(app.Computations(env)), hostio.New(&chunk.Store{}), d.cfg, c.Registerer)

	return d, nil
}

// Name returns the human friendly name of the device.
func (d *Device) Name() string {
	return d.name
}

// Version returns the firmware version.
func (d *Device) Version() semver.Version {
	return d.version
}

// Busy reports whether a computation was in flight after the last event.
func (d *Device) Busy() bool {
	return d.busy.Load()
}

// Run processes events from t until an Exit command, the Exit menu item or
// ctx is done.
func (d *Device) Run(ctx context.Context, t *ChanTransport) error {
	defer t.stop()
	defer d.shutdown()

	ticker := time.NewTicker(d.tick)
	defer ticker.Stop()

	klog.Infof("Signer %s (%s) ready", d.version, d.name)
	d.draw()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			d.draw()
		case ev := <-t.events:
			reply, exit := d.handle(ctx, ev)
			d.busy.Store(d.disp.Busy())
			if !exit {
				d.draw()
			}
			ev.reply <- reply
			if exit {
				klog.Info("Exiting at host or user direction")
				return nil
			}
		}
	}
}

func (d *Device) shutdown() {
	d.disp.Cancel()
	d.cancelPrompt()
	d.keys.Wipe()
	d.busy.Store(false)
}

func (d *Device) handle(ctx context.Context, ev Event) ([]byte, bool) {
	switch ev.Kind {
	case EventCommand:
		return d.command(ctx, ev.APDU)
	case EventButton:
		return nil, d.press(ev.Button)
	case EventConfig:
		klog.Infof("Configuration update: %+v", ev.Config)
		d.disp.Cancel()
		d.cancelPrompt()
		*d.cfg = ev.Config
		return nil, false
	}
	klog.Warningf("Ignoring unknown event kind %d", ev.Kind)
	return nil, false
}

// command answers the stateless instructions itself and hands everything
// else to the dispatcher.
func (d *Device) command(ctx context.Context, raw []byte) ([]byte, bool) {
	if cmd, err := api.ParseCommand(raw); err == nil {
		switch cmd.Ins {
		case api.InsGetVersion:
			v := []byte{byte(d.version.Major), byte(d.version.Minor), byte(d.version.Patch)}
			return api.EncodeReply(append(v, AppName...), api.SwOK), false
		case api.InsGetVersionStr:
			return api.EncodeReply([]byte("Armored Signer "+d.version.String()), api.SwOK), false
		case api.InsExit:
			return api.EncodeReply(nil, api.SwOK), true
		}
	}

	r := d.disp.Handle(ctx, raw)
	if !d.disp.Busy() {
		d.cancelPrompt()
	}
	return r, false
}

func (d *Device) cancelPrompt() {
	if d.ui != nil {
		d.ui.Cancel()
	}
}

// screens returns the menu for the current state, resetting the cursor when
// the menu changes.
func (d *Device) screens() []screen {
	var s []screen
	m := modeIdle
	if pages, ok := d.showing(); ok {
		m = modeConfirm
		for _, p := range pages {
			s = append(s, screen{title: p.Title, text: p.Text})
		}
		s = append(s, screen{title: "Accept", act: actAccept}, screen{title: "Reject", act: actReject})
	} else if d.disp.Busy() {
		m = modeBusy
		s = []screen{{title: "Working..."}, {title: "Cancel", act: actCancel}}
	} else {
		s = []screen{{title: "Signer " + d.version.String()}, {title: "Exit", act: actExit}}
	}
	if m != d.mode || d.cursor >= len(s) {
		d.mode = m
		d.cursor = 0
	}
	return s
}

func (d *Device) showing() ([]prompt.Page, bool) {
	if d.ui == nil {
		return nil, false
	}
	return d.ui.Showing()
}

func (d *Device) draw() {
	s := d.screens()[d.cursor]
	d.display.Draw(s.title, s.text)
}

// press moves through the menu or selects the current item. It reports
// whether the device should exit.
func (d *Device) press(b api.Button) bool {
	s := d.screens()
	switch b {
	case api.ButtonLeft:
		if d.cursor > 0 {
			d.cursor--
		}
	case api.ButtonRight:
		if d.cursor < len(s)-1 {
			d.cursor++
		}
	case api.ButtonBoth:
		return d.activate(s[d.cursor].act)
	default:
		klog.Warningf("Ignoring unknown button %d", b)
	}
	return false
}

func (d *Device) activate(a action) bool {
	switch a {
	case actAccept, actReject:
		if err := d.ui.Decide(a == actAccept); err != nil {
			klog.Warningf("Decide: %v", err)
		}
	case actCancel:
		d.disp.Cancel()
		d.cancelPrompt()
	case actExit:
		return true
	}
	return false
}
