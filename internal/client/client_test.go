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

package client

import (
	"context"
	"crypto/ed25519"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/app/testonly"
	"github.com/transparency-dev/armored-signer/internal/device"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/template"
)

// startSigner runs a simulated signer trusting list and returns its vendor
// command handler.
func startSigner(t *testing.T, p prompt.Prompter, list []template.Hash) *device.Control {
	t.Helper()
	trusted := template.MetaHash(list)
	d, err := device.New(device.Config{
		Secret:   testonly.Secret,
		UniqueID: testonly.Serial,
		Trusted:  trusted,
		Settings: api.DefaultConfiguration(),
		Version:  "1.0.7",
		Prompter: p,
		Tick:     time.Hour,
	})
	if err != nil {
		t.Fatalf("device.New: %v", err)
	}
	tr := device.NewChanTransport()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = d.Run(ctx, tr) }()
	return &device.Control{Device: d, Transport: tr, Trusted: trusted, HostButtons: true}
}

// pipeLink serves c over an in-memory connection.
func pipeLink(t *testing.T, c *device.Control) Link {
	t.Helper()
	host, sim := net.Pipe()
	go func() { _ = ServeConn(sim, c) }()
	l := NewTCPLink(host)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestEndToEnd(t *testing.T) {
	ctx := context.Background()
	secs := testonly.Transfer(t, "12.5 XYZ")
	// Enough candidates to need several commands.
	list := make([]template.Hash, 20)
	for i := range list {
		list[i][0] = byte(i)
	}
	list[13] = template.Checksum(secs)
	path := []uint32{44, 60, 0}

	for _, test := range []struct {
		desc string
		link func(*testing.T, *device.Control) Link
	}{
		{
			desc: "in process",
			link: func(_ *testing.T, c *device.Control) Link { return c },
		}, {
			desc: "tcp",
			link: func(t *testing.T, c *device.Control) Link { return pipeLink(t, c) },
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			p := &testonly.Prompter{Default: true, Pending: 1}
			d := NewDevice(test.link(t, startSigner(t, p, list)))
			d.PollInterval = time.Millisecond
			var sent int
			d.Progress = func(n int) { sent += n }

			v, name, err := d.Version(ctx)
			if err != nil {
				t.Fatalf("Version: %v", err)
			}
			if v.String() != "1.0.7" || name != "armored signer" {
				t.Fatalf("Version = %v %q", v, name)
			}

			pub, addr, err := d.PublicKey(ctx, path)
			if err != nil {
				t.Fatalf("PublicKey: %v", err)
			}
			k, _ := testonly.Deriver().Derive(path)
			if diff := cmp.Diff(k.Public(), pub); diff != "" || addr != keys.Address(pub) {
				t.Fatalf("PublicKey: address %q, key diff: %s", addr, diff)
			}

			sig, err := d.Sign(ctx, secs, list, path)
			if err != nil {
				t.Fatalf("Sign: %v", err)
			}
			h := template.SignedHash(secs)
			if !ed25519.Verify(pub, h[:], sig) {
				t.Fatal("signature does not verify")
			}
			if want := len(secs)*template.SectionSize + len(list)*template.HashSize; sent < want {
				t.Fatalf("progress reported %d bytes, want at least %d", sent, want)
			}

			s, err := d.Status()
			if err != nil {
				t.Fatalf("Status: %v", err)
			}
			if s.Busy || s.Version != "1.0.7" {
				t.Fatalf("unexpected status %+v", s)
			}
		})
	}
}

func TestUntrustedTemplate(t *testing.T) {
	ctx := context.Background()
	secs := testonly.Transfer(t, "1")
	d := NewDevice(startSigner(t, testonly.Accepting(), []template.Hash{{1}}))

	_, err := d.Sign(ctx, secs, []template.Hash{template.Checksum(secs)}, nil)
	var serr *StatusError
	if !errors.As(err, &serr) || serr.Sw != api.SwUnknown {
		t.Fatalf("Sign = %v, want status %04x", err, api.SwUnknown)
	}
}

func TestRejected(t *testing.T) {
	d := NewDevice(startSigner(t, &testonly.Prompter{Default: false}, nil))
	if _, _, err := d.PublicKey(context.Background(), nil); err == nil {
		t.Fatal("PublicKey succeeded without confirmation")
	}
}

func TestDeviceControl(t *testing.T) {
	ctx := context.Background()
	d := NewDevice(pipeLink(t, startSigner(t, testonly.Accepting(), nil)))

	if err := d.Diagnostic(ctx, []byte{1}); err == nil {
		t.Fatal("Diagnostic succeeded while disabled")
	}
	if err := d.Configure(api.Configuration{Diagnostics: true}); err != nil {
		t.Fatalf("Configure: %v", err)
	}
	if err := d.Diagnostic(ctx, []byte{1}); err != nil {
		t.Fatalf("Diagnostic: %v", err)
	}
	if err := d.Press(api.ButtonLeft); err != nil {
		t.Fatalf("Press: %v", err)
	}
	s, err := d.VersionString(ctx)
	if err != nil || s != "Armored Signer 1.0.7" {
		t.Fatalf("VersionString = %q, %v", s, err)
	}
	if err := d.Exit(ctx); err != nil {
		t.Fatalf("Exit: %v", err)
	}
	if _, _, err := d.Version(ctx); err == nil {
		t.Fatal("Version succeeded after Exit")
	}
}

func TestStatusErrorIs(t *testing.T) {
	if !errors.Is(&StatusError{Sw: api.SwNothingReceived}, api.ErrTransportEmpty) {
		t.Fatal("SwNothingReceived is not ErrTransportEmpty")
	}
	if errors.Is(&StatusError{Sw: api.SwUnknown}, api.ErrTransportEmpty) {
		t.Fatal("SwUnknown is ErrTransportEmpty")
	}
}
