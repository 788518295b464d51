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

// Package client talks to an Armored Signer from the host.
package client

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"time"

	"github.com/coreos/go-semver/semver"
	"github.com/status-im/keycard-go/apdu"
	"github.com/status-im/keycard-go/types"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
	"github.com/transparency-dev/armored-signer/internal/chunk"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/template"
	"k8s.io/klog/v2"
)

const (
	// CLA is the class byte of every command.
	CLA = 0xe0

	// maxChunk is the largest argument chunk fitting a short APDU once
	// framed as a parameter.
	maxChunk = 254

	defaultPollInterval = 250 * time.Millisecond
)

// StatusError is returned when the device answers with a failure status
// word.
type StatusError struct {
	Ins byte
	Sw  uint16
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: device returned status %04x", api.InsName(e.Ins), e.Sw)
}

// Is maps status words back onto the api error taxonomy where they are
// unambiguous.
func (e *StatusError) Is(target error) bool {
	return e.Sw == api.SwNothingReceived && target == api.ErrTransportEmpty
}

// Client issues instructions over an APDU channel.
type Client struct {
	ch types.Channel

	// PollInterval is how long to wait between polls while the device
	// awaits the user.
	PollInterval time.Duration
	// Progress, if set, is called with the number of argument bytes
	// delivered by each command.
	Progress func(n int)
}

// New returns a Client sending commands over ch.
func New(ch types.Channel) *Client {
	return &Client{ch: ch, PollInterval: defaultPollInterval}
}

func (c *Client) send(ins, p1, p2 byte, data []byte) (*apdu.Response, error) {
	r, err := c.ch.Send(apdu.NewCommand(CLA, ins, p1, p2, data))
	if err != nil {
		return nil, fmt.Errorf("%s: %v", api.InsName(ins), err)
	}
	return r, nil
}

// exchange sends one command and follows the reply protocol until the
// device completes it: polling while the user decides and fetching every
// piece of an oversized reply.
func (c *Client) exchange(ctx context.Context, ins, p1 byte, data []byte) ([]byte, error) {
	r, err := c.send(ins, p1, api.P2Data, data)
	var out []byte
	for {
		if err != nil {
			return nil, err
		}
		switch r.Sw {
		case api.SwOK:
			return append(out, r.Data...), nil
		case api.SwAwaitingUser:
			klog.V(1).Infof("%s awaiting confirmation on the device", api.InsName(ins))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.PollInterval):
			}
			r, err = c.send(ins, p1, api.P2Resume, nil)
		case api.SwMoreData:
			n := len(r.Data) - len(chunk.Handle{})
			if n < 0 {
				return nil, fmt.Errorf("%s: partial reply of %d bytes has no handle", api.InsName(ins), len(r.Data))
			}
			out = append(out, r.Data[:n]...)
			r, err = c.send(ins, 0, api.P2GetChunk, r.Data[n:])
		default:
			return nil, &StatusError{Ins: ins, Sw: r.Sw}
		}
	}
}

// param sends b as the single argument of a command.
func (c *Client) param(ctx context.Context, ins, p1 byte, b []byte) ([]byte, error) {
	f, err := bytestream.Frame(b)
	if err != nil {
		return nil, err
	}
	r, err := c.exchange(ctx, ins, p1, f)
	if err == nil && c.Progress != nil {
		c.Progress(len(b))
	}
	return r, err
}

// stream delivers b in as many commands as needed and then ends the phase.
func (c *Client) stream(ctx context.Context, ins byte, b []byte) error {
	for len(b) > 0 {
		n := min(len(b), maxChunk)
		if _, err := c.param(ctx, ins, api.P1More, b[:n]); err != nil {
			return err
		}
		b = b[n:]
	}
	_, err := c.param(ctx, ins, api.P1Finalize, nil)
	return err
}

// Version returns the firmware version and application name.
func (c *Client) Version(ctx context.Context) (semver.Version, string, error) {
	r, err := c.exchange(ctx, api.InsGetVersion, 0, nil)
	if err != nil {
		return semver.Version{}, "", err
	}
	if len(r) < 3 {
		return semver.Version{}, "", fmt.Errorf("short version reply %x", r)
	}
	v := semver.Version{Major: int64(r[0]), Minor: int64(r[1]), Patch: int64(r[2])}
	return v, string(r[3:]), nil
}

// VersionString returns the human readable firmware version.
func (c *Client) VersionString(ctx context.Context) (string, error) {
	r, err := c.exchange(ctx, api.InsGetVersionStr, 0, nil)
	return string(r), err
}

// PublicKey returns the public key and address for path, once the user has
// agreed to reveal them.
func (c *Client) PublicKey(ctx context.Context, path []uint32) (ed25519.PublicKey, string, error) {
	b, err := keys.EncodePath(path)
	if err != nil {
		return nil, "", err
	}
	r, err := c.param(ctx, api.InsGetPubkey, 0, b)
	if err != nil {
		return nil, "", err
	}

	s := bytestream.New(r)
	field := func() ([]byte, error) {
		l := s.Take(1)
		if len(l) != 1 {
			return nil, errors.New("truncated reply")
		}
		v := s.Take(int(l[0]))
		if len(v) != int(l[0]) {
			return nil, errors.New("truncated reply")
		}
		return v, nil
	}
	pub, err := field()
	if err != nil {
		return nil, "", err
	}
	addr, err := field()
	if err != nil {
		return nil, "", err
	}
	if len(pub) != ed25519.PublicKeySize || !s.Empty() {
		return nil, "", fmt.Errorf("malformed public key reply %x", r)
	}
	if want := keys.Address(pub); string(addr) != want {
		return nil, "", fmt.Errorf("address %q does not match public key", addr)
	}
	return bytes.Clone(pub), string(addr), nil
}

// Sign has the device verify the template formed by secs against the
// allow-list and sign it with the key for path.
func (c *Client) Sign(ctx context.Context, secs []template.Section, list []template.Hash, path []uint32) ([]byte, error) {
	body := make([]byte, 0, len(secs)*template.SectionSize)
	for i := range secs {
		body = append(body, secs[i][:]...)
	}
	if err := c.stream(ctx, api.InsSign, body); err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}

	candidates := make([]byte, 0, len(list)*template.HashSize)
	for _, h := range list {
		candidates = append(candidates, h[:]...)
	}
	if err := c.stream(ctx, api.InsSign, candidates); err != nil {
		return nil, fmt.Errorf("allow-list: %w", err)
	}

	b, err := keys.EncodePath(path)
	if err != nil {
		return nil, err
	}
	sig, err := c.param(ctx, api.InsSign, api.P1Finalize, b)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	if len(sig) != ed25519.SignatureSize {
		return nil, fmt.Errorf("signature of %d bytes", len(sig))
	}
	return sig, nil
}

// Diagnostic streams in to the parser self test.
func (c *Client) Diagnostic(ctx context.Context, in []byte) error {
	for len(in) > 0 {
		n := min(len(in), maxChunk)
		if _, err := c.param(ctx, api.InsTestParsers, 0, in[:n]); err != nil {
			return err
		}
		in = in[n:]
	}
	return nil
}

// Exit stops the signer application.
func (c *Client) Exit(ctx context.Context) error {
	_, err := c.exchange(ctx, api.InsExit, 0, nil)
	return err
}
