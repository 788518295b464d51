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

package dispatch

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/status-im/keycard-go/apdu"
	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/app"
	"github.com/transparency-dev/armored-signer/internal/app/testonly"
	"github.com/transparency-dev/armored-signer/internal/chunk"
	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/state"
	"github.com/transparency-dev/armored-signer/internal/template"
)

const cla = 0xe0

func newDispatcher(t *testing.T, p *testonly.Prompter, cfg api.Configuration) *Dispatcher {
	t.Helper()
	env := &app.Env{
		Keys:     testonly.Deriver(),
		Prompter: p,
		Config:   &cfg,
	}
	return New(state.NewSlot(app.Computations(env)), hostio.New(&chunk.Store{}), &cfg, prometheus.NewRegistry())
}

// exchange sends one command APDU through Handle and decodes the reply.
func exchange(t *testing.T, d *Dispatcher, ins, p1, p2 byte, data []byte) *apdu.Response {
	t.Helper()
	raw, err := apdu.NewCommand(cla, ins, p1, p2, data).Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	r, err := apdu.ParseResponse(d.Handle(context.Background(), raw))
	if err != nil {
		t.Fatalf("ParseResponse: %v", err)
	}
	return r
}

func pathParam(t *testing.T, path []uint32) []byte {
	t.Helper()
	b, err := keys.EncodePath(path)
	if err != nil {
		t.Fatal(err)
	}
	return testonly.Param(t, b)
}

func TestGetAddress(t *testing.T) {
	d := newDispatcher(t, testonly.Accepting(), api.DefaultConfiguration())
	path := []uint32{44, 1}

	r := exchange(t, d, api.InsGetPubkey, 0, api.P2Data, pathParam(t, path))
	if r.Sw != api.SwOK {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwOK)
	}
	k, _ := testonly.Deriver().Derive(path)
	pub := k.Public()
	addr := keys.Address(pub)
	want := append(append([]byte{byte(len(pub))}, pub...), byte(len(addr)))
	want = append(want, addr...)
	if diff := cmp.Diff(want, r.Data); diff != "" {
		t.Fatalf("reply diff: %s", diff)
	}
	if d.Busy() {
		t.Fatal("busy after completion")
	}
	if got := testutil.ToFloat64(d.m.commands.WithLabelValues("GetPubkey", "9000")); got != 1 {
		t.Fatalf("commands_total{GetPubkey,9000} = %v", got)
	}
}

func TestStatusWords(t *testing.T) {
	for _, test := range []struct {
		desc   string
		cfg    api.Configuration
		ins    byte
		p2     byte
		data   []byte
		wantSw uint16
	}{
		{
			desc:   "empty",
			ins:    api.InsGetPubkey,
			wantSw: api.SwNothingReceived,
		}, {
			desc:   "unknown instruction",
			ins:    0x42,
			data:   []byte{0},
			wantSw: api.SwUnknown,
		}, {
			desc:   "diagnostics disabled",
			ins:    api.InsTestParsers,
			data:   []byte{0},
			wantSw: api.SwUnknown,
		}, {
			desc:   "diagnostics enabled",
			cfg:    api.Configuration{Diagnostics: true},
			ins:    api.InsTestParsers,
			data:   []byte{1, 7},
			wantSw: api.SwOK,
		}, {
			desc:   "resume with nothing in flight",
			ins:    api.InsSign,
			p2:     api.P2Resume,
			wantSw: api.SwUnknown,
		}, {
			desc:   "chunk with nothing stashed",
			ins:    api.InsSign,
			p2:     api.P2GetChunk,
			data:   make([]byte, 32),
			wantSw: api.SwUnknown,
		}, {
			desc:   "bad framing",
			ins:    api.InsSign,
			data:   []byte{5, 1},
			wantSw: api.SwUnknown,
		},
	} {
		t.Run(test.desc, func(t *testing.T) {
			d := newDispatcher(t, testonly.Accepting(), test.cfg)
			if r := exchange(t, d, test.ins, 0, test.p2, test.data); r.Sw != test.wantSw {
				t.Fatalf("Sw = %04x, want %04x", r.Sw, test.wantSw)
			}
		})
	}
}

func TestShortAPDU(t *testing.T) {
	d := newDispatcher(t, testonly.Accepting(), api.DefaultConfiguration())
	got := d.Handle(context.Background(), []byte{cla, api.InsSign})
	if diff := cmp.Diff([]byte{0x6d, 0x00}, got); diff != "" {
		t.Fatalf("reply diff: %s", diff)
	}
}

func TestPendingAndResume(t *testing.T) {
	d := newDispatcher(t, &testonly.Prompter{Default: true, Pending: 2}, api.DefaultConfiguration())

	for i := 0; i < 2; i++ {
		p2, data := byte(api.P2Resume), []byte(nil)
		if i == 0 {
			p2, data = api.P2Data, pathParam(t, nil)
		}
		if r := exchange(t, d, api.InsGetPubkey, 0, p2, data); r.Sw != api.SwAwaitingUser {
			t.Fatalf("exchange %d: Sw = %04x, want %04x", i, r.Sw, api.SwAwaitingUser)
		}
		if !d.Busy() {
			t.Fatalf("exchange %d: not busy while awaiting the user", i)
		}
	}
	r := exchange(t, d, api.InsGetPubkey, 0, api.P2Resume, nil)
	if r.Sw != api.SwOK || len(r.Data) == 0 {
		t.Fatalf("final resume: Sw %04x, %d bytes", r.Sw, len(r.Data))
	}
}

func TestSign(t *testing.T) {
	secs := testonly.Transfer(t, "3 XYZ")
	list := []template.Hash{template.Checksum(secs)}
	p := testonly.Accepting()
	cfg := api.DefaultConfiguration()
	env := &app.Env{
		Keys:     testonly.Deriver(),
		Prompter: p,
		Trusted:  template.MetaHash(list),
		Config:   &cfg,
	}
	d := New(state.NewSlot(app.Computations(env)), hostio.New(&chunk.Store{}), &cfg, nil)

	send := func(p1 byte, b []byte) *apdu.Response {
		t.Helper()
		r := exchange(t, d, api.InsSign, p1, api.P2Data, testonly.Param(t, b))
		if r.Sw != api.SwOK {
			t.Fatalf("Sw = %04x", r.Sw)
		}
		return r
	}
	for _, c := range testonly.Split(testonly.Concat(secs), 200) {
		send(api.P1More, c)
	}
	send(api.P1Finalize, nil)
	send(api.P1More, list[0][:])
	send(api.P1Finalize, nil)

	b, _ := keys.EncodePath(nil)
	r := send(0, b)

	k, _ := testonly.Deriver().Derive(nil)
	h := template.SignedHash(secs)
	if !ed25519.Verify(k.Public(), h[:], r.Data) {
		t.Fatal("signature does not verify")
	}
	if got := testutil.ToFloat64(d.m.signatures); got != 1 {
		t.Fatalf("signatures_total = %v, want 1", got)
	}
}

func TestErrorReturnsToIdle(t *testing.T) {
	d := newDispatcher(t, testonly.Accepting(), api.DefaultConfiguration())
	secs := testonly.Transfer(t, "1")

	exchange(t, d, api.InsSign, api.P1More, api.P2Data, testonly.Param(t, secs[0][:100]))
	if !d.Busy() {
		t.Fatal("not busy mid-section")
	}
	// Ending the body inside a Section.
	if r := exchange(t, d, api.InsSign, api.P1Finalize, api.P2Data, testonly.Param(t, nil)); r.Sw != api.SwUnknown {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwUnknown)
	}
	if d.Busy() {
		t.Fatal("busy after error")
	}
	if got := testutil.ToFloat64(d.m.resets.WithLabelValues("error")); got != 1 {
		t.Fatalf("resets{error} = %v, want 1", got)
	}
}

func TestErrorResetsCounted(t *testing.T) {
	d := newDispatcher(t, testonly.Accepting(), api.DefaultConfiguration())
	secs := testonly.Transfer(t, "1")
	resets := func() float64 { return testutil.ToFloat64(d.m.resets.WithLabelValues("error")) }

	// A computation failing on its first command.
	if r := exchange(t, d, api.InsGetPubkey, 0, api.P2Data, testonly.Param(t, []byte{keys.MaxPathLen + 1})); r.Sw != api.SwUnknown {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwUnknown)
	}
	if got := resets(); got != 1 {
		t.Fatalf("after bad path: resets{error} = %v, want 1", got)
	}

	// An unknown instruction arriving mid-session.
	exchange(t, d, api.InsSign, api.P1More, api.P2Data, testonly.Param(t, secs[0][:100]))
	if r := exchange(t, d, 0x55, 0, api.P2Data, nil); r.Sw != api.SwUnknown {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwUnknown)
	}
	if got := resets(); got != 2 {
		t.Fatalf("after unknown instruction: resets{error} = %v, want 2", got)
	}

	// Errors with nothing in flight are not resets.
	exchange(t, d, 0x55, 0, api.P2Data, nil)
	if got := resets(); got != 2 {
		t.Fatalf("idle error: resets{error} = %v, want 2", got)
	}
}

func TestReplaceAndCancel(t *testing.T) {
	d := newDispatcher(t, &testonly.Prompter{Default: true, Pending: 1}, api.DefaultConfiguration())
	secs := testonly.Transfer(t, "1")

	exchange(t, d, api.InsSign, api.P1More, api.P2Data, testonly.Param(t, secs[0][:100]))
	if r := exchange(t, d, api.InsGetPubkey, 0, api.P2Data, pathParam(t, nil)); r.Sw != api.SwAwaitingUser {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwAwaitingUser)
	}
	if got := testutil.ToFloat64(d.m.resets.WithLabelValues("replaced")); got != 1 {
		t.Fatalf("resets{replaced} = %v, want 1", got)
	}

	d.Cancel()
	if d.Busy() {
		t.Fatal("busy after Cancel")
	}
	if got := testutil.ToFloat64(d.m.resets.WithLabelValues("cancel")); got != 1 {
		t.Fatalf("resets{cancel} = %v, want 1", got)
	}
	// Nothing left to resume.
	if r := exchange(t, d, api.InsGetPubkey, 0, api.P2Resume, nil); r.Sw != api.SwUnknown {
		t.Fatalf("Sw = %04x, want %04x", r.Sw, api.SwUnknown)
	}
}

// bulk completes immediately with a reply too large for one APDU.
type bulk struct{ out []byte }

func (b *bulk) Resume(_ context.Context, io *hostio.IO) (bool, error) {
	return true, io.ResultFinal(b.out)
}

func (b *bulk) Reset() {}

func TestOversizedReply(t *testing.T) {
	out := make([]byte, 700)
	for i := range out {
		out[i] = byte(i * 7)
	}
	cfg := api.DefaultConfiguration()
	slot := state.NewSlot(map[state.Kind]state.Computation{state.GetAddress: &bulk{out: out}})
	d := New(slot, hostio.New(&chunk.Store{}), &cfg, nil)

	var got []byte
	r := exchange(t, d, api.InsGetPubkey, 0, api.P2Data, pathParam(t, nil))
	for r.Sw == api.SwMoreData {
		if len(r.Data) != hostio.MaxReplySize {
			t.Fatalf("partial reply of %d bytes", len(r.Data))
		}
		n := len(r.Data) - len(chunk.Handle{})
		got = append(got, r.Data[:n]...)
		r = exchange(t, d, api.InsGetPubkey, 0, api.P2GetChunk, r.Data[n:])
	}
	if r.Sw != api.SwOK {
		t.Fatalf("Sw = %04x", r.Sw)
	}
	got = append(got, r.Data...)
	if !bytes.Equal(got, out) {
		t.Fatal("reassembled reply differs")
	}
}
