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

package keys

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

var secret = bytes.Repeat([]byte{0x42}, 32)

func TestDeriveDeterministic(t *testing.T) {
	path := []uint32{44, 0, 1}

	k1, err := NewDeriver(secret, "serial").Derive(path)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	k2, err := NewDeriver(secret, "serial").Derive(path)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if !k1.Public().Equal(k2.Public()) {
		t.Fatal("same path derived different keys")
	}

	other, err := NewDeriver(secret, "serial").Derive([]uint32{44, 0, 2})
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if k1.Public().Equal(other.Public()) {
		t.Fatal("different paths derived the same key")
	}

	device, err := NewDeriver(secret, "other-serial").Derive(path)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	if k1.Public().Equal(device.Public()) {
		t.Fatal("different devices derived the same key")
	}
}

func TestSignAndWipe(t *testing.T) {
	k, err := NewDeriver(secret, "serial").Derive(nil)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	msg := []byte("hash")
	sig, err := k.Sign(msg)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !ed25519.Verify(k.Public(), msg, sig) {
		t.Fatal("signature does not verify")
	}

	k.Wipe()
	if !bytes.Equal(k.key, make([]byte, ed25519.PrivateKeySize)) {
		t.Fatal("key not zeroed")
	}
	if _, err := k.Sign(msg); err == nil {
		t.Fatal("Sign with wiped key succeeded")
	}

	var nilKey *PrivateKey
	nilKey.Wipe()
}

func TestDerivePathTooLong(t *testing.T) {
	if _, err := NewDeriver(secret, "serial").Derive(make([]uint32, MaxPathLen+1)); !errors.Is(err, ErrPathTooLong) {
		t.Fatalf("Got %v, want ErrPathTooLong", err)
	}
}

func TestPaths(t *testing.T) {
	for _, test := range []struct {
		in      string
		want    []uint32
		wantErr bool
	}{
		{in: "", want: nil},
		{in: "44", want: []uint32{44}},
		{in: "44/0/4294967295", want: []uint32{44, 0, 4294967295}},
		{in: "44/x", wantErr: true},
		{in: "4294967296", wantErr: true},
		{in: "1/2/3/4/5/6/7/8/9/10/11", wantErr: true},
	} {
		t.Run(test.in, func(t *testing.T) {
			got, err := ParsePath(test.in)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("ParsePath(%q) = %v, wantErr %t", test.in, err, test.wantErr)
			}
			if test.wantErr {
				return
			}
			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("Got diff: %s", diff)
			}
			if rt := FormatPath(got); rt != test.in {
				t.Fatalf("FormatPath(ParsePath(%q)) = %q", test.in, rt)
			}
		})
	}
}

func TestEncodePath(t *testing.T) {
	got, err := EncodePath([]uint32{44, 0x01020304})
	if err != nil {
		t.Fatalf("EncodePath: %v", err)
	}
	want := []byte{2, 44, 0, 0, 0, 4, 3, 2, 1}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestName(t *testing.T) {
	d := NewDeriver(secret, "serial")
	if a, b := d.Name(), NewDeriver(secret, "serial").Name(); a == "" || a != b {
		t.Fatalf("Name() not stable: %q vs %q", a, b)
	}
}

func TestAddress(t *testing.T) {
	if got, want := Address(ed25519.PublicKey{0xab, 0x01}), "ab01"; got != want {
		t.Fatalf("Address = %q, want %q", got, want)
	}
}
