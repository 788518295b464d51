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

package template

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

const transferTemplate = `
name: transfer
sections:
  - message: Transfer funds
  - literal: "amount:"
  - substitution: {title: Amount, length: 6}
`

const transferTx = `
name: transfer
sections:
  - message: Transfer funds
  - literal: "amount:"
  - substitution: {title: Amount, value: 10 XYZ}
`

func TestDocumentMatchesTemplate(t *testing.T) {
	build := func(y string) []Section {
		t.Helper()
		d, err := ParseDocument([]byte(y))
		if err != nil {
			t.Fatalf("ParseDocument: %v", err)
		}
		secs, err := d.Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		return secs
	}

	tmpl := build(transferTemplate)
	tx := build(transferTx)
	if Checksum(tmpl) != Checksum(tx) {
		t.Fatal("transaction does not match its template")
	}
	if diff := cmp.Diff(transfer(t, "10 XYZ"), tx); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}

func TestDocumentErrors(t *testing.T) {
	for _, test := range []struct {
		name string
		yaml string
	}{
		{name: "unknown field", yaml: "name: x\nsectons: []\n"},
		{name: "two kinds", yaml: "sections:\n  - {message: a, literal: b}\n"},
		{name: "no kind", yaml: "sections:\n  - {}\n"},
		{name: "length mismatch", yaml: "sections:\n  - substitution: {title: A, value: abc, length: 2}\n"},
		{name: "negative length", yaml: "sections:\n  - substitution: {title: A, length: -1}\n"},
	} {
		t.Run(test.name, func(t *testing.T) {
			d, err := ParseDocument([]byte(test.yaml))
			if err == nil {
				_, err = d.Build()
			}
			if err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	d, err := ParseDocument([]byte(transferTx))
	if err != nil {
		t.Fatalf("ParseDocument: %v", err)
	}
	b, err := d.Marshal()
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	got, err := ParseDocument(b)
	if err != nil {
		t.Fatalf("ParseDocument(Marshal()): %v", err)
	}
	if diff := cmp.Diff(d, got); diff != "" {
		t.Fatalf("Got diff: %s", diff)
	}
}
