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

//go:build !tamago
// +build !tamago

// templatehash computes template checksums and builds signed template
// allow-lists.
package main

import (
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strings"

	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-signer/internal/template"
)

var (
	templates = flag.String("templates", "", "Comma separated list of YAML template documents.")
	signerKey = flag.String("signer_key", "", "File containing a note signer key; if set the allow-list is signed.")
	output    = flag.String("output", "", "File to write the signed allow-list to, stdout if empty.")

	generateKey = flag.String("generate_key", "", "Generate a note key pair with this name, writing <name>.sec and <name>.pub.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if len(*generateKey) > 0 {
		generateKeyOrDie(*generateKey)
		return
	}

	if len(*templates) == 0 {
		klog.Exit("-templates is required")
	}

	var list []template.Hash
	for _, p := range strings.Split(*templates, ",") {
		c := template.Checksum(sectionsOrDie(p))
		fmt.Fprintf(os.Stderr, "%s: %s\n", p, hex.EncodeToString(c[:]))
		list = append(list, c)
	}
	meta := template.MetaHash(list)
	fmt.Fprintf(os.Stderr, "meta-hash: %s\n", hex.EncodeToString(meta[:]))

	if len(*signerKey) == 0 {
		return
	}

	msg, err := template.SignAllowlist(list, signerOrDie(*signerKey))
	if err != nil {
		klog.Exitf("Failed to sign allow-list: %v", err)
	}
	if len(*output) == 0 {
		os.Stdout.Write(msg)
		return
	}
	if err := os.WriteFile(*output, msg, 0644); err != nil {
		klog.Exitf("Failed to write allow-list to %q: %v", *output, err)
	}
}

func sectionsOrDie(p string) []template.Section {
	b, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read template %q: %v", p, err)
	}
	doc, err := template.ParseDocument(b)
	if err != nil {
		klog.Exitf("Invalid template %q: %v", p, err)
	}
	secs, err := doc.Build()
	if err != nil {
		klog.Exitf("Failed to build template %q: %v", p, err)
	}
	return secs
}

func signerOrDie(p string) note.Signer {
	k, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read signer key %q: %v", p, err)
	}
	s, err := note.NewSigner(strings.TrimSpace(string(k)))
	if err != nil {
		klog.Exitf("Invalid note signer key in %q: %v", p, err)
	}
	return s
}

func generateKeyOrDie(name string) {
	skey, vkey, err := note.GenerateKey(rand.Reader, name)
	if err != nil {
		klog.Exitf("Failed to generate key: %v", err)
	}
	if err := os.WriteFile(name+".sec", []byte(skey+"\n"), 0600); err != nil {
		klog.Exitf("Failed to write signer key: %v", err)
	}
	if err := os.WriteFile(name+".pub", []byte(vkey+"\n"), 0644); err != nil {
		klog.Exitf("Failed to write verifier key: %v", err)
	}
	fmt.Println(vkey)
}
