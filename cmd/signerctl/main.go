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

// signerctl operates an Armored Signer attached over USB, or a simulator.
package main

import (
	"context"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/cheggaaa/pb/v3"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/client"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/template"
)

var (
	sim     = flag.String("sim", "", "Address of a signer simulator; a USB device is used if empty.")
	timeout = flag.Duration("timeout", 5*time.Minute, "How long to wait for the device, including user confirmations.")

	status  = flag.Bool("status", false, "Print the device status.")
	version = flag.Bool("version", false, "Print the firmware version.")

	pubkey = flag.String("pubkey", "", "Print the public key and address for this derivation path, e.g. 44/0/1.")

	sign              = flag.String("sign", "", "YAML template document to sign.")
	allowlist         = flag.String("allowlist", "", "Signed allow-list note to present with -sign.")
	allowlistVerifier = flag.String("allowlist_verifier", "", "File containing the note verifier for -allowlist.")
	path              = flag.String("path", "", "Derivation path of the signing key.")
	progress          = flag.Bool("progress", true, "Show progress while streaming to the device.")

	configure      = flag.Bool("configure", false, "Replace the device configuration with -confirm_address and -diagnostics.")
	confirmAddress = flag.Bool("confirm_address", true, "Show the signing address before signing.")
	diagnostics    = flag.Bool("diagnostics", false, "Enable the parser self test instruction.")

	press = flag.String("press", "", "Emulate a button press on a simulator or debug build: left, right or both.")
	exit  = flag.Bool("exit", false, "Stop the signer application.")
)

var buttons = map[string]api.Button{
	"left":  api.ButtonLeft,
	"right": api.ButtonRight,
	"both":  api.ButtonBoth,
}

func confirm(msg string) bool {
	var res string

	fmt.Printf("%s (y/n): ", msg)
	fmt.Scanln(&res)

	return res == "y"
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	if flag.NFlag() == 0 {
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	d := deviceOrDie()

	var err error
	switch {
	case *status:
		var s *api.Status
		if s, err = d.Status(); err == nil {
			fmt.Println(s.Print())
		}
	case *version:
		var v string
		if v, err = d.VersionString(ctx); err == nil {
			fmt.Println(v)
		}
	case len(*pubkey) > 0:
		err = showPublicKey(ctx, d, *pubkey)
	case len(*sign) > 0:
		err = signTemplate(ctx, d)
	case *configure:
		err = d.Configure(api.Configuration{
			ConfirmAddress: *confirmAddress,
			Diagnostics:    *diagnostics,
		})
	case len(*press) > 0:
		b, ok := buttons[strings.ToLower(*press)]
		if !ok {
			klog.Exitf("Unknown button %q", *press)
		}
		err = d.Press(b)
	case *exit:
		if confirm("Stop the signer application?") {
			err = d.Exit(ctx)
		}
	}

	if err != nil {
		klog.Exitf("fatal error, %v", err)
	}
}

func deviceOrDie() *client.Device {
	if len(*sim) > 0 {
		l, err := client.Dial(*sim)
		if err != nil {
			klog.Exitf("Failed to connect to simulator at %q: %v", *sim, err)
		}
		return client.NewDevice(l)
	}

	dev, err := detectU2F()
	if err != nil {
		klog.Exitf("Failed to enumerate USB devices: %v", err)
	}
	if dev == nil {
		klog.Exit("No signer found")
	}
	return client.NewDevice(dev)
}

func pathOrDie(s string) []uint32 {
	p, err := keys.ParsePath(s)
	if err != nil {
		klog.Exitf("Invalid derivation path %q: %v", s, err)
	}
	return p
}

func showPublicKey(ctx context.Context, d *client.Device, p string) error {
	fmt.Println("Confirm on the device...")
	pub, addr, err := d.PublicKey(ctx, pathOrDie(p))
	if err != nil {
		return err
	}
	fmt.Printf("Public key: %s\nAddress:    %s\n", base64.StdEncoding.EncodeToString(pub), addr)
	return nil
}

func signTemplate(ctx context.Context, d *client.Device) error {
	if len(*allowlist) == 0 || len(*allowlistVerifier) == 0 {
		return errors.New("-sign requires -allowlist and -allowlist_verifier")
	}

	secs := sectionsOrDie(*sign)
	list := allowlistOrDie(*allowlist, *allowlistVerifier)
	k := pathOrDie(*path)

	checksum := template.Checksum(secs)
	klog.V(1).Infof("Template checksum %x", checksum)

	if *progress {
		total := len(secs)*template.SectionSize + len(list)*template.HashSize + 1 + 4*len(k)
		bar := pb.Full.Start64(int64(total))
		bar.Set(pb.Bytes, true)
		d.Progress = func(n int) { bar.Add(n) }
		defer bar.Finish()
	}

	sig, err := d.Sign(ctx, secs, list, k)
	if err != nil {
		return err
	}

	h := template.SignedHash(secs)
	fmt.Printf("Signed hash: %s\nSignature:   %s\n",
		base64.RawURLEncoding.EncodeToString(h[:]),
		base64.StdEncoding.EncodeToString(sig))
	return nil
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

func allowlistOrDie(p, verifierFile string) []template.Hash {
	vs, err := os.ReadFile(verifierFile)
	if err != nil {
		klog.Exitf("Failed to read allow-list verifier %q: %v", verifierFile, err)
	}
	v, err := note.NewVerifier(strings.TrimSpace(string(vs)))
	if err != nil {
		klog.Exitf("Invalid note verifier string %q: %v", vs, err)
	}
	msg, err := os.ReadFile(p)
	if err != nil {
		klog.Exitf("Failed to read allow-list %q: %v", p, err)
	}
	list, err := template.OpenAllowlist(msg, v)
	if err != nil {
		klog.Exitf("Invalid allow-list %q: %v", p, err)
	}
	return list
}
