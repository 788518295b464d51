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

// signersim runs the signer application on the host, serving the vendor
// command set over TCP.
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/mod/sumdb/note"
	"k8s.io/klog/v2"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/client"
	"github.com/transparency-dev/armored-signer/internal/device"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/template"
)

var (
	listen      = flag.String("listen", "localhost:9999", "Address to serve the vendor command set on.")
	metricsAddr = flag.String("metrics", "", "If set, address to serve Prometheus metrics on.")

	seed              = flag.String("seed", "", "Hex encoded root secret.")
	serial            = flag.String("serial", "SIMULATOR", "Serial number diversifying derived keys.")
	version           = flag.String("version", "0.0.0-sim", "Firmware version to report.")
	trusted           = flag.String("trusted", "", "Hex encoded meta-hash of the approved templates.")
	allowlist         = flag.String("allowlist", "", "Signed allow-list note; its meta-hash is trusted. Overrides -trusted.")
	allowlistVerifier = flag.String("allowlist_verifier", "", "File containing the note verifier for -allowlist.")

	autoAccept     = flag.Bool("auto_accept", false, "Approve every confirmation without button presses.")
	confirmAddress = flag.Bool("confirm_address", true, "Show the signing address before signing.")
	diagnostics    = flag.Bool("diagnostics", false, "Enable the parser self test instruction.")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())

	cfg := device.Config{
		Secret:   secretOrDie(),
		UniqueID: *serial,
		Trusted:  trustedOrDie(),
		Settings: api.Configuration{
			ConfirmAddress: *confirmAddress,
			Diagnostics:    *diagnostics,
		},
		Version:    *version,
		Registerer: reg,
	}
	if *autoAccept {
		cfg.Prompter = prompt.AutoAccept{}
	}

	d, err := device.New(cfg)
	if err != nil {
		klog.Exitf("Failed to create signer: %v", err)
	}
	klog.Infof("Signer %q version %s, trusting templates %x", d.Name(), d.Version(), cfg.Trusted)

	tr := device.NewChanTransport()
	ctl := &device.Control{Device: d, Transport: tr, Trusted: cfg.Trusted, HostButtons: true}

	if len(*metricsAddr) > 0 {
		go serveMetrics(*metricsAddr, reg)
	}

	l, err := net.Listen("tcp", *listen)
	if err != nil {
		klog.Exitf("Failed to listen on %q: %v", *listen, err)
	}
	klog.Infof("Serving on %v", l.Addr())
	go acceptLoop(l, ctl)

	if err := d.Run(ctx, tr); err != nil && !errors.Is(err, context.Canceled) {
		klog.Errorf("Signer stopped: %v", err)
	}
	l.Close()
	klog.Info("Signer application exited")
}

func acceptLoop(l net.Listener, ctl *device.Control) {
	for {
		conn, err := l.Accept()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				klog.Errorf("Accept: %v", err)
			}
			return
		}
		klog.V(1).Infof("Connection from %v", conn.RemoteAddr())
		go func() {
			if err := client.ServeConn(conn, ctl); err != nil {
				klog.Warningf("Connection from %v: %v", conn.RemoteAddr(), err)
			}
		}()
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	klog.Infof("Serving metrics on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		klog.Errorf("Metrics server: %v", err)
	}
}

func secretOrDie() []byte {
	if len(*seed) == 0 {
		klog.Exit("-seed is required")
	}
	b, err := hex.DecodeString(*seed)
	if err != nil {
		klog.Exitf("Invalid -seed: %v", err)
	}
	return b
}

func trustedOrDie() template.Hash {
	if len(*allowlist) > 0 {
		vs, err := os.ReadFile(*allowlistVerifier)
		if err != nil {
			klog.Exitf("Failed to read allow-list verifier %q: %v", *allowlistVerifier, err)
		}
		v, err := note.NewVerifier(strings.TrimSpace(string(vs)))
		if err != nil {
			klog.Exitf("Invalid note verifier string %q: %v", vs, err)
		}
		msg, err := os.ReadFile(*allowlist)
		if err != nil {
			klog.Exitf("Failed to read allow-list %q: %v", *allowlist, err)
		}
		list, err := template.OpenAllowlist(msg, v)
		if err != nil {
			klog.Exitf("Invalid allow-list %q: %v", *allowlist, err)
		}
		return template.MetaHash(list)
	}

	h, err := template.ParseHash(*trusted)
	if err != nil {
		klog.Exitf("Invalid -trusted: %v", err)
	}
	return h
}
