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

package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"runtime"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/device"
	"github.com/transparency-dev/armored-signer/internal/template"
)

// initialized at compile time with -ldflags -X
var (
	Build    string
	Revision string
	Version  string
	// TemplatesChainHash is the hex encoded meta-hash of the approved
	// template allow-list.
	TemplatesChainHash string
)

var Control = usbarmory.USB1

func init() {
	log.SetFlags(log.Ltime)
	log.SetOutput(&lineWriter{w: os.Stdout})

	if len(TemplatesChainHash) == 0 {
		log.Fatal("SIGNER template allow-list hash is missing")
	}

	if imx6ul.Native {
		imx6ul.SetARMFreq(imx6ul.Freq792)
		imx6ul.DCP.Init()
	}

	imx6ul.GIC.Init(true, false)

	log.Printf("%s/%s (%s) • Armored Signer • %s %s",
		runtime.GOOS, runtime.GOARCH, runtime.Version(),
		Revision, Build)
}

func serial() string {
	return fmt.Sprintf("%X", imx6ul.UniqueID())
}

func main() {
	usbarmory.LED("blue", false)
	usbarmory.LED("white", false)

	trusted, err := template.ParseHash(TemplatesChainHash)
	if err != nil {
		log.Fatalf("SIGNER invalid template allow-list hash, %v", err)
	}

	secret, err := rootSecret()
	if err != nil {
		log.Fatalf("SIGNER could not derive root secret, %v", err)
	}

	dev, err := device.New(device.Config{
		Secret:   secret,
		UniqueID: serial(),
		Trusted:  trusted,
		Settings: api.DefaultConfiguration(),
		Version:  Version,
		Display:  consoleDisplay{},
	})
	clear(secret)
	if err != nil {
		log.Fatalf("SIGNER could not initialize, %v", err)
	}

	transport := device.NewChanTransport()

	// Only debug builds take button events from the host.
	ctl := &controlInterface{
		Control: &device.Control{
			Device:      dev,
			Transport:   transport,
			Trusted:     trusted,
			Platform:    platformStatus,
			HostButtons: debug,
		},
	}

	go func() {
		if err := dev.Run(context.Background(), transport); err != nil {
			log.Printf("SIGNER device loop error, %v", err)
		}
		log.Printf("SIGNER exiting, rebooting")
		usbarmory.Reset()
	}()

	// start USB control interface
	ctl.Start()
	usbarmory.LED("blue", true)

	// never returns
	serviceInterrupts()
}

// consoleDisplay stands in for a screen on boards without one.
type consoleDisplay struct{}

func (consoleDisplay) Draw(title, text string) {
	log.Printf("SIGNER screen: %s | %s", title, text)
}
