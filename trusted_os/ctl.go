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
	"log"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/usb"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/device"
)

// controlInterface serves the U2FHID vendor commands over USB.
type controlInterface struct {
	*device.Control
}

func platformStatus(s *api.Status) {
	s.Serial = serial()
	s.HAB = imx6ul.SNVS.Available()
	s.Revision = Revision
	s.Build = Build
}

func (ctl *controlInterface) HandleMessage(_ []byte) (_ []byte) {
	return
}

// APDU carries one command APDU, reflecting the busy state on the white LED.
func (ctl *controlInterface) APDU(req []byte) (res []byte) {
	res = ctl.Control.APDU(req)
	usbarmory.LED("white", ctl.Device.Busy())
	return
}

func (ctl *controlInterface) Start() {
	dev := &usb.Device{}

	if err := configureDevice(dev, serial()); err != nil {
		log.Fatal(err)
	}

	if err := configureHID(dev, ctl); err != nil {
		log.Fatal(err)
	}

	if err := configureUART(dev); err != nil {
		log.Fatal(err)
	}

	if Control == nil {
		return
	}

	Control.Device = dev
	Control.DeviceMode()

	Control.EnableInterrupt(usb.IRQ_URI) // reset
	Control.EnableInterrupt(usb.IRQ_PCI) // port change detect
	Control.EnableInterrupt(usb.IRQ_UI)  // transfer completion

	irqHandlers[Control.IRQ] = func() {
		Control.ServiceInterrupts()
	}

	imx6ul.GIC.EnableInterrupt(Control.IRQ, true)
}
