// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !debug
// +build !debug

package main

import (
	"io"
	"log"
	_ "unsafe"

	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/usb"
)

// Release builds have no console. Page contents, addresses and runtime
// panics must not leave the device other than through the APDU interface.
//
// The board package enables UART2 before any init() runs, so runtime output
// is dropped at printk and the UART is switched off as early as possible.
const debug = false

func init() {
	imx6ul.UART2.Disable()
	log.SetOutput(io.Discard)
}

//go:linkname printk runtime.printk
func printk(c byte) {}

// configureUART adds no USB function in release builds.
func configureUART(_ *usb.Device) error {
	return nil
}
