// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build debug
// +build debug

package main

import (
	_ "unsafe"

	usbarmory "github.com/usbarmory/tamago/board/usbarmory/mk2"
	"github.com/usbarmory/tamago/soc/nxp/usb"

	"github.com/usbarmory/imx-usbserial"
)

// Debug builds mirror all runtime output to UART2 and to a CDC ACM serial
// function next to the APDU interface, and emulated targets derive a dummy
// root secret.
const debug = true

var console usbserial.UART

//go:linkname printk runtime.printk
func printk(c byte) {
	usbarmory.UART2.Tx(c)
	console.WriteByte(c)
}

func configureUART(device *usb.Device) error {
	console.Device = device
	return console.Init()
}
