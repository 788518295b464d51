// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

//go:build !bee
// +build !bee

package main

import (
	_ "unsafe"

	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

const (
	// Signer
	signerStart = 0x80000000
	signerSize  = 0x1e000000 // 480MB

	// Signer DMA
	signerDMAStart = 0x9e000000
	signerDMASize  = 0x02000000 // 32MB
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = signerStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = signerSize

func init() {
	dma.Init(signerDMAStart, signerDMASize)

	// Key derivation runs on internal RAM so that derived keys never reach
	// external DDR.
	deriveKeyMemory, _ := dma.NewRegion(imx6ul.OCRAM_START, imx6ul.OCRAM_SIZE, false)

	switch {
	case imx6ul.CAAM != nil:
		imx6ul.CAAM.DeriveKeyMemory = deriveKeyMemory
	case imx6ul.DCP != nil:
		imx6ul.DCP.DeriveKeyMemory = deriveKeyMemory
	}
}
