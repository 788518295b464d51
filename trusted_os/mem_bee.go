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

//go:build bee
// +build bee

package main

import (
	_ "unsafe"

	"github.com/usbarmory/tamago/dma"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

// The following memory regions are within an alias of external DDR, required
// when memory encryption is enforced by the i.MX6UL Bus Encryption Engine
// (BEE).
const (
	// The signer RAM cannot be used as reserved area for arm.Init() as the
	// L1/L2 page tables cannot be placed in BEE aliased memory due to its
	// caching requirements, we therefore override vecTableStart with the
	// alias physical pointer.
	physicalStart = 0x80000000 // imx6ul.MMDC_BASE

	// Signer DMA
	//
	// BEE aliased regions must be accessed either through cache or 16 byte
	// accesses, this makes it impractical for peripheral driver DMA use
	// and we must therefore keep DMA on a non-aliased region.
	signerDMAStart = 0x8e000000
	signerDMASize  = 0x02000000 // 32MB

	// Signer
	signerStart = 0x10000000 // bee.AliasRegion0
	signerSize  = 0x0e000000 // 224MB
)

//go:linkname ramStart runtime.ramStart
var ramStart uint32 = signerStart

//go:linkname ramSize runtime.ramSize
var ramSize uint32 = signerSize

//go:linkname vecTableStart github.com/usbarmory/tamago/arm.vecTableStart
var vecTableStart uint32 = physicalStart

func init() {
	dma.Init(signerDMAStart, signerDMASize)

	deriveKeyMemory, _ := dma.NewRegion(imx6ul.OCRAM_START, imx6ul.OCRAM_SIZE, false)

	switch {
	case imx6ul.CAAM != nil:
		imx6ul.CAAM.DeriveKeyMemory = deriveKeyMemory
	case imx6ul.DCP != nil:
		imx6ul.DCP.DeriveKeyMemory = deriveKeyMemory
	}
}
