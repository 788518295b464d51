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

//go:build tamper
// +build tamper

package main

import (
	"log"
	"runtime"

	"github.com/usbarmory/tamago/soc/nxp/caam"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
	"github.com/usbarmory/tamago/soc/nxp/snvs"
)

// Tamper builds lose the OTPMK, and with it every signing key, on any clock,
// temperature or voltage violation, and have the CAAM watch the code of the
// running signer for modification.
func init() {
	if imx6ul.Native && imx6ul.SNVS.Available() {
		imx6ul.SNVS.SetPolicy(snvs.SecurityPolicy{
			Clock:             true,
			Temperature:       true,
			Voltage:           true,
			SecurityViolation: true,
			HardFail:          true,
		})
		log.Printf("SIGNER tamper detection enabled")
	}

	if imx6ul.CAAM == nil {
		return
	}

	textStart, textEnd := runtime.TextRegion()
	blocks := []caam.MemoryBlock{{
		Address: textStart,
		Length:  textEnd - textStart,
	}}

	if err := imx6ul.CAAM.EnableRTIC(blocks); err != nil {
		log.Printf("SIGNER could not enable integrity monitor, %v", err)
	}
}
