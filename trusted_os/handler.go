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

	"github.com/usbarmory/tamago/arm"
	"github.com/usbarmory/tamago/soc/nxp/imx6ul"
)

var irqHandlers = make(map[int]func())

func isr() {
	irq := imx6ul.GIC.GetInterrupt(true)

	if handle, ok := irqHandlers[irq]; ok {
		handle()
		return
	}

	log.Printf("SIGNER unexpected IRQ %d", irq)
}

// serviceInterrupts dispatches IRQs to their handlers and never returns.
func serviceInterrupts() {
	arm.ServiceInterrupts(isr)
}
