// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

// Package api defines the wire interface between a host and the Armored
// Signer: APDU instructions, status words, U2FHID vendor commands and the
// device status and configuration messages.
package api

import (
	"bytes"
	"fmt"

	"github.com/gsora/fidati/u2fhid"
)

const (
	// http://pid.codes/1209/2702/
	VendorID  = 0x1209
	ProductID = 0x2702

	HIDUsagePage = 0xff00

	// Maximum Message size according to U2F HID standard (see formula in
	// [FIDO U2F // HID Protocol Specification, 2.4]).
	MaxMessageSize = 7609
)

// U2FHID vendor specific commands
const (
	// Status
	U2FHID_ARMORY_INF = iota + u2fhid.VendorCommandFirst
	// Signer configuration
	U2FHID_ARMORY_CFG
	// APDU exchange
	U2FHID_ARMORY_APDU
	// Physical button emulation
	U2FHID_ARMORY_BTN
)

// Instruction codes.
const (
	InsGetVersion    = 0x00
	InsGetPubkey     = 0x02
	InsSign          = 0x03
	InsTestParsers   = 0x10
	InsGetVersionStr = 0xfe
	InsExit          = 0xff
)

// P1 values for InsSign.
const (
	P1More     = 0x00
	P1Finalize = 0x01
)

// P2 values, common to all stateful instructions.
const (
	P2Data     = 0x00
	P2Resume   = 0x01
	P2GetChunk = 0x02
)

// Status words.
const (
	SwOK              = 0x9000
	SwAwaitingUser    = 0x9100
	SwMoreData        = 0x6100
	SwNothingReceived = 0x6982
	SwUnknown         = 0x6d00
)

// Button identifies a physical button event.
type Button byte

const (
	ButtonLeft Button = iota + 1
	ButtonRight
	ButtonBoth
)

// InsName returns a human readable name for an instruction code.
func InsName(ins byte) string {
	switch ins {
	case InsGetVersion:
		return "GetVersion"
	case InsGetPubkey:
		return "GetPubkey"
	case InsSign:
		return "Sign"
	case InsTestParsers:
		return "TestParsers"
	case InsGetVersionStr:
		return "GetVersionStr"
	case InsExit:
		return "Exit"
	}
	return fmt.Sprintf("Unknown(%#02x)", ins)
}

// Print returns the signer status in textual format.
func (p *Status) Print() string {
	var status bytes.Buffer

	status.WriteString("------------------------------------------------------- Armored Signer ----\n")
	status.WriteString(fmt.Sprintf("Serial number ..........: %s\n", p.Serial))
	status.WriteString(fmt.Sprintf("Name ...................: %s\n", p.Name))
	status.WriteString(fmt.Sprintf("Secure Boot ............: %v\n", p.HAB))
	status.WriteString(fmt.Sprintf("Revision ...............: %s\n", p.Revision))
	status.WriteString(fmt.Sprintf("Build ..................: %s\n", p.Build))
	status.WriteString(fmt.Sprintf("Version ................: %s\n", p.Version))
	status.WriteString(fmt.Sprintf("Runtime ................: %s\n", p.Runtime))
	status.WriteString(fmt.Sprintf("Templates ..............: %x\n", p.TemplatesChainHash))
	status.WriteString(fmt.Sprintf("Busy ...................: %v", p.Busy))

	return status.String()
}
