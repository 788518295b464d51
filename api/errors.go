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

package api

import "errors"

// Protocol errors. Every one of these aborts the in-flight instruction and
// returns the device to Idle.
var (
	// ErrTransportEmpty is returned for an empty command where data is expected.
	ErrTransportEmpty = errors.New("nothing received")
	// ErrMalformed is returned for framing, length or discriminant violations.
	ErrMalformed = errors.New("malformed input")
	// ErrUntrustedTemplate is returned when the template checksum is not in the
	// allow-list or the allow-list is not the trusted one.
	ErrUntrustedTemplate = errors.New("untrusted template")
	// ErrUserRejected is returned when the user declines a confirmation prompt.
	ErrUserRejected = errors.New("rejected by user")
	// ErrUnknownInstruction is returned for unsupported instruction codes.
	ErrUnknownInstruction = errors.New("unknown instruction")
)

// StatusWordFor maps an error to the status word reported to the host.
func StatusWordFor(err error) uint16 {
	switch {
	case err == nil:
		return SwOK
	case errors.Is(err, ErrTransportEmpty):
		return SwNothingReceived
	default:
		return SwUnknown
	}
}
