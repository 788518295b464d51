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

import (
	"encoding/binary"
	"fmt"
)

const commandHeaderLen = 4

// Command is a decoded command APDU.
type Command struct {
	CLA  byte
	Ins  byte
	P1   byte
	P2   byte
	Data []byte
}

// ParseCommand decodes a short command APDU: CLA INS P1 P2 [Lc data] [Le].
// Data aliases raw.
func ParseCommand(raw []byte) (Command, error) {
	if len(raw) < commandHeaderLen {
		return Command{}, fmt.Errorf("%w: short APDU header (%d bytes)", ErrMalformed, len(raw))
	}

	c := Command{
		CLA: raw[0],
		Ins: raw[1],
		P1:  raw[2],
		P2:  raw[3],
	}

	body := raw[commandHeaderLen:]

	switch {
	case len(body) == 0:
		return c, nil
	case len(body) == 1:
		// Le only
		return c, nil
	}

	lc := int(body[0])
	body = body[1:]

	// an optional trailing Le byte is tolerated
	if len(body) != lc && len(body) != lc+1 {
		return Command{}, fmt.Errorf("%w: Lc %d does not match %d data bytes", ErrMalformed, lc, len(body))
	}

	c.Data = body[:lc]

	return c, nil
}

// EncodeReply appends the status word to a reply payload.
func EncodeReply(data []byte, sw uint16) []byte {
	res := make([]byte, len(data)+2)
	copy(res, data)
	binary.BigEndian.PutUint16(res[len(data):], sw)
	return res
}
