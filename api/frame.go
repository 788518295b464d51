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
	"errors"
	"fmt"
	"io"
)

// frameHeaderLen is cmd:u8 || len:u32 big endian.
const frameHeaderLen = 5

var (
	ErrShortFrame    = errors.New("frame: short header")
	ErrFrameTooLarge = errors.New("frame: payload too large")
)

// Frame carries one U2FHID vendor command, or its response, over a stream
// connection to a simulated device.
type Frame struct {
	Cmd     byte
	Payload []byte
}

// ReadFrame reads one frame from r.
func ReadFrame(r io.Reader) (Frame, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return Frame{}, ErrShortFrame
		}
		return Frame{}, err
	}

	n := binary.BigEndian.Uint32(hdr[1:])
	if n > MaxMessageSize {
		return Frame{}, fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, n)
	}

	f := Frame{Cmd: hdr[0], Payload: make([]byte, n)}
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return Frame{}, err
	}

	return f, nil
}

// WriteFrame writes f to w.
func WriteFrame(w io.Writer, f Frame) error {
	if len(f.Payload) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrFrameTooLarge, len(f.Payload))
	}

	buf := make([]byte, frameHeaderLen, frameHeaderLen+len(f.Payload))
	buf[0] = f.Cmd
	binary.BigEndian.PutUint32(buf[1:], uint32(len(f.Payload)))

	_, err := w.Write(append(buf, f.Payload...))
	return err
}
