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
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Status represents the signer status returned by the U2FHID_ARMORY_INF
// vendor command.
//
// It is encoded with the protobuf wire format:
//
//	message Status {
//	  string Serial = 1;
//	  string Name = 2;
//	  bool HAB = 3;
//	  string Revision = 4;
//	  string Build = 5;
//	  string Version = 6;
//	  string Runtime = 7;
//	  bytes TemplatesChainHash = 8;
//	  bool Busy = 9;
//	}
type Status struct {
	Serial             string
	Name               string
	HAB                bool
	Revision           string
	Build              string
	Version            string
	Runtime            string
	TemplatesChainHash []byte
	Busy               bool
}

// Bytes serializes a Status message.
func (p *Status) Bytes() (buf []byte) {
	buf = appendString(buf, 1, p.Serial)
	buf = appendString(buf, 2, p.Name)
	buf = appendBool(buf, 3, p.HAB)
	buf = appendString(buf, 4, p.Revision)
	buf = appendString(buf, 5, p.Build)
	buf = appendString(buf, 6, p.Version)
	buf = appendString(buf, 7, p.Runtime)
	if len(p.TemplatesChainHash) > 0 {
		buf = protowire.AppendTag(buf, 8, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p.TemplatesChainHash)
	}
	buf = appendBool(buf, 9, p.Busy)
	return
}

// Unmarshal parses a serialized Status message into p.
func (p *Status) Unmarshal(b []byte) error {
	*p = Status{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.BytesType:
			return consumeString(v, &p.Serial)
		case num == 2 && typ == protowire.BytesType:
			return consumeString(v, &p.Name)
		case num == 3 && typ == protowire.VarintType:
			return consumeBool(v, &p.HAB)
		case num == 4 && typ == protowire.BytesType:
			return consumeString(v, &p.Revision)
		case num == 5 && typ == protowire.BytesType:
			return consumeString(v, &p.Build)
		case num == 6 && typ == protowire.BytesType:
			return consumeString(v, &p.Version)
		case num == 7 && typ == protowire.BytesType:
			return consumeString(v, &p.Runtime)
		case num == 8 && typ == protowire.BytesType:
			b, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			p.TemplatesChainHash = append([]byte(nil), b...)
			return n, nil
		case num == 9 && typ == protowire.VarintType:
			return consumeBool(v, &p.Busy)
		}
		return -1, nil
	})
}

// Configuration represents the runtime signer options delivered with the
// U2FHID_ARMORY_CFG vendor command.
//
//	message Configuration {
//	  bool ConfirmAddress = 1;
//	  bool Diagnostics = 2;
//	}
type Configuration struct {
	// ConfirmAddress adds a page naming the signing address to the final
	// signing confirmation.
	ConfirmAddress bool
	// Diagnostics enables the TestParsers instruction.
	Diagnostics bool
}

// DefaultConfiguration returns the options used until a configuration is
// received.
func DefaultConfiguration() Configuration {
	return Configuration{
		ConfirmAddress: true,
	}
}

// Bytes serializes a Configuration message.
func (p *Configuration) Bytes() (buf []byte) {
	buf = appendBool(buf, 1, p.ConfirmAddress)
	buf = appendBool(buf, 2, p.Diagnostics)
	return
}

// Unmarshal parses a serialized Configuration message into p.
func (p *Configuration) Unmarshal(b []byte) error {
	*p = Configuration{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			return consumeBool(v, &p.ConfirmAddress)
		case num == 2 && typ == protowire.VarintType:
			return consumeBool(v, &p.Diagnostics)
		}
		return -1, nil
	})
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if len(s) == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, protowire.EncodeBool(v))
}

func consumeString(b []byte, s *string) (int, error) {
	v, n := protowire.ConsumeString(b)
	if n < 0 {
		return n, protowire.ParseError(n)
	}
	*s = v
	return n, nil
}

func consumeBool(b []byte, v *bool) (int, error) {
	x, n := protowire.ConsumeVarint(b)
	if n < 0 {
		return n, protowire.ParseError(n)
	}
	*v = protowire.DecodeBool(x)
	return n, nil
}

// consumeFields walks the fields of a message, handing each value to field.
// field returns -1 for fields it does not know, which are skipped.
func consumeFields(b []byte, field func(protowire.Number, protowire.Type, []byte) (int, error)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return fmt.Errorf("invalid tag: %w", protowire.ParseError(n))
		}
		b = b[n:]

		n, err := field(num, typ, b)
		if err != nil {
			return fmt.Errorf("field %d: %w", num, err)
		}
		if n < 0 {
			if n = protowire.ConsumeFieldValue(num, typ, b); n < 0 {
				return fmt.Errorf("field %d: %w", num, protowire.ParseError(n))
			}
		}
		b = b[n:]
	}
	return nil
}

// Response is the generic reply to vendor commands which carry no other
// result.
//
//	message Response {
//	  uint32 Error = 1;
//	  bytes Payload = 2;
//	}
type Response struct {
	// Error is zero on success.
	Error   uint32
	Payload []byte
}

// ErrorResponse converts an error in an API Message.
func ErrorResponse(err error) []byte {
	msg := &Response{
		Error:   uint32(StatusWordFor(err)),
		Payload: []byte(err.Error()),
	}
	return msg.Bytes()
}

// EmptyResponse for when no relevant data is available.
func EmptyResponse() []byte {
	return (&Response{}).Bytes()
}

// Bytes serializes a Response message.
func (p *Response) Bytes() (buf []byte) {
	if p.Error != 0 {
		buf = protowire.AppendTag(buf, 1, protowire.VarintType)
		buf = protowire.AppendVarint(buf, uint64(p.Error))
	}
	if len(p.Payload) > 0 {
		buf = protowire.AppendTag(buf, 2, protowire.BytesType)
		buf = protowire.AppendBytes(buf, p.Payload)
	}
	return
}

// Unmarshal parses a serialized Response message into p.
func (p *Response) Unmarshal(b []byte) error {
	*p = Response{}
	return consumeFields(b, func(num protowire.Number, typ protowire.Type, v []byte) (int, error) {
		switch {
		case num == 1 && typ == protowire.VarintType:
			x, n := protowire.ConsumeVarint(v)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			p.Error = uint32(x)
			return n, nil
		case num == 2 && typ == protowire.BytesType:
			x, n := protowire.ConsumeBytes(v)
			if n < 0 {
				return n, protowire.ParseError(n)
			}
			p.Payload = append([]byte(nil), x...)
			return n, nil
		}
		return -1, nil
	})
}
