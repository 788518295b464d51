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

package client

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"

	"github.com/status-im/keycard-go/apdu"
	"github.com/status-im/keycard-go/types"
	"github.com/transparency-dev/armored-signer/api"
	"k8s.io/klog/v2"
)

// Link carries U2FHID vendor commands. A *u2fhid.Device opened on the
// signer's HID interface is a Link.
type Link interface {
	Command(cmd byte, data []byte) ([]byte, error)
}

// Channel sends APDUs over a Link.
type Channel struct {
	Link Link
}

var _ types.Channel = Channel{}

func (c Channel) Send(cmd *apdu.Command) (*apdu.Response, error) {
	raw, err := cmd.Serialize()
	if err != nil {
		return nil, err
	}
	res, err := c.Link.Command(api.U2FHID_ARMORY_APDU, raw)
	if err != nil {
		return nil, err
	}
	return apdu.ParseResponse(res)
}

// Device adds the signer's out of band vendor commands to a Client.
type Device struct {
	*Client
	link Link
}

// NewDevice returns a Device talking over l.
func NewDevice(l Link) *Device {
	return &Device{Client: New(Channel{Link: l}), link: l}
}

func (d *Device) control(cmd byte, req []byte) error {
	buf, err := d.link.Command(cmd, req)
	if err != nil {
		return err
	}
	var res api.Response
	if err := res.Unmarshal(buf); err != nil {
		return err
	}
	if res.Error != 0 {
		return fmt.Errorf("device error %04x: %s", res.Error, res.Payload)
	}
	return nil
}

// Status returns the device status.
func (d *Device) Status() (*api.Status, error) {
	buf, err := d.link.Command(api.U2FHID_ARMORY_INF, nil)
	if err != nil {
		return nil, err
	}
	s := &api.Status{}
	if err := s.Unmarshal(buf); err != nil {
		return nil, err
	}
	return s, nil
}

// Configure replaces the device's runtime configuration.
func (d *Device) Configure(cfg api.Configuration) error {
	return d.control(api.U2FHID_ARMORY_CFG, cfg.Bytes())
}

// Press emulates a button press.
func (d *Device) Press(b api.Button) error {
	return d.control(api.U2FHID_ARMORY_BTN, []byte{byte(b)})
}

// TCPLink is a Link to a simulated signer.
type TCPLink struct {
	mu   sync.Mutex
	conn net.Conn
}

// Dial connects to a simulator listening on addr.
func Dial(addr string) (*TCPLink, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return NewTCPLink(conn), nil
}

// NewTCPLink returns a Link over an established connection.
func NewTCPLink(conn net.Conn) *TCPLink {
	return &TCPLink{conn: conn}
}

func (l *TCPLink) Command(cmd byte, data []byte) ([]byte, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := api.WriteFrame(l.conn, api.Frame{Cmd: cmd, Payload: data}); err != nil {
		return nil, err
	}
	f, err := api.ReadFrame(l.conn)
	if err != nil {
		return nil, err
	}
	if f.Cmd != cmd {
		return nil, fmt.Errorf("response to command %#02x answers %#02x", cmd, f.Cmd)
	}
	return f.Payload, nil
}

func (l *TCPLink) Close() error {
	return l.conn.Close()
}

// ServeConn answers frames read from conn with l until the peer hangs up.
func ServeConn(conn net.Conn, l Link) error {
	defer conn.Close()
	for {
		f, err := api.ReadFrame(conn)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		res, err := l.Command(f.Cmd, f.Payload)
		if err != nil {
			klog.Warningf("Command %#02x from %v: %v", f.Cmd, conn.RemoteAddr(), err)
			res = api.ErrorResponse(err)
		}
		if err := api.WriteFrame(conn, api.Frame{Cmd: f.Cmd, Payload: res}); err != nil {
			return err
		}
	}
}
