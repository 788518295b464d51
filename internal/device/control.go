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

package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/template"
	"k8s.io/klog/v2"
)

// Control serves the U2FHID vendor commands of a running Device. Its
// handlers may be called from any goroutine.
type Control struct {
	mu sync.Mutex

	Device    *Device
	Transport *ChanTransport
	Trusted   template.Hash
	// Platform, if set, completes the status with hardware details.
	Platform func(*api.Status)
	// HostButtons accepts button events from the host. A host able to press
	// buttons can approve its own requests, so only simulators and debug
	// builds set it.
	HostButtons bool
}

// ErrHostButtons is returned for button events from the host when
// HostButtons is not set.
var ErrHostButtons = errors.New("button emulation disabled")

// Command handles one vendor command, returning its response payload.
func (c *Control) Command(cmd byte, req []byte) ([]byte, error) {
	switch cmd {
	case api.U2FHID_ARMORY_INF:
		return c.Status(req), nil
	case api.U2FHID_ARMORY_CFG:
		return c.Config(req), nil
	case api.U2FHID_ARMORY_APDU:
		return c.APDU(req), nil
	case api.U2FHID_ARMORY_BTN:
		return c.Button(req), nil
	}
	return nil, fmt.Errorf("unknown vendor command %#02x", cmd)
}

// Status returns the encoded api.Status.
func (c *Control) Status(_ []byte) []byte {
	s := &api.Status{
		Name:               c.Device.Name(),
		Version:            c.Device.Version().String(),
		Runtime:            fmt.Sprintf("%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH),
		TemplatesChainHash: c.Trusted[:],
		Busy:               c.Device.Busy(),
	}
	if c.Platform != nil {
		c.Platform(s)
	}
	return s.Bytes()
}

// Config applies an encoded api.Configuration.
func (c *Control) Config(req []byte) []byte {
	if len(req) == 0 {
		return api.ErrorResponse(errors.New("empty configuration"))
	}

	var cfg api.Configuration
	if err := cfg.Unmarshal(req); err != nil {
		return api.ErrorResponse(fmt.Errorf("%w: %v", api.ErrMalformed, err))
	}

	klog.Infof("Received configuration update")

	if err := c.Transport.Configure(context.Background(), cfg); err != nil {
		return api.ErrorResponse(err)
	}

	return api.EmptyResponse()
}

// APDU carries one command APDU and returns the reply APDU.
func (c *Control) APDU(req []byte) []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	res, err := c.Transport.Exchange(context.Background(), req)
	if err != nil {
		klog.Warningf("APDU exchange: %v", err)
		return api.EncodeReply(nil, api.SwUnknown)
	}

	return res
}

// Button injects a physical button event.
func (c *Control) Button(req []byte) []byte {
	if !c.HostButtons {
		klog.Warningf("Refusing button event from host")
		return api.ErrorResponse(ErrHostButtons)
	}
	if len(req) != 1 {
		return api.ErrorResponse(fmt.Errorf("%w: button event of %d bytes", api.ErrMalformed, len(req)))
	}

	if err := c.Transport.Press(context.Background(), api.Button(req[0])); err != nil {
		return api.ErrorResponse(err)
	}

	return api.EmptyResponse()
}
