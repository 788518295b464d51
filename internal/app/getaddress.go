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

package app

import (
	"context"

	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"k8s.io/klog/v2"
)

// GetAddress returns the public key and address for a derivation path once
// the user agrees to reveal them.
//
// Reply: len | public key | len | address.
type GetAddress struct {
	env   *Env
	path  *parser.Action[[]uint32, struct{}]
	queue prompt.Queue

	// Set while the computation runs a step.
	ctx context.Context
	io  *hostio.IO

	key    *keys.PrivateKey
	queued bool
}

// NewGetAddress returns an idle GetAddress computation.
func NewGetAddress(env *Env) *GetAddress {
	g := &GetAddress{env: env}
	g.path = parser.NewAction[[]uint32, struct{}](pathParser(), g.reveal)
	return g
}

func (g *GetAddress) reveal(path []uint32) (struct{}, error) {
	if g.key == nil {
		k, err := g.env.Keys.Derive(path)
		if err != nil {
			return struct{}{}, err
		}
		g.key = k
	}
	pub := g.key.Public()
	addr := keys.Address(pub)

	if !g.queued {
		if err := g.queue.Add(g.ctx, g.env.Prompter, prompt.Page{Title: "Provide Public Key", Text: "For Address " + addr}); err != nil {
			return struct{}{}, err
		}
		g.queued = true
	}
	if err := g.queue.Show(g.ctx, g.env.Prompter); err != nil {
		return struct{}{}, err
	}

	if err := g.io.ResultAccumulating(append([]byte{byte(len(pub))}, pub...)); err != nil {
		return struct{}{}, err
	}
	if err := g.io.ResultFinal(append([]byte{byte(len(addr))}, addr...)); err != nil {
		return struct{}{}, err
	}
	klog.Infof("Revealed public key for path %q", keys.FormatPath(path))
	g.key.Wipe()
	g.key = nil
	return struct{}{}, nil
}

func (g *GetAddress) Resume(ctx context.Context, io *hostio.IO) (bool, error) {
	g.ctx, g.io = ctx, io
	defer func() { g.ctx, g.io = nil, nil }()

	params, err := io.Params(1)
	if err != nil {
		return false, err
	}
	return drive[struct{}](g.path, params.Get(0), io.Hold)
}

func (g *GetAddress) Reset() {
	g.path.Reset()
	g.queue.Reset()
	g.key.Wipe()
	g.key = nil
	g.queued = false
}
