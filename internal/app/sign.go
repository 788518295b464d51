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
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/bytestream"
	"github.com/transparency-dev/armored-signer/internal/hostio"
	"github.com/transparency-dev/armored-signer/internal/keys"
	"github.com/transparency-dev/armored-signer/internal/parser"
	"github.com/transparency-dev/armored-signer/internal/prompt"
	"github.com/transparency-dev/armored-signer/internal/template"
	"k8s.io/klog/v2"
)

// Sign verifies a templated transaction and signs its content.
//
// The host streams Sections until a command with P1 set ends the body, then
// streams the template allow-list until a command with P1 set ends it, and
// finally sends the derivation path of the signing key. The reply to the
// last command is the ed25519 signature of the signed-content hash.
type Sign struct {
	env     *Env
	session *template.Session
	queue   prompt.Queue

	sections   *parser.Many[struct{}]
	candidates *parser.Many[struct{}]
	path       *parser.Action[[]uint32, struct{}]

	// Set while the computation runs a step.
	ctx context.Context
	io  *hostio.IO

	// sectionAdded is set once the Section being parsed has been hashed, so
	// a retried prompt does not hash it twice.
	sectionAdded bool
	// finishing is set once a phase's terminal command has been seen.
	finishing bool
	key       *keys.PrivateKey
	queued    bool
}

// NewSign returns an idle Sign computation.
func NewSign(env *Env) *Sign {
	s := &Sign{
		env:     env,
		session: template.NewSession(env.Trusted),
	}
	s.sections = parser.NewMany[struct{}](parser.NewAction[[]byte, struct{}](parser.FixedBytes(template.SectionSize), s.addSection))
	s.candidates = parser.NewMany[struct{}](parser.NewAction[[]byte, struct{}](parser.FixedBytes(template.HashSize), s.addCandidate))
	s.path = parser.NewAction[[]uint32, struct{}](pathParser(), s.sign)
	return s
}

func (s *Sign) addSection(b []byte) (struct{}, error) {
	sec, err := template.ParseSection(b)
	if err != nil {
		return struct{}{}, err
	}
	if !s.sectionAdded {
		if err := s.session.AddSection(&sec); err != nil {
			return struct{}{}, err
		}
		s.sectionAdded = true
	}
	if page, ok := sec.Page(); ok {
		if err := s.queue.Add(s.ctx, s.env.Prompter, page); err != nil {
			return struct{}{}, err
		}
	}
	s.sectionAdded = false
	return struct{}{}, nil
}

func (s *Sign) addCandidate(b []byte) (struct{}, error) {
	return struct{}{}, s.session.AddCandidate(template.Hash(b))
}

func (s *Sign) sign(path []uint32) (struct{}, error) {
	h, err := s.session.SignedHash()
	if err != nil {
		return struct{}{}, err
	}
	if s.key == nil {
		k, err := s.env.Keys.Derive(path)
		if err != nil {
			return struct{}{}, err
		}
		s.key = k
	}

	if !s.queued {
		pages := []prompt.Page{{Title: "Sign Transaction", Text: "Hash: " + base64.RawURLEncoding.EncodeToString(h[:])}}
		if s.env.confirmAddress() {
			pages = append(pages, prompt.Page{Title: "For Address", Text: keys.Address(s.key.Public())})
		}
		for _, p := range pages {
			if err := s.queue.Add(s.ctx, s.env.Prompter, p); err != nil {
				return struct{}{}, err
			}
		}
		s.queued = true
	}
	if err := s.queue.Show(s.ctx, s.env.Prompter); err != nil {
		return struct{}{}, err
	}

	sig, err := s.key.Sign(h[:])
	s.key.Wipe()
	s.key = nil
	if err != nil {
		return struct{}{}, err
	}
	if err := s.io.ResultFinal(sig); err != nil {
		return struct{}{}, err
	}
	klog.Infof("Signed transaction %x with key for path %q", h, keys.FormatPath(path))
	return struct{}{}, nil
}

func (s *Sign) Resume(ctx context.Context, io *hostio.IO) (bool, error) {
	s.ctx, s.io = ctx, io
	defer func() { s.ctx, s.io = nil, nil }()

	params, err := io.Params(1)
	if err != nil {
		return false, err
	}
	in := params.Get(0)

	switch s.session.Phase() {
	case template.HashingBody:
		return false, s.feed(s.sections, in, func() error {
			if err := s.queue.Show(s.ctx, s.env.Prompter); err != nil {
				return err
			}
			return s.session.FinishBody()
		})
	case template.ChecksumValidation:
		return false, s.feed(s.candidates, in, s.session.FinishAllowlist)
	case template.Signing:
		return drive[struct{}](s.path, in, io.Hold)
	default:
		panic(fmt.Sprintf("sign session in impossible phase %v", s.session.Phase()))
	}
}

// feed runs a repeated phase over the command input and, when the command is
// terminal, ends the phase with finish.
func (s *Sign) feed(m *parser.Many[struct{}], in *bytestream.Stream, finish func() error) error {
	n, err := m.Feed(in)
	klog.V(2).Infof("%v: %d items", s.session.Phase(), n)
	if errors.Is(err, parser.ErrPending) {
		if herr := s.io.Hold(in); herr != nil {
			return herr
		}
		if s.io.Finalize() {
			s.finishing = true
		}
		return err
	}
	if err != nil {
		return err
	}

	if !s.finishing && !s.io.Finalize() {
		return nil
	}
	s.finishing = true
	if m.Partial() {
		return fmt.Errorf("%w: phase ended inside a record", api.ErrMalformed)
	}
	if err := finish(); err != nil {
		return err
	}
	klog.Infof("Sign session entered %v", s.session.Phase())
	s.finishing = false
	return nil
}

func (s *Sign) Reset() {
	s.session.Reset()
	s.queue.Reset()
	s.sections.Reset()
	s.candidates.Reset()
	s.path.Reset()
	s.key.Wipe()
	s.key = nil
	s.sectionAdded = false
	s.finishing = false
	s.queued = false
}
