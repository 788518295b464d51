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

package template

import (
	"bytes"
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Document is the YAML form of a template or of a concrete transaction:
//
//	name: transfer
//	sections:
//	  - message: Transfer funds
//	  - literal: "to:"
//	  - substitution: {title: Amount, length: 8}
//	  - substitution: {title: Recipient, value: alice}
//
// Templates give substitution lengths; transactions give values.
type Document struct {
	Name     string         `yaml:"name"`
	Sections []SectionEntry `yaml:"sections"`
}

// SectionEntry describes one Section. Exactly one field must be set.
type SectionEntry struct {
	Message      *string            `yaml:"message,omitempty"`
	Literal      *string            `yaml:"literal,omitempty"`
	Substitution *SubstitutionEntry `yaml:"substitution,omitempty"`
}

// SubstitutionEntry describes a FixedLengthSubstitution. When Value is empty
// Length zero bytes are substituted.
type SubstitutionEntry struct {
	Title  string `yaml:"title"`
	Value  string `yaml:"value,omitempty"`
	Length int    `yaml:"length,omitempty"`
}

// ParseDocument decodes a YAML document.
func ParseDocument(b []byte) (*Document, error) {
	d := &Document{}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(d); err != nil {
		return nil, fmt.Errorf("failed to parse template document: %v", err)
	}
	return d, nil
}

// Marshal encodes d as YAML.
func (d *Document) Marshal() ([]byte, error) {
	return yaml.Marshal(d)
}

// Build returns the wire Sections described by d.
func (d *Document) Build() ([]Section, error) {
	res := make([]Section, 0, len(d.Sections))
	for i, e := range d.Sections {
		s, err := e.build()
		if err != nil {
			return nil, fmt.Errorf("section %d: %v", i, err)
		}
		res = append(res, s)
	}
	return res, nil
}

func (s SectionEntry) build() (Section, error) {
	set := 0
	for _, ok := range []bool{s.Message != nil, s.Literal != nil, s.Substitution != nil} {
		if ok {
			set++
		}
	}
	if set != 1 {
		return Section{}, errors.New("exactly one of message, literal or substitution must be set")
	}

	switch {
	case s.Message != nil:
		return NewUserMessage(*s.Message)
	case s.Literal != nil:
		return NewLiteralText(*s.Literal)
	}

	sub := s.Substitution
	if sub.Length < 0 {
		return Section{}, fmt.Errorf("substitution %q has negative length", sub.Title)
	}
	value := sub.Value
	if value == "" {
		value = string(make([]byte, sub.Length))
	} else if sub.Length != 0 && sub.Length != len(value) {
		return Section{}, fmt.Errorf("substitution %q is %d bytes, template requires %d", sub.Title, len(value), sub.Length)
	}
	return NewSubstitution(sub.Title, value)
}
