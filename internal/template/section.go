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
	"fmt"

	"github.com/transparency-dev/armored-signer/api"
	"github.com/transparency-dev/armored-signer/internal/prompt"
)

const (
	// SectionSize is the length of a Section on the wire.
	SectionSize = 202
	// TextSize is the capacity of UserMessage and LiteralText records.
	TextSize = 200
	// TitleSize is the capacity of a substitution title.
	TitleSize = 16
	// SubstitutionSize is the capacity of a substitution value.
	SubstitutionSize = 183

	substitutionChecksumLen = 18
)

// Kind is the discriminant of a Section.
type Kind byte

const (
	// UserMessage is narrative shown to the user and pinned by the template,
	// but not signed.
	UserMessage Kind = iota
	// LiteralText is pinned by the template and signed, but not shown.
	LiteralText
	// FixedLengthSubstitution is a titled value supplied by the caller: shown
	// and signed, with only its title and length pinned by the template.
	FixedLengthSubstitution
)

func (k Kind) String() string {
	switch k {
	case UserMessage:
		return "UserMessage"
	case LiteralText:
		return "LiteralText"
	case FixedLengthSubstitution:
		return "FixedLengthSubstitution"
	}
	return fmt.Sprintf("Kind(%d)", byte(k))
}

// Section is one record of a transaction's narrative, held in its wire form:
//
//	UserMessage, LiteralText: kind | len | text[200]
//	FixedLengthSubstitution:  kind | substitution_len | title_len | title[16] | substitution[183]
//
// Values obtained from ParseSection or the New functions are always valid.
type Section [SectionSize]byte

// ParseSection validates and copies one wire record.
func ParseSection(b []byte) (Section, error) {
	var s Section
	if len(b) != SectionSize {
		return s, fmt.Errorf("%w: section is %d bytes, want %d", api.ErrMalformed, len(b), SectionSize)
	}
	copy(s[:], b)
	if err := s.validate(); err != nil {
		return Section{}, err
	}
	return s, nil
}

func (s *Section) validate() error {
	switch Kind(s[0]) {
	case UserMessage, LiteralText:
		if s[1] >= TextSize {
			return fmt.Errorf("%w: %v length %d out of range", api.ErrMalformed, Kind(s[0]), s[1])
		}
	case FixedLengthSubstitution:
		if s[1] >= SubstitutionSize {
			return fmt.Errorf("%w: substitution length %d out of range", api.ErrMalformed, s[1])
		}
		if s[2] >= TitleSize {
			return fmt.Errorf("%w: title length %d out of range", api.ErrMalformed, s[2])
		}
	default:
		return fmt.Errorf("%w: unknown section kind %d", api.ErrMalformed, s[0])
	}
	return nil
}

// NewUserMessage returns a UserMessage section.
func NewUserMessage(text string) (Section, error) {
	return newText(UserMessage, text)
}

// NewLiteralText returns a LiteralText section.
func NewLiteralText(text string) (Section, error) {
	return newText(LiteralText, text)
}

func newText(k Kind, text string) (Section, error) {
	var s Section
	if len(text) >= TextSize {
		return s, fmt.Errorf("%v text is %d bytes, must be less than %d", k, len(text), TextSize)
	}
	s[0] = byte(k)
	s[1] = byte(len(text))
	copy(s[2:], text)
	return s, nil
}

// NewSubstitution returns a FixedLengthSubstitution section.
func NewSubstitution(title, value string) (Section, error) {
	var s Section
	if len(title) >= TitleSize {
		return s, fmt.Errorf("title %q is %d bytes, must be less than %d", title, len(title), TitleSize)
	}
	if len(value) >= SubstitutionSize {
		return s, fmt.Errorf("substitution is %d bytes, must be less than %d", len(value), SubstitutionSize)
	}
	s[0] = byte(FixedLengthSubstitution)
	s[1] = byte(len(value))
	s[2] = byte(len(title))
	copy(s[3:3+TitleSize], title)
	copy(s[3+TitleSize:], value)
	return s, nil
}

// Kind returns the section's discriminant.
func (s *Section) Kind() Kind {
	k := Kind(s[0])
	if k > FixedLengthSubstitution {
		panic(fmt.Sprintf("invalid section kind %d", s[0]))
	}
	return k
}

func (s *Section) text() []byte {
	return s[2 : 2+int(s[1])]
}

func (s *Section) title() []byte {
	return s[3 : 3+int(s[2])]
}

func (s *Section) substitution() []byte {
	return s[3+TitleSize : 3+TitleSize+int(s[1])]
}

// ChecksumBytes returns the bytes folded into the template checksum.
func (s *Section) ChecksumBytes() []byte {
	switch s.Kind() {
	case UserMessage, LiteralText:
		return s[:]
	default:
		return s[:substitutionChecksumLen]
	}
}

// SigBytes returns the bytes folded into the signed-content hash.
func (s *Section) SigBytes() []byte {
	switch s.Kind() {
	case UserMessage:
		return nil
	case LiteralText:
		return s.text()
	default:
		return s.substitution()
	}
}

// Page returns what the user is shown for this section, if anything.
func (s *Section) Page() (prompt.Page, bool) {
	switch s.Kind() {
	case UserMessage:
		return prompt.Page{Title: "Message", Text: string(s.text())}, true
	case LiteralText:
		return prompt.Page{}, false
	default:
		return prompt.Page{Title: string(s.title()), Text: string(s.substitution())}, true
	}
}
