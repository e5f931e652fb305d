// This file is part of minivm - https://github.com/shadowndacorner/minivm
//
// Copyright 2021 The minivm Authors
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

package asm

import (
	"strings"

	"github.com/pkg/errors"
)

type tokenKind int

const (
	tokIdent tokenKind = iota
	tokLabel
	tokCname
	tokExtern
)

// token is a whitespace-delimited lexeme. For label, cname and extern tokens
// the text keeps its sigil (".", "$", "@").
type token struct {
	kind tokenKind
	text string
}

// scanner is a one-pass scanner over an assembly source buffer. Newlines are
// ordinary whitespace; the dialect is token-oriented, not line-oriented.
type scanner struct {
	src string
	off int
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isDigit(c byte) bool {
	return c >= '0' && c <= '9'
}

func isCommentStart(c byte) bool {
	return c == '#' || c == ';'
}

func (s *scanner) eof() bool {
	return s.off >= len(s.src)
}

// peek returns the current byte without consuming it, 0 at EOF.
func (s *scanner) peek() byte {
	if s.eof() {
		return 0
	}
	return s.src[s.off]
}

// next consumes and returns the current byte, 0 at EOF.
func (s *scanner) next() byte {
	if s.eof() {
		return 0
	}
	c := s.src[s.off]
	s.off++
	return c
}

// skipWhitespace consumes whitespace and comments up to the next significant
// byte.
func (s *scanner) skipWhitespace() {
	for !s.eof() {
		c := s.peek()
		if isCommentStart(c) {
			for c = s.next(); c != 0 && c != '\n'; c = s.next() {
			}
			continue
		}
		if !isSpace(c) {
			return
		}
		s.off++
	}
}

// readIdent consumes bytes until the next whitespace and returns the source
// slice starting at start.
func (s *scanner) readIdent(start int) string {
	for !s.eof() && !isSpace(s.peek()) {
		s.off++
	}
	return s.src[start:s.off]
}

// scan returns the next token, or ok == false at end of input.
func (s *scanner) scan() (tok token, ok bool) {
	s.skipWhitespace()
	c := s.next()
	if c == 0 {
		return token{}, false
	}
	start := s.off - 1
	switch c {
	case '$':
		return token{tokCname, s.readIdent(start)}, true
	case '@':
		return token{tokExtern, s.readIdent(start)}, true
	case '.':
		return token{tokLabel, s.readIdent(start)}, true
	}
	return token{tokIdent, s.readIdent(start)}, true
}

// readStringLiteral reads a "…" literal, the opening quote being the current
// byte. \n yields a newline and any other \c yields c literally, except \x
// which, despite the x, reads a character code in decimal.
func (s *scanner) readStringLiteral() (string, error) {
	if s.next() != '"' {
		return "", errors.New("expected string literal")
	}
	var b strings.Builder
	for {
		c := s.next()
		if c == 0 {
			return "", errors.New("Reached EOF")
		}
		if c == '"' {
			return b.String(), nil
		}
		if c != '\\' {
			b.WriteByte(c)
			continue
		}
		e := s.next()
		if e == 0 {
			return "", errors.New("Reached EOF")
		}
		switch e {
		case 'n':
			b.WriteByte('\n')
		case 'x':
			if !isDigit(s.peek()) {
				b.WriteByte('x')
				break
			}
			var n uint64
			for isDigit(s.peek()) {
				n = n*10 + uint64(s.next()-'0')
			}
			b.WriteByte(byte(n))
		default:
			b.WriteByte(e)
		}
	}
}
