// Copyright (c) WithSecure Corporation
// https://foundry.withsecure.com
//
// Use of this source code is governed by the license
// that can be found in the LICENSE file.

package main

import (
	"bytes"
	"io"
)

const (
	outputLimit = 1024
	flushChr    = 0x0a // \n
)

// lineWriter buffers output until a full line, or outputLimit bytes, is
// available so that concurrent log lines are not interleaved.
type lineWriter struct {
	w   io.Writer
	buf bytes.Buffer
}

func (l *lineWriter) Write(p []byte) (n int, err error) {
	for _, c := range p {
		l.buf.WriteByte(c)

		if c == flushChr || l.buf.Len() > outputLimit {
			if _, err = l.w.Write(l.buf.Bytes()); err != nil {
				return
			}
			l.buf.Reset()
		}

		n++
	}

	return
}
