// Copyright 2026 The Armored RTT authors. All Rights Reserved.
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

// Package console provides formatted output on the RTT channel.
//
// The output target is a process wide singleton which must be initialized,
// with Init, before any output is attempted. Every output call formats and
// writes within a single critical section (see package irq), so that
// interrupt and main line context never interleave within a message.
package console

import (
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/transparency-dev/armored-rtt/irq"
	"github.com/transparency-dev/armored-rtt/rtt"
)

// ErrNotInitialized is returned by output functions invoked before Init.
var ErrNotInitialized = errors.New("console not initialized")

const newline = "\r\n"

var (
	once sync.Once
	out  atomic.Pointer[rtt.ControlBlock]
)

// Init initializes the RTT channel and installs it as output target, only
// the first invocation has any effect.
func Init() {
	once.Do(func() {
		rtt.Init()
		out.Store(&rtt.SeggerRTT)
	})
}

// Ready reports whether Init has been called.
func Ready() bool {
	return out.Load() != nil
}

// Output returns the output target, or ErrNotInitialized before Init.
func Output() (io.Writer, error) {
	cb := out.Load()

	if cb == nil {
		return nil, ErrNotInitialized
	}

	return cb, nil
}

func write(fn func(w io.Writer) (int, error)) (n int, err error) {
	w, err := Output()

	if err != nil {
		return
	}

	irq.Section(func() {
		n, err = fn(w)
	})

	return
}

// Print formats using the default formats for its operands, as fmt.Print,
// and writes the result to the channel.
func Print(a ...any) (int, error) {
	return write(func(w io.Writer) (int, error) {
		return fmt.Fprint(w, a...)
	})
}

// Println formats using the default formats for its operands, as
// fmt.Println, and writes the result to the channel terminated by CRLF.
func Println(a ...any) (int, error) {
	return write(func(w io.Writer) (int, error) {
		s := strings.TrimSuffix(fmt.Sprintln(a...), "\n")
		return io.WriteString(w, s+newline)
	})
}

// Printf formats according to a format specifier, as fmt.Printf, and writes
// the result to the channel.
func Printf(format string, a ...any) (int, error) {
	return write(func(w io.Writer) (int, error) {
		return fmt.Fprintf(w, format, a...)
	})
}

// Trace prints the caller source location.
func Trace() {
	Println(caller(2))
}

// Debug prints the caller source location along with the Go syntax
// representation of v, v is returned unmodified.
func Debug[T any](v T) T {
	loc := caller(2)

	write(func(w io.Writer) (int, error) {
		return fmt.Fprintf(w, "%s = %#v"+newline, loc, v)
	})

	return v
}

func caller(skip int) string {
	_, file, line, ok := runtime.Caller(skip)

	if !ok {
		return "[?:0]"
	}

	return fmt.Sprintf("[%s:%d]", filepath.Base(file), line)
}

type writer struct{}

func (writer) Write(p []byte) (int, error) {
	return write(func(w io.Writer) (int, error) {
		return w.Write(p)
	})
}

// Writer returns an io.Writer which writes to the channel, each Write
// happens within its own critical section. It is meant to be used as
// destination for loggers.
func Writer() io.Writer {
	return writer{}
}

// Write writes p to the channel without formatting nor allocating.
func Write(p []byte) (n int, err error) {
	cb := out.Load()

	if cb == nil {
		return 0, ErrNotInitialized
	}

	irq.Section(func() {
		n, err = cb.Write(p)
	})

	return
}

// WriteByte writes a single byte to the channel without allocating.
func WriteByte(c byte) (err error) {
	cb := out.Load()

	if cb == nil {
		return ErrNotInitialized
	}

	irq.Section(func() {
		err = cb.WriteByte(c)
	})

	return
}
