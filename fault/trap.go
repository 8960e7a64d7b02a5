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

// Package fault implements the terminal trap handlers of the firmware and
// the fault capture record they leave behind for post-mortem inspection.
//
// The firmware runs in the Running state until the first trap handler is
// entered, which moves it to the Faulted state. Faulted is absorbing, the
// handler emits a best effort diagnostic on the RTT channel, gives the
// external reader time to drain it, fills the capture record and halts the
// processor forever.
package fault

import (
	"strconv"
	"sync/atomic"

	"github.com/transparency-dev/armored-rtt/console"
)

// State represents the firmware execution state.
type State uint32

const (
	Running State = iota
	Faulted
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Faulted:
		return "faulted"
	default:
		return "invalid"
	}
}

// DrainIterations is the length of the busy wait which precedes the halt,
// giving the external reader a chance to drain the channel. It is sized
// empirically, not calibrated against time.
var DrainIterations = 50000

var (
	state atomic.Uint32

	// overridden in tests, both never return on target
	drainFn = drain
	haltFn  = idle
)

// Current returns the firmware execution state.
func Current() State {
	return State(state.Load())
}

// enter performs the Running to Faulted transition, only the first caller
// wins.
func enter() bool {
	return state.CompareAndSwap(uint32(Running), uint32(Faulted))
}

//go:noinline
func drain() {
	for i := 0; i < DrainIterations; i++ {
	}
}

func idle() {
	for {
	}
}

// emit writes a diagnostic line, any failure is swallowed as the handler
// must not fault while reporting a fault.
func emit(format string, a ...any) {
	defer func() {
		_ = recover()
	}()

	console.Printf(format+"\r\n", a...)
}

// line holds the exception diagnostic, only the handler which performed the
// Running to Faulted transition uses it.
var line [96]byte

// exceptionLine formats the exception diagnostic into dst without
// allocating.
func exceptionLine(dst []byte, code Cause, mepc uint64) []byte {
	dst = append(dst[:0], "exception code "...)
	dst = strconv.AppendUint(dst, uint64(code), 10)
	dst = append(dst, " ("...)
	dst = append(dst, code.String()...)
	dst = append(dst, ") at "...)
	dst = strconv.AppendUint(dst, mepc, 16)

	return append(dst, "\r\n"...)
}

// emitLine is emit for preformatted diagnostics, it does not allocate so
// that it is safe while the runtime allocator is unavailable.
func emitLine(p []byte) {
	defer func() {
		_ = recover()
	}()

	console.Write(p)
}

// Panic handles an unrecoverable software error, the argument is reported
// on the channel. The capture record only flags the event as a panic carries
// no trap frame.
//
// Panic never returns.
func Panic(v any) {
	if !enter() {
		haltFn()
		return
	}

	emit("PANIC! %v", v)
	drainFn()

	Capture.Triggered = 1

	haltFn()
}

// Exception handles a hardware exception, the arguments are the machine
// cause (mcause) and exception program counter (mepc) registers as well as
// the stack pointer of the trapped context.
//
// Exception never returns.
func Exception(mcause uint64, mepc uint64, sp uint64) {
	if !enter() {
		haltFn()
		return
	}

	// the trap frame is recorded first, Abort completes the record if the
	// runtime gives up while the diagnostic is being emitted
	Capture.PC = uint32(mepc)
	Capture.SP = uint32(sp)

	emitLine(exceptionLine(line[:0], CauseOf(mcause), mepc))
	drainFn()

	Capture.Triggered = 1

	haltFn()
}

// Abort handles a runtime exit, the runtime has already reported its cause
// on the console.
//
// An exit while already Faulted means the handler in charge failed before
// completing the record, which is then flagged as is.
//
// Abort never returns.
func Abort() {
	if !enter() {
		if Capture.Triggered == 0 {
			Capture.Triggered = 1
		}

		haltFn()
		return
	}

	drainFn()

	Capture.Triggered = 1

	haltFn()
}

// Recover routes a panic of the calling goroutine to Panic, it must be
// deferred directly:
//
//	defer fault.Recover()
func Recover() {
	if r := recover(); r != nil {
		Panic(r)
	}
}
