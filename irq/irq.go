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

// Package irq provides critical sections implemented by globally masking
// interrupts, the only mutual exclusion primitive available to code shared
// between interrupt and main line context on a single core target.
//
// On `GOOS=tamago GOARCH=riscv64` the machine interrupt enable bit (MIE) of
// the mstatus register is cleared for the duration of the section. On any
// other target the mask is emulated, which serializes sections across
// goroutines but does not allow nesting.
package irq

import (
	"github.com/usbarmory/tamago/bits"
)

// MSTATUS_MIE is the machine interrupt enable bit of the mstatus register.
const MSTATUS_MIE = 3

// Section runs fn with interrupts masked. The interrupt state in effect
// before the call is restored on every exit path of fn, panics included.
func Section(fn func()) {
	prior := disable()
	defer restore(prior)

	fn()
}

// Masked reports whether interrupts are currently masked.
func Masked() bool {
	s := status()
	return bits.Get(&s, MSTATUS_MIE, 1) == 0
}

// restore re-enables interrupts only if they were enabled in the prior
// status, so that nested sections leave them masked.
func restore(prior uint32) {
	if bits.Get(&prior, MSTATUS_MIE, 1) == 1 {
		enable()
	} else {
		release()
	}
}
