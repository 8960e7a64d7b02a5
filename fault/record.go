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

package fault

import (
	"unsafe"
)

// Record holds the execution state captured on an unrecoverable fault, for
// post-mortem inspection by an external tool after the target has halted.
type Record struct {
	// Triggered is set to 1 once a fault has been captured.
	Triggered uint8
	// PC is the faulting instruction address (zero on panics).
	PC uint32
	// SP is the stack pointer at the time of the fault (zero on panics).
	SP uint32
}

// Record layout expected by the external reader.
const (
	OffsetTriggered = 0
	OffsetPC        = 4
	OffsetSP        = 8
	RecordSize      = 12
)

// compile time layout checks
var (
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.Triggered)-OffsetTriggered]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.PC)-OffsetPC]
	_ = [1]struct{}{}[unsafe.Offsetof(Record{}.SP)-OffsetSP]
	_ = [1]struct{}{}[unsafe.Sizeof(Record{})-RecordSize]
)

// Capture is the fault capture record, exported at a fixed linker symbol so
// that external tooling can locate it without scanning. It is never cleared,
// only a reset does.
//
//go:linkname Capture _BLASH_BACKTRACE_TRIGGER
var Capture Record
