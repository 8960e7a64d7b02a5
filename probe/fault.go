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

package probe

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// FaultRecordSize is the size of the fault capture record.
const FaultRecordSize = 12

// FaultRecord represents the fault capture record written by the target
// before halting.
type FaultRecord struct {
	Addr uint64

	Triggered bool
	PC        uint32
	SP        uint32
}

// DecodeFault decodes the fault capture record at addr.
func DecodeFault(mem io.ReaderAt, addr uint64, order binary.ByteOrder) (*FaultRecord, error) {
	b := make([]byte, FaultRecordSize)

	if err := readFull(mem, addr, b); err != nil {
		return nil, err
	}

	return &FaultRecord{
		Addr:      addr,
		Triggered: b[0] != 0,
		PC:        order.Uint32(b[4:]),
		SP:        order.Uint32(b[8:]),
	}, nil
}

// Kind returns a description of the recorded fault.
func (f *FaultRecord) Kind() string {
	switch {
	case !f.Triggered:
		return "none"
	case f.PC == 0 && f.SP == 0:
		return "panic"
	default:
		return "exception"
	}
}

// Print returns the fault record in textual format.
func (f *FaultRecord) Print() string {
	var buf bytes.Buffer

	buf.WriteString("----------------------------------------------------------- Fault ----\n")
	fmt.Fprintf(&buf, "Record ...............: %#x\n", f.Addr)
	fmt.Fprintf(&buf, "Triggered ............: %v (%s)\n", f.Triggered, f.Kind())
	fmt.Fprintf(&buf, "Program counter ......: %#.8x\n", f.PC)
	fmt.Fprintf(&buf, "Stack pointer ........: %#.8x", f.SP)

	return buf.String()
}
