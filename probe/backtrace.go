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
	"fmt"
	"io"
)

// DefaultBacktraceDepth is the default number of stack words inspected by
// Backtrace.
const DefaultBacktraceDepth = 256

// Symbolizer resolves code addresses to functions.
type Symbolizer interface {
	Lookup(pc uint64) (Symbol, bool)
}

// Frame represents a backtrace entry.
type Frame struct {
	// PC is the code address.
	PC uint64
	// StackAddr is the stack location where PC was found, zero for the
	// faulting program counter.
	StackAddr uint64

	Function string
	Offset   uint64
}

func (f Frame) String() string {
	fn := "??"

	if f.Function != "" {
		fn = fmt.Sprintf("%s+%#x", f.Function, f.Offset)
	}

	if f.StackAddr == 0 {
		return fmt.Sprintf("%#.8x %s", f.PC, fn)
	}

	return fmt.Sprintf("%#.8x %s (sp %#x)", f.PC, fn, f.StackAddr)
}

// Backtrace returns a partial call trace for the argument fault record.
//
// Frame pointers are not available, the trace is therefore reconstructed by
// inspecting up to depth stack words from the recorded stack pointer and
// reporting those which point within a function body (not at its entry,
// which is more likely a function value than a return address). Frames may
// be stale or missing.
func Backtrace(mem io.ReaderAt, sym Symbolizer, rec *FaultRecord, l Layout, depth int) ([]Frame, error) {
	if err := l.Validate(); err != nil {
		return nil, err
	}

	if !rec.Triggered {
		return nil, fmt.Errorf("no fault recorded at %#x", rec.Addr)
	}

	var frames []Frame

	if rec.PC != 0 {
		f := Frame{PC: uint64(rec.PC)}

		if s, ok := sym.Lookup(f.PC); ok {
			f.Function = s.Name
			f.Offset = f.PC - s.Addr
		}

		frames = append(frames, f)
	}

	if rec.SP == 0 || depth <= 0 {
		return frames, nil
	}

	buf := make([]byte, depth*l.PtrSize)
	n, err := mem.ReadAt(buf, int64(rec.SP))

	if n == 0 && err != nil {
		return frames, fmt.Errorf("could not read stack at %#x: %v", rec.SP, err)
	}

	for off := 0; off+l.PtrSize <= n; off += l.PtrSize {
		pc := l.ptr(buf[off:])
		s, ok := sym.Lookup(pc)

		if !ok || pc == s.Addr {
			continue
		}

		frames = append(frames, Frame{
			PC:        pc,
			StackAddr: uint64(rec.SP) + uint64(off),
			Function:  s.Name,
			Offset:    pc - s.Addr,
		})
	}

	return frames, nil
}
