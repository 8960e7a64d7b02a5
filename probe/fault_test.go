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
	"encoding/binary"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/transparency-dev/armored-rtt/internal/testonly"
)

const (
	testRecord = testBase + 0x800
	testStack  = testBase + 0x900
)

func TestDecodeFault(t *testing.T) {
	for _, test := range []struct {
		name      string
		triggered byte
		pc, sp    uint32
		want      *FaultRecord
		wantKind  string
	}{
		{
			name:     "none",
			want:     &FaultRecord{Addr: testRecord},
			wantKind: "none",
		}, {
			name:      "panic",
			triggered: 1,
			want:      &FaultRecord{Addr: testRecord, Triggered: true},
			wantKind:  "panic",
		}, {
			name:      "exception",
			triggered: 1,
			pc:        0x80001234,
			sp:        0x80ffff00,
			want:      &FaultRecord{Addr: testRecord, Triggered: true, PC: 0x80001234, SP: 0x80ffff00},
			wantKind:  "exception",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			order := binary.LittleEndian
			mem := testonly.NewMemory(t, testBase, testSize)
			mem.Put(testRecord, []byte{test.triggered, 0xaa, 0xaa, 0xaa})
			mem.PutUint32(testRecord+4, order, test.pc)
			mem.PutUint32(testRecord+8, order, test.sp)

			got, err := DecodeFault(mem, testRecord, order)
			if err != nil {
				t.Fatalf("DecodeFault: %v", err)
			}

			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("Got record diff: %s", diff)
			}

			if got, want := got.Kind(), test.wantKind; got != want {
				t.Errorf("Got kind %q, want %q", got, want)
			}

			if p := got.Print(); !strings.Contains(p, test.wantKind) {
				t.Errorf("Print output does not contain %q:\n%s", test.wantKind, p)
			}
		})
	}
}

func TestDecodeFaultTruncated(t *testing.T) {
	mem := testonly.NewMemory(t, testBase, testSize)

	if _, err := DecodeFault(mem, testBase+testSize-4, binary.LittleEndian); err == nil {
		t.Fatal("DecodeFault: got nil error")
	}
}

func TestFaultPrint(t *testing.T) {
	r := &FaultRecord{Addr: 0x80010000, Triggered: true, PC: 0x80001234, SP: 0x80ffff00}

	want := strings.Join([]string{
		"----------------------------------------------------------- Fault ----",
		"Record ...............: 0x80010000",
		"Triggered ............: true (exception)",
		"Program counter ......: 0x80001234",
		"Stack pointer ........: 0x80ffff00",
	}, "\n")

	if diff := cmp.Diff(want, r.Print()); diff != "" {
		t.Fatalf("Got output diff: %s", diff)
	}
}

type symbols []Symbol

func (s symbols) Lookup(pc uint64) (Symbol, bool) {
	for _, sym := range s {
		if pc >= sym.Addr && pc < sym.Addr+sym.Size {
			return sym, true
		}
	}

	return Symbol{}, false
}

var testSymbols = symbols{
	{Name: "main.main", Addr: 0x80001000, Size: 0x100},
	{Name: "main.work", Addr: 0x80001100, Size: 0x80},
	{Name: "runtime.goexit", Addr: 0x80002000, Size: 0x10},
}

func TestBacktrace(t *testing.T) {
	for _, l := range []Layout{Layout32LE, Layout64LE} {
		t.Run(l.String(), func(t *testing.T) {
			mem := testonly.NewMemory(t, testBase, testSize)
			p := uint64(l.PtrSize)

			stack := []uint64{
				0xdeadbeef, // data
				0x80001140, // main.work+0x40
				0x80001100, // main.work entry, a function value
				0,
				0x80001088, // main.main+0x88
				0x80003000, // outside any function
				0x80002004, // runtime.goexit+0x4
			}

			for i, v := range stack {
				mem.PutPtr(testStack+uint64(i)*p, l.Order, l.PtrSize, v)
			}

			rec := &FaultRecord{Addr: testRecord, Triggered: true, PC: 0x80001110, SP: testStack}

			got, err := Backtrace(mem, testSymbols, rec, l, len(stack))
			if err != nil {
				t.Fatalf("Backtrace: %v", err)
			}

			want := []Frame{
				{PC: 0x80001110, Function: "main.work", Offset: 0x10},
				{PC: 0x80001140, StackAddr: testStack + p, Function: "main.work", Offset: 0x40},
				{PC: 0x80001088, StackAddr: testStack + 4*p, Function: "main.main", Offset: 0x88},
				{PC: 0x80002004, StackAddr: testStack + 6*p, Function: "runtime.goexit", Offset: 0x4},
			}

			if diff := cmp.Diff(want, got); diff != "" {
				t.Fatalf("Got frames diff: %s", diff)
			}
		})
	}
}

func TestBacktraceEdges(t *testing.T) {
	l := Layout32LE

	for _, test := range []struct {
		name    string
		rec     *FaultRecord
		depth   int
		want    []Frame
		wantErr bool
	}{
		{
			name:    "no fault",
			rec:     &FaultRecord{},
			wantErr: true,
		}, {
			name:  "panic",
			rec:   &FaultRecord{Triggered: true},
			depth: 16,
		}, {
			name:  "unknown pc",
			rec:   &FaultRecord{Triggered: true, PC: 0x1000},
			depth: 16,
			want:  []Frame{{PC: 0x1000}},
		}, {
			name:  "stack at end of memory",
			rec:   &FaultRecord{Triggered: true, SP: testBase + testSize - 8},
			depth: 16,
		}, {
			name:    "stack outside memory",
			rec:     &FaultRecord{Triggered: true, SP: 0x10},
			depth:   16,
			wantErr: true,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mem := testonly.NewMemory(t, testBase, testSize)

			got, err := Backtrace(mem, testSymbols, test.rec, l, test.depth)

			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Got error %v, want error %v", err, test.wantErr)
			}

			if diff := cmp.Diff(test.want, got); diff != "" {
				t.Fatalf("Got frames diff: %s", diff)
			}
		})
	}
}

func TestFrameString(t *testing.T) {
	for _, test := range []struct {
		frame Frame
		want  string
	}{
		{Frame{PC: 0x80001110, Function: "main.work", Offset: 0x10}, "0x80001110 main.work+0x10"},
		{Frame{PC: 0x1000}, "0x00001000 ??"},
		{Frame{PC: 0x80001140, StackAddr: 0x80000904, Function: "main.work", Offset: 0x40}, "0x80001140 main.work+0x40 (sp 0x80000904)"},
	} {
		if got := test.frame.String(); got != test.want {
			t.Errorf("Got %q, want %q", got, test.want)
		}
	}
}

func TestFirmwareLookup(t *testing.T) {
	fw := &Firmware{funcs: []Symbol(testSymbols)}

	for _, test := range []struct {
		pc   uint64
		want string
		ok   bool
	}{
		{pc: 0x80000fff},
		{pc: 0x80001000, want: "main.main", ok: true},
		{pc: 0x800010ff, want: "main.main", ok: true},
		{pc: 0x80001100, want: "main.work", ok: true},
		{pc: 0x80001180},
		{pc: 0x8000200f, want: "runtime.goexit", ok: true},
		{pc: 0x80002010},
	} {
		s, ok := fw.Lookup(test.pc)

		if ok != test.ok || s.Name != test.want {
			t.Errorf("Lookup(%#x): got (%q, %v), want (%q, %v)", test.pc, s.Name, ok, test.want, test.ok)
		}
	}

	if _, err := fw.Address(FaultRecordSymbol); err == nil {
		t.Error("Address: got nil error for missing symbol")
	}
}
