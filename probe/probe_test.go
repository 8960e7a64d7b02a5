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
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/transparency-dev/armored-rtt/internal/testonly"
)

const (
	testBase = 0x80000000
	testName = testBase + 0x40
	testCB   = testBase + 0x100
	testBuf  = testBase + 0x200
	testSize = 0x1000
)

// newTarget returns a target address space holding a control block with a
// single up channel.
func newTarget(t *testing.T, l Layout, size, wr, rd uint32) *testonly.Memory {
	t.Helper()

	mem := testonly.NewMemory(t, testBase, testSize)
	mem.Put(testName, []byte("Terminal\x00"))

	id := make([]byte, idSize)
	copy(id, Magic)
	mem.Put(testCB, id)
	mem.PutUint32(testCB+idSize, l.Order, 1)
	mem.PutUint32(testCB+idSize+4, l.Order, 0)

	d := descriptor(l)
	p := uint64(l.PtrSize)

	mem.PutPtr(d, l.Order, l.PtrSize, testName)
	mem.PutPtr(d+p, l.Order, l.PtrSize, testBuf)
	mem.PutUint32(d+2*p, l.Order, size)
	mem.PutUint32(d+2*p+4, l.Order, wr)
	mem.PutUint32(d+2*p+8, l.Order, rd)

	return mem
}

func descriptor(l Layout) uint64 {
	return testCB + uint64(l.headerSize())
}

func readOffsetAddr(l Layout) uint64 {
	return descriptor(l) + uint64(2*l.PtrSize) + 8
}

func TestDecode(t *testing.T) {
	for _, l := range []Layout{Layout32LE, Layout64LE} {
		t.Run(l.String(), func(t *testing.T) {
			mem := newTarget(t, l, 1024, 10, 4)

			cb, err := Decode(mem, testCB, l)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			want := &ControlBlock{
				Addr:         testCB,
				MaxUpBuffers: 1,
				Up: []Channel{
					{
						Addr:        descriptor(l),
						Name:        "Terminal",
						NameAddr:    testName,
						Start:       testBuf,
						Size:        1024,
						WriteOffset: 10,
						ReadOffset:  4,
					},
				},
			}
			copy(want.ID[:], Magic)

			if diff := cmp.Diff(want, cb, cmpopts.IgnoreFields(ControlBlock{}, "Layout")); diff != "" {
				t.Fatalf("Got control block diff: %s", diff)
			}
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	l := Layout32LE
	d := descriptor(l)

	for _, test := range []struct {
		name         string
		corrupt      func(m *testonly.Memory)
		addr         uint64
		wantNotFound bool
		wantField    string
	}{
		{
			name:         "missing tag",
			corrupt:      func(m *testonly.Memory) { m.Put(testCB, []byte("SEGGER XXX")) },
			addr:         testCB,
			wantNotFound: true,
		}, {
			name:      "negative up count",
			corrupt:   func(m *testonly.Memory) { m.PutUint32(testCB+idSize, l.Order, 0xffffffff) },
			addr:      testCB,
			wantField: "up channel count",
		}, {
			name:      "too many down channels",
			corrupt:   func(m *testonly.Memory) { m.PutUint32(testCB+idSize+4, l.Order, 1000) },
			addr:      testCB,
			wantField: "down channel count",
		}, {
			name:      "write offset beyond size",
			corrupt:   func(m *testonly.Memory) { m.PutUint32(d+12, l.Order, 1024) },
			addr:      testCB,
			wantField: "write offset",
		}, {
			name:      "null buffer",
			corrupt:   func(m *testonly.Memory) { m.PutUint32(d+4, l.Order, 0) },
			addr:      testCB,
			wantField: "buffer start",
		}, {
			name:    "truncated",
			corrupt: func(m *testonly.Memory) {},
			addr:    testBase + testSize - 8,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mem := newTarget(t, l, 1024, 0, 0)
			test.corrupt(mem)

			_, err := Decode(mem, test.addr, l)
			if err == nil {
				t.Fatal("Decode: got nil error")
			}

			if got, want := IsNotFound(err), test.wantNotFound; got != want {
				t.Errorf("Got IsNotFound %v, want %v (%v)", got, want, err)
			}

			var le *LayoutError

			if got, want := errors.As(err, &le), test.wantField != ""; got != want {
				t.Fatalf("Got LayoutError %v, want %v (%v)", got, want, err)
			}

			if le != nil && le.Field != test.wantField {
				t.Errorf("Got field %q, want %q", le.Field, test.wantField)
			}
		})
	}
}

func TestDecodeInvalidLayout(t *testing.T) {
	mem := newTarget(t, Layout32LE, 1024, 0, 0)

	if _, err := Decode(mem, testCB, Layout{PtrSize: 2, Order: Layout32LE.Order}); err == nil {
		t.Fatal("Decode: got nil error for 16-bit layout")
	}
}

func TestScan(t *testing.T) {
	const size = 3 * ScanChunkSize

	for _, test := range []struct {
		name     string
		at       int
		start    uint64
		end      uint64
		want     uint64
		notFound bool
	}{
		{
			name: "first chunk",
			at:   0x100,
			end:  size,
			want: 0x100,
		}, {
			name: "across chunks",
			at:   ScanChunkSize - 3,
			end:  size,
			want: ScanChunkSize - 3,
		}, {
			name: "last bytes",
			at:   size - len(Magic),
			end:  size,
			want: size - uint64(len(Magic)),
		}, {
			name:     "beyond range",
			at:       2 * ScanChunkSize,
			end:      2*ScanChunkSize + 4,
			notFound: true,
		}, {
			name:     "before range",
			at:       0x10,
			start:    0x20,
			end:      size,
			notFound: true,
		}, {
			name: "range past end of memory",
			at:   2*ScanChunkSize + 1,
			end:  10 * ScanChunkSize,
			want: 2*ScanChunkSize + 1,
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			mem := testonly.NewMemory(t, 0, size)
			copy(mem.Storage[test.at:], Magic)

			var last uint64

			progress := func(done uint64) {
				if done < last {
					t.Errorf("Progress went backwards: %d < %d", done, last)
				}
				last = done
			}

			got, err := Scan(context.Background(), mem, test.start, test.end, progress)

			if test.notFound {
				if !IsNotFound(err) {
					t.Fatalf("Got (%#x, %v), want not found", got, err)
				}
				return
			}

			if err != nil {
				t.Fatalf("Scan: %v", err)
			}

			if got != test.want {
				t.Fatalf("Got %#x, want %#x", got, test.want)
			}
		})
	}
}

func TestScanCancelled(t *testing.T) {
	mem := testonly.NewMemory(t, 0, ScanChunkSize)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Scan(ctx, mem, 0, ScanChunkSize, nil); !errors.Is(err, context.Canceled) {
		t.Fatalf("Got %v, want %v", err, context.Canceled)
	}
}

func TestScanInvalidRange(t *testing.T) {
	mem := testonly.NewMemory(t, 0, 16)

	if _, err := Scan(context.Background(), mem, 8, 8, nil); err == nil || IsNotFound(err) {
		t.Fatalf("Got %v, want invalid range error", err)
	}
}

func TestLocate(t *testing.T) {
	l := Layout64LE
	mem := newTarget(t, l, 1024, 0, 0)

	for _, addr := range []uint64{testCB, 0} {
		cb, err := Locate(context.Background(), mem, addr, testBase, testBase+testSize, l)
		if err != nil {
			t.Fatalf("Locate(%#x): %v", addr, err)
		}

		if got, want := cb.Addr, uint64(testCB); got != want {
			t.Errorf("Locate(%#x): got %#x, want %#x", addr, got, want)
		}
	}
}

func TestPoll(t *testing.T) {
	const storage = "0123456789abcdef"

	for _, test := range []struct {
		name string
		rd   uint32
		wr   uint32
		want string
	}{
		{name: "empty", rd: 5, wr: 5, want: ""},
		{name: "linear", rd: 2, wr: 7, want: "23456"},
		{name: "wrapped", rd: 12, wr: 3, want: "cde012"},
		{name: "wrapped to zero", rd: 10, wr: 0, want: "abcde"},
		{name: "read offset at margin", rd: 15, wr: 4, want: "0123"},
	} {
		t.Run(test.name, func(t *testing.T) {
			l := Layout32LE
			mem := newTarget(t, l, uint32(len(storage)), test.wr, test.rd)
			mem.Put(testBuf, []byte(storage))

			cb, err := Decode(mem, testCB, l)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			r, err := NewReader(mem, cb, 0)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}

			got, err := r.Poll()
			if err != nil {
				t.Fatalf("Poll: %v", err)
			}

			if diff := cmp.Diff(test.want, string(got)); diff != "" {
				t.Fatalf("Got data diff: %s", diff)
			}

			if test.want != "" {
				if got, want := mem.Uint32(readOffsetAddr(l), l.Order), test.wr; got != want {
					t.Errorf("Got committed read offset %d, want %d", got, want)
				}
			}

			if again, err := r.Poll(); err != nil || len(again) != 0 {
				t.Errorf("Second Poll: got (%q, %v), want nothing", again, err)
			}
		})
	}
}

type readOnly struct {
	io.ReaderAt
}

type lockedMemory struct {
	*testonly.Memory
}

func (lockedMemory) WriteAt([]byte, int64) (int, error) {
	return 0, ErrReadOnly
}

func TestPollWithoutCommit(t *testing.T) {
	l := Layout64LE

	for _, test := range []struct {
		name string
		mem  func(*testonly.Memory) io.ReaderAt
	}{
		{
			name: "reader only",
			mem:  func(m *testonly.Memory) io.ReaderAt { return readOnly{m} },
		}, {
			name: "read-only writer",
			mem:  func(m *testonly.Memory) io.ReaderAt { return lockedMemory{m} },
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			m := newTarget(t, l, 16, 6, 1)
			m.Put(testBuf, []byte("0123456789abcdef"))
			mem := test.mem(m)

			cb, err := Decode(mem, testCB, l)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			r, err := NewReader(mem, cb, 0)
			if err != nil {
				t.Fatalf("NewReader: %v", err)
			}

			for i, want := range []string{"12345", ""} {
				got, err := r.Poll()
				if err != nil {
					t.Fatalf("Poll %d: %v", i, err)
				}

				if string(got) != want {
					t.Fatalf("Poll %d: got %q, want %q", i, got, want)
				}
			}

			if got, want := m.Uint32(readOffsetAddr(l), l.Order), uint32(1); got != want {
				t.Errorf("Got read offset %d in target, want %d", got, want)
			}
		})
	}
}

func TestPollCorruptWriteOffset(t *testing.T) {
	l := Layout32LE
	mem := newTarget(t, l, 16, 0, 0)

	cb, err := Decode(mem, testCB, l)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	r, err := NewReader(mem, cb, 0)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	mem.PutUint32(descriptor(l)+12, l.Order, 16)

	var le *LayoutError

	if _, err := r.Poll(); !errors.As(err, &le) {
		t.Fatalf("Got %v, want LayoutError", err)
	}
}

func TestNewReaderInvalidChannel(t *testing.T) {
	l := Layout32LE

	for _, test := range []struct {
		name string
		size uint32
		ch   int
	}{
		{name: "negative index", size: 16, ch: -1},
		{name: "missing channel", size: 16, ch: 1},
		{name: "degenerate storage", size: 1, ch: 0},
	} {
		t.Run(test.name, func(t *testing.T) {
			mem := newTarget(t, l, test.size, 0, 0)

			cb, err := Decode(mem, testCB, l)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}

			if _, err := NewReader(mem, cb, test.ch); err == nil {
				t.Fatal("NewReader: got nil error")
			}
		})
	}
}

func TestSkip(t *testing.T) {
	l := Layout32LE
	mem := newTarget(t, l, 16, 9, 2)

	cb, err := Decode(mem, testCB, l)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	r, err := NewReader(mem, cb, 0)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	if err := r.Skip(); err != nil {
		t.Fatalf("Skip: %v", err)
	}

	if got, err := r.Poll(); err != nil || len(got) != 0 {
		t.Fatalf("Poll after Skip: got (%q, %v), want nothing", got, err)
	}

	if got, want := r.Channel().ReadOffset, uint32(9); got != want {
		t.Fatalf("Got read offset %d, want %d", got, want)
	}
}

type cancelWriter struct {
	strings.Builder
	cancel context.CancelFunc
}

func (w *cancelWriter) Write(p []byte) (int, error) {
	defer w.cancel()
	return w.Builder.Write(p)
}

func TestFollow(t *testing.T) {
	l := Layout32LE
	mem := newTarget(t, l, 16, 7, 2)
	mem.Put(testBuf, []byte("0123456789abcdef"))

	cb, err := Decode(mem, testCB, l)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	r, err := NewReader(mem, cb, 0)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	w := &cancelWriter{cancel: cancel}

	if err := r.Follow(ctx, time.Millisecond, w); !errors.Is(err, context.Canceled) {
		t.Fatalf("Follow: got %v, want %v", err, context.Canceled)
	}

	if got, want := w.String(), "23456"; got != want {
		t.Fatalf("Got %q, want %q", got, want)
	}
}
