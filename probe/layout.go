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

// Package probe implements the host side of the RTT channel and fault
// capture record: it locates and decodes them in target memory, drains the
// channel and reconstructs a partial backtrace after a fault.
//
// Target memory is accessed through io.ReaderAt (and io.WriterAt, when the
// read offset can be committed back to the target) where offsets are
// absolute target addresses, which allows the same code to work on memory
// dumps, QEMU shared memory backends or a live debug probe.
package probe

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unsafe"
)

// Magic is the identification tag of an initialized control block.
var Magic = []byte("SEGGER RTT")

const (
	idSize = 16
	// maxChannels bounds the channel counts accepted when decoding.
	maxChannels = 16
	// maxNameLength bounds channel name strings.
	maxNameLength = 32
)

// ErrNotFound is returned when no control block can be located.
var ErrNotFound = errors.New("control block not found")

// Layout describes the target data model.
type Layout struct {
	// PtrSize is the target pointer size in bytes.
	PtrSize int
	// Order is the target byte order.
	Order binary.ByteOrder
}

var (
	// Layout32LE is the layout of 32-bit little endian targets (e.g. RV32,
	// Cortex-M).
	Layout32LE = Layout{PtrSize: 4, Order: binary.LittleEndian}
	// Layout64LE is the layout of 64-bit little endian targets (e.g. RV64).
	Layout64LE = Layout{PtrSize: 8, Order: binary.LittleEndian}
)

// NativeLayout returns the layout of the host.
func NativeLayout() Layout {
	return Layout{
		PtrSize: int(unsafe.Sizeof(uintptr(0))),
		Order:   binary.NativeEndian,
	}
}

// Validate checks that the layout is supported.
func (l Layout) Validate() error {
	if l.PtrSize != 4 && l.PtrSize != 8 {
		return fmt.Errorf("invalid layout: unsupported pointer size %d", l.PtrSize)
	}

	if l.Order == nil {
		return errors.New("invalid layout: missing byte order")
	}

	return nil
}

func (l Layout) String() string {
	return fmt.Sprintf("%d-bit %s", l.PtrSize*8, l.Order)
}

// descriptorSize returns the size of a channel descriptor.
func (l Layout) descriptorSize() int {
	return 2*l.PtrSize + 16
}

// headerSize returns the size of the control block header which precedes
// the channel descriptors.
func (l Layout) headerSize() int {
	return idSize + 8
}

// ptr decodes a target pointer.
func (l Layout) ptr(b []byte) uint64 {
	if l.PtrSize == 4 {
		return uint64(l.Order.Uint32(b))
	}

	return l.Order.Uint64(b)
}

// LayoutError reports target memory contents which do not match the
// expected layout.
type LayoutError struct {
	Addr  uint64
	Field string
	Value uint64
}

func (e *LayoutError) Error() string {
	return fmt.Sprintf("invalid %s (%#x) at %#x", e.Field, e.Value, e.Addr)
}
