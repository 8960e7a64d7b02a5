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

// Package testonly provides support for target memory tests.
package testonly

import (
	"encoding/binary"
	"fmt"
	"io"
	"testing"
)

// Memory is a simple in-memory target address space starting at Base.
type Memory struct {
	Base    uint64
	Storage []byte

	// OnWrite is called just after bytes have been written at addr.
	OnWrite func(addr uint64, n int)
}

// NewMemory creates a new in-memory address space of size bytes mapped at
// base.
func NewMemory(t *testing.T, base uint64, size int) *Memory {
	t.Helper()
	return &Memory{Base: base, Storage: make([]byte, size)}
}

func (m *Memory) offset(addr int64) (uint64, error) {
	a := uint64(addr)

	if addr < 0 || a < m.Base {
		return 0, fmt.Errorf("address (%#x) < base (%#x)", a, m.Base)
	}

	return a - m.Base, nil
}

// ReadAt reads len(b) bytes at the given address, reads beyond the end of
// storage are truncated and return io.EOF.
func (m *Memory) ReadAt(b []byte, addr int64) (int, error) {
	off, err := m.offset(addr)

	if err != nil {
		return 0, err
	}

	if off >= uint64(len(m.Storage)) {
		return 0, io.EOF
	}

	n := copy(b, m.Storage[off:])

	if n < len(b) {
		return n, io.EOF
	}

	return n, nil
}

// WriteAt writes b at the given address.
func (m *Memory) WriteAt(b []byte, addr int64) (int, error) {
	off, err := m.offset(addr)

	if err != nil {
		return 0, err
	}

	if off+uint64(len(b)) > uint64(len(m.Storage)) {
		return 0, fmt.Errorf("write at %#x (%d bytes) beyond end of memory", uint64(addr), len(b))
	}

	n := copy(m.Storage[off:], b)

	if m.OnWrite != nil {
		m.OnWrite(uint64(addr), n)
	}

	return n, nil
}

// Put copies b at addr, panicking on out of range addresses.
func (m *Memory) Put(addr uint64, b []byte) {
	copy(m.Storage[addr-m.Base:], b)
}

// PutUint32 stores v at addr.
func (m *Memory) PutUint32(addr uint64, order binary.ByteOrder, v uint32) {
	order.PutUint32(m.Storage[addr-m.Base:], v)
}

// PutPtr stores a pointer of the given size at addr.
func (m *Memory) PutPtr(addr uint64, order binary.ByteOrder, size int, v uint64) {
	if size == 4 {
		order.PutUint32(m.Storage[addr-m.Base:], uint32(v))
		return
	}

	order.PutUint64(m.Storage[addr-m.Base:], v)
}

// Uint32 returns the value stored at addr.
func (m *Memory) Uint32(addr uint64, order binary.ByteOrder) uint32 {
	return order.Uint32(m.Storage[addr-m.Base:])
}
