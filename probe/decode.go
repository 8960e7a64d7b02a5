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
	"context"
	"errors"
	"fmt"
	"io"
)

// Channel describes an RTT channel as found in target memory.
type Channel struct {
	// Addr is the address of the channel descriptor.
	Addr uint64

	Name     string
	NameAddr uint64

	Start       uint64
	Size        uint32
	WriteOffset uint32
	ReadOffset  uint32
	Flags       uint32
}

// ControlBlock describes an RTT control block as found in target memory.
type ControlBlock struct {
	Addr   uint64
	Layout Layout

	ID             [idSize]byte
	MaxUpBuffers   int32
	MaxDownBuffers int32

	Up   []Channel
	Down []Channel
}

// readFull reads len(b) bytes at addr.
func readFull(mem io.ReaderAt, addr uint64, b []byte) error {
	n, err := mem.ReadAt(b, int64(addr))

	if n == len(b) {
		return nil
	}

	if err == nil {
		err = io.ErrUnexpectedEOF
	}

	return fmt.Errorf("could not read %d bytes at %#x: %v", len(b), addr, err)
}

// Decode decodes the control block located at addr.
func Decode(mem io.ReaderAt, addr uint64, l Layout) (cb *ControlBlock, err error) {
	if err = l.Validate(); err != nil {
		return
	}

	hdr := make([]byte, l.headerSize())

	if err = readFull(mem, addr, hdr); err != nil {
		return
	}

	if !bytes.HasPrefix(hdr, Magic) {
		return nil, fmt.Errorf("%w at %#x", ErrNotFound, addr)
	}

	cb = &ControlBlock{
		Addr:           addr,
		Layout:         l,
		MaxUpBuffers:   int32(l.Order.Uint32(hdr[idSize:])),
		MaxDownBuffers: int32(l.Order.Uint32(hdr[idSize+4:])),
	}

	copy(cb.ID[:], hdr)

	if n := cb.MaxUpBuffers; n < 0 || n > maxChannels {
		return nil, &LayoutError{Addr: addr + idSize, Field: "up channel count", Value: uint64(uint32(n))}
	}

	if n := cb.MaxDownBuffers; n < 0 || n > maxChannels {
		return nil, &LayoutError{Addr: addr + idSize + 4, Field: "down channel count", Value: uint64(uint32(n))}
	}

	next := addr + uint64(l.headerSize())

	for i := int32(0); i < cb.MaxUpBuffers; i++ {
		ch, err := decodeChannel(mem, next, l)

		if err != nil {
			return nil, fmt.Errorf("up channel %d: %w", i, err)
		}

		cb.Up = append(cb.Up, *ch)
		next += uint64(l.descriptorSize())
	}

	for i := int32(0); i < cb.MaxDownBuffers; i++ {
		ch, err := decodeChannel(mem, next, l)

		if err != nil {
			return nil, fmt.Errorf("down channel %d: %w", i, err)
		}

		cb.Down = append(cb.Down, *ch)
		next += uint64(l.descriptorSize())
	}

	return
}

func decodeChannel(mem io.ReaderAt, addr uint64, l Layout) (*Channel, error) {
	b := make([]byte, l.descriptorSize())

	if err := readFull(mem, addr, b); err != nil {
		return nil, err
	}

	p := l.PtrSize

	ch := &Channel{
		Addr:        addr,
		NameAddr:    l.ptr(b[0:]),
		Start:       l.ptr(b[p:]),
		Size:        l.Order.Uint32(b[2*p:]),
		WriteOffset: l.Order.Uint32(b[2*p+4:]),
		ReadOffset:  l.Order.Uint32(b[2*p+8:]),
		Flags:       l.Order.Uint32(b[2*p+12:]),
	}

	if err := ch.validate(); err != nil {
		return nil, err
	}

	name, err := readString(mem, ch.NameAddr)

	if err != nil {
		return nil, err
	}

	ch.Name = name

	return ch, nil
}

func (ch *Channel) validate() error {
	switch {
	case ch.Size > 0 && ch.Start == 0:
		return &LayoutError{Addr: ch.Addr, Field: "buffer start", Value: ch.Start}
	case ch.Size > 0 && ch.WriteOffset >= ch.Size:
		return &LayoutError{Addr: ch.Addr, Field: "write offset", Value: uint64(ch.WriteOffset)}
	case ch.Size > 0 && ch.ReadOffset >= ch.Size:
		return &LayoutError{Addr: ch.Addr, Field: "read offset", Value: uint64(ch.ReadOffset)}
	}

	return nil
}

// readString reads a NUL terminated string of at most maxNameLength bytes,
// reads truncated by the end of target memory are tolerated.
func readString(mem io.ReaderAt, addr uint64) (string, error) {
	if addr == 0 {
		return "", nil
	}

	b := make([]byte, maxNameLength)
	n, err := mem.ReadAt(b, int64(addr))

	if n == 0 && err != nil {
		return "", fmt.Errorf("could not read name at %#x: %v", addr, err)
	}

	b = b[:n]

	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}

	return string(b), nil
}

// Locate decodes the control block at addr if non-zero, otherwise it scans
// [start, end) for it.
func Locate(ctx context.Context, mem io.ReaderAt, addr, start, end uint64, l Layout) (*ControlBlock, error) {
	if addr != 0 {
		return Decode(mem, addr, l)
	}

	found, err := Scan(ctx, mem, start, end, nil)

	if err != nil {
		return nil, err
	}

	return Decode(mem, found, l)
}

// IsNotFound reports whether err indicates a missing control block.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
