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

// Package rtt implements a minimal SEGGER Real Time Transfer (RTT) control
// block with a single, non-blocking, up (target to host) channel.
//
// The control block and its backing storage are statically allocated and
// exported at fixed linker symbols (_SEGGER_RTT, _SEGGER_RTT_BUFFER) so that
// a debug probe can locate and poll them while the target runs.
//
// The writer never consults the reader offset: when the host does not keep
// up, unread data is silently overwritten.
//
// This package is meant to be used with `GOOS=tamago` as supported by the
// TamaGo framework for bare metal Go, see https://github.com/usbarmory/tamago,
// it is however portable and can be exercised on any GOOS.
package rtt

import (
	"sync/atomic"
	"unsafe"
)

// BufferSize is the capacity of the statically allocated channel storage.
const BufferSize = 1024

var channelName = [...]byte{'T', 'e', 'r', 'm', 'i', 'n', 'a', 'l', 0}

//go:linkname buffer _SEGGER_RTT_BUFFER
var buffer [BufferSize]byte

// SeggerRTT is the control block scanned for by the external reader, it holds
// a placeholder identification until Init is called.
//
//go:linkname SeggerRTT _SEGGER_RTT
var SeggerRTT = ControlBlock{
	MaxUpBuffers:   MaxUpBuffers,
	MaxDownBuffers: MaxDownBuffers,
	Up: Buffer{
		Name:  &channelName[0],
		Start: &buffer[0],
		Size:  BufferSize,
	},
}

// NewControlBlock returns a control block describing a channel backed by the
// argument storage, which must not be resized or released while the control
// block is in use. The returned control block is not initialized.
func NewControlBlock(name string, storage []byte) *ControlBlock {
	label := append([]byte(name), 0)

	cb := &ControlBlock{
		MaxUpBuffers:   MaxUpBuffers,
		MaxDownBuffers: MaxDownBuffers,
	}

	cb.Up.Name = &label[0]
	cb.Up.Size = uint32(len(storage))

	if len(storage) > 0 {
		cb.Up.Start = &storage[0]
	}

	return cb
}

// Init initializes the statically allocated control block, see
// ControlBlock.Init.
func Init() {
	SeggerRTT.Init()
}

// Write appends p to the statically allocated channel, see
// ControlBlock.Write.
func Write(p []byte) (int, error) {
	return SeggerRTT.Write(p)
}

// Init makes the control block discoverable by writing its identification
// tag.
//
// The tag is assembled in place from two overlapping fragments, so that the
// complete tag never appears in the read-only data of the firmware image
// where it would be matched by a scan before the channel is live.
//
// Init is idempotent and leaves the channel descriptor untouched.
func (cb *ControlBlock) Init() {
	copy(cb.ID[0:5], "SEGG_")
	copy(cb.ID[4:IDSize], "ER RTT\x00\x00\x00\x00\x00\x00")
}

// Storage returns the channel backing storage.
func (cb *ControlBlock) Storage() []byte {
	if cb.Up.Start == nil {
		return nil
	}

	return unsafe.Slice(cb.Up.Start, cb.Up.Size)
}

// step copies as much of p as fits between the write offset and the last
// byte of the storage, which is never written. The write offset wraps to
// zero once it reaches Size-1.
func (cb *ControlBlock) step(p []byte) int {
	buf := cb.Storage()

	if len(buf) < 2 {
		return 0
	}

	end := uint32(len(buf) - 1)
	off := atomic.LoadUint32(&cb.Up.WriteOffset)

	if off >= end {
		off = 0
	}

	n := copy(buf[off:end], p)
	off += uint32(n)

	if off >= end {
		off = 0
	}

	// the reader must observe the data before the new offset
	atomic.StoreUint32(&cb.Up.WriteOffset, off)

	return n
}

// Write appends p to the channel, wrapping around as many times as needed.
// It never blocks and never fails, unread data is overwritten when the host
// does not keep up. Write always returns len(p) and a nil error.
//
// Write is not safe for concurrent use, callers must serialize access (see
// package irq).
func (cb *ControlBlock) Write(p []byte) (int, error) {
	for rest := p; len(rest) > 0; {
		n := cb.step(rest)

		if n == 0 {
			break
		}

		rest = rest[n:]
	}

	return len(p), nil
}

// WriteString is like Write but takes a string.
func (cb *ControlBlock) WriteString(s string) (int, error) {
	return cb.Write(unsafe.Slice(unsafe.StringData(s), len(s)))
}

// WriteByte appends a single byte to the channel.
func (cb *ControlBlock) WriteByte(c byte) error {
	b := [1]byte{c}
	_, err := cb.Write(b[:])
	return err
}
