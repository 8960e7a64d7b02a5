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

package rtt

import (
	"unsafe"
)

const (
	// IDSize is the length of the identification field which prefixes the
	// control block.
	IDSize = 16

	// MaxUpBuffers is the number of target to host channels.
	MaxUpBuffers = 1
	// MaxDownBuffers is the number of host to target channels.
	MaxDownBuffers = 0
)

// Buffer describes a single RTT channel.
//
// The producer (firmware) owns WriteOffset, the external reader owns
// ReadOffset. The firmware never reads nor writes ReadOffset.
type Buffer struct {
	// Name points to a NUL terminated channel label.
	Name *byte
	// Start points to the channel backing storage.
	Start *byte
	// Size is the capacity of the backing storage.
	Size uint32
	// WriteOffset is the position of the next byte to be written.
	WriteOffset uint32
	// ReadOffset is the position of the next byte to be read by the host.
	ReadOffset uint32
	// Flags selects the channel operating mode, always zero (non-blocking,
	// no flow control).
	Flags uint32
}

// ControlBlock is the root structure located in target memory by the
// external reader.
type ControlBlock struct {
	// ID holds the identification tag once initialized.
	ID [IDSize]byte
	// MaxUpBuffers is the number of up channels following the header.
	MaxUpBuffers int32
	// MaxDownBuffers is the number of down channels following the up ones.
	MaxDownBuffers int32
	// Up is the only target to host channel.
	Up Buffer
}

const ptrSize = unsafe.Sizeof(uintptr(0))

// Layout offsets expected by the external reader.
const (
	OffsetID             = 0
	OffsetMaxUpBuffers   = IDSize
	OffsetMaxDownBuffers = IDSize + 4
	OffsetUp             = IDSize + 8

	OffsetName        = 0
	OffsetStart       = ptrSize
	OffsetSize        = 2 * ptrSize
	OffsetWriteOffset = 2*ptrSize + 4
	OffsetReadOffset  = 2*ptrSize + 8
	OffsetFlags       = 2*ptrSize + 12

	BufferDescriptorSize = 2*ptrSize + 16
	ControlBlockSize     = OffsetUp + BufferDescriptorSize
)

// compile time layout checks
var (
	_ = [1]struct{}{}[unsafe.Offsetof(ControlBlock{}.ID)-OffsetID]
	_ = [1]struct{}{}[unsafe.Offsetof(ControlBlock{}.MaxUpBuffers)-OffsetMaxUpBuffers]
	_ = [1]struct{}{}[unsafe.Offsetof(ControlBlock{}.MaxDownBuffers)-OffsetMaxDownBuffers]
	_ = [1]struct{}{}[unsafe.Offsetof(ControlBlock{}.Up)-OffsetUp]
	_ = [1]struct{}{}[unsafe.Sizeof(ControlBlock{})-ControlBlockSize]

	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.Name)-OffsetName]
	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.Start)-OffsetStart]
	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.Size)-OffsetSize]
	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.WriteOffset)-OffsetWriteOffset]
	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.ReadOffset)-OffsetReadOffset]
	_ = [1]struct{}{}[unsafe.Offsetof(Buffer{}.Flags)-OffsetFlags]
	_ = [1]struct{}{}[unsafe.Sizeof(Buffer{})-BufferDescriptorSize]
)
