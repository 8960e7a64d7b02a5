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
	"os"
)

// Image represents a target memory image (e.g. a RAM dump or a QEMU
// memory-backend-file) mapped at a base address.
type Image struct {
	f        *os.File
	base     uint64
	size     uint64
	writable bool
}

// OpenImage opens the file at path as target memory starting at base, when
// writable is set the channel read offset can be committed to it.
func OpenImage(path string, base uint64, writable bool) (*Image, error) {
	flag := os.O_RDONLY

	if writable {
		flag = os.O_RDWR
	}

	f, err := os.OpenFile(path, flag, 0)

	if err != nil {
		return nil, err
	}

	fi, err := f.Stat()

	if err != nil {
		f.Close()
		return nil, err
	}

	return &Image{
		f:        f,
		base:     base,
		size:     uint64(fi.Size()),
		writable: writable,
	}, nil
}

// Base returns the address of the first image byte.
func (img *Image) Base() uint64 {
	return img.base
}

// End returns the address following the last image byte.
func (img *Image) End() uint64 {
	return img.base + img.size
}

func (img *Image) offset(addr int64, n int) (int64, error) {
	a := uint64(addr)

	if addr < 0 || a < img.base || a+uint64(n) < a {
		return 0, fmt.Errorf("address %#x outside image (%#x-%#x)", a, img.base, img.End())
	}

	return int64(a - img.base), nil
}

// ReadAt implements io.ReaderAt over target addresses.
func (img *Image) ReadAt(p []byte, addr int64) (int, error) {
	off, err := img.offset(addr, len(p))

	if err != nil {
		return 0, err
	}

	return img.f.ReadAt(p, off)
}

// WriteAt implements io.WriterAt over target addresses.
func (img *Image) WriteAt(p []byte, addr int64) (int, error) {
	if !img.writable {
		return 0, ErrReadOnly
	}

	off, err := img.offset(addr, len(p))

	if err != nil {
		return 0, err
	}

	if uint64(off)+uint64(len(p)) > img.size {
		return 0, fmt.Errorf("write at %#x beyond image end", uint64(addr))
	}

	return img.f.WriteAt(p, off)
}

// Close closes the underlying file.
func (img *Image) Close() error {
	return img.f.Close()
}
