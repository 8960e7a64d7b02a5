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
	"debug/elf"
	"encoding/binary"
	"fmt"
	"sort"
)

// Firmware symbol names.
const (
	ControlBlockSymbol = "_SEGGER_RTT"
	BufferSymbol       = "_SEGGER_RTT_BUFFER"
	FaultRecordSymbol  = "_BLASH_BACKTRACE_TRIGGER"
)

// Symbol represents a firmware symbol.
type Symbol struct {
	Name string
	Addr uint64
	Size uint64
}

// Firmware holds the information extracted from a firmware ELF image.
type Firmware struct {
	Layout Layout

	objects map[string]Symbol
	funcs   []Symbol
}

// LoadELF parses the firmware ELF image at path.
func LoadELF(path string) (*Firmware, error) {
	f, err := elf.Open(path)

	if err != nil {
		return nil, err
	}
	defer f.Close()

	return NewFirmware(f)
}

// NewFirmware extracts the target layout and symbol table of an ELF file.
func NewFirmware(f *elf.File) (*Firmware, error) {
	fw := &Firmware{
		objects: make(map[string]Symbol),
	}

	switch f.Class {
	case elf.ELFCLASS32:
		fw.Layout.PtrSize = 4
	case elf.ELFCLASS64:
		fw.Layout.PtrSize = 8
	default:
		return nil, fmt.Errorf("unsupported ELF class %v", f.Class)
	}

	switch f.Data {
	case elf.ELFDATA2LSB:
		fw.Layout.Order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		fw.Layout.Order = binary.BigEndian
	default:
		return nil, fmt.Errorf("unsupported ELF data encoding %v", f.Data)
	}

	syms, err := f.Symbols()

	if err != nil {
		return nil, fmt.Errorf("could not read symbols: %v", err)
	}

	for _, s := range syms {
		sym := Symbol{Name: s.Name, Addr: s.Value, Size: s.Size}

		switch elf.ST_TYPE(s.Info) {
		case elf.STT_FUNC:
			if sym.Size > 0 {
				fw.funcs = append(fw.funcs, sym)
			}
		case elf.STT_OBJECT, elf.STT_NOTYPE:
			if s.Name != "" {
				fw.objects[s.Name] = sym
			}
		}
	}

	sort.Slice(fw.funcs, func(i, j int) bool {
		return fw.funcs[i].Addr < fw.funcs[j].Addr
	})

	return fw, nil
}

// Address returns the address of a data symbol.
func (fw *Firmware) Address(name string) (uint64, error) {
	s, ok := fw.objects[name]

	if !ok {
		return 0, fmt.Errorf("symbol %s not found", name)
	}

	return s.Addr, nil
}

// Lookup returns the function containing pc.
func (fw *Firmware) Lookup(pc uint64) (Symbol, bool) {
	i := sort.Search(len(fw.funcs), func(i int) bool {
		return fw.funcs[i].Addr > pc
	})

	if i == 0 {
		return Symbol{}, false
	}

	s := fw.funcs[i-1]

	if pc >= s.Addr+s.Size {
		return Symbol{}, false
	}

	return s, true
}
