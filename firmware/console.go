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

//go:build tamago && riscv64

package main

import (
	_ "unsafe"

	"github.com/transparency-dev/armored-rtt/console"
	"github.com/transparency-dev/armored-rtt/irq"
)

// The runtime printk function, responsible for all console logging
// operations (i.e. stdout/stderr and runtime error reports), is overridden
// to send its output to the RTT channel rather than the board UART.
//
// Output is buffered until a newline so that lines from different contexts
// do not interleave on the channel.

const (
	outputLimit = 256
	flushChr    = 0x0a // \n
)

var (
	line [outputLimit]byte
	pos  int
)

//go:linkname printk runtime.printk
func printk(c byte) {
	irq.Section(func() {
		line[pos] = c
		pos++

		if c == flushChr || pos == outputLimit {
			console.Writer().Write(line[:pos])
			pos = 0
		}
	})
}
