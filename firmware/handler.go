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
	"github.com/usbarmory/tamago/soc/sifive/fu540"

	"github.com/transparency-dev/armored-rtt/fault"
)

// defined in handler_riscv64.s
func read_mcause() uint64
func read_mepc() uint64
func read_sp() uint64
func illegal()

// exceptionHandler replaces the TamaGo default machine exception handler,
// it never returns.
//
// The stack pointer is sampled on handler entry and therefore points within
// the frame of the trapped context rather than at its exact top.
func exceptionHandler() {
	fault.Exception(read_mcause(), read_mepc(), read_sp())
}

func configureExceptionHandler() {
	fu540.RV64.SetExceptionHandler(exceptionHandler)
}
