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

package fault

// Cause is the exception code held in the low byte of the RISC-V mcause
// register.
type Cause uint8

// p40, Table 3.6 - Machine cause register (mcause) values after trap,
// The RISC-V Instruction Set Manual Volume II: Privileged Architecture
const (
	InstructionAddressMisaligned Cause = iota
	InstructionAccessFault
	IllegalInstruction
	Breakpoint
	LoadAddressMisaligned
	LoadAccessFault
	StoreAddressMisaligned
	StoreAccessFault
	EnvironmentCallFromU
	EnvironmentCallFromS
	_
	EnvironmentCallFromM
	InstructionPageFault
	LoadPageFault
	_
	StorePageFault
)

var causeText = [...]string{
	InstructionAddressMisaligned: "Instruction address misaligned",
	InstructionAccessFault:       "Instruction access fault",
	IllegalInstruction:           "Illegal instruction",
	Breakpoint:                   "Breakpoint",
	LoadAddressMisaligned:        "Load address misaligned",
	LoadAccessFault:              "Load access fault",
	StoreAddressMisaligned:       "Store/AMO address misaligned",
	StoreAccessFault:             "Store/AMO access fault",
	EnvironmentCallFromU:         "Environment call from U-mode",
	EnvironmentCallFromS:         "Environment call from S-mode",
	10:                           "Reserved",
	EnvironmentCallFromM:         "Environment call from M-mode",
	InstructionPageFault:         "Instruction page fault",
	LoadPageFault:                "Load page fault",
	14:                           "Reserved",
	StorePageFault:               "Store/AMO page fault",
}

// CauseOf extracts the exception code from an mcause register value.
func CauseOf(mcause uint64) Cause {
	return Cause(mcause & 0xff)
}

// String returns the exception description, codes outside the standard
// table are reported as "Unknown".
func (c Cause) String() string {
	if int(c) < len(causeText) {
		return causeText[c]
	}

	return "Unknown"
}
