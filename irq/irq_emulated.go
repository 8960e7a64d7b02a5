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

//go:build !(tamago && riscv64)

package irq

import (
	"sync"
	"sync/atomic"

	"github.com/usbarmory/tamago/bits"
)

var (
	// mu is held for the duration of a section
	mu sync.Mutex
	// mstatus emulates the machine status register
	mstatus uint32 = 1 << MSTATUS_MIE
)

func disable() uint32 {
	mu.Lock()

	prior := atomic.LoadUint32(&mstatus)
	s := prior
	bits.Clear(&s, MSTATUS_MIE)
	atomic.StoreUint32(&mstatus, s)

	return prior
}

func enable() {
	s := atomic.LoadUint32(&mstatus)
	bits.Set(&s, MSTATUS_MIE)
	atomic.StoreUint32(&mstatus, s)

	mu.Unlock()
}

func release() {
	mu.Unlock()
}

func status() uint32 {
	return atomic.LoadUint32(&mstatus)
}
