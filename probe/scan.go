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
	"fmt"
	"io"
)

// ScanChunkSize is the size of each read performed by Scan.
const ScanChunkSize = 64 * 1024

// Scan searches [start, end) for the control block identification tag and
// returns the address of its first occurrence.
//
// The progress function, when not nil, is invoked after each chunk with the
// number of bytes scanned so far. Reaching the end of target memory before
// end is not an error.
func Scan(ctx context.Context, mem io.ReaderAt, start, end uint64, progress func(uint64)) (uint64, error) {
	if end <= start {
		return 0, fmt.Errorf("invalid scan range %#x-%#x", start, end)
	}

	overlap := uint64(len(Magic) - 1)
	buf := make([]byte, ScanChunkSize+overlap)

	for addr := start; addr < end; addr += ScanChunkSize {
		if err := ctx.Err(); err != nil {
			return 0, err
		}

		size := uint64(len(buf))

		if addr+size > end {
			size = end - addr
		}

		n, err := mem.ReadAt(buf[:size], int64(addr))

		if i := bytes.Index(buf[:n], Magic); i >= 0 {
			return addr + uint64(i), nil
		}

		if progress != nil {
			done := addr + ScanChunkSize - start

			if done > end-start {
				done = end - start
			}

			progress(done)
		}

		if err != nil || uint64(n) < size {
			break
		}
	}

	return 0, fmt.Errorf("%w in %#x-%#x", ErrNotFound, start, end)
}
