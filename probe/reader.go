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
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"k8s.io/klog/v2"
)

// ErrReadOnly is returned by memory backends which cannot be written, a
// Reader stops committing its read offset to the target when it sees it.
var ErrReadOnly = errors.New("read-only target memory")

// Reader drains an up channel.
//
// The reader keeps its own read position, initialized from the channel read
// offset, and commits it back to the target after each read when the target
// memory implements io.WriterAt.
type Reader struct {
	mem    io.ReaderAt
	layout Layout
	ch     Channel

	pos    uint32
	commit bool
}

// NewReader returns a reader for the up channel with index ch of the
// argument control block.
func NewReader(mem io.ReaderAt, cb *ControlBlock, ch int) (*Reader, error) {
	if ch < 0 || ch >= len(cb.Up) {
		return nil, fmt.Errorf("invalid up channel %d (%d available)", ch, len(cb.Up))
	}

	c := cb.Up[ch]

	if c.Size < 2 {
		return nil, &LayoutError{Addr: c.Addr, Field: "buffer size", Value: uint64(c.Size)}
	}

	_, writable := mem.(io.WriterAt)

	return &Reader{
		mem:    mem,
		layout: cb.Layout,
		ch:     c,
		pos:    c.ReadOffset,
		commit: writable,
	}, nil
}

// Channel returns the channel descriptor as of the last Poll.
func (r *Reader) Channel() Channel {
	return r.ch
}

// Skip discards all unread data.
func (r *Reader) Skip() error {
	w, err := r.writeOffset()

	if err != nil {
		return err
	}

	r.pos = w

	return r.commitOffset()
}

func (r *Reader) writeOffset() (uint32, error) {
	b := make([]byte, 4)
	addr := r.ch.Addr + uint64(2*r.layout.PtrSize) + 4

	if err := readFull(r.mem, addr, b); err != nil {
		return 0, err
	}

	w := r.layout.Order.Uint32(b)

	if w >= r.ch.Size {
		return 0, &LayoutError{Addr: addr, Field: "write offset", Value: uint64(w)}
	}

	r.ch.WriteOffset = w

	return w, nil
}

func (r *Reader) commitOffset() error {
	if !r.commit {
		return nil
	}

	b := make([]byte, 4)
	r.layout.Order.PutUint32(b, r.pos)

	addr := r.ch.Addr + uint64(2*r.layout.PtrSize) + 8

	if _, err := r.mem.(io.WriterAt).WriteAt(b, int64(addr)); err != nil {
		if errors.Is(err, ErrReadOnly) {
			klog.V(1).Infof("read offset not committed: %v", err)
			r.commit = false
			return nil
		}

		return fmt.Errorf("could not commit read offset: %v", err)
	}

	r.ch.ReadOffset = r.pos

	return nil
}

// Poll returns the data written to the channel since the previous call.
//
// The last byte of the channel storage is never written by the target, the
// write offset wraps at Size-1 and so does the reader.
func (r *Reader) Poll() ([]byte, error) {
	w, err := r.writeOffset()

	if err != nil {
		return nil, err
	}

	span := r.ch.Size - 1

	if r.pos >= span {
		r.pos = 0
	}

	if w == r.pos {
		return nil, nil
	}

	var buf []byte

	if w > r.pos {
		buf = make([]byte, w-r.pos)

		if err = readFull(r.mem, r.ch.Start+uint64(r.pos), buf); err != nil {
			return nil, err
		}
	} else {
		head := span - r.pos
		buf = make([]byte, head+w)

		if err = readFull(r.mem, r.ch.Start+uint64(r.pos), buf[:head]); err != nil {
			return nil, err
		}

		if err = readFull(r.mem, r.ch.Start, buf[head:]); err != nil {
			return nil, err
		}
	}

	r.pos = w

	return buf, r.commitOffset()
}

// Follow polls the channel at the argument interval and copies its data to
// w until the context is done.
func (r *Reader) Follow(ctx context.Context, interval time.Duration, w io.Writer) error {
	t := time.NewTicker(interval)
	defer t.Stop()

	for {
		buf, err := r.Poll()

		if err != nil {
			return err
		}

		if len(buf) > 0 {
			if _, err = w.Write(buf); err != nil {
				return err
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
}
