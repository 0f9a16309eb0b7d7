// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"fmt"
	"io"
)

// block is a fixed-capacity frame buffer backing one CBOR stream. Unlike
// bytes.Buffer it never grows: a write past capacity fails so that an
// oversized frame surfaces as an encode error instead of exceeding the
// negotiated maximum.
type block struct {
	data []byte
	n    int
}

func newBlock(size int) *block { return &block{data: make([]byte, size)} }

// Write implements io.Writer.
func (b *block) Write(p []byte) (int, error) {
	if b.n+len(p) > len(b.data) {
		return 0, io.ErrShortBuffer
	}
	b.n += copy(b.data[b.n:], p)
	return len(p), nil
}

// Reset discards buffered bytes without releasing capacity.
func (b *block) Reset() { b.n = 0 }

// Bytes returns the buffered frame. The slice is only valid until the next
// Reset.
func (b *block) Bytes() []byte { return b.data[:b.n] }

// Len returns the length of the buffered frame.
func (b *block) Len() int { return b.n }

// copyFull copies src into dst, failing rather than truncating when dst is
// too small.
func copyFull(dst, src []byte) error {
	if dst == nil {
		return fmt.Errorf("%w: nil destination buffer", ErrInvalidArgument)
	}
	if len(src) > len(dst) {
		return fmt.Errorf("%w: need %d bytes, have %d", ErrBufferTooSmall, len(src), len(dst))
	}
	copy(dst, src)
	return nil
}
