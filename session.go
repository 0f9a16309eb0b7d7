// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import "fmt"

// session owns the CBOR read and write streams for the lifetime of one
// onboarding session. Each stream is backed by a fixed-capacity block that
// is reset, not reallocated, between encode operations.
type session struct {
	r *block
	w *block
}

func newSession(size int) (*session, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: non-positive stream buffer size %d", ErrResource, size)
	}
	return &session{r: newBlock(size), w: newBlock(size)}, nil
}

// resetWriter prepares the write stream for encoding a new frame.
func (s *session) resetWriter() { s.w.Reset() }

// stage buffers a received binary payload chunk in the read stream,
// replacing the previous chunk. The stream only ever holds one MTU-bounded
// frame at a time, so a simulated transfer may be arbitrarily large;
// cumulative progress is tracked by the round state's transfer cursor.
func (s *session) stage(chunk []byte) error {
	s.r.Reset()
	if _, err := s.r.Write(chunk); err != nil {
		return fmt.Errorf("%w: staging %d payload bytes", ErrBufferTooSmall, len(chunk))
	}
	return nil
}

// close flushes and releases both streams. References are nil'd as they are
// released, so a second close is a no-op.
func (s *session) close() {
	if s.w != nil {
		s.w.Reset()
		s.w = nil
	}
	if s.r != nil {
		s.r.Reset()
		s.r = nil
	}
}
