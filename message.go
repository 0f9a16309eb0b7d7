// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"bytes"
	"fmt"

	"github.com/fido-device-onboard/go-fdo/cbor"
)

// maxMessageNameSize is large enough for every message name the module
// writes, including the terminating zero byte.
const maxMessageNameSize = 16

// Kind enumerates the messages the module may have queued for the next
// device service info round.
type Kind int

// Message kinds. KindExit is terminal: it is forced by any failed round and
// never encodes to the wire.
const (
	KindNone Kind = iota
	KindDone
	KindExitCode
	KindExit
)

// messageName returns the service info message name for kinds that encode
// to the wire.
func (k Kind) messageName() string {
	switch k {
	case KindDone:
		return "done"
	case KindExitCode:
		return "exitcode"
	}
	return ""
}

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindDone:
		return "done"
	case KindExitCode:
		return "exitcode"
	case KindExit:
		return "exit"
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// encodeMessage copies the kind's message name, including a terminating
// zero byte, into the caller-supplied fixed-size name buffer and encodes
// val as a CBOR signed integer into the session write stream. A failed
// serialization is fatal for the round; no partial write is retried.
func encodeMessage(s *session, kind Kind, name []byte, val int64) error {
	tag := kind.messageName()
	if tag == "" {
		return fmt.Errorf("%w: kind %s has no message encoding", ErrInvalidArgument, kind)
	}
	if kind == KindDone && val < 0 {
		return fmt.Errorf("%w: negative transfer byte count %d", ErrInvalidArgument, val)
	}
	if len(name) < len(tag)+1 {
		return fmt.Errorf("%w: message name buffer holds %d bytes, %q needs %d",
			ErrInvalidArgument, len(name), tag, len(tag)+1)
	}
	name[copy(name, tag)] = 0
	if err := cbor.NewEncoder(s.w).Encode(val); err != nil {
		return fmt.Errorf("%w: %q value: %v", ErrEncode, tag, err)
	}
	return nil
}

// messageNameString reads a zero-terminated message name back from a fixed
// buffer.
func messageNameString(name []byte) string {
	if i := bytes.IndexByte(name, 0); i >= 0 {
		return string(name[:i])
	}
	return string(name)
}
