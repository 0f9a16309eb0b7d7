// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"errors"

	"github.com/fido-device-onboard/go-fdo/protocol"
)

// Sentinel errors returned by module entry points. Hosts should match them
// with errors.Is and may map a failed round to a wire error via ErrorCode.
var (
	// ErrInvalidArgument indicates a nil or undersized caller-supplied
	// buffer or output pointer.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidState indicates the host called an entry point out of
	// protocol order, such as fetching service info when none is queued.
	ErrInvalidState = errors.New("invalid module state")

	// ErrLogic indicates a fetch was performed while no message kind was
	// ever queued. The pending-message precondition makes this unreachable
	// for a conforming host.
	ErrLogic = errors.New("no message kind queued")

	// ErrBufferTooSmall indicates an encoded frame did not fit the
	// caller-supplied buffer. Frames are never silently truncated.
	ErrBufferTooSmall = errors.New("buffer too small for encoded frame")

	// ErrEncode indicates the CBOR serialization primitive failed, most
	// commonly due to write stream exhaustion. Partial writes are not
	// retried; the round is fatal.
	ErrEncode = errors.New("service info encoding failed")

	// ErrResource indicates session stream allocation failed at start.
	ErrResource = errors.New("session allocation failed")
)

// Status is the three-value result set exposed to a host module dispatch
// table.
type Status int

// Host-visible statuses.
const (
	StatusSuccess Status = iota
	StatusContentError
	StatusInternalError
)

// String implements fmt.Stringer.
func (s Status) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusContentError:
		return "content error"
	case StatusInternalError:
		return "internal error"
	}
	return "unknown status"
}

// StatusOf classifies an error returned by any module entry point. Only
// caller-supplied bad arguments are content errors; a copy or encode
// overflow mid-round is an internal failure.
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusSuccess
	case errors.Is(err, ErrInvalidArgument):
		return StatusContentError
	default:
		return StatusInternalError
	}
}

// ErrorCode maps a module entry point error to the FDO error code to use
// when emitting an ErrorMessage for the failed TO2 session.
func ErrorCode(err error) uint16 {
	if StatusOf(err) == StatusContentError {
		return protocol.MessageBodyErrCode
	}
	return protocol.InternalServerErrCode
}
