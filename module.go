// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

import (
	"context"
	"fmt"
	"log/slog"
)

// ModuleName is the service info module name the simulated exchange is
// registered under.
const ModuleName = "fdo.sim"

// DefaultMaxServiceInfoSize bounds the encoded size of a single message
// value when Module.MaxServiceInfoSize is zero.
const DefaultMaxServiceInfoSize = 8192

func debugEnabled() bool {
	return slog.Default().Enabled(context.Background(), slog.LevelDebug)
}

// Module is the device-side lifecycle controller for one simulated
// exchange. The host drives it once per round: the three queries in any
// order and any number of times, then NextServiceInfo for the queued
// message. End and Failure are the terminal paths.
//
// A Module is not safe for concurrent use. Run one Module per onboarding
// session; the zero value is ready to use after Start.
type Module struct {
	// MaxServiceInfoSize is the capacity of the session's stream buffers.
	// Defaults to DefaultMaxServiceInfoSize.
	MaxServiceInfoSize int

	// Cleanup optionally performs domain cleanup when the host aborts the
	// exchange through Failure.
	Cleanup func() error

	state roundState
	sess  *session
	instr []string // staged execution instructions, released by End
}

// Start allocates the session's read and write streams and primes the
// first round with a single pending message slot. The result itself is
// queued later, by QueueDownloadResult or QueueCommandResult.
func (m *Module) Start() error {
	size := m.MaxServiceInfoSize
	if size == 0 {
		size = DefaultMaxServiceInfoSize
	}
	sess, err := newSession(size)
	if err != nil {
		slog.Error("sim module start failed", "error", err)
		return err
	}
	m.sess = sess
	m.state = roundState{hasMore: true, pendingCount: 1, fetchStatus: fetchStatusFailed}
	return nil
}

// HasMoreServiceInfo reports whether a message is ready to send this
// round. It is idempotent and consistent until the next NextServiceInfo.
func (m *Module) HasMoreServiceInfo(hasMore *bool) error {
	if hasMore == nil {
		return fmt.Errorf("%w: nil hasMore output", ErrInvalidArgument)
	}
	*hasMore = m.state.hasMore
	if *hasMore && debugEnabled() {
		slog.Debug("sim module has service info to send", "kind", m.state.pending)
	}
	return nil
}

// IsMoreServiceInfo reports whether another round will be needed after
// this one. A queued result always fits one frame, so this is false unless
// the module is extended with multi-frame fragmentation.
func (m *Module) IsMoreServiceInfo(isMore *bool) error {
	if isMore == nil {
		return fmt.Errorf("%w: nil isMore output", ErrInvalidArgument)
	}
	*isMore = m.state.isMore
	return nil
}

// ServiceInfoCount reports the number of messages ready to send now.
func (m *Module) ServiceInfoCount(count *uint16) error {
	if count == nil {
		return fmt.Errorf("%w: nil count output", ErrInvalidArgument)
	}
	*count = m.state.pendingCount
	return nil
}

// Pending returns the message kind queued for the next fetch.
func (m *Module) Pending() Kind { return m.state.pending }

// QueueDownloadResult records the outcome of a completed simulated
// transfer of n bytes. The next round responds with a done message
// carrying n.
func (m *Module) QueueDownloadResult(n int64) error {
	if n < 0 {
		return fmt.Errorf("%w: negative transfer byte count %d", ErrInvalidArgument, n)
	}
	m.state.transferTotal = n
	m.state.fetchStatus = 0
	m.state.queue(KindDone)
	return nil
}

// QueueCommandResult records the exit code of a simulated command
// execution. The next round responds with an exitcode message. No sign
// constraint is placed on code.
func (m *Module) QueueCommandResult(code int) {
	m.state.exitCode = code
	m.state.queue(KindExitCode)
}

// stageData buffers a received binary payload chunk in the read stream and
// advances the simulated transfer cursor. Only the latest chunk is
// retained, so the transfer size is not bounded by the stream capacity.
func (m *Module) stageData(chunk []byte) error {
	if m.sess == nil {
		return fmt.Errorf("%w: module not started", ErrInvalidState)
	}
	if err := m.sess.stage(chunk); err != nil {
		return err
	}
	m.state.transferOffset += int64(len(chunk))
	return nil
}

// stageInstruction buffers one simulated execution instruction.
func (m *Module) stageInstruction(arg string) { m.instr = append(m.instr, arg) }

// instructions returns the staged execution instructions.
func (m *Module) instructions() []string { return m.instr }

// transferred returns the simulated transfer cursor.
func (m *Module) transferred() int64 { return m.state.transferOffset }

// NextServiceInfo encodes the queued message into value, copies its
// message name (zero-terminated) into messageName, and returns the exact
// encoded length. Truncation is never performed: an undersized value
// buffer fails with ErrBufferTooSmall. The mtu bounds a single frame; a
// queued result always fits one frame by construction, so the message is
// never split across fetches.
//
// Every exit passes through End, so a failed fetch leaves the module at
// its terminal baseline with the exit kind forced.
func (m *Module) NextServiceInfo(mtu uint16, messageName, value []byte) (int, error) {
	n, err := m.nextServiceInfo(mtu, messageName, value)
	if err := m.End(err); err != nil {
		return 0, err
	}
	return n, nil
}

func (m *Module) nextServiceInfo(mtu uint16, messageName, value []byte) (int, error) {
	if mtu == 0 || messageName == nil || value == nil {
		return 0, fmt.Errorf("%w: mtu, message name, and value buffers are required", ErrInvalidArgument)
	}
	if m.sess == nil {
		return 0, fmt.Errorf("%w: module not started", ErrInvalidState)
	}
	kind := m.state.pending
	if !m.state.hasMore || kind == KindExit {
		return 0, fmt.Errorf("%w: no service info to send", ErrInvalidState)
	}

	m.sess.resetWriter()
	switch kind {
	case KindDone:
		if err := encodeMessage(m.sess, kind, messageName, m.state.transferTotal); err != nil {
			return 0, fmt.Errorf("error responding with %s:done: %w", ModuleName, err)
		}
	case KindExitCode:
		if err := encodeMessage(m.sess, kind, messageName, int64(m.state.exitCode)); err != nil {
			return 0, fmt.Errorf("error responding with %s:exitcode: %w", ModuleName, err)
		}
	case KindNone:
		// A fetch without any queued result is a host logic violation.
		return 0, fmt.Errorf("%w: fetch with no queued message", ErrLogic)
	default:
		return 0, fmt.Errorf("%w: unexpected kind %s", ErrLogic, kind)
	}

	frame := m.sess.w.Bytes()
	if len(frame) > int(mtu) {
		return 0, fmt.Errorf("%w: %d byte frame exceeds mtu %d", ErrBufferTooSmall, len(frame), mtu)
	}
	if err := copyFull(value, frame); err != nil {
		return 0, err
	}
	m.state.consume()
	if debugEnabled() {
		slog.Debug("sim module responded", "kind", kind, "size", len(frame))
	}
	return len(frame), nil
}

// End finishes a round. Scratch staging buffers are always released. When
// result indicates failure the round state is additionally reset to its
// terminal baseline and the session torn down; on success the session
// survives for the next round with its streams reused. The result is
// returned unchanged so that entry points can funnel every exit through
// End.
func (m *Module) End(result error) error {
	m.instr = nil
	if m.sess != nil && m.sess.r != nil {
		m.sess.r.Reset()
	}
	if result == nil {
		return nil
	}
	m.state.reset()
	if m.sess != nil {
		m.sess.close()
		m.sess = nil
	}
	slog.Error("sim module round failed", "error", result)
	return result
}

// Failure is the out-of-band abort path. It runs the module cleanup hook,
// then unconditionally tears down the session, even when a failed round
// already did so.
func (m *Module) Failure() error {
	var hookErr error
	if m.Cleanup != nil {
		if hookErr = m.Cleanup(); hookErr != nil {
			// A cleanup failure must not skip teardown.
			slog.Error("sim module cleanup hook failed", "error", hookErr)
		}
	}
	m.instr = nil
	m.state.reset()
	if m.sess != nil {
		m.sess.close()
		m.sess = nil
	}
	if hookErr != nil {
		return fmt.Errorf("error running cleanup hook: %w", hookErr)
	}
	return nil
}
