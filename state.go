// SPDX-FileCopyrightText: (C) 2025 Intel Corporation
// SPDX-License-Identifier: Apache 2.0

package sim

// fetchStatusFailed is the failure-default outcome of the simulated fetch.
const fetchStatusFailed = 1

// roundState tracks what the module has ready to send in the current
// exchange round.
//
// Invariants: pending == KindExit implies !hasMore, and pendingCount > 0
// implies pending != KindNone once a result has been queued.
type roundState struct {
	hasMore      bool   // a message is ready to send this round
	isMore       bool   // another round will be needed after this one
	pendingCount uint16 // messages ready to send now, 0 or 1
	pending      Kind

	// Simulated operation bookkeeping
	transferOffset int64
	transferTotal  int64
	exitCode       int
	fetchStatus    int
}

// queue arms the round with a single message of the given kind.
func (rs *roundState) queue(kind Kind) {
	rs.pending = kind
	rs.hasMore = kind != KindExit
	rs.pendingCount = 1
	// Managing look-ahead across rounds is error-prone and a queued result
	// always fits one frame, so the next round is never promised.
	rs.isMore = false
}

// consume marks the queued message as sent and returns the operation
// bookkeeping to its baseline.
func (rs *roundState) consume() {
	rs.hasMore = false
	rs.pendingCount = 0
	rs.pending = KindNone
	rs.transferOffset, rs.transferTotal = 0, 0
	rs.exitCode = 0
	rs.fetchStatus = fetchStatusFailed
}

// reset forces the terminal failure baseline: nothing left to send, the
// transfer cursor cleared, and the exit kind queued so the host sees a
// deterministic terminal signal instead of hanging in the exchange.
func (rs *roundState) reset() {
	*rs = roundState{pending: KindExit, fetchStatus: fetchStatusFailed}
}
