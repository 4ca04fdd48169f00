/*
Copyright (C) 2024-2026  Carl-Philip Hänsch

	This program is free software: you can redistribute it and/or modify
	it under the terms of the GNU General Public License as published by
	the Free Software Foundation, either version 3 of the License, or
	(at your option) any later version.

	This program is distributed in the hope that it will be useful,
	but WITHOUT ANY WARRANTY; without even the implied warranty of
	MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
	GNU General Public License for more details.

	You should have received a copy of the GNU General Public License
	along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package wal

/*

writer mailbox

spec.md §3/§5 describes a bounded fiber mailbox with a non-blocking
try_push: a full mailbox is backpressure, not an error. Go has no fiber
scheduler, so the mailbox is a buffered channel and try_push is a
non-blocking channel send (select/default) — the direct translation
design note §9 asks for.

*/

// WriteRequest is one committer's ask to append a row. Reply carries the
// single reply channel the writer answers on, mirroring spec.md's
// {lsn, len, payload} request / {u32 status} reply pair.
type WriteRequest struct {
	Row   Row
	Reply chan WriteReply
}

// WriteReply is the writer's answer: Err is nil on durable success.
type WriteReply struct {
	Err error
}

// Mailbox is the bounded channel of pending write requests.
type Mailbox chan WriteRequest

// NewMailbox allocates a mailbox with the configured inbox_size capacity.
func NewMailbox(capacity int) Mailbox {
	return make(Mailbox, capacity)
}

// TryPush offers req without blocking; ok is false if the mailbox is full,
// which the committer must treat as a retryable backpressure signal
// (spec.md §7 "Backpressure"), not a durability failure.
func (m Mailbox) TryPush(req WriteRequest) (ok bool) {
	select {
	case m <- req:
		return true
	default:
		return false
	}
}
