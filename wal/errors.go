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

import "github.com/dc0d/onexit"

/*

error handling

spec.md §7 splits failures into per-row corruption (recoverable, handled
inline by segment.go's Next) and structural failures (missing snapshot,
missing WAL segment, a failed snapshot open, write, fsync or rename) that
are "always global". This module reports the latter with a single
FatalError passed to Fatal, which calls the hook set by SetFatalHook and
panics. The writer does not use Fatal: when its name-conflict retries are
exhausted it returns an ordinary error in the WriteReply.

*/

// FatalError is raised for spec.md §7's structural conditions: conditions
// with no safe per-row recovery, where continuing would silently lose
// data or serve a corrupted recovery result.
type FatalError struct {
	Reason string
}

func (e FatalError) Error() string { return "wal: fatal: " + e.Reason }

// NoSnapshotError is FatalError's dedicated case for "no snapshot found
// and lsn=0 was requested", so a CLI wrapper can translate it to a
// distinct exit code (spec.md §6 "Exit semantics").
type NoSnapshotError struct {
	FatalError
}

func newNoSnapshotError() error {
	return NoSnapshotError{FatalError{Reason: "no snapshot; ask user to --init_storage"}}
}

// fatalHook, if set via SetFatalHook, is invoked (in addition to the
// panic) whenever Fatal is called — e.g. to translate the exit code
// before the process actually tears down.
var fatalHook func(err error)

// SetFatalHook registers a callback invoked just before Fatal panics.
func SetFatalHook(fn func(err error)) {
	fatalHook = fn
}

// RegisterShutdownCleanup runs fn on process exit (signal or normal
// return), the same onexit.Register bookkeeping storage/settings.go uses
// to flush its trace file — used here to let a caller close a running
// Writer before the process actually tears down.
func RegisterShutdownCleanup(fn func()) {
	onexit.Register(fn)
}

// Fatal reports a structural failure per spec.md §7: it calls the
// registered FatalHook (if any) and then panics with err, which is this
// module's single legitimate non-local exit (§9 design notes: "the only
// legitimate non-local exit is process abort on fatal, which should be a
// single call to a panic hook").
func Fatal(err error) {
	if fatalHook != nil {
		fatalHook(err)
	}
	panic(err)
}
