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

import "time"

// Codec selects which frame format a SegmentClass reads/writes.
type Codec int

const (
	CodecV11 Codec = iota // current: 4-byte marker, CRC32C header+data
	CodecV04               // legacy xlog: 8-byte marker, CRC32 trailer
	CodecV04Snap           // legacy snap: 4-byte marker, CRC32 trailer, no eof marker
)

// SegmentClass describes a family of segments and their on-disk format:
// header literals, framing, rotation policy and corruption strictness.
// One family exists per role (xlog, snap); a family may list several
// classes to accept multiple on-disk versions (see ClassList).
type SegmentClass struct {
	Name     string // "xlog" or "snap" — also the file suffix without the dot
	Filetype string // header line 1, e.g. "XLOG\n"
	Version  string // header line 2, e.g. "0.11\n"
	Codec    Codec

	MarkerSize    int    // bytes of the per-row marker (4 for v11/v04-snap, 8 for v04-xlog)
	Marker        uint64 // marker value, width per MarkerSize
	EOFMarkerSize int    // 0 = class has no eof marker
	EOFMarker     uint64

	RowsPerFile  int           // rotation trigger; 0 = never rotate (snapshots)
	FsyncDelay   time.Duration // 0 = fsync every flush
	PanicIfError bool          // parse failure during read aborts the process
}

// XlogV11 is the current xlog class: 4-byte marker, CRC32C frames, rotates
// by row count, fsyncs per the writer's flush policy.
func XlogV11(rowsPerFile int, fsyncDelay time.Duration, panicIfError bool) SegmentClass {
	return SegmentClass{
		Name:          "xlog",
		Filetype:      "XLOG\n",
		Version:       "0.11\n",
		Codec:         CodecV11,
		MarkerSize:    4,
		Marker:        uint64(MarkerV11),
		EOFMarkerSize: 4,
		EOFMarker:     uint64(EOFMarkerV11),
		RowsPerFile:   rowsPerFile,
		FsyncDelay:    fsyncDelay,
		PanicIfError:  panicIfError,
	}
}

// XlogV04 is the legacy, read-only xlog class.
func XlogV04(panicIfError bool) SegmentClass {
	return SegmentClass{
		Name:          "xlog",
		Filetype:      "XLOG\n",
		Version:       "0.04\n",
		Codec:         CodecV04,
		MarkerSize:    8,
		Marker:        MarkerV04Xlog,
		EOFMarkerSize: 8,
		EOFMarker:     EOFMarkerV04Xlog,
		PanicIfError:  panicIfError,
	}
}

// SnapV11 is the current snapshot class: rows_per_file=0 (never rotates),
// written once per snapshot emission then read at most once.
func SnapV11(panicIfError bool) SegmentClass {
	return SegmentClass{
		Name:          "snap",
		Filetype:      "SNAP\n",
		Version:       "0.11\n",
		Codec:         CodecV11,
		MarkerSize:    4,
		Marker:        uint64(MarkerV11),
		EOFMarkerSize: 4,
		EOFMarker:     uint64(EOFMarkerV11),
		RowsPerFile:   0,
		PanicIfError:  panicIfError,
	}
}

// SnapV03 is the legacy read-only snapshot class; v03 snaps carry no eof marker.
func SnapV03(panicIfError bool) SegmentClass {
	return SegmentClass{
		Name:         "snap",
		Filetype:     "SNAP\n",
		Version:      "0.03\n",
		Codec:        CodecV04Snap,
		MarkerSize:   4,
		Marker:       uint64(MarkerV04Snap),
		PanicIfError: panicIfError,
	}
}

// ClassList groups a directory's acceptable classes (preferred first); a
// snap directory may accept both legacy and current versions at once
// (spec.md §4.2: "class-list lets a snap directory accept both v03 legacy
// and v11").
type ClassList []SegmentClass

// ByVersion finds the class in the list whose Version matches, or false.
func (l ClassList) ByVersion(version string) (SegmentClass, bool) {
	for _, c := range l {
		if c.Version == version {
			return c, true
		}
	}
	return SegmentClass{}, false
}

// Suffix returns the on-disk filename suffix for the class family, e.g. "xlog".
func (c SegmentClass) Suffix() string {
	return c.Name
}
