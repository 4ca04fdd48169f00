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

import "fmt"
import "strconv"
import "strings"

// segmentName renders the canonical <020d-LSN>.<suffix><tail> filename. tail
// is "" for a final name, ".inprogress" while a writer has not yet atomically
// renamed the file, or ".N" (N>0) to disambiguate a name conflict on restart.
func segmentName(lsn int64, class SegmentClass, tail string) string {
	return fmt.Sprintf("%020d.%s%s", lsn, class.Suffix(), tail)
}

// parsedName is one directory entry recognized as belonging to a class family.
type parsedName struct {
	LSN         int64
	Suffix      string // "xlog" or "snap"
	Inprogress  bool
	ConflictTag int // 0 if untagged, else the ".N" disambiguator
}

// parseSegmentName recognizes "<digits>.<suffix>[.inprogress|.N]". Names
// with a non-numeric prefix or an unrecognized suffix are not ours to
// parse and are reported via ok=false (spec.md §3: "filenames with
// non-numeric prefixes or unknown suffixes are ignored").
func parseSegmentName(name string, wantSuffix string) (parsedName, bool) {
	parts := strings.Split(name, ".")
	if len(parts) < 2 {
		return parsedName{}, false
	}
	lsn, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return parsedName{}, false
	}
	if parts[1] != wantSuffix {
		return parsedName{}, false
	}

	out := parsedName{LSN: lsn, Suffix: parts[1]}
	for _, tail := range parts[2:] {
		switch {
		case tail == "inprogress":
			out.Inprogress = true
		default:
			n, err := strconv.Atoi(tail)
			if err != nil || n <= 0 {
				return parsedName{}, false
			}
			out.ConflictTag = n
		}
	}
	return out, true
}
