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

import "os"
import "path/filepath"
import "sort"
import "strconv"

import "github.com/google/btree"
import "github.com/launix-de/NonLockingReadMap"

// segmentEntry is one directory entry recognized as belonging to a class
// family; it is the element type of the read-optimized directory index.
type segmentEntry struct {
	LSN  int64
	Path string
	Tail string
}

func (e segmentEntry) GetKey() int64     { return e.LSN }
func (e segmentEntry) ComputeSize() uint { return 24 + uint(len(e.Path)) + uint(len(e.Tail)) }

// Directory enumerates segments of one class family (a snap directory or
// an xlog directory) by LSN. Its entry map is read through Entry and
// refreshed by every Scan, which sets each entry found on disk again;
// entries for files that have disappeared are not removed.
type Directory struct {
	Path    string
	Suffix  string // "xlog" or "snap"
	entries NonLockingReadMap.NonLockingReadMap[segmentEntry, int64]
}

// NewDirectory opens dir for scanning segments named <lsn>.<suffix>...
func NewDirectory(dir string, suffix string) *Directory {
	return &Directory{Path: dir, Suffix: suffix, entries: NonLockingReadMap.New[segmentEntry, int64]()}
}

// Scan re-reads the directory from disk, accepting only names of the form
// <digits>.<suffix>[.inprogress|.N] (spec.md §3/§4.3); everything else is
// silently skipped. It tolerates new files appearing mid-scan (hot-follow
// calls this repeatedly) and returns the ascending list of distinct LSNs.
func (d *Directory) Scan() ([]int64, error) {
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return nil, err
	}

	seen := make(map[int64]segmentEntry)
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		parsed, ok := parseSegmentName(ent.Name(), d.Suffix)
		if !ok || parsed.Inprogress {
			continue // unknown name, or a writer's not-yet-committed snapshot
		}
		// prefer the untagged (conflict-free) name if both exist
		if existing, have := seen[parsed.LSN]; have && existing.Tail == "" {
			continue
		}
		tail := ""
		if parsed.ConflictTag > 0 {
			tail = "." + strconv.Itoa(parsed.ConflictTag)
		}
		seen[parsed.LSN] = segmentEntry{LSN: parsed.LSN, Path: filepath.Join(d.Path, ent.Name()), Tail: tail}
	}

	lsns := make([]int64, 0, len(seen))
	for lsn, e := range seen {
		ev := e
		d.entries.Set(&ev)
		lsns = append(lsns, lsn)
	}
	sort.Slice(lsns, func(i, j int) bool { return lsns[i] < lsns[j] })
	return lsns, nil
}

// GreatestLSN returns the last element of Scan, or 0 if the directory is empty.
func (d *Directory) GreatestLSN() (int64, error) {
	lsns, err := d.Scan()
	if err != nil {
		return 0, err
	}
	if len(lsns) == 0 {
		return 0, nil
	}
	return lsns[len(lsns)-1], nil
}

// FindIncludingFile returns the largest file LSN such that file_lsn <=
// target_lsn; 0 if target_lsn is smaller than every file on disk; the
// greatest LSN if target_lsn exceeds every file (spec.md §4.3). The
// ordered search is a google/btree index built fresh from the scan, the
// same structure the teacher uses for its secondary-index range queries.
func (d *Directory) FindIncludingFile(targetLSN int64) (int64, error) {
	lsns, err := d.Scan()
	if err != nil {
		return 0, err
	}
	if len(lsns) == 0 {
		return 0, nil
	}

	tr := btree.NewOrderedG[int64](32)
	for _, lsn := range lsns {
		tr.ReplaceOrInsert(lsn)
	}

	var floor int64
	var found bool
	tr.DescendLessOrEqual(targetLSN, func(item int64) bool {
		floor = item
		found = true
		return false // first hit is the greatest LSN <= targetLSN
	})
	if found {
		return floor, nil
	}
	// target_lsn is smaller than every file on disk
	return 0, nil
}

// Entry looks up the directory entry for an LSN discovered by the last Scan.
func (d *Directory) Entry(lsn int64) (segmentEntry, bool) {
	e := d.entries.Get(lsn)
	if e == nil {
		return segmentEntry{}, false
	}
	return *e, true
}

// TagsInUse scans for existing files at lsn disambiguated by a numeric
// tail (.1 .. .9) and reports which of the ten possible writer-retry slots
// (0 = untagged) are already taken, so the writer can pick the next free
// one (spec.md §7 "Name conflict on segment create").
func (d *Directory) TagsInUse(lsn int64) (NonLockingReadMap.NonBlockingBitMap, error) {
	var bm NonLockingReadMap.NonBlockingBitMap
	entries, err := os.ReadDir(d.Path)
	if err != nil {
		return bm, err
	}
	for _, ent := range entries {
		parsed, ok := parseSegmentName(ent.Name(), d.Suffix)
		if !ok || parsed.LSN != lsn {
			continue
		}
		bm.Set(uint32(parsed.ConflictTag), true)
	}
	return bm, nil
}
