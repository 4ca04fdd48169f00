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

// SegmentStore abstracts "where finished segment bytes live" so the
// canonical local-filesystem scan path (segment.go/directory.go) can be
// paired with an alternate object-store backend for archival copies,
// mirroring storage's PersistenceEngine split between the local disk
// implementation and its S3/Ceph variants.
type SegmentStore interface {
	// Put uploads the full contents of a finished, closed segment under
	// name (e.g. "<lsn>.xlog.lz4").
	Put(name string, data []byte) error
	// Get downloads a previously Put object, or an error if absent.
	Get(name string) ([]byte, error)
	// List returns the names of all objects under the store's prefix.
	List() ([]string, error)
}
