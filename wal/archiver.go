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
import "os"
import "path/filepath"

import "github.com/jtolds/gls"
import "github.com/pierrec/lz4/v4"

/*

segment archiver

a supplemented feature, not named in spec.md: closed (non-current) xlog
segments are also compressed into an auxiliary "<lsn>.xlog.lz4" copy.
recovery never reads this copy; it exists purely so an operator can ship
older segments off-box cheaply. compression never touches a file still
open for writing or being scanned for recovery.

*/

// Archiver compresses a closed xlog segment into an lz4-framed copy,
// optionally uploading it to a SegmentStore.
type Archiver struct {
	store SegmentStore // nil means local-file-only (".xlog.lz4" beside the original)
}

// NewArchiver builds an archiver; store may be nil to only write the
// local ".xlog.lz4" companion file.
func NewArchiver(store SegmentStore) *Archiver {
	return &Archiver{store: store}
}

// OnSegmentClosed is the hook to pass to Writer.OnSegmentClosed: it
// re-encodes path into an lz4 stream on its own goroutine so segment
// rotation never blocks on archival I/O.
func (a *Archiver) OnSegmentClosed(path string, lsn int64) {
	gls.Go(func() {
		if err := a.archive(path); err != nil {
			fmt.Println("wal: archiver failed for", path, ":", err)
		}
	})
}

func (a *Archiver) archive(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	name := filepath.Base(path) + ".lz4"
	dst := path + ".lz4"

	f, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0664)
	if err != nil {
		return err
	}
	w := lz4.NewWriter(f)
	if _, err := w.Write(raw); err != nil {
		w.Close()
		f.Close()
		return err
	}
	if err := w.Close(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	if a.store == nil {
		return nil
	}
	compressed, err := os.ReadFile(dst)
	if err != nil {
		return err
	}
	return a.store.Put(name, compressed)
}
