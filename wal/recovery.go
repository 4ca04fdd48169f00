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
import "sync"
import "time"

import "github.com/fsnotify/fsnotify"
import "github.com/jtolds/gls"

// SnapRowHandler is called once per row while replaying a snapshot.
type SnapRowHandler func(row Row)

// WalRowHandler is called once per row while replaying xlog tail; it may
// return an error to abort recovery with a FatalError (spec.md §7).
type WalRowHandler func(row Row) error

// Recovery drives cold recovery (snapshot + xlog tail replay) and, once
// handed off, hot-follow (poll timer + file watcher) for one WAL
// instance. Every snapshot and xlog it replays is opened RoleRead; the only
// write handle it opens is the snapshot file created by EmitSnapshot.
type Recovery struct {
	snapDir *Directory
	walDir  *Directory
	cfg     Config

	snapHandler SnapRowHandler
	walHandler  WalRowHandler

	lsn          int64
	confirmedLSN int64

	current *Segment

	mu          sync.Mutex
	stopPoll    chan struct{}
	pollDone    chan struct{}
	watcher     *fsnotify.Watcher
	watcherDone chan struct{}
	nudge       chan struct{}
}

// NewRecovery wires a recovery controller against the snap/wal directories
// described by cfg. snapHandler/walHandler are the two external callbacks
// spec.md §1 names as this subsystem's only collaborators.
func NewRecovery(cfg Config, snapHandler SnapRowHandler, walHandler WalRowHandler) *Recovery {
	return &Recovery{
		snapDir:     NewDirectory(cfg.SnapDir, "snap"),
		walDir:      NewDirectory(cfg.WalDir, "xlog"),
		cfg:         cfg,
		snapHandler: snapHandler,
		walHandler:  walHandler,
		nudge:       make(chan struct{}, 1),
	}
}

// LSN returns the highest LSN observed so far. Recovery advances it
// together with confirmedLSN, so the two are always equal here.
func (r *Recovery) LSN() int64 { return r.lsn }

// ConfirmedLSN returns the highest LSN durably applied so far.
func (r *Recovery) ConfirmedLSN() int64 { return r.confirmedLSN }

// Cold runs spec.md §4.5's cold path: snapshot replay (if requestedLSN==0)
// followed by recover_remaining_wals until the tail is drained.
func (r *Recovery) Cold(requestedLSN int64) error {
	if requestedLSN == 0 {
		snapLSN, err := r.snapDir.GreatestLSN()
		if err != nil {
			return err
		}
		if snapLSN <= 0 {
			Fatal(newNoSnapshotError())
		}
		if err := r.replaySnapshot(snapLSN); err != nil {
			return err
		}
		r.confirmedLSN = snapLSN
		r.lsn = snapLSN
	} else {
		r.confirmedLSN = requestedLSN - 1
		r.lsn = requestedLSN - 1
	}

	return r.recoverRemainingWals()
}

func (r *Recovery) replaySnapshot(snapLSN int64) error {
	entry, ok := r.snapDir.Entry(snapLSN)
	path := ""
	if ok {
		path = entry.Path
	}
	seg, err := OpenRead(r.cfg.SnapDir, r.cfg.SnapClasses(), snapLSN, path)
	if err != nil {
		return err
	}
	defer seg.Close()

	for {
		row, err := seg.Next()
		if err == ErrEOF {
			break
		}
		if err != nil {
			return err
		}
		r.snapHandler(row)
	}
	return nil
}

// recoverRemainingWals implements spec.md §4.5 step 3: open the xlog
// covering confirmedLSN+1 if none is current, scan it in LSN order
// skipping already-applied rows, and keep advancing across files until
// the directory's greatest LSN has been consumed.
func (r *Recovery) recoverRemainingWals() error {
	for {
		greatest, err := r.walDir.GreatestLSN()
		if err != nil {
			return err
		}
		if r.confirmedLSN >= greatest {
			break
		}

		if r.current == nil {
			if err := r.openNextWal(); err != nil {
				return err
			}
		}

		newRows, err := r.scanCurrentWal()
		if err != nil {
			return err
		}

		if newRows == 0 {
			newRows, err = r.retryZeroRowScan()
			if err != nil {
				return err
			}
			if newRows == 0 {
				// still nothing after 3 retries: this file has no more to
				// give us right now. Advance by handing control back to the
				// caller (poll timer / file watcher) instead of spinning —
				// a concurrent writer may extend it later.
				if r.current != nil && r.current.scanEOF {
					r.closeCurrentWal()
				}
				return nil
			}
		}

		if r.current != nil && r.current.scanEOF {
			r.closeCurrentWal()
		}
	}

	if greatest, err := r.walDir.GreatestLSN(); err == nil && greatest > r.confirmedLSN+1 {
		Fatal(FatalError{Reason: "not all wals read"})
	}
	return nil
}

func (r *Recovery) openNextWal() error {
	fileLSN, err := r.walDir.FindIncludingFile(r.confirmedLSN + 1)
	if err != nil {
		return err
	}
	if fileLSN <= 0 {
		Fatal(FatalError{Reason: "missing WAL covering next LSN"})
	}
	entry, ok := r.walDir.Entry(fileLSN)
	path := ""
	if ok {
		path = entry.Path
	}
	seg, err := OpenRead(r.cfg.WalDir, r.cfg.XlogClasses(), fileLSN, path)
	if err != nil {
		return err
	}
	r.current = seg
	return nil
}

// scanCurrentWal drives the current xlog's iterator to clean EOF, applying
// every row with lsn > confirmedLSN and returning how many were new.
func (r *Recovery) scanCurrentWal() (int, error) {
	newRows := 0
	for {
		row, err := r.current.Next()
		if err == ErrEOF {
			return newRows, nil
		}
		if err != nil {
			return newRows, err
		}
		if row.LSN <= r.confirmedLSN {
			continue // idempotent replay, spec.md §4.5 invariant
		}
		if err := r.walHandler(row); err != nil {
			Fatal(FatalError{Reason: "wal row handler: " + err.Error()})
		}
		r.lsn = row.LSN
		r.confirmedLSN = row.LSN
		newRows++
	}
}

// retryZeroRowScan implements spec.md §4.5's "resume support": if a scan
// yields zero new rows, a concurrent writer may have extended the file
// between open and scan; retry up to 3 times before accepting the file as
// (possibly uncleanly) exhausted.
func (r *Recovery) retryZeroRowScan() (int, error) {
	for attempt := 1; attempt <= 3; attempt++ {
		r.current.scanEOF = false
		r.current.f.Seek(r.current.goodOffset, 0)
		n, err := r.scanCurrentWal()
		if err != nil {
			return n, err
		}
		if n > 0 {
			return n, nil
		}
	}
	return 0, nil
}

// closeCurrentWal closes the current xlog handle and logs spec.md §7
// item 5's "wasn't correctly closed" warning whenever its trailing bytes
// don't prove a clean close — regardless of whether the scan that reached
// scanEOF yielded any new rows (scenario 6: a truncated frame after a run
// of real rows still needs to be reported as unclean).
func (r *Recovery) closeCurrentWal() {
	path, cleanlyClosed := r.current.Path, r.current.CleanlyClosed()
	r.current.Close()
	r.current = nil
	if !cleanlyClosed {
		fmt.Println("wal:", path, "wasn't correctly closed")
	}
}

// StartHotFollow launches the poll timer and, once a current xlog is
// known, a file-change watcher on it — spec.md §4.5 "Hot-follow". It is
// safe to call only after Cold has returned successfully.
func (r *Recovery) StartHotFollow() {
	r.stopPoll = make(chan struct{})
	r.pollDone = make(chan struct{})
	r.watcherDone = make(chan struct{})

	gls.Go(func() {
		defer close(r.pollDone)
		ticker := time.NewTicker(r.cfg.WalDirRescanDelay)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				r.pollOnce()
			case <-r.nudge:
				r.pollOnce()
			case <-r.stopPoll:
				return
			}
		}
	})
}

func (r *Recovery) pollOnce() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.recoverRemainingWals(); err != nil {
		fmt.Println("wal: hot-follow poll error:", err)
		return
	}
	if r.current != nil && r.watcher == nil {
		r.installWatcher(r.current.Path)
	}
}

// installWatcher starts an fsnotify watch on path (spec.md §4.5: "installs
// a file-change watcher on that xlog"). Write events re-run the scan on
// the current file; once that scan reaches EOF the file is closed, the
// watcher is removed and the directory timer is nudged. Other event kinds
// are ignored.
func (r *Recovery) installWatcher(path string) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		fmt.Println("wal: fsnotify unavailable, falling back to poll-only:", err)
		return
	}
	if err := w.Add(path); err != nil {
		fmt.Println("wal: fsnotify add failed for", path, ":", err)
		w.Close()
		return
	}
	r.watcher = w

	gls.Go(func() {
		defer close(r.watcherDone)
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write) != 0 {
					r.mu.Lock()
					if r.current != nil {
						n, err := r.scanCurrentWal()
						_ = n
						if err != nil {
							fmt.Println("wal: watcher scan error:", err)
						}
						if r.current.scanEOF {
							r.closeCurrentWal()
							w.Close()
							r.watcher = nil
							r.mu.Unlock()
							select {
							case r.nudge <- struct{}{}:
							default:
							}
							return
						}
					}
					r.mu.Unlock()
				}
			case _, ok := <-w.Errors:
				if !ok {
					return
				}
			}
		}
	})
}

// Finalize implements spec.md §4.5's finalize step: stop the timer and
// watcher, run recover_remaining_wals one last time, and warn if the
// final file was not cleanly closed.
func (r *Recovery) Finalize() error {
	if r.stopPoll != nil {
		close(r.stopPoll)
		<-r.pollDone
	}
	if r.watcher != nil {
		r.watcher.Close()
		<-r.watcherDone
	}

	if err := r.recoverRemainingWals(); err != nil {
		return err
	}
	if r.current != nil && !r.current.CleanlyClosed() {
		fmt.Println("wal: final file", r.current.Path, "wasn't correctly closed")
	}
	return nil
}
