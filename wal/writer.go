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
import "strconv"
import "sync"
import "time"

import "github.com/google/uuid"
import "github.com/jtolds/gls"

// Writer is the single actor owning the current xlog write handle. It
// consumes requests from its Mailbox and replies in submission order,
// giving exactly-once append semantics per accepted request (spec.md §4.4).
// There is deliberately no shared mutable state with the recovery/hot-follow
// side: everything the writer touches is owned by this struct (design
// note §9's "re-express as owned state inside a writer actor struct").
type Writer struct {
	dir   string
	class SegmentClass

	mailbox Mailbox
	runID   uuid.UUID

	onSegmentClosed func(path string, lsn int64)

	current   *Segment
	rows      int
	lastFsync time.Time

	stopCh chan struct{}
	doneCh chan struct{}

	mu      sync.Mutex // guards Stats() reads from other goroutines
	written int64
}

// NewWriterFromConfig builds the writer for cfg's wal_dir, or nil if
// cfg.ReadOnly is set (spec.md §6: "flags.READONLY: do not spawn a writer
// at all").
func NewWriterFromConfig(cfg Config) *Writer {
	if cfg.ReadOnly {
		return nil
	}
	return NewWriter(cfg.WalDir, XlogV11(cfg.RowsPerFile, cfg.FsyncDelay, cfg.WalPanicIfError), cfg.InboxSize)
}

// NewWriter allocates a writer for the given directory/class with a
// mailbox of the configured inbox_size capacity.
func NewWriter(dir string, class SegmentClass, inboxSize int) *Writer {
	return &Writer{
		dir:     dir,
		class:   class,
		mailbox: NewMailbox(inboxSize),
		runID:   uuid.New(),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Mailbox returns the channel committers submit WriteRequests on.
func (w *Writer) Mailbox() Mailbox { return w.mailbox }

// OnSegmentClosed registers a hook invoked after the writer rotates away
// from a full segment (used to wire the archiver in archiver.go).
func (w *Writer) OnSegmentClosed(fn func(path string, lsn int64)) {
	w.onSegmentClosed = fn
}

// Start launches the writer's event loop on its own goroutine via gls.Go,
// the same wrapper storage/scan.go and storage/compute.go use for worker
// goroutines, so a panic recovered deeper in the call stack still carries
// this goroutine's gls-tagged context.
func (w *Writer) Start() {
	gls.Go(func() {
		defer close(w.doneCh)
		w.run()
	})
}

// Submit offers row to the writer without blocking; ok is false if the
// mailbox is full (backpressure, spec.md §7). On ok, the returned channel
// receives exactly one WriteReply once the writer has processed the row.
func (w *Writer) Submit(row Row) (ok bool, reply chan WriteReply) {
	reply = make(chan WriteReply, 1)
	ok = w.mailbox.TryPush(WriteRequest{Row: row, Reply: reply})
	return ok, reply
}

// Stop signals the writer to drain any buffered requests, close its
// current segment, and exit. It blocks until the writer goroutine exits.
func (w *Writer) Stop() {
	close(w.stopCh)
	<-w.doneCh
}

func (w *Writer) run() {
	for {
		select {
		case req := <-w.mailbox:
			w.handle(req)
		case <-w.stopCh:
			w.drainAndClose()
			return
		}
	}
}

// drainAndClose services whatever is already buffered in the mailbox
// (spec.md §4.4 "Shutdown": in-flight replies already queued remain
// valid) before closing the current segment.
func (w *Writer) drainAndClose() {
	for {
		select {
		case req := <-w.mailbox:
			w.handle(req)
		default:
			if w.current != nil {
				w.closeCurrent()
			}
			return
		}
	}
}

func (w *Writer) handle(req WriteRequest) {
	err, shouldRotate := w.append(req.Row)
	if req.Reply != nil {
		req.Reply <- WriteReply{Err: err}
	}
	// the rotation close happens after the reply, per spec.md §4.4 step 6:
	// "reply {status=0}... mark the current handle for close after the reply"
	if shouldRotate {
		w.closeCurrent()
	}
}

// append implements spec.md §4.4's per-request algorithm: open the
// segment the row belongs to if none is current, write marker+frame,
// apply the flush policy, and report whether the segment is now full.
func (w *Writer) append(row Row) (err error, shouldRotate bool) {
	if w.current == nil {
		if err := w.openForLSN(row.LSN); err != nil {
			return err, false
		}
	}

	if err := w.current.WriteRow(row); err != nil {
		return err, false
	}
	if err := w.flush(); err != nil {
		return err, false
	}
	w.rows++
	w.mu.Lock()
	w.written++
	w.mu.Unlock()

	rpf := w.class.RowsPerFile
	if rpf > 0 && (w.rows >= rpf || (row.LSN+1)%int64(rpf) == 0) {
		return nil, true
	}
	return nil, false
}

// openForLSN implements spec.md §7's "Name conflict on segment create":
// retry with an incrementing numeric suffix up to 10 attempts.
func (w *Writer) openForLSN(lsn int64) error {
	for suffix := 0; suffix < 10; suffix++ {
		tail := ""
		if suffix > 0 {
			tail = "." + strconv.Itoa(suffix)
		}
		seg, err := OpenWrite(w.dir, w.class, lsn, tail)
		if err == nil {
			w.current = seg
			w.rows = 0
			w.lastFsync = time.Time{}
			return nil
		}
		if !os.IsExist(err) {
			return err
		}
	}
	return fmt.Errorf("wal[%s]: exhausted name-conflict retries for lsn %d in %s", w.runID, lsn, w.dir)
}

// flush implements the two-knob policy of spec.md §4.4.1: fflush every
// write, fsync on every flush when FsyncDelay is zero, or at most once per
// FsyncDelay otherwise (a single scalar timestamp gate).
func (w *Writer) flush() error {
	if err := w.current.Flush(); err != nil {
		return err
	}
	if w.class.FsyncDelay <= 0 {
		return w.current.Sync()
	}
	if w.lastFsync.IsZero() || time.Since(w.lastFsync) >= w.class.FsyncDelay {
		if err := w.current.Sync(); err != nil {
			return err
		}
		w.lastFsync = time.Now()
	}
	return nil
}

func (w *Writer) closeCurrent() {
	path, lsn := w.current.Path, w.current.LSN
	if err := w.current.Close(); err != nil {
		fmt.Println("wal[" + w.runID.String() + "]: error closing segment " + path + ": " + err.Error())
	}
	w.current = nil
	w.rows = 0
	if w.onSegmentClosed != nil {
		w.onSegmentClosed(path, lsn)
	}
}

// RowsWritten returns the number of rows successfully appended since Start.
func (w *Writer) RowsWritten() int64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.written
}
