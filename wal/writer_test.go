package wal

import "testing"
import "time"

func submitAndWait(t *testing.T, w *Writer, row Row) WriteReply {
	t.Helper()
	ok, reply := w.Submit(row)
	if !ok {
		t.Fatalf("Submit(%d) rejected (mailbox full)", row.LSN)
	}
	select {
	case r := <-reply:
		return r
	case <-time.After(2 * time.Second):
		t.Fatalf("Submit(%d) timed out waiting for reply", row.LSN)
		return WriteReply{}
	}
}

func TestWriterAppendsAndReplies(t *testing.T) {
	dir := t.TempDir()
	class := XlogV11(0, 0, false)
	w := NewWriter(dir, class, 8)
	w.Start()
	defer w.Stop()

	for lsn := int64(1); lsn <= 3; lsn++ {
		reply := submitAndWait(t, w, Row{LSN: lsn, TM: float64(lsn), Payload: []byte("row")})
		if reply.Err != nil {
			t.Fatalf("lsn %d: %v", lsn, reply.Err)
		}
	}
	if got := w.RowsWritten(); got != 3 {
		t.Errorf("RowsWritten: want 3, got %d", got)
	}
}

func TestWriterRotatesOnRowsPerFile(t *testing.T) {
	dir := t.TempDir()
	class := XlogV11(2, 0, false) // rotate every 2 rows
	w := NewWriter(dir, class, 8)

	var closedPaths []string
	w.OnSegmentClosed(func(path string, lsn int64) { closedPaths = append(closedPaths, path) })
	w.Start()
	defer w.Stop()

	for lsn := int64(1); lsn <= 4; lsn++ {
		reply := submitAndWait(t, w, Row{LSN: lsn, TM: float64(lsn), Payload: []byte("r")})
		if reply.Err != nil {
			t.Fatalf("lsn %d: %v", lsn, reply.Err)
		}
	}
	// give the actor a moment to process the rotation-triggered close
	deadline := time.Now().Add(time.Second)
	for len(closedPaths) < 2 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if len(closedPaths) != 2 {
		t.Fatalf("want 2 segment rotations after 4 rows at rows_per_file=2, got %d (%v)", len(closedPaths), closedPaths)
	}
}

func TestWriterBackpressureOnFullMailbox(t *testing.T) {
	mb := NewMailbox(1)
	first := WriteRequest{Row: Row{LSN: 1}, Reply: make(chan WriteReply, 1)}
	second := WriteRequest{Row: Row{LSN: 2}, Reply: make(chan WriteReply, 1)}

	if ok := mb.TryPush(first); !ok {
		t.Fatal("first TryPush should succeed on an empty mailbox")
	}
	if ok := mb.TryPush(second); ok {
		t.Fatal("second TryPush should fail on a full mailbox (backpressure)")
	}
}

func TestWriterStopClosesCurrentSegment(t *testing.T) {
	dir := t.TempDir()
	class := XlogV11(0, 0, false)
	w := NewWriter(dir, class, 8)
	w.Start()

	reply := submitAndWait(t, w, Row{LSN: 1, TM: 1.0, Payload: []byte("x")})
	if reply.Err != nil {
		t.Fatalf("submit: %v", reply.Err)
	}
	w.Stop()

	r, err := OpenRead(dir, ClassList{class}, 1, "")
	if err != nil {
		t.Fatalf("OpenRead after Stop: %v", err)
	}
	defer r.Close()
	for {
		_, err := r.Next()
		if err == ErrEOF {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
	}
	if !r.CleanlyClosed() {
		t.Error("expected Stop to cleanly close the current segment")
	}
}
