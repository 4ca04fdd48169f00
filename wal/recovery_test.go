package wal

import "os"
import "path/filepath"
import "testing"

// writeXlogSegment writes a finished (cleanly-closed), fully-framed xlog
// segment containing rows [fromLSN..toLSN] inclusive.
func writeXlogSegment(t *testing.T, dir string, fromLSN, toLSN int64) {
	t.Helper()
	class := XlogV11(0, 0, false)
	seg, err := OpenWrite(dir, class, fromLSN, "")
	if err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	for lsn := fromLSN; lsn <= toLSN; lsn++ {
		if err := seg.WriteRow(Row{LSN: lsn, TM: float64(lsn), Payload: []byte("row")}); err != nil {
			t.Fatalf("WriteRow(%d): %v", lsn, err)
		}
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func writeSnapshot(t *testing.T, dir string, lsn int64, rows int) {
	t.Helper()
	class := SnapV11(false)
	seg, err := OpenWrite(dir, class, lsn, "")
	if err != nil {
		t.Fatalf("OpenWrite snapshot: %v", err)
	}
	for i := 0; i < rows; i++ {
		if err := seg.WriteRow(Row{LSN: 0, Payload: []byte("state-row")}); err != nil {
			t.Fatalf("WriteRow snapshot: %v", err)
		}
	}
	if err := seg.Close(); err != nil {
		t.Fatalf("Close snapshot: %v", err)
	}
}

func TestColdRecoveryFromSnapshotAndTail(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SnapDir = filepath.Join(dir, "snap")
	cfg.WalDir = filepath.Join(dir, "wal")
	if err := os.MkdirAll(cfg.SnapDir, 0775); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.WalDir, 0775); err != nil {
		t.Fatal(err)
	}

	writeSnapshot(t, cfg.SnapDir, 10, 3)
	writeXlogSegment(t, cfg.WalDir, 11, 15)

	var snapRows, walRows []Row
	r := NewRecovery(cfg,
		func(row Row) { snapRows = append(snapRows, row) },
		func(row Row) error { walRows = append(walRows, row); return nil },
	)
	if err := r.Cold(0); err != nil {
		t.Fatalf("Cold: %v", err)
	}

	if len(snapRows) != 3 {
		t.Errorf("snapshot rows: want 3, got %d", len(snapRows))
	}
	if len(walRows) != 5 {
		t.Errorf("wal rows: want 5, got %d", len(walRows))
	}
	if r.ConfirmedLSN() != 15 {
		t.Errorf("confirmed_lsn: want 15, got %d", r.ConfirmedLSN())
	}
	for i, row := range walRows {
		want := int64(11 + i)
		if row.LSN != want {
			t.Errorf("wal row %d: want lsn %d, got %d", i, want, row.LSN)
		}
	}
}

func TestColdRecoverySkipsRowsAtOrBelowConfirmed(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SnapDir = filepath.Join(dir, "snap")
	cfg.WalDir = filepath.Join(dir, "wal")
	os.MkdirAll(cfg.SnapDir, 0775)
	os.MkdirAll(cfg.WalDir, 0775)

	writeSnapshot(t, cfg.SnapDir, 5, 0)
	writeXlogSegment(t, cfg.WalDir, 6, 10)

	var applied []int64
	r := NewRecovery(cfg, func(Row) {}, func(row Row) error {
		applied = append(applied, row.LSN)
		return nil
	})
	if err := r.Cold(8); err != nil {
		// requestedLSN=8 means confirmed starts at 7: snapshot replay skipped
		t.Fatalf("Cold: %v", err)
	}
	for _, lsn := range applied {
		if lsn <= 7 {
			t.Errorf("row with lsn %d should have been skipped (confirmed=7)", lsn)
		}
	}
}

func TestNoSnapshotIsFatal(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SnapDir = filepath.Join(dir, "snap")
	cfg.WalDir = filepath.Join(dir, "wal")
	os.MkdirAll(cfg.SnapDir, 0775)
	os.MkdirAll(cfg.WalDir, 0775)

	r := NewRecovery(cfg, func(Row) {}, func(Row) error { return nil })

	defer func() {
		rec := recover()
		if rec == nil {
			t.Fatal("expected Cold(0) to panic with no snapshot present")
		}
		if _, ok := rec.(NoSnapshotError); !ok {
			t.Fatalf("expected NoSnapshotError, got %T: %v", rec, rec)
		}
	}()
	r.Cold(0)
}

func TestEmitSnapshotAtomicRename(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SnapDir = filepath.Join(dir, "snap")
	cfg.WalDir = filepath.Join(dir, "wal")
	os.MkdirAll(cfg.SnapDir, 0775)
	os.MkdirAll(cfg.WalDir, 0775)
	cfg.SnapIORateLimit = "" // unlimited for the test

	r := NewRecovery(cfg, func(Row) {}, func(Row) error { return nil })
	r.confirmedLSN = 42

	rows := [][]byte{[]byte("a"), []byte("b"), []byte("c")}
	i := 0
	lsn, err := r.EmitSnapshot(func() ([]byte, bool) {
		if i >= len(rows) {
			return nil, false
		}
		p := rows[i]
		i++
		return p, true
	})
	if err != nil {
		t.Fatalf("EmitSnapshot: %v", err)
	}
	if lsn != 42 {
		t.Errorf("want lsn 42, got %d", lsn)
	}

	finalPath := filepath.Join(cfg.SnapDir, segmentName(42, SnapV11(false), ""))
	if _, err := os.Stat(finalPath); err != nil {
		t.Fatalf("expected final snapshot file to exist: %v", err)
	}
	inprogressPath := finalPath + ".inprogress"
	if _, err := os.Stat(inprogressPath); !os.IsNotExist(err) {
		t.Fatalf("expected .inprogress file to be gone after rename, stat err=%v", err)
	}
}
