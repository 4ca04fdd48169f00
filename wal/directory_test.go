package wal

import "os"
import "path/filepath"
import "testing"

func writeEmptySegmentFile(t *testing.T, dir string, name string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte("XLOG\n0.11\n\n"), 0664); err != nil {
		t.Fatalf("WriteFile %s: %v", name, err)
	}
}

func TestDirectoryScanOrdersAndIgnoresJunk(t *testing.T) {
	dir := t.TempDir()
	writeEmptySegmentFile(t, dir, "00000000000000000010.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000030.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000020.xlog")
	writeEmptySegmentFile(t, dir, "not-a-segment.txt")
	writeEmptySegmentFile(t, dir, "00000000000000000040.inprogress") // no suffix match, ignored
	writeEmptySegmentFile(t, dir, "00000000000000000050.xlog.inprogress")

	d := NewDirectory(dir, "xlog")
	lsns, err := d.Scan()
	if err != nil {
		t.Fatalf("Scan: %v", err)
	}
	want := []int64{10, 20, 30}
	if len(lsns) != len(want) {
		t.Fatalf("want %v, got %v", want, lsns)
	}
	for i := range want {
		if lsns[i] != want[i] {
			t.Fatalf("want %v, got %v", want, lsns)
		}
	}
}

func TestDirectoryGreatestLSN(t *testing.T) {
	dir := t.TempDir()
	d := NewDirectory(dir, "xlog")

	if lsn, err := d.GreatestLSN(); err != nil || lsn != 0 {
		t.Fatalf("empty dir: want (0, nil), got (%d, %v)", lsn, err)
	}

	writeEmptySegmentFile(t, dir, "00000000000000000100.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000200.xlog")

	lsn, err := d.GreatestLSN()
	if err != nil {
		t.Fatalf("GreatestLSN: %v", err)
	}
	if lsn != 200 {
		t.Errorf("want 200, got %d", lsn)
	}
}

func TestFindIncludingFile(t *testing.T) {
	dir := t.TempDir()
	writeEmptySegmentFile(t, dir, "00000000000000000010.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000020.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000030.xlog")

	d := NewDirectory(dir, "xlog")

	cases := []struct {
		target int64
		want   int64
	}{
		{5, 0},   // smaller than all
		{10, 10}, // exact match
		{15, 10}, // between files
		{25, 20},
		{1000, 30}, // larger than all
	}
	for _, c := range cases {
		got, err := d.FindIncludingFile(c.target)
		if err != nil {
			t.Fatalf("FindIncludingFile(%d): %v", c.target, err)
		}
		if got != c.want {
			t.Errorf("FindIncludingFile(%d): want %d, got %d", c.target, c.want, got)
		}
	}
}

func TestDirectoryTagsInUse(t *testing.T) {
	dir := t.TempDir()
	writeEmptySegmentFile(t, dir, "00000000000000000010.xlog")
	writeEmptySegmentFile(t, dir, "00000000000000000010.xlog.1")
	writeEmptySegmentFile(t, dir, "00000000000000000010.xlog.3")

	d := NewDirectory(dir, "xlog")
	bm, err := d.TagsInUse(10)
	if err != nil {
		t.Fatalf("TagsInUse: %v", err)
	}
	if !bm.Get(0) || !bm.Get(1) || bm.Get(2) || !bm.Get(3) {
		t.Errorf("unexpected tag bitmap state")
	}
}
