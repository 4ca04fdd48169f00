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

import "encoding/binary"
import "fmt"
import "io"
import "os"
import "path/filepath"
import "time"

// Role distinguishes a segment handle opened for reading from one opened
// for writing; only the writer ever holds a write-role handle.
type Role int

const (
	RoleRead Role = iota
	RoleWrite
)

// Segment is a handle over one physical log file: its class, current
// offset, and role. Reading is a pull-based iterator (Next); writing
// appends one frame at a time (see Writer for the actor that drives it).
type Segment struct {
	f    *os.File
	Path string
	Role Role
	LSN  int64
	Tail string // ".inprogress", ".N", or ""

	Class     SegmentClass
	classList ClassList // classes this read handle was opened against

	goodOffset int64 // position after the header, or after the last good frame
	rows       int

	cleanlyClosed bool
	scanEOF       bool
	corruptSeen   int

	scratch *scratchArena // read-role only; reused across decodeFrameAt calls
}

// OpenRead opens dir/<lsn>.<class-suffix> (or, if path is non-empty, that
// exact path) for reading. classes lets a caller accept several on-disk
// versions at once (spec.md §4.2): the concrete class is selected by
// matching the header's version line.
func OpenRead(dir string, classes ClassList, lsn int64, path string) (*Segment, error) {
	if len(classes) == 0 {
		return nil, fmt.Errorf("wal: OpenRead requires at least one class")
	}
	if path == "" {
		path = filepath.Join(dir, segmentName(lsn, classes[0], ""))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	s := &Segment{f: f, Path: path, Role: RoleRead, LSN: lsn, classList: classes, scratch: newScratchArena(128 << 10)}
	if err := s.readHeader(classes); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// OpenWrite creates dir/<lsn>.<class-suffix><tail> exclusively
// (O_WRONLY|O_CREATE|O_EXCL|O_APPEND, mode 0664) and writes the class
// header. tail is "" for a finished name, ".inprogress" for a snapshot in
// progress, or ".N" for the writer's conflict-disambiguation retries.
func OpenWrite(dir string, class SegmentClass, lsn int64, tail string) (*Segment, error) {
	path := filepath.Join(dir, segmentName(lsn, class, tail))
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL|os.O_APPEND, 0664)
	if err != nil {
		return nil, err
	}
	s := &Segment{f: f, Path: path, Role: RoleWrite, LSN: lsn, Tail: tail, Class: class}
	if err := s.writeHeader(); err != nil {
		f.Close()
		os.Remove(path)
		return nil, err
	}
	return s, nil
}

func (s *Segment) readHeader(classes ClassList) error {
	filetype, err := readLine(s.f)
	if err != nil {
		return err
	}
	version, err := readLine(s.f)
	if err != nil {
		return err
	}
	class, ok := classes.ByVersion(version + "\n")
	if !ok || class.Filetype != filetype+"\n" {
		return fmt.Errorf("wal: %s: unrecognized header %q %q", s.Path, filetype, version)
	}
	s.Class = class

	if class.Codec == CodecV11 {
		for {
			line, err := readLine(s.f)
			if err != nil {
				return err
			}
			if line == "" {
				break // blank line terminates the v11 header
			}
		}
	} else {
		// legacy: exactly one free-form line (typically a timestamp)
		if _, err := readLine(s.f); err != nil {
			return err
		}
	}

	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return err
	}
	s.goodOffset = pos
	return nil
}

func (s *Segment) writeHeader() error {
	if _, err := s.f.WriteString(s.Class.Filetype); err != nil {
		return err
	}
	if _, err := s.f.WriteString(s.Class.Version); err != nil {
		return err
	}
	if s.Class.Codec == CodecV11 {
		if _, err := s.f.WriteString("\n"); err != nil { // blank line terminator
			return err
		}
	} else {
		if _, err := s.f.WriteString(time.Now().UTC().Format(time.RFC3339) + "\n"); err != nil {
			return err
		}
	}
	return nil
}

func readLine(f *os.File) (string, error) {
	var line []byte
	buf := make([]byte, 1)
	for {
		n, err := f.Read(buf)
		if n == 1 {
			if buf[0] == '\n' {
				return string(line), nil
			}
			line = append(line, buf[0])
		}
		if err != nil {
			return "", err
		}
	}
}

// Next pulls the next row out of the segment, resynchronizing on
// corruption per spec.md §4.2. It returns ErrEOF at a clean (or unclean)
// end of stream; check CleanlyClosed() afterward. Corrupt frames are
// logged and skipped unless Class.PanicIfError, in which case Next panics.
func (s *Segment) Next() (Row, error) {
	if s.Role != RoleRead {
		return Row{}, fmt.Errorf("wal: Next called on a write-role segment")
	}
	if s.scanEOF {
		return Row{}, ErrEOF
	}

	for {
		markerPos, found := s.findMarker()
		if !found {
			s.finishScan()
			return Row{}, ErrEOF
		}
		if markerPos > s.goodOffset {
			fmt.Println("wal: skipped", markerPos-s.goodOffset, "bytes of garbage in", s.Path)
		}

		row, frameEnd, err := s.decodeFrameAt(markerPos)
		if err != nil {
			s.corruptSeen++
			if s.Class.PanicIfError {
				panic(fmt.Sprintf("wal: corrupt row in %s at offset %d: %v", s.Path, markerPos, err))
			}
			fmt.Println("wal: corrupt row in", s.Path, "at offset", markerPos, "- resyncing")
			if _, err := s.f.Seek(markerPos+1, io.SeekStart); err != nil {
				return Row{}, err
			}
			continue
		}

		s.goodOffset = frameEnd
		s.rows++
		return row, nil
	}
}

// findMarker slides a MarkerSize-byte window forward from the current
// file position until it matches Class.Marker, returning the offset
// where the match begins. It returns found=false on a clean end of
// available data (spec.md §4.2's "if EOF -> goto eof").
func (s *Segment) findMarker() (int64, bool) {
	start, _ := s.f.Seek(0, io.SeekCurrent)
	window := make([]byte, s.Class.MarkerSize)
	filled := 0
	pos := start

	for {
		var b [1]byte
		n, err := s.f.Read(b[:])
		if n == 0 {
			if err != nil {
				return 0, false
			}
			continue
		}
		if filled < s.Class.MarkerSize {
			window[filled] = b[0]
			filled++
		} else {
			copy(window, window[1:])
			window[s.Class.MarkerSize-1] = b[0]
		}
		pos++
		if filled == s.Class.MarkerSize && wordValue(window) == s.Class.Marker {
			return pos - int64(s.Class.MarkerSize), true
		}
	}
}

func wordValue(window []byte) uint64 {
	switch len(window) {
	case 4:
		return uint64(binary.LittleEndian.Uint32(window))
	case 8:
		return binary.LittleEndian.Uint64(window)
	default:
		return 0
	}
}

// decodeFrameAt reads and validates the frame whose marker starts at
// markerPos (the marker itself has already been consumed by findMarker;
// the file cursor sits right after it). It returns the decoded row and
// the file offset immediately following the frame.
func (s *Segment) decodeFrameAt(markerPos int64) (Row, int64, error) {
	switch s.Class.Codec {
	case CodecV11:
		header := make([]byte, v11HeaderSize)
		if _, err := io.ReadFull(s.f, header); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		payloadLen := binary.LittleEndian.Uint32(header[20:24])
		frame := s.scratch.take(v11HeaderSize + int(payloadLen))
		copy(frame, header)
		if _, err := io.ReadFull(s.f, frame[v11HeaderSize:]); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		row, err := DecodeV11Frame(frame)
		if err != nil {
			return Row{}, 0, err
		}
		return row, markerPos + int64(s.Class.MarkerSize) + int64(len(frame)), nil

	case CodecV04:
		prefix := make([]byte, 14)
		if _, err := io.ReadFull(s.f, prefix); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		length := binary.LittleEndian.Uint32(prefix[10:14])
		if length > maxV04Len {
			return Row{}, 0, ErrCorrupt
		}
		rest := make([]byte, int(length)+4)
		if _, err := io.ReadFull(s.f, rest); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		frame := append(prefix, rest...)
		row, err := DecodeV04Frame(frame)
		if err != nil {
			return Row{}, 0, err
		}
		return row, markerPos + int64(s.Class.MarkerSize) + int64(len(frame)), nil

	case CodecV04Snap:
		prefix := make([]byte, 14)
		if _, err := io.ReadFull(s.f, prefix); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		length := binary.LittleEndian.Uint32(prefix[10:14])
		if length > maxV04Len {
			return Row{}, 0, ErrCorrupt
		}
		rest := make([]byte, int(length)+4)
		if _, err := io.ReadFull(s.f, rest); err != nil {
			return Row{}, 0, ErrCorrupt
		}
		frame := append(prefix, rest...)
		row, err := DecodeV04Frame(frame)
		if err != nil {
			return Row{}, 0, err
		}
		return row, markerPos + int64(s.Class.MarkerSize) + int64(len(frame)), nil
	}
	return Row{}, 0, ErrCorrupt
}

// finishScan runs the clean-close check (spec.md §4.2's "eof:" label) and
// seeks the file back to the last good offset so a concurrent writer's
// append is observed on the next scan.
func (s *Segment) finishScan() {
	s.scanEOF = true

	if s.Class.EOFMarkerSize > 0 {
		s.f.Seek(s.goodOffset, io.SeekStart)
		trailer := make([]byte, s.Class.EOFMarkerSize)
		n, err := io.ReadFull(s.f, trailer)
		if err == nil && n == s.Class.EOFMarkerSize && wordValue(trailer) == s.Class.EOFMarker {
			s.cleanlyClosed = true
		}
	} else {
		pos, _ := s.f.Seek(0, io.SeekCurrent)
		if pos == s.goodOffset {
			s.cleanlyClosed = true
		}
	}

	s.f.Seek(s.goodOffset, io.SeekStart)
}

// CleanlyClosed reports whether the segment's trailing bytes prove it was
// closed normally (eof marker present, or no trailing garbage when the
// class has no eof marker). Only meaningful after Next has returned ErrEOF.
func (s *Segment) CleanlyClosed() bool { return s.cleanlyClosed }

// CorruptCount is the number of frames this scan skipped due to corruption.
func (s *Segment) CorruptCount() int { return s.corruptSeen }

// GoodOffset is the file position after the last successfully yielded row.
func (s *Segment) GoodOffset() int64 { return s.goodOffset }

// Rows is the number of rows successfully yielded (read role) or written
// (write role) in this segment so far.
func (s *Segment) Rows() int { return s.rows }

// WriteRow appends one frame to a write-role segment: marker + v11 frame.
// A short write is reported to the caller, who must treat it as fatal to
// the request (spec.md §7 "Short write / fsync failure").
func (s *Segment) WriteRow(row Row) error {
	if s.Role != RoleWrite {
		return fmt.Errorf("wal: WriteRow called on a read-role segment")
	}
	frame := EncodeV11(row)
	n, err := s.f.Write(frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("wal: short write to %s (%d of %d bytes)", s.Path, n, len(frame))
	}
	s.rows++
	return nil
}

// Flush flushes buffered writer state to the OS (os.File has no userspace
// buffer, so this is a no-op placeholder kept for symmetry with Sync).
func (s *Segment) Flush() error { return nil }

// Sync calls fsync/fdatasync on the underlying file.
func (s *Segment) Sync() error { return s.f.Sync() }

// Close closes the handle. A write-role handle first appends the class's
// eof marker, if any, marking the file as cleanly closed for later readers.
func (s *Segment) Close() error {
	if s.Role == RoleWrite && s.Class.EOFMarkerSize > 0 {
		trailer := make([]byte, s.Class.EOFMarkerSize)
		switch s.Class.EOFMarkerSize {
		case 4:
			binary.LittleEndian.PutUint32(trailer, uint32(s.Class.EOFMarker))
		case 8:
			binary.LittleEndian.PutUint64(trailer, s.Class.EOFMarker)
		}
		if _, err := s.f.Write(trailer); err != nil {
			s.f.Close()
			return err
		}
	}
	return s.f.Close()
}
