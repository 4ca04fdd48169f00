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
import "errors"
import "hash/crc32"
import "math"

/*

record codec

a row is the unit of logging. v11 is the current on-disk frame; v04 is
read-only legacy compatibility. both are framed by a class-specific
marker (see class.go) so a corrupt frame can be resynchronized by
scanning forward for the next marker.

*/

// MarkerV11 precedes every v11 frame in a segment.
const MarkerV11 uint32 = 0xBA0BABED

// EOFMarkerV11 is appended by the writer when a v11 segment is closed cleanly.
const EOFMarkerV11 uint32 = 0x10ADAB1E

// MarkerV04Xlog precedes every v04 xlog frame.
const MarkerV04Xlog uint64 = 0xFFFFFFFFFFFFFFFF

// EOFMarkerV04Xlog is the all-zero trailer of a cleanly closed v04 xlog.
const EOFMarkerV04Xlog uint64 = 0

// MarkerV04Snap precedes every v04/v03 snap frame; snap has no eof marker.
const MarkerV04Snap uint32 = 0xFFFFFFFF

// maxV04Len rejects implausible legacy payload lengths (spec.md §4.1).
const maxV04Len = 1 << 20 // 1 MiB

// v11HeaderSize is the frame size excluding the marker and the payload:
// header_crc32c(4) + lsn(8) + tm(8) + len(4) + data_crc32c(4).
const v11HeaderSize = 28

var (
	// ErrCorrupt is returned for CRC mismatches, implausible lengths, or a
	// short read inside a frame. Callers may resynchronize on MarkerV11.
	ErrCorrupt = errors.New("wal: corrupt row")
	// ErrEOF is returned on a clean end of stream at a frame boundary.
	ErrEOF = errors.New("wal: eof")
)

var castagnoliTable = crc32.MakeTable(crc32.Castagnoli)

// Row is the unit of logging: a single LSN-identified, checksummed payload.
type Row struct {
	LSN     int64
	TM      float64
	Payload []byte
}

// EncodeV11 renders row into a full frame, including the leading marker.
// It never fails for a well-formed row (payload length fits in a uint32).
func EncodeV11(row Row) []byte {
	buf := make([]byte, 4+v11HeaderSize+len(row.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], MarkerV11)

	frame := buf[4:]
	binary.LittleEndian.PutUint64(frame[4:12], uint64(row.LSN))
	binary.LittleEndian.PutUint64(frame[12:20], math.Float64bits(row.TM))
	binary.LittleEndian.PutUint32(frame[20:24], uint32(len(row.Payload)))
	dataCRC := crc32.Checksum(row.Payload, castagnoliTable)
	binary.LittleEndian.PutUint32(frame[24:28], dataCRC)
	copy(frame[28:], row.Payload)

	headerCRC := crc32.Checksum(frame[4:28], castagnoliTable)
	binary.LittleEndian.PutUint32(frame[0:4], headerCRC)

	return buf
}

// DecodeV11Frame decodes a v11 frame (not including the leading marker,
// which the caller has already consumed while scanning for resync points).
// frame must contain exactly the header and payload bytes.
func DecodeV11Frame(frame []byte) (Row, error) {
	if len(frame) < v11HeaderSize {
		return Row{}, ErrCorrupt
	}
	payloadLen := binary.LittleEndian.Uint32(frame[20:24])
	if len(frame) != v11HeaderSize+int(payloadLen) {
		return Row{}, ErrCorrupt
	}

	headerCRC := binary.LittleEndian.Uint32(frame[0:4])
	gotHeaderCRC := crc32.Checksum(frame[4:28], castagnoliTable)
	if headerCRC != gotHeaderCRC {
		return Row{}, ErrCorrupt
	}

	dataCRC := binary.LittleEndian.Uint32(frame[24:28])
	payload := frame[28:]
	gotDataCRC := crc32.Checksum(payload, castagnoliTable)
	if dataCRC != gotDataCRC {
		return Row{}, ErrCorrupt
	}

	lsn := int64(binary.LittleEndian.Uint64(frame[4:12]))
	tm := math.Float64frombits(binary.LittleEndian.Uint64(frame[12:20]))

	out := make([]byte, len(payload))
	copy(out, payload)
	return Row{LSN: lsn, TM: tm, Payload: out}, nil
}

// DecodeV04Frame decodes a legacy v04 frame (after its 8-byte marker has
// already been consumed) and normalizes it into a v11-shaped row: a
// default tag(0) is prepended to type++data to form Payload, per spec.md §4.1.
func DecodeV04Frame(frame []byte) (Row, error) {
	if len(frame) < 14 {
		return Row{}, ErrCorrupt
	}
	lsn := int64(binary.LittleEndian.Uint64(frame[0:8]))
	typ := binary.LittleEndian.Uint16(frame[8:10])
	length := binary.LittleEndian.Uint32(frame[10:14])
	if length > maxV04Len {
		return Row{}, ErrCorrupt
	}
	want := 14 + int(length) + 4
	if len(frame) != want {
		return Row{}, ErrCorrupt
	}
	data := frame[14 : 14+length]
	crcField := binary.LittleEndian.Uint32(frame[14+length : 14+length+4])

	ieee := crc32.NewIEEE()
	ieee.Write(frame[0 : 14+length])
	if ieee.Sum32() != crcField {
		return Row{}, ErrCorrupt
	}

	payload := make([]byte, 2+2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], 0) // default tag
	binary.LittleEndian.PutUint16(payload[2:4], typ)
	copy(payload[4:], data)

	return Row{LSN: lsn, Payload: payload}, nil
}
