package wal

import "bytes"
import "hash/crc32"
import "testing"

func TestEncodeDecodeV11RoundTrip(t *testing.T) {
	row := Row{LSN: 42, TM: 1730400000.5, Payload: []byte("hello wal")}
	buf := EncodeV11(row)

	if len(buf) < 4 {
		t.Fatalf("frame too short: %d bytes", len(buf))
	}
	// first 4 bytes are the marker, not part of the frame decode() sees
	got, err := DecodeV11Frame(buf[4:])
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if got.LSN != row.LSN {
		t.Errorf("lsn: want %d, got %d", row.LSN, got.LSN)
	}
	if got.TM != row.TM {
		t.Errorf("tm: want %v, got %v", row.TM, got.TM)
	}
	if !bytes.Equal(got.Payload, row.Payload) {
		t.Errorf("payload: want %q, got %q", row.Payload, got.Payload)
	}
}

func TestDecodeV11HeaderCorruption(t *testing.T) {
	row := Row{LSN: 1, TM: 1.0, Payload: []byte("x")}
	buf := EncodeV11(row)
	frame := buf[4:]
	frame[5] ^= 0xFF // flip a byte inside lsn, header_crc32c no longer matches

	if _, err := DecodeV11Frame(frame); err != ErrCorrupt {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

func TestDecodeV11DataCorruption(t *testing.T) {
	row := Row{LSN: 1, TM: 1.0, Payload: []byte("payload-bytes")}
	buf := EncodeV11(row)
	frame := buf[4:]
	frame[len(frame)-1] ^= 0xFF // flip a payload byte, data_crc32c no longer matches

	if _, err := DecodeV11Frame(frame); err != ErrCorrupt {
		t.Fatalf("want ErrCorrupt, got %v", err)
	}
}

func TestDecodeV11ShortFrameIsCorrupt(t *testing.T) {
	row := Row{LSN: 1, TM: 1.0, Payload: []byte("abcdef")}
	buf := EncodeV11(row)
	frame := buf[4:]
	truncated := frame[:len(frame)-2] // cut inside the payload

	if _, err := DecodeV11Frame(truncated); err != ErrCorrupt {
		t.Fatalf("want ErrCorrupt on short frame, got %v", err)
	}
}

func TestDecodeV04FrameNormalizesIntoV11Shape(t *testing.T) {
	// hand-build a legacy v04 frame: lsn(8) type(2) len(4) data crc32(ieee)
	lsn := int64(7)
	typ := uint16(3)
	data := []byte("legacy-payload")

	frame := make([]byte, 14+len(data)+4)
	putLE64(frame[0:8], uint64(lsn))
	putLE16(frame[8:10], typ)
	putLE32(frame[10:14], uint32(len(data)))
	copy(frame[14:], data)

	crc := ieeeCRC(frame[:14+len(data)])
	putLE32(frame[14+len(data):], crc)

	row, err := DecodeV04Frame(frame)
	if err != nil {
		t.Fatalf("decode v04 failed: %v", err)
	}
	if row.LSN != lsn {
		t.Errorf("lsn: want %d, got %d", lsn, row.LSN)
	}
	// payload is tag(2,zero) ++ type(2) ++ data
	if len(row.Payload) != 4+len(data) {
		t.Fatalf("payload length: want %d, got %d", 4+len(data), len(row.Payload))
	}
	gotType := uint16(row.Payload[2]) | uint16(row.Payload[3])<<8
	if gotType != typ {
		t.Errorf("type: want %d, got %d", typ, gotType)
	}
	if !bytes.Equal(row.Payload[4:], data) {
		t.Errorf("data: want %q, got %q", data, row.Payload[4:])
	}
}

func TestDecodeV04RejectsImplausibleLength(t *testing.T) {
	frame := make([]byte, 14+4)
	putLE32(frame[10:14], uint32(maxV04Len+1))
	if _, err := DecodeV04Frame(frame); err != ErrCorrupt {
		t.Fatalf("want ErrCorrupt for oversized len, got %v", err)
	}
}

func putLE16(b []byte, v uint16) { b[0] = byte(v); b[1] = byte(v >> 8) }
func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
func putLE64(b []byte, v uint64) {
	for i := 0; i < 8; i++ {
		b[i] = byte(v >> (8 * i))
	}
}

func ieeeCRC(data []byte) uint32 {
	return crc32.ChecksumIEEE(data)
}
