// Package jpegquality estimates the libjpeg quality setting an image was
// encoded with by inverting the scaling of its quantization tables.
package jpegquality

import (
	"bytes"
	"errors"
	"io"
)

var (
	ErrInvalidJPEG  = errors.New("invalid JPEG header")
	ErrWrongTable   = errors.New("wrong size for quantization table")
	ErrShortSegment = errors.New("short segment length")
	ErrShortDQT     = errors.New("section DQT is too short")
	ErrMissingDQT   = errors.New("no quantization table found")
)

const (
	markerSOI = 0xffd8
	markerEOI = 0xffd9
	markerDQT = 0xffdb
	markerSOS = 0xffda
)

// Annex K.1 luminance quantization table - the base libjpeg scales from.
var stdLuminanceQuant = [64]int{
	16, 11, 10, 16, 24, 40, 51, 61,
	12, 12, 14, 19, 26, 58, 60, 55,
	14, 13, 16, 24, 40, 57, 69, 56,
	14, 17, 22, 29, 51, 87, 80, 62,
	18, 22, 37, 56, 68, 109, 103, 77,
	24, 35, 55, 64, 81, 104, 113, 92,
	49, 64, 78, 87, 103, 121, 120, 101,
	72, 92, 95, 98, 112, 100, 103, 99,
}

type jpegReader struct {
	rs      io.ReadSeeker
	quality int
}

// New parses JPEG headers from the reader and estimates encoding quality.
// The reader is rewound first, so it is safe to pass one that has been
// consumed already.
func New(rs io.ReadSeeker) (*jpegReader, error) {
	if _, err := rs.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	jr := &jpegReader{rs: rs}
	if jr.readMarker() != markerSOI {
		return nil, ErrInvalidJPEG
	}

	for {
		m := jr.readMarker()
		if m == 0 || m == markerEOI || m == markerSOS {
			// reached the entropy-coded data without seeing a table
			return nil, ErrMissingDQT
		}
		if m>>8 != 0xff {
			return nil, ErrInvalidJPEG
		}
		if (m >= 0xffd0 && m <= 0xffd7) || m == 0xff01 {
			// standalone markers carry no payload
			continue
		}

		var lenBuf [2]byte
		if _, err := io.ReadFull(jr.rs, lenBuf[:]); err != nil {
			return nil, ErrShortSegment
		}
		length := int(lenBuf[0])<<8 | int(lenBuf[1])
		if length < 2 {
			return nil, ErrShortSegment
		}

		payload := make([]byte, length-2)
		if _, err := io.ReadFull(jr.rs, payload); err != nil {
			return nil, ErrShortSegment
		}

		if m != markerDQT {
			continue
		}

		q, err := qualityFromDQT(payload)
		if err != nil {
			return nil, err
		}
		if q > 0 {
			jr.quality = q
			return jr, nil
		}
		// segment held only chrominance tables, keep looking
	}
}

// NewWithBytes is a convenience wrapper around New for in-memory images.
func NewWithBytes(data []byte) (*jpegReader, error) {
	return New(bytes.NewReader(data))
}

// Quality returns estimated encoding quality in libjpeg terms (1-100).
func (jr *jpegReader) Quality() int {
	return jr.quality
}

// readMarker reads the next two bytes as a big-endian marker, 0 on EOF.
func (jr *jpegReader) readMarker() int {
	var buf [2]byte
	if _, err := io.ReadFull(jr.rs, buf[:]); err != nil {
		return 0
	}
	return int(buf[0])<<8 | int(buf[1])
}

// qualityFromDQT walks tables in a DQT payload and inverts libjpeg scaling
// for the luminance one. Returns 0 when the segment has no luminance table.
func qualityFromDQT(payload []byte) (int, error) {
	for pos := 0; pos < len(payload); {
		pqtq := payload[pos]
		pq, tq := int(pqtq>>4), int(pqtq&0x0f)
		if pq > 1 || tq > 3 {
			return 0, ErrWrongTable
		}
		pos++

		n := 64
		if pq == 1 {
			n = 128
		}
		if len(payload)-pos < n {
			return 0, ErrShortDQT
		}

		if tq == 0 {
			var table [64]int
			for i := range 64 {
				if pq == 1 {
					table[i] = int(payload[pos+2*i])<<8 | int(payload[pos+2*i+1])
				} else {
					table[i] = int(payload[pos+i])
				}
			}
			return estimateQuality(table), nil
		}
		pos += n
	}
	return 0, nil
}

// estimateQuality recovers the quality setting: libjpeg derives each
// coefficient as base*scale/100 with scale = 5000/q (q < 50) or 200-2q,
// so the average observed scale factor inverts back to q.
func estimateQuality(table [64]int) int {
	var sum int
	for i, v := range table {
		if v < 1 {
			v = 1
		}
		sum += (200*v + stdLuminanceQuant[i]) / (2 * stdLuminanceQuant[i])
	}
	scale := sum / 64
	if scale <= 0 {
		scale = 1
	}

	var q int
	if scale <= 100 {
		q = (200 - scale) / 2
	} else {
		q = 5000 / scale
	}
	if q < 1 {
		q = 1
	}
	if q > 100 {
		q = 100
	}
	return q
}
