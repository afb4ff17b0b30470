package ecg

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

/*
Acquisition board wire format. The board streams ADC samples over the serial
link in binary frames:

	[0xAA][0x55][LEN u8][TYPE u8][payload, LEN bytes][CRC16 u16 LE]

LEN counts payload bytes only. The CRC is CRC-16/CCITT-FALSE over LEN through
the end of the payload. TYPE 0x01 carries repeated (sample_id u16 LE,
adc u16 LE) pairs; other types are passed through undecoded.

The stream has no out-of-band framing, so the reader must tolerate partial
frames, coalesced frames, and corruption. Resynchronization after a CRC
failure drops a single byte and rescans, which bounds the amount of data lost
to one frame in the worst case.
*/

const (
	frameHeaderLen  = 2
	frameTrailerLen = 2 // CRC16

	// FrameTypeADC carries (sample_id u16, adc u16) pairs.
	FrameTypeADC = 0x01

	// frameOverhead is header + LEN + TYPE + CRC.
	frameOverhead = frameHeaderLen + 1 + 1 + frameTrailerLen

	// MaxFramePayload is the largest payload a single frame can carry.
	MaxFramePayload = 255
)

var frameHeader = []byte{0xAA, 0x55}

// RawFrameSample is one (sample_id, adc) pair from an ADC frame. SampleID is
// the board's wrapping 16-bit counter; it is distinct from the pipeline's
// 64-bit sequence, which is assigned at append time.
type RawFrameSample struct {
	SampleID uint16
	Raw      uint16
}

// SplitFrames is a bufio.SplitFunc that tokenizes a serial byte stream into
// whole validated frames. Bytes before a header, truncated trailing data at
// EOF, and frames with bad checksums are skipped.
func SplitFrames(data []byte, atEOF bool) (advance int, token []byte, err error) {
	for {
		idx := bytes.Index(data[advance:], frameHeader)
		if idx < 0 {
			// No header. Retain the final byte in case it is the first half
			// of a header split across reads.
			skip := len(data) - advance
			if !atEOF && skip > 0 {
				skip--
			}
			return advance + skip, nil, nil
		}
		start := advance + idx
		rest := data[start:]
		if len(rest) < frameHeaderLen+1 {
			if atEOF {
				return len(data), nil, nil
			}
			return start, nil, nil
		}
		total := frameOverhead + int(rest[frameHeaderLen])
		if len(rest) < total {
			if atEOF {
				return len(data), nil, nil
			}
			return start, nil, nil
		}
		frame := rest[:total]
		if !frameChecksumOK(frame) {
			// Drop one byte and rescan so a corrupt length byte cannot
			// swallow valid frames behind it.
			advance = start + 1
			continue
		}
		return start + total, frame, nil
	}
}

func frameChecksumOK(frame []byte) bool {
	body := frame[frameHeaderLen : len(frame)-frameTrailerLen]
	want := binary.LittleEndian.Uint16(frame[len(frame)-frameTrailerLen:])
	return CRC16CCITT(body) == want
}

// DecodeFrame parses a whole frame (as produced by SplitFrames) and returns
// the ADC samples it carries. Frames of other types decode to an empty slice.
func DecodeFrame(frame []byte) ([]RawFrameSample, error) {
	if len(frame) < frameOverhead || !bytes.HasPrefix(frame, frameHeader) {
		return nil, fmt.Errorf("malformed frame: %d bytes", len(frame))
	}
	payloadLen := int(frame[frameHeaderLen])
	if len(frame) != frameOverhead+payloadLen {
		return nil, fmt.Errorf("frame length mismatch: have %d bytes, LEN says %d", len(frame), payloadLen)
	}
	if !frameChecksumOK(frame) {
		return nil, fmt.Errorf("frame checksum mismatch")
	}
	typ := frame[frameHeaderLen+1]
	if typ != FrameTypeADC {
		return nil, nil
	}
	payload := frame[frameHeaderLen+2 : len(frame)-frameTrailerLen]
	n := len(payload) / 4
	samples := make([]RawFrameSample, 0, n)
	for i := 0; i < n; i++ {
		samples = append(samples, RawFrameSample{
			SampleID: binary.LittleEndian.Uint16(payload[i*4:]),
			Raw:      binary.LittleEndian.Uint16(payload[i*4+2:]),
		})
	}
	return samples, nil
}

// EncodeFrame builds an ADC frame carrying the given samples. Used by the
// virtual sender and by tests. At most 63 samples fit in one frame.
func EncodeFrame(samples []RawFrameSample) ([]byte, error) {
	payloadLen := len(samples) * 4
	if payloadLen > MaxFramePayload {
		return nil, fmt.Errorf("too many samples per frame: %d", len(samples))
	}
	frame := make([]byte, 0, frameOverhead+payloadLen)
	frame = append(frame, frameHeader...)
	frame = append(frame, byte(payloadLen), FrameTypeADC)
	for _, s := range samples {
		frame = binary.LittleEndian.AppendUint16(frame, s.SampleID)
		frame = binary.LittleEndian.AppendUint16(frame, s.Raw)
	}
	crc := CRC16CCITT(frame[frameHeaderLen:])
	frame = binary.LittleEndian.AppendUint16(frame, crc)
	return frame, nil
}
