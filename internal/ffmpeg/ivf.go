package ffmpeg

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	ivfHeaderSize      = 32
	ivfFrameHeaderSize = 12
)

var errBadIVF = errors.New("ivf: bad signature")

// ivfHeader is the 32-byte IVF file header.
type ivfHeader struct {
	FourCC    string // VP80 or VP90
	Width     uint16
	Height    uint16
	RateNum   uint32 // timebase denominator
	RateScale uint32 // timebase numerator
	Frames    uint32
}

func fourCC(family string) string {
	if family == "vp9" {
		return "VP90"
	}
	return "VP80"
}

func writeIVFHeader(w io.Writer, h ivfHeader) error {
	var b [ivfHeaderSize]byte
	copy(b[0:4], "DKIF")
	binary.LittleEndian.PutUint16(b[4:6], 0)
	binary.LittleEndian.PutUint16(b[6:8], ivfHeaderSize)
	copy(b[8:12], h.FourCC)
	binary.LittleEndian.PutUint16(b[12:14], h.Width)
	binary.LittleEndian.PutUint16(b[14:16], h.Height)
	binary.LittleEndian.PutUint32(b[16:20], h.RateNum)
	binary.LittleEndian.PutUint32(b[20:24], h.RateScale)
	binary.LittleEndian.PutUint32(b[24:28], h.Frames)
	_, err := w.Write(b[:])
	return err
}

func readIVFHeader(r io.Reader) (ivfHeader, error) {
	var b [ivfHeaderSize]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return ivfHeader{}, err
	}
	if string(b[0:4]) != "DKIF" {
		return ivfHeader{}, errBadIVF
	}
	if hl := binary.LittleEndian.Uint16(b[6:8]); hl > ivfHeaderSize {
		if _, err := io.CopyN(io.Discard, r, int64(hl-ivfHeaderSize)); err != nil {
			return ivfHeader{}, err
		}
	}
	return ivfHeader{
		FourCC:    string(b[8:12]),
		Width:     binary.LittleEndian.Uint16(b[12:14]),
		Height:    binary.LittleEndian.Uint16(b[14:16]),
		RateNum:   binary.LittleEndian.Uint32(b[16:20]),
		RateScale: binary.LittleEndian.Uint32(b[20:24]),
		Frames:    binary.LittleEndian.Uint32(b[24:28]),
	}, nil
}

// writeIVFFrame writes one frame as a single Write call.
func writeIVFFrame(w io.Writer, pts int64, data []byte) error {
	buf := make([]byte, ivfFrameHeaderSize+len(data))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(data)))
	binary.LittleEndian.PutUint64(buf[4:12], uint64(pts))
	copy(buf[ivfFrameHeaderSize:], data)
	_, err := w.Write(buf)
	return err
}

// maxIVFFrame guards against corrupt size fields.
const maxIVFFrame = 64 << 20

// readIVFFrame returns io.EOF at a clean end of stream.
func readIVFFrame(r io.Reader) (pts int64, data []byte, err error) {
	var hdr [ivfFrameHeaderSize]byte
	if _, err = io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	size := binary.LittleEndian.Uint32(hdr[0:4])
	if size > maxIVFFrame {
		return 0, nil, fmt.Errorf("ivf: frame size %d too large", size)
	}
	pts = int64(binary.LittleEndian.Uint64(hdr[4:12]))
	data = make([]byte, size)
	if _, err = io.ReadFull(r, data); err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return 0, nil, err
	}
	return pts, data, nil
}

// isKeyframe inspects the VP8 or VP9 frame header.
func isKeyframe(family string, frame []byte) bool {
	if len(frame) == 0 {
		return false
	}
	b := frame[0]
	if family != "vp9" {
		// VP8: frame_type is bit 0, 0 means key frame.
		return b&0x01 == 0
	}

	// VP9 uncompressed header, MSB first.
	if b>>6 != 0x2 {
		return false
	}
	profile := (b>>5)&1 | ((b>>4)&1)<<1
	pos := uint(4)
	if profile == 3 {
		pos++
	}
	if (b>>(7-pos))&1 == 1 { // show_existing_frame
		return false
	}
	pos++
	return (b>>(7-pos))&1 == 0
}
