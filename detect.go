package motionheic

import (
	"bufio"
	"bytes"
	"errors"
	"io"
)

var (
	xmpPrefix = append([]byte(xmpNamespace), 0)
	isoPrefix = append([]byte(isoNamespace), 0)
)

// IsUltraHDR reports whether r is a JPEG/R container: a JPEG followed by a
// second embedded JPEG whose header carries gain-map metadata (Adobe hdrgm
// XMP or an ISO 21496-1 block). The check streams; it stops as soon as the
// gain-map header has been seen and never buffers the full image.
func IsUltraHDR(r io.Reader) (bool, error) {
	s := &markerStream{br: bufio.NewReader(r)}
	found, err := s.seekSOI()
	if err != nil || !found {
		return false, err
	}
	if err := s.skipImage(); err != nil {
		return false, err
	}
	found, err = s.seekSOI()
	if err != nil || !found {
		return false, err
	}
	return s.headerHasGainmapMetadata()
}

// markerStream walks JPEG marker structure over a buffered reader.
type markerStream struct {
	br *bufio.Reader
}

// seekSOI scans forward to the next SOI marker; false on clean EOF.
func (s *markerStream) seekSOI() (bool, error) {
	var prev byte
	for {
		b, err := s.br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return false, nil
			}
			return false, err
		}
		if prev == markerStart && b == markerSOI {
			return true, nil
		}
		prev = b
	}
}

// skipImage consumes the remainder of the current JPEG through its EOI.
func (s *markerStream) skipImage() error {
	for {
		marker, err := s.nextMarker()
		if err != nil {
			return err
		}
		switch marker {
		case markerEOI:
			return nil
		case markerSOS:
			return s.skipScan()
		default:
			if err := s.discardSegment(); err != nil {
				return err
			}
		}
	}
}

// headerHasGainmapMetadata scans the current image's header segments for an
// XMP or ISO gain-map block, stopping at the scan data.
func (s *markerStream) headerHasGainmapMetadata() (bool, error) {
	for {
		marker, err := s.nextMarker()
		if err != nil {
			return false, err
		}
		switch marker {
		case markerEOI, markerSOS:
			return false, nil
		case markerAPP1, markerAPP2:
			match, err := s.segmentHasPrefix(marker)
			if err != nil {
				return false, err
			}
			if match {
				return true, nil
			}
		default:
			if err := s.discardSegment(); err != nil {
				return false, err
			}
		}
	}
}

func (s *markerStream) nextMarker() (byte, error) {
	for {
		b, err := s.br.ReadByte()
		if err != nil {
			return 0, err
		}
		if b != markerStart {
			continue
		}
		for {
			m, err := s.br.ReadByte()
			if err != nil {
				return 0, err
			}
			if m != markerStart {
				return m, nil
			}
		}
	}
}

func (s *markerStream) segmentLength() (int, error) {
	hi, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	lo, err := s.br.ReadByte()
	if err != nil {
		return 0, err
	}
	length := int(hi)<<8 | int(lo)
	if length < 2 {
		return 0, errors.New("invalid segment length")
	}
	return length - 2, nil
}

func (s *markerStream) discardSegment() error {
	n, err := s.segmentLength()
	if err != nil {
		return err
	}
	return s.discard(n)
}

// segmentHasPrefix reads just enough of an APP1/APP2 payload to match the
// XMP or ISO namespace prefix, discarding the rest.
func (s *markerStream) segmentHasPrefix(marker byte) (bool, error) {
	payloadLen, err := s.segmentLength()
	if err != nil {
		return false, err
	}
	prefix := isoPrefix
	if marker == markerAPP1 {
		prefix = xmpPrefix
	}
	readLen := payloadLen
	if readLen > len(prefix) {
		readLen = len(prefix)
	}
	buf := make([]byte, readLen)
	if _, err := io.ReadFull(s.br, buf); err != nil {
		return false, err
	}
	if err := s.discard(payloadLen - readLen); err != nil {
		return false, err
	}
	return bytes.HasPrefix(buf, prefix), nil
}

func (s *markerStream) discard(n int) error {
	if n <= 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, s.br, int64(n))
	return err
}

// skipScan consumes entropy-coded data through the image's EOI.
func (s *markerStream) skipScan() error {
	for {
		b, err := s.br.ReadByte()
		if err != nil {
			return err
		}
		if b != markerStart {
			continue
		}
		m, err := s.br.ReadByte()
		if err != nil {
			return err
		}
		for m == markerStart {
			m, err = s.br.ReadByte()
			if err != nil {
				return err
			}
		}
		if m == 0x00 || (m >= 0xD0 && m <= 0xD7) {
			continue
		}
		if m == markerEOI {
			return nil
		}
	}
}
