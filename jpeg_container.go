package motionheic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sort"
)

const (
	markerStart = 0xFF
	markerSOI   = 0xD8
	markerEOI   = 0xD9
	markerSOS   = 0xDA
	markerAPP0  = 0xE0
	markerAPP1  = 0xE1
	markerAPP2  = 0xE2
)

const (
	xmpNamespace = "http://ns.adobe.com/xap/1.0/"
	isoNamespace = "urn:iso:std:iso:ts:21496:-1"
)

var (
	exifSig = []byte{'E', 'x', 'i', 'f', 0, 0}
	iccSig  = []byte{'I', 'C', 'C', '_', 'P', 'R', 'O', 'F', 'I', 'L', 'E', 0}
)

// walkSegments iterates marker segments of a JPEG starting at data[start]
// (which must be SOI), invoking fn with each sized segment's marker and the
// absolute payload bounds. Iteration ends at SOS or EOI, or when fn returns
// true. Stand-alone markers (RST, TEM, a stray SOI) are skipped.
func walkSegments(data []byte, start int, fn func(marker byte, payloadStart, payloadEnd int) (stop bool)) error {
	if start+1 >= len(data) || data[start] != markerStart || data[start+1] != markerSOI {
		return errors.New("invalid JPEG")
	}
	pos := start + 2
	for pos+3 < len(data) {
		if data[pos] != markerStart {
			pos++
			continue
		}
		for pos < len(data) && data[pos] == markerStart {
			pos++
		}
		if pos >= len(data) {
			break
		}
		marker := data[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			return nil
		}
		if marker == markerSOI || marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			continue
		}
		if pos+1 >= len(data) {
			return errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(data[pos:]))
		if segLen < 2 || pos+segLen > len(data) {
			return errors.New("invalid segment length")
		}
		if fn(marker, pos+2, pos+segLen) {
			return nil
		}
		pos += segLen
	}
	return nil
}

// scanJPEGs locates the byte ranges of the JPEG images concatenated in
// data. The MPF index is authoritative when present and sane; otherwise a
// linear SOI/EOI scan is used.
func scanJPEGs(data []byte) ([][2]int, error) {
	if ranges, ok := scanJPEGsByMPF(data); ok {
		return ranges, nil
	}
	var ranges [][2]int
	i := 0
	for i+1 < len(data) {
		if data[i] == markerStart && data[i+1] == markerSOI {
			end, err := findJPEGEnd(data, i)
			if err != nil {
				return nil, err
			}
			ranges = append(ranges, [2]int{i, end})
			i = end
			continue
		}
		i++
	}
	if len(ranges) == 0 {
		return nil, errors.New("no JPEG images found")
	}
	return ranges, nil
}

func scanJPEGsByMPF(data []byte) ([][2]int, bool) {
	if len(data) < 4 || data[0] != markerStart || data[1] != markerSOI {
		return nil, false
	}
	primarySize, secondarySize, secondaryOffset, ok := findMPFInfo(data)
	if !ok || primarySize <= 0 || secondarySize <= 0 {
		return nil, false
	}
	primaryEnd := primarySize
	secondaryEnd := secondaryOffset + secondarySize
	if primaryEnd > len(data) || secondaryEnd > len(data) || secondaryOffset < 0 {
		return nil, false
	}
	if secondaryOffset+1 >= len(data) || data[secondaryOffset] != markerStart || data[secondaryOffset+1] != markerSOI {
		return nil, false
	}
	return [][2]int{{0, primaryEnd}, {secondaryOffset, secondaryEnd}}, true
}

// findMPFInfo reads the primary image's MPF index, returning the primary
// size and the secondary image's size and absolute offset.
func findMPFInfo(data []byte) (primarySize, secondarySize, secondaryOffset int, ok bool) {
	err := walkSegments(data, 0, func(marker byte, payloadStart, payloadEnd int) bool {
		if marker != markerAPP2 || !bytes.HasPrefix(data[payloadStart:payloadEnd], mpfSig) {
			return false
		}
		info, perr := parseMPF(data[payloadStart:payloadEnd])
		if perr != nil {
			return true
		}
		tiffHeaderAbs := payloadStart + len(mpfSig)
		primarySize = info.primarySize
		secondarySize = info.secondarySize
		secondaryOffset = tiffHeaderAbs + info.secondaryOffset
		ok = true
		return true
	})
	if err != nil {
		return 0, 0, 0, false
	}
	return primarySize, secondarySize, secondaryOffset, ok
}

// findJPEGEnd returns the exclusive end offset of the JPEG whose SOI is at
// start, walking through entropy-coded scan data to its EOI.
func findJPEGEnd(data []byte, start int) (int, error) {
	if start+1 >= len(data) || data[start] != markerStart || data[start+1] != markerSOI {
		return 0, errors.New("not a JPEG SOI")
	}
	pos := start + 2
	inScan := false
	for pos+1 < len(data) {
		if !inScan {
			if data[pos] != markerStart {
				pos++
				continue
			}
			for pos < len(data) && data[pos] == markerStart {
				pos++
			}
			if pos >= len(data) {
				break
			}
			marker := data[pos]
			pos++
			switch marker {
			case markerSOI:
				continue
			case markerEOI:
				return pos, nil
			case markerSOS:
				if pos+1 >= len(data) {
					return 0, errors.New("truncated SOS")
				}
				pos += int(binary.BigEndian.Uint16(data[pos:]))
				inScan = true
				continue
			}
			if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
				continue
			}
			if pos+1 >= len(data) {
				return 0, errors.New("truncated marker segment")
			}
			segLen := int(binary.BigEndian.Uint16(data[pos:]))
			if segLen < 2 {
				return 0, errors.New("invalid marker length")
			}
			pos += segLen
			continue
		}

		// In scan data: 0xFF00 is a stuffed byte, RSTn continue the scan.
		if data[pos] == markerStart {
			if pos+1 >= len(data) {
				return 0, errors.New("truncated scan data")
			}
			next := data[pos+1]
			switch {
			case next == 0x00:
				pos += 2
				continue
			case next >= 0xD0 && next <= 0xD7:
				pos += 2
				continue
			case next == markerEOI:
				return pos + 2, nil
			default:
				pos += 2
				if pos+1 >= len(data) {
					return 0, errors.New("truncated marker in scan")
				}
				segLen := int(binary.BigEndian.Uint16(data[pos:]))
				if segLen < 2 {
					return 0, errors.New("invalid marker length in scan")
				}
				pos += segLen
				continue
			}
		}
		pos++
	}
	return 0, errors.New("no EOI found")
}

// extractAppSegments returns copies of all APP1 and APP2 payloads ahead of
// the scan data.
func extractAppSegments(jpegData []byte) (app1 [][]byte, app2 [][]byte, err error) {
	err = walkSegments(jpegData, 0, func(marker byte, payloadStart, payloadEnd int) bool {
		payload := append([]byte(nil), jpegData[payloadStart:payloadEnd]...)
		switch marker {
		case markerAPP1:
			app1 = append(app1, payload)
		case markerAPP2:
			app2 = append(app2, payload)
		}
		return false
	})
	if err != nil {
		return nil, nil, err
	}
	return app1, app2, nil
}

// extractContainerHeaderSegments returns APP1/APP2 payloads from the
// container header only, stopping at the MPF index (everything after it
// belongs to the embedded primary image).
func extractContainerHeaderSegments(data []byte) (app1 [][]byte, app2 [][]byte, err error) {
	err = walkSegments(data, 0, func(marker byte, payloadStart, payloadEnd int) bool {
		payload := append([]byte(nil), data[payloadStart:payloadEnd]...)
		switch marker {
		case markerAPP1:
			app1 = append(app1, payload)
		case markerAPP2:
			app2 = append(app2, payload)
			if bytes.HasPrefix(payload, mpfSig) {
				return true
			}
		}
		return false
	})
	if err != nil {
		return nil, nil, err
	}
	return app1, app2, nil
}

func findXMP(app1 [][]byte) []byte {
	prefix := append([]byte(xmpNamespace), 0)
	for _, seg := range app1 {
		if bytes.HasPrefix(seg, prefix) {
			return seg
		}
	}
	return nil
}

func findISO(app2 [][]byte) []byte {
	prefix := append([]byte(isoNamespace), 0)
	for _, seg := range app2 {
		if bytes.HasPrefix(seg, prefix) {
			return seg
		}
	}
	return nil
}

// extractExifAndIcc returns the EXIF APP1 payload (if present) and the ICC
// APP2 payloads in sequence order.
func extractExifAndIcc(jpegData []byte) ([]byte, [][]byte, error) {
	app1, app2, err := extractAppSegments(jpegData)
	if err != nil {
		return nil, nil, err
	}
	var exif []byte
	for _, seg := range app1 {
		if bytes.HasPrefix(seg, exifSig) {
			exif = append([]byte(nil), seg...)
			break
		}
	}
	type iccSegment struct {
		seq  int
		data []byte
	}
	var iccSegs []iccSegment
	for _, seg := range app2 {
		if bytes.HasPrefix(seg, iccSig) && len(seg) >= len(iccSig)+2 {
			iccSegs = append(iccSegs, iccSegment{seq: int(seg[len(iccSig)]), data: append([]byte(nil), seg...)})
		}
	}
	if len(iccSegs) == 0 {
		return exif, nil, nil
	}
	sort.Slice(iccSegs, func(i, j int) bool { return iccSegs[i].seq < iccSegs[j].seq })
	out := make([][]byte, 0, len(iccSegs))
	for _, s := range iccSegs {
		out = append(out, s.data)
	}
	return exif, out, nil
}

func writeAppSegment(out *bytes.Buffer, marker byte, payload []byte) {
	out.WriteByte(markerStart)
	out.WriteByte(marker)
	length := uint16(len(payload) + 2)
	out.WriteByte(byte(length >> 8))
	out.WriteByte(byte(length))
	out.Write(payload)
}
