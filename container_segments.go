package motionheic

import (
	"bytes"
	"encoding/binary"
	"errors"
	"regexp"
	"strconv"
)

var itemLengthRe = regexp.MustCompile(`Item:Length="\d+"`)

// containerParts collects the metadata blocks that go into the container
// header and the gain-map image header during assembly.
type containerParts struct {
	EXIF         []byte
	ICC          [][]byte
	PrimaryXMP   []byte
	SecondaryXMP []byte
	SecondaryISO []byte
}

// assembleUltraHDR builds the final JPEG/R byte stream from a compressed
// base image and gain-map image. Marker order in the container header is
// EXIF, XMP, ISO version, MPF, ICC, matching what libvips and Google's
// libultrahdr emit so strict readers accept the result. Any APP segments
// already present on the input JPEGs are dropped first; the header written
// here is the only source of metadata.
func assembleUltraHDR(base, gainmap *CompressedImage, parts *containerParts) ([]byte, error) {
	if base == nil || gainmap == nil || len(base.Bytes) < 2 || len(gainmap.Bytes) < 2 {
		return nil, errors.New("invalid JPEG data")
	}

	primary, err := stripAppSegments(base.Bytes)
	if err != nil {
		return nil, err
	}
	secondary, err := stripAppSegments(gainmap.Bytes)
	if err != nil {
		return nil, err
	}

	secondarySize := len(secondary) + appSize(parts.SecondaryXMP) + appSize(parts.SecondaryISO)

	primaryXMP := parts.PrimaryXMP
	if len(primaryXMP) > 0 {
		if primaryXMP, err = updatePrimaryXmpLength(primaryXMP, secondarySize); err != nil {
			return nil, err
		}
	}

	var out bytes.Buffer
	out.Write([]byte{markerStart, markerSOI})

	if len(parts.EXIF) > 0 {
		writeAppSegment(&out, markerAPP1, parts.EXIF)
	}
	if len(primaryXMP) > 0 {
		writeAppSegment(&out, markerAPP1, primaryXMP)
	}
	writeAppSegment(&out, markerAPP2, isoVersionPayload(parts.SecondaryISO))

	// MPF offsets are provisional here; replaceMpfPayload below rewrites
	// them once the real image ranges are known.
	mpfLen := 2 + calculateMpfSize()
	primarySize := out.Len() + mpfLen + len(primary)
	writeAppSegment(&out, markerAPP2, generateMpf(primarySize, 0, secondarySize, primarySize-out.Len()-8))

	for _, seg := range parts.ICC {
		writeAppSegment(&out, markerAPP2, seg)
	}

	out.Write(primary[2:])

	out.Write([]byte{markerStart, markerSOI})
	if len(parts.SecondaryXMP) > 0 {
		writeAppSegment(&out, markerAPP1, parts.SecondaryXMP)
	}
	if len(parts.SecondaryISO) > 0 {
		writeAppSegment(&out, markerAPP2, parts.SecondaryISO)
	}
	out.Write(secondary[2:])

	final := out.Bytes()
	if err := replaceMpfPayload(final); err != nil {
		return nil, err
	}
	return final, nil
}

// isoVersionPayload derives the version-only ISO 21496-1 block the primary
// image carries. When full gain-map metadata is available its leading
// version field is reused; otherwise a zero version is synthesized.
func isoVersionPayload(secondaryISO []byte) []byte {
	if len(secondaryISO) >= len(isoNamespace)+1+4 {
		return append([]byte(nil), secondaryISO[:len(isoNamespace)+1+4]...)
	}
	payload := append(append([]byte{}, []byte(isoNamespace)...), 0)
	return append(payload, 0, 0, 0, 0)
}

// assembleContainerFromSplit reassembles a container from a SplitResult's
// raw pieces, keeping the original XMP/ISO segments verbatim instead of
// regenerating them from parsed metadata. Unlike assembleUltraHDR the
// embedded JPEGs are written as-is.
func assembleContainerFromSplit(primaryJPEG, gainmapJPEG []byte, segs *MetadataSegments) ([]byte, error) {
	if len(primaryJPEG) < 2 || len(gainmapJPEG) < 2 {
		return nil, errors.New("invalid JPEG data")
	}

	secondarySize := len(gainmapJPEG) + appSize(segs.SecondaryXMP) + appSize(segs.SecondaryISO)

	primaryXMP := segs.PrimaryXMP
	if len(primaryXMP) > 0 {
		updated, err := updatePrimaryXmpLength(primaryXMP, secondarySize)
		if err != nil {
			return nil, err
		}
		primaryXMP = updated
	}

	var out bytes.Buffer
	out.Write([]byte{markerStart, markerSOI})
	if len(primaryXMP) > 0 {
		writeAppSegment(&out, markerAPP1, primaryXMP)
	}
	if len(segs.PrimaryISO) > 0 {
		writeAppSegment(&out, markerAPP2, segs.PrimaryISO)
	}

	mpfLen := 2 + calculateMpfSize()
	primarySize := out.Len() + mpfLen + len(primaryJPEG)
	writeAppSegment(&out, markerAPP2, generateMpf(primarySize, 0, secondarySize, primarySize-out.Len()-8))

	out.Write(primaryJPEG[2:])

	out.Write([]byte{markerStart, markerSOI})
	if len(segs.SecondaryXMP) > 0 {
		writeAppSegment(&out, markerAPP1, segs.SecondaryXMP)
	}
	if len(segs.SecondaryISO) > 0 {
		writeAppSegment(&out, markerAPP2, segs.SecondaryISO)
	}
	out.Write(gainmapJPEG[2:])

	return out.Bytes(), nil
}

// stripAppSegments removes APP0-APP15 and COM segments from a JPEG,
// leaving SOI, the frame/scan markers, and entropy-coded data.
func stripAppSegments(jpegData []byte) ([]byte, error) {
	if len(jpegData) < 4 || jpegData[0] != markerStart || jpegData[1] != markerSOI {
		return nil, errors.New("invalid jpeg")
	}
	var out bytes.Buffer
	out.Write([]byte{markerStart, markerSOI})
	pos := 2
	for pos+3 < len(jpegData) {
		if jpegData[pos] != markerStart {
			out.WriteByte(jpegData[pos])
			pos++
			continue
		}
		for pos < len(jpegData) && jpegData[pos] == markerStart {
			pos++
		}
		if pos >= len(jpegData) {
			break
		}
		marker := jpegData[pos]
		pos++
		if marker == markerSOS || marker == markerEOI {
			out.Write([]byte{markerStart, marker})
			out.Write(jpegData[pos:])
			return out.Bytes(), nil
		}
		if marker >= 0xD0 && marker <= 0xD7 {
			out.Write([]byte{markerStart, marker})
			continue
		}
		if pos+1 >= len(jpegData) {
			return nil, errors.New("truncated marker")
		}
		segLen := int(binary.BigEndian.Uint16(jpegData[pos:]))
		if segLen < 2 || pos+segLen > len(jpegData) {
			return nil, errors.New("invalid segment length")
		}
		segEnd := pos + segLen
		if marker == 0xFE || (marker >= markerAPP0 && marker <= 0xEF) {
			pos = segEnd
			continue
		}
		out.Write([]byte{markerStart, marker})
		out.Write(jpegData[pos:segEnd])
		pos = segEnd
	}
	return out.Bytes(), nil
}

// replaceMpfPayload rewrites the MPF index in place once the final byte
// layout of both embedded JPEGs is known. The regenerated payload must be
// the same length as the provisional one.
func replaceMpfPayload(data []byte) error {
	mpfStart, mpfLen := -1, -1
	if err := walkSegments(data, 0, func(marker byte, payloadStart, payloadEnd int) bool {
		if marker == markerAPP2 && bytes.HasPrefix(data[payloadStart:payloadEnd], mpfSig) {
			mpfStart, mpfLen = payloadStart, payloadEnd-payloadStart
			return true
		}
		return false
	}); err != nil {
		return err
	}
	if mpfStart < 0 || mpfLen <= 0 {
		return errors.New("mpf not found")
	}

	ranges, err := scanJPEGs(data)
	if err != nil || len(ranges) < 2 {
		return errors.New("jpeg ranges not found")
	}
	primarySize := ranges[0][1] - ranges[0][0]
	secondarySize := ranges[1][1] - ranges[1][0]
	// Offsets in the MP index are relative to the MPF TIFF header.
	secondaryOffset := ranges[1][0] - (mpfStart + 4)

	newMpf := generateMpf(primarySize, 0, secondarySize, secondaryOffset)
	if len(newMpf) != mpfLen {
		return errors.New("mpf size mismatch")
	}
	copy(data[mpfStart:mpfStart+mpfLen], newMpf)
	return nil
}

// updatePrimaryXmpLength patches the gain-map Item:Length attribute in the
// primary image's container-directory XMP.
func updatePrimaryXmpLength(payload []byte, newLen int) ([]byte, error) {
	if !bytes.Contains(payload, []byte(xmpNamespace)) {
		return nil, errors.New("primary xmp namespace missing")
	}
	str := string(payload)
	repl := itemLengthRe.ReplaceAllString(str, `Item:Length="`+strconv.Itoa(newLen)+`"`)
	if repl == str {
		return payload, nil
	}
	return []byte(repl), nil
}

// appSize is the on-wire size of an APP segment holding payload: two marker
// bytes, two length bytes, then the payload itself. Zero for an absent block.
func appSize(payload []byte) int {
	if len(payload) == 0 {
		return 0
	}
	return 4 + len(payload)
}
