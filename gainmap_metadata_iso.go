package motionheic

import (
	"encoding/binary"
	"errors"
	"math"
)

// ISO 21496-1 gain-map metadata block: fixed-point fractions, big-endian,
// with flag bits selecting multi-channel layout and a common denominator.
const (
	isoFlagMultiChannel = 1 << 7
	isoFlagUseBaseColor = 1 << 6
	isoFlagBackward     = 1 << 2
	isoFlagCommonDenom  = 1 << 3
)

// isoGainmapRecord is the fractional (wire) form of GainMapMetadata.
type isoGainmapRecord struct {
	GainMapMinN       [3]int32
	GainMapMinD       [3]uint32
	GainMapMaxN       [3]int32
	GainMapMaxD       [3]uint32
	GammaN            [3]uint32
	GammaD            [3]uint32
	BaseOffsetN       [3]int32
	BaseOffsetD       [3]uint32
	AltOffsetN        [3]int32
	AltOffsetD        [3]uint32
	BaseHdrHeadroomN  uint32
	BaseHdrHeadroomD  uint32
	AltHdrHeadroomN   uint32
	AltHdrHeadroomD   uint32
	BackwardDirection bool
	UseBaseColorSpace bool
}

func decodeGainmapMetadataISO(data []byte) (*GainMapMetadata, error) {
	var rec isoGainmapRecord
	if err := rec.unmarshal(data); err != nil {
		return nil, err
	}
	meta := GainMapMetadata{Version: jpegrVersion}
	rec.toFloat(&meta)
	return &meta, nil
}

func encodeGainmapMetadataISO(meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("gainmap metadata missing")
	}
	var rec isoGainmapRecord
	if err := rec.fromFloat(meta); err != nil {
		return nil, err
	}
	return rec.marshal(), nil
}

// buildIsoPayload wraps the encoded metadata with the APP2 namespace
// prefix ready to be written as a segment payload.
func buildIsoPayload(meta *GainMapMetadata) ([]byte, error) {
	encoded, err := encodeGainmapMetadataISO(meta)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, 0, len(isoNamespace)+1+len(encoded))
	payload = append(payload, []byte(isoNamespace)...)
	payload = append(payload, 0)
	return append(payload, encoded...), nil
}

// isoReader is a bounds-checked big-endian cursor.
type isoReader struct {
	in  []byte
	pos int
	err error
}

func (r *isoReader) u8() uint8 {
	if r.err != nil {
		return 0
	}
	if r.pos+1 > len(r.in) {
		r.err = errors.New("iso metadata truncated")
		return 0
	}
	v := r.in[r.pos]
	r.pos++
	return v
}

func (r *isoReader) u16() uint16 {
	if r.err != nil {
		return 0
	}
	if r.pos+2 > len(r.in) {
		r.err = errors.New("iso metadata truncated")
		return 0
	}
	v := binary.BigEndian.Uint16(r.in[r.pos:])
	r.pos += 2
	return v
}

func (r *isoReader) u32() uint32 {
	if r.err != nil {
		return 0
	}
	if r.pos+4 > len(r.in) {
		r.err = errors.New("iso metadata truncated")
		return 0
	}
	v := binary.BigEndian.Uint32(r.in[r.pos:])
	r.pos += 4
	return v
}

func (r *isoReader) s32() int32 { return int32(r.u32()) }

func (m *isoGainmapRecord) unmarshal(in []byte) error {
	r := &isoReader{in: in}

	if minVer := r.u16(); r.err == nil && minVer != 0 {
		return errors.New("unsupported iso min_version")
	}
	r.u16() // writer version, ignored

	flags := r.u8()
	if r.err != nil {
		return r.err
	}
	channels := 1
	if flags&isoFlagMultiChannel != 0 {
		channels = 3
	}
	m.UseBaseColorSpace = flags&isoFlagUseBaseColor != 0
	m.BackwardDirection = flags&isoFlagBackward != 0
	// A single-channel record applies its values to all three channels.
	defer func() {
		for c := 1; c < 3 && channels == 1; c++ {
			m.GainMapMinN[c], m.GainMapMinD[c] = m.GainMapMinN[0], m.GainMapMinD[0]
			m.GainMapMaxN[c], m.GainMapMaxD[c] = m.GainMapMaxN[0], m.GainMapMaxD[0]
			m.GammaN[c], m.GammaD[c] = m.GammaN[0], m.GammaD[0]
			m.BaseOffsetN[c], m.BaseOffsetD[c] = m.BaseOffsetN[0], m.BaseOffsetD[0]
			m.AltOffsetN[c], m.AltOffsetD[c] = m.AltOffsetN[0], m.AltOffsetD[0]
		}
	}()

	if flags&isoFlagCommonDenom != 0 {
		denom := r.u32()
		m.BaseHdrHeadroomD, m.AltHdrHeadroomD = denom, denom
		m.BaseHdrHeadroomN = r.u32()
		m.AltHdrHeadroomN = r.u32()
		for c := 0; c < channels; c++ {
			m.GainMapMinN[c] = r.s32()
			m.GainMapMinD[c] = denom
			m.GainMapMaxN[c] = r.s32()
			m.GainMapMaxD[c] = denom
			m.GammaN[c] = r.u32()
			m.GammaD[c] = denom
			m.BaseOffsetN[c] = r.s32()
			m.BaseOffsetD[c] = denom
			m.AltOffsetN[c] = r.s32()
			m.AltOffsetD[c] = denom
		}
		return r.err
	}

	m.BaseHdrHeadroomN = r.u32()
	m.BaseHdrHeadroomD = r.u32()
	m.AltHdrHeadroomN = r.u32()
	m.AltHdrHeadroomD = r.u32()
	for c := 0; c < channels; c++ {
		m.GainMapMinN[c] = r.s32()
		m.GainMapMinD[c] = r.u32()
		m.GainMapMaxN[c] = r.s32()
		m.GainMapMaxD[c] = r.u32()
		m.GammaN[c] = r.u32()
		m.GammaD[c] = r.u32()
		m.BaseOffsetN[c] = r.s32()
		m.BaseOffsetD[c] = r.u32()
		m.AltOffsetN[c] = r.s32()
		m.AltOffsetD[c] = r.u32()
	}
	return r.err
}

func (m *isoGainmapRecord) marshal() []byte {
	channels := 3
	if m.singleChannel() {
		channels = 1
	}

	flags := uint8(0)
	if channels == 3 {
		flags |= isoFlagMultiChannel
	}
	if m.UseBaseColorSpace {
		flags |= isoFlagUseBaseColor
	}
	if m.BackwardDirection {
		flags |= isoFlagBackward
	}

	denom := m.BaseHdrHeadroomD
	common := m.AltHdrHeadroomD == denom
	for c := 0; c < channels && common; c++ {
		common = m.GainMapMinD[c] == denom && m.GainMapMaxD[c] == denom &&
			m.GammaD[c] == denom && m.BaseOffsetD[c] == denom && m.AltOffsetD[c] == denom
	}
	if common {
		flags |= isoFlagCommonDenom
	}

	out := make([]byte, 0, 128)
	putU16 := func(v uint16) { out = binary.BigEndian.AppendUint16(out, v) }
	putU32 := func(v uint32) { out = binary.BigEndian.AppendUint32(out, v) }
	putS32 := func(v int32) { putU32(uint32(v)) }

	putU16(0) // min version
	putU16(0) // writer version
	out = append(out, flags)

	if common {
		putU32(denom)
		putU32(m.BaseHdrHeadroomN)
		putU32(m.AltHdrHeadroomN)
		for c := 0; c < channels; c++ {
			putS32(m.GainMapMinN[c])
			putS32(m.GainMapMaxN[c])
			putU32(m.GammaN[c])
			putS32(m.BaseOffsetN[c])
			putS32(m.AltOffsetN[c])
		}
		return out
	}

	putU32(m.BaseHdrHeadroomN)
	putU32(m.BaseHdrHeadroomD)
	putU32(m.AltHdrHeadroomN)
	putU32(m.AltHdrHeadroomD)
	for c := 0; c < channels; c++ {
		putS32(m.GainMapMinN[c])
		putU32(m.GainMapMinD[c])
		putS32(m.GainMapMaxN[c])
		putU32(m.GainMapMaxD[c])
		putU32(m.GammaN[c])
		putU32(m.GammaD[c])
		putS32(m.BaseOffsetN[c])
		putU32(m.BaseOffsetD[c])
		putS32(m.AltOffsetN[c])
		putU32(m.AltOffsetD[c])
	}
	return out
}

func (m *isoGainmapRecord) toFloat(to *GainMapMetadata) {
	to.UseBaseCG = m.UseBaseColorSpace
	for i := 0; i < 3; i++ {
		to.MinContentBoost[i] = exp2f(float32(m.GainMapMinN[i]) / float32(m.GainMapMinD[i]))
		to.MaxContentBoost[i] = exp2f(float32(m.GainMapMaxN[i]) / float32(m.GainMapMaxD[i]))
		to.Gamma[i] = float32(m.GammaN[i]) / float32(m.GammaD[i])
		to.OffsetSDR[i] = float32(m.BaseOffsetN[i]) / float32(m.BaseOffsetD[i])
		to.OffsetHDR[i] = float32(m.AltOffsetN[i]) / float32(m.AltOffsetD[i])
	}
	to.HDRCapacityMin = exp2f(float32(m.BaseHdrHeadroomN) / float32(m.BaseHdrHeadroomD))
	to.HDRCapacityMax = exp2f(float32(m.AltHdrHeadroomN) / float32(m.AltHdrHeadroomD))
}

func (m *isoGainmapRecord) fromFloat(from *GainMapMetadata) error {
	m.BackwardDirection = false
	m.UseBaseColorSpace = from.UseBaseCG

	channels := 3
	if metaChannelsIdentical(from) {
		channels = 1
	}

	for i := 0; i < channels; i++ {
		if err := floatToSignedFraction(log2f(from.MaxContentBoost[i]), &m.GainMapMaxN[i], &m.GainMapMaxD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(log2f(from.MinContentBoost[i]), &m.GainMapMinN[i], &m.GainMapMinD[i]); err != nil {
			return err
		}
		if err := floatToUnsignedFraction(from.Gamma[i], &m.GammaN[i], &m.GammaD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(from.OffsetSDR[i], &m.BaseOffsetN[i], &m.BaseOffsetD[i]); err != nil {
			return err
		}
		if err := floatToSignedFraction(from.OffsetHDR[i], &m.AltOffsetN[i], &m.AltOffsetD[i]); err != nil {
			return err
		}
	}
	if channels == 1 {
		for i := 1; i < 3; i++ {
			m.GainMapMaxN[i], m.GainMapMaxD[i] = m.GainMapMaxN[0], m.GainMapMaxD[0]
			m.GainMapMinN[i], m.GainMapMinD[i] = m.GainMapMinN[0], m.GainMapMinD[0]
			m.GammaN[i], m.GammaD[i] = m.GammaN[0], m.GammaD[0]
			m.BaseOffsetN[i], m.BaseOffsetD[i] = m.BaseOffsetN[0], m.BaseOffsetD[0]
			m.AltOffsetN[i], m.AltOffsetD[i] = m.AltOffsetN[0], m.AltOffsetD[0]
		}
	}

	if err := floatToUnsignedFraction(log2f(from.HDRCapacityMin), &m.BaseHdrHeadroomN, &m.BaseHdrHeadroomD); err != nil {
		return err
	}
	return floatToUnsignedFraction(log2f(from.HDRCapacityMax), &m.AltHdrHeadroomN, &m.AltHdrHeadroomD)
}

func metaChannelsIdentical(m *GainMapMetadata) bool {
	for i := 1; i < 3; i++ {
		if m.MinContentBoost[0] != m.MinContentBoost[i] ||
			m.MaxContentBoost[0] != m.MaxContentBoost[i] ||
			m.Gamma[0] != m.Gamma[i] ||
			m.OffsetSDR[0] != m.OffsetSDR[i] ||
			m.OffsetHDR[0] != m.OffsetHDR[i] {
			return false
		}
	}
	return true
}

func (m *isoGainmapRecord) singleChannel() bool {
	for i := 1; i < 3; i++ {
		if m.GainMapMinN[0] != m.GainMapMinN[i] || m.GainMapMinD[0] != m.GainMapMinD[i] ||
			m.GainMapMaxN[0] != m.GainMapMaxN[i] || m.GainMapMaxD[0] != m.GainMapMaxD[i] ||
			m.GammaN[0] != m.GammaN[i] || m.GammaD[0] != m.GammaD[i] ||
			m.BaseOffsetN[0] != m.BaseOffsetN[i] || m.BaseOffsetD[0] != m.BaseOffsetD[i] ||
			m.AltOffsetN[0] != m.AltOffsetN[i] || m.AltOffsetD[0] != m.AltOffsetD[i] {
			return false
		}
	}
	return true
}

// floatToSignedFraction approximates v as num/den with a signed numerator
// using continued fractions.
func floatToSignedFraction(v float32, numerator *int32, denominator *uint32) error {
	const maxInt32 = int32(^uint32(0) >> 1)
	num, den, ok := approxUnsignedFraction(math.Abs(float64(v)), uint32(maxInt32))
	if !ok {
		return errors.New("failed to encode signed fraction")
	}
	n := int32(num)
	if v < 0 {
		n = -n
	}
	*numerator = n
	*denominator = den
	return nil
}

func floatToUnsignedFraction(v float32, numerator *uint32, denominator *uint32) error {
	num, den, ok := approxUnsignedFraction(float64(v), ^uint32(0))
	if !ok {
		return errors.New("failed to encode unsigned fraction")
	}
	*numerator = num
	*denominator = den
	return nil
}

// approxUnsignedFraction finds num/den ≈ v by the continued-fraction
// expansion of v, stopping when the numerator limit or exactness is hit.
func approxUnsignedFraction(v float64, maxNumerator uint32) (uint32, uint32, bool) {
	if math.IsNaN(v) || v < 0 || v > float64(maxNumerator) {
		return 0, 0, false
	}
	var maxD uint64
	if v <= 1 {
		maxD = uint64(^uint32(0))
	} else {
		maxD = uint64(math.Floor(float64(maxNumerator) / v))
	}

	den := uint32(1)
	prevD := uint32(0)
	frac := v - math.Floor(v)
	const maxIter = 39
	for iter := 0; iter < maxIter; iter++ {
		numeratorDouble := float64(den) * v
		if numeratorDouble > float64(maxNumerator) {
			return 0, 0, false
		}
		num := uint32(math.Round(numeratorDouble))
		if math.Abs(numeratorDouble-float64(num)) == 0.0 {
			return num, den, true
		}
		if frac == 0 {
			return num, den, true
		}
		frac = 1.0 / frac
		newD := float64(prevD) + math.Floor(frac)*float64(den)
		if newD > float64(maxD) {
			return num, den, true
		}
		prevD = den
		if newD > float64(^uint32(0)) {
			return 0, 0, false
		}
		den = uint32(newD)
		frac -= math.Floor(frac)
	}
	return uint32(math.Round(float64(den) * v)), den, true
}
