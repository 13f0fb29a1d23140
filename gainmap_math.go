package motionheic

import "math"

type rgb struct {
	r, g, b float32
}

func clamp(v, min, max float32) float32 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

func log2f(v float32) float32  { return float32(math.Log2(float64(v))) }
func exp2f(v float32) float32  { return float32(math.Exp2(float64(v))) }
func lnf(v float32) float32    { return float32(math.Log(float64(v))) }
func floorf(v float32) float32 { return float32(math.Floor(float64(v))) }

// srgbInvOetf is the sRGB electro-optical transfer function, mapping an
// encoded value in [0,1] to linear light in [0,1].
func srgbInvOetf(v float32) float32 {
	if v <= 0.04045 {
		return v / 12.92
	}
	return float32(math.Pow(float64((v+0.055)/1.055), 2.4))
}

// applyGainSingle boosts a linear SDR pixel by a single-channel gain-map
// sample, weighted for the target display's headroom.
func applyGainSingle(e rgb, gain float32, meta *GainMapMetadata, weight float32) rgb {
	if meta.Gamma[0] != 1 {
		gain = float32(math.Pow(float64(gain), float64(1.0/meta.Gamma[0])))
	}
	logBoost := log2f(meta.MinContentBoost[0])*(1.0-gain) + log2f(meta.MaxContentBoost[0])*gain
	gainFactor := exp2f(logBoost * weight)
	return rgb{
		r: (e.r+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
		g: (e.g+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
		b: (e.b+meta.OffsetSDR[0])*gainFactor - meta.OffsetHDR[0],
	}
}

// applyGainRGB is applyGainSingle for three-channel gain maps.
func applyGainRGB(e rgb, gain rgb, meta *GainMapMetadata, weight float32) rgb {
	if meta.Gamma[0] != 1 {
		gain.r = float32(math.Pow(float64(gain.r), float64(1.0/meta.Gamma[0])))
	}
	if meta.Gamma[1] != 1 {
		gain.g = float32(math.Pow(float64(gain.g), float64(1.0/meta.Gamma[1])))
	}
	if meta.Gamma[2] != 1 {
		gain.b = float32(math.Pow(float64(gain.b), float64(1.0/meta.Gamma[2])))
	}
	logBoostR := log2f(meta.MinContentBoost[0])*(1.0-gain.r) + log2f(meta.MaxContentBoost[0])*gain.r
	logBoostG := log2f(meta.MinContentBoost[1])*(1.0-gain.g) + log2f(meta.MaxContentBoost[1])*gain.g
	logBoostB := log2f(meta.MinContentBoost[2])*(1.0-gain.b) + log2f(meta.MaxContentBoost[2])*gain.b
	return rgb{
		r: (e.r+meta.OffsetSDR[0])*exp2f(logBoostR*weight) - meta.OffsetHDR[0],
		g: (e.g+meta.OffsetSDR[1])*exp2f(logBoostG*weight) - meta.OffsetHDR[1],
		b: (e.b+meta.OffsetSDR[2])*exp2f(logBoostB*weight) - meta.OffsetHDR[2],
	}
}
