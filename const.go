package motionheic

const (
	jpegrVersion = "1.0"

	defaultBaseQuality    = 95
	defaultGainMapQuality = 85
)
