package motionheic

import "errors"

// SplitResult holds the two embedded JPEGs and gainmap metadata extracted
// from a JPEG/R (Ultra HDR) container by Split.
type SplitResult struct {
	PrimaryJPEG []byte
	GainmapJPEG []byte
	Meta        *GainMapMetadata
	Segs        *MetadataSegments
}

// Join reassembles the container this SplitResult was extracted from,
// reusing the raw XMP/ISO segments that were present on the primary and
// gainmap images rather than regenerating them from Meta.
func (s *SplitResult) Join() ([]byte, error) {
	if s.Segs == nil {
		return Join(s.PrimaryJPEG, s.GainmapJPEG, s.Meta)
	}
	return JoinWithSegments(s.PrimaryJPEG, s.GainmapJPEG, s.Segs)
}

// Split extracts the primary and gainmap JPEG images, gainmap metadata, and
// raw XMP/ISO segments from a JPEG/R container.
func Split(data []byte) (*SplitResult, error) {
	ranges, err := scanJPEGs(data)
	if err != nil {
		return nil, err
	}
	if len(ranges) < 2 {
		return nil, errors.New("gainmap image not found")
	}
	primaryJPEG := append([]byte(nil), data[ranges[0][0]:ranges[0][1]]...)
	gainmapJPEG := append([]byte(nil), data[ranges[1][0]:ranges[1][1]]...)

	segs := &MetadataSegments{}
	if hApp1, hApp2, err := extractContainerHeaderSegments(data); err == nil {
		segs.PrimaryXMP = findXMP(hApp1)
		segs.PrimaryISO = findISO(hApp2)
	}

	gApp1, gApp2, err := extractAppSegments(gainmapJPEG)
	if err != nil {
		return nil, err
	}
	segs.SecondaryXMP = findXMP(gApp1)
	segs.SecondaryISO = findISO(gApp2)

	var meta *GainMapMetadata
	if iso := segs.SecondaryISO; iso != nil {
		payload := iso[len(isoNamespace)+1:]
		meta, err = decodeGainmapMetadataISO(payload)
		if err != nil {
			return nil, err
		}
	} else if xmp := segs.SecondaryXMP; xmp != nil {
		meta, err = parseXMP(xmp)
		if err != nil {
			return nil, err
		}
	} else {
		return nil, errors.New("no gainmap metadata found")
	}

	return &SplitResult{
		PrimaryJPEG: primaryJPEG,
		GainmapJPEG: gainmapJPEG,
		Meta:        meta,
		Segs:        segs,
	}, nil
}

// Join assembles a JPEG/R container from primary and gainmap JPEG images,
// regenerating the XMP and ISO 21496-1 blocks from meta.
func Join(primaryJPEG, gainmapJPEG []byte, meta *GainMapMetadata) ([]byte, error) {
	if meta == nil {
		return nil, errors.New("metadata required")
	}
	secondaryXMP := buildGainmapXMP(meta)
	secondaryISO, err := buildIsoPayload(meta)
	if err != nil {
		return nil, err
	}
	secondarySize := len(gainmapJPEG) + appSize(secondaryXMP) + appSize(secondaryISO)
	return assembleContainerFromSplit(primaryJPEG, gainmapJPEG, &MetadataSegments{
		PrimaryXMP:   buildPrimaryXMP(meta, secondarySize),
		PrimaryISO:   isoVersionPayload(secondaryISO),
		SecondaryXMP: secondaryXMP,
		SecondaryISO: secondaryISO,
	})
}

// JoinWithSegments assembles a JPEG/R container using raw metadata segments.
// PrimaryXMP is updated to reflect the new gainmap length.
func JoinWithSegments(primaryJPEG, gainmapJPEG []byte, segs *MetadataSegments) ([]byte, error) {
	if segs == nil {
		return nil, errors.New("segments required")
	}
	return assembleContainerFromSplit(primaryJPEG, gainmapJPEG, segs)
}
