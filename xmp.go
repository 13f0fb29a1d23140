package motionheic

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Adobe hdrgm attributes appear either as flat attributes
// (hdrgm:GainMapMax="2.3") or as rdf:Seq elements with one value per
// channel; both forms are read here.
var (
	reRdfLi = regexp.MustCompile(`(?s)<rdf:li>([^<]+)</rdf:li>`)

	reVersion   = xmpAttr("Version")
	reGainMin   = xmpAttr("GainMapMin")
	reGainMax   = xmpAttr("GainMapMax")
	reGamma     = xmpAttr("Gamma")
	reOffsetSDR = xmpAttr("OffsetSDR")
	reOffsetHDR = xmpAttr("OffsetHDR")
	reCapMin    = xmpAttr("HDRCapacityMin")
	reCapMax    = xmpAttr("HDRCapacityMax")
	reBaseIsHDR = xmpAttr("BaseRenditionIsHDR")

	reGainMinSeq = xmpSeq("GainMapMin")
	reGainMaxSeq = xmpSeq("GainMapMax")
	reGammaSeq   = xmpSeq("Gamma")
)

func xmpAttr(name string) *regexp.Regexp {
	return regexp.MustCompile(`hdrgm:` + name + `="([^"]+)"`)
}

func xmpSeq(name string) *regexp.Regexp {
	return regexp.MustCompile(`(?s)<hdrgm:` + name + `>.*?<rdf:Seq>(.*?)</rdf:Seq>.*?</hdrgm:` + name + `>`)
}

// hdrgmDoc is the XML text of one hdrgm XMP packet.
type hdrgmDoc string

func (d hdrgmDoc) attr(re *regexp.Regexp) (string, bool) {
	m := re.FindStringSubmatch(string(d))
	if len(m) != 2 {
		return "", false
	}
	return m[1], true
}

func (d hdrgmDoc) float(re *regexp.Regexp) (float32, bool, error) {
	str, ok := d.attr(re)
	if !ok {
		return 0, false, nil
	}
	v, err := strconv.ParseFloat(str, 32)
	if err != nil {
		return 0, true, err
	}
	return float32(v), true, nil
}

// channels reads a per-channel value: flat attribute first, then rdf:Seq,
// broadcasting a single value across all three channels. transform is
// applied to each parsed value (exp2f for log2-encoded fields).
func (d hdrgmDoc) channels(dst *[3]float32, flat, seq *regexp.Regexp, transform func(float32) float32) (bool, error) {
	if v, ok, err := d.float(flat); err != nil {
		return true, err
	} else if ok {
		t := transform(v)
		dst[0], dst[1], dst[2] = t, t, t
		return true, nil
	}
	m := seq.FindStringSubmatch(string(d))
	if len(m) != 2 {
		return false, nil
	}
	items := reRdfLi.FindAllStringSubmatch(m[1], -1)
	vals := make([]float32, 0, len(items))
	for _, it := range items {
		if len(it) != 2 {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(it[1]), 32)
		if err != nil {
			return true, err
		}
		vals = append(vals, transform(float32(v)))
	}
	switch {
	case len(vals) == 0:
		return false, nil
	case len(vals) == 1:
		dst[0], dst[1], dst[2] = vals[0], vals[0], vals[0]
	default:
		for i := 0; i < 3 && i < len(vals); i++ {
			dst[i] = vals[i]
		}
	}
	return true, nil
}

func ident(v float32) float32 { return v }

func parseXMP(app1 []byte) (*GainMapMetadata, error) {
	if len(app1) < len(xmpNamespace)+2 {
		return nil, errors.New("xmp block too small")
	}
	if !strings.HasPrefix(string(app1), xmpNamespace+"\x00") {
		return nil, errors.New("xmp namespace mismatch")
	}
	doc := hdrgmDoc(app1[len(xmpNamespace)+1:])

	meta := &GainMapMetadata{Version: jpegrVersion, UseBaseCG: true}
	for i := 0; i < 3; i++ {
		meta.MinContentBoost[i] = 1
		meta.MaxContentBoost[i] = 1
		meta.Gamma[i] = 1
		// Adobe's documented default when the offsets are absent.
		meta.OffsetSDR[i] = 1.0 / 64.0
		meta.OffsetHDR[i] = 1.0 / 64.0
	}
	meta.HDRCapacityMin = 1
	meta.HDRCapacityMax = 1

	v, ok := doc.attr(reVersion)
	if !ok {
		return nil, errors.New("xmp missing version")
	}
	meta.Version = v

	if ok, err := doc.channels(&meta.MaxContentBoost, reGainMax, reGainMaxSeq, exp2f); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("xmp missing GainMapMax")
	}

	if v, ok, err := doc.float(reCapMax); err != nil {
		return nil, err
	} else if !ok {
		return nil, errors.New("xmp missing HDRCapacityMax")
	} else {
		meta.HDRCapacityMax = exp2f(v)
	}

	if _, err := doc.channels(&meta.MinContentBoost, reGainMin, reGainMinSeq, exp2f); err != nil {
		return nil, err
	}
	if _, err := doc.channels(&meta.Gamma, reGamma, reGammaSeq, ident); err != nil {
		return nil, err
	}
	if v, ok, err := doc.float(reOffsetSDR); err != nil {
		return nil, err
	} else if ok {
		meta.OffsetSDR[0], meta.OffsetSDR[1], meta.OffsetSDR[2] = v, v, v
	}
	if v, ok, err := doc.float(reOffsetHDR); err != nil {
		return nil, err
	} else if ok {
		meta.OffsetHDR[0], meta.OffsetHDR[1], meta.OffsetHDR[2] = v, v, v
	}
	if v, ok, err := doc.float(reCapMin); err != nil {
		return nil, err
	} else if ok {
		meta.HDRCapacityMin = exp2f(v)
	}
	if v, ok := doc.attr(reBaseIsHDR); ok && v == "True" {
		return nil, errors.New("base rendition HDR not supported")
	}

	return meta, nil
}

// buildGainmapXMP renders the gain-map image's hdrgm packet, namespace
// prefix included. Only channel 0 is written; the Apple pipeline never
// produces distinct channels.
func buildGainmapXMP(meta *GainMapMetadata) []byte {
	if meta == nil {
		return nil
	}
	format := func(v float32) string {
		return strconv.FormatFloat(float64(v), 'g', 6, 32)
	}
	xml := fmt.Sprintf(
		`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="Adobe XMP Core 5.1.2"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/" hdrgm:Version="%s" hdrgm:GainMapMin="%s" hdrgm:GainMapMax="%s" hdrgm:Gamma="%s" hdrgm:OffsetSDR="%s" hdrgm:OffsetHDR="%s" hdrgm:HDRCapacityMin="%s" hdrgm:HDRCapacityMax="%s" hdrgm:BaseRenditionIsHDR="False"/></rdf:RDF></x:xmpmeta>`,
		meta.Version,
		format(log2f(meta.MinContentBoost[0])),
		format(log2f(meta.MaxContentBoost[0])),
		format(meta.Gamma[0]),
		format(meta.OffsetSDR[0]),
		format(meta.OffsetHDR[0]),
		format(log2f(meta.HDRCapacityMin)),
		format(log2f(meta.HDRCapacityMax)),
	)
	return wrapXMPPayload(xml)
}

// buildPrimaryXMP renders the container-directory packet the primary image
// carries, declaring the gain-map item and its byte length.
func buildPrimaryXMP(meta *GainMapMetadata, secondaryImageSize int) []byte {
	if meta == nil {
		return nil
	}
	xml := fmt.Sprintf(
		`<x:xmpmeta xmlns:x="adobe:ns:meta/" x:xmptk="Adobe XMP Core 5.1.2"><rdf:RDF xmlns:rdf="http://www.w3.org/1999/02/22-rdf-syntax-ns#"><rdf:Description xmlns:Container="http://ns.google.com/photos/1.0/container/" xmlns:Item="http://ns.google.com/photos/1.0/container/item/" xmlns:hdrgm="http://ns.adobe.com/hdr-gain-map/1.0/" hdrgm:Version="%s"><Container:Directory><rdf:Seq><rdf:li rdf:parseType="Resource"><Container:Item Item:Semantic="Primary" Item:Mime="image/jpeg"/></rdf:li><rdf:li rdf:parseType="Resource"><Container:Item Item:Semantic="GainMap" Item:Mime="image/jpeg" Item:Length="%d"/></rdf:li></rdf:Seq></Container:Directory></rdf:Description></rdf:RDF></x:xmpmeta>`,
		meta.Version,
		secondaryImageSize,
	)
	return wrapXMPPayload(xml)
}

func wrapXMPPayload(xml string) []byte {
	out := make([]byte, 0, len(xmpNamespace)+1+len(xml))
	out = append(out, []byte(xmpNamespace)...)
	out = append(out, 0)
	return append(out, xml...)
}
