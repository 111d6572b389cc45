package rules

import (
	"encoding/binary"
	"errors"
	"io"
	"math"
	"strconv"

	"example.com/bmffgate/internal/bmff"
)

const (
	maxSampleDescription = 16 << 20
	visualEntryFields    = 78
	audioEntryFields     = 28
)

var (
	visualFormats = typeSet{
		bmff.FormatAvc1: {}, bmff.FormatAvc2: {}, bmff.FormatAvc3: {}, bmff.FormatAvc4: {},
		bmff.FormatHvc1: {}, bmff.FormatHev1: {}, bmff.FormatDvh1: {}, bmff.FormatDvhe: {},
		bmff.FormatDvav: {}, bmff.FormatDvvc: {},
		bmff.FormatAv01: {}, bmff.FormatVp08: {}, bmff.FormatVp09: {},
		bmff.FormatEncv: {},
	}
	audioFormats = typeSet{
		bmff.FormatMp4a: {}, bmff.FormatEnca: {}, bmff.FormatAc4: {}, bmff.FormatMha1: {}, bmff.FormatMhm1: {},
	}
	avcFormats  = typeSet{bmff.FormatAvc1: {}, bmff.FormatAvc2: {}, bmff.FormatAvc3: {}, bmff.FormatAvc4: {}}
	hevcFormats = typeSet{bmff.FormatHvc1: {}, bmff.FormatHev1: {}, bmff.FormatDvh1: {}, bmff.FormatDvhe: {}}
)

// nestedBox is a child box found inside a sample entry. Offsets index the
// buffered stsd payload.
type nestedBox struct {
	typ          bmff.FourCC
	payloadStart int
	payloadEnd   int
}

type sampleEntry struct {
	index     int
	format    bmff.FourCC
	effective bmff.FourCC
	children  []nestedBox
}

// CodecConfigurationRule re-parses avcC and hvcC records found in sample
// descriptions and reports parameter sets that the payload cannot hold.
type CodecConfigurationRule struct {
	tracks depthStack[*bmff.TrackHeader]
}

func (c *CodecConfigurationRule) Issues(ev bmff.Event, r bmff.Reader) []Issue {
	if ev.Kind == bmff.ExitBox {
		if ev.Header.Type == bmff.TypeTrak {
			c.tracks.trim(ev.Depth)
		}
		return nil
	}
	c.tracks.trim(ev.Depth)
	switch ev.Header.Type {
	case bmff.TypeTrak:
		c.tracks.push(ev.Depth, nil)
	case bmff.TypeTkhd:
		if top := c.tracks.top(); top != nil {
			if th, ok := ev.Detail.(*bmff.TrackHeader); ok {
				*top = th
			}
		}
	case bmff.TypeStsd:
		return c.sampleDescriptionIssues(ev.Header, r)
	}
	return nil
}

func (c *CodecConfigurationRule) trackLabel() string {
	if top := c.tracks.top(); top != nil && *top != nil {
		return "Track " + strconv.FormatUint(uint64((*top).TrackID), 10)
	}
	return "Track"
}

func (c *CodecConfigurationRule) sampleDescriptionIssues(h bmff.BoxHeader, r bmff.Reader) []Issue {
	n := h.PayloadSize()
	if r == nil || n < 8 {
		return nil
	}
	if n > maxSampleDescription {
		n = maxSampleDescription
	}
	buf, err := r.ReadAt(h.PayloadStart, int(n))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return []Issue{newIssue(IDCodecConfiguration, WARN,
			"%s sample description could not be read: %v", h.Identifier(), err)}
	}
	entries := sampleEntries(buf)
	if len(entries) == 0 {
		return nil
	}
	label := c.trackLabel()
	var out []Issue
	for _, e := range entries {
		prefix := label + " sample description entry " + strconv.Itoa(e.index) + " (format " + e.effective.String() + ")"
		for _, child := range e.children {
			data := buf[child.payloadStart:child.payloadEnd]
			switch {
			case child.typ == bmff.TypeAvcC && avcFormats.has(e.effective):
				out = append(out, avcIssues(prefix, data)...)
			case child.typ == bmff.TypeHvcC && hevcFormats.has(e.effective):
				out = append(out, hevcIssues(prefix, data)...)
			}
		}
	}
	return out
}

// sampleEntries walks the entries of an stsd payload that starts with the
// version/flags word. Walking stops at the first entry whose framing is
// unusable.
func sampleEntries(buf []byte) []sampleEntry {
	end := len(buf)
	if end < 8 {
		return nil
	}
	count := binary.BigEndian.Uint32(buf[4:8])
	cursor := 8
	var out []sampleEntry
	for i := 0; uint32(i) < count && cursor+8 <= end; i++ {
		entryEnd, headerLen, ok := childFrame(buf, cursor, end)
		if !ok {
			break
		}
		format := bmff.FourCCFromBytes(buf[cursor+4 : cursor+8])
		e := sampleEntry{index: i, format: format, effective: format}
		contentStart := cursor + headerLen
		switch {
		case visualFormats.has(format):
			e.children = childBoxes(buf, contentStart+visualEntryFields, entryEnd)
		case audioFormats.has(format):
			e.children = childBoxes(buf, contentStart+audioEntryFields, entryEnd)
		}
		if format == bmff.FormatEncv || format == bmff.FormatEnca {
			if original, ok := originalFormat(buf, e.children); ok {
				e.effective = original
			}
		}
		out = append(out, e)
		cursor = entryEnd
	}
	return out
}

// childFrame decodes the box framing at cursor. It returns the exclusive end
// of the box and its header length.
func childFrame(buf []byte, cursor, limit int) (end, headerLen int, ok bool) {
	if cursor+8 > limit {
		return 0, 0, false
	}
	size := binary.BigEndian.Uint32(buf[cursor : cursor+4])
	headerLen = 8
	var length uint64
	switch size {
	case 0:
		length = uint64(limit - cursor)
	case 1:
		if cursor+16 > limit {
			return 0, 0, false
		}
		length = binary.BigEndian.Uint64(buf[cursor+8 : cursor+16])
		headerLen = 16
	default:
		length = uint64(size)
	}
	if length < uint64(headerLen) || length > math.MaxInt32 {
		return 0, 0, false
	}
	end = cursor + int(length)
	if end > limit || end <= cursor {
		return 0, 0, false
	}
	return end, headerLen, true
}

func childBoxes(buf []byte, start, limit int) []nestedBox {
	var out []nestedBox
	cursor := start
	for cursor+8 <= limit {
		end, headerLen, ok := childFrame(buf, cursor, limit)
		if !ok {
			break
		}
		out = append(out, nestedBox{
			typ:          bmff.FourCCFromBytes(buf[cursor+4 : cursor+8]),
			payloadStart: cursor + headerLen,
			payloadEnd:   end,
		})
		cursor = end
	}
	return out
}

// originalFormat resolves the unprotected format from sinf/frma.
func originalFormat(buf []byte, children []nestedBox) (bmff.FourCC, bool) {
	for _, child := range children {
		if child.typ != bmff.TypeSinf {
			continue
		}
		for _, inner := range childBoxes(buf, child.payloadStart, child.payloadEnd) {
			if inner.typ == bmff.TypeFrma && inner.payloadEnd-inner.payloadStart >= 4 {
				return bmff.FourCCFromBytes(buf[inner.payloadStart : inner.payloadStart+4]), true
			}
		}
	}
	return 0, false
}

func avcIssues(prefix string, data []byte) []Issue {
	if len(data) == 0 {
		return []Issue{newIssue(IDCodecConfiguration, ERROR,
			"%s avcC payload truncated; unable to read configuration bytes.", prefix)}
	}
	if len(data) < 5 {
		return []Issue{newIssue(IDCodecConfiguration, ERROR,
			"%s avcC missing length_size_minus_one field (payload %d bytes).", prefix, len(data))}
	}
	var out []Issue
	if len(data) < 6 {
		return out
	}
	declaredSPS := int(data[5] & 0x1F)
	offset := 6
	offset, issues, ok := parameterSets(prefix, data, offset, declaredSPS,
		"avcC declares %d sequence parameter sets", "avcC sequence parameter set")
	out = append(out, issues...)
	if !ok {
		return out
	}
	if offset >= len(data) {
		if declaredSPS > 0 {
			out = append(out, newIssue(IDCodecConfiguration, ERROR,
				"%s avcC declares %d sequence parameter sets but payload omits picture parameter set count.",
				prefix, declaredSPS))
		}
		return out
	}
	declaredPPS := int(data[offset])
	offset++
	_, issues, _ = parameterSets(prefix, data, offset, declaredPPS,
		"avcC declares %d picture parameter sets", "avcC picture parameter set")
	return append(out, issues...)
}

func hevcIssues(prefix string, data []byte) []Issue {
	if len(data) == 0 {
		return []Issue{newIssue(IDCodecConfiguration, ERROR,
			"%s hvcC payload truncated; unable to read configuration bytes.", prefix)}
	}
	if len(data) < 23 {
		return []Issue{newIssue(IDCodecConfiguration, ERROR,
			"%s hvcC missing length_size_minus_one field (payload %d bytes).", prefix, len(data))}
	}
	var out []Issue
	declaredArrays := int(data[22])
	offset := 23
	for i := 0; i < declaredArrays; i++ {
		if offset+3 > len(data) {
			return append(out, newIssue(IDCodecConfiguration, ERROR,
				"%s hvcC declares %d NAL arrays but payload only provides %d before array #%d header.",
				prefix, declaredArrays, i, i))
		}
		name := nalTypeName(data[offset] & 0x3F)
		declared := int(binary.BigEndian.Uint16(data[offset+1 : offset+3]))
		offset += 3
		var (
			issues []Issue
			ok     bool
		)
		offset, issues, ok = parameterSets(prefix, data, offset, declared,
			"hvcC NAL array (type "+name+") declares %d NAL units", "hvcC "+name+" NAL")
		out = append(out, issues...)
		if !ok {
			return out
		}
	}
	return out
}

// parameterSets walks declared 16-bit length-prefixed units starting at
// offset. It returns the offset after the last unit and false when the
// payload ran out, in which case parsing of the record must stop.
func parameterSets(prefix string, data []byte, offset, declared int, declares, unit string) (int, []Issue, bool) {
	var out []Issue
	for i := 0; i < declared; i++ {
		if offset+2 > len(data) {
			out = append(out, newIssue(IDCodecConfiguration, ERROR,
				"%s "+declares+" but payload only provides %d before the length field for entry #%d.",
				prefix, declared, i, i))
			return offset, out, false
		}
		length := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2
		if length == 0 {
			out = append(out, newIssue(IDCodecConfiguration, ERROR,
				"%s %s #%d has zero length.", prefix, unit, i))
			continue
		}
		if offset+length > len(data) {
			out = append(out, newIssue(IDCodecConfiguration, ERROR,
				"%s "+declares+" but entry #%d length %d exceeds remaining payload (%d bytes).",
				prefix, declared, i, length, len(data)-offset))
			return offset, out, false
		}
		offset += length
	}
	return offset, out, true
}

func nalTypeName(t byte) string {
	switch t {
	case 32:
		return "VPS"
	case 33:
		return "SPS"
	case 34:
		return "PPS"
	}
	return "NAL type " + strconv.Itoa(int(t))
}
