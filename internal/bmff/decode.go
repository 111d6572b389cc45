package bmff

import (
	"encoding/binary"
	"math"
	"math/bits"
)

// maxTableEntries bounds how many rows a table decoder materializes. Counts
// and totals still cover every row the payload holds.
const maxTableEntries = 1 << 20

// maxRunEntries bounds materialized trun sample rows.
const maxRunEntries = 1 << 16

type cursor struct {
	b   []byte
	off int
	ok  bool
}

func newCursor(b []byte) *cursor {
	return &cursor{b: b, ok: true}
}

func (c *cursor) remaining() int {
	if !c.ok {
		return 0
	}
	return len(c.b) - c.off
}

func (c *cursor) take(n int) []byte {
	if !c.ok || n < 0 || c.off+n > len(c.b) {
		c.ok = false
		return nil
	}
	v := c.b[c.off : c.off+n]
	c.off += n
	return v
}

func (c *cursor) skip(n int) {
	c.take(n)
}

func (c *cursor) u8() uint8 {
	v := c.take(1)
	if v == nil {
		return 0
	}
	return v[0]
}

func (c *cursor) u16() uint16 {
	v := c.take(2)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint16(v)
}

func (c *cursor) u24() uint32 {
	v := c.take(3)
	if v == nil {
		return 0
	}
	return uint32(v[0])<<16 | uint32(v[1])<<8 | uint32(v[2])
}

func (c *cursor) u32() uint32 {
	v := c.take(4)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint32(v)
}

func (c *cursor) u64() uint64 {
	v := c.take(8)
	if v == nil {
		return 0
	}
	return binary.BigEndian.Uint64(v)
}

// fullHeader reads the version byte and 24-bit flags.
func (c *cursor) fullHeader() (uint8, uint32) {
	return c.u8(), c.u24()
}

// rowsFor compares a declared row count with what the payload can hold.
// A zero rowSize means rows carry no bytes, so every declared row fits.
func rowsFor(declared uint32, rowSize, remaining int) TableCount {
	tc := TableCount{Declared: declared, Rows: declared}
	if rowSize > 0 && remaining >= 0 {
		if fit := remaining / rowSize; uint64(fit) < uint64(declared) {
			tc.Rows = uint32(fit)
		}
	}
	return tc
}

func kept(rows uint32, limit int) int {
	return min(int(rows), limit)
}

func sumSaturating(total uint64, v uint32) uint64 {
	sum, carry := bits.Add64(total, uint64(v), 0)
	if carry != 0 {
		return math.MaxUint64
	}
	return sum
}

func decodeFileType(p []byte) (Detail, bool) {
	c := newCursor(p)
	ft := &FileType{MajorBrand: FourCC(c.u32()), MinorVersion: c.u32()}
	if !c.ok {
		return nil, false
	}
	for c.remaining() >= 4 {
		ft.CompatibleBrands = append(ft.CompatibleBrands, FourCC(c.u32()))
	}
	return ft, true
}

func decodeMovieHeader(p []byte) (Detail, bool) {
	c := newCursor(p)
	version, _ := c.fullHeader()
	mh := &MovieHeader{Version: version}
	if version == 1 {
		c.skip(16)
		mh.Timescale = c.u32()
		mh.Duration = c.u64()
	} else {
		c.skip(8)
		mh.Timescale = c.u32()
		mh.Duration = uint64(c.u32())
	}
	if !c.ok {
		return nil, false
	}
	// rate, volume, reserved, matrix, pre_defined
	c.skip(4 + 2 + 10 + 36 + 24)
	mh.NextTrackID = c.u32()
	return mh, true
}

func decodeTrackHeader(p []byte) (Detail, bool) {
	c := newCursor(p)
	version, flags := c.fullHeader()
	th := &TrackHeader{Version: version, Flags: flags}
	if version == 1 {
		c.skip(16)
		th.TrackID = c.u32()
		c.skip(4)
		th.Duration = c.u64()
	} else {
		c.skip(8)
		th.TrackID = c.u32()
		c.skip(4)
		th.Duration = uint64(c.u32())
	}
	if !c.ok {
		return nil, false
	}
	return th, true
}

func decodeMediaHeader(p []byte) (Detail, bool) {
	c := newCursor(p)
	version, _ := c.fullHeader()
	mh := &MediaHeader{Version: version}
	if version == 1 {
		c.skip(16)
		mh.Timescale = c.u32()
		mh.Duration = c.u64()
	} else {
		c.skip(8)
		mh.Timescale = c.u32()
		mh.Duration = uint64(c.u32())
	}
	if !c.ok {
		return nil, false
	}
	if lang := c.u16(); c.ok {
		mh.Language = decodeLanguage(lang)
	}
	return mh, true
}

// decodeLanguage unpacks the ISO-639-2/T code stored as three 5-bit letters.
func decodeLanguage(v uint16) string {
	b := []byte{
		byte((v>>10)&0x1F) + 0x60,
		byte((v>>5)&0x1F) + 0x60,
		byte(v&0x1F) + 0x60,
	}
	for _, ch := range b {
		if ch < 'a' || ch > 'z' {
			return ""
		}
	}
	return string(b)
}

func decodeEditList(p []byte, movieTimescale uint32) (Detail, bool) {
	c := newCursor(p)
	version, _ := c.fullHeader()
	count := c.u32()
	if !c.ok {
		return nil, false
	}
	row := 12
	if version == 1 {
		row = 20
	}
	tc := rowsFor(count, row, c.remaining())
	n := kept(tc.Rows, maxTableEntries)
	el := &EditList{TableCount: tc, Version: version, MovieTimescale: movieTimescale, Entries: make([]EditListEntry, 0, n)}
	for i := 0; i < n; i++ {
		var e EditListEntry
		if version == 1 {
			e.SegmentDuration = c.u64()
			e.MediaTime = int64(c.u64())
		} else {
			e.SegmentDuration = uint64(c.u32())
			e.MediaTime = int64(int32(c.u32()))
		}
		e.MediaRateInteger = int16(c.u16())
		e.MediaRateFraction = int16(c.u16())
		el.Entries = append(el.Entries, e)
	}
	return el, c.ok
}

func decodeSampleToChunk(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	count := c.u32()
	if !c.ok {
		return nil, false
	}
	tc := rowsFor(count, 12, c.remaining())
	n := kept(tc.Rows, maxTableEntries)
	sc := &SampleToChunk{TableCount: tc, Entries: make([]SampleToChunkEntry, 0, n)}
	for i := 0; i < n; i++ {
		sc.Entries = append(sc.Entries, SampleToChunkEntry{
			FirstChunk:             c.u32(),
			SamplesPerChunk:        c.u32(),
			SampleDescriptionIndex: c.u32(),
		})
	}
	return sc, c.ok
}

func decodeChunkOffset(p []byte, wide bool) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	count := c.u32()
	if !c.ok {
		return nil, false
	}
	row := 4
	if wide {
		row = 8
	}
	tc := rowsFor(count, row, c.remaining())
	co := &ChunkOffset{TableCount: tc, Wide: wide, Entries: make([]ChunkOffsetEntry, 0, kept(tc.Rows, maxTableEntries))}
	var prev ChunkOffsetEntry
	for i := uint32(0); i < tc.Rows; i++ {
		e := ChunkOffsetEntry{Index: i + 1}
		if wide {
			e.Offset = c.u64()
		} else {
			e.Offset = uint64(c.u32())
		}
		if i > 0 && co.Disorder == nil && e.Offset <= prev.Offset {
			co.Disorder = &[2]ChunkOffsetEntry{prev, e}
		}
		if len(co.Entries) < maxTableEntries {
			co.Entries = append(co.Entries, e)
		}
		prev = e
	}
	return co, c.ok
}

func decodeSampleSize(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	ss := &SampleSize{DefaultSize: c.u32(), SampleCount: c.u32()}
	return ss, c.ok
}

func decodeCompactSampleSize(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	c.skip(3)
	cs := &CompactSampleSize{FieldSize: c.u8(), SampleCount: c.u32()}
	return cs, c.ok
}

func decodeTimeToSample(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	count := c.u32()
	if !c.ok {
		return nil, false
	}
	tc := rowsFor(count, 8, c.remaining())
	ts := &TimeToSample{TableCount: tc, Entries: make([]TimeToSampleEntry, 0, kept(tc.Rows, maxTableEntries))}
	for i := uint32(0); i < tc.Rows; i++ {
		e := TimeToSampleEntry{SampleCount: c.u32(), SampleDelta: c.u32()}
		ts.SampleTotal = sumSaturating(ts.SampleTotal, e.SampleCount)
		if len(ts.Entries) < maxTableEntries {
			ts.Entries = append(ts.Entries, e)
		}
	}
	return ts, c.ok
}

func decodeCompositionOffset(p []byte) (Detail, bool) {
	c := newCursor(p)
	version, _ := c.fullHeader()
	count := c.u32()
	if !c.ok {
		return nil, false
	}
	tc := rowsFor(count, 8, c.remaining())
	co := &CompositionOffset{TableCount: tc, Version: version, Entries: make([]CompositionOffsetEntry, 0, kept(tc.Rows, maxTableEntries))}
	for i := uint32(0); i < tc.Rows; i++ {
		e := CompositionOffsetEntry{SampleCount: c.u32()}
		raw := c.u32()
		if version == 1 {
			e.SampleOffset = int64(int32(raw))
		} else {
			e.SampleOffset = int64(raw)
		}
		co.SampleTotal = sumSaturating(co.SampleTotal, e.SampleCount)
		if len(co.Entries) < maxTableEntries {
			co.Entries = append(co.Entries, e)
		}
	}
	return co, c.ok
}

func decodeMovieFragmentHeader(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	mf := &MovieFragmentHeader{SequenceNumber: c.u32()}
	return mf, c.ok
}

const (
	tfhdBaseDataOffset        = 0x000001
	tfhdSampleDescriptionIdx  = 0x000002
	tfhdDefaultSampleDuration = 0x000008
	tfhdDefaultSampleSize     = 0x000010
	tfhdDefaultSampleFlags    = 0x000020
)

func decodeTrackFragmentHeader(p []byte) (Detail, bool) {
	c := newCursor(p)
	_, flags := c.fullHeader()
	tf := &TrackFragmentHeader{Flags: flags, TrackID: c.u32()}
	if flags&tfhdBaseDataOffset != 0 {
		v := c.u64()
		tf.BaseDataOffset = &v
	}
	if flags&tfhdSampleDescriptionIdx != 0 {
		v := c.u32()
		tf.SampleDescriptionIndex = &v
	}
	if flags&tfhdDefaultSampleDuration != 0 {
		v := c.u32()
		tf.DefaultSampleDuration = &v
	}
	if flags&tfhdDefaultSampleSize != 0 {
		v := c.u32()
		tf.DefaultSampleSize = &v
	}
	if flags&tfhdDefaultSampleFlags != 0 {
		v := c.u32()
		tf.DefaultSampleFlags = &v
	}
	return tf, c.ok
}

func decodeTrackExtends(p []byte) (Detail, bool) {
	c := newCursor(p)
	c.fullHeader()
	te := &TrackExtends{
		TrackID:                       c.u32(),
		DefaultSampleDescriptionIndex: c.u32(),
		DefaultSampleDuration:         c.u32(),
		DefaultSampleSize:             c.u32(),
		DefaultSampleFlags:            c.u32(),
	}
	return te, c.ok
}

const (
	trunDataOffset        = 0x000001
	trunFirstSampleFlags  = 0x000004
	trunSampleDuration    = 0x000100
	trunSampleSize        = 0x000200
	trunSampleFlags       = 0x000400
	trunSampleCompOffsets = 0x000800
)

// runDefaults carries duration fallbacks from tfhd and trex.
type runDefaults struct {
	fragmentDuration *uint32
	trackDuration    *uint32
}

func decodeTrackRun(p []byte, defaults runDefaults) (*TrackRun, bool) {
	c := newCursor(p)
	version, flags := c.fullHeader()
	tr := &TrackRun{Version: version, Flags: flags, SampleCount: c.u32()}
	if !c.ok {
		return nil, false
	}
	if flags&trunDataOffset != 0 {
		v := int32(c.u32())
		tr.DataOffset = &v
	}
	if flags&trunFirstSampleFlags != 0 {
		v := c.u32()
		tr.FirstSampleFlags = &v
	}
	if !c.ok {
		return nil, false
	}
	row := 0
	for _, bit := range []uint32{trunSampleDuration, trunSampleSize, trunSampleFlags, trunSampleCompOffsets} {
		if flags&bit != 0 {
			row += 4
		}
	}
	tr.Rows = rowsFor(tr.SampleCount, row, c.remaining()).Rows
	n := kept(tr.Rows, maxRunEntries)
	tr.Entries = make([]TrackRunEntry, 0, n)
	for i := 0; i < n; i++ {
		e := TrackRunEntry{Index: uint32(i + 1)}
		if flags&trunSampleDuration != 0 {
			v := c.u32()
			e.Duration = &v
		} else if defaults.fragmentDuration != nil {
			v := *defaults.fragmentDuration
			e.Duration = &v
		} else if defaults.trackDuration != nil {
			v := *defaults.trackDuration
			e.Duration = &v
		}
		if flags&trunSampleSize != 0 {
			v := c.u32()
			e.Size = &v
		}
		if flags&trunSampleFlags != 0 {
			v := c.u32()
			e.Flags = &v
		}
		if flags&trunSampleCompOffsets != 0 {
			raw := c.u32()
			v := int64(raw)
			if version == 1 {
				v = int64(int32(raw))
			}
			e.CompositionOffset = &v
		}
		tr.Entries = append(tr.Entries, e)
	}
	return tr, c.ok
}
