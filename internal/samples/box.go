package samples

import (
	"encoding/binary"
	"fmt"
)

func mustType(typ string) string {
	if len(typ) != 4 {
		panic(fmt.Sprintf("samples: box type %q is not four bytes", typ))
	}
	return typ
}

// Concat joins byte slices.
func Concat(parts ...[]byte) []byte {
	n := 0
	for _, p := range parts {
		n += len(p)
	}
	out := make([]byte, 0, n)
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

// Box frames parts with a 32-bit size header.
func Box(typ string, parts ...[]byte) []byte {
	body := Concat(parts...)
	return SizedBox(uint32(8+len(body)), typ, body)
}

// SizedBox frames parts with an arbitrary declared size, for malformed input.
func SizedBox(size uint32, typ string, parts ...[]byte) []byte {
	out := binary.BigEndian.AppendUint32(nil, size)
	out = append(out, mustType(typ)...)
	return append(out, Concat(parts...)...)
}

// LargeBox frames parts with size 1 and a 64-bit largesize.
func LargeBox(typ string, parts ...[]byte) []byte {
	body := Concat(parts...)
	out := binary.BigEndian.AppendUint32(nil, 1)
	out = append(out, mustType(typ)...)
	out = binary.BigEndian.AppendUint64(out, uint64(16+len(body)))
	return append(out, body...)
}

// UUIDBox frames parts as a uuid box with the given 16-byte extended type.
func UUIDBox(ext [16]byte, parts ...[]byte) []byte {
	return Box("uuid", ext[:], Concat(parts...))
}

// FullBox frames parts after a version byte and 24-bit flags.
func FullBox(typ string, version uint8, flags uint32, parts ...[]byte) []byte {
	vf := []byte{version, byte(flags >> 16), byte(flags >> 8), byte(flags)}
	return Box(typ, vf, Concat(parts...))
}

func U8(v uint8) []byte { return []byte{v} }

func U16(v uint16) []byte { return binary.BigEndian.AppendUint16(nil, v) }

func U32(v uint32) []byte { return binary.BigEndian.AppendUint32(nil, v) }

func U64(v uint64) []byte { return binary.BigEndian.AppendUint64(nil, v) }

func I16(v int16) []byte { return U16(uint16(v)) }

func I32(v int32) []byte { return U32(uint32(v)) }

func Zeros(n int) []byte { return make([]byte, n) }

func Ftyp(major string, minor uint32, compatible ...string) []byte {
	parts := [][]byte{[]byte(mustType(major)), U32(minor)}
	for _, c := range compatible {
		parts = append(parts, []byte(mustType(c)))
	}
	return Box("ftyp", parts...)
}

func Styp(major string, minor uint32, compatible ...string) []byte {
	b := Ftyp(major, minor, compatible...)
	copy(b[4:8], "styp")
	return b
}

// Mvhd builds a version 0 movie header.
func Mvhd(timescale, duration uint32) []byte {
	return FullBox("mvhd", 0, 0,
		Zeros(8), U32(timescale), U32(duration),
		U32(0x00010000), U16(0x0100), Zeros(10), identityMatrix(), Zeros(24),
		U32(2))
}

// Mvhd1 builds a version 1 movie header with 64-bit duration.
func Mvhd1(timescale uint32, duration uint64) []byte {
	return FullBox("mvhd", 1, 0,
		Zeros(16), U32(timescale), U64(duration),
		U32(0x00010000), U16(0x0100), Zeros(10), identityMatrix(), Zeros(24),
		U32(2))
}

func identityMatrix() []byte {
	return Concat(U32(0x00010000), Zeros(12), U32(0x00010000), Zeros(12), U32(0x40000000))
}

// TrackEnabled is the tkhd track_enabled flag.
const TrackEnabled = 0x000001

// Tkhd builds a version 0 track header.
func Tkhd(trackID, duration, flags uint32) []byte {
	return FullBox("tkhd", 0, flags,
		Zeros(8), U32(trackID), Zeros(4), U32(duration),
		Zeros(8), U16(0), U16(0), U16(0), Zeros(2), identityMatrix(),
		U32(640<<16), U32(360<<16))
}

// Mdhd builds a version 0 media header with language "und".
func Mdhd(timescale, duration uint32) []byte {
	return FullBox("mdhd", 0, 0, Zeros(8), U32(timescale), U32(duration), U16(0x55C4), U16(0))
}

func Hdlr(handler string) []byte {
	return FullBox("hdlr", 0, 0, Zeros(4), []byte(mustType(handler)), Zeros(12), []byte("bmffgate\x00"))
}

func Vmhd() []byte {
	return FullBox("vmhd", 0, 1, U16(0), Zeros(6))
}

func Smhd() []byte {
	return FullBox("smhd", 0, 0, U16(0), U16(0))
}

// Edit is one version 0 edit list row.
type Edit struct {
	Duration     uint32
	MediaTime    int32
	RateInteger  int16
	RateFraction int16
}

func Elst(edits ...Edit) []byte {
	parts := [][]byte{U32(uint32(len(edits)))}
	for _, e := range edits {
		parts = append(parts, U32(e.Duration), I32(e.MediaTime), I16(e.RateInteger), I16(e.RateFraction))
	}
	return FullBox("elst", 0, 0, parts...)
}

func Stsd(entries ...[]byte) []byte {
	return FullBox("stsd", 0, 0, U32(uint32(len(entries))), Concat(entries...))
}

// VisualEntry builds a visual sample entry with the fixed 78-byte field block.
func VisualEntry(format string, children ...[]byte) []byte {
	fields := Zeros(70)
	copy(fields[16:20], Concat(U16(640), U16(360)))
	return Box(format, Zeros(6), U16(1), fields, Concat(children...))
}

// AudioEntry builds an audio sample entry with the fixed 28-byte field block.
func AudioEntry(format string, children ...[]byte) []byte {
	fields := Zeros(20)
	copy(fields[8:12], Concat(U16(2), U16(16)))
	return Box(format, Zeros(6), U16(1), fields, Concat(children...))
}

// AvcC builds an AVC decoder configuration record.
func AvcC(nalLengthSize uint8, sps, pps [][]byte) []byte {
	parts := [][]byte{{1, 0x64, 0x00, 0x1F, 0xFC | ((nalLengthSize - 1) & 0x03), 0xE0 | byte(len(sps))}}
	for _, s := range sps {
		parts = append(parts, U16(uint16(len(s))), s)
	}
	parts = append(parts, U8(byte(len(pps))))
	for _, p := range pps {
		parts = append(parts, U16(uint16(len(p))), p)
	}
	return Box("avcC", parts...)
}

// NALArray is one hvcC parameter set array.
type NALArray struct {
	Type  uint8
	Units [][]byte
}

// HvcC builds an HEVC decoder configuration record.
func HvcC(nalLengthSize uint8, arrays ...NALArray) []byte {
	head := Zeros(23)
	head[0] = 1
	head[21] = 0xFC | ((nalLengthSize - 1) & 0x03)
	head[22] = byte(len(arrays))
	parts := [][]byte{head}
	for _, a := range arrays {
		parts = append(parts, U8(0x80|a.Type&0x3F), U16(uint16(len(a.Units))))
		for _, u := range a.Units {
			parts = append(parts, U16(uint16(len(u))), u)
		}
	}
	return Box("hvcC", parts...)
}

// Sinf builds a protection scheme box declaring the original format.
func Sinf(original, scheme string) []byte {
	return Box("sinf",
		Box("frma", []byte(mustType(original))),
		FullBox("schm", 0, 0, []byte(mustType(scheme)), U32(0x00010000)))
}

type TimeEntry struct {
	Count uint32
	Delta uint32
}

func Stts(entries ...TimeEntry) []byte {
	parts := [][]byte{U32(uint32(len(entries)))}
	for _, e := range entries {
		parts = append(parts, U32(e.Count), U32(e.Delta))
	}
	return FullBox("stts", 0, 0, parts...)
}

type OffsetEntry struct {
	Count  uint32
	Offset uint32
}

func Ctts(entries ...OffsetEntry) []byte {
	parts := [][]byte{U32(uint32(len(entries)))}
	for _, e := range entries {
		parts = append(parts, U32(e.Count), U32(e.Offset))
	}
	return FullBox("ctts", 0, 0, parts...)
}

// ChunkRun is one sample-to-chunk row.
type ChunkRun struct {
	FirstChunk      uint32
	SamplesPerChunk uint32
}

func Stsc(runs ...ChunkRun) []byte {
	parts := [][]byte{U32(uint32(len(runs)))}
	for _, r := range runs {
		parts = append(parts, U32(r.FirstChunk), U32(r.SamplesPerChunk), U32(1))
	}
	return FullBox("stsc", 0, 0, parts...)
}

func Stco(offsets ...uint32) []byte {
	parts := [][]byte{U32(uint32(len(offsets)))}
	for _, o := range offsets {
		parts = append(parts, U32(o))
	}
	return FullBox("stco", 0, 0, parts...)
}

func Co64(offsets ...uint64) []byte {
	parts := [][]byte{U32(uint32(len(offsets)))}
	for _, o := range offsets {
		parts = append(parts, U64(o))
	}
	return FullBox("co64", 0, 0, parts...)
}

// Stsz builds a sample size box. Explicit sizes are written only when
// defaultSize is zero.
func Stsz(defaultSize, count uint32, sizes ...uint32) []byte {
	parts := [][]byte{U32(defaultSize), U32(count)}
	if defaultSize == 0 {
		for _, s := range sizes {
			parts = append(parts, U32(s))
		}
	}
	return FullBox("stsz", 0, 0, parts...)
}

func Stz2(fieldSize uint8, count uint32) []byte {
	return FullBox("stz2", 0, 0, Zeros(3), U8(fieldSize), U32(count), Zeros(int(count)*int(fieldSize)/8))
}

func Mfhd(sequence uint32) []byte {
	return FullBox("mfhd", 0, 0, U32(sequence))
}

// Tfhd builds a track fragment header; defaultDuration of zero omits the field.
func Tfhd(trackID, defaultDuration uint32) []byte {
	flags := uint32(0x020000)
	parts := [][]byte{U32(trackID)}
	if defaultDuration != 0 {
		flags |= 0x000008
		parts = append(parts, U32(defaultDuration))
	}
	return FullBox("tfhd", 0, flags, parts...)
}

// Trun builds a track run declaring count samples. Per-sample duration and
// size columns are present when the corresponding slice is non-nil; rows
// beyond the longer slice are omitted.
func Trun(count uint32, durations, sizes []uint32) []byte {
	var flags uint32
	if durations != nil {
		flags |= 0x000100
	}
	if sizes != nil {
		flags |= 0x000200
	}
	rows := len(durations)
	if len(sizes) > rows {
		rows = len(sizes)
	}
	parts := [][]byte{U32(count)}
	for i := 0; i < rows; i++ {
		if durations != nil {
			parts = append(parts, U32(at(durations, i)))
		}
		if sizes != nil {
			parts = append(parts, U32(at(sizes, i)))
		}
	}
	return FullBox("trun", 0, flags, parts...)
}

func at(v []uint32, i int) uint32 {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func Trex(trackID, defaultDuration uint32) []byte {
	return FullBox("trex", 0, 0, U32(trackID), U32(1), U32(defaultDuration), U32(0), U32(0))
}
