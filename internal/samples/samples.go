// Package samples builds deterministic MP4 fixtures for tests and for the
// sample generator.
package samples

import (
	"bytes"
	"os"
	"path/filepath"
)

const (
	CleanFileName      = "clean.mp4"
	FragmentedFileName = "fragmented.mp4"
	BrokenFileName     = "broken.mp4"

	MovieTimescale uint32 = 1000
	MediaTimescale uint32 = 90000
	SampleDelta    uint32 = 30000
	SampleCount    uint32 = 3
)

var (
	SPS = []byte{0x67, 0x64, 0x00, 0x1F, 0xAC}
	PPS = []byte{0x68, 0xEE, 0x3C, 0x80}
)

// VideoStbl builds a consistent sample table holding SampleCount samples in a
// single chunk at chunkOffset.
func VideoStbl(chunkOffset uint32) []byte {
	return Box("stbl",
		Stsd(VisualEntry("avc1", AvcC(4, [][]byte{SPS}, [][]byte{PPS}))),
		Stts(TimeEntry{Count: SampleCount, Delta: SampleDelta}),
		Stsc(ChunkRun{FirstChunk: 1, SamplesPerChunk: SampleCount}),
		Stsz(0, SampleCount, 4, 4, 4),
		Stco(chunkOffset),
	)
}

// VideoTrak builds an enabled video track lasting one second with a single
// edit covering the whole media.
func VideoTrak(trackID, chunkOffset uint32) []byte {
	return Box("trak",
		Tkhd(trackID, MovieTimescale, TrackEnabled),
		Box("edts", Elst(Edit{Duration: MovieTimescale, MediaTime: 0, RateInteger: 1})),
		Box("mdia",
			Mdhd(MediaTimescale, SampleCount*SampleDelta),
			Hdlr("vide"),
			Box("minf", Vmhd(), VideoStbl(chunkOffset)),
		),
	)
}

// BuildClean returns a progressive file that passes every rule.
func BuildClean() []byte {
	ftyp := Ftyp("isom", 512, "isom", "iso2", "avc1", "mp41")
	moov := func(offset uint32) []byte {
		return Box("moov", Mvhd(MovieTimescale, MovieTimescale), VideoTrak(1, offset))
	}
	probe := moov(0)
	offset := uint32(len(ftyp) + len(probe) + 8)
	return Concat(ftyp, moov(offset), Box("mdat", Zeros(12)))
}

// FragmentTrak builds a track whose samples live entirely in fragments.
func FragmentTrak(trackID uint32) []byte {
	return Box("trak",
		Tkhd(trackID, 0, TrackEnabled),
		Box("mdia",
			Mdhd(MediaTimescale, 0),
			Hdlr("vide"),
			Box("minf", Vmhd(), Box("stbl",
				Stsd(VisualEntry("avc1", AvcC(4, [][]byte{SPS}, [][]byte{PPS}))),
				Stts(), Stsc(), Stsz(0, 0), Stco(),
			)),
		),
	)
}

// Fragment builds one moof+mdat pair with a single run.
func Fragment(sequence, trackID uint32) []byte {
	moof := Box("moof",
		Mfhd(sequence),
		Box("traf",
			Tfhd(trackID, SampleDelta),
			Trun(SampleCount, nil, []uint32{4, 4, 4}),
		),
	)
	return Concat(moof, Box("mdat", Zeros(12)))
}

// BuildFragmented returns a fragmented file with two in-order fragments.
func BuildFragmented() []byte {
	return Concat(
		Ftyp("iso6", 0, "iso6", "dash", "avc1"),
		Box("moov",
			Mvhd(MovieTimescale, 0),
			Box("mvex", Trex(1, SampleDelta)),
			FragmentTrak(1),
		),
		Fragment(1, 1),
		Fragment(2, 1),
	)
}

// BuildBroken returns a file exercising several rules at once: an unknown
// top-level box before the movie box, media data before the movie box,
// inconsistent sample counts and an empty sequence parameter set.
func BuildBroken() []byte {
	stbl := Box("stbl",
		Stsd(VisualEntry("avc1", AvcC(4, [][]byte{{}}, [][]byte{PPS}))),
		Stts(TimeEntry{Count: SampleCount, Delta: SampleDelta}),
		Stsc(ChunkRun{FirstChunk: 1, SamplesPerChunk: SampleCount}),
		Stsz(0, SampleCount+1, 4, 4, 4, 4),
		Stco(64),
	)
	trak := Box("trak",
		Tkhd(1, MovieTimescale, TrackEnabled),
		Box("mdia", Mdhd(MediaTimescale, SampleCount*SampleDelta), Hdlr("vide"), Box("minf", Vmhd(), stbl)),
	)
	return Concat(
		Ftyp("isom", 512, "isom"),
		Box("zzzz", Zeros(4)),
		Box("mdat", Zeros(16)),
		Box("moov", Mvhd(MovieTimescale, MovieTimescale), trak),
	)
}

// WriteFiles materializes the fixtures under dir.
func WriteFiles(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	files := []struct {
		name string
		data []byte
	}{
		{CleanFileName, BuildClean()},
		{FragmentedFileName, BuildFragmented()},
		{BrokenFileName, BuildBroken()},
	}
	for _, f := range files {
		if err := writeFileIfChanged(filepath.Join(dir, f.name), f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeFileIfChanged(path string, data []byte) error {
	existing, err := os.ReadFile(path)
	if err == nil && bytes.Equal(existing, data) {
		return nil
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
