package bmff

import (
	"context"
	"errors"
	"strings"
	"testing"

	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/samples"
)

func walkAll(t *testing.T, data []byte) ([]Event, *Walker) {
	t.Helper()
	w := NewWalker(NewBytesReader(data))
	var events []Event
	if err := w.Walk(context.Background(), func(ev Event) error {
		events = append(events, ev)
		return nil
	}); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	return events, w
}

func findEnter(events []Event, typ FourCC) []Event {
	var out []Event
	for _, ev := range events {
		if ev.Kind == EnterBox && ev.Header.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

func TestWalkCleanFile(t *testing.T) {
	data := samples.BuildClean()
	events, w := walkAll(t, data)
	if len(w.Problems()) != 0 {
		t.Fatalf("unexpected problems: %+v", w.Problems())
	}
	depth := 0
	for i, ev := range events {
		switch ev.Kind {
		case EnterBox:
			if ev.Depth != depth {
				t.Fatalf("event %d %s at depth %d, want %d", i, ev.Header, ev.Depth, depth)
			}
			depth++
		case ExitBox:
			depth--
			if ev.Depth != depth {
				t.Fatalf("exit %d %s at depth %d, want %d", i, ev.Header, ev.Depth, depth)
			}
		}
	}
	if depth != 0 {
		t.Fatalf("unbalanced stream, final depth %d", depth)
	}
	if events[0].Header.Type != TypeFtyp || events[0].Kind != EnterBox {
		t.Fatalf("first event = %v %s", events[0].Kind, events[0].Header)
	}
	if len(findEnter(events, FormatAvc1)) != 0 {
		t.Fatalf("walker must not descend into stsd")
	}

	ftyp := findEnter(events, TypeFtyp)[0].Detail.(*FileType)
	if ftyp.MajorBrand.String() != "isom" || len(ftyp.CompatibleBrands) != 4 {
		t.Fatalf("ftyp detail = %+v", ftyp)
	}
	mvhd := findEnter(events, TypeMvhd)[0].Detail.(*MovieHeader)
	if mvhd.Timescale != samples.MovieTimescale || mvhd.Duration != uint64(samples.MovieTimescale) {
		t.Fatalf("mvhd detail = %+v", mvhd)
	}
	tkhd := findEnter(events, TypeTkhd)[0].Detail.(*TrackHeader)
	if tkhd.TrackID != 1 || !tkhd.Enabled() {
		t.Fatalf("tkhd detail = %+v", tkhd)
	}
	elst := findEnter(events, TypeElst)[0].Detail.(*EditList)
	if elst.MovieTimescale != samples.MovieTimescale || len(elst.Entries) != 1 || elst.Entries[0].MediaRateInteger != 1 {
		t.Fatalf("elst detail = %+v", elst)
	}
	mdhd := findEnter(events, TypeMdhd)[0].Detail.(*MediaHeader)
	if mdhd.Timescale != samples.MediaTimescale || mdhd.Language != "und" {
		t.Fatalf("mdhd detail = %+v", mdhd)
	}
	stsc := findEnter(events, TypeStsc)[0].Detail.(*SampleToChunk)
	if len(stsc.Entries) != 1 || stsc.Entries[0].SamplesPerChunk != samples.SampleCount {
		t.Fatalf("stsc detail = %+v", stsc)
	}
	stco := findEnter(events, TypeStco)[0].Detail.(*ChunkOffset)
	mdat := findEnter(events, TypeMdat)[0]
	if len(stco.Entries) != 1 || int64(stco.Entries[0].Offset) != mdat.Header.PayloadStart {
		t.Fatalf("stco offset %+v, mdat payload at %d", stco.Entries, mdat.Header.PayloadStart)
	}
	if mdat.Detail != nil {
		t.Fatalf("mdat must not be decoded")
	}
	if ev := findEnter(events, TypeStsd)[0]; ev.Descriptor == nil || ev.Descriptor.Version == nil {
		t.Fatalf("stsd descriptor = %+v", ev.Descriptor)
	}
}

func TestWalkFragmentedRunContext(t *testing.T) {
	events, _ := walkAll(t, samples.BuildFragmented())
	runs := findEnter(events, TypeTrun)
	if len(runs) != 2 {
		t.Fatalf("runs = %d, want 2", len(runs))
	}
	for i, ev := range runs {
		run := ev.Detail.(*TrackRun)
		if run.TrackID == nil || *run.TrackID != 1 {
			t.Fatalf("run %d track = %v", i, run.TrackID)
		}
		if run.RunIndex == nil || *run.RunIndex != 0 {
			t.Fatalf("run %d index = %v", i, run.RunIndex)
		}
		wantFirst := uint64(i)*uint64(samples.SampleCount) + 1
		if run.FirstSample == nil || *run.FirstSample != wantFirst {
			t.Fatalf("run %d first sample = %v, want %d", i, run.FirstSample, wantFirst)
		}
		if len(run.Entries) != int(samples.SampleCount) {
			t.Fatalf("run %d entries = %d", i, len(run.Entries))
		}
		for _, e := range run.Entries {
			if e.Duration == nil || *e.Duration != samples.SampleDelta {
				t.Fatalf("run %d entry %d duration = %v", i, e.Index, e.Duration)
			}
		}
	}
	seq := findEnter(events, TypeMfhd)
	if seq[1].Detail.(*MovieFragmentHeader).SequenceNumber != 2 {
		t.Fatalf("second mfhd = %+v", seq[1].Detail)
	}
}

func TestWalkRunDurationFallsBackToTrackExtends(t *testing.T) {
	data := samples.Concat(
		samples.Box("moov", samples.Box("mvex", samples.Trex(7, 1234))),
		samples.Box("moof", samples.Box("traf",
			samples.Tfhd(7, 0),
			samples.Trun(2, nil, []uint32{1, 1}),
			samples.Trun(1, []uint32{99}, nil),
		)),
	)
	events, _ := walkAll(t, data)
	runs := findEnter(events, TypeTrun)
	first := runs[0].Detail.(*TrackRun)
	if *first.Entries[0].Duration != 1234 || *first.RunIndex != 0 {
		t.Fatalf("first run = %+v", first)
	}
	second := runs[1].Detail.(*TrackRun)
	if *second.Entries[0].Duration != 99 || *second.RunIndex != 1 || *second.FirstSample != 3 {
		t.Fatalf("second run = %+v", second)
	}
}

func TestWalkHeaderForms(t *testing.T) {
	ext := [16]byte{0xA2, 0x39, 0x4F, 0x52, 0x5A, 0x9B, 0x4F, 0x14, 0xA2, 0x44, 0x6C, 0x42, 0x7C, 0x64, 0x8D, 0xF4}
	data := samples.Concat(
		samples.LargeBox("free", samples.Zeros(4)),
		samples.UUIDBox(ext, samples.Zeros(2)),
		samples.SizedBox(0, "mdat", samples.Zeros(10)),
	)
	events, w := walkAll(t, data)
	if len(w.Problems()) != 0 {
		t.Fatalf("problems: %+v", w.Problems())
	}
	free := findEnter(events, TypeFree)[0].Header
	if free.HeaderSize != 16 || free.TotalSize() != 20 {
		t.Fatalf("largesize header = %+v", free)
	}
	u := findEnter(events, TypeUUID)[0].Header
	if !u.HasUUID() || u.HeaderSize != 24 || !strings.HasPrefix(u.Identifier(), "uuid[a2394f52-") {
		t.Fatalf("uuid header = %+v (%s)", u, u.Identifier())
	}
	mdat := findEnter(events, TypeMdat)[0].Header
	if mdat.End != int64(len(data)) {
		t.Fatalf("size 0 box ends at %d, want %d", mdat.End, len(data))
	}
}

func TestWalkMalformedInput(t *testing.T) {
	t.Run("undersized", func(t *testing.T) {
		data := samples.Concat(samples.SizedBox(4, "free", samples.Zeros(8)), samples.Box("mdat"))
		events, w := walkAll(t, data)
		if len(events) != 2 {
			t.Fatalf("events = %d, want 2", len(events))
		}
		if len(w.Problems()) != 1 {
			t.Fatalf("problems = %+v", w.Problems())
		}
	})
	t.Run("truncated header", func(t *testing.T) {
		data := samples.Concat(samples.Box("free"), []byte{0, 0, 0})
		events, w := walkAll(t, data)
		if len(events) != 2 || len(w.Problems()) != 1 || w.Problems()[0].Offset != 8 {
			t.Fatalf("events %d problems %+v", len(events), w.Problems())
		}
	})
	t.Run("child overruns parent", func(t *testing.T) {
		child := samples.SizedBox(64, "trak", samples.Zeros(8))
		sibling := samples.Box("udta")
		moov := samples.Box("moov", child, sibling)
		events, _ := walkAll(t, moov)
		if len(findEnter(events, TypeTrak)) != 1 {
			t.Fatalf("overrunning child should still be emitted")
		}
		if len(findEnter(events, TypeUdta)) != 0 {
			t.Fatalf("siblings after an overrun must not be walked")
		}
	})
	t.Run("box beyond file", func(t *testing.T) {
		data := samples.SizedBox(100, "moov", samples.Box("mvhd"))
		events, _ := walkAll(t, data)
		if len(findEnter(events, TypeMvhd)) != 1 {
			t.Fatalf("children of a truncated container should be walked")
		}
	})
	t.Run("rows missing from table payload", func(t *testing.T) {
		cases := []struct {
			name string
			box  []byte
			want string
		}{
			{"trun", samples.Trun(5, []uint32{10}, nil), "trun@0 declares 5 samples, payload holds 1"},
			{"stts", samples.FullBox("stts", 0, 0, samples.U32(3), samples.U32(1)), "stts@0 declares 3 entries, payload holds 0"},
		}
		for _, tc := range cases {
			t.Run(tc.name, func(t *testing.T) {
				events, w := walkAll(t, tc.box)
				if events[0].Detail == nil {
					t.Fatalf("short %s should still decode", tc.name)
				}
				if len(w.Problems()) != 1 || w.Problems()[0].Message != tc.want {
					t.Fatalf("problems = %+v", w.Problems())
				}
			})
		}
	})
	t.Run("decoder tolerates short payload", func(t *testing.T) {
		data := samples.FullBox("mvhd", 0, 0, samples.Zeros(3))
		events, _ := walkAll(t, data)
		if events[0].Detail != nil {
			t.Fatalf("short mvhd decoded as %+v", events[0].Detail)
		}
	})
}

func TestWalkMetaChildrenSkipFullHeader(t *testing.T) {
	data := samples.FullBox("meta", 0, 0, samples.Hdlr("mdir"))
	events, w := walkAll(t, data)
	if len(w.Problems()) != 0 {
		t.Fatalf("problems: %+v", w.Problems())
	}
	hdlr := findEnter(events, TypeHdlr)
	if len(hdlr) != 1 || hdlr[0].Header.Start != 12 || hdlr[0].Depth != 1 {
		t.Fatalf("hdlr events = %+v", hdlr)
	}
}

func TestWalkMaxDepth(t *testing.T) {
	data := samples.Box("moov", samples.Box("trak", samples.Box("mdia")))
	w := NewWalker(NewBytesReader(data), WithMaxDepth(2))
	var entered []FourCC
	err := w.Walk(context.Background(), func(ev Event) error {
		if ev.Kind == EnterBox {
			entered = append(entered, ev.Header.Type)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Walk: %v", err)
	}
	if len(entered) != 2 || len(w.Problems()) != 1 {
		t.Fatalf("entered %v problems %+v", entered, w.Problems())
	}
}

func TestWalkStopsOnCallbackErrorAndCancel(t *testing.T) {
	data := samples.BuildClean()
	stop := errors.New("stop")
	w := NewWalker(NewBytesReader(data))
	n := 0
	err := w.Walk(context.Background(), func(Event) error {
		n++
		if n == 3 {
			return stop
		}
		return nil
	})
	if !errors.Is(err, stop) || n != 3 {
		t.Fatalf("err %v after %d events", err, n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = NewWalker(NewBytesReader(data)).Walk(ctx, func(Event) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestWalkUpdatesMetrics(t *testing.T) {
	data := samples.BuildFragmented()
	m := common.NewMetrics()
	w := NewWalker(NewBytesReader(data), WithMetrics(m))
	if err := w.Walk(context.Background(), func(Event) error { return nil }); err != nil {
		t.Fatalf("Walk: %v", err)
	}
	s := m.Snapshot()
	if s.Bytes != int64(len(data)) || s.Boxes == 0 || s.Completion() != 1 {
		t.Fatalf("snapshot = %+v", s)
	}
}
