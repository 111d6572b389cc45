package rules

import (
	"context"
	"errors"
	"strings"
	"testing"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/samples"
)

func validateBytes(t *testing.T, data []byte) *Result {
	t.Helper()
	res, err := Validate(context.Background(), bmff.NewBytesReader(data), RunOptions{FilePath: "mem.mp4"})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return res
}

func withRule(res *Result, id string) []Finding {
	var out []Finding
	for _, f := range res.Findings {
		if f.RuleID == id {
			out = append(out, f)
		}
	}
	return out
}

func expectOne(t *testing.T, res *Result, id, contains string) Finding {
	t.Helper()
	got := withRule(res, id)
	if len(got) != 1 {
		t.Fatalf("%s findings = %d, want 1: %+v", id, len(got), got)
	}
	if !strings.Contains(got[0].Message, contains) {
		t.Fatalf("%s message %q does not contain %q", id, got[0].Message, contains)
	}
	return got[0]
}

func expectNone(t *testing.T, res *Result, id string) {
	t.Helper()
	if got := withRule(res, id); len(got) != 0 {
		t.Fatalf("unexpected %s findings: %+v", id, got)
	}
}

// movieWith wraps boxes into a minimal progressive file.
func movieWith(boxes ...[]byte) []byte {
	return samples.Concat(
		samples.Ftyp("isom", 512, "isom"),
		samples.Box("moov", append([][]byte{samples.Mvhd(1000, 0)}, boxes...)...),
	)
}

// trakWithStbl builds a track whose sample table holds the given boxes.
func trakWithStbl(trackID uint32, stbl ...[]byte) []byte {
	return samples.Box("trak",
		samples.Tkhd(trackID, 0, samples.TrackEnabled),
		samples.Box("mdia", samples.Box("minf", samples.Box("stbl", stbl...))),
	)
}

func hdr(typ bmff.FourCC, start, size int64) bmff.BoxHeader {
	return bmff.BoxHeader{
		Type:         typ,
		Start:        start,
		End:          start + size,
		HeaderSize:   8,
		PayloadStart: start + 8,
		PayloadEnd:   start + size,
	}
}

func feed(rule Rule, r bmff.Reader, events ...bmff.Event) []Issue {
	var out []Issue
	for _, ev := range events {
		out = append(out, rule.Issues(ev, r)...)
	}
	return out
}

type failingReader struct{ size int64 }

func (f failingReader) Size() int64 { return f.size }

func (f failingReader) ReadAt(int64, int) ([]byte, error) {
	return nil, errors.New("device gone")
}

func contains(s, sub string) bool {
	return strings.Contains(s, sub)
}
