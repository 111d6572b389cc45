package capture

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/samples"
)

func record(t *testing.T, data []byte) (*Document, *rules.Result) {
	t.Helper()
	rec := NewRecorder()
	res, err := rules.Validate(context.Background(), bmff.NewBytesReader(data), rules.RunOptions{Observer: rec})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return rec.Document(), res
}

func TestRecorderCapturesEveryEvent(t *testing.T) {
	doc, res := record(t, samples.BuildClean())
	if doc.Version != Version {
		t.Fatalf("version = %d", doc.Version)
	}
	if len(doc.Events) != 2*res.Boxes {
		t.Fatalf("events = %d, want %d", len(doc.Events), 2*res.Boxes)
	}
	first := doc.Events[0]
	if first.Kind != "willStart" || first.Header.Type != "ftyp" || first.Offset != 0 || first.Depth != 0 {
		t.Fatalf("first event = %+v", first)
	}
	if first.Metadata == nil || first.Metadata.Name != "File Type" {
		t.Fatalf("metadata = %+v", first.Metadata)
	}
	if first.Header.RangeEnd-first.Header.RangeStart != first.Header.TotalSize {
		t.Fatalf("range %d-%d does not match size %d", first.Header.RangeStart, first.Header.RangeEnd, first.Header.TotalSize)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	doc, _ := record(t, samples.BuildBroken())
	dir := t.TempDir()
	for _, name := range []string{"broken.json", "broken" + Extension} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			if err := Save(path, doc); err != nil {
				t.Fatalf("Save: %v", err)
			}
			got, err := Load(path)
			if err != nil {
				t.Fatalf("Load: %v", err)
			}
			if len(got.Events) != len(doc.Events) {
				t.Fatalf("events = %d, want %d", len(got.Events), len(doc.Events))
			}
			events, err := got.StreamEvents()
			if err != nil {
				t.Fatalf("StreamEvents: %v", err)
			}
			if events[0].Header.Type != bmff.TypeFtyp || events[0].Kind != bmff.EnterBox {
				t.Fatalf("first event = %+v", events[0])
			}
		})
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path string
		want Format
	}{
		{"a.json", FormatJSON},
		{"a.bmffcap", FormatMsgpack},
		{"A.BMFFCAP", FormatMsgpack},
		{"noext", FormatJSON},
	}
	for _, tc := range tests {
		if got := FormatForPath(tc.path); got != tc.want {
			t.Fatalf("FormatForPath(%q) = %v, want %v", tc.path, got, tc.want)
		}
	}
}

func TestReplayReproducesStructuralFindings(t *testing.T) {
	doc, res := record(t, samples.BuildBroken())
	var buf bytes.Buffer
	if err := Encode(&buf, doc, FormatMsgpack); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(&buf, FormatMsgpack)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	out, err := Replay(decoded)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(out.Mismatches) != 0 {
		t.Fatalf("mismatches: %v", out.Mismatches)
	}
	if out.Result.Boxes != res.Boxes {
		t.Fatalf("boxes = %d, want %d", out.Result.Boxes, res.Boxes)
	}
	want := map[string]int{}
	for _, f := range res.Findings {
		if Replayable(f.RuleID) {
			want[f.RuleID]++
		}
	}
	got := map[string]int{}
	for _, f := range out.Result.Findings {
		if Replayable(f.RuleID) {
			got[f.RuleID]++
		}
	}
	if len(want) == 0 {
		t.Fatalf("broken file produced no replayable findings")
	}
	for id, n := range want {
		if got[id] != n {
			t.Fatalf("%s: replayed %d findings, want %d", id, got[id], n)
		}
	}
}

func TestReplayReportsTamperedIssues(t *testing.T) {
	doc, _ := record(t, samples.BuildBroken())
	doc.Events[0].ValidationIssues = append(doc.Events[0].ValidationIssues,
		rules.Issue{RuleID: rules.IDUnknownBox, Message: "forged", Severity: rules.INFO})
	out, err := Replay(doc)
	if err != nil {
		t.Fatalf("Replay: %v", err)
	}
	if len(out.Mismatches) != 1 || out.Mismatches[0].Event != 0 {
		t.Fatalf("mismatches = %+v", out.Mismatches)
	}
	if !strings.Contains(out.Mismatches[0].String(), "ftyp@0") {
		t.Fatalf("mismatch = %s", out.Mismatches[0])
	}
}

func TestDecodeRejectsMalformedDocuments(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"version", `{"version":2,"events":[]}`, ErrVersion},
		{"kind", `{"version":1,"events":[{"kind":"sideways","header":{"type":"moov"}}]}`, ErrKind},
		{"fourcc", `{"version":1,"events":[{"kind":"willStart","header":{"type":"mo"}}]}`, bmff.ErrInvalidFourCC},
		{"negative depth", `{"version":1,"events":[{"kind":"willStart","header":{"type":"moov"},"depth":-1}]}`, ErrDepth},
		{"metadata", `{"version":1,"events":[{"kind":"willStart","header":{"type":"moov"},"metadata":{"type":"toolong"}}]}`, bmff.ErrInvalidFourCC},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Decode(strings.NewReader(tc.doc), FormatJSON)
			if !errors.Is(err, tc.want) {
				t.Fatalf("Decode error = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestDecodeRejectsBadUUID(t *testing.T) {
	doc := `{"version":1,"events":[{"kind":"willStart","header":{"type":"uuid","uuid":"not-a-uuid"}}]}`
	_, err := Decode(strings.NewReader(doc), FormatJSON)
	if err == nil || !strings.Contains(err.Error(), "header uuid") {
		t.Fatalf("Decode error = %v", err)
	}
}

func TestDecodeKeepsUUID(t *testing.T) {
	const id = "a2394f52-5a9b-4f14-a244-6c427c648df4"
	doc := `{"version":1,"events":[{"kind":"willStart","header":{"type":"uuid","uuid":"` + id + `","rangeStart":8,"rangeEnd":32,"headerSize":24}}]}`
	got, err := Decode(strings.NewReader(doc), FormatJSON)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	events, err := got.StreamEvents()
	if err != nil {
		t.Fatalf("StreamEvents: %v", err)
	}
	if events[0].Header.UUID.String() != id {
		t.Fatalf("uuid = %s", events[0].Header.UUID)
	}
	if events[0].Header.Identifier() != "uuid["+id+"]@8" {
		t.Fatalf("identifier = %s", events[0].Header.Identifier())
	}
}
