package rules

import (
	"testing"

	"example.com/bmffgate/internal/bmff"
	s "example.com/bmffgate/internal/samples"
)

func TestContainerBoundaryWellFormed(t *testing.T) {
	res := validateBytes(t, s.Concat(
		s.Ftyp("isom", 0, "isom"),
		s.Box("moov", s.Mvhd(1000, 0), s.Box("udta", s.Box("free", s.Zeros(3)))),
		s.FullBox("meta", 0, 0, s.Hdlr("mdir"), s.Box("ilst")),
	))
	expectNone(t, res, IDContainerBoundary)
}

func TestContainerBoundaryEvents(t *testing.T) {
	moov := hdr(bmff.TypeMoov, 0, 100)
	desc := bmff.Describe(bmff.TypeMoov)
	tests := []struct {
		name   string
		events []bmff.Event
		want   string
	}{
		{
			name: "gap",
			events: []bmff.Event{
				bmff.Enter(moov, 0).WithDescriptor(desc),
				bmff.Enter(hdr(bmff.TypeFree, 12, 20), 1),
			},
			want: "Container moov@0 expected child to start at offset 8 but found 12.",
		},
		{
			name: "overlap",
			events: []bmff.Event{
				bmff.Enter(moov, 0).WithDescriptor(desc),
				bmff.Enter(hdr(bmff.TypeFree, 8, 20), 1),
				bmff.Exit(hdr(bmff.TypeFree, 8, 20), 1),
				bmff.Enter(hdr(bmff.TypeSkip, 20, 20), 1),
			},
			want: "Child skip@20 overlaps previous child inside moov@0",
		},
		{
			name: "exceeds parent",
			events: []bmff.Event{
				bmff.Enter(moov, 0).WithDescriptor(desc),
				bmff.Enter(hdr(bmff.TypeFree, 8, 200), 1),
			},
			want: "Child free@8 extends beyond parent moov@0 payload (child end 208, parent end 100).",
		},
		{
			name: "short coverage",
			events: []bmff.Event{
				bmff.Enter(moov, 0).WithDescriptor(desc),
				bmff.Enter(hdr(bmff.TypeFree, 8, 20), 1),
				bmff.Exit(hdr(bmff.TypeFree, 8, 20), 1),
				bmff.Exit(moov, 0),
			},
			want: "Container moov@0 expected to close at offset 100 but consumed 28.",
		},
		{
			name: "depth jump",
			events: []bmff.Event{
				bmff.Enter(hdr(bmff.TypeFree, 0, 8), 2),
			},
			want: "arrived at depth 2 without a matching parent context",
		},
		{
			name: "orphan finish",
			events: []bmff.Event{
				bmff.Exit(hdr(bmff.TypeFree, 0, 8), 0),
			},
			want: "Finish event for free@0 arrived at depth 0 without an opening start event.",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			issues := feed(&ContainerBoundaryRule{}, nil, tc.events...)
			if len(issues) != 1 {
				t.Fatalf("issues = %+v", issues)
			}
			if !contains(issues[0].Message, tc.want) {
				t.Fatalf("message %q lacks %q", issues[0].Message, tc.want)
			}
		})
	}
}

func TestContainerBoundaryRecoversAfterReset(t *testing.T) {
	rule := &ContainerBoundaryRule{}
	feed(rule, nil, bmff.Enter(hdr(bmff.TypeFree, 0, 8), 3))
	moov := hdr(bmff.TypeMoov, 8, 16)
	free := hdr(bmff.TypeFree, 16, 8)
	issues := feed(rule, nil,
		bmff.Enter(moov, 0).WithDescriptor(bmff.Describe(bmff.TypeMoov)),
		bmff.Enter(free, 1), bmff.Exit(free, 1),
		bmff.Exit(moov, 0),
	)
	if len(issues) != 0 {
		t.Fatalf("issues after recovery: %+v", issues)
	}
}

func TestContainerBoundaryNegativeDepth(t *testing.T) {
	moov := hdr(bmff.TypeMoov, 0, 16)
	tests := []struct {
		name string
		ev   bmff.Event
		want string
	}{
		{"start", bmff.Enter(moov, -1), "Start event for moov@0 arrived at negative depth -1."},
		{"finish", bmff.Exit(moov, -3), "Finish event for moov@0 arrived at negative depth -3."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			engine := NewDefaultEngine(RuleSetOptions{})
			engine.Issues(bmff.Enter(hdr(bmff.TypeFree, 0, 8), 0), nil)
			issues := engine.Issues(tc.ev, nil)
			got := withIssues(issues, IDContainerBoundary)
			if len(got) != 1 || got[0].Message != tc.want {
				t.Fatalf("issues = %+v", issues)
			}
			if open := engine.Finish(); len(withIssues(open, IDContainerBoundary)) != 0 {
				t.Fatalf("stack not reset: %+v", open)
			}
		})
	}
}

func withIssues(issues []Issue, id string) []Issue {
	var out []Issue
	for _, is := range issues {
		if is.RuleID == id {
			out = append(out, is)
		}
	}
	return out
}

func TestBoxSize(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"smaller than header", s.Concat(s.Ftyp("isom", 0, "isom"), s.SizedBox(4, "free")), "declares size 4 smaller than its 8-byte header."},
		{"beyond file", s.Concat(s.Ftyp("isom", 0, "isom"), s.SizedBox(64, "free", s.Zeros(8))), "extends beyond file length (end 84, file length 36)."},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := validateBytes(t, tc.data)
			expectOne(t, res, IDBoxSize, tc.want)
		})
	}
}

func TestVersionFlags(t *testing.T) {
	tests := []struct {
		name string
		box  []byte
		want []string
	}{
		{"matching", s.FullBox("hdlr", 0, 0, s.Zeros(4), []byte("vide"), s.Zeros(13)), nil},
		{"version", s.FullBox("hdlr", 1, 0, s.Zeros(21)), []string{"hdlr@16 version mismatch: expected 0 but found 1."}},
		{"flags", s.FullBox("vmhd", 0, 0, s.Zeros(8)), []string{"vmhd@16 flags mismatch: expected 0x000001 but found 0x000000."}},
		{"truncated", s.Box("hdlr", s.Zeros(2)), []string{"payload too small for version/flags check (expected 4 bytes, found 2)."}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := validateBytes(t, s.Concat(s.Ftyp("isom", 0), tc.box))
			got := withRule(res, IDVersionFlags)
			if len(got) != len(tc.want) {
				t.Fatalf("findings = %+v", got)
			}
			for i, want := range tc.want {
				if !contains(got[i].Message, want) || got[i].Severity != WARN {
					t.Fatalf("finding %+v lacks %q", got[i], want)
				}
			}
		})
	}
}

func TestVersionFlagsReaderFailure(t *testing.T) {
	ev := bmff.Enter(hdr(bmff.TypeHdlr, 0, 40), 0).WithDescriptor(bmff.Describe(bmff.TypeHdlr))
	issues := VersionFlagsRule{}.Issues(ev, failingReader{size: 40})
	if len(issues) != 1 || !contains(issues[0].Message, "failed to read version/flags: device gone") {
		t.Fatalf("issues = %+v", issues)
	}
}

type recorder struct{ entries []ResearchEntry }

func (r *recorder) Record(e ResearchEntry) error {
	r.entries = append(r.entries, e)
	return nil
}

func TestUnknownBoxRecorded(t *testing.T) {
	rec := &recorder{}
	rule := UnknownBoxRule{FilePath: "a.mp4", Recorder: rec}
	h := hdr(bmff.FourCC('x'<<24|'y'<<16|'z'<<8|'w'), 40, 24)
	issues := rule.Issues(bmff.Enter(h, 0), nil)
	if len(issues) != 1 || issues[0].Severity != INFO {
		t.Fatalf("issues = %+v", issues)
	}
	if want := "Unknown box type 'xyzw' at offsets 40-64 recorded for research."; issues[0].Message != want {
		t.Fatalf("message = %q", issues[0].Message)
	}
	if len(rec.entries) != 1 || rec.entries[0].FilePath != "a.mp4" || rec.entries[0].End != 64 {
		t.Fatalf("recorded = %+v", rec.entries)
	}
	known := bmff.Enter(hdr(bmff.TypeFree, 0, 8), 0).WithDescriptor(bmff.Describe(bmff.TypeFree))
	if issues := rule.Issues(known, nil); len(issues) != 0 {
		t.Fatalf("known box issues = %+v", issues)
	}
}
