package rules

import (
	"context"
	"reflect"
	"testing"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/samples"
)

func TestCleanFilesProduceNoFindings(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"progressive", samples.BuildClean()},
		{"fragmented", samples.BuildFragmented()},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			res := validateBytes(t, tc.data)
			if len(res.Findings) != 0 {
				t.Fatalf("unexpected findings: %+v", res.Findings)
			}
			if res.Failed() {
				t.Fatalf("clean file failed")
			}
			if res.Boxes == 0 {
				t.Fatalf("no boxes counted")
			}
		})
	}
}

func TestBrokenFileFindings(t *testing.T) {
	res := validateBytes(t, samples.BuildBroken())
	expectOne(t, res, IDUnknownBox, "'zzzz'")
	expectOne(t, res, IDMovieDataOrdering, "before movie box")
	expectOne(t, res, IDTopLevelAdvisory, `"zzzz"`)
	expectOne(t, res, IDCodecConfiguration, "sequence parameter set #0 has zero length")
	if got := withRule(res, IDSampleTable); len(got) != 2 {
		t.Fatalf("VR-015 findings = %d, want 2: %+v", len(got), got)
	}
	if !res.Failed() {
		t.Fatalf("broken file passed")
	}
	counts := res.Counts()
	if counts[INFO] != 1 {
		t.Fatalf("info count = %d", counts[INFO])
	}
}

func TestValidationIsDeterministic(t *testing.T) {
	for _, data := range [][]byte{samples.BuildClean(), samples.BuildFragmented(), samples.BuildBroken()} {
		first := validateBytes(t, data)
		second := validateBytes(t, data)
		if !reflect.DeepEqual(first.Findings, second.Findings) {
			t.Fatalf("findings differ between runs:\n%+v\n%+v", first.Findings, second.Findings)
		}
	}
}

func TestEngineDispatchesInRegistrationOrder(t *testing.T) {
	var order []string
	mk := func(name string) Rule {
		return ruleFunc(func(bmff.Event, bmff.Reader) []Issue {
			order = append(order, name)
			return []Issue{{RuleID: name, Severity: INFO}}
		})
	}
	e := NewEngine(mk("a"), mk("b"), mk("c"))
	issues := e.Issues(bmff.Enter(hdr(bmff.TypeFree, 0, 8), 0), nil)
	if want := []string{"a", "b", "c"}; !reflect.DeepEqual(order, want) {
		t.Fatalf("order = %v, want %v", order, want)
	}
	if len(issues) != 3 || issues[2].RuleID != "c" {
		t.Fatalf("issues = %+v", issues)
	}
	if e.Events() != 1 {
		t.Fatalf("events = %d", e.Events())
	}
}

type ruleFunc func(bmff.Event, bmff.Reader) []Issue

func (f ruleFunc) Issues(ev bmff.Event, r bmff.Reader) []Issue { return f(ev, r) }

func TestEngineFinishOnce(t *testing.T) {
	e := NewDefaultEngine(RuleSetOptions{})
	h := hdr(bmff.TypeMoov, 0, 16)
	e.Issues(bmff.Enter(h, 0).WithDescriptor(bmff.Describe(bmff.TypeMoov)), nil)
	first := e.Finish()
	if len(first) == 0 {
		t.Fatalf("expected unclosed container findings")
	}
	if again := e.Finish(); len(again) != 0 {
		t.Fatalf("second Finish returned %+v", again)
	}
	defer func() {
		if recover() == nil {
			t.Fatalf("expected panic after Finish")
		}
	}()
	e.Issues(bmff.Exit(h, 0), nil)
}

func TestValidateRecordsParseProblems(t *testing.T) {
	data := samples.Concat(samples.Ftyp("isom", 0, "isom"), []byte{0, 0, 0})
	res := validateBytes(t, data)
	got := expectOne(t, res, IDParse, "truncated box header")
	if got.Start != int64(len(data)-3) {
		t.Fatalf("parse finding at %d", got.Start)
	}
}

func TestValidateFeedsMetricsAndObserver(t *testing.T) {
	m := common.NewMetrics()
	var observed int
	res, err := Validate(context.Background(), bmff.NewBytesReader(samples.BuildBroken()), RunOptions{
		Metrics: m,
		Observer: ObserverFunc(func(ev bmff.Event, issues []Issue) {
			observed++
		}),
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	snap := m.Snapshot()
	if snap.Boxes != int64(res.Boxes) {
		t.Fatalf("metrics boxes %d, result %d", snap.Boxes, res.Boxes)
	}
	if snap.Issues != int64(len(res.Findings)) {
		t.Fatalf("metrics issues %d, findings %d", snap.Issues, len(res.Findings))
	}
	if observed != 2*res.Boxes {
		t.Fatalf("observed %d events for %d boxes", observed, res.Boxes)
	}
}

func TestValidateStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Validate(ctx, bmff.NewBytesReader(samples.BuildClean()), RunOptions{}); err == nil {
		t.Fatalf("expected cancellation error")
	}
}

func TestResultFilter(t *testing.T) {
	res := validateBytes(t, samples.BuildBroken())
	filtered := res.Filter(func(id string) bool { return id != IDUnknownBox })
	expectNone(t, filtered, IDUnknownBox)
	if len(filtered.Findings) != len(res.Findings)-1 {
		t.Fatalf("filter removed %d findings", len(res.Findings)-len(filtered.Findings))
	}
}

func TestCatalogCoversEveryRule(t *testing.T) {
	ids := []string{
		IDBoxSize, IDContainerBoundary, IDVersionFlags, IDFileTypeOrdering, IDMovieDataOrdering,
		IDUnknownBox, IDEditList, IDSampleTable, IDFragmentSequence, IDFragmentRun,
		IDCodecConfiguration, IDTopLevelAdvisory, IDParse,
	}
	for _, id := range ids {
		if _, ok := Lookup(id); !ok {
			t.Fatalf("catalog missing %s", id)
		}
	}
	if len(Catalog()) != len(ids) {
		t.Fatalf("catalog has %d entries", len(Catalog()))
	}
	if len(DefaultRules(RuleSetOptions{})) != len(ids)-1 {
		t.Fatalf("default rule count mismatch")
	}
}
