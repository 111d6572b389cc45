package smoke

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/capture"
	"example.com/bmffgate/internal/common"
	"example.com/bmffgate/internal/report"
	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/samples"
	"example.com/bmffgate/internal/tree"
)

// TestPipelineBundle drives every sample through validation, tree building,
// capture, replay and both report formats, and checks the outputs agree.
func TestPipelineBundle(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping pipeline smoke test in short mode")
	}
	dir := t.TempDir()
	if err := samples.WriteFiles(dir); err != nil {
		t.Fatalf("WriteFiles: %v", err)
	}
	logPath := filepath.Join(dir, "research.jsonl")
	research := common.NewResearchLog(logPath)

	for _, name := range []string{samples.CleanFileName, samples.FragmentedFileName, samples.BrokenFileName} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			rec := capture.NewRecorder()
			builder := tree.NewBuilder()
			observer := rules.ObserverFunc(func(ev bmff.Event, issues []rules.Issue) {
				rec.Observe(ev, issues)
				builder.Observe(ev, issues)
			})
			res, err := rules.ValidateFile(context.Background(), path, rules.RunOptions{
				FilePath: path,
				Observer: observer,
				Recorder: rules.ResearchLogRecorder(research),
			})
			if err != nil {
				t.Fatalf("ValidateFile: %v", err)
			}
			builder.Finalize(res)

			var attached int
			builder.Root().Walk(func(n *tree.Node) { attached += len(n.Issues) })
			if attached != len(res.Findings) {
				t.Fatalf("tree holds %d issues, result has %d", attached, len(res.Findings))
			}

			digest, size, err := common.Sha256OfFile(path)
			if err != nil {
				t.Fatalf("Sha256OfFile: %v", err)
			}
			rep := report.New(res, report.Options{File: name, SHA256: digest, Size: size, Preset: "default"})
			if got, want := rep.Summary, builder.Store().Summary(); got.Total != want.Total || got.Errors != want.Errors || got.Warnings != want.Warnings {
				t.Fatalf("report summary %+v differs from tree summary %+v", got, want)
			}
			if rep.Summary.Pass == res.Failed() {
				t.Fatalf("pass = %v but Failed() = %v", rep.Summary.Pass, res.Failed())
			}

			bundle := filepath.Join(dir, name+".bundle")
			jsonPath := filepath.Join(bundle, "report.json")
			if err := report.SaveJSON(rep, jsonPath); err != nil {
				t.Fatalf("SaveJSON: %v", err)
			}
			loaded, err := report.LoadJSON(jsonPath)
			if err != nil {
				t.Fatalf("LoadJSON: %v", err)
			}
			if loaded.SHA256 != digest || len(loaded.Issues) != len(rep.Issues) {
				t.Fatalf("loaded report mismatch: %+v", loaded)
			}
			pdfPath := filepath.Join(bundle, "report.pdf")
			if err := report.SavePDF(rep, pdfPath, report.PDFOptions{Lang: report.LangEnglish}); err != nil {
				t.Fatalf("SavePDF: %v", err)
			}
			pdf, err := os.ReadFile(pdfPath)
			if err != nil {
				t.Fatalf("read pdf: %v", err)
			}
			if !bytes.HasPrefix(pdf, []byte("%PDF")) {
				t.Fatalf("pdf header missing")
			}

			capPath := filepath.Join(bundle, "events"+capture.Extension)
			if err := capture.Save(capPath, rec.Document()); err != nil {
				t.Fatalf("capture.Save: %v", err)
			}
			doc, err := capture.Load(capPath)
			if err != nil {
				t.Fatalf("capture.Load: %v", err)
			}
			replay, err := capture.Replay(doc)
			if err != nil {
				t.Fatalf("Replay: %v", err)
			}
			if len(replay.Mismatches) != 0 {
				t.Fatalf("replay mismatches: %v", replay.Mismatches)
			}
			if replay.Result.Boxes != res.Boxes {
				t.Fatalf("replayed %d boxes, validated %d", replay.Result.Boxes, res.Boxes)
			}
		})
	}

	entries, err := common.ReadResearchLog(logPath)
	if err != nil {
		t.Fatalf("ReadResearchLog: %v", err)
	}
	if got := common.SummarizeResearch(entries)["zzzz"]; got != 1 {
		t.Fatalf("zzzz sightings = %d, want 1", got)
	}
}
