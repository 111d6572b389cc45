package tree

import (
	"context"
	"testing"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/rules"
	"example.com/bmffgate/internal/samples"
)

func build(t *testing.T, data []byte) (*Builder, *rules.Result) {
	t.Helper()
	b := NewBuilder()
	res, err := rules.Validate(context.Background(), bmff.NewBytesReader(data), rules.RunOptions{Observer: b})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	b.Finalize(res)
	return b, res
}

func TestBuilderMirrorsBoxHierarchy(t *testing.T) {
	b, res := build(t, samples.BuildClean())
	root := b.Root()
	if len(root.Children) != 3 {
		t.Fatalf("top-level nodes = %d", len(root.Children))
	}
	if got := root.Children[1].Type; got != "moov" {
		t.Fatalf("second node = %s", got)
	}
	var count int
	root.Walk(func(n *Node) {
		if n != root {
			count++
		}
		for _, c := range n.Children {
			if c.Depth != n.Depth+1 {
				t.Fatalf("%s at depth %d under %s at %d", c.Box, c.Depth, n.Box, n.Depth)
			}
		}
	})
	if count != res.Boxes {
		t.Fatalf("nodes = %d, boxes = %d", count, res.Boxes)
	}
	if b.Root().Find(root.Children[1].Start+10).Type != "mvhd" {
		t.Fatalf("Find did not reach mvhd")
	}
}

func TestIssuesAttachToProducingBox(t *testing.T) {
	b, res := build(t, samples.BuildBroken())
	var unknown *Node
	b.Root().Walk(func(n *Node) {
		if n.Type == "zzzz" {
			unknown = n
		}
	})
	if unknown == nil || len(unknown.Issues) != 1 || unknown.Issues[0].RuleID != rules.IDUnknownBox {
		t.Fatalf("zzzz node = %+v", unknown)
	}
	sum := b.Store().Summary()
	counts := res.Counts()
	if sum.Errors != counts[rules.ERROR] || sum.Warnings != counts[rules.WARN] || sum.Info != counts[rules.INFO] {
		t.Fatalf("summary %+v disagrees with %+v", sum, counts)
	}
	if sum.Pass {
		t.Fatalf("broken file passed")
	}
}

func TestFinalizeAttachesParseAndTrailingIssues(t *testing.T) {
	data := samples.Concat(samples.Box("moov", samples.Mvhd(1000, 0)), []byte{1, 2})
	b, _ := build(t, data)
	var ids []string
	for _, is := range b.Root().Issues {
		ids = append(ids, is.RuleID)
	}
	var parse, advisory bool
	for _, id := range ids {
		parse = parse || id == rules.IDParse
		advisory = advisory || id == rules.IDTopLevelAdvisory
	}
	if !parse || !advisory {
		t.Fatalf("root issues = %v", ids)
	}
}

func TestOrphanExitAttachesToRoot(t *testing.T) {
	b := NewBuilder()
	h := bmff.BoxHeader{Type: bmff.TypeFree, Start: 0, End: 8, HeaderSize: 8, PayloadStart: 8, PayloadEnd: 8}
	b.Observe(bmff.Exit(h, 0), []rules.Issue{{RuleID: rules.IDContainerBoundary, Severity: rules.ERROR, Message: "orphan"}})
	if len(b.Root().Issues) != 1 {
		t.Fatalf("root issues = %+v", b.Root().Issues)
	}
}

func TestSummaryDeduplicates(t *testing.T) {
	s := NewStore()
	issue := rules.Issue{RuleID: "VR-002", Message: "gap", Severity: rules.ERROR}
	s.Add(issue, 10, 20, 1, "moov@10")
	s.Add(issue, 10, 20, 3, "moov@10")
	s.Add(issue, 10, 30, 2, "moov@10")
	s.Add(rules.Issue{RuleID: "E3", Message: "order", Severity: rules.WARN}, 0, 8, 0, "root")
	s.Add(rules.Issue{RuleID: "VR-006", Message: "unknown", Severity: rules.INFO}, 0, 8, 0, "root")
	sum := s.Summary()
	want := Summary{Total: 5, Unique: 4, Errors: 2, Warnings: 1, Info: 1, DeepestDepth: 3}
	if sum != want {
		t.Fatalf("summary = %+v, want %+v", sum, want)
	}
	if empty := NewStore().Summary(); empty.DeepestDepth != -1 || !empty.Pass {
		t.Fatalf("empty summary = %+v", empty)
	}
	filtered := s.Filter(func(id string) bool { return id != "VR-002" }).Summary()
	if filtered.Errors != 0 || !filtered.Pass {
		t.Fatalf("filtered summary = %+v", filtered)
	}
}

func TestFromResultMatchesBuilderStore(t *testing.T) {
	b, res := build(t, samples.BuildBroken())
	got := FromResult(res).Summary()
	want := b.Store().Summary()
	if got.Total != want.Total || got.Errors != want.Errors || got.Warnings != want.Warnings || got.Info != want.Info {
		t.Fatalf("FromResult summary = %+v, builder summary = %+v", got, want)
	}
	filtered := FromResult(res).Filter(func(id string) bool { return id != rules.IDUnknownBox }).Summary()
	if filtered.Info != want.Info-1 {
		t.Fatalf("filtered info = %d, want %d", filtered.Info, want.Info-1)
	}
}
