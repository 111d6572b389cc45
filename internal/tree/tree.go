// Package tree rebuilds the box hierarchy from the event stream and keeps
// every issue next to the box that produced it.
package tree

import (
	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/rules"
)

// Node is one box of the parse tree. The root is synthetic and has depth -1.
type Node struct {
	Header   bmff.BoxHeader `json:"-"`
	Box      string         `json:"box"`
	Type     string         `json:"type"`
	Name     string         `json:"name,omitempty"`
	Start    int64          `json:"start"`
	End      int64          `json:"end"`
	Depth    int            `json:"depth"`
	Issues   []rules.Issue  `json:"issues,omitempty"`
	Children []*Node        `json:"children,omitempty"`
}

// Walk visits n and its descendants depth first.
func (n *Node) Walk(fn func(*Node)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// Find returns the deepest node whose byte range contains offset.
func (n *Node) Find(offset int64) *Node {
	for _, c := range n.Children {
		if offset >= c.Start && offset < c.End {
			return c.Find(offset)
		}
	}
	return n
}

// Builder consumes the validation event stream. It implements rules.Observer.
type Builder struct {
	root  *Node
	open  []*Node
	store *Store
}

func NewBuilder() *Builder {
	return &Builder{
		root:  &Node{Box: "root", Depth: -1},
		store: NewStore(),
	}
}

func (b *Builder) Root() *Node   { return b.root }
func (b *Builder) Store() *Store { return b.store }

func (b *Builder) parent() *Node {
	if n := len(b.open); n > 0 {
		return b.open[n-1]
	}
	return b.root
}

// Observe adds the event to the tree. Enter events open a node under the
// innermost open node whose depth is shallower; exit events close the
// matching node. Exit events with no open node attach their issues to the
// root.
func (b *Builder) Observe(ev bmff.Event, issues []rules.Issue) {
	switch ev.Kind {
	case bmff.EnterBox:
		for len(b.open) > 0 && b.open[len(b.open)-1].Depth >= ev.Depth {
			b.open = b.open[:len(b.open)-1]
		}
		node := newNode(ev)
		parent := b.parent()
		parent.Children = append(parent.Children, node)
		b.open = append(b.open, node)
		b.attach(node, issues)
	case bmff.ExitBox:
		for i := len(b.open) - 1; i >= 0; i-- {
			if b.open[i].Header == ev.Header {
				node := b.open[i]
				b.open = b.open[:i]
				b.attach(node, issues)
				return
			}
		}
		b.attach(b.root, issues)
	}
}

// Finalize attaches the findings raised outside any event: end-of-stream
// issues go to the root and walker parse issues to the box containing
// their offset.
func (b *Builder) Finalize(res *rules.Result) {
	b.open = nil
	for _, f := range res.Findings {
		switch {
		case f.RuleID == rules.IDParse:
			b.attach(b.root.Find(f.Start), []rules.Issue{f.Issue})
		case f.Depth < 0:
			b.attach(b.root, []rules.Issue{f.Issue})
		}
	}
}

func (b *Builder) attach(n *Node, issues []rules.Issue) {
	if len(issues) == 0 {
		return
	}
	n.Issues = append(n.Issues, issues...)
	for _, is := range issues {
		b.store.Add(is, n.Start, n.End, n.Depth, n.Box)
	}
}

func newNode(ev bmff.Event) *Node {
	h := ev.Header
	n := &Node{
		Header: h,
		Box:    h.Identifier(),
		Type:   h.Type.String(),
		Start:  h.Start,
		End:    h.End,
		Depth:  ev.Depth,
	}
	if ev.Descriptor != nil {
		n.Name = ev.Descriptor.Name
	}
	return n
}
