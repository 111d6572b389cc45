package rules

import "example.com/bmffgate/internal/bmff"

type containerState struct {
	header      bmff.BoxHeader
	nextChild   int64
	hasChildren bool
}

// ContainerBoundaryRule verifies that children tile their parent's payload
// without gaps, overlaps or overruns. The stack position of each record is
// the depth of its box.
type ContainerBoundaryRule struct {
	stack []containerState
}

func (c *ContainerBoundaryRule) reset() {
	clear(c.stack)
	c.stack = c.stack[:0]
}

func (c *ContainerBoundaryRule) truncate(n int) {
	n = max(n, 0)
	if len(c.stack) > n {
		clear(c.stack[n:])
		c.stack = c.stack[:n]
	}
}

func (c *ContainerBoundaryRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Depth < 0 {
		c.reset()
		return []Issue{newIssue(IDContainerBoundary, ERROR,
			"%s event for %s arrived at negative depth %d.", eventName(ev.Kind), ev.Header.Identifier(), ev.Depth)}
	}
	switch ev.Kind {
	case bmff.EnterBox:
		return c.enter(ev)
	case bmff.ExitBox:
		return c.exit(ev)
	}
	return nil
}

func (c *ContainerBoundaryRule) enter(ev bmff.Event) []Issue {
	h, depth := ev.Header, ev.Depth
	var out []Issue
	c.truncate(depth)
	if len(c.stack) < depth {
		out = append(out, newIssue(IDContainerBoundary, ERROR,
			"Start event for %s arrived at depth %d without a matching parent context.", h.Identifier(), depth))
		c.reset()
	}
	if n := len(c.stack); n > 0 {
		parent := &c.stack[n-1]
		switch {
		case h.Start < parent.nextChild:
			out = append(out, newIssue(IDContainerBoundary, ERROR,
				"Child %s overlaps previous child inside %s: starts at offset %d before expected next child at %d.",
				h.Identifier(), parent.header.Identifier(), h.Start, parent.nextChild))
		case h.Start > parent.nextChild:
			out = append(out, newIssue(IDContainerBoundary, ERROR,
				"Container %s expected child to start at offset %d but found %d.",
				parent.header.Identifier(), parent.nextChild, h.Start))
		}
		if h.End > parent.header.PayloadEnd {
			out = append(out, newIssue(IDContainerBoundary, ERROR,
				"Child %s extends beyond parent %s payload (child end %d, parent end %d).",
				h.Identifier(), parent.header.Identifier(), h.End, parent.header.PayloadEnd))
		}
		parent.nextChild = max(parent.nextChild, h.End)
		parent.hasChildren = true
	}
	first := h.PayloadStart
	if d := ev.Descriptor; d != nil && d.Container && d.FullBox {
		first += 4
	}
	c.stack = append(c.stack, containerState{header: h, nextChild: first})
	return out
}

func (c *ContainerBoundaryRule) exit(ev bmff.Event) []Issue {
	h, depth := ev.Header, ev.Depth
	c.truncate(depth + 1)
	if len(c.stack) < depth+1 {
		c.reset()
		return []Issue{newIssue(IDContainerBoundary, ERROR,
			"Finish event for %s arrived at depth %d without an opening start event.", h.Identifier(), depth)}
	}
	var out []Issue
	state := c.stack[len(c.stack)-1]
	c.truncate(len(c.stack) - 1)
	if state.header != h {
		out = append(out, newIssue(IDContainerBoundary, ERROR,
			"Container stack mismatch: expected to finish %s but received %s.",
			state.header.Identifier(), h.Identifier()))
	}
	if state.hasChildren && state.nextChild != state.header.PayloadEnd {
		out = append(out, newIssue(IDContainerBoundary, ERROR,
			"Container %s expected to close at offset %d but consumed %d.",
			state.header.Identifier(), state.header.PayloadEnd, state.nextChild))
	}
	if n := len(c.stack); n > 0 {
		parent := &c.stack[n-1]
		parent.nextChild = max(parent.nextChild, h.End)
		parent.hasChildren = true
	}
	return out
}

func eventName(k bmff.EventKind) string {
	if k == bmff.ExitBox {
		return "Finish"
	}
	return "Start"
}

// Finish reports every box still open when the stream ended.
func (c *ContainerBoundaryRule) Finish() []Issue {
	var out []Issue
	for i := len(c.stack) - 1; i >= 0; i-- {
		out = append(out, newIssue(IDContainerBoundary, ERROR,
			"Container %s was never closed (missing finish event).", c.stack[i].header.Identifier()))
	}
	c.reset()
	return out
}
