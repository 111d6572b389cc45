package rules

import (
	"errors"
	"io"

	"example.com/bmffgate/internal/bmff"
)

// BoxSizeRule checks declared box sizes against the header and the file.
type BoxSizeRule struct{}

func (BoxSizeRule) Issues(ev bmff.Event, r bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox {
		return nil
	}
	h := ev.Header
	var out []Issue
	if h.TotalSize() < h.HeaderSize {
		out = append(out, newIssue(IDBoxSize, ERROR,
			"%s declares size %d smaller than its %d-byte header.", h.Identifier(), h.TotalSize(), h.HeaderSize))
	}
	if r != nil && h.End > r.Size() {
		out = append(out, newIssue(IDBoxSize, ERROR,
			"%s extends beyond file length (end %d, file length %d).", h.Identifier(), h.End, r.Size()))
	}
	return out
}

// VersionFlagsRule compares the leading version byte and flags of full boxes
// with the values fixed by the catalog. Without a reader, as when replaying a
// capture, it stays silent.
type VersionFlagsRule struct{}

func (VersionFlagsRule) Issues(ev bmff.Event, r bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox || ev.Descriptor == nil {
		return nil
	}
	d := ev.Descriptor
	if d.Version == nil && d.Flags == nil {
		return nil
	}
	h := ev.Header
	id := h.Identifier()
	if n := h.PayloadSize(); n < 4 {
		return []Issue{newIssue(IDVersionFlags, WARN,
			"%s payload too small for version/flags check (expected 4 bytes, found %d).", id, n)}
	}
	if r == nil {
		return nil
	}
	data, err := r.ReadAt(h.PayloadStart, 4)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return []Issue{newIssue(IDVersionFlags, WARN, "%s failed to read version/flags: %v", id, err)}
	}
	if len(data) != 4 {
		return []Issue{newIssue(IDVersionFlags, WARN,
			"%s payload truncated during version/flags check (expected 4 bytes, found %d).", id, len(data))}
	}
	version := int(data[0])
	flags := uint32(data[1])<<16 | uint32(data[2])<<8 | uint32(data[3])
	var out []Issue
	if d.Version != nil && *d.Version != version {
		out = append(out, newIssue(IDVersionFlags, WARN,
			"%s version mismatch: expected %d but found %d.", id, *d.Version, version))
	}
	if d.Flags != nil && *d.Flags != flags {
		out = append(out, newIssue(IDVersionFlags, WARN,
			"%s flags mismatch: expected 0x%06x but found 0x%06x.", id, *d.Flags, flags))
	}
	return out
}

// ResearchRecorder receives every box type the catalog does not know.
type ResearchRecorder interface {
	Record(entry ResearchEntry) error
}

type ResearchEntry struct {
	BoxType  string
	FilePath string
	Start    int64
	End      int64
}

// UnknownBoxRule reports unknown box types at info level and forwards them
// to an optional recorder. Recorder failures are not reported.
type UnknownBoxRule struct {
	FilePath string
	Recorder ResearchRecorder
}

func (u UnknownBoxRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox || ev.Descriptor != nil {
		return nil
	}
	h := ev.Header
	typ := h.Type.String()
	if u.Recorder != nil {
		_ = u.Recorder.Record(ResearchEntry{BoxType: typ, FilePath: u.FilePath, Start: h.Start, End: h.End})
	}
	return []Issue{newIssue(IDUnknownBox, INFO,
		"Unknown box type '%s' at offsets %d-%d recorded for research.", typ, h.Start, h.End)}
}
