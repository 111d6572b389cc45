// Package capture records the validation event stream into a portable
// document and replays it through a fresh rule engine.
package capture

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/vmihailenco/msgpack/v5"

	"example.com/bmffgate/internal/bmff"
	"example.com/bmffgate/internal/rules"
)

// Version is the capture document format version.
const Version = 1

// Format selects the document encoding.
type Format int

const (
	FormatJSON Format = iota
	// FormatMsgpack is the compact binary encoding used by .bmffcap files.
	FormatMsgpack
)

// Extension is the file extension of msgpack captures.
const Extension = ".bmffcap"

// FormatForPath picks msgpack for .bmffcap files and JSON otherwise.
func FormatForPath(path string) Format {
	if strings.EqualFold(filepath.Ext(path), Extension) {
		return FormatMsgpack
	}
	return FormatJSON
}

type Document struct {
	Version int     `json:"version" msgpack:"version"`
	Events  []Event `json:"events" msgpack:"events"`
}

type Event struct {
	Kind             string        `json:"kind" msgpack:"kind"`
	Header           Header        `json:"header" msgpack:"header"`
	Depth            int           `json:"depth" msgpack:"depth"`
	Offset           int64         `json:"offset" msgpack:"offset"`
	Metadata         *Metadata     `json:"metadata,omitempty" msgpack:"metadata,omitempty"`
	ValidationIssues []rules.Issue `json:"validationIssues" msgpack:"validationIssues"`
}

type Header struct {
	Type         string `json:"type" msgpack:"type"`
	UUID         string `json:"uuid,omitempty" msgpack:"uuid,omitempty"`
	TotalSize    int64  `json:"totalSize" msgpack:"totalSize"`
	HeaderSize   int64  `json:"headerSize" msgpack:"headerSize"`
	PayloadStart int64  `json:"payloadStart" msgpack:"payloadStart"`
	PayloadEnd   int64  `json:"payloadEnd" msgpack:"payloadEnd"`
	RangeStart   int64  `json:"rangeStart" msgpack:"rangeStart"`
	RangeEnd     int64  `json:"rangeEnd" msgpack:"rangeEnd"`
}

type Metadata struct {
	Type      string  `json:"type" msgpack:"type"`
	Name      string  `json:"name" msgpack:"name"`
	Container bool    `json:"container,omitempty" msgpack:"container,omitempty"`
	FullBox   bool    `json:"fullBox,omitempty" msgpack:"fullBox,omitempty"`
	Version   *int    `json:"version,omitempty" msgpack:"version,omitempty"`
	Flags     *uint32 `json:"flags,omitempty" msgpack:"flags,omitempty"`
}

var (
	ErrVersion = errors.New("capture: unsupported document version")
	ErrKind    = errors.New("capture: unknown event kind")
	ErrDepth   = errors.New("capture: negative event depth")
)

// Recorder builds a Document from the validation stream. It implements
// rules.Observer.
type Recorder struct {
	doc Document
}

func NewRecorder() *Recorder {
	return &Recorder{doc: Document{Version: Version, Events: []Event{}}}
}

func (r *Recorder) Observe(ev bmff.Event, issues []rules.Issue) {
	r.doc.Events = append(r.doc.Events, FromEvent(ev, issues))
}

func (r *Recorder) Document() *Document {
	return &r.doc
}

// FromEvent converts one stream event. Payload details are not captured.
func FromEvent(ev bmff.Event, issues []rules.Issue) Event {
	h := ev.Header
	out := Event{
		Kind: ev.Kind.String(),
		Header: Header{
			Type:         h.Type.String(),
			TotalSize:    h.TotalSize(),
			HeaderSize:   h.HeaderSize,
			PayloadStart: h.PayloadStart,
			PayloadEnd:   h.PayloadEnd,
			RangeStart:   h.Start,
			RangeEnd:     h.End,
		},
		Depth:            ev.Depth,
		Offset:           h.Start,
		ValidationIssues: append([]rules.Issue{}, issues...),
	}
	if h.HasUUID() {
		out.Header.UUID = h.UUID.String()
	}
	if d := ev.Descriptor; d != nil {
		out.Metadata = &Metadata{
			Type:      d.Type.String(),
			Name:      d.Name,
			Container: d.Container,
			FullBox:   d.FullBox,
			Version:   d.Version,
			Flags:     d.Flags,
		}
	}
	return out
}

// ToEvent rebuilds the stream event. Malformed type codes, UUIDs and
// negative depths are rejected.
func (e Event) ToEvent() (bmff.Event, error) {
	var kind bmff.EventKind
	switch e.Kind {
	case bmff.EnterBox.String():
		kind = bmff.EnterBox
	case bmff.ExitBox.String():
		kind = bmff.ExitBox
	default:
		return bmff.Event{}, fmt.Errorf("%w %q", ErrKind, e.Kind)
	}
	if e.Depth < 0 {
		return bmff.Event{}, fmt.Errorf("%w %d", ErrDepth, e.Depth)
	}
	typ, err := bmff.ParseFourCC(e.Header.Type)
	if err != nil {
		return bmff.Event{}, fmt.Errorf("header type %q: %w", e.Header.Type, err)
	}
	h := bmff.BoxHeader{
		Type:         typ,
		Start:        e.Header.RangeStart,
		End:          e.Header.RangeEnd,
		HeaderSize:   e.Header.HeaderSize,
		PayloadStart: e.Header.PayloadStart,
		PayloadEnd:   e.Header.PayloadEnd,
	}
	if e.Header.UUID != "" {
		id, err := uuid.Parse(e.Header.UUID)
		if err != nil {
			return bmff.Event{}, fmt.Errorf("header uuid %q: %w", e.Header.UUID, err)
		}
		h.UUID = id
	}
	ev := bmff.Event{Kind: kind, Header: h, Depth: e.Depth}
	if m := e.Metadata; m != nil {
		mt, err := bmff.ParseFourCC(m.Type)
		if err != nil {
			return bmff.Event{}, fmt.Errorf("metadata type %q: %w", m.Type, err)
		}
		ev.Descriptor = &bmff.Descriptor{
			Type:      mt,
			Name:      m.Name,
			Container: m.Container,
			FullBox:   m.FullBox,
			Version:   m.Version,
			Flags:     m.Flags,
		}
	}
	return ev, nil
}

// StreamEvents converts every captured event back into the stream.
func (d *Document) StreamEvents() ([]bmff.Event, error) {
	out := make([]bmff.Event, 0, len(d.Events))
	for i, e := range d.Events {
		ev, err := e.ToEvent()
		if err != nil {
			return nil, fmt.Errorf("event %d: %w", i, err)
		}
		out = append(out, ev)
	}
	return out, nil
}

func Encode(w io.Writer, doc *Document, f Format) error {
	switch f {
	case FormatMsgpack:
		b, err := msgpack.Marshal(doc)
		if err != nil {
			return err
		}
		_, err = w.Write(b)
		return err
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(doc)
	}
}

// Decode reads a document and checks its version and every event.
func Decode(r io.Reader, f Format) (*Document, error) {
	var doc Document
	var err error
	switch f {
	case FormatMsgpack:
		err = msgpack.NewDecoder(r).Decode(&doc)
	default:
		err = json.NewDecoder(r).Decode(&doc)
	}
	if err != nil {
		return nil, fmt.Errorf("decode capture: %w", err)
	}
	if doc.Version != Version {
		return nil, fmt.Errorf("%w %d", ErrVersion, doc.Version)
	}
	if _, err := doc.StreamEvents(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Save writes doc to path, choosing the encoding from the extension.
func Save(path string, doc *Document) error {
	var buf bytes.Buffer
	if err := Encode(&buf, doc, FormatForPath(path)); err != nil {
		return err
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, buf.Bytes(), 0o644)
}

func Load(path string) (*Document, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(f, FormatForPath(path))
}
