package bmff

import (
	"fmt"

	"github.com/google/uuid"
)

// BoxHeader is the framing of one box. Offsets are absolute file positions;
// End and PayloadEnd are exclusive.
type BoxHeader struct {
	Type         FourCC
	UUID         uuid.UUID
	Start        int64
	End          int64
	HeaderSize   int64
	PayloadStart int64
	PayloadEnd   int64
}

// TotalSize is the declared size of the box including its header.
func (h BoxHeader) TotalSize() int64 {
	return h.End - h.Start
}

// PayloadSize is the number of payload bytes, never negative.
func (h BoxHeader) PayloadSize() int64 {
	if h.PayloadEnd < h.PayloadStart {
		return 0
	}
	return h.PayloadEnd - h.PayloadStart
}

// HasUUID reports whether the header carries an extended type.
func (h BoxHeader) HasUUID() bool {
	return h.UUID != uuid.Nil
}

// Identifier renders the header as used in diagnostics, e.g. "moov@32".
func (h BoxHeader) Identifier() string {
	if h.HasUUID() {
		return fmt.Sprintf("uuid[%s]@%d", h.UUID, h.Start)
	}
	return fmt.Sprintf("%s@%d", h.Type, h.Start)
}

func (h BoxHeader) String() string {
	return h.Identifier()
}

// Descriptor is catalog metadata for a known box type. Version and Flags are
// set only when the catalog fixes the expected full box header.
type Descriptor struct {
	Type      FourCC
	Name      string
	Container bool
	FullBox   bool
	Version   *int
	Flags     *uint32
}

type EventKind uint8

const (
	EnterBox EventKind = iota + 1
	ExitBox
)

func (k EventKind) String() string {
	switch k {
	case EnterBox:
		return "willStart"
	case ExitBox:
		return "didFinish"
	default:
		return "unknown"
	}
}

// Event is one traversal step of the depth-first walk.
type Event struct {
	Kind       EventKind
	Header     BoxHeader
	Depth      int
	Descriptor *Descriptor
	Detail     Detail
}

// Enter builds an enter event.
func Enter(h BoxHeader, depth int) Event {
	return Event{Kind: EnterBox, Header: h, Depth: depth}
}

// Exit builds an exit event.
func Exit(h BoxHeader, depth int) Event {
	return Event{Kind: ExitBox, Header: h, Depth: depth}
}

// WithDetail returns a copy of the event carrying the decoded payload.
func (e Event) WithDetail(d Detail) Event {
	e.Detail = d
	return e
}

// WithDescriptor returns a copy of the event carrying catalog metadata.
func (e Event) WithDescriptor(d *Descriptor) Event {
	e.Descriptor = d
	return e
}
