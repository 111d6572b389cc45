package bmff

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/google/uuid"

	"example.com/bmffgate/internal/common"
)

const (
	defaultMaxDepth  = 64
	maxDecodePayload = 64 << 20
)

// Problem is damage the walker could not express as a box event, such as a
// header cut off by the end of its parent.
type Problem struct {
	Offset  int64  `json:"offset"`
	Depth   int    `json:"depth"`
	Message string `json:"message"`
}

// Walker decodes a file into the depth-first enter/exit event stream.
type Walker struct {
	r        Reader
	maxDepth int
	metrics  *common.Metrics
	problems []Problem

	movieTimescale uint32
	trackDefaults  map[uint32]uint32
	samplesByTrack map[uint32]uint64
	fragment       *fragmentScope
}

type fragmentScope struct {
	header   *TrackFragmentHeader
	runIndex int
}

type Option func(*Walker)

// WithMaxDepth limits container nesting; deeper containers are reported and skipped.
func WithMaxDepth(n int) Option {
	return func(w *Walker) {
		if n > 0 {
			w.maxDepth = n
		}
	}
}

// WithMetrics counts every visited box.
func WithMetrics(m *common.Metrics) Option {
	return func(w *Walker) { w.metrics = m }
}

func NewWalker(r Reader, opts ...Option) *Walker {
	w := &Walker{
		r:              r,
		maxDepth:       defaultMaxDepth,
		trackDefaults:  make(map[uint32]uint32),
		samplesByTrack: make(map[uint32]uint64),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Problems returns the structural problems found during the last Walk.
func (w *Walker) Problems() []Problem {
	return w.problems
}

// Walk emits every box of the file to fn. Errors from fn or ctx stop the walk
// and are returned; malformed input never is.
func (w *Walker) Walk(ctx context.Context, fn func(Event) error) error {
	if w.r == nil {
		return errors.New("bmff: nil reader")
	}
	if w.metrics != nil {
		w.metrics.SetTotalBytes(w.r.Size())
		w.metrics.Start()
		defer w.metrics.Stop()
	}
	return w.walkRange(ctx, 0, w.r.Size(), 0, fn)
}

func (w *Walker) problem(offset int64, depth int, format string, args ...any) {
	w.problems = append(w.problems, Problem{Offset: offset, Depth: depth, Message: fmt.Sprintf(format, args...)})
	if w.metrics != nil {
		w.metrics.IncProblem()
	}
}

func (w *Walker) walkRange(ctx context.Context, start, end int64, depth int, fn func(Event) error) error {
	off := start
	for off < end {
		if err := ctx.Err(); err != nil {
			return err
		}
		if end-off < 8 {
			w.problem(off, depth, "truncated box header at offset %d: %d bytes remain, need 8", off, end-off)
			return nil
		}
		h, err := w.readHeader(off, end)
		if err != nil {
			w.problem(off, depth, "unreadable box header at offset %d: %v", off, err)
			return nil
		}
		if err := w.visit(ctx, h, depth, fn); err != nil {
			return err
		}
		if h.TotalSize() < h.HeaderSize {
			w.problem(off, depth, "%s declares size %d below its header size; stopping sibling traversal", h.Identifier(), h.TotalSize())
			return nil
		}
		if h.End > end {
			return nil
		}
		off = h.End
	}
	return nil
}

func (w *Walker) readHeader(off, limit int64) (BoxHeader, error) {
	b, err := readExact(w.r, off, 8)
	if err != nil {
		return BoxHeader{}, err
	}
	size32 := binary.BigEndian.Uint32(b[0:4])
	h := BoxHeader{Type: FourCCFromBytes(b[4:8]), Start: off, HeaderSize: 8}
	var total int64
	switch size32 {
	case 0:
		total = limit - off
	case 1:
		ext, err := readExact(w.r, off+8, 8)
		if err != nil {
			return BoxHeader{}, fmt.Errorf("largesize: %w", err)
		}
		large := binary.BigEndian.Uint64(ext)
		if large > math.MaxInt64-uint64(off) {
			return BoxHeader{}, fmt.Errorf("largesize %d overflows", large)
		}
		total = int64(large)
		h.HeaderSize = 16
	default:
		total = int64(size32)
	}
	if h.Type == TypeUUID {
		ext, err := readExact(w.r, off+h.HeaderSize, 16)
		if err != nil {
			return BoxHeader{}, fmt.Errorf("extended type: %w", err)
		}
		id, err := uuid.FromBytes(ext)
		if err != nil {
			return BoxHeader{}, err
		}
		h.UUID = id
		h.HeaderSize += 16
	}
	h.End = off + total
	h.PayloadStart = off + h.HeaderSize
	h.PayloadEnd = h.End
	return h, nil
}

func (w *Walker) visit(ctx context.Context, h BoxHeader, depth int, fn func(Event) error) error {
	desc := Describe(h.Type)
	ev := Enter(h, depth).WithDescriptor(desc)
	if d := w.decode(h); d != nil {
		ev.Detail = d
		w.checkRows(h, depth, d)
	}
	if w.metrics != nil {
		w.metrics.AddBox(h.Type.String(), depth, h.End)
	}
	if err := fn(ev); err != nil {
		return err
	}
	if desc != nil && desc.Container && h.TotalSize() >= h.HeaderSize {
		if depth+1 >= w.maxDepth {
			w.problem(h.Start, depth, "%s nested deeper than %d levels; children skipped", h.Identifier(), w.maxDepth)
		} else {
			childStart := h.PayloadStart
			if desc.FullBox {
				childStart += 4
			}
			childEnd := h.PayloadEnd
			if size := w.r.Size(); childEnd > size {
				childEnd = size
			}
			w.enterScope(h)
			err := w.walkRange(ctx, childStart, childEnd, depth+1, fn)
			w.leaveScope(h)
			if err != nil {
				return err
			}
		}
	}
	return fn(Exit(h, depth).WithDescriptor(desc))
}

func (w *Walker) enterScope(h BoxHeader) {
	if h.Type == TypeTraf {
		w.fragment = &fragmentScope{}
	}
}

func (w *Walker) leaveScope(h BoxHeader) {
	if h.Type == TypeTraf {
		w.fragment = nil
	}
}

func (w *Walker) payload(h BoxHeader, limit int64) []byte {
	n := h.PayloadSize()
	if n == 0 || n > maxDecodePayload {
		return nil
	}
	if limit > 0 && n > limit {
		n = limit
	}
	b, err := w.r.ReadAt(h.PayloadStart, int(n))
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) {
		return nil
	}
	return b
}

// decode produces the payload detail for recognized box families.
func (w *Walker) decode(h BoxHeader) Detail {
	var (
		d  Detail
		ok bool
	)
	switch h.Type {
	case TypeFtyp, TypeStyp:
		d, ok = decodeFileType(w.payload(h, 0))
	case TypeMvhd:
		d, ok = decodeMovieHeader(w.payload(h, 0))
		if ok {
			w.movieTimescale = d.(*MovieHeader).Timescale
		}
	case TypeTkhd:
		d, ok = decodeTrackHeader(w.payload(h, 0))
	case TypeMdhd:
		d, ok = decodeMediaHeader(w.payload(h, 0))
	case TypeElst:
		d, ok = decodeEditList(w.payload(h, 0), w.movieTimescale)
	case TypeStsc:
		d, ok = decodeSampleToChunk(w.payload(h, 0))
	case TypeStco:
		d, ok = decodeChunkOffset(w.payload(h, 0), false)
	case TypeCo64:
		d, ok = decodeChunkOffset(w.payload(h, 0), true)
	case TypeStsz:
		d, ok = decodeSampleSize(w.payload(h, 12))
	case TypeStz2:
		d, ok = decodeCompactSampleSize(w.payload(h, 12))
	case TypeStts:
		d, ok = decodeTimeToSample(w.payload(h, 0))
	case TypeCtts:
		d, ok = decodeCompositionOffset(w.payload(h, 0))
	case TypeMfhd:
		d, ok = decodeMovieFragmentHeader(w.payload(h, 0))
	case TypeTrex:
		d, ok = decodeTrackExtends(w.payload(h, 0))
		if ok {
			te := d.(*TrackExtends)
			w.trackDefaults[te.TrackID] = te.DefaultSampleDuration
		}
	case TypeTfhd:
		d, ok = decodeTrackFragmentHeader(w.payload(h, 0))
		if ok && w.fragment != nil {
			w.fragment.header = d.(*TrackFragmentHeader)
		}
	case TypeTrun:
		return w.decodeRun(h)
	}
	if !ok {
		return nil
	}
	return d
}

// rowCounter is a detail decoded from a counted list of rows.
type rowCounter interface {
	counts() TableCount
}

// checkRows records a problem when a payload ends before its declared rows.
func (w *Walker) checkRows(h BoxHeader, depth int, d Detail) {
	rc, ok := d.(rowCounter)
	if !ok {
		return
	}
	tc := rc.counts()
	if !tc.Short() {
		return
	}
	noun := "entries"
	if h.Type == TypeTrun {
		noun = "samples"
	}
	w.problem(h.Start, depth, "%s declares %d %s, payload holds %d", h.Identifier(), tc.Declared, noun, tc.Rows)
}

func (w *Walker) decodeRun(h BoxHeader) Detail {
	var defaults runDefaults
	var trackID *uint32
	if w.fragment != nil && w.fragment.header != nil {
		tf := w.fragment.header
		id := tf.TrackID
		trackID = &id
		defaults.fragmentDuration = tf.DefaultSampleDuration
		if v, ok := w.trackDefaults[id]; ok {
			defaults.trackDuration = &v
		}
	}
	run, ok := decodeTrackRun(w.payload(h, 0), defaults)
	if !ok {
		return nil
	}
	run.TrackID = trackID
	if w.fragment != nil {
		idx := w.fragment.runIndex
		run.RunIndex = &idx
		w.fragment.runIndex++
	}
	if trackID != nil {
		first := w.samplesByTrack[*trackID] + 1
		run.FirstSample = &first
		w.samplesByTrack[*trackID] += uint64(run.SampleCount)
	}
	return run
}
