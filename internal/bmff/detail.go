package bmff

// Detail is the decoded payload of a recognized box. The set of variants is
// closed; rules switch on the concrete type.
type Detail interface {
	isDetail()
}

type FileType struct {
	MajorBrand       FourCC
	MinorVersion     uint32
	CompatibleBrands []FourCC
}

type MovieHeader struct {
	Version     uint8
	Timescale   uint32
	Duration    uint64
	NextTrackID uint32
}

type TrackHeader struct {
	Version  uint8
	Flags    uint32
	TrackID  uint32
	Duration uint64
}

// Enabled reports the track_enabled flag.
func (t *TrackHeader) Enabled() bool {
	return t.Flags&0x000001 != 0
}

type MediaHeader struct {
	Version   uint8
	Timescale uint32
	Duration  uint64
	Language  string
}

type EditListEntry struct {
	SegmentDuration   uint64
	MediaTime         int64
	MediaRateInteger  int16
	MediaRateFraction int16
}

// Empty reports an empty edit (media_time of -1).
func (e EditListEntry) Empty() bool {
	return e.MediaTime == -1
}

// EditList holds elst entries. MovieTimescale is the timescale of the movie
// header seen before the edit list, or zero when none was decoded.
type EditList struct {
	TableCount
	Version        uint8
	MovieTimescale uint32
	Entries        []EditListEntry
}

// TableCount compares a table's declared entry_count with the rows its
// payload holds. Entries may be shorter than Rows when the table is capped.
type TableCount struct {
	Declared uint32
	Rows     uint32
}

func (c TableCount) counts() TableCount { return c }

// Short reports a payload that ends before the declared rows.
func (c TableCount) Short() bool { return c.Rows < c.Declared }

// Capped reports whether only a prefix of n rows was kept.
func (c TableCount) Capped(n int) bool { return uint64(c.Rows) > uint64(n) }

type SampleToChunkEntry struct {
	FirstChunk             uint32
	SamplesPerChunk        uint32
	SampleDescriptionIndex uint32
}

type SampleToChunk struct {
	TableCount
	Entries []SampleToChunkEntry
}

// ChunkOffsetEntry is one stco/co64 row; Index is 1-based.
type ChunkOffsetEntry struct {
	Index  uint32
	Offset uint64
}

// ChunkOffset keeps at most the first maxTableEntries rows. Disorder is the
// first adjacent pair whose offsets do not strictly increase, found across
// every row the payload holds.
type ChunkOffset struct {
	TableCount
	Wide     bool
	Entries  []ChunkOffsetEntry
	Disorder *[2]ChunkOffsetEntry
}

type SampleSize struct {
	DefaultSize uint32
	SampleCount uint32
}

type CompactSampleSize struct {
	FieldSize   uint8
	SampleCount uint32
}

type TimeToSampleEntry struct {
	SampleCount uint32
	SampleDelta uint32
}

// TimeToSample carries SampleTotal, the saturating sum of sample_count over
// every row, so callers need not walk a capped Entries slice.
type TimeToSample struct {
	TableCount
	SampleTotal uint64
	Entries     []TimeToSampleEntry
}

type CompositionOffsetEntry struct {
	SampleCount  uint32
	SampleOffset int64
}

type CompositionOffset struct {
	TableCount
	Version     uint8
	SampleTotal uint64
	Entries     []CompositionOffsetEntry
}

type MovieFragmentHeader struct {
	SequenceNumber uint32
}

type TrackFragmentHeader struct {
	Flags                  uint32
	TrackID                uint32
	BaseDataOffset         *uint64
	SampleDescriptionIndex *uint32
	DefaultSampleDuration  *uint32
	DefaultSampleSize      *uint32
	DefaultSampleFlags     *uint32
}

type TrackExtends struct {
	TrackID                       uint32
	DefaultSampleDescriptionIndex uint32
	DefaultSampleDuration         uint32
	DefaultSampleSize             uint32
	DefaultSampleFlags            uint32
}

// TrackRunEntry is one trun sample; Index is 1-based. Duration is nil when
// neither the run, the fragment header, nor the track extends box supplies one.
type TrackRunEntry struct {
	Index             uint32
	Duration          *uint32
	Size              *uint32
	Flags             *uint32
	CompositionOffset *int64
}

// TrackRun is a decoded trun. TrackID, RunIndex and FirstSample are filled
// from the enclosing fragment when known. SampleCount is as declared; Rows is
// how many sample rows the payload holds.
type TrackRun struct {
	Version          uint8
	Flags            uint32
	SampleCount      uint32
	DataOffset       *int32
	FirstSampleFlags *uint32
	TrackID          *uint32
	RunIndex         *int
	FirstSample      *uint64
	Rows             uint32
	Entries          []TrackRunEntry
}

func (r *TrackRun) counts() TableCount {
	return TableCount{Declared: r.SampleCount, Rows: r.Rows}
}

func (*FileType) isDetail()            {}
func (*MovieHeader) isDetail()         {}
func (*TrackHeader) isDetail()         {}
func (*MediaHeader) isDetail()         {}
func (*EditList) isDetail()            {}
func (*SampleToChunk) isDetail()       {}
func (*ChunkOffset) isDetail()         {}
func (*SampleSize) isDetail()          {}
func (*CompactSampleSize) isDetail()   {}
func (*TimeToSample) isDetail()        {}
func (*CompositionOffset) isDetail()   {}
func (*MovieFragmentHeader) isDetail() {}
func (*TrackFragmentHeader) isDetail() {}
func (*TrackExtends) isDetail()        {}
func (*TrackRun) isDetail()            {}
