package rules

import (
	"fmt"
	"math"
	"math/big"

	"example.com/bmffgate/internal/bmff"
)

type mediaTiming struct {
	timescale uint32
	duration  uint64
}

type editTrack struct {
	header  *bmff.TrackHeader
	media   *mediaTiming
	pending []*bmff.EditList
}

func (t *editTrack) label() string {
	if t.header != nil {
		return fmt.Sprintf("Track %d", t.header.TrackID)
	}
	return "Track"
}

// EditListRule reconciles edit list durations with the movie, track and
// media headers, and rejects unsupported playback rates. Edit lists seen
// before their track's media header are queued until it arrives.
type EditListRule struct {
	movieTimescale uint32
	movieDuration  *uint64
	tracks         depthStack[*editTrack]
}

func (e *EditListRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind == bmff.ExitBox {
		if ev.Header.Type == bmff.TypeTrak {
			e.tracks.trim(ev.Depth)
		}
		return nil
	}
	e.tracks.trim(ev.Depth)
	switch ev.Header.Type {
	case bmff.TypeTrak:
		e.tracks.push(ev.Depth, &editTrack{})
		return nil
	case bmff.TypeMvhd:
		if mh, ok := ev.Detail.(*bmff.MovieHeader); ok {
			e.movieTimescale = mh.Timescale
			d := mh.Duration
			e.movieDuration = &d
		}
		return nil
	}
	top := e.tracks.top()
	if top == nil {
		return nil
	}
	track := *top
	switch ev.Header.Type {
	case bmff.TypeTkhd:
		if th, ok := ev.Detail.(*bmff.TrackHeader); ok {
			track.header = th
		}
	case bmff.TypeMdhd:
		if mh, ok := ev.Detail.(*bmff.MediaHeader); ok {
			return e.mediaHeader(track, mh)
		}
	case bmff.TypeElst:
		if el, ok := ev.Detail.(*bmff.EditList); ok {
			return e.editList(track, el)
		}
	}
	return nil
}

// mediaHeader records the track's media timing and flushes queued checks. A
// second media header in the same track replaces the first; the duplicate
// itself is reported.
func (e *EditListRule) mediaHeader(track *editTrack, mh *bmff.MediaHeader) []Issue {
	var out []Issue
	if track.media != nil {
		out = append(out, newIssue(IDEditList, WARN,
			"%s declares multiple media headers; using timescale %d and duration %d from the latest.",
			track.label(), mh.Timescale, mh.Duration))
	}
	track.media = &mediaTiming{timescale: mh.Timescale, duration: mh.Duration}
	pending := track.pending
	track.pending = nil
	for _, el := range pending {
		if issue, ok := e.mediaDurationIssue(track, el); ok {
			out = append(out, issue)
		}
	}
	return out
}

func (e *EditListRule) editList(track *editTrack, el *bmff.EditList) []Issue {
	var out []Issue
	if issue, ok := e.movieDurationIssue(track, el); ok {
		out = append(out, issue)
	}
	if issue, ok := trackDurationIssue(track, el); ok {
		out = append(out, issue)
	}
	if track.media != nil {
		if issue, ok := e.mediaDurationIssue(track, el); ok {
			out = append(out, issue)
		}
	} else {
		track.pending = append(track.pending, el)
	}
	return append(out, rateIssues(track, el)...)
}

func (e *EditListRule) timescaleFor(el *bmff.EditList) uint32 {
	if el.MovieTimescale != 0 {
		return el.MovieTimescale
	}
	return e.movieTimescale
}

func segmentTotal(el *bmff.EditList) uint64 {
	var total uint64
	for _, entry := range el.Entries {
		total = addSaturating(total, entry.SegmentDuration)
	}
	return total
}

// compareTicks reports whether got and want differ by more than one tick
// and renders the difference.
func compareTicks(got, want uint64) (string, bool) {
	switch {
	case got < want && want-got > 1:
		return fmt.Sprintf("short by %d > 1 tick", want-got), true
	case got > want && got-want > 1:
		return fmt.Sprintf("over by %d > 1 tick", got-want), true
	}
	return "", false
}

func (e *EditListRule) movieDurationIssue(track *editTrack, el *bmff.EditList) (Issue, bool) {
	if e.timescaleFor(el) == 0 || e.movieDuration == nil {
		return Issue{}, false
	}
	total := segmentTotal(el)
	diff, bad := compareTicks(total, *e.movieDuration)
	if !bad {
		return Issue{}, false
	}
	return newIssue(IDEditList, WARN,
		"%s edit list spans %d movie ticks but movie header duration is %d (%s).",
		track.label(), total, *e.movieDuration, diff), true
}

func trackDurationIssue(track *editTrack, el *bmff.EditList) (Issue, bool) {
	if track.header == nil || !track.header.Enabled() {
		return Issue{}, false
	}
	total := segmentTotal(el)
	diff, bad := compareTicks(total, track.header.Duration)
	if !bad {
		return Issue{}, false
	}
	return newIssue(IDEditList, WARN,
		"%s edit list spans %d movie ticks but track header duration is %d (%s).",
		track.label(), total, track.header.Duration, diff), true
}

func (e *EditListRule) mediaDurationIssue(track *editTrack, el *bmff.EditList) (Issue, bool) {
	movieScale := e.timescaleFor(el)
	if movieScale == 0 || track.media == nil || track.media.timescale == 0 {
		return Issue{}, false
	}
	if track.header != nil && !track.header.Enabled() {
		return Issue{}, false
	}
	expected := expectedMediaTicks(el, movieScale, track.media.timescale)
	diff, bad := compareTicks(expected, track.media.duration)
	if !bad {
		return Issue{}, false
	}
	return newIssue(IDEditList, WARN,
		"%s edit list consumes %d media ticks but media duration is %d (%s).",
		track.label(), expected, track.media.duration, diff), true
}

// expectedMediaTicks converts the non-empty edits into media timescale ticks
// with exact rational arithmetic, rounding half up and saturating at the
// uint64 maximum.
func expectedMediaTicks(el *bmff.EditList, movieScale, mediaScale uint32) uint64 {
	num := new(big.Int)
	seg := new(big.Int)
	for _, entry := range el.Entries {
		if entry.Empty() {
			continue
		}
		seg.SetUint64(entry.SegmentDuration)
		num.Add(num, seg)
	}
	num.Mul(num, big.NewInt(int64(mediaScale)))
	den := big.NewInt(int64(movieScale))
	// floor((2*num + den) / (2*den))
	num.Lsh(num, 1)
	num.Add(num, den)
	den.Lsh(den, 1)
	num.Quo(num, den)
	if !num.IsUint64() {
		return math.MaxUint64
	}
	return num.Uint64()
}

func rateIssues(track *editTrack, el *bmff.EditList) []Issue {
	var out []Issue
	for i, entry := range el.Entries {
		switch {
		case entry.MediaRateFraction != 0:
			out = append(out, newIssue(IDEditList, WARN,
				"%s edit list entry %d sets media_rate_fraction=%d; fractional playback rates are unsupported.",
				track.label(), i, entry.MediaRateFraction))
		case entry.MediaRateInteger < 0:
			out = append(out, newIssue(IDEditList, WARN,
				"%s edit list entry %d uses media_rate_integer=%d; reverse playback is unsupported.",
				track.label(), i, entry.MediaRateInteger))
		case entry.MediaRateInteger > 1:
			out = append(out, newIssue(IDEditList, WARN,
				"%s edit list entry %d uses media_rate_integer=%d; playback rate adjustments above 1x are unsupported.",
				track.label(), i, entry.MediaRateInteger))
		}
	}
	return out
}
