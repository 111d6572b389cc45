package rules

import (
	"fmt"
	"slices"

	"example.com/bmffgate/internal/bmff"
)

type typeSet map[bmff.FourCC]struct{}

func newTypeSet(types ...bmff.FourCC) typeSet {
	s := make(typeSet, len(types))
	for _, t := range types {
		s[t] = struct{}{}
	}
	return s
}

func (s typeSet) has(t bmff.FourCC) bool {
	_, ok := s[t]
	return ok
}

func (s typeSet) union(o typeSet) typeSet {
	out := make(typeSet, len(s)+len(o))
	for t := range s {
		out[t] = struct{}{}
	}
	for t := range o {
		out[t] = struct{}{}
	}
	return out
}

// describe renders a set as `"a"`, `"a" and "b"` or `"a" and N others`,
// sorted so that output does not depend on map order.
func (s typeSet) describe() string {
	names := make([]string, 0, len(s))
	for t := range s {
		names = append(names, t.String())
	}
	slices.Sort(names)
	switch len(names) {
	case 0:
		return ""
	case 1:
		return fmt.Sprintf("%q", names[0])
	case 2:
		return fmt.Sprintf("%q and %q", names[0], names[1])
	default:
		return fmt.Sprintf("%q and %d others", names[0], len(names)-1)
	}
}

var (
	mediaBoxTypes = newTypeSet(
		bmff.TypeMoov, bmff.TypeTrak, bmff.TypeMdia, bmff.TypeMinf, bmff.TypeStbl,
		bmff.TypeMoof, bmff.TypeTraf, bmff.TypeMvex, bmff.TypeMdat, bmff.TypeSidx, bmff.TypeStyp,
	)
	movieDataIndicators = newTypeSet(
		bmff.TypeMoof, bmff.TypeMvex, bmff.TypeSsix, bmff.TypePrft, bmff.TypeSidx, bmff.TypeStyp,
	)
	paddingTypes       = newTypeSet(bmff.TypeFree, bmff.TypeSkip, bmff.TypeWide)
	allowedBeforeFtyp  = paddingTypes.union(newTypeSet(bmff.TypeUUID))
	advisoryIndicators = newTypeSet(bmff.TypeSidx, bmff.TypeStyp, bmff.TypeMoof)
	allowedBeforeMovie = allowedBeforeFtyp.union(advisoryIndicators)
	mediaPayloadTypes  = newTypeSet(bmff.TypeMdat)
)

// FileTypeOrderingRule flags media-carrying top-level boxes that precede the
// file type box.
type FileTypeOrderingRule struct {
	seenFileType bool
}

func (f *FileTypeOrderingRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if f.seenFileType || ev.Kind != bmff.EnterBox || ev.Depth != 0 {
		return nil
	}
	if ev.Header.Type == bmff.TypeFtyp {
		f.seenFileType = true
		return nil
	}
	if !mediaBoxTypes.has(ev.Header.Type) {
		return nil
	}
	return []Issue{newIssue(IDFileTypeOrdering, ERROR,
		"Encountered %s before required file type box (ftyp).", ev.Header.Identifier())}
}

// MovieDataOrderingRule flags media data that precedes the movie box in a
// file that shows no sign of being fragmented.
type MovieDataOrderingRule struct {
	seenMovie bool
	streaming bool
}

func (m *MovieDataOrderingRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if m.seenMovie || ev.Kind != bmff.EnterBox || ev.Depth != 0 {
		return nil
	}
	t := ev.Header.Type
	if movieDataIndicators.has(t) {
		m.streaming = true
	}
	if t == bmff.TypeMoov {
		m.seenMovie = true
		return nil
	}
	if !mediaPayloadTypes.has(t) || m.streaming {
		return nil
	}
	return []Issue{newIssue(IDMovieDataOrdering, WARN,
		"Movie data box (mdat) encountered before movie box (moov); ensure initialization metadata precedes media.")}
}

type orderingPhase uint8

const (
	phaseBeforeFileType orderingPhase = iota
	phaseBeforeMovie
	phaseDone
)

// TopLevelOrderingRule is an advisory over the top-level layout. It emits at
// most one consolidated warning per phase.
type TopLevelOrderingRule struct {
	phase           orderingPhase
	beforeFileType  typeSet
	betweenBoxes    typeSet
	indicatorsSeen  typeSet
	mediaBeforeMoov typeSet
}

func (a *TopLevelOrderingRule) Issues(ev bmff.Event, _ bmff.Reader) []Issue {
	if ev.Kind != bmff.EnterBox || ev.Depth != 0 || a.phase == phaseDone {
		return nil
	}
	t := ev.Header.Type
	switch a.phase {
	case phaseBeforeFileType:
		if t == bmff.TypeFtyp {
			a.phase = phaseBeforeMovie
			return a.fileTypeAdvisory()
		}
		if !allowedBeforeFtyp.has(t) {
			a.beforeFileType = addType(a.beforeFileType, t)
		}
	case phaseBeforeMovie:
		if t == bmff.TypeMoov {
			a.phase = phaseDone
			return a.movieAdvisory()
		}
		if advisoryIndicators.has(t) {
			a.indicatorsSeen = addType(a.indicatorsSeen, t)
		}
		if mediaPayloadTypes.has(t) {
			a.mediaBeforeMoov = addType(a.mediaBeforeMoov, t)
		}
		if !allowedBeforeMovie.has(t) && !mediaPayloadTypes.has(t) && t != bmff.TypeFtyp {
			a.betweenBoxes = addType(a.betweenBoxes, t)
		}
	}
	return nil
}

func addType(s typeSet, t bmff.FourCC) typeSet {
	if s == nil {
		s = make(typeSet)
	}
	s[t] = struct{}{}
	return s
}

func (a *TopLevelOrderingRule) fileTypeAdvisory() []Issue {
	if len(a.beforeFileType) == 0 {
		return nil
	}
	return []Issue{newIssue(IDTopLevelAdvisory, WARN,
		"Top-level box %s appeared before the file type box (ftyp); verify muxer packaging order.",
		a.beforeFileType.describe())}
}

func (a *TopLevelOrderingRule) movieAdvisory() []Issue {
	if len(a.betweenBoxes) > 0 {
		return []Issue{newIssue(IDTopLevelAdvisory, WARN,
			"Top-level box %s appeared between file type (ftyp) and movie (moov) boxes; review packaging workflow.",
			a.betweenBoxes.describe())}
	}
	if len(a.mediaBeforeMoov) > 0 && len(a.indicatorsSeen) > 0 {
		return []Issue{newIssue(IDTopLevelAdvisory, WARN,
			"Movie box (moov) arrived after media payload %s following streaming indicators %s; confirm initialization metadata remains accessible.",
			a.mediaBeforeMoov.describe(), a.indicatorsSeen.describe())}
	}
	return nil
}

// Finish reports boxes that appeared in a file without any file type box.
func (a *TopLevelOrderingRule) Finish() []Issue {
	if a.phase != phaseBeforeFileType || len(a.beforeFileType) == 0 {
		return nil
	}
	a.phase = phaseDone
	return []Issue{newIssue(IDTopLevelAdvisory, WARN,
		"Top-level box %s appeared but no file type box (ftyp) was found; verify muxer packaging order.",
		a.beforeFileType.describe())}
}
