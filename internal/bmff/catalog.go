package bmff

import "sort"

type catalogEntry struct {
	name      string
	container bool
	fullBox   bool
	version   int
	flags     int64
}

const unset = -1

var catalog = map[FourCC]catalogEntry{
	TypeFtyp: {name: "File Type"},
	TypeStyp: {name: "Segment Type"},
	TypeFree: {name: "Free Space"},
	TypeSkip: {name: "Free Space"},
	TypeWide: {name: "Wide Placeholder"},
	TypeUUID: {name: "User Extension"},
	TypeMdat: {name: "Media Data"},
	TypePdin: {name: "Progressive Download Info", fullBox: true, version: 0, flags: unset},
	TypeMeta: {name: "Metadata", container: true, fullBox: true, version: 0, flags: unset},

	TypeMoov: {name: "Movie", container: true},
	TypeMvhd: {name: "Movie Header", fullBox: true, version: unset, flags: unset},
	TypeIods: {name: "Object Descriptor", fullBox: true, version: unset, flags: unset},
	TypeTrak: {name: "Track", container: true},
	TypeTkhd: {name: "Track Header", fullBox: true, version: unset, flags: unset},
	TypeTref: {name: "Track Reference", container: true},
	TypeEdts: {name: "Edit", container: true},
	TypeElst: {name: "Edit List", fullBox: true, version: unset, flags: unset},
	TypeMdia: {name: "Media", container: true},
	TypeMdhd: {name: "Media Header", fullBox: true, version: unset, flags: unset},
	TypeHdlr: {name: "Handler Reference", fullBox: true, version: 0, flags: 0},
	TypeMinf: {name: "Media Information", container: true},
	TypeVmhd: {name: "Video Media Header", fullBox: true, version: 0, flags: 1},
	TypeSmhd: {name: "Sound Media Header", fullBox: true, version: 0, flags: 0},
	TypeNmhd: {name: "Null Media Header", fullBox: true, version: 0, flags: unset},
	TypeSthd: {name: "Subtitle Media Header", fullBox: true, version: 0, flags: unset},
	TypeDinf: {name: "Data Information", container: true},
	TypeDref: {name: "Data Reference", fullBox: true, version: 0, flags: unset},
	TypeURL:  {name: "Data Entry URL", fullBox: true, version: 0, flags: unset},
	TypeURN:  {name: "Data Entry URN", fullBox: true, version: 0, flags: unset},
	TypeStbl: {name: "Sample Table", container: true},
	TypeStsd: {name: "Sample Description", fullBox: true, version: 0, flags: unset},
	TypeStts: {name: "Decoding Time to Sample", fullBox: true, version: 0, flags: unset},
	TypeCtts: {name: "Composition Time to Sample", fullBox: true, version: unset, flags: unset},
	TypeStsc: {name: "Sample to Chunk", fullBox: true, version: 0, flags: unset},
	TypeStsz: {name: "Sample Size", fullBox: true, version: 0, flags: unset},
	TypeStz2: {name: "Compact Sample Size", fullBox: true, version: 0, flags: unset},
	TypeStco: {name: "Chunk Offset", fullBox: true, version: 0, flags: unset},
	TypeCo64: {name: "Chunk Large Offset", fullBox: true, version: 0, flags: unset},
	TypeStss: {name: "Sync Sample", fullBox: true, version: 0, flags: unset},
	TypeSdtp: {name: "Independent and Disposable Samples", fullBox: true, version: 0, flags: unset},
	TypeSgpd: {name: "Sample Group Description", fullBox: true, version: unset, flags: unset},
	TypeSbgp: {name: "Sample to Group", fullBox: true, version: unset, flags: unset},
	TypeSaiz: {name: "Sample Auxiliary Information Sizes", fullBox: true, version: 0, flags: unset},
	TypeSaio: {name: "Sample Auxiliary Information Offsets", fullBox: true, version: unset, flags: unset},
	TypeUdta: {name: "User Data", container: true},
	TypeIlst: {name: "Metadata Item List", container: true},
	TypePssh: {name: "Protection System Specific Header", fullBox: true, version: unset, flags: unset},

	TypeMvex: {name: "Movie Extends", container: true},
	TypeMehd: {name: "Movie Extends Header", fullBox: true, version: unset, flags: unset},
	TypeTrex: {name: "Track Extends", fullBox: true, version: 0, flags: 0},
	TypeMoof: {name: "Movie Fragment", container: true},
	TypeMfhd: {name: "Movie Fragment Header", fullBox: true, version: 0, flags: 0},
	TypeTraf: {name: "Track Fragment", container: true},
	TypeTfhd: {name: "Track Fragment Header", fullBox: true, version: 0, flags: unset},
	TypeTfdt: {name: "Track Fragment Decode Time", fullBox: true, version: unset, flags: unset},
	TypeTrun: {name: "Track Fragment Run", fullBox: true, version: unset, flags: unset},
	TypeSenc: {name: "Sample Encryption", fullBox: true, version: 0, flags: unset},
	TypeMfra: {name: "Movie Fragment Random Access", container: true},
	TypeTfra: {name: "Track Fragment Random Access", fullBox: true, version: unset, flags: unset},
	TypeMfro: {name: "Movie Fragment Random Access Offset", fullBox: true, version: 0, flags: unset},
	TypeSidx: {name: "Segment Index", fullBox: true, version: unset, flags: unset},
	TypeSsix: {name: "Subsegment Index", fullBox: true, version: 0, flags: unset},
	TypePrft: {name: "Producer Reference Time", fullBox: true, version: unset, flags: unset},
	TypeEmsg: {name: "Event Message", fullBox: true, version: unset, flags: unset},

	TypeSinf: {name: "Protection Scheme Information", container: true},
	TypeFrma: {name: "Original Format"},
	TypeSchm: {name: "Scheme Type", fullBox: true, version: 0, flags: unset},
	TypeSchi: {name: "Scheme Information", container: true},
	TypeTenc: {name: "Track Encryption", fullBox: true, version: unset, flags: unset},

	TypeAvcC: {name: "AVC Configuration"},
	TypeHvcC: {name: "HEVC Configuration"},
	TypeEsds: {name: "Elementary Stream Descriptor", fullBox: true, version: 0, flags: unset},
	TypeBtrt: {name: "Bit Rate"},
	TypePasp: {name: "Pixel Aspect Ratio"},
	TypeColr: {name: "Colour Information"},
}

// Known reports whether t is a catalogued box type.
func Known(t FourCC) bool {
	_, ok := catalog[t]
	return ok
}

// IsContainer reports whether the walker descends into boxes of type t.
func IsContainer(t FourCC) bool {
	return catalog[t].container
}

// Describe returns catalog metadata for t, or nil for unknown types.
func Describe(t FourCC) *Descriptor {
	e, ok := catalog[t]
	if !ok {
		return nil
	}
	d := &Descriptor{Type: t, Name: e.name, Container: e.container, FullBox: e.fullBox}
	if e.fullBox {
		if e.version != unset {
			v := e.version
			d.Version = &v
		}
		if e.flags != unset {
			f := uint32(e.flags)
			d.Flags = &f
		}
	}
	return d
}

// CatalogTypes lists every catalogued type in lexical order.
func CatalogTypes() []FourCC {
	out := make([]FourCC, 0, len(catalog))
	for t := range catalog {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}
