package bmff

import (
	"errors"
	"testing"
)

func TestParseFourCC(t *testing.T) {
	cases := []struct {
		in      string
		want    FourCC
		wantErr bool
	}{
		{in: "moov", want: TypeMoov},
		{in: "ac-4", want: FormatAc4},
		{in: "0x00000001", want: 1},
		{in: "moo", wantErr: true},
		{in: "mo\x01v", wantErr: true},
		{in: "0xZZZZZZZZ", wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseFourCC(tc.in)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidFourCC) {
					t.Fatalf("expected ErrInvalidFourCC, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseFourCC: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %s, want %s", got, tc.want)
			}
		})
	}
}

func TestFourCCStringRoundTrip(t *testing.T) {
	for _, c := range []FourCC{TypeFtyp, TypeStz2, 0x00000001, 0xA9746F6F} {
		parsed, err := ParseFourCC(c.String())
		if err != nil {
			t.Fatalf("ParseFourCC(%q): %v", c.String(), err)
		}
		if parsed != c {
			t.Fatalf("round trip %q: got %08X want %08X", c.String(), uint32(parsed), uint32(c))
		}
	}
	if got := FourCC(1).String(); got != "0x00000001" {
		t.Fatalf("non-printable String = %q", got)
	}
}

func TestFourCCText(t *testing.T) {
	var c FourCC
	if err := c.UnmarshalText([]byte("trun")); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if c != TypeTrun {
		t.Fatalf("got %s", c)
	}
	text, _ := c.MarshalText()
	if string(text) != "trun" {
		t.Fatalf("MarshalText = %q", text)
	}
}

func TestDescribe(t *testing.T) {
	if Describe(FourCC(0x7A7A7A7A)) != nil {
		t.Fatalf("unknown type should have no descriptor")
	}
	d := Describe(TypeVmhd)
	if d == nil || d.Version == nil || d.Flags == nil {
		t.Fatalf("vmhd descriptor missing version/flags: %+v", d)
	}
	if *d.Version != 0 || *d.Flags != 1 {
		t.Fatalf("vmhd expectations = v%d f%d", *d.Version, *d.Flags)
	}
	if d := Describe(TypeMvhd); d.Version != nil {
		t.Fatalf("mvhd version should be free")
	}
	if d := Describe(TypeMoov); !d.Container || d.FullBox {
		t.Fatalf("moov descriptor = %+v", d)
	}
	types := CatalogTypes()
	for i := 1; i < len(types); i++ {
		if types[i-1].String() >= types[i].String() {
			t.Fatalf("CatalogTypes not sorted at %d", i)
		}
	}
}
