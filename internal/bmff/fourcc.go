package bmff

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// FourCC is a four character box type code packed big-endian into a uint32.
// Constants are built from rune literals so a malformed code fails to compile.
type FourCC uint32

const (
	TypeFtyp FourCC = 'f'<<24 | 't'<<16 | 'y'<<8 | 'p'
	TypeStyp FourCC = 's'<<24 | 't'<<16 | 'y'<<8 | 'p'
	TypeFree FourCC = 'f'<<24 | 'r'<<16 | 'e'<<8 | 'e'
	TypeSkip FourCC = 's'<<24 | 'k'<<16 | 'i'<<8 | 'p'
	TypeWide FourCC = 'w'<<24 | 'i'<<16 | 'd'<<8 | 'e'
	TypeUUID FourCC = 'u'<<24 | 'u'<<16 | 'i'<<8 | 'd'
	TypeMdat FourCC = 'm'<<24 | 'd'<<16 | 'a'<<8 | 't'
	TypePdin FourCC = 'p'<<24 | 'd'<<16 | 'i'<<8 | 'n'
	TypeMeta FourCC = 'm'<<24 | 'e'<<16 | 't'<<8 | 'a'

	TypeMoov FourCC = 'm'<<24 | 'o'<<16 | 'o'<<8 | 'v'
	TypeMvhd FourCC = 'm'<<24 | 'v'<<16 | 'h'<<8 | 'd'
	TypeIods FourCC = 'i'<<24 | 'o'<<16 | 'd'<<8 | 's'
	TypeTrak FourCC = 't'<<24 | 'r'<<16 | 'a'<<8 | 'k'
	TypeTkhd FourCC = 't'<<24 | 'k'<<16 | 'h'<<8 | 'd'
	TypeTref FourCC = 't'<<24 | 'r'<<16 | 'e'<<8 | 'f'
	TypeEdts FourCC = 'e'<<24 | 'd'<<16 | 't'<<8 | 's'
	TypeElst FourCC = 'e'<<24 | 'l'<<16 | 's'<<8 | 't'
	TypeMdia FourCC = 'm'<<24 | 'd'<<16 | 'i'<<8 | 'a'
	TypeMdhd FourCC = 'm'<<24 | 'd'<<16 | 'h'<<8 | 'd'
	TypeHdlr FourCC = 'h'<<24 | 'd'<<16 | 'l'<<8 | 'r'
	TypeMinf FourCC = 'm'<<24 | 'i'<<16 | 'n'<<8 | 'f'
	TypeVmhd FourCC = 'v'<<24 | 'm'<<16 | 'h'<<8 | 'd'
	TypeSmhd FourCC = 's'<<24 | 'm'<<16 | 'h'<<8 | 'd'
	TypeNmhd FourCC = 'n'<<24 | 'm'<<16 | 'h'<<8 | 'd'
	TypeSthd FourCC = 's'<<24 | 't'<<16 | 'h'<<8 | 'd'
	TypeDinf FourCC = 'd'<<24 | 'i'<<16 | 'n'<<8 | 'f'
	TypeDref FourCC = 'd'<<24 | 'r'<<16 | 'e'<<8 | 'f'
	TypeURL  FourCC = 'u'<<24 | 'r'<<16 | 'l'<<8 | ' '
	TypeURN  FourCC = 'u'<<24 | 'r'<<16 | 'n'<<8 | ' '
	TypeStbl FourCC = 's'<<24 | 't'<<16 | 'b'<<8 | 'l'
	TypeStsd FourCC = 's'<<24 | 't'<<16 | 's'<<8 | 'd'
	TypeStts FourCC = 's'<<24 | 't'<<16 | 't'<<8 | 's'
	TypeCtts FourCC = 'c'<<24 | 't'<<16 | 't'<<8 | 's'
	TypeStsc FourCC = 's'<<24 | 't'<<16 | 's'<<8 | 'c'
	TypeStsz FourCC = 's'<<24 | 't'<<16 | 's'<<8 | 'z'
	TypeStz2 FourCC = 's'<<24 | 't'<<16 | 'z'<<8 | '2'
	TypeStco FourCC = 's'<<24 | 't'<<16 | 'c'<<8 | 'o'
	TypeCo64 FourCC = 'c'<<24 | 'o'<<16 | '6'<<8 | '4'
	TypeStss FourCC = 's'<<24 | 't'<<16 | 's'<<8 | 's'
	TypeSdtp FourCC = 's'<<24 | 'd'<<16 | 't'<<8 | 'p'
	TypeSgpd FourCC = 's'<<24 | 'g'<<16 | 'p'<<8 | 'd'
	TypeSbgp FourCC = 's'<<24 | 'b'<<16 | 'g'<<8 | 'p'
	TypeSaiz FourCC = 's'<<24 | 'a'<<16 | 'i'<<8 | 'z'
	TypeSaio FourCC = 's'<<24 | 'a'<<16 | 'i'<<8 | 'o'
	TypeUdta FourCC = 'u'<<24 | 'd'<<16 | 't'<<8 | 'a'
	TypeIlst FourCC = 'i'<<24 | 'l'<<16 | 's'<<8 | 't'
	TypePssh FourCC = 'p'<<24 | 's'<<16 | 's'<<8 | 'h'

	TypeMvex FourCC = 'm'<<24 | 'v'<<16 | 'e'<<8 | 'x'
	TypeMehd FourCC = 'm'<<24 | 'e'<<16 | 'h'<<8 | 'd'
	TypeTrex FourCC = 't'<<24 | 'r'<<16 | 'e'<<8 | 'x'
	TypeMoof FourCC = 'm'<<24 | 'o'<<16 | 'o'<<8 | 'f'
	TypeMfhd FourCC = 'm'<<24 | 'f'<<16 | 'h'<<8 | 'd'
	TypeTraf FourCC = 't'<<24 | 'r'<<16 | 'a'<<8 | 'f'
	TypeTfhd FourCC = 't'<<24 | 'f'<<16 | 'h'<<8 | 'd'
	TypeTfdt FourCC = 't'<<24 | 'f'<<16 | 'd'<<8 | 't'
	TypeTrun FourCC = 't'<<24 | 'r'<<16 | 'u'<<8 | 'n'
	TypeSenc FourCC = 's'<<24 | 'e'<<16 | 'n'<<8 | 'c'
	TypeMfra FourCC = 'm'<<24 | 'f'<<16 | 'r'<<8 | 'a'
	TypeTfra FourCC = 't'<<24 | 'f'<<16 | 'r'<<8 | 'a'
	TypeMfro FourCC = 'm'<<24 | 'f'<<16 | 'r'<<8 | 'o'
	TypeSidx FourCC = 's'<<24 | 'i'<<16 | 'd'<<8 | 'x'
	TypeSsix FourCC = 's'<<24 | 's'<<16 | 'i'<<8 | 'x'
	TypePrft FourCC = 'p'<<24 | 'r'<<16 | 'f'<<8 | 't'
	TypeEmsg FourCC = 'e'<<24 | 'm'<<16 | 's'<<8 | 'g'

	TypeSinf FourCC = 's'<<24 | 'i'<<16 | 'n'<<8 | 'f'
	TypeFrma FourCC = 'f'<<24 | 'r'<<16 | 'm'<<8 | 'a'
	TypeSchm FourCC = 's'<<24 | 'c'<<16 | 'h'<<8 | 'm'
	TypeSchi FourCC = 's'<<24 | 'c'<<16 | 'h'<<8 | 'i'
	TypeTenc FourCC = 't'<<24 | 'e'<<16 | 'n'<<8 | 'c'

	TypeAvcC FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | 'C'
	TypeHvcC FourCC = 'h'<<24 | 'v'<<16 | 'c'<<8 | 'C'
	TypeEsds FourCC = 'e'<<24 | 's'<<16 | 'd'<<8 | 's'
	TypeBtrt FourCC = 'b'<<24 | 't'<<16 | 'r'<<8 | 't'
	TypePasp FourCC = 'p'<<24 | 'a'<<16 | 's'<<8 | 'p'
	TypeColr FourCC = 'c'<<24 | 'o'<<16 | 'l'<<8 | 'r'
)

// Sample entry formats.
const (
	FormatAvc1 FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | '1'
	FormatAvc2 FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | '2'
	FormatAvc3 FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | '3'
	FormatAvc4 FourCC = 'a'<<24 | 'v'<<16 | 'c'<<8 | '4'
	FormatHvc1 FourCC = 'h'<<24 | 'v'<<16 | 'c'<<8 | '1'
	FormatHev1 FourCC = 'h'<<24 | 'e'<<16 | 'v'<<8 | '1'
	FormatDvh1 FourCC = 'd'<<24 | 'v'<<16 | 'h'<<8 | '1'
	FormatDvhe FourCC = 'd'<<24 | 'v'<<16 | 'h'<<8 | 'e'
	FormatDvav FourCC = 'd'<<24 | 'v'<<16 | 'a'<<8 | 'v'
	FormatDvvc FourCC = 'd'<<24 | 'v'<<16 | 'v'<<8 | 'c'
	FormatAv01 FourCC = 'a'<<24 | 'v'<<16 | '0'<<8 | '1'
	FormatVp08 FourCC = 'v'<<24 | 'p'<<16 | '0'<<8 | '8'
	FormatVp09 FourCC = 'v'<<24 | 'p'<<16 | '0'<<8 | '9'
	FormatEncv FourCC = 'e'<<24 | 'n'<<16 | 'c'<<8 | 'v'
	FormatMp4a FourCC = 'm'<<24 | 'p'<<16 | '4'<<8 | 'a'
	FormatEnca FourCC = 'e'<<24 | 'n'<<16 | 'c'<<8 | 'a'
	FormatAc4  FourCC = 'a'<<24 | 'c'<<16 | '-'<<8 | '4'
	FormatMha1 FourCC = 'm'<<24 | 'h'<<16 | 'a'<<8 | '1'
	FormatMhm1 FourCC = 'm'<<24 | 'h'<<16 | 'm'<<8 | '1'
)

var ErrInvalidFourCC = errors.New("bmff: invalid four character code")

// ParseFourCC converts a four byte printable ASCII string into a FourCC. The
// hexadecimal form produced by String for non-printable codes is accepted too.
func ParseFourCC(s string) (FourCC, error) {
	if strings.HasPrefix(s, "0x") && len(s) == 10 {
		v, err := strconv.ParseUint(s[2:], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFourCC, s)
		}
		return FourCC(v), nil
	}
	if len(s) != 4 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidFourCC, s)
	}
	for i := 0; i < 4; i++ {
		if !printable(s[i]) {
			return 0, fmt.Errorf("%w: %q", ErrInvalidFourCC, s)
		}
	}
	return FourCC(binary.BigEndian.Uint32([]byte(s))), nil
}

// FourCCFromBytes reads a code from the first four bytes of b.
func FourCCFromBytes(b []byte) FourCC {
	if len(b) < 4 {
		return 0
	}
	return FourCC(binary.BigEndian.Uint32(b[:4]))
}

func (c FourCC) Bytes() [4]byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(c))
	return b
}

func (c FourCC) String() string {
	b := c.Bytes()
	for _, ch := range b {
		if !printable(ch) {
			return fmt.Sprintf("0x%08X", uint32(c))
		}
	}
	return string(b[:])
}

func (c FourCC) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

func (c *FourCC) UnmarshalText(text []byte) error {
	v, err := ParseFourCC(string(text))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

func printable(b byte) bool {
	return b >= 0x20 && b <= 0x7E
}
