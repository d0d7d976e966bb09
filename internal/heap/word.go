package heap

// Word is the tagged 64-bit representation every compiled-code value
// lives in. Small values are immediate; everything else is an opaque
// handle (a Ref) into the arena, never a raw address, so the collector
// can always enumerate and validate the full object graph.
//
// Low 3 bits carry the tag:
//
//	0 ref    cell index << 3
//	1 int    61-bit immediate, two's complement; wider ints box
//	2 bool   0 or 1 << 3
//	3 null
//	4 none   the empty Option
type Word uint64

const (
	TagRef  = 0
	TagInt  = 1
	TagBool = 2
	TagNull = 3
	TagNone = 4

	tagBits = 3
	tagMask = (1 << tagBits) - 1
)

const (
	NullWord  Word = TagNull
	NoneWord  Word = TagNone
	FalseWord Word = TagBool
	TrueWord  Word = (1 << tagBits) | TagBool
)

// Ref is an opaque index of a heap cell.
type Ref uint32

func (w Word) Tag() int { return int(w & tagMask) }

func (w Word) IsRef() bool { return w&tagMask == TagRef }

func (w Word) IsInt() bool { return w&tagMask == TagInt }

func (w Word) Ref() Ref { return Ref(w >> tagBits) }

// Int decodes an immediate int with sign extension.
func (w Word) Int() int64 { return int64(w) >> tagBits }

func (w Word) Bool() bool { return w>>tagBits != 0 }

func MakeRef(r Ref) Word { return Word(r)<<tagBits | TagRef }

func MakeBool(b bool) Word {
	if b {
		return TrueWord
	}
	return FalseWord
}

// FitsInt reports whether v encodes as an immediate without losing
// bits.
func FitsInt(v int64) bool {
	return v<<tagBits>>tagBits == v
}

// MakeInt encodes an immediate int. Caller must check FitsInt; the
// arena boxes the rest.
func MakeInt(v int64) Word { return Word(v)<<tagBits | TagInt }
