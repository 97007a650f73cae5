package leaf

import (
	"fmt"

	"github.com/skdltmxn/cv50-go/internal/stream"
)

// Field is one decoded sub-record of an LF_FIELDLIST.
// Only the members relevant to Kind are set.
type Field struct {
	Kind Kind

	// Offset of the sub-record within the field list data
	Offset int

	// Type is the member, base class, nested or method type. For LF_INDEX
	// it is the continuation field list.
	Type TypeIndex

	// VBPtrType is the virtual base pointer type of LF_VBCLASS/LF_IVBCLASS
	VBPtrType TypeIndex

	Attributes MemberAttributes

	// Value is the member offset, base class offset, enumerate value,
	// virtual base pointer offset or vtable offset.
	Value int64

	// Count is the method overload count of LF_METHOD
	Count uint16

	Name string
}

// FieldIterator walks the sub-records of a field list.
type FieldIterator struct {
	r   *stream.Reader
	err error
}

// NewFieldIterator creates an iterator over the data of an LF_FIELDLIST
// record (excluding its length and kind).
func NewFieldIterator(data []byte) *FieldIterator {
	return &FieldIterator{r: stream.NewReader(data)}
}

// Next returns the next sub-record. It returns false when the list is
// exhausted or a sub-record cannot be decoded; Err distinguishes the two.
func (it *FieldIterator) Next() (Field, bool) {
	if it.err != nil {
		return Field{}, false
	}

	// Pad bytes encode their own length in the low nibble
	for it.r.Remaining() > 0 {
		b, _ := it.r.PeekU8()
		if !Kind(b).IsPadding() {
			break
		}
		n := int(b & 0x0F)
		if n == 0 || n > it.r.Remaining() {
			n = it.r.Remaining()
		}
		_ = it.r.Skip(n)
	}
	if it.r.Remaining() < 2 {
		return Field{}, false
	}

	f := Field{Offset: it.r.Offset()}
	kind, _ := it.r.ReadU16()
	f.Kind = Kind(kind)

	if err := it.parse(&f); err != nil {
		it.err = fmt.Errorf("%s at offset %#x: %w", f.Kind, f.Offset, err)
		return Field{}, false
	}
	return f, true
}

// Err returns the error that stopped iteration, if any.
func (it *FieldIterator) Err() error {
	return it.err
}

func (it *FieldIterator) parse(f *Field) error {
	r := it.r
	var err error

	switch f.Kind {
	case LF_BCLASS:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		f.Value, err = r.ReadSignedNumeric()
		return err

	case LF_VBCLASS, LF_IVBCLASS:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		if f.VBPtrType, err = readIndex(r); err != nil {
			return err
		}
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		if f.Value, err = r.ReadSignedNumeric(); err != nil {
			return err
		}
		_, err = r.ReadSignedNumeric() // virtual base index
		return err

	case LF_ENUMERATE:
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		if f.Value, err = r.ReadSignedNumeric(); err != nil {
			return err
		}
		f.Name, err = r.ReadPString()
		return err

	// The 16-bit layouts of these carry no pad word before the index
	case LF_FRIENDFCN, LF_NESTTYPE:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		f.Name, err = r.ReadPString()
		return err

	case LF_INDEX, LF_VFUNCTAB, LF_FRIENDCLS:
		f.Type, err = readIndex(r)
		return err

	case LF_MEMBER:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		if f.Value, err = r.ReadSignedNumeric(); err != nil {
			return err
		}
		f.Name, err = r.ReadPString()
		return err

	case LF_STMEMBER:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		f.Name, err = r.ReadPString()
		return err

	case LF_METHOD:
		if f.Count, err = r.ReadU16(); err != nil {
			return err
		}
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		f.Name, err = r.ReadPString()
		return err

	case LF_ONEMETHOD:
		if f.Attributes, err = readAttr(r); err != nil {
			return err
		}
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		if f.Attributes.IsIntroducing() {
			v, err := r.ReadU32()
			if err != nil {
				return err
			}
			f.Value = int64(v)
		}
		f.Name, err = r.ReadPString()
		return err

	case LF_VFUNCOFF:
		if f.Type, err = readIndex(r); err != nil {
			return err
		}
		v, err := r.ReadI32()
		f.Value = int64(v)
		return err

	default:
		return ErrUnknownFieldKind
	}
}

func readIndex(r *stream.Reader) (TypeIndex, error) {
	v, err := r.ReadU16()
	return TypeIndex(v), err
}

func readAttr(r *stream.Reader) (MemberAttributes, error) {
	v, err := r.ReadU16()
	return MemberAttributes(v), err
}
