package cdebug

import (
	"fmt"

	"github.com/go-kit/log/level"

	"github.com/skdltmxn/cv50-go/internal/leaf"
)

// decodeTypes walks the global types subsection in record order. Records
// that cannot be decoded are logged and dropped; only a structural error
// in a field list aborts the walk.
func (b *builder) decodeTypes() error {
	it := b.types.Iterator()
	for rec := it.Next(); rec != nil; rec = it.Next() {
		t, err := b.decodeType(rec)
		if err != nil {
			if isFatal(err) {
				return err
			}
			level.Warn(b.logger).Log("msg", "dropping type record", "index", fmt.Sprintf("%#04x", uint16(rec.Index)),
				"kind", rec.Kind, "offset", rec.Offset, "err", err)
			continue
		}
		if t != nil {
			b.db.AddType(TypeIndex(rec.Index), t)
		}
	}
	if err := it.Err(); err != nil {
		level.Warn(b.logger).Log("msg", "type records truncated", "err", err)
	}
	return nil
}

// decodeType converts one record into a type node. It returns nil for
// records that do not define a standalone type.
func (b *builder) decodeType(rec *leaf.Record) (Type, error) {
	switch rec.Kind {
	case leaf.LF_MODIFIER:
		m, err := leaf.ParseModifierRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		target, err := b.typeRef(m.ModifiedType)
		if err != nil {
			return nil, err
		}
		return target.withCV(m.Modifiers.IsConst(), m.Modifiers.IsVolatile()), nil

	case leaf.LF_POINTER:
		p, err := leaf.ParsePointerRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		target, err := b.typeRef(p.ReferentType)
		if err != nil {
			return nil, err
		}
		return &PointerType{
			cv:     cv{isConst: p.Attributes.IsConst(), isVolatile: p.Attributes.IsVolatile()},
			target: target,
			size:   b.db.prims.pointerSize,
		}, nil

	case leaf.LF_ARRAY:
		a, err := leaf.ParseArrayRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		elem, err := b.typeRef(a.ElementType)
		if err != nil {
			return nil, err
		}
		index, err := b.typeRef(a.IndexType)
		if err != nil {
			return nil, err
		}
		return &ArrayType{name: a.Name, element: elem, indexType: index, size: a.Size}, nil

	case leaf.LF_CLASS, leaf.LF_STRUCTURE:
		c, err := leaf.ParseClassRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		kind := TypeKindStruct
		if rec.Kind == leaf.LF_CLASS {
			kind = TypeKindClass
		}
		t := &CompoundType{kind: kind, name: c.Name, size: c.Size, forwardRef: c.Properties.IsForwardRef()}
		if t.forwardRef {
			return t, nil
		}
		return t, b.decodeMembers(t, c.FieldList)

	case leaf.LF_UNION:
		u, err := leaf.ParseUnionRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		t := &CompoundType{kind: TypeKindUnion, name: u.Name, size: u.Size, forwardRef: u.Properties.IsForwardRef()}
		if t.forwardRef {
			return t, nil
		}
		return t, b.decodeMembers(t, u.FieldList)

	case leaf.LF_ENUM:
		e, err := leaf.ParseEnumRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		return b.decodeEnum(e)

	case leaf.LF_PROCEDURE:
		p, err := leaf.ParseProcedureRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		f := &FunctionType{callingConv: p.CallingConv.String()}
		if f.returnType, err = b.typeRef(p.ReturnType); err != nil {
			return nil, err
		}
		if f.args, err = b.decodeArgs(p.ArgumentList); err != nil {
			return nil, err
		}
		return f, nil

	case leaf.LF_MFUNCTION:
		m, err := leaf.ParseMFunctionRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		f := &MemberFunctionType{thisAdjust: m.ThisAdjust}
		f.callingConv = m.CallingConv.String()
		if f.returnType, err = b.typeRef(m.ReturnType); err != nil {
			return nil, err
		}
		if f.class, err = b.typeRef(m.ClassType); err != nil {
			return nil, err
		}
		if f.this, err = b.typeRef(m.ThisType); err != nil {
			return nil, err
		}
		if f.args, err = b.decodeArgs(m.ArgumentList); err != nil {
			return nil, err
		}
		return f, nil

	case leaf.LF_BITFIELD:
		bf, err := leaf.ParseBitFieldRecord(rec.Data)
		if err != nil {
			return nil, err
		}
		underlying, err := b.typeRef(bf.Type)
		if err != nil {
			return nil, err
		}
		return &BitfieldType{underlying: underlying, length: bf.Length, position: bf.Position}, nil

	case leaf.LF_ARGLIST, leaf.LF_FIELDLIST, leaf.LF_METHODLIST:
		// Only meaningful through the record that references them
		return nil, nil

	case leaf.LF_VTSHAPE, leaf.LF_LABEL, leaf.LF_NULL, leaf.LF_NOTTRAN, leaf.LF_VFTPATH,
		leaf.LF_PRECOMP, leaf.LF_ENDPRECOMP, leaf.LF_OEM, leaf.LF_TYPESERVER,
		leaf.LF_SKIP, leaf.LF_LIST, leaf.LF_DERIVED, leaf.LF_REFSYM:
		return nil, nil

	case leaf.LF_COBOL0, leaf.LF_COBOL1, leaf.LF_BARRAY, leaf.LF_DIMARRAY, leaf.LF_DEFARG,
		leaf.LF_DIMCONU, leaf.LF_DIMCONLU, leaf.LF_DIMVARU, leaf.LF_DIMVARLU:
		level.Warn(b.logger).Log("msg", "unsupported type record", "index", fmt.Sprintf("%#04x", uint16(rec.Index)),
			"kind", rec.Kind, "length", rec.Length)
		return nil, nil

	default:
		level.Warn(b.logger).Log("msg", "unknown type record", "index", fmt.Sprintf("%#04x", uint16(rec.Index)),
			"kind", fmt.Sprintf("%#04x", uint16(rec.Kind)), "offset", rec.Offset)
		return nil, nil
	}
}

// decodeArgs resolves the argument list of a signature.
func (b *builder) decodeArgs(ti leaf.TypeIndex) ([]Type, error) {
	if ti == 0 {
		return nil, nil
	}
	rec, err := b.types.Record(ti)
	if err != nil {
		return nil, err
	}
	if rec.Kind != leaf.LF_ARGLIST {
		return nil, fmt.Errorf("argument list %#04x is %s", uint16(ti), rec.Kind)
	}
	al, err := leaf.ParseArgListRecord(rec.Data)
	if err != nil {
		return nil, err
	}
	args := make([]Type, 0, len(al.ArgTypes))
	for _, a := range al.ArgTypes {
		t, err := b.typeRef(a)
		if err != nil {
			return nil, err
		}
		args = append(args, t)
	}
	return args, nil
}

func (b *builder) decodeEnum(e *leaf.EnumRecord) (Type, error) {
	if e.Name == "" && b.anonEnum != nil {
		return b.anonEnum, nil
	}

	underlying, err := b.typeRef(e.UnderlyingType)
	if err != nil {
		return nil, err
	}
	t := &EnumType{name: e.Name, underlying: underlying}
	if !e.Properties.IsForwardRef() {
		err := b.walkFieldList(e.FieldList, func(f *leaf.Field) error {
			if f.Kind != leaf.LF_ENUMERATE {
				level.Warn(b.logger).Log("msg", "unexpected enum member", "enum", e.Name, "kind", f.Kind)
				return nil
			}
			t.enumerators = append(t.enumerators, Enumerator{Name: f.Name, Value: f.Value})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	if e.Name == "" {
		b.anonEnum = t
	}
	return t, nil
}

// decodeMembers fills the bases and fields of a class, struct or union.
func (b *builder) decodeMembers(t *CompoundType, fieldList leaf.TypeIndex) error {
	return b.walkFieldList(fieldList, func(f *leaf.Field) error {
		switch f.Kind {
		case leaf.LF_BCLASS, leaf.LF_VBCLASS, leaf.LF_IVBCLASS:
			if t.kind == TypeKindUnion {
				level.Debug(b.logger).Log("msg", "ignoring base class of union", "union", t.name)
				return nil
			}
			bt, err := b.typeRef(f.Type)
			if err != nil {
				return err
			}
			t.bases = append(t.bases, &BaseClass{
				Type:    bt,
				Access:  Access(f.Attributes.Access()),
				Virtual: f.Kind != leaf.LF_BCLASS,
			})

		case leaf.LF_MEMBER:
			ft, err := b.typeRef(f.Type)
			if err != nil {
				return err
			}
			t.fields = append(t.fields, &Field{
				Name:   f.Name,
				Type:   ft,
				Access: Access(f.Attributes.Access()),
				Offset: f.Value,
			})

		case leaf.LF_STMEMBER:
			if t.kind == TypeKindUnion {
				level.Warn(b.logger).Log("msg", "static member in union", "union", t.name, "member", f.Name)
			}
			ft, err := b.typeRef(f.Type)
			if err != nil {
				return err
			}
			t.fields = append(t.fields, &Field{
				Name:   f.Name,
				Type:   ft,
				Access: Access(f.Attributes.Access()),
				Static: true,
			})

		case leaf.LF_METHOD, leaf.LF_ONEMETHOD, leaf.LF_NESTTYPE, leaf.LF_VFUNCTAB,
			leaf.LF_FRIENDCLS, leaf.LF_FRIENDFCN, leaf.LF_VFUNCOFF:
			// Member functions and nested declarations are not modeled

		default:
			level.Warn(b.logger).Log("msg", "unexpected member", "type", t.name, "kind", f.Kind)
		}
		return nil
	})
}

// walkFieldList visits every member of a field list, following LF_INDEX
// continuations. A head that is not a field list is fatal.
func (b *builder) walkFieldList(ti leaf.TypeIndex, visit func(*leaf.Field) error) error {
	if ti == 0 {
		return nil
	}
	seen := make(map[leaf.TypeIndex]bool)
	for next := ti; next != 0; {
		if seen[next] {
			level.Warn(b.logger).Log("msg", "field list continuation loop", "index", fmt.Sprintf("%#04x", uint16(next)))
			return nil
		}
		seen[next] = true

		rec, err := b.types.Record(next)
		if err != nil {
			return &DebuggerError{Op: "types", Err: fmt.Errorf("%w: %#04x: %v", ErrNotFieldList, uint16(next), err)}
		}
		if rec.Kind != leaf.LF_FIELDLIST {
			return &DebuggerError{Op: "types", Err: fmt.Errorf("%w: %#04x is %s", ErrNotFieldList, uint16(next), rec.Kind)}
		}

		next = 0
		it := leaf.NewFieldIterator(rec.Data)
		for f, ok := it.Next(); ok; f, ok = it.Next() {
			if f.Kind == leaf.LF_INDEX {
				next = f.Type
				continue
			}
			if err := visit(&f); err != nil {
				return err
			}
		}
		if err := it.Err(); err != nil {
			level.Warn(b.logger).Log("msg", "field list truncated", "index", fmt.Sprintf("%#04x", uint16(rec.Index)), "err", err)
		}
	}
	return nil
}
