package heap

import (
	"math"

	"sable/internal/value"
)

// Encode materializes a value into the arena and returns its word. A
// value built by the interpreter becomes passable to compiled code and
// vice versa; this is the bridge the host-call boundary rides on.
func (a *Arena) Encode(v value.Value) (Word, *value.Err) {
	switch v := v.(type) {
	case *value.Null:
		return NullWord, nil
	case *value.Bool:
		return MakeBool(v.Value), nil
	case *value.Int:
		return a.MakeIntWord(v.Value), nil
	case *value.Float:
		return a.BoxFloat(v.Value), nil
	case *value.Str:
		return a.Alloc(Cell{Kind: CellStr, Str: v.Value}), nil
	case *value.Bytes:
		return a.Alloc(Cell{Kind: CellBytes, Str: string(v.Value)}), nil
	case *value.List:
		refs := make([]Word, len(v.Elements))
		for i, elem := range v.Elements {
			w, err := a.Encode(elem)
			if err != nil {
				return NullWord, err
			}
			refs[i] = w
		}
		return a.Alloc(Cell{Kind: CellList, Refs: refs}), nil
	case *value.Map:
		keys := make([]string, len(v.Keys))
		copy(keys, v.Keys)
		refs := make([]Word, len(v.Keys))
		for i, k := range v.Keys {
			w, err := a.Encode(v.Pairs[k])
			if err != nil {
				return NullWord, err
			}
			refs[i] = w
		}
		return a.Alloc(Cell{Kind: CellMap, Keys: keys, Refs: refs}), nil
	case *value.Struct:
		keys := make([]string, len(v.FieldNames))
		copy(keys, v.FieldNames)
		refs := make([]Word, len(v.FieldNames))
		for i, k := range v.FieldNames {
			w, err := a.Encode(v.Fields[k])
			if err != nil {
				return NullWord, err
			}
			refs[i] = w
		}
		return a.Alloc(Cell{Kind: CellStruct, Str: v.Name, Keys: keys, Refs: refs}), nil
	case *value.Enum:
		var refs []Word
		if v.Payload != nil {
			w, err := a.Encode(v.Payload)
			if err != nil {
				return NullWord, err
			}
			refs = []Word{w}
		}
		return a.Alloc(Cell{Kind: CellEnum, Str: v.Name, Str2: v.Variant, Refs: refs}), nil
	case *value.Option:
		if v.Value == nil {
			return NoneWord, nil
		}
		w, err := a.Encode(v.Value)
		if err != nil {
			return NullWord, err
		}
		return a.Alloc(Cell{Kind: CellSome, Refs: []Word{w}}), nil
	case *value.Result:
		payload := v.Value
		if payload == nil {
			payload = value.NULL
		}
		w, err := a.Encode(payload)
		if err != nil {
			return NullWord, err
		}
		bits := uint64(0)
		if v.IsOk {
			bits = 1
		}
		return a.Alloc(Cell{Kind: CellResult, Bits: bits, Refs: []Word{w}}), nil
	}
	// Box and Task stay opaque: compiled code only moves the handle.
	switch v.Kind() {
	case value.BOX_KIND, value.TASK_KIND:
		return a.putOpaque(v), nil
	}
	return NullWord, value.NewErr(value.ErrTypeError, "%s has no heap representation", v.Kind())
}

// Decode rebuilds a value from its heap word.
func (a *Arena) Decode(w Word) (value.Value, *value.Err) {
	switch w.Tag() {
	case TagNull:
		return value.NULL, nil
	case TagNone:
		return value.NONE, nil
	case TagBool:
		return value.BoolOf(w.Bool()), nil
	case TagInt:
		return &value.Int{Value: w.Int()}, nil
	}

	a.mu.Lock()
	c := a.cells[w.Ref()]
	a.mu.Unlock()

	switch c.Kind {
	case CellInt:
		return &value.Int{Value: int64(c.Bits)}, nil
	case CellFloat:
		return &value.Float{Value: math.Float64frombits(c.Bits)}, nil
	case CellStr:
		return &value.Str{Value: c.Str}, nil
	case CellBytes:
		return &value.Bytes{Value: []byte(c.Str)}, nil
	case CellList:
		elements := make([]value.Value, len(c.Refs))
		for i, ref := range c.Refs {
			v, err := a.Decode(ref)
			if err != nil {
				return nil, err
			}
			elements[i] = v
		}
		return &value.List{Elements: elements}, nil
	case CellMap:
		m := value.NewMap()
		for i, k := range c.Keys {
			v, err := a.Decode(c.Refs[i])
			if err != nil {
				return nil, err
			}
			m.Put(k, v)
		}
		return m, nil
	case CellStruct:
		s := value.NewStruct(c.Str)
		for i, k := range c.Keys {
			v, err := a.Decode(c.Refs[i])
			if err != nil {
				return nil, err
			}
			s.Set(k, v)
		}
		return s, nil
	case CellEnum:
		var payload value.Value
		if len(c.Refs) > 0 {
			v, err := a.Decode(c.Refs[0])
			if err != nil {
				return nil, err
			}
			payload = v
		}
		return &value.Enum{Name: c.Str, Variant: c.Str2, Payload: payload}, nil
	case CellSome:
		v, err := a.Decode(c.Refs[0])
		if err != nil {
			return nil, err
		}
		return value.Some(v), nil
	case CellResult:
		v, err := a.Decode(c.Refs[0])
		if err != nil {
			return nil, err
		}
		if c.Bits == 1 {
			return value.Ok(v), nil
		}
		return value.ErrOf(v), nil
	case CellOpaque:
		a.mu.Lock()
		v, ok := a.opaque[c.Bits]
		a.mu.Unlock()
		if !ok {
			return nil, value.NewErr(value.ErrHostFailure, "dangling opaque handle %d", c.Bits)
		}
		return v, nil
	}
	return nil, value.NewErr(value.ErrHostFailure, "cannot decode freed cell %d", w.Ref())
}
