package value

// Shared operator semantics. The interpreter calls these directly and
// the native driver services its slow-path exits with the same
// functions, so the two engines cannot disagree on anything implemented
// here.

// BinaryOp applies an infix operator to two values. Int arithmetic
// wraps on two's-complement overflow; division and modulo by zero are
// runtime errors, never a silent NaN or wrap.
func BinaryOp(op string, left, right Value) (Value, *Err) {
	switch l := left.(type) {
	case *Int:
		if r, ok := right.(*Int); ok {
			return intOp(op, l.Value, r.Value)
		}
	case *Float:
		if r, ok := right.(*Float); ok {
			return floatOp(op, l.Value, r.Value)
		}
	case *Str:
		if r, ok := right.(*Str); ok {
			return strOp(op, l.Value, r.Value)
		}
	case *Bool:
		if r, ok := right.(*Bool); ok {
			return boolOp(op, l.Value, r.Value)
		}
	case *List:
		if r, ok := right.(*List); ok {
			return listOp(op, l, r)
		}
	}
	switch op {
	case "==":
		return BoolOf(Equal(left, right)), nil
	case "!=":
		return BoolOf(!Equal(left, right)), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for %s and %s",
		op, left.Kind(), right.Kind())
}

func intOp(op string, l, r int64) (Value, *Err) {
	switch op {
	case "+":
		return &Int{Value: l + r}, nil
	case "-":
		return &Int{Value: l - r}, nil
	case "*":
		return &Int{Value: l * r}, nil
	case "/":
		if r == 0 {
			return nil, NewErr(ErrDivByZero, "division by zero")
		}
		return &Int{Value: l / r}, nil
	case "%":
		if r == 0 {
			return nil, NewErr(ErrDivByZero, "modulo by zero")
		}
		return &Int{Value: l % r}, nil
	case "==":
		return BoolOf(l == r), nil
	case "!=":
		return BoolOf(l != r), nil
	case "<":
		return BoolOf(l < r), nil
	case "<=":
		return BoolOf(l <= r), nil
	case ">":
		return BoolOf(l > r), nil
	case ">=":
		return BoolOf(l >= r), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for INT", op)
}

func floatOp(op string, l, r float64) (Value, *Err) {
	switch op {
	case "+":
		return &Float{Value: l + r}, nil
	case "-":
		return &Float{Value: l - r}, nil
	case "*":
		return &Float{Value: l * r}, nil
	case "/":
		if r == 0 {
			return nil, NewErr(ErrDivByZero, "division by zero")
		}
		return &Float{Value: l / r}, nil
	case "==":
		return BoolOf(l == r), nil
	case "!=":
		return BoolOf(l != r), nil
	case "<":
		return BoolOf(l < r), nil
	case "<=":
		return BoolOf(l <= r), nil
	case ">":
		return BoolOf(l > r), nil
	case ">=":
		return BoolOf(l >= r), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for FLOAT", op)
}

func strOp(op string, l, r string) (Value, *Err) {
	switch op {
	case "+":
		return &Str{Value: l + r}, nil
	case "==":
		return BoolOf(l == r), nil
	case "!=":
		return BoolOf(l != r), nil
	case "<":
		return BoolOf(l < r), nil
	case "<=":
		return BoolOf(l <= r), nil
	case ">":
		return BoolOf(l > r), nil
	case ">=":
		return BoolOf(l >= r), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for STR", op)
}

func boolOp(op string, l, r bool) (Value, *Err) {
	switch op {
	case "==":
		return BoolOf(l == r), nil
	case "!=":
		return BoolOf(l != r), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for BOOL", op)
}

func listOp(op string, l, r *List) (Value, *Err) {
	switch op {
	case "+":
		elements := make([]Value, 0, len(l.Elements)+len(r.Elements))
		elements = append(elements, l.Elements...)
		elements = append(elements, r.Elements...)
		return &List{Elements: elements}, nil
	case "==":
		return BoolOf(Equal(l, r)), nil
	case "!=":
		return BoolOf(!Equal(l, r)), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for LIST", op)
}

// UnaryOp applies a prefix operator.
func UnaryOp(op string, operand Value) (Value, *Err) {
	switch op {
	case "-":
		switch v := operand.(type) {
		case *Int:
			return &Int{Value: -v.Value}, nil
		case *Float:
			return &Float{Value: -v.Value}, nil
		}
	case "!":
		return BoolOf(!IsTruthy(operand)), nil
	}
	return nil, NewErr(ErrTypeError, "operator %s not defined for %s", op, operand.Kind())
}

// Widen performs the explicit int-to-float coercion the lowering
// inserts. There are no implicit coercions anywhere else.
func Widen(v Value) (Value, *Err) {
	switch v := v.(type) {
	case *Int:
		return &Float{Value: float64(v.Value)}, nil
	case *Float:
		return v, nil
	}
	return nil, NewErr(ErrTypeError, "cannot widen %s to FLOAT", v.Kind())
}

// Index reads an element from a list (INT index) or a map (STR key).
func Index(container, index Value) (Value, *Err) {
	switch c := container.(type) {
	case *List:
		i, ok := index.(*Int)
		if !ok {
			return nil, NewErr(ErrTypeError, "list index must be INT, got %s", index.Kind())
		}
		if i.Value < 0 || i.Value >= int64(len(c.Elements)) {
			return nil, NewErr(ErrBadArgument, "list index %d out of range (len %d)", i.Value, len(c.Elements))
		}
		return c.Elements[i.Value], nil
	case *Map:
		k, ok := index.(*Str)
		if !ok {
			return nil, NewErr(ErrTypeError, "map key must be STR, got %s", index.Kind())
		}
		v, ok := c.Get(k.Value)
		if !ok {
			return NONE, nil
		}
		return Some(v), nil
	}
	return nil, NewErr(ErrTypeError, "%s is not indexable", container.Kind())
}

// Field reads a named field from a struct value.
func Field(container Value, name string) (Value, *Err) {
	s, ok := container.(*Struct)
	if !ok {
		return nil, NewErr(ErrTypeError, "%s has no fields", container.Kind())
	}
	v, ok := s.Get(name)
	if !ok {
		return nil, NewErr(ErrUndefined, "struct %s has no field %s", s.Name, name)
	}
	return v, nil
}

// Length of a string, bytes, list or map.
func Length(v Value) (Value, *Err) {
	switch v := v.(type) {
	case *Str:
		return &Int{Value: int64(len(v.Value))}, nil
	case *Bytes:
		return &Int{Value: int64(len(v.Value))}, nil
	case *List:
		return &Int{Value: int64(len(v.Elements))}, nil
	case *Map:
		return &Int{Value: int64(len(v.Keys))}, nil
	}
	return nil, NewErr(ErrTypeError, "len not defined for %s", v.Kind())
}

// Equal is deep structural equality. Box and Task compare by identity,
// everything else by content.
func Equal(a, b Value) bool {
	switch a := a.(type) {
	case *Null:
		_, ok := b.(*Null)
		return ok
	case *Bool:
		if b, ok := b.(*Bool); ok {
			return a.Value == b.Value
		}
	case *Int:
		if b, ok := b.(*Int); ok {
			return a.Value == b.Value
		}
	case *Float:
		if b, ok := b.(*Float); ok {
			return a.Value == b.Value
		}
	case *Str:
		if b, ok := b.(*Str); ok {
			return a.Value == b.Value
		}
	case *Bytes:
		if b, ok := b.(*Bytes); ok {
			if len(a.Value) != len(b.Value) {
				return false
			}
			for i := range a.Value {
				if a.Value[i] != b.Value[i] {
					return false
				}
			}
			return true
		}
	case *List:
		if b, ok := b.(*List); ok {
			if len(a.Elements) != len(b.Elements) {
				return false
			}
			for i := range a.Elements {
				if !Equal(a.Elements[i], b.Elements[i]) {
					return false
				}
			}
			return true
		}
	case *Map:
		if b, ok := b.(*Map); ok {
			if len(a.Pairs) != len(b.Pairs) {
				return false
			}
			for k, av := range a.Pairs {
				bv, ok := b.Pairs[k]
				if !ok || !Equal(av, bv) {
					return false
				}
			}
			return true
		}
	case *Struct:
		if b, ok := b.(*Struct); ok {
			if a.Name != b.Name || len(a.Fields) != len(b.Fields) {
				return false
			}
			for k, av := range a.Fields {
				bv, ok := b.Fields[k]
				if !ok || !Equal(av, bv) {
					return false
				}
			}
			return true
		}
	case *Enum:
		if b, ok := b.(*Enum); ok {
			if a.Name != b.Name || a.Variant != b.Variant {
				return false
			}
			if a.Payload == nil || b.Payload == nil {
				return a.Payload == nil && b.Payload == nil
			}
			return Equal(a.Payload, b.Payload)
		}
	case *Option:
		if b, ok := b.(*Option); ok {
			if a.Value == nil || b.Value == nil {
				return a.Value == nil && b.Value == nil
			}
			return Equal(a.Value, b.Value)
		}
	case *Result:
		if b, ok := b.(*Result); ok {
			if a.IsOk != b.IsOk {
				return false
			}
			if a.Value == nil || b.Value == nil {
				return a.Value == nil && b.Value == nil
			}
			return Equal(a.Value, b.Value)
		}
	case *Err:
		if b, ok := b.(*Err); ok {
			return a.ErrKind == b.ErrKind && a.Message == b.Message
		}
	default:
		return a == b
	}
	return false
}

// VariantOf classifies a value for pattern matching: enum variant name,
// Ok/Err for results, Some/None for options.
func VariantOf(v Value) (string, Value, *Err) {
	switch v := v.(type) {
	case *Enum:
		return v.Variant, v.Payload, nil
	case *Result:
		if v.IsOk {
			return "Ok", v.Value, nil
		}
		return "Err", v.Value, nil
	case *Option:
		if v.Value == nil {
			return "None", nil, nil
		}
		return "Some", v.Value, nil
	}
	return "", nil, NewErr(ErrTypeError, "%s has no variants", v.Kind())
}
