package hostcall

import (
	"sable/internal/value"
)

// Decode/encode and validation semantics are defined once, here, on the
// interpreter side of the boundary. Results come back as ordinary
// RESULT values so failures flow through normal control flow.

func fnJSONDecode(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	text, err := unpackStr(args, 0, "json.decode")
	if err != nil {
		return nil, err
	}
	v, derr := value.Decode(text)
	if derr != nil {
		return value.ErrOf(errStruct(derr.Message)), nil
	}
	return value.Ok(v), nil
}

func fnJSONEncode(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	if len(args) != 1 {
		return nil, value.NewErr(value.ErrBadArgument, "json.encode expects 1 argument, got %d", len(args))
	}
	text, eerr := value.Encode(args[0])
	if eerr != nil {
		return value.ErrOf(errStruct(eerr.Message)), nil
	}
	return value.Ok(&value.Str{Value: text}), nil
}

// fnValidateRefine applies a named refinement rule to a value and
// returns Ok(value) or Err({message}).
func fnValidateRefine(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	rule, err := unpackStr(args, 0, "validate.refine")
	if err != nil {
		return nil, err
	}
	if len(args) < 2 {
		return nil, value.NewErr(value.ErrBadArgument, "validate.refine expects a value to refine")
	}
	subject := args[1]

	switch rule {
	case "non_empty":
		n, lerr := value.Length(subject)
		if lerr != nil {
			return value.ErrOf(errStruct(lerr.Message)), nil
		}
		if n.(*value.Int).Value == 0 {
			return value.ErrOf(errStruct("value must be non-empty")), nil
		}
		return value.Ok(subject), nil

	case "positive":
		i, ok := subject.(*value.Int)
		if !ok {
			return value.ErrOf(errStruct("positive requires INT, got " + string(subject.Kind()))), nil
		}
		if i.Value <= 0 {
			return value.ErrOf(errStruct("value must be positive")), nil
		}
		return value.Ok(subject), nil

	case "range":
		i, ok := subject.(*value.Int)
		if !ok {
			return value.ErrOf(errStruct("range requires INT, got " + string(subject.Kind()))), nil
		}
		lo, lerr := unpackInt(args, 2, "validate.refine range")
		if lerr != nil {
			return nil, lerr
		}
		hi, herr := unpackInt(args, 3, "validate.refine range")
		if herr != nil {
			return nil, herr
		}
		if i.Value < lo || i.Value > hi {
			return value.ErrOf(errStruct("value out of range")), nil
		}
		return value.Ok(subject), nil
	}
	return nil, value.NewErr(value.ErrValidation, "unknown refinement rule %q", rule)
}

func fnStdLen(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	if len(args) != 1 {
		return nil, value.NewErr(value.ErrBadArgument, "std.len expects 1 argument, got %d", len(args))
	}
	return value.Length(args[0])
}

func fnStdPrint(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	if len(args) != 1 {
		return nil, value.NewErr(value.ErrBadArgument, "std.print expects 1 argument, got %d", len(args))
	}
	ctx.Effects.Record("print", "%s", args[0].Inspect())
	return value.NULL, nil
}

// errStruct builds the {message} payload carried by Err results across
// the boundary.
func errStruct(message string) *value.Struct {
	return value.NewStruct("").Set("message", &value.Str{Value: message})
}
