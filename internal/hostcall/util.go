package hostcall

import "sable/internal/value"

func unpackStr(args []value.Value, i int, call string) (string, *value.Err) {
	if i >= len(args) {
		return "", value.NewErr(value.ErrBadArgument, "%s: missing argument %d", call, i)
	}
	s, ok := args[i].(*value.Str)
	if !ok {
		return "", value.NewErr(value.ErrBadArgument, "%s: argument %d must be STR, got %s", call, i, args[i].Kind())
	}
	return s.Value, nil
}

func unpackInt(args []value.Value, i int, call string) (int64, *value.Err) {
	if i >= len(args) {
		return 0, value.NewErr(value.ErrBadArgument, "%s: missing argument %d", call, i)
	}
	n, ok := args[i].(*value.Int)
	if !ok {
		return 0, value.NewErr(value.ErrBadArgument, "%s: argument %d must be INT, got %s", call, i, args[i].Kind())
	}
	return n.Value, nil
}
