package hostcall

import (
	"log/slog"
	"os"

	"sable/internal/value"
)

// fnLogEmit records a program log line: log.emit(level, message).
// The line goes to the effect log (ordered, diffed by the parity
// harness) and to the process logger.
func fnLogEmit(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	level, err := unpackStr(args, 0, "log.emit")
	if err != nil {
		return nil, err
	}
	msg, err := unpackStr(args, 1, "log.emit")
	if err != nil {
		return nil, err
	}

	ctx.Effects.Record("log", "%s %s", level, msg)
	switch level {
	case "debug":
		slog.Debug(msg, slog.String("source", "program"))
	case "warn":
		slog.Warn(msg, slog.String("source", "program"))
	case "error":
		slog.Error(msg, slog.String("source", "program"))
	default:
		slog.Info(msg, slog.String("source", "program"))
	}
	return value.NULL, nil
}

// fnEnvGet reads an environment variable: env.get(name) -> Option<Str>.
// A Ctx with an Env override (tests, AOT config layering) wins over the
// process environment.
func fnEnvGet(ctx *Ctx, args []value.Value) (value.Value, *value.Err) {
	name, err := unpackStr(args, 0, "env.get")
	if err != nil {
		return nil, err
	}

	lookup := ctx.Env
	if lookup == nil {
		lookup = os.LookupEnv
	}
	if v, ok := lookup(name); ok {
		return value.Some(&value.Str{Value: v}), nil
	}
	return value.NONE, nil
}
