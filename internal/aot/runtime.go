package aot

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"sable/internal/ast"
	"sable/internal/heap"
	"sable/internal/hostcall"
	"sable/internal/interp"
	"sable/internal/lower"
	"sable/internal/native"
	"sable/internal/parity"
	"sable/internal/sched"
	"sable/internal/value"
)

// Runner startup for a packaged program. The order is frozen: read the
// packed section, honor SABLE_BUILD_INFO before anything else, resolve
// configuration, rebuild the engine from the embedded image with no
// code generation, install signal handling, then enter the program.
// Every unrecoverable failure funnels through one fatal record and a
// class-specific exit code.

type Runner struct {
	BinPath string
	Stdout  io.Writer
	Stderr  io.Writer
	Env     func(string) (string, bool)
	// Signals suppresses signal installation when false, for tests.
	Signals bool
}

func envTrue(env func(string) (string, bool), key string) bool {
	v, ok := env(key)
	return ok && v == "1"
}

// sanitize flattens a message to one printable line.
func sanitize(msg string) string {
	var b strings.Builder
	for _, r := range msg {
		if r == '\n' || r == '\r' || r == '\t' {
			b.WriteRune(' ')
		} else if r < 0x20 {
			continue
		} else {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// FatalRecord renders the single-line fatal record.
func FatalRecord(class, msg string, meta Metadata) string {
	return fmt.Sprintf("fatal class=%s pid=%d msg=%q program=%s version=%s mode=%s target=%s fingerprint=%s",
		class, os.Getpid(), sanitize(msg),
		meta.Program, meta.Version, meta.Mode, meta.Target, meta.Fingerprint)
}

func (r *Runner) fatal(class, msg string, meta Metadata) {
	fmt.Fprintln(r.Stderr, FatalRecord(class, msg, meta))
}

// Run executes the packaged program and returns the process exit code.
func (r *Runner) Run() (code int) {
	env := r.Env
	if env == nil {
		env = os.LookupEnv
	}
	var meta Metadata
	defer func() {
		if p := recover(); p != nil {
			r.fatal("panic", fmt.Sprintf("%v", p), meta)
			code = ExitPanic
		}
	}()

	payload, err := ReadPayload(r.BinPath)
	if err != nil {
		r.fatal("runtime_fatal", err.Error(), meta)
		return ExitRuntimeFatal
	}
	meta = payload.Metadata

	if envTrue(env, "SABLE_BUILD_INFO") {
		info, _ := json.Marshal(meta)
		fmt.Fprintln(r.Stdout, string(info))
		return ExitOK
	}

	cfg, err := LoadConfig(env)
	if err != nil {
		r.fatal("runtime_fatal", err.Error(), meta)
		return ExitRuntimeFatal
	}

	if envTrue(env, "SABLE_TRACE_STARTUP") {
		fmt.Fprintf(r.Stderr, "startup program=%s mode=%s entry=%s workers=%d\n",
			meta.Program, meta.Mode, meta.Entry, cfg.Workers)
	}

	prog, err := ast.DecodeProgram(payload.Program)
	if err != nil {
		r.fatal("build_error", err.Error(), meta)
		return ExitBuildError
	}

	calls := hostcall.Default()
	ctx := hostcall.NewCtx()
	pool := sched.NewPool(cfg.Workers)

	var engine parity.Engine
	switch meta.Mode {
	case "native":
		img, ierr := native.UnmarshalImage(payload.Image)
		if ierr != nil {
			r.fatal("runtime_fatal", ierr.Error(), meta)
			return ExitRuntimeFatal
		}
		arena := heap.NewArena()
		neng, nerr := native.New(img, arena, calls, ctx, pool)
		if nerr != nil {
			r.fatal("runtime_fatal", nerr.Error(), meta)
			return ExitRuntimeFatal
		}
		defer neng.Close()
		engine = neng
	case "interp":
		irProg, lerr := lower.Program(prog)
		if lerr != nil {
			r.fatal("build_error", lerr.Error(), meta)
			return ExitBuildError
		}
		engine = interp.New(irProg, calls, ctx, pool)
	default:
		r.fatal("runtime_fatal", fmt.Sprintf("unknown engine mode %q", meta.Mode), meta)
		return ExitRuntimeFatal
	}

	type outcome struct {
		v        value.Value
		err      *value.Err
		panicked string
	}
	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if p := recover(); p != nil {
				done <- outcome{panicked: fmt.Sprintf("%v", p)}
			}
		}()
		v, verr := engine.RunFunction(meta.Entry, nil)
		done <- outcome{v: v, err: verr}
	}()

	var sig chan os.Signal
	if r.Signals {
		sig = make(chan os.Signal, 1)
		signal.Notify(sig, syscall.SIGTERM, os.Interrupt)
		defer signal.Stop(sig)
	}

	select {
	case s := <-sig:
		slog.Info("draining on signal", slog.String("signal", s.String()))
		pool.Drain()
		return ExitOK
	case out := <-done:
		pool.Drain()
		for _, e := range ctx.Effects.Entries() {
			if rest, ok := strings.CutPrefix(e, "print "); ok {
				fmt.Fprintln(r.Stdout, rest)
			}
		}
		if out.panicked != "" {
			r.fatal("panic", out.panicked, meta)
			return ExitPanic
		}
		if out.err != nil {
			r.fatal("runtime_fatal",
				fmt.Sprintf("%s: %s", out.err.ErrKind, out.err.Message), meta)
			return ExitRuntimeFatal
		}
		if out.v != nil && out.v != value.NULL {
			fmt.Fprintln(r.Stdout, out.v.Inspect())
		}
		return ExitOK
	}
}
