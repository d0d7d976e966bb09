package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"sable/internal/aot"
	"sable/internal/ast"
	"sable/internal/buildcache"
	"sable/internal/ir"
	"sable/internal/lower"
	"sable/internal/parity"
	"sable/internal/util"
	"sable/internal/value"
)

var (
	// Version is set from the VERSION file at link time.
	Version   = "dev"
	BuildDate = "unknown"
	Commit    = "unknown"
	help      bool
	version   bool
	// logging
	logLevel string
	logFile  string
	// run config
	engineName string
	entryName  string
	workers    int
	debugIR    bool
	// build config
	manifestPath string
	lockfilePath string
	cacheDir     string
	outPath      string
	profile      string
)

func init() {
	flag.BoolVar(&help, "help", false, "Display help information and exit")
	flag.BoolVar(&help, "h", false, "Display help information and exit")
	flag.BoolVar(&version, "version", false, "Display version information and exit")
	flag.BoolVar(&version, "v", false, "Display version information and exit")
	// engine config
	flag.StringVar(&engineName, "engine", "interp", "Engine: interp, native, or both (run only)")
	flag.StringVar(&entryName, "entry", "main", "Entry function for run")
	flag.IntVar(&workers, "workers", 0, "Worker pool size, 0 for one per CPU")
	flag.BoolVar(&debugIR, "debug-ir", false, "Print the lowered IR before running")
	// build config
	flag.StringVar(&manifestPath, "manifest", "program.yaml", "Program manifest path")
	flag.StringVar(&lockfilePath, "lockfile", "program.lock", "Dependency lockfile path")
	flag.StringVar(&cacheDir, "cache", "", "Build cache directory (defaults to the user cache)")
	flag.StringVar(&outPath, "o", "", "Output path for build")
	flag.StringVar(&profile, "profile", "release", "Build profile")
	// log config
	flag.StringVar(&logLevel, "log-level", "error", "Log level: debug, info, warn, error")
	flag.StringVar(&logFile, "log-file", "", "Log file path (if not set, logs to stderr)")
}

func main() {

	flag.Parse()

	loggerOptions := &slog.HandlerOptions{
		AddSource: false,
		Level:     logLevelFromString(logLevel),
	}
	logWriter := configureLogWriter()
	defaultLogger := slog.New(slog.NewJSONHandler(logWriter, loggerOptions))
	slog.SetDefault(defaultLogger)

	if version {
		printVersion()
		return
	}

	if help {
		printHelp()
		return
	}

	cfg := util.Configuration{
		Version:   Version,
		BuildDate: BuildDate,
		Commit:    Commit,
		Engine:    engineName,
		CacheDir:  cacheDir,
		Workers:   workers,
		DebugIR:   debugIR,
		SableHome: os.Getenv("SABLE_HOME"),
	}

	// A packaged program is this binary with a packed section appended;
	// when one is present, this process is that program.
	if self, err := os.Executable(); err == nil {
		if _, perr := aot.ReadPayload(self); perr == nil {
			runner := &aot.Runner{
				BinPath: self,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
				Signals: true,
			}
			os.Exit(runner.Run())
		}
	}

	switch flag.Arg(0) {
	case "run":
		os.Exit(runCommand(cfg, flag.Arg(1)))
	case "build":
		os.Exit(buildCommand(cfg, flag.Arg(1)))
	case "info":
		os.Exit(infoCommand(flag.Arg(1)))
	default:
		printHelp()
		os.Exit(2)
	}
}

func loadProgram(path string) (*ast.Program, []byte, error) {
	if path == "" {
		return nil, nil, fmt.Errorf("no program file given")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	prog, err := ast.DecodeProgram(data)
	if err != nil {
		var syn *json.SyntaxError
		if errors.As(err, &syn) {
			line, col := util.LineCol(string(data), int(syn.Offset))
			return nil, nil, fmt.Errorf("%s:%d:%d: %w\n%s",
				path, line, col, err, util.ContextSnippet(string(data), line, col))
		}
		return nil, nil, err
	}
	return prog, data, nil
}

func printEffects(effects []string) {
	for _, e := range effects {
		if rest, ok := strings.CutPrefix(e, "print "); ok {
			fmt.Println(rest)
		}
	}
}

func reportOutcome(out parity.Outcome) int {
	printEffects(out.Effects)
	if out.Err != nil {
		fmt.Fprintf(os.Stderr, "error %s: %s\n", out.Err.ErrKind, out.Err.Message)
		return aot.ExitRuntimeFatal
	}
	if out.Value != nil && out.Value != value.NULL {
		fmt.Println(out.Value.Inspect())
	}
	return aot.ExitOK
}

func runCommand(cfg util.Configuration, path string) int {
	prog, _, err := loadProgram(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}
	irProg, err := lower.Program(prog)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}
	if cfg.DebugIR {
		fmt.Fprint(os.Stderr, ir.Dump(irProg))
	}

	runner := &parity.Runner{Prog: irProg, Workers: cfg.Workers}
	switch cfg.Engine {
	case "interp":
		return reportOutcome(runner.RunInterp(entryName, nil))
	case "native":
		out, nerr := runner.RunNative(entryName, nil)
		if nerr != nil {
			fmt.Fprintln(os.Stderr, nerr)
			return aot.ExitBuildError
		}
		return reportOutcome(out)
	case "both":
		divs, cerr := runner.Check(entryName, nil)
		if cerr != nil {
			fmt.Fprintln(os.Stderr, cerr)
			return aot.ExitBuildError
		}
		if len(divs) > 0 {
			for _, d := range divs {
				fmt.Fprintln(os.Stderr, d.String())
			}
			return 1
		}
		fmt.Println("engines agree")
		return aot.ExitOK
	default:
		fmt.Fprintf(os.Stderr, "unknown engine %q\n", cfg.Engine)
		return 2
	}
}

func buildCommand(cfg util.Configuration, path string) int {
	_, data, err := loadProgram(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}

	mode := cfg.Engine
	if mode != "native" && mode != "interp" {
		mode = "native"
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	entry := entryName
	progVersion := "0.0.0"
	var manifestBytes, lockfileBytes []byte
	if m, merr := buildcache.LoadManifest(manifestPath); merr == nil {
		name, entry, progVersion = m.Name, m.Entry, m.Version
		manifestBytes, _ = os.ReadFile(manifestPath)
		lockfileBytes, _ = os.ReadFile(lockfilePath)
	}

	req := aot.BuildRequest{
		Program:  data,
		Name:     name,
		Version:  progVersion,
		Entry:    entry,
		Mode:     mode,
		Profile:  profile,
		Manifest: manifestBytes,
		Lockfile: lockfileBytes,
	}

	cache, err := buildcache.Open(cfg.ResolveCacheDir())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}

	body, cached, err := aot.BuildCached(cache, req)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}

	out := outPath
	if out == "" {
		out = name
	}
	self, err := os.Executable()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}
	if err := aot.Package(self, out, body); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return aot.ExitBuildError
	}
	slog.Info("packaged program",
		slog.String("out", out),
		slog.String("mode", mode),
		slog.Bool("cached", cached))
	return aot.ExitOK
}

func infoCommand(path string) int {
	if path == "" {
		fmt.Fprintln(os.Stderr, "no package file given")
		return 2
	}
	payload, err := aot.ReadPayload(path)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	info, _ := json.Marshal(payload.Metadata)
	fmt.Println(string(info))
	return aot.ExitOK
}

func configureLogWriter() *os.File {
	var logWriter *os.File
	var err error
	if logFile != "" {
		if err := os.MkdirAll(filepath.Dir(logFile), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "failed to create log directory for '%s': %v; falling back to stderr\n", logFile, err)
			return os.Stderr
		}
		logWriter, err = os.OpenFile(logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to open log file '%s': %v; falling back to stderr\n", logFile, err)
			logWriter = os.Stderr
		}
	} else {
		logWriter = os.Stderr
	}
	return logWriter
}

func printVersion() {

	fmt.Printf("sable version 'v%s' %s %s\n", Version, BuildDate, Commit)
}

func printHelp() {
	fmt.Printf(`Usage: sable [options] <command> [file]

Commands:
  run <program.json>    Lower and execute a canonical program
  build <program.json>  Compile and package a standalone program
  info <package>        Print a packaged program's metadata

Options:
  -engine <name>     Engine: interp, native, or both. Default is 'interp'.
  -entry <name>      Entry function. Default is 'main'.
  -workers <n>       Worker pool size, 0 for one per CPU.
  -debug-ir          Print the lowered IR before running.
  -manifest <path>   Program manifest for build. Default is 'program.yaml'.
  -lockfile <path>   Dependency lockfile for build. Default is 'program.lock'.
  -cache <path>      Build cache directory. Default is the user cache.
  -o <path>          Output path for build.
  -profile <name>    Build profile. Default is 'release'.
  -help              Display this help information and exit.
  -version           Display version information and exit.
  -log-level <level> Set the log level: debug, info, warn, error. Default is 'error'.
  -log-file <path>   Specify a log file to write logs. Default is stderr.

Examples:
  sable run prog.json               Run on the reference engine
  sable -engine=both run prog.json  Run on both engines and diff outcomes
  sable -o demo build prog.json     Package a native standalone binary

Version Information:
  Version:    %s
  Build Date: %s
  Commit:     %s
`, Version, BuildDate, Commit)
}

func logLevelFromString(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelError
	}
}
