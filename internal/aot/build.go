package aot

import (
	"fmt"
	"runtime"
	"time"

	"sable/internal/ast"
	"sable/internal/buildcache"
	"sable/internal/lower"
	"sable/internal/native"
)

// ToolchainID identifies the producing toolchain in fingerprints and
// metadata.
const ToolchainID = "sable-0.3"

// BuildRequest is one packaging job.
type BuildRequest struct {
	Program []byte // canonical program JSON
	Name    string
	Version string
	Entry   string
	Mode    string // "native" or "interp"
	Profile string

	Manifest []byte
	Lockfile []byte
}

// Target reports the packaging target for this toolchain build.
func Target() string { return runtime.GOOS + "/" + runtime.GOARCH }

// Build lowers and, in native mode, compiles the program, producing
// the encoded packed section. Any lowering or compilation failure is a
// build error; nothing partial is emitted.
func Build(req BuildRequest) ([]byte, Metadata, error) {
	meta := Metadata{
		Program:   req.Name,
		Version:   req.Version,
		Entry:     req.Entry,
		Mode:      req.Mode,
		Profile:   req.Profile,
		Target:    Target(),
		Toolchain: ToolchainID,
		Contract:  ContractVersion,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	meta.Fingerprint = req.CacheInputs().Fingerprint()

	prog, err := ast.DecodeProgram(req.Program)
	if err != nil {
		return nil, meta, fmt.Errorf("decoding program: %w", err)
	}
	irProg, err := lower.Program(prog)
	if err != nil {
		return nil, meta, err
	}

	payload := Payload{Metadata: meta, Program: req.Program}
	switch req.Mode {
	case "native":
		img, cerr := native.Compile(irProg)
		if cerr != nil {
			return nil, meta, cerr
		}
		imgBytes, merr := img.Marshal()
		if merr != nil {
			return nil, meta, merr
		}
		payload.Image = imgBytes
	case "interp":
	default:
		return nil, meta, fmt.Errorf("unknown engine mode %q", req.Mode)
	}

	body, err := EncodePayload(payload)
	if err != nil {
		return nil, meta, err
	}
	return body, meta, nil
}

// CacheInputs derives the build-cache key material for this request.
func (req BuildRequest) CacheInputs() buildcache.Inputs {
	return buildcache.Inputs{
		Sources:   map[string][]byte{"main": req.Program},
		Manifest:  req.Manifest,
		Lockfile:  req.Lockfile,
		Toolchain: ToolchainID,
		Profile:   req.Profile,
		Target:    Target(),
	}
}

// BuildCached is Build behind the artifact cache: identical inputs
// return the stored section byte for byte.
func BuildCached(cache *buildcache.Cache, req BuildRequest) ([]byte, bool, error) {
	return cache.GetOrBuild(req.CacheInputs(), func() ([]byte, error) {
		body, _, err := Build(req)
		return body, err
	})
}
