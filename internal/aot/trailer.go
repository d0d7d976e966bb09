package aot

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// A packaged program is the runner binary with a packed section
// appended: payload JSON, then an 8-byte big-endian payload length,
// then the 8-byte magic. Reading walks backward from the end, so the
// runner itself never needs to know its own size.

const (
	magic       = "SBLPKG1\x00"
	trailerSize = 16

	// ContractVersion is the frozen semantic contract between the
	// packager and the runner. A runner refuses payloads from a
	// different contract.
	ContractVersion = 1
)

// Exit codes of a packaged program, fixed across releases.
const (
	ExitOK           = 0
	ExitBuildError   = 64
	ExitRuntimeFatal = 70
	ExitPanic        = 71
)

// Metadata identifies a packaged artifact. It is printable before any
// application state exists.
type Metadata struct {
	Program     string `json:"program"`
	Version     string `json:"version"`
	Entry       string `json:"entry"`
	Mode        string `json:"mode"`
	Profile     string `json:"profile"`
	Target      string `json:"target"`
	Toolchain   string `json:"toolchain"`
	Fingerprint string `json:"fingerprint"`
	Contract    int    `json:"contract"`
	CreatedAt   string `json:"created_at"`
}

// Payload is the packed section. Program carries the canonical program
// JSON; Image carries the serialized native image when Mode is native.
type Payload struct {
	Metadata Metadata `json:"metadata"`
	Program  []byte   `json:"program"`
	Image    []byte   `json:"image,omitempty"`
}

// EncodePayload renders the packed section body. This is also the
// artifact the build cache stores.
func EncodePayload(p Payload) ([]byte, error) {
	if p.Metadata.Contract == 0 {
		p.Metadata.Contract = ContractVersion
	}
	body, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding payload: %w", err)
	}
	return body, nil
}

// Append packages a payload onto runner bytes.
func Append(runner []byte, p Payload) ([]byte, error) {
	body, err := EncodePayload(p)
	if err != nil {
		return nil, err
	}
	return AppendBody(runner, body), nil
}

// AppendBody appends an already-encoded packed section.
func AppendBody(runner, body []byte) []byte {
	out := make([]byte, 0, len(runner)+len(body)+trailerSize)
	out = append(out, runner...)
	out = append(out, body...)
	var n [8]byte
	binary.BigEndian.PutUint64(n[:], uint64(len(body)))
	out = append(out, n[:]...)
	out = append(out, magic...)
	return out
}

// Package writes a packaged binary: the runner at runnerPath plus an
// encoded packed section, executable.
func Package(runnerPath, outPath string, body []byte) error {
	runner, err := os.ReadFile(runnerPath)
	if err != nil {
		return fmt.Errorf("reading runner: %w", err)
	}
	if err := os.WriteFile(outPath, AppendBody(runner, body), 0o755); err != nil {
		return fmt.Errorf("writing package: %w", err)
	}
	return nil
}

// ReadPayload extracts the packed section from a packaged binary.
func ReadPayload(path string) (*Payload, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening package: %w", err)
	}
	defer f.Close()
	return readPayload(f)
}

func readPayload(f *os.File) (*Payload, error) {
	info, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if info.Size() < trailerSize {
		return nil, fmt.Errorf("no packed section")
	}
	var trailer [trailerSize]byte
	if _, err := f.ReadAt(trailer[:], info.Size()-trailerSize); err != nil {
		return nil, fmt.Errorf("reading trailer: %w", err)
	}
	if !bytes.Equal(trailer[8:], []byte(magic)) {
		return nil, fmt.Errorf("no packed section")
	}
	bodyLen := int64(binary.BigEndian.Uint64(trailer[:8]))
	if bodyLen <= 0 || bodyLen > info.Size()-trailerSize {
		return nil, fmt.Errorf("corrupt packed section length %d", bodyLen)
	}
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(io.NewSectionReader(f, info.Size()-trailerSize-bodyLen, bodyLen), body); err != nil {
		return nil, fmt.Errorf("reading packed section: %w", err)
	}
	var p Payload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("decoding packed section: %w", err)
	}
	if p.Metadata.Contract != ContractVersion {
		return nil, fmt.Errorf("packed section contract %d, runner speaks %d",
			p.Metadata.Contract, ContractVersion)
	}
	return &p, nil
}
