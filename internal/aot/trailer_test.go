package aot

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writePackage(t *testing.T, p Payload) string {
	t.Helper()
	packed, err := Append([]byte("fake runner bytes"), p)
	if err != nil {
		t.Fatalf("append failed: %s", err)
	}
	path := filepath.Join(t.TempDir(), "program")
	if err := os.WriteFile(path, packed, 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPayloadRoundTrip(t *testing.T) {
	path := writePackage(t, Payload{
		Metadata: Metadata{Program: "demo", Version: "1.0.0", Entry: "main", Mode: "interp"},
		Program:  []byte(`{"funcs":[]}`),
	})

	p, err := ReadPayload(path)
	if err != nil {
		t.Fatalf("read failed: %s", err)
	}
	if p.Metadata.Program != "demo" || p.Metadata.Mode != "interp" {
		t.Errorf("metadata = %+v", p.Metadata)
	}
	if p.Metadata.Contract != ContractVersion {
		t.Errorf("contract defaulted to %d", p.Metadata.Contract)
	}
	if string(p.Program) != `{"funcs":[]}` {
		t.Errorf("program = %q", p.Program)
	}
}

func TestReadPayloadRejectsPlainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plain")
	os.WriteFile(path, []byte("just a binary with no packed section at all"), 0o755)
	_, err := ReadPayload(path)
	if err == nil || !strings.Contains(err.Error(), "no packed section") {
		t.Errorf("got %v", err)
	}
}

func TestReadPayloadRejectsWrongContract(t *testing.T) {
	path := writePackage(t, Payload{
		Metadata: Metadata{Program: "demo", Mode: "interp", Contract: ContractVersion + 1},
		Program:  []byte(`{"funcs":[]}`),
	})
	_, err := ReadPayload(path)
	if err == nil || !strings.Contains(err.Error(), "contract") {
		t.Errorf("got %v", err)
	}
}

func TestReadPayloadRejectsCorruptLength(t *testing.T) {
	packed, _ := Append([]byte("runner"), Payload{
		Metadata: Metadata{Mode: "interp"},
		Program:  []byte(`{}`),
	})
	// Overstate the body length so it runs past the file start.
	packed[len(packed)-16] = 0xFF
	path := filepath.Join(t.TempDir(), "corrupt")
	os.WriteFile(path, packed, 0o755)
	_, err := ReadPayload(path)
	if err == nil {
		t.Error("corrupt length accepted")
	}
}
