package buildcache

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func sampleInputs() Inputs {
	return Inputs{
		Sources:   map[string][]byte{"main": []byte(`{"funcs":[]}`)},
		Manifest:  []byte("name: demo\n"),
		Lockfile:  []byte("resolved: {}\n"),
		Toolchain: "sable-0.3",
		Profile:   "release",
		Target:    "linux/amd64",
	}
}

func TestFingerprintStable(t *testing.T) {
	a := sampleInputs().Fingerprint()
	b := sampleInputs().Fingerprint()
	if a != b {
		t.Errorf("same inputs hashed differently: %s vs %s", a, b)
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64 hex chars", len(a))
	}
}

func TestFingerprintSensitivity(t *testing.T) {
	base := sampleInputs().Fingerprint()

	mutations := []struct {
		name   string
		mutate func(*Inputs)
	}{
		{"source byte", func(in *Inputs) { in.Sources["main"] = []byte(`{"funcs": []}`) }},
		{"source name", func(in *Inputs) {
			in.Sources = map[string][]byte{"other": in.Sources["main"]}
		}},
		{"manifest", func(in *Inputs) { in.Manifest = []byte("name: demo2\n") }},
		{"lockfile", func(in *Inputs) { in.Lockfile = []byte("resolved: {x: v1}\n") }},
		{"toolchain", func(in *Inputs) { in.Toolchain = "sable-0.4" }},
		{"profile", func(in *Inputs) { in.Profile = "debug" }},
		{"target", func(in *Inputs) { in.Target = "darwin/arm64" }},
	}
	for _, m := range mutations {
		in := sampleInputs()
		m.mutate(&in)
		if in.Fingerprint() == base {
			t.Errorf("changing %s did not change the fingerprint", m.name)
		}
	}
}

func TestFingerprintNoConcatenationCollision(t *testing.T) {
	a := Inputs{Manifest: []byte("ab"), Lockfile: []byte("c")}
	b := Inputs{Manifest: []byte("a"), Lockfile: []byte("bc")}
	if a.Fingerprint() == b.Fingerprint() {
		t.Error("length framing failed: shifted section bytes collided")
	}
}

func TestStoreLookup(t *testing.T) {
	cache, err := Open(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	in := sampleInputs()
	artifact := []byte("packaged bytes")

	entry, err := cache.Store(in, artifact)
	if err != nil {
		t.Fatalf("store failed: %s", err)
	}
	if entry.Fingerprint != in.Fingerprint() || entry.Size != int64(len(artifact)) {
		t.Errorf("entry = %+v", entry)
	}

	got, meta, ok := cache.Lookup(in.Fingerprint())
	if !ok {
		t.Fatal("stored entry not found")
	}
	if !bytes.Equal(got, artifact) {
		t.Error("artifact bytes changed")
	}
	if meta.Toolchain != "sable-0.3" || meta.Profile != "release" {
		t.Errorf("metadata = %+v", meta)
	}

	if _, _, ok := cache.Lookup("0000"); ok {
		t.Error("lookup of unknown fingerprint succeeded")
	}
}

func TestLookupRejectsTamperedEntry(t *testing.T) {
	dir := t.TempDir()
	cache, _ := Open(dir)
	in := sampleInputs()
	if _, err := cache.Store(in, []byte("artifact")); err != nil {
		t.Fatal(err)
	}

	fp := in.Fingerprint()
	path := filepath.Join(dir, fp, "artifact.bin")
	if err := os.WriteFile(path, []byte("artifact plus junk"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := cache.Lookup(fp); ok {
		t.Error("size mismatch must read as a miss")
	}
}

func TestGetOrBuild(t *testing.T) {
	cache, _ := Open(t.TempDir())
	in := sampleInputs()

	builds := 0
	build := func() ([]byte, error) {
		builds++
		return []byte("artifact"), nil
	}

	first, cached, err := cache.GetOrBuild(in, build)
	if err != nil || cached {
		t.Fatalf("first call: cached=%v err=%v", cached, err)
	}
	second, cached, err := cache.GetOrBuild(in, build)
	if err != nil || !cached {
		t.Fatalf("second call: cached=%v err=%v", cached, err)
	}
	if !bytes.Equal(first, second) {
		t.Error("cache hit returned different bytes")
	}
	if builds != 1 {
		t.Errorf("build ran %d times, want 1", builds)
	}
}

func TestGetOrBuildPropagatesBuildError(t *testing.T) {
	cache, _ := Open(t.TempDir())
	boom := errors.New("codegen exploded")
	_, _, err := cache.GetOrBuild(sampleInputs(), func() ([]byte, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Errorf("got %v", err)
	}
}

func TestEvict(t *testing.T) {
	cache, _ := Open(t.TempDir())
	in := sampleInputs()
	cache.Store(in, []byte("artifact"))
	if err := cache.Evict(in.Fingerprint()); err != nil {
		t.Fatal(err)
	}
	if _, _, ok := cache.Lookup(in.Fingerprint()); ok {
		t.Error("entry survived eviction")
	}
}

func TestManifestRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.yaml")
	m := &Manifest{Name: "demo", Version: "1.2.0", Entry: "start", Capabilities: []string{"db", "http"}}
	if err := m.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Name != "demo" || back.Entry != "start" || len(back.Capabilities) != 2 {
		t.Errorf("manifest = %+v", back)
	}
}

func TestManifestDefaultsAndValidation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "program.yaml")

	os.WriteFile(path, []byte("name: demo\n"), 0o644)
	m, err := LoadManifest(path)
	if err != nil {
		t.Fatal(err)
	}
	if m.Entry != "main" {
		t.Errorf("entry default = %q, want main", m.Entry)
	}

	os.WriteFile(path, []byte("version: 1.0.0\n"), 0o644)
	if _, err := LoadManifest(path); err == nil {
		t.Error("nameless manifest must be rejected")
	}
}

func TestLockfileMissingIsEmpty(t *testing.T) {
	l, err := LoadLockfile(filepath.Join(t.TempDir(), "no-such.lock"))
	if err != nil {
		t.Fatal(err)
	}
	if len(l.Resolved) != 0 {
		t.Errorf("resolved = %v", l.Resolved)
	}

	dir := t.TempDir()
	path := filepath.Join(dir, "program.lock")
	l.Resolved["dep"] = "v1.0.0"
	if err := l.Save(path); err != nil {
		t.Fatal(err)
	}
	back, err := LoadLockfile(path)
	if err != nil {
		t.Fatal(err)
	}
	if back.Resolved["dep"] != "v1.0.0" {
		t.Errorf("resolved = %v", back.Resolved)
	}
}
