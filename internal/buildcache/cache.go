package buildcache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// The cache is keyed purely by content: every input that can change
// the produced artifact is hashed, and nothing else is consulted. A
// hit hands back the stored bytes unchanged; there is no partial or
// "close enough" reuse.

// Inputs is the complete set of build inputs that feed the key.
type Inputs struct {
	// Sources maps module path to canonical program bytes.
	Sources map[string][]byte
	// Manifest and Lockfile are hashed as raw bytes.
	Manifest []byte
	Lockfile []byte
	// Toolchain identifies the producing toolchain build.
	Toolchain string
	// Profile and Target select the code generation configuration.
	Profile string
	Target  string
}

// Fingerprint derives the cache key. Sections are length-framed and
// sources are visited in sorted order, so the digest is stable and two
// different input sets cannot collide by concatenation.
func (in Inputs) Fingerprint() string {
	h := sha256.New()
	section := func(label string, data []byte) {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(label)))
		h.Write(n[:])
		h.Write([]byte(label))
		binary.BigEndian.PutUint64(n[:], uint64(len(data)))
		h.Write(n[:])
		h.Write(data)
	}

	names := make([]string, 0, len(in.Sources))
	for name := range in.Sources {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		section("src:"+name, in.Sources[name])
	}
	section("manifest", in.Manifest)
	section("lockfile", in.Lockfile)
	section("toolchain", []byte(in.Toolchain))
	section("profile", []byte(in.Profile))
	section("target", []byte(in.Target))

	return hex.EncodeToString(h.Sum(nil))
}

// Entry is the metadata stored beside each cached artifact.
type Entry struct {
	Fingerprint string `yaml:"fingerprint"`
	CreatedAt   string `yaml:"created_at"`
	Toolchain   string `yaml:"toolchain"`
	Profile     string `yaml:"profile"`
	Target      string `yaml:"target"`
	Size        int64  `yaml:"size"`
}

// Cache is a directory of artifacts, one subdirectory per fingerprint.
type Cache struct {
	dir string
}

const (
	artifactFile = "artifact.bin"
	metadataFile = "metadata.yaml"
)

func Open(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}
	return &Cache{dir: dir}, nil
}

func (c *Cache) entryDir(fp string) string { return filepath.Join(c.dir, fp) }

// Lookup returns the cached artifact for a fingerprint, if present. A
// stored entry whose recorded fingerprint disagrees with its directory
// is treated as absent.
func (c *Cache) Lookup(fp string) ([]byte, *Entry, bool) {
	dir := c.entryDir(fp)
	meta, err := os.ReadFile(filepath.Join(dir, metadataFile))
	if err != nil {
		return nil, nil, false
	}
	var entry Entry
	if err := yaml.Unmarshal(meta, &entry); err != nil || entry.Fingerprint != fp {
		return nil, nil, false
	}
	artifact, err := os.ReadFile(filepath.Join(dir, artifactFile))
	if err != nil || int64(len(artifact)) != entry.Size {
		return nil, nil, false
	}
	return artifact, &entry, true
}

// Store writes an artifact and its metadata. The write goes through a
// temp directory and a rename, so concurrent readers never observe a
// half-written entry.
func (c *Cache) Store(in Inputs, artifact []byte) (*Entry, error) {
	fp := in.Fingerprint()
	entry := Entry{
		Fingerprint: fp,
		CreatedAt:   time.Now().UTC().Format(time.RFC3339),
		Toolchain:   in.Toolchain,
		Profile:     in.Profile,
		Target:      in.Target,
		Size:        int64(len(artifact)),
	}
	meta, err := yaml.Marshal(&entry)
	if err != nil {
		return nil, fmt.Errorf("encoding cache metadata: %w", err)
	}

	tmp, err := os.MkdirTemp(c.dir, "tmp-"+fp[:12]+"-")
	if err != nil {
		return nil, fmt.Errorf("creating cache entry: %w", err)
	}
	defer os.RemoveAll(tmp)
	if err := os.WriteFile(filepath.Join(tmp, artifactFile), artifact, 0o644); err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	if err := os.WriteFile(filepath.Join(tmp, metadataFile), meta, 0o644); err != nil {
		return nil, fmt.Errorf("writing metadata: %w", err)
	}

	dst := c.entryDir(fp)
	os.RemoveAll(dst)
	if err := os.Rename(tmp, dst); err != nil {
		return nil, fmt.Errorf("publishing cache entry: %w", err)
	}
	slog.Debug("stored build artifact",
		slog.String("fingerprint", fp[:12]),
		slog.Int("bytes", len(artifact)))
	return &entry, nil
}

// GetOrBuild returns the cached artifact for the inputs, building and
// storing it on a miss. The second result reports whether the artifact
// came from the cache.
func (c *Cache) GetOrBuild(in Inputs, build func() ([]byte, error)) ([]byte, bool, error) {
	fp := in.Fingerprint()
	if artifact, _, ok := c.Lookup(fp); ok {
		slog.Debug("build cache hit", slog.String("fingerprint", fp[:12]))
		return artifact, true, nil
	}
	artifact, err := build()
	if err != nil {
		return nil, false, err
	}
	if _, err := c.Store(in, artifact); err != nil {
		return nil, false, err
	}
	return artifact, false, nil
}

// Evict removes one entry.
func (c *Cache) Evict(fp string) error {
	return os.RemoveAll(c.entryDir(fp))
}
