package buildcache

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Manifest describes one buildable program: its identity, the entry
// function, and declared host capabilities. It participates in the
// build fingerprint byte-for-byte, so any edit forces a rebuild.
type Manifest struct {
	Name         string            `yaml:"name"`
	Version      string            `yaml:"version"`
	Entry        string            `yaml:"entry"`
	Capabilities []string          `yaml:"capabilities,omitempty"`
	Settings     map[string]string `yaml:"settings,omitempty"`
}

func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", path, err)
	}
	if m.Name == "" {
		return nil, fmt.Errorf("manifest %s: missing name", path)
	}
	if m.Entry == "" {
		m.Entry = "main"
	}
	return &m, nil
}

func (m *Manifest) Save(path string) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Lockfile pins the resolved revision of every module the program
// pulls in. Like the manifest it is hashed into the fingerprint.
type Lockfile struct {
	Resolved map[string]string `yaml:"resolved"`
}

func LoadLockfile(path string) (*Lockfile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Lockfile{Resolved: map[string]string{}}, nil
		}
		return nil, fmt.Errorf("reading lockfile: %w", err)
	}
	var l Lockfile
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}
	if l.Resolved == nil {
		l.Resolved = map[string]string{}
	}
	return &l, nil
}

func (l *Lockfile) Save(path string) error {
	data, err := yaml.Marshal(l)
	if err != nil {
		return fmt.Errorf("encoding lockfile: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
