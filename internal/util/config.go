package util

import (
	"os"
	"path/filepath"
)

// Configuration is the resolved tool configuration, collected in one
// place from flags, the environment and link-time build values.
type Configuration struct {
	Version   string
	BuildDate string
	Commit    string
	Engine    string
	CacheDir  string
	Workers   int
	DebugIR   bool
	SableHome string
}

// ResolveCacheDir picks the build cache directory: the explicit flag
// wins, then SABLE_HOME, then the user cache, then a local fallback.
func (c *Configuration) ResolveCacheDir() string {
	if c.CacheDir != "" {
		return c.CacheDir
	}
	if c.SableHome != "" {
		return filepath.Join(c.SableHome, "cache")
	}
	if base, err := os.UserCacheDir(); err == nil {
		return filepath.Join(base, "sable")
	}
	return ".sable-cache"
}
