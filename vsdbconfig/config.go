// Package vsdbconfig resolves VSDB's one piece of process-wide state: the
// base directory a Backend opens under (spec §5, §6, §9). Grounded on the
// teacher's config package shape — a Config struct, a Default constructor,
// and directory helpers — scoped down to what a KV engine actually needs
// instead of a full node's network/RPC/wallet sections.
package vsdbconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/Klingon-tech/vsdb/vsdberr"
)

// BaseDirVar is the environment variable that overrides the default base
// directory (spec §6).
const BaseDirVar = "VSDB_BASE_DIR"

// AreaCount is the fixed number of physical sub-trees the Area Router fans
// prefixes across (spec §3, §4.2).
const AreaCount = 8

// Backend selects which storage engine a Store opens.
type Backend int

const (
	// BackendBadger is the durable, disk-backed engine.
	BackendBadger Backend = iota
	// BackendMemory is the ephemeral, in-memory engine (tests, scratch use).
	BackendMemory
)

// Config is VSDB's process-wide configuration.
type Config struct {
	// BaseDir is the root directory a durable backend opens under.
	BaseDir string
	// Backend selects the storage engine.
	Backend Backend
	// Areas overrides the default area fan-out; 0 means AreaCount.
	Areas int
}

// Default returns the default configuration: Badger backend rooted at
// DefaultBaseDir(), with the standard 8-way area fan-out.
func Default() *Config {
	return &Config{
		BaseDir: DefaultBaseDir(),
		Backend: BackendBadger,
		Areas:   AreaCount,
	}
}

// DefaultBaseDir resolves the base directory the way the Rust original
// does: $VSDB_BASE_DIR, else $HOME/.vsdb, else /tmp/.vsdb.
func DefaultBaseDir() string {
	if d := os.Getenv(BaseDirVar); d != "" {
		return d
	}
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		return filepath.Join(home, ".vsdb")
	}
	return filepath.Join(os.TempDir(), ".vsdb")
}

// CustomDir returns the "__CUSTOM__" subdirectory exposed to user code
// under cfg.BaseDir (spec §6), creating it if necessary.
func (c *Config) CustomDir() (string, error) {
	d := filepath.Join(c.BaseDir, "__CUSTOM__")
	if err := os.MkdirAll(d, 0o755); err != nil {
		return "", vsdberr.New("config.CustomDir", vsdberr.BackendIO, err)
	}
	return d, nil
}

// areas returns c.Areas if set, else AreaCount.
func (c *Config) areas() int {
	if c.Areas > 0 {
		return c.Areas
	}
	return AreaCount
}

// baseDirSet guards against re-initializing the process-wide base directory
// a second time (spec §5: "a double-set is refused with a distinct error").
var baseDirSet atomic.Bool

// SetBaseDir sets the process-wide base directory once. A second call
// returns vsdberr.AllocatorReinit.
func SetBaseDir(dir string) error {
	if baseDirSet.Swap(true) {
		return vsdberr.New("config.SetBaseDir", vsdberr.AllocatorReinit,
			fmt.Errorf("base directory already initialized"))
	}
	return os.Setenv(BaseDirVar, dir)
}
