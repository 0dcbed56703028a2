package mcp

import (
	"strings"

	"inframe/internal/safeio"
)

// Host wires cache-directory access for tools. Tools only ever read
// through CacheFS, so a tool input can never reach outside the cache
// directory.
type Host struct {
	// CacheFS is rooted at the context cache directory.
	CacheFS *safeio.SafeFS
	// DefaultFile is the cache file (relative to CacheFS) tools fall
	// back to when a call omits the path.
	DefaultFile string
}

// RegisterDefaultTools installs the default tool set into a registry.
func RegisterDefaultTools(r *Registry, h Host) {
	if r == nil {
		return
	}
	r.Register(newContextLatestTool(h))
	r.Register(newContextStatusTool(h))
	r.Register(newContextReadTool(h))
}

func (h Host) filePath(requested string) string {
	if p := strings.TrimSpace(requested); p != "" {
		return p
	}
	return h.DefaultFile
}

func (h Host) fs() *safeio.SafeFS {
	if h.CacheFS != nil {
		return h.CacheFS
	}
	return safeio.Default()
}
