package tools

import (
	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/engine"
	"github.com/glommer/cachebro/internal/tools/filesystem"
	"github.com/glommer/cachebro/internal/tools/status"
)

// NewToolRegistry creates a new engine.ToolRegistry based on the provided ToolSet.
// Every tool reads and reports through c on behalf of c's session.
func NewToolRegistry(repoRoot string, c *cache.Cache, set engine.ToolSet) engine.ToolRegistry {
	reg := make(engine.ToolRegistry)

	if set.Filesystem {
		reg["read_file"] = filesystem.NewReadFileTool(repoRoot, c)
		reg["read_files"] = filesystem.NewReadFilesTool(repoRoot, c)
	}

	if set.Cache {
		reg["cache_status"] = status.NewCacheStatusTool(repoRoot, c)
		reg["cache_clear"] = status.NewCacheClearTool(c)
	}

	return reg
}
