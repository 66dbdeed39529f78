package status

import (
	"context"
	"encoding/json"
	"log"

	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/engine"
	"github.com/glommer/cachebro/internal/tools/filesystem"
)

// Cache is the part of *cache.Cache the status tools call.
type Cache interface {
	Stats(ctx context.Context) (cache.Stats, error)
	PathStatus(ctx context.Context, path string) (cache.PathStatus, error)
	Clear(ctx context.Context) error
}

type statusResult struct {
	cache.Stats
	File *cache.PathStatus `json:"file,omitempty"`
}

func cacheStatusImpl(ctx context.Context, c Cache, repoRoot, path string) (string, error) {
	stats, err := c.Stats(ctx)
	if err != nil {
		return "", err
	}
	result := statusResult{Stats: stats}

	if path != "" {
		filePath, err := filesystem.ResolvePath(repoRoot, path)
		if err != nil {
			return "", err
		}
		file, err := c.PathStatus(ctx, filePath)
		if err != nil {
			return "", err
		}
		result.File = &file
	}

	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

func cacheClearImpl(ctx context.Context, c Cache) (string, error) {
	if err := c.Clear(ctx); err != nil {
		return "", err
	}
	log.Printf("🧹 Cache cleared")

	result := map[string]interface{}{
		"status": "cleared",
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}
	return string(resultJSON), nil
}

// NewCacheStatusTool creates an engine.Tool that reports token savings and,
// for a given path, the versions the cache holds.
func NewCacheStatusTool(repoRoot string, c Cache) engine.Tool {
	return engine.Tool{
		Name: "cache_status",
		Description: "Reports how many files the cache tracks and how many tokens it has saved, overall and for this session. " +
			"With path, also lists the versions kept for that file and which one this session last received.",
		SchemaJSON: `{"type":"object","properties":{` +
			`"path":{"type":"string","description":"Optional file path, absolute or relative to the repository root"}` +
			`},"additionalProperties":false}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			path, _ := args["path"].(string)
			return cacheStatusImpl(ctx, c, repoRoot, path)
		},
		Metadata: engine.ToolMetadata{
			Version:  "1.0.0",
			Category: "cache",
			Tags:     []string{"read-only", "idempotent"},
		},
	}
}

// NewCacheClearTool creates an engine.Tool that wipes the cache. Every
// session's next read of any file returns the full content.
func NewCacheClearTool(c Cache) engine.Tool {
	return engine.Tool{
		Name:        "cache_clear",
		Description: "Forgets every cached version and resets the savings counters. The next read of each file returns its full content.",
		SchemaJSON:  `{"type":"object","properties":{},"additionalProperties":false}`,
		Fn: func(ctx context.Context, args map[string]any) (string, error) {
			return cacheClearImpl(ctx, c)
		},
		Metadata: engine.ToolMetadata{
			Version:  "1.0.0",
			Category: "cache",
			Tags:     []string{"destructive", "idempotent"},
		},
	}
}
