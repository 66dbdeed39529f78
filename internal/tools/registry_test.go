package tools

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/engine"
)

func TestNewToolRegistry(t *testing.T) {
	c := cache.New(filepath.Join(t.TempDir(), "cache.db"), cache.Options{})
	defer c.Close()

	reg := NewToolRegistry(t.TempDir(), c, engine.DefaultToolSet())
	names := make([]string, 0, len(reg))
	for _, s := range reg.Schemas() {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"cache_clear", "cache_status", "read_file", "read_files"}, names)

	reg = NewToolRegistry("", c, engine.ToolSet{Cache: true})
	assert.Len(t, reg, 2)
	assert.NotContains(t, reg, "read_file")
}

func TestRegistryReadThroughCache(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "main.go"), []byte("package main\n"), 0o644))

	c := cache.New(filepath.Join(t.TempDir(), "cache.db"), cache.Options{SessionID: "agent"})
	defer c.Close()
	reg := NewToolRegistry(root, c, engine.DefaultToolSet())

	out, err := reg.Call(ctx, "read_file", map[string]any{"path": "main.go"})
	require.NoError(t, err)
	assert.Contains(t, out, `"cached":false`)

	out, err = reg.Call(ctx, "read_file", map[string]any{"path": "main.go"})
	require.NoError(t, err)
	assert.Contains(t, out, `"cached":true`)

	_, err = reg.Call(ctx, "write_file", nil)
	var unknown *engine.UnknownToolError
	assert.ErrorAs(t, err, &unknown)
}
