package engine

// ToolSet specifies which categories of tools to include in the registry.
type ToolSet struct {
	Filesystem bool // read_file, read_files
	Cache      bool // cache_status, cache_clear
}

// DefaultToolSet enables every tool category.
func DefaultToolSet() ToolSet {
	return ToolSet{Filesystem: true, Cache: true}
}
