package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/config"
	"github.com/glommer/cachebro/internal/project"
	"github.com/glommer/cachebro/internal/tools/filesystem"
	"github.com/glommer/cachebro/internal/watcher"
)

// envOptions are command-line values that win over config file and env.
type envOptions struct {
	RepoRoot  string
	DBPath    string
	SessionID string
	Watch     bool
}

type runtimeEnv struct {
	RepoRoot string
	Config   *config.Config
	Cache    *cache.Cache
	watcher  *watcher.Watcher
	stop     context.CancelFunc
}

func (r *runtimeEnv) Close() {
	if r.stop != nil {
		r.stop()
	}
	if r.watcher != nil {
		if err := r.watcher.Stop(); err != nil {
			log.Printf("⚠️  Failed to stop watcher: %v", err)
		}
	}
	if r.Cache != nil {
		if err := r.Cache.Close(); err != nil {
			log.Printf("⚠️  Failed to close cache: %v", err)
		}
	}
}

func prepareRuntimeEnv(ctx context.Context, opts envOptions) (*runtimeEnv, error) {
	repoRoot := opts.RepoRoot
	if repoRoot == "" {
		var err error
		repoRoot, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to get current directory: %w", err)
		}
	}

	absRepoRoot, err := filepath.Abs(repoRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository path: %w", err)
	}
	if info, err := os.Stat(absRepoRoot); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("repository path is not a valid directory: %s", absRepoRoot)
	}

	cfg := loadUserConfig()
	projectCfg, err := project.LoadConfig(absRepoRoot)
	if err != nil {
		log.Printf("⚠️  Failed to load project config: %v", err)
	}
	projectCfg.ApplyTo(cfg)
	if err := cfg.ApplyEnvOverrides(); err != nil {
		return nil, err
	}
	if opts.DBPath != "" {
		cfg.DBPath = opts.DBPath
	}
	if opts.SessionID != "" {
		cfg.SessionID = opts.SessionID
	}
	if opts.Watch {
		cfg.Watch = true
	}
	cfg.Resolve(absRepoRoot)

	c := cache.New(cfg.DBPath, cache.Options{
		SessionID:   cfg.SessionID,
		DiffContext: cfg.DiffContext,
		FS:          filesystem.NewOSFileSystem(),
	})
	if err := c.Init(ctx); err != nil {
		return nil, fmt.Errorf("failed to open cache at %s: %w", cfg.DBPath, err)
	}

	env := &runtimeEnv{RepoRoot: absRepoRoot, Config: cfg, Cache: c}
	if cfg.Watch {
		if err := env.startWatcher(ctx); err != nil {
			// Reads stay correct without the watcher.
			log.Printf("⚠️  Failed to start file watcher: %v (continuing without it)", err)
		}
	}
	return env, nil
}

func (r *runtimeEnv) startWatcher(ctx context.Context) error {
	w, err := watcher.New(r.Config.WatchRoots, watcher.Options{
		Debounce:       r.Config.Debounce(),
		IgnorePatterns: r.Config.IgnorePatterns,
	})
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		_ = w.Stop()
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	r.watcher = w
	r.stop = cancel
	go r.Cache.Consume(ctx, w.Events())
	log.Printf("👀 Watching %v (debounce %s)", r.Config.WatchRoots, r.Config.Debounce())
	return nil
}

// path makes a command-line path absolute against the repository root.
func (r *runtimeEnv) path(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(r.RepoRoot, p)
}

// loadUserConfig reads the user config file, falling back to an empty
// config when it is missing or unreadable.
func loadUserConfig() *config.Config {
	cfgManager, err := config.NewManager()
	if err != nil {
		log.Printf("⚠️  Failed to initialize config manager: %v", err)
		return &config.Config{}
	}
	cfg, err := cfgManager.Load()
	if err != nil {
		log.Printf("⚠️  Failed to load user config: %v", err)
		return &config.Config{}
	}
	return cfg
}
