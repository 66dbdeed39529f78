package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"github.com/glommer/cachebro/internal/cache"
	"github.com/glommer/cachebro/internal/engine"
	engineprotocol "github.com/glommer/cachebro/internal/engine/protocol"
	"github.com/glommer/cachebro/internal/tools"
)

func runStdIOServer(ctx context.Context, env *runtimeEnv) error {
	log.Println("🔌 Starting cachebro stdio server (--stdio)")
	runner := newStdIORunner(os.Stdin, os.Stdout, env.Cache, env.RepoRoot)
	runner.emitEvent(engineprotocol.NewStatusEvent(env.Cache.SessionID(), "ready", fmt.Sprintf("repo=%s db=%s", env.RepoRoot, env.Config.DBPath)))
	return runner.Run(ctx)
}

type stdioRunner struct {
	scanner  *bufio.Scanner
	writer   *bufio.Writer
	events   chan engineprotocol.Event
	cache    *cache.Cache
	repoRoot string
	handlers sync.WaitGroup
}

func newStdIORunner(in io.Reader, out io.Writer, c *cache.Cache, repoRoot string) *stdioRunner {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	return &stdioRunner{
		scanner:  scanner,
		writer:   bufio.NewWriter(out),
		events:   make(chan engineprotocol.Event, 256),
		cache:    c,
		repoRoot: repoRoot,
	}
}

// Run reads commands until stdin closes or ctx is cancelled. Each command is
// handled on its own goroutine; a single writer serialises the events.
func (r *stdioRunner) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go r.flushEvents(errCh)

	for ctx.Err() == nil && r.scanner.Scan() {
		line := strings.TrimSpace(r.scanner.Text())
		if line == "" {
			continue
		}
		r.handlers.Add(1)
		go func(l string) {
			defer r.handlers.Done()
			if err := r.handleLine(ctx, l); err != nil {
				log.Printf("stdio command error: %v", err)
			}
		}(line)
	}

	if err := r.scanner.Err(); err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent("", "", fmt.Sprintf("stdin error: %v", err), "protocol_error", ""))
	}

	r.handlers.Wait()
	close(r.events)
	return <-errCh
}

// flushEvents writes events until the channel closes. After a write error
// the remaining events are drained and discarded.
func (r *stdioRunner) flushEvents(errCh chan<- error) {
	var firstErr error
	for ev := range r.events {
		if firstErr != nil {
			continue
		}
		if err := r.writeEvent(ev); err != nil {
			firstErr = err
		}
	}
	errCh <- firstErr
}

func (r *stdioRunner) writeEvent(ev engineprotocol.Event) error {
	payload, err := engineprotocol.MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := r.writer.Write(append(payload, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	return r.writer.Flush()
}

func (r *stdioRunner) emitEvent(ev engineprotocol.Event) {
	r.events <- ev
}

// registryFor builds the tool registry bound to sessionID. An empty ID
// selects the server's own session. Registries are cheap and not kept, so
// callers may use as many session IDs as they like.
func (r *stdioRunner) registryFor(sessionID string) (engine.ToolRegistry, string) {
	if sessionID == "" {
		sessionID = r.cache.SessionID()
	}
	return tools.NewToolRegistry(r.repoRoot, r.cache.WithSession(sessionID), engine.DefaultToolSet()), sessionID
}

func (r *stdioRunner) handleLine(ctx context.Context, line string) error {
	cmd, err := engineprotocol.DecodeCommand([]byte(line))
	if err != nil {
		r.emitEvent(engineprotocol.NewErrorEvent("", "", err.Error(), "invalid_command", truncate(line, 256)))
		return err
	}

	switch c := cmd.(type) {
	case engineprotocol.ListToolsCommand:
		reg, _ := r.registryFor("")
		r.emitEvent(engineprotocol.NewToolsEvent(reg.Schemas()))
		return nil

	case engineprotocol.CallToolCommand:
		reg, sessionID := r.registryFor(c.SessionID)
		out, cerr := reg.Call(ctx, c.Tool, c.Args)
		if cerr != nil {
			r.emitEvent(engineprotocol.NewErrorEvent(sessionID, c.RequestID, cerr.Error(), errorKind(cerr), c.Tool))
			return cerr
		}
		r.emitEvent(engineprotocol.NewToolResultEvent(sessionID, c.RequestID, c.Tool, out))
		return nil

	case engineprotocol.GetStatsCommand:
		sessionID := c.SessionID
		if sessionID == "" {
			sessionID = r.cache.SessionID()
		}
		stats, serr := r.cache.StatsFor(ctx, sessionID)
		if serr != nil {
			r.emitEvent(engineprotocol.NewErrorEvent(sessionID, "", serr.Error(), errorKind(serr), ""))
			return serr
		}
		r.emitEvent(engineprotocol.NewStatsEvent(sessionID, stats.FilesTracked, stats.TokensSaved, stats.SessionTokensSaved))
		return nil

	default:
		err := fmt.Errorf("unhandled command type: %s", cmd.GetType())
		r.emitEvent(engineprotocol.NewErrorEvent("", "", err.Error(), "invalid_command", ""))
		return err
	}
}

// errorKind maps an error onto the stable kind string sent to clients.
func errorKind(err error) string {
	var verr *engine.ToolValidationError
	var unknown *engine.UnknownToolError
	switch {
	case errors.Is(err, cache.ErrNotFound):
		return "not_found"
	case errors.Is(err, cache.ErrAccessDenied):
		return "access_denied"
	case errors.Is(err, cache.ErrStorage):
		return "storage_error"
	case errors.Is(err, cache.ErrClosed):
		return "closed"
	case errors.As(err, &verr):
		return "invalid_args"
	case errors.As(err, &unknown):
		return "unknown_tool"
	default:
		return "tool_error"
	}
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
