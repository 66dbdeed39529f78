package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/glommer/cachebro/internal/cache"
)

const usage = `usage: cachebro <command> [flags]

commands:
  serve   serve the cache (--stdio for the NDJSON protocol)
  read    read files through the cache
  status  show token savings
  clear   forget every cached version and counter
`

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	args := os.Args[1:]
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	var err error
	switch args[0] {
	case "serve":
		err = runServeCommand(ctx, args[1:])
	case "read":
		err = runReadCommand(ctx, args[1:], os.Stdout)
	case "status":
		err = runStatusCommand(ctx, args[1:], os.Stdout)
	case "clear":
		err = runClearCommand(ctx, args[1:], os.Stdout)
	case "-h", "--help", "help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", args[0], usage)
		os.Exit(2)
	}

	if err != nil {
		if args[0] == "serve" && hasFlag(args[1:], "--stdio") {
			// In stdio mode, print to stderr to avoid corrupting the protocol
			fmt.Fprintf(os.Stderr, "FATAL: %s failed: %v\n", args[0], err)
			os.Exit(1)
		}
		log.Fatalf("%s failed: %v", args[0], err)
	}
}

func hasFlag(args []string, name string) bool {
	for _, a := range args {
		if a == name || strings.HasPrefix(a, name+"=") {
			return true
		}
	}
	return false
}

// commonFlags registers the flags every subcommand accepts.
func commonFlags(fs *flag.FlagSet) *envOptions {
	opts := &envOptions{}
	fs.StringVar(&opts.RepoRoot, "root", "", "Repository root (default: current directory)")
	fs.StringVar(&opts.DBPath, "db", "", "Cache database path (default: <root>/.cachebro/cache.db)")
	fs.StringVar(&opts.SessionID, "session", "", "Session ID (default: a new UUID per run)")
	return opts
}

func runServeCommand(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	opts := commonFlags(fs)
	stdioMode := fs.Bool("stdio", false, "Serve the NDJSON stdio protocol")
	fs.BoolVar(&opts.Watch, "watch", false, "Watch the repository for changes")

	if err := fs.Parse(args); err != nil {
		return err
	}

	// Redirect logs to stderr in stdio mode to avoid corrupting the protocol
	if *stdioMode {
		log.SetOutput(os.Stderr)
	}

	env, err := prepareRuntimeEnv(ctx, *opts)
	if err != nil {
		if *stdioMode {
			fmt.Fprintf(os.Stderr, "ERROR: failed to prepare runtime environment: %v\n", err)
		}
		return err
	}
	defer env.Close()

	if *stdioMode {
		return runStdIOServer(ctx, env)
	}
	return runInteractive(ctx, env, os.Stdin, os.Stdout)
}

// runInteractive reads one path per line and prints what the cache returns.
func runInteractive(ctx context.Context, env *runtimeEnv, in io.Reader, out io.Writer) error {
	log.Printf("🧠 cachebro ready (session %s, repo %s)", env.Cache.SessionID(), env.RepoRoot)

	s := bufio.NewScanner(in)
	for ctx.Err() == nil {
		fmt.Fprint(out, "cachebro> ")
		if !s.Scan() {
			break
		}
		path := strings.TrimSpace(s.Text())
		if path == "" {
			continue
		}
		res, err := env.Cache.ReadFile(ctx, env.path(path))
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printResult(out, res)
	}
	fmt.Fprintln(out)
	return s.Err()
}

func runReadCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("read", flag.ExitOnError)
	opts := commonFlags(fs)
	offset := fs.Int("offset", 0, "First line to read (1-based)")
	limit := fs.Int("limit", 0, "Number of lines to read")
	full := fs.Bool("full", false, "Always print the full content")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return errors.New("read needs at least one path")
	}

	env, err := prepareRuntimeEnv(ctx, *opts)
	if err != nil {
		return err
	}
	defer env.Close()

	var failed int
	for _, path := range fs.Args() {
		abs := env.path(path)
		var res *cache.ReadResult
		switch {
		case *full:
			res, err = env.Cache.ReadFileFull(ctx, abs)
		case *offset > 0 || *limit > 0:
			res, err = env.Cache.ReadFileRange(ctx, abs, *offset, *limit)
		default:
			res, err = env.Cache.ReadFile(ctx, abs)
		}
		if err != nil {
			log.Printf("⚠️  %v", err)
			failed++
			continue
		}
		if fs.NArg() > 1 {
			fmt.Fprintf(out, "==> %s <==\n", path)
		}
		printResult(out, res)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d reads failed", failed, fs.NArg())
	}
	return nil
}

func printResult(out io.Writer, res *cache.ReadResult) {
	fmt.Fprint(out, res.Content)
	if !strings.HasSuffix(res.Content, "\n") {
		fmt.Fprintln(out)
	}
}

func runStatusCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *opts)
	if err != nil {
		return err
	}
	defer env.Close()

	stats, err := env.Cache.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "database:       %s\n", env.Config.DBPath)
	fmt.Fprintf(out, "files tracked:  %d\n", stats.FilesTracked)
	fmt.Fprintf(out, "tokens saved:   %d\n", stats.TokensSaved)
	fmt.Fprintf(out, "session tokens: %d (%s)\n", stats.SessionTokensSaved, stats.SessionID)
	return nil
}

func runClearCommand(ctx context.Context, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("clear", flag.ExitOnError)
	opts := commonFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}

	env, err := prepareRuntimeEnv(ctx, *opts)
	if err != nil {
		return err
	}
	defer env.Close()

	if err := env.Cache.Clear(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "🧹 Cleared %s\n", env.Config.DBPath)
	return nil
}
