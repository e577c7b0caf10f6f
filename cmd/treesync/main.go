// Package main is the entry point for the treesync replay tool. It opens a
// file, replays an edit script against it and prints the committed tree.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/dshills/treesync/internal/config"
	"github.com/dshills/treesync/internal/engine"
	"github.com/dshills/treesync/internal/lang/brace"
	"github.com/dshills/treesync/internal/logging"
	"github.com/dshills/treesync/internal/syntax"
)

// Version information (set via ldflags during build).
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

type options struct {
	configPath string
	file       string
	edits      string
	logLevel   string
	tree       bool
}

func main() {
	os.Exit(run())
}

func run() int {
	opts := parseFlags()

	cfg := config.Default()
	if opts.configPath != "" {
		var err error
		if cfg, err = config.Load(opts.configPath); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
	}
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	logger := logging.New(logging.Config{Level: cfg.LogLevel(), Output: os.Stderr, Prefix: "treesync"})
	e, err := engine.New(brace.NewParser(), engine.WithConfig(cfg), engine.WithLogger(logger))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to initialize: %v\n", err)
		return 1
	}
	defer func() { _ = e.Stop() }()

	// Handle signals for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := replayFiles(ctx, e, opts, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// replayFiles opens opts.file, replays opts.edits against it and reports the
// result to out.
func replayFiles(ctx context.Context, e *engine.Engine, opts options, out io.Writer) error {
	text := ""
	if opts.file != "" {
		data, err := os.ReadFile(opts.file)
		if err != nil {
			return err
		}
		text = string(data)
	}
	name := opts.file
	if name == "" {
		name = "untitled"
	}
	doc, err := e.Open(ctx, name, text)
	if err != nil {
		return err
	}

	var steps []step
	if opts.edits != "" {
		var r io.Reader = os.Stdin
		if opts.edits != "-" {
			f, err := os.Open(opts.edits)
			if err != nil {
				return err
			}
			defer f.Close()
			r = f
		}
		if steps, err = parseScript(r); err != nil {
			return err
		}
	}

	if err := replay(ctx, e, doc, steps); err != nil {
		return err
	}
	last, err := e.CommitNow(ctx, doc)
	if err != nil {
		return err
	}

	st := e.Stats()
	fmt.Fprintf(out, "steps: %d, last commit: %s (%d ops)\n", len(steps), last.Mode, last.Ops)
	fmt.Fprintf(out, "commits: %d applied, %d stale, %d canceled\n", st.Applied, st.Stale, st.Canceled)
	if opts.tree {
		fmt.Fprint(out, syntax.Dump(doc.Root()))
	} else {
		fmt.Fprintln(out, doc.Buffer().Text())
	}
	return nil
}

func parseFlags() options {
	var opts options
	var showVersion bool
	var showHelp bool

	flag.StringVar(&opts.configPath, "config", "", "Path to configuration file")
	flag.StringVar(&opts.configPath, "c", "", "Path to configuration file (shorthand)")
	flag.StringVar(&opts.file, "file", "", "File to open")
	flag.StringVar(&opts.file, "f", "", "File to open (shorthand)")
	flag.StringVar(&opts.edits, "edits", "", "Edit script, one JSON object per line (- for stdin)")
	flag.StringVar(&opts.edits, "e", "", "Edit script (shorthand)")
	flag.StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	flag.BoolVar(&opts.tree, "tree", false, "Print the committed tree instead of the text")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
	flag.BoolVar(&showVersion, "v", false, "Show version information (shorthand)")
	flag.BoolVar(&showHelp, "help", false, "Show help message")
	flag.BoolVar(&showHelp, "h", false, "Show help message (shorthand)")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "treesync - replay edits against a syntax tree\n\n")
		fmt.Fprintf(os.Stderr, "Usage: treesync [options]\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEdit script lines:\n")
		fmt.Fprintf(os.Stderr, "  {\"start\": 2, \"end\": 5, \"text\": \"abc\"}   replace buffer text\n")
		fmt.Fprintf(os.Stderr, "  {\"leaf\": 3, \"text\": \"abc\"}             replace the tree leaf at offset 3\n")
		fmt.Fprintf(os.Stderr, "  {\"commit\": true}                        commit synchronously\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  treesync -f main.br -e edits.jsonl -tree\n")
	}

	flag.Parse()

	if showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if showVersion {
		fmt.Printf("treesync %s\n", version)
		fmt.Printf("Commit: %s\n", commit)
		fmt.Printf("Built: %s\n", date)
		os.Exit(0)
	}

	switch opts.logLevel {
	case "", "debug", "info", "warn", "error":
	default:
		fmt.Fprintf(os.Stderr, "Error: invalid log level %q (must be debug, info, warn, or error)\n", opts.logLevel)
		os.Exit(1)
	}
	return opts
}
