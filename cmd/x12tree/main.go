// Command x12tree prints the loop structure of an X12 interchange.
//
//	x12tree [-maps dir] [-loop 2300] [-json] [-color auto|always|never] [file]
//
// Without a file it reads standard input.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"

	"github.com/dgallion1/x12ctx/internal/errh"
	"github.com/dgallion1/x12ctx/internal/reader"
	"github.com/dgallion1/x12ctx/internal/x12"
)

const (
	exitOK = iota
	exitFatal
	exitUsage
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("x12tree", flag.ContinueOnError)
	fs.SetOutput(stderr)
	mapPath := fs.String("maps", envOr("MAP_PATH", "maps"), "directory holding the maps and their index")
	loopID := fs.String("loop", os.Getenv("DEFAULT_LOOP_ID"), "loop to gather into one tree per repeat")
	asJSON := fs.Bool("json", false, "write one JSON tree per line")
	colorMode := fs.String("color", "auto", "colorize output: auto, always or never")
	verbose := fs.Bool("v", false, "log map swaps to stderr")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() > 1 {
		fmt.Fprintln(stderr, "x12tree: at most one input file")
		return exitUsage
	}
	color, err := useColor(*colorMode, stdout)
	if err != nil {
		fmt.Fprintln(stderr, "x12tree:", err)
		return exitUsage
	}

	in := stdin
	if fs.NArg() == 1 {
		f, err := os.Open(fs.Arg(0))
		if err != nil {
			fmt.Fprintln(stderr, "x12tree:", err)
			return exitFatal
		}
		defer f.Close()
		in = f
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))

	collector := errh.NewCollector(log)
	rd, err := reader.Open(reader.Config{MapPath: *mapPath, Log: log}, collector, x12.NewReader(in))
	if err != nil {
		fmt.Fprintln(stderr, "x12tree:", err)
		return exitFatal
	}

	p := &printer{w: stdout, color: color}
	enc := json.NewEncoder(stdout)
	code := exitOK
	for tree, err := range rd.Iterate(*loopID).All() {
		if err != nil {
			fmt.Fprintln(stderr, "x12tree:", err)
			code = exitFatal
			break
		}
		if *asJSON {
			if err := enc.Encode(tree); err != nil {
				fmt.Fprintln(stderr, "x12tree:", err)
				return exitFatal
			}
			continue
		}
		p.tree(tree)
	}

	ep := &printer{w: stderr, color: color && isTerminal(stderr)}
	ep.diagnostics(collector.All())
	return code
}

func useColor(mode string, w io.Writer) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return os.Getenv("NO_COLOR") == "" && isTerminal(w), nil
	}
	return false, fmt.Errorf("unknown -color mode %q", mode)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
