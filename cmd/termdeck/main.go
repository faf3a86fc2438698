package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Version is set at build time via -ldflags.
var Version = "0.4.0"

func main() {
	os.Exit(run(os.Args[1:]))
}

// run dispatches a subcommand and returns the process exit code. With no
// arguments it opens an interactive shell like `termdeck run`.
func run(args []string) int {
	if len(args) == 0 {
		return handleRun(nil)
	}

	switch args[0] {
	case "version", "--version", "-v":
		fmt.Printf("termdeck v%s\n", Version)
		return 0
	case "help", "--help", "-h":
		printHelp()
		return 0
	case "serve":
		return handleServe(args[1:])
	case "run":
		return handleRun(args[1:])
	case "view":
		initColorProfile()
		return handleView(args[1:])
	case "history":
		return handleHistory(args[1:])
	case "config":
		return handleConfig(args[1:])
	}

	fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", args[0])
	printHelp()
	return 2
}

func printHelp() {
	fmt.Println(`termdeck - pseudo-terminal session manager

Usage:
  termdeck [command] [options]

Commands:
  run       Open a shell in this terminal through termdeck (default)
  view      Open a shell rendered by the termdeck grid viewer
  serve     Serve sessions over HTTP, SSE and websockets
  history   List journaled sessions
  config    Show or initialize the configuration
  version   Print the version
  help      Show this help

Environment:
  TERMDECK_HOME    State directory (default ~/.termdeck)
  TERMDECK_DEBUG   Enable debug logging
  TERMDECK_COLOR   Viewer color profile: truecolor, 256, 16, none

Run 'termdeck <command> -h' for command options.`)
}

// initColorProfile configures the lipgloss color profile for the viewer.
// TERMDECK_COLOR overrides detection.
func initColorProfile() {
	switch strings.ToLower(os.Getenv("TERMDECK_COLOR")) {
	case "truecolor", "true", "24bit":
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	case "256", "ansi256":
		lipgloss.SetColorProfile(termenv.ANSI256)
		return
	case "16", "ansi", "basic":
		lipgloss.SetColorProfile(termenv.ANSI)
		return
	case "none", "off", "ascii":
		lipgloss.SetColorProfile(termenv.Ascii)
		return
	}

	colorTerm := os.Getenv("COLORTERM")
	if colorTerm == "truecolor" || colorTerm == "24bit" {
		lipgloss.SetColorProfile(termenv.TrueColor)
		return
	}
	// Grid colors are hex values; ask termenv before settling for 256 colors.
	if p := termenv.EnvColorProfile(); p == termenv.TrueColor {
		lipgloss.SetColorProfile(p)
		return
	}
	lipgloss.SetColorProfile(termenv.ANSI256)
}
