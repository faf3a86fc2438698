package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"

	"github.com/asheshgoplani/termdeck/internal/config"
)

func handleConfig(args []string) int {
	sub := "show"
	if len(args) > 0 {
		sub = args[0]
	}

	path, err := config.Path()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	switch sub {
	case "path":
		fmt.Println(path)
		return 0
	case "show":
		cfg, err := config.Reload()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v (showing defaults)\n", err)
		}
		if err := toml.NewEncoder(os.Stdout).Encode(cfg); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		return 0
	case "init":
		if _, err := os.Stat(path); err == nil {
			fmt.Printf("Config already exists at %s\n", path)
			return 0
		} else if !errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		if err := config.Save(config.Default()); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return 1
		}
		fmt.Printf("✓ Wrote %s\n", path)
		return 0
	case "help", "-h", "--help":
		printConfigHelp()
		return 0
	}

	fmt.Fprintf(os.Stderr, "Error: unknown config command %q\n", sub)
	printConfigHelp()
	return 2
}

func printConfigHelp() {
	fmt.Println("Usage: termdeck config [show|path|init]")
	fmt.Println()
	fmt.Println("  show   Print the effective configuration (default)")
	fmt.Println("  path   Print the config file path")
	fmt.Println("  init   Write a config file with defaults if none exists")
}
