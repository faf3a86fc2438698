package main

import (
	"flag"
	"reflect"
	"testing"
)

func TestNormalizeArgs(t *testing.T) {
	tests := []struct {
		name     string
		setup    func() *flag.FlagSet
		args     []string
		expected []string
	}{
		{
			name: "flags already before positional args",
			setup: func() *flag.FlagSet {
				fs := flag.NewFlagSet("test", flag.ContinueOnError)
				fs.Bool("json", false, "")
				return fs
			},
			args:     []string{"--json", "20"},
			expected: []string{"--json", "20"},
		},
		{
			name: "bool flag after positional arg",
			setup: func() *flag.FlagSet {
				fs := flag.NewFlagSet("test", flag.ContinueOnError)
				fs.Bool("json", false, "")
				return fs
			},
			args:     []string{"20", "--json"},
			expected: []string{"--json", "20"},
		},
		{
			name: "string flag after positional arg",
			setup: func() *flag.FlagSet {
				fs := flag.NewFlagSet("test", flag.ContinueOnError)
				fs.String("shell", "", "")
				return fs
			},
			args:     []string{"extra", "--shell", "/bin/bash"},
			expected: []string{"--shell", "/bin/bash", "extra"},
		},
		{
			name: "flag with equals syntax",
			setup: func() *flag.FlagSet {
				fs := flag.NewFlagSet("test", flag.ContinueOnError)
				fs.String("listen", "", "")
				return fs
			},
			args:     []string{"extra", "--listen=127.0.0.1:9000"},
			expected: []string{"--listen=127.0.0.1:9000", "extra"},
		},
		{
			name: "terminator keeps trailing args positional",
			setup: func() *flag.FlagSet {
				fs := flag.NewFlagSet("test", flag.ContinueOnError)
				fs.String("shell", "", "")
				return fs
			},
			args:     []string{"--shell", "/bin/bash", "--", "--norc", "-i"},
			expected: []string{"--shell", "/bin/bash", "--", "--norc", "-i"},
		},
		{
			name: "no flags at all",
			setup: func() *flag.FlagSet {
				return flag.NewFlagSet("test", flag.ContinueOnError)
			},
			args:     []string{"a", "b"},
			expected: []string{"a", "b"},
		},
		{
			name: "empty args",
			setup: func() *flag.FlagSet {
				return flag.NewFlagSet("test", flag.ContinueOnError)
			},
			args:     []string{},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := normalizeArgs(tt.setup(), tt.args)
			if len(got) == 0 && len(tt.expected) == 0 {
				return
			}
			if !reflect.DeepEqual(got, tt.expected) {
				t.Errorf("normalizeArgs(%v) = %v, want %v", tt.args, got, tt.expected)
			}
		})
	}
}

func TestNormalizeArgsTerminatorParses(t *testing.T) {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	shell := fs.String("shell", "", "")
	if err := fs.Parse(normalizeArgs(fs, []string{"--", "--norc", "--shell", "x"})); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if *shell != "" {
		t.Errorf("shell = %q, want empty", *shell)
	}
	if want := []string{"--norc", "--shell", "x"}; !reflect.DeepEqual(fs.Args(), want) {
		t.Errorf("Args() = %v, want %v", fs.Args(), want)
	}
}

func TestParseFlagsHelp(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Usage = func() {}
	exit, code := parseFlags(fs, []string{"-h"})
	if !exit || code != 0 {
		t.Errorf("parseFlags(-h) = (%v, %d), want (true, 0)", exit, code)
	}

	fs = flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Usage = func() {}
	fs.SetOutput(discard{})
	exit, code = parseFlags(fs, []string{"--bogus"})
	if !exit || code != 2 {
		t.Errorf("parseFlags(--bogus) = (%v, %d), want (true, 2)", exit, code)
	}
}

func TestClampTerminalSize(t *testing.T) {
	for in, want := range map[int]int{-3: 1, 0: 1, 80: 80, 5000: 1000} {
		if got := clampTerminalSize(in); got != want {
			t.Errorf("clampTerminalSize(%d) = %d, want %d", in, got, want)
		}
	}
}

func TestRunUnknownCommand(t *testing.T) {
	if code := run([]string{"definitely-not-a-command"}); code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
	if code := run([]string{"version"}); code != 0 {
		t.Errorf("version exit code = %d, want 0", code)
	}
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
