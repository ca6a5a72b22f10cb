package main

import (
	"fmt"
	"os"
)

var subcommands = map[string]func(args []string) error{
	"start":  runStart,
	"search": runSearch,
	"login":  runLogin,
	"logout": runLogout,
	"show":   runShow,
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	cmd, ok := subcommands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "pmc: unknown subcommand %q\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err := cmd(os.Args[2:]); err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: pmc <subcommand> [flags] [args]

subcommands:
  start [flags] [version]   install and run a version
  search [flags] [query]    list versions available from a loader's metadata
  login <id>                begin a Microsoft device-code login
  logout <id>               forget a stored session
  show about|lang|completion diagnostics

global flags (accepted by every subcommand):
  --main-dir, --work-dir, --timeout, --output {human|human-color|machine}, -v`)
}
