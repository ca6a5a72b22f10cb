package main

import (
	"flag"
	"fmt"

	"github.com/quasar/pmc/internal/config"
)

func runShow(args []string) error {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	g := addGlobalFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() < 1 {
		return fmt.Errorf("show requires a topic: about, lang, completion")
	}

	switch fs.Arg(0) {
	case "about":
		return showAbout(g)
	case "lang":
		return showLang()
	case "completion":
		return showCompletion()
	default:
		return fmt.Errorf("unknown show topic %q", fs.Arg(0))
	}
}

func showAbout(g *globalFlags) error {
	cctx, cfg, err := g.buildContext()
	if err != nil {
		return err
	}
	fmt.Printf("%s %s\n", cfg.LauncherName, cfg.LauncherVersion)
	fmt.Printf("main dir:  %s\n", cctx.Main)
	fmt.Printf("work dir:  %s\n", cctx.WorkDir)
	return nil
}

// showLang is deliberately a static string: localization is not part of
// the installation engine (SPEC_FULL.md §6's "minimal since it's not part
// of the engine this spec governs").
func showLang() error {
	fmt.Println("en_us (default; no other locales bundled)")
	return nil
}

// showCompletion prints a minimal bash-completion skeleton so the
// subcommand resolves to something without pulling in a completion
// generator this engine doesn't otherwise need.
func showCompletion() error {
	fmt.Printf(`_pmc_complete() {
    local cur="${COMP_WORDS[COMP_CWORD]}"
    COMPREPLY=($(compgen -W "start search login logout show" -- "$cur"))
}
complete -F _pmc_complete %s
`, config.DefaultLauncherName)
	return nil
}
