// Command pmc is the CLI front-end of spec.md §6: a thin driver over the
// engine, specified only by the events it consumes, not by how it looks
// (SPEC_FULL.md §1's ambient-stack note).
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/pmcerr"
)

// outputMode is one of spec.md §6's three output modes.
type outputMode string

const (
	outputHuman      outputMode = "human"
	outputHumanColor outputMode = "human-color"
	outputMachine    outputMode = "machine"
)

// globalFlags are accepted by every subcommand (spec.md §6: "--main-dir,
// --work-dir, --timeout, --output, verbosity -v...").
type globalFlags struct {
	mainDir string
	workDir string
	timeout int
	output  string
	verbose int
}

func addGlobalFlags(fs *flag.FlagSet) *globalFlags {
	g := &globalFlags{}
	fs.StringVar(&g.mainDir, "main-dir", "", "main data directory (default: platform-appropriate)")
	fs.StringVar(&g.workDir, "work-dir", "", "game working directory (default: same as main-dir)")
	fs.IntVar(&g.timeout, "timeout", 0, "overall operation timeout in seconds (0: none)")
	fs.StringVar(&g.output, "output", string(outputHuman), "output mode: human, human-color, machine")
	fs.Func("v", "increase verbosity (repeatable)", func(string) error { g.verbose++; return nil })
	return g
}

func (g *globalFlags) mode() outputMode {
	switch outputMode(g.output) {
	case outputHumanColor:
		return outputHumanColor
	case outputMachine:
		return outputMachine
	default:
		return outputHuman
	}
}

// buildContext loads persisted Config (for defaults) and layers the
// global flags' overrides on top, returning the directory-root Context
// every engine call needs.
func (g *globalFlags) buildContext() (*config.Context, *config.Config, error) {
	cfg, err := config.Load(g.mainDir)
	if err != nil {
		return nil, nil, err
	}
	if g.mainDir != "" {
		cfg.MainDir = g.mainDir
	}
	if g.workDir != "" {
		cfg.WorkDir = g.workDir
	}
	return config.NewContext(cfg.MainDir, cfg.WorkDir), cfg, nil
}

// exitCode maps a pmcerr.Kind to a distinct non-zero process exit code
// (spec.md §7: "the CLI maps each kind to ... a distinct non-zero exit
// code"). Unrecognized errors and plain Go errors fall back to 1.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var perr *pmcerr.Error
	if !errors.As(err, &perr) {
		return 1
	}
	switch perr.Kind {
	case pmcerr.KindVersionNotFound, pmcerr.KindFabricGameNotFound, pmcerr.KindFabricLoaderNotFound,
		pmcerr.KindFabricLatestNotFound, pmcerr.KindForgeLatestNotFound:
		return 2
	case pmcerr.KindClientNotFound, pmcerr.KindAssetIndexNotFound, pmcerr.KindLibraryNotFound,
		pmcerr.KindMainClassNotFound, pmcerr.KindInstallerFileNotFound, pmcerr.KindInstallProfileNotFound:
		return 3
	case pmcerr.KindJVMNotFound:
		return 4
	case pmcerr.KindDownload, pmcerr.KindDownloadCancelled:
		return 5
	case pmcerr.KindProcessorFailed, pmcerr.KindProcessorCorrupted, pmcerr.KindProcessorNotFound:
		return 6
	case pmcerr.KindAuthDeclined, pmcerr.KindAuthTimedOut, pmcerr.KindAuthDoesNotOwnGame,
		pmcerr.KindAuthHTTPStatus, pmcerr.KindAuthOutdatedToken, pmcerr.KindAuthUnknown:
		return 7
	case pmcerr.KindHierarchyLoop, pmcerr.KindMalformedDescriptor:
		return 8
	default:
		return 1
	}
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "pmc: "+err.Error())
	os.Exit(exitCode(err))
}
