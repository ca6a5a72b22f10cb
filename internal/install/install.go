// Package install is the base installer (spec.md §4 data flow): it turns a
// version identifier, possibly routed through a mod-loader synthesis step,
// into a verified set of on-disk resources and an assembled Game ready to
// spawn.
package install

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/quasar/pmc/internal/assemble"
	"github.com/quasar/pmc/internal/config"
	"github.com/quasar/pmc/internal/events"
	"github.com/quasar/pmc/internal/fabric"
	"github.com/quasar/pmc/internal/fetch"
	"github.com/quasar/pmc/internal/forge"
	"github.com/quasar/pmc/internal/javaprovision"
	"github.com/quasar/pmc/internal/metadata"
	"github.com/quasar/pmc/internal/mojangapi"
	"github.com/quasar/pmc/internal/pmcerr"
	"github.com/quasar/pmc/internal/resources"
	"github.com/quasar/pmc/internal/rules"
)

// LoaderKind selects which family resolves the root version id (spec.md
// §6's version grammar loader-prefix).
type LoaderKind string

const (
	Standard     LoaderKind = "standard"
	Mojang       LoaderKind = "mojang"
	Fabric       LoaderKind = "fabric"
	Quilt        LoaderKind = "quilt"
	LegacyFabric LoaderKind = "legacyfabric"
	Babric       LoaderKind = "babric"
	Forge        LoaderKind = "forge"
	NeoForge     LoaderKind = "neoforge"
)

// Settings configures one Install call (spec.md §3's installer
// configuration record).
type Settings struct {
	// VersionID is the Mojang id or alias (release/snapshot) to install.
	// For a loader family it names the *underlying* game version; the
	// loader's own version is LoaderVersion.
	VersionID     string
	Loader        LoaderKind
	LoaderVersion string // "", "-latest", "-recommended", or a literal version

	StrictAssets    bool
	StrictLibraries bool
	StrictJVM       bool

	JavaPolicy javaprovision.Settings

	// ExcludeLib patterns are "group:artifact[:[version][:classifierPrefix]]".
	ExcludeLib []string
	// IncludeBin are extra paths symlinked (or copied) into the run's bin
	// directory alongside extracted natives.
	IncludeBin []string

	Features map[string]bool
	Fixes    assemble.Fixes

	LauncherName    string
	LauncherVersion string

	// Values carries every placeholder the caller already knows (auth
	// fields, resolution, quick-play targets); Install fills in the
	// fields it derives itself (classpath, natives directory, ...).
	Values assemble.Values

	Workers int
}

// Game is the install output record: everything spawn needs plus a record
// of which version-specific fixes were applied (spec.md §3).
type Game struct {
	JavaPath     string
	WorkDir      string
	MainClass    string
	JVMArgs      []string
	GameArgs     []string
	AppliedFixes []string
}

// Install runs the full data flow of spec.md §2: loader synthesis (if any),
// metadata chain load and flatten, rule evaluation, library/asset/JVM
// resolution and fetch, native extraction, and argument assembly.
func Install(ctx context.Context, cctx *config.Context, settings Settings, d *events.Dispatcher) (*Game, error) {
	if d == nil {
		d = events.NewDispatcher(nil)
	}
	if err := cctx.EnsureDirs(); err != nil {
		return nil, err
	}

	d.Emit(events.Event{Kind: events.KindFeatureSelection, Data: settings.Features})

	engine := fetch.New(settings.Workers)

	rootID, preresolvedJava, err := resolveRoot(ctx, cctx, settings, engine, d)
	if err != nil {
		return nil, err
	}

	mojang := mojangapi.NewClient()
	chain, err := metadata.LoadChain(cctx, rootID, mojang.NeedVersion(ctx, cctx), d)
	if err != nil {
		return nil, err
	}
	flat, err := metadata.Flatten(chain)
	if err != nil {
		return nil, err
	}

	ev := rules.NewEvaluator(rules.CurrentPlatform(), settings.Features)

	var libs []metadata.Library
	fixNames := withFixCollector(d, func(relay *events.Dispatcher) {
		libs = assemble.ApplyLibraryFixes(flat.Libraries, settings.Fixes, relay)
	})

	resolvedLibs := resources.ResolveLibraries(cctx, libs, ev, makeExcludeLibFunc(settings.ExcludeLib), nil)

	d.Emitf(events.KindLibrariesLoadStart, "resolving libraries")
	if err := engine.Batch(ctx, filterNeeded(resolvedLibs.Fetch, settings.StrictLibraries), d); err != nil {
		return nil, err
	}
	d.Emitf(events.KindLibrariesLoadEnd, "resolved libraries")

	if flat.Downloads == nil || flat.Downloads.Client == nil {
		return nil, pmcerr.New(pmcerr.KindClientNotFound, "descriptor has no downloads.client")
	}
	clientJarPath := cctx.VersionJarPath(flat.ID)

	d.Emitf(events.KindClientLoadStart, "fetching client jar")
	clientEntry := fetch.Entry{
		URL:  flat.Downloads.Client.URL,
		Dest: clientJarPath,
		SHA1: flat.Downloads.Client.SHA1,
		Size: flat.Downloads.Client.Size,
	}
	if err := engine.Batch(ctx, filterNeeded([]fetch.Entry{clientEntry}, settings.StrictLibraries), d); err != nil {
		return nil, err
	}
	d.Emitf(events.KindClientLoadEnd, "fetched client jar")

	loggingPath := ""
	if flat.Logging != nil && flat.Logging.Client != nil && flat.Logging.Client.File != nil {
		d.Emitf(events.KindLoggerLoadStart, "fetching logging config")
		lf := flat.Logging.Client.File
		loggingPath = filepath.Join(cctx.Assets, "log_configs", lf.ID)
		entry := fetch.Entry{URL: lf.URL, Dest: loggingPath, SHA1: lf.SHA1, Size: lf.Size}
		if err := engine.Batch(ctx, filterNeeded([]fetch.Entry{entry}, settings.StrictAssets), d); err != nil {
			return nil, err
		}
		d.Emitf(events.KindLoggerLoadEnd, "fetched logging config")
	}

	d.Emitf(events.KindAssetsLoadStart, "resolving assets")
	resolvedAssets, err := resources.ResolveAssetIndex(cctx, flat.AssetIndex, func(dest string) error {
		entry := fetch.Entry{URL: flat.AssetIndex.URL, Dest: dest, SHA1: flat.AssetIndex.SHA1, Size: flat.AssetIndex.Size}
		return engine.Batch(ctx, []fetch.Entry{entry}, d)
	})
	if err != nil {
		return nil, err
	}
	if err := engine.Batch(ctx, filterNeeded(resolvedAssets.Fetch, settings.StrictAssets), d); err != nil {
		return nil, err
	}
	if err := resolvedAssets.MaterializeLegacyMirrors(cctx, cctx.WorkDir); err != nil {
		return nil, err
	}
	d.Emitf(events.KindAssetsLoadEnd, "resolved assets")

	javaPath := preresolvedJava
	if javaPath == "" {
		javaPath, err = javaprovision.Resolve(ctx, cctx, flat.JavaVersion, settings.JavaPolicy, engine, d)
		if err != nil {
			return nil, err
		}
	}

	binDir := filepath.Join(cctx.Bin, uuid.NewString())
	if err := resources.ExtractNatives(resolvedLibs.Natives, binDir); err != nil {
		return nil, err
	}
	if err := resources.LinkExtraBin(settings.IncludeBin, binDir); err != nil {
		return nil, err
	}

	classpath := append(append([]string{}, resolvedLibs.Classpath...), clientJarPath)

	values := settings.Values
	values.VersionName = flat.ID
	values.GameDirectory = cctx.WorkDir
	values.AssetsRoot = cctx.Assets
	if flat.AssetIndex != nil {
		values.AssetsIndexName = flat.AssetIndex.ID
	}
	values.NativesDirectory = binDir
	values.Classpath = strings.Join(classpath, classpathSeparator())
	values.LibraryDirectory = cctx.Libraries
	values.LoggingPath = loggingPath
	values.LauncherName = settings.LauncherName
	values.LauncherVersion = settings.LauncherVersion

	var result assemble.Result
	moreFixNames := withFixCollector(d, func(relay *events.Dispatcher) {
		result = assemble.Assemble(flat, ev, values, settings.Fixes, relay)
	})

	return &Game{
		JavaPath:     javaPath,
		WorkDir:      cctx.WorkDir,
		MainClass:    result.MainClass,
		JVMArgs:      result.JVMArgs,
		GameArgs:     result.GameArgs,
		AppliedFixes: append(fixNames, moreFixNames...),
	}, nil
}

// resolveRoot produces the root version id to load through
// metadata.LoadChain, dispatching on settings.Loader. Forge/NeoForge also
// returns an already-resolved java path, since running V2 processors
// requires a JVM resolved against the *underlying* version's javaVersion
// before the loader's own combined chain exists.
func resolveRoot(ctx context.Context, cctx *config.Context, settings Settings, engine *fetch.Engine, d *events.Dispatcher) (rootID, javaPath string, err error) {
	switch settings.Loader {
	case "", Standard, Mojang:
		mojang := mojangapi.NewClient()
		id, err := mojang.ResolveAlias(ctx, settings.VersionID)
		if err != nil {
			return "", "", err
		}
		return id, "", nil

	case Fabric, Quilt, LegacyFabric, Babric:
		client := fabric.NewClient(fabric.Family(settings.Loader))
		desc, err := client.Install(ctx, cctx, settings.VersionID, settings.LoaderVersion, d)
		if err != nil {
			return "", "", err
		}
		return desc.ID, "", nil

	case Forge, NeoForge:
		mojang := mojangapi.NewClient()
		vanillaID, err := mojang.ResolveAlias(ctx, settings.VersionID)
		if err != nil {
			return "", "", err
		}

		vanillaChain, err := metadata.LoadChain(cctx, vanillaID, mojang.NeedVersion(ctx, cctx), d)
		if err != nil {
			return "", "", err
		}
		vanillaFlat, err := metadata.Flatten(vanillaChain)
		if err != nil {
			return "", "", err
		}
		if vanillaFlat.Downloads == nil || vanillaFlat.Downloads.Client == nil {
			return "", "", pmcerr.New(pmcerr.KindClientNotFound, "underlying version has no downloads.client")
		}

		clientJarPath := cctx.VersionJarPath(vanillaFlat.ID)
		entry := fetch.Entry{
			URL:  vanillaFlat.Downloads.Client.URL,
			Dest: clientJarPath,
			SHA1: vanillaFlat.Downloads.Client.SHA1,
			Size: vanillaFlat.Downloads.Client.Size,
		}
		if err := engine.Batch(ctx, filterNeeded([]fetch.Entry{entry}, settings.StrictLibraries), d); err != nil {
			return "", "", err
		}

		javaPath, err := javaprovision.Resolve(ctx, cctx, vanillaFlat.JavaVersion, settings.JavaPolicy, engine, d)
		if err != nil {
			return "", "", err
		}

		desc, err := forge.Resolve(ctx, cctx, forge.Loader(settings.Loader), vanillaID, settings.LoaderVersion, javaPath, engine, d)
		if err != nil {
			return "", "", err
		}
		return desc.ID, javaPath, nil

	default:
		return "", "", pmcerr.New(pmcerr.KindVersionNotFound, "unknown loader: "+string(settings.Loader))
	}
}

// filterNeeded drops entries already present on disk when strict is off
// (spec.md §4.6: "presence alone accepted when strict checking is off").
// fetch.Engine's own SHA-1 check handles the strict-on skip path, so
// strict batches pass through unfiltered.
func filterNeeded(entries []fetch.Entry, strict bool) []fetch.Entry {
	if strict || len(entries) == 0 {
		return entries
	}
	out := entries[:0:0]
	for _, e := range entries {
		if fileExists(e.Dest) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// makeExcludeLibFunc compiles exclude_lib patterns of the form
// "group:artifact[:[version][:classifierPrefix]]" into a matcher against a
// library's full "group:artifact:version[:classifier]" name (spec.md §4.3).
func makeExcludeLibFunc(patterns []string) func(name string) bool {
	if len(patterns) == 0 {
		return nil
	}
	return func(name string) bool {
		for _, p := range patterns {
			if excludeLibMatches(p, name) {
				return true
			}
		}
		return false
	}
}

func excludeLibMatches(pattern, name string) bool {
	pat := strings.SplitN(pattern, ":", 4)
	lib := strings.SplitN(name, ":", 4)
	if len(pat) < 2 || len(lib) < 2 {
		return false
	}
	if pat[0] != lib[0] || pat[1] != lib[1] {
		return false
	}
	if len(pat) >= 3 && pat[2] != "" {
		if len(lib) < 3 || lib[2] != pat[2] {
			return false
		}
	}
	if len(pat) == 4 && pat[3] != "" {
		if len(lib) < 4 || !strings.HasPrefix(lib[3], pat[3]) {
			return false
		}
	}
	return true
}

// withFixCollector relays every event emitted during fn through to d while
// also collecting the names of any fix_applied events, since
// assemble.ApplyLibraryFixes/Assemble only announce applied fixes as
// events rather than returning a names list.
func withFixCollector(d *events.Dispatcher, fn func(relay *events.Dispatcher)) []string {
	ch := make(chan events.Event, 64)
	done := make(chan struct{})
	var names []string
	go func() {
		defer close(done)
		for e := range ch {
			if e.Kind == events.KindFixApplied {
				if data, ok := e.Data.(events.FixAppliedData); ok {
					names = append(names, data.Name)
				}
			}
			d.Emit(e)
		}
	}()

	fn(events.NewDispatcher(ch))

	close(ch)
	<-done
	return names
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func classpathSeparator() string {
	if runtime.GOOS == "windows" {
		return ";"
	}
	return ":"
}
